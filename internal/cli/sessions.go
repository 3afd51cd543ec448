package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/showclock/internal/store"
)

// SessionsOptions holds flags for the sessions command group.
type SessionsOptions struct {
	*RootOptions
	Database string
}

// NewSessionsCommand creates the sessions command group.
func NewSessionsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SessionsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List or delete stored sessions",
	}
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkPersistentFlagRequired("db")

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored sessions, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionsList(opts, cmd)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a session and its settings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionsDelete(opts, args[0], cmd)
		},
	})
	return cmd
}

// SessionInfo is one listed session.
type SessionInfo struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	MaxFrames int64     `json:"max_frames"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SessionList renders as one line per session.
type SessionList []SessionInfo

func (l SessionList) String() string {
	if len(l) == 0 {
		return "no sessions"
	}
	lines := make([]string, 0, len(l))
	for _, s := range l {
		lines = append(lines, fmt.Sprintf("%s  %-20s max_frames=%d  updated %s",
			s.ID, s.Name, s.MaxFrames, s.UpdatedAt.Format(time.RFC3339)))
	}
	return strings.Join(lines, "\n")
}

func runSessionsList(opts *SessionsOptions, cmd *cobra.Command) error {
	out := formatter(opts.RootOptions, cmd)

	st, err := openStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	sessions, err := st.ListSessions(cmd.Context())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list sessions", err)
	}

	list := make(SessionList, 0, len(sessions))
	for _, s := range sessions {
		list = append(list, SessionInfo(s))
	}
	return out.Success(list)
}

func runSessionsDelete(opts *SessionsOptions, id string, cmd *cobra.Command) error {
	out := formatter(opts.RootOptions, cmd)

	st, err := openStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.DeleteSession(cmd.Context(), id); err != nil {
		code := ExitCommandError
		if errors.Is(err, store.ErrNotFound) {
			code = ExitFailure
		}
		return WrapExitError(code, "failed to delete session", err)
	}
	return out.SuccessFor(id, fmt.Sprintf("deleted session %s", id))
}
