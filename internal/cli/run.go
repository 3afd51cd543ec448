package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/showclock/internal/session"
	"github.com/roach88/showclock/internal/store"
	"github.com/roach88/showclock/internal/timecode"
	"github.com/roach88/showclock/internal/timeline"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Config   string
	Database string
	Session  string
	Name     string
	Duration time.Duration
	Paused   bool

	// IDs overrides the session id generator (for testing). Nil uses
	// UUIDv7Generator.
	IDs session.IDGenerator
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a clock session and print timecode",
		Long: `Run a timeline clock and print every timecode change.

With --db, the session and its clock settings are stored; --session
resumes a stored session with its saved source, standard and looping.
Settings are saved again when the clock stops.

Example:
  showclock run --duration 10s
  showclock run --config show.yaml --db show.db --session main --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClock(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Config, "config", "c", "", "path to YAML config")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session id to resume (default: new UUIDv7)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "session name")
	cmd.Flags().DurationVar(&opts.Duration, "duration", 0, "stop after this long (0 runs until interrupted)")
	cmd.Flags().BoolVar(&opts.Paused, "paused", false, "do not start playback")

	return cmd
}

// timecodeRecord is one line of run or follow output.
type timecodeRecord struct {
	Frame    int64  `json:"frame"`
	Timecode string `json:"timecode"`
	Clock    string `json:"clock,omitempty"`
	Playing  *bool  `json:"playing,omitempty"`
	State    string `json:"state,omitempty"`
	Event    string `json:"event,omitempty"`
}

func runClock(opts *RunOptions, cmd *cobra.Command) error {
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())
	out := formatter(opts.RootOptions, cmd)

	cfg, err := loadConfig(opts.Config)
	if err != nil {
		return err
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
	}

	sessOpts := []session.Option{
		session.WithLogger(logger),
		session.WithID(opts.Session),
		session.WithName(opts.Name),
	}
	if opts.IDs != nil {
		sessOpts = append(sessOpts, session.WithIDGenerator(opts.IDs))
	}

	var st *store.Store
	if cfg.Database != "" {
		st, err = openStore(cfg.Database)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()
		sessOpts = append(sessOpts, session.WithStore(st))
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()
	if opts.Duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	sess, err := session.Open(ctx, cfg, sessOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open session", err)
	}
	tl := sess.Timeline()
	sub := tl.Subscribe(timeline.DefaultSubscriptionBuffer)

	logger.Info("clock session starting",
		"session", sess.ID(),
		"source", tl.SourceKind().String(),
		"standard", tl.Standard().String(),
		"max_frames", tl.MaxFrames(),
		"looping", tl.Looping())

	printed := make(chan struct{})
	go func() {
		defer close(printed)
		printEvents(out, tl, sub.C(), logger)
	}()

	if !opts.Paused {
		tl.OnStart()
	}

	runErr := sess.Run(ctx)
	<-printed

	if dropped := sub.Dropped(); dropped > 0 {
		logger.Warn("output fell behind", "dropped_events", dropped)
	}
	if runErr != nil {
		return WrapExitError(ExitFailure, "clock error", runErr)
	}
	logger.Info("clock session stopped", "session", sess.ID(), "frame", tl.CurrentFrame())
	return nil
}

// printEvents writes timecode changes, transport changes and loop/finish
// markers until events is closed.
func printEvents(out *OutputFormatter, tl *timeline.Timeline, events <-chan timeline.Event, logger *slog.Logger) {
	for ev := range events {
		var rec timecodeRecord
		var text string

		switch ev.Kind {
		case timeline.TimecodeChanged:
			rec = timecodeRecord{
				Frame:    ev.Frame,
				Timecode: ev.Timecode.String(),
				Clock:    timecode.FormatClockTime(ev.Frame, tl.Standard()),
			}
			text = rec.Timecode
		case timeline.PlayingStateChanged:
			playing := ev.Playing
			rec = timecodeRecord{
				Frame:    tl.CurrentFrame(),
				Timecode: tl.CurrentTimecode().String(),
				Playing:  &playing,
				State:    ev.State.String(),
				Event:    ev.Kind.String(),
			}
			text = fmt.Sprintf("%s %s", rec.Timecode, rec.State)
		case timeline.Finished:
			rec = timecodeRecord{Frame: tl.CurrentFrame(), Timecode: tl.CurrentTimecode().String(), Event: ev.Kind.String()}
			text = fmt.Sprintf("%s finished", rec.Timecode)
		default:
			continue
		}

		if err := out.Line(rec, text); err != nil {
			logger.Debug("write output", "error", err)
		}
	}
}
