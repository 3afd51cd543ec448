package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/showclock/internal/settings"
	"github.com/roach88/showclock/internal/source"
	"github.com/roach88/showclock/internal/store"
	"github.com/roach88/showclock/internal/timecode"
)

// SettingsOptions holds flags shared by the settings subcommands.
type SettingsOptions struct {
	*RootOptions
	Database string
	Session  string

	// save only
	Source     string
	Standard   string
	Looping    bool
	LTCDevice  string
	LTCChannel int
}

// NewSettingsCommand creates the settings command group.
func NewSettingsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SettingsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Inspect and edit stored clock settings",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print a session's stored settings document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSettingsShow(opts, cmd)
		},
	}

	save := &cobra.Command{
		Use:   "save",
		Short: "Update a session's stored settings",
		Long: `Update a session's stored clock settings. Only the flags given change;
other fields keep their stored (or default) values. The session is
created if it does not exist.

Example:
  showclock settings save --db show.db --session main --standard ntsc-df --looping
  showclock settings save --db show.db --session main --source ltc --ltc-device "Deck A"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSettingsSave(opts, cmd)
		},
	}

	check := &cobra.Command{
		Use:   "check <file>",
		Short: "Validate a settings document",
		Long: `Validate a settings document. Comments and trailing commas are
allowed. Exits 1 when any field would fall back to its default.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSettingsCheck(opts, args[0], cmd)
		},
	}

	for _, c := range []*cobra.Command{show, save} {
		c.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
		c.Flags().StringVar(&opts.Session, "session", "", "session id (required)")
		_ = c.MarkFlagRequired("db")
		_ = c.MarkFlagRequired("session")
	}

	save.Flags().StringVar(&opts.Source, "source", "", "clock source (internal|ltc|mtc)")
	save.Flags().StringVar(&opts.Standard, "standard", "", "timecode standard")
	save.Flags().BoolVar(&opts.Looping, "looping", false, "loop at max frames")
	save.Flags().StringVar(&opts.LTCDevice, "ltc-device", "", "LTC input device")
	save.Flags().IntVar(&opts.LTCChannel, "ltc-channel", 0, "LTC input channel")

	cmd.AddCommand(show, save, check)
	return cmd
}

// SettingsView is the readable form of a settings document.
type SettingsView struct {
	ClockSource string              `json:"clock_source"`
	Standard    string              `json:"standard"`
	Looping     bool                `json:"looping"`
	LTC         *source.LTCSettings `json:"ltc,omitempty"`
	Defaulted   []string            `json:"defaulted,omitempty"`
}

func (v SettingsView) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "source:   %s\nstandard: %s\nlooping:  %t", v.ClockSource, v.Standard, v.Looping)
	if v.LTC != nil {
		fmt.Fprintf(&b, "\nltc:      %s channel %d", v.LTC.Device, v.LTC.Channel)
	}
	for _, d := range v.Defaulted {
		fmt.Fprintf(&b, "\ndefaulted %s", d)
	}
	return b.String()
}

func newSettingsView(s settings.Settings, decodeErr error) SettingsView {
	v := SettingsView{
		ClockSource: s.ClockSource.String(),
		Standard:    s.Standard.String(),
		Looping:     s.Looping,
		LTC:         s.LTC,
	}
	for _, fe := range fieldErrors(decodeErr) {
		v.Defaulted = append(v.Defaulted, fe.Error())
	}
	if decodeErr != nil && len(v.Defaulted) == 0 {
		v.Defaulted = append(v.Defaulted, decodeErr.Error())
	}
	return v
}

// fieldErrors flattens the FieldErrors joined into err.
func fieldErrors(err error) []*settings.FieldError {
	if err == nil {
		return nil
	}
	var out []*settings.FieldError
	var walk func(error)
	walk = func(e error) {
		if fe, ok := e.(*settings.FieldError); ok {
			out = append(out, fe)
			return
		}
		switch u := e.(type) {
		case interface{ Unwrap() []error }:
			for _, inner := range u.Unwrap() {
				walk(inner)
			}
		case interface{ Unwrap() error }:
			walk(u.Unwrap())
		}
	}
	walk(err)
	return out
}

func runSettingsShow(opts *SettingsOptions, cmd *cobra.Command) error {
	out := formatter(opts.RootOptions, cmd)

	st, err := openStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	doc, err := st.LoadSettings(cmd.Context(), opts.Session)
	if err != nil {
		code := ExitCommandError
		if errors.Is(err, store.ErrNotFound) {
			code = ExitFailure
		}
		return WrapExitError(code, "failed to load settings", err)
	}

	if opts.Format != "json" {
		_, err := cmd.OutOrStdout().Write(doc)
		return err
	}
	s, decodeErr := settings.Decode(doc)
	return out.SuccessFor(opts.Session, newSettingsView(s, decodeErr))
}

func runSettingsSave(opts *SettingsOptions, cmd *cobra.Command) error {
	out := formatter(opts.RootOptions, cmd)
	ctx := cmd.Context()

	st, err := openStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	s := settings.Default()
	if doc, err := st.LoadSettings(ctx, opts.Session); err == nil {
		s, _ = settings.Decode(doc)
	} else if !errors.Is(err, store.ErrNotFound) {
		return WrapExitError(ExitCommandError, "failed to load settings", err)
	}

	flags := cmd.Flags()
	if flags.Changed("source") {
		kind, err := source.ParseKind(opts.Source)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --source", err)
		}
		s.ClockSource = kind
	}
	if flags.Changed("standard") {
		std, err := timecode.ParseStandard(opts.Standard)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --standard", err)
		}
		s.Standard = std
	}
	if flags.Changed("looping") {
		s.Looping = opts.Looping
	}
	if flags.Changed("ltc-device") || flags.Changed("ltc-channel") {
		ltc := source.LTCSettings{}
		if s.LTC != nil {
			ltc = *s.LTC
		}
		if flags.Changed("ltc-device") {
			ltc.Device = opts.LTCDevice
		}
		if flags.Changed("ltc-channel") {
			if opts.LTCChannel < 0 {
				return NewExitError(ExitCommandError, "invalid --ltc-channel: must be >= 0")
			}
			ltc.Channel = opts.LTCChannel
		}
		ltc = ltc.Normalize()
		s.LTC = &ltc
	}

	if _, err := st.GetSession(ctx, opts.Session); errors.Is(err, store.ErrNotFound) {
		if err := st.PutSession(ctx, store.Session{ID: opts.Session}); err != nil {
			return WrapExitError(ExitCommandError, "failed to create session", err)
		}
	} else if err != nil {
		return WrapExitError(ExitCommandError, "failed to read session", err)
	}

	doc, err := settings.Encode(s)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to encode settings", err)
	}
	if err := st.SaveSettings(ctx, opts.Session, doc); err != nil {
		return WrapExitError(ExitCommandError, "failed to save settings", err)
	}
	out.VerboseLog("saved settings for session %s", opts.Session)
	return out.SuccessFor(opts.Session, newSettingsView(s, nil))
}

func runSettingsCheck(opts *SettingsOptions, path string, cmd *cobra.Command) error {
	out := formatter(opts.RootOptions, cmd)

	data, err := os.ReadFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read settings file", err)
	}

	s, decodeErr := settings.Decode(data)
	view := newSettingsView(s, decodeErr)
	if decodeErr == nil {
		return out.Success(view)
	}

	_ = out.Error(CodeInvalidSettings, "settings fall back to defaults", view.Defaulted)
	return WrapExitError(ExitFailure, "invalid settings", decodeErr)
}
