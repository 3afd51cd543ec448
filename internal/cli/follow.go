package cli

import (
	"context"
	"net"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/showclock/internal/config"
	"github.com/roach88/showclock/internal/timecode"
	"github.com/roach88/showclock/internal/timesync"
)

// FollowOptions holds flags for the follow command.
type FollowOptions struct {
	*RootOptions
	Addr     string
	Standard string
	Duration time.Duration
	All      bool
}

// NewFollowCommand creates the follow command.
func NewFollowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FollowOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "follow",
		Short: "Print timecode received from a time sync broadcast",
		Long: `Listen for time sync datagrams and print the received position as
timecode in the chosen standard. JSON and CBOR datagrams are both
accepted.

Example:
  showclock follow --standard ntsc-df
  showclock follow --addr 0.0.0.0:34456 --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFollow(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", ":"+defaultTimeSyncPort(), "UDP address to listen on")
	cmd.Flags().StringVar(&opts.Standard, "standard", timecode.DefaultStandard.String(), "timecode standard")
	cmd.Flags().DurationVar(&opts.Duration, "duration", 0, "stop after this long (0 runs until interrupted)")
	cmd.Flags().BoolVar(&opts.All, "all", false, "print every datagram, not only frame changes")

	return cmd
}

func defaultTimeSyncPort() string {
	_, port, _ := net.SplitHostPort(config.DefaultTimeSyncAddr)
	return port
}

func runFollow(opts *FollowOptions, cmd *cobra.Command) error {
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())
	out := formatter(opts.RootOptions, cmd)

	std, err := timecode.ParseStandard(opts.Standard)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid standard", err)
	}

	l, err := timesync.Listen(opts.Addr)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}
	defer l.Close()
	logger.Info("following time sync", "addr", l.Addr().String(), "standard", std.String())

	ctx, cancel := signalContext(cmd)
	defer cancel()
	if opts.Duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	last := int64(-1)
	lastPlaying := false
	err = l.Run(ctx, func(m timesync.Message) {
		frame := timecode.TimeToFrame(m.Time, std)
		if !opts.All && frame == last && m.Playing() == lastPlaying {
			return
		}
		last, lastPlaying = frame, m.Playing()

		playing := m.Playing()
		rec := timecodeRecord{
			Frame:    frame,
			Timecode: timecode.FrameCountToTimecode(frame, std).String(),
			Clock:    timecode.FormatClockTime(frame, std),
			Playing:  &playing,
		}
		text := rec.Timecode
		if !playing {
			text += " " + m.Status
		}
		if err := out.Line(rec, text); err != nil {
			logger.Debug("write output", "error", err)
		}
	}, func(err error) {
		logger.Debug("datagram ignored", "error", err)
	})

	if ctx.Err() != nil {
		return nil
	}
	return WrapExitError(ExitFailure, "listener stopped", err)
}
