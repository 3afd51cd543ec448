package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/showclock/internal/timecode"
)

// ConvertOptions holds flags for the convert command.
type ConvertOptions struct {
	*RootOptions
	From     string
	Standard string
}

// NewConvertCommand creates the convert command.
func NewConvertCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ConvertOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "convert <value>",
		Short: "Convert between frames, seconds and timecode",
		Long: `Convert a position between frame count, elapsed seconds and SMPTE
timecode in one timecode standard.

Standards: film, film-23.976, ntsc, ntsc-df, pal.

Example:
  showclock convert 1800 --standard ntsc-df
  showclock convert 00:01:00;02 --from timecode --standard ntsc-df
  showclock convert 12.5 --from seconds --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.From, "from", "frames", "input unit (frames|seconds|timecode)")
	cmd.Flags().StringVar(&opts.Standard, "standard", timecode.DefaultStandard.String(), "timecode standard")

	return cmd
}

// Conversion is the result of convert.
type Conversion struct {
	Standard string  `json:"standard"`
	Frame    int64   `json:"frame"`
	Seconds  float64 `json:"seconds"`
	Timecode string  `json:"timecode"`
	Clock    string  `json:"clock"`
}

func (c Conversion) String() string {
	return fmt.Sprintf("frame:    %d\nseconds:  %s\ntimecode: %s\nclock:    %s\nstandard: %s",
		c.Frame, strconv.FormatFloat(c.Seconds, 'f', -1, 64), c.Timecode, c.Clock, c.Standard)
}

// Convert resolves value, read in unit from, to every representation.
func Convert(value, from string, std timecode.Standard) (Conversion, error) {
	var frame int64
	switch strings.ToLower(from) {
	case "frames", "frame":
		n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return Conversion{}, fmt.Errorf("invalid frame count %q: %w", value, err)
		}
		if n < 0 {
			return Conversion{}, fmt.Errorf("invalid frame count %d: must be >= 0", n)
		}
		frame = n
	case "seconds", "second", "s":
		sec, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return Conversion{}, fmt.Errorf("invalid seconds %q: %w", value, err)
		}
		frame = timecode.TimeToFrame(sec, std)
	case "timecode", "tc":
		tc, err := timecode.Parse(value, std)
		if err != nil {
			return Conversion{}, err
		}
		frame = timecode.TimecodeToFrameCount(tc, std)
	default:
		return Conversion{}, fmt.Errorf("unknown unit %q: must be frames, seconds or timecode", from)
	}

	return Conversion{
		Standard: std.String(),
		Frame:    frame,
		Seconds:  timecode.FrameToTime(frame, std),
		Timecode: timecode.FrameCountToTimecode(frame, std).String(),
		Clock:    timecode.FormatClockTime(frame, std),
	}, nil
}

func runConvert(opts *ConvertOptions, value string, cmd *cobra.Command) error {
	out := formatter(opts.RootOptions, cmd)

	std, err := timecode.ParseStandard(opts.Standard)
	if err != nil {
		_ = out.Error(CodeInvalidInput, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid standard", err)
	}

	c, err := Convert(value, opts.From, std)
	if err != nil {
		_ = out.Error(CodeInvalidInput, err.Error(), nil)
		return WrapExitError(ExitCommandError, "conversion failed", err)
	}
	return out.Success(c)
}
