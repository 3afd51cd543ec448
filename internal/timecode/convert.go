package timecode

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// frameEpsilon absorbs float rounding so that TimeToFrame(FrameToTime(k)) == k.
// It is a fraction of one frame, far below any real timing resolution.
const frameEpsilon = 1e-6

// Frame is a structured timecode label tied to the standard it was built for.
// Invariant: Frames < Standard.Base().
type Frame struct {
	Hours    int      `json:"hours"`
	Minutes  int      `json:"minutes"`
	Seconds  int      `json:"seconds"`
	Frames   int      `json:"frames"`
	Standard Standard `json:"standard"`
}

// TimeToFrame converts elapsed seconds to a frame count, floor(seconds × fps).
// Negative and NaN input clamps to 0.
func TimeToFrame(seconds float64, std Standard) int64 {
	if math.IsNaN(seconds) || seconds <= 0 {
		return 0
	}
	r := std.FramesPerSecond()
	f := math.Floor(seconds*float64(r.Num)/float64(r.Den) + frameEpsilon)
	if f >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(f)
}

// FrameToTime converts a frame count to the elapsed seconds at which the
// frame starts. Negative frames clamp to 0.
func FrameToTime(frame int64, std Standard) float64 {
	if frame <= 0 {
		return 0
	}
	r := std.FramesPerSecond()
	return float64(frame) * float64(r.Den) / float64(r.Num)
}

// FrameCountToTimecode labels a frame count. For drop-frame standards the
// count is first expanded by the labels skipped so far.
func FrameCountToTimecode(frame int64, std Standard) Frame {
	if frame < 0 {
		frame = 0
	}
	base := int64(std.Base())

	if drops := std.dropsPerMinute(); drops > 0 {
		perMinute := base*60 - drops
		perTenMinutes := base*600 - drops*9

		tens := frame / perTenMinutes
		rem := frame % perTenMinutes
		frame += drops * 9 * tens
		if rem >= drops {
			frame += drops * ((rem - drops) / perMinute)
		}
	}

	hours := frame / (base * 3600)
	frame -= hours * base * 3600
	minutes := frame / (base * 60)
	frame -= minutes * base * 60
	seconds := frame / base
	frame -= seconds * base

	return Frame{
		Hours:    int(hours),
		Minutes:  int(minutes),
		Seconds:  int(seconds),
		Frames:   int(frame),
		Standard: std,
	}
}

// TimecodeToFrameCount is the inverse of FrameCountToTimecode. The label is
// interpreted in std regardless of tc.Standard.
func TimecodeToFrameCount(tc Frame, std Standard) int64 {
	base := int64(std.Base())
	totalMinutes := int64(tc.Hours)*60 + int64(tc.Minutes)
	count := (totalMinutes*60+int64(tc.Seconds))*base + int64(tc.Frames)

	if drops := std.dropsPerMinute(); drops > 0 {
		count -= drops * (totalMinutes - totalMinutes/10)
	}
	if count < 0 {
		return 0
	}
	return count
}

// Valid reports whether the label exists in its standard.
func (f Frame) Valid() bool {
	return f.validate() == nil
}

func (f Frame) validate() error {
	if f.Hours < 0 || f.Minutes < 0 || f.Seconds < 0 || f.Frames < 0 {
		return fmt.Errorf("negative field in %s", f)
	}
	if f.Minutes >= 60 || f.Seconds >= 60 {
		return fmt.Errorf("minutes and seconds must be below 60 in %s", f)
	}
	if f.Frames >= f.Standard.Base() {
		return fmt.Errorf("frames must be below %d for %s in %s", f.Standard.Base(), f.Standard, f)
	}
	if drops := f.Standard.dropsPerMinute(); drops > 0 {
		if f.Seconds == 0 && int64(f.Frames) < drops && f.Minutes%10 != 0 {
			return fmt.Errorf("label %s is dropped in %s", f, f.Standard)
		}
	}
	return nil
}

// String formats the label as HH:MM:SS:FF, or HH:MM:SS;FF for drop-frame.
func (f Frame) String() string {
	sep := ':'
	if f.Standard.DropFrame() {
		sep = ';'
	}
	return fmt.Sprintf("%02d:%02d:%02d%c%02d", f.Hours, f.Minutes, f.Seconds, sep, f.Frames)
}

// Parse reads a label such as "01:02:03:04" or "00:01:00;02". The
// separators ':', ';' and '.' are interchangeable.
func Parse(s string, std Standard) (Frame, error) {
	parts := strings.FieldsFunc(strings.TrimSpace(s), func(r rune) bool {
		return r == ':' || r == ';' || r == '.'
	})
	if len(parts) != 4 {
		return Frame{}, fmt.Errorf("parse timecode %q: want HH:MM:SS:FF", s)
	}

	var fields [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return Frame{}, fmt.Errorf("parse timecode %q: %w", s, err)
		}
		fields[i] = n
	}

	f := Frame{
		Hours:    fields[0],
		Minutes:  fields[1],
		Seconds:  fields[2],
		Frames:   fields[3],
		Standard: std,
	}
	if err := f.validate(); err != nil {
		return Frame{}, fmt.Errorf("parse timecode %q: %w", s, err)
	}
	return f, nil
}

// FormatClockTime formats the wall time at which frame starts as
// HH:MM:SS:mmm. Milliseconds are truncated.
func FormatClockTime(frame int64, std Standard) string {
	if frame < 0 {
		frame = 0
	}
	r := std.FramesPerSecond()
	ms := frame * r.Den * 1000 / r.Num

	hours := ms / 3_600_000
	ms -= hours * 3_600_000
	minutes := ms / 60_000
	ms -= minutes * 60_000
	seconds := ms / 1000
	ms -= seconds * 1000

	return fmt.Sprintf("%02d:%02d:%02d:%03d", hours, minutes, seconds, ms)
}
