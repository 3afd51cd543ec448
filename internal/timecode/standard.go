package timecode

import (
	"fmt"
	"strings"
)

// Standard identifies a frame rate standard. The numeric values are
// persisted in settings documents and match the Art-Net timecode type
// numbering, so they must never be reordered.
type Standard int

const (
	Film24     Standard = 0 // 24 fps
	Film23976  Standard = 1 // 24000/1001 fps, non-drop labels
	NTSC30     Standard = 2 // 30 fps
	NTSC2997DF Standard = 3 // 30000/1001 fps, drop-frame labels
	PAL25      Standard = 4 // 25 fps
)

// DefaultStandard is used when no standard is configured or a persisted
// value is unusable.
const DefaultStandard = PAL25

// Rate is a rational frame rate.
type Rate struct {
	Num int64
	Den int64
}

// Float64 returns the rate as frames per second.
func (r Rate) Float64() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

// String formats the rate as "num/den".
func (r Rate) String() string {
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

var standardNames = map[Standard]string{
	Film24:     "film",
	Film23976:  "film-23.976",
	NTSC30:     "ntsc",
	NTSC2997DF: "ntsc-df",
	PAL25:      "pal",
}

// Standards lists every supported standard in persisted order.
func Standards() []Standard {
	return []Standard{Film24, Film23976, NTSC30, NTSC2997DF, PAL25}
}

// Valid reports whether s is a known standard.
func (s Standard) Valid() bool {
	_, ok := standardNames[s]
	return ok
}

// String returns the configuration name of the standard.
func (s Standard) String() string {
	if name, ok := standardNames[s]; ok {
		return name
	}
	return fmt.Sprintf("standard(%d)", int(s))
}

// ParseStandard resolves a configuration name such as "pal" or "ntsc-df".
// Matching is case-insensitive.
func ParseStandard(name string) (Standard, error) {
	want := strings.ToLower(strings.TrimSpace(name))
	for std, n := range standardNames {
		if n == want {
			return std, nil
		}
	}
	return DefaultStandard, fmt.Errorf("unknown timecode standard %q: must be one of film, film-23.976, ntsc, ntsc-df, pal", name)
}

// FramesPerSecond returns the exact frame rate of the standard.
// Unknown standards report the default standard's rate.
func (s Standard) FramesPerSecond() Rate {
	switch s {
	case Film24:
		return Rate{Num: 24, Den: 1}
	case Film23976:
		return Rate{Num: 24000, Den: 1001}
	case NTSC30:
		return Rate{Num: 30, Den: 1}
	case NTSC2997DF:
		return Rate{Num: 30000, Den: 1001}
	default:
		return Rate{Num: 25, Den: 1}
	}
}

// DropFrame reports whether labels follow the SMPTE drop-frame rule.
func (s Standard) DropFrame() bool {
	return s == NTSC2997DF
}

// Base is the number of frame labels per timecode second, ceil(fps).
func (s Standard) Base() int {
	r := s.FramesPerSecond()
	return int((r.Num + r.Den - 1) / r.Den)
}

// dropsPerMinute is the number of labels skipped at each dropped minute.
// 2 for 30-base drop-frame; scales with the base for higher rates.
func (s Standard) dropsPerMinute() int64 {
	if !s.DropFrame() {
		return 0
	}
	return int64(s.Base()) / 15
}
