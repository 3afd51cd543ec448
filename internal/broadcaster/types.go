package broadcaster

import (
	"fmt"
	"time"
)

// State is the transport state of a Broadcaster.
type State int32

const (
	Stopped State = iota
	Running
	Paused
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Running:
		return "running"
	case Paused:
		return "paused"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Sample is one elapsed-time reading emitted by the ticking loop.
type Sample struct {
	// Seq increases by one per tick; gaps mean a mailbox replaced an
	// unread sample.
	Seq uint64

	// Elapsed is the logical elapsed time in seconds.
	Elapsed float64

	// State is the transport state when the sample was taken.
	State State

	// Generation counts the time rebases (Start, Stop, SetCurrentTime)
	// applied before this sample. A consumer that issued a rebase can
	// discard samples from older generations.
	Generation uint64

	// At is the clock reading the sample was taken at.
	At time.Time
}

// timebase is the immutable elapsed-time state published by the ticking
// loop after every applied control.
type timebase struct {
	reference   time.Time
	accumulated float64
	speed       float64
	state       State
	generation  uint64
}

// elapsed returns accumulated time, plus the speed-scaled time since the
// reference instant while running.
func (tb *timebase) elapsed(now time.Time) float64 {
	if tb.state != Running {
		return tb.accumulated
	}
	e := tb.accumulated + now.Sub(tb.reference).Seconds()*tb.speed
	if e < 0 {
		return 0
	}
	return e
}
