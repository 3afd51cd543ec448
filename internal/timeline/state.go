package timeline

import "fmt"

// PlayingState is the timeline's transport state.
type PlayingState int32

const (
	Stopped PlayingState = iota
	Playing
	Paused
)

func (s PlayingState) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return fmt.Sprintf("playing_state(%d)", int32(s))
	}
}
