package timeline

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/roach88/showclock/internal/timecode"
)

// EventKind identifies what changed.
type EventKind int

const (
	FrameChanged EventKind = iota + 1
	TimecodeChanged
	PlayingStateChanged
	LoopingChanged
	// Finished follows the stop caused by a non-looping timeline running
	// past its last frame.
	Finished
)

func (k EventKind) String() string {
	switch k {
	case FrameChanged:
		return "frame_changed"
	case TimecodeChanged:
		return "timecode_changed"
	case PlayingStateChanged:
		return "playing_state_changed"
	case LoopingChanged:
		return "looping_changed"
	case Finished:
		return "finished"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is a state change delivered to subscribers. Only the fields
// relevant to Kind are set. PlayingStateChanged carries both Playing and
// the transport State it left the timeline in.
type Event struct {
	Kind     EventKind
	Frame    int64
	Timecode timecode.Frame
	Playing  bool
	State    PlayingState
	Looping  bool
}

// DefaultSubscriptionBuffer is used when Subscribe is given a non-positive
// buffer size.
const DefaultSubscriptionBuffer = 64

// Subscription receives timeline events. A subscriber that falls behind
// loses events rather than stalling the timeline; Dropped counts them.
type Subscription struct {
	ch      chan Event
	hub     *hub
	dropped atomic.Uint64
	closed  bool // guarded by hub.mu
}

// C returns the event channel. It is closed by Close or when the timeline
// shuts down.
func (s *Subscription) C() <-chan Event { return s.ch }

// Dropped returns the number of events discarded because the buffer was
// full.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Close detaches the subscription and closes its channel. Idempotent.
func (s *Subscription) Close() { s.hub.remove(s) }

// hub fans events out without blocking. Publishing happens on the
// timeline's Run goroutine only; the mutex guards against concurrent
// Subscribe and Close.
type hub struct {
	mu     sync.Mutex
	subs   []*Subscription
	closed bool
}

func (h *hub) subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultSubscriptionBuffer
	}
	s := &Subscription{ch: make(chan Event, buffer), hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		s.closed = true
		close(s.ch)
		return s
	}
	h.subs = append(h.subs, s)
	return s
}

func (h *hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s.closed {
		return
	}
	for i, existing := range h.subs {
		if existing == s {
			h.subs = append(h.subs[:i], h.subs[i+1:]...)
			break
		}
	}
	s.closed = true
	close(s.ch)
}

func (h *hub) publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.subs {
		select {
		case s.ch <- ev:
		default:
			s.dropped.Add(1)
		}
	}
}

// close closes every subscription. Later publishes are no-ops and later
// subscriptions start closed.
func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for _, s := range h.subs {
		s.closed = true
		close(s.ch)
	}
	h.subs = nil
}
