package harness

import (
	"fmt"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [step %d] %s\n", ev.Step, describe(ev))
		}
	}
	return buf.String()
}

func describe(ev TraceEvent) string {
	switch {
	case ev.Timecode != "":
		return fmt.Sprintf("%s %s", ev.Event, ev.Timecode)
	case ev.Frame != nil:
		return fmt.Sprintf("%s %d", ev.Event, *ev.Frame)
	case ev.Playing != nil:
		return fmt.Sprintf("%s %t", ev.Event, *ev.Playing)
	case ev.Looping != nil:
		return fmt.Sprintf("%s %t", ev.Event, *ev.Looping)
	default:
		return ev.Event
	}
}

// evaluate runs one assertion against a finished run.
func evaluate(a Assertion, r *Result) error {
	switch a.Type {
	case AssertFinalFrame:
		return assertFinalFrame(r, a.Frame)
	case AssertFinalState:
		return assertFinalState(r, a.State)
	case AssertEventCount:
		return assertEventCount(r.Trace, a.Event, a.Count)
	case AssertEventOrder:
		return assertEventOrder(r.Trace, a.Events)
	case AssertMaxFrame:
		return assertMaxFrame(r.Trace, a.Frame)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func assertFinalFrame(r *Result, frame int64) error {
	if r.FinalFrame == frame {
		return nil
	}
	return &AssertionError{
		Type:     AssertFinalFrame,
		Expected: fmt.Sprintf("final frame %d", frame),
		Actual:   fmt.Sprintf("final frame %d", r.FinalFrame),
		Trace:    r.Trace,
	}
}

func assertFinalState(r *Result, state string) error {
	if r.FinalState == state {
		return nil
	}
	return &AssertionError{
		Type:     AssertFinalState,
		Expected: fmt.Sprintf("final state %s", state),
		Actual:   fmt.Sprintf("final state %s", r.FinalState),
		Trace:    r.Trace,
	}
}

func assertEventCount(trace []TraceEvent, event string, count int) error {
	n := 0
	for _, ev := range trace {
		if ev.Event == event {
			n++
		}
	}
	if n == count {
		return nil
	}
	return &AssertionError{
		Type:     AssertEventCount,
		Expected: fmt.Sprintf("%s exactly %d times", event, count),
		Actual:   fmt.Sprintf("%s %d times", event, n),
		Trace:    trace,
	}
}

// assertEventOrder checks that events occur in the given relative order;
// other events may appear in between.
func assertEventOrder(trace []TraceEvent, events []string) error {
	next := 0
	for _, ev := range trace {
		if next < len(events) && ev.Event == events[next] {
			next++
		}
	}
	if next == len(events) {
		return nil
	}
	return &AssertionError{
		Type:     AssertEventOrder,
		Expected: fmt.Sprintf("events in order %v", events),
		Actual:   fmt.Sprintf("matched %v, missing %s", events[:next], events[next]),
		Trace:    trace,
	}
}

func assertMaxFrame(trace []TraceEvent, limit int64) error {
	for _, ev := range trace {
		if ev.Event == "frame_changed" && ev.Frame != nil && (*ev.Frame > limit || *ev.Frame < 0) {
			return &AssertionError{
				Type:     AssertMaxFrame,
				Expected: fmt.Sprintf("every frame within [0, %d]", limit),
				Actual:   fmt.Sprintf("frame %d at step %d", *ev.Frame, ev.Step),
				Trace:    trace,
			}
		}
	}
	return nil
}
