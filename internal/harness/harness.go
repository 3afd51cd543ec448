package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/showclock/internal/broadcaster"
	"github.com/roach88/showclock/internal/clock"
	"github.com/roach88/showclock/internal/source"
	"github.com/roach88/showclock/internal/timecode"
	"github.com/roach88/showclock/internal/timeline"
)

// TickInterval is the fake time one advance tick covers.
const TickInterval = broadcaster.MinTickInterval

// stepTimeout bounds every wait on the timeline.
const stepTimeout = 5 * time.Second

// epoch is the fake clock's starting instant.
var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

var errStepTimeout = errors.New("timed out waiting for the timeline")

// Harness drives one timeline through a scenario.
type Harness struct {
	tl     *timeline.Timeline
	fc     *clock.FakeClock
	sub    *timeline.Subscription
	cancel context.CancelFunc

	trace  []TraceEvent
	errors []string
}

// Run executes a scenario and returns the result.
//
// Each scenario gets a fresh timeline on a fake clock with no settle delay,
// so traces are reproducible. An error is returned only when the scenario
// cannot be executed; failed expectations and assertions are reported in
// Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	h, err := newHarness(scenario.Timeline)
	if err != nil {
		return nil, err
	}
	defer h.close()

	for i, step := range scenario.Flow {
		n := i + 1
		if err := h.apply(step); err != nil {
			return nil, fmt.Errorf("flow[%d] %s: %w", i, step.Do, err)
		}
		h.collect(n)
		if step.Expect != nil {
			for _, msg := range h.check(*step.Expect) {
				h.errors = append(h.errors, fmt.Sprintf("flow[%d] %s: %s", i, step.Do, msg))
			}
		}
	}

	result := &Result{
		Trace:      h.trace,
		Errors:     h.errors,
		FinalFrame: h.tl.CurrentFrame(),
		FinalState: h.tl.PlayingState().String(),
	}
	for _, a := range scenario.Assertions {
		if err := evaluate(a, result); err != nil {
			result.Errors = append(result.Errors, err.Error())
		}
	}
	result.Pass = len(result.Errors) == 0
	return result, nil
}

func newHarness(spec TimelineSpec) (*Harness, error) {
	std := timecode.DefaultStandard
	if spec.Standard != "" {
		s, err := timecode.ParseStandard(spec.Standard)
		if err != nil {
			return nil, err
		}
		std = s
	}
	kind := source.Internal
	if spec.Source != "" {
		k, err := source.ParseKind(spec.Source)
		if err != nil {
			return nil, err
		}
		kind = k
	}
	speed := spec.Speed
	if speed == 0 {
		speed = 1
	}

	fc := clock.Fake(epoch)
	tl, err := timeline.New(
		timeline.WithMaxFrames(spec.MaxFrames),
		timeline.WithLooping(spec.Looping),
		timeline.WithStandard(std),
		timeline.WithSpeed(speed),
		timeline.WithSource(kind, source.LTCSettings{Device: spec.LTC.Device, Channel: spec.LTC.Channel}),
		timeline.WithTickInterval(TickInterval),
		timeline.WithNice(0),
		timeline.WithSettleDelay(0),
		timeline.WithClock(fc),
		timeline.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err != nil {
		return nil, fmt.Errorf("create timeline: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Harness{
		tl:     tl,
		fc:     fc,
		sub:    tl.Subscribe(4096),
		cancel: cancel,
	}
	go func() { _ = tl.Run(ctx) }()

	if err := h.awaitTicker(); err != nil {
		h.close()
		return nil, err
	}
	return h, nil
}

func (h *Harness) close() {
	h.tl.Close()
	h.cancel()
	select {
	case <-h.tl.Done():
	case <-time.After(stepTimeout):
	}
}

// apply performs one step and waits until its effects have settled.
func (h *Harness) apply(step Step) error {
	tl := h.tl

	switch step.Do {
	case StepStart:
		tl.OnStart()
	case StepPause:
		tl.OnPause()
	case StepStop:
		tl.OnStop()
	case StepSeek:
		tl.SetCurrentFrame(step.Frame)
	case StepStep:
		tl.StepFrames(step.Frames)
	case StepTimecode:
		tc, err := timecode.Parse(step.Timecode, tl.Standard())
		if err != nil {
			return err
		}
		tl.SetCurrentTimecode(tc)
	case StepStandard:
		std, err := timecode.ParseStandard(step.Standard)
		if err != nil {
			return err
		}
		tl.SetTimecodeStandard(std)
	case StepLooping:
		tl.SetLooping(step.Looping)
	case StepMaxFrames:
		tl.SetMaxFrames(step.MaxFrames)
	case StepSpeed:
		tl.SetSpeed(step.Speed)
	case StepSource:
		kind, err := source.ParseKind(step.Source)
		if err != nil {
			return err
		}
		ltc := source.LTCSettings{}
		if step.LTC != nil {
			ltc = source.LTCSettings{Device: step.LTC.Device, Channel: step.LTC.Channel}
		}
		tl.SetClockSourceKind(kind, ltc)
	case StepFeed:
		return h.feed(step.Seconds)
	case StepLoad:
		_ = tl.Load([]byte(step.Document)) // defaulted fields are logged
	case StepAdvance:
		return h.advance(step.Ticks)
	default:
		return fmt.Errorf("unknown step %q", step.Do)
	}

	if err := h.barrier(); err != nil {
		return err
	}
	return h.awaitTicker()
}

// advance moves fake time one tick at a time. With the internal source
// each tick is waited for until the timeline has taken its sample and
// applied any transport controls it caused.
func (h *Harness) advance(ticks int) error {
	for i := 0; i < ticks; i++ {
		if h.tl.SourceKind() != source.Internal {
			h.fc.Advance(TickInterval)
			continue
		}
		before := h.tl.SamplesReceived()
		h.fc.Advance(TickInterval)
		if err := h.awaitSamples(before + 1); err != nil {
			return err
		}
		if err := h.barrier(); err != nil {
			return err
		}
	}
	return nil
}

// feed hands a position to an external source and waits for the timeline
// to take it. It is a no-op on the internal source.
func (h *Harness) feed(seconds float64) error {
	if h.tl.SourceKind() == source.Internal {
		h.tl.Feed(seconds)
		return h.barrier()
	}
	before := h.tl.SamplesReceived()
	h.tl.Feed(seconds)
	if err := h.awaitSamples(before + 1); err != nil {
		return err
	}
	return h.barrier()
}

func (h *Harness) barrier() error {
	select {
	case <-h.tl.Barrier():
		return nil
	case <-time.After(stepTimeout):
		return errStepTimeout
	}
}

func (h *Harness) awaitSamples(n uint64) error {
	deadline := time.Now().Add(stepTimeout)
	for h.tl.SamplesReceived() < n {
		if time.Now().After(deadline) {
			return errStepTimeout
		}
		time.Sleep(100 * time.Microsecond)
	}
	return nil
}

// awaitTicker waits for the internal broadcaster's ticker to be armed on
// the fake clock.
func (h *Harness) awaitTicker() error {
	if h.tl.SourceKind() != source.Internal {
		return nil
	}
	armed := make(chan struct{})
	go func() {
		h.fc.WaitForTimers(1)
		close(armed)
	}()
	select {
	case <-armed:
		return nil
	case <-time.After(stepTimeout):
		return errStepTimeout
	}
}

// collect moves every delivered event into the trace.
func (h *Harness) collect(step int) {
	for {
		select {
		case ev, ok := <-h.sub.C():
			if !ok {
				return
			}
			h.trace = append(h.trace, traceEvent(step, ev))
		default:
			return
		}
	}
}

func traceEvent(step int, ev timeline.Event) TraceEvent {
	te := TraceEvent{Step: step, Event: ev.Kind.String()}
	switch ev.Kind {
	case timeline.FrameChanged:
		te.Frame = &ev.Frame
	case timeline.TimecodeChanged:
		te.Frame = &ev.Frame
		te.Timecode = ev.Timecode.String()
	case timeline.PlayingStateChanged:
		te.Playing = &ev.Playing
	case timeline.LoopingChanged:
		te.Looping = &ev.Looping
	}
	return te
}

// check compares the timeline's state with e.
func (h *Harness) check(e Expect) []string {
	var msgs []string
	tl := h.tl

	if e.Frame != nil && tl.CurrentFrame() != *e.Frame {
		msgs = append(msgs, fmt.Sprintf("expected frame %d, got %d", *e.Frame, tl.CurrentFrame()))
	}
	if e.Timecode != "" && tl.CurrentTimecode().String() != e.Timecode {
		msgs = append(msgs, fmt.Sprintf("expected timecode %s, got %s", e.Timecode, tl.CurrentTimecode()))
	}
	if e.State != "" && tl.PlayingState().String() != e.State {
		msgs = append(msgs, fmt.Sprintf("expected state %s, got %s", e.State, tl.PlayingState()))
	}
	if e.Source != "" && tl.SourceKind().String() != e.Source {
		msgs = append(msgs, fmt.Sprintf("expected source %s, got %s", e.Source, tl.SourceKind()))
	}
	if e.Standard != "" && tl.Standard().String() != e.Standard {
		msgs = append(msgs, fmt.Sprintf("expected standard %s, got %s", e.Standard, tl.Standard()))
	}
	return msgs
}
