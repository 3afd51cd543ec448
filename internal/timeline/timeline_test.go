package timeline

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/showclock/internal/broadcaster"
	"github.com/roach88/showclock/internal/clock"
	"github.com/roach88/showclock/internal/settings"
	"github.com/roach88/showclock/internal/source"
	"github.com/roach88/showclock/internal/timecode"
)

// PAL frames last 40ms; the broadcaster ticks every 20ms.
const frame = 40 * time.Millisecond

const waitFor = 2 * time.Second

type harness struct {
	tl  *Timeline
	fc  *clock.FakeClock
	sub *Subscription
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()

	fc := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	base := []Option{
		WithClock(fc),
		WithNice(0),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	tl, err := New(append(base, opts...)...)
	require.NoError(t, err)

	h := &harness{tl: tl, fc: fc, sub: tl.Subscribe(1024)}
	go func() { _ = tl.Run(context.Background()) }()
	t.Cleanup(tl.Close)

	if tl.SourceKind() == source.Internal {
		fc.WaitForTimers(1)
	}
	return h
}

func (h *harness) sync(t *testing.T) {
	t.Helper()
	select {
	case <-h.tl.Barrier():
	case <-time.After(waitFor):
		t.Fatal("controls were not applied")
	}
}

// advanceTo moves fake time one frame at a time until the timeline reports
// frame n.
func (h *harness) advanceTo(t *testing.T, n int64) {
	t.Helper()
	for h.tl.CurrentFrame() < n {
		before := h.tl.CurrentFrame()
		h.fc.Advance(frame)
		require.Eventually(t, func() bool { return h.tl.CurrentFrame() > before },
			waitFor, time.Millisecond, "frame stuck at %d", before)
	}
	require.Equal(t, n, h.tl.CurrentFrame())
}

// next returns the next event matching kind.
func (h *harness) next(t *testing.T, kind EventKind) Event {
	t.Helper()
	deadline := time.After(waitFor)
	for {
		select {
		case ev, ok := <-h.sub.C():
			require.True(t, ok, "subscription closed while waiting for %s", kind)
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("no %s event", kind)
		}
	}
}

// drain returns every event already delivered.
func (h *harness) drain() []Event {
	var out []Event
	for {
		select {
		case ev, ok := <-h.sub.C():
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestNew_Defaults(t *testing.T) {
	tl, err := New(WithNice(0))
	require.NoError(t, err)
	defer tl.Close()

	assert.Equal(t, int64(0), tl.CurrentFrame())
	assert.Equal(t, Stopped, tl.PlayingState())
	assert.Equal(t, timecode.PAL25, tl.Standard())
	assert.Equal(t, source.Internal, tl.SourceKind())
	assert.Equal(t, 1.0, tl.Speed())
	assert.False(t, tl.Looping())
	assert.Equal(t, "00:00:00:000", tl.AbsoluteTime())
}

func TestNew_RejectsBadOptions(t *testing.T) {
	_, err := New(WithStandard(timecode.Standard(42)))
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = New(WithSpeed(0))
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = New(WithSource(source.Kind(5), source.LTCSettings{}))
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestNew_ClampsNegativeMaxFrames(t *testing.T) {
	tl, err := New(WithNice(0), WithMaxFrames(-10))
	require.NoError(t, err)
	defer tl.Close()
	assert.Equal(t, int64(0), tl.MaxFrames())
}

func TestOnStart_PlaysAndAdvances(t *testing.T) {
	h := newHarness(t, WithMaxFrames(100))

	h.tl.OnStart()
	h.sync(t)

	ev := h.next(t, PlayingStateChanged)
	assert.True(t, ev.Playing)
	assert.Equal(t, Playing, ev.State)
	assert.Equal(t, Playing, h.tl.PlayingState())

	h.fc.Advance(time.Second)
	require.Eventually(t, func() bool { return h.tl.CurrentFrame() == 25 }, waitFor, time.Millisecond)

	tc := h.next(t, TimecodeChanged)
	assert.Equal(t, timecode.PAL25, tc.Timecode.Standard)
	assert.Equal(t, timecode.Frame{Seconds: 1, Standard: timecode.PAL25}, h.tl.CurrentTimecode())
}

func TestOnStart_RejectedWithoutFrameBound(t *testing.T) {
	h := newHarness(t)

	h.tl.OnStart()
	h.sync(t)

	ev := h.next(t, PlayingStateChanged)
	assert.False(t, ev.Playing)
	assert.Equal(t, Stopped, ev.State)
	assert.Equal(t, Stopped, h.tl.PlayingState())
}

func TestOnStart_RejectedForExternalSource(t *testing.T) {
	h := newHarness(t, WithMaxFrames(100), WithSource(source.LTC, source.LTCSettings{Device: "in"}))

	h.tl.OnStart()
	h.sync(t)

	ev := h.next(t, PlayingStateChanged)
	assert.False(t, ev.Playing)
	assert.Equal(t, Stopped, h.tl.PlayingState())
}

func TestOnPause_FreezesFrame(t *testing.T) {
	h := newHarness(t, WithMaxFrames(100))
	h.tl.OnStart()
	h.sync(t)
	h.advanceTo(t, 5)

	h.drain()
	h.tl.OnPause()
	h.sync(t)
	assert.Equal(t, Paused, h.tl.PlayingState())
	ev := h.next(t, PlayingStateChanged)
	assert.False(t, ev.Playing)
	assert.Equal(t, Paused, ev.State)

	h.fc.Advance(time.Second)
	h.sync(t)
	assert.Equal(t, int64(5), h.tl.CurrentFrame())

	h.tl.OnStart()
	h.sync(t)
	h.advanceTo(t, 6)
}

func TestOnStop_ReturnsToZero(t *testing.T) {
	h := newHarness(t, WithMaxFrames(100))
	h.tl.OnStart()
	h.sync(t)
	h.advanceTo(t, 8)
	h.drain()

	h.tl.OnStop()
	h.sync(t)

	assert.Equal(t, int64(0), h.tl.CurrentFrame())
	assert.Equal(t, Stopped, h.tl.PlayingState())

	events := h.drain()
	require.Len(t, events, 3)
	assert.Equal(t, Event{Kind: FrameChanged, Frame: 0}, events[0])
	assert.Equal(t, TimecodeChanged, events[1].Kind)
	assert.Equal(t, Event{Kind: PlayingStateChanged, Playing: false, State: Stopped}, events[2])

	h.fc.Advance(time.Second)
	h.sync(t)
	assert.Equal(t, int64(0), h.tl.CurrentFrame())
}

func TestBoundary_LoopingWrapsToZero(t *testing.T) {
	h := newHarness(t, WithMaxFrames(10), WithLooping(true))
	h.tl.OnStart()
	h.sync(t)
	h.advanceTo(t, 10)
	h.sync(t)
	h.drain()

	// Frame 11 triggers the rebase; the settle timer joins the ticker.
	h.fc.Advance(frame)
	h.fc.WaitForTimers(2)
	h.sync(t)

	h.fc.Advance(broadcaster.DefaultTickInterval)
	require.Eventually(t, func() bool { return h.tl.CurrentFrame() == 0 }, waitFor, time.Millisecond)
	h.sync(t)

	var frames []int64
	for _, ev := range h.drain() {
		if ev.Kind == FrameChanged {
			frames = append(frames, ev.Frame)
		}
	}
	require.NotEmpty(t, frames)
	assert.Equal(t, int64(0), frames[0], "first frame after the overrun")
	assert.NotContains(t, frames, int64(11))
	assert.Equal(t, Playing, h.tl.PlayingState())

	// The settle timer resumed the transport; playback continues from 0.
	h.sync(t)
	h.advanceTo(t, 2)
}

func TestBoundary_NonLoopingStopsAtZero(t *testing.T) {
	h := newHarness(t, WithMaxFrames(3))
	h.tl.OnStart()
	h.sync(t)
	h.advanceTo(t, 3)
	h.drain()

	h.fc.Advance(frame)
	h.next(t, Finished)

	assert.Equal(t, int64(0), h.tl.CurrentFrame())
	assert.Equal(t, Stopped, h.tl.PlayingState())
}

func TestBoundary_NonLoopingReportsNotPlaying(t *testing.T) {
	h := newHarness(t, WithMaxFrames(3))
	h.tl.OnStart()
	h.sync(t)
	h.next(t, PlayingStateChanged)
	h.advanceTo(t, 3)

	h.fc.Advance(frame)
	ev := h.next(t, PlayingStateChanged)
	assert.False(t, ev.Playing)
}

func TestSetCurrentFrame_WhilePlayingAdvancesFromTarget(t *testing.T) {
	h := newHarness(t, WithMaxFrames(100))
	h.tl.OnStart()
	h.sync(t)
	h.advanceTo(t, 5)

	h.tl.SetCurrentFrame(50)
	h.sync(t)
	assert.Equal(t, int64(50), h.tl.CurrentFrame())

	// Let the settle timer resume the transport.
	h.fc.Advance(DefaultSettleDelay)
	h.sync(t)

	h.fc.Advance(frame)
	require.Eventually(t, func() bool { return h.tl.CurrentFrame() == 51 }, waitFor, time.Millisecond)
	assert.Equal(t, Playing, h.tl.PlayingState())
}

func TestSetCurrentFrame_Clamps(t *testing.T) {
	h := newHarness(t, WithMaxFrames(100))

	h.tl.SetCurrentFrame(500)
	h.sync(t)
	assert.Equal(t, int64(100), h.tl.CurrentFrame())

	h.tl.SetCurrentFrame(-3)
	h.sync(t)
	assert.Equal(t, int64(0), h.tl.CurrentFrame())
}

func TestSetCurrentFrame_WhileStoppedHoldsPosition(t *testing.T) {
	h := newHarness(t, WithMaxFrames(100))

	h.tl.SetCurrentFrame(40)
	h.sync(t)

	h.fc.Advance(time.Second)
	h.sync(t)
	assert.Equal(t, int64(40), h.tl.CurrentFrame())
	assert.Equal(t, Stopped, h.tl.PlayingState())

	h.tl.OnStart()
	h.sync(t)
	h.advanceTo(t, 42)
}

func TestStepFramesAndTimecodeSeek(t *testing.T) {
	h := newHarness(t, WithMaxFrames(1000))

	h.tl.SetCurrentTimecode(timecode.Frame{Seconds: 2, Frames: 5, Standard: timecode.PAL25})
	h.sync(t)
	assert.Equal(t, int64(55), h.tl.CurrentFrame())

	h.tl.StepFrames(1)
	h.sync(t)
	assert.Equal(t, int64(56), h.tl.CurrentFrame())

	h.tl.StepFrames(-100)
	h.sync(t)
	assert.Equal(t, int64(0), h.tl.CurrentFrame())
}

func TestSetTimecodeStandard_KeepsFrame(t *testing.T) {
	h := newHarness(t, WithMaxFrames(1000))
	h.tl.SetCurrentFrame(30)
	h.sync(t)
	h.drain()

	h.tl.SetTimecodeStandard(timecode.NTSC30)
	h.sync(t)

	ev := h.next(t, TimecodeChanged)
	assert.Equal(t, int64(30), ev.Frame)
	assert.Equal(t, timecode.Frame{Seconds: 1, Standard: timecode.NTSC30}, ev.Timecode)

	h.fc.Advance(time.Second)
	h.sync(t)
	assert.Equal(t, int64(30), h.tl.CurrentFrame())
	assert.Equal(t, timecode.NTSC30, h.tl.Standard())
}

func TestSetTimecodeStandard_WhilePlayingKeepsRunning(t *testing.T) {
	h := newHarness(t, WithMaxFrames(1000), WithSettleDelay(time.Hour))
	h.tl.OnStart()
	h.sync(t)
	h.advanceTo(t, 5)

	h.tl.SetTimecodeStandard(timecode.NTSC30)
	h.sync(t)
	assert.Equal(t, int64(5), h.tl.CurrentFrame())
	assert.Equal(t, Playing, h.tl.PlayingState())

	// No settle pause: the next frame arrives on the next ticks.
	h.advanceTo(t, 6)
	assert.Equal(t, timecode.Frame{Frames: 6, Standard: timecode.NTSC30}, h.tl.CurrentTimecode())
}

func TestSetTimecodeStandard_IgnoresUnknown(t *testing.T) {
	h := newHarness(t)
	h.tl.SetTimecodeStandard(timecode.Standard(9))
	h.sync(t)
	assert.Equal(t, timecode.PAL25, h.tl.Standard())
}

func TestSetLooping_EmitsOnChange(t *testing.T) {
	h := newHarness(t)

	h.tl.SetLooping(true)
	h.tl.SetLooping(true)
	h.tl.SetLooping(false)
	h.sync(t)

	var looping []bool
	for _, ev := range h.drain() {
		if ev.Kind == LoopingChanged {
			looping = append(looping, ev.Looping)
		}
	}
	assert.Equal(t, []bool{true, false}, looping)
}

func TestSetMaxFrames(t *testing.T) {
	h := newHarness(t)
	h.tl.SetMaxFrames(250)
	h.sync(t)
	assert.Equal(t, int64(250), h.tl.MaxFrames())

	h.tl.SetMaxFrames(-1)
	h.sync(t)
	assert.Equal(t, int64(0), h.tl.MaxFrames())
}

func TestSetSpeed(t *testing.T) {
	h := newHarness(t, WithMaxFrames(1000))
	h.tl.SetSpeed(2)
	h.tl.SetSpeed(-1)
	h.tl.OnStart()
	h.sync(t)
	assert.Equal(t, 2.0, h.tl.Speed())

	h.fc.Advance(time.Second)
	require.Eventually(t, func() bool { return h.tl.CurrentFrame() == 50 }, waitFor, time.Millisecond)
}

func TestSetClockSourceKind_ExternalFeed(t *testing.T) {
	h := newHarness(t, WithMaxFrames(10))
	h.tl.OnStart()
	h.sync(t)
	h.drain()

	h.tl.SetClockSourceKind(source.MTC, source.LTCSettings{})
	h.sync(t)

	ev := h.next(t, PlayingStateChanged)
	assert.False(t, ev.Playing)
	assert.Equal(t, source.MTC, h.tl.SourceKind())
	assert.Equal(t, Stopped, h.tl.PlayingState())

	// External sources are never bounded.
	h.tl.Feed(2.0)
	require.Eventually(t, func() bool { return h.tl.CurrentFrame() == 50 }, waitFor, time.Millisecond)

	h.tl.SetClockSourceKind(source.Internal, source.LTCSettings{})
	h.sync(t)
	assert.Equal(t, source.Internal, h.tl.SourceKind())
	h.fc.WaitForTimers(1)
}

func TestSetClockSourceKind_SameSourceIsNoop(t *testing.T) {
	h := newHarness(t)
	h.drain()

	h.tl.SetClockSourceKind(source.Internal, source.LTCSettings{})
	h.sync(t)
	assert.Empty(t, h.drain())
}

func TestSetClockSourceKind_FallsBackToInternal(t *testing.T) {
	failing := func(kind source.Kind, ltc source.LTCSettings) (source.Source, error) {
		if kind != source.Internal {
			return nil, assert.AnError
		}
		return source.NewInternal(nil, broadcaster.WithNice(0)), nil
	}
	tl, err := New(WithSourceFactory(failing), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	go func() { _ = tl.Run(context.Background()) }()
	defer tl.Close()

	tl.SetClockSourceKind(source.LTC, source.LTCSettings{Device: "x"})
	<-tl.Barrier()
	assert.Equal(t, source.Internal, tl.SourceKind())
}

func TestFeed_IgnoredForInternal(t *testing.T) {
	h := newHarness(t)
	h.tl.Feed(10)
	h.sync(t)
	assert.Equal(t, int64(0), h.tl.CurrentFrame())
}

func TestSaveLoad(t *testing.T) {
	h := newHarness(t, WithStandard(timecode.NTSC2997DF), WithLooping(true))

	data, err := h.tl.Save()
	require.NoError(t, err)
	assert.JSONEq(t, `{"clockSource":0,"timecodeStandard":3,"isLooping":true}`, string(data))

	h.tl.SetCurrentFrame(90)
	h.sync(t)

	err = h.tl.Load([]byte(`{"clockSource": 2, "timecodeStandard": 0, "isLooping": false}`))
	require.NoError(t, err)
	h.sync(t)

	assert.Equal(t, source.MTC, h.tl.SourceKind())
	assert.Equal(t, timecode.Film24, h.tl.Standard())
	assert.False(t, h.tl.Looping())
	assert.Equal(t, int64(0), h.tl.CurrentFrame())
	assert.Equal(t, Stopped, h.tl.PlayingState())
}

func TestLoad_DefaultsMalformedFields(t *testing.T) {
	h := newHarness(t, WithStandard(timecode.Film24), WithLooping(true))

	err := h.tl.Load([]byte(`{"clockSource": "ltc", "isLooping": "yes"}`))
	assert.ErrorIs(t, err, ErrConfiguration)
	h.sync(t)

	assert.Equal(t, settings.Default().ClockSource, h.tl.SourceKind())
	assert.Equal(t, timecode.PAL25, h.tl.Standard())
	assert.False(t, h.tl.Looping())
}

func TestClose_WhilePlaying(t *testing.T) {
	h := newHarness(t, WithMaxFrames(1000))
	h.tl.OnStart()
	h.sync(t)
	h.advanceTo(t, 3)

	closed := make(chan struct{})
	go func() {
		h.tl.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(waitFor):
		t.Fatal("Close deadlocked")
	}

	h.drain()
	_, ok := <-h.sub.C()
	assert.False(t, ok, "subscription must be closed")

	// Controls and time after Close change nothing.
	h.tl.OnStart()
	h.tl.SetCurrentFrame(9)
	h.fc.Advance(time.Second)
	assert.Equal(t, int64(3), h.tl.CurrentFrame())

	late := h.tl.Subscribe(1)
	_, ok = <-late.C()
	assert.False(t, ok)
}

func TestClose_BeforeRun(t *testing.T) {
	tl, err := New(WithNice(0))
	require.NoError(t, err)
	sub := tl.Subscribe(1)

	tl.Close()
	_, ok := <-sub.C()
	assert.False(t, ok)
	assert.ErrorIs(t, tl.Run(context.Background()), ErrClosed)

	select {
	case <-tl.Done():
	default:
		t.Fatal("Done not closed")
	}
}

func TestRun_ContextCancel(t *testing.T) {
	tl, err := New(WithNice(0))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- tl.Run(ctx) }()

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(waitFor):
		t.Fatal("Run did not return")
	}
	<-tl.Done()
}

func TestSubscription_DropsWhenFull(t *testing.T) {
	h := newHarness(t)
	small := h.tl.Subscribe(1)

	h.tl.SetLooping(true)
	h.tl.SetLooping(false)
	h.tl.SetLooping(true)
	h.sync(t)

	assert.Equal(t, uint64(2), small.Dropped())
	small.Close()
	small.Close()

	ev, ok := <-small.C()
	require.True(t, ok, "buffered event survives Close")
	assert.Equal(t, Event{Kind: LoopingChanged, Looping: true}, ev)
	_, ok = <-small.C()
	assert.False(t, ok)
}

func TestSamplesReceived_CountsStaleSamples(t *testing.T) {
	h := newHarness(t, WithMaxFrames(100), WithSettleDelay(0))
	assert.Zero(t, h.tl.SamplesReceived())

	h.fc.Advance(20 * time.Millisecond)
	require.Eventually(t, func() bool { return h.tl.SamplesReceived() == 1 }, waitFor, time.Millisecond)

	h.tl.SetCurrentFrame(10)
	h.sync(t)
	h.fc.Advance(20 * time.Millisecond)
	require.Eventually(t, func() bool { return h.tl.SamplesReceived() == 2 }, waitFor, time.Millisecond)
	assert.Equal(t, int64(10), h.tl.CurrentFrame())
}
