package timeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/showclock/internal/broadcaster"
	"github.com/roach88/showclock/internal/clock"
	"github.com/roach88/showclock/internal/queue"
	"github.com/roach88/showclock/internal/settings"
	"github.com/roach88/showclock/internal/source"
	"github.com/roach88/showclock/internal/timecode"
)

// ErrAlreadyRunning is returned by Run when the loop is already hosted.
var ErrAlreadyRunning = errors.New("timeline: already running")

type command struct {
	fn   func()
	done chan struct{} // barriers only
}

// Timeline is the frame-state owner for one session.
//
// Thread-safety model:
//   - Controls (OnStart, SetCurrentFrame, ...): safe from any goroutine;
//     they enqueue a command and return immediately.
//   - Getters: safe from any goroutine; lock-free.
//   - Run: hosts the timeline loop; call from exactly one goroutine.
//
// The Run goroutine is the only writer of frame and transport state and
// the only goroutine that publishes events.
type Timeline struct {
	clock           clock.Clock
	logger          *slog.Logger
	factory         source.Factory
	settleDelay     time.Duration
	teardownTimeout time.Duration

	commands *queue.Queue[command]
	events   hub

	// Written by the Run goroutine, read by getters.
	frame     atomic.Int64
	playing   atomic.Int32
	maxFrames atomic.Int64
	looping   atomic.Bool
	standard  atomic.Int32
	kind      atomic.Int32
	speed     atomic.Uint64 // math.Float64bits
	ltc       atomic.Pointer[source.LTCSettings]
	received  atomic.Uint64

	// Run goroutine only.
	src       source.Source
	samples   <-chan broadcaster.Sample
	rebases   uint64 // generation-advancing controls sent to the current transport
	settle    *clock.Timer
	settleSeq uint64

	mu           sync.Mutex
	started      bool
	closed       bool
	shutdownOnce sync.Once
	done         chan struct{}
}

// New creates a Timeline, stopped at frame 0, and provisions its initial
// clock source. Events are not processed until Run is called.
func New(opts ...Option) (*Timeline, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.validate(); err != nil {
		return nil, err
	}

	t := &Timeline{
		clock:           o.Clock,
		logger:          o.Logger,
		factory:         o.SourceFactory,
		settleDelay:     o.SettleDelay,
		teardownTimeout: o.TeardownTimeout,
		commands:        queue.New[command](),
		done:            make(chan struct{}),
	}
	t.maxFrames.Store(o.MaxFrames)
	t.looping.Store(o.Looping)
	t.standard.Store(int32(o.Standard))
	t.speed.Store(math.Float64bits(o.Speed))
	t.playing.Store(int32(Stopped))

	if err := t.provision(o.SourceKind, o.LTC); err != nil {
		return nil, fmt.Errorf("provision %s clock source: %w", o.SourceKind, err)
	}
	return t, nil
}

// Run hosts the timeline loop until ctx is cancelled or Close is called.
// On return the clock source has been torn down and every subscription
// channel is closed.
func (t *Timeline) Run(ctx context.Context) error {
	t.mu.Lock()
	switch {
	case t.closed:
		t.mu.Unlock()
		return ErrClosed
	case t.started:
		t.mu.Unlock()
		return ErrAlreadyRunning
	}
	t.started = true
	t.mu.Unlock()
	defer t.shutdown()

	t.logger.Debug("timeline started", "source", t.SourceKind().String())

	for {
		t.drain()

		select {
		case <-ctx.Done():
			t.logger.Debug("timeline stopping: context cancelled")
			t.commands.Close()
			return ctx.Err()

		case <-t.commands.Wait():
			if t.commands.Closed() && t.commands.Len() == 0 {
				t.logger.Debug("timeline stopping: closed")
				return nil
			}

		case s := <-t.samples:
			t.onTimeUpdate(s)
		}
	}
}

// Close shuts the timeline down: it stops accepting controls, tears down
// the clock source and closes every subscription. No event is delivered
// after Close returns. Idempotent.
func (t *Timeline) Close() {
	t.commands.Close()

	t.mu.Lock()
	started := t.started
	t.closed = true
	t.mu.Unlock()

	if started {
		<-t.done
		return
	}
	t.shutdown()
}

// Done is closed once the timeline has shut down.
func (t *Timeline) Done() <-chan struct{} { return t.done }

// Subscribe registers for events. buffer <= 0 selects
// DefaultSubscriptionBuffer.
func (t *Timeline) Subscribe(buffer int) *Subscription {
	return t.events.subscribe(buffer)
}

// Barrier returns a channel closed once every control issued before it
// has been applied, including the transport controls it produced.
func (t *Timeline) Barrier() <-chan struct{} {
	done := make(chan struct{})
	ok := t.commands.Push(command{done: done, fn: func() {
		tr := t.transport()
		if tr == nil {
			close(done)
			return
		}
		applied := tr.Barrier()
		go func() {
			<-applied
			close(done)
		}()
	}})
	if !ok {
		close(done)
	}
	return done
}

// OnStart plays the internal clock. It requires the internal source and a
// frame bound; otherwise it only reports PlayingStateChanged(false).
func (t *Timeline) OnStart() { t.do(t.start) }

// OnPause pauses the internal clock.
func (t *Timeline) OnPause() { t.do(t.pause) }

// OnStop stops the internal clock and returns to frame 0.
func (t *Timeline) OnStop() {
	t.do(func() {
		if t.transport() == nil {
			t.reject("stop")
			return
		}
		t.stop()
	})
}

// SetCurrentFrame seeks to frame, clamped to [0, MaxFrames] when bounded.
// The play state is preserved.
func (t *Timeline) SetCurrentFrame(frame int64) { t.do(func() { t.seek(frame) }) }

// SetCurrentTimecode seeks to the frame tc labels in the current standard.
func (t *Timeline) SetCurrentTimecode(tc timecode.Frame) {
	t.do(func() { t.seek(timecode.TimecodeToFrameCount(tc, t.Standard())) })
}

// StepFrames seeks n frames relative to the current frame.
func (t *Timeline) StepFrames(n int64) {
	t.do(func() { t.seek(t.frame.Load() + n) })
}

// SetTimecodeStandard changes how frames are labelled. The frame count is
// kept: the internal clock is rebased so the same frame stays current.
func (t *Timeline) SetTimecodeStandard(s timecode.Standard) {
	t.do(func() { t.setStandard(s) })
}

// SetLooping sets the boundary policy.
func (t *Timeline) SetLooping(looping bool) { t.do(func() { t.setLooping(looping) }) }

// SetMaxFrames sets the frame bound; negative values mean 0 (unbounded).
func (t *Timeline) SetMaxFrames(n int64) {
	t.do(func() {
		if n < 0 {
			n = 0
		}
		t.maxFrames.Store(n)
		t.logger.Debug("max frames changed", "max_frames", n)
	})
}

// SetSpeed changes the internal clock's speed multiplier.
func (t *Timeline) SetSpeed(m float64) {
	t.do(func() {
		if math.IsNaN(m) || math.IsInf(m, 0) || m <= 0 {
			t.logger.Warn("speed ignored",
				"error", fmt.Errorf("%w: speed must be a positive number", ErrConfiguration),
				"speed", m)
			return
		}
		t.speed.Store(math.Float64bits(m))
		if tr := t.transport(); tr != nil {
			tr.SetSpeed(m)
		}
	})
}

// SetClockSourceKind replaces the clock source. The outgoing source is
// torn down, the timeline stops and PlayingStateChanged(false) is emitted.
func (t *Timeline) SetClockSourceKind(kind source.Kind, ltc source.LTCSettings) {
	t.do(func() {
		if t.switchSource(kind, ltc) {
			t.publishPlaying(false)
		}
	})
}

// Feed hands a decoded position to an external source. Ignored while the
// internal source is active.
func (t *Timeline) Feed(seconds float64) {
	t.do(func() {
		f, ok := t.src.(source.Feeder)
		if !ok {
			t.logger.Debug("feed ignored", "source", t.SourceKind().String())
			return
		}
		f.Feed(seconds)
	})
}

// Settings returns the persisted subset of the timeline's state.
func (t *Timeline) Settings() settings.Settings {
	s := settings.Settings{
		ClockSource: t.SourceKind(),
		Standard:    t.Standard(),
		Looping:     t.Looping(),
	}
	if ltc := t.LTC(); !ltc.IsZero() {
		s.LTC = &ltc
	}
	return s
}

// Save encodes the persisted settings document.
func (t *Timeline) Save() ([]byte, error) {
	return settings.Encode(t.Settings())
}

// Load decodes a settings document and applies it. Fields that are missing
// or malformed take their defaults; the returned error lists them and
// wraps ErrConfiguration. The settings are applied either way, and the
// timeline restarts stopped at frame 0.
func (t *Timeline) Load(data []byte) error {
	s, err := settings.Decode(data)
	if err != nil {
		t.logger.Warn("settings defaulted", "error", err)
	}
	t.Apply(s)
	return err
}

// Apply switches to s and stops at frame 0.
func (t *Timeline) Apply(s settings.Settings) {
	t.do(func() {
		ltc := source.LTCSettings{}
		if s.LTC != nil {
			ltc = *s.LTC
		}
		t.switchSource(s.ClockSource, ltc)
		t.setStandard(s.Standard)
		t.setLooping(s.Looping)
		t.stop()
	})
}

// SamplesReceived counts the samples the loop has taken from its clock
// sources, including stale ones it discarded.
func (t *Timeline) SamplesReceived() uint64 { return t.received.Load() }

// CurrentFrame returns the current frame.
func (t *Timeline) CurrentFrame() int64 { return t.frame.Load() }

// CurrentTimecode labels the current frame in the current standard.
func (t *Timeline) CurrentTimecode() timecode.Frame {
	return timecode.FrameCountToTimecode(t.CurrentFrame(), t.Standard())
}

// AbsoluteTime formats the current frame's start time as HH:MM:SS:mmm.
func (t *Timeline) AbsoluteTime() string {
	return timecode.FormatClockTime(t.CurrentFrame(), t.Standard())
}

// PlayingState returns the transport state.
func (t *Timeline) PlayingState() PlayingState { return PlayingState(t.playing.Load()) }

// MaxFrames returns the frame bound; 0 means unbounded.
func (t *Timeline) MaxFrames() int64 { return t.maxFrames.Load() }

// Looping reports the boundary policy.
func (t *Timeline) Looping() bool { return t.looping.Load() }

// Standard returns the timecode standard.
func (t *Timeline) Standard() timecode.Standard { return timecode.Standard(t.standard.Load()) }

// SourceKind returns the active clock source variant.
func (t *Timeline) SourceKind() source.Kind { return source.Kind(t.kind.Load()) }

// Speed returns the speed multiplier.
func (t *Timeline) Speed() float64 { return math.Float64frombits(t.speed.Load()) }

// LTC returns the LTC input selection.
func (t *Timeline) LTC() source.LTCSettings {
	if p := t.ltc.Load(); p != nil {
		return *p
	}
	return source.LTCSettings{}
}

func (t *Timeline) do(fn func()) {
	if !t.commands.Push(command{fn: fn}) {
		t.logger.Debug("timeline control after close ignored")
	}
}

// drain runs every queued command. Run goroutine only.
func (t *Timeline) drain() {
	for {
		cmd, ok := t.commands.TryPop()
		if !ok {
			return
		}
		cmd.fn()
	}
}

// shutdown tears everything down once. It runs on the Run goroutine, or on
// the Close caller when Run was never started.
func (t *Timeline) shutdown() {
	t.shutdownOnce.Do(func() {
		t.cancelSettle()
		for {
			cmd, ok := t.commands.TryPop()
			if !ok {
				break
			}
			if cmd.done != nil {
				close(cmd.done)
			}
		}
		t.teardownSource()
		t.events.close()
		close(t.done)
		t.logger.Debug("timeline stopped")
	})
}

// onTimeUpdate applies one sample from the active source.
func (t *Timeline) onTimeUpdate(s broadcaster.Sample) {
	defer t.received.Add(1)

	internal := t.transport() != nil
	if internal && s.Generation < t.rebases {
		return
	}

	frame := timecode.TimeToFrame(s.Elapsed, t.Standard())

	if limit := t.maxFrames.Load(); internal && limit > 0 && frame > limit {
		if t.looping.Load() {
			t.logger.Debug("timeline looped", "frame", frame, "max_frames", limit)
			t.rebase(0)
			return
		}
		t.logger.Debug("timeline finished", "frame", frame, "max_frames", limit)
		t.stop()
		t.publish(Event{Kind: Finished})
		return
	}

	t.setFrame(frame, false)
}

func (t *Timeline) start() {
	limit := t.maxFrames.Load()
	tr := t.transport()
	if tr == nil || limit <= 0 {
		t.reject("start")
		return
	}
	tr.Resume()
	t.playing.Store(int32(Playing))
	t.publishPlaying(true)
}

func (t *Timeline) pause() {
	tr := t.transport()
	if tr == nil {
		t.reject("pause")
		return
	}
	if t.PlayingState() == Playing {
		t.cancelSettle()
		tr.Pause()
		t.playing.Store(int32(Paused))
	}
	t.publishPlaying(false)
}

// stop zeroes the transport and returns to frame 0.
func (t *Timeline) stop() {
	t.cancelSettle()
	if tr := t.transport(); tr != nil {
		tr.Stop()
		t.rebases++
	}
	t.playing.Store(int32(Stopped))
	t.setFrame(0, true)
	t.publishPlaying(false)
}

func (t *Timeline) seek(frame int64) {
	if frame < 0 {
		frame = 0
	}
	if limit := t.maxFrames.Load(); limit > 0 && frame > limit {
		frame = limit
	}
	t.setFrame(frame, true)
	t.rebase(timecode.FrameToTime(frame, t.Standard()))
}

// rebase moves the internal transport to seconds. A playing transport is
// paused first and resumed after the settle delay; samples taken before
// the rebase is applied are filtered by generation in onTimeUpdate.
func (t *Timeline) rebase(seconds float64) {
	tr := t.transport()
	if tr == nil {
		return
	}
	resume := t.PlayingState() == Playing

	t.cancelSettle()
	tr.Pause()
	tr.SetCurrentTime(seconds)
	t.rebases++

	if !resume {
		return
	}
	if t.settleDelay <= 0 {
		tr.Resume()
		return
	}
	seq := t.settleSeq
	t.settle = t.clock.AfterFunc(t.settleDelay, func() {
		t.do(func() { t.finishSettle(seq) })
	})
}

func (t *Timeline) finishSettle(seq uint64) {
	if seq != t.settleSeq || t.PlayingState() != Playing {
		return
	}
	t.settle = nil
	if tr := t.transport(); tr != nil {
		tr.Resume()
	}
}

// cancelSettle invalidates any pending resume.
func (t *Timeline) cancelSettle() {
	t.settleSeq++
	if t.settle != nil {
		t.settle.Stop()
		t.settle = nil
	}
}

func (t *Timeline) setStandard(s timecode.Standard) {
	if !s.Valid() {
		t.logger.Warn("timecode standard ignored",
			"error", fmt.Errorf("%w: unknown timecode standard %d", ErrConfiguration, int(s)))
		return
	}
	prev := timecode.Standard(t.standard.Swap(int32(s)))
	frame := t.frame.Load()
	t.publish(Event{
		Kind:     TimecodeChanged,
		Frame:    frame,
		Timecode: timecode.FrameCountToTimecode(frame, s),
	})
	if prev != s {
		t.logger.Debug("timecode standard changed", "from", prev.String(), "to", s.String())
		t.retime(timecode.FrameToTime(frame, s))
	}
}

// retime moves the transport to seconds without touching its state, so
// playback continues at the same frame count in the new standard.
func (t *Timeline) retime(seconds float64) {
	if tr := t.transport(); tr != nil {
		tr.SetCurrentTime(seconds)
		t.rebases++
	}
}

func (t *Timeline) setLooping(looping bool) {
	if t.looping.Swap(looping) != looping {
		t.publish(Event{Kind: LoopingChanged, Looping: looping})
	}
}

// switchSource replaces the active source unless kind and ltc already
// match it. It reports whether a switch happened.
func (t *Timeline) switchSource(kind source.Kind, ltc source.LTCSettings) bool {
	if !kind.Valid() {
		t.logger.Warn("clock source ignored",
			"error", fmt.Errorf("%w: unknown clock source %d", ErrConfiguration, int(kind)))
		return false
	}
	ltc = ltc.Normalize()
	if t.src != nil && t.src.Kind() == kind && t.LTC() == ltc {
		return false
	}

	from := t.SourceKind()
	t.cancelSettle()
	t.teardownSource()
	t.playing.Store(int32(Stopped))

	if err := t.provision(kind, ltc); err != nil {
		t.logger.Error("clock source unavailable, using internal", "source", kind.String(), "error", err)
		if err := t.provision(source.Internal, source.LTCSettings{}); err != nil {
			t.logger.Error("internal clock source unavailable", "error", err)
		}
	}
	t.logger.Info("clock source changed", "from", from.String(), "to", t.SourceKind().String())
	return true
}

func (t *Timeline) provision(kind source.Kind, ltc source.LTCSettings) error {
	src, err := t.factory(kind, ltc)
	if err != nil {
		return err
	}
	t.src = src
	t.samples = src.Samples()
	t.rebases = 0
	t.kind.Store(int32(kind))
	t.ltc.Store(&ltc)

	if tr := t.transport(); tr != nil {
		if sp := t.Speed(); sp != 1 {
			tr.SetSpeed(sp)
		}
		if f := t.frame.Load(); f > 0 {
			tr.SetCurrentTime(timecode.FrameToTime(f, t.Standard()))
			t.rebases++
		}
	}
	return nil
}

// teardownSource closes the active source, waiting at most the teardown
// timeout for its goroutine.
func (t *Timeline) teardownSource() {
	if t.src == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), t.teardownTimeout)
	defer cancel()

	if err := t.src.Close(ctx); err != nil {
		t.logger.Error("clock source teardown", "source", t.src.Kind().String(), "error", err)
	}
	t.src = nil
	t.samples = nil
}

// transport returns the active source's broadcaster, or nil for external
// sources.
func (t *Timeline) transport() *broadcaster.Broadcaster {
	if c, ok := t.src.(source.Controllable); ok {
		return c.Transport()
	}
	return nil
}

func (t *Timeline) setFrame(frame int64, force bool) {
	if t.frame.Swap(frame) == frame && !force {
		return
	}
	t.publish(Event{Kind: FrameChanged, Frame: frame})
	t.publish(Event{
		Kind:     TimecodeChanged,
		Frame:    frame,
		Timecode: timecode.FrameCountToTimecode(frame, t.Standard()),
	})
}

func (t *Timeline) reject(control string) {
	t.logger.Debug("control rejected",
		"control", control,
		"error", fmt.Errorf("%w: %s rejected", ErrState, control),
		"source", t.SourceKind().String(),
		"max_frames", t.maxFrames.Load())
	t.publishPlaying(false)
}

func (t *Timeline) publishPlaying(playing bool) {
	t.publish(Event{Kind: PlayingStateChanged, Playing: playing, State: t.PlayingState()})
}

func (t *Timeline) publish(ev Event) { t.events.publish(ev) }
