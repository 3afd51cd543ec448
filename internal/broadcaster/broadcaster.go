package broadcaster

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/showclock/internal/clock"
	"github.com/roach88/showclock/internal/queue"
)

// Tick cadence bounds. The cadence is independent of the timecode
// standard's frame rate.
const (
	DefaultTickInterval = 20 * time.Millisecond // 50 Hz
	MinTickInterval     = 20 * time.Millisecond // 50 Hz
	MaxTickInterval     = 40 * time.Millisecond // 25 Hz

	// DefaultNice is the nice value requested for the ticking thread.
	DefaultNice = -10
)

// ErrAlreadyRunning is returned by Run when the loop is already hosted.
var ErrAlreadyRunning = errors.New("broadcaster: already running")

type commandKind int

const (
	cmdStart commandKind = iota + 1
	cmdPause
	cmdResume
	cmdStop
	cmdSetSpeed
	cmdSetTime
	cmdBarrier
)

type command struct {
	kind  commandKind
	value float64
	done  chan struct{}
}

// Broadcaster is the single source of elapsed time for the internal clock
// source. It owns the reference instant, accumulated time, speed and
// transport state, and emits a Sample to every subscribed Mailbox at a
// fixed cadence.
//
// Thread-safety model:
//   - Controls (Start, Pause, ...): safe from any goroutine; they enqueue a
//     command and return immediately.
//   - Readers (ElapsedTime, State, ...): safe from any goroutine; lock-free.
//   - Run: hosts the ticking loop; call from exactly one goroutine.
//
// All mutation happens in the Run goroutine. A control issued before tick
// N is emitted is applied no later than tick N+1.
type Broadcaster struct {
	clock    clock.Clock
	logger   *slog.Logger
	interval time.Duration
	nice     int

	commands *queue.Queue[command]
	tb       atomic.Pointer[timebase]

	subMu     sync.Mutex
	mailboxes atomic.Pointer[[]*Mailbox]

	running atomic.Bool
	done    chan struct{}
	seq     uint64 // Run goroutine only
}

// Option configures a Broadcaster.
type Option func(*Broadcaster)

// WithClock sets the time source. Default: clock.Real().
func WithClock(c clock.Clock) Option {
	return func(b *Broadcaster) { b.clock = c }
}

// WithTickInterval sets the emission cadence. Values outside
// [MinTickInterval, MaxTickInterval] are clamped.
func WithTickInterval(d time.Duration) Option {
	return func(b *Broadcaster) { b.interval = d }
}

// WithNice sets the nice value requested for the ticking thread; 0 leaves
// the inherited priority.
func WithNice(nice int) Option {
	return func(b *Broadcaster) { b.nice = nice }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(b *Broadcaster) { b.logger = l }
}

// New creates a Broadcaster paused at zero elapsed time with speed 1.
// The loop does not tick until Run is called.
func New(opts ...Option) *Broadcaster {
	b := &Broadcaster{
		clock:    clock.Real(),
		logger:   slog.Default(),
		interval: DefaultTickInterval,
		nice:     DefaultNice,
		commands: queue.New[command](),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	if b.interval < MinTickInterval {
		b.interval = MinTickInterval
	}
	if b.interval > MaxTickInterval {
		b.interval = MaxTickInterval
	}

	b.tb.Store(&timebase{
		reference: b.clock.Now(),
		speed:     1.0,
		state:     Paused,
	})
	empty := []*Mailbox{}
	b.mailboxes.Store(&empty)
	return b
}

// Start zeroes elapsed time and starts running.
func (b *Broadcaster) Start() { b.push(command{kind: cmdStart}) }

// Pause freezes elapsed time at its current value. No-op unless running.
func (b *Broadcaster) Pause() { b.push(command{kind: cmdPause}) }

// Resume continues from the frozen elapsed time without a jump. A stopped
// broadcaster resumes from its accumulated time. No-op while running.
func (b *Broadcaster) Resume() { b.push(command{kind: cmdResume}) }

// Stop zeroes elapsed time and stops. Samples report the accumulated
// value (0 unless SetCurrentTime rebases it) until resumed.
func (b *Broadcaster) Stop() { b.push(command{kind: cmdStop}) }

// SetSpeed changes how fast future elapsed time grows. Time already
// accumulated is not rescaled. Non-positive or non-finite multipliers are
// ignored.
func (b *Broadcaster) SetSpeed(multiplier float64) {
	b.push(command{kind: cmdSetSpeed, value: multiplier})
}

// SetCurrentTime rebases elapsed time to seconds (negative clamps to 0)
// without changing state.
func (b *Broadcaster) SetCurrentTime(seconds float64) {
	b.push(command{kind: cmdSetTime, value: seconds})
}

// Barrier returns a channel closed once every control issued before it has
// been applied. The channel is closed immediately if the loop has shut down.
func (b *Broadcaster) Barrier() <-chan struct{} {
	done := make(chan struct{})
	if !b.commands.Push(command{kind: cmdBarrier, done: done}) {
		close(done)
	}
	return done
}

func (b *Broadcaster) push(cmd command) {
	if !b.commands.Push(cmd) {
		b.logger.Debug("broadcaster control after close ignored", "command", int(cmd.kind))
	}
}

// ElapsedTime returns the logical elapsed time in seconds.
func (b *Broadcaster) ElapsedTime() float64 {
	return b.tb.Load().elapsed(b.clock.Now())
}

// State returns the transport state.
func (b *Broadcaster) State() State {
	return b.tb.Load().state
}

// Speed returns the speed multiplier.
func (b *Broadcaster) Speed() float64 {
	return b.tb.Load().speed
}

// Generation returns the number of time rebases applied so far.
func (b *Broadcaster) Generation() uint64 {
	return b.tb.Load().generation
}

// Interval returns the tick cadence.
func (b *Broadcaster) Interval() time.Duration {
	return b.interval
}

// Subscribe returns a new mailbox that receives every subsequent tick.
func (b *Broadcaster) Subscribe() *Mailbox {
	m := NewMailbox()

	b.subMu.Lock()
	defer b.subMu.Unlock()

	cur := *b.mailboxes.Load()
	next := make([]*Mailbox, 0, len(cur)+1)
	next = append(next, cur...)
	next = append(next, m)
	b.mailboxes.Store(&next)
	return m
}

// Unsubscribe disconnects m. A tick already in flight may still land in
// its slot.
func (b *Broadcaster) Unsubscribe(m *Mailbox) {
	b.subMu.Lock()
	defer b.subMu.Unlock()

	cur := *b.mailboxes.Load()
	next := make([]*Mailbox, 0, len(cur))
	for _, existing := range cur {
		if existing != m {
			next = append(next, existing)
		}
	}
	b.mailboxes.Store(&next)
}

// Run hosts the ticking loop until ctx is cancelled or Close is called.
//
// The goroutine is locked to its OS thread and the thread's priority is
// raised. The thread is never unlocked, so it exits with the goroutine
// instead of returning to the scheduler pool with a raised priority.
//
// Shutdown is cooperative: the loop waits on the ticker, the command queue
// and ctx together, so it returns within one tick interval.
func (b *Broadcaster) Run(ctx context.Context) error {
	if !b.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(b.done)

	runtime.LockOSThread()
	if err := elevatePriority(b.nice); err != nil {
		b.logger.Debug("ticking thread priority unchanged", "nice", b.nice, "error", err)
	}

	ticker := b.clock.NewTicker(b.interval)
	defer ticker.Stop()

	b.logger.Debug("broadcaster started", "interval", b.interval)

	for {
		b.drain()

		select {
		case <-ctx.Done():
			b.logger.Debug("broadcaster stopping: context cancelled")
			b.commands.Close()
			b.drain()
			return ctx.Err()

		case <-b.commands.Wait():
			if b.commands.Closed() && b.commands.Len() == 0 {
				b.logger.Debug("broadcaster stopping: closed")
				return nil
			}

		case <-ticker.C:
			b.emit()
		}
	}
}

// Close stops accepting controls and makes Run return after applying what
// is already queued. Idempotent.
func (b *Broadcaster) Close() {
	b.commands.Close()
}

// Done is closed when Run returns.
func (b *Broadcaster) Done() <-chan struct{} {
	return b.done
}

// drain applies every queued command. Run goroutine only.
func (b *Broadcaster) drain() {
	for {
		cmd, ok := b.commands.TryPop()
		if !ok {
			return
		}
		b.apply(cmd)
	}
}

// apply executes one command against the timebase and publishes the
// result. Run goroutine only.
func (b *Broadcaster) apply(cmd command) {
	if cmd.kind == cmdBarrier {
		close(cmd.done)
		return
	}

	now := b.clock.Now()
	cur := b.tb.Load()
	next := *cur

	switch cmd.kind {
	case cmdStart:
		next.accumulated = 0
		next.reference = now
		next.state = Running
		next.generation++

	case cmdPause:
		if cur.state != Running {
			return
		}
		next.accumulated = cur.elapsed(now)
		next.state = Paused

	case cmdResume:
		if cur.state == Running {
			return
		}
		next.reference = now
		next.state = Running

	case cmdStop:
		next.accumulated = 0
		next.state = Stopped
		next.generation++

	case cmdSetSpeed:
		if math.IsNaN(cmd.value) || math.IsInf(cmd.value, 0) || cmd.value <= 0 {
			b.logger.Warn("ignoring invalid speed multiplier", "speed", cmd.value)
			return
		}
		if cur.state == Running {
			next.accumulated = cur.elapsed(now)
			next.reference = now
		}
		next.speed = cmd.value

	case cmdSetTime:
		next.accumulated = math.Max(cmd.value, 0)
		if math.IsNaN(cmd.value) {
			next.accumulated = 0
		}
		next.reference = now
		next.generation++
	}

	b.tb.Store(&next)
	b.logger.Debug("broadcaster control applied",
		"state", next.state.String(),
		"elapsed", next.elapsed(now),
		"speed", next.speed,
		"generation", next.generation)
}

// emit offers the current sample to every mailbox. Run goroutine only; it
// takes no locks.
func (b *Broadcaster) emit() {
	now := b.clock.Now()
	tb := b.tb.Load()
	b.seq++

	s := Sample{
		Seq:        b.seq,
		Elapsed:    tb.elapsed(now),
		State:      tb.state,
		Generation: tb.generation,
		At:         now,
	}
	for _, m := range *b.mailboxes.Load() {
		m.Offer(s)
	}
}
