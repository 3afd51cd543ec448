package timeline

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/roach88/showclock/internal/broadcaster"
	"github.com/roach88/showclock/internal/clock"
	"github.com/roach88/showclock/internal/source"
	"github.com/roach88/showclock/internal/timecode"
)

// Defaults for Options.
const (
	DefaultSettleDelay     = 5 * time.Millisecond
	DefaultTeardownTimeout = time.Second
)

// Options configures a Timeline. The owning session sets MaxFrames,
// Looping, Standard and Speed; the rest are runtime tuning.
type Options struct {
	// MaxFrames bounds the internal clock; 0 means unbounded. A bounded
	// timeline is required to start playing.
	MaxFrames int64
	Looping   bool
	Standard  timecode.Standard
	Speed     float64

	// SourceKind and LTC select the initial clock source.
	SourceKind source.Kind
	LTC        source.LTCSettings

	// TickInterval and Nice tune the internal broadcaster.
	TickInterval time.Duration
	Nice         int

	// SettleDelay is how long a loop or seek waits before resuming a
	// rebased broadcaster.
	SettleDelay time.Duration

	// TeardownTimeout bounds how long a source switch or Close waits for
	// the outgoing source's goroutine.
	TeardownTimeout time.Duration

	Clock  clock.Clock
	Logger *slog.Logger

	// SourceFactory provisions clock sources. Default: source.NewFactory
	// built from the fields above.
	SourceFactory source.Factory
}

// Option mutates Options.
type Option func(*Options)

// WithMaxFrames sets the frame bound; negative values mean 0.
func WithMaxFrames(n int64) Option { return func(o *Options) { o.MaxFrames = n } }

// WithLooping sets whether the timeline wraps to frame 0 at the bound.
func WithLooping(looping bool) Option { return func(o *Options) { o.Looping = looping } }

// WithStandard sets the initial timecode standard.
func WithStandard(s timecode.Standard) Option { return func(o *Options) { o.Standard = s } }

// WithSpeed sets the initial speed multiplier.
func WithSpeed(m float64) Option { return func(o *Options) { o.Speed = m } }

// WithSource selects the initial clock source.
func WithSource(kind source.Kind, ltc source.LTCSettings) Option {
	return func(o *Options) {
		o.SourceKind = kind
		o.LTC = ltc
	}
}

// WithTickInterval sets the internal broadcaster's cadence.
func WithTickInterval(d time.Duration) Option { return func(o *Options) { o.TickInterval = d } }

// WithNice sets the ticking thread's requested nice value.
func WithNice(nice int) Option { return func(o *Options) { o.Nice = nice } }

// WithSettleDelay sets the pause before a rebased broadcaster resumes.
func WithSettleDelay(d time.Duration) Option { return func(o *Options) { o.SettleDelay = d } }

// WithTeardownTimeout bounds source teardown.
func WithTeardownTimeout(d time.Duration) Option {
	return func(o *Options) { o.TeardownTimeout = d }
}

// WithClock sets the time source used by the timeline and its sources.
func WithClock(c clock.Clock) Option { return func(o *Options) { o.Clock = c } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(o *Options) { o.Logger = l } }

// WithSourceFactory overrides how sources are provisioned.
func WithSourceFactory(f source.Factory) Option {
	return func(o *Options) { o.SourceFactory = f }
}

func defaultOptions() Options {
	return Options{
		Standard:        timecode.DefaultStandard,
		Speed:           1.0,
		SourceKind:      source.Internal,
		TickInterval:    broadcaster.DefaultTickInterval,
		Nice:            broadcaster.DefaultNice,
		SettleDelay:     DefaultSettleDelay,
		TeardownTimeout: DefaultTeardownTimeout,
	}
}

// validate normalises clampable fields and rejects the rest.
func (o *Options) validate() error {
	if o.MaxFrames < 0 {
		o.MaxFrames = 0
	}
	if !o.Standard.Valid() {
		return fmt.Errorf("%w: unknown timecode standard %d", ErrConfiguration, int(o.Standard))
	}
	if math.IsNaN(o.Speed) || math.IsInf(o.Speed, 0) || o.Speed <= 0 {
		return fmt.Errorf("%w: speed must be a positive number, got %v", ErrConfiguration, o.Speed)
	}
	if !o.SourceKind.Valid() {
		return fmt.Errorf("%w: unknown clock source %d", ErrConfiguration, int(o.SourceKind))
	}
	if o.SettleDelay < 0 {
		o.SettleDelay = 0
	}
	if o.TeardownTimeout <= 0 {
		o.TeardownTimeout = DefaultTeardownTimeout
	}
	if o.Clock == nil {
		o.Clock = clock.Real()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.SourceFactory == nil {
		o.SourceFactory = source.NewFactory(o.Logger, o.Clock,
			broadcaster.WithTickInterval(o.TickInterval),
			broadcaster.WithNice(o.Nice))
	}
	o.LTC = o.LTC.Normalize()
	return nil
}
