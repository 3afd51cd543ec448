// Package session assembles a running show clock from configuration: the
// timeline, its clock sources, the optional time sync publisher and the
// optional settings store.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/showclock/internal/broadcaster"
	"github.com/roach88/showclock/internal/clock"
	"github.com/roach88/showclock/internal/config"
	"github.com/roach88/showclock/internal/source"
	"github.com/roach88/showclock/internal/store"
	"github.com/roach88/showclock/internal/timeline"
	"github.com/roach88/showclock/internal/timesync"
)

// storeTimeout bounds the settings write when Run exits.
const storeTimeout = 5 * time.Second

// Options configures Open.
type Options struct {
	// ID selects a stored session. Empty generates a new id.
	ID   string
	Name string
	IDs  IDGenerator

	// Store persists the session row and its clock settings. Nil disables
	// persistence.
	Store *store.Store

	Clock  clock.Clock
	Logger *slog.Logger
}

// Option configures Open.
type Option func(*Options)

func WithID(id string) Option { return func(o *Options) { o.ID = id } }
func WithName(name string) Option { return func(o *Options) { o.Name = name } }
func WithIDGenerator(g IDGenerator) Option { return func(o *Options) { o.IDs = g } }
func WithStore(st *store.Store) Option { return func(o *Options) { o.Store = st } }
func WithClock(c clock.Clock) Option { return func(o *Options) { o.Clock = c } }
func WithLogger(l *slog.Logger) Option { return func(o *Options) { o.Logger = l } }

// Session is one configured timeline plus its outer plumbing.
type Session struct {
	id     string
	tl     *timeline.Timeline
	store  *store.Store
	pub    *timesync.Publisher
	logger *slog.Logger
}

// Open builds the timeline described by cfg. With a store, the session
// row is written and previously saved clock settings are applied; settings
// that fail validation are logged and replaced by defaults.
func Open(ctx context.Context, cfg config.Config, opts ...Option) (*Session, error) {
	o := Options{IDs: UUIDv7Generator{}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Clock == nil {
		o.Clock = clock.Real()
	}
	if o.ID == "" {
		o.ID = o.IDs.Generate()
	}
	logger := o.Logger.With("session", o.ID)

	s := &Session{id: o.ID, store: o.Store, logger: logger}

	factory := source.NewFactory(logger, o.Clock,
		broadcaster.WithTickInterval(cfg.Broadcaster.TickInterval),
		broadcaster.WithNice(cfg.Broadcaster.Nice),
	)
	if cfg.TimeSync.Enabled {
		codec, err := timesync.ParseCodec(cfg.TimeSync.Codec)
		if err != nil {
			return nil, err
		}
		pub, err := timesync.NewPublisher(cfg.TimeSync.Addr, codec, logger)
		if err != nil {
			return nil, err
		}
		s.pub = pub
		factory = publishing(factory, pub, logger)
	}

	tl, err := timeline.New(
		timeline.WithMaxFrames(cfg.Session.MaxFrames),
		timeline.WithLooping(cfg.Session.Looping),
		timeline.WithStandard(cfg.Standard()),
		timeline.WithSpeed(cfg.Session.Speed),
		timeline.WithSource(cfg.SourceKind(), cfg.LTC()),
		timeline.WithSettleDelay(cfg.Broadcaster.SettleDelay),
		timeline.WithTeardownTimeout(cfg.Broadcaster.TeardownTimeout),
		timeline.WithClock(o.Clock),
		timeline.WithLogger(logger),
		timeline.WithSourceFactory(factory),
	)
	if err != nil {
		s.closePublisher()
		return nil, fmt.Errorf("create timeline: %w", err)
	}
	s.tl = tl

	if s.store != nil {
		if err := s.restore(ctx, o.Name, cfg.Session.MaxFrames); err != nil {
			tl.Close()
			s.closePublisher()
			return nil, err
		}
	}
	return s, nil
}

// restore records the session and applies its stored settings, or stores
// the configured ones for a new session.
func (s *Session) restore(ctx context.Context, name string, maxFrames int64) error {
	if name == "" {
		if existing, err := s.store.GetSession(ctx, s.id); err == nil {
			name = existing.Name
		}
	}
	if err := s.store.PutSession(ctx, store.Session{ID: s.id, Name: name, MaxFrames: maxFrames}); err != nil {
		return err
	}

	doc, err := s.store.LoadSettings(ctx, s.id)
	if errors.Is(err, store.ErrNotFound) {
		return s.Save(ctx)
	}
	if err != nil {
		return err
	}
	if err := s.tl.Load(doc); err != nil {
		s.logger.Warn("stored settings partially defaulted", "error", err)
	}
	return nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Timeline returns the session's timeline.
func (s *Session) Timeline() *timeline.Timeline { return s.tl }

// Publisher returns the time sync publisher, or nil when disabled.
func (s *Session) Publisher() *timesync.Publisher { return s.pub }

// Save stores the timeline's current settings. It is a no-op without a
// store.
func (s *Session) Save(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	doc, err := s.tl.Save()
	if err != nil {
		return err
	}
	return s.store.SaveSettings(ctx, s.id, doc)
}

// Run hosts the timeline until ctx is done or Close is called, then saves
// the settings and closes the publisher.
func (s *Session) Run(ctx context.Context) error {
	runErr := s.tl.Run(ctx)

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer cancel()
	if err := s.Save(saveCtx); err != nil {
		s.logger.Error("save settings on exit", "error", err)
	}
	s.closePublisher()

	if errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded) {
		return nil
	}
	return runErr
}

// Close stops the timeline loop. Run returns once teardown completes.
func (s *Session) Close() { s.tl.Close() }

func (s *Session) closePublisher() {
	if s.pub == nil {
		return
	}
	if err := s.pub.Close(); err != nil {
		s.logger.Debug("close time sync publisher", "error", err)
	}
}
