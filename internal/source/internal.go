package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/showclock/internal/broadcaster"
)

// InternalSource hosts a Broadcaster on its own goroutine and exposes its
// ticks and transport controls.
type InternalSource struct {
	b      *broadcaster.Broadcaster
	mb     *broadcaster.Mailbox
	cancel context.CancelFunc
	logger *slog.Logger
}

// NewInternal creates a broadcaster with opts and starts its ticking loop.
func NewInternal(logger *slog.Logger, opts ...broadcaster.Option) *InternalSource {
	if logger == nil {
		logger = slog.Default()
	}
	b := broadcaster.New(append([]broadcaster.Option{broadcaster.WithLogger(logger)}, opts...)...)
	ctx, cancel := context.WithCancel(context.Background())

	s := &InternalSource{
		b:      b,
		mb:     b.Subscribe(),
		cancel: cancel,
		logger: logger,
	}

	go func() {
		if err := b.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("broadcaster loop failed", "error", err)
		}
	}()
	return s
}

// Kind returns Internal.
func (s *InternalSource) Kind() Kind { return Internal }

// Samples returns the timeline's mailbox channel.
func (s *InternalSource) Samples() <-chan broadcaster.Sample { return s.mb.C() }

// Transport returns the broadcaster for transport controls.
func (s *InternalSource) Transport() *broadcaster.Broadcaster { return s.b }

// Close stops the broadcaster, disconnects the timeline's mailbox and
// signals the ticking loop to exit, then waits for it until ctx is done.
//
// A goroutine cannot be killed: if the loop misses the deadline it is
// abandoned, which leaks it until it next observes cancellation.
func (s *InternalSource) Close(ctx context.Context) error {
	s.b.Stop()
	s.b.Unsubscribe(s.mb)
	s.b.Close()
	s.cancel()

	select {
	case <-s.b.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("internal clock: %w: %v", ErrTeardown, ctx.Err())
	}
}
