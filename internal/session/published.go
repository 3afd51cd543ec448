package session

import (
	"context"
	"errors"
	"log/slog"

	"github.com/roach88/showclock/internal/source"
	"github.com/roach88/showclock/internal/timesync"
)

// publishing wraps base so that every internal source it builds also feeds
// p. External sources are returned unchanged.
func publishing(base source.Factory, p *timesync.Publisher, logger *slog.Logger) source.Factory {
	return func(kind source.Kind, ltc source.LTCSettings) (source.Source, error) {
		src, err := base(kind, ltc)
		if err != nil {
			return nil, err
		}
		in, ok := src.(*source.InternalSource)
		if !ok {
			return src, nil
		}
		return newPublishedSource(in, p, logger), nil
	}
}

// publishedSource is an internal source with a second mailbox drained by a
// time sync publisher. The embedded source keeps Transport available to
// the timeline.
type publishedSource struct {
	*source.InternalSource

	unsubscribe func()
	cancel      context.CancelFunc
	done        chan struct{}
}

func newPublishedSource(in *source.InternalSource, p *timesync.Publisher, logger *slog.Logger) *publishedSource {
	b := in.Transport()
	mb := b.Subscribe()
	ctx, cancel := context.WithCancel(context.Background())

	ps := &publishedSource{
		InternalSource: in,
		unsubscribe:    func() { b.Unsubscribe(mb) },
		cancel:         cancel,
		done:           make(chan struct{}),
	}
	go func() {
		defer close(ps.done)
		if err := p.Run(ctx, mb.C()); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("time sync publisher failed", "error", err)
		}
	}()
	return ps
}

// Close stops the publisher goroutine, then closes the internal source.
func (ps *publishedSource) Close(ctx context.Context) error {
	ps.cancel()
	ps.unsubscribe()
	select {
	case <-ps.done:
	case <-ctx.Done():
	}
	return ps.InternalSource.Close(ctx)
}
