package source

import (
	"fmt"
	"log/slog"

	"github.com/roach88/showclock/internal/broadcaster"
	"github.com/roach88/showclock/internal/clock"
)

// NewFactory returns a Factory that builds internal sources from opts and
// external sources on c.
func NewFactory(logger *slog.Logger, c clock.Clock, opts ...broadcaster.Option) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	if c == nil {
		c = clock.Real()
	}
	return func(kind Kind, ltc LTCSettings) (Source, error) {
		switch kind {
		case Internal:
			all := append([]broadcaster.Option{broadcaster.WithClock(c)}, opts...)
			return NewInternal(logger, all...), nil
		case LTC, MTC:
			return NewExternal(kind, ltc, c)
		default:
			return nil, fmt.Errorf("unknown clock source %s", kind)
		}
	}
}
