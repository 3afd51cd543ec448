// Package source defines where a timeline's elapsed-time feed comes from.
//
// Every source, internal or external, delivers broadcaster.Sample values
// on a channel. The timeline consumes that channel without knowing which
// variant produced it.
package source

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/showclock/internal/broadcaster"
)

// Kind tags a clock source variant. Values are persisted.
type Kind int

const (
	Internal Kind = 0
	LTC      Kind = 1
	MTC      Kind = 2
)

// ErrTeardown reports that a source's goroutine did not exit before the
// teardown deadline and was abandoned.
var ErrTeardown = errors.New("source teardown timed out")

func (k Kind) String() string {
	switch k {
	case Internal:
		return "internal"
	case LTC:
		return "ltc"
	case MTC:
		return "mtc"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Valid reports whether k is a known variant.
func (k Kind) Valid() bool {
	return k == Internal || k == LTC || k == MTC
}

// ParseKind resolves "internal", "ltc" or "mtc".
func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "internal":
		return Internal, nil
	case "ltc":
		return LTC, nil
	case "mtc":
		return MTC, nil
	}
	return Internal, fmt.Errorf("unknown clock source %q: must be internal, ltc or mtc", name)
}

// Source is an active elapsed-time feed.
type Source interface {
	// Kind identifies the variant.
	Kind() Kind

	// Samples delivers elapsed-time samples in emission order.
	Samples() <-chan broadcaster.Sample

	// Close releases the source. It waits for background goroutines until
	// ctx is done and returns an error wrapping ErrTeardown if they have
	// not exited by then.
	Close(ctx context.Context) error
}

// Controllable is implemented by sources with a local transport.
type Controllable interface {
	Transport() *broadcaster.Broadcaster
}

// Feeder is implemented by sources driven by an external decoder.
type Feeder interface {
	Feed(seconds float64) bool
}

// Factory provisions the source for kind.
type Factory func(kind Kind, ltc LTCSettings) (Source, error)
