package source

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/showclock/internal/broadcaster"
	"github.com/roach88/showclock/internal/clock"
)

// LTCSettings selects the audio input an LTC decoder listens on.
type LTCSettings struct {
	Device  string `json:"device"`
	Channel int    `json:"channel"`
}

// Normalize returns s with the device name trimmed and in Unicode NFC, and a
// negative channel reset to 0. Device names come from OS audio APIs that do
// not agree on composition, so stored names only compare equal after this.
func (s LTCSettings) Normalize() LTCSettings {
	s.Device = norm.NFC.String(strings.TrimSpace(s.Device))
	if s.Channel < 0 {
		s.Channel = 0
	}
	return s
}

// IsZero reports whether no device is selected.
func (s LTCSettings) IsZero() bool {
	return s.Device == "" && s.Channel == 0
}

// External is the source for externally decoded timecode (LTC, MTC). A
// decoder calls Feed with the position it decoded; the timeline receives
// it through the same Sample contract the internal broadcaster uses.
//
// Hardware decoding is not part of this package.
type External struct {
	kind  Kind
	ltc   LTCSettings
	clock clock.Clock

	mu     sync.Mutex
	mb     *broadcaster.Mailbox
	seq    uint64
	closed bool
}

// NewExternal creates an External source. kind must be LTC or MTC.
func NewExternal(kind Kind, ltc LTCSettings, c clock.Clock) (*External, error) {
	if kind != LTC && kind != MTC {
		return nil, fmt.Errorf("external source: unsupported kind %s", kind)
	}
	if c == nil {
		c = clock.Real()
	}
	return &External{
		kind:  kind,
		ltc:   ltc.Normalize(),
		clock: c,
		mb:    broadcaster.NewMailbox(),
	}, nil
}

// Kind returns LTC or MTC.
func (e *External) Kind() Kind { return e.kind }

// Settings returns the normalised LTC input selection.
func (e *External) Settings() LTCSettings { return e.ltc }

// Samples returns the channel decoded positions arrive on.
func (e *External) Samples() <-chan broadcaster.Sample { return e.mb.C() }

// Feed publishes a decoded position in seconds. Safe from any goroutine;
// never blocks. Returns false once the source is closed.
func (e *External) Feed(seconds float64) bool {
	if math.IsNaN(seconds) || seconds < 0 {
		seconds = 0
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	e.seq++
	e.mb.Offer(broadcaster.Sample{
		Seq:     e.seq,
		Elapsed: seconds,
		State:   broadcaster.Running,
		At:      e.clock.Now(),
	})
	return true
}

// Dropped returns how many fed positions were replaced before the timeline
// read them.
func (e *External) Dropped() uint64 { return e.mb.Dropped() }

// Close stops accepting positions. It has no goroutine to wait for.
func (e *External) Close(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

