package broadcaster

import "sync/atomic"

// Mailbox is a single-slot, latest-wins hand-off from the ticking loop to
// one consumer. Offering never blocks: a newer sample replaces an unread
// one and the replacement is counted as dropped. Samples are never
// reordered.
type Mailbox struct {
	ch      chan Sample
	dropped atomic.Uint64
}

func NewMailbox() *Mailbox {
	return &Mailbox{ch: make(chan Sample, 1)}
}

// C returns the receive channel. It is never closed; consumers stop
// reading after Unsubscribe.
func (m *Mailbox) C() <-chan Sample {
	return m.ch
}

// Dropped returns how many samples were replaced before being read.
func (m *Mailbox) Dropped() uint64 {
	return m.dropped.Load()
}

// Offer delivers s without blocking. It assumes a single producer, so
// once the stale sample is evicted the final send finds room.
func (m *Mailbox) Offer(s Sample) {
	select {
	case m.ch <- s:
		return
	default:
	}

	select {
	case <-m.ch:
		m.dropped.Add(1)
	default:
	}

	select {
	case m.ch <- s:
	default:
		m.dropped.Add(1)
	}
}
