package timesync

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"

	"github.com/roach88/showclock/internal/broadcaster"
)

// Publisher writes one datagram per sample to a UDP destination, usually a
// broadcast address. It runs on its own goroutine and never touches the
// ticking goroutine: samples reach it through a broadcaster mailbox.
type Publisher struct {
	conn   net.PacketConn
	dest   net.Addr
	codec  Codec
	logger *slog.Logger

	sent   atomic.Uint64
	failed atomic.Uint64
}

// NewPublisher opens an ephemeral UDP socket with broadcast enabled and
// targets addr.
func NewPublisher(addr string, codec Codec, logger *slog.Logger) (*Publisher, error) {
	if codec == nil {
		codec = JSON{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	dest, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve time sync address %q: %w", addr, err)
	}

	lc := net.ListenConfig{Control: enableBroadcast}
	conn, err := lc.ListenPacket(context.Background(), "udp", ":0")
	if err != nil {
		return nil, fmt.Errorf("open time sync socket: %w", err)
	}

	return &Publisher{conn: conn, dest: dest, codec: codec, logger: logger}, nil
}

// Publish encodes and sends one message.
func (p *Publisher) Publish(m Message) error {
	data, err := p.codec.Encode(m)
	if err != nil {
		p.failed.Add(1)
		return fmt.Errorf("encode time sync message: %w", err)
	}
	if _, err := p.conn.WriteTo(data, p.dest); err != nil {
		p.failed.Add(1)
		return fmt.Errorf("send time sync datagram: %w", err)
	}
	p.sent.Add(1)
	return nil
}

// Run publishes every sample from samples until ctx is done. Send errors
// are logged and counted; they never stop the loop.
func (p *Publisher) Run(ctx context.Context, samples <-chan broadcaster.Sample) error {
	p.logger.Debug("time sync publisher started", "dest", p.dest.String(), "codec", p.codec.Name())
	for {
		select {
		case <-ctx.Done():
			p.logger.Debug("time sync publisher stopped", "sent", p.sent.Load(), "failed", p.failed.Load())
			return ctx.Err()
		case s := <-samples:
			if err := p.Publish(FromSample(s)); err != nil {
				p.logger.Debug("time sync publish failed", "error", err)
			}
		}
	}
}

// Sent returns the number of datagrams written.
func (p *Publisher) Sent() uint64 { return p.sent.Load() }

// Failed returns the number of datagrams that could not be written.
func (p *Publisher) Failed() uint64 { return p.failed.Load() }

// Close closes the socket.
func (p *Publisher) Close() error { return p.conn.Close() }
