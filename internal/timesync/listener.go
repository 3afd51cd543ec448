package timesync

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// maxDatagram bounds a received datagram. Messages are well under 100
// bytes in either codec.
const maxDatagram = 512

// Listener receives time sync datagrams.
type Listener struct {
	conn net.PacketConn
	buf  []byte
}

// Listen binds a UDP socket on addr, e.g. ":34456".
func Listen(addr string) (*Listener, error) {
	lc := net.ListenConfig{Control: enableReuse}
	conn, err := lc.ListenPacket(context.Background(), "udp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen for time sync on %q: %w", addr, err)
	}
	return &Listener{conn: conn, buf: make([]byte, maxDatagram)}, nil
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr { return l.conn.LocalAddr() }

// Receive blocks until a datagram arrives or ctx is done. Datagrams that
// fail to decode are returned as errors; the listener stays usable.
func (l *Listener) Receive(ctx context.Context) (Message, net.Addr, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = l.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	n, from, err := l.conn.ReadFrom(l.buf)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			_ = l.conn.SetReadDeadline(time.Time{})
			return Message{}, nil, ctxErr
		}
		return Message{}, nil, fmt.Errorf("receive time sync datagram: %w", err)
	}

	m, err := Decode(l.buf[:n])
	if err != nil {
		return Message{}, from, err
	}
	return m, from, nil
}

// Run calls fn for every decoded message until ctx is done. Undecodable
// datagrams are reported to onError when it is non-nil.
func (l *Listener) Run(ctx context.Context, fn func(Message), onError func(error)) error {
	for {
		m, _, err := l.Receive(ctx)
		switch {
		case err == nil:
			fn(m)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return err
		case errors.Is(err, net.ErrClosed):
			return err
		default:
			if onError != nil {
				onError(err)
			}
		}
	}
}

// Close closes the socket.
func (l *Listener) Close() error { return l.conn.Close() }
