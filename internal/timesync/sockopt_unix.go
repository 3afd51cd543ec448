//go:build unix

package timesync

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// enableBroadcast lets the publisher send to broadcast addresses.
func enableBroadcast(network, address string, c syscall.RawConn) error {
	return setIntOpt(c, unix.SO_BROADCAST)
}

// enableReuse lets several followers on one host share the port.
func enableReuse(network, address string, c syscall.RawConn) error {
	return setIntOpt(c, unix.SO_REUSEADDR)
}

func setIntOpt(c syscall.RawConn, opt int) error {
	var serr error
	err := c.Control(func(fd uintptr) {
		serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, opt, 1)
	})
	if err != nil {
		return err
	}
	return serr
}
