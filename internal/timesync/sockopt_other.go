//go:build !unix

package timesync

import "syscall"

func enableBroadcast(network, address string, c syscall.RawConn) error { return nil }

func enableReuse(network, address string, c syscall.RawConn) error { return nil }
