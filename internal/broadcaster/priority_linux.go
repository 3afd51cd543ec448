//go:build linux

package broadcaster

import "golang.org/x/sys/unix"

// elevatePriority sets the nice value of the calling OS thread. The caller
// must have locked its goroutine to the thread. Negative values usually
// need CAP_SYS_NICE; failure leaves the thread at its inherited priority.
func elevatePriority(nice int) error {
	if nice == 0 {
		return nil
	}
	return unix.Setpriority(unix.PRIO_PROCESS, unix.Gettid(), nice)
}
