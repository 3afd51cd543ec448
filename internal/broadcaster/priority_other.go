//go:build !linux

package broadcaster

// elevatePriority is a no-op where per-thread nice values are unavailable.
func elevatePriority(nice int) error {
	return nil
}
