package timeline

import (
	"errors"

	"github.com/roach88/showclock/internal/settings"
	"github.com/roach88/showclock/internal/source"
)

var (
	// ErrConfiguration marks invalid or missing settings that were replaced
	// by defaults.
	ErrConfiguration = settings.ErrConfiguration

	// ErrState marks a control that is invalid for the active clock source
	// or frame bounds. It is absorbed and reported as a state event.
	ErrState = errors.New("invalid clock state transition")

	// ErrTeardown marks a source goroutine that missed its exit deadline.
	ErrTeardown = source.ErrTeardown

	// ErrClosed is returned by Run on a timeline that was already closed.
	ErrClosed = errors.New("timeline closed")
)
