package seltree

import (
	"errors"
	"fmt"
)

var (
	ErrNodeNotFound      = errors.New("node not found")
	ErrDuplicatePosition = errors.New("duplicate child position")
	ErrTooManyChildren   = errors.New("too many children")
	ErrFrozen            = errors.New("selection tree is frozen")
	ErrBroken            = errors.New("selection tree booking failed, the tree must be rebuilt")
)

// ConfigError is a booking or registration failure caused by the analysis
// description. It is never retried.
type ConfigError struct {
	Op       string
	Position string
	Name     string
	Err      error
}

func (e *ConfigError) Error() string {
	msg := "seltree: " + e.Op
	if e.Name != "" {
		msg += fmt.Sprintf(" %q", e.Name)
	}
	if e.Position == Root {
		msg += " at root"
	} else {
		msg += fmt.Sprintf(" at position %q", e.Position)
	}
	return msg + ": " + e.Err.Error()
}

func (e *ConfigError) Unwrap() error { return e.Err }
