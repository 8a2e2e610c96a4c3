package model

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks malformed topology, policy or request input.
	ErrConfiguration = errors.New("configuration error")
	// ErrGraphNotInitialized is returned when an analysis runs before Initialize.
	ErrGraphNotInitialized = errors.New("analysis graph not initialized")
	// ErrInvariant marks an internal consistency failure during graph construction.
	ErrInvariant = errors.New("internal invariant violation")
	// ErrNeverDisconnects is returned when a pair stays connected with every link failed.
	ErrNeverDisconnects = errors.New("pair stays connected with every link failed")
)

// ConfigError describes why an input was rejected.
type ConfigError struct {
	Reason string
}

func (e ConfigError) Error() string {
	return "configuration error: " + e.Reason
}

func (e ConfigError) Is(target error) bool {
	return target == ErrConfiguration
}

// Configf builds a ConfigError from a format string.
func Configf(format string, args ...any) error {
	return ConfigError{Reason: fmt.Sprintf(format, args...)}
}

// InvariantError reports a broken node-id/vertex mapping.
type InvariantError struct {
	Detail string
}

func (e InvariantError) Error() string {
	return "internal invariant violation: " + e.Detail
}

func (e InvariantError) Is(target error) bool {
	return target == ErrInvariant
}
