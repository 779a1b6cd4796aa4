package storage

import "errors"

// Common storage errors
var (
	// ErrUnknownBackend indicates that the configured storage backend is not supported
	ErrUnknownBackend = errors.New("unknown storage backend")
)
