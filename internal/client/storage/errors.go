package storage

import "errors"

// Common client storage errors
var (
	// ErrStorageClosed indicates that storage is closed
	ErrStorageClosed = errors.New("storage is closed")

	// ErrCorruptedRecord indicates that a stored value could not be decoded
	ErrCorruptedRecord = errors.New("stored record is corrupted")
)
