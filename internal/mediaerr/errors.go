// Package mediaerr defines the error taxonomy shared by the storage backends,
// the catalog and the variant pipeline.
package mediaerr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a media item, variant or stored object is absent.
	ErrNotFound = errors.New("not found")

	// ErrUnsupportedSize is returned when a preset kind is not in the preset table.
	ErrUnsupportedSize = errors.New("unsupported size")

	// ErrInvalidArgument is returned for malformed requests (missing custom
	// dimensions, unknown format or fit mode).
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrGeneration classifies transform, encode and persist failures of a single variant.
	ErrGeneration = errors.New("variant generation failed")

	// ErrStorageRead classifies backend read failures other than not-found.
	ErrStorageRead = errors.New("storage read failed")

	// ErrStorageWrite classifies backend write and delete failures.
	ErrStorageWrite = errors.New("storage write failed")
)

// StorageError describes a provider I/O failure on one key.
type StorageError struct {
	Op    string
	Key   string
	Write bool
	Err   error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Key, e.Err)
}

// Unwrap exposes both the classification sentinel and the provider error.
func (e *StorageError) Unwrap() []error {
	kind := ErrStorageRead
	if e.Write {
		kind = ErrStorageWrite
	}
	return []error{kind, e.Err}
}

// ReadError wraps a provider error as a StorageReadError.
func ReadError(op, key string, err error) error {
	return &StorageError{Op: op, Key: key, Err: err}
}

// WriteError wraps a provider error as a StorageWriteError.
func WriteError(op, key string, err error) error {
	return &StorageError{Op: op, Key: key, Write: true, Err: err}
}

// NotFound returns an error wrapping ErrNotFound for the named entity.
func NotFound(what, id string) error {
	return fmt.Errorf("%s %q: %w", what, id, ErrNotFound)
}

// Invalid returns an error wrapping ErrInvalidArgument.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInvalidArgument)
}

// IsNotFound reports whether err is, or wraps, ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
