package settings

import (
	"errors"
	"fmt"
)

// ErrUnregisteredKey is returned when an operation references a key with
// no registered definition. This is a programmer error and is always
// surfaced.
var ErrUnregisteredKey = errors.New("setting not registered")

// ValidationError is returned when a definition's custom validation rule
// or enum membership rejects a value. Message is the human-readable
// rejection, suitable for field-level display.
type ValidationError struct {
	Key     string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// TypeError is returned when a value's runtime type does not match the
// definition's declared type.
type TypeError struct {
	Key      string
	Expected Type
	Got      string
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("expected %s value for %s, got %s", e.Expected, e.Key, e.Got)
}

// RangeError is returned when a numeric value violates the definition's
// min/max bounds.
type RangeError struct {
	Key     string
	Message string
}

func (e *RangeError) Error() string { return e.Message }

// StorageError wraps a persistent-store failure. The in-memory value has
// already been published when this is returned; storage is best-effort
// durability.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("settings storage %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
