// Package store provides the persistent blob store used by the settings
// and diagnostics engines: named byte blobs with last-write-wins
// semantics, behind a small interface with pluggable engines.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a named blob does not exist.
var ErrNotFound = errors.New("blob not found")

// BlobStore is the persistence contract consumed by the engines. Each
// engine keeps its entire state in a single named blob, so Set is always
// a full replacement.
//
// Implementations must be safe for concurrent use; callers serialize
// writes to a given name themselves.
type BlobStore interface {
	// Get retrieves a blob by name. Returns ErrNotFound if absent.
	Get(ctx context.Context, name string) ([]byte, error)

	// Set stores a blob under name, replacing any previous content.
	Set(ctx context.Context, name string, data []byte) error

	// Delete removes a blob. Returns ErrNotFound if absent.
	Delete(ctx context.Context, name string) error

	// Close releases the underlying engine.
	Close() error
}
