package store

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory BlobStore for tests. FailWrites and
// FailReads inject I/O failures.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte

	FailWrites error // when non-nil, Set returns this error
	FailReads  error // when non-nil, Get returns this error
}

// NewMemoryStore creates an empty in-memory blob store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

// Get retrieves a blob by name.
func (s *MemoryStore) Get(ctx context.Context, name string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.FailReads != nil {
		return nil, s.FailReads
	}
	data, ok := s.blobs[name]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

// Set stores a blob.
func (s *MemoryStore) Set(ctx context.Context, name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWrites != nil {
		return s.FailWrites
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	s.blobs[name] = cp
	return nil
}

// Delete removes a blob.
func (s *MemoryStore) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blobs[name]; !ok {
		return ErrNotFound
	}
	delete(s.blobs, name)
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

// Len reports the number of stored blobs.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

// compile-time interface check
var _ BlobStore = (*MemoryStore)(nil)
