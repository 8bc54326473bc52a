package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	pebble "github.com/cockroachdb/pebble/v2"
	"github.com/sirupsen/logrus"
)

// PebbleStore implements BlobStore using Pebble (CockroachDB's LSM
// engine). Unlike BadgerDB, Pebble's WAL survives crashes without
// corrupting the MANIFEST.
type PebbleStore struct {
	db     *pebble.DB
	logger *logrus.Logger
}

// PebbleOptions contains configuration options for PebbleStore.
type PebbleOptions struct {
	DataDir string
	Logger  *logrus.Logger
}

// NewPebbleStore opens a Pebble-backed blob store under DataDir.
func NewPebbleStore(opts PebbleOptions) (*PebbleStore, error) {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}

	dbPath := filepath.Join(opts.DataDir, "state")
	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	db, err := pebble.Open(dbPath, &pebble.Options{
		Logger: &pebbleLogger{logger: opts.Logger},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db: %w", err)
	}

	opts.Logger.WithField("path", dbPath).Info("Pebble blob store initialized")

	return &PebbleStore{db: db, logger: opts.Logger}, nil
}

// Get retrieves a blob by name and returns a safe copy of the value.
func (s *PebbleStore) Get(ctx context.Context, name string) ([]byte, error) {
	val, closer, err := s.db.Get([]byte(name))
	if err == pebble.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	data := make([]byte, len(val))
	copy(data, val)
	_ = closer.Close()
	return data, nil
}

// Set stores a blob.
func (s *PebbleStore) Set(ctx context.Context, name string, data []byte) error {
	return s.db.Set([]byte(name), data, pebble.Sync)
}

// Delete removes a blob.
func (s *PebbleStore) Delete(ctx context.Context, name string) error {
	if _, closer, err := s.db.Get([]byte(name)); err == pebble.ErrNotFound {
		return ErrNotFound
	} else if err == nil {
		_ = closer.Close()
	}
	return s.db.Delete([]byte(name), pebble.Sync)
}

// Close closes the underlying Pebble database.
func (s *PebbleStore) Close() error {
	s.logger.Info("Closing Pebble blob store")
	return s.db.Close()
}

// compile-time interface check
var _ BlobStore = (*PebbleStore)(nil)

// pebbleLogger adapts logrus to pebble's Logger interface (Infof + Fatalf).
type pebbleLogger struct {
	logger *logrus.Logger
}

func (l *pebbleLogger) Infof(format string, args ...interface{}) {
	l.logger.Debugf("[Pebble] "+format, args...)
}

func (l *pebbleLogger) Errorf(format string, args ...interface{}) {
	l.logger.Errorf("[Pebble] "+format, args...)
}

func (l *pebbleLogger) Fatalf(format string, args ...interface{}) {
	l.logger.Fatalf("[Pebble] "+format, args...)
}
