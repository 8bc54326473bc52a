package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements BlobStore on a single SQLite table. It is the
// engine of choice when the surrounding application already carries a
// SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	logger *logrus.Logger
}

// SQLiteOptions contains configuration options for SQLiteStore.
type SQLiteOptions struct {
	DataDir string
	Logger  *logrus.Logger
}

// NewSQLiteStore opens (or creates) the blob database under DataDir.
func NewSQLiteStore(opts SQLiteOptions) (*SQLiteStore, error) {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}

	dbPath := filepath.Join(opts.DataDir, "state.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}

	s := &SQLiteStore{db: db, logger: opts.Logger}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	opts.Logger.WithField("path", dbPath).Info("SQLite blob store initialized")
	return s, nil
}

// NewSQLiteStoreFromDB wraps an existing database handle. Close becomes
// a no-op for the handle; the owner keeps responsibility for it.
func NewSQLiteStoreFromDB(db *sql.DB, logger *logrus.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = logrus.New()
	}
	s := &SQLiteStore{db: db, logger: logger}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS blobs (
		name TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	_, err := s.db.Exec(query)
	return err
}

// Get retrieves a blob by name.
func (s *SQLiteStore) Get(ctx context.Context, name string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM blobs WHERE name = ?`, name).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get blob: %w", err)
	}
	return data, nil
}

// Set stores a blob, replacing any previous content.
func (s *SQLiteStore) Set(ctx context.Context, name string, data []byte) error {
	query := `
	INSERT INTO blobs (name, data, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(name) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, name, data, time.Now().Unix()); err != nil {
		return fmt.Errorf("failed to store blob: %w", err)
	}
	return nil
}

// Delete removes a blob.
func (s *SQLiteStore) Delete(ctx context.Context, name string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM blobs WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	s.logger.Info("Closing SQLite blob store")
	return s.db.Close()
}

// compile-time interface check
var _ BlobStore = (*SQLiteStore)(nil)
