package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mikey/sift-mail/internal/core"
	"go.uber.org/zap"
)

// dialect holds the statements that differ between SQL backends
type dialect struct {
	name      string
	schema    []string
	selectOne string
	lockOne   string
	upsert    string
}

// SQLStore is a database/sql implementation of the KeyValueStore interface.
// Values live in kv_records, logs in kv_log.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	logger  *zap.Logger
	now     func() time.Time
}

func newSQLStore(ctx context.Context, db *sql.DB, d dialect, logger *zap.Logger) (*SQLStore, error) {
	for _, stmt := range d.schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to create %s schema: %w", d.name, err)
		}
	}
	return &SQLStore{
		db:      db,
		dialect: d,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// Get retrieves the value of a key
func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, s.dialect.selectOne, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to query record: %w", err)
	}
	return value, nil
}

// Put stores the value of a key
func (s *SQLStore) Put(ctx context.Context, key string, value []byte) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.upsert, key, nonNil(value), s.now().UTC()); err != nil {
		return fmt.Errorf("failed to store record: %w", err)
	}
	return nil
}

// Update atomically replaces the value of a key inside a transaction
func (s *SQLStore) Update(ctx context.Context, key string, fn func(current []byte) ([]byte, error)) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var current []byte
	err = tx.QueryRowContext(ctx, s.dialect.lockOne, key).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to query record: %w", err)
	}

	next, err := fn(current)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, s.dialect.upsert, key, nonNil(next), s.now().UTC()); err != nil {
		return fmt.Errorf("failed to store record: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Append adds a line to the log of a key
func (s *SQLStore) Append(ctx context.Context, key string, line []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv_log (record_key, line, created_at) VALUES (?, ?, ?)`,
		key, nonNil(line), s.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to append log line: %w", err)
	}
	return nil
}

// ReadLines returns the log of a key, oldest first
func (s *SQLStore) ReadLines(ctx context.Context, key string) ([][]byte, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT line FROM kv_log WHERE record_key = ? ORDER BY id`, key)
	if err != nil {
		return nil, fmt.Errorf("failed to query log: %w", err)
	}
	defer rows.Close()

	lines := make([][]byte, 0)
	for rows.Next() {
		var line []byte
		if err := rows.Scan(&line); err != nil {
			return nil, fmt.Errorf("failed to scan log line: %w", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read log: %w", err)
	}
	return lines, nil
}

// Delete removes the value and the log of a key
func (s *SQLStore) Delete(ctx context.Context, key string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM kv_records WHERE record_key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM kv_log WHERE record_key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete log: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	if rowsAffected, err := result.RowsAffected(); err != nil {
		s.logger.Warn("Failed to get rows affected during delete", zap.Error(err))
	} else {
		s.logger.Debug("Deleted store key",
			zap.String("backend", s.dialect.name),
			zap.String("key", key),
			zap.Int64("log_lines", rowsAffected))
	}
	return nil
}

// Stop closes the database connection
func (s *SQLStore) Stop() {
	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close database", zap.String("backend", s.dialect.name), zap.Error(err))
	}
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
