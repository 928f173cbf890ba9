package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

var sqliteDialect = dialect{
	name: "sqlite",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS kv_records (
			record_key TEXT PRIMARY KEY,
			value BLOB NOT NULL,
			updated_at TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS kv_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			record_key TEXT NOT NULL,
			line BLOB NOT NULL,
			created_at TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_kv_log_key ON kv_log(record_key)`,
	},
	selectOne: `SELECT value FROM kv_records WHERE record_key = ?`,
	lockOne:   `SELECT value FROM kv_records WHERE record_key = ?`,
	upsert: `INSERT INTO kv_records (record_key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(record_key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
}

// NewSQLiteStore opens a SQLite database and creates the store tables
func NewSQLiteStore(dbPath string, logger *zap.Logger) (*SQLStore, error) {
	db, err := sql.Open("sqlite3", sqliteDSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// One connection serializes every transaction, which makes Update atomic.
	db.SetMaxOpenConns(1)

	s, err := newSQLStore(context.Background(), db, sqliteDialect, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func sqliteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	return path + "?_busy_timeout=5000&_foreign_keys=on"
}
