package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

var mysqlDialect = dialect{
	name: "mysql",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS kv_records (
			record_key VARCHAR(512) PRIMARY KEY,
			value MEDIUMBLOB NOT NULL,
			updated_at DATETIME(6)
		)`,
		`CREATE TABLE IF NOT EXISTS kv_log (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			record_key VARCHAR(512) NOT NULL,
			line MEDIUMBLOB NOT NULL,
			created_at DATETIME(6),
			INDEX idx_kv_log_key (record_key)
		)`,
	},
	selectOne: `SELECT value FROM kv_records WHERE record_key = ?`,
	lockOne:   `SELECT value FROM kv_records WHERE record_key = ? FOR UPDATE`,
	upsert: `INSERT INTO kv_records (record_key, value, updated_at) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE value = VALUES(value), updated_at = VALUES(updated_at)`,
}

// NewMySQLStore connects to MySQL and creates the store tables
func NewMySQLStore(dsn string, logger *zap.Logger) (*SQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL database: %w", err)
	}
	db.SetConnMaxLifetime(5 * time.Minute)

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to MySQL database: %w", err)
	}

	s, err := NewMySQLStoreWithDB(db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewMySQLStoreWithDB builds a MySQL store on an existing connection pool
func NewMySQLStoreWithDB(db *sql.DB, logger *zap.Logger) (*SQLStore, error) {
	return newSQLStore(context.Background(), db, mysqlDialect, logger)
}
