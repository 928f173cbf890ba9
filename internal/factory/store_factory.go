package factory

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mikey/sift-mail/internal/adapters/store"
	"github.com/mikey/sift-mail/internal/config"
	"github.com/mikey/sift-mail/internal/core"
	"go.uber.org/zap"
)

// StoreFactory creates key-value stores based on configuration
type StoreFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewStoreFactory creates a new store factory
func NewStoreFactory(cfg *config.Config, logger *zap.Logger) *StoreFactory {
	return &StoreFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateStore creates a key-value store based on the configuration
func (f *StoreFactory) CreateStore() (core.KeyValueStore, error) {
	sc := f.cfg.GetStore()
	logger := f.logger.Named("store")

	switch sc.Type {
	case "memory":
		logger.Warn("Using in-memory store, state is lost on restart")
		return store.NewMemoryStore(logger), nil
	case "file":
		return store.NewFileStore(sc.DataDir, logger)
	case "sqlite":
		// Ensure directory exists
		if err := os.MkdirAll(filepath.Dir(sc.SQLitePath), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create SQLite directory: %w", err)
		}
		return store.NewSQLiteStore(sc.SQLitePath, logger)
	case "mysql":
		if sc.MySQLDSN == "" {
			return nil, fmt.Errorf("store.mysql_dsn is required for the mysql store")
		}
		return store.NewMySQLStore(sc.MySQLDSN, logger)
	case "redis":
		return store.NewRedisStore(sc.RedisAddr, sc.RedisPassword, sc.RedisDB, sc.RedisPrefix, logger)
	default:
		return nil, fmt.Errorf("unsupported store type: %s", sc.Type)
	}
}
