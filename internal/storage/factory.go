// internal/storage/factory.go
package storage

import (
	"fmt"
	"log/slog"

	"github.com/aeroduel/plane/internal/config"
	"github.com/aeroduel/plane/internal/storage/memory"
	sqlitestorage "github.com/aeroduel/plane/internal/storage/sqlite"
)

// NewBackend creates a journal backend based on configuration
func NewBackend(cfg config.StorageConfig, logger *slog.Logger) (Backend, error) {
	switch cfg.Type {
	case "sqlite":
		return sqlitestorage.New(sqlitestorage.Config{
			FlushInterval: cfg.SQLite.FlushInterval,
			MaxEntries:    cfg.MaxEntries,
		}, logger), nil
	case "memory":
		return memory.New(cfg.MaxEntries), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
