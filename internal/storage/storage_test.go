// internal/storage/storage_test.go
package storage_test

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aeroduel/plane/internal/config"
	"github.com/aeroduel/plane/internal/storage"
	"github.com/aeroduel/plane/internal/storage/memory"
	sqlitestorage "github.com/aeroduel/plane/internal/storage/sqlite"
)

// Compile-time interface checks.
var (
	_ storage.Backend = (*memory.Backend)(nil)
	_ storage.Backend = (*sqlitestorage.Backend)(nil)
)

func TestNewBackend(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name    string
		cfg     config.StorageConfig
		want    any
		wantErr bool
	}{
		{"memory", config.StorageConfig{Type: "memory", MaxEntries: 10}, &memory.Backend{}, false},
		{"sqlite", config.StorageConfig{Type: "sqlite"}, &sqlitestorage.Backend{}, false},
		{"unknown", config.StorageConfig{Type: "postgres"}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := storage.NewBackend(tt.cfg, logger)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "unknown storage type")
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, b)
		})
	}
}
