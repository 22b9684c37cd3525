package storage

import (
	"fmt"
	"log/slog"

	"github.com/rs/zerolog"

	"github.com/OCAP2/softbody/internal/config"
	"github.com/OCAP2/softbody/internal/storage/memory"
	"github.com/OCAP2/softbody/internal/storage/postgres"
	sqlitestorage "github.com/OCAP2/softbody/internal/storage/sqlite"
	"github.com/OCAP2/softbody/internal/storage/websocket"
)

// NewBackend creates a storage backend based on configuration. The SQL
// backends log through zl, the websocket backend through sl.
func NewBackend(cfg config.StorageConfig, zl zerolog.Logger, sl *slog.Logger) (Backend, error) {
	switch cfg.Type {
	case "postgres":
		return postgres.New(postgres.Dependencies{Logger: zl}), nil
	case "sqlite":
		return sqlitestorage.New(cfg.SQLite, zl)
	case "websocket":
		return websocket.New(cfg.WebSocket, sl), nil
	case "memory", "":
		return memory.New(cfg.Memory), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
