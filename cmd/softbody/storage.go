package main

import (
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/OCAP2/softbody/internal/database"
	"github.com/OCAP2/softbody/internal/storage"
)

// backendDB returns the gorm connection behind the SQL backends, nil for
// the others.
func backendDB(b storage.Backend) *gorm.DB {
	if s, ok := b.(interface{ DB() *gorm.DB }); ok {
		return s.DB()
	}
	return nil
}

// openDB connects to the SQLite file at path, or to the configured Postgres
// database when path is empty. Unlike Manager.Connect it does not fall back
// to an empty in-memory database.
func openDB(log zerolog.Logger, path string) (*database.Manager, error) {
	m := database.NewManager(log)
	if path != "" {
		if err := m.ConnectSQLite(path); err != nil {
			return nil, err
		}
		return m, nil
	}

	db, err := m.GetPostgresDB()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	m.DB = db
	if m.SqlDB, err = db.DB(); err != nil {
		return nil, fmt.Errorf("failed to access sql interface: %w", err)
	}
	if err := m.SqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to validate connection: %w", err)
	}
	m.SqlDB.SetMaxOpenConns(10)
	m.IsValid = true
	return m, nil
}
