package database

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/softbody/internal/model"
)

func newFileManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(zerolog.Nop())
	require.NoError(t, m.ConnectSQLite(filepath.Join(t.TempDir(), "sim.db")))
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestConnectSQLite_Setup(t *testing.T) {
	m := newFileManager(t)
	assert.True(t, m.IsValid)
	assert.True(t, m.ShouldSaveLocal)

	require.NoError(t, m.Setup())
	for _, tbl := range model.DatabaseModels {
		assert.True(t, m.DB.Migrator().HasTable(tbl))
	}
}

func TestSetup_NotConnected(t *testing.T) {
	m := NewManager(zerolog.Nop())
	assert.Error(t, m.Setup())
}

func TestDumpToDisk(t *testing.T) {
	m := newFileManager(t)
	require.NoError(t, m.Setup())
	require.NoError(t, m.DB.Create(&model.Session{ID: "s1", Name: "dump"}).Error)

	out := filepath.Join(t.TempDir(), "nested", "dump.db")
	m.SqliteFilePath = out
	require.NoError(t, m.DumpMemoryToDisk())
	// a second dump replaces the file
	require.NoError(t, m.DumpMemoryToDisk())

	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	copyDB := NewManager(zerolog.Nop())
	require.NoError(t, copyDB.ConnectSQLite(out))
	t.Cleanup(func() { _ = copyDB.Close() })
	var s model.Session
	require.NoError(t, copyDB.DB.First(&s, "id = ?", "s1").Error)
	assert.Equal(t, "dump", s.Name)
}

func TestDumpToDisk_NoPath(t *testing.T) {
	m := newFileManager(t)
	assert.Error(t, DumpToDisk(m.DB, ""))
}

func TestGetBackupDBPaths(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.db", "b.db", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.db"), 0o755))

	paths, err := GetBackupDBPaths(dir)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{filepath.Join(dir, "a.db"), filepath.Join(dir, "b.db")}, paths)
}

func TestPostgresDSN(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("db.host", "db.internal")
	viper.Set("db.port", "5433")
	viper.Set("db.username", "sim")
	viper.Set("db.password", "pw")
	viper.Set("db.database", "softbody")

	assert.Equal(t, "host=db.internal port=5433 user=sim password=pw dbname=softbody sslmode=disable", PostgresDSN())
}

func TestGormWriter_LogsWarn(t *testing.T) {
	var buf bytes.Buffer
	w := gormWriter{log: zerolog.New(&buf)}
	w.Printf("slow query %d ms\n", 900)
	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.Contains(t, buf.String(), "slow query 900 ms")
}
