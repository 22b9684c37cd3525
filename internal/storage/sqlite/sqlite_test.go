package sqlitestorage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/OCAP2/softbody/internal/config"
	"github.com/OCAP2/softbody/internal/model"
	"github.com/OCAP2/softbody/pkg/core"
)

func TestEndSession_DumpsToDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "session.db")
	b, err := New(config.SQLiteConfig{DumpPath: path}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, b.Init())
	defer b.Close()

	require.NoError(t, b.StartSession(&core.Session{ID: "sqlite-dump-test", Name: "dump", StartedAt: time.Now()}))
	require.NoError(t, b.AddVehicle(&core.VehicleRecord{ID: 1, Name: "car"}))
	require.NoError(t, b.RecordSnapshot(&core.Snapshot{Vehicle: 1, Tick: 1, Nodes: []float32{0, 1, 0}}))
	require.NoError(t, b.EndSession())

	assert.Equal(t, path, b.GetExportedFilePath())
	_, err = os.Stat(path)
	require.NoError(t, err)

	disk, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	require.NoError(t, err)
	var n int64
	require.NoError(t, disk.Model(&model.VehicleSnapshot{}).Where("session_id = ?", "sqlite-dump-test").Count(&n).Error)
	assert.Equal(t, int64(1), n)
	sqlDB, _ := disk.DB()
	sqlDB.Close()
}

func TestDump_NoPath(t *testing.T) {
	b, err := New(config.SQLiteConfig{}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, b.Init())
	defer b.Close()

	require.NoError(t, b.Dump())
	assert.Empty(t, b.GetExportedFilePath())
}

func TestDumpLoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loop.db")
	b, err := New(config.SQLiteConfig{DumpPath: path, DumpInterval: 20 * time.Millisecond}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, b.Init())

	assert.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, b.Close())
}
