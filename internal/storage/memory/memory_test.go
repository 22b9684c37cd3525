package memory_test

import (
	"compress/gzip"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/softbody/internal/config"
	"github.com/OCAP2/softbody/internal/storage"
	"github.com/OCAP2/softbody/internal/storage/memory"
	v1 "github.com/OCAP2/softbody/internal/storage/memory/export/v1"
	"github.com/OCAP2/softbody/pkg/core"
)

var (
	_ storage.Backend    = (*memory.Backend)(nil)
	_ storage.Saver      = (*memory.Backend)(nil)
	_ storage.Uploadable = (*memory.Backend)(nil)
)

func testSession() *core.Session {
	return &core.Session{
		ID:        "0b6c2c1e-0000-4000-8000-000000000001",
		Name:      "test: yard",
		StartedAt: time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC),
		TickHz:    60,
		Origin:    core.GeoOrigin{Lat: 48.1, Lon: 11.5},
	}
}

func record(t *testing.T, b *memory.Backend) {
	t.Helper()
	require.NoError(t, b.StartSession(testSession()))
	require.NoError(t, b.AddVehicle(&core.VehicleRecord{ID: 1, Name: "truck", Nodes: 1, Beams: 2}))
	for tick := uint64(1); tick <= 3; tick++ {
		require.NoError(t, b.RecordSnapshot(&core.Snapshot{
			Vehicle: 1,
			Tick:    tick,
			State:   core.StateSimulated,
			Nodes:   []float32{float32(tick), 1, 0},
		}))
	}
	ev := core.NewEvent(core.EventSpawn, 1)
	require.NoError(t, b.RecordEvent(&ev))
	require.NoError(t, b.RemoveVehicle(1, 3))
}

func TestRecording(t *testing.T) {
	b := memory.New(config.MemoryConfig{OutputDir: t.TempDir()})
	require.NoError(t, b.Init())
	defer b.Close()

	record(t, b)

	vehicles, snapshots, events := b.Counts()
	assert.Equal(t, 1, vehicles)
	assert.Equal(t, 3, snapshots)
	assert.Equal(t, 1, events)

	v, ok := b.GetVehicle(1)
	require.True(t, ok)
	assert.Equal(t, "truck", v.Name)

	_, ok = b.GetVehicle(9)
	assert.False(t, ok)
}

func TestRecordSnapshot_CopiesSlices(t *testing.T) {
	b := memory.New(config.MemoryConfig{OutputDir: t.TempDir()})
	require.NoError(t, b.StartSession(testSession()))
	require.NoError(t, b.AddVehicle(&core.VehicleRecord{ID: 1}))

	s := &core.Snapshot{Vehicle: 1, Nodes: []float32{1, 2, 3}}
	require.NoError(t, b.RecordSnapshot(s))
	s.Nodes[0] = 99

	require.NoError(t, b.SaveState(1, &core.SaveState{Vehicle: 1}))
	require.NoError(t, b.EndSession())

	data := readExport(t, b.GetExportedFilePath(), false)
	require.Len(t, data.Vehicles, 1)
	pos := data.Vehicles[0].Frames[0][3].([]any)
	assert.Equal(t, 1.0, pos[0])
}

func TestRecordSnapshot_UnknownVehicle(t *testing.T) {
	b := memory.New(config.MemoryConfig{})
	require.NoError(t, b.StartSession(testSession()))
	require.NoError(t, b.RecordSnapshot(&core.Snapshot{Vehicle: 5}))

	_, snapshots, _ := b.Counts()
	assert.Equal(t, 0, snapshots)
}

func TestSaveAndLoadState(t *testing.T) {
	b := memory.New(config.MemoryConfig{})
	require.NoError(t, b.StartSession(testSession()))
	require.NoError(t, b.AddVehicle(&core.VehicleRecord{ID: 2}))

	_, ok, err := b.LoadState(2)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.SaveState(10, &core.SaveState{Vehicle: 2, SimTime: 1}))
	require.NoError(t, b.SaveState(20, &core.SaveState{Vehicle: 2, SimTime: 2}))

	st, ok, err := b.LoadState(2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2.0, st.SimTime)
}

func TestStartSession_Resets(t *testing.T) {
	b := memory.New(config.MemoryConfig{OutputDir: t.TempDir()})
	record(t, b)
	require.NoError(t, b.StartSession(testSession()))

	vehicles, snapshots, events := b.Counts()
	assert.Zero(t, vehicles)
	assert.Zero(t, snapshots)
	assert.Zero(t, events)
	assert.Empty(t, b.GetExportedFilePath())
}

func TestEndSession_WithoutStart(t *testing.T) {
	b := memory.New(config.MemoryConfig{OutputDir: t.TempDir()})
	require.NoError(t, b.EndSession())
	assert.Empty(t, b.GetExportedFilePath())
}

func readExport(t *testing.T, path string, compressed bool) v1.Export {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var dec *json.Decoder
	if compressed {
		gz, err := gzip.NewReader(f)
		require.NoError(t, err)
		defer gz.Close()
		dec = json.NewDecoder(gz)
	} else {
		dec = json.NewDecoder(f)
	}
	var out v1.Export
	require.NoError(t, dec.Decode(&out))
	return out
}
