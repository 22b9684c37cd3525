package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/OCAP2/softbody/internal/storage/memory/export/v1"
	"github.com/OCAP2/softbody/pkg/core"
)

func TestLoadSession_RoundTrip(t *testing.T) {
	b, db := newTestBackend(t)
	require.NoError(t, b.StartSession(testSession()))

	require.NoError(t, b.AddVehicle(&core.VehicleRecord{ID: 0, Name: "truck", Nodes: 2, Beams: 3}))
	require.NoError(t, b.AddVehicle(&core.VehicleRecord{ID: 1, Name: "trailer", Nodes: 1}))
	for tick := uint64(1); tick <= 2; tick++ {
		snap := &core.Snapshot{
			Vehicle: 0, Tick: tick, SimTime: float64(tick) / 60, State: core.StateSimulated,
			Nodes: []float32{float32(tick), 1, 0, 0, 0, 0}, Speed: 4,
		}
		if tick == 2 {
			snap.SetBroken(2)
		}
		require.NoError(t, b.RecordSnapshot(snap))
	}
	ev := core.NewEvent(core.EventBeamBroken, 0)
	ev.Beam = 2
	ev.Tick = 2
	require.NoError(t, b.RecordEvent(&ev))
	require.NoError(t, b.SaveState(2, &core.SaveState{Vehicle: 0, SimTime: 2.0 / 60}))
	require.NoError(t, b.RemoveVehicle(1, 5))
	require.NoError(t, b.EndSession())

	data, err := LoadSession(db, testSession().ID)
	require.NoError(t, err)
	assert.Equal(t, "test", data.Session.Name)
	assert.Equal(t, 52.5, data.Session.Origin.Lat)
	require.Len(t, data.Vehicles, 2)
	assert.Len(t, data.Vehicles[0].Snapshots, 2)
	assert.Len(t, data.Vehicles[0].Saves, 1)
	require.NotNil(t, data.Vehicles[1].RemovedTick)
	assert.Equal(t, uint64(5), *data.Vehicles[1].RemovedTick)
	require.Len(t, data.Events, 1)
	assert.Equal(t, core.EventBeamBroken, data.Events[0].Kind)

	export := v1.Build(data)
	assert.Equal(t, v1.FormatVersion, export.Format)
	assert.Equal(t, uint64(5), export.EndTick)
	require.Len(t, export.Vehicles, 2)
	truck := export.Vehicles[0]
	assert.Equal(t, "truck", truck.Name)
	assert.Len(t, truck.Frames, 2)
	assert.Equal(t, []int{2}, truck.Broken)
	assert.Equal(t, 1, truck.Saves)
	assert.Contains(t, truck.Track, "LINESTRING")
}

func TestLoadSession_NotFound(t *testing.T) {
	_, db := newTestBackend(t)
	_, err := LoadSession(db, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestListSessions(t *testing.T) {
	b, db := newTestBackend(t)
	older := testSession()
	older.StartedAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, b.StartSession(older))

	newer := testSession()
	newer.ID = "5d0c3c8e-2222-4000-8000-000000000000"
	newer.Name = "newer"
	require.NoError(t, b.StartSession(newer))

	sessions, err := ListSessions(db)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "newer", sessions[0].Name)
}
