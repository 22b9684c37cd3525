package convert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/softbody/internal/geo"
	"github.com/OCAP2/softbody/pkg/core"
)

func sampleSnapshot() core.Snapshot {
	s := core.Snapshot{
		Vehicle: 3,
		Tick:    120,
		SimTime: 2,
		Wall:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		State:   core.StateSimulated,
		Nodes:   []float32{10, 1.5, -20, 11, 1.5, -20},
		Wheels:  []core.WheelSample{{Speed: 4, Rotation: 1.2, Slip: 0.1}},
		RPM:     2200,
		Gear:    3,
		Speed:   14.5,
		Lights:  core.LightHeadlights | core.LightBrake,
		Turbo:   6,
	}
	s.SetBroken(70)
	return s
}

func TestSessionRoundTrip(t *testing.T) {
	s := core.Session{
		ID:        "3f1c2f34-3a5e-4c1a-9b7e-0d8f58d8b6a1",
		Name:      "quarry",
		StartedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		TickHz:    60,
		Origin:    core.GeoOrigin{Lat: 10, Lon: 20},
	}
	p, err := geo.NewProjector(s.Origin)
	require.NoError(t, err)

	m := CoreToSession(s, p)
	assert.False(t, m.Origin.IsEmpty())
	assert.Equal(t, s, SessionToCore(m))

	assert.True(t, CoreToSession(s, nil).Origin.IsEmpty())
}

func TestVehicleRoundTrip(t *testing.T) {
	v := core.VehicleRecord{ID: 4, Name: "truck", Nodes: 120, Beams: 400, SpawnTick: 9, SpawnedAt: time.Unix(100, 0).UTC()}
	m := CoreToVehicle("sess", v)
	assert.Equal(t, "sess", m.SessionID)
	assert.Equal(t, 4, m.VehicleID)
	assert.Equal(t, v, VehicleToCore(m))
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := sampleSnapshot()
	p, err := geo.NewProjector(core.GeoOrigin{})
	require.NoError(t, err)

	m, err := CoreToSnapshot("sess", &s, p)
	require.NoError(t, err)
	assert.Equal(t, "sess", m.SessionID)
	assert.Equal(t, "simulated", m.State)
	assert.Equal(t, float32(1.5), m.Elevation)
	c, ok := m.Position.Coordinates()
	require.True(t, ok)
	assert.InDelta(t, 10, c.X, 1e-6)
	assert.InDelta(t, 20, c.Y, 1e-6)

	back, err := SnapshotToCore(m)
	require.NoError(t, err)
	assert.Equal(t, s, back)
	assert.True(t, back.IsBroken(70))
}

func TestCoreToSnapshot_EmptySlices(t *testing.T) {
	s := core.Snapshot{Vehicle: 1, State: core.StateSleeping}
	m, err := CoreToSnapshot("sess", &s, nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(m.Nodes))
	assert.Equal(t, "[]", string(m.Wheels))
	assert.True(t, m.Position.IsEmpty())

	back, err := SnapshotToCore(m)
	require.NoError(t, err)
	assert.Nil(t, back.Nodes)
	assert.Nil(t, back.Wheels)
}

func TestSnapshotToCore_BadJSON(t *testing.T) {
	s := sampleSnapshot()
	m, err := CoreToSnapshot("sess", &s, nil)
	require.NoError(t, err)
	m.Nodes = []byte(`{`)
	_, err = SnapshotToCore(m)
	assert.Error(t, err)
}

func TestEventRoundTrip(t *testing.T) {
	e := core.NewEvent(core.EventHookLock, 2)
	e.Tick = 33
	e.SimTime = 0.55
	e.Node = 7
	e.Other = core.NodeRef{Vehicle: 5, Node: 12}
	e.Value = 1

	m := CoreToEvent("sess", e)
	assert.Equal(t, "hook_lock", m.Kind)
	assert.Equal(t, 5, m.OtherVehicle)
	assert.Equal(t, e, EventToCore(m))
}

func TestSaveRoundTrip(t *testing.T) {
	st := core.SaveState{
		Vehicle: 1,
		Name:    "crane",
		SimTime: 12.5,
		State:   core.StateSimulated,
		Nodes:   []core.NodeSave{{Pos: [3]float64{1, 2, 3}}},
		Beams:   []core.BeamSave{{L: 1.5, Strength: 1e6}},
		Engine:  &core.EngineSave{RPM: 800, Gear: 1, Running: true},
	}
	m, err := CoreToSave("sess", 750, st)
	require.NoError(t, err)
	assert.Equal(t, uint64(750), m.Tick)
	assert.Equal(t, "crane", m.Name)

	back, err := SaveToCore(m)
	require.NoError(t, err)
	assert.Equal(t, st, back)
}
