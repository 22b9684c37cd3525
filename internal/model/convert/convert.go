package convert

import (
	"encoding/json"
	"fmt"

	"github.com/OCAP2/softbody/internal/model"
	"github.com/OCAP2/softbody/pkg/core"
)

func fromJSON[T any](data []byte) ([]T, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var out []T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

// SessionToCore converts a GORM model.Session to a core.Session.
func SessionToCore(s model.Session) core.Session {
	return core.Session{
		ID:        s.ID,
		Name:      s.Name,
		StartedAt: s.StartedAt,
		TickHz:    s.TickHz,
		Origin:    core.GeoOrigin{Lat: s.OriginLat, Lon: s.OriginLon},
	}
}

// VehicleToCore converts a GORM model.Vehicle to a core.VehicleRecord.
func VehicleToCore(v model.Vehicle) core.VehicleRecord {
	return core.VehicleRecord{
		ID:        core.VehicleID(v.VehicleID),
		Name:      v.Name,
		Nodes:     v.Nodes,
		Beams:     v.Beams,
		SpawnTick: v.SpawnTick,
		SpawnedAt: v.SpawnedAt,
	}
}

// SnapshotToCore converts a GORM model.VehicleSnapshot to a core.Snapshot.
// Node positions come from the JSON column, not the projected point.
func SnapshotToCore(m model.VehicleSnapshot) (core.Snapshot, error) {
	nodes, err := fromJSON[float32](m.Nodes)
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("snapshot %d nodes: %w", m.ID, err)
	}
	broken, err := fromJSON[uint64](m.Broken)
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("snapshot %d broken beams: %w", m.ID, err)
	}
	wheels, err := fromJSON[core.WheelSample](m.Wheels)
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("snapshot %d wheels: %w", m.ID, err)
	}
	return core.Snapshot{
		Vehicle: core.VehicleID(m.VehicleID),
		Tick:    m.Tick,
		SimTime: m.SimTime,
		Wall:    m.Time,
		State:   core.VehicleState(m.State),
		Nodes:   nodes,
		Broken:  broken,
		Wheels:  wheels,
		RPM:     m.RPM,
		Gear:    m.Gear,
		Speed:   m.Speed,
		Lights:  m.Lights,
		Turbo:   m.Turbo,
	}, nil
}

// EventToCore converts a GORM model.SimEvent to a core.Event.
func EventToCore(e model.SimEvent) core.Event {
	return core.Event{
		Kind:    core.EventKind(e.Kind),
		Vehicle: core.VehicleID(e.VehicleID),
		Tick:    e.Tick,
		SimTime: e.SimTime,
		Code:    e.Code,
		Beam:    e.Beam,
		Node:    e.Node,
		Other:   core.NodeRef{Vehicle: core.VehicleID(e.OtherVehicle), Node: e.OtherNode},
		Value:   e.Value,
		Msg:     e.Message,
	}
}

// SaveToCore converts a GORM model.SavedState to a core.SaveState.
func SaveToCore(m model.SavedState) (core.SaveState, error) {
	var st core.SaveState
	if err := json.Unmarshal(m.State, &st); err != nil {
		return core.SaveState{}, fmt.Errorf("saved state %d: %w", m.ID, err)
	}
	return st, nil
}
