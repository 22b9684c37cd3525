// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"encoding/json"
	"fmt"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"

	"github.com/OCAP2/softbody/internal/geo"
	"github.com/OCAP2/softbody/internal/model"
	"github.com/OCAP2/softbody/internal/vmath"
	"github.com/OCAP2/softbody/pkg/core"
)

// toJSON marshals v for a JSON column, "[]" for empty slices.
func toJSON[T any](v []T) (datatypes.JSON, error) {
	if len(v) == 0 {
		return datatypes.JSON("[]"), nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(data), nil
}

// CoreToSession converts a core.Session to a GORM model.Session. The origin
// point is left empty when p is nil.
func CoreToSession(s core.Session, p *geo.Projector) model.Session {
	origin := geom.NewEmptyPoint(geom.DimXYZ)
	if p != nil {
		origin = p.Point(vmath.Zero)
	}
	return model.Session{
		ID:        s.ID,
		Name:      s.Name,
		StartedAt: s.StartedAt,
		TickHz:    s.TickHz,
		OriginLat: s.Origin.Lat,
		OriginLon: s.Origin.Lon,
		Origin:    origin,
	}
}

// CoreToVehicle converts a core.VehicleRecord to a GORM model.Vehicle.
func CoreToVehicle(sessionID string, v core.VehicleRecord) model.Vehicle {
	return model.Vehicle{
		SessionID: sessionID,
		VehicleID: int(v.ID),
		Name:      v.Name,
		Nodes:     v.Nodes,
		Beams:     v.Beams,
		SpawnTick: v.SpawnTick,
		SpawnedAt: v.SpawnedAt,
	}
}

// CoreToSnapshot converts a core.Snapshot to a GORM model.VehicleSnapshot.
// The position is projected through p when given.
func CoreToSnapshot(sessionID string, s *core.Snapshot, p *geo.Projector) (model.VehicleSnapshot, error) {
	nodes, err := toJSON(s.Nodes)
	if err != nil {
		return model.VehicleSnapshot{}, fmt.Errorf("snapshot nodes: %w", err)
	}
	broken, err := toJSON(s.Broken)
	if err != nil {
		return model.VehicleSnapshot{}, fmt.Errorf("snapshot broken beams: %w", err)
	}
	wheels, err := toJSON(s.Wheels)
	if err != nil {
		return model.VehicleSnapshot{}, fmt.Errorf("snapshot wheels: %w", err)
	}

	m := model.VehicleSnapshot{
		Time:      s.Wall,
		SessionID: sessionID,
		VehicleID: int(s.Vehicle),
		Tick:      s.Tick,
		SimTime:   s.SimTime,
		State:     string(s.State),
		Position:  geom.NewEmptyPoint(geom.DimXYZ),
		Speed:     s.Speed,
		RPM:       s.RPM,
		Gear:      s.Gear,
		Turbo:     s.Turbo,
		Lights:    s.Lights,
		Nodes:     nodes,
		Broken:    broken,
		Wheels:    wheels,
	}
	if pos, ok := geo.SnapshotPosition(s); ok {
		m.Elevation = float32(pos.Y)
		if p != nil {
			m.Position = p.Point(pos)
		}
	}
	return m, nil
}

// CoreToEvent converts a core.Event to a GORM model.SimEvent.
func CoreToEvent(sessionID string, e core.Event) model.SimEvent {
	return model.SimEvent{
		SessionID:    sessionID,
		VehicleID:    int(e.Vehicle),
		Tick:         e.Tick,
		SimTime:      e.SimTime,
		Kind:         string(e.Kind),
		Code:         e.Code,
		Beam:         e.Beam,
		Node:         e.Node,
		OtherVehicle: int(e.Other.Vehicle),
		OtherNode:    e.Other.Node,
		Value:        e.Value,
		Message:      e.Msg,
	}
}

// CoreToSave converts a core.SaveState taken at tick to a GORM model.SavedState.
func CoreToSave(sessionID string, tick uint64, st core.SaveState) (model.SavedState, error) {
	data, err := json.Marshal(st)
	if err != nil {
		return model.SavedState{}, fmt.Errorf("save state: %w", err)
	}
	return model.SavedState{
		SessionID: sessionID,
		VehicleID: int(st.Vehicle),
		Name:      st.Name,
		Tick:      tick,
		State:     datatypes.JSON(data),
	}, nil
}
