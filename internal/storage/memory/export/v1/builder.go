package v1

import (
	"sort"
	"time"

	"github.com/OCAP2/softbody/internal/geo"
	"github.com/OCAP2/softbody/internal/vmath"
	"github.com/OCAP2/softbody/pkg/core"
)

// SessionData contains all the data needed to build an export
type SessionData struct {
	Session   *core.Session
	Vehicles  map[core.VehicleID]*VehicleRecord
	Events    []core.Event
	Projector *geo.Projector
}

// VehicleRecord groups a vehicle with all its time-series data
type VehicleRecord struct {
	Vehicle     core.VehicleRecord
	Snapshots   []core.Snapshot
	Saves       []Save
	RemovedTick *uint64
}

// Save is a vehicle save taken at a tick.
type Save struct {
	Tick  uint64
	State core.SaveState
}

// Build creates an Export from the session data
func Build(data *SessionData) Export {
	export := Export{
		Format:    FormatVersion,
		SessionID: data.Session.ID,
		Name:      data.Session.Name,
		StartedAt: data.Session.StartedAt.UTC().Format(time.RFC3339),
		TickHz:    data.Session.TickHz,
		Origin:    data.Session.Origin,
		Vehicles:  make([]Vehicle, 0, len(data.Vehicles)),
		Events:    make([]core.Event, 0, len(data.Events)),
	}

	ids := make([]core.VehicleID, 0, len(data.Vehicles))
	for id := range data.Vehicles {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		rec := data.Vehicles[id]
		v := Vehicle{
			ID:          rec.Vehicle.ID,
			Name:        rec.Vehicle.Name,
			Nodes:       rec.Vehicle.Nodes,
			Beams:       rec.Vehicle.Beams,
			SpawnTick:   rec.Vehicle.SpawnTick,
			RemovedTick: rec.RemovedTick,
			Frames:      make([][]any, 0, len(rec.Snapshots)),
			Broken:      []int{},
			Saves:       len(rec.Saves),
		}
		track := make([]vmath.Vec3, 0, len(rec.Snapshots))
		for i := range rec.Snapshots {
			s := &rec.Snapshots[i]
			pos, _ := geo.SnapshotPosition(s)
			v.Frames = append(v.Frames, []any{
				s.Tick,
				s.SimTime,
				s.State,
				[]float64{pos.X, pos.Y, pos.Z},
				s.Speed,
				s.RPM,
				s.Gear,
			})
			track = append(track, pos)
			export.EndTick = max(export.EndTick, s.Tick)
		}
		if n := len(rec.Snapshots); n > 0 {
			last := &rec.Snapshots[n-1]
			for b := range rec.Vehicle.Beams {
				if last.IsBroken(b) {
					v.Broken = append(v.Broken, b)
				}
			}
		}
		if data.Projector != nil {
			if ls, err := data.Projector.Track(track); err == nil {
				v.Track = ls.AsText()
			}
		}
		if rec.RemovedTick != nil {
			export.EndTick = max(export.EndTick, *rec.RemovedTick)
		}
		export.Vehicles = append(export.Vehicles, v)
	}

	for _, e := range data.Events {
		export.Events = append(export.Events, e)
		export.EndTick = max(export.EndTick, e.Tick)
	}
	return export
}
