package postgres

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/OCAP2/softbody/internal/geo"
	"github.com/OCAP2/softbody/internal/model"
	"github.com/OCAP2/softbody/internal/model/convert"
	v1 "github.com/OCAP2/softbody/internal/storage/memory/export/v1"
	"github.com/OCAP2/softbody/pkg/core"
)

// ErrSessionNotFound is returned by LoadSession for unknown ids.
var ErrSessionNotFound = errors.New("session not found")

// ListSessions returns the recorded sessions, newest first.
func ListSessions(db *gorm.DB) ([]model.Session, error) {
	var sessions []model.Session
	if err := db.Order("started_at DESC").Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// LoadSession reads a recorded session back into export form.
func LoadSession(db *gorm.DB, sessionID string) (*v1.SessionData, error) {
	var row model.Session
	err := db.Where("id = ?", sessionID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	s := convert.SessionToCore(row)
	projector, err := geo.NewProjector(s.Origin)
	if err != nil {
		return nil, err
	}

	data := &v1.SessionData{
		Session:   &s,
		Vehicles:  make(map[core.VehicleID]*v1.VehicleRecord),
		Projector: projector,
	}

	var vehicles []model.Vehicle
	if err := db.Where("session_id = ?", sessionID).Order("vehicle_id ASC").Find(&vehicles).Error; err != nil {
		return nil, fmt.Errorf("get vehicles: %w", err)
	}
	for _, v := range vehicles {
		data.Vehicles[core.VehicleID(v.VehicleID)] = &v1.VehicleRecord{
			Vehicle:     convert.VehicleToCore(v),
			RemovedTick: v.RemovedTick,
		}
	}

	var snapshots []model.VehicleSnapshot
	if err := db.Where("session_id = ?", sessionID).Order("tick ASC, id ASC").Find(&snapshots).Error; err != nil {
		return nil, fmt.Errorf("get snapshots: %w", err)
	}
	for _, m := range snapshots {
		rec, ok := data.Vehicles[core.VehicleID(m.VehicleID)]
		if !ok {
			continue
		}
		snap, err := convert.SnapshotToCore(m)
		if err != nil {
			return nil, err
		}
		rec.Snapshots = append(rec.Snapshots, snap)
	}

	var saves []model.SavedState
	if err := db.Where("session_id = ?", sessionID).Order("tick ASC, id ASC").Find(&saves).Error; err != nil {
		return nil, fmt.Errorf("get saves: %w", err)
	}
	for _, m := range saves {
		rec, ok := data.Vehicles[core.VehicleID(m.VehicleID)]
		if !ok {
			continue
		}
		st, err := convert.SaveToCore(m)
		if err != nil {
			return nil, err
		}
		rec.Saves = append(rec.Saves, v1.Save{Tick: m.Tick, State: st})
	}

	var events []model.SimEvent
	if err := db.Where("session_id = ?", sessionID).Order("tick ASC, id ASC").Find(&events).Error; err != nil {
		return nil, fmt.Errorf("get events: %w", err)
	}
	for _, e := range events {
		data.Events = append(data.Events, convert.EventToCore(e))
	}
	return data, nil
}
