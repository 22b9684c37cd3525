package worker

import (
	"fmt"
	"time"

	"github.com/OCAP2/softbody/internal/dispatcher"
	"github.com/OCAP2/softbody/internal/storage"
	"github.com/OCAP2/softbody/internal/vmath"
	"github.com/OCAP2/softbody/pkg/core"
)

// Host commands.
const (
	CmdSessionStart = ":SESSION:START:"
	CmdSessionEnd   = ":SESSION:END:"
	CmdDefine       = ":DEFINE:"
	CmdSpawn        = ":SPAWN:"
	CmdInputs       = ":INPUTS:"
	CmdRemove       = ":REMOVE:"
	CmdState        = ":STATE:"
	CmdRemote       = ":REMOTE:"
	CmdSave         = ":SAVE:"
	CmdRestore      = ":RESTORE:"
)

// SessionStartPayload opens a recording session.
type SessionStartPayload struct {
	Name   string         `json:"name"`
	TickHz int            `json:"tickHz,omitempty"`
	Origin core.GeoOrigin `json:"origin"`
}

// SessionEndResult reports where an exporting backend wrote the session.
type SessionEndResult struct {
	SessionID   string `json:"sessionId"`
	SessionName string `json:"sessionName"`
	// Duration is the wall time the session ran, in seconds.
	Duration   float64 `json:"duration"`
	Vehicles   int     `json:"vehicles"`
	ExportPath string  `json:"exportPath,omitempty"`
}

// SpawnPayload spawns a cached definition by name, or an inline one.
type SpawnPayload struct {
	Definition string           `json:"definition,omitempty"`
	Def        *core.Definition `json:"def,omitempty"`
	Offset     core.Vec         `json:"offset"`
}

// SpawnResult is returned by CmdSpawn.
type SpawnResult struct {
	Vehicle core.VehicleID `json:"vehicle"`
	Name    string         `json:"name"`
}

// StatePayload requests a lifecycle change.
type StatePayload struct {
	State core.VehicleState `json:"state"`
}

// RegisterHandlers registers all command handlers with the dispatcher.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher) {
	// Session and vehicle lifecycle - sync, callers need the result
	d.Register(CmdSessionStart, m.handleSessionStart, dispatcher.Logged())
	d.Register(CmdSessionEnd, m.handleSessionEnd, dispatcher.Logged())
	d.Register(CmdDefine, m.handleDefine, dispatcher.Logged())
	d.Register(CmdSpawn, m.handleSpawn, dispatcher.Logged())
	d.Register(CmdRemove, m.handleRemove, dispatcher.Logged())
	d.Register(CmdState, m.handleState, dispatcher.Logged())
	d.Register(CmdSave, m.handleSave, dispatcher.Logged())
	d.Register(CmdRestore, m.handleRestore, dispatcher.Logged())

	// High-volume per-frame input - buffered
	d.Register(CmdInputs, m.handleInputs, dispatcher.Buffered(10000))
	d.Register(CmdRemote, m.handleRemote, dispatcher.Buffered(10000))
}

func (m *Manager) handleSessionStart(e dispatcher.Event) (any, error) {
	var p SessionStartPayload
	if err := e.Decode(&p); err != nil {
		return nil, err
	}
	if p.TickHz <= 0 {
		p.TickHz = m.deps.TickHz
	}
	if m.deps.Session.Active() {
		if _, err := m.handleSessionEnd(e); err != nil {
			return nil, fmt.Errorf("end previous session: %w", err)
		}
	}

	s := m.deps.Session.Start(p.Name, p.TickHz, p.Origin)
	if m.backend != nil {
		if err := m.backend.StartSession(s); err != nil {
			m.deps.Session.End()
			return nil, fmt.Errorf("failed to start session: %w", err)
		}
		// vehicles spawned before the session are recorded from here on
		if m.sim != nil {
			for _, info := range m.sim.Vehicles() {
				if err := m.backend.AddVehicle(m.vehicleRecord(info.ID)); err != nil {
					m.deps.Logger.Error("Failed to record vehicle", "vehicle", info.ID, "error", err)
				}
			}
		}
	}
	m.deps.Logger.Info("Session started", "session", s.ID, "name", s.Name)
	return s, nil
}

func (m *Manager) handleSessionEnd(_ dispatcher.Event) (any, error) {
	if !m.deps.Session.Active() {
		return nil, ErrNoSession
	}
	s := m.deps.Session.Get()
	res := SessionEndResult{
		SessionID:   s.ID,
		SessionName: s.Name,
		Duration:    time.Since(s.StartedAt).Seconds(),
	}
	if m.sim != nil {
		res.Vehicles = len(m.sim.Vehicles())
	}
	if m.backend != nil {
		if err := m.backend.EndSession(); err != nil {
			return nil, fmt.Errorf("failed to end session: %w", err)
		}
		if u, ok := m.backend.(storage.Uploadable); ok {
			res.ExportPath = u.GetExportedFilePath()
		}
	}
	m.deps.Session.End()
	m.deps.Saves.Reset()
	m.deps.Logger.Info("Session ended", "session", res.SessionID, "export", res.ExportPath)
	if m.deps.OnSessionEnd != nil {
		m.deps.OnSessionEnd(res)
	}
	return res, nil
}

func (m *Manager) handleDefine(e dispatcher.Event) (any, error) {
	def := &core.Definition{}
	if err := e.Decode(def); err != nil {
		return nil, err
	}
	if def.Name == "" {
		return nil, core.NewError(core.DefinitionInvalid, core.NoVehicle, core.CodeUnknownDefinition, "definition has no name")
	}
	m.deps.Definitions.Set(def.Name, def)
	return def.Name, nil
}

func (m *Manager) handleSpawn(e dispatcher.Event) (any, error) {
	var p SpawnPayload
	if err := e.Decode(&p); err != nil {
		return nil, err
	}
	def := p.Def
	if def == nil {
		var ok bool
		def, ok = m.deps.Definitions.Get(p.Definition)
		if !ok {
			return nil, core.NewError(core.DefinitionInvalid, core.NoVehicle, core.CodeUnknownDefinition, "unknown definition %q", p.Definition)
		}
	}

	id, err := m.sim.Spawn(def, vmath.V(p.Offset[0], p.Offset[1], p.Offset[2]))
	if err != nil {
		return nil, err
	}
	rec := m.vehicleRecord(id)
	if m.recording() {
		if err := m.backend.AddVehicle(rec); err != nil {
			m.deps.Logger.Error("Failed to record vehicle", "vehicle", id, "error", err)
		}
	}
	return SpawnResult{Vehicle: id, Name: rec.Name}, nil
}

func (m *Manager) handleInputs(e dispatcher.Event) (any, error) {
	var in core.Inputs
	if err := e.Decode(&in); err != nil {
		return nil, err
	}
	return nil, m.sim.SubmitInputs(e.Vehicle, in)
}

func (m *Manager) handleRemove(e dispatcher.Event) (any, error) {
	return nil, m.sim.Remove(e.Vehicle)
}

func (m *Manager) handleState(e dispatcher.Event) (any, error) {
	var p StatePayload
	if err := e.Decode(&p); err != nil {
		return nil, err
	}
	switch p.State {
	case core.StateSimulated, core.StateNetworked, core.StateReplay:
	default:
		return nil, core.NewError(core.InteractionInvalid, e.Vehicle, core.CodeBadCommand, "state %q cannot be requested", p.State)
	}
	return nil, m.sim.SetState(e.Vehicle, p.State)
}

func (m *Manager) handleRemote(e dispatcher.Event) (any, error) {
	var s core.Snapshot
	if err := e.Decode(&s); err != nil {
		return nil, err
	}
	return nil, m.sim.PushRemote(e.Vehicle, s)
}

func (m *Manager) handleSave(e dispatcher.Event) (any, error) {
	st, err := m.sim.Save(e.Vehicle)
	if err != nil {
		return nil, err
	}
	m.deps.Saves.Set(e.Vehicle, st)
	if saver, ok := m.backend.(storage.Saver); ok && m.recording() {
		if err := saver.SaveState(m.sim.CurrentTick(), &st); err != nil {
			m.deps.Logger.Error("Failed to store save", "vehicle", e.Vehicle, "error", err)
		}
	}
	return st, nil
}

// handleRestore restores the payload save, or without a payload the latest
// cached or stored save of the vehicle.
func (m *Manager) handleRestore(e dispatcher.Event) (any, error) {
	var st core.SaveState
	if len(e.Payload) > 0 {
		if err := e.Decode(&st); err != nil {
			return nil, err
		}
	} else {
		found, err := m.latestSave(e.Vehicle)
		if err != nil {
			return nil, err
		}
		st = found
	}
	if err := m.sim.Restore(e.Vehicle, st); err != nil {
		return nil, err
	}
	return st.SimTime, nil
}

func (m *Manager) latestSave(id core.VehicleID) (core.SaveState, error) {
	if st, ok := m.deps.Saves.Get(id); ok {
		return st, nil
	}
	if saver, ok := m.backend.(storage.Saver); ok && m.recording() {
		st, found, err := saver.LoadState(id)
		if err != nil {
			return core.SaveState{}, fmt.Errorf("load save of vehicle %d: %w", id, err)
		}
		if found {
			return st, nil
		}
	}
	return core.SaveState{}, core.NewError(core.InteractionInvalid, id, core.CodeNoSave, "no save recorded")
}
