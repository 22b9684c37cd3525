package vehicle

import (
	"time"

	"github.com/OCAP2/softbody/internal/lock"
	"github.com/OCAP2/softbody/internal/vmath"
	"github.com/OCAP2/softbody/pkg/core"
)

// engineActions need an engine to act on.
var engineActions = map[core.Action]bool{
	core.ActionToggleContact:   true,
	core.ActionStartEngine:     true,
	core.ActionStopEngine:      true,
	core.ActionShiftUp:         true,
	core.ActionShiftDown:       true,
	core.ActionShiftNeutral:    true,
	core.ActionAutoShiftUp:     true,
	core.ActionAutoShiftDown:   true,
	core.ActionToggleShiftMode: true,
	core.ActionToggleCruise:    true,
}

// SubmitInputs queues a control message for the next tick. Analog values
// replace earlier ones and actions accumulate.
func (v *Vehicle) SubmitInputs(in core.Inputs) {
	v.pending.Merge(in)
}

// Inputs returns the controls applied in the current tick.
func (v *Vehicle) Inputs() core.Inputs { return v.inputs }

func activeInput(in *core.Inputs) bool {
	if in.Throttle > 0 || in.Brake > 0 || in.Steer != 0 || in.Starter ||
		in.AeroThrottle > 0 || in.ScrewThrottle > 0 || len(in.Actions) > 0 {
		return true
	}
	for _, c := range in.Commands {
		if c > 0 {
			return true
		}
	}
	return false
}

// ApplyInputs drains the queued controls at the start of tick and maps them
// onto the subsystems. Lock toggles are only queued here; RunToggles
// executes them once every vehicle has applied its inputs.
func (v *Vehicle) ApplyInputs(tick uint64) {
	v.tick = tick
	in := v.pending
	v.pending.Actions = nil
	v.inputs = in

	if in.Has(core.ActionReplayToggle) {
		v.toggleReplay()
	}
	if v.state == core.StateSleeping && activeInput(&in) {
		v.Wake()
	}
	if v.state != core.StateSimulated && v.state != core.StateSleeping {
		v.throttle, v.brake = 0, 0
		return
	}

	v.applyEngineInputs(&in)
	v.applyToggles(&in)

	if len(in.Commands) > 0 {
		for k := range in.Commands {
			if k < 1 || k > core.MaxCommands {
				v.notice(core.NewError(core.InteractionInvalid, v.ID, core.CodeCommandOutOfRange, "command key %d outside 1..%d", k, core.MaxCommands))
			}
		}
		v.Commands.SetInputs(in.Commands)
	}

	h := v.Hydros
	h.DirCommand = vmath.Clamp(in.Steer, -1, 1)
	h.AileronCommand = vmath.Clamp(in.Aileron, -1, 1)
	h.RudderCommand = vmath.Clamp(in.Rudder, -1, 1)
	h.ElevatorCommand = vmath.Clamp(in.Elevator, -1, 1)

	for _, e := range v.Engines {
		e.SetThrottle(in.AeroThrottle)
		if in.AeroReverse && !v.aeroReverse {
			e.ToggleReverse()
		}
	}
	v.aeroReverse = in.AeroReverse
	for _, s := range v.Screwprops {
		s.SetThrottle(in.ScrewThrottle)
		s.SetRudder(in.ScrewRudder)
	}

	v.updateLights(&in)
}

func (v *Vehicle) applyEngineInputs(in *core.Inputs) {
	e := v.Engine
	if e == nil {
		v.throttle, v.brake = in.EffectiveThrottle(), in.EffectiveBrake()
		if len(v.Engines) == 0 {
			for _, a := range in.Actions {
				if engineActions[a] {
					v.notice(core.NewError(core.InteractionInvalid, v.ID, core.CodeNoEngine, "%s: vehicle has no engine", a))
					break
				}
			}
		}
	} else {
		e.ApplyActions(in)
		v.throttle, v.brake = e.ApplyInputs(in, v.opts.Arcade, v.Drivetrain.WheelSpeed)
		v.engineEdge()
	}
	if in.Has(core.ActionStartEngine) {
		for _, ae := range v.Engines {
			ae.FlipStart()
		}
	}
}

// engineEdge reports start and stall transitions of the engine.
func (v *Vehicle) engineEdge() {
	r := v.Engine.Running()
	switch {
	case r && !v.running:
		v.emitKind(core.EventEngineStart)
	case !r && v.running:
		v.emitKind(core.EventEngineStall)
	}
	v.running = r
}

func (v *Vehicle) applyToggles(in *core.Inputs) {
	d := v.Drivetrain
	e := v.Engine
	hookGroup := in.HookGroup
	if hookGroup == 0 {
		hookGroup = lock.GroupManual
	}
	tieGroup := in.TieGroup
	if tieGroup == 0 {
		tieGroup = -1
	}
	for _, a := range in.Actions {
		switch a {
		case core.ActionToggleAxleDiff:
			for _, ax := range d.Axles {
				ax.ToggleMode()
			}
		case core.ActionToggleInterAxleDiff:
			for _, ax := range d.InterAxles {
				ax.ToggleMode()
			}
		case core.ActionToggleTCaseMode:
			if r, ok := d.ToggleTransferCaseMode(); ok && e != nil {
				e.SetTCaseRatio(r)
			}
		case core.ActionToggleTCaseRatio:
			if r, ok := d.ToggleTransferCaseGearRatio(); ok && e != nil {
				e.SetTCaseRatio(r)
			}
		case core.ActionToggleCruise:
			if e == nil {
				continue
			}
			if v.Cruise.Toggle(e, d.WheelSpeed) {
				v.emitKind(core.EventCruiseEngage)
			} else {
				v.emitKind(core.EventCruiseOff)
			}
		case core.ActionToggleABS:
			d.ABS.Toggle()
		case core.ActionToggleTC:
			d.TC.Toggle()
		case core.ActionToggleParkingBrake:
			v.parking = !v.parking
		case core.ActionToggleTrailerBrake:
			v.trailerParking = !v.trailerParking
		case core.ActionHookToggle:
			v.lockReqs = append(v.lockReqs, lockRequest{kind: lockHooks, group: hookGroup, mode: lock.HookToggle})
		case core.ActionHookLock:
			v.lockReqs = append(v.lockReqs, lockRequest{kind: lockHooks, group: hookGroup, mode: lock.HookLock})
		case core.ActionHookUnlock:
			v.lockReqs = append(v.lockReqs, lockRequest{kind: lockHooks, group: hookGroup, mode: lock.HookUnlock})
		case core.ActionTieToggle:
			v.lockReqs = append(v.lockReqs, lockRequest{kind: lockTies, group: tieGroup})
		case core.ActionRopeToggle:
			v.lockReqs = append(v.lockReqs, lockRequest{kind: lockRopes, group: tieGroup})
		case core.ActionSlideToggle:
			v.lockReqs = append(v.lockReqs, lockRequest{kind: lockSlides})
		case core.ActionToggleLights:
			v.lights ^= core.LightHeadlights
		case core.ActionToggleBeacons:
			v.lights ^= core.LightBeacons
		case core.ActionToggleDebug:
			v.debug = !v.debug
		case core.ActionToggleCamera:
			if len(v.cameras) > 0 {
				v.camera = (v.camera + 1) % len(v.cameras)
			}
		}
	}
}

func (v *Vehicle) updateLights(in *core.Inputs) {
	const derived = core.LightBrake | core.LightReverse | core.LightBlinkLeft | core.LightBlinkRight | core.LightHorn
	l := v.lights &^ derived
	if v.brake > 0.1 {
		l |= core.LightBrake
	}
	if v.Engine != nil && v.Engine.Gear() < 0 {
		l |= core.LightReverse
	}
	switch in.Blink {
	case core.BlinkLeft:
		l |= core.LightBlinkLeft
	case core.BlinkRight:
		l |= core.LightBlinkRight
	case core.BlinkWarning:
		l |= core.LightBlinkLeft | core.LightBlinkRight
	}
	if in.Horn {
		l |= core.LightHorn
	}
	v.lights = l
}

func (v *Vehicle) toggleReplay() {
	switch v.state {
	case core.StateReplay:
		if err := v.SetState(core.StateSimulated); err != nil {
			v.noticeErr(err)
		}
	case core.StateSimulated, core.StateSleeping:
		if v.Replay.Len() == 0 {
			v.notice(core.NewError(core.InteractionInvalid, v.ID, core.CodeReplayEmpty, "nothing recorded yet"))
			return
		}
		v.Replay.Enter()
		v.state = core.StateReplay
	}
}

// RunToggles executes the lock requests queued since the last call against
// the given peers. The registry calls it between ticks, never while phases
// run.
func (v *Vehicle) RunToggles(peers []lock.Peer) {
	body, l := v.Body, v.Locks
	reqs := append(v.lockReqs, v.hookReqs...)
	v.lockReqs, v.hookReqs = nil, nil
	if v.state == core.StateSimulated || v.state == core.StateSleeping {
		for _, r := range reqs {
			switch r.kind {
			case lockHooks:
				if err := l.ToggleHooks(body, peers, r.group, r.mode); err != nil {
					v.noticeErr(err)
				}
			case lockTies:
				l.ToggleTies(body, peers, r.group)
			case lockRopes:
				l.ToggleRopes(body, peers, r.group)
			case lockSlides:
				l.ToggleSlideNodes(body, peers)
			}
		}
		if v.autoLock && v.Simulated() {
			_ = l.ToggleHooks(body, peers, lock.GroupAuto, lock.HookLock)
		}
	}
	v.drainLockEvents()
}

// ReplayTick moves the playback position by the scrub rate over hostDt and
// shows the frame.
func (v *Vehicle) ReplayTick(hostDt float64) {
	if v.state != core.StateReplay {
		return
	}
	v.Replay.Scrub(v.inputs.ReplayScrub, hostDt)
	if v.Replay.Apply(v.Body) {
		v.Body.UpdateBounds(&v.Bounds, 0, boundsPad)
	}
}

// EndTick runs once per host tick after the physics substeps: it applies
// network state, advances the sleep timer and publishes the snapshot.
func (v *Vehicle) EndTick(hostDt float64, wall time.Time) {
	switch v.state {
	case core.StateNetworked:
		v.applyNet()
	case core.StateSimulated:
		v.updateSleep(hostDt)
	}
	v.publish(wall)
}

func (v *Vehicle) updateSleep(hostDt float64) {
	if v.Activity() > sleepVelocitySq || activeInput(&v.inputs) {
		v.sleepTimer = 0
		return
	}
	v.sleepTimer += hostDt
	if v.sleepTimer >= v.opts.SleepTimeout {
		v.state = core.StateSleeping
		v.Body.ZeroVelocities()
		v.emitKind(core.EventSleep)
	}
}

// Wake returns a sleeping vehicle to the simulation.
func (v *Vehicle) Wake() {
	if v.state != core.StateSleeping {
		return
	}
	v.state = core.StateSimulated
	v.sleepTimer = 0
	v.emitKind(core.EventWake)
}

// Activity is the mean squared node speed, used by the registry to wake
// sleeping vehicles that are touched.
func (v *Vehicle) Activity() float64 {
	nodes := v.Body.Nodes
	if len(nodes) == 0 {
		return 0
	}
	sum := 0.0
	for i := range nodes {
		sum += nodes[i].Vel.LenSq()
	}
	return sum / float64(len(nodes))
}

// TrailerParking reports the parking brake request forwarded to towed
// vehicles.
func (v *Vehicle) TrailerParking() bool { return v.trailerParking }

// SetParking sets the parking brake, used when a towing vehicle forwards its
// trailer brake.
func (v *Vehicle) SetParking(on bool) { v.parking = on }

// SetLights replaces the steady light flags; the pedal derived flags are
// recomputed every tick.
func (v *Vehicle) SetLights(l uint32) {
	v.lights = l
}

// Debug reports whether debug visualisation was requested.
func (v *Vehicle) Debug() bool { return v.debug }

// Throttle returns the throttle pedal applied this tick.
func (v *Vehicle) Throttle() float64 { return v.throttle }

// Brake returns the brake pedal applied this tick.
func (v *Vehicle) Brake() float64 { return v.brake }
