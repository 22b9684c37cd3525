package vehicle

import (
	"errors"
	"fmt"
	"math"

	"github.com/OCAP2/softbody/internal/actuate"
	"github.com/OCAP2/softbody/internal/aero"
	"github.com/OCAP2/softbody/internal/collision"
	"github.com/OCAP2/softbody/internal/drivetrain"
	"github.com/OCAP2/softbody/internal/engine"
	"github.com/OCAP2/softbody/internal/lock"
	"github.com/OCAP2/softbody/internal/marine"
	"github.com/OCAP2/softbody/internal/soft"
	"github.com/OCAP2/softbody/internal/vmath"
	"github.com/OCAP2/softbody/pkg/core"
)

// maxHints bounds the water effect hints kept between drains.
const maxHints = 256

// Local runs the part of a physics step that only touches the vehicle's
// own nodes: actuators, beams, engine, wheels, aero and marine forces,
// ground contact and self-collision.
func (v *Vehicle) Local(dt float64, ground soft.GroundProbe) {
	if !v.Simulated() {
		return
	}
	body := v.Body
	v.env.Ground = ground
	body.ResetForces(&v.env, dt)

	v.Hydros.Update(dt, v.Drivetrain.WheelSpeed, body.Beams)
	load := v.Commands.Update(dt, v.power(), body)
	if v.Engine != nil {
		v.Engine.SetHydroPumpWork(load.Work)
	}

	v.trigThrottle, v.trigBrake = -1, -1
	body.CalcBeams(dt)

	v.stepEngine(dt)
	v.stepDrivetrain(dt)
	v.stepAero(dt)
	if ground != nil {
		v.stepMarine(dt, ground)
	}
	body.GroundContact(ground, dt)
	v.Collider.Intra(body, dt)
}

// Inter runs the part of a step that involves other vehicles: beams whose
// far end sits on another vehicle, hook, tie, rope and slide node updates
// and collisions against partners. Forces on other vehicles go to space.
func (v *Vehicle) Inter(dt float64, space lock.Space, partners []collision.Partner) {
	if !v.Simulated() {
		return
	}
	body := v.Body
	for i := range body.Beams {
		bm := &body.Beams[i]
		if !bm.Inter || !bm.Active() || bm.Remote.Vehicle == v.ID {
			continue
		}
		rp, rv, ok := space.Node(bm.Remote)
		if !ok {
			continue
		}
		f := body.CalcInterBeam(i, rp, rv, dt)
		space.AddForce(bm.Remote, f)
	}
	v.Locks.Update(dt, body, space)
	if len(partners) > 0 {
		v.Collider.Inter(body, partners, dt, space)
	}
}

// Post applies forces delivered by other vehicles, integrates, and turns
// what happened during the step into events.
func (v *Vehicle) Post(dt float64) {
	if !v.Simulated() {
		v.in.drain(func(nodeForce) {})
		return
	}
	body := v.Body
	v.in.drain(func(nf nodeForce) {
		n := &body.Nodes[nf.node]
		n.Force = n.Force.Add(nf.f)
	})
	v.Locks.SnapRopes(body)
	if err := body.Integrate(dt); err != nil {
		v.diverged(err)
		return
	}
	body.UpdateBounds(&v.Bounds, boundsHorizon, boundsPad)
	v.postBreaks()
	v.drainLockEvents()
	if v.beamsDirty || len(body.Beams) != v.beamCount {
		v.neighbours = collision.Neighbours(body)
		v.beamCount = len(body.Beams)
		v.beamsDirty = false
	}
	v.Replay.OnPhysicsStep(body, dt)
	v.simTime += dt
}

func (v *Vehicle) power() actuate.Power {
	e := v.Engine
	if e == nil {
		return actuate.Power{CanWork: true, CrankFactor: 1}
	}
	return actuate.Power{
		HasEngine:   true,
		Running:     e.Running(),
		CanWork:     e.RPM() > e.IdleRPM()*0.95,
		CrankFactor: e.CrankFactor(),
	}
}

// refNode is the node whose velocity stands for the vehicle's.
func (v *Vehicle) refNode() int {
	if len(v.cameras) > 0 {
		return v.cameras[0].Center
	}
	return 0
}

// direction is the forward axis: from the back to the centre node of the
// first camera, or +X without a camera.
func (v *Vehicle) direction() vmath.Vec3 {
	if len(v.cameras) == 0 {
		return vmath.UnitX
	}
	c := v.cameras[0]
	d := v.Body.Nodes[c.Center].Pos.Sub(v.Body.Nodes[c.Back].Pos).Normalize()
	if d.IsZero() {
		return vmath.UnitX
	}
	return d
}

// verticalG measures the vertical acceleration of the reference node in g.
func (v *Vehicle) verticalG(dt float64) float64 {
	vel := v.Body.Nodes[v.refNode()].Vel
	g := (vel.Y - v.lastRefVel.Y) / dt / -soft.DefaultGravity
	v.lastRefVel = vel
	return g
}

func (v *Vehicle) parkingBrake() bool { return v.parking || v.inputs.Handbrake }

func (v *Vehicle) stepEngine(dt float64) {
	e := v.Engine
	if e == nil {
		return
	}
	d := v.Drivetrain
	acc, off := v.Cruise.Update(e, engine.CruiseInput{
		Throttle:     v.throttle,
		Brake:        v.brake,
		Clutch:       v.inputs.Clutch,
		ParkingBrake: v.parkingBrake(),
		Accel:        v.inputs.CruiseAccel,
		Decel:        v.inputs.CruiseDecel,
		WheelSpeed:   d.WheelSpeed,
	}, dt)
	if off {
		v.emitKind(core.EventCruiseOff)
	}
	if v.trigThrottle >= 0 {
		acc = math.Max(acc, v.trigThrottle)
	}
	e.AutoSetAcc(acc)
	e.SetWheelSpin(d.WheelSpin * soft.RadPerSecToRPM)

	brake := v.brake
	if v.trigBrake >= 0 {
		brake = math.Max(brake, v.trigBrake)
	}
	e.Update(dt, brake, v.verticalG(dt))
	v.engineEdge()
}

func (v *Vehicle) stepDrivetrain(dt float64) {
	d := v.Drivetrain
	if len(d.Wheels) == 0 {
		return
	}
	brake := v.brake
	if v.trigBrake >= 0 {
		brake = math.Max(brake, v.trigBrake)
	}
	in := drivetrain.Inputs{
		Brake:        brake,
		ParkingBrake: v.parkingBrake(),
		Steer:        v.Hydros.DirState(),
		Direction:    v.direction(),
		RefVel:       v.Body.Nodes[v.refNode()].Vel,
	}
	if v.Engine != nil {
		in.HasEngine = true
		in.EngineTorque = v.Engine.Torque()
	}
	d.CalcDifferentials(in, dt)
	abs, tc := d.CalcWheels(v.Body.Nodes, in, dt)
	if abs && !v.absActive {
		v.emitKind(core.EventABSActive)
	}
	if tc && !v.tcActive {
		v.emitKind(core.EventTCActive)
	}
	v.absActive, v.tcActive = abs, tc
}

// approach moves cur toward target by at most step.
func approach(cur, target, step float64) float64 {
	if math.Abs(target-cur) <= step {
		return target
	}
	if target > cur {
		return cur + step
	}
	return cur - step
}

func (v *Vehicle) stepAero(dt float64) {
	nodes := v.Body.Nodes
	for _, e := range v.Engines {
		e.ApplyForces(dt, nodes)
	}
	if len(v.Wings) == 0 {
		return
	}
	ail, rud, elev := v.Hydros.States()
	ctrl := aero.Controls{
		Aileron:  ail,
		Elevator: elev,
		Rudder:   rud,
		Flaps:    v.inputs.Flaps,
		Airbrake: v.inputs.Airbrake,
	}
	for _, w := range v.Wings {
		w.Deflection = approach(w.Deflection, w.Target(ctrl), flapRate*dt)
		w.ApplyForces(nodes, v.Engines)
	}
}

func (v *Vehicle) stepMarine(dt float64, ground soft.GroundProbe) {
	nodes := v.Body.Nodes
	if len(v.buoyCabs) > 0 {
		b := v.Buoyancy
		b.Water = ground
		b.CollectHints = len(v.hints) < maxHints
		for _, c := range v.buoyCabs {
			b.ApplyTriangle(nodes, c.nodes[0], c.nodes[1], c.nodes[2], c.mode)
		}
		v.keepHints(b.DrainHints())
	}
	for _, s := range v.Screwprops {
		s.Water = ground
		s.ApplyForces(dt, nodes)
		v.keepHints(s.DrainHints())
	}
}

func (v *Vehicle) keepHints(h []marine.Hint) {
	if room := maxHints - len(v.hints); room > 0 {
		v.hints = append(v.hints, h[:min(len(h), room)]...)
	}
}

// diverged freezes the vehicle at its last recorded frame after the
// integrator left the representable range.
func (v *Vehicle) diverged(err error) {
	code := core.CodeNaN
	var de *soft.DivergenceError
	if errors.As(err, &de) && de.Overspeed {
		code = core.CodeOverspeed
		ev := core.NewEvent(core.EventExplode, v.ID)
		ev.Node = de.Node
		v.emit(ev)
	}
	se := core.NewError(core.NumericalDivergent, v.ID, code, "%v", err)
	se.Err = err
	v.notice(se)

	v.state = core.StateInvalid
	if v.Replay.Len() > 0 {
		v.Replay.Enter()
		_ = v.Replay.Resume(v.Body, v.ID)
	}
	v.Body.ZeroVelocities()
	v.Body.UpdateBounds(&v.Bounds, boundsHorizon, boundsPad)
}

// postBreaks reports broken beams, detaches wheels of released detacher
// groups and marks wings whose structure broke.
func (v *Vehicle) postBreaks() {
	breaks, groups := v.Body.DrainBreaks()
	for _, b := range breaks {
		ev := core.NewEvent(core.EventBeamBroken, v.ID)
		ev.Beam = b.Beam
		ev.Value = b.Force
		v.emit(ev)
		v.breakWings(b.Beam)
	}
	if len(breaks) > 0 {
		v.beamsDirty = true
	}
	for _, g := range groups {
		for i := range v.Drivetrain.Wheels {
			w := &v.Drivetrain.Wheels[i]
			if w.Detached || w.DetacherGroup == 0 || (w.DetacherGroup != g && w.DetacherGroup != -g) {
				continue
			}
			w.Detached = true
			ev := core.NewEvent(core.EventWheelDetach, v.ID)
			ev.Node = w.Axis0
			ev.Value = float64(i)
			ev.Msg = fmt.Sprintf("wheel %d", i)
			v.emit(ev)
		}
	}
}

func (v *Vehicle) breakWings(beam int) {
	bm := &v.Body.Beams[beam]
	if bm.Inter {
		return
	}
	has := func(w *aero.Wing, n int) bool {
		for _, wn := range w.Nodes {
			if wn == n {
				return true
			}
		}
		return false
	}
	for _, w := range v.Wings {
		if !w.Broken && has(w, bm.P1) && has(w, bm.P2) {
			w.Broken = true
		}
	}
}

func (v *Vehicle) drainLockEvents() {
	evs := v.Locks.DrainEvents()
	if len(evs) > 0 {
		v.beamsDirty = true
	}
	for _, ev := range evs {
		v.emit(ev)
	}
}

// TriggerHooks queues a hook request raised by a trigger beam; it runs with
// the other lock toggles before the next tick.
func (v *Vehicle) TriggerHooks(group int, action actuate.HookAction) {
	mode := lock.HookLock
	if action == actuate.HookUnlockGroup {
		mode = lock.HookUnlock
	}
	v.hookReqs = append(v.hookReqs, lockRequest{kind: lockHooks, group: group, mode: mode})
}

// TriggerEngine applies an engine trigger for the current step.
func (v *Vehicle) TriggerEngine(fn actuate.EngineFunc, value float64) {
	e := v.Engine
	if e == nil {
		return
	}
	switch fn {
	case actuate.EngineClutch:
		e.SetClutch(value)
	case actuate.EngineBrake:
		v.trigBrake = value
	case actuate.EngineAccelerator:
		v.trigThrottle = value
	case actuate.EngineRPM:
		e.SetRPM(value * e.MaxRPM())
	case actuate.EngineShiftUp:
		if value > 0 {
			e.Shift(1)
		}
	case actuate.EngineShiftDown:
		if value > 0 {
			e.Shift(-1)
		}
	}
}

var _ actuate.TriggerSink = (*Vehicle)(nil)
