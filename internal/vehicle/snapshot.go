package vehicle

import (
	"math"
	"slices"
	"sync"
	"time"

	"github.com/OCAP2/softbody/internal/engine"
	"github.com/OCAP2/softbody/internal/vmath"
	"github.com/OCAP2/softbody/pkg/core"
)

// triple is a triple buffer of snapshots. The writer fills the back slot
// without blocking readers and publishes it by swapping with the middle;
// readers swap the middle to the front when a fresh one is waiting.
type triple struct {
	wmu   sync.Mutex
	mu    sync.Mutex
	slots [3]core.Snapshot

	back, middle, front int
	fresh, has          bool
	last                uint64
}

func (t *triple) init() { t.back, t.middle, t.front = 0, 1, 2 }

// put fills the back slot with fill and publishes it.
func (t *triple) put(fill func(*core.Snapshot)) {
	t.wmu.Lock()
	defer t.wmu.Unlock()
	fill(&t.slots[t.back])
	t.swap()
}

// push publishes a copy of s unless it is not newer than the last pushed
// snapshot.
func (t *triple) push(s core.Snapshot) bool {
	t.wmu.Lock()
	defer t.wmu.Unlock()
	if t.has && s.Tick <= t.last {
		return false
	}
	copySnapshot(&t.slots[t.back], &s)
	t.swap()
	return true
}

func (t *triple) swap() {
	t.mu.Lock()
	t.last = t.slots[t.back].Tick
	t.back, t.middle = t.middle, t.back
	t.fresh, t.has = true, true
	t.mu.Unlock()
}

// lastTick is the tick of the newest published snapshot.
func (t *triple) lastTick() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// latest returns a copy of the newest published snapshot.
func (t *triple) latest() (core.Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.has {
		return core.Snapshot{}, false
	}
	if t.fresh {
		t.front, t.middle = t.middle, t.front
		t.fresh = false
	}
	var s core.Snapshot
	copySnapshot(&s, &t.slots[t.front])
	return s, true
}

// copySnapshot deep copies src into dst, reusing dst's slices.
func copySnapshot(dst, src *core.Snapshot) {
	nodes, broken, wheels := dst.Nodes[:0], dst.Broken[:0], dst.Wheels[:0]
	*dst = *src
	dst.Nodes = append(nodes, src.Nodes...)
	dst.Broken = append(broken, src.Broken...)
	dst.Wheels = append(wheels, src.Wheels...)
}

func finite32(f float64) float32 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return float32(f)
}

func (v *Vehicle) publish(wall time.Time) {
	v.out.put(func(s *core.Snapshot) { v.fill(s, wall) })
}

func (v *Vehicle) fill(s *core.Snapshot, wall time.Time) {
	s.Vehicle = v.ID
	s.Tick = v.tick
	s.SimTime = v.simTime
	s.Wall = wall
	s.State = v.state

	s.Nodes = s.Nodes[:0]
	for i := range v.Body.Nodes {
		p := v.Body.Nodes[i].Pos
		s.Nodes = append(s.Nodes, finite32(p.X), finite32(p.Y), finite32(p.Z))
	}
	s.Broken = s.Broken[:0]
	for i := range v.Body.Beams {
		if v.Body.Beams[i].Broken {
			s.SetBroken(i)
		}
	}

	d := v.Drivetrain
	s.Wheels = s.Wheels[:0]
	for i := range d.Wheels {
		w := &d.Wheels[i]
		s.Wheels = append(s.Wheels, core.WheelSample{
			Speed:    finite32(w.Speed),
			Rotation: finite32(w.Rotation),
			Slip:     finite32(w.Slip),
		})
	}
	if len(d.Wheels) > 0 {
		s.Speed = finite32(d.WheelSpeed)
	} else {
		s.Speed = finite32(v.Body.Nodes[v.refNode()].Vel.Len())
	}
	s.RPM, s.Gear, s.Turbo = 0, 0, 0
	if e := v.Engine; e != nil {
		s.RPM = finite32(e.RPM())
		s.Gear = e.Gear()
		s.Turbo = finite32(e.TurboPSI())
	}
	s.Lights = v.lights
}

// Snapshot returns the newest published state; ok is false before the
// first tick ended.
func (v *Vehicle) Snapshot() (core.Snapshot, bool) {
	return v.out.latest()
}

// PushRemote hands in the state of a vehicle simulated elsewhere. It is
// applied at the end of the next tick while the vehicle is networked.
// Snapshots not newer than the last one pushed are rejected.
func (v *Vehicle) PushRemote(s core.Snapshot) error {
	if !v.net.push(s) {
		return core.NewError(core.SnapshotStale, v.ID, core.CodeStaleSnapshot, "tick %d is not newer than the last remote state", s.Tick)
	}
	return nil
}

// RemoteTick is the tick of the newest remote state accepted, zero before
// the first one.
func (v *Vehicle) RemoteTick() uint64 { return v.net.lastTick() }

func (v *Vehicle) applyNet() {
	s, ok := v.net.latest()
	if !ok || (v.netSeen && s.Tick == v.netTick) {
		return
	}
	nodes := v.Body.Nodes
	dt := s.SimTime - v.netTime
	for i := range min(s.NodeCount(), len(nodes)) {
		n := &nodes[i]
		p := vmath.V(float64(s.Nodes[3*i]), float64(s.Nodes[3*i+1]), float64(s.Nodes[3*i+2]))
		if v.netSeen && dt > 0 {
			n.Vel = p.Sub(n.Pos).Scale(1 / dt)
		}
		n.Pos = p
		n.Force = vmath.Zero
	}
	for i := range v.Body.Beams {
		bm := &v.Body.Beams[i]
		if s.IsBroken(i) && !bm.Broken {
			bm.Broken, bm.Disabled = true, true
			v.beamsDirty = true
		}
	}
	if e := v.Engine; e != nil {
		e.SetRPM(float64(s.RPM))
		e.SetGear(s.Gear)
	}
	v.lights = s.Lights
	v.netTick, v.netTime, v.netSeen = s.Tick, s.SimTime, true
	v.Body.UpdateBounds(&v.Bounds, 0, boundsPad)
}

// Save returns the persistent state of the vehicle.
func (v *Vehicle) Save() core.SaveState {
	st := core.SaveState{
		Vehicle: v.ID,
		Name:    v.Name,
		SimTime: v.simTime,
		State:   v.state,
		Parking: v.parking,
	}
	st.Nodes = make([]core.NodeSave, len(v.Body.Nodes))
	for i := range v.Body.Nodes {
		n := &v.Body.Nodes[i]
		st.Nodes[i] = core.NodeSave{Pos: n.Pos.Array(), Vel: n.Vel.Array()}
	}
	st.Beams = make([]core.BeamSave, len(v.Body.Beams))
	for i := range v.Body.Beams {
		bm := &v.Body.Beams[i]
		st.Beams[i] = core.BeamSave{
			L:            bm.L,
			Strength:     bm.Strength,
			MaxPosStress: bm.MaxPosStress,
			MaxNegStress: bm.MaxNegStress,
			Broken:       bm.Broken,
			Disabled:     bm.Disabled,
		}
	}
	for i := range v.Drivetrain.Wheels {
		w := &v.Drivetrain.Wheels[i]
		st.Wheels = append(st.Wheels, core.WheelSave{Speed: w.Speed, Rotation: w.Rotation, Detached: w.Detached})
	}
	if e := v.Engine; e != nil {
		st.Engine = &core.EngineSave{
			RPM:      e.RPM(),
			Gear:     e.Gear(),
			Running:  e.Running(),
			Contact:  e.Contact(),
			AutoMode: int(e.AutoMode()),
			Select:   int(e.AutoSelect()),
			Clutch:   e.Clutch(),
		}
	}
	st.Commands = make([]float64, core.MaxCommands)
	for k := 1; k <= core.MaxCommands; k++ {
		st.Commands[k-1] = v.Commands.Keys[k].Value
	}
	return st
}

// Restore loads st into the vehicle. The saved state must come from the same
// definition: node and beam counts have to match.
func (v *Vehicle) Restore(st core.SaveState) error {
	body := v.Body
	if len(st.Nodes) != len(body.Nodes) || len(st.Beams) != len(body.Beams) {
		return core.NewError(core.DefinitionInvalid, v.ID, core.CodeBadShape,
			"saved state has %d nodes and %d beams, vehicle has %d and %d",
			len(st.Nodes), len(st.Beams), len(body.Nodes), len(body.Beams))
	}
	for i := range body.Nodes {
		n := &body.Nodes[i]
		n.Pos = vmath.FromArray(st.Nodes[i].Pos)
		n.Vel = vmath.FromArray(st.Nodes[i].Vel)
		n.Force = vmath.Zero
	}
	for i := range body.Beams {
		s, bm := &st.Beams[i], &body.Beams[i]
		bm.L = s.L
		bm.Strength = s.Strength
		bm.MaxPosStress = s.MaxPosStress
		bm.MaxNegStress = s.MaxNegStress
		bm.MinMaxPosNegStress = min(s.MaxPosStress, -s.MaxNegStress, s.Strength)
		bm.Broken = s.Broken
		bm.Disabled = s.Disabled
		bm.Stress = 0
	}
	for i := range min(len(st.Wheels), len(v.Drivetrain.Wheels)) {
		w := &v.Drivetrain.Wheels[i]
		w.Speed = st.Wheels[i].Speed
		w.Rotation = st.Wheels[i].Rotation
		w.Detached = st.Wheels[i].Detached
	}
	if e := v.Engine; e != nil && st.Engine != nil {
		es := st.Engine
		e.SetAutoMode(engine.AutoMode(es.AutoMode))
		if es.Running {
			e.StartEngine()
		} else {
			e.OffStart()
		}
		if e.AutoMode() == engine.Automatic && e.AutoSelect() != engine.AutoSelect(es.Select) {
			e.AutoShiftSet(engine.AutoSelect(es.Select))
		}
		e.SetRPM(es.RPM)
		e.SetGear(es.Gear)
		e.SetContact(es.Contact)
		e.SetClutch(es.Clutch)
		v.running = e.Running()
	}
	for k := 1; k <= core.MaxCommands && k <= len(st.Commands); k++ {
		v.Commands.Keys[k].Value = st.Commands[k-1]
	}
	v.parking = st.Parking
	v.simTime = st.SimTime
	if slices.Contains([]core.VehicleState{core.StateSimulated, core.StateSleeping}, st.State) {
		v.state = st.State
	} else {
		v.state = core.StateSimulated
	}
	v.sleepTimer = 0
	v.Replay.Reset()
	v.Collider.Reset()
	v.beamsDirty = true
	body.UpdateBounds(&v.Bounds, 0, boundsPad)
	return nil
}
