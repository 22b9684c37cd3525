package registry

import (
	"bytes"
	"context"
	"log/slog"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/OCAP2/softbody/internal/lock"
	"github.com/OCAP2/softbody/internal/logging"
	"github.com/OCAP2/softbody/internal/soft"
	"github.com/OCAP2/softbody/internal/vehicle"
	"github.com/OCAP2/softbody/internal/vmath"
	"github.com/OCAP2/softbody/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu      sync.Mutex
	events  []core.Event
	updates map[core.VehicleID]int
	sent    map[core.VehicleID]int
	resends map[core.VehicleID][]uint64
}

func newRecorder() *recorder {
	return &recorder{
		updates: map[core.VehicleID]int{},
		sent:    map[core.VehicleID]int{},
		resends: map[core.VehicleID][]uint64{},
	}
}

func (r *recorder) HandleEvents(events []core.Event) {
	r.mu.Lock()
	r.events = append(r.events, events...)
	r.mu.Unlock()
}

func (r *recorder) EnqueueVisualUpdate(id core.VehicleID, _ core.Snapshot) {
	r.mu.Lock()
	r.updates[id]++
	r.mu.Unlock()
}

func (r *recorder) SpawnFX(string, any) {}

func (r *recorder) Tx(id core.VehicleID, _ core.Snapshot) {
	r.mu.Lock()
	r.sent[id]++
	r.mu.Unlock()
}

func (r *recorder) RequestResend(id core.VehicleID, after uint64) {
	r.mu.Lock()
	r.resends[id] = append(r.resends[id], after)
	r.mu.Unlock()
}

func (r *recorder) kinds(id core.VehicleID) []core.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []core.EventKind
	for _, ev := range r.events {
		if ev.Vehicle == id {
			out = append(out, ev.Kind)
		}
	}
	return out
}

// boxDef is a stiff unit cube with collision triangles on all six faces,
// node index y*4 + x*2 + z plus the bottom and top face centres.
func boxDef(mass float64) *core.Definition {
	def := &core.Definition{Name: "box", DisableDrag: true, DisableSelfCollisions: true}
	for y := range 2 {
		for x := range 2 {
			for z := range 2 {
				def.Nodes = append(def.Nodes, core.NodeDef{Pos: core.Vec{float64(x), float64(y), float64(z)}, Mass: mass})
			}
		}
	}
	def.Nodes = append(def.Nodes,
		core.NodeDef{Pos: core.Vec{0.5, 0, 0.5}, Mass: mass},
		core.NodeDef{Pos: core.Vec{0.5, 1, 0.5}, Mass: mass},
	)
	for i := range def.Nodes {
		for j := i + 1; j < len(def.Nodes); j++ {
			def.Beams = append(def.Beams, core.BeamDef{N1: i, N2: j, Spring: 9e6, Damp: 12000, Deform: 1e12, Strength: 1e12})
		}
	}
	idx := func(x, y, z int) int { return y*4 + x*2 + z }
	quad := func(n0, n1, n2, n3 int) {
		def.Cabs = append(def.Cabs,
			core.CabDef{Nodes: [3]int{n0, n1, n2}, Collision: true},
			core.CabDef{Nodes: [3]int{n0, n2, n3}, Collision: true},
		)
	}
	for _, s := range []int{0, 1} {
		quad(idx(s, 0, 0), idx(s, 0, 1), idx(s, 1, 1), idx(s, 1, 0))
		quad(idx(0, 0, s), idx(1, 0, s), idx(1, 1, s), idx(0, 1, s))
		quad(idx(0, s, 0), idx(1, s, 0), idx(1, s, 1), idx(0, s, 1))
	}
	return def
}

func newRegistry(t *testing.T, cfg Config) (*Registry, *recorder) {
	t.Helper()
	rec := newRecorder()
	cfg.Events, cfg.Scene, cfg.Net = rec, rec, rec
	if cfg.SubSteps == 0 {
		cfg.SubSteps = 10
	}
	if cfg.Workers == 0 {
		cfg.Workers = 4
	}
	r, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r, rec
}

func (r *Registry) vehicle(id core.VehicleID) *vehicle.Vehicle {
	return r.byID[id].v
}

func setVelocity(v *vehicle.Vehicle, vel vmath.Vec3) {
	for i := range v.Body.Nodes {
		v.Body.Nodes[i].Vel = vel
	}
}

func momentumX(vs ...*vehicle.Vehicle) float64 {
	p := 0.0
	for _, v := range vs {
		for i := range v.Body.Nodes {
			n := &v.Body.Nodes[i]
			p += n.Mass * n.Vel.X
		}
	}
	return p
}

func centroidX(v *vehicle.Vehicle) float64 {
	x := 0.0
	for i := range v.Body.Nodes {
		x += v.Body.Nodes[i].Pos.X
	}
	return x / float64(len(v.Body.Nodes))
}

func TestRegistry_SpawnRejectsInvalidDefinition(t *testing.T) {
	r, _ := newRegistry(t, Config{})

	id, err := r.Spawn(&core.Definition{Name: "empty"}, vmath.Zero)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrDefinitionInvalid)
	assert.Equal(t, core.NoVehicle, id)
	assert.Equal(t, 0, r.Len())

	id, err = r.Spawn(boxDef(10), vmath.Zero)
	require.NoError(t, err)
	assert.Equal(t, core.VehicleID(0), id, "refused spawns use no id")
}

func TestRegistry_SpawnListsVehicles(t *testing.T) {
	r, _ := newRegistry(t, Config{})
	a, err := r.Spawn(boxDef(10), vmath.Zero)
	require.NoError(t, err)
	b, err := r.Spawn(boxDef(10), vmath.V(10, 0, 0))
	require.NoError(t, err)

	assert.Equal(t, core.VehicleID(0), a)
	assert.Equal(t, core.VehicleID(1), b)
	list := r.Vehicles()
	require.Len(t, list, 2)
	assert.Equal(t, Info{ID: 1, Name: "box", State: core.StateSimulated, Nodes: 10, Beams: 45}, list[1])

	_, ok := r.Snapshot(a)
	assert.False(t, ok, "nothing published before the first tick")
}

func TestRegistry_UnknownVehicle(t *testing.T) {
	r, _ := newRegistry(t, Config{})
	unknown := &core.SimError{Kind: core.InteractionInvalid, Code: core.CodeUnknownVehicle}

	assert.ErrorIs(t, r.SubmitInputs(42, core.Inputs{}), unknown)
	assert.ErrorIs(t, r.Remove(42), unknown)
	assert.ErrorIs(t, r.SetState(42, core.StateNetworked), unknown)
	assert.ErrorIs(t, r.PushRemote(42, core.Snapshot{Tick: 1}), unknown)
	_, err := r.Save(42)
	assert.ErrorIs(t, err, unknown)
}

func TestRegistry_TickPublishes(t *testing.T) {
	r, rec := newRegistry(t, Config{SubSteps: 20})
	id, err := r.Spawn(boxDef(10), vmath.V(0, 10, 0))
	require.NoError(t, err)
	assert.Equal(t, TickStats{}, r.LastStats())

	st := r.Tick(context.Background(), 1.0/60)
	assert.Equal(t, st, r.LastStats())
	assert.Equal(t, uint64(1), st.Tick)
	assert.Equal(t, 20, st.Steps)
	assert.Equal(t, 1, st.Vehicles)

	snap, ok := r.Snapshot(id)
	require.True(t, ok)
	assert.Equal(t, uint64(1), snap.Tick)
	assert.Equal(t, 10, snap.NodeCount())
	assert.Less(t, float64(snap.Nodes[1]), 10.0, "box falls")
	assert.InDelta(t, 20*soft.PhysicsDT, snap.SimTime, 1e-12)

	assert.Contains(t, rec.kinds(id), core.EventSpawn)
	assert.Equal(t, 1, rec.updates[id])
	assert.Equal(t, 1, rec.sent[id])
	assert.Equal(t, uint64(1), r.CurrentTick())
}

func TestRegistry_LogContext(t *testing.T) {
	var buf bytes.Buffer
	var r *Registry
	h := logging.NewContextHandler(slog.NewTextHandler(&buf, nil), func() []slog.Attr {
		if r == nil {
			return nil
		}
		return r.LogAttrs()
	})
	r, _ = newRegistry(t, Config{Logger: slog.New(h)})
	a, err := r.Spawn(boxDef(10), vmath.Zero)
	require.NoError(t, err)
	_, err = r.Spawn(boxDef(10), vmath.V(10, 0, 0))
	require.NoError(t, err)

	require.NoError(t, r.Remove(a))
	r.Tick(context.Background(), 1.0/60)
	slog.New(h).Info("after tick")

	var removed, after string
	for _, line := range strings.Split(buf.String(), "\n") {
		switch {
		case strings.Contains(line, `msg="vehicle removed"`):
			removed = line
		case strings.Contains(line, `msg="after tick"`):
			after = line
		}
	}
	assert.Contains(t, removed, "tick=1 vehicles=2", "stamped before the entry is dropped")
	assert.Contains(t, after, "tick=1 vehicles=1")
}

func TestRegistry_DefinitionSubSteps(t *testing.T) {
	rec := newRecorder()
	r, err := New(Config{Events: rec, Scene: rec, Net: rec, Workers: 2})
	require.NoError(t, err)
	t.Cleanup(r.Close)

	fine := boxDef(10)
	fine.SubSteps = 5
	plain, err := r.Spawn(boxDef(10), vmath.Zero)
	require.NoError(t, err)
	_, err = r.Spawn(fine, vmath.V(10, 0, 0))
	require.NoError(t, err)

	st := r.Tick(context.Background(), 1.0/60)
	assert.Equal(t, 5, st.Steps)

	coarse := boxDef(10)
	coarse.SubSteps = 12
	_, err = r.Spawn(coarse, vmath.V(20, 0, 0))
	require.NoError(t, err)
	st = r.Tick(context.Background(), 1.0/60)
	assert.Equal(t, 12, st.Steps, "the largest request wins")

	for _, id := range []core.VehicleID{1, 2} {
		require.NoError(t, r.Remove(id))
	}
	r.Tick(context.Background(), 1.0/60)
	require.Equal(t, 1, r.Len())
	assert.Equal(t, plain, r.Vehicles()[0].ID)

	// without a request the host dt decides
	st = r.Tick(context.Background(), 1.0/60)
	assert.InDelta(t, 1.0/60/soft.PhysicsDT, float64(st.Steps), 1)

	fixed, _ := newRegistry(t, Config{SubSteps: 20})
	_, err = fixed.Spawn(fine, vmath.Zero)
	require.NoError(t, err)
	assert.Equal(t, 20, fixed.Tick(context.Background(), 1.0/60).Steps, "a registry-wide count overrides definitions")
}

func TestRegistry_InputsApplyAtTickStart(t *testing.T) {
	r, _ := newRegistry(t, Config{})
	id, err := r.Spawn(boxDef(10), vmath.Zero)
	require.NoError(t, err)

	require.NoError(t, r.SubmitInputs(id, core.Inputs{Actions: []core.Action{core.ActionToggleLights}}))
	assert.Zero(t, r.vehicle(id).Lights(), "queued until the tick")

	r.Tick(context.Background(), 1.0/60)
	snap, ok := r.Snapshot(id)
	require.True(t, ok)
	assert.NotZero(t, snap.Lights&core.LightHeadlights)
}

func TestRegistry_RemoveIsDeferredToTickEnd(t *testing.T) {
	r, rec := newRegistry(t, Config{})
	id, err := r.Spawn(boxDef(10), vmath.Zero)
	require.NoError(t, err)
	r.Tick(context.Background(), 1.0/60)

	require.NoError(t, r.Remove(id))
	assert.Equal(t, 1, r.Len())

	st := r.Tick(context.Background(), 1.0/60)
	assert.Equal(t, 0, st.Vehicles)
	assert.Equal(t, 0, r.Len())
	assert.Contains(t, rec.kinds(id), core.EventRemove)
	_, ok := r.Snapshot(id)
	assert.False(t, ok)
	assert.Equal(t, 1, rec.updates[id], "removed vehicle publishes nothing more")
}

func TestRegistry_RemoveReleasesJoints(t *testing.T) {
	def := boxDef(10)
	def.Hooks = []core.HookDef{{Node: 0}}
	r, _ := newRegistry(t, Config{})
	a, err := r.Spawn(def, vmath.Zero)
	require.NoError(t, err)
	b, err := r.Spawn(boxDef(10), vmath.V(20, 0, 0))
	require.NoError(t, err)

	h := &r.vehicle(a).Locks.Hooks[0]
	h.State = lock.HookLocked
	h.Target = core.NodeRef{Vehicle: b, Node: 0}

	require.NoError(t, r.Remove(b))
	r.Tick(context.Background(), 1.0/60)
	assert.Equal(t, lock.HookUnlocked, h.State)
	assert.False(t, h.Target.Valid())
}

func TestRegistry_DivergedVehicleRemovedAtTickEnd(t *testing.T) {
	def := boxDef(10)
	def.Hooks = []core.HookDef{{Node: 0}}
	r, rec := newRegistry(t, Config{})
	a, err := r.Spawn(boxDef(10), vmath.Zero)
	require.NoError(t, err)
	b, err := r.Spawn(def, vmath.V(10, 0, 0))
	require.NoError(t, err)
	r.Tick(context.Background(), 1.0/60)

	h := &r.vehicle(b).Locks.Hooks[0]
	h.State = lock.HookLocked
	h.Target = core.NodeRef{Vehicle: a, Node: 9}
	r.vehicle(a).Body.Nodes[0].Pos.X = math.NaN()

	st := r.Tick(context.Background(), 1.0/60)
	assert.Equal(t, 2, st.Vehicles, "the diverged vehicle still took part in the tick")
	assert.Equal(t, 1, r.Len())
	require.Len(t, r.Vehicles(), 1)
	assert.Equal(t, b, r.Vehicles()[0].ID)
	assert.Equal(t, []core.EventKind{core.EventSpawn, core.EventNotice, core.EventRemove}, rec.kinds(a))
	_, ok := r.Snapshot(a)
	assert.False(t, ok)
	assert.ErrorIs(t, r.SubmitInputs(a, core.Inputs{}), core.ErrInteractionInvalid)

	assert.Equal(t, lock.HookUnlocked, h.State)
	assert.Equal(t, core.StateSimulated, r.vehicle(b).State())
	for i := range r.vehicle(b).Body.Nodes {
		assert.True(t, r.vehicle(b).Body.Nodes[i].Pos.IsFinite(), "node %d", i)
	}

	st = r.Tick(context.Background(), 1.0/60)
	assert.Equal(t, 1, st.Vehicles)
}

func TestRegistry_TrailerForwarding(t *testing.T) {
	def := boxDef(10)
	def.Hooks = []core.HookDef{{Node: 0}}
	r, _ := newRegistry(t, Config{})
	truck, err := r.Spawn(def, vmath.Zero)
	require.NoError(t, err)
	trailer, err := r.Spawn(boxDef(10), vmath.V(20, 0, 0))
	require.NoError(t, err)

	h := &r.vehicle(truck).Locks.Hooks[0]
	h.State = lock.HookLocked
	h.Target = core.NodeRef{Vehicle: trailer, Node: 0}

	require.NoError(t, r.SubmitInputs(truck, core.Inputs{Actions: []core.Action{
		core.ActionToggleTrailerBrake, core.ActionToggleLights,
	}}))
	r.Tick(context.Background(), 1.0/60)

	assert.True(t, r.vehicle(trailer).Parking())
	snap, ok := r.Snapshot(trailer)
	require.True(t, ok)
	assert.NotZero(t, snap.Lights&core.LightHeadlights)

	// the brake is only forwarded when the request changes
	r.vehicle(trailer).SetParking(false)
	r.Tick(context.Background(), 1.0/60)
	assert.False(t, r.vehicle(trailer).Parking())
}

func TestRegistry_MovingVehicleWakesSleeper(t *testing.T) {
	r, rec := newRegistry(t, Config{})
	sleeper, err := r.Spawn(boxDef(10), vmath.Zero)
	require.NoError(t, err)
	st, err := r.Save(sleeper)
	require.NoError(t, err)
	st.State = core.StateSleeping
	require.NoError(t, r.Restore(sleeper, st))
	assert.Equal(t, core.StateSleeping, r.Vehicles()[0].State)

	mover, err := r.Spawn(boxDef(10), vmath.V(1.05, 0, 0))
	require.NoError(t, err)
	setVelocity(r.vehicle(mover), vmath.V(-1, 0, 0))

	r.Tick(context.Background(), 1.0/60)
	assert.Contains(t, rec.kinds(sleeper), core.EventWake)
	assert.Equal(t, core.StateSimulated, r.Vehicles()[0].State)
}

func TestRegistry_HeadOnCollision(t *testing.T) {
	r, rec := newRegistry(t, Config{SubSteps: 20})
	a, err := r.Spawn(boxDef(100), vmath.Zero)
	require.NoError(t, err)
	b, err := r.Spawn(boxDef(100), vmath.V(1.1, 0.1, 0.25))
	require.NoError(t, err)
	va, vb := r.vehicle(a), r.vehicle(b)
	setVelocity(va, vmath.V(10, 0, 0))
	setVelocity(vb, vmath.V(-10, 0, 0))

	for range 30 {
		r.Tick(context.Background(), 1.0/60)
	}

	for _, v := range []*vehicle.Vehicle{va, vb} {
		for i := range v.Body.Nodes {
			p := v.Body.Nodes[i].Pos
			require.False(t, math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsNaN(p.Z))
		}
	}
	assert.InDelta(t, 0, momentumX(va, vb), 1)
	assert.Less(t, centroidX(va)+1, centroidX(vb), "the boxes never pass through")
	assert.NotContains(t, rec.kinds(a), core.EventExplode)
}

func TestRegistry_DisableTruckTruckCollisions(t *testing.T) {
	ghost := boxDef(100)
	ghost.DisableTruckTruckCollisions = true
	r, _ := newRegistry(t, Config{SubSteps: 20})
	a, err := r.Spawn(ghost, vmath.Zero)
	require.NoError(t, err)
	b, err := r.Spawn(boxDef(100), vmath.V(1.1, 0.1, 0.25))
	require.NoError(t, err)
	setVelocity(r.vehicle(a), vmath.V(10, 0, 0))
	setVelocity(r.vehicle(b), vmath.V(-10, 0, 0))

	for range 30 {
		r.Tick(context.Background(), 1.0/60)
	}
	assert.Greater(t, centroidX(r.vehicle(a)), centroidX(r.vehicle(b)), "the boxes pass through each other")
}

func TestRegistry_NetworkedVehicleFollowsRemoteState(t *testing.T) {
	r, rec := newRegistry(t, Config{})
	id, err := r.Spawn(boxDef(10), vmath.Zero)
	require.NoError(t, err)
	require.NoError(t, r.SetState(id, core.StateNetworked))
	r.Tick(context.Background(), 1.0/60)
	sentBefore := rec.sent[id]

	remote := core.Snapshot{Vehicle: id, Tick: 5, SimTime: 1}
	for i := range 10 {
		p := r.vehicle(id).Body.Nodes[i].Pos
		remote.Nodes = append(remote.Nodes, float32(p.X+3), float32(p.Y), float32(p.Z))
	}
	require.NoError(t, r.PushRemote(id, remote))
	assert.ErrorIs(t, r.PushRemote(id, remote), core.ErrSnapshotStale)
	assert.Equal(t, []uint64{5}, rec.resends[id])

	r.Tick(context.Background(), 1.0/60)
	snap, ok := r.Snapshot(id)
	require.True(t, ok)
	assert.Equal(t, core.StateNetworked, snap.State)
	assert.InDelta(t, 3, snap.Nodes[0], 1e-6)
	assert.Equal(t, sentBefore, rec.sent[id], "networked vehicles are not sent back")
}

func TestRegistry_StaleSnapshotRequestsResend(t *testing.T) {
	r, rec := newRegistry(t, Config{})
	id, err := r.Spawn(boxDef(10), vmath.Zero)
	require.NoError(t, err)
	require.NoError(t, r.SetState(id, core.StateNetworked))
	r.Tick(context.Background(), 1.0/60)

	require.NoError(t, r.PushRemote(id, core.Snapshot{Vehicle: id, Tick: 8}))
	assert.ErrorIs(t, r.PushRemote(id, core.Snapshot{Vehicle: id, Tick: 3}), core.ErrSnapshotStale)
	assert.ErrorIs(t, r.PushRemote(id, core.Snapshot{Vehicle: id, Tick: 8}), core.ErrSnapshotStale)
	require.NoError(t, r.PushRemote(id, core.Snapshot{Vehicle: id, Tick: 9}))

	assert.Equal(t, []uint64{8, 8}, rec.resends[id], "each stale push asks for what follows the newest state")
	assert.Equal(t, uint64(9), r.vehicle(id).RemoteTick())

	err = r.PushRemote(42, core.Snapshot{Tick: 1})
	assert.ErrorIs(t, err, &core.SimError{Kind: core.InteractionInvalid, Code: core.CodeUnknownVehicle})
	assert.Empty(t, rec.resends[42])
}

func TestOverlapping(t *testing.T) {
	box := func(x float64) vmath.AABB {
		return vmath.AABB{Min: vmath.V(x, 0, 0), Max: vmath.V(x+1, 1, 1)}
	}
	pairs := overlapping([]vmath.AABB{box(0), box(0.5), vmath.EmptyAABB(), box(5), box(5.5), box(1.2)})
	assert.Equal(t, [][2]int{{0, 1}, {1, 5}, {3, 4}}, pairs)
	assert.Nil(t, overlapping([]vmath.AABB{box(0)}))
}

func TestPool_RunsEveryIndex(t *testing.T) {
	p := newPool(3)
	defer p.close()
	for _, n := range []int{1, 2, 7, 100} {
		hits := make([]int, n)
		p.run(n, func(i int) { hits[i]++ })
		for i, h := range hits {
			require.Equal(t, 1, h, "n=%d index %d", n, i)
		}
	}
}
