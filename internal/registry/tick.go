package registry

import (
	"context"
	"slices"
	"time"

	"github.com/OCAP2/softbody/internal/collision"
	"github.com/OCAP2/softbody/internal/lock"
	"github.com/OCAP2/softbody/internal/marine"
	"github.com/OCAP2/softbody/internal/soft"
	"github.com/OCAP2/softbody/internal/vmath"
	"github.com/OCAP2/softbody/pkg/core"
)

// wakeActivity is the mean squared node speed above which a vehicle wakes
// the sleepers its box touches.
const wakeActivity = 0.01

// trailerLights are the flags a towing vehicle forwards to what it tows.
const trailerLights = core.LightHeadlights | core.LightBrake | core.LightReverse |
	core.LightBlinkLeft | core.LightBlinkRight

type output struct {
	id    core.VehicleID
	snap  core.Snapshot
	ok    bool
	net   bool
	hints []marine.Hint
}

// Tick advances the simulation by hostDt seconds of host time.
func (r *Registry) Tick(ctx context.Context, hostDt float64) TickStats {
	start := time.Now()
	r.tickMu.Lock()

	tick := r.tick.Add(1)
	r.drainInbox()
	live := r.live()

	for _, e := range live {
		e.v.ApplyInputs(tick)
	}
	peers := make([]lock.Peer, len(live))
	for i, e := range live {
		peers[i] = e.v.Peer()
	}
	for _, e := range live {
		e.v.RunToggles(peers)
	}
	r.forwardTrailers(live)
	r.broadphase(live)

	if r.cfg.SubSteps <= 0 {
		r.stepper.Fixed = definitionSteps(live)
	}
	steps := r.stepper.Steps(hostDt)
	r.step(live, steps)

	wall := time.Now()
	r.pool.run(len(live), func(i int) {
		v := live[i].v
		v.ReplayTick(hostDt)
		v.EndTick(hostDt, wall)
	})

	var events []core.Event
	outs := make([]output, 0, len(live))
	for _, e := range live {
		events = append(events, e.v.DrainEvents()...)
		o := output{id: e.v.ID, hints: e.v.DrainHints()}
		o.snap, o.ok = e.v.Snapshot()
		o.net = o.ok && o.snap.State != core.StateNetworked
		outs = append(outs, o)
	}
	r.dropDiverged(live)
	events = append(events, r.removeDeleting(tick)...)

	r.mu.Lock()
	for _, e := range r.entries {
		e.state = e.v.State()
	}
	r.mu.Unlock()
	r.tickMu.Unlock()

	r.deliver(outs, events)
	st := TickStats{
		Tick:     tick,
		Steps:    steps,
		Vehicles: len(live),
		Events:   len(events),
		Duration: time.Since(start),
	}
	r.metrics.record(ctx, st, events)
	r.last.Store(&st)
	return st
}

// drainInbox applies the messages queued since the last tick.
func (r *Registry) drainInbox() {
	for _, m := range r.inbox.Drain() {
		e, ok := r.byID[m.id]
		if !ok || e.deleting {
			continue
		}
		switch m.kind {
		case msgInputs:
			e.v.SubmitInputs(m.inputs)
		case msgRemove:
			e.deleting = true
			r.log.Debug("vehicle removal requested", "vehicle", m.id)
		case msgState:
			if err := e.v.SetState(m.state); err != nil {
				r.log.Warn("state change failed", "vehicle", m.id, "state", m.state, "error", err)
			}
		}
	}
}

// live returns the vehicles taking part in this tick.
func (r *Registry) live() []*entry {
	out := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		if !e.deleting {
			out = append(out, e)
		}
	}
	return out
}

// forwardTrailers passes the trailer brake toggle and the driving lights of
// every towing vehicle to the vehicles it holds.
func (r *Registry) forwardTrailers(live []*entry) {
	for _, e := range live {
		tp := e.v.TrailerParking()
		changed := tp != e.trailerParking
		e.trailerParking = tp
		for _, id := range e.v.Locks.Towed() {
			t, ok := r.byID[id]
			if !ok || t.deleting {
				continue
			}
			if changed {
				t.v.SetParking(tp)
			}
			t.v.SetLights(t.v.Lights()&^trailerLights | e.v.Lights()&trailerLights)
		}
	}
}

// definitionSteps is the largest step count requested by a live vehicle
// definition, zero when none asks for one.
func definitionSteps(live []*entry) int {
	n := 0
	for _, e := range live {
		n = max(n, e.subSteps)
	}
	return n
}

// collides reports whether a vehicle in state s takes part in inter-vehicle
// contact.
func collides(s core.VehicleState) bool {
	return s == core.StateSimulated || s == core.StateSleeping || s == core.StateNetworked
}

// broadphase pairs vehicles whose predicted boxes overlap and wakes
// sleepers touched by a moving vehicle.
func (r *Registry) broadphase(live []*entry) {
	boxes := make([]vmath.AABB, len(live))
	for i, e := range live {
		e.pairs = e.pairs[:0]
		if e.noTruck || !collides(e.v.State()) {
			boxes[i] = vmath.EmptyAABB()
			continue
		}
		boxes[i] = e.v.Bounds.Predicted
	}
	for _, p := range overlapping(boxes) {
		a, b := live[p[0]], live[p[1]]
		wake(a, b)
		wake(b, a)
		a.pairs = append(a.pairs, p[1])
		b.pairs = append(b.pairs, p[0])
	}
}

func wake(sleeper, other *entry) {
	if sleeper.v.State() == core.StateSleeping && other.v.Simulated() && other.v.Activity() > wakeActivity {
		sleeper.v.Wake()
	}
}

// step runs the physics steps of the tick. Each phase finishes for every
// vehicle before the next one starts.
func (r *Registry) step(live []*entry, steps int) {
	n := len(live)
	if n == 0 || steps == 0 {
		return
	}
	dt := soft.PhysicsDT
	ground := r.cfg.Ground
	sp := &space{byID: r.byID}
	partners := make([][]collision.Partner, n)
	for range steps {
		r.pool.run(n, func(i int) {
			live[i].v.Local(dt, ground)
		})
		for i, e := range live {
			partners[i] = partners[i][:0]
			for _, j := range e.pairs {
				partners[i] = append(partners[i], live[j].v.Partner())
			}
		}
		r.pool.run(n, func(i int) {
			live[i].v.Inter(dt, sp, partners[i])
		})
		r.pool.run(n, func(i int) {
			live[i].v.Post(dt)
		})
	}
}

// dropDiverged marks the vehicles whose integration diverged this tick for
// removal at its end.
func (r *Registry) dropDiverged(live []*entry) {
	for _, e := range live {
		if e.v.State() == core.StateInvalid {
			e.deleting = true
			r.log.Warn("vehicle diverged", "vehicle", e.v.ID, "name", e.v.Name)
		}
	}
}

// removeDeleting unregisters the vehicles marked for removal and releases
// every joint between them and the rest.
func (r *Registry) removeDeleting(tick uint64) []core.Event {
	if !slices.ContainsFunc(r.entries, func(e *entry) bool { return e.deleting }) {
		return nil
	}
	keep := make([]*entry, 0, len(r.entries))
	var gone []*entry
	for _, e := range r.entries {
		if e.deleting {
			gone = append(gone, e)
		} else {
			keep = append(keep, e)
		}
	}
	peers := make([]lock.Peer, len(keep))
	for i, e := range keep {
		peers[i] = e.v.Peer()
	}

	var events []core.Event
	for _, g := range gone {
		g.v.Locks.Reset(g.v.Body, peers)
		for _, e := range keep {
			e.v.Locks.Release(g.v.ID, e.v.Body)
		}
		ev := core.NewEvent(core.EventRemove, g.v.ID)
		ev.Tick = tick
		ev.SimTime = g.v.SimTime()
		ev.Msg = g.v.Name
		events = append(events, ev)
		r.log.Info("vehicle removed", "vehicle", g.v.ID, "name", g.v.Name)
	}

	r.mu.Lock()
	r.entries = keep
	for _, g := range gone {
		delete(r.byID, g.v.ID)
	}
	r.count.Store(int64(len(keep)))
	r.mu.Unlock()
	return events
}

// deliver hands the tick results to the scene, the network and the event
// sink.
func (r *Registry) deliver(outs []output, events []core.Event) {
	for _, o := range outs {
		if r.cfg.Scene != nil {
			if o.ok {
				r.cfg.Scene.EnqueueVisualUpdate(o.id, o.snap)
			}
			if len(o.hints) > 0 {
				r.cfg.Scene.SpawnFX(FXWater, o.hints)
			}
		}
		if r.cfg.Net != nil && o.net {
			r.cfg.Net.Tx(o.id, o.snap)
		}
	}
	for _, ev := range events {
		switch ev.Kind {
		case core.EventExplode:
			r.log.Warn("vehicle exploded", "vehicle", ev.Vehicle, "node", ev.Node)
		case core.EventNotice:
			r.log.Debug("notice", "vehicle", ev.Vehicle, "code", ev.Code, "msg", ev.Msg)
		}
	}
	if r.cfg.Events != nil && len(events) > 0 {
		r.cfg.Events.HandleEvents(events)
	}
}
