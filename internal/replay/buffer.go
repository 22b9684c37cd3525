// Package replay keeps a ring of recent node and beam states of a vehicle
// and plays them back in place of the integrator.
package replay

import (
	"math"

	"github.com/OCAP2/softbody/internal/soft"
	"github.com/OCAP2/softbody/internal/vmath"
	"github.com/OCAP2/softbody/pkg/core"
)

// NodeState is the recorded state of one node.
type NodeState struct {
	Pos vmath.Vec3 `json:"pos"`
	Vel vmath.Vec3 `json:"vel"`
}

// BeamState is the recorded state of one beam. The rest length and the
// thresholds are kept so that plastic deformation rewinds too.
type BeamState struct {
	L            float64 `json:"l"`
	Stress       float64 `json:"stress"`
	MaxPosStress float64 `json:"maxPos"`
	MaxNegStress float64 `json:"maxNeg"`
	Strength     float64 `json:"strength"`
	Broken       bool    `json:"broken,omitempty"`
	Disabled     bool    `json:"disabled,omitempty"`
}

// Frame is one recorded step.
type Frame struct {
	Time  float64     `json:"time"`
	Nodes []NodeState `json:"nodes"`
	Beams []BeamState `json:"beams"`
}

// Buffer is a fixed capacity ring of frames; the oldest frame is
// overwritten once it is full. Frames are addressed by negative offsets
// from the newest one (-1).
type Buffer struct {
	frames    []Frame
	write     int
	count     int
	precision float64
	timer     float64
	clock     float64

	active  bool
	pos     float64
	applied float64
}

// NewBuffer returns a buffer of length frames taken stepping times per
// simulated second. A stepping of zero or less records every physics step.
func NewBuffer(length, stepping int) *Buffer {
	b := &Buffer{
		frames:  make([]Frame, max(length, 1)),
		pos:     -1,
		applied: math.NaN(),
	}
	if stepping > 0 {
		b.precision = 1 / float64(stepping)
	}
	return b
}

// Capacity returns the number of frames the ring holds.
func (b *Buffer) Capacity() int { return len(b.frames) }

// Len returns the number of recorded frames.
func (b *Buffer) Len() int { return b.count }

// Precision returns the recording interval in seconds.
func (b *Buffer) Precision() float64 { return b.precision }

// Clock returns the simulated time of the last physics step seen.
func (b *Buffer) Clock() float64 { return b.clock }

// OnPhysicsStep advances the recording timer by dt and records body when
// the interval has elapsed.
func (b *Buffer) OnPhysicsStep(body *soft.Body, dt float64) {
	b.clock += dt
	b.timer += dt
	if b.timer >= b.precision {
		b.Record(body)
		b.timer = 0
	}
}

// Record writes the current state of body into the next slot.
func (b *Buffer) Record(body *soft.Body) {
	f := &b.frames[b.write]
	f.Time = b.clock
	f.Nodes = f.Nodes[:0]
	for i := range body.Nodes {
		n := &body.Nodes[i]
		f.Nodes = append(f.Nodes, NodeState{Pos: n.Pos, Vel: n.Vel})
	}
	f.Beams = f.Beams[:0]
	for i := range body.Beams {
		bm := &body.Beams[i]
		f.Beams = append(f.Beams, BeamState{
			L:            bm.L,
			Stress:       bm.Stress,
			MaxPosStress: bm.MaxPosStress,
			MaxNegStress: bm.MaxNegStress,
			Strength:     bm.Strength,
			Broken:       bm.Broken,
			Disabled:     bm.Disabled,
		})
	}
	b.write = (b.write + 1) % len(b.frames)
	b.count = min(b.count+1, len(b.frames))
}

// clamp keeps offset within the recorded frames.
func (b *Buffer) clamp(offset int) int {
	if offset >= 0 {
		offset = -1
	}
	return max(offset, -b.count)
}

func (b *Buffer) index(offset int) int {
	n := len(b.frames)
	return ((b.write+offset)%n + n) % n
}

// Frame returns the frame at offset, clamped to the recorded range.
func (b *Buffer) Frame(offset int) (*Frame, bool) {
	if b.count == 0 {
		return nil, false
	}
	return &b.frames[b.index(b.clamp(offset))], true
}

// Frames calls fn for each recorded frame, oldest first.
func (b *Buffer) Frames(fn func(*Frame) bool) {
	for off := -b.count; off < 0; off++ {
		if !fn(&b.frames[b.index(off)]) {
			return
		}
	}
}

// Active reports whether the buffer is in playback mode.
func (b *Buffer) Active() bool { return b.active }

// Enter starts playback at the newest frame.
func (b *Buffer) Enter() {
	b.active = true
	b.pos = -1
	b.applied = math.NaN()
}

// Position returns the playback position as a negative frame offset.
func (b *Buffer) Position() float64 { return b.pos }

// Seek moves the playback position to offset, clamped to the recording.
func (b *Buffer) Seek(offset float64) {
	b.pos = math.Min(-1, math.Max(offset, -float64(max(b.count, 1))))
}

// Scrub moves the playback position by rate frames per second over dt.
func (b *Buffer) Scrub(rate, dt float64) {
	if rate != 0 {
		b.Seek(b.pos + rate*dt)
	}
}

// Apply writes the playback position into body. Between two frames node
// states are interpolated and beams take the older frame. It reports
// whether body changed.
func (b *Buffer) Apply(body *soft.Body) bool {
	if b.count == 0 || b.pos == b.applied {
		return false
	}
	lo := int(math.Floor(b.pos))
	t := b.pos - float64(lo)
	older, _ := b.Frame(lo)
	newer := older
	if t > 0 {
		newer, _ = b.Frame(lo + 1)
	}
	for i := range body.Nodes {
		if i >= len(older.Nodes) || i >= len(newer.Nodes) {
			break
		}
		n := &body.Nodes[i]
		n.Pos = older.Nodes[i].Pos.Lerp(newer.Nodes[i].Pos, t)
		n.Vel = older.Nodes[i].Vel.Lerp(newer.Nodes[i].Vel, t)
		n.Force = vmath.Zero
	}
	for i := range body.Beams {
		if i >= len(older.Beams) {
			break
		}
		s := &older.Beams[i]
		bm := &body.Beams[i]
		bm.L = s.L
		bm.Stress = s.Stress
		bm.MaxPosStress = s.MaxPosStress
		bm.MaxNegStress = s.MaxNegStress
		bm.Strength = s.Strength
		bm.MinMaxPosNegStress = min(s.MaxPosStress, -s.MaxNegStress, s.Strength)
		bm.Broken = s.Broken
		bm.Disabled = s.Disabled
	}
	b.applied = b.pos
	return true
}

// Resume leaves playback. The body is set to the nearest whole frame at or
// before the playback position with forces cleared, frames after it are
// dropped and recording continues from there.
func (b *Buffer) Resume(body *soft.Body, vehicle core.VehicleID) error {
	if !b.active {
		return nil
	}
	b.active = false
	if b.count == 0 {
		return core.NewError(core.InteractionInvalid, vehicle, core.CodeReplayEmpty, "replay buffer is empty")
	}
	off := b.clamp(int(math.Floor(b.pos)))
	b.pos = float64(off)
	b.applied = math.NaN()
	b.Apply(body)

	f, _ := b.Frame(off)
	b.clock = f.Time
	b.timer = 0
	b.write = b.index(off + 1)
	b.count -= -off - 1
	b.pos = -1
	b.applied = math.NaN()
	return nil
}

// Reset drops every frame.
func (b *Buffer) Reset() {
	b.write, b.count = 0, 0
	b.timer = 0
	b.active = false
	b.pos = -1
	b.applied = math.NaN()
}
