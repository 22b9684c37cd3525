package lock

import (
	"math"

	"github.com/OCAP2/softbody/internal/soft"
	"github.com/OCAP2/softbody/pkg/core"
)

// Hook defaults.
const (
	HookRangeDefault = 0.4
	// HookSpeedDefault is the pull-in rate in m/s.
	HookSpeedDefault = 0.5
	HookForceDefault = 10000000.0
	HookTimerDefault = 5.0

	// hookLockedLength is the rest length left when pull-in completes.
	hookLockedLength = 0.001
)

// Hook groups. Manual hooks sit in GroupManual or a positive group,
// autolock hooks in GroupAuto, trigger-driven hooks at GroupTrigger or below.
const (
	GroupManual  = -1
	GroupAuto    = -2
	GroupTrigger = -3
)

// HookState is the lock cycle of a hook.
type HookState int

const (
	HookUnlocked HookState = iota
	HookPreLock
	HookLocked
	HookPreUnlock
)

func (s HookState) String() string {
	return [...]string{"unlocked", "prelock", "locked", "preunlock"}[s]
}

// HookMode selects what a hook request does.
type HookMode int

const (
	HookToggle HookMode = iota
	HookLock
	HookUnlock
)

// Hook is a node that grabs the nearest eligible node within LockRange and
// pulls it in over a temporary beam.
type Hook struct {
	Node int
	Beam int

	Group     int
	LockGroup int
	LockRange float64
	LockSpeed float64
	MaxForce  float64
	MinLength float64

	// Timer blocks autolock after an unlock until it runs out.
	Timer       float64
	TimerPreset float64

	AutoLock  bool
	SelfLock  bool
	NoDisable bool

	State  HookState
	Target core.NodeRef
}

// AddHook creates a hook and its parked beam on body.
func (l *Locks) AddHook(body *soft.Body, def core.HookDef) (int, error) {
	if def.Node < 0 || def.Node >= len(body.Nodes) || len(body.Nodes) < 2 {
		return 0, l.nodeError("hook", def.Node, len(body.Nodes))
	}
	h := Hook{
		Node:        def.Node,
		Group:       orDefaultGroup(def.Group),
		LockGroup:   orDefaultGroup(def.LockGroup),
		LockRange:   orDefault(def.LockRange, HookRangeDefault),
		LockSpeed:   orDefault(def.LockSpeed, HookSpeedDefault),
		MaxForce:    orDefault(def.MaxForce, HookForceDefault),
		MinLength:   def.MinLength,
		TimerPreset: orDefault(def.Timer, HookTimerDefault),
		AutoLock:    def.AutoLock,
		SelfLock:    def.SelfLock,
		NoDisable:   def.NoDisable,
		Target:      core.NoNode,
	}
	if h.AutoLock && h.Group == GroupManual {
		h.Group = GroupAuto
	}
	anchor := body.Nodes[anchorFor(def.Node)].Pos
	h.Beam = newJointBeam(body, def.Node, soft.BeamHook, body.Nodes[def.Node].Pos.Dist(anchor))
	bm := &body.Beams[h.Beam]
	bm.SetThresholds(soft.DefaultDeform, h.MaxForce)
	if def.NoRope {
		bm.Bounded = soft.Regular
	}
	l.Hooks = append(l.Hooks, h)
	return len(l.Hooks) - 1, nil
}

func orDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

func orDefaultGroup(g int) int {
	if g == 0 {
		return GroupManual
	}
	return g
}

// selects applies the group filter of a hook request.
func (h *Hook) selects(group int, mode HookMode) bool {
	switch {
	case mode == HookToggle && group == GroupManual:
		return h.Group > GroupAuto
	case mode == HookToggle:
		return h.Group == group
	case group == GroupAuto:
		return h.Group < GroupManual && h.AutoLock
	default:
		return h.Group == group
	}
}

// ToggleHooks locks, unlocks or toggles the hooks selected by group. It
// returns an InteractionInvalid error when the group names no hook, or when
// a manual lock request finds nothing in range.
func (l *Locks) ToggleHooks(body *soft.Body, peers []Peer, group int, mode HookMode) error {
	matched, locked := 0, 0
	for i := range l.Hooks {
		h := &l.Hooks[i]
		if !h.selects(group, mode) {
			continue
		}
		matched++
		if mode == HookLock && h.Timer > 0 {
			continue
		}
		switch {
		case mode != HookUnlock && h.State == HookUnlocked:
			if l.scanHook(h, body, peers) {
				locked++
			}
		case (h.State == HookLocked || h.State == HookPreLock) && (mode != HookLock || !h.Target.Valid()):
			l.unlockHook(h, body, true)
			h.State = HookPreUnlock
		}
	}
	if group == GroupAuto {
		return nil
	}
	if matched == 0 {
		return core.NewError(core.InteractionInvalid, l.Vehicle, core.CodeUnknownLockGroup, "no hook in group %d", group)
	}
	if mode == HookLock && locked == 0 {
		return core.NewError(core.InteractionInvalid, l.Vehicle, core.CodeHookOutOfRange, "no lock target in range for group %d", group)
	}
	return nil
}

// scanHook picks the nearest eligible node and moves h to PreLock.
func (l *Locks) scanHook(h *Hook, body *soft.Body, peers []Peer) bool {
	origin := body.Nodes[h.Node].Pos
	best := inf
	target := core.NoNode
	for _, p := range peers {
		if p.Sleeping || p.Body == nil {
			continue
		}
		self := p.ID == l.Vehicle
		if self && !h.SelfLock {
			continue
		}
		for n := range p.Body.Nodes {
			node := &p.Body.Nodes[n]
			if node.LockGroup == soft.LockGroupDeny || (self && n == h.Node) {
				continue
			}
			if h.LockGroup != soft.LockGroupDefault && h.LockGroup != node.LockGroup {
				continue
			}
			d := origin.Dist(node.Pos)
			if d < h.LockRange && d <= best {
				best = d
				target = core.NodeRef{Vehicle: p.ID, Node: n}
			}
		}
	}
	if !target.Valid() {
		return false
	}
	h.Target = target
	h.State = HookPreLock
	return true
}

// unlockHook frees h at once and parks its beam.
func (l *Locks) unlockHook(h *Hook, body *soft.Body, event bool) {
	if h.Group <= GroupAuto {
		h.Timer = h.TimerPreset
	}
	bm := &body.Beams[h.Beam]
	engaged := bm.Broken || !bm.Disabled
	other := h.Target
	h.Target = core.NoNode
	h.State = HookUnlocked
	parkBeam(body, h.Beam)
	if event && engaged {
		l.emit(core.EventHookUnlock, h.Node, other)
	}
}

func (l *Locks) updateHooks(dt float64, body *soft.Body, space Space) {
	for i := range l.Hooks {
		h := &l.Hooks[i]
		h.Timer = math.Max(0, h.Timer-dt)
		bm := &body.Beams[h.Beam]

		if (h.State == HookLocked || h.State == HookPreLock) && bm.Broken {
			l.unlockHook(h, body, true)
			continue
		}
		if h.State == HookPreLock && h.Target.Valid() {
			l.pullHook(h, body, space, dt)
		} else if h.State == HookLocked && bm.Inter {
			if _, _, ok := l.position(body, space, h.Target); !ok {
				l.unlockHook(h, body, true)
			}
		}
		if h.State == HookPreUnlock {
			h.State = HookUnlocked
		}
	}
}

// pullHook engages the beam of a prelocked hook and shortens it until the
// hook counts as locked.
func (l *Locks) pullHook(h *Hook, body *soft.Body, space Space, dt float64) {
	bm := &body.Beams[h.Beam]
	if bm.Disabled {
		pos, _, ok := l.position(body, space, h.Target)
		if !ok {
			l.unlockHook(h, body, false)
			return
		}
		l.attachBeam(body, h.Beam, h.Target)
		bm.L = body.Nodes[h.Node].Pos.Dist(pos)
		l.emit(core.EventHookLock, h.Node, h.Target)
		return
	}
	step := h.LockSpeed * dt
	stress := math.Abs(bm.Stress)
	switch {
	case bm.L < h.MinLength:
		h.State = HookLocked
	case bm.L > step && stress < h.MaxForce:
		bm.L -= step
	case stress < h.MaxForce:
		bm.L = hookLockedLength
		h.State = HookLocked
	case h.NoDisable:
		h.State = HookLocked
	default:
		l.unlockHook(h, body, true)
	}
}
