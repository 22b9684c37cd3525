package actuate

import (
	"math"

	"github.com/OCAP2/softbody/internal/soft"
	"github.com/OCAP2/softbody/pkg/core"
)

// KeyState is the actuation state of a command key.
type KeyState int

const (
	Idle KeyState = iota
	Extending
	Retracting
	Held
)

func (s KeyState) String() string {
	return [...]string{"idle", "extending", "retracting", "held"}[s]
}

// OnePress modes of a command beam.
const (
	PressHold = iota
	PressOnce
	PressOnceCenter
)

const (
	activeThreshold = 0.01
	pressThreshold  = 0.5
	centerEpsilon   = 0.0001
	// machineCrank speeds up engineless machines.
	machineCrank = 2.0
)

// CommandBeam is the command record of one beam. Lengths are ratios of the
// beam reference length; rates are in ratio per second.
type CommandBeam struct {
	Beam           int
	ShortRatio     float64
	LongRatio      float64
	RateShort      float64
	RateLong       float64
	EngineCoupling float64
	NeedsEngine    bool
	Centering      bool
	OnePress       int
	CenterLength   float64
	ForceRestrict  bool

	moving        int
	pressedCenter bool
	moveLock      bool
}

type keyBeam struct {
	beam int
	dir  int
}

type keyRotator struct {
	rot int
	dir int
}

// CommandKey is one numbered actuator.
type CommandKey struct {
	ID          int
	Description string

	// PlayerInput and TriggerInput are combined with max each step;
	// TriggerInput is cleared after use.
	PlayerInput  float64
	TriggerInput float64
	Value        float64
	State        KeyState
	// Blocked stops plain triggers from driving the key.
	Blocked bool

	beams    []keyBeam
	rotators []keyRotator
	inertia  *Inertia
	rotInert *Inertia
}

// Bound reports whether any beam or rotator listens to the key.
func (k *CommandKey) Bound() bool { return len(k.beams) > 0 || len(k.rotators) > 0 }

// Power is the engine state seen by commands.
type Power struct {
	HasEngine   bool
	Running     bool
	CanWork     bool
	CrankFactor float64
}

// Load is what the commands ask of the engine after a step.
type Load struct {
	Work      float64
	Requested bool
	Active    int
}

// Commands owns the command keys and the beams and rotators they drive.
type Commands struct {
	Keys     [core.MaxCommands + 1]CommandKey
	Beams    []CommandBeam
	Rotators []Rotator
	// Machine vehicles run commands at double speed.
	Machine bool
}

// NewCommands returns an empty key set.
func NewCommands() *Commands {
	c := &Commands{}
	for i := range c.Keys {
		c.Keys[i].ID = i
	}
	return c
}

func validKey(id int) bool { return id >= 1 && id <= core.MaxCommands }

// Key returns command key id or an InteractionInvalid error.
func (c *Commands) Key(id int) (*CommandKey, error) {
	if !validKey(id) {
		return nil, core.NewError(core.InteractionInvalid, core.NoVehicle, core.CodeCommandOutOfRange, "command key %d out of range", id)
	}
	return &c.Keys[id], nil
}

// AddBeam registers cb, driven shorter by keyShort and longer by keyLong.
// Key 0 leaves that direction unbound.
func (c *Commands) AddBeam(cb CommandBeam, keyShort, keyLong int, inertia *Inertia) (int, error) {
	for _, k := range []int{keyShort, keyLong} {
		if k != 0 && !validKey(k) {
			return 0, core.NewError(core.DefinitionInvalid, core.NoVehicle, core.CodeBadCommand, "command key %d out of range", k)
		}
	}
	if cb.CenterLength == 0 {
		cb.CenterLength = 1
	}
	c.Beams = append(c.Beams, cb)
	idx := len(c.Beams) - 1
	if keyShort != 0 {
		c.bind(keyShort, keyBeam{beam: idx, dir: -1}, inertia)
	}
	if keyLong != 0 {
		c.bind(keyLong, keyBeam{beam: idx, dir: 1}, inertia)
	}
	return idx, nil
}

func (c *Commands) bind(id int, kb keyBeam, inertia *Inertia) {
	k := &c.Keys[id]
	k.beams = append(k.beams, kb)
	if inertia != nil && k.inertia == nil {
		cp := *inertia
		k.inertia = &cp
	}
}

// AddRotator registers r, turned one way by keyLeft and the other by keyRight.
func (c *Commands) AddRotator(r Rotator, keyLeft, keyRight int, inertia *Inertia) (int, error) {
	for _, k := range []int{keyLeft, keyRight} {
		if k != 0 && !validKey(k) {
			return 0, core.NewError(core.DefinitionInvalid, core.NoVehicle, core.CodeBadCommand, "command key %d out of range", k)
		}
	}
	c.Rotators = append(c.Rotators, r)
	idx := len(c.Rotators) - 1
	for _, kd := range []struct{ key, dir int }{{keyLeft, -1}, {keyRight, 1}} {
		if kd.key == 0 {
			continue
		}
		k := &c.Keys[kd.key]
		k.rotators = append(k.rotators, keyRotator{rot: idx, dir: kd.dir})
		if inertia != nil && k.rotInert == nil {
			cp := *inertia
			k.rotInert = &cp
		}
	}
	return idx, nil
}

// SetInputs copies the player command values; keys not present drop to 0.
func (c *Commands) SetInputs(values map[int]float64) {
	for i := 1; i <= core.MaxCommands; i++ {
		c.Keys[i].PlayerInput = math.Max(0, math.Min(values[i], 1))
	}
}

// Update runs one step: latches key values, moves command beams and
// rotator angles, and applies rotator forces to nodes.
func (c *Commands) Update(dt float64, pw Power, body *soft.Body) Load {
	var load Load
	crank := 1.0
	if pw.HasEngine {
		crank = pw.CrankFactor
	}
	if c.Machine {
		crank = machineCrank
	}

	for i := range c.Beams {
		c.Beams[i].moveLock = false
	}
	for i := 1; i <= core.MaxCommands; i++ {
		k := &c.Keys[i]
		k.Value = math.Max(k.PlayerInput, k.TriggerInput)
		k.TriggerInput = 0
		if k.Value >= pressThreshold {
			for _, kb := range k.beams {
				c.Beams[kb.beam].moveLock = true
			}
		}
	}

	engineBlocked := (pw.HasEngine && !pw.Running) || !pw.CanWork
	for i := 1; i <= core.MaxCommands; i++ {
		k := &c.Keys[i]
		var extended, retracted bool
		smoothed := k.Value
		if len(k.beams) > 0 {
			smoothed = k.inertia.Calc(k.Value, dt)
		}
		for _, kb := range k.beams {
			cb := &c.Beams[kb.beam]
			bm := &body.Beams[cb.Beam]
			cf := crank
			if cb.ForceRestrict {
				cf = math.Min(cf, 1)
			}
			v := k.Value

			if cb.Centering && !cb.moveLock {
				if bm.RefL == 0 || bm.L == 0 {
					continue
				}
				cur := bm.L / bm.RefL
				if math.Abs(cur-cb.CenterLength) < centerEpsilon {
					cb.moving = 0
				} else {
					prev := cb.moving
					if cur > cb.CenterLength {
						cb.moving = -1
					} else {
						cb.moving = 1
					}
					if prev != 0 && prev != cb.moving {
						bm.L = cb.CenterLength * bm.RefL
						cb.moving = 0
					}
				}
			}

			if bm.RefL == 0 || bm.L == 0 {
				continue
			}
			clen := bm.L / bm.RefL
			dir := float64(kb.dir)
			if (kb.dir > 0 && clen < cb.LongRatio) || (kb.dir < 0 && clen > cb.ShortRatio) {
				if cb.OnePress == PressOnceCenter {
					beyond := dir*clen > dir*cb.CenterLength
					switch {
					case kb.dir*cb.moving > 0 && beyond && !cb.pressedCenter:
						cb.pressedCenter = true
						cb.moving = 0
					case kb.dir*cb.moving < 0 && beyond && cb.pressedCenter:
						cb.pressedCenter = false
					}
				}
				if cb.OnePress > PressHold {
					pressed := v > pressThreshold
					switch {
					case kb.dir*cb.moving <= 0 && pressed:
						cb.moving = kb.dir
					case cb.moving == kb.dir && !pressed:
						cb.moving = kb.dir * 2
					case cb.moving == kb.dir*2 && pressed:
						cb.moving = kb.dir * 3
					case cb.moving == kb.dir*3 && !pressed:
						cb.moving = 0
					}
				}

				v = smoothed
				if kb.dir*cb.moving > 0 {
					v = 1
				}
				if cb.NeedsEngine && engineBlocked {
					continue
				}
				if v <= 0 {
					continue
				}
				scale := 1.0
				if cb.EngineCoupling > 0 {
					scale = cf
				}
				old := bm.L
				if kb.dir > 0 {
					bm.L = math.Min(bm.L+cb.RateLong*v*scale*dt*bm.RefL, cb.LongRatio*bm.RefL)
					extended = extended || bm.L != old
				} else {
					bm.L = math.Max(bm.L-cb.RateShort*v*scale*dt*bm.RefL, cb.ShortRatio*bm.RefL)
					retracted = retracted || bm.L != old
				}
				if cb.EngineCoupling > 0 {
					load.Requested = true
					load.Active++
					load.Work += math.Abs(bm.Stress) * math.Abs(old-bm.L) * cb.EngineCoupling
				}
			} else if cb.OnePress > PressHold && kb.dir*cb.moving > 0 {
				cb.moving = 0
			}
		}

		rotV := k.Value
		if len(k.rotators) > 0 {
			rotV = k.rotInert.Calc(k.Value, dt)
		}
		for _, kr := range k.rotators {
			r := &c.Rotators[kr.rot]
			if r.NeedsEngine && engineBlocked {
				continue
			}
			v := rotV
			if v > 0 && r.EngineCoupling > 0 {
				load.Requested = true
			}
			scale := 1.0
			if r.EngineCoupling > 0 {
				scale = crank
			}
			delta := r.Rate * v * scale * dt * float64(kr.dir)
			r.Angle += delta
			if delta > 0 {
				extended = true
			} else if delta < 0 {
				retracted = true
			}
		}

		switch {
		case extended:
			k.State = Extending
		case retracted:
			k.State = Retracting
		case k.Value > activeThreshold:
			k.State = Held
		default:
			k.State = Idle
		}
	}

	for i := range c.Rotators {
		c.Rotators[i].ApplyForces(body.Nodes)
	}
	return load
}

// Reset releases every key and restores command beams to their reference
// lengths.
func (c *Commands) Reset(body *soft.Body) {
	for i := range c.Keys {
		k := &c.Keys[i]
		k.PlayerInput, k.TriggerInput, k.Value = 0, 0, 0
		k.State = Idle
		k.inertia.Reset()
		k.rotInert.Reset()
	}
	for i := range c.Beams {
		cb := &c.Beams[i]
		cb.moving = 0
		cb.pressedCenter = false
		if bm := &body.Beams[cb.Beam]; bm.RefL > 0 {
			bm.L = bm.RefL
		}
	}
	for i := range c.Rotators {
		c.Rotators[i].Angle = 0
	}
}
