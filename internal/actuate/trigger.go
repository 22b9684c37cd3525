package actuate

import (
	"fmt"
	"math"

	"github.com/OCAP2/softbody/internal/soft"
)

// HookAction is what a hook trigger asks of a lock group.
type HookAction int

const (
	HookLockGroup HookAction = iota + 1
	HookUnlockGroup
)

// EngineFunc is the engine control driven by an engine trigger.
type EngineFunc int

const (
	EngineClutch EngineFunc = iota
	EngineBrake
	EngineAccelerator
	EngineRPM
	EngineShiftUp
	EngineShiftDown
)

var engineFuncNames = map[string]EngineFunc{
	"clutch":      EngineClutch,
	"brake":       EngineBrake,
	"accelerator": EngineAccelerator,
	"rpm":         EngineRPM,
	"shift_up":    EngineShiftUp,
	"shift_down":  EngineShiftDown,
}

// ParseEngineFunc resolves an engine trigger function name; "" is clutch.
func ParseEngineFunc(name string) (EngineFunc, error) {
	if name == "" {
		return EngineClutch, nil
	}
	f, ok := engineFuncNames[name]
	if !ok {
		return 0, fmt.Errorf("unknown engine trigger function %q", name)
	}
	return f, nil
}

var triggerOptionNames = map[string]soft.TriggerFlag{
	"blocker":          soft.TriggerBlocker,
	"inverted_blocker": soft.TriggerBlockerInverted,
	"cmd_blocker":      soft.TriggerCmdBlocker,
	"switch":           soft.TriggerCmdSwitch,
	"hook_lock":        soft.TriggerHookLock,
	"hook_unlock":      soft.TriggerHookUnlock,
	"engine":           soft.TriggerEngine,
	"continuous":       soft.TriggerContinuous,
}

// ParseTriggerOptions combines trigger option names.
func ParseTriggerOptions(options []string) (soft.TriggerFlag, error) {
	var f soft.TriggerFlag
	for _, o := range options {
		v, ok := triggerOptionNames[o]
		if !ok {
			return 0, fmt.Errorf("unknown trigger option %q", o)
		}
		f |= v
	}
	return f, nil
}

// TriggerSink receives the trigger effects that live outside the command
// keys.
type TriggerSink interface {
	TriggerHooks(group int, action HookAction)
	TriggerEngine(fn EngineFunc, value float64)
}

// Triggers implements soft.TriggerHandler over a command key set.
type Triggers struct {
	Commands *Commands
	Sink     TriggerSink

	// switchState debounces command switches, keyed by beam.
	switchState map[int]float64
}

// NewTriggers binds trigger beams to cmds; sink may be nil.
func NewTriggers(cmds *Commands, sink TriggerSink) *Triggers {
	return &Triggers{Commands: cmds, Sink: sink, switchState: make(map[int]float64)}
}

var _ soft.TriggerHandler = (*Triggers)(nil)

func (t *Triggers) shock(b *soft.Body, beam int) *soft.Shock {
	if beam < 0 || beam >= len(b.Beams) {
		return nil
	}
	bm := &b.Beams[beam]
	if bm.Bounded != soft.Trigger || bm.Shock < 0 {
		return nil
	}
	return &b.Shocks[bm.Shock]
}

// enableRange sets TriggerEnabled on the trigger beams after beam.
func (t *Triggers) enableRange(b *soft.Body, beam, count int, on bool) {
	for j := beam + 1; j <= beam+count; j++ {
		if s := t.shock(b, j); s != nil {
			s.TriggerEnabled = on
		}
	}
}

func (t *Triggers) key(id int) *CommandKey {
	if t.Commands == nil || !validKey(id) {
		return nil
	}
	return &t.Commands.Keys[id]
}

func (t *Triggers) press(id int, v float64) {
	if k := t.key(id); k != nil && !k.Blocked {
		k.TriggerInput = v
	}
}

func (t *Triggers) hooks(group int, action HookAction) {
	if t.Sink != nil {
		t.Sink.TriggerHooks(group, action)
	}
}

func (t *Triggers) engine(fn int, v float64) {
	if t.Sink != nil {
		t.Sink.TriggerEngine(EngineFunc(fn), v)
	}
}

// Trigger evaluates trigger beam i with length deviation diff.
func (t *Triggers) Trigger(b *soft.Body, i int, diff, dt float64) {
	s := t.shock(b, i)
	if s == nil || !s.TriggerEnabled {
		return
	}
	bm := &b.Beams[i]
	f := s.TriggerFlags
	long := diff > bm.LongBound*bm.L
	short := diff < -bm.ShortBound*bm.L

	if long || short {
		t.switchState[i] = math.Max(0, t.switchState[i]-dt)
		switch {
		case f&soft.TriggerBlocker != 0:
			t.enableRange(b, i, s.TriggerShort, false)
		case f&soft.TriggerBlockerInverted != 0:
			t.enableRange(b, i, s.TriggerLong, true)
		case f&soft.TriggerCmdBlocker != 0:
			if k := t.key(s.TriggerShort); k != nil {
				k.Blocked = false
			}
		case f&soft.TriggerCmdSwitch != 0:
			if t.switchState[i] == 0 {
				t.swapPairs(b, i, s)
				t.switchState[i] = s.TriggerBound
			}
		case long:
			switch {
			case f&soft.TriggerHookUnlock != 0:
				t.hooks(s.TriggerLong, HookUnlockGroup)
			case f&soft.TriggerHookLock != 0:
				t.hooks(s.TriggerLong, HookLockGroup)
			case f&soft.TriggerEngine != 0:
				t.engine(s.EngineFunc, 1)
			case f&soft.TriggerContinuous != 0:
				t.press(s.TriggerShort, 1)
			default:
				t.press(s.TriggerLong, 1)
			}
		default:
			switch {
			case f&soft.TriggerHookUnlock != 0:
				t.hooks(s.TriggerShort, HookUnlockGroup)
			case f&soft.TriggerHookLock != 0:
				t.hooks(s.TriggerShort, HookLockGroup)
			case f&soft.TriggerEngine != 0:
				v := 1.0
				if f&soft.TriggerContinuous != 0 {
					v = 0
				}
				t.engine(s.EngineFunc, v)
			case f&soft.TriggerContinuous != 0:
				t.press(s.TriggerShort, 0)
			default:
				t.press(s.TriggerShort, 1)
			}
		}
		return
	}

	if f&soft.TriggerContinuous != 0 {
		span := bm.LongBound + bm.ShortBound
		if bm.L > 0 && span > 0 {
			v := (diff/bm.L + bm.ShortBound) / span
			v = math.Max(0, math.Min(v, 1))
			if f&soft.TriggerEngine != 0 {
				t.engine(s.EngineFunc, v)
			} else {
				t.press(s.TriggerShort, v)
				t.press(s.TriggerLong, v)
			}
		}
	}
	switch {
	case f&soft.TriggerBlocker != 0:
		t.enableRange(b, i, s.TriggerLong, true)
	case f&soft.TriggerBlockerInverted != 0:
		t.enableRange(b, i, s.TriggerShort, false)
	case f&soft.TriggerCmdSwitch != 0:
		if t.switchState[i] != 0 {
			t.switchState[i] = 0
		}
	case f&soft.TriggerCmdBlocker != 0:
		if k := t.key(s.TriggerShort); k != nil && !k.Blocked {
			k.Blocked = true
		}
	}
}

// swapPairs exchanges the short and long keys of every other trigger that
// shares the key pair of beam i.
func (t *Triggers) swapPairs(b *soft.Body, i int, s *soft.Shock) {
	a, c := s.TriggerShort, s.TriggerLong
	for j := range b.Beams {
		if j == i {
			continue
		}
		o := t.shock(b, j)
		if o == nil || o.TriggerFlags&soft.TriggerCmdSwitch != 0 {
			continue
		}
		if (o.TriggerShort == a && o.TriggerLong == c) || (o.TriggerShort == c && o.TriggerLong == a) {
			o.TriggerShort, o.TriggerLong = o.TriggerLong, o.TriggerShort
		}
	}
}

// Reset clears the command switch debounce state.
func (t *Triggers) Reset() {
	clear(t.switchState)
}
