package engine

import (
	"sort"
	"testing"

	"github.com/OCAP2/softbody/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dt = 0.0005

func truckDef() *core.EngineDef {
	return &core.EngineDef{
		ShiftDownRPM: 1500,
		ShiftUpRPM:   6000,
		Torque:       2000,
		DiffRatio:    1,
		GearRatios:   []float64{3, 0, 3, 2, 1},
		Type:         "t",
		Inertia:      0.5,
		IdleRPM:      800,
		StallRPM:     400,
	}
}

func newEngine(t *testing.T, def *core.EngineDef) *Engine {
	t.Helper()
	e, err := New(def)
	require.NoError(t, err)
	return e
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	def := truckDef()
	def.GearRatios = []float64{3, 0}
	_, err = New(def)
	assert.ErrorIs(t, err, ErrNoGears)

	def = truckDef()
	def.Torque = 0
	_, err = New(def)
	assert.Error(t, err)

	def = truckDef()
	def.TorqueCurve = "steam"
	_, err = New(def)
	assert.Error(t, err)

	def = truckDef()
	def.AutoMode = "paddles"
	_, err = New(def)
	assert.Error(t, err)
}

func TestNew_ClampsStallAndClutchTime(t *testing.T) {
	def := truckDef()
	def.StallRPM = 2000
	def.ShiftTime = 0.2
	def.ClutchTime = 1
	e := newEngine(t, def)
	assert.InDelta(t, 720, e.StallRPM(), 1e-9)
	assert.InDelta(t, 0.18, e.clutchTime, 1e-9)
	assert.Equal(t, 3, e.NumGears())
	assert.InDelta(t, -3, e.gearRatio(-1), 1e-9)
}

func TestEngine_StarterBringsToIdle(t *testing.T) {
	e := newEngine(t, truckDef())
	e.SetContact(true)

	startedAt := -1.0
	maxDev := 0.0
	for s := 0; s < 2000; s++ {
		now := float64(s) * dt
		if now < 0.5 {
			e.SetStarter(true)
		}
		if e.Update(dt, 0, 0) == Started {
			startedAt = now
		}
		if now > 0.5 {
			dev := e.RPM() - 800
			if dev < 0 {
				dev = -dev
			}
			maxDev = max(maxDev, dev)
		}
	}
	require.True(t, e.Running())
	assert.Greater(t, startedAt, 0.0)
	assert.Less(t, startedAt, 0.5)
	assert.InDelta(t, 800, e.RPM(), 50)
	assert.Less(t, maxDev, 50.0)
	assert.False(t, e.Starter(), "starter releases once running")
	assert.Equal(t, Running, e.State())
}

func TestEngine_NoStartWithoutContact(t *testing.T) {
	e := newEngine(t, truckDef())
	for s := 0; s < 1000; s++ {
		e.SetStarter(true)
		e.Update(dt, 0, 0)
	}
	assert.False(t, e.Running())
	assert.Zero(t, e.RPM())
	assert.Equal(t, Off, e.State())
}

func TestEngine_StallsWhenContactCut(t *testing.T) {
	e := newEngine(t, truckDef())
	e.StartEngine()
	require.True(t, e.Running())
	assert.Equal(t, 800.0, e.RPM())
	assert.Equal(t, 1, e.Gear())

	e.SetContact(false)
	stalled := false
	for s := 0; s < 2000; s++ {
		if e.Update(dt, 0, 0) == Stalled {
			stalled = true
		}
	}
	assert.True(t, stalled)
	assert.False(t, e.Running())
}

func TestEngine_ElectricStartsImmediately(t *testing.T) {
	def := truckDef()
	def.Type = "electric"
	e := newEngine(t, def)
	assert.Equal(t, Electric, e.Type())
	assert.Equal(t, DefaultCarClutchForce, e.ClutchForce())
	e.SetContact(true)
	e.SetStarter(true)
	assert.Equal(t, Started, e.Update(dt, 0, 0))
	assert.True(t, e.Running())
	assert.GreaterOrEqual(t, e.Smoke(), 0.0)

	e.AutoShiftSet(Drive)
	e.AutoShiftDown()
	assert.Equal(t, Drive, e.AutoSelect(), "electric has no low ranges")
}

func TestEngine_ManualShiftNeedsClutch(t *testing.T) {
	def := truckDef()
	def.AutoMode = "manual"
	e := newEngine(t, def)
	assert.Equal(t, Manual, e.AutoMode())

	e.SetManualClutch(0)
	e.Shift(1)
	assert.Equal(t, 0, e.Gear(), "engaged clutch blocks the shift")

	e.SetManualClutch(1)
	e.Shift(1)
	assert.Equal(t, 1, e.Gear())

	e.Shift(5)
	assert.Equal(t, 1, e.Gear(), "out of range")

	e.ShiftTo(-1)
	assert.Equal(t, -1, e.Gear())
}

func TestEngine_AutomaticShiftSequence(t *testing.T) {
	e := newEngine(t, truckDef())
	e.Shift(1)
	require.True(t, e.Shifting())

	run := func(steps int) {
		for s := 0; s < steps; s++ {
			e.Update(dt, 0, 0)
		}
	}
	run(200)
	assert.Equal(t, 0, e.Gear(), "still declutching")
	run(400)
	assert.Equal(t, 1, e.Gear())
	run(600)
	assert.False(t, e.Shifting())
	assert.Equal(t, 1, e.Gear())
}

func TestEngine_ToggleAutoShiftModeCycles(t *testing.T) {
	e := newEngine(t, truckDef())
	want := []AutoMode{SemiAuto, Manual, ManualStick, ManualRanges, Automatic}
	for _, m := range want {
		assert.Equal(t, m, e.ToggleAutoShiftMode())
		if m != Automatic {
			assert.Equal(t, ManualSelect, e.AutoSelect())
		}
	}
	assert.Equal(t, Neutral, e.AutoSelect())
	assert.Equal(t, "manual_ranges", ManualRanges.String())
}

func TestEngine_AutoSelectLever(t *testing.T) {
	e := newEngine(t, truckDef())
	e.AutoShiftSet(Neutral)
	assert.Equal(t, 0, e.Gear())
	e.AutoShiftUp()
	assert.Equal(t, Rear, e.AutoSelect())
	assert.Equal(t, -1, e.Gear())
	e.AutoShiftUp()
	assert.Equal(t, Rear, e.AutoSelect())

	e.AutoShiftSet(Two)
	assert.Equal(t, 1, e.Gear())
	e.AutoShiftDown()
	assert.Equal(t, One, e.AutoSelect())
	e.AutoShiftDown()
	assert.Equal(t, One, e.AutoSelect())
}

func TestEngine_SetTCaseRatio(t *testing.T) {
	def := truckDef()
	def.DiffRatio = 2
	e := newEngine(t, def)
	assert.InDelta(t, 6, e.gearRatio(1), 1e-9)

	e.SetTCaseRatio(2.5)
	assert.InDelta(t, 15, e.gearRatio(1), 1e-9)
	assert.InDelta(t, -15, e.gearRatio(-1), 1e-9)

	e.SetTCaseRatio(0.5)
	assert.Equal(t, 2.5, e.TCaseRatio())

	e.SetTCaseRatio(1)
	assert.InDelta(t, 6, e.gearRatio(1), 1e-9)
}

func TestEngine_CrankFactor(t *testing.T) {
	e := newEngine(t, truckDef())
	tests := []struct {
		rpm, want float64
	}{
		{0, 0},
		{880, 0},
		{3440, 2.5},
		{6000, 5},
		{9000, 5},
	}
	for _, tt := range tests {
		e.SetRPM(tt.rpm)
		assert.InDelta(t, tt.want, e.CrankFactor(), 1e-9, "rpm %v", tt.rpm)
	}
}

func TestEngine_ClutchTransmitsTorque(t *testing.T) {
	def := truckDef()
	def.AutoMode = "manual"
	e := newEngine(t, def)
	e.StartEngine()
	e.SetManualClutch(1)
	e.ShiftTo(1)
	e.SetManualClutch(0)
	e.SetRPM(2000)
	e.SetWheelSpin(0)
	e.Update(dt, 0, 0)
	assert.Greater(t, e.Torque(), 0.0, "engine faster than wheels drives them")
}

func TestTorqueCurve_Builtin(t *testing.T) {
	c, err := NewTorqueCurve("default", 6000)
	require.NoError(t, err)
	assert.Equal(t, Spline, c.Mode)
	assert.InDelta(t, 1, c.At(3600), 1e-12)
	assert.InDelta(t, 0.6, c.At(0), 1e-12)
	assert.InDelta(t, 0.5, c.At(1e5), 1e-12)
	v := c.At(2800)
	assert.Greater(t, v, 0.95)
	assert.LessOrEqual(t, v, 1.01)

	_, err = NewTorqueCurve("steam", 6000)
	assert.Error(t, err)

	names := CurveNames()
	assert.Contains(t, names, "default")
	assert.True(t, sort.StringsAreSorted(names))
}

func TestTorqueCurve_Custom(t *testing.T) {
	c, err := CustomTorqueCurve([][2]float64{{3000, 1}, {1000, 0.5}})
	require.NoError(t, err)
	assert.Equal(t, Linear, c.Mode)
	assert.InDelta(t, 0.75, c.At(2000), 1e-12)
	assert.InDelta(t, 0.5, c.At(0), 1e-12)

	_, err = CustomTorqueCurve(nil)
	assert.Error(t, err)
	_, err = CustomTorqueCurve([][2]float64{{1000, -1}})
	assert.Error(t, err)
}

func TestCruise_HoldsAndDisengages(t *testing.T) {
	e := newEngine(t, truckDef())
	e.StartEngine()
	c := Cruise{LowerLimit: 2}
	require.True(t, c.Toggle(e, 20))
	assert.Equal(t, 20.0, c.TargetSpeed)

	acc, off := c.Update(e, CruiseInput{WheelSpeed: 15}, dt)
	assert.False(t, off)
	assert.Equal(t, 1.0, acc)

	acc, _ = c.Update(e, CruiseInput{WheelSpeed: 20.1}, dt)
	assert.Zero(t, acc)

	acc, _ = c.Update(e, CruiseInput{WheelSpeed: 20.1, Throttle: 0.4}, dt)
	assert.Equal(t, 0.4, acc, "driver throttle overrides a lower demand")

	for s := 0; s < 2000; s++ {
		c.Update(e, CruiseInput{WheelSpeed: 20, Accel: true}, dt)
	}
	assert.InDelta(t, 22.5, c.TargetSpeed, 1e-6)

	acc, off = c.Update(e, CruiseInput{WheelSpeed: 20, Brake: 0.5, Throttle: 0.2}, dt)
	assert.True(t, off)
	assert.False(t, c.Active)
	assert.Equal(t, 0.2, acc)
}

func TestCruise_BelowLowerLimit(t *testing.T) {
	e := newEngine(t, truckDef())
	e.StartEngine()
	c := Cruise{LowerLimit: 2}
	c.Toggle(e, 1)
	_, off := c.Update(e, CruiseInput{WheelSpeed: 1}, dt)
	assert.True(t, off)
}

func TestCruise_HoldsRPMInNeutral(t *testing.T) {
	e := newEngine(t, truckDef())
	e.StartEngine()
	e.SetGear(0)
	e.SetRPM(2000)
	c := Cruise{}
	c.Toggle(e, 0)
	assert.Equal(t, 2000.0, c.TargetRPM)
	e.SetRPM(1900)
	acc, _ := c.Update(e, CruiseInput{}, dt)
	assert.Equal(t, 1.0, acc)
}

func TestApplyInputs_ArcadeReverse(t *testing.T) {
	e := newEngine(t, truckDef())
	e.StartEngine()
	require.Equal(t, Drive, e.AutoSelect())

	th, br := e.ApplyInputs(&core.Inputs{Brake: 1}, true, 0)
	assert.Equal(t, Rear, e.AutoSelect())
	assert.Equal(t, -1, e.Gear())
	assert.Equal(t, 1.0, th)
	assert.Equal(t, 0.0, br)

	th, br = e.ApplyInputs(&core.Inputs{Throttle: 1}, true, 0)
	assert.Equal(t, Drive, e.AutoSelect())
	assert.Equal(t, 1, e.Gear())
	assert.Equal(t, 1.0, th)
	assert.Equal(t, 0.0, br)

	th, _ = e.ApplyInputs(&core.Inputs{Throttle: 1, ThrottleMod50: true}, false, 0)
	assert.Equal(t, 0.5, th)
}

func TestApplyActions(t *testing.T) {
	e := newEngine(t, truckDef())
	e.ApplyActions(&core.Inputs{Actions: []core.Action{core.ActionToggleContact}})
	assert.True(t, e.Contact())

	g := -1
	e.ApplyActions(&core.Inputs{ShiftTo: &g})
	assert.Equal(t, Rear, e.AutoSelect())
	assert.Equal(t, -1, e.Gear())

	e.ApplyActions(&core.Inputs{Actions: []core.Action{core.ActionStartEngine, core.ActionToggleShiftMode}})
	assert.True(t, e.Running())
	assert.Equal(t, SemiAuto, e.AutoMode())

	e.ApplyActions(&core.Inputs{Actions: []core.Action{core.ActionStopEngine}})
	assert.False(t, e.Running())
}
