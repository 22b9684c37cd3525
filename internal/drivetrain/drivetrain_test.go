package drivetrain

import (
	"math"
	"testing"

	"github.com/OCAP2/softbody/internal/soft"
	"github.com/OCAP2/softbody/internal/vmath"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dt = soft.PhysicsDT

// rig builds a wheel of four rim nodes around an axis along +z.
func rig() ([]soft.Node, *Wheel) {
	nodes := []soft.Node{
		soft.NewNode(vmath.V(0, 0.3, -0.1), 5),
		soft.NewNode(vmath.V(0, 0.3, 0.1), 5),
	}
	var rim []int
	for k := 0; k < 4; k++ {
		a := float64(k) * math.Pi / 2
		z := -0.1
		if k%2 == 1 {
			z = 0.1
		}
		nodes = append(nodes, soft.NewNode(vmath.V(0.3*math.Sin(a), 0.3+0.3*math.Cos(a), z), 1))
		rim = append(rim, len(nodes)-1)
	}
	w := NewWheel(rim, 0, 1, 0.3, 0.2, 10)
	w.Braking = BrakeFootHand
	return nodes, &w
}

func TestDifferential_Modes(t *testing.T) {
	tests := []struct {
		name       string
		mode       DiffMode
		sa, sb, in float64
		wantA      float64
		wantB      float64
	}{
		{"split", DiffSplit, 10, 30, 100, 50, 50},
		{"open slow", DiffOpen, 0.5, 0.2, 100, 50, 50},
		{"open", DiffOpen, 10, 30, 100, 25, 75},
		{"open clamped", DiffOpen, 2, 98, 100, 10, 90},
		{"viscous", DiffViscous, 1, 0, 0, -10000, 10000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDifferential(0, 1, []DiffMode{tt.mode})
			a, b := d.Split(tt.sa, tt.sb, tt.in, dt)
			assert.InDelta(t, tt.wantA, a, 1e-9)
			assert.InDelta(t, tt.wantB, b, 1e-9)
		})
	}
}

func TestDifferential_LockedAccumulatesTwist(t *testing.T) {
	d := NewDifferential(0, 1, []DiffMode{DiffLocked})
	a, b := d.Split(1, 0, 0, 0.5)
	assert.InDelta(t, 0.5, d.DeltaRotation, 1e-12)
	assert.InDelta(t, -510000.0, a, 1e-6)
	assert.InDelta(t, 510000.0, b, 1e-6)
}

func TestDifferential_ToggleCycles(t *testing.T) {
	d := NewDifferential(0, 1, []DiffMode{DiffOpen, DiffLocked, DiffSplit})
	assert.Equal(t, DiffOpen, d.Mode())
	d.ToggleMode()
	assert.Equal(t, DiffLocked, d.Mode())
	d.ToggleMode()
	d.ToggleMode()
	assert.Equal(t, DiffOpen, d.Mode())
	assert.Equal(t, "open", d.Mode().String())

	_, err := ParseDiffMode("x")
	assert.Error(t, err)
}

func fourWheeler() *Drivetrain {
	d := New()
	for i := 0; i < 4; i++ {
		w := NewWheel([]int{0}, 0, 0, 0.3, 0.2, 10)
		if i < 2 {
			w.Propulsion = PropForward
		}
		d.Wheels = append(d.Wheels, w)
	}
	d.Axles = []*Differential{
		NewDifferential(0, 1, []DiffMode{DiffSplit}),
		NewDifferential(2, 3, []DiffMode{DiffSplit}),
	}
	d.SetTransferCase(&TransferCase{AxleA: 0, AxleB: 1, Has2WD: true, Ratios: []float64{1, 2.5}}, []DiffMode{DiffSplit})
	return d
}

func TestTransferCase_Toggles(t *testing.T) {
	d := fourWheeler()
	assert.Equal(t, 2, d.PropelledWheels())
	assert.Len(t, d.activeInterAxles(), 0)

	_, ok := d.ToggleTransferCaseGearRatio()
	assert.False(t, ok, "low range needs 4WD")

	r, ok := d.ToggleTransferCaseMode()
	require.True(t, ok)
	assert.Equal(t, 1.0, r)
	assert.Equal(t, 4, d.PropelledWheels())
	assert.Len(t, d.activeInterAxles(), 1)

	r, ok = d.ToggleTransferCaseGearRatio()
	require.True(t, ok)
	assert.Equal(t, 2.5, r)
	assert.Equal(t, "4WD Lo (2.5:1)", d.TransferCase.Name())

	r, ok = d.ToggleTransferCaseMode()
	require.True(t, ok)
	assert.Equal(t, 1.0, r, "leaving 4WD restores the high range")
	assert.Equal(t, "2WD Hi", d.TransferCase.Name())
	assert.Equal(t, 2, d.PropelledWheels())
}

func TestCalcDifferentials_SplitsEngineTorque(t *testing.T) {
	d := fourWheeler()
	d.CalcDifferentials(Inputs{EngineTorque: 100, HasEngine: true}, dt)
	assert.InDelta(t, 50, d.Wheels[0].Torque, 1e-9)
	assert.InDelta(t, 50, d.Wheels[1].Torque, 1e-9)
	assert.Zero(t, d.Wheels[2].Torque)

	for i := range d.Wheels {
		d.Wheels[i].Torque = 0
	}
	d.ToggleTransferCaseMode()
	d.CalcDifferentials(Inputs{EngineTorque: 100, HasEngine: true}, dt)
	for i := range d.Wheels {
		assert.InDelta(t, 25, d.Wheels[i].Torque, 1e-9)
	}
}

func TestCalcDifferentials_DetachedWheelFollowsPartner(t *testing.T) {
	d := fourWheeler()
	d.Wheels[0].Speed = 7
	d.Wheels[1].Detached = true
	d.CalcDifferentials(Inputs{}, dt)
	assert.Equal(t, 7.0, d.Wheels[1].Speed)
}

func TestCalcWheels_MeasuresRimSpeed(t *testing.T) {
	nodes, w := rig()
	axis := vmath.UnitZ
	const omega = 10.0
	for _, ni := range w.Nodes {
		inner := nodes[w.Axis0].Pos
		r := nodes[ni].Pos.Sub(inner)
		nodes[ni].Vel = axis.Cross(r).Scale(omega)
	}
	d := New()
	d.Wheels = []Wheel{*w}
	d.CalcWheels(nodes, Inputs{Direction: vmath.UnitX}, dt)

	got := d.Wheels[0]
	assert.InDelta(t, 3.0, got.Speed, 1e-9)
	assert.InDelta(t, 10*dt, got.Rotation, 1e-12)
}

func TestCalcWheels_DriveTorqueOnRim(t *testing.T) {
	nodes, w := rig()
	w.Torque = 40
	d := New()
	d.Wheels = []Wheel{*w}
	d.CalcWheels(nodes, Inputs{Direction: vmath.UnitX}, dt)

	// Each rim node carries torque/n over the radius, tangentially.
	top := nodes[w.Nodes[0]]
	assert.InDelta(t, -40.0/4/0.3, top.Force.X, 1e-9)
	assert.InDelta(t, 0, top.Force.Y, 1e-9)
	assert.Zero(t, d.Wheels[0].Torque)
}

func brakeOnce(abs bool) (float64, bool) {
	nodes, w := rig()
	w.Speed = 2
	w.AvgSpeed = 2
	d := New()
	d.ABS = NewAssist(abs, 1, 0, 0, 0.25, 0)
	d.Wheels = []Wheel{*w}
	active, _ := d.CalcWheels(nodes, Inputs{Brake: 1, Direction: vmath.UnitX, RefVel: vmath.V(20, 0, 0)}, dt)
	return d.Wheels[0].lastTorque, active
}

func TestCalcWheels_ABSReducesLockingTorque(t *testing.T) {
	plain, active := brakeOnce(false)
	assert.False(t, active)
	assert.InDelta(t, -12000, plain, 1e-6)

	withABS, active := brakeOnce(true)
	assert.True(t, active)
	// coefficient (2/20)^1 on the 30 kN service brake.
	assert.InDelta(t, -3000, withABS, 1e-6)
}

func TestAssist_PulseFrequency(t *testing.T) {
	a := NewAssist(true, 1, 8, 0, 0, 0)
	flips := 0
	prev := a.state
	for s := 0; s < 2000; s++ {
		a.tick(dt)
		if a.state != prev {
			flips++
			prev = a.state
		}
	}
	assert.InDelta(t, 8, flips, 1)
}

func TestCalcWheels_TractionControl(t *testing.T) {
	nodes, w := rig()
	w.Braking = BrakeNone
	w.Speed = 10
	w.Torque = 1000
	d := New()
	d.TC = NewAssist(true, 1, 0, 0, 0.25, 0)
	d.Wheels = []Wheel{*w}
	_, active := d.CalcWheels(nodes, Inputs{Direction: vmath.UnitX, RefVel: vmath.V(2, 0, 0)}, dt)
	assert.True(t, active)
	assert.InDelta(t, 200, d.Wheels[0].lastTorque, 1e-9)
}

func TestWheel_ReactionBalances(t *testing.T) {
	nodes, w := rig()
	nodes = append(nodes, soft.NewNode(vmath.V(0, 0.8, 0.1), 5))
	w.Arm = len(nodes) - 1
	w.Torque = 500
	w.react(nodes, vmath.UnitZ)
	sum := nodes[w.Arm].Force.Add(nodes[w.NearAttach].Force)
	assert.InDelta(t, 0, sum.Len(), 1e-9)
	assert.Greater(t, nodes[w.Arm].Force.Len(), 0.0)
}
