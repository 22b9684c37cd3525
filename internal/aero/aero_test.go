package aero

import (
	"math"
	"testing"

	"github.com/OCAP2/softbody/internal/soft"
	"github.com/OCAP2/softbody/internal/vmath"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wingNodes(vel vmath.Vec3) []soft.Node {
	pos := [8]vmath.Vec3{
		FrontLeftDown:  vmath.V(1, 0, -1),
		FrontRightDown: vmath.V(1, 0, 1),
		FrontLeftUp:    vmath.V(1, 0.1, -1),
		FrontRightUp:   vmath.V(1, 0.1, 1),
		BackLeftDown:   vmath.V(0, 0, -1),
		BackRightDown:  vmath.V(0, 0, 1),
		BackLeftUp:     vmath.V(0, 0.1, -1),
		BackRightUp:    vmath.V(0, 0.1, 1),
	}
	nodes := make([]soft.Node, len(pos))
	for i, p := range pos {
		nodes[i] = soft.NewNode(p, 10)
		nodes[i].Vel = vel
	}
	return nodes
}

func totalForce(nodes []soft.Node) vmath.Vec3 {
	f := vmath.Zero
	for i := range nodes {
		f = f.Add(nodes[i].Force)
	}
	return f
}

func newTestWing(t *testing.T, control string) *Wing {
	t.Helper()
	w, err := NewWing([8]int{0, 1, 2, 3, 4, 5, 6, 7}, "", control, -15, 20, 0)
	require.NoError(t, err)
	return w
}

type fakeEngine struct {
	wash float64
	axis vmath.Vec3
}

func (f *fakeEngine) ApplyForces(float64, []soft.Node) {}
func (f *fakeEngine) Sample() State { return State{} }
func (f *fakeEngine) SetThrottle(float64) {}
func (f *fakeEngine) ToggleReverse() {}
func (f *fakeEngine) FlipStart() {}
func (f *fakeEngine) Reset() {}
func (f *fakeEngine) Propwash() float64 { return f.wash }
func (f *fakeEngine) Axis() vmath.Vec3 { return f.axis }

func TestWing_LevelFlightLiftsAndDrags(t *testing.T) {
	nodes := wingNodes(vmath.V(50, 0, 0))
	w := newTestWing(t, "")
	w.ApplyForces(nodes, nil)

	f := totalForce(nodes)
	assert.InDelta(t, 0, w.AoA, 1e-9)
	assert.Greater(t, f.Y, 0.0, "cambered section lifts at zero aoa")
	assert.Less(t, f.X, 0.0, "drag opposes motion")
	assert.InDelta(t, 0, f.Z, 1e-6)
}

func TestWing_AngleOfAttack(t *testing.T) {
	nodes := wingNodes(vmath.V(50, -5, 0))
	w := newTestWing(t, "")
	w.ApplyForces(nodes, nil)
	assert.InDelta(t, math.Atan2(5, 50)*180/math.Pi, w.AoA, 1e-6)

	level := wingNodes(vmath.V(50, 0, 0))
	w.ApplyForces(level, nil)
	assert.Greater(t, totalForce(nodes).Y, totalForce(level).Y)
}

func TestWing_StillAirNoForce(t *testing.T) {
	nodes := wingNodes(vmath.Zero)
	w := newTestWing(t, "")
	w.ApplyForces(nodes, nil)
	assert.True(t, totalForce(nodes).IsZero())
}

func TestWing_BrokenIsInert(t *testing.T) {
	nodes := wingNodes(vmath.V(50, 0, 0))
	w := newTestWing(t, "")
	w.Broken = true
	w.ApplyForces(nodes, nil)
	assert.True(t, totalForce(nodes).IsZero())
}

func TestWing_PropwashAddsLift(t *testing.T) {
	plain := wingNodes(vmath.V(20, 0, 0))
	w := newTestWing(t, "")
	w.ApplyForces(plain, nil)

	washed := wingNodes(vmath.V(20, 0, 0))
	w.Washes = []Wash{{Engine: 0, Ratio: 1}}
	w.ApplyForces(washed, []Engine{&fakeEngine{wash: 30, axis: vmath.UnitX}})

	assert.Greater(t, totalForce(washed).Y, totalForce(plain).Y)

	// Out of range engine indices are ignored.
	bad := wingNodes(vmath.V(20, 0, 0))
	w.Washes = []Wash{{Engine: 3, Ratio: 1}}
	w.ApplyForces(bad, nil)
	assert.InDelta(t, totalForce(plain).Y, totalForce(bad).Y, 1e-9)
}

func TestWing_Target(t *testing.T) {
	tests := []struct {
		control string
		in      Controls
		want    float64
	}{
		{"aileron", Controls{Aileron: -1}, -15},
		{"aileron", Controls{Aileron: 0.5}, 10},
		{"rev_aileron", Controls{Aileron: 1}, -15},
		{"elevator", Controls{Elevator: 1}, 20},
		{"rev_rudder", Controls{Rudder: -1}, 20},
		{"flap", Controls{Flaps: 3}, -15},
		{"flap", Controls{Flaps: 9}, FlapAngles[MaxFlap]},
		{"airbrake", Controls{Airbrake: 5}, 20},
		{"airbrake", Controls{Airbrake: 10}, 20},
		{"none", Controls{Aileron: 1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.control, func(t *testing.T) {
			w := newTestWing(t, tt.control)
			assert.InDelta(t, tt.want, w.Target(tt.in), 1e-9)
		})
	}
}

func TestNewWing_Errors(t *testing.T) {
	_, err := NewWing([8]int{}, "naca9999", "", 0, 0, 0)
	assert.Error(t, err)
	_, err = NewWing([8]int{}, "", "spoiler", 0, 0, 0)
	assert.Error(t, err)

	w, err := NewWing([8]int{}, "clarky", "", 0, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1.0, w.ChordRatio)
	assert.Equal(t, 1.0, w.LiftCoef)
}

func TestAirfoil_Params(t *testing.T) {
	af, err := LookupAirfoil("naca0009")
	require.NoError(t, err)

	cl, cd, _ := af.Params(0, 1, 0)
	assert.InDelta(t, 0, cl, 1e-12)
	assert.InDelta(t, af.Cd0, cd, 1e-12)

	cl5, _, _ := af.Params(5, 1, 0)
	assert.InDelta(t, 0.5, cl5, 1e-12)

	// Past stall the section behaves like a flat plate.
	cl45, cd45, _ := af.Params(45, 1, 0)
	assert.InDelta(t, 1, cl45, 1e-9)
	assert.Greater(t, cd45, 1.0)

	// A deflected flap shifts lift.
	clFlap, _, _ := af.Params(0, 0.25, 10)
	assert.InDelta(t, 0.5, clFlap, 1e-9)

	// Angles wrap.
	a, _, _ := af.Params(365, 1, 0)
	assert.InDelta(t, cl5, a, 1e-9)

	assert.Equal(t, []string{"clarky", "flat", "naca0009", "naca2412"}, AirfoilNames())
}

func TestAirDensity(t *testing.T) {
	assert.InDelta(t, SeaLevelDensity, AirDensity(0), 0.001)
	assert.InDelta(t, 0.274, AirDensity(11000), 0.005)
	assert.Equal(t, AirDensity(11000), AirDensity(20000))
	assert.Less(t, AirDensity(3000), AirDensity(1000))
}

func jetNodes() []soft.Node {
	return []soft.Node{
		soft.NewNode(vmath.V(2, 0, 0), 100),
		soft.NewNode(vmath.V(0, 0, 0), 100),
		soft.NewNode(vmath.V(1, 1, 0), 100),
	}
}

func runJet(j *Turbojet, nodes []soft.Node, seconds float64) {
	const dt = 0.01
	for i := 0; i < int(seconds/dt); i++ {
		for k := range nodes {
			nodes[k].Force = vmath.Zero
		}
		j.ApplyForces(dt, nodes)
	}
}

func TestTurbojet_ThrustAndAfterburner(t *testing.T) {
	nodes := jetNodes()
	j, err := NewTurbojet(nodes, 0, 1, 2, 50, 80, true, 1)
	require.NoError(t, err)

	j.FlipStart()
	j.SetThrottle(0.9)
	runJet(j, nodes, 40)
	s := j.Sample()
	assert.True(t, s.Ignition)
	assert.False(t, s.Warmup)
	assert.False(t, s.Afterburner)
	assert.InDelta(t, 46000, nodes[1].Force.X, 500)

	j.SetThrottle(1)
	runJet(j, nodes, 10)
	s = j.Sample()
	assert.True(t, s.Afterburner)
	assert.InDelta(t, 80000, s.Thrust, 500)
	assert.InDelta(t, s.Thrust, nodes[1].Force.X, 1e-6)
	assert.Greater(t, j.Propwash(), 0.0)
	assert.Equal(t, vmath.UnitX, j.Axis())
}

func TestTurbojet_Reverse(t *testing.T) {
	nodes := jetNodes()
	j, err := NewTurbojet(nodes, 0, 1, 2, 50, 0, true, 1)
	require.NoError(t, err)
	j.FlipStart()
	j.ToggleReverse()
	j.SetThrottle(1)
	runJet(j, nodes, 40)
	assert.Less(t, j.Sample().Thrust, 0.0)
	assert.InDelta(t, -25000, nodes[1].Force.X, 500)

	fixed, err := NewTurbojet(jetNodes(), 0, 1, 2, 50, 0, false, 1)
	require.NoError(t, err)
	fixed.ToggleReverse()
	assert.False(t, fixed.Sample().Reverse)
}

func TestTurbojet_FailsWhenStretched(t *testing.T) {
	nodes := jetNodes()
	j, err := NewTurbojet(nodes, 0, 1, 2, 50, 0, false, 1)
	require.NoError(t, err)
	j.FlipStart()
	j.SetThrottle(1)
	runJet(j, nodes, 5)
	nodes[0].Pos = vmath.V(2.5, 0, 0)
	runJet(j, nodes, 0.1)
	s := j.Sample()
	assert.True(t, s.Failed)
	assert.Zero(t, s.Thrust)

	j.Reset()
	assert.False(t, j.Sample().Failed)
	assert.False(t, j.Sample().Ignition)
}

func TestIgnition_Debounce(t *testing.T) {
	nodes := jetNodes()
	j, err := NewTurbojet(nodes, 0, 1, 2, 50, 0, false, 1)
	require.NoError(t, err)
	j.FlipStart()
	assert.True(t, j.Sample().Ignition)
	j.FlipStart()
	assert.True(t, j.Sample().Ignition, "second flip inside the debounce window is ignored")
	runJet(j, nodes, 0.5)
	j.FlipStart()
	assert.False(t, j.Sample().Ignition)
}

func propNodes() []soft.Node {
	return []soft.Node{
		soft.NewNode(vmath.V(0, 0, 0), 50),
		soft.NewNode(vmath.V(-1, 0, 0), 50),
		soft.NewNode(vmath.V(0, 1.5, 0), 5),
		soft.NewNode(vmath.V(0, -1.5, 0), 5),
	}
}

func runProp(p *Turboprop, nodes []soft.Node, seconds float64) {
	const dt = 0.01
	for i := 0; i < int(seconds/dt); i++ {
		for k := range nodes {
			nodes[k].Force = vmath.Zero
		}
		p.ApplyForces(dt, nodes)
	}
}

func TestTurboprop_StaticThrust(t *testing.T) {
	nodes := propNodes()
	p, err := NewTurboprop(nodes, 0, 1, []int{2, 3}, -1, 1000, 25)
	require.NoError(t, err)
	p.FlipStart()
	p.SetThrottle(1)
	runProp(p, nodes, 15)

	s := p.Sample()
	assert.False(t, s.Warmup)
	assert.InDelta(t, 23200, s.Thrust, 300)
	assert.InDelta(t, s.Thrust, nodes[0].Force.X, 1e-6)
	assert.Greater(t, p.Propwash(), 50.0)
	assert.Greater(t, p.Torque(), 0.0)
}

func TestTurboprop_OffWithoutIgnition(t *testing.T) {
	nodes := propNodes()
	p, err := NewTurboprop(nodes, 0, 1, []int{2, 3}, -1, 1000, 25)
	require.NoError(t, err)
	p.SetThrottle(1)
	runProp(p, nodes, 1)
	assert.Zero(t, p.Sample().Thrust)
	assert.True(t, nodes[0].Force.IsZero())
}

func TestTurboprop_FailsWhenBladeBends(t *testing.T) {
	nodes := propNodes()
	p, err := NewTurboprop(nodes, 0, 1, []int{2, 3}, -1, 1000, 25)
	require.NoError(t, err)
	p.FlipStart()
	p.SetThrottle(1)
	nodes[2].Pos = vmath.V(0, 1.5, 1)
	runProp(p, nodes, 0.1)
	s := p.Sample()
	assert.True(t, s.Failed)
	assert.Zero(t, s.Thrust)
	assert.Zero(t, p.Propwash())
}

func TestNewTurboprop_Errors(t *testing.T) {
	nodes := propNodes()
	_, err := NewTurboprop(nodes, 0, 1, []int{2}, -1, 1000, 0)
	assert.Error(t, err)
	_, err = NewTurboprop(nodes, 0, 0, []int{2, 3}, -1, 1000, 0)
	assert.Error(t, err)
}

func TestDiskThrust(t *testing.T) {
	assert.InDelta(t, 963.5, diskThrust(1e5, 100, 1.225, 1), 1)
	assert.Zero(t, diskThrust(0, 10, 1.225, 1))

	static := diskThrust(1e6, 0, 1.225, 2)
	assert.InDelta(t, math.Cbrt(1e12*2*1.225*2), static, 1)
	assert.Greater(t, static, diskThrust(1e6, 50, 1.225, 2))
}
