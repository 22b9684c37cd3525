package soft

import (
	"testing"

	"github.com/OCAP2/softbody/internal/vmath"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrimitiveCollision_StopsNormalVelocity(t *testing.T) {
	n := NewNode(vmath.V(0, -0.01, 0), 2)
	n.Vel = vmath.V(0, -3, 0)
	gravity := vmath.V(0, 2*DefaultGravity, 0)
	f := PrimitiveCollision(&n, gravity, n.Vel, vmath.UnitY, PhysicsDT, LookupGroundModel("concrete"), 0.01, -1)
	vy := n.Vel.Y + f.Y*n.InvMass*PhysicsDT
	assert.InDelta(t, 0, vy, 1e-9)
}

func TestPrimitiveCollision_IceSlidesFurther(t *testing.T) {
	fx := func(material string) float64 {
		n := NewNode(vmath.Zero, 1)
		vel := vmath.V(5, 0, 0)
		f := PrimitiveCollision(&n, vmath.V(0, DefaultGravity, 0), vel, vmath.UnitY, PhysicsDT, LookupGroundModel(material), 0.001, -1)
		return f.X
	}
	concrete, ice := fx("concrete"), fx("ice")
	assert.Less(t, concrete, 0.0)
	assert.Less(t, ice, 0.0)
	assert.Less(t, -ice, -concrete)
}

func TestPrimitiveCollision_MudBuoyancy(t *testing.T) {
	n := NewNode(vmath.Zero, 1)
	mud := LookupGroundModel("mud")
	f := PrimitiveCollision(&n, vmath.Zero, vmath.V(0, -0.5, 0), vmath.UnitY, PhysicsDT, mud, 0.2, -1)
	assert.Greater(t, f.Y, 0.0, "fluid layer pushes the node up")
}

func TestLookupGroundModel_Unknown(t *testing.T) {
	assert.Same(t, DefaultGround, LookupGroundModel("lava"))
	assert.Contains(t, GroundModelNames(), "ice")
}

func TestWetState(t *testing.T) {
	b := &Body{}
	b.AddNode(NewNode(vmath.V(0, -1, 0), 1))
	b.Nodes[0].Buoyancy = 50
	g := NewFlatGround(-100, "concrete")
	g.Water = 0
	env := &Env{Ground: g, NodeBuoyancy: true, DisableDrag: true}

	b.ResetForces(env, PhysicsDT)
	assert.Equal(t, Wet, b.Nodes[0].Wet)
	assert.InDelta(t, 50, b.Nodes[0].Force.Y, 1e-9)

	b.Nodes[0].Pos.Y = 1
	b.ResetForces(env, PhysicsDT)
	assert.Equal(t, Dripping, b.Nodes[0].Wet)
}

func TestRegisterGroundModel(t *testing.T) {
	require.NoError(t, RegisterGroundModel(GroundModel{Name: "packed-snow", VA: 0.1, MS: 0.3, MC: 0.2, VS: 1, Alpha: 2}))

	gm := LookupGroundModel("packed-snow")
	assert.Equal(t, "packed-snow", gm.Name)
	assert.Equal(t, 1.0, gm.Strength)
	assert.Contains(t, GroundModelNames(), "packed-snow")
	assert.Same(t, DefaultGround, LookupGroundModel("concrete"))

	tests := []struct {
		name string
		gm   GroundModel
	}{
		{"unnamed", GroundModel{VA: 0.1, VS: 1, Alpha: 2}},
		{"negative friction", GroundModel{Name: "x", VA: 0.1, MS: -1, VS: 1, Alpha: 2}},
		{"zero stribeck velocity", GroundModel{Name: "x", VA: 0.1, MS: 0.3}},
		{"negative strength", GroundModel{Name: "x", VA: 0.1, VS: 1, Alpha: 2, Strength: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, RegisterGroundModel(tt.gm))
		})
	}
	assert.NotContains(t, GroundModelNames(), "x")
}
