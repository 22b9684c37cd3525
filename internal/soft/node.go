package soft

import (
	"github.com/OCAP2/softbody/internal/vmath"
	"github.com/OCAP2/softbody/pkg/core"
)

// NodeFlag is a bitmask of node properties.
type NodeFlag uint16

const (
	FlagWheel NodeFlag = 1 << iota
	FlagHot
	FlagContactless
	FlagContacter
	FlagNoParticles
	FlagTyre
	FlagImmovable
	FlagCab
)

// WetState tracks how recently a node left the water.
type WetState uint8

const (
	Dry WetState = iota
	Wet
	Dripping
)

// dripTime is how long a node stays Dripping after leaving water.
const dripTime = 5.0

// Lock groups.
const (
	LockGroupDefault = -1
	LockGroupDeny    = 9999
)

// Node is a point mass.
type Node struct {
	Pos   vmath.Vec3
	Vel   vmath.Vec3
	Force vmath.Vec3

	Mass    float64
	InvMass float64

	Buoyancy   float64
	Volume     float64
	Surface    float64
	Friction   float64
	CollRadius float64

	Flags     NodeFlag
	LockGroup int
	WheelID   int
	Lock      core.NodeRef

	Wet     WetState
	WetTime float64

	// Ground is the model of the last ground contact, nil when airborne.
	Ground    *GroundModel
	Contacted bool
	Slip      float64
}

// NewNode returns a node at pos with unit coefficients.
func NewNode(pos vmath.Vec3, mass float64) Node {
	n := Node{
		Pos:       pos,
		Volume:    1,
		Surface:   1,
		Friction:  1,
		LockGroup: LockGroupDefault,
		WheelID:   -1,
		Lock:      core.NoNode,
	}
	n.SetMass(mass, MinNodeMass)
	return n
}

// Has reports whether all of f are set.
func (n *Node) Has(f NodeFlag) bool { return n.Flags&f == f }

// SetMass assigns mass, clamping to floor, and keeps InvMass consistent.
func (n *Node) SetMass(m, floor float64) {
	if n.Has(FlagImmovable) {
		n.Mass = ImmovableMass
		n.InvMass = 0
		return
	}
	if m < floor {
		m = floor
	}
	n.Mass = m
	n.InvMass = 1 / m
}

// SetImmovable pins the node.
func (n *Node) SetImmovable() {
	n.Flags |= FlagImmovable
	n.Mass = ImmovableMass
	n.InvMass = 0
	n.Vel = vmath.Zero
}
