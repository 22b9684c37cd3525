// Package soft holds the node and beam store of a vehicle and the fixed-step
// integrator that drives it: beam forces with shock and plastic deformation,
// ground contact with Stribeck friction, and semi-implicit Euler integration.
package soft

// Physics constants.
const (
	PhysicsDT = 0.0005

	DefaultSpring    = 9000000.0
	DefaultDamp      = 12000.0
	DefaultDeform    = 400000.0
	DefaultStrength  = 1000000.0
	DefaultDrag      = 0.05
	DefaultWaterDrag = 10.0
	DefaultGravity   = -9.81

	MinBeamLength         = 0.1
	SupportBeamLimit      = 4.0
	DefaultCollisionRange = 0.02

	// MinNodeMass is the floor applied when no definition value is given.
	MinNodeMass = 0.001
	// ImmovableMass is the sentinel mass of fixed nodes.
	ImmovableMass = 1e30
	// MaxNodeSpeed beyond which a vehicle is considered exploded (m/s).
	MaxNodeSpeed = 6860.0

	RadPerSecToRPM = 9.5492965855137
)
