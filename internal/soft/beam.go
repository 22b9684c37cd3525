package soft

import "github.com/OCAP2/softbody/pkg/core"

// BeamType tags the role of a beam.
type BeamType uint8

const (
	BeamNormal BeamType = iota
	BeamInvisible
	BeamHydro
	BeamCommand
	BeamRope
	BeamTie
	BeamHook
	BeamSupport
	BeamShock1
	BeamShock2
	BeamShock3
	BeamTrigger
)

var beamTypeNames = map[BeamType]string{
	BeamNormal:    "normal",
	BeamInvisible: "invisible",
	BeamHydro:     "hydro",
	BeamCommand:   "command",
	BeamRope:      "rope",
	BeamTie:       "tie",
	BeamHook:      "hook",
	BeamSupport:   "support",
	BeamShock1:    "shock",
	BeamShock2:    "shock2",
	BeamShock3:    "shock3",
	BeamTrigger:   "trigger",
}

func (t BeamType) String() string { return beamTypeNames[t] }

// Deformable reports whether plastic deformation applies to the type.
func (t BeamType) Deformable() bool {
	return t == BeamNormal || t == BeamInvisible
}

// BoundMode selects the length-dependent behaviour of a beam.
type BoundMode uint8

const (
	Regular BoundMode = iota
	Shock1
	Shock2
	Shock3
	Trigger
	SupportBeam
	Rope
)

// Beam is a spring-damper between P1 and P2. For inter-vehicle beams Inter
// is set and Remote addresses the far node; P2 is then unused.
type Beam struct {
	P1, P2 int
	Inter  bool
	Remote core.NodeRef

	L    float64
	RefL float64
	Len  float64
	K    float64
	D    float64

	Plastic            float64
	MaxPosStress       float64
	MaxNegStress       float64
	MinMaxPosNegStress float64
	Strength           float64

	Type       BeamType
	Bounded    BoundMode
	ShortBound float64
	LongBound  float64

	// Shock indexes Body.Shocks, -1 when none.
	Shock         int
	DetacherGroup int

	Disabled bool
	Broken   bool
	Stress   float64
}

// NewBeam returns a beam with the default spring, damping and thresholds.
func NewBeam(p1, p2 int, length float64) Beam {
	b := Beam{
		P1:     p1,
		P2:     p2,
		Remote: core.NoNode,
		L:      length,
		RefL:   length,
		K:      DefaultSpring,
		D:      DefaultDamp,
		Shock:  -1,
	}
	b.SetThresholds(DefaultDeform, DefaultStrength)
	return b
}

// SetThresholds sets symmetric deform thresholds and break strength.
func (b *Beam) SetThresholds(deform, strength float64) {
	b.MaxPosStress = deform
	b.MaxNegStress = -deform
	b.Strength = strength
	b.updateMinMax()
}

func (b *Beam) updateMinMax() {
	b.MinMaxPosNegStress = min(b.MaxPosStress, -b.MaxNegStress, b.Strength)
}

// Active reports whether the beam contributes force.
func (b *Beam) Active() bool { return !b.Disabled && !b.Broken }

// Restore clears the broken mask; used when a lock reconnects the beam.
func (b *Beam) Restore() {
	b.Broken = false
	b.Disabled = false
	b.Stress = 0
}

// Shock is the extension record of shock and trigger beams.
type Shock struct {
	SpringIn, DampIn         float64
	SpringOut, DampOut       float64
	ProgSpringIn, ProgDampIn float64
	ProgSpringOut            float64
	ProgDampOut              float64
	SoftBump                 bool

	// Bump parameters applied beyond the bounds.
	SbdSpring, SbdDamp float64

	DampInSlow, SplitIn, DampInFast    float64
	DampOutSlow, SplitOut, DampOutFast float64

	// Trigger fields.
	TriggerShort   int
	TriggerLong    int
	TriggerFlags   TriggerFlag
	TriggerEnabled bool
	TriggerBound   float64
	EngineFunc     int
}

// TriggerFlag is a bitmask of trigger behaviours.
type TriggerFlag uint16

const (
	TriggerBlocker TriggerFlag = 1 << iota
	TriggerBlockerInverted
	TriggerCmdBlocker
	TriggerCmdSwitch
	TriggerHookLock
	TriggerHookUnlock
	TriggerEngine
	TriggerContinuous
)
