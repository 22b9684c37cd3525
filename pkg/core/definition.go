// pkg/core/definition.go
package core

// Vec is a position or direction in a vehicle definition.
type Vec [3]float64

// Definition is the structural description of a vehicle consumed at spawn.
// Zero values select the documented defaults. Node indices refer to Nodes;
// wheel rim nodes are generated at spawn and appended after them.
type Definition struct {
	Name string `json:"name"`
	// SubSteps is the number of physics steps per host tick; 0 derives it
	// from the host tick rate.
	SubSteps int `json:"subSteps,omitempty"`
	// DryMass is spread over nodes that carry no explicit mass.
	DryMass float64 `json:"dryMass,omitempty"`
	// MinimumMass is the node mass floor.
	MinimumMass float64 `json:"minimumMass,omitempty"`

	DisableDrag                 bool    `json:"disableDrag,omitempty"`
	DisableSelfCollisions       bool    `json:"disableSelfCollisions,omitempty"`
	DisableTruckTruckCollisions bool    `json:"disableTruckTruckCollisions,omitempty"`
	CollisionRange              float64 `json:"collisionRange,omitempty"`

	Nodes      []NodeDef      `json:"nodes"`
	Beams      []BeamDef      `json:"beams"`
	Cabs       []CabDef       `json:"cabs,omitempty"`
	Wheels     []WheelDef     `json:"wheels,omitempty"`
	Axles      []AxleDef      `json:"axles,omitempty"`
	InterAxles []InterAxleDef `json:"interAxles,omitempty"`

	TransferCase *TransferCaseDef `json:"transferCase,omitempty"`
	Engine       *EngineDef       `json:"engine,omitempty"`
	Brakes       BrakesDef        `json:"brakes"`
	ABS          *AssistDef       `json:"abs,omitempty"`
	TC           *AssistDef       `json:"tc,omitempty"`
	Cruise       CruiseDef        `json:"cruise"`

	Wings      []WingDef      `json:"wings,omitempty"`
	Turboprops []TurbopropDef `json:"turboprops,omitempty"`
	Turbojets  []TurbojetDef  `json:"turbojets,omitempty"`
	Screwprops []ScrewpropDef `json:"screwprops,omitempty"`

	Commands   []CommandKeyDef `json:"commands,omitempty"`
	Rotators   []RotatorDef    `json:"rotators,omitempty"`
	Hooks      []HookDef       `json:"hooks,omitempty"`
	Ties       []TieDef        `json:"ties,omitempty"`
	Ropes      []RopeDef       `json:"ropes,omitempty"`
	Ropables   []RopableDef    `json:"ropables,omitempty"`
	Rails      []RailDef       `json:"rails,omitempty"`
	SlideNodes []SlideNodeDef  `json:"slideNodes,omitempty"`
	Cameras    []CameraDef     `json:"cameras,omitempty"`
}

// NodeDef describes one node. LockGroup 0 means the default group -1.
type NodeDef struct {
	Pos         Vec     `json:"pos"`
	Mass        float64 `json:"mass,omitempty"`
	Immovable   bool    `json:"immovable,omitempty"`
	Buoyancy    float64 `json:"buoyancy,omitempty"`
	Friction    float64 `json:"friction,omitempty"`
	Volume      float64 `json:"volume,omitempty"`
	Surface     float64 `json:"surface,omitempty"`
	CollRadius  float64 `json:"collRadius,omitempty"`
	LockGroup   int     `json:"lockGroup,omitempty"`
	Contactless bool    `json:"contactless,omitempty"`
	Contacter   bool    `json:"contacter,omitempty"`
	Hot         bool    `json:"hot,omitempty"`
	NoParticles bool    `json:"noParticles,omitempty"`
}

// Beam types accepted in BeamDef.Type.
const (
	BeamNormal    = "normal"
	BeamInvisible = "invisible"
	BeamRope      = "rope"
	BeamSupport   = "support"
	BeamShock     = "shock"
	BeamShock2    = "shock2"
	BeamShock3    = "shock3"
	BeamHydro     = "hydro"
	BeamCommand   = "command"
	BeamTrigger   = "trigger"
)

// BeamDef describes one beam. Length 0 takes the spawn distance between
// the nodes; Spring, Damp, Deform and Strength 0 select the defaults.
type BeamDef struct {
	N1            int     `json:"n1"`
	N2            int     `json:"n2"`
	Type          string  `json:"type,omitempty"`
	Length        float64 `json:"length,omitempty"`
	Spring        float64 `json:"spring,omitempty"`
	Damp          float64 `json:"damp,omitempty"`
	Deform        float64 `json:"deform,omitempty"`
	Strength      float64 `json:"strength,omitempty"`
	Plastic       float64 `json:"plastic,omitempty"`
	ShortBound    float64 `json:"shortBound,omitempty"`
	LongBound     float64 `json:"longBound,omitempty"`
	DetacherGroup int     `json:"detacherGroup,omitempty"`

	Shock   *ShockDef       `json:"shock,omitempty"`
	Hydro   *HydroDef       `json:"hydro,omitempty"`
	Command *CommandBeamDef `json:"command,omitempty"`
	Trigger *TriggerDef     `json:"trigger,omitempty"`
}

// ShockDef carries the parameters of all three shock variants.
type ShockDef struct {
	Spring     float64 `json:"spring,omitempty"`
	Damp       float64 `json:"damp,omitempty"`
	ShortBound float64 `json:"shortBound"`
	LongBound  float64 `json:"longBound"`
	Precomp    float64 `json:"precomp,omitempty"`

	SpringIn      float64 `json:"springIn,omitempty"`
	DampIn        float64 `json:"dampIn,omitempty"`
	ProgSpringIn  float64 `json:"progSpringIn,omitempty"`
	ProgDampIn    float64 `json:"progDampIn,omitempty"`
	SpringOut     float64 `json:"springOut,omitempty"`
	DampOut       float64 `json:"dampOut,omitempty"`
	ProgSpringOut float64 `json:"progSpringOut,omitempty"`
	ProgDampOut   float64 `json:"progDampOut,omitempty"`
	SoftBump      bool    `json:"softBump,omitempty"`

	DampInSlow  float64 `json:"dampInSlow,omitempty"`
	SplitIn     float64 `json:"splitIn,omitempty"`
	DampInFast  float64 `json:"dampInFast,omitempty"`
	DampOutSlow float64 `json:"dampOutSlow,omitempty"`
	SplitOut    float64 `json:"splitOut,omitempty"`
	DampOutFast float64 `json:"dampOutFast,omitempty"`
	BumpSpring  float64 `json:"bumpSpring,omitempty"`
	BumpDamp    float64 `json:"bumpDamp,omitempty"`
}

// HydroDef turns a beam into a steering or control-surface hydro. Flags
// name the inputs that drive it: dir, speed, aileron, rudder, elevator and
// their rev_ variants. No flags means dir.
type HydroDef struct {
	Ratio   float64     `json:"ratio"`
	Flags   []string    `json:"flags,omitempty"`
	Inertia *InertiaDef `json:"inertia,omitempty"`
}

// CommandBeamDef makes a beam extend and contract under command keys.
type CommandBeamDef struct {
	KeyShort       int         `json:"keyShort"`
	KeyLong        int         `json:"keyLong"`
	ShortRatio     float64     `json:"shortRatio"`
	LongRatio      float64     `json:"longRatio"`
	RateShort      float64     `json:"rateShort"`
	RateLong       float64     `json:"rateLong"`
	Description    string      `json:"description,omitempty"`
	EngineCoupling float64     `json:"engineCoupling,omitempty"`
	NeedsEngine    bool        `json:"needsEngine,omitempty"`
	AutoCenter     bool        `json:"autoCenter,omitempty"`
	OnePress       bool        `json:"onePress,omitempty"`
	OnePressCenter bool        `json:"onePressCenter,omitempty"`
	Inertia        *InertiaDef `json:"inertia,omitempty"`
}

// TriggerDef makes a beam act as a switch when it leaves its bounds.
// Options: blocker, inverted_blocker, cmd_blocker, switch, hook_lock,
// hook_unlock, engine, continuous.
type TriggerDef struct {
	ShortBound float64  `json:"shortBound"`
	LongBound  float64  `json:"longBound"`
	KeyShort   int      `json:"keyShort"`
	KeyLong    int      `json:"keyLong"`
	Options    []string `json:"options,omitempty"`
	// EngineFunc selects clutch, brake, accelerator, rpm, shift_up or
	// shift_down for engine triggers.
	EngineFunc string  `json:"engineFunc,omitempty"`
	Boundary   float64 `json:"boundary,omitempty"`
}

// InertiaDef smooths a command value with start and stop delays.
type InertiaDef struct {
	StartDelay    float64 `json:"startDelay"`
	StopDelay     float64 `json:"stopDelay"`
	StartFunction string  `json:"startFunction,omitempty"`
	StopFunction  string  `json:"stopFunction,omitempty"`
}

// CabDef is a skin triangle. Mode selects the buoyancy model: normal,
// drag_only or dragless.
type CabDef struct {
	Nodes     [3]int `json:"nodes"`
	Collision bool   `json:"collision,omitempty"`
	Buoyancy  bool   `json:"buoyancy,omitempty"`
	Mode      string `json:"mode,omitempty"`
}

// WheelDef generates a rim of 2*Rays nodes around the axis Node1-Node2.
// Braking: none, yes, foot_only, dir_left, dir_right.
// Propulsion: none, forward, backward.
type WheelDef struct {
	Radius        float64 `json:"radius"`
	Width         float64 `json:"width,omitempty"`
	Rays          int     `json:"rays"`
	Node1         int     `json:"node1"`
	Node2         int     `json:"node2"`
	ArmNode       int     `json:"armNode"`
	Mass          float64 `json:"mass"`
	Spring        float64 `json:"spring,omitempty"`
	Damp          float64 `json:"damp,omitempty"`
	Braking       string  `json:"braking,omitempty"`
	Propulsion    string  `json:"propulsion,omitempty"`
	DetacherGroup int     `json:"detacherGroup,omitempty"`
}

// AxleDef couples two wheels through a differential. Diffs lists the
// available modes in toggle order: open, locked, split, viscous.
type AxleDef struct {
	WheelA int      `json:"wheelA"`
	WheelB int      `json:"wheelB"`
	Diffs  []string `json:"diffs,omitempty"`
}

// InterAxleDef couples two axles.
type InterAxleDef struct {
	AxleA int      `json:"axleA"`
	AxleB int      `json:"axleB"`
	Diffs []string `json:"diffs,omitempty"`
}

// TransferCaseDef switches propulsion of a second axle.
type TransferCaseDef struct {
	AxleA      int       `json:"axleA"`
	AxleB      int       `json:"axleB"`
	Has2WD     bool      `json:"has2wd"`
	Has2WDLo   bool      `json:"has2wdLo,omitempty"`
	GearRatios []float64 `json:"gearRatios,omitempty"`
}

// EngineDef describes the engine and gearbox. GearRatios lists reverse,
// neutral, then forward gears. Type is truck, car or electric.
type EngineDef struct {
	ShiftDownRPM   float64      `json:"shiftDownRpm"`
	ShiftUpRPM     float64      `json:"shiftUpRpm"`
	Torque         float64      `json:"torque"`
	DiffRatio      float64      `json:"diffRatio"`
	GearRatios     []float64    `json:"gearRatios"`
	Type           string       `json:"type,omitempty"`
	Inertia        float64      `json:"inertia,omitempty"`
	ClutchForce    float64      `json:"clutchForce,omitempty"`
	ShiftTime      float64      `json:"shiftTime,omitempty"`
	ClutchTime     float64      `json:"clutchTime,omitempty"`
	PostShiftTime  float64      `json:"postShiftTime,omitempty"`
	IdleRPM        float64      `json:"idleRpm,omitempty"`
	StallRPM       float64      `json:"stallRpm,omitempty"`
	MaxIdleMixture float64      `json:"maxIdleMixture,omitempty"`
	MinIdleMixture float64      `json:"minIdleMixture,omitempty"`
	TorqueCurve    string       `json:"torqueCurve,omitempty"`
	TorqueSamples  [][2]float64 `json:"torqueSamples,omitempty"`
	AutoMode       string       `json:"autoMode,omitempty"`
}

// BrakesDef sets service and parking brake forces.
type BrakesDef struct {
	Force        float64 `json:"force,omitempty"`
	ParkingForce float64 `json:"parkingForce,omitempty"`
}

// AssistDef configures ABS or traction control. Pulse is in Hz.
type AssistDef struct {
	Enabled  bool    `json:"enabled"`
	Ratio    float64 `json:"ratio,omitempty"`
	Pulse    float64 `json:"pulse,omitempty"`
	MinSpeed float64 `json:"minSpeed,omitempty"`
	Slip     float64 `json:"slip,omitempty"`
	Fade     float64 `json:"fade,omitempty"`
}

// CruiseDef bounds cruise control; LowerLimit is in m/s.
type CruiseDef struct {
	LowerLimit float64 `json:"lowerLimit,omitempty"`
}

// WingDef is an 8-node airfoil section: front-left-down, front-right-down,
// front-left-up, front-right-up, then the same four at the back.
// Control: none, aileron, rev_aileron, elevator, rev_elevator, rudder,
// rev_rudder, flap, airbrake.
type WingDef struct {
	Nodes         [8]int  `json:"nodes"`
	Airfoil       string  `json:"airfoil,omitempty"`
	Control       string  `json:"control,omitempty"`
	MinDeflection float64 `json:"minDeflection,omitempty"`
	MaxDeflection float64 `json:"maxDeflection,omitempty"`
	LiftCoef      float64 `json:"liftCoef,omitempty"`
}

// TurbopropDef is a propeller engine; Power in kW.
type TurbopropDef struct {
	Ref     int     `json:"ref"`
	Back    int     `json:"back"`
	Blades  []int   `json:"blades"`
	Power   float64 `json:"power"`
	Airfoil string  `json:"airfoil,omitempty"`
}

// TurbojetDef is a jet engine; thrusts in kN, WetThrust 0 means no afterburner.
type TurbojetDef struct {
	Front     int     `json:"front"`
	Back      int     `json:"back"`
	Side      int     `json:"side"`
	DryThrust float64 `json:"dryThrust"`
	WetThrust float64 `json:"wetThrust,omitempty"`
	Diameter  float64 `json:"diameter,omitempty"`
	Reverse   bool    `json:"reverse,omitempty"`
}

// ScrewpropDef is a marine propeller; Power in newtons of thrust at full throttle.
type ScrewpropDef struct {
	Ref   int     `json:"ref"`
	Back  int     `json:"back"`
	Up    int     `json:"up"`
	Power float64 `json:"power"`
}

// CommandKeyDef names a command key.
type CommandKeyDef struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
}

// RotatorDef spins the Rot plate against the Base plate about Axis.
type RotatorDef struct {
	Axis           [2]int      `json:"axis"`
	Base           [4]int      `json:"base"`
	Rot            [4]int      `json:"rot"`
	Rate           float64     `json:"rate"`
	KeyLeft        int         `json:"keyLeft"`
	KeyRight       int         `json:"keyRight"`
	Force          float64     `json:"force,omitempty"`
	Tolerance      float64     `json:"tolerance,omitempty"`
	EngineCoupling float64     `json:"engineCoupling,omitempty"`
	NeedsEngine    bool        `json:"needsEngine,omitempty"`
	Inertia        *InertiaDef `json:"inertia,omitempty"`
}

// HookDef configures a hook on Node. Group 0 means -1; AutoLock with the
// default group moves the hook to group -2.
type HookDef struct {
	Node      int     `json:"node"`
	Group     int     `json:"group,omitempty"`
	LockGroup int     `json:"lockGroup,omitempty"`
	LockRange float64 `json:"lockRange,omitempty"`
	LockSpeed float64 `json:"lockSpeed,omitempty"`
	MaxForce  float64 `json:"maxForce,omitempty"`
	MinLength float64 `json:"minLength,omitempty"`
	Timer     float64 `json:"timer,omitempty"`
	AutoLock  bool    `json:"autoLock,omitempty"`
	SelfLock  bool    `json:"selfLock,omitempty"`
	NoDisable bool    `json:"noDisable,omitempty"`
	NoRope    bool    `json:"noRope,omitempty"`
}

// TieDef configures a tie rooted at Node.
type TieDef struct {
	Node       int     `json:"node"`
	MaxReach   float64 `json:"maxReach"`
	Rate       float64 `json:"rate"`
	ShortBound float64 `json:"shortBound"`
	LongBound  float64 `json:"longBound,omitempty"`
	MaxStress  float64 `json:"maxStress"`
	Group      int     `json:"group,omitempty"`
	NoSelfLock bool    `json:"noSelfLock,omitempty"`
}

// RopeDef configures a rope from Root to End.
type RopeDef struct {
	Root  int `json:"root"`
	End   int `json:"end"`
	Group int `json:"group,omitempty"`
}

// RopableDef marks Node as an attachment point.
type RopableDef struct {
	Node      int  `json:"node"`
	Group     int  `json:"group,omitempty"`
	Multilock bool `json:"multilock,omitempty"`
}

// RailDef is a named polyline of nodes that slide nodes travel along.
type RailDef struct {
	ID    int   `json:"id"`
	Nodes []int `json:"nodes"`
}

// SlideNodeDef binds Node to rails. Constraint: all, self, foreign, none.
type SlideNodeDef struct {
	Node           int     `json:"node"`
	Rails          []int   `json:"rails,omitempty"`
	RailGroup      int     `json:"railGroup,omitempty"`
	Spring         float64 `json:"spring,omitempty"`
	BreakForce     float64 `json:"breakForce,omitempty"`
	Tolerance      float64 `json:"tolerance,omitempty"`
	AttachDistance float64 `json:"attachDistance,omitempty"`
	Constraint     string  `json:"constraint,omitempty"`
}

// CameraDef orients a camera from three nodes.
type CameraDef struct {
	Center int `json:"center"`
	Back   int `json:"back"`
	Left   int `json:"left"`
}
