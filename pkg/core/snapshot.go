// pkg/core/snapshot.go
package core

import "time"

// VehicleState is the lifecycle state of a simulated vehicle.
type VehicleState string

const (
	StateSimulated VehicleState = "simulated"
	StateSleeping  VehicleState = "sleeping"
	StateReplay    VehicleState = "replay"
	StateNetworked VehicleState = "networked"
	StateInvalid   VehicleState = "invalid"
	StateDeleting  VehicleState = "deleting"
)

// Light flags packed into Snapshot.Lights.
const (
	LightHeadlights uint32 = 1 << iota
	LightBrake
	LightReverse
	LightBlinkLeft
	LightBlinkRight
	LightBeacons
	LightHorn
)

// WheelSample is the per-wheel part of a snapshot.
type WheelSample struct {
	Speed    float32 `json:"speed"`
	Rotation float32 `json:"rotation"`
	Slip     float32 `json:"slip"`
}

// Snapshot is the compact per-tick outbound state of one vehicle.
type Snapshot struct {
	Vehicle VehicleID    `json:"vehicle"`
	Tick    uint64       `json:"tick"`
	SimTime float64      `json:"simTime"`
	Wall    time.Time    `json:"wall"`
	State   VehicleState `json:"state"`
	// Nodes holds x,y,z triplets.
	Nodes []float32 `json:"nodes"`
	// Broken is a bitset over beam indices.
	Broken []uint64      `json:"broken"`
	Wheels []WheelSample `json:"wheels,omitempty"`
	RPM    float32       `json:"rpm"`
	Gear   int           `json:"gear"`
	Speed  float32       `json:"speed"`
	Lights uint32        `json:"lights"`
	Turbo  float32       `json:"turbo,omitempty"`
}

// NodeCount returns the number of node positions carried.
func (s *Snapshot) NodeCount() int { return len(s.Nodes) / 3 }

// IsBroken reads the broken bit for beam i.
func (s *Snapshot) IsBroken(i int) bool {
	w := i / 64
	if w >= len(s.Broken) {
		return false
	}
	return s.Broken[w]&(1<<(uint(i)%64)) != 0
}

// SetBroken sets the broken bit for beam i, growing the bitset as needed.
func (s *Snapshot) SetBroken(i int) {
	w := i / 64
	for len(s.Broken) <= w {
		s.Broken = append(s.Broken, 0)
	}
	s.Broken[w] |= 1 << (uint(i) % 64)
}

// NodeSave is the persisted state of one node.
type NodeSave struct {
	Pos [3]float64 `json:"pos"`
	Vel [3]float64 `json:"vel"`
}

// BeamSave is the persisted state of one beam.
type BeamSave struct {
	L            float64 `json:"l"`
	Strength     float64 `json:"strength"`
	MaxPosStress float64 `json:"maxPosStress"`
	MaxNegStress float64 `json:"maxNegStress"`
	Broken       bool    `json:"broken,omitempty"`
	Disabled     bool    `json:"disabled,omitempty"`
}

// WheelSave is the persisted state of one wheel.
type WheelSave struct {
	Speed    float64 `json:"speed"`
	Rotation float64 `json:"rotation"`
	Detached bool    `json:"detached,omitempty"`
}

// EngineSave is the persisted state of the engine.
type EngineSave struct {
	RPM      float64 `json:"rpm"`
	Gear     int     `json:"gear"`
	Running  bool    `json:"running"`
	Contact  bool    `json:"contact"`
	AutoMode int     `json:"autoMode"`
	Select   int     `json:"autoSelect"`
	Clutch   float64 `json:"clutch"`
}

// SaveState is the serialized vehicle state returned on a host save request.
type SaveState struct {
	Vehicle  VehicleID    `json:"vehicle"`
	Name     string       `json:"name"`
	SimTime  float64      `json:"simTime"`
	State    VehicleState `json:"state"`
	Nodes    []NodeSave   `json:"nodes"`
	Beams    []BeamSave   `json:"beams"`
	Wheels   []WheelSave  `json:"wheels,omitempty"`
	Engine   *EngineSave  `json:"engine,omitempty"`
	Commands []float64    `json:"commands,omitempty"`
	Parking  bool         `json:"parking,omitempty"`
}
