// pkg/core/ids.go
package core

import "fmt"

// VehicleID is the dense numeric id the registry assigns to a spawned vehicle.
type VehicleID int

// NoVehicle marks an unset vehicle reference.
const NoVehicle VehicleID = -1

// NodeRef addresses a node across vehicles.
type NodeRef struct {
	Vehicle VehicleID `json:"vehicle"`
	Node    int       `json:"node"`
}

// NoNode is the zero reference: no vehicle, no node.
var NoNode = NodeRef{Vehicle: NoVehicle, Node: -1}

// Valid reports whether the reference points at a node.
func (r NodeRef) Valid() bool {
	return r.Vehicle != NoVehicle && r.Node >= 0
}

func (r NodeRef) String() string {
	return fmt.Sprintf("%d:%d", r.Vehicle, r.Node)
}
