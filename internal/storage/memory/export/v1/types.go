// Package v1 contains the v1 export format for recorded simulation sessions.
package v1

import "github.com/OCAP2/softbody/pkg/core"

// FormatVersion is written into every export.
const FormatVersion = "softbody/v1"

// Export is the root JSON structure for v1 format
type Export struct {
	Format    string         `json:"format"`
	SessionID string         `json:"sessionId"`
	Name      string         `json:"name"`
	StartedAt string         `json:"startedAt"`
	TickHz    int            `json:"tickHz"`
	Origin    core.GeoOrigin `json:"origin"`
	EndTick   uint64         `json:"endTick"`
	Vehicles  []Vehicle      `json:"vehicles"`
	Events    []core.Event   `json:"events"`
}

// Vehicle is one spawned vehicle with its recorded frames.
type Vehicle struct {
	ID          core.VehicleID `json:"id"`
	Name        string         `json:"name"`
	Nodes       int            `json:"nodes"`
	Beams       int            `json:"beams"`
	SpawnTick   uint64         `json:"spawnTick"`
	RemovedTick *uint64        `json:"removedTick,omitempty"`
	// Frames holds [tick, simTime, state, [x, y, z], speed, rpm, gear] rows.
	Frames [][]any `json:"frames"`
	// Track is the EPSG:3857 path of the first node as WKT, empty when the
	// vehicle has fewer than two frames or no geo origin is set.
	Track string `json:"track,omitempty"`
	// Broken lists the beams broken in the last frame.
	Broken []int `json:"broken"`
	Saves  int   `json:"saves"`
}
