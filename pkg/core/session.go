package core

import "time"

// GeoOrigin anchors local simulation metres on the globe. Local x points
// east, y up and z south.
type GeoOrigin struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Session is one run of the simulation as seen by storage.
type Session struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	StartedAt time.Time `json:"startedAt"`
	TickHz    int       `json:"tickHz"`
	Origin    GeoOrigin `json:"origin"`
}

// VehicleRecord describes a spawned vehicle for storage.
type VehicleRecord struct {
	ID        VehicleID `json:"id"`
	Name      string    `json:"name"`
	Nodes     int       `json:"nodes"`
	Beams     int       `json:"beams"`
	SpawnTick uint64    `json:"spawnTick"`
	SpawnedAt time.Time `json:"spawnedAt"`
}
