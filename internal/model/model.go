package model

import (
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []any{
	&Session{},
	&Vehicle{},
	&VehicleSnapshot{},
	&SimEvent{},
	&SavedState{},
	&Performance{},
}

////////////////////////
// SESSION MODELS
////////////////////////

// Session is one run of the simulation
type Session struct {
	ID        string     `json:"id" gorm:"primaryKey;size:36"`
	Name      string     `json:"name" gorm:"size:200"`
	StartedAt time.Time  `json:"startedAt" gorm:"index:idx_session_start"`
	EndedAt   *time.Time `json:"endedAt"`
	TickHz    int        `json:"tickHz"`
	OriginLat float64    `json:"originLat"`
	OriginLon float64    `json:"originLon"`
	Origin    geom.Point `json:"origin"`
}

func (*Session) TableName() string {
	return "sessions"
}

// Vehicle is a spawned vehicle. Uses composite primary key (SessionID, VehicleID).
type Vehicle struct {
	SessionID   string     `json:"sessionId" gorm:"primaryKey;size:36"`
	VehicleID   int        `json:"vehicleId" gorm:"primaryKey;autoIncrement:false"`
	Name        string     `json:"name" gorm:"size:127"`
	Nodes       int        `json:"nodes"`
	Beams       int        `json:"beams"`
	SpawnTick   uint64     `json:"spawnTick"`
	SpawnedAt   time.Time  `json:"spawnedAt"`
	RemovedTick *uint64    `json:"removedTick"`
	RemovedAt   *time.Time `json:"removedAt"`
}

func (*Vehicle) TableName() string {
	return "vehicles"
}

// VehicleSnapshot is the recorded outbound state of a vehicle at one tick
type VehicleSnapshot struct {
	ID        uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time      time.Time `json:"time"`
	SessionID string    `json:"sessionId" gorm:"size:36;index:idx_snapshot_session_vehicle"`
	VehicleID int       `json:"vehicleId" gorm:"index:idx_snapshot_session_vehicle"`
	Tick      uint64    `json:"tick" gorm:"index:idx_snapshot_tick"`
	SimTime   float64   `json:"simTime"`
	State     string    `json:"state" gorm:"size:16"`

	Position  geom.Point `json:"position"`  // first node, EPSG:3857
	Elevation float32    `json:"elevation"` // height of the first node
	Speed     float32    `json:"speed"`
	RPM       float32    `json:"rpm"`
	Gear      int        `json:"gear"`
	Turbo     float32    `json:"turbo"`
	Lights    uint32     `json:"lights"`

	Nodes  datatypes.JSON `json:"nodes"`
	Broken datatypes.JSON `json:"broken"`
	Wheels datatypes.JSON `json:"wheels"`
}

func (*VehicleSnapshot) TableName() string {
	return "vehicle_snapshots"
}

// SimEvent is an event emitted by the simulation
type SimEvent struct {
	ID           uint    `json:"id" gorm:"primarykey;autoIncrement;"`
	SessionID    string  `json:"sessionId" gorm:"size:36;index:idx_simevent_session"`
	VehicleID    int     `json:"vehicleId" gorm:"index:idx_simevent_vehicle"`
	Tick         uint64  `json:"tick"`
	SimTime      float64 `json:"simTime"`
	Kind         string  `json:"kind" gorm:"size:32;index:idx_simevent_kind"`
	Code         string  `json:"code" gorm:"size:64"`
	Beam         int     `json:"beam"`
	Node         int     `json:"node"`
	OtherVehicle int     `json:"otherVehicle"`
	OtherNode    int     `json:"otherNode"`
	Value        float64 `json:"value"`
	Message      string  `json:"message" gorm:"size:2000"`
}

func (*SimEvent) TableName() string {
	return "sim_events"
}

// SavedState is a persisted vehicle save
type SavedState struct {
	ID        uint           `json:"id" gorm:"primarykey;autoIncrement;"`
	CreatedAt time.Time      `json:"createdAt"`
	SessionID string         `json:"sessionId" gorm:"size:36;index:idx_save_session_vehicle"`
	VehicleID int            `json:"vehicleId" gorm:"index:idx_save_session_vehicle"`
	Name      string         `json:"name" gorm:"size:127"`
	Tick      uint64         `json:"tick"`
	State     datatypes.JSON `json:"state"`
}

func (*SavedState) TableName() string {
	return "saved_states"
}

////////////////////////
// SYSTEM MODELS
////////////////////////

// Performance is the model for simulation performance metrics
type Performance struct {
	Time                time.Time         `json:"time" gorm:"index:idx_time"`
	SessionID           string            `json:"sessionId" gorm:"size:36;index:idx_performance_session"`
	Tick                uint64            `json:"tick"`
	Vehicles            int               `json:"vehicles"`
	Substeps            int               `json:"substeps"`
	TickDurationMs      float32           `json:"tickDurationMs"`
	WriteQueueLengths   WriteQueueLengths `json:"writeQueueLengths" gorm:"embedded;embeddedPrefix:writequeue_"`
	LastWriteDurationMs float32           `json:"lastWriteDurationMs"`
}

func (*Performance) TableName() string {
	return "performances"
}

// WriteQueueLengths is the model for the write queue lengths
type WriteQueueLengths struct {
	Vehicles  int `json:"vehicles"`
	Snapshots int `json:"snapshots"`
	Events    int `json:"events"`
	Saves     int `json:"saves"`
}
