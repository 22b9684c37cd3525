// Package streaming defines the wire messages the websocket storage backend
// sends to a session ingest server.
package streaming

import (
	"encoding/json"

	"github.com/OCAP2/softbody/pkg/core"
)

// Message type constants matching the streaming protocol.
const (
	TypeStartSession  = "start_session"
	TypeEndSession    = "end_session"
	TypeAddVehicle    = "add_vehicle"
	TypeRemoveVehicle = "remove_vehicle"
	TypeSnapshot      = "snapshot"
	TypeEvent         = "event"
	TypeSaveState     = "save_state"

	// TypeAck is the type of every server acknowledgement.
	TypeAck = "ack"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// StartSessionPayload carries the session header.
type StartSessionPayload struct {
	Session *core.Session `json:"session"`
}

// RemoveVehiclePayload marks a vehicle as gone.
type RemoveVehiclePayload struct {
	Vehicle core.VehicleID `json:"vehicle"`
	Tick    uint64         `json:"tick"`
}

// SaveStatePayload carries a vehicle save taken at Tick.
type SaveStatePayload struct {
	Tick  uint64          `json:"tick"`
	State *core.SaveState `json:"state"`
}
