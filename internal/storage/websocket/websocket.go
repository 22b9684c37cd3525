// Package websocket streams a session to an ingest server as it is
// recorded.
package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/OCAP2/softbody/internal/config"
	"github.com/OCAP2/softbody/pkg/core"
	"github.com/OCAP2/softbody/pkg/streaming"
)

// Backend streams session data over WebSocket.
// It implements storage.Backend but not storage.Uploadable.
type Backend struct {
	conn *connection
	cfg  config.WebSocketConfig

	mu       sync.Mutex
	startMsg []byte
	vehicles map[core.VehicleID][]byte
}

// New creates a new WebSocket storage backend.
func New(cfg config.WebSocketConfig, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Backend{
		conn:     newConnection(logger.With("component", "storage.websocket")),
		cfg:      cfg,
		vehicles: make(map[core.VehicleID][]byte),
	}
	b.conn.replay = b.replayMessages
	return b
}

// Init connects to the WebSocket server.
func (b *Backend) Init() error {
	return b.conn.dial(b.cfg.URL, b.cfg.Secret)
}

// Close disconnects from the WebSocket server.
func (b *Backend) Close() error {
	return b.conn.close()
}

// Pending is the number of messages not yet written to the socket.
func (b *Backend) Pending() int {
	return b.conn.pending()
}

// replayMessages returns the session start and the live vehicles in id
// order.
func (b *Backend) replayMessages() [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.startMsg == nil {
		return nil
	}
	out := [][]byte{b.startMsg}
	ids := make([]core.VehicleID, 0, len(b.vehicles))
	for id := range b.vehicles {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		out = append(out, b.vehicles[id])
	}
	return out
}

// marshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	env := streaming.Envelope{Type: msgType, Payload: raw}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

// sendEnvelope marshals the payload into an Envelope and pushes it
// to the write loop (fire-and-forget).
func (b *Backend) sendEnvelope(msgType string, payload any) error {
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	b.conn.send(data)
	return nil
}

// StartSession sends the session header and waits for server ack.
func (b *Backend) StartSession(s *core.Session) error {
	data, err := marshalEnvelope(streaming.TypeStartSession, streaming.StartSessionPayload{Session: s})
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.startMsg = data
	b.vehicles = make(map[core.VehicleID][]byte)
	b.mu.Unlock()

	return b.conn.sendAndWait(data, streaming.TypeStartSession, ackTimeout)
}

// EndSession sends end_session and waits for server ack.
func (b *Backend) EndSession() error {
	data, err := marshalEnvelope(streaming.TypeEndSession, nil)
	if err != nil {
		return err
	}
	err = b.conn.sendAndWait(data, streaming.TypeEndSession, ackTimeout)

	// Clear cached state regardless of error.
	b.mu.Lock()
	b.startMsg = nil
	b.vehicles = make(map[core.VehicleID][]byte)
	b.mu.Unlock()

	return err
}

func (b *Backend) AddVehicle(v *core.VehicleRecord) error {
	data, err := marshalEnvelope(streaming.TypeAddVehicle, v)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.vehicles[v.ID] = data
	b.mu.Unlock()

	b.conn.send(data)
	return nil
}

func (b *Backend) RemoveVehicle(id core.VehicleID, tick uint64) error {
	b.mu.Lock()
	delete(b.vehicles, id)
	b.mu.Unlock()

	return b.sendEnvelope(streaming.TypeRemoveVehicle, streaming.RemoveVehiclePayload{Vehicle: id, Tick: tick})
}

func (b *Backend) RecordSnapshot(s *core.Snapshot) error {
	return b.sendEnvelope(streaming.TypeSnapshot, s)
}

func (b *Backend) RecordEvent(e *core.Event) error {
	return b.sendEnvelope(streaming.TypeEvent, e)
}

// SaveState forwards a save; the server keeps it, restores are not served
// from the stream.
func (b *Backend) SaveState(tick uint64, st *core.SaveState) error {
	return b.sendEnvelope(streaming.TypeSaveState, streaming.SaveStatePayload{Tick: tick, State: st})
}
