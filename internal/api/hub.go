package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/OCAP2/softbody/pkg/core"
)

const (
	writeWait      = 5 * time.Second
	clientSendSize = 256
)

// StreamMessage is one frame sent to viewers.
type StreamMessage struct {
	Type string `json:"type"`
	Kind string `json:"kind,omitempty"`
	Data any    `json:"data"`
}

type viewer struct {
	conn    *websocket.Conn
	send    chan []byte
	vehicle core.VehicleID
}

// Hub streams snapshots and effect hints to websocket viewers. It is a
// registry scene: calls never block on a slow viewer, whose frames are
// dropped instead.
type Hub struct {
	mu       sync.RWMutex
	viewers  map[*viewer]struct{}
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		viewers: make(map[*viewer]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: logger.With("component", "hub"),
	}
}

// Viewers returns the number of connected viewers.
func (h *Hub) Viewers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.viewers)
}

func (h *Hub) EnqueueVisualUpdate(id core.VehicleID, s core.Snapshot) {
	h.broadcast(id, StreamMessage{Type: "snapshot", Data: s})
}

func (h *Hub) SpawnFX(kind string, payload any) {
	h.broadcast(core.NoVehicle, StreamMessage{Type: "fx", Kind: kind, Data: payload})
}

func (h *Hub) broadcast(id core.VehicleID, msg StreamMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.viewers) == 0 {
		return
	}
	var data []byte
	for v := range h.viewers {
		if v.vehicle != core.NoVehicle && id != core.NoVehicle && v.vehicle != id {
			continue
		}
		if data == nil {
			var err error
			if data, err = json.Marshal(msg); err != nil {
				h.logger.Error("Failed to encode stream message", "type", msg.Type, "error", err)
				return
			}
		}
		select {
		case v.send <- data:
		default:
		}
	}
}

// ServeWS upgrades the request and streams until the viewer disconnects.
// The optional vehicle query parameter limits snapshots to one vehicle.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	filter := core.NoVehicle
	if q := r.URL.Query().Get("vehicle"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil {
			http.Error(w, "invalid vehicle", http.StatusBadRequest)
			return
		}
		filter = core.VehicleID(n)
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", "error", err)
		return
	}
	v := &viewer{conn: conn, send: make(chan []byte, clientSendSize), vehicle: filter}

	h.mu.Lock()
	h.viewers[v] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("Viewer connected", "remote", r.RemoteAddr, "vehicle", filter)

	go h.writePump(v)

	// reads only detect the close
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.remove(v)
}

func (h *Hub) writePump(v *viewer) {
	defer v.conn.Close()
	for data := range v.send {
		_ = v.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := v.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.remove(v)
			return
		}
	}
	_ = v.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}

func (h *Hub) remove(v *viewer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.viewers[v]; ok {
		delete(h.viewers, v)
		close(v.send)
	}
}

// Close disconnects every viewer.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for v := range h.viewers {
		delete(h.viewers, v)
		close(v.send)
	}
}
