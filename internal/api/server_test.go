package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/softbody/internal/cache"
	"github.com/OCAP2/softbody/internal/config"
	"github.com/OCAP2/softbody/internal/dispatcher"
	"github.com/OCAP2/softbody/internal/registry"
	"github.com/OCAP2/softbody/internal/session"
	"github.com/OCAP2/softbody/internal/storage/memory"
	"github.com/OCAP2/softbody/internal/worker"
	"github.com/OCAP2/softbody/pkg/core"
)

// boxDef is a stiff unit cube with collision triangles on all six faces.
func boxDef() *core.Definition {
	def := &core.Definition{Name: "box", DisableDrag: true, DisableSelfCollisions: true}
	for y := range 2 {
		for x := range 2 {
			for z := range 2 {
				def.Nodes = append(def.Nodes, core.NodeDef{Pos: core.Vec{float64(x), float64(y), float64(z)}, Mass: 10})
			}
		}
	}
	def.Nodes = append(def.Nodes,
		core.NodeDef{Pos: core.Vec{0.5, 0, 0.5}, Mass: 10},
		core.NodeDef{Pos: core.Vec{0.5, 1, 0.5}, Mass: 10},
	)
	for i := range def.Nodes {
		for j := i + 1; j < len(def.Nodes); j++ {
			def.Beams = append(def.Beams, core.BeamDef{N1: i, N2: j, Spring: 9e6, Damp: 12000, Deform: 1e12, Strength: 1e12})
		}
	}
	idx := func(x, y, z int) int { return y*4 + x*2 + z }
	quad := func(n0, n1, n2, n3 int) {
		def.Cabs = append(def.Cabs,
			core.CabDef{Nodes: [3]int{n0, n1, n2}, Collision: true},
			core.CabDef{Nodes: [3]int{n0, n2, n3}, Collision: true},
		)
	}
	for _, s := range []int{0, 1} {
		quad(idx(s, 0, 0), idx(s, 0, 1), idx(s, 1, 1), idx(s, 1, 0))
		quad(idx(0, 0, s), idx(1, 0, s), idx(1, 1, s), idx(0, 1, s))
		quad(idx(0, s, 0), idx(1, s, 0), idx(1, s, 1), idx(0, s, 1))
	}
	return def
}

type testEnv struct {
	srv  *Server
	http *httptest.Server
	reg  *registry.Registry
	hub  *Hub
	defs *cache.DefinitionCache
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	d, err := dispatcher.New(logger)
	require.NoError(t, err)

	defs := cache.NewDefinitionCache()
	defs.Set("box", boxDef())
	ctx := session.NewContext()
	hub := NewHub(logger)

	backend := memory.New(config.MemoryConfig{OutputDir: t.TempDir()})
	mgr := worker.NewManager(worker.Dependencies{
		Definitions: defs,
		Session:     ctx,
		Logger:      logger,
		Scene:       hub,
		TickHz:      60,
	}, backend)

	reg, err := registry.New(registry.Config{
		SubSteps: 10,
		Workers:  2,
		Scene:    mgr,
		Events:   mgr,
		Logger:   logger,
	})
	require.NoError(t, err)
	t.Cleanup(reg.Close)
	mgr.SetSimulation(reg)
	mgr.RegisterHandlers(d)

	srv := NewServer(Dependencies{
		Dispatcher:  d,
		Reader:      reg,
		Definitions: defs,
		Session:     ctx,
		Hub:         hub,
		Logger:      logger,
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(hub.Close)
	return &testEnv{srv: srv, http: ts, reg: reg, hub: hub, defs: defs}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.http.URL+path, rd)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func (e *testEnv) spawn(t *testing.T) core.VehicleID {
	t.Helper()
	resp, body := e.do(t, http.MethodPost, "/vehicles", worker.SpawnPayload{Definition: "box", Offset: core.Vec{0, 5, 0}})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var res worker.SpawnResult
	require.NoError(t, json.Unmarshal(body, &res))
	return res.Vehicle
}

func TestHealthcheck(t *testing.T) {
	e := newTestEnv(t)
	resp, body := e.do(t, http.MethodGet, "/healthcheck", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
}

func TestSpawnListAndSnapshot(t *testing.T) {
	e := newTestEnv(t)
	id := e.spawn(t)
	assert.Equal(t, core.VehicleID(0), id)

	resp, body := e.do(t, http.MethodGet, "/vehicles", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var infos []registry.Info
	require.NoError(t, json.Unmarshal(body, &infos))
	require.Len(t, infos, 1)
	assert.Equal(t, "box", infos[0].Name)

	resp, _ = e.do(t, http.MethodGet, "/vehicles/0/snapshot", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "nothing published before the first tick")

	e.reg.Tick(context.Background(), 1.0/60)

	resp, body = e.do(t, http.MethodGet, "/vehicles/0/snapshot", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var snap core.Snapshot
	require.NoError(t, json.Unmarshal(body, &snap))
	assert.Equal(t, uint64(1), snap.Tick)
	assert.Equal(t, 10, snap.NodeCount())
}

func TestSpawn_Errors(t *testing.T) {
	e := newTestEnv(t)

	resp, body := e.do(t, http.MethodPost, "/vehicles", worker.SpawnPayload{Definition: "ghost"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	var er errorResponse
	require.NoError(t, json.Unmarshal(body, &er))
	assert.Equal(t, core.CodeUnknownDefinition, er.Code)
	assert.Equal(t, "definition-invalid", er.Kind)

	resp, _ = e.do(t, http.MethodPost, "/vehicles", "{not json")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = e.do(t, http.MethodPost, "/vehicles", `{"offset": "up"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = e.do(t, http.MethodPost, "/vehicles", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestVehicleCommands(t *testing.T) {
	e := newTestEnv(t)
	e.spawn(t)

	resp, body := e.do(t, http.MethodPost, "/vehicles/0/inputs", core.Inputs{Throttle: 1})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Contains(t, string(body), "queued")

	resp, _ = e.do(t, http.MethodPut, "/vehicles/0/state", worker.StatePayload{State: core.StateNetworked})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, _ = e.do(t, http.MethodPut, "/vehicles/0/state", worker.StatePayload{State: core.StateInvalid})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = e.do(t, http.MethodDelete, "/vehicles/9", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(body), core.CodeUnknownVehicle)

	resp, _ = e.do(t, http.MethodDelete, "/vehicles/0", nil)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, _ = e.do(t, http.MethodGet, "/vehicles/abc/snapshot", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSaveRestore(t *testing.T) {
	e := newTestEnv(t)
	e.spawn(t)
	e.reg.Tick(context.Background(), 1.0/60)

	resp, _ := e.do(t, http.MethodPost, "/vehicles/0/restore", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "no save yet")

	resp, body := e.do(t, http.MethodPost, "/vehicles/0/save", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var st core.SaveState
	require.NoError(t, json.Unmarshal(body, &st))
	assert.Equal(t, core.VehicleID(0), st.Vehicle)
	assert.Len(t, st.Nodes, 10)

	e.reg.Tick(context.Background(), 1.0/60)

	resp, _ = e.do(t, http.MethodPost, "/vehicles/0/restore", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSessionLifecycle(t *testing.T) {
	e := newTestEnv(t)

	resp, _ := e.do(t, http.MethodDelete, "/session", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body := e.do(t, http.MethodPost, "/session", worker.SessionStartPayload{Name: "yard"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var s core.Session
	require.NoError(t, json.Unmarshal(body, &s))
	assert.Equal(t, "yard", s.Name)
	assert.NotEmpty(t, s.ID)

	resp, body = e.do(t, http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status Status
	require.NoError(t, json.Unmarshal(body, &status))
	require.NotNil(t, status.Session)
	assert.Equal(t, s.ID, status.Session.ID)

	resp, body = e.do(t, http.MethodDelete, "/session", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var end worker.SessionEndResult
	require.NoError(t, json.Unmarshal(body, &end))
	assert.Equal(t, s.ID, end.SessionID)
	assert.Contains(t, end.ExportPath, "yard_")
}

func TestDefinitions(t *testing.T) {
	e := newTestEnv(t)

	resp, _ := e.do(t, http.MethodPut, "/definitions", core.Definition{Name: "crate"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := e.do(t, http.MethodGet, "/definitions", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var names []string
	require.NoError(t, json.Unmarshal(body, &names))
	assert.Equal(t, []string{"box", "crate"}, names)
}

func TestMethodNotAllowed(t *testing.T) {
	e := newTestEnv(t)
	resp, _ := e.do(t, http.MethodPatch, "/vehicles", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func dialViewer(t *testing.T, e *testEnv, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.http.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) StreamMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg StreamMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestWebsocketStream(t *testing.T) {
	e := newTestEnv(t)
	all := dialViewer(t, e, "")
	only1 := dialViewer(t, e, "?vehicle=1")
	assert.Eventually(t, func() bool { return e.hub.Viewers() == 2 }, time.Second, 5*time.Millisecond)

	e.hub.EnqueueVisualUpdate(0, core.Snapshot{Vehicle: 0, Tick: 4})
	e.hub.EnqueueVisualUpdate(1, core.Snapshot{Vehicle: 1, Tick: 4})
	e.hub.SpawnFX("water", []int{1})

	msg := readMessage(t, all)
	assert.Equal(t, "snapshot", msg.Type)
	assert.EqualValues(t, 0, msg.Data.(map[string]any)["vehicle"])

	msg = readMessage(t, only1)
	assert.Equal(t, "snapshot", msg.Type)
	assert.EqualValues(t, 1, msg.Data.(map[string]any)["vehicle"])

	msg = readMessage(t, only1)
	assert.Equal(t, "fx", msg.Type)
	assert.Equal(t, "water", msg.Kind)
}

func TestWebsocket_BadFilter(t *testing.T) {
	e := newTestEnv(t)
	resp, _ := e.do(t, http.MethodGet, "/ws?vehicle=x", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebsocket_Disconnect(t *testing.T) {
	e := newTestEnv(t)
	conn := dialViewer(t, e, "")
	assert.Eventually(t, func() bool { return e.hub.Viewers() == 1 }, time.Second, 5*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return e.hub.Viewers() == 0 }, time.Second, 5*time.Millisecond)
}

func TestServer_StartShutdown(t *testing.T) {
	e := newTestEnv(t)
	addr, err := e.srv.Start("127.0.0.1:0")
	require.NoError(t, err)

	resp, err := http.Get("http://" + addr + "/healthcheck")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, e.srv.Shutdown(ctx))
}
