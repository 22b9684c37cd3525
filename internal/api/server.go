// Package api exposes the simulation to hosts over HTTP: commands are
// routed through the dispatcher, reads go straight to the registry, and
// snapshots stream to websocket viewers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/OCAP2/softbody/internal/cache"
	"github.com/OCAP2/softbody/internal/dispatcher"
	"github.com/OCAP2/softbody/internal/registry"
	"github.com/OCAP2/softbody/internal/session"
	"github.com/OCAP2/softbody/internal/worker"
	"github.com/OCAP2/softbody/pkg/core"
)

const maxBodyBytes = 32 << 20

// Dispatcher routes host commands.
type Dispatcher interface {
	Dispatch(e dispatcher.Event) (any, error)
}

// Reader answers queries without going through the command queue.
type Reader interface {
	Vehicles() []registry.Info
	Snapshot(id core.VehicleID) (core.Snapshot, bool)
	LastStats() registry.TickStats
}

// Dependencies holds all dependencies for the HTTP server
type Dependencies struct {
	Dispatcher  Dispatcher
	Reader      Reader
	Definitions *cache.DefinitionCache
	Session     *session.Context
	Hub         *Hub
	Logger      *slog.Logger
	// AccessLog receives combined-format request logs when set.
	AccessLog io.Writer
}

// Status is returned by GET /status.
type Status struct {
	Session  *core.Session `json:"session,omitempty"`
	Tick     uint64        `json:"tick"`
	Vehicles int           `json:"vehicles"`
	Substeps int           `json:"substeps"`
	TickMs   float64       `json:"tickMs"`
	Viewers  int           `json:"viewers"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	Code  string `json:"code,omitempty"`
}

// Server is the host HTTP surface.
type Server struct {
	deps Dependencies
	srv  *http.Server
}

func NewServer(deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Hub == nil {
		deps.Hub = NewHub(deps.Logger)
	}
	return &Server{deps: deps}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/healthcheck", s.healthcheck).Methods(http.MethodGet)
	router.HandleFunc("/status", s.status).Methods(http.MethodGet)

	router.HandleFunc("/session", s.command(worker.CmdSessionStart, http.StatusCreated)).Methods(http.MethodPost)
	router.HandleFunc("/session", s.command(worker.CmdSessionEnd, http.StatusOK)).Methods(http.MethodDelete)

	router.HandleFunc("/definitions", s.definitions).Methods(http.MethodGet)
	router.HandleFunc("/definitions", s.command(worker.CmdDefine, http.StatusOK)).Methods(http.MethodPut)

	router.HandleFunc("/vehicles", s.vehicles).Methods(http.MethodGet)
	router.HandleFunc("/vehicles", s.command(worker.CmdSpawn, http.StatusCreated)).Methods(http.MethodPost)

	const vehicle = "/vehicles/{id:[0-9]+}"
	router.HandleFunc(vehicle, s.command(worker.CmdRemove, http.StatusAccepted)).Methods(http.MethodDelete)
	router.HandleFunc(vehicle+"/snapshot", s.snapshot).Methods(http.MethodGet)
	router.HandleFunc(vehicle+"/inputs", s.command(worker.CmdInputs, http.StatusAccepted)).Methods(http.MethodPost)
	router.HandleFunc(vehicle+"/remote", s.command(worker.CmdRemote, http.StatusAccepted)).Methods(http.MethodPost)
	router.HandleFunc(vehicle+"/state", s.command(worker.CmdState, http.StatusAccepted)).Methods(http.MethodPut)
	router.HandleFunc(vehicle+"/save", s.command(worker.CmdSave, http.StatusOK)).Methods(http.MethodPost)
	router.HandleFunc(vehicle+"/restore", s.command(worker.CmdRestore, http.StatusOK)).Methods(http.MethodPost)

	router.HandleFunc("/ws", s.deps.Hub.ServeWS).Methods(http.MethodGet)

	var h http.Handler = router
	if s.deps.AccessLog != nil {
		h = handlers.CombinedLoggingHandler(s.deps.AccessLog, h)
	}
	return handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(h)
}

// Start listens on addr and serves in the background. It returns the bound
// address.
func (s *Server) Start(addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", err
	}
	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.deps.Logger.Error("HTTP server stopped", "error", err)
		}
	}()
	s.deps.Logger.Info("HTTP API listening", "address", ln.Addr().String())
	return ln.Addr().String(), nil
}

// Shutdown stops the server and disconnects viewers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.deps.Hub.Close()
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) healthcheck(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	st := s.deps.Reader.LastStats()
	out := Status{
		Tick:     st.Tick,
		Vehicles: len(s.deps.Reader.Vehicles()),
		Substeps: st.Steps,
		TickMs:   float64(st.Duration.Microseconds()) / 1000,
		Viewers:  s.deps.Hub.Viewers(),
	}
	if s.deps.Session != nil && s.deps.Session.Active() {
		out.Session = s.deps.Session.Get()
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) definitions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Definitions.Names())
}

func (s *Server) vehicles(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Reader.Vehicles())
}

func (s *Server) snapshot(w http.ResponseWriter, r *http.Request) {
	id := vehicleID(r)
	snap, ok := s.deps.Reader.Snapshot(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no snapshot for vehicle " + strconv.Itoa(int(id))})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// command dispatches cmd with the request body as payload.
func (s *Server) command(cmd string, okStatus int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		if len(body) > 0 && !json.Valid(body) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "body is not valid JSON"})
			return
		}

		e := dispatcher.Event{
			Command:   cmd,
			Vehicle:   vehicleID(r),
			Payload:   body,
			Timestamp: time.Now(),
		}
		result, err := s.deps.Dispatcher.Dispatch(e)
		if err != nil {
			writeError(w, err)
			return
		}
		if result == nil {
			w.WriteHeader(okStatus)
			return
		}
		writeJSON(w, okStatus, result)
	}
}

// vehicleID returns the {id} route variable, NoVehicle on routes without
// one.
func vehicleID(r *http.Request) core.VehicleID {
	raw, ok := mux.Vars(r)["id"]
	if !ok {
		return core.NoVehicle
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return core.NoVehicle
	}
	return core.VehicleID(n)
}

func writeError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error()}
	status := http.StatusInternalServerError

	var se *core.SimError
	switch {
	case errors.As(err, &se):
		resp.Kind = se.Kind.String()
		resp.Code = se.Code
		switch se.Kind {
		case core.DefinitionInvalid:
			status = http.StatusUnprocessableEntity
		case core.InteractionInvalid:
			status = http.StatusConflict
			if se.Code == core.CodeUnknownVehicle || se.Code == core.CodeNoSave {
				status = http.StatusNotFound
			}
		default:
			status = http.StatusConflict
		}
	case errors.Is(err, dispatcher.ErrBadPayload):
		status = http.StatusBadRequest
	case errors.Is(err, worker.ErrNoSession):
		status = http.StatusConflict
	case errors.Is(err, dispatcher.ErrQueueFull):
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
