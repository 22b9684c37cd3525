package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/OCAP2/softbody/internal/api"
	"github.com/OCAP2/softbody/internal/cache"
	"github.com/OCAP2/softbody/internal/config"
	"github.com/OCAP2/softbody/internal/dispatcher"
	"github.com/OCAP2/softbody/internal/influx"
	"github.com/OCAP2/softbody/internal/logging"
	"github.com/OCAP2/softbody/internal/monitor"
	intOtel "github.com/OCAP2/softbody/internal/otel"
	"github.com/OCAP2/softbody/internal/registry"
	"github.com/OCAP2/softbody/internal/session"
	"github.com/OCAP2/softbody/internal/soft"
	"github.com/OCAP2/softbody/internal/storage"
	"github.com/OCAP2/softbody/internal/vehicle"
	"github.com/OCAP2/softbody/internal/worker"
	"github.com/OCAP2/softbody/pkg/core"
)

// module defs - BuildDate can be set at build time via ldflags
var (
	CurrentVersion = "0.0.1"
	BuildDate      = "unknown"

	AppName = "softbody"
)

// ConfigDirEnv overrides the directory the config file is read from.
const ConfigDirEnv = "SOFTBODY_CONFIG_DIR"

// hypertables lists the time-series tables turned into TimescaleDB
// hypertables when db.timescale is set, with their compression segments.
var hypertables = map[string][]string{
	"performances": {"session_id"},
}

const usage = `usage: softbody [command]

commands:
  serve                 run the simulation and its HTTP API (default)
  sessions [--db path]  list recorded sessions
  export <id>... [--db path] [--out dir] [--gzip=false]
                        write recorded sessions as JSON
  migrate [--dir dir] [--to path]
                        copy SQLite dumps into Postgres
  version               print the version
`

func main() {
	args := os.Args[1:]
	cmd := "serve"
	if len(args) > 0 {
		cmd = strings.ToLower(args[0])
		args = args[1:]
	}

	configDir := os.Getenv(ConfigDirEnv)
	if configDir == "" {
		configDir = "."
	}

	var err error
	switch cmd {
	case "serve":
		err = serve(configDir)
	case "sessions":
		err = listSessions(configDir, args, os.Stdout)
	case "export":
		err = exportSessions(configDir, args, os.Stdout)
	case "migrate":
		err = migrateBackups(configDir, args, os.Stdout)
	case "version":
		fmt.Printf("%s %s (built %s)\n", AppName, CurrentVersion, BuildDate)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app holds everything serve starts so shutdown can unwind it in order.
type app struct {
	start time.Time

	slogManager *logging.SlogManager
	logger      *slog.Logger
	zlog        zerolog.Logger
	logFile     *os.File
	otel        *intOtel.Provider
	gelf        io.Closer

	backend  storage.Backend
	influx   *influx.Manager
	session  *session.Context
	registry *registry.Registry
	manager  *worker.Manager
	commands *dispatcher.Dispatcher
	monitor  *monitor.Service
	hub      *api.Hub
	server   *api.Server
	uploader *api.Client
}

func serve(configDir string) error {
	a := &app{start: time.Now(), slogManager: logging.NewSlogManager()}

	// stdout until the log file exists
	a.slogManager.Setup(nil, "info", nil)
	a.logger = a.slogManager.Logger()

	if err := config.Load(configDir); err != nil {
		a.logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		a.logger.Info("Loaded config", "dir", configDir)
	}

	if err := a.setupLogging(nil); err != nil {
		return err
	}
	a.logger.Info("Starting up...", "version", CurrentVersion, "build", BuildDate)

	if err := a.setupStorage(); err != nil {
		a.shutdown()
		return err
	}
	if err := a.setupSimulation(); err != nil {
		a.shutdown()
		return err
	}
	// log records carry the tick and vehicle count from here on
	if err := a.setupLogging(a.registry.LogAttrs); err != nil {
		a.shutdown()
		return err
	}
	a.setupMonitor()

	addr, err := a.server.Start(viper.GetString("http.address"))
	if err != nil {
		a.shutdown()
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	a.logger.Info("HTTP API listening", "address", addr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	interval := config.GetSimConfig().TickInterval()
	a.logger.Info("Simulation running", "interval", interval)
	err = a.registry.Run(ctx, interval)
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	a.logger.Info("Shutting down...")
	a.shutdown()
	return err
}

// setupLogging opens the log file on first use and (re)builds the slog and
// zerolog loggers on top of it.
func (a *app) setupLogging(provider logging.ContextProvider) error {
	if a.logFile == nil {
		logsDir := viper.GetString("logsDir")
		if err := os.MkdirAll(logsDir, 0o755); err != nil {
			return fmt.Errorf("failed to create logs dir: %w", err)
		}
		path := logging.LogFilePath(logsDir, AppName, a.start)
		if _, err := os.Stat(path); err == nil {
			_ = os.Rename(path, path+".old")
		}
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
		if err != nil {
			return fmt.Errorf("failed to create log file: %w", err)
		}
		a.logFile = f
		a.logger.Info("Begin logging in logs directory", "path", path)

		otelCfg := config.GetOTelConfig()
		if otelCfg.Enabled {
			a.otel, err = intOtel.New(intOtel.Config{
				Enabled:      otelCfg.Enabled,
				ServiceName:  otelCfg.ServiceName,
				BatchTimeout: otelCfg.BatchTimeout,
				LogWriter:    f,
				Endpoint:     otelCfg.Endpoint,
				Insecure:     otelCfg.Insecure,
			})
			if err != nil {
				a.logger.Error("Failed to initialize OTel provider", "error", err)
			} else {
				a.logger.Info("OTel provider initialized", "endpoint", otelCfg.Endpoint)
			}
		}
	}

	var opts []logging.Option
	if viper.GetBool("graylog.enabled") {
		if a.gelf == nil {
			w, err := logging.NewGelfWriter(viper.GetString("graylog.address"))
			if err != nil {
				a.logger.Error("Failed to connect to Graylog", "error", err)
			} else {
				a.gelf = w
			}
		}
		if w, ok := a.gelf.(logging.GelfWriter); ok {
			host, _ := os.Hostname()
			opts = append(opts, logging.WithGelf(w, host))
		}
	}
	if provider != nil {
		opts = append(opts, logging.WithContext(provider))
	}

	var otelLogProvider *sdklog.LoggerProvider
	if a.otel != nil {
		otelLogProvider = a.otel.LoggerProvider()
	}
	level := viper.GetString("logLevel")
	a.slogManager.Setup(a.logFile, level, otelLogProvider, opts...)
	a.logger = a.slogManager.Logger()

	zl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || zl == zerolog.NoLevel {
		zl = zerolog.InfoLevel
	}
	a.zlog = zerolog.New(a.logFile).Level(zl).With().Timestamp().Str("service", AppName).Logger()
	return nil
}

func (a *app) setupStorage() error {
	storageCfg := config.GetStorageConfig()
	backend, err := storage.NewBackend(storageCfg, a.zlog, a.logger)
	if err != nil {
		return fmt.Errorf("failed to create storage backend: %w", err)
	}
	if err := backend.Init(); err != nil {
		return fmt.Errorf("failed to initialize storage backend: %w", err)
	}
	a.backend = backend
	a.logger.Info("Storage backend initialized", "type", storageCfg.Type)

	if viper.GetBool("influx.enabled") {
		m := influx.NewManager(a.zlog, filepath.Join(viper.GetString("logsDir"), "influx_backup.lp.gz"))
		if err := m.Connect(); err != nil {
			a.logger.Error("Failed to connect to InfluxDB", "error", err)
		} else {
			a.influx = m
		}
	}

	if u := config.GetUploadConfig(); u.Enabled && u.URL != "" {
		a.uploader = api.New(u.URL, u.Secret)
		if err := a.uploader.Healthcheck(); err != nil {
			a.logger.Warn("Upload server not reachable", "url", u.URL, "error", err)
		}
	}
	return nil
}

func (a *app) setupSimulation() error {
	simCfg := config.GetSimConfig()

	defs := cache.NewDefinitionCache()
	if simCfg.DefinitionsDir != "" {
		n, err := defs.LoadDir(simCfg.DefinitionsDir)
		switch {
		case errors.Is(err, os.ErrNotExist):
			a.logger.Info("No definitions directory", "dir", simCfg.DefinitionsDir)
		case err != nil:
			return fmt.Errorf("failed to load definitions: %w", err)
		default:
			a.logger.Info("Loaded vehicle definitions", "count", n, "dir", simCfg.DefinitionsDir)
		}
	}

	a.session = session.NewContext()
	a.hub = api.NewHub(a.logger)
	a.manager = worker.NewManager(worker.Dependencies{
		Definitions:   defs,
		Session:       a.session,
		Logger:        a.logger,
		Influx:        a.influx,
		Scene:         a.hub,
		SnapshotEvery: config.GetStorageConfig().SnapshotEvery,
		TickHz:        simCfg.TickHz,
		OnSessionEnd:  a.upload,
	}, a.backend)

	models, err := config.GetGroundModels()
	if err != nil {
		return err
	}
	for _, gm := range models {
		if err := soft.RegisterGroundModel(gm); err != nil {
			return fmt.Errorf("failed to register ground model: %w", err)
		}
	}

	// unknown ground models fall back to the default surface
	ground := soft.NewFlatGround(simCfg.GroundHeight, soft.LookupGroundModel(simCfg.GroundModel).Name)
	if simCfg.WaterLevel > simCfg.GroundHeight {
		ground.Water = simCfg.WaterLevel
	}

	reg, err := registry.New(registry.Config{
		Ground:      ground,
		Workers:     simCfg.Workers,
		SubSteps:    simCfg.SubSteps,
		MaxSubsteps: simCfg.MaxSubsteps,
		Vehicle: vehicle.Options{
			ReplayLength:   simCfg.ReplayLength,
			ReplayStepping: simCfg.ReplayStepping,
			Arcade:         simCfg.Arcade,
			SleepTimeout:   simCfg.SleepTimeout,
			Gravity:        simCfg.Gravity,
		},
		Scene:  a.manager,
		Events: a.manager,
		Logger: a.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create registry: %w", err)
	}
	a.registry = reg
	a.manager.SetSimulation(reg)

	d, err := dispatcher.New(logging.NewDispatcherLogger(a.zlog))
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}
	a.manager.RegisterHandlers(d)
	a.commands = d

	a.server = api.NewServer(api.Dependencies{
		Dispatcher:  d,
		Reader:      reg,
		Definitions: defs,
		Session:     a.session,
		Hub:         a.hub,
		Logger:      a.logger,
		AccessLog:   a.logFile,
	})

	if viper.GetBool("session.autoStart") {
		_, err := d.Dispatch(dispatcher.Event{
			Command:   worker.CmdSessionStart,
			Vehicle:   core.NoVehicle,
			Payload:   []byte(fmt.Sprintf(`{"name":%q}`, viper.GetString("session.name"))),
			Timestamp: time.Now(),
		})
		if err != nil {
			return fmt.Errorf("failed to start session: %w", err)
		}
	}
	return nil
}

func (a *app) setupMonitor() {
	deps := monitor.Dependencies{
		Logger:    a.logger,
		Session:   a.session,
		Stats:     a.registry,
		Influx:    a.influx,
		StatusDir: viper.GetString("logsDir"),
		Interval:  viper.GetDuration("monitor.interval"),
	}
	if q, ok := a.backend.(monitor.QueueReporter); ok {
		deps.Queues = q
	}
	if s, ok := a.backend.(monitor.PerformanceSink); ok {
		deps.Sink = s
	}
	a.monitor = monitor.NewService(deps)

	if viper.GetBool("db.timescale") {
		if db := backendDB(a.backend); db != nil && db.Dialector.Name() == "postgres" {
			if err := a.monitor.ValidateHypertables(db, hypertables); err != nil {
				a.logger.Error("Failed to validate hypertables", "error", err)
			}
		}
	}

	if err := a.monitor.Start(); err != nil {
		a.logger.Error("Failed to start status monitor", "error", err)
	}
}

// upload flushes the exported logs of a finished session and sends its
// export to the archive service.
func (a *app) upload(res worker.SessionEndResult) {
	if a.otel != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.otel.Flush(ctx); err != nil {
			a.logger.Warn("Failed to flush OTel logs", "session", res.SessionID, "error", err)
		}
		cancel()
	}
	if a.uploader == nil || res.ExportPath == "" {
		return
	}
	meta := api.UploadMetadata{
		SessionID:   res.SessionID,
		SessionName: res.SessionName,
		Duration:    res.Duration,
		Vehicles:    res.Vehicles,
		Tag:         config.GetUploadConfig().Tag,
	}
	go func() {
		if err := a.uploader.Upload(res.ExportPath, meta); err != nil {
			a.logger.Error("Failed to upload session", "session", res.SessionID, "path", res.ExportPath, "error", err)
			return
		}
		a.logger.Info("Uploaded session", "session", res.SessionID, "path", res.ExportPath)
	}()
}

func (a *app) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			a.logger.Error("HTTP server shutdown failed", "error", err)
		}
	}
	if a.session != nil && a.session.Active() && a.commands != nil {
		// the regular end path exports and uploads
		if _, err := a.commands.Dispatch(dispatcher.Event{
			Command:   worker.CmdSessionEnd,
			Vehicle:   core.NoVehicle,
			Timestamp: time.Now(),
		}); err != nil {
			a.logger.Error("Failed to end session", "error", err)
		}
	}
	if a.monitor != nil {
		a.monitor.Stop()
	}
	if a.registry != nil {
		a.registry.Close()
	}
	if a.hub != nil {
		a.hub.Close()
	}
	if a.backend != nil {
		if err := a.backend.Close(); err != nil {
			a.logger.Error("Failed to close storage backend", "error", err)
		}
	}
	if a.influx != nil {
		if err := a.influx.Close(); err != nil {
			a.logger.Error("Failed to close InfluxDB", "error", err)
		}
	}
	if a.otel != nil {
		if err := a.otel.Shutdown(ctx); err != nil {
			a.logger.Error("Failed to shutdown OTel", "error", err)
		}
	}
	if err := a.slogManager.Flush(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "flush logs:", err)
	}
	if a.gelf != nil {
		_ = a.gelf.Close()
	}
	if a.logFile != nil {
		_ = a.logFile.Close()
	}
}
