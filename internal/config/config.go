package config

import (
	"fmt"
	"time"

	"github.com/OCAP2/softbody/internal/soft"
	"github.com/spf13/viper"
)

// FileName is the configuration file looked up in the config directory.
const FileName = "softbody.cfg.json"

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds settings of the in-memory SQLite backend.
type SQLiteConfig struct {
	DumpPath     string        `json:"dumpPath" mapstructure:"dumpPath"`
	DumpInterval time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
}

// WebSocketConfig holds settings of the streaming backend.
type WebSocketConfig struct {
	URL    string `json:"url" mapstructure:"url"`
	Secret string `json:"secret" mapstructure:"secret"`
}

// StorageConfig selects and configures the storage backend.
type StorageConfig struct {
	Type      string          `json:"type" mapstructure:"type"`
	Memory    MemoryConfig    `json:"memory" mapstructure:"memory"`
	SQLite    SQLiteConfig    `json:"sqlite" mapstructure:"sqlite"`
	WebSocket WebSocketConfig `json:"websocket" mapstructure:"websocket"`
	// SnapshotEvery records one snapshot per vehicle every n ticks.
	SnapshotEvery int `json:"snapshotEvery" mapstructure:"snapshotEvery"`
}

// SimConfig holds the simulation settings.
type SimConfig struct {
	TickHz         int     `json:"tickHz" mapstructure:"tickHz"`
	SubSteps       int     `json:"subSteps" mapstructure:"subSteps"`
	MaxSubsteps    int     `json:"maxSubsteps" mapstructure:"maxSubsteps"`
	Workers        int     `json:"workers" mapstructure:"workers"`
	ReplayLength   int     `json:"replayLength" mapstructure:"replayLength"`
	ReplayStepping int     `json:"replayStepping" mapstructure:"replayStepping"`
	Gravity        float64 `json:"gravity" mapstructure:"gravity"`
	SleepTimeout   float64 `json:"sleepTimeout" mapstructure:"sleepTimeout"`
	Arcade         bool    `json:"arcade" mapstructure:"arcade"`
	GroundHeight   float64 `json:"groundHeight" mapstructure:"groundHeight"`
	GroundModel    string  `json:"groundModel" mapstructure:"groundModel"`
	WaterLevel     float64 `json:"waterLevel" mapstructure:"waterLevel"`
	// DefinitionsDir is scanned for *.json vehicle definitions at startup.
	DefinitionsDir string `json:"definitionsDir" mapstructure:"definitionsDir"`
}

// UploadConfig points at the archive service finished sessions are sent to.
type UploadConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	URL     string `json:"url" mapstructure:"url"`
	Secret  string `json:"secret" mapstructure:"secret"`
	Tag     string `json:"tag" mapstructure:"tag"`
}

// OTelConfig holds OpenTelemetry settings.
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// TickInterval returns the wall time between two ticks.
func (c SimConfig) TickInterval() time.Duration {
	if c.TickHz <= 0 {
		return time.Second / 60
	}
	return time.Second / time.Duration(c.TickHz)
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	setDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./softbodylogs")

	viper.SetDefault("sim.tickHz", 60)
	viper.SetDefault("sim.subSteps", 0)
	viper.SetDefault("sim.maxSubsteps", 200)
	viper.SetDefault("sim.workers", 0)
	viper.SetDefault("sim.replayLength", 10000)
	viper.SetDefault("sim.replayStepping", 1000)
	viper.SetDefault("sim.gravity", -9.81)
	viper.SetDefault("sim.sleepTimeout", 10.0)
	viper.SetDefault("sim.arcade", false)
	viper.SetDefault("sim.groundHeight", 0.0)
	viper.SetDefault("sim.groundModel", "concrete")
	viper.SetDefault("sim.waterLevel", -1000.0)
	viper.SetDefault("sim.definitionsDir", "./definitions")

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.snapshotEvery", 6)
	viper.SetDefault("storage.memory.outputDir", "./sessions")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.dumpPath", "./sessions/softbody.db")
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")
	viper.SetDefault("storage.websocket.url", "ws://localhost:5000/ingest")
	viper.SetDefault("storage.websocket.secret", "")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "softbody")
	viper.SetDefault("db.timescale", false)

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "softbody-metrics")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "softbody")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("http.address", "127.0.0.1:8420")

	viper.SetDefault("monitor.interval", "1s")

	viper.SetDefault("session.autoStart", false)
	viper.SetDefault("session.name", "default")

	viper.SetDefault("upload.enabled", false)
	viper.SetDefault("upload.url", "")
	viper.SetDefault("upload.secret", "")
	viper.SetDefault("upload.tag", "")

	viper.SetDefault("geo.originLat", 0.0)
	viper.SetDefault("geo.originLon", 0.0)
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetFloat returns a float config value.
func GetFloat(key string) float64 {
	return viper.GetFloat64(key)
}

// GetDuration returns a duration config value.
func GetDuration(key string) time.Duration {
	return viper.GetDuration(key)
}

// GetStorageConfig returns the storage section.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{
			DumpPath:     viper.GetString("storage.sqlite.dumpPath"),
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
		},
		WebSocket: WebSocketConfig{
			URL:    viper.GetString("storage.websocket.url"),
			Secret: viper.GetString("storage.websocket.secret"),
		},
		SnapshotEvery: viper.GetInt("storage.snapshotEvery"),
	}
}

// GetSimConfig returns the sim section.
func GetSimConfig() SimConfig {
	return SimConfig{
		TickHz:         viper.GetInt("sim.tickHz"),
		SubSteps:       viper.GetInt("sim.subSteps"),
		MaxSubsteps:    viper.GetInt("sim.maxSubsteps"),
		Workers:        viper.GetInt("sim.workers"),
		ReplayLength:   viper.GetInt("sim.replayLength"),
		ReplayStepping: viper.GetInt("sim.replayStepping"),
		Gravity:        viper.GetFloat64("sim.gravity"),
		SleepTimeout:   viper.GetFloat64("sim.sleepTimeout"),
		Arcade:         viper.GetBool("sim.arcade"),
		GroundHeight:   viper.GetFloat64("sim.groundHeight"),
		GroundModel:    viper.GetString("sim.groundModel"),
		WaterLevel:     viper.GetFloat64("sim.waterLevel"),
		DefinitionsDir: viper.GetString("sim.definitionsDir"),
	}
}

// GetGroundModels returns the extra surfaces listed under sim.groundModels.
func GetGroundModels() ([]soft.GroundModel, error) {
	var models []soft.GroundModel
	if err := viper.UnmarshalKey("sim.groundModels", &models); err != nil {
		return nil, fmt.Errorf("sim.groundModels: %w", err)
	}
	return models, nil
}

// GetOTelConfig returns the otel section.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetUploadConfig returns the upload section.
func GetUploadConfig() UploadConfig {
	return UploadConfig{
		Enabled: viper.GetBool("upload.enabled"),
		URL:     viper.GetString("upload.url"),
		Secret:  viper.GetString("upload.secret"),
		Tag:     viper.GetString("upload.tag"),
	}
}
