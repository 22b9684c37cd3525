package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(body), 0644))
	return dir
}

func TestLoad_WithValidConfigFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{
		"logLevel": "debug",
		"sim": { "tickHz": 30, "gravity": -1.62 },
		"db": { "host": "10.0.0.1", "port": "5433" }
	}`)

	err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "debug", viper.GetString("logLevel"))
	assert.Equal(t, 30, viper.GetInt("sim.tickHz"))
	assert.InDelta(t, -1.62, viper.GetFloat64("sim.gravity"), 1e-9)
	assert.Equal(t, "10.0.0.1", viper.GetString("db.host"))
	assert.Equal(t, "5433", viper.GetString("db.port"))
}

func TestLoad_DefaultValues(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{}`)))

	assert.Equal(t, "info", viper.GetString("logLevel"))
	assert.Equal(t, "./softbodylogs", viper.GetString("logsDir"))
	assert.Equal(t, "localhost", viper.GetString("db.host"))
	assert.Equal(t, "5432", viper.GetString("db.port"))
	assert.Equal(t, "softbody", viper.GetString("db.database"))
	assert.Equal(t, false, viper.GetBool("influx.enabled"))
	assert.Equal(t, "softbody-metrics", viper.GetString("influx.org"))
	assert.Equal(t, false, viper.GetBool("graylog.enabled"))
	assert.Equal(t, "localhost:12201", viper.GetString("graylog.address"))
	assert.Equal(t, "127.0.0.1:8420", viper.GetString("http.address"))
	assert.Equal(t, "memory", viper.GetString("storage.type"))
	assert.Equal(t, "3m", viper.GetString("storage.sqlite.dumpInterval"))
	assert.Equal(t, false, viper.GetBool("db.timescale"))
	assert.Equal(t, time.Second, viper.GetDuration("monitor.interval"))
}

func TestLoad_MissingFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	err := Load("/nonexistent/path")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestGetters(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testKey", "testValue")
	viper.Set("testInt", 42)
	viper.Set("testBool", true)
	viper.Set("testFloat", 0.5)
	viper.Set("testDuration", "250ms")

	assert.Equal(t, "testValue", GetString("testKey"))
	assert.Equal(t, 42, GetInt("testInt"))
	assert.Equal(t, true, GetBool("testBool"))
	assert.Equal(t, 0.5, GetFloat("testFloat"))
	assert.Equal(t, 250*time.Millisecond, GetDuration("testDuration"))
}

func TestGetSimConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	sc := GetSimConfig()
	assert.Equal(t, 60, sc.TickHz)
	assert.Equal(t, 0, sc.SubSteps)
	assert.Equal(t, 200, sc.MaxSubsteps)
	assert.Equal(t, 10000, sc.ReplayLength)
	assert.Equal(t, 1000, sc.ReplayStepping)
	assert.InDelta(t, -9.81, sc.Gravity, 1e-9)
	assert.Equal(t, "concrete", sc.GroundModel)
	assert.Equal(t, "./definitions", sc.DefinitionsDir)
	assert.Equal(t, time.Second/60, sc.TickInterval())
}

func TestGetSimConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"sim": { "tickHz": 50, "subSteps": 40, "workers": 3, "arcade": true, "groundModel": "gravel" }
	}`)))

	sc := GetSimConfig()
	assert.Equal(t, 50, sc.TickHz)
	assert.Equal(t, 40, sc.SubSteps)
	assert.Equal(t, 3, sc.Workers)
	assert.True(t, sc.Arcade)
	assert.Equal(t, "gravel", sc.GroundModel)
	assert.Equal(t, 20*time.Millisecond, sc.TickInterval())
}

func TestGetGroundModels(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"sim": { "groundModels": [
			{ "name": "wet-ice", "va": 0.1, "ms": 0.2, "mc": 0.05, "vs": 5, "alpha": 2 }
		] }
	}`)))

	models, err := GetGroundModels()
	require.NoError(t, err)
	require.Len(t, models, 1)
	assert.Equal(t, "wet-ice", models[0].Name)
	assert.Equal(t, 0.05, models[0].MC)
	assert.Equal(t, 5.0, models[0].VS)
	assert.Zero(t, models[0].T2)
}

func TestGetGroundModels_None(t *testing.T) {
	t.Cleanup(viper.Reset)
	models, err := GetGroundModels()
	require.NoError(t, err)
	assert.Empty(t, models)
}

func TestTickInterval_NonPositiveRate(t *testing.T) {
	assert.Equal(t, time.Second/60, SimConfig{}.TickInterval())
}

func TestGetStorageConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	cfg := GetStorageConfig()
	assert.Equal(t, "memory", cfg.Type)
	assert.Equal(t, "./sessions", cfg.Memory.OutputDir)
	assert.Equal(t, true, cfg.Memory.CompressOutput)
	assert.Equal(t, 3*time.Minute, cfg.SQLite.DumpInterval)
	assert.Equal(t, 6, cfg.SnapshotEvery)
}

func TestGetStorageConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"storage": {
			"type": "sqlite",
			"memory": { "outputDir": "/tmp/out", "compressOutput": false },
			"sqlite": { "dumpInterval": "10m", "dumpPath": "/tmp/sb.db" },
			"websocket": { "url": "ws://example:9000/ws", "secret": "s3cret" }
		}
	}`)))

	sc := GetStorageConfig()
	assert.Equal(t, "sqlite", sc.Type)
	assert.Equal(t, "/tmp/out", sc.Memory.OutputDir)
	assert.Equal(t, false, sc.Memory.CompressOutput)
	assert.Equal(t, 10*time.Minute, sc.SQLite.DumpInterval)
	assert.Equal(t, "/tmp/sb.db", sc.SQLite.DumpPath)
	assert.Equal(t, "ws://example:9000/ws", sc.WebSocket.URL)
	assert.Equal(t, "s3cret", sc.WebSocket.Secret)
}

func TestGetOTelConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	cfg := GetOTelConfig()
	assert.Equal(t, false, cfg.Enabled)
	assert.Equal(t, "softbody", cfg.ServiceName)
	assert.Equal(t, 5*time.Second, cfg.BatchTimeout)
	assert.Equal(t, "", cfg.Endpoint)
	assert.Equal(t, true, cfg.Insecure)
}

func TestGetOTelConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"otel": {
			"enabled": true,
			"serviceName": "my-service",
			"batchTimeout": "30s",
			"endpoint": "localhost:4317",
			"insecure": false
		}
	}`)))

	oc := GetOTelConfig()
	assert.Equal(t, true, oc.Enabled)
	assert.Equal(t, "my-service", oc.ServiceName)
	assert.Equal(t, 30*time.Second, oc.BatchTimeout)
	assert.Equal(t, "localhost:4317", oc.Endpoint)
	assert.Equal(t, false, oc.Insecure)
}

func TestGetUploadConfig(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"upload": { "enabled": true, "url": "https://archive.example", "secret": "k", "tag": "test" }
	}`)))

	uc := GetUploadConfig()
	assert.True(t, uc.Enabled)
	assert.Equal(t, "https://archive.example", uc.URL)
	assert.Equal(t, "k", uc.Secret)
	assert.Equal(t, "test", uc.Tag)
}
