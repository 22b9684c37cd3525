package logging

import (
	"bytes"
	"context"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// simState stands in for the registry counters behind the context provider.
type simState struct {
	tick     atomic.Uint64
	vehicles atomic.Int64
}

func (s *simState) attrs() []slog.Attr {
	return []slog.Attr{
		slog.Uint64("tick", s.tick.Load()),
		slog.Int64("vehicles", s.vehicles.Load()),
	}
}

func TestSetup_FileOnly_NoStdout(t *testing.T) {
	restore := captureStdout(t)

	var file bytes.Buffer
	m := NewSlogManager()
	m.Setup(&file, "info", nil)
	m.Logger().Info("vehicle spawned", "vehicle", 1)

	stdout := restore()

	assert.Contains(t, file.String(), "vehicle spawned")
	assert.Contains(t, file.String(), "Logging initialized")
	assert.Empty(t, stdout)
}

func TestSetup_NoFile_WritesToStdout(t *testing.T) {
	restore := captureStdout(t)

	m := NewSlogManager()
	m.Setup(nil, "info", nil)
	m.Logger().Info("registry started")

	assert.Contains(t, restore(), "registry started")
}

func TestSetup_Level(t *testing.T) {
	tests := []struct {
		level     string
		wantDebug bool
	}{
		{"debug", true},
		{"info", false},
		{"bogus", false},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			m := NewSlogManager()
			m.Setup(&buf, tt.level, nil)

			m.Logger().Debug("notice", "code", "nan")
			m.Logger().Warn("vehicle diverged", "vehicle", 2)

			assert.Equal(t, tt.wantDebug, bytes.Contains(buf.Bytes(), []byte("code=nan")))
			assert.Contains(t, buf.String(), "vehicle diverged")
		})
	}
}

func TestSetup_ReplacesLogger(t *testing.T) {
	var before, after bytes.Buffer
	m := NewSlogManager()

	m.Setup(&before, "info", nil)
	m.Logger().Info("tick 1")
	m.Setup(&after, "info", nil)
	m.Logger().Info("tick 2")

	assert.Contains(t, before.String(), "tick 1")
	assert.NotContains(t, before.String(), "tick 2")
	assert.Contains(t, after.String(), "tick 2")
}

func TestSetup_SimulationContext(t *testing.T) {
	var sim simState
	var file bytes.Buffer
	gelf := &gelfRecorder{}

	m := NewSlogManager()
	m.Setup(&file, "info", nil, WithGelf(gelf, "sim-01"), WithContext(sim.attrs))

	sim.tick.Store(42)
	sim.vehicles.Store(3)
	m.Logger().Info("vehicle removed", "vehicle", 7)

	assert.Contains(t, file.String(), "msg=\"vehicle removed\" vehicle=7 tick=42 vehicles=3")

	// the init record plus ours, each stamped with the counters of its moment
	require.Len(t, gelf.msgs, 2)
	assert.Equal(t, uint64(0), gelf.msgs[0].Extra["_tick"])
	m1 := gelf.msgs[1]
	assert.Equal(t, "vehicle removed", m1.Short)
	assert.Equal(t, "sim-01", m1.Host)
	assert.Equal(t, uint64(42), m1.Extra["_tick"])
	assert.Equal(t, int64(3), m1.Extra["_vehicles"])
	assert.Equal(t, int64(7), m1.Extra["_vehicle"])
}

func TestSetup_GelfHonoursLevel(t *testing.T) {
	gelf := &gelfRecorder{}
	m := NewSlogManager()
	m.Setup(&bytes.Buffer{}, "warn", nil, WithGelf(gelf, "sim-01"))

	m.Logger().Info("vehicle spawned")
	m.Logger().Warn("vehicle exploded", "node", 4)

	require.Len(t, gelf.msgs, 1)
	assert.Equal(t, "vehicle exploded", gelf.msgs[0].Short)
	assert.Equal(t, int32(4), gelf.msgs[0].Level)
}

func TestLogger_DefaultBeforeSetup(t *testing.T) {
	assert.Equal(t, slog.Default(), NewSlogManager().Logger())
}

func TestFlush(t *testing.T) {
	t.Run("no provider", func(t *testing.T) {
		assert.NoError(t, NewSlogManager().Flush(context.Background()))
	})
	t.Run("otel provider", func(t *testing.T) {
		var buf bytes.Buffer
		m := NewSlogManager()
		m.Setup(&buf, "info", sdklog.NewLoggerProvider())

		m.Logger().Info("session ended")

		assert.Contains(t, buf.String(), "session ended")
		assert.NoError(t, m.Flush(context.Background()))
	})
}

func TestWriteLog(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "unknown"} {
		t.Run(level, func(t *testing.T) {
			var buf bytes.Buffer
			m := NewSlogManager()
			m.Setup(&buf, "debug", nil)

			m.WriteLog("scene", level+" from host", level)

			assert.Contains(t, buf.String(), level+" from host")
			assert.Contains(t, buf.String(), "component=scene")
		})
	}
}

func TestWriteLog_BeforeSetup(t *testing.T) {
	assert.NotPanics(t, func() {
		NewSlogManager().WriteLog("scene", "dropped", "info")
	})
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"Warn":    slog.LevelWarn,
		"ERROR":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in), in)
	}
}

// captureStdout redirects the stdout sink to a pipe and returns a function
// that restores it and returns what was written.
func captureStdout(t *testing.T) func() string {
	t.Helper()

	r, w, err := osPipe()
	require.NoError(t, err)

	orig := osStdout
	osStdout = w

	return func() string {
		w.Close()
		osStdout = orig
		var buf bytes.Buffer
		buf.ReadFrom(r)
		r.Close()
		return buf.String()
	}
}
