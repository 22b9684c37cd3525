// Package monitor samples the running simulation once per interval: it
// rewrites a status file and records a performance row and point.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/OCAP2/softbody/internal/influx"
	"github.com/OCAP2/softbody/internal/model"
	"github.com/OCAP2/softbody/internal/registry"
	"github.com/OCAP2/softbody/internal/session"
)

// StatusFileName is written into Dependencies.StatusDir.
const StatusFileName = "status.txt"

// StatsSource reports the last completed tick.
type StatsSource interface {
	LastStats() registry.TickStats
}

// QueueReporter is implemented by storage backends with write queues.
type QueueReporter interface {
	QueueLengths() model.WriteQueueLengths
	LastWriteDuration() time.Duration
}

// PerformanceSink stores performance rows.
type PerformanceSink interface {
	RecordPerformance(p model.Performance) error
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Logger  *slog.Logger
	Session *session.Context
	Stats   StatsSource
	// Queues, Sink and Influx are optional.
	Queues    QueueReporter
	Sink      PerformanceSink
	Influx    *influx.Manager
	StatusDir string
	Interval  time.Duration
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Interval <= 0 {
		deps.Interval = time.Second
	}
	return &Service{
		deps:     deps,
		stopChan: make(chan struct{}),
	}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetProgramStatus returns the status lines and the performance row of the
// current moment.
func (s *Service) GetProgramStatus() (output []string, perf model.Performance) {
	st := s.deps.Stats.LastStats()
	perf = model.Performance{
		Time:           time.Now(),
		Tick:           st.Tick,
		Vehicles:       st.Vehicles,
		Substeps:       st.Steps,
		TickDurationMs: float32(st.Duration.Microseconds()) / 1000,
	}
	if sess := s.deps.Session.Get(); sess != nil {
		perf.SessionID = sess.ID
	}
	if s.deps.Queues != nil {
		perf.WriteQueueLengths = s.deps.Queues.QueueLengths()
		perf.LastWriteDurationMs = float32(s.deps.Queues.LastWriteDuration().Microseconds()) / 1000
	}

	output = append(output, fmt.Sprintf("tick: %d  vehicles: %d  substeps: %d  tick: %.3fms",
		perf.Tick, perf.Vehicles, perf.Substeps, perf.TickDurationMs))
	writeQueuesStr, err := json.MarshalIndent(perf.WriteQueueLengths, "", "  ")
	if err != nil {
		writeQueuesStr = []byte(fmt.Sprintf(`{"error": "%s"}`, err))
	}
	output = append(output, string(writeQueuesStr))
	output = append(output, fmt.Sprintf("last write: %.3fms", perf.LastWriteDurationMs))
	return output, perf
}

// Sample writes one status update. It does nothing without an active
// session.
func (s *Service) Sample(statusFile *os.File) {
	if !s.deps.Session.Active() {
		return
	}
	logger := s.deps.Logger
	lines, perf := s.GetProgramStatus()

	if statusFile != nil {
		if err := statusFile.Truncate(0); err == nil {
			_, _ = statusFile.Seek(0, 0)
			_, _ = statusFile.WriteString(strings.Join(lines, "\n") + "\n")
		}
	}

	if s.deps.Sink != nil {
		if err := s.deps.Sink.RecordPerformance(perf); err != nil {
			logger.Error("Error recording performance", "error", err)
		}
	}
	if s.deps.Influx != nil && s.deps.Influx.Enabled() {
		st := s.deps.Stats.LastStats()
		p := influx.TickPoint(perf.SessionID, st.Tick, st.Vehicles, st.Steps, st.Duration)
		if err := s.deps.Influx.WritePoint(context.Background(), influx.BucketPerformance, p); err != nil {
			logger.Error("Error writing performance point", "error", err)
		}
	}
}

// ValidateHypertables turns the given tables into TimescaleDB hypertables
// on time, compressed by the listed segment columns.
func (s *Service) ValidateHypertables(db *gorm.DB, tables map[string][]string) error {
	logger := s.deps.Logger.With("function", "validateHypertables")

	for table, segmentBy := range tables {
		var hypertables []map[string]any
		db.Raw(`SELECT hypertable_name FROM timescaledb_information.hypertables WHERE hypertable_name = ?`, table).Scan(&hypertables)
		if len(hypertables) > 0 {
			logger.Info("Table is already configured", "table", table)
			continue
		}

		err := db.Exec(fmt.Sprintf(
			`SELECT create_hypertable('%s', 'time', chunk_time_interval => interval '1 day', if_not_exists => true);`,
			table,
		)).Error
		if err != nil {
			logger.Error("Failed to create hypertable", "table", table, "error", err)
			return err
		}
		logger.Info("Created hypertable", "table", table)

		err = db.Exec(
			fmt.Sprintf(`ALTER TABLE %s SET (timescaledb.compress, timescaledb.compress_segmentby = ?);`, table),
			strings.Join(segmentBy, ","),
		).Error
		if err != nil {
			logger.Error("Failed to enable compression", "table", table, "error", err)
			return err
		}

		err = db.Exec(fmt.Sprintf(
			`SELECT add_compression_policy('%s', compress_after => interval '14 day');`,
			table,
		)).Error
		if err != nil {
			logger.Error("Failed to set compress_after", "table", table, "error", err)
			return err
		}
		logger.Info("Enabled hypertable compression", "table", table)
	}
	return nil
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	s.mu.Unlock()

	var statusFile *os.File
	if s.deps.StatusDir != "" {
		f, err := os.Create(filepath.Join(s.deps.StatusDir, StatusFileName))
		if err != nil {
			s.deps.Logger.Error("Error creating status file", "error", err)
		} else {
			statusFile = f
		}
	}

	go func() {
		defer func() {
			if statusFile != nil {
				statusFile.Close()
			}
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
			close(s.done)
		}()

		s.deps.Logger.Debug("Starting status monitor goroutine")
		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.Sample(statusFile)
			}
		}
	}()

	return nil
}

// Stop stops the status monitor and waits for it to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()
	<-done
}
