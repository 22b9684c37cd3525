// Package postgres implements the storage.Backend interface using GORM/PostgreSQL
// with internal queues and a background DB writer goroutine.
package postgres

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/OCAP2/softbody/internal/database"
	"github.com/OCAP2/softbody/internal/geo"
	"github.com/OCAP2/softbody/internal/model"
	"github.com/OCAP2/softbody/internal/model/convert"
	"github.com/OCAP2/softbody/internal/queue"
	"github.com/OCAP2/softbody/pkg/core"
)

// DefaultWriteInterval is the pause between two writer passes.
const DefaultWriteInterval = 2 * time.Second

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	// DB is used as is when set; otherwise Init connects to Postgres.
	DB            *gorm.DB
	Logger        zerolog.Logger
	WriteInterval time.Duration
}

// queues holds all the write queues for batch DB insertion.
type queues struct {
	Vehicles     *queue.Queue[model.Vehicle]
	Snapshots    *queue.Queue[model.VehicleSnapshot]
	Events       *queue.Queue[model.SimEvent]
	Performances *queue.Queue[model.Performance]
}

func newQueues() *queues {
	return &queues{
		Vehicles:     queue.New[model.Vehicle](),
		Snapshots:    queue.New[model.VehicleSnapshot](),
		Events:       queue.New[model.SimEvent](),
		Performances: queue.New[model.Performance](),
	}
}

// Backend implements storage.Backend using GORM with queue-based batch writes.
type Backend struct {
	deps   Dependencies
	log    zerolog.Logger
	queues *queues

	mu        sync.RWMutex
	sessionID string
	projector *geo.Projector

	// writeMu serializes writer passes.
	writeMu   sync.Mutex
	lastWrite time.Duration

	stopChan chan struct{}
	done     chan struct{}
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.WriteInterval <= 0 {
		deps.WriteInterval = DefaultWriteInterval
	}
	return &Backend{
		deps:   deps,
		log:    deps.Logger.With().Str("component", "storage").Str("backend", "gorm").Logger(),
		queues: newQueues(),
	}
}

// DB returns the connection in use, nil before Init.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// Init runs schema migration and starts the DB writer goroutine.
// If no DB was injected via Dependencies, it creates its own postgres connection.
func (b *Backend) Init() error {
	mgr := database.NewManager(b.deps.Logger)
	if b.deps.DB == nil {
		if err := mgr.Connect(); err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		b.deps.DB = mgr.DB
	} else {
		mgr.DB = b.deps.DB
	}

	if err := mgr.Setup(); err != nil {
		return fmt.Errorf("failed to setup DB: %w", err)
	}

	b.stopChan = make(chan struct{})
	b.done = make(chan struct{})
	go b.writeLoop()
	return nil
}

// Close stops the DB writer goroutine after a final write pass.
func (b *Backend) Close() error {
	if b.stopChan == nil {
		return nil
	}
	close(b.stopChan)
	<-b.done
	b.stopChan = nil
	return nil
}

// StartSession inserts the session row and stamps every later record with
// its id.
func (b *Backend) StartSession(s *core.Session) error {
	p, err := geo.NewProjector(s.Origin)
	if err != nil {
		b.log.Warn().Err(err).Msg("Session origin rejected, positions are not projected")
		p = nil
	}

	b.mu.Lock()
	b.sessionID = s.ID
	b.projector = p
	b.mu.Unlock()

	if b.deps.DB == nil {
		return nil
	}
	row := convert.CoreToSession(*s, p)
	if err := b.deps.DB.Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// EndSession flushes the queues and stamps the session end time.
func (b *Backend) EndSession() error {
	id := b.session()
	if b.deps.DB == nil || id == "" {
		return nil
	}
	if err := b.Flush(); err != nil {
		return err
	}
	now := time.Now().UTC()
	return b.deps.DB.Model(&model.Session{}).Where("id = ?", id).Update("ended_at", now).Error
}

func (b *Backend) session() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sessionID
}

// AddVehicle converts a vehicle record to GORM and pushes to the write queue.
func (b *Backend) AddVehicle(v *core.VehicleRecord) error {
	b.queues.Vehicles.Push(convert.CoreToVehicle(b.session(), *v))
	return nil
}

// RemoveVehicle stamps the removal on the vehicle row. Pending vehicle rows
// are written first so the update finds them.
func (b *Backend) RemoveVehicle(id core.VehicleID, tick uint64) error {
	if b.deps.DB == nil {
		return nil
	}
	b.writeMu.Lock()
	err := writeQueue(b.deps.DB, b.queues.Vehicles, "vehicles", b.log)
	b.writeMu.Unlock()
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	return b.deps.DB.Model(&model.Vehicle{}).
		Where("session_id = ? AND vehicle_id = ?", b.session(), int(id)).
		Updates(map[string]any{"removed_tick": tick, "removed_at": now}).Error
}

// RecordSnapshot converts and queues a vehicle snapshot.
func (b *Backend) RecordSnapshot(s *core.Snapshot) error {
	b.mu.RLock()
	id, p := b.sessionID, b.projector
	b.mu.RUnlock()

	row, err := convert.CoreToSnapshot(id, s, p)
	if err != nil {
		return err
	}
	b.queues.Snapshots.Push(row)
	return nil
}

// RecordEvent converts and queues a simulation event.
func (b *Backend) RecordEvent(e *core.Event) error {
	b.queues.Events.Push(convert.CoreToEvent(b.session(), *e))
	return nil
}

// RecordPerformance queues a performance sample.
func (b *Backend) RecordPerformance(p model.Performance) error {
	if p.SessionID == "" {
		p.SessionID = b.session()
	}
	b.queues.Performances.Push(p)
	return nil
}

// SaveState inserts a save synchronously; saves are rare and must be
// readable by the next restore.
func (b *Backend) SaveState(tick uint64, st *core.SaveState) error {
	row, err := convert.CoreToSave(b.session(), tick, *st)
	if err != nil {
		return err
	}
	if b.deps.DB == nil {
		return nil
	}
	if err := b.deps.DB.Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert save: %w", err)
	}
	return nil
}

// LoadState returns the latest save of vehicle id in the current session.
func (b *Backend) LoadState(id core.VehicleID) (core.SaveState, bool, error) {
	if b.deps.DB == nil {
		return core.SaveState{}, false, nil
	}
	var row model.SavedState
	err := b.deps.DB.
		Where("session_id = ? AND vehicle_id = ?", b.session(), int(id)).
		Order("tick desc").Order("id desc").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return core.SaveState{}, false, nil
	}
	if err != nil {
		return core.SaveState{}, false, fmt.Errorf("failed to load save: %w", err)
	}
	st, err := convert.SaveToCore(row)
	if err != nil {
		return core.SaveState{}, false, err
	}
	return st, true, nil
}

// QueueLengths reports the rows waiting for the writer.
func (b *Backend) QueueLengths() model.WriteQueueLengths {
	return model.WriteQueueLengths{
		Vehicles:  b.queues.Vehicles.Len(),
		Snapshots: b.queues.Snapshots.Len(),
		Events:    b.queues.Events.Len(),
	}
}

// LastWriteDuration is the duration of the last writer pass.
func (b *Backend) LastWriteDuration() time.Duration {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	return b.lastWrite
}

// Flush drains every queue into the database.
func (b *Backend) Flush() error {
	if b.deps.DB == nil {
		return nil
	}
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	start := time.Now()
	db := b.deps.DB
	err := errors.Join(
		writeQueue(db, b.queues.Vehicles, "vehicles", b.log),
		writeQueue(db, b.queues.Snapshots, "vehicle snapshots", b.log),
		writeQueue(db, b.queues.Events, "sim events", b.log),
		writeQueue(db, b.queues.Performances, "performances", b.log),
	)
	b.lastWrite = time.Since(start)
	return err
}

// writeQueue writes all items from a queue to the database in a transaction.
// Failed items go back on the queue for the next pass.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], name string, log zerolog.Logger) error {
	items := q.Drain()
	if len(items) == 0 {
		return nil
	}

	tx := db.Begin()
	if err := tx.Create(&items).Error; err != nil {
		log.Error().Err(err).Str("table", name).Int("rows", len(items)).Msg("Error creating rows")
		tx.Rollback()
		q.Push(items...)
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return tx.Commit().Error
}

// writeLoop periodically drains queues into the DB until Close.
func (b *Backend) writeLoop() {
	defer close(b.done)
	ticker := time.NewTicker(b.deps.WriteInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			if err := b.Flush(); err != nil {
				b.log.Error().Err(err).Msg("Final write failed")
			}
			return
		case <-ticker.C:
			// errors are logged by writeQueue and retried next pass
			_ = b.Flush()
		}
	}
}
