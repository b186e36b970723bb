// Package sqlitestorage implements the storage.Backend interface using an
// in-memory SQLite database. Records are queued and written in batches by a
// flush loop; nothing reaches disk.
package sqlitestorage

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/aeroduel/plane/internal/model"
	"github.com/aeroduel/plane/internal/model/convert"
	"github.com/aeroduel/plane/internal/queue"
	"github.com/aeroduel/plane/pkg/core"
)

const queueCapacity = 4096

// each backend gets its own named in-memory database
var dbCounter atomic.Uint64

// Config holds configuration for the SQLite storage backend.
type Config struct {
	FlushInterval time.Duration
	MaxEntries    int // rows kept per table; <= 0 keeps everything
}

// Backend writes the journal to in-memory SQLite through GORM.
type Backend struct {
	cfg    Config
	logger *slog.Logger

	db      *gorm.DB
	combats *queue.Queue[model.CombatEvent]
	matches *queue.Queue[model.MatchEvent]

	// serializes flushes with each other and with reads
	flushMu  sync.Mutex
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// New creates a new SQLite storage backend. Init opens the database.
func New(cfg Config, logger *slog.Logger) *Backend {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		cfg:     cfg,
		logger:  logger,
		combats: queue.New[model.CombatEvent](queueCapacity),
		matches: queue.New[model.MatchEvent](queueCapacity),
	}
}

// Init opens the in-memory database, migrates the schema and starts the flush loop.
func (b *Backend) Init() error {
	dsn := fmt.Sprintf("file:journal%d?mode=memory&cache=shared", dbCounter.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		CreateBatchSize:        500,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return fmt.Errorf("failed to create in-memory SQLite DB: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to access sql interface: %w", err)
	}
	// the database lives as long as a connection stays open
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = MEMORY;",
		"PRAGMA synchronous = OFF;",
		"PRAGMA temp_store = MEMORY;",
	}
	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			return fmt.Errorf("error setting PRAGMA: %w", err)
		}
	}

	if err := db.AutoMigrate(model.DatabaseModels...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	b.db = db
	b.stopChan = make(chan struct{})
	b.wg.Add(1)
	go b.flushLoop()

	b.logger.Info("Journal using in-memory SQLite", "flushInterval", b.cfg.FlushInterval)
	return nil
}

// Close stops the flush loop, writes what is queued and closes the database.
func (b *Backend) Close() error {
	if b.db == nil {
		return nil
	}
	close(b.stopChan)
	b.wg.Wait()

	flushErr := b.flush()

	sqlDB, err := b.db.DB()
	if err != nil {
		return errors.Join(flushErr, err)
	}
	b.db = nil
	return errors.Join(flushErr, sqlDB.Close())
}

// RecordCombat converts and queues an arbiter decision.
func (b *Backend) RecordCombat(r *core.CombatRecord) error {
	if dropped := b.combats.Push(convert.CoreToCombatEvent(*r)); dropped > 0 {
		b.logger.Warn("Journal queue full, dropped combat events", "dropped", dropped)
	}
	return nil
}

// RecordMatch converts and queues a match start or end.
func (b *Backend) RecordMatch(r *core.MatchRecord) error {
	if dropped := b.matches.Push(convert.CoreToMatchEvent(*r)); dropped > 0 {
		b.logger.Warn("Journal queue full, dropped match events", "dropped", dropped)
	}
	return nil
}

// Events flushes pending records and returns up to limit entries, newest first.
func (b *Backend) Events(limit int) ([]core.Entry, error) {
	if b.db == nil {
		return nil, errors.New("sqlite journal not initialized")
	}
	if err := b.flush(); err != nil {
		return nil, err
	}

	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	var combats []model.CombatEvent
	q := b.db.Order("time DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&combats).Error; err != nil {
		return nil, fmt.Errorf("failed to read combat events: %w", err)
	}

	var matches []model.MatchEvent
	q = b.db.Order("time DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&matches).Error; err != nil {
		return nil, fmt.Errorf("failed to read match events: %w", err)
	}

	entries := make([]core.Entry, 0, len(combats)+len(matches))
	for _, c := range combats {
		rec := convert.CombatEventToCore(c)
		entries = append(entries, core.Entry{Kind: core.KindCombat, Time: rec.Time, Combat: &rec})
	}
	for _, m := range matches {
		rec := convert.MatchEventToCore(m)
		entries = append(entries, core.Entry{Kind: core.KindMatch, Time: rec.Time, Match: &rec})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Time.After(entries[j].Time)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (b *Backend) flushLoop() {
	defer b.wg.Done()
	ticker := time.NewTicker(b.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			start := time.Now()
			if err := b.flush(); err != nil {
				b.logger.Error("Journal flush failed", "error", err)
			} else {
				b.logger.Debug("Journal flushed", "duration", time.Since(start))
			}
		}
	}
}

func (b *Backend) flush() error {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	err := errors.Join(
		writeQueue(b.db, b.combats, "combat events"),
		writeQueue(b.db, b.matches, "match events"),
	)
	if err != nil {
		return err
	}
	return b.trim()
}

// trim keeps the newest MaxEntries rows per table. Caller holds flushMu.
func (b *Backend) trim() error {
	if b.cfg.MaxEntries <= 0 {
		return nil
	}
	for _, table := range []string{"combat_events", "match_events"} {
		sql := fmt.Sprintf("DELETE FROM %[1]s WHERE id NOT IN (SELECT id FROM %[1]s ORDER BY id DESC LIMIT ?)", table)
		if err := b.db.Exec(sql, b.cfg.MaxEntries).Error; err != nil {
			return fmt.Errorf("failed to trim %s: %w", table, err)
		}
	}
	return nil
}

// writeQueue writes all items from a queue to the database in a transaction.
// On failure the items go back on the queue for the next flush.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], name string) error {
	if q.Empty() {
		return nil
	}

	items := q.Drain(0)
	tx := db.Begin()
	if err := tx.Create(&items).Error; err != nil {
		tx.Rollback()
		q.Push(items...)
		return fmt.Errorf("error creating %s: %w", name, err)
	}
	return tx.Commit().Error
}
