package worker

import (
	"log/slog"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/aeroduel/plane/internal/arbiter"
	"github.com/aeroduel/plane/internal/dispatcher"
	"github.com/aeroduel/plane/internal/storage"
	"github.com/aeroduel/plane/pkg/core"
)

// PointWriter receives InfluxDB points. *influx.Manager satisfies it.
type PointWriter interface {
	WritePoint(point *influxdb2_write.Point) error
}

// Dependencies holds all dependencies for the worker manager
type Dependencies struct {
	Dispatcher *dispatcher.Dispatcher
	Backend    storage.Backend
	Influx     PointWriter // optional
	Logger     *slog.Logger
	PlaneID    string
}

// Manager turns arbiter and match decisions into dispatcher events and
// writes them to the journal from the dispatcher's buffered workers, so the
// control loop never waits on storage.
type Manager struct {
	deps Dependencies
}

// NewManager creates a new worker manager
func NewManager(deps Dependencies) *Manager {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Manager{deps: deps}
}

// RecordCombat queues an arbiter decision for journaling.
func (m *Manager) RecordCombat(r arbiter.Report) {
	m.dispatch(CommandFor(r), CombatRecord(m.deps.PlaneID, r))
}

// RecordMatch queues a match start or end for journaling.
func (m *Manager) RecordMatch(r core.MatchRecord) {
	m.dispatch(CmdMatch, r)
}

func (m *Manager) dispatch(command string, payload any) {
	if m.deps.Dispatcher == nil {
		return
	}
	_, err := m.deps.Dispatcher.Dispatch(dispatcher.Event{
		Command:   command,
		Payload:   payload,
		Timestamp: time.Now(),
	})
	if err != nil {
		m.deps.Logger.Warn("Journal event not queued", "command", command, "error", err)
	}
}

// CombatRecord converts an arbiter report into a journal record.
func CombatRecord(planeID string, r arbiter.Report) core.CombatRecord {
	rec := core.CombatRecord{
		Time:    r.At,
		PlaneID: planeID,
		Outcome: r.Outcome.String(),
		Source:  string(r.Source),
		Type:    r.Event.Type,
		From:    r.Event.From,
		To:      r.Event.To,
		Seq:     r.Event.Seq,
		Lives:   r.Lives,
		Frame:   string(r.Frame),
	}
	if rec.Time.IsZero() {
		rec.Time = time.Now()
	}
	if r.Err != nil {
		rec.Error = r.Err.Error()
	}
	return rec
}
