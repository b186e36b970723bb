package worker

import (
	"errors"
	"fmt"

	"github.com/aeroduel/plane/internal/arbiter"
	"github.com/aeroduel/plane/internal/dispatcher"
	"github.com/aeroduel/plane/internal/influx"
	"github.com/aeroduel/plane/pkg/core"
)

// Dispatcher commands for journal events.
const (
	CmdHitSent        = ":HIT:SENT:"
	CmdHitNotSent     = ":HIT:NOT_SENT:"
	CmdHitReceived    = ":HIT:RECEIVED:"
	CmdAckReceived    = ":ACK:RECEIVED:"
	CmdFrameDiscarded = ":FRAME:DISCARDED:"
	CmdMatch          = ":MATCH:"
)

// CommandFor returns the dispatcher command an arbiter report is journaled under.
func CommandFor(r arbiter.Report) string {
	switch {
	case r.Source != arbiter.SourceRadio && r.Outcome == arbiter.HitSent:
		return CmdHitSent
	case r.Source != arbiter.SourceRadio:
		// ignored, no target or transmit failure
		return CmdHitNotSent
	case r.Outcome == arbiter.AckReceived:
		return CmdAckReceived
	case r.Outcome == arbiter.Discarded, r.Outcome == arbiter.NotForUs:
		return CmdFrameDiscarded
	default:
		return CmdHitReceived
	}
}

// RegisterHandlers registers all journal handlers with the dispatcher.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher) {
	// Combat decisions - buffered
	d.Register(CmdHitSent, m.handleCombat, dispatcher.Buffered(256), dispatcher.Logged())
	d.Register(CmdHitNotSent, m.handleCombat, dispatcher.Buffered(256), dispatcher.Logged())
	d.Register(CmdHitReceived, m.handleCombat, dispatcher.Buffered(256), dispatcher.Logged())
	d.Register(CmdAckReceived, m.handleCombat, dispatcher.Buffered(256), dispatcher.Logged())

	// Radio noise can be frequent; drop rather than back up
	d.Register(CmdFrameDiscarded, m.handleCombat, dispatcher.Buffered(1024), dispatcher.Logged())

	// Match lifecycle - rare; recorded from the control loop, so it must not block
	d.Register(CmdMatch, m.handleMatch, dispatcher.Buffered(64), dispatcher.Logged())
}

func (m *Manager) handleCombat(e dispatcher.Event) (any, error) {
	rec, ok := e.Payload.(core.CombatRecord)
	if !ok {
		return nil, fmt.Errorf("unexpected payload %T for %s", e.Payload, e.Command)
	}

	var errs []error
	if m.deps.Backend != nil {
		if err := m.deps.Backend.RecordCombat(&rec); err != nil {
			errs = append(errs, fmt.Errorf("failed to journal combat event: %w", err))
		}
	}
	if m.deps.Influx != nil {
		if err := m.deps.Influx.WritePoint(influx.CombatPoint(rec)); err != nil {
			errs = append(errs, fmt.Errorf("failed to write combat point: %w", err))
		}
	}
	return nil, errors.Join(errs...)
}

func (m *Manager) handleMatch(e dispatcher.Event) (any, error) {
	rec, ok := e.Payload.(core.MatchRecord)
	if !ok {
		return nil, fmt.Errorf("unexpected payload %T for %s", e.Payload, e.Command)
	}

	var errs []error
	if m.deps.Backend != nil {
		if err := m.deps.Backend.RecordMatch(&rec); err != nil {
			errs = append(errs, fmt.Errorf("failed to journal match event: %w", err))
		}
	}
	if m.deps.Influx != nil {
		if err := m.deps.Influx.WritePoint(influx.MatchPoint(rec)); err != nil {
			errs = append(errs, fmt.Errorf("failed to write match point: %w", err))
		}
	}
	return nil, errors.Join(errs...)
}
