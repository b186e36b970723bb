package convert

import (
	"github.com/aeroduel/plane/internal/model"
	"github.com/aeroduel/plane/pkg/core"
)

// CombatEventToCore converts a GORM CombatEvent to a core.CombatRecord.
func CombatEventToCore(e model.CombatEvent) core.CombatRecord {
	frame := e.RawFrame
	if len(e.Frame) > 0 {
		frame = string(e.Frame)
	}
	return core.CombatRecord{
		ID:      e.ID,
		Time:    e.Time,
		PlaneID: e.PlaneID,
		Outcome: e.Outcome,
		Source:  e.Source,
		Type:    e.Type,
		From:    e.From,
		To:      e.To,
		Seq:     e.Seq,
		Lives:   e.Lives,
		Frame:   frame,
		Error:   e.Error,
	}
}

// MatchEventToCore converts a GORM MatchEvent to a core.MatchRecord.
func MatchEventToCore(e model.MatchEvent) core.MatchRecord {
	return core.MatchRecord{
		ID:         e.ID,
		Time:       e.Time,
		PlaneID:    e.PlaneID,
		Active:     e.Active,
		LivesReset: e.LivesReset,
	}
}
