// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"encoding/json"

	"gorm.io/datatypes"

	"github.com/aeroduel/plane/internal/model"
	"github.com/aeroduel/plane/pkg/core"
)

// frameToJSON keeps well-formed frames queryable as JSON and everything
// else as plain text.
func frameToJSON(frame string) (datatypes.JSON, string) {
	if frame == "" {
		return nil, ""
	}
	if json.Valid([]byte(frame)) {
		return datatypes.JSON(frame), ""
	}
	return nil, frame
}

// CoreToCombatEvent converts a core.CombatRecord to a GORM model.CombatEvent.
func CoreToCombatEvent(r core.CombatRecord) model.CombatEvent {
	frame, raw := frameToJSON(r.Frame)
	return model.CombatEvent{
		ID:       r.ID,
		Time:     r.Time,
		PlaneID:  r.PlaneID,
		Outcome:  r.Outcome,
		Source:   r.Source,
		Type:     r.Type,
		From:     r.From,
		To:       r.To,
		Seq:      r.Seq,
		Lives:    r.Lives,
		Frame:    frame,
		RawFrame: raw,
		Error:    r.Error,
	}
}

// CoreToMatchEvent converts a core.MatchRecord to a GORM model.MatchEvent.
func CoreToMatchEvent(r core.MatchRecord) model.MatchEvent {
	return model.MatchEvent{
		ID:         r.ID,
		Time:       r.Time,
		PlaneID:    r.PlaneID,
		Active:     r.Active,
		LivesReset: r.LivesReset,
	}
}
