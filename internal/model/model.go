package model

import (
	"time"

	"gorm.io/datatypes"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the journal schema
var DatabaseModels = []interface{}{
	&CombatEvent{},
	&MatchEvent{},
}

// CombatEvent is one arbiter decision
type CombatEvent struct {
	ID      uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time    time.Time `json:"time" gorm:"index:idx_combat_time"`
	PlaneID string    `json:"planeId" gorm:"size:64"`
	Outcome string    `json:"outcome" gorm:"size:32;index:idx_combat_outcome"`
	Source  string    `json:"source" gorm:"size:16"`
	Type    string    `json:"type" gorm:"size:8"`
	From    string    `json:"from" gorm:"size:64"`
	To      string    `json:"to" gorm:"size:64"`
	Seq     uint32    `json:"seq"`
	Lives   int       `json:"lives"`
	// Frame holds the radio frame when it is valid JSON, RawFrame otherwise.
	Frame    datatypes.JSON `json:"frame"`
	RawFrame string         `json:"rawFrame" gorm:"size:255"`
	Error    string         `json:"error" gorm:"size:255"`
}

func (*CombatEvent) TableName() string {
	return "combat_events"
}

// MatchEvent is a match start or end
type MatchEvent struct {
	ID         uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time       time.Time `json:"time" gorm:"index:idx_match_time"`
	PlaneID    string    `json:"planeId" gorm:"size:64"`
	Active     bool      `json:"active"`
	LivesReset bool      `json:"livesReset"`
}

func (*MatchEvent) TableName() string {
	return "match_events"
}
