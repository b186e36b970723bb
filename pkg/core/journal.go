// pkg/core/journal.go
package core

import "time"

// Journal entry kinds
const (
	KindCombat = "combat"
	KindMatch  = "match"
)

// CombatRecord is one arbiter decision: a camera hit, a companion hit
// request or a received radio frame and what was done about it.
type CombatRecord struct {
	ID      uint      `json:"id"`
	Time    time.Time `json:"time"`
	PlaneID string    `json:"planeId"` // plane that recorded the decision
	Outcome string    `json:"outcome"`
	Source  string    `json:"source"`
	Type    string    `json:"type,omitempty"` // HIT or ACK, empty if no frame was decoded
	From    string    `json:"from,omitempty"`
	To      string    `json:"to,omitempty"`
	Seq     uint32    `json:"seq,omitempty"`
	Lives   int       `json:"lives"` // remaining lives after a hit, -1 otherwise
	Frame   string    `json:"frame,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// MatchRecord is a match start or end.
type MatchRecord struct {
	ID         uint      `json:"id"`
	Time       time.Time `json:"time"`
	PlaneID    string    `json:"planeId"`
	Active     bool      `json:"active"`
	LivesReset bool      `json:"livesReset,omitempty"`
}

// Entry is one journal line as served to the companion app.
type Entry struct {
	Kind   string        `json:"kind"`
	Time   time.Time     `json:"time"`
	Combat *CombatRecord `json:"combat,omitempty"`
	Match  *MatchRecord  `json:"match,omitempty"`
}
