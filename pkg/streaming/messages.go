package streaming

// Text messages exchanged over the push channel.
const (
	// TextHit is pushed to every client when this plane fires.
	TextHit = "HIT"
	// CmdMatchStart is sent by a client to start the match.
	CmdMatchStart = "MATCH_START"
	// CmdMatchEnd is sent by a client to end the match.
	CmdMatchEnd = "MATCH_END"
)

// Plane is one aircraft in a roster.
type Plane struct {
	PlaneID  string `json:"planeId"`
	IsOnline bool   `json:"isOnline"`
	Lives    int    `json:"lives"`
}

// Roster is pushed to every client on connect and after every state change.
type Roster struct {
	Planes []Plane `json:"planes"`
}
