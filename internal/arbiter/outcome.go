package arbiter

import (
	"time"

	"github.com/aeroduel/plane/internal/protocol"
)

// Outcome is the decision taken for one camera event, companion request or radio frame.
type Outcome int

const (
	// Ignored: camera hit while the match is inactive, or radio HIT while
	// inactive with decrement-when-inactive disabled.
	Ignored Outcome = iota + 1
	// NoTarget: camera hit with no other plane online.
	NoTarget
	// HitSent: a HIT frame was transmitted.
	HitSent
	// SendFailed: a frame could not be encoded or transmitted.
	SendFailed
	// Discarded: malformed or self-originated radio frame.
	Discarded
	// NotForUs: well-formed frame addressed to another plane.
	NotForUs
	// LifeLost: HIT addressed to us; one life taken and ACK sent.
	LifeLost
	// HitAcked: HIT addressed to us but our own plane is not registered; ACK sent only.
	HitAcked
	// Duplicate: repeated HIT inside the dedup window; re-ACKed, no life taken.
	Duplicate
	// AckReceived: ACK for one of our HITs.
	AckReceived
)

func (o Outcome) String() string {
	switch o {
	case Ignored:
		return "ignored"
	case NoTarget:
		return "no_target"
	case HitSent:
		return "hit_sent"
	case SendFailed:
		return "send_failed"
	case Discarded:
		return "discarded"
	case NotForUs:
		return "not_for_us"
	case LifeLost:
		return "life_lost"
	case HitAcked:
		return "hit_acked"
	case Duplicate:
		return "duplicate"
	case AckReceived:
		return "ack_received"
	default:
		return "unknown"
	}
}

// Source is where a decision was triggered from.
type Source string

const (
	SourceCamera    Source = "camera"
	SourceCompanion Source = "companion"
	SourceRadio     Source = "radio"
)

// Report describes one decision. Lives is our own life count after
// LifeLost, and -1 otherwise.
type Report struct {
	Outcome Outcome
	Source  Source
	Event   protocol.Event
	Frame   []byte
	Lives   int
	Err     error
	At      time.Time
}
