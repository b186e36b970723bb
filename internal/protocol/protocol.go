// Package protocol encodes and decodes the combat frames exchanged between
// planes over the radio link.
//
// A frame is a single JSON object with a fixed key order:
//
//	{"type":"HIT","from":"BOARD1","to":"BOARD2","ts":1234,"seq":7}
//
// Ids are restricted to characters that JSON leaves unescaped, so receivers
// with a minimal parser can still match on `"type":"HIT"` and `"to":"<id>"`.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Frame types.
const (
	TypeHit = "HIT"
	TypeAck = "ACK"
)

// MaxFrameSize is the largest frame accepted or produced, the LoRa payload limit.
const MaxFrameSize = 255

var (
	// ErrMalformed reports a frame that cannot be decoded.
	ErrMalformed = errors.New("malformed frame")
	// ErrWrongRecipient reports a well-formed frame addressed to another plane.
	ErrWrongRecipient = errors.New("frame addressed to another plane")
	// ErrInvalidField reports an event that cannot be encoded.
	ErrInvalidField = errors.New("invalid field")
)

// Event is a decoded or to-be-encoded combat frame.
type Event struct {
	Type      string
	From      string
	To        string
	Timestamp int64  // ms of device uptime at send
	Seq       uint32 // 0 when the sender does not number frames
}

// wire is the on-air layout; field order is the key order.
type wire struct {
	Type string `json:"type"`
	From string `json:"from"`
	To   string `json:"to"`
	Ts   *int64 `json:"ts"`
	Seq  uint32 `json:"seq,omitempty"`
}

// Codec encodes frames from and decodes frames for one plane.
type Codec struct {
	self string
}

// NewCodec returns a codec for the plane with the given id.
func NewCodec(selfID string) *Codec {
	return &Codec{self: selfID}
}

// Self returns the plane id the codec encodes from and decodes for.
func (c *Codec) Self() string {
	return c.self
}

// Encode renders e as a frame. The from field is always the codec's own id.
func (c *Codec) Encode(e Event) ([]byte, error) {
	if !knownType(e.Type) {
		return nil, fmt.Errorf("%w: type %q", ErrInvalidField, e.Type)
	}
	if err := validID("from", c.self); err != nil {
		return nil, err
	}
	if err := validID("to", e.To); err != nil {
		return nil, err
	}
	if e.Timestamp < 0 {
		return nil, fmt.Errorf("%w: negative timestamp", ErrInvalidField)
	}

	ts := e.Timestamp
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(wire{Type: e.Type, From: c.self, To: e.To, Ts: &ts, Seq: e.Seq}); err != nil {
		return nil, fmt.Errorf("encoding frame: %w", err)
	}

	frame := bytes.TrimRight(buf.Bytes(), "\n")
	if len(frame) > MaxFrameSize {
		return nil, fmt.Errorf("%w: frame is %d bytes, max %d", ErrInvalidField, len(frame), MaxFrameSize)
	}
	return frame, nil
}

// Decode parses a frame. Unparseable input yields ErrMalformed. A valid frame
// addressed elsewhere is returned together with ErrWrongRecipient.
func (c *Codec) Decode(b []byte) (Event, error) {
	if len(b) == 0 {
		return Event{}, fmt.Errorf("%w: empty", ErrMalformed)
	}
	if len(b) > MaxFrameSize {
		return Event{}, fmt.Errorf("%w: %d bytes exceeds %d", ErrMalformed, len(b), MaxFrameSize)
	}

	var keys map[string]json.RawMessage
	if err := json.Unmarshal(b, &keys); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := checkKeys(keys); err != nil {
		return Event{}, err
	}

	var w wire
	if err := json.Unmarshal(b, &w); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch {
	case !knownType(w.Type):
		return Event{}, fmt.Errorf("%w: type %q", ErrMalformed, w.Type)
	case w.From == "":
		return Event{}, fmt.Errorf("%w: missing from", ErrMalformed)
	case w.To == "":
		return Event{}, fmt.Errorf("%w: missing to", ErrMalformed)
	case w.Ts == nil:
		return Event{}, fmt.Errorf("%w: missing ts", ErrMalformed)
	case *w.Ts < 0:
		return Event{}, fmt.Errorf("%w: negative ts", ErrMalformed)
	}

	e := Event{Type: w.Type, From: w.From, To: w.To, Timestamp: *w.Ts, Seq: w.Seq}
	if e.To != c.self {
		return e, fmt.Errorf("%w: to %q", ErrWrongRecipient, e.To)
	}
	return e, nil
}

var wireKeys = []string{"type", "from", "to", "ts", "seq"}

// checkKeys rejects keys that only match a frame key when case is ignored.
// encoding/json would accept them, but substring matching receivers would not.
func checkKeys(keys map[string]json.RawMessage) error {
	for k := range keys {
		for _, want := range wireKeys {
			if k != want && strings.EqualFold(k, want) {
				return fmt.Errorf("%w: key %q must be %q", ErrMalformed, k, want)
			}
		}
	}
	return nil
}

func knownType(t string) bool {
	return t == TypeHit || t == TypeAck
}

// validID accepts printable ASCII without quote or backslash.
func validID(field, id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty %s", ErrInvalidField, field)
	}
	for i := 0; i < len(id); i++ {
		ch := id[i]
		if ch < 0x20 || ch > 0x7e || ch == '"' || ch == '\\' {
			return fmt.Errorf("%w: %s %q contains %q", ErrInvalidField, field, id, ch)
		}
	}
	return nil
}

// ValidID reports whether id can travel in a frame.
func ValidID(id string) bool {
	return validID("id", id) == nil
}
