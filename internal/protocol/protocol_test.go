package protocol

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode_Layout(t *testing.T) {
	c := NewCodec("BOARD1")

	frame, err := c.Encode(Event{Type: TypeHit, To: "BOARD2", Timestamp: 1234})
	require.NoError(t, err)

	assert.Equal(t, `{"type":"HIT","from":"BOARD1","to":"BOARD2","ts":1234}`, string(frame))
}

func TestEncode_WithSeq(t *testing.T) {
	c := NewCodec("BOARD1")

	frame, err := c.Encode(Event{Type: TypeAck, To: "BOARD2", Timestamp: 0, Seq: 7})
	require.NoError(t, err)

	assert.Equal(t, `{"type":"ACK","from":"BOARD1","to":"BOARD2","ts":0,"seq":7}`, string(frame))
}

func TestEncode_FromIsAlwaysSelf(t *testing.T) {
	c := NewCodec("BOARD1")

	frame, err := c.Encode(Event{Type: TypeHit, From: "SPOOF", To: "BOARD2"})
	require.NoError(t, err)

	assert.Contains(t, string(frame), `"from":"BOARD1"`)
	assert.NotContains(t, string(frame), "SPOOF")
}

func TestEncode_SubstringDetectable(t *testing.T) {
	c := NewCodec("P<1>")

	frame, err := c.Encode(Event{Type: TypeHit, To: "P&2", Timestamp: 5})
	require.NoError(t, err)

	assert.Contains(t, string(frame), `"type":"HIT"`)
	assert.Contains(t, string(frame), `"to":"P&2"`)
	assert.Contains(t, string(frame), `"from":"P<1>"`)
}

func TestEncode_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		self  string
		event Event
	}{
		{"unknown type", "BOARD1", Event{Type: "FIRE", To: "BOARD2"}},
		{"empty type", "BOARD1", Event{To: "BOARD2"}},
		{"empty to", "BOARD1", Event{Type: TypeHit}},
		{"empty self", "", Event{Type: TypeHit, To: "BOARD2"}},
		{"quote in to", "BOARD1", Event{Type: TypeHit, To: `B"2`}},
		{"backslash in to", "BOARD1", Event{Type: TypeHit, To: `B\2`}},
		{"newline in to", "BOARD1", Event{Type: TypeHit, To: "B\n2"}},
		{"non-ascii to", "BOARD1", Event{Type: TypeHit, To: "BÖARD"}},
		{"negative ts", "BOARD1", Event{Type: TypeHit, To: "BOARD2", Timestamp: -1}},
		{"oversized", "BOARD1", Event{Type: TypeHit, To: strings.Repeat("X", MaxFrameSize)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCodec(tt.self).Encode(tt.event)
			assert.ErrorIs(t, err, ErrInvalidField)
		})
	}
}

func TestRoundTrip(t *testing.T) {
	events := []Event{
		{Type: TypeHit, From: "BOARD1", To: "BOARD2", Timestamp: 1},
		{Type: TypeAck, From: "BOARD1", To: "BOARD2", Timestamp: 98765, Seq: 42},
		{Type: TypeHit, From: "BOARD1", To: "BOARD2", Timestamp: 1<<53 - 1, Seq: 1<<32 - 1},
	}

	sender := NewCodec("BOARD1")
	receiver := NewCodec("BOARD2")

	for _, e := range events {
		frame, err := sender.Encode(e)
		require.NoError(t, err)

		got, err := receiver.Decode(frame)
		require.NoError(t, err)
		assert.Equal(t, e, got)
	}
}

func TestDecode_Malformed(t *testing.T) {
	c := NewCodec("BOARD2")

	tests := []struct {
		name  string
		frame string
	}{
		{"empty", ``},
		{"not json", `HIT BOARD2`},
		{"truncated", `{"type":"HIT","from":"BOARD1","to":"BO`},
		{"array", `["HIT","BOARD1","BOARD2",1]`},
		{"unknown type", `{"type":"FIRE","from":"BOARD1","to":"BOARD2","ts":1}`},
		{"missing type", `{"from":"BOARD1","to":"BOARD2","ts":1}`},
		{"missing from", `{"type":"HIT","to":"BOARD2","ts":1}`},
		{"missing to", `{"type":"HIT","from":"BOARD1","ts":1}`},
		{"missing ts", `{"type":"HIT","from":"BOARD1","to":"BOARD2"}`},
		{"negative ts", `{"type":"HIT","from":"BOARD1","to":"BOARD2","ts":-4}`},
		{"fractional ts", `{"type":"HIT","from":"BOARD1","to":"BOARD2","ts":1.5}`},
		{"string ts", `{"type":"HIT","from":"BOARD1","to":"BOARD2","ts":"1"}`},
		{"upper case keys", `{"TYPE":"HIT","FROM":"BOARD1","TO":"BOARD2","TS":1}`},
		{"mixed case type key", `{"Type":"HIT","from":"BOARD1","to":"BOARD2","ts":1}`},
		{"shadowed to key", `{"type":"HIT","from":"BOARD1","to":"BOARD2","To":"BOARD9","ts":1}`},
		{"upper case seq key", `{"type":"HIT","from":"BOARD1","to":"BOARD2","ts":1,"SEQ":4}`},
		{"trailing garbage", `{"type":"HIT","from":"BOARD1","to":"BOARD2","ts":1}xx`},
		{"oversized", `{"type":"HIT","from":"BOARD1","to":"BOARD2","ts":1,"pad":"` + strings.Repeat("a", MaxFrameSize) + `"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				_, err := c.Decode([]byte(tt.frame))
				assert.ErrorIs(t, err, ErrMalformed)
				assert.NotErrorIs(t, err, ErrWrongRecipient)
			})
		})
	}
}

func TestDecode_WrongRecipient(t *testing.T) {
	c := NewCodec("BOARD3")

	e, err := c.Decode([]byte(`{"type":"HIT","from":"BOARD1","to":"BOARD2","ts":10}`))

	require.ErrorIs(t, err, ErrWrongRecipient)
	assert.NotErrorIs(t, err, ErrMalformed)
	assert.Equal(t, "BOARD2", e.To)
	assert.Equal(t, "BOARD1", e.From)
}

func TestDecode_IgnoresUnknownKeys(t *testing.T) {
	c := NewCodec("BOARD2")

	e, err := c.Decode([]byte(`{"type":"ACK","from":"BOARD1","to":"BOARD2","ts":3,"rssi":-70}`))
	require.NoError(t, err)
	assert.Equal(t, Event{Type: TypeAck, From: "BOARD1", To: "BOARD2", Timestamp: 3}, e)
}

func TestDecode_LegacyFirmwareFrame(t *testing.T) {
	c := NewCodec("BOARD2")

	e, err := c.Decode([]byte("{\"type\":\"HIT\",\"from\":\"BOARD1\",\"to\":\"BOARD2\",\"ts\":51234}\r\n"))
	require.NoError(t, err)
	assert.Equal(t, uint32(0), e.Seq)
	assert.Equal(t, int64(51234), e.Timestamp)
}

func TestValidID(t *testing.T) {
	assert.True(t, ValidID("BOARD1"))
	assert.True(t, ValidID("plane-2_x"))
	assert.False(t, ValidID(""))
	assert.False(t, ValidID(`a"b`))
	assert.False(t, ValidID("tab\there"))
}

func FuzzDecode(f *testing.F) {
	f.Add([]byte(`{"type":"HIT","from":"BOARD1","to":"BOARD2","ts":1}`))
	f.Add([]byte(`{"type":"ACK"`))
	f.Add([]byte{0xff, 0x00, '{'})

	c := NewCodec("BOARD2")
	f.Fuzz(func(t *testing.T, b []byte) {
		e, err := c.Decode(b)
		if err == nil && e.To != "BOARD2" {
			t.Fatalf("accepted frame for %q", e.To)
		}
	})
}
