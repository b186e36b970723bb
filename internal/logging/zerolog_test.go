package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewZerolog_WritesJSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewZerolog(&buf, "info")

	log.Info().Str("bucket", "combat_events").Msg("writer created")

	out := buf.String()
	assert.Contains(t, out, `"level":"info"`)
	assert.Contains(t, out, `"component":"influx"`)
	assert.Contains(t, out, `"bucket":"combat_events"`)
	assert.Contains(t, out, `"message":"writer created"`)
}

func TestNewZerolog_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := NewZerolog(&buf, "WARN")

	log.Info().Msg("filtered")
	log.Warn().Msg("kept")

	assert.NotContains(t, buf.String(), "filtered")
	assert.Contains(t, buf.String(), "kept")
}

func TestNewZerolog_UnknownLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := NewZerolog(&buf, "loud")

	log.Debug().Msg("debug hidden")
	log.Info().Msg("info shown")

	assert.NotContains(t, buf.String(), "debug hidden")
	assert.Contains(t, buf.String(), "info shown")
}
