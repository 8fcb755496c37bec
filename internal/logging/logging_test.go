package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupJSON(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)
	var buf bytes.Buffer
	Setup(&buf, "warn", "json", "server")

	log.Info().Msg("dropped")
	log.Warn().Str("account", "alice").Msg("kept")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "kept", entry["message"])
	assert.Equal(t, "server", entry["component"])
	assert.Equal(t, "alice", entry["account"])
}

func TestSetupUnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	Setup(&buf, "loud", "json", "")
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}
