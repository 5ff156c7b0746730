package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInput_AccessorsAfterJSONRoundTrip(t *testing.T) {
	in := Input{
		"prompt":       "a red circle",
		"duration":     5,
		"images":       []string{"a.jpg", "b.jpg"},
		"enable_audio": true,
	}
	raw, err := json.Marshal(in)
	require.NoError(t, err)

	var decoded Input
	require.NoError(t, json.Unmarshal(raw, &decoded))

	assert.Equal(t, "a red circle", decoded.String("prompt"))
	assert.Equal(t, 5, decoded.Int("duration", 0))
	assert.Equal(t, []string{"a.jpg", "b.jpg"}, decoded.Strings("images"))
	assert.True(t, decoded.Bool("enable_audio"))
}

func TestInput_Defaults(t *testing.T) {
	in := Input{"duration": "not-a-number"}

	assert.Equal(t, "", in.String("missing"))
	assert.Equal(t, 4, in.Int("duration", 4))
	assert.Equal(t, 7, in.Int("missing", 7))
	assert.False(t, in.Bool("missing"))
	assert.Nil(t, in.Strings("missing"))
}

func TestParseBool(t *testing.T) {
	for _, s := range []string{"true", "TRUE", "1", "yes", "on", " on "} {
		assert.True(t, ParseBool(s), s)
	}
	for _, s := range []string{"", "false", "0", "no", "off", "maybe"} {
		assert.False(t, ParseBool(s), s)
	}
}

func TestParseToolType(t *testing.T) {
	tt, ok := ParseToolType("text_to_image")
	assert.True(t, ok)
	assert.Equal(t, ToolTextToImage, tt)

	_, ok = ParseToolType("text_to_hologram")
	assert.False(t, ok)

	assert.Len(t, ToolTypes(), 13)
}

func TestIsTerminalStatus(t *testing.T) {
	assert.False(t, IsTerminalStatus(TaskStatusPending))
	assert.True(t, IsTerminalStatus(TaskStatusSuccess))
	assert.True(t, IsTerminalStatus(TaskStatusFailed))
}
