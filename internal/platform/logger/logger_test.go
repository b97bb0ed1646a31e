package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verigate/internal/platform/config"
)

func TestNewWithWriter(t *testing.T) {
	t.Run("json format respects level", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewWithWriter(&buf, config.LogConfig{Level: "warn", Format: "json"})

		log.Info("dropped")
		log.Warn("kept", "user_id", 42)

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "kept", entry["msg"])
		assert.EqualValues(t, 42, entry["user_id"])
	})

	t.Run("text format", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewWithWriter(&buf, config.LogConfig{Level: "debug", Format: "text"})

		log.Debug("hello", "category", "bolt_teacher")

		assert.Contains(t, buf.String(), "msg=hello")
		assert.Contains(t, buf.String(), "category=bolt_teacher")
	})
}
