package logger_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/typing-contest/internal/logger"
)

func TestNew(t *testing.T) {
	t.Run("Should write JSON lines with inherited fields", func(t *testing.T) {
		var buf bytes.Buffer
		log := logger.New(&logger.Config{Level: logger.InfoLevel, Output: &buf, JSON: true})
		log.With("component", "app").Info("score saved", "wpm", 52)

		var line map[string]any
		require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
		assert.Equal(t, "score saved", line["msg"])
		assert.Equal(t, "app", line["component"])
		assert.EqualValues(t, 52, line["wpm"])
	})
	t.Run("Should drop messages below the level", func(t *testing.T) {
		var buf bytes.Buffer
		log := logger.New(&logger.Config{Level: logger.WarnLevel, Output: &buf})
		log.Info("hidden")
		log.Warn("shown")
		assert.NotContains(t, buf.String(), "hidden")
		assert.True(t, strings.Contains(buf.String(), "shown"))
	})
	t.Run("Should fall back to info for unknown levels", func(t *testing.T) {
		var buf bytes.Buffer
		log := logger.New(&logger.Config{Level: "verbose", Output: &buf})
		log.Debug("hidden")
		log.Info("shown")
		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "shown")
	})
}
