package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LogLevelDebug, ParseLevel("debug"))
	assert.Equal(t, LogLevelWarn, ParseLevel("WARN"))
	assert.Equal(t, LogLevelWarn, ParseLevel("warning"))
	assert.Equal(t, LogLevelError, ParseLevel("error"))
	assert.Equal(t, LogLevelInfo, ParseLevel(""))
	assert.Equal(t, LogLevelInfo, ParseLevel("nonsense"))
}

func TestEngineLoggerLevelGate(t *testing.T) {
	var buf bytes.Buffer
	l := NewSlogLoggerTo(&buf, LogLevelWarn, "text", false)

	l.Debug("hidden %d", 1)
	l.Info("also hidden")
	l.Warn("visible %s", "warning")
	l.Error("visible error")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible warning")
	assert.Contains(t, out, "visible error")
}

func TestEngineLoggerScoping(t *testing.T) {
	var buf bytes.Buffer
	base := NewSlogLoggerTo(&buf, LogLevelInfo, "json", false)

	scoped := base.WithComponent("engine").WithConversation("conv-1", "turn-1")
	scoped.Info("turn started")

	out := buf.String()
	assert.Contains(t, out, `"component":"engine"`)
	assert.Contains(t, out, `"conversation_id":"conv-1"`)
	assert.Contains(t, out, `"turn_id":"turn-1"`)

	// The base logger is untouched by scoping.
	buf.Reset()
	base.Info("plain")
	assert.False(t, strings.Contains(buf.String(), "conversation_id"))
}
