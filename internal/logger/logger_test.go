package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSanitizeKVs(t *testing.T) {
	in := []interface{}{"session_id", "abc", "api_token", "s3cr3t", "Authorization", "Api-Key x", "dangling"}
	out := sanitizeKVs(in)

	require.Len(t, out, len(in))
	assert.Equal(t, "abc", out[1])
	assert.Equal(t, "[REDACTED]", out[3])
	assert.Equal(t, "[REDACTED]", out[5])
	assert.Equal(t, "dangling", out[6])
}

func TestLoggerWritesFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := &Logger{SugaredLogger: zap.New(core).Sugar()}

	l.With("service", "test").Info("hello", "session_id", "s1", "token", "x")

	entries := logs.All()
	require.Len(t, entries, 1)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "test", ctx["service"])
	assert.Equal(t, "s1", ctx["session_id"])
	assert.Equal(t, "[REDACTED]", ctx["token"])
}

func TestNewModes(t *testing.T) {
	for _, mode := range []string{"dev", "prod", ""} {
		l, err := New(mode)
		require.NoError(t, err)
		assert.NotNil(t, l.SugaredLogger)
	}
}
