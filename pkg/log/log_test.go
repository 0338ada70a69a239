package log

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorWithTraceID_ReusesRequestID(t *testing.T) {
	logger, hook := test.NewNullLogger()

	traceID := ErrorWithTraceID(logger, Fields{RequestIDKey: "01HZX"}, "boom")

	assert.Equal(t, "01HZX", traceID)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
	assert.Equal(t, "01HZX", hook.LastEntry().Data["trace_id"])
}

func TestErrorWithTraceID_GeneratesID(t *testing.T) {
	logger, hook := test.NewNullLogger()

	first := ErrorWithTraceID(logger, Fields{RequestIDKey: "unknown"}, "boom")
	second := ErrorWithTraceID(logger, nil, "boom")

	assert.Len(t, first, 36)
	assert.NotEqual(t, first, second)
	assert.Len(t, hook.AllEntries(), 2)
}

func TestNewLogger_Once(t *testing.T) {
	first := NewLogger(Options{Level: "warn", Env: "test"})
	second := NewLogger(Options{Level: "debug", Env: "test"})

	assert.Same(t, first, second)
	assert.Equal(t, logrus.WarnLevel, first.GetLevel())
}
