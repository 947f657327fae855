package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInit_InvalidLevel(t *testing.T) {
	err := Init(Config{Level: "loud"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestWithContext(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	Set(zap.New(core))
	t.Cleanup(func() { Set(nil) })

	ctx := ContextWithSession(context.Background(), "s-1")
	ctx = ContextWithConnection(ctx, "warehouse")
	WithContext(ctx).Info("connected")
	WithContext(context.Background()).Info("bare")

	require.Equal(t, 2, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "s-1", fields["session_id"])
	assert.Equal(t, "warehouse", fields["connection"])
	assert.Empty(t, logs.All()[1].ContextMap())
}

func TestGet_DefaultsWhenUnset(t *testing.T) {
	Set(nil)
	assert.NotNil(t, Get())
}
