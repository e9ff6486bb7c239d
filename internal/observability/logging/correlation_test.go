package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewCorrelationID(t *testing.T) {
	ids := make(map[string]struct{}, 100)
	for range 100 {
		id := NewCorrelationID()
		assert.Len(t, id, 8)
		ids[id] = struct{}{}
	}
	assert.Len(t, ids, 100)
}

func TestCorrelationID_Roundtrip(t *testing.T) {
	ctx := WithCorrelationID(context.Background(), "abc12345")
	id, ok := CorrelationID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "abc12345", id)

	_, ok = CorrelationID(context.Background())
	assert.False(t, ok)

	_, ok = CorrelationID(WithCorrelationID(context.Background(), ""))
	assert.False(t, ok)
}

func TestHandler_AddsCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := slog.New(NewHandler(inner)).With("component", "poller")

	ctx := WithCorrelationID(context.Background(), "test1234")
	logger.InfoContext(ctx, "poll finished", "operation", "pdf")

	out := buf.String()
	assert.Contains(t, out, "correlation_id=test1234")
	assert.Contains(t, out, "component=poller")
	assert.Contains(t, out, "operation=pdf")
}

func TestHandler_WithoutCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(slog.NewTextHandler(&buf, nil)))

	logger.Info("no id")
	assert.NotContains(t, buf.String(), "correlation_id")
}
