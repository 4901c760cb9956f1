package zapadapter

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestIDFromContext(t *testing.T) {
	_, ok := IDFromContext(context.Background())
	require.False(t, ok)

	id, ok := IDFromContext(NewContextWithID(context.Background(), "c0ffee"))
	require.True(t, ok)
	require.Equal(t, "c0ffee", id)
}

func TestLogAddsRequestID(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := NewLogger(zap.New(core))

	ctx := NewContextWithID(context.Background(), "c0ffee")
	l.Log(ctx, pgx.LogLevelInfo, "Query", map[string]interface{}{"rowCount": 1})
	l.Log(context.Background(), pgx.LogLevelError, "Exec", nil)

	entries := logs.AllUntimed()
	require.Len(t, entries, 2)

	require.Equal(t, "Query", entries[0].Message)
	require.Equal(t, "c0ffee", entries[0].ContextMap()["request_id"])
	require.EqualValues(t, 1, entries[0].ContextMap()["rowCount"])

	require.Equal(t, zap.ErrorLevel, entries[1].Level)
	require.NotContains(t, entries[1].ContextMap(), "request_id")
}
