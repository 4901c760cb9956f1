package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestOpenSQLiteStoreAndSeed(t *testing.T) {
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)

	st, err := openStore(context.Background(), logger.Sugar(), storeConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "tally.db"),
	}, false)
	require.NoError(t, err)
	defer st.Close()

	groups := []string{"Cone", "", "Ctwo"}
	require.NoError(t, seedAllowedGroups(context.Background(), st, groups))
	require.NoError(t, seedAllowedGroups(context.Background(), st, groups))

	for _, g := range []string{"Cone", "Ctwo"} {
		ok, err := st.IsGroupAllowed(context.Background(), g)
		require.NoError(t, err)
		require.True(t, ok, g)
	}
}

func TestOpenStoreUnknownDriver(t *testing.T) {
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)

	_, err = openStore(context.Background(), logger.Sugar(), storeConfig{Driver: "mongo"}, false)
	require.Error(t, err)
}

func TestPgxLogLevel(t *testing.T) {
	require.Equal(t, pgx.LogLevel(pgx.LogLevelWarn), pgxLogLevel(false))
	require.Equal(t, pgx.LogLevel(pgx.LogLevelDebug), pgxLogLevel(true))
}
