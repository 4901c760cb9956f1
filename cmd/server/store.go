package main

import (
	"context"
	"fmt"
	"time"

	"github.com/eucylin/Codex-Line-Bot/internal/namecache"
	"github.com/eucylin/Codex-Line-Bot/internal/storage"
	"github.com/eucylin/Codex-Line-Bot/internal/storage/sqlite"
	"github.com/eucylin/Codex-Line-Bot/internal/tally"
	"github.com/jackc/pgx/v4"
	"go.uber.org/zap"
)

// store is what every backend provides to the bot
type store interface {
	tally.OnceIncrementer
	tally.CountLister
	namecache.Store
	IsGroupAllowed(ctx context.Context, groupID string) (bool, error)
	AllowGroup(ctx context.Context, groupID string) error
	Ping(ctx context.Context) error
	Close()
}

type storeConfig struct {
	Driver         string        `env:"STORE_DRIVER" envDefault:"postgres"`
	SQLitePath     string        `env:"SQLITE_PATH" envDefault:"data/tally.db"`
	ConnectTimeout time.Duration `env:"DB_CONNECT_TIMEOUT" envDefault:"30s"`
	Postgres       storage.Config
}

func openStore(ctx context.Context, logger *zap.SugaredLogger, cfg storeConfig, debug bool) (store, error) {
	switch cfg.Driver {
	case "postgres":
		s, err := storage.NewStore(ctx, logger, cfg.Postgres,
			storage.ConnectionTimeout(cfg.ConnectTimeout),
			storage.LogLevel(pgxLogLevel(debug)),
		)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return s, nil
	case "sqlite":
		return sqlite.Open(logger, cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func pgxLogLevel(debug bool) pgx.LogLevel {
	if debug {
		return pgx.LogLevelDebug
	}
	return pgx.LogLevelWarn
}
