package main

import (
	"context"
	"errors"
	"log"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/caarlos0/env/v6"
	"github.com/eucylin/Codex-Line-Bot/internal/lineapi"
	"github.com/eucylin/Codex-Line-Bot/internal/namecache"
	"github.com/eucylin/Codex-Line-Bot/internal/server"
	"github.com/eucylin/Codex-Line-Bot/internal/storage"
	"github.com/eucylin/Codex-Line-Bot/internal/tally"
	"github.com/eucylin/Codex-Line-Bot/internal/webhook"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// botConfig defines fields of the counting bot parsed from environment variables
type botConfig struct {
	Name          string        `env:"BOT_NAME"`
	TimeZone      string        `env:"TIMEZONE" envDefault:"Asia/Taipei"`
	GroupPolicy   string        `env:"GROUP_POLICY" envDefault:"allowlist"`
	AllowedGroups []string      `env:"ALLOWED_GROUPS" envSeparator:","`
	UserNameTTL   time.Duration `env:"USER_NAME_TTL" envDefault:"168h"`
	GroupNameTTL  time.Duration `env:"GROUP_NAME_TTL" envDefault:"336h"`
	StoreTimeout  time.Duration `env:"STORE_TIMEOUT" envDefault:"3s"`
	Dedupe        bool          `env:"DEDUPE_MESSAGES" envDefault:"true"`
	MentionHelp   bool          `env:"MENTION_HELP" envDefault:"false"`
}

type config struct {
	Debug  bool `env:"DEBUG" envDefault:"false"`
	Server server.EnvConfig
	Store  storeConfig
	LINE   lineapi.Config
	Bot    botConfig
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("godotenv.Load: %v", err)
	}

	cfg := config{}
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("Cannot parse env config: %v", err)
	}

	logger, err := newLogger(cfg.Debug)
	if err != nil {
		log.Fatalf("zap logger: %v", err)
	}
	defer logger.Sync()

	sugar := logger.Sugar()
	sugar.Info("Application is starting")

	loc, err := time.LoadLocation(cfg.Bot.TimeZone)
	if err != nil {
		sugar.Fatalf("Cannot load time zone %q: %v", cfg.Bot.TimeZone, err)
	}

	policy, err := webhook.ParsePolicy(cfg.Bot.GroupPolicy)
	if err != nil {
		sugar.Fatalf("Cannot parse group policy: %v", err)
	}

	st, err := openStore(context.Background(), sugar, cfg.Store, cfg.Debug)
	if err != nil {
		sugar.Fatalf("Cannot create store instance: %v", err)
	}

	if err := seedAllowedGroups(context.Background(), st, cfg.Bot.AllowedGroups); err != nil {
		sugar.Fatalf("Cannot seed allowed groups: %v", err)
	}

	line := lineapi.NewClient(sugar, cfg.LINE)

	names := namecache.New(sugar, st, line,
		namecache.UserTTL(cfg.Bot.UserNameTTL),
		namecache.GroupTTL(cfg.Bot.GroupNameTTL),
		namecache.StoreTimeout(cfg.Bot.StoreTimeout),
		namecache.FetchTimeout(cfg.LINE.Timeout),
	)

	processor := webhook.NewProcessor(
		sugar,
		webhook.NewClassifier(cfg.Bot.Name, loc),
		webhook.NewGate(sugar, policy, st, cfg.Bot.StoreTimeout),
		tally.NewEngine(sugar, st, tally.StoreTimeout(cfg.Bot.StoreTimeout), tally.Dedupe(cfg.Bot.Dedupe)),
		tally.NewReportBuilder(st, names, cfg.Bot.StoreTimeout),
		line,
		webhook.MentionHelp(cfg.Bot.MentionHelp),
	)

	serverOpts := []server.Option{
		server.WithEnvConfig(cfg.Server),
		server.RegisterAfterShutdown(func() {
			sugar.Info("Closing store")
			st.Close()
			sugar.Info("Store is closed")
		}),
	}

	srv, err := server.NewServer(sugar, processor, st, serverOpts...)
	if err != nil {
		sugar.Fatalf("Cannot create Server instance: %v", err)
	}

	if err := srv.Start(); err != nil {
		sugar.Fatalf("Cannot start http srv: %v", err)
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func seedAllowedGroups(ctx context.Context, st store, groups []string) error {
	for _, g := range groups {
		if g == "" {
			continue
		}
		err := st.AllowGroup(ctx, g)
		if err != nil && !errors.Is(err, storage.ErrGroupAllowed) {
			return err
		}
	}
	return nil
}
