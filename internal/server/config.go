package server

import (
	"net/http"
	"strconv"
	"time"
)

type Option interface {
	apply(*config)
}

type optionFunc func(c *config)

func (f optionFunc) apply(c *config) { f(c) }

// config defines fields used for configuring Server instance
type config struct {
	httpServer     *http.Server
	webhookPath    string
	channelSecret  string
	maxBodyBytes   int64
	processTimeout time.Duration
	afterShutdown  []func()
}

func defaultConfig() *config {
	return &config{
		httpServer:     &http.Server{Addr: "0.0.0.0:9000"},
		webhookPath:    "/callback",
		maxBodyBytes:   1 << 20,
		processTimeout: 25 * time.Second,
	}
}

// EnvConfig defines fields used for parsing from environment variables
type EnvConfig struct {
	Host           string        `env:"HOST" envDefault:"0.0.0.0"`
	Port           uint16        `env:"PORT" envDefault:"9000"`
	WebhookPath    string        `env:"WEBHOOK_PATH" envDefault:"/callback"`
	ChannelSecret  string        `env:"LINE_CHANNEL_SECRET"`
	ReadTimeout    time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	HandlerTimeout time.Duration `env:"HANDLER_TIMEOUT" envDefault:"25s"`
	MaxBodyBytes   int64         `env:"MAX_BODY_BYTES" envDefault:"1048576"`
}

// WithEnvConfig enables processing exported EnvConfig struct to acts as a source of config parameters for Server
func WithEnvConfig(cfg EnvConfig) Option {
	return optionFunc(func(c *config) {
		c.httpServer.Addr = cfg.Host + ":" + strconv.FormatUint(uint64(cfg.Port), 10)
		c.channelSecret = cfg.ChannelSecret
		if cfg.WebhookPath != "" {
			c.webhookPath = cfg.WebhookPath
		}
		if cfg.ReadTimeout > 0 {
			c.httpServer.ReadTimeout = cfg.ReadTimeout
		}
		if cfg.HandlerTimeout > 0 {
			c.processTimeout = cfg.HandlerTimeout
		}
		if cfg.MaxBodyBytes > 0 {
			c.maxBodyBytes = cfg.MaxBodyBytes
		}
	})
}

// ReadTimeout sets read timeout for http.Server
func ReadTimeout(d time.Duration) Option {
	return optionFunc(func(c *config) {
		c.httpServer.ReadTimeout = d
	})
}

// ChannelSecret sets the key webhook signatures are checked against
func ChannelSecret(secret string) Option {
	return optionFunc(func(c *config) {
		c.channelSecret = secret
	})
}

// ProcessTimeout bounds the processing of one webhook batch; events left when it
// expires fail fast and the batch is still acknowledged
func ProcessTimeout(d time.Duration) Option {
	return optionFunc(func(c *config) {
		c.processTimeout = d
	})
}

// RegisterAfterShutdown registers a function to call after http.Server shutdown
// f will not be called in separated goroutine
func RegisterAfterShutdown(f func()) Option {
	return optionFunc(func(c *config) {
		c.afterShutdown = append(c.afterShutdown, f)
	})
}
