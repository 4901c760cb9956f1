package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOptionsOverrideEnvConfig(t *testing.T) {
	c := defaultConfig()
	for _, o := range []Option{
		WithEnvConfig(EnvConfig{Host: "127.0.0.1", Port: 8080, WebhookPath: "/line", ReadTimeout: 5 * time.Second, HandlerTimeout: 25 * time.Second}),
		ReadTimeout(2 * time.Second),
		ProcessTimeout(time.Second),
	} {
		o.apply(c)
	}

	require.Equal(t, "127.0.0.1:8080", c.httpServer.Addr)
	require.Equal(t, "/line", c.webhookPath)
	require.Equal(t, 2*time.Second, c.httpServer.ReadTimeout)
	require.Equal(t, time.Second, c.processTimeout)
	require.Equal(t, int64(1<<20), c.maxBodyBytes)
}
