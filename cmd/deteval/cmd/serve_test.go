package cmd

import (
	"testing"

	"github.com/MeKo-Tech/deteval/internal/config"
	"github.com/MeKo-Tech/deteval/internal/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.Host = "0.0.0.0"
	cfg.Server.Port = 9000
	cfg.Server.RateLimitEnabled = true
	cfg.Server.RequestsPerMinute = 5
	cfg.Evaluation.IoUThreshold = 0.5
	cfg.Evaluation.Workers = 3

	sc := serverConfig(&cfg)
	assert.Equal(t, "0.0.0.0", sc.Host)
	assert.Equal(t, 9000, sc.Port)
	assert.Equal(t, "*", sc.CORSOrigin)
	assert.Equal(t, int64(20), sc.MaxUploadMB)
	assert.Equal(t, 30, sc.TimeoutSec)
	assert.InDelta(t, 0.5, sc.IoUThreshold, 1e-12)
	assert.Equal(t, 3, sc.Workers)
	assert.Equal(t, server.RateLimitConfig{
		Enabled:           true,
		RequestsPerMinute: 5,
		RequestsPerHour:   1000,
		MaxRequestsPerDay: 5000,
		MaxDataPerDay:     100 * 1024 * 1024,
	}, sc.RateLimit)

	_, err := server.NewServer(sc)
	require.NoError(t, err)
}

func TestServeCommand_FlagsBindToConfig(t *testing.T) {
	isolate(t)

	root := NewRootCommand()
	serve, _, err := root.Find([]string{"serve"})
	require.NoError(t, err)

	for flag, key := range map[string]string{
		"port":             "server.port",
		"iou-threshold":    "evaluation.iou_threshold",
		"max-data-per-day": "server.max_data_per_day",
	} {
		f := serve.Flags().Lookup(flag)
		require.NotNil(t, f, flag)
		assert.Equal(t, []string{key}, f.Annotations[configKeyAnnotation], flag)
	}
}

func TestServeCommand_InvalidPort(t *testing.T) {
	isolate(t)
	_, _, err := execute(t, "serve", "--port", "70000")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port")
}
