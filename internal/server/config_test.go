package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	r := require.New(t)

	cfg, err := LoadConfig("")
	r.NoError(err)
	r.Equal(":8080", cfg.Port)
	r.Equal(10*time.Second, cfg.PingInterval)
	r.Equal(200, cfg.HistoryCapacity)
	r.Equal(50, cfg.HistoryReplay)
	r.False(cfg.AllowEmptyOrigin)
}

func TestLoadConfig_FileThenEnvironment(t *testing.T) {
	r := require.New(t)

	// Given a YAML file
	path := filepath.Join(t.TempDir(), "config.yaml")
	r.NoError(os.WriteFile(path, []byte(`
port: ":9000"
allowed_origins:
  - https://chat.example.com
  - https://*.preview.example.com
max_message_size: 2048
rate_limit:
  burst: 20
  refill_interval: 2s
history_replay: 25
log:
  level: debug
`), 0o600))

	// And environment overrides
	t.Setenv("SERVER_PORT", ":9100")
	t.Setenv("RATE_LIMIT_BURST", "7")
	t.Setenv("ALLOW_EMPTY_ORIGIN", "true")
	t.Setenv("LOG_FORMAT", "json")

	// When
	cfg, err := LoadConfig(path)

	// Then
	r.NoError(err)
	r.Equal(":9100", cfg.Port)
	r.Equal([]string{"https://chat.example.com", "https://*.preview.example.com"}, cfg.AllowedOrigins)
	r.Equal(int64(2048), cfg.MaxMessageSize)
	r.Equal(7, cfg.RateLimit.Burst)
	r.Equal(2*time.Second, cfg.RateLimit.RefillInterval)
	r.Equal(25, cfg.HistoryReplay)
	r.True(cfg.AllowEmptyOrigin)
	r.Equal("debug", cfg.Log.Level)
	r.Equal("json", cfg.Log.Format)
}

func TestLoadConfig_EnvironmentOrigins(t *testing.T) {
	r := require.New(t)
	t.Setenv("ALLOWED_ORIGINS", "http://a.test,http://b.test")
	t.Setenv("PONG_WAIT", "30s")

	cfg, err := LoadConfig("")
	r.NoError(err)
	r.Equal([]string{"http://a.test", "http://b.test"}, cfg.AllowedOrigins)
	r.Equal(30*time.Second, cfg.PongWait)
}

func TestLoadConfig_Errors(t *testing.T) {
	r := require.New(t)

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	r.Error(err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	r.NoError(os.WriteFile(bad, []byte("port: [unterminated"), 0o600))
	_, err = LoadConfig(bad)
	r.ErrorIs(err, ErrInvalidConfig)

	t.Setenv("MAX_MESSAGE_SIZE", "huge")
	_, err = LoadConfig("")
	r.ErrorIs(err, ErrInvalidConfig)
}

func TestConfig_Validate(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "empty port", mutate: func(c *Config) { c.Port = "" }},
		{name: "ping not shorter than pong", mutate: func(c *Config) { c.PingInterval = c.PongWait }},
		{name: "replay above capacity", mutate: func(c *Config) { c.HistoryReplay = c.HistoryCapacity + 1 }},
		{name: "negative content limit", mutate: func(c *Config) { c.MaxContentLength = -1 }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewConfig()
			require.NoError(t, cfg.Validate())
			tc.mutate(cfg)
			require.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestSetConfig_FillsZeroValues(t *testing.T) {
	r := require.New(t)
	t.Cleanup(func() { SetConfig(nil) })

	SetConfig(&Config{AllowedOrigins: []string{" http://Example.com/ ", "https://*.Example.app", "*", "bogus"}})

	cfg := currentConfig()
	r.Equal(":8080", cfg.Port)
	r.Equal(int64(4096), cfg.MaxMessageSize)
	r.Equal(256, cfg.SendBufferSize)
	r.Equal([]string{"http://example.com", "https://*.example.app"}, cfg.AllowedOrigins)
}

func TestConfig_PresenceOptions(t *testing.T) {
	cfg := NewConfig()
	cfg.MaxContentLength = 10
	opts := cfg.PresenceOptions()
	require.Equal(t, cfg.HistoryCapacity, opts.HistoryCapacity)
	require.Equal(t, 10, opts.MaxContentLength)
	require.Nil(t, opts.Now)
}
