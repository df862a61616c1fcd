// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the presence service.
package server

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/Tyrowin/gochat-presence/internal/presence"
)

// ErrInvalidConfig is returned by Validate and LoadConfig.
var ErrInvalidConfig = errors.New("invalid configuration")

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int           `yaml:"burst" envconfig:"BURST"`
	RefillInterval time.Duration `yaml:"refill_interval" envconfig:"REFILL_INTERVAL"`
}

// LogConfig selects the slog level and handler.
type LogConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL"`
	Format string `yaml:"format" envconfig:"FORMAT"`
}

// Config holds the server configuration settings including security controls.
type Config struct {
	Port             string          `yaml:"port" envconfig:"SERVER_PORT"`
	AllowedOrigins   []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
	AllowEmptyOrigin bool            `yaml:"allow_empty_origin" envconfig:"ALLOW_EMPTY_ORIGIN"`
	MaxMessageSize   int64           `yaml:"max_message_size" envconfig:"MAX_MESSAGE_SIZE"`
	RateLimit        RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`

	PingInterval      time.Duration `yaml:"ping_interval" envconfig:"PING_INTERVAL"`
	PongWait          time.Duration `yaml:"pong_wait" envconfig:"PONG_WAIT"`
	WriteWait         time.Duration `yaml:"write_wait" envconfig:"WRITE_WAIT"`
	SendBufferSize    int           `yaml:"send_buffer_size" envconfig:"SEND_BUFFER_SIZE"`
	DeliveryQueueSize int           `yaml:"delivery_queue_size" envconfig:"DELIVERY_QUEUE_SIZE"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`

	HistoryCapacity   int `yaml:"history_capacity" envconfig:"HISTORY_CAPACITY"`
	HistoryReplay     int `yaml:"history_replay" envconfig:"HISTORY_REPLAY"`
	MaxContentLength  int `yaml:"max_content_length" envconfig:"MAX_CONTENT_LENGTH"`
	MaxUsernameLength int `yaml:"max_username_length" envconfig:"MAX_USERNAME_LENGTH"`

	Log LogConfig `yaml:"log" envconfig:"LOG"`
}

var (
	configMu         sync.RWMutex
	activeConfig     Config
	allowedOrigins   map[string]struct{}
	originPatterns   []string
	allowAllOrigins  bool
	allowEmptyOrigin bool
)

func init() {
	SetConfig(nil)
}

func defaultConfig() Config {
	return Config{
		Port: ":8080",
		AllowedOrigins: []string{
			"http://localhost:8080",
			"http://localhost:3000",
		},
		MaxMessageSize: 4096,
		RateLimit: RateLimitConfig{
			Burst:          10,
			RefillInterval: time.Second,
		},
		PingInterval:      10 * time.Second,
		PongWait:          15 * time.Second,
		WriteWait:         10 * time.Second,
		SendBufferSize:    256,
		DeliveryQueueSize: 1024,
		ShutdownTimeout:   10 * time.Second,
		HistoryCapacity:   presence.DefaultHistoryCapacity,
		HistoryReplay:     presence.DefaultHistoryReplay,
		MaxContentLength:  2000,
		MaxUsernameLength: 32,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// sanitizeConfig fills zero values with defaults and publishes cfg as the
// active configuration.
func sanitizeConfig(cfg Config) Config {
	def := defaultConfig()

	if cfg.Port == "" {
		cfg.Port = def.Port
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = def.RateLimit.Burst
	}
	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = def.RateLimit.RefillInterval
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = def.PongWait
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = def.WriteWait
	}
	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = def.SendBufferSize
	}
	if cfg.DeliveryQueueSize <= 0 {
		cfg.DeliveryQueueSize = def.DeliveryQueueSize
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
	if cfg.HistoryCapacity <= 0 {
		cfg.HistoryCapacity = def.HistoryCapacity
	}
	if cfg.HistoryReplay <= 0 {
		cfg.HistoryReplay = def.HistoryReplay
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = def.Log.Format
	}

	exact, patterns, allowAll := normalizeOrigins(cfg.AllowedOrigins)
	cfg.AllowedOrigins = append(exact, patterns...)

	configMu.Lock()
	defer configMu.Unlock()

	activeConfig = cfg
	allowAllOrigins = allowAll
	allowEmptyOrigin = cfg.AllowEmptyOrigin
	originPatterns = patterns
	allowedOrigins = make(map[string]struct{}, len(exact))
	for _, origin := range exact {
		allowedOrigins[origin] = struct{}{}
	}

	return cfg
}

// SetConfig applies the provided configuration. Passing nil resets to defaults.
func SetConfig(cfg *Config) {
	if cfg == nil {
		sanitizeConfig(defaultConfig())
		return
	}

	sanitized := *cfg
	sanitized.AllowedOrigins = slices.Clone(cfg.AllowedOrigins)
	sanitizeConfig(sanitized)
}

func currentConfig() Config {
	configMu.RLock()
	defer configMu.RUnlock()

	cfg := activeConfig
	cfg.AllowedOrigins = slices.Clone(cfg.AllowedOrigins)
	return cfg
}

// Validate checks the relations between settings that sanitizing cannot fix.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("%w: port is required", ErrInvalidConfig)
	}
	if c.PingInterval > 0 && c.PongWait > 0 && c.PingInterval >= c.PongWait {
		return fmt.Errorf("%w: ping interval %s must be shorter than pong wait %s", ErrInvalidConfig, c.PingInterval, c.PongWait)
	}
	if c.HistoryReplay > 0 && c.HistoryCapacity > 0 && c.HistoryReplay > c.HistoryCapacity {
		return fmt.Errorf("%w: history replay %d exceeds capacity %d", ErrInvalidConfig, c.HistoryReplay, c.HistoryCapacity)
	}
	if c.MaxContentLength < 0 || c.MaxUsernameLength < 0 {
		return fmt.Errorf("%w: length limits must not be negative", ErrInvalidConfig)
	}
	return nil
}

// PresenceOptions maps the presence settings onto dispatcher options.
func (c *Config) PresenceOptions() presence.Options {
	return presence.Options{
		HistoryCapacity:   c.HistoryCapacity,
		HistoryReplay:     c.HistoryReplay,
		MaxContentLength:  c.MaxContentLength,
		MaxUsernameLength: c.MaxUsernameLength,
	}
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Falls back to default values if environment variables are not set.
func NewConfigFromEnv() (*Config, error) {
	return LoadConfig("")
}

// LoadConfig builds the configuration from the defaults, then the YAML file at
// path when path is not empty, then the environment.
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("%w: parsing %s: %v", ErrInvalidConfig, path, err)
		}
	}

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
