// Package config loads broker and MCP adapter configuration from
// environment variables, following the teacher's env/v11 + godotenv
// pattern (ws/config.go).
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds all runtime configuration for the broker process.
type Config struct {
	// Broker WebSocket endpoint (spec §6): loopback only, fixed port.
	BrokerHost string `env:"BROKER_HOST" envDefault:"127.0.0.1"`
	BrokerPort int    `env:"BROKER_PORT" envDefault:"3055"`

	// SSE migration sniffer (spec §4.8, §6).
	SnifferPort    int           `env:"SNIFFER_PORT" envDefault:"3056"`
	SnifferWindow  time.Duration `env:"SNIFFER_WINDOW" envDefault:"60s"`

	// Metrics/health HTTP surface (ambient, not itself an MCP tool).
	MetricsAddr string `env:"METRICS_ADDR" envDefault:"127.0.0.1:9090"`

	// Connection manager (spec §4.4).
	OutboundQueueSize int   `env:"OUTBOUND_QUEUE_SIZE" envDefault:"256"`
	MaxFrameSize      int64 `env:"MAX_FRAME_SIZE" envDefault:"16777216"`

	// Pending-request table (spec §4.2).
	DefaultRequestTimeout time.Duration `env:"DEFAULT_REQUEST_TIMEOUT" envDefault:"30s"`
	ProgressExtension     time.Duration `env:"PROGRESS_EXTENSION" envDefault:"60s"`
	StuckEntryAge         time.Duration `env:"STUCK_ENTRY_AGE" envDefault:"5m"`
	SweepInterval         time.Duration `env:"SWEEP_INTERVAL" envDefault:"30s"`

	// Connection accept rate limiting (domain stack, grounded on
	// ws/internal/shared/limits/connection_rate_limiter.go).
	AcceptBurst int     `env:"ACCEPT_BURST" envDefault:"50"`
	AcceptRate  float64 `env:"ACCEPT_RATE" envDefault:"20"`

	// REST-API-backed local commands (spec §4.6).
	RESTBaseURL      string        `env:"REST_BASE_URL" envDefault:"https://api.design-tool.example/v1"`
	RESTTimeout      time.Duration `env:"REST_TIMEOUT" envDefault:"10s"`
	RESTRatePerSec   float64       `env:"REST_RATE_PER_SEC" envDefault:"5"`
	RESTBurst        int           `env:"REST_BURST" envDefault:"10"`
	DefaultFileKey   string        `env:"DEFAULT_FILE_KEY" envDefault:""`
	AccessToken      string        `env:"ACCESS_TOKEN" envDefault:""`
	RefreshToken     string        `env:"REFRESH_TOKEN" envDefault:""`

	// Shutdown drain deadline (spec §5).
	ShutdownDrain time.Duration `env:"SHUTDOWN_DRAIN" envDefault:"3s"`

	// Logging.
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// MCPConfig holds configuration specific to the stdio adapter process
// (spec §4.7).
type MCPConfig struct {
	BrokerURL        string        `env:"BROKER_URL" envDefault:"ws://127.0.0.1:3055"`
	ReconnectBackoff time.Duration `env:"RECONNECT_BACKOFF" envDefault:"2s"`
	RequestTimeout   time.Duration `env:"MCP_REQUEST_TIMEOUT" envDefault:"30s"`
	LogLevel         string        `env:"LOG_LEVEL" envDefault:"info"`
}

// ZerologLevel parses LogLevel into a zerolog.Level, defaulting to Info on
// an unrecognized value.
func (c MCPConfig) ZerologLevel() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

// Load reads broker configuration from an optional .env file and from
// environment variables, validating the result.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: validate: %w", err)
	}

	return cfg, nil
}

// LoadMCP reads MCP adapter configuration the same way.
func LoadMCP() (MCPConfig, error) {
	_ = godotenv.Load()

	var cfg MCPConfig
	if err := env.Parse(&cfg); err != nil {
		return MCPConfig{}, fmt.Errorf("config: parse: %w", err)
	}
	return cfg, nil
}

// Validate rejects nonsensical configuration before anything starts.
func (c Config) Validate() error {
	if c.BrokerPort <= 0 || c.BrokerPort > 65535 {
		return fmt.Errorf("invalid broker port %d", c.BrokerPort)
	}
	if c.SnifferPort <= 0 || c.SnifferPort > 65535 {
		return fmt.Errorf("invalid sniffer port %d", c.SnifferPort)
	}
	if c.OutboundQueueSize <= 0 {
		return fmt.Errorf("outbound queue size must be positive")
	}
	if c.MaxFrameSize <= 0 {
		return fmt.Errorf("max frame size must be positive")
	}
	if c.DefaultRequestTimeout <= 0 || c.ProgressExtension <= 0 {
		return fmt.Errorf("request timeouts must be positive")
	}
	return nil
}

// ZerologLevel parses LogLevel into a zerolog.Level, defaulting to Info on
// an unrecognized value.
func (c Config) ZerologLevel() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}
