package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/freshwatch/freshwatch/pkg/types"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultHTTPPort             = 8080
	DefaultGRPCPort             = 50051
	DefaultLogLevel             = "info"
	DefaultMaxTemporaryFetchers = 50
	DefaultBackgroundLookahead  = 10
	DefaultTemporaryLookahead   = 3
	DefaultGatewayTimeout       = 30 * time.Second
	DefaultMaxInFlight          = 16
	DefaultBackoffInitial       = 1 * time.Second
	DefaultBackoffMax           = 5 * time.Minute
	DefaultBackoffMultiplier    = 2.0
)

// Config is the top-level freshnode configuration.
// Fields map 1:1 to freshwatch.example.yaml.
type Config struct {
	Node    NodeConfig    `yaml:"node"`
	Tracker TrackerConfig `yaml:"tracker"`
	Gateway GatewayConfig `yaml:"gateway"`
}

// NodeConfig holds process-level settings.
type NodeConfig struct {
	// HTTPPort serves the JSON API, the WebSocket stream and /metrics.
	HTTPPort int `yaml:"http_port" env:"FRESHWATCH_HTTP_PORT"`

	// GRPCPort serves the gRPC health service.
	GRPCPort int `yaml:"grpc_port" env:"FRESHWATCH_GRPC_PORT"`

	// LogLevel is one of debug | info | warn | error.
	LogLevel string `yaml:"log_level" env:"FRESHWATCH_LOG_LEVEL"`

	// APIKeyEnv names the environment variable holding the key gRPC callers
	// must send in the x-api-key metadata header. Empty disables the check.
	APIKeyEnv string `yaml:"api_key_env"`
}

// APIKey returns the gRPC API key resolved from the environment.
func (n NodeConfig) APIKey() string {
	if n.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(n.APIKeyEnv)
}

// SlogLevel returns LogLevel as a slog.Level. validate guarantees it parses.
func (n NodeConfig) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(n.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// TrackerConfig controls the freshness registry and its fetchers.
type TrackerConfig struct {
	// MaxTemporaryFetchers is the LRU pool capacity for temporary fetchers.
	// Hot-reloadable.
	MaxTemporaryFetchers int `yaml:"max_temporary_fetchers" env:"FRESHWATCH_MAX_TEMPORARY_FETCHERS"`

	// BackgroundLookahead is how many sequential editions past the last
	// found one a background fetcher probes per round.
	BackgroundLookahead int `yaml:"background_lookahead"`

	// TemporaryLookahead is the same window for temporary fetchers.
	TemporaryLookahead int `yaml:"temporary_lookahead"`

	// VerifyBackground makes background fetchers fetch content for each
	// discovered edition and report it as known good.
	VerifyBackground bool `yaml:"verify_background"`

	// Subscriptions lists the keys the node tracks from startup.
	Subscriptions []Subscription `yaml:"subscriptions"`
}

// Subscription is one statically configured key.
type Subscription struct {
	// Key is a USK URI; its edition is the starting point.
	Key string `yaml:"key"`

	// Background keeps a fetcher polling the key until shutdown.
	Background bool `yaml:"background"`
}

// ParsedKey returns Key parsed. validate guarantees it parses.
func (s Subscription) ParsedKey() types.Key {
	k, _ := types.ParseKey(s.Key)
	return k
}

// GatewayConfig describes the HTTP gateway used to probe and fetch blocks.
type GatewayConfig struct {
	// Endpoint is the base URL of the gateway, e.g. http://127.0.0.1:8888.
	Endpoint string `yaml:"endpoint" env:"FRESHWATCH_GATEWAY_ENDPOINT"`

	// Timeout bounds a single probe or content request.
	Timeout time.Duration `yaml:"timeout"`

	// MaxInFlight bounds concurrent requests to the gateway.
	MaxInFlight int `yaml:"max_in_flight"`

	// HTTP2 switches the client to a prior-knowledge HTTP/2 transport.
	HTTP2 bool `yaml:"http2"`

	// TokenEnv is the name of the environment variable holding a bearer
	// token for the gateway.
	TokenEnv string `yaml:"token_env"`

	// Backoff paces fetchers between unproductive polling rounds.
	Backoff BackoffConfig `yaml:"backoff"`
}

// Token returns the bearer token resolved from the environment.
func (g GatewayConfig) Token() string {
	if g.TokenEnv == "" {
		return ""
	}
	return os.Getenv(g.TokenEnv)
}

// BackoffConfig is a truncated exponential backoff with jitter.
type BackoffConfig struct {
	Initial    time.Duration `yaml:"initial"`
	Max        time.Duration `yaml:"max"`
	Multiplier float64       `yaml:"multiplier"`
}

// Load reads and parses the YAML config file at path, then applies
// environment overrides. Missing optional fields are filled with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}
	return Parse(data)
}

// Parse is Load without the file read.
func Parse(data []byte) (*Config, error) {
	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse env: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Defaults returns a Config pre-populated with default values.
func Defaults() *Config {
	return &Config{
		Node: NodeConfig{
			HTTPPort: DefaultHTTPPort,
			GRPCPort: DefaultGRPCPort,
			LogLevel: DefaultLogLevel,
		},
		Tracker: TrackerConfig{
			MaxTemporaryFetchers: DefaultMaxTemporaryFetchers,
			BackgroundLookahead:  DefaultBackgroundLookahead,
			TemporaryLookahead:   DefaultTemporaryLookahead,
			VerifyBackground:     true,
		},
		Gateway: GatewayConfig{
			Timeout:     DefaultGatewayTimeout,
			MaxInFlight: DefaultMaxInFlight,
			Backoff: BackoffConfig{
				Initial:    DefaultBackoffInitial,
				Max:        DefaultBackoffMax,
				Multiplier: DefaultBackoffMultiplier,
			},
		},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(cfg.Node.LogLevel)); err != nil {
		return fmt.Errorf("node.log_level: unknown level %q", cfg.Node.LogLevel)
	}
	if cfg.Tracker.MaxTemporaryFetchers <= 0 {
		return fmt.Errorf("tracker.max_temporary_fetchers must be positive")
	}
	if cfg.Tracker.BackgroundLookahead <= 0 {
		return fmt.Errorf("tracker.background_lookahead must be positive")
	}
	if cfg.Tracker.TemporaryLookahead <= 0 {
		return fmt.Errorf("tracker.temporary_lookahead must be positive")
	}
	for i, sub := range cfg.Tracker.Subscriptions {
		if _, err := types.ParseKey(sub.Key); err != nil {
			return fmt.Errorf("tracker.subscriptions[%d]: %w", i, err)
		}
	}
	if cfg.Gateway.Endpoint == "" {
		return fmt.Errorf("gateway.endpoint is required")
	}
	if !strings.HasPrefix(cfg.Gateway.Endpoint, "http://") && !strings.HasPrefix(cfg.Gateway.Endpoint, "https://") {
		return fmt.Errorf("gateway.endpoint %q: want http:// or https:// URL", cfg.Gateway.Endpoint)
	}
	if cfg.Gateway.Timeout <= 0 {
		return fmt.Errorf("gateway.timeout must be positive")
	}
	if cfg.Gateway.MaxInFlight <= 0 {
		return fmt.Errorf("gateway.max_in_flight must be positive")
	}
	b := cfg.Gateway.Backoff
	if b.Initial <= 0 || b.Max < b.Initial {
		return fmt.Errorf("gateway.backoff: need 0 < initial <= max, got initial=%v max=%v", b.Initial, b.Max)
	}
	if b.Multiplier < 1 {
		return fmt.Errorf("gateway.backoff.multiplier must be >= 1")
	}
	return nil
}
