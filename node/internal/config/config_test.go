package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"
)

func TestLoad_Valid(t *testing.T) {
	yaml := `
node:
  http_port: 9000
  log_level: debug
tracker:
  max_temporary_fetchers: 8
  background_lookahead: 4
  subscriptions:
    - key: "USK@abc,def,AQACAAE/site/4"
      background: true
gateway:
  endpoint: "http://127.0.0.1:8888"
  timeout: 5s
  backoff:
    initial: 100ms
    max: 10s
    multiplier: 1.5
`
	cfg := loadFromString(t, yaml)

	if cfg.Node.HTTPPort != 9000 {
		t.Errorf("http_port: got %d", cfg.Node.HTTPPort)
	}
	if cfg.Node.SlogLevel() != slog.LevelDebug {
		t.Errorf("log_level: got %v", cfg.Node.SlogLevel())
	}
	if cfg.Tracker.MaxTemporaryFetchers != 8 {
		t.Errorf("max_temporary_fetchers: got %d", cfg.Tracker.MaxTemporaryFetchers)
	}
	if cfg.Tracker.BackgroundLookahead != 4 {
		t.Errorf("background_lookahead: got %d", cfg.Tracker.BackgroundLookahead)
	}
	if cfg.Gateway.Timeout != 5*time.Second {
		t.Errorf("timeout: got %v", cfg.Gateway.Timeout)
	}
	if cfg.Gateway.Backoff.Initial != 100*time.Millisecond || cfg.Gateway.Backoff.Multiplier != 1.5 {
		t.Errorf("backoff: got %+v", cfg.Gateway.Backoff)
	}
	if len(cfg.Tracker.Subscriptions) != 1 {
		t.Fatalf("subscriptions: got %d, want 1", len(cfg.Tracker.Subscriptions))
	}
	k := cfg.Tracker.Subscriptions[0].ParsedKey()
	if k.DocName != "site" || k.Edition != 4 {
		t.Errorf("subscription key: got %v", k)
	}
}

func TestLoad_Defaults(t *testing.T) {
	yaml := `
gateway:
  endpoint: "http://127.0.0.1:8888"
`
	cfg := loadFromString(t, yaml)

	if cfg.Tracker.MaxTemporaryFetchers != DefaultMaxTemporaryFetchers {
		t.Errorf("default max_temporary_fetchers: got %d, want %d", cfg.Tracker.MaxTemporaryFetchers, DefaultMaxTemporaryFetchers)
	}
	if cfg.Tracker.TemporaryLookahead != DefaultTemporaryLookahead {
		t.Errorf("default temporary_lookahead: got %d", cfg.Tracker.TemporaryLookahead)
	}
	if !cfg.Tracker.VerifyBackground {
		t.Error("default verify_background: got false, want true")
	}
	if cfg.Gateway.MaxInFlight != DefaultMaxInFlight {
		t.Errorf("default max_in_flight: got %d", cfg.Gateway.MaxInFlight)
	}
	if cfg.Gateway.Backoff.Max != DefaultBackoffMax {
		t.Errorf("default backoff max: got %v", cfg.Gateway.Backoff.Max)
	}
	if cfg.Node.GRPCPort != DefaultGRPCPort {
		t.Errorf("default grpc_port: got %d", cfg.Node.GRPCPort)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("FRESHWATCH_GATEWAY_ENDPOINT", "https://gw.example.com")
	t.Setenv("FRESHWATCH_MAX_TEMPORARY_FETCHERS", "3")

	cfg := loadFromString(t, `
gateway:
  endpoint: "http://127.0.0.1:8888"
`)
	if cfg.Gateway.Endpoint != "https://gw.example.com" {
		t.Errorf("endpoint: got %q", cfg.Gateway.Endpoint)
	}
	if cfg.Tracker.MaxTemporaryFetchers != 3 {
		t.Errorf("max_temporary_fetchers: got %d", cfg.Tracker.MaxTemporaryFetchers)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing endpoint", `tracker: {max_temporary_fetchers: 2}`},
		{"endpoint scheme", `gateway: {endpoint: "127.0.0.1:8888"}`},
		{"zero pool", "tracker: {max_temporary_fetchers: 0}\ngateway: {endpoint: \"http://gw\"}"},
		{"bad key", "tracker: {subscriptions: [{key: \"CHK@nope\"}]}\ngateway: {endpoint: \"http://gw\"}"},
		{"bad level", "node: {log_level: loud}\ngateway: {endpoint: \"http://gw\"}"},
		{"backoff order", "gateway: {endpoint: \"http://gw\", backoff: {initial: 10s, max: 1s}}"},
		{"multiplier", "gateway: {endpoint: \"http://gw\", backoff: {multiplier: 0.5}}"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := loadStringErr(t, tc.yaml); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestGatewayConfig_Token(t *testing.T) {
	t.Setenv("TEST_GATEWAY_TOKEN", "secret")
	g := GatewayConfig{TokenEnv: "TEST_GATEWAY_TOKEN"}
	if got := g.Token(); got != "secret" {
		t.Errorf("Token(): got %q, want secret", got)
	}
	if got := (GatewayConfig{}).Token(); got != "" {
		t.Errorf("Token() with no TokenEnv: got %q, want empty", got)
	}
}

func TestNodeConfig_APIKey(t *testing.T) {
	t.Setenv("TEST_NODE_API_KEY", "k1")
	if got := (NodeConfig{APIKeyEnv: "TEST_NODE_API_KEY"}).APIKey(); got != "k1" {
		t.Errorf("APIKey(): got %q, want k1", got)
	}
	if got := (NodeConfig{}).APIKey(); got != "" {
		t.Errorf("APIKey() with no APIKeyEnv: got %q, want empty", got)
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "freshwatch.yaml")
	write := func(pool int) {
		content := "tracker:\n  max_temporary_fetchers: " + strconv.Itoa(pool) + "\ngateway:\n  endpoint: \"http://gw\"\n"
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("write config: %v", err)
		}
	}
	write(5)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan int, 4)
	go Watch(ctx, path, func(cfg *Config) { got <- cfg.Tracker.MaxTemporaryFetchers }) //nolint:errcheck

	// Keep rewriting until the watcher is registered and picks the change up.
	deadline := time.After(3 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case n := <-got:
			if n != 9 {
				t.Fatalf("reloaded pool size: got %d, want 9", n)
			}
			return
		case <-tick.C:
			write(9)
		case <-deadline:
			t.Fatal("timed out waiting for reload")
		}
	}
}

// loadFromString writes yaml to a temp file and calls Load, failing on error.
func loadFromString(t *testing.T, content string) *Config {
	t.Helper()
	cfg, err := loadStringErr(t, content)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	return cfg
}

// loadStringErr writes yaml to a temp file and calls Load, returning any error.
func loadStringErr(t *testing.T, content string) (*Config, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "freshwatch.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return Load(path)
}
