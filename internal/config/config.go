// Package config handles loading and validating Mjumbe configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/jkaninda/mjumbe/internal/intents"
)

func init() {
	// Load .env file if it exists
	_ = godotenv.Load()
}

// Config is the root configuration for Mjumbe.
type Config struct {
	Token         string                `json:"token,omitempty" yaml:"token,omitempty"`       // Bot token. Override: MJUMBE_TOKEN env var.
	GatewayURL    string                `json:"gateway_url" yaml:"gateway_url"`               // wss:// endpoint from the out-of-scope discovery call.
	Version       int                   `json:"version,omitempty" yaml:"version,omitempty"`   // Gateway protocol version. Default: 10.
	ShardCount    int                   `json:"shard_count" yaml:"shard_count"`               // Total shards. Default: 1.
	ShardIDs      []int                 `json:"shard_ids,omitempty" yaml:"shard_ids,omitempty"` // Shards this process runs. Default: all.
	Intents       []string              `json:"intents" yaml:"intents"`                       // Intent names, e.g. GUILDS, GUILD_MEMBERS.
	Format        string                `json:"format,omitempty" yaml:"format,omitempty"`     // Payload format: "json" (default) or "cbor".
	Encoding      string                `json:"encoding,omitempty" yaml:"encoding,omitempty"` // DEPRECATED: old name for Format. Format wins when both are set.
	Compression   string                `json:"compression,omitempty" yaml:"compression,omitempty"` // "none" (default), "payload", or "transport".
	Presence      *PresenceConfig       `json:"presence,omitempty" yaml:"presence,omitempty"` // Initial presence sent with identify.
	Session       SessionConfig         `json:"session" yaml:"session"`
	Observability *ObservabilityConfig  `json:"observability,omitempty" yaml:"observability,omitempty"` // nil = observability disabled.
	StatusAPI     *StatusAPIConfig      `json:"status_api,omitempty" yaml:"status_api,omitempty"`       // nil = no HTTP status surface.
	Logging       LoggingConfig         `json:"logging" yaml:"logging"`
}

// PresenceConfig is the initial presence applied at identify time.
type PresenceConfig struct {
	Status   string `json:"status,omitempty" yaml:"status,omitempty"` // online, idle, dnd, invisible.
	AFK      bool   `json:"afk,omitempty" yaml:"afk,omitempty"`
	Activity string `json:"activity,omitempty" yaml:"activity,omitempty"` // Activity name; empty = none.
}

// SessionConfig tunes handshake and reconnect behavior.
type SessionConfig struct {
	HandshakeTimeoutS  int `json:"handshake_timeout_s" yaml:"handshake_timeout_s"`   // Default: 30.
	BackoffInitialMS   int `json:"backoff_initial_ms" yaml:"backoff_initial_ms"`     // Default: 1000.
	BackoffMaxS        int `json:"backoff_max_s" yaml:"backoff_max_s"`               // Default: 60.
	StableResetS       int `json:"stable_reset_s" yaml:"stable_reset_s"`             // Connected time after which backoff resets. Default: 60.
	IdentifyIntervalMS int `json:"identify_interval_ms" yaml:"identify_interval_ms"` // Identify gate refill per bucket. Default: 5000.
	MaxConcurrency     int `json:"max_concurrency" yaml:"max_concurrency"`           // Identify buckets. Default: 1.
	LargeThreshold     int `json:"large_threshold" yaml:"large_threshold"`           // Members before a guild is "large". 0 = server default.
}

// HandshakeTimeout returns the handshake deadline, defaulting to 30s.
func (s *SessionConfig) HandshakeTimeout() time.Duration {
	if s.HandshakeTimeoutS > 0 {
		return time.Duration(s.HandshakeTimeoutS) * time.Second
	}
	return 30 * time.Second
}

// BackoffInitial returns the first reconnect delay, defaulting to 1s.
func (s *SessionConfig) BackoffInitial() time.Duration {
	if s.BackoffInitialMS > 0 {
		return time.Duration(s.BackoffInitialMS) * time.Millisecond
	}
	return time.Second
}

// BackoffMax returns the reconnect delay cap, defaulting to 60s.
func (s *SessionConfig) BackoffMax() time.Duration {
	if s.BackoffMaxS > 0 {
		return time.Duration(s.BackoffMaxS) * time.Second
	}
	return 60 * time.Second
}

// StableReset returns how long a connection must stay up before the backoff
// resets to its minimum. Default: 60s.
func (s *SessionConfig) StableReset() time.Duration {
	if s.StableResetS > 0 {
		return time.Duration(s.StableResetS) * time.Second
	}
	return 60 * time.Second
}

// IdentifyInterval returns the per-bucket identify refill interval. Default: 5s.
func (s *SessionConfig) IdentifyInterval() time.Duration {
	if s.IdentifyIntervalMS > 0 {
		return time.Duration(s.IdentifyIntervalMS) * time.Millisecond
	}
	return 5 * time.Second
}

// ObservabilityConfig configures metrics and tracing.
// When nil, all observability features are disabled with zero overhead.
type ObservabilityConfig struct {
	Metrics *MetricsConfig `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Tracing *TracingConfig `json:"tracing,omitempty" yaml:"tracing,omitempty"`
}

// MetricsConfig configures Prometheus metrics exposition.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"` // Default: "/metrics"
}

// TracingConfig configures OpenTelemetry distributed tracing.
type TracingConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	Endpoint    string  `json:"endpoint" yaml:"endpoint"`         // OTLP endpoint, e.g. "localhost:4317"
	Protocol    string  `json:"protocol" yaml:"protocol"`         // "grpc" or "http". Default: "grpc"
	ServiceName string  `json:"service_name" yaml:"service_name"` // Default: "mjumbe"
	SampleRate  float64 `json:"sample_rate" yaml:"sample_rate"`   // 0.0–1.0. Default: 1.0
	Insecure    bool    `json:"insecure" yaml:"insecure"`         // Skip TLS for dev
}

// StatusAPIConfig configures the HTTP status surface.
type StatusAPIConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	ListenAddr string `json:"listen_addr" yaml:"listen_addr"` // Default: ":8080".
}

// Addr returns the listen address, defaulting to ":8080".
func (s *StatusAPIConfig) Addr() string {
	if s.ListenAddr != "" {
		return s.ListenAddr
	}
	return ":8080"
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level  string `json:"level,omitempty" yaml:"level,omitempty"`   // debug, info, warn, error. Default: info.
	Format string `json:"format,omitempty" yaml:"format,omitempty"` // "json" (default) or "text".
}

// ProtocolVersion returns the gateway version, defaulting to 10.
func (c *Config) ProtocolVersion() int {
	if c.Version > 0 {
		return c.Version
	}
	return 10
}

// Shards returns the shard ids this process runs, defaulting to all of them.
func (c *Config) Shards() []int {
	if len(c.ShardIDs) > 0 {
		return c.ShardIDs
	}
	ids := make([]int, c.Count())
	for i := range ids {
		ids[i] = i
	}
	return ids
}

// Count returns the total shard count, defaulting to 1.
func (c *Config) Count() int {
	if c.ShardCount > 0 {
		return c.ShardCount
	}
	return 1
}

// PayloadFormat resolves the payload format, applying the deprecated-key
// precedence rule: the newer `format` key wins when both are set.
func (c *Config) PayloadFormat() string {
	if c.Format != "" {
		return c.Format
	}
	if c.Encoding != "" {
		return c.Encoding
	}
	return "json"
}

// IntentBits parses the configured intent names into a bitset.
func (c *Config) IntentBits() (intents.Intents, error) {
	var set intents.Intents
	for _, name := range c.Intents {
		bit, ok := intents.Parse(name)
		if !ok {
			return 0, fmt.Errorf("unknown intent %q", name)
		}
		set |= bit
	}
	return set, nil
}

// DefaultConfigPath returns the conventional config location.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "configs/mjumbe.yaml" // fallback for environments without a home dir
	}
	return filepath.Join(home, ".mjumbe", "config.yaml")
}

// Load reads a JSON or YAML config file and returns a validated Config.
// The format is detected by file extension: .yml/.yaml for YAML, everything
// else for JSON. The bot token can be set in the config file or overridden by
// the MJUMBE_TOKEN environment variable. Environment variables take precedence.
func Load(path string) (*Config, error) {
	// Expand ~ in config path.
	resolved, err := resolvePath(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path %s: %w", path, err)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", resolved, err)
	}

	cfg, err := Parse(data, filepath.Ext(resolved))
	if err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", resolved, err)
	}
	return cfg, nil
}

// Parse decodes and validates raw config bytes. ext selects the format the
// way Load does.
func Parse(data []byte, ext string) (*Config, error) {
	var cfg Config
	switch strings.ToLower(ext) {
	case ".yml", ".yaml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing JSON: %w", err)
		}
	}

	// Environment variable overrides take precedence over file values.
	if envToken := os.Getenv("MJUMBE_TOKEN"); envToken != "" {
		cfg.Token = envToken
	}
	if envURL := os.Getenv("MJUMBE_GATEWAY_URL"); envURL != "" {
		cfg.GatewayURL = envURL
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// resolvePath expands ~ to the user home directory and returns an absolute path.
func resolvePath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[1:])
	}
	return filepath.Abs(path)
}

func (c *Config) validate() error {
	if c.Token == "" {
		return fmt.Errorf("token is required (set MJUMBE_TOKEN env var)")
	}
	if c.GatewayURL == "" {
		return fmt.Errorf("gateway_url is required")
	}
	if !strings.HasPrefix(c.GatewayURL, "wss://") && !strings.HasPrefix(c.GatewayURL, "ws://") {
		return fmt.Errorf("gateway_url must be a ws:// or wss:// URL")
	}
	switch c.PayloadFormat() {
	case "json", "cbor":
		// valid
	default:
		return fmt.Errorf("format %q is not supported (use json or cbor)", c.PayloadFormat())
	}
	switch c.Compression {
	case "", "none", "payload", "transport", "zlib-payload", "zlib-stream":
		// valid
	default:
		return fmt.Errorf("compression %q is not supported (use none, payload, or transport)", c.Compression)
	}
	if c.ShardCount < 0 {
		return fmt.Errorf("shard_count must not be negative")
	}
	for _, id := range c.ShardIDs {
		if id < 0 || id >= c.Count() {
			return fmt.Errorf("shard id %d out of range [0, %d)", id, c.Count())
		}
	}
	if _, err := c.IntentBits(); err != nil {
		return err
	}
	if c.Presence != nil {
		switch c.Presence.Status {
		case "", "online", "idle", "dnd", "invisible":
			// valid
		default:
			return fmt.Errorf("presence.status %q is not supported", c.Presence.Status)
		}
	}
	return nil
}
