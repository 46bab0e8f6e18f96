// Copyright 2026 The Rillrate Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// EnvironmentVariable names the variable Load reads the config path
// from.
const EnvironmentVariable = "RILLRATE_CONFIG"

// Config is the master configuration of a node.
type Config struct {
	// Node configures listeners and HTTP paths.
	Node NodeConfig `yaml:"node"`

	// Limits bounds concurrent connections.
	Limits LimitsConfig `yaml:"limits"`

	// Access configures what dashboard sessions may see.
	Access AccessConfig `yaml:"access"`

	// Stream configures dashboard streams.
	Stream StreamConfig `yaml:"stream"`

	// Log configures diagnostics.
	Log LogConfig `yaml:"log"`
}

// NodeConfig configures listeners and HTTP paths.
type NodeConfig struct {
	// Name appears in provider welcomes and the status document.
	// Default: rillrate
	Name string `yaml:"name"`

	// ProviderAddress is the TCP address providers connect to. Empty
	// disables the listener.
	// Default: 127.0.0.1:1636
	ProviderAddress string `yaml:"provider_address"`

	// HTTPAddress serves dashboards, metrics and status.
	// Default: 127.0.0.1:9090
	HTTPAddress string `yaml:"http_address"`

	// WebSocketPath is the dashboard endpoint.
	// Default: /live
	WebSocketPath string `yaml:"websocket_path"`

	// MetricsPath serves Prometheus metrics.
	// Default: /metrics
	MetricsPath string `yaml:"metrics_path"`

	// StatusPath serves the JSON status document.
	// Default: /status
	StatusPath string `yaml:"status_path"`
}

// LimitsConfig bounds concurrent connections per class.
type LimitsConfig struct {
	// Providers is the maximum number of connected providers.
	// Default: 32
	Providers int `yaml:"providers"`

	// Clients is the maximum number of dashboard sessions.
	// Default: 128
	Clients int `yaml:"clients"`
}

// AccessConfig configures dashboard session access.
type AccessConfig struct {
	// UnlockAll gives every session access to every path. Meant for
	// local and trusted deployments.
	// Default: false
	UnlockAll bool `yaml:"unlock_all"`

	// AllowedPaths are the dotted paths every session may subscribe
	// to when UnlockAll is off.
	AllowedPaths []string `yaml:"allowed_paths"`
}

// StreamConfig configures dashboard streams.
type StreamConfig struct {
	// HeartbeatInterval is the period of keepalive frames.
	// Default: 10s
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// CompressionThreshold is the payload size in bytes from which
	// states and deltas are compressed. Zero disables compression.
	// Default: 4096
	CompressionThreshold int `yaml:"compression_threshold"`
}

// LogConfig configures diagnostics.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	// Default: info
	Level string `yaml:"level"`
}

// Default returns the default configuration. A loaded file is merged
// over it, so every field a file omits keeps these values.
func Default() *Config {
	return &Config{
		Node: NodeConfig{
			Name:            "rillrate",
			ProviderAddress: "127.0.0.1:1636",
			HTTPAddress:     "127.0.0.1:9090",
			WebSocketPath:   "/live",
			MetricsPath:     "/metrics",
			StatusPath:      "/status",
		},
		Limits: LimitsConfig{
			Providers: 32,
			Clients:   128,
		},
		Stream: StreamConfig{
			HeartbeatInterval:    10 * time.Second,
			CompressionThreshold: 4096,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from the file named by RILLRATE_CONFIG.
// There is no fallback: if the variable is not set, Load fails.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvironmentVariable)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your node config file, or use --config flag", EnvironmentVariable)
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path. The format
// follows the extension. Call Validate on the result before use.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	format, err := formatOf(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Format is a configuration file syntax.
type Format string

const (
	// YAML is plain YAML.
	YAML Format = "yaml"
	// JSONC is JSON with comments and trailing commas.
	JSONC Format = "jsonc"
)

func formatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return YAML, nil
	case ".json", ".jsonc":
		return JSONC, nil
	default:
		return "", fmt.Errorf("config file %s: unknown extension (want .yaml, .yml, .json or .jsonc)", path)
	}
}

// Parse decodes data over the defaults and expands variables.
func Parse(data []byte, format Format) (*Config, error) {
	cfg := Default()
	switch format {
	case YAML:
	case JSONC:
		// JSON is a subset of YAML, so the stripped document goes
		// through the same decoder and field tags.
		data = jsonc.ToJSON(data)
	default:
		return nil, fmt.Errorf("unknown config format %q", format)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.expandVariables()
	return cfg, nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in
// addresses.
func (c *Config) expandVariables() {
	c.Node.ProviderAddress = expandVars(c.Node.ProviderAddress)
	c.Node.HTTPAddress = expandVars(c.Node.HTTPAddress)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		if len(parts) >= 3 {
			return parts[2]
		}
		return ""
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Node.ProviderAddress == "" && c.Node.HTTPAddress == "" {
		errs = append(errs, errors.New("node: at least one of provider_address and http_address is required"))
	}
	for field, path := range map[string]string{
		"node.websocket_path": c.Node.WebSocketPath,
		"node.metrics_path":   c.Node.MetricsPath,
		"node.status_path":    c.Node.StatusPath,
	} {
		if !strings.HasPrefix(path, "/") {
			errs = append(errs, fmt.Errorf("%s must start with /: %q", field, path))
		}
	}
	if c.Node.WebSocketPath == c.Node.MetricsPath || c.Node.WebSocketPath == c.Node.StatusPath || c.Node.MetricsPath == c.Node.StatusPath {
		errs = append(errs, errors.New("node: websocket_path, metrics_path and status_path must differ"))
	}

	if c.Limits.Providers < 1 {
		errs = append(errs, fmt.Errorf("limits.providers must be at least 1, got %d", c.Limits.Providers))
	}
	if c.Limits.Clients < 1 {
		errs = append(errs, fmt.Errorf("limits.clients must be at least 1, got %d", c.Limits.Clients))
	}

	for _, path := range c.Access.AllowedPaths {
		if path == "" || strings.HasPrefix(path, ".") || strings.HasSuffix(path, ".") || strings.Contains(path, "..") {
			errs = append(errs, fmt.Errorf("access.allowed_paths: malformed path %q", path))
		}
	}

	if c.Stream.HeartbeatInterval <= 0 {
		errs = append(errs, fmt.Errorf("stream.heartbeat_interval must be positive, got %s", c.Stream.HeartbeatInterval))
	}
	if c.Stream.CompressionThreshold < 0 {
		errs = append(errs, fmt.Errorf("stream.compression_threshold must not be negative, got %d", c.Stream.CompressionThreshold))
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be one of debug, info, warn, error: %q", c.Log.Level))
	}

	return errors.Join(errs...)
}
