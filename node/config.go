// Copyright 2026 The Rillrate Authors
// SPDX-License-Identifier: Apache-2.0

package node

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rillrate-fossil/rillrate-sub001/admission"
	"github.com/rillrate-fossil/rillrate-sub001/lib/clock"
	"github.com/rillrate-fossil/rillrate-sub001/ref"
)

// Default values for Config fields left at zero.
const (
	DefaultName              = "rillrate"
	DefaultWebSocketPath     = "/live"
	DefaultMetricsPath       = "/metrics"
	DefaultStatusPath        = "/status"
	DefaultHeartbeatInterval = 10 * time.Second
	DefaultHandshakeTimeout  = 10 * time.Second
	DefaultProviderLimit     = 32
	DefaultClientLimit       = 128
)

// Config configures a Server.
type Config struct {
	// Name appears in the provider welcome and the status document.
	Name string

	// ProviderAddress is the TCP address providers connect to. Empty
	// disables the listener; providers can still be attached with
	// Server.ConnectProvider.
	ProviderAddress string

	// HTTPAddress serves dashboards, metrics and status. Empty
	// disables the listener; Server.Handler is still usable.
	HTTPAddress string

	WebSocketPath string
	MetricsPath   string
	StatusPath    string

	// ProviderLimit and ClientLimit bound concurrent connections of
	// each class. A zero total means the default.
	ProviderLimit admission.Limit
	ClientLimit   admission.Limit

	// UnlockAll opens every path to every session. Otherwise sessions
	// start with AllowedPaths.
	UnlockAll    bool
	AllowedPaths []ref.Path

	// HeartbeatInterval is the period of dashboard heartbeats.
	HeartbeatInterval time.Duration

	// HandshakeTimeout bounds the wait for a provider's hello.
	HandshakeTimeout time.Duration

	// CompressionThreshold is the payload size from which the node
	// compresses the meta stream it serves itself. Relayed payloads
	// keep the provider's encoding.
	CompressionThreshold int

	// Clock drives heartbeats. Nil means clock.Real().
	Clock clock.Clock

	// Logger receives node diagnostics. Nil means slog.Default().
	Logger *slog.Logger

	// Registerer receives the node's metrics. Nil means a private
	// registry, served at MetricsPath.
	Registerer prometheus.Registerer
}

func (c *Config) applyDefaults() {
	if c.Name == "" {
		c.Name = DefaultName
	}
	if c.WebSocketPath == "" {
		c.WebSocketPath = DefaultWebSocketPath
	}
	if c.MetricsPath == "" {
		c.MetricsPath = DefaultMetricsPath
	}
	if c.StatusPath == "" {
		c.StatusPath = DefaultStatusPath
	}
	if c.ProviderLimit.Total <= 0 {
		c.ProviderLimit.Total = DefaultProviderLimit
	}
	if c.ClientLimit.Total <= 0 {
		c.ClientLimit.Total = DefaultClientLimit
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
