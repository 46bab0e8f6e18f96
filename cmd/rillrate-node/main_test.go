// Copyright 2026 The Rillrate Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"testing"

	"github.com/rillrate-fossil/rillrate-sub001/lib/config"
	"github.com/rillrate-fossil/rillrate-sub001/ref"
)

func TestNodeConfigFrom(t *testing.T) {
	cfg := config.Default()
	cfg.Limits.Clients = 3
	cfg.Access.AllowedPaths = []string{"app.requests"}

	nodeConfig, err := nodeConfigFrom(cfg)
	if err != nil {
		t.Fatalf("nodeConfigFrom: %v", err)
	}
	if nodeConfig.ClientLimit.Total != 3 {
		t.Errorf("client limit = %d, want 3", nodeConfig.ClientLimit.Total)
	}
	if len(nodeConfig.AllowedPaths) != 1 || !nodeConfig.AllowedPaths[0].Equal(ref.PathOf("app", "requests")) {
		t.Errorf("allowed paths = %v", nodeConfig.AllowedPaths)
	}
	if nodeConfig.HeartbeatInterval != cfg.Stream.HeartbeatInterval {
		t.Errorf("heartbeat = %s, want %s", nodeConfig.HeartbeatInterval, cfg.Stream.HeartbeatInterval)
	}
}

func TestNodeConfigFromRejectsBadPath(t *testing.T) {
	cfg := config.Default()
	cfg.Access.AllowedPaths = []string{"app..requests"}
	if _, err := nodeConfigFrom(cfg); err == nil {
		t.Fatal("malformed allowed path accepted")
	}
}
