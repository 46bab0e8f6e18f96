// Copyright 2026 The Rillrate Authors
// SPDX-License-Identifier: Apache-2.0

// rillrate-node relays live flows from providers to dashboards.
//
// Providers connect over TCP and announce their paths; dashboards
// connect over a websocket, subscribe to paths and receive a state
// followed by deltas. The node serves Prometheus metrics and a JSON
// status document on the same HTTP listener as the websocket.
//
// Configuration comes from the file given by --config or
// RILLRATE_CONFIG. Without either, the built-in defaults are used.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/rillrate-fossil/rillrate-sub001/admission"
	"github.com/rillrate-fossil/rillrate-sub001/lib/config"
	"github.com/rillrate-fossil/rillrate-sub001/lib/process"
	"github.com/rillrate-fossil/rillrate-sub001/lib/version"
	"github.com/rillrate-fossil/rillrate-sub001/node"
	"github.com/rillrate-fossil/rillrate-sub001/ref"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath  string
		logLevel    string
		unlockAll   bool
		showVersion bool
	)
	flagSet := pflag.NewFlagSet("rillrate-node", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to the node config file (.yaml, .yml, .json, .jsonc)")
	flagSet.StringVar(&logLevel, "log-level", "", "override log.level (debug, info, warn, error)")
	flagSet.BoolVar(&unlockAll, "unlock-all", false, "give every dashboard session access to every path")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if showVersion {
		version.Print("rillrate-node")
		return nil
	}
	if flagSet.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", flagSet.Arg(0))
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if unlockAll {
		cfg.Access.UnlockAll = true
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	nodeConfig, err := nodeConfigFrom(cfg)
	if err != nil {
		return err
	}
	level, err := process.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	nodeConfig.Logger = process.NewLogger(level)

	ctx, stop := process.SignalContext()
	defer stop()
	return node.NewServer(nodeConfig).Run(ctx)
}

func loadConfig(path string) (*config.Config, error) {
	switch {
	case path != "":
		return config.LoadFile(path)
	case os.Getenv(config.EnvironmentVariable) != "":
		return config.Load()
	default:
		return config.Default(), nil
	}
}

func nodeConfigFrom(cfg *config.Config) (node.Config, error) {
	allowed := make([]ref.Path, 0, len(cfg.Access.AllowedPaths))
	for _, text := range cfg.Access.AllowedPaths {
		path, err := ref.ParsePath(text)
		if err != nil {
			return node.Config{}, fmt.Errorf("access.allowed_paths: %w", err)
		}
		allowed = append(allowed, path)
	}
	return node.Config{
		Name:                 cfg.Node.Name,
		ProviderAddress:      cfg.Node.ProviderAddress,
		HTTPAddress:          cfg.Node.HTTPAddress,
		WebSocketPath:        cfg.Node.WebSocketPath,
		MetricsPath:          cfg.Node.MetricsPath,
		StatusPath:           cfg.Node.StatusPath,
		ProviderLimit:        admission.Limit{Total: cfg.Limits.Providers},
		ClientLimit:          admission.Limit{Total: cfg.Limits.Clients},
		UnlockAll:            cfg.Access.UnlockAll,
		AllowedPaths:         allowed,
		HeartbeatInterval:    cfg.Stream.HeartbeatInterval,
		CompressionThreshold: cfg.Stream.CompressionThreshold,
	}, nil
}
