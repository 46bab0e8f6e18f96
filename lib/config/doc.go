// Copyright 2026 The Rillrate Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the rillrate node.
//
// Configuration is loaded from a single file specified by either the
// RILLRATE_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There are no fallbacks, no ~/.config discovery,
// and no automatic file search.
//
// Files ending in .yaml or .yml are YAML. Files ending in .json or
// .jsonc are JSON extended with comments and trailing commas. Values
// missing from the file keep their [Default].
//
// Variable expansion is performed on address fields after loading:
// ${VAR} and ${VAR:-default} patterns are expanded from the process
// environment. No other environment variables override config values.
//
// Key exports:
//
//   - [Config] -- master struct with Node, Limits, Access, Stream, Log
//   - [Default] -- returns a Config with local defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
//   - [Config.Validate] -- reports every invalid field at once
//
// This package depends on no other rillrate packages.
package config
