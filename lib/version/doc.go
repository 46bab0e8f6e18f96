// Copyright 2026 The Rillrate Authors
// SPDX-License-Identifier: Apache-2.0

// Package version provides build version information for rillrate
// binaries.
//
// Four package-level variables are injected at build time via
// -ldflags -X:
//
//   - [GitCommit] -- short git SHA of the build
//   - [GitDirty] -- "true" if there were uncommitted changes
//   - [BuildTime] -- UTC timestamp of the build
//   - [Version] -- semantic version string (set manually for releases)
//
// A plain "go build" inside a git checkout needs no flags: when
// GitCommit is left at "unknown", the commit, dirty flag and commit
// time come from the vcs.* settings the go command embeds. Test
// binaries carry no such stamp and report "unknown". [Info] and [Full]
// format the result; [Print] writes the line a binary prints for
// --version.
package version
