// Copyright 2026 The Rillrate Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"runtime/debug"
)

// Set with -ldflags -X. Fields left at their defaults are filled from
// the VCS stamp the go command embeds in the binary.
var (
	GitCommit = "unknown"
	GitDirty  = "false"
	BuildTime = "unknown"
	Version   = "0.1.0-dev"
)

// build is the resolved stamp of the running binary.
type build struct {
	commit string
	dirty  bool
	time   string
}

func current() build {
	b := build{commit: GitCommit, dirty: GitDirty == "true", time: BuildTime}
	if info, ok := debug.ReadBuildInfo(); ok {
		b = b.withSettings(info.Settings)
	}
	return b
}

// withSettings fills the fields that -ldflags left unset from the
// vcs.* build settings.
func (b build) withSettings(settings []debug.BuildSetting) build {
	if b.commit != "unknown" {
		return b
	}
	for _, setting := range settings {
		switch setting.Key {
		case "vcs.revision":
			b.commit = setting.Value
			if len(b.commit) > 7 {
				b.commit = b.commit[:7]
			}
		case "vcs.modified":
			b.dirty = setting.Value == "true"
		case "vcs.time":
			if b.time == "unknown" {
				b.time = setting.Value
			}
		}
	}
	return b
}

func (b build) String() string {
	dirty := ""
	if b.dirty {
		dirty = "-dirty"
	}
	return fmt.Sprintf("%s (%s%s, %s)", Version, b.commit, dirty, b.time)
}

// Info returns the one-line version, e.g. "0.1.0-dev (abc1234-dirty,
// 2026-01-02T03:04:05Z)".
func Info() string {
	return current().String()
}

// Full is Info followed by the Go version and platform.
func Full() string {
	return fmt.Sprintf("%s\n  Go: %s\n  Platform: %s/%s",
		Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// Print writes the --version output of binary to stdout.
func Print(binary string) {
	Fprint(os.Stdout, binary)
}

// Fprint writes "<binary> <Full>" to w.
func Fprint(w io.Writer, binary string) {
	fmt.Fprintf(w, "%s %s\n", binary, Full())
}
