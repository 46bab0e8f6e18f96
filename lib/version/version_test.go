// Copyright 2026 The Rillrate Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"bytes"
	"runtime/debug"
	"strings"
	"testing"
)

func TestInfoMarksDirtyBuilds(t *testing.T) {
	savedCommit, savedDirty := GitCommit, GitDirty
	t.Cleanup(func() { GitCommit, GitDirty = savedCommit, savedDirty })

	GitCommit, GitDirty = "abc1234", "true"
	if info := Info(); !strings.Contains(info, "abc1234-dirty") {
		t.Fatalf("Info() = %q, want dirty marker", info)
	}
	GitDirty = "false"
	if info := Info(); strings.Contains(info, "-dirty") {
		t.Fatalf("Info() = %q, want no dirty marker", info)
	}
}

func TestFprintNamesBinary(t *testing.T) {
	var buffer bytes.Buffer
	Fprint(&buffer, "rillrate-node")
	output := buffer.String()
	if !strings.HasPrefix(output, "rillrate-node "+Version) {
		t.Fatalf("output = %q", output)
	}
	if !strings.Contains(output, "Go: ") {
		t.Fatalf("output lacks Go version: %q", output)
	}
}

func TestBuildSettingsFillUnsetStamp(t *testing.T) {
	settings := []debug.BuildSetting{
		{Key: "vcs", Value: "git"},
		{Key: "vcs.revision", Value: "0123456789abcdef"},
		{Key: "vcs.modified", Value: "true"},
		{Key: "vcs.time", Value: "2026-01-02T03:04:05Z"},
	}

	unset := build{commit: "unknown", time: "unknown"}.withSettings(settings)
	if unset.commit != "0123456" || !unset.dirty || unset.time != "2026-01-02T03:04:05Z" {
		t.Fatalf("stamp from settings = %+v", unset)
	}

	injected := build{commit: "feedbee", time: "yesterday"}.withSettings(settings)
	if injected.commit != "feedbee" || injected.dirty || injected.time != "yesterday" {
		t.Fatalf("ldflags stamp overridden: %+v", injected)
	}
}
