// Copyright 2026 The Rillrate Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name    string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", 0, true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			level, err := ParseLevel(test.name)
			if (err != nil) != test.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", test.name, err, test.wantErr)
			}
			if err == nil && level != test.want {
				t.Fatalf("ParseLevel(%q) = %v, want %v", test.name, level, test.want)
			}
		})
	}
}
