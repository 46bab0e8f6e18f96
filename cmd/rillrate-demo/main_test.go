// Copyright 2026 The Rillrate Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/rillrate-fossil/rillrate-sub001/engine"
	"github.com/rillrate-fossil/rillrate-sub001/flows"
	"github.com/rillrate-fossil/rillrate-sub001/lib/clock"
	"github.com/rillrate-fossil/rillrate-sub001/lib/codec"
	"github.com/rillrate-fossil/rillrate-sub001/lib/testutil"
	"github.com/rillrate-fossil/rillrate-sub001/ref"
)

func TestDemoDeclaresFlows(t *testing.T) {
	hub := engine.NewHub(engine.HubConfig{
		Clock:  clock.Fake(time.Unix(1_700_000_000, 0)),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	defer hub.Close()

	d, err := newDemo(hub)
	if err != nil {
		t.Fatalf("newDemo: %v", err)
	}
	defer d.close()

	for _, path := range []ref.Path{
		ref.PathOf("demo", "http", "requests"),
		ref.PathOf("demo", "cpu", "load"),
		ref.PathOf("demo", "http", "latency"),
		ref.PathOf("demo", "log"),
		ref.PathOf("demo", "mode"),
	} {
		if _, ok := hub.Lookup(path); !ok {
			t.Errorf("%s not declared", path)
		}
	}
}

func TestDemoModeAction(t *testing.T) {
	hub := engine.NewHub(engine.HubConfig{
		Clock:  clock.Fake(time.Unix(1_700_000_000, 0)),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	defer hub.Close()

	d, err := newDemo(hub)
	if err != nil {
		t.Fatalf("newDemo: %v", err)
	}
	defer d.close()

	payload, err := codec.Marshal(flows.Choose{Value: "storm"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if err := hub.Act(ref.PathOf("demo", "mode"), payload); err != nil {
		t.Fatalf("Act: %v", err)
	}
	if speed := testutil.RequireReceive(t, d.speed, testutil.Timeout, "speed change"); speed != modeSpeeds["storm"] {
		t.Fatalf("speed = %v, want %v", speed, modeSpeeds["storm"])
	}
	d.mode.Read(func(state flows.SelectorState) {
		if state.Selected != "storm" {
			t.Errorf("selected = %q, want storm", state.Selected)
		}
	})
}
