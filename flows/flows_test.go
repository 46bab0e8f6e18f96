// Copyright 2026 The Rillrate Authors
// SPDX-License-Identifier: Apache-2.0

package flows

import (
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/rillrate-fossil/rillrate-sub001/flow"
	"github.com/rillrate-fossil/rillrate-sub001/ref"
)

func TestCounterAccumulates(t *testing.T) {
	state := CounterState{}
	delta := flow.Delta[CounterEvent]{
		{Timestamp: 1, Event: Inc(2)},
		{Timestamp: 2, Event: Inc(3)},
	}
	if err := flow.ApplyDelta(Counter{}, &state, delta); err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}
	if state.Total != 5 {
		t.Fatalf("Total = %d, want 5", state.Total)
	}
}

func TestGaugeTracksRange(t *testing.T) {
	state := GaugeState{}
	for _, value := range []float64{5, -1, 3} {
		if err := (Gauge{}).Apply(&state, Set(value)); err != nil {
			t.Fatalf("Apply(%v): %v", value, err)
		}
	}
	want := GaugeState{Value: 3, Min: -1, Max: 5, Observed: true}
	if state != want {
		t.Fatalf("state = %+v, want %+v", state, want)
	}
}

func TestGaugeRejectsNonFiniteAndKeepsState(t *testing.T) {
	state := GaugeState{}
	(Gauge{}).Apply(&state, Set(2))
	before := state
	if err := (Gauge{}).Apply(&state, Set(posInf())); err == nil {
		t.Fatal("expected error for +Inf")
	}
	if state != before {
		t.Fatalf("state changed to %+v", state)
	}
}

func posInf() float64 {
	zero := 0.0
	return 1 / zero
}

func TestPulseEvictsByWindow(t *testing.T) {
	state := NewPulseState(time.Second)
	for _, sample := range []PulseEvent{Push(0, 1), Push(500, 2), Push(1100, 3)} {
		if err := (Pulse{}).Apply(&state, sample); err != nil {
			t.Fatalf("Apply: %v", err)
		}
	}
	if got := state.Samples.Values(); !slices.Equal(got, []float64{2, 3}) {
		t.Fatalf("samples = %v, want [2 3]", got)
	}
}

func TestPulseStateSurvivesPacking(t *testing.T) {
	state := NewPulseState(time.Second)
	(Pulse{}).Apply(&state, Push(10, 1.5))
	data, err := flow.PackState(state)
	if err != nil {
		t.Fatalf("PackState: %v", err)
	}
	restored, err := flow.UnpackState[PulseState](data)
	if err != nil {
		t.Fatalf("UnpackState: %v", err)
	}
	if restored.Samples.Depth() != time.Second {
		t.Fatalf("depth = %v", restored.Samples.Depth())
	}
	if got := restored.Samples.Values(); !slices.Equal(got, []float64{1.5}) {
		t.Fatalf("samples = %v", got)
	}
}

func TestLoggerKeepsLastLines(t *testing.T) {
	state := NewLoggerState(2)
	for _, line := range []string{"a", "b", "c"} {
		(Logger{}).Apply(&state, Log(line))
	}
	if got := state.Lines.Items(); !slices.Equal(got, []string{"b", "c"}) {
		t.Fatalf("lines = %v", got)
	}
}

func TestLoggerZeroStateIsUsable(t *testing.T) {
	var state LoggerState
	if err := (Logger{}).Apply(&state, Log("x")); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if state.Lines.Size() != DefaultLoggerSize || state.Lines.Len() != 1 {
		t.Fatalf("size %d len %d", state.Lines.Size(), state.Lines.Len())
	}
}

func TestSelectorUnknownOptionKeepsLastGoodValue(t *testing.T) {
	state := NewSelectorState("mode", "fast", "slow")
	if err := (Selector{}).Apply(&state, Select("slow")); err != nil {
		t.Fatalf("Apply(slow): %v", err)
	}
	err := (Selector{}).Apply(&state, Select("turbo"))
	if !errors.Is(err, ErrUnknownOption) {
		t.Fatalf("error = %v, want ErrUnknownOption", err)
	}
	if state.Selected != "slow" {
		t.Fatalf("Selected = %q, want slow", state.Selected)
	}
}

func TestPathsAddRemove(t *testing.T) {
	state := NewPathsState()
	cpu := flow.Description{Path: ref.PathOf("app", "sys", "cpu"), Layer: flow.LayerVisual, StreamType: GaugeStreamType}
	mem := flow.Description{Path: ref.PathOf("app", "sys", "mem"), Layer: flow.LayerVisual, StreamType: GaugeStreamType}
	mode := flow.Description{Path: ref.PathOf("app", "ctl", "mode"), Layer: flow.LayerControl, StreamType: SelectorStreamType}
	meta := flow.Description{Path: PathsPath, Layer: flow.LayerTransparent, StreamType: PathsStreamType}

	for _, description := range []flow.Description{cpu, mem, mode, meta} {
		if err := (Paths{}).Apply(&state, AddPath(description)); err != nil {
			t.Fatalf("Apply(add %s): %v", description.Path, err)
		}
	}

	if got, ok := state.Lookup(cpu.Path); !ok || got.StreamType != GaugeStreamType {
		t.Fatalf("Lookup(cpu) = %+v, %v", got, ok)
	}

	children := state.Children(ref.PathOf("app"))
	if len(children) != 2 || children[0].String() != "ctl" || children[1].String() != "sys" {
		t.Fatalf("Children(app) = %v", children)
	}

	if top := state.Children(ref.Path{}); len(top) != 1 || top[0].String() != "app" {
		t.Fatalf("Children(root) = %v, want only the visible app segment", top)
	}

	if under := state.Under(ref.PathOf("app", "sys"), false); len(under) != 2 {
		t.Fatalf("Under(app.sys) = %v", under)
	}

	if err := (Paths{}).Apply(&state, RemovePath(mem.Path)); err != nil {
		t.Fatalf("Apply(remove): %v", err)
	}
	if _, ok := state.Lookup(mem.Path); ok {
		t.Fatal("removed path still registered")
	}
}

func TestPathsKeepsPathsWithTheSameText(t *testing.T) {
	state := NewPathsState()
	joined := flow.Description{Path: ref.PathOf("app", "cpu.load"), StreamType: GaugeStreamType}
	split := flow.Description{Path: ref.PathOf("app", "cpu", "load"), StreamType: CounterStreamType}
	for _, description := range []flow.Description{joined, split} {
		if err := (Paths{}).Apply(&state, AddPath(description)); err != nil {
			t.Fatalf("Apply(add %s): %v", description.Path, err)
		}
	}
	if len(state.Descriptions()) != 2 {
		t.Fatalf("Descriptions = %v, want both entries", state.Descriptions())
	}
	if err := (Paths{}).Apply(&state, RemovePath(split.Path)); err != nil {
		t.Fatalf("Apply(remove): %v", err)
	}
	if got, ok := state.Lookup(joined.Path); !ok || got.StreamType != GaugeStreamType {
		t.Fatalf("Lookup(joined) = %+v, %v after removing split", got, ok)
	}
}

func TestPathsRejectsMalformedEvents(t *testing.T) {
	state := NewPathsState()
	if err := (Paths{}).Apply(&state, PathsEvent{}); err == nil {
		t.Fatal("empty event accepted")
	}
	if err := (Paths{}).Apply(&state, AddPath(flow.Description{})); err == nil {
		t.Fatal("empty path accepted")
	}
	if len(state.Entries) != 0 {
		t.Fatalf("entries = %v", state.Entries)
	}
}

func TestPathsFilter(t *testing.T) {
	state := NewPathsState()
	allowed := ref.PathOf("a")
	(Paths{}).Apply(&state, AddPath(flow.Description{Path: allowed}))
	(Paths{}).Apply(&state, AddPath(flow.Description{Path: ref.PathOf("b")}))

	filtered := state.Filter(allowed.Equal)
	if len(filtered.Entries) != 1 {
		t.Fatalf("filtered = %v", filtered.Entries)
	}
	if len(state.Entries) != 2 {
		t.Fatal("Filter modified the source state")
	}
}

func TestRegisterAllKinds(t *testing.T) {
	registry := flow.NewRegistry()
	if err := Register(registry); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if got := len(registry.StreamTypes()); got != 6 {
		t.Fatalf("registered %d stream types, want 6", got)
	}
	if err := Register(registry); err == nil {
		t.Fatal("second Register must fail on duplicates")
	}

	snapshot, err := flow.PackState(CounterState{Total: 4})
	if err != nil {
		t.Fatalf("PackState: %v", err)
	}
	replica, err := registry.Restore(CounterStreamType, snapshot)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	delta, err := flow.PackDelta(flow.Delta[CounterEvent]{{Timestamp: 1, Event: Inc(1)}})
	if err != nil {
		t.Fatalf("PackDelta: %v", err)
	}
	if err := replica.ApplyDelta(delta); err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}
	if got := replica.Value().(CounterState).Total; got != 5 {
		t.Fatalf("Total = %d, want 5", got)
	}
}

func TestReplicaValueIsDetachedFromLaterDeltas(t *testing.T) {
	registry := flow.NewRegistry()
	if err := Register(registry); err != nil {
		t.Fatalf("Register: %v", err)
	}
	initial := NewLoggerState(3)
	(Logger{}).Apply(&initial, Log("first"))
	snapshot, err := flow.PackState(initial)
	if err != nil {
		t.Fatalf("PackState: %v", err)
	}
	replica, err := registry.Restore(LoggerStreamType, snapshot)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}

	before := replica.Value().(LoggerState)
	delta, err := flow.PackDelta(flow.Delta[LoggerEvent]{{Timestamp: 1, Event: Log("second")}})
	if err != nil {
		t.Fatalf("PackDelta: %v", err)
	}
	if err := replica.ApplyDelta(delta); err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}

	if got := before.Lines.Items(); !slices.Equal(got, []string{"first"}) {
		t.Fatalf("earlier value changed to %v", got)
	}
	after := replica.Value().(LoggerState)
	if got := after.Lines.Items(); !slices.Equal(got, []string{"first", "second"}) {
		t.Fatalf("current value = %v", got)
	}
	if after.Lines.Size() != 3 {
		t.Fatalf("copied frame size = %d, want 3", after.Lines.Size())
	}
}
