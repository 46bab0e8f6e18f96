// Copyright 2026 The Rillrate Authors
// SPDX-License-Identifier: Apache-2.0

package flows

import (
	"github.com/rillrate-fossil/rillrate-sub001/flow"
	"github.com/rillrate-fossil/rillrate-sub001/frame"
)

// LoggerStreamType identifies logger streams.
const LoggerStreamType flow.StreamType = "rillrate.data.logger.v0"

// DefaultLoggerSize is the line capacity of NewLoggerState(0).
const DefaultLoggerSize = 100

// Logger keeps the most recent text lines.
type Logger struct{}

// LoggerState holds at most Lines.Size() lines, oldest first.
type LoggerState struct {
	Lines *frame.Frame[string] `cbor:"lines"`
}

// NewLoggerState returns an empty log. size <= 0 selects
// DefaultLoggerSize.
func NewLoggerState(size int) LoggerState {
	if size <= 0 {
		size = DefaultLoggerSize
	}
	return LoggerState{Lines: frame.New[string](size)}
}

// LoggerEvent appends Line.
type LoggerEvent struct {
	Line string `cbor:"line"`
}

// Log returns an event appending line.
func Log(line string) LoggerEvent { return LoggerEvent{Line: line} }

func (Logger) StreamType() flow.StreamType { return LoggerStreamType }

func (Logger) Apply(state *LoggerState, event LoggerEvent) error {
	if state.Lines == nil {
		*state = NewLoggerState(0)
	}
	state.Lines.Insert(event.Line)
	return nil
}
