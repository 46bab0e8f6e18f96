// Copyright 2026 The Rillrate Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"sync/atomic"
)

var uniqueCounter atomic.Uint64

// UniqueID returns "prefix-N" where N increases monotonically across
// the test binary.
//
//	conn := testutil.UniqueID("conn") // "conn-1", "conn-2", ...
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, uniqueCounter.Add(1))
}
