// Copyright 2026 The Rillrate Authors
// SPDX-License-Identifier: Apache-2.0

// Package admission decides who may connect and what each connected
// dashboard may see.
//
// Two independent knobs exist. A [ConnectionLimiter] bounds the number
// of concurrent connections of one class (providers or clients).
// Lowering its limit never closes anything by itself: SetLimit hands
// back the connections above the new limit and the caller interrupts
// them. A [SessionAcl] restricts which paths one dashboard session may
// subscribe to; it starts fully locked and can be opened path by path
// or, for local trusted sessions, all at once.
package admission
