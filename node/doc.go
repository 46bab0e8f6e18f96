// Copyright 2026 The Rillrate Authors
// SPDX-License-Identifier: Apache-2.0

// Package node implements the rillrate node: the meeting point of
// providers, which own flows, and dashboards, which watch them.
//
// Providers connect over TCP (see package provider) and declare their
// paths. The node records every declared path in its own engine.Hub
// registry and routes each dashboard subscription to the provider that
// declared the path, relaying state and delta payloads without
// decoding them. The registry itself is served from the node's hub as
// the hidden @meta.paths stream, filtered per session to the paths the
// session may see.
//
// Dashboards connect over WebSocket. Every connection gets a session
// with its own ACL (package admission) and a Declare greeting naming
// the session. Both connection classes are bounded by a
// ConnectionLimiter; connections over the limit are closed cleanly
// with a reason instead of being served.
//
// The HTTP server that accepts WebSocket connections also serves
// Prometheus metrics and a JSON status document.
//
// Connection model:
//
//	provider ──TCP frames──▶ providerConn ──┐
//	                                        ├─ routes[path] ─▶ session ──WebSocket──▶ dashboard
//	node hub (@meta.paths) ─────────────────┘
package node
