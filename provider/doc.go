// Copyright 2026 The Rillrate Authors
// SPDX-License-Identifier: Apache-2.0

// Package provider connects a process's engine.Hub to a node.
//
// A link announces every visible path of the hub's registry to the
// node as it appears and disappears, and serves the subscriptions and
// actions the node relays on behalf of dashboards. Streams are served
// straight from the hub's recorders, so a dashboard behind the node
// sees exactly what an in-process subscriber sees.
//
// [Serve] runs one link over an established connection. [Run] dials
// and re-dials a node address until its context ends; every new
// connection starts from fresh snapshots, which is how a dropped link
// resynchronizes.
package provider
