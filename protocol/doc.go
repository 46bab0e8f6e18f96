// Copyright 2026 The Rillrate Authors
// SPDX-License-Identifier: Apache-2.0

// Package protocol defines the two wire protocols of rillrate.
//
// Dashboards talk to a node over WebSocket. Each binary WebSocket
// message carries one CBOR envelope: a [Request] from the dashboard or
// a [Response] from the node. Requests are correlated with their
// responses by a [DirectID] that the dashboard assigns, monotonically,
// per connection. The node opens every connection with a Declare
// response carrying the session id and then answers subscriptions
// with State, Delta, Done and Error responses.
//
// Providers talk to a node over a byte stream (TCP or an in-memory
// pipe) using length-prefixed frames (see [WriteFrame]). The provider
// says hello, declares and forgets paths, and answers the requests the
// node relays to it with the same [Response] envelopes dashboards
// receive.
//
// Flow states and deltas travel as opaque [codec.Payload] values in the
// flow's own encoding, compressed when large. The transport never
// decodes them.
package protocol
