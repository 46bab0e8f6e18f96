// Copyright 2026 The Rillrate Authors
// SPDX-License-Identifier: Apache-2.0

// Package client is the dashboard side of the node's websocket
// protocol.
//
// A [Client] holds one session. Each [Subscription] is one stream: it
// yields the flow's packed state first, then deltas, and ends when the
// node sends Done. A [Mirror] keeps a decoded replica of a stream up to
// date using a [flow.Registry], so callers that only know a path can
// still read typed values:
//
//	c, err := client.Dial(ctx, "ws://localhost:9090/live", client.Options{})
//	if err != nil {
//		return err
//	}
//	defer c.Close()
//
//	mirror, err := c.Mirror(ref.PathOf("app", "requests"))
//	if err != nil {
//		return err
//	}
//	for mirror.Next(ctx) == nil {
//		fmt.Println(mirror.Value())
//	}
package client
