// Copyright 2026 The Rillrate Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref defines the hierarchical addresses of flows.
//
// A [Path] is an ordered, non-empty sequence of [EntryID] segments.
// Paths are compared segment by segment, so sorting a set of paths
// groups every subtree together, which is what tree browsing in
// dashboards needs. Segments are interned: the same segment text
// shares one allocation across every path that uses it.
//
// Instrumented code usually names flows with a fixed-depth dotted
// string ("package.dashboard.group.name"). [ParseFixed] and
// [ParseAutoPath] never reject such a name: text that does not split
// into exactly the expected number of segments degrades to a path
// whose leading segments are [Unassigned] and whose last segment is
// the original text, so a badly formed name still produces an
// addressable flow.
//
// Segments starting with '@' are hidden. Hidden paths carry
// infrastructure flows (the path registry, session identities) and
// are left out of normal listings.
package ref
