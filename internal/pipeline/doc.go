// Package pipeline configures filter chains.
//
// Configuration walks the original chain from its source to its sink and
// matches every edge: the capability tree visible downstream of the upstream
// filter against the requirement tree of the downstream filter. Matched
// pairs narrow tunings, open requirements borrow upstream values and the
// downstream filter derives the tree it passes on.
//
// # Adapter Insertion
//
// When an edge does not match, adapters from the catalog are inserted into
// it. Sequences are enumerated as a counter over catalog indices, advanced at
// the position where the last attempt failed, and grown up to MaxInsert
// adapters. The sequence that repaired an edge is remembered and tried first
// the next time the same edge fails.
//
// # Lifecycle
//
// A configured chain is pinned by renders with Ref and Unref. Deconfigure
// and Edit requested while renders hold the chain are deferred to the last
// Unref; Configure refuses to run until such a teardown has happened.
package pipeline
