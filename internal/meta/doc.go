// Package meta provides the capability tree used to describe what a filter
// requires on its input and what it provides on its output.
//
// Nodes are stored in an Arena and addressed by ID handles. Every cross
// reference between nodes (children, tuning dependencies, output
// replacements) is an ID, so shared subtrees and self-anchored tunings are
// safe and two references denote the same node exactly when their IDs are
// equal.
//
// # Node States
//
// A node is in one of three states:
//   - Resolved: Value holds a concrete value of the node's Kind
//   - Selectable: Allowed holds an ordered, non-empty candidate set
//   - Open: neither is set; an open requirement accepts any source
//
// # Tunings
//
// A tuning is a selectable node that anchors itself (DependsOn equals its own
// ID). Other nodes depending on the tuning compute their value from the
// tuning's pinned value through Derive, or take it verbatim when Derive is nil.
// DependsOn chains never form a cycle longer than a self-reference.
package meta
