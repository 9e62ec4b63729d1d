// Package tuning resolves the adjustable parameters (tunings) that matched
// capability nodes depend on.
//
// For every matched node pair with a dependency on either side, the Resolver
// keeps a Restriction per tuning: the candidates still considered feasible.
// One-sided pairs filter the tuning against the fixed opposite node. Two-sided
// pairs are linked, and a candidate survives only while some surviving
// candidate on the other side witnesses it. Removing a value cascades through
// the links until every survivor is witnessed again or a candidate set
// empties, which fails the edge with ErrInfeasible.
//
// A tuning with a single survivor has its value pinned. Fix pins the rest to
// their first surviving candidate once the whole chain has matched.
package tuning
