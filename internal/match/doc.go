// Package match pairs a filter's input requirement tree with the capability
// tree offered by its upstream filter and derives the tree visible past the
// filter.
package match
