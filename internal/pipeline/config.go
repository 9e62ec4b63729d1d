package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ironsheep/image-pipeline/internal/filter"
	"github.com/ironsheep/image-pipeline/internal/meta"
)

// edge is one connection of the original chain together with the adapters
// currently inserted into it.
type edge struct {
	source, sink *filter.Filter

	adapters []*filter.Filter
	seq      []int
	search   *insertionSearch
}

func (e *edge) key() edgeKey {
	return edgeKey{source: e.source.ID, sink: e.sink.ID}
}

func (e *edge) String() string {
	return fmt.Sprintf("%s -> %s", e.source, e.sink)
}

type edgeKey struct {
	source, sink filter.ID
}

// Config is the resolved state of a configured chain. It is owned by the
// chain and only touched under the chain lock.
type Config struct {
	edges []*edge
	path  []*filter.Filter

	// trees maps each live filter to the capability tree visible downstream
	// of it: the source's own output tree, derived copies for the others.
	trees map[filter.ID]meta.ID

	// applied lists requirement nodes that borrowed a value from upstream.
	applied []meta.ID
	// copies lists every node allocated for derived output trees.
	copies []meta.ID

	hash     uint64
	attempts int
}

func newConfig(orig []*filter.Filter) *Config {
	cfg := &Config{trees: make(map[filter.ID]meta.ID)}
	for i := 0; i+1 < len(orig); i++ {
		cfg.edges = append(cfg.edges, &edge{source: orig[i], sink: orig[i+1]})
	}
	cfg.path = cfg.livePath()
	return cfg
}

// livePath lists the live chain, source first.
func (cfg *Config) livePath() []*filter.Filter {
	var path []*filter.Filter
	for _, e := range cfg.edges {
		path = append(path, e.source)
		path = append(path, e.adapters...)
	}
	if n := len(cfg.edges); n > 0 {
		path = append(path, cfg.edges[n-1].sink)
	}
	return path
}

// locate maps live connection conn (path[conn] -> path[conn+1]) to its
// original edge. rel counts the edge's adapters up to and including
// path[conn].
func (cfg *Config) locate(conn int) (*edge, int) {
	for _, e := range cfg.edges {
		n := len(e.adapters) + 1
		if conn < n {
			return e, conn
		}
		conn -= n
	}
	return nil, 0
}

// configure runs match passes until the chain resolves or the insertion
// search gives up. On failure every trace of the attempt is gone.
func (c *Chain) configure(ctx context.Context) (*Config, error) {
	orig, err := c.graph.OrigPath(c.sink)
	if err != nil {
		return nil, err
	}
	if len(orig) < 2 || !orig[0].Source() {
		return nil, fmt.Errorf("%w: chain ends at %s", ErrNoSource, orig[0])
	}

	cfg := newConfig(orig)
	if err := c.relink(cfg); err != nil {
		c.unwind(cfg)
		return nil, err
	}

	for {
		if err := ctx.Err(); err != nil {
			c.unwind(cfg)
			return nil, err
		}
		cfg.attempts++

		conn, err := c.pass(cfg)
		if err == nil {
			break
		}
		if conn < 0 {
			c.unwind(cfg)
			return nil, err
		}

		e, rel := cfg.locate(conn)
		seq, ok := c.advance(e, rel)
		c.log.Debug("edge failed",
			zap.Stringer("edge", e),
			zap.Strings("adapters", c.names(e.seq)),
			zap.Int("position", rel),
			zap.Strings("next", c.names(seq)),
			zap.Error(err))
		if !ok {
			c.unwind(cfg)
			return nil, fmt.Errorf("%w: %s: %w", ErrInsertionExhausted, e, err)
		}

		c.reset(cfg)
		c.replaceAdapters(e, seq)
		if err := c.relink(cfg); err != nil {
			c.unwind(cfg)
			return nil, err
		}
	}

	if err := c.finish(cfg); err != nil {
		c.unwind(cfg)
		return nil, err
	}
	for _, e := range cfg.edges {
		if len(e.seq) > 0 {
			c.memo[e.key()] = append([]int(nil), e.seq...)
		}
	}
	return cfg, nil
}

// advance picks the adapter sequence to try next on e after a failure at
// position rel.
func (c *Chain) advance(e *edge, rel int) ([]int, bool) {
	if e.search == nil {
		e.search = newInsertionSearch(len(c.adapters), c.maxInsert, c.memo[e.key()])
		return e.search.first()
	}
	return e.search.next(rel)
}

// replaceAdapters swaps the adapters of e for fresh filters built from seq.
func (c *Chain) replaceAdapters(e *edge, seq []int) {
	c.removeAdapters(e)
	for _, i := range seq {
		f := c.graph.Add(c.adapters[i])
		f.Inserted = true
		e.adapters = append(e.adapters, f)
	}
	e.seq = seq
}

func (c *Chain) removeAdapters(e *edge) {
	for _, f := range e.adapters {
		if err := c.graph.Remove(f.ID); err != nil {
			c.log.DPanic("removing adapter", zap.Stringer("filter", f), zap.Error(err))
		}
	}
	e.adapters, e.seq = nil, nil
}

// relink rebuilds the live topology from the edges.
func (c *Chain) relink(cfg *Config) error {
	c.graph.ClearLive()
	cfg.path = cfg.livePath()
	for i := 0; i+1 < len(cfg.path); i++ {
		if _, err := c.graph.ConnectLive(cfg.path[i].ID, cfg.path[i+1].ID); err != nil {
			return err
		}
	}
	return nil
}

// pass matches every live connection in order. A failing connection is
// returned with its index; -1 marks a failure no adapter can repair.
func (c *Chain) pass(cfg *Config) (int, error) {
	a := c.graph.Arena()
	src := cfg.path[0]
	if src.InputFixed != nil {
		if err := src.InputFixed(src); err != nil {
			return -1, fmt.Errorf("%s: %w", src, err)
		}
	}

	tree := src.Out
	cfg.trees[src.ID] = tree
	for i := 0; i+1 < len(cfg.path); i++ {
		sink := cfg.path[i+1]

		_, pairs, err := c.matcher.GetMatches(tree, sink.In)
		if err != nil {
			return i, err
		}
		for _, p := range pairs {
			if err := c.resolver.Restrict(p.Source, p.Sink); err != nil {
				return i, err
			}
		}
		for _, p := range pairs {
			if c.borrow(a, p.Source, p.Sink) {
				cfg.applied = append(cfg.applied, p.Sink)
			}
		}
		if sink.InputFixed != nil {
			if err := sink.InputFixed(sink); err != nil {
				return i, fmt.Errorf("%s: %w", sink, err)
			}
		}
		if sink.Sink() {
			break
		}

		out, copies := c.matcher.ConstructOutputTree(tree, pairs)
		cfg.copies = append(cfg.copies, copies...)
		cfg.trees[sink.ID] = out
		tree = out
	}
	return 0, nil
}

// borrow gives an open requirement node the resolved value of the source
// node it matched.
func (c *Chain) borrow(a *meta.Arena, source, sink meta.ID) bool {
	n := a.Node(sink)
	if n.Kind == meta.KindBundle || n.Value != nil || len(n.Allowed) > 0 || n.DependsOn != meta.None {
		return false
	}
	v := filter.ResolvedValue(a, source)
	if v == nil {
		return false
	}
	n.Value = v
	return true
}

// finish pins the remaining tunings, derives layouts, runs TunesFixed and
// computes stage hashes.
func (c *Chain) finish(cfg *Config) error {
	if err := c.resolver.Fix(); err != nil {
		return err
	}

	a := c.graph.Arena()
	recalc := func(root meta.ID) {
		a.Walk(root, func(id meta.ID, n *meta.Node) bool {
			if n.DependsOn != meta.None && n.DependsOn != id {
				a.Recalc(id)
			}
			return true
		})
	}
	for _, f := range cfg.path {
		recalc(f.In)
		recalc(f.Out)
		if t, ok := cfg.trees[f.ID]; ok {
			recalc(t)
		}
	}

	for i, f := range cfg.path {
		if i > 0 {
			f.Input = filter.LayoutOf(a, cfg.trees[cfg.path[i-1].ID])
		}
		if f.Sink() {
			f.Output = f.Input
		} else {
			f.Output = filter.LayoutOf(a, cfg.trees[f.ID])
		}
	}

	for _, f := range cfg.path {
		if f.TunesFixed == nil {
			continue
		}
		if err := f.TunesFixed(f); err != nil {
			return fmt.Errorf("%s: %w", f, err)
		}
	}

	var h uint64
	for _, f := range cfg.path {
		h = stageHash(h, f)
		f.Hash = h
	}
	cfg.hash = h
	return nil
}

// reset undoes one pass: borrowed values, tuning pins, derived trees and
// layouts. Inserted adapters and live connections stay.
func (c *Chain) reset(cfg *Config) {
	a := c.graph.Arena()
	for _, id := range cfg.applied {
		if n := a.Node(id); n != nil {
			n.Value = nil
		}
	}
	cfg.applied = nil

	c.resolver.Reset()
	for _, f := range cfg.path {
		a.UndoTunings(f.In)
		a.UndoTunings(f.Out)
		for _, t := range f.Tunes {
			a.UndoTunings(t)
		}
		f.Hash = 0
		f.Input, f.Output = filter.Layout{}, filter.Layout{}
	}

	a.Free(cfg.copies...)
	cfg.copies = nil
	clear(cfg.trees)
	cfg.hash = 0
}

// unwind resets the pass, deletes inserted adapters and clears the live
// topology.
func (c *Chain) unwind(cfg *Config) {
	c.reset(cfg)
	for _, e := range cfg.edges {
		c.removeAdapters(e)
	}
	c.graph.ClearLive()
	cfg.path = cfg.livePath()
}

func (c *Chain) names(seq []int) []string {
	out := make([]string, len(seq))
	for i, idx := range seq {
		out[i] = c.adapters[idx].ShortName
	}
	return out
}
