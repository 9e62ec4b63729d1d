package filter

import (
	"errors"
	"fmt"
	"slices"

	"github.com/ironsheep/image-pipeline/internal/meta"
)

var (
	// ErrNoFilter is returned for a filter ID that is not part of the graph.
	ErrNoFilter = errors.New("filter: no such filter")

	// ErrBadConnection is returned for a connection the graph cannot hold.
	ErrBadConnection = errors.New("filter: invalid connection")
)

// ConnID identifies a connection.
type ConnID int

// Conn is a directed edge from an output port to an input port.
type Conn struct {
	ID         ConnID
	Source     ID
	SourcePort int
	Sink       ID
	SinkPort   int
}

// Graph holds the filters of one chain, the arena of their capability trees
// and two connection tables: the original topology edited by the user and
// the live topology produced by configuration, which may contain inserted
// adapters.
//
// A Graph is not safe for concurrent use; the owning chain serializes access.
type Graph struct {
	arena   *meta.Arena
	filters map[ID]*Filter
	order   []ID
	nextID  ID

	orig     map[ConnID]*Conn
	live     map[ConnID]*Conn
	nextConn ConnID
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		arena:   meta.NewArena(),
		filters: make(map[ID]*Filter),
		orig:    make(map[ConnID]*Conn),
		live:    make(map[ConnID]*Conn),
	}
}

// Arena returns the arena shared by every filter of the graph.
func (g *Graph) Arena() *meta.Arena {
	return g.arena
}

// Add constructs a filter from core and adds it unconnected.
func (g *Graph) Add(core *Core) *Filter {
	f := &Filter{
		ID:    g.nextID,
		Core:  core,
		In:    meta.None,
		Out:   meta.None,
		arena: g.arena,
	}
	g.nextID++
	if core.Build != nil {
		core.Build(f)
	}
	g.filters[f.ID] = f
	g.order = append(g.order, f.ID)
	return f
}

// Remove deletes a filter, its connections in both topologies and its nodes.
func (g *Graph) Remove(id ID) error {
	f, ok := g.filters[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNoFilter, id)
	}
	for _, table := range []map[ConnID]*Conn{g.orig, g.live} {
		for cid, c := range table {
			if c.Source == id || c.Sink == id {
				delete(table, cid)
			}
		}
	}
	g.arena.Free(f.ownedNodes()...)
	delete(g.filters, id)
	g.order = slices.DeleteFunc(g.order, func(x ID) bool { return x == id })
	return nil
}

// Filter returns the filter with the given ID, or nil.
func (g *Graph) Filter(id ID) *Filter {
	return g.filters[id]
}

// Filters returns every filter in the order they were added.
func (g *Graph) Filters() []*Filter {
	out := make([]*Filter, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.filters[id])
	}
	return out
}

func (g *Graph) connect(table map[ConnID]*Conn, source, sink ID) (ConnID, error) {
	src, snk := g.filters[source], g.filters[sink]
	switch {
	case src == nil || snk == nil:
		return 0, fmt.Errorf("%w: %d -> %d", ErrNoFilter, source, sink)
	case source == sink:
		return 0, fmt.Errorf("%w: %s to itself", ErrBadConnection, src)
	case src.Sink():
		return 0, fmt.Errorf("%w: %s has no output", ErrBadConnection, src)
	case snk.Source():
		return 0, fmt.Errorf("%w: %s has no input", ErrBadConnection, snk)
	}
	for _, c := range table {
		if c.Sink == sink {
			return 0, fmt.Errorf("%w: %s already has an input", ErrBadConnection, snk)
		}
	}
	id := g.nextConn
	g.nextConn++
	table[id] = &Conn{ID: id, Source: source, Sink: sink}
	return id, nil
}

func disconnect(table map[ConnID]*Conn, id ConnID) error {
	if _, ok := table[id]; !ok {
		return fmt.Errorf("%w: no connection %d", ErrBadConnection, id)
	}
	delete(table, id)
	return nil
}

// Connect links source to sink in the original topology.
func (g *Graph) Connect(source, sink ID) (ConnID, error) {
	return g.connect(g.orig, source, sink)
}

// Disconnect removes a connection from the original topology.
func (g *Graph) Disconnect(id ConnID) error {
	return disconnect(g.orig, id)
}

// ConnectLive links source to sink in the live topology.
func (g *Graph) ConnectLive(source, sink ID) (ConnID, error) {
	return g.connect(g.live, source, sink)
}

// DisconnectLive removes a connection from the live topology.
func (g *Graph) DisconnectLive(id ConnID) error {
	return disconnect(g.live, id)
}

// LiveConn returns the live connection from source to sink.
func (g *Graph) LiveConn(source, sink ID) (ConnID, bool) {
	for id, c := range g.live {
		if c.Source == source && c.Sink == sink {
			return id, true
		}
	}
	return 0, false
}

// ClearLive removes every live connection.
func (g *Graph) ClearLive() {
	clear(g.live)
}

// OrigConns returns the original connections in creation order.
func (g *Graph) OrigConns() []Conn {
	out := make([]Conn, 0, len(g.orig))
	for _, c := range g.orig {
		out = append(out, *c)
	}
	slices.SortFunc(out, func(a, b Conn) int { return int(a.ID - b.ID) })
	return out
}

func upstream(table map[ConnID]*Conn, filters map[ID]*Filter, id ID) *Filter {
	for _, c := range table {
		if c.Sink == id {
			return filters[c.Source]
		}
	}
	return nil
}

func downstream(table map[ConnID]*Conn, filters map[ID]*Filter, id ID) []*Filter {
	var out []*Filter
	for _, c := range table {
		if c.Source == id {
			out = append(out, filters[c.Sink])
		}
	}
	slices.SortFunc(out, func(a, b *Filter) int { return int(a.ID - b.ID) })
	return out
}

// Upstream returns the live input of id, or nil.
func (g *Graph) Upstream(id ID) *Filter {
	return upstream(g.live, g.filters, id)
}

// Downstream returns the live consumers of id.
func (g *Graph) Downstream(id ID) []*Filter {
	return downstream(g.live, g.filters, id)
}

// OrigUpstream returns the original input of id, or nil.
func (g *Graph) OrigUpstream(id ID) *Filter {
	return upstream(g.orig, g.filters, id)
}

// OrigDownstream returns the original consumers of id.
func (g *Graph) OrigDownstream(id ID) []*Filter {
	return downstream(g.orig, g.filters, id)
}

func (g *Graph) path(sink ID, up func(ID) *Filter) ([]*Filter, error) {
	f := g.filters[sink]
	if f == nil {
		return nil, fmt.Errorf("%w: %d", ErrNoFilter, sink)
	}
	seen := map[ID]bool{}
	var rev []*Filter
	for f != nil {
		if seen[f.ID] {
			return nil, fmt.Errorf("%w: cycle through %s", ErrBadConnection, f)
		}
		seen[f.ID] = true
		rev = append(rev, f)
		f = up(f.ID)
	}
	slices.Reverse(rev)
	return rev, nil
}

// LivePath returns the live chain ending in sink, source first.
func (g *Graph) LivePath(sink ID) ([]*Filter, error) {
	return g.path(sink, g.Upstream)
}

// OrigPath returns the original chain ending in sink, source first.
func (g *Graph) OrigPath(sink ID) ([]*Filter, error) {
	return g.path(sink, g.OrigUpstream)
}
