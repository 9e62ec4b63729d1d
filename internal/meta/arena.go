package meta

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ID addresses a node inside an Arena.
type ID int32

// None is the null node handle.
const None ID = -1

// ErrDependencyCycle is returned when a tuning dependency would form a cycle
// longer than a self-reference.
var ErrDependencyCycle = errors.New("meta: dependency cycle")

// ErrNoNode is returned for a handle that addresses no live node.
var ErrNoNode = errors.New("meta: no such node")

// DeriveFunc computes a dependent node's value from the value of its tuning anchor.
type DeriveFunc func(anchor Value) Value

// Node is one capability or requirement attribute.
type Node struct {
	Kind  Kind
	Name  string
	Value Value

	// Allowed is the ordered candidate set of a selectable node.
	Allowed []Value

	// DependsOn names the tuning anchor this node's value is computed from.
	// A tuning node anchors itself.
	DependsOn ID

	// ReplacedBy links an input-tree node to the output-tree node that
	// supersedes it downstream of the owning filter.
	ReplacedBy ID

	Children []ID
	Owner    int

	// Optional exempts a requirement child from needing a source counterpart.
	Optional bool

	Derive DeriveFunc
}

// Resolved reports whether the node carries a concrete value.
func (n *Node) Resolved() bool {
	return n.Value != nil
}

// Selectable reports whether the node carries a non-empty candidate set.
func (n *Node) Selectable() bool {
	return len(n.Allowed) > 0
}

// IsTune reports whether the node is a self-anchored tuning.
func (n *Node) IsTune(id ID) bool {
	return n.DependsOn == id
}

// Arena stores capability nodes for one filter graph. Handles stay valid until
// the node is freed; freed slots are recycled.
//
// Allocation and lookup are safe for concurrent use. Node fields are mutated
// only by the configuration engine while it holds the owning chain's lock.
type Arena struct {
	mu    sync.RWMutex
	nodes []*Node
	free  []ID
	live  int
}

// NewArena returns an empty arena.
func NewArena() *Arena {
	return &Arena{}
}

func (a *Arena) alloc(n *Node) ID {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.live++
	if k := len(a.free); k > 0 {
		id := a.free[k-1]
		a.free = a.free[:k-1]
		a.nodes[id] = n
		return id
	}
	a.nodes = append(a.nodes, n)
	return ID(len(a.nodes) - 1)
}

// New allocates an unresolved node of the given kind.
func (a *Arena) New(kind Kind, owner int) ID {
	return a.alloc(&Node{Kind: kind, Owner: owner, DependsOn: None, ReplacedBy: None})
}

// NewValue allocates a resolved node.
func (a *Arena) NewValue(kind Kind, owner int, v Value) ID {
	id := a.New(kind, owner)
	a.Node(id).Value = v
	return id
}

// NewSelect allocates a selectable node with the given candidates.
func (a *Arena) NewSelect(kind Kind, owner int, values ...Value) ID {
	id := a.New(kind, owner)
	a.Node(id).Allowed = append([]Value(nil), values...)
	return id
}

// NewTune allocates a self-anchored selectable tuning node.
func (a *Arena) NewTune(kind Kind, owner int, values ...Value) ID {
	id := a.NewSelect(kind, owner, values...)
	a.Node(id).DependsOn = id
	return id
}

// NewChannel allocates a channel node carrying its 1-based index.
func (a *Arena) NewChannel(owner int, index int) ID {
	return a.NewValue(KindChannel, owner, index)
}

// Node returns the node for id, or nil for None and freed handles.
func (a *Arena) Node(id ID) *Node {
	if id < 0 {
		return nil
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if int(id) >= len(a.nodes) {
		return nil
	}
	return a.nodes[id]
}

// Len returns the number of live nodes.
func (a *Arena) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.live
}

// Attach appends child to parent's children.
func (a *Arena) Attach(parent, child ID) {
	p := a.Node(parent)
	p.Children = append(p.Children, child)
}

// SetReplacedBy links an input node to its output replacement.
func (a *Arena) SetReplacedBy(id, target ID) {
	a.Node(id).ReplacedBy = target
}

// SetDependsOn makes id's value depend on anchor. Self-reference is allowed,
// any longer cycle is rejected.
func (a *Arena) SetDependsOn(id, anchor ID) error {
	n := a.Node(id)
	if n == nil {
		return fmt.Errorf("%w: %d", ErrNoNode, id)
	}
	if id != anchor {
		seen := map[ID]bool{id: true}
		for cur := anchor; cur != None; {
			if seen[cur] {
				return fmt.Errorf("%w: node %d -> %d", ErrDependencyCycle, id, anchor)
			}
			seen[cur] = true
			c := a.Node(cur)
			if c == nil {
				return fmt.Errorf("%w: anchor %d of node %d", ErrNoNode, cur, id)
			}
			next := c.DependsOn
			if next == cur {
				break
			}
			cur = next
		}
	}
	n.DependsOn = anchor
	return nil
}

// Copy allocates a shallow copy of id: kind, name, value, candidates, owner,
// dependency and derivation are kept; children and replacement are not.
func (a *Arena) Copy(id ID) ID {
	src := a.Node(id)
	cp := &Node{
		Kind:       src.Kind,
		Name:       src.Name,
		Value:      src.Value,
		DependsOn:  src.DependsOn,
		ReplacedBy: None,
		Owner:      src.Owner,
		Optional:   src.Optional,
		Derive:     src.Derive,
	}
	if len(src.Allowed) > 0 {
		cp.Allowed = append([]Value(nil), src.Allowed...)
	}
	return a.alloc(cp)
}

// Free releases nodes. Freed handles must not be used again.
func (a *Arena) Free(ids ...ID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, id := range ids {
		if id < 0 || int(id) >= len(a.nodes) || a.nodes[id] == nil {
			continue
		}
		a.nodes[id] = nil
		a.free = append(a.free, id)
		a.live--
	}
}

// Walk visits every node reachable from root once, depth first, parents
// before children. Returning false from fn skips the node's children.
func (a *Arena) Walk(root ID, fn func(ID, *Node) bool) {
	seen := make(map[ID]bool)
	var visit func(ID)
	visit = func(id ID) {
		if id == None || seen[id] {
			return
		}
		seen[id] = true
		n := a.Node(id)
		if n == nil || !fn(id, n) {
			return
		}
		for _, c := range n.Children {
			visit(c)
		}
	}
	visit(root)
}

// Collect returns every node reachable from root.
func (a *Arena) Collect(root ID) []ID {
	var ids []ID
	a.Walk(root, func(id ID, _ *Node) bool {
		ids = append(ids, id)
		return true
	})
	return ids
}

// ResolvedValue returns the value id would hold if its tuning anchor held anchor.
func (a *Arena) ResolvedValue(id ID, anchor Value) Value {
	n := a.Node(id)
	if n.DependsOn == None || anchor == nil {
		return n.Value
	}
	if n.Derive != nil {
		return n.Derive(anchor)
	}
	return anchor
}

// Recalc recomputes a dependent node's value from its anchor's current value.
func (a *Arena) Recalc(id ID) {
	n := a.Node(id)
	if n.DependsOn == None || n.DependsOn == id {
		return
	}
	n.Value = a.ResolvedValue(id, a.Node(n.DependsOn).Value)
}

// UndoTunings clears the pinned value of every dependent node below root and
// of the tunings they depend on.
func (a *Arena) UndoTunings(root ID) {
	a.Walk(root, func(id ID, n *Node) bool {
		if n.DependsOn != None {
			if anchor := a.Node(n.DependsOn); anchor != nil {
				anchor.Value = nil
			}
			n.Value = nil
		}
		return true
	})
}

// Describe formats a node as "kind[name]=value" or "kind{a,b}".
func (a *Arena) Describe(id ID) string {
	n := a.Node(id)
	if n == nil {
		return "<nil>"
	}
	var b strings.Builder
	b.WriteString(n.Kind.String())
	if n.Name != "" {
		fmt.Fprintf(&b, "[%s]", n.Name)
	}
	switch {
	case n.Value != nil:
		fmt.Fprintf(&b, "=%v", n.Value)
	case len(n.Allowed) > 0:
		parts := make([]string, len(n.Allowed))
		for i, v := range n.Allowed {
			parts[i] = fmt.Sprint(v)
		}
		fmt.Fprintf(&b, "{%s}", strings.Join(parts, ","))
	}
	if n.DependsOn != None {
		b.WriteString("~")
	}
	return b.String()
}

// Format renders the tree below root, one node per line.
func (a *Arena) Format(root ID) string {
	var b strings.Builder
	var visit func(ID, int)
	visit = func(id ID, depth int) {
		b.WriteString(strings.Repeat("  ", depth))
		b.WriteString(a.Describe(id))
		b.WriteByte('\n')
		if n := a.Node(id); n != nil {
			for _, c := range n.Children {
				visit(c, depth+1)
			}
		}
	}
	visit(root, 0)
	return b.String()
}
