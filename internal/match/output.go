package match

import "github.com/ironsheep/image-pipeline/internal/meta"

// ConstructOutputTree builds the capability tree visible downstream of the
// sink filter of an edge.
//
// The tree below root is copied. A source node matched to a sink node that
// names a replacement is substituted by a copy of the replacement subtree.
// Every original node, replacement or source alike, is copied at most once,
// so a replacement shared by several matched nodes is shared in the output.
// A leaf replacement keeps the children of the source node it replaces.
//
// The returned slice lists every allocated copy; the caller owns them.
func (m *Matcher) ConstructOutputTree(root meta.ID, pairs []Pair) (meta.ID, []meta.ID) {
	b := &outputBuilder{
		arena:  m.arena,
		sinkOf: make(map[meta.ID]meta.ID, len(pairs)),
		memo:   make(map[meta.ID]meta.ID),
	}
	for _, p := range pairs {
		b.sinkOf[p.Source] = p.Sink
	}
	out := b.build(root)
	return out, b.copies
}

type outputBuilder struct {
	arena  *meta.Arena
	sinkOf map[meta.ID]meta.ID
	memo   map[meta.ID]meta.ID
	copies []meta.ID
}

func (b *outputBuilder) copyOf(id meta.ID) (meta.ID, bool) {
	if cp, ok := b.memo[id]; ok {
		return cp, true
	}
	cp := b.arena.Copy(id)
	b.memo[id] = cp
	b.copies = append(b.copies, cp)
	return cp, false
}

func (b *outputBuilder) build(src meta.ID) meta.ID {
	if sink, ok := b.sinkOf[src]; ok {
		if rep := b.arena.Node(sink).ReplacedBy; rep != meta.None {
			cp, seen := b.copyOf(rep)
			if seen {
				return cp
			}
			if len(b.arena.Node(rep).Children) > 0 {
				b.copyChildren(cp, rep)
			} else {
				b.buildChildren(cp, src)
			}
			return cp
		}
	}
	cp, seen := b.copyOf(src)
	if !seen {
		b.buildChildren(cp, src)
	}
	return cp
}

func (b *outputBuilder) buildChildren(dst, src meta.ID) {
	for _, c := range b.arena.Node(src).Children {
		b.arena.Attach(dst, b.build(c))
	}
}

// copyChildren copies a replacement subtree verbatim.
func (b *outputBuilder) copyChildren(dst, src meta.ID) {
	for _, c := range b.arena.Node(src).Children {
		cp, seen := b.copyOf(c)
		if !seen {
			b.copyChildren(cp, c)
		}
		b.arena.Attach(dst, cp)
	}
}
