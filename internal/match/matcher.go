package match

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ironsheep/image-pipeline/internal/meta"
)

var (
	// ErrNoCandidate is returned when no source subtree satisfies the sink requirement.
	ErrNoCandidate = errors.New("match: no compatible candidate")

	// ErrAmbiguous is returned when more than one source subtree satisfies the
	// sink requirement.
	ErrAmbiguous = errors.New("match: ambiguous candidates")
)

// Pair is one matched (source, sink) node pair.
type Pair struct {
	Source meta.ID
	Sink   meta.ID
}

// View is the part of a node that takes part in a compatibility test.
type View struct {
	Value   meta.Value
	Allowed []meta.Value
}

// Matcher tests capability trees against requirement trees of one arena.
// A Matcher is not safe for concurrent use; callers hold the chain lock.
type Matcher struct {
	arena *meta.Arena
	log   *zap.Logger
}

// New returns a matcher over arena.
func New(arena *meta.Arena, log *zap.Logger) *Matcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Matcher{arena: arena, log: log}
}

// ViewOf returns the effective view of a node. A node depending on an
// unpinned tuning is seen as selectable over the values its tuning can derive.
func (m *Matcher) ViewOf(id meta.ID) View {
	n := m.arena.Node(id)
	if n.DependsOn == meta.None {
		return View{Value: n.Value, Allowed: n.Allowed}
	}
	tune := m.arena.Node(n.DependsOn)
	if tune.Value != nil {
		return View{Value: m.arena.ResolvedValue(id, tune.Value)}
	}
	if n.DependsOn == id {
		return View{Allowed: n.Allowed}
	}
	derived := make([]meta.Value, 0, len(tune.Allowed))
	for _, v := range tune.Allowed {
		derived = append(derived, m.arena.ResolvedValue(id, v))
	}
	return View{Allowed: derived}
}

// CompatibleViews applies the compatibility rules of kind k to two views.
//
// Two resolved values must compare equal. A resolved value must be a member
// of the opposite candidate set. Two candidate sets must share a value. An
// open sink accepts anything, an open source satisfies only an open sink.
func CompatibleViews(k meta.Kind, source, sink View) bool {
	switch {
	case sink.Value != nil:
		switch {
		case source.Value != nil:
			return k.Equal(source.Value, sink.Value)
		case len(source.Allowed) > 0:
			return k.Contains(source.Allowed, sink.Value)
		}
		return false
	case len(sink.Allowed) > 0:
		switch {
		case source.Value != nil:
			return k.Contains(sink.Allowed, source.Value)
		case len(source.Allowed) > 0:
			return k.Intersects(source.Allowed, sink.Allowed)
		}
		return false
	}
	return true
}

// Compatible reports whether the source node can satisfy the sink node.
func (m *Matcher) Compatible(source, sink meta.ID) bool {
	src, snk := m.arena.Node(source), m.arena.Node(sink)
	if src.Kind != snk.Kind {
		return false
	}
	return CompatibleViews(snk.Kind, m.ViewOf(source), m.ViewOf(sink))
}

// PairCandidates returns every node below source whose kind equals the sink
// root's kind. The search does not descend past a matching node.
func (m *Matcher) PairCandidates(source, sink meta.ID) []meta.ID {
	kind := m.arena.Node(sink).Kind
	var out []meta.ID
	m.arena.Walk(source, func(id meta.ID, n *meta.Node) bool {
		if n.Kind == kind {
			out = append(out, id)
			return false
		}
		return true
	})
	return out
}

// MatchTree verifies that candidate satisfies sink and that every required
// child of sink is satisfied by a direct child of candidate. Matched pairs are
// appended to pairs in post-order. On failure pairs is returned at its
// original length.
func (m *Matcher) MatchTree(candidate, sink meta.ID, pairs []Pair) ([]Pair, bool) {
	if !m.Compatible(candidate, sink) {
		return pairs, false
	}
	mark := len(pairs)
	src, snk := m.arena.Node(candidate), m.arena.Node(sink)

	for _, want := range snk.Children {
		found := false
		for _, have := range src.Children {
			var ok bool
			if pairs, ok = m.MatchTree(have, want, pairs); ok {
				found = true
				break
			}
		}
		if !found && !m.arena.Node(want).Optional {
			return pairs[:mark], false
		}
	}
	return append(pairs, Pair{Source: candidate, Sink: sink}), true
}

// GetMatches finds the single source subtree satisfying the sink requirement
// tree and returns its root with the matched pairs.
//
// Zero candidates fail with ErrNoCandidate. Several candidates break the
// single-match contract: the violation is reported at DPanic level and the
// edge fails with ErrAmbiguous.
func (m *Matcher) GetMatches(source, sink meta.ID) (meta.ID, []Pair, error) {
	root := meta.None
	var pairs []Pair
	found := 0
	for _, cand := range m.PairCandidates(source, sink) {
		p, ok := m.MatchTree(cand, sink, nil)
		if !ok {
			continue
		}
		found++
		if found == 1 {
			root, pairs = cand, p
		}
	}

	switch found {
	case 0:
		return meta.None, nil, fmt.Errorf("%w for %s", ErrNoCandidate, m.arena.Describe(sink))
	case 1:
		m.log.Debug("matched",
			zap.String("source", m.arena.Describe(root)),
			zap.String("sink", m.arena.Describe(sink)),
			zap.Int("pairs", len(pairs)))
		return root, pairs, nil
	}
	m.log.DPanic("multiple compatible candidates",
		zap.String("sink", m.arena.Describe(sink)),
		zap.Int("candidates", found))
	return meta.None, nil, fmt.Errorf("%w: %d for %s", ErrAmbiguous, found, m.arena.Describe(sink))
}
