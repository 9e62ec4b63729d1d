package tuning

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ironsheep/image-pipeline/internal/match"
	"github.com/ironsheep/image-pipeline/internal/meta"
)

// ErrInfeasible is returned when propagation empties a tuning's candidate set.
var ErrInfeasible = errors.New("tuning: no feasible value")

// Resolver narrows the candidate sets of tunings exposed across matched edges.
// It holds the restrictions of one configuration pass and is not safe for
// concurrent use.
type Resolver struct {
	arena   *meta.Arena
	matcher *match.Matcher
	log     *zap.Logger

	byTune map[meta.ID]*Restriction
	order  []*Restriction
}

// NewResolver returns an empty resolver.
func NewResolver(arena *meta.Arena, matcher *match.Matcher, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{
		arena:   arena,
		matcher: matcher,
		log:     log,
		byTune:  make(map[meta.ID]*Restriction),
	}
}

// Restriction is the live candidate set of one tuning during a pass.
type Restriction struct {
	Tune meta.ID

	r      *Resolver
	values []meta.Value
	alive  []bool
	remain int
	links  []*link
}

// link ties a source-side dependent node to a sink-side dependent node whose
// tunings constrain each other.
type link struct {
	kind         meta.Kind
	source, sink meta.ID
	srcR, sinkR  *Restriction
}

// compatible tests the dependent nodes as if their tunings held sv and kv.
func (l *link) compatible(a *meta.Arena, sv, kv meta.Value) bool {
	return match.CompatibleViews(l.kind,
		match.View{Value: a.ResolvedValue(l.source, sv)},
		match.View{Value: a.ResolvedValue(l.sink, kv)})
}

// Restriction returns the restriction for tune, or nil if none was created.
func (r *Resolver) Restriction(tune meta.ID) *Restriction {
	return r.byTune[tune]
}

// Restrictions returns every restriction in creation order.
func (r *Resolver) Restrictions() []*Restriction {
	return r.order
}

// tunable returns the restriction governing id, creating it on first use.
func (r *Resolver) tunable(id meta.ID) *Restriction {
	n := r.arena.Node(id)
	if n.DependsOn == meta.None {
		return nil
	}
	if rs, ok := r.byTune[n.DependsOn]; ok {
		return rs
	}
	tune := r.arena.Node(n.DependsOn)
	if tune.Value != nil || len(tune.Allowed) == 0 {
		return nil
	}
	rs := &Restriction{
		Tune:   n.DependsOn,
		r:      r,
		values: append([]meta.Value(nil), tune.Allowed...),
		alive:  make([]bool, len(tune.Allowed)),
		remain: len(tune.Allowed),
	}
	for i := range rs.alive {
		rs.alive[i] = true
	}
	r.byTune[n.DependsOn] = rs
	r.order = append(r.order, rs)
	return rs
}

// Restrict narrows the tunings behind one matched (source, sink) node pair.
// Pairs without dependent nodes are left alone.
func (r *Resolver) Restrict(source, sink meta.ID) error {
	srcR, sinkR := r.tunable(source), r.tunable(sink)
	kind := r.arena.Node(sink).Kind

	switch {
	case srcR == nil && sinkR == nil:
		return nil

	case sinkR == nil:
		other := r.matcher.ViewOf(sink)
		return srcR.retain(func(v meta.Value) bool {
			return match.CompatibleViews(kind, match.View{Value: r.arena.ResolvedValue(source, v)}, other)
		})

	case srcR == nil:
		other := r.matcher.ViewOf(source)
		return sinkR.retain(func(v meta.Value) bool {
			return match.CompatibleViews(kind, other, match.View{Value: r.arena.ResolvedValue(sink, v)})
		})
	}

	l := &link{kind: kind, source: source, sink: sink, srcR: srcR, sinkR: sinkR}
	srcR.links = append(srcR.links, l)
	if sinkR != srcR {
		sinkR.links = append(sinkR.links, l)
	}
	if err := srcR.retain(func(v meta.Value) bool { return l.witnessedBySink(r.arena, v) }); err != nil {
		return err
	}
	return sinkR.retain(func(v meta.Value) bool { return l.witnessedBySource(r.arena, v) })
}

func (l *link) witnessedBySink(a *meta.Arena, sv meta.Value) bool {
	for j, kv := range l.sinkR.values {
		if l.sinkR.alive[j] && l.compatible(a, sv, kv) {
			return true
		}
	}
	return false
}

func (l *link) witnessedBySource(a *meta.Arena, kv meta.Value) bool {
	for i, sv := range l.srcR.values {
		if l.srcR.alive[i] && l.compatible(a, sv, kv) {
			return true
		}
	}
	return false
}

// retain removes every surviving candidate for which keep is false.
func (rs *Restriction) retain(keep func(meta.Value) bool) error {
	for i, v := range rs.values {
		if rs.alive[i] && !keep(v) {
			if err := rs.Remove(i); err != nil {
				return err
			}
		}
	}
	rs.pin()
	return nil
}

// Remove drops candidate i and cascades into linked restrictions whose
// surviving values lost their last witness. Removing an already removed
// candidate is a no-op.
func (rs *Restriction) Remove(i int) error {
	if !rs.alive[i] {
		return nil
	}
	rs.alive[i] = false
	rs.remain--
	if rs.remain == 0 {
		rs.r.log.Debug("tuning infeasible", zap.String("tune", rs.r.arena.Describe(rs.Tune)))
		return fmt.Errorf("%w: %s", ErrInfeasible, rs.r.arena.Describe(rs.Tune))
	}

	a := rs.r.arena
	for _, l := range rs.links {
		partner, witnessed := l.sinkR, l.witnessedBySource
		if l.sinkR == rs {
			partner, witnessed = l.srcR, l.witnessedBySink
		}
		for j, v := range partner.values {
			if partner.alive[j] && !witnessed(a, v) {
				if err := partner.Remove(j); err != nil {
					return err
				}
			}
		}
		partner.pin()
	}
	rs.pin()
	return nil
}

// pin fixes the tuning's value once a single candidate survives.
func (rs *Restriction) pin() {
	if rs.remain != 1 {
		return
	}
	tune := rs.r.arena.Node(rs.Tune)
	for i, v := range rs.values {
		if rs.alive[i] {
			if tune.Value == nil {
				rs.r.log.Debug("tuning pinned",
					zap.String("tune", rs.r.arena.Describe(rs.Tune)),
					zap.Any("value", v))
			}
			tune.Value = v
			return
		}
	}
}

// Remaining returns the number of surviving candidates.
func (rs *Restriction) Remaining() int {
	return rs.remain
}

// Survivors returns the surviving candidates in declaration order.
func (rs *Restriction) Survivors() []meta.Value {
	out := make([]meta.Value, 0, rs.remain)
	for i, v := range rs.values {
		if rs.alive[i] {
			out = append(out, v)
		}
	}
	return out
}

// Fix pins every restriction still holding several survivors to its first
// survivor, removing the others from the highest index down.
func (r *Resolver) Fix() error {
	for _, rs := range r.order {
		for i := len(rs.values) - 1; i >= 0 && rs.remain > 1; i-- {
			if err := rs.Remove(i); err != nil {
				return err
			}
		}
		rs.pin()
	}
	return nil
}

// Reset unpins every tuning touched by the resolver and forgets all
// restrictions.
func (r *Resolver) Reset() {
	for _, rs := range r.order {
		if n := r.arena.Node(rs.Tune); n != nil {
			n.Value = nil
		}
	}
	r.byTune = make(map[meta.ID]*Restriction)
	r.order = nil
}
