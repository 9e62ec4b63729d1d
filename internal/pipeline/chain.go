package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"text/tabwriter"

	"go.uber.org/zap"

	"github.com/ironsheep/image-pipeline/internal/filter"
	"github.com/ironsheep/image-pipeline/internal/logging"
	"github.com/ironsheep/image-pipeline/internal/match"
	"github.com/ironsheep/image-pipeline/internal/tuning"
)

// DefaultMaxInsert is the longest adapter sequence inserted into one edge.
const DefaultMaxInsert = 4

var (
	// ErrInsertionExhausted is returned when no adapter sequence repairs a
	// failing edge.
	ErrInsertionExhausted = errors.New("pipeline: adapter insertion exhausted")

	// ErrTeardownPending is returned while a deconfigure waits for
	// in-flight renders.
	ErrTeardownPending = errors.New("pipeline: teardown pending")

	// ErrNotConfigured is returned by Ref on an unconfigured chain.
	ErrNotConfigured = errors.New("pipeline: chain not configured")

	// ErrNoSource is returned when the chain does not start at a source.
	ErrNoSource = errors.New("pipeline: chain has no source")
)

// State is the configuration state of a chain.
type State int

// Configuration states.
const (
	Unconfigured State = iota
	Configuring
	Configured
)

func (s State) String() string {
	switch s {
	case Unconfigured:
		return "unconfigured"
	case Configuring:
		return "configuring"
	case Configured:
		return "configured"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Lifecycle tells whether a teardown is waiting for renders to finish.
type Lifecycle int

// Lifecycle values.
const (
	Live Lifecycle = iota
	DeferredDelete
)

func (l Lifecycle) String() string {
	if l == DeferredDelete {
		return "deferred-delete"
	}
	return "live"
}

// EditFunc changes the original chain: its filters, connections or settings.
type EditFunc func(g *filter.Graph) error

// Options configures a Chain.
type Options struct {
	// Adapters is the insertion catalog in trial order.
	Adapters []*filter.Core
	// MaxInsert bounds the adapters inserted into one edge. Zero means
	// DefaultMaxInsert.
	MaxInsert int
	Logger    *zap.Logger
}

// Chain is a filter chain ending at one sink together with its
// configuration. All methods are safe for concurrent use; configuration runs
// under the chain lock.
type Chain struct {
	mu sync.Mutex

	graph     *filter.Graph
	sink      filter.ID
	adapters  []*filter.Core
	maxInsert int
	log       *zap.Logger

	matcher  *match.Matcher
	resolver *tuning.Resolver

	state   State
	life    Lifecycle
	refs    int
	cfg     *Config
	pending []EditFunc

	// memo remembers the adapters that repaired each original edge. It
	// survives deconfiguration.
	memo map[edgeKey][]int
}

// New returns an unconfigured chain ending at sink.
func New(g *filter.Graph, sink filter.ID, opts Options) (*Chain, error) {
	f := g.Filter(sink)
	if f == nil {
		return nil, fmt.Errorf("%w: %d", filter.ErrNoFilter, sink)
	}
	if !f.Sink() {
		return nil, fmt.Errorf("%w: %s", filter.ErrNotSink, f)
	}
	if opts.MaxInsert <= 0 {
		opts.MaxInsert = DefaultMaxInsert
	}
	log := logging.Or(opts.Logger).With(zap.Stringer("sink", f))

	m := match.New(g.Arena(), log)
	return &Chain{
		graph:     g,
		sink:      sink,
		adapters:  append([]*filter.Core(nil), opts.Adapters...),
		maxInsert: opts.MaxInsert,
		log:       log,
		matcher:   m,
		resolver:  tuning.NewResolver(g.Arena(), m, log),
		memo:      make(map[edgeKey][]int),
	}, nil
}

// Configure resolves the chain, inserting adapters where edges do not match.
// It is a no-op on a configured chain. On failure the chain is left exactly
// as it was before the call.
func (c *Chain) Configure(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.life == DeferredDelete {
		return ErrTeardownPending
	}
	if c.state == Configured {
		return nil
	}
	c.teardown()

	c.state = Configuring
	cfg, err := c.configure(ctx)
	if err != nil {
		c.state = Unconfigured
		c.log.Info("configuration failed", zap.Error(err))
		return err
	}
	c.cfg = cfg
	c.state = Configured

	inserted := 0
	for _, f := range cfg.path {
		if f.Inserted {
			inserted++
		}
	}
	c.log.Info("configured",
		zap.Int("stages", len(cfg.path)),
		zap.Int("inserted", inserted),
		zap.Int("passes", cfg.attempts),
		zap.String("hash", fmt.Sprintf("%016x", cfg.hash)))
	return nil
}

// Deconfigure releases the configuration. While renders hold the chain the
// teardown is deferred to the last Unref.
func (c *Chain) Deconfigure() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.refs > 0 {
		if c.state == Configured && c.life == Live {
			c.life = DeferredDelete
			c.log.Warn("teardown deferred", zap.Int("refs", c.refs))
		}
		return
	}
	c.teardown()
}

func (c *Chain) teardown() {
	if c.cfg != nil {
		c.unwind(c.cfg)
		c.cfg = nil
	}
	c.state = Unconfigured
}

// Ref pins the configuration for a render.
func (c *Chain) Ref() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.life == DeferredDelete:
		return ErrTeardownPending
	case c.state != Configured:
		return ErrNotConfigured
	}
	c.refs++
	return nil
}

// Unref releases a Ref. The last Unref performs a deferred teardown and
// applies deferred edits.
func (c *Chain) Unref() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.refs == 0 {
		c.log.DPanic("unbalanced unref")
		return
	}
	c.refs--
	if c.refs > 0 {
		return
	}

	if c.life == DeferredDelete {
		c.teardown()
		c.life = Live
	}
	if len(c.pending) > 0 {
		c.teardown()
		for _, fn := range c.pending {
			if err := fn(c.graph); err != nil {
				c.log.Warn("deferred edit failed", zap.Error(err))
			}
		}
		c.pending = nil
	}
}

// Edit deconfigures the chain and applies fn to its graph. While renders
// hold the chain fn is queued instead and deferred is true.
func (c *Chain) Edit(fn EditFunc) (deferred bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.refs > 0 {
		c.pending = append(c.pending, fn)
		return true, nil
	}
	c.teardown()
	return false, fn(c.graph)
}

// Graph returns the chain's graph. Callers change it through Edit.
func (c *Chain) Graph() *filter.Graph {
	return c.graph
}

// Sink returns the chain's sink filter.
func (c *Chain) Sink() *filter.Filter {
	return c.graph.Filter(c.sink)
}

// State returns the configuration state.
func (c *Chain) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Lifecycle returns whether a teardown is pending.
func (c *Chain) Lifecycle() Lifecycle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.life
}

// Refs returns the number of renders holding the chain.
func (c *Chain) Refs() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refs
}

// Filters returns the live chain, source first, or nil when unconfigured.
func (c *Chain) Filters() []*filter.Filter {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cfg == nil {
		return nil
	}
	return append([]*filter.Filter(nil), c.cfg.path...)
}

// Hash returns the structural hash of the configured chain, 0 when
// unconfigured.
func (c *Chain) Hash() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cfg == nil {
		return 0
	}
	return c.cfg.hash
}

// Describe formats the live chain, one stage per line.
func (c *Chain) Describe() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var b strings.Builder
	if c.cfg == nil {
		fmt.Fprintf(&b, "%s\n", c.state)
		return b.String()
	}
	w := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	for _, f := range c.cfg.path {
		mark := " "
		if f.Inserted {
			mark = "+"
		}
		fmt.Fprintf(w, "%s%s\t%s\t%016x\n", mark, f, f.Output, f.Hash)
	}
	_ = w.Flush()
	return b.String()
}
