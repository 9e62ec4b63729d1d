package render

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/ironsheep/image-pipeline/internal/cache"
	"github.com/ironsheep/image-pipeline/internal/filter"
	"github.com/ironsheep/image-pipeline/internal/logging"
	"github.com/ironsheep/image-pipeline/internal/pipeline"
)

// ErrClosed is returned for requests submitted after Close.
var ErrClosed = errors.New("render: coordinator closed")

// Request asks for one tile of a configured chain.
type Request struct {
	Chain *pipeline.Chain
	// Area is the tile rectangle in pixels of the scale level Area.Scale.
	Area cache.Area
}

// Result is the outcome of a Request. A non-nil Tile is wanted on behalf
// of the caller, who must Release it.
type Result struct {
	Tile *cache.Tile
	// Layout is the sink's output layout as configured for this render.
	Layout filter.Layout
	Worker int
	Err    error
}

// Options configures a Coordinator.
type Options struct {
	// Workers bounds concurrent renders; zero means GOMAXPROCS.
	Workers int
	Metrics *Metrics
	Logger  *zap.Logger
}

// Coordinator renders tiles on a bounded set of workers. Each worker renders
// one tile at a time; requests wait for a free worker.
type Coordinator struct {
	cache   *cache.Cache
	pool    *pool.Pool
	ids     chan int
	metrics *Metrics
	log     *zap.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// New returns a coordinator rendering into c.
func New(c *cache.Cache, opts Options) *Coordinator {
	n := opts.Workers
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	ids := make(chan int, n)
	for i := 0; i < n; i++ {
		ids <- i
	}
	return &Coordinator{
		cache:   c,
		pool:    pool.New().WithMaxGoroutines(n),
		ids:     ids,
		metrics: opts.Metrics,
		log:     logging.Or(opts.Logger),
		done:    make(chan struct{}),
	}
}

// Workers returns the number of workers.
func (co *Coordinator) Workers() int {
	return cap(co.ids)
}

// Submit waits for a free worker, then renders req on it and passes the
// result to done. It returns once the render has started; an error means
// done will not be called. A Submit still waiting for a worker when Close
// is called returns ErrClosed.
func (co *Coordinator) Submit(ctx context.Context, req Request, done func(Result)) error {
	select {
	case <-co.done:
		return ErrClosed
	default:
	}

	start := time.Now()
	var id int
	select {
	case id = <-co.ids:
	case <-co.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	co.metrics.wait.Observe(time.Since(start).Seconds())

	// The lock orders pool.Go before the pool.Wait in Close.
	co.mu.RLock()
	defer co.mu.RUnlock()
	if co.closed {
		co.ids <- id
		return ErrClosed
	}
	co.pool.Go(func() {
		defer func() { co.ids <- id }()
		co.metrics.inflight.Inc()
		res := co.render(req, id)
		co.metrics.inflight.Dec()
		if res.Err != nil {
			co.metrics.failures.Inc()
			co.log.Warn("render failed", zap.Int("worker", id), zap.Error(res.Err))
		}
		done(res)
	})
	return nil
}

// Render submits req and returns a channel delivering its result.
func (co *Coordinator) Render(ctx context.Context, req Request) <-chan Result {
	ch := make(chan Result, 1)
	if err := co.Submit(ctx, req, func(r Result) { ch <- r }); err != nil {
		ch <- Result{Worker: -1, Err: err}
	}
	return ch
}

// Close stops accepting requests and waits for renders in flight.
func (co *Coordinator) Close() {
	co.mu.Lock()
	if co.closed {
		co.mu.Unlock()
		return
	}
	co.closed = true
	close(co.done)
	co.mu.Unlock()
	co.pool.Wait()
}

func (co *Coordinator) render(req Request, worker int) Result {
	if err := req.Chain.Ref(); err != nil {
		return Result{Worker: worker, Err: err}
	}
	defer req.Chain.Unref()

	stages := req.Chain.Filters()
	last := len(stages) - 1
	t, err := co.stage(stages, last, req.Area, worker)
	return Result{Tile: t, Layout: stages[last].Output, Worker: worker, Err: err}
}

// stage returns the wanted tile of stages[i] covering area, rendering it
// and its inputs on a cache miss.
func (co *Coordinator) stage(stages []*filter.Filter, i int, area cache.Area, worker int) (*cache.Tile, error) {
	f := stages[i]
	name := f.Core.ShortName
	key := cache.Key(f.Hash, area)
	if t := co.cache.Get(key); t != nil {
		co.metrics.stages.WithLabelValues(name, "hit").Inc()
		return t, nil
	}
	co.metrics.stages.WithLabelValues(name, "miss").Inc()

	var in *cache.Tile
	if i > 0 {
		inArea := area
		if f.AreaCalc != nil {
			inArea = f.AreaCalc(f, area)
		}
		var err error
		if in, err = co.stage(stages, i-1, inArea, worker); err != nil {
			return nil, err
		}
		defer in.Release()
	}

	t := cache.NewTile(key, area, name, i+1)
	t.AllocChannels(f.Output.Channels, f.Output.BytesPerPixel())
	size := t.Size()
	co.cache.Track(cache.MemUncached, size)
	defer co.cache.Track(cache.MemUncached, -size)

	start := time.Now()
	if err := f.Worker(f, &filter.Work{Area: area, In: in, Out: t, WorkerID: worker, Scratch: co.cache}); err != nil {
		return nil, fmt.Errorf("render %s: %w", f, err)
	}
	t.Time = time.Since(start)
	co.metrics.duration.WithLabelValues(name).Observe(t.Time.Seconds())

	return co.cache.Insert(t), nil
}
