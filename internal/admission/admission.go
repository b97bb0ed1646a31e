// Package admission gates verifier calls behind per-category concurrency
// pools sized from a global budget.
package admission

import (
	"cmp"
	"context"
	"log/slog"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"verigate/internal/capacity"
	"verigate/internal/platform/metrics"
)

// Class groups categories by how expensive their backend work is.
type Class string

const (
	ClassLight Class = "light"
	ClassHeavy Class = "heavy"
)

// Sizing controls how much of the budget each class receives.
type Sizing struct {
	HeavyFraction float64
	LightFraction float64
	HeavyMin      int
	LightMin      int
}

// DefaultSizing gives heavy pools max(2, 30%) and light pools max(3, 50%).
var DefaultSizing = Sizing{
	HeavyFraction: 0.3,
	LightFraction: 0.5,
	HeavyMin:      2,
	LightMin:      3,
}

// CapacityFor returns the pool capacity for a class under budget.
func (s Sizing) CapacityFor(class Class, budget int) int {
	if class == ClassHeavy {
		return max(s.HeavyMin, int(math.Floor(float64(budget)*s.HeavyFraction)))
	}
	return max(s.LightMin, int(math.Floor(float64(budget)*s.LightFraction)))
}

// DefaultHeavyCategories involve image or document synthesis.
var DefaultHeavyCategories = []string{"spotify_student", "youtube_student"}

// generation is one sizing of a category pool. A resize retires the current
// generation and wakes its waiters so they queue on the replacement.
type generation struct {
	capacity int
	sem      *semaphore.Weighted
	retired  context.Context
	retire   context.CancelFunc
}

func newGeneration(capacity int) *generation {
	ctx, cancel := context.WithCancel(context.Background())
	return &generation{
		capacity: capacity,
		sem:      semaphore.NewWeighted(int64(capacity)),
		retired:  ctx,
		retire:   cancel,
	}
}

// pool is the long-lived entry for one category. inUse counts every held
// permit regardless of the generation it was admitted under; debt is the
// share of inUse that the current generation's semaphore does not cover.
type pool struct {
	category string
	class    Class

	mu    sync.Mutex
	gen   *generation
	inUse int
	debt  int
}

func (p *pool) current() *generation {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gen
}

func (p *pool) capacity() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gen.capacity
}

// resize swaps in a generation of the given capacity. Held permits are
// carried over: as many as fit occupy slots in the new semaphore and the rest
// become debt that releases pay off before any slot frees up.
func (p *pool) resize(capacity int) (old, held int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	prev := p.gen
	next := newGeneration(capacity)
	seed := min(p.inUse, capacity)
	if seed > 0 {
		next.sem.TryAcquire(int64(seed))
	}
	p.debt = p.inUse - seed
	p.gen = next
	prev.retire()
	return prev.capacity, p.inUse
}

// admit records a slot won on gen. It fails when gen was retired in the
// meantime, in which case the slot goes back to the stale semaphore.
func (p *pool) admit(gen *generation) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gen != gen {
		gen.sem.Release(1)
		return false
	}
	p.inUse++
	return true
}

func (p *pool) release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inUse--
	if p.debt > 0 {
		p.debt--
		return
	}
	p.gen.sem.Release(1)
}

func (p *pool) held() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inUse
}

// Releaser frees an occupied slot.
type Releaser interface {
	Release()
}

// Permit is one occupied slot in a category pool.
type Permit struct {
	pool     *pool
	released atomic.Bool
	metrics  *metrics.Metrics
}

// Category returns the category the permit was issued for.
func (p *Permit) Category() string {
	return p.pool.category
}

// Release frees the slot. Calling it more than once is a no-op.
func (p *Permit) Release() {
	if p == nil || !p.released.CompareAndSwap(false, true) {
		return
	}
	p.pool.release()
	p.metrics.AddPoolInUse(p.pool.category, -1)
}

// Controller owns the global budget and the lazily created category pools.
type Controller struct {
	budget atomic.Int64

	mu    sync.Mutex
	pools map[string]*pool

	sizing  Sizing
	heavy   map[string]struct{}
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Controller)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

func WithSizing(s Sizing) Option {
	return func(c *Controller) {
		c.sizing = s
	}
}

// WithHeavyCategories replaces the default heavy category set.
func WithHeavyCategories(categories ...string) Option {
	return func(c *Controller) {
		c.heavy = make(map[string]struct{}, len(categories))
		for _, cat := range categories {
			c.heavy[cat] = struct{}{}
		}
	}
}

// New creates a controller with the given starting budget, clamped to the
// allowed range.
func New(budget int, opts ...Option) *Controller {
	c := &Controller{
		pools:  make(map[string]*pool),
		sizing: DefaultSizing,
		logger: slog.Default(),
	}
	WithHeavyCategories(DefaultHeavyCategories...)(c)
	for _, opt := range opts {
		opt(c)
	}
	budget = capacity.Clamp(budget)
	c.budget.Store(int64(budget))
	c.metrics.SetBudget(budget)
	return c
}

// ClassOf reports whether category is heavy or light.
func (c *Controller) ClassOf(category string) Class {
	if _, ok := c.heavy[category]; ok {
		return ClassHeavy
	}
	return ClassLight
}

// Budget returns the current global budget.
func (c *Controller) Budget() int {
	return int(c.budget.Load())
}

func (c *Controller) poolFor(category string) *pool {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pools[category]
	if !ok {
		class := c.ClassOf(category)
		size := c.sizing.CapacityFor(class, c.Budget())
		p = &pool{category: category, class: class, gen: newGeneration(size)}
		c.pools[category] = p
		c.metrics.SetPoolCapacity(category, size)
	}
	return p
}

// Acquire blocks until a slot in category's pool is free or ctx ends. A
// waiter caught by a resize re-queues on the resized pool.
func (c *Controller) Acquire(ctx context.Context, category string) (*Permit, error) {
	p := c.poolFor(category)
	start := time.Now()
	for {
		gen := p.current()
		if err := acquireOn(ctx, gen); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		if p.admit(gen) {
			break
		}
	}
	c.metrics.AddPoolInUse(category, 1)
	c.metrics.ObserveAdmissionWait(category, time.Since(start).Seconds())
	return &Permit{pool: p, metrics: c.metrics}, nil
}

func acquireOn(ctx context.Context, gen *generation) error {
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(gen.retired, cancel)
	defer stop()
	return gen.sem.Acquire(wctx, 1)
}

// SetBudget clamps and stores a new budget and resizes every pool whose
// capacity changes. Permits held across a resize count against the new
// capacity. Returns the stored budget.
func (c *Controller) SetBudget(budget int) int {
	budget = capacity.Clamp(budget)

	c.mu.Lock()
	defer c.mu.Unlock()

	old := int(c.budget.Swap(int64(budget)))
	c.metrics.SetBudget(budget)
	if old == budget {
		return budget
	}

	for category, p := range c.pools {
		size := c.sizing.CapacityFor(p.class, budget)
		if size == p.capacity() {
			continue
		}
		prev, held := p.resize(size)
		c.metrics.SetPoolCapacity(category, size)
		c.logger.Info("admission pool resized",
			"category", category,
			"old_capacity", prev,
			"new_capacity", size,
			"in_use", held,
		)
	}
	return budget
}

// PoolSnapshot describes one current pool.
type PoolSnapshot struct {
	Category string `json:"category"`
	Class    Class  `json:"class"`
	Capacity int    `json:"capacity"`
	InUse    int    `json:"in_use"`
}

type Snapshot struct {
	Budget int            `json:"budget"`
	Pools  []PoolSnapshot `json:"pools"`
}

// Snapshot returns the budget and current pools sorted by category.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{Budget: c.Budget(), Pools: make([]PoolSnapshot, 0, len(c.pools))}
	for _, p := range c.pools {
		snap.Pools = append(snap.Pools, PoolSnapshot{
			Category: p.category,
			Class:    p.class,
			Capacity: p.capacity(),
			InUse:    p.held(),
		})
	}
	slices.SortFunc(snap.Pools, func(a, b PoolSnapshot) int {
		return cmp.Compare(a.Category, b.Category)
	})
	return snap
}
