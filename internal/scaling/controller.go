package scaling

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/ShayCichocki/quorum/internal/config"
	"github.com/ShayCichocki/quorum/internal/metrics"
	"github.com/ShayCichocki/quorum/pkg/models"
)

// Platform realizes scale commands against the actual execution substrate
// (container scheduler, process supervisor, cloud API). A returned error
// leaves the pool size unchanged; the controller retries on its next tick.
type Platform interface {
	ApplyScale(ctx context.Context, cmd models.ScaleCommand) error
}

// PlatformFunc adapts a function to the Platform interface.
type PlatformFunc func(ctx context.Context, cmd models.ScaleCommand) error

// ApplyScale calls f.
func (f PlatformFunc) ApplyScale(ctx context.Context, cmd models.ScaleCommand) error {
	return f(ctx, cmd)
}

// Depths exposes the router's per-role queue depths.
type Depths interface {
	QueueDepth(role models.Role) int
}

// Capacities receives realized pool sizes so the router can use the slots.
type Capacities interface {
	SetCapacity(role models.Role, capacity int)
}

// Controller evaluates every pool on a fixed tick. A pool scales up when
// queue pressure exceeds the high watermark or latency runs well over target,
// and scales down only when both pressure and latency are low. Each pool
// has a cooldown after an action; scale-downs cool down longer so the
// controller sheds capacity more cautiously than it adds it.
type Controller struct {
	cfg        config.ScalingConfig
	platform   Platform
	depths     Depths
	capacities Capacities
	metrics    *metrics.Registry
	clock      func() time.Time

	mu            sync.Mutex
	pools         map[models.Role]*models.WorkerPool
	windows       map[models.Role]*Window
	cooldownUntil map[models.Role]time.Time
}

// Option configures a Controller.
type Option func(*Controller)

// WithMetrics sets the shared metric registry.
func WithMetrics(m *metrics.Registry) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithClock overrides the time source for tests.
func WithClock(clock func() time.Time) Option {
	return func(c *Controller) { c.clock = clock }
}

// New creates a Controller.
func New(cfg config.ScalingConfig, platform Platform, depths Depths, capacities Capacities, opts ...Option) *Controller {
	c := &Controller{
		cfg:           cfg,
		platform:      platform,
		depths:        depths,
		capacities:    capacities,
		metrics:       metrics.NewRegistry(),
		clock:         time.Now,
		pools:         make(map[models.Role]*models.WorkerPool),
		windows:       make(map[models.Role]*Window),
		cooldownUntil: make(map[models.Role]time.Time),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AddPool registers a pool for a role with bounds from configuration and
// reports the initial capacity to the router.
func (c *Controller) AddPool(role models.Role) *models.WorkerPool {
	min, max, initial := c.cfg.PoolBounds(string(role))

	c.mu.Lock()
	defer c.mu.Unlock()

	if pool, ok := c.pools[role]; ok {
		return pool
	}

	pool := &models.WorkerPool{
		Role:        role,
		CurrentSize: initial,
		MinSize:     min,
		MaxSize:     max,
	}
	c.pools[role] = pool
	c.windows[role] = NewWindow(c.cfg.LatencyWindow)

	if c.capacities != nil {
		c.capacities.SetCapacity(role, initial)
	}
	return pool
}

// Observe records a completed task latency for a role. Wire this to the
// router's latency observer.
func (c *Controller) Observe(role models.Role, latency time.Duration) {
	c.mu.Lock()
	w := c.windows[role]
	c.mu.Unlock()

	if w != nil {
		w.Add(float64(latency.Milliseconds()))
	}
}

// Pools returns a snapshot of all pools, sorted by role.
func (c *Controller) Pools() []models.WorkerPool {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]models.WorkerPool, 0, len(c.pools))
	for _, p := range c.pools {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Role < out[j].Role })
	return out
}

// Run evaluates all pools on the configured interval until the context is
// cancelled.
func (c *Controller) Run(ctx context.Context) error {
	interval := c.cfg.Interval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.Evaluate(ctx)
		}
	}
}

// Evaluate runs one scaling pass over all pools.
func (c *Controller) Evaluate(ctx context.Context) {
	c.mu.Lock()
	roles := make([]models.Role, 0, len(c.pools))
	for role := range c.pools {
		roles = append(roles, role)
	}
	c.mu.Unlock()

	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	for _, role := range roles {
		c.evaluatePool(ctx, role)
	}
}

func (c *Controller) evaluatePool(ctx context.Context, role models.Role) {
	now := c.clock()

	c.mu.Lock()
	pool := c.pools[role]
	window := c.windows[role]
	cooldown := c.cooldownUntil[role]
	c.mu.Unlock()

	if pool == nil {
		return
	}

	depth := c.depths.QueueDepth(role)
	avgMS := window.Avg()

	effective := pool.CurrentSize
	if effective < 1 {
		effective = 1
	}
	pressure := float64(depth) / float64(effective)

	latencyRatio := 0.0
	if c.cfg.TargetLatencyMS > 0 && window.Count() > 0 {
		latencyRatio = avgMS / c.cfg.TargetLatencyMS
	}

	c.mu.Lock()
	pool.PendingQueueDepth = depth
	pool.AvgLatencyMS = avgMS
	c.mu.Unlock()

	c.metrics.Set("scaling.pool_size."+string(role), float64(pool.CurrentSize))
	c.metrics.Set("scaling.pressure."+string(role), pressure)
	c.metrics.Set("router.queue_depth."+string(role), float64(depth))
	c.metrics.Set("router.avg_latency_ms."+string(role), avgMS)

	target := pool.CurrentSize
	var direction models.ScaleDirection
	var reason string

	switch {
	case pressure > c.cfg.HighWatermark || latencyRatio > 1.5:
		step := int(math.Ceil(float64(pool.CurrentSize) * c.cfg.UpFactor))
		if step < 1 {
			step = 1
		}
		target = pool.CurrentSize + step
		if target > pool.MaxSize {
			target = pool.MaxSize
		}
		direction = models.ScaleUp
		reason = fmt.Sprintf("pressure=%.2f latency_ratio=%.2f", pressure, latencyRatio)
	case pressure < c.cfg.LowWatermark && latencyRatio < 0.5:
		step := int(math.Floor(float64(pool.CurrentSize) * c.cfg.DownFactor))
		if step < 1 {
			step = 1
		}
		target = pool.CurrentSize - step
		if target < pool.MinSize {
			target = pool.MinSize
		}
		direction = models.ScaleDown
		reason = fmt.Sprintf("pressure=%.2f latency_ratio=%.2f", pressure, latencyRatio)
	default:
		return
	}

	if target == pool.CurrentSize {
		return
	}
	if now.Before(cooldown) {
		return
	}

	cmd := models.ScaleCommand{
		Role:      role,
		Direction: direction,
		FromSize:  pool.CurrentSize,
		ToSize:    target,
		Reason:    reason,
		IssuedAt:  now,
	}

	if err := c.platform.ApplyScale(ctx, cmd); err != nil {
		// Pool size unchanged; the next tick retries.
		log.Printf("[scaling] scale %s failed for role %s (%d -> %d): %v",
			direction, role, cmd.FromSize, cmd.ToSize, err)
		return
	}

	log.Printf("[scaling] scaled %s %s: %d -> %d (%s)", role, direction, cmd.FromSize, cmd.ToSize, reason)

	c.mu.Lock()
	pool.CurrentSize = target
	pool.LastScaleActionAt = now
	if direction == models.ScaleUp {
		c.cooldownUntil[role] = now.Add(c.cfg.UpCooldown)
	} else {
		c.cooldownUntil[role] = now.Add(c.cfg.DownCooldown)
	}
	c.mu.Unlock()

	if c.capacities != nil {
		c.capacities.SetCapacity(role, target)
	}
	c.metrics.Set("scaling.pool_size."+string(role), float64(target))
}
