// Package loadmonitor periodically samples host load and scales the
// admission budget up or down.
package loadmonitor

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	"verigate/internal/platform/metrics"
)

// Load is one host sample in percent.
type Load struct {
	CPUPercent float64
	MemPercent float64
}

type Sampler interface {
	Sample(ctx context.Context) (Load, error)
}

// SystemSampler measures CPU over Window and reads current memory use.
type SystemSampler struct {
	Window time.Duration
}

func (s SystemSampler) Sample(ctx context.Context) (Load, error) {
	window := s.Window
	if window <= 0 {
		window = time.Second
	}
	cpuPercents, err := cpu.PercentWithContext(ctx, window, false)
	if err != nil {
		return Load{}, err
	}
	if len(cpuPercents) == 0 {
		return Load{}, errors.New("cpu percent unavailable")
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Load{}, err
	}
	return Load{CPUPercent: cpuPercents[0], MemPercent: vm.UsedPercent}, nil
}

// Budget is the part of the admission controller the monitor drives.
type Budget interface {
	Budget() int
	SetBudget(budget int) int
}

// Policy decides the scale factor for a sample.
type Policy struct {
	HighCPU   float64
	HighMem   float64
	LowCPU    float64
	LowMem    float64
	ScaleDown float64
	ScaleUp   float64
}

var DefaultPolicy = Policy{
	HighCPU:   80,
	HighMem:   85,
	LowCPU:    40,
	LowMem:    60,
	ScaleDown: 0.7,
	ScaleUp:   1.2,
}

// Factor returns ScaleDown under pressure, ScaleUp when idle, else 1.
func (p Policy) Factor(l Load) float64 {
	switch {
	case l.CPUPercent > p.HighCPU || l.MemPercent > p.HighMem:
		return p.ScaleDown
	case l.CPUPercent < p.LowCPU && l.MemPercent < p.LowMem:
		return p.ScaleUp
	default:
		return 1
	}
}

const DefaultInterval = 60 * time.Second

type Monitor struct {
	budget   Budget
	sampler  Sampler
	policy   Policy
	interval time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

type Option func(*Monitor)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) {
		m.logger = logger
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Monitor) {
		m.metrics = mt
	}
}

func WithSampler(s Sampler) Option {
	return func(m *Monitor) {
		m.sampler = s
	}
}

func WithPolicy(p Policy) Option {
	return func(m *Monitor) {
		m.policy = p
	}
}

func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

func New(budget Budget, opts ...Option) (*Monitor, error) {
	if budget == nil {
		return nil, errors.New("budget is required")
	}
	m := &Monitor{
		budget:   budget,
		sampler:  SystemSampler{},
		policy:   DefaultPolicy,
		interval: DefaultInterval,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Start launches the sampling loop. Calling Start on a running monitor is a
// no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.run(ctx, m.done)
	m.logger.InfoContext(ctx, "load monitor started", "interval", m.interval)
}

// Stop cancels the loop and waits for it to exit. Safe to call when never
// started or already stopped.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	m.logger.Info("load monitor stopped")
}

// Running reports whether the loop is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.done != nil
}

func (m *Monitor) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer m.detach(done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Tick(ctx); err != nil && ctx.Err() == nil {
				m.metrics.IncrementMonitorFailures()
				m.logger.WarnContext(ctx, "load sample failed", "error", err)
			}
		}
	}
}

// detach clears the handle when the loop ends on its own, for example because
// the parent context of Start was cancelled, so a later Start runs again.
func (m *Monitor) detach(done chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done != done {
		return
	}
	m.cancel()
	m.cancel, m.done = nil, nil
}

// Tick takes one sample and applies the resulting factor to the budget.
func (m *Monitor) Tick(ctx context.Context) error {
	load, err := m.sampler.Sample(ctx)
	if err != nil {
		return err
	}
	m.metrics.SetHostLoad(load.CPUPercent, load.MemPercent)

	factor := m.policy.Factor(load)
	if factor == 1 {
		return nil
	}

	current := m.budget.Budget()
	next := m.budget.SetBudget(int(math.Floor(float64(current) * factor)))
	if next == current {
		return nil
	}

	direction := "up"
	if next < current {
		direction = "down"
	}
	m.metrics.IncrementBudgetAdjusted(direction)
	m.logger.InfoContext(ctx, "concurrency budget adjusted",
		"cpu_percent", load.CPUPercent,
		"mem_percent", load.MemPercent,
		"factor", factor,
		"old_budget", current,
		"new_budget", next,
	)
	return nil
}
