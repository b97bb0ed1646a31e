// Package capacity derives the process-wide concurrency budget from host
// resources at startup.
package capacity

import (
	"context"
	"errors"
	"log/slog"
	"math"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

const (
	MinBudget      = 10
	MaxBudget      = 100
	FallbackBudget = 20

	perCPU = 4
	perGiB = 2
)

// Clamp bounds a budget to [MinBudget, MaxBudget].
func Clamp(budget int) int {
	return min(max(budget, MinBudget), MaxBudget)
}

// HostProbe reports host resources.
type HostProbe interface {
	CPUCount(ctx context.Context) (int, error)
	TotalMemoryGiB(ctx context.Context) (float64, error)
}

// SystemProbe reads the real host through gopsutil.
type SystemProbe struct{}

func (SystemProbe) CPUCount(ctx context.Context) (int, error) {
	n, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errors.New("cpu count unavailable")
	}
	return n, nil
}

func (SystemProbe) TotalMemoryGiB(ctx context.Context) (float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return float64(vm.Total) / (1 << 30), nil
}

type Estimator struct {
	probe  HostProbe
	logger *slog.Logger
}

type Option func(*Estimator)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Estimator) {
		e.logger = logger
	}
}

func WithProbe(probe HostProbe) Option {
	return func(e *Estimator) {
		e.probe = probe
	}
}

func New(opts ...Option) *Estimator {
	e := &Estimator{probe: SystemProbe{}, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Estimate returns min(cpus*4, floor(GiB*2)) clamped to [10,100], or 20 when
// the host cannot be probed.
func (e *Estimator) Estimate(ctx context.Context) int {
	cpus, err := e.probe.CPUCount(ctx)
	if err != nil {
		e.logger.WarnContext(ctx, "capacity probe failed, using fallback budget",
			"error", err,
			"budget", FallbackBudget,
		)
		return FallbackBudget
	}
	memGiB, err := e.probe.TotalMemoryGiB(ctx)
	if err != nil || memGiB < 0 {
		e.logger.WarnContext(ctx, "capacity probe failed, using fallback budget",
			"error", err,
			"budget", FallbackBudget,
		)
		return FallbackBudget
	}

	cpuBased := cpus * perCPU
	memBased := int(math.Floor(memGiB * perGiB))
	budget := Clamp(min(cpuBased, memBased))

	e.logger.InfoContext(ctx, "concurrency budget estimated",
		"cpu_count", cpus,
		"memory_gib", memGiB,
		"cpu_based", cpuBased,
		"mem_based", memBased,
		"budget", budget,
	)
	return budget
}
