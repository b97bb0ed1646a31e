package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the process-wide capacity and load gauges.
type Metrics struct {
	Budget          prometheus.Gauge
	BudgetAdjusted  *prometheus.CounterVec
	HostCPUPercent  prometheus.Gauge
	HostMemPercent  prometheus.Gauge
	PoolCapacity    *prometheus.GaugeVec
	PoolInUse       *prometheus.GaugeVec
	AdmissionWaits  *prometheus.HistogramVec
	MonitorFailures prometheus.Counter
}

// New creates and registers all process metrics with the default registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers with reg, which lets tests use a private registry.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Budget: factory.NewGauge(prometheus.GaugeOpts{
			Name: "verigate_concurrency_budget",
			Help: "Current global concurrency budget",
		}),
		BudgetAdjusted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "verigate_concurrency_budget_adjustments_total",
			Help: "Budget adjustments by direction",
		}, []string{"direction"}), // direction: "up", "down"
		HostCPUPercent: factory.NewGauge(prometheus.GaugeOpts{
			Name: "verigate_host_cpu_percent",
			Help: "Last sampled host CPU utilisation",
		}),
		HostMemPercent: factory.NewGauge(prometheus.GaugeOpts{
			Name: "verigate_host_memory_percent",
			Help: "Last sampled host memory utilisation",
		}),
		PoolCapacity: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "verigate_admission_pool_capacity",
			Help: "Capacity of the current admission pool by category",
		}, []string{"category"}),
		PoolInUse: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "verigate_admission_pool_in_use",
			Help: "Occupied permits by category",
		}, []string{"category"}),
		AdmissionWaits: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "verigate_admission_wait_seconds",
			Help:    "Time spent waiting for a permit by category",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 15, 30, 60, 120},
		}, []string{"category"}),
		MonitorFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "verigate_load_monitor_failures_total",
			Help: "Load samples that failed and were skipped",
		}),
	}
}

func (m *Metrics) SetBudget(budget int) {
	if m != nil {
		m.Budget.Set(float64(budget))
	}
}

func (m *Metrics) IncrementBudgetAdjusted(direction string) {
	if m != nil {
		m.BudgetAdjusted.WithLabelValues(direction).Inc()
	}
}

func (m *Metrics) SetHostLoad(cpuPercent, memPercent float64) {
	if m != nil {
		m.HostCPUPercent.Set(cpuPercent)
		m.HostMemPercent.Set(memPercent)
	}
}

func (m *Metrics) SetPoolCapacity(category string, capacity int) {
	if m != nil {
		m.PoolCapacity.WithLabelValues(category).Set(float64(capacity))
	}
}

func (m *Metrics) AddPoolInUse(category string, delta int) {
	if m != nil {
		m.PoolInUse.WithLabelValues(category).Add(float64(delta))
	}
}

func (m *Metrics) ObserveAdmissionWait(category string, seconds float64) {
	if m != nil {
		m.AdmissionWaits.WithLabelValues(category).Observe(seconds)
	}
}

func (m *Metrics) IncrementMonitorFailures() {
	if m != nil {
		m.MonitorFailures.Inc()
	}
}
