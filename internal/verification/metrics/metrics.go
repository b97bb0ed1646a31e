package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for verification attempts.
type Metrics struct {
	// Settled attempts by category and outcome
	Outcomes *prometheus.CounterVec

	// Declined attempts by category and reason
	Declines *prometheus.CounterVec

	// Verifier call latency by category
	VerifyLatency *prometheus.HistogramVec

	// Refunds issued
	Refunds prometheus.Counter

	// Reward polling runs by terminal state
	RewardPolls *prometheus.CounterVec
}

// New creates a new Metrics instance registered with the default registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "verigate_verification_outcomes_total",
			Help: "Settled verification attempts by category and outcome",
		}, []string{"category", "outcome"}), // outcome: "success", "refunded", "errored"

		Declines: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "verigate_verification_declines_total",
			Help: "Attempts declined before execution by category and reason",
		}, []string{"category", "reason"}),

		VerifyLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "verigate_verifier_duration_seconds",
			Help:    "Duration of blocking verifier calls by category",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"category"}),

		Refunds: factory.NewCounter(prometheus.CounterOpts{
			Name: "verigate_verification_refunds_total",
			Help: "Refunds credited back to users",
		}),

		RewardPolls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "verigate_reward_polls_total",
			Help: "Reward polling runs by terminal state and reason",
		}, []string{"state", "reason"}),
	}
}

func (m *Metrics) IncrementOutcome(category, outcome string) {
	if m != nil {
		m.Outcomes.WithLabelValues(category, outcome).Inc()
	}
}

func (m *Metrics) IncrementDecline(category, reason string) {
	if m != nil {
		m.Declines.WithLabelValues(category, reason).Inc()
	}
}

func (m *Metrics) ObserveVerifyLatency(category string, d time.Duration) {
	if m != nil {
		m.VerifyLatency.WithLabelValues(category).Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementRefunds() {
	if m != nil {
		m.Refunds.Inc()
	}
}

func (m *Metrics) IncrementRewardPoll(state, reason string) {
	if m != nil {
		m.RewardPolls.WithLabelValues(state, reason).Inc()
	}
}
