package subscription

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports billing counters. A nil *Metrics records nothing.
type Metrics struct {
	transitions   *prometheus.CounterVec
	webhookEvents *prometheus.CounterVec
	sideEffects   *prometheus.CounterVec
	sweepResults  *prometheus.CounterVec
	refundFailed  prometheus.Counter
}

// NewMetrics registers the billing counters on reg (the default registerer when nil).
// Registering twice on the same registerer reuses the existing collectors.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	const ns = "billing"

	m := &Metrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "transitions_total",
			Help:      "Subscription state transitions applied.",
		}, []string{"from", "to", "event"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "webhook_events_total",
			Help:      "Inbound gateway webhook deliveries by outcome.",
		}, []string{"event", "outcome"}),
		sideEffects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "side_effects_total",
			Help:      "Best-effort gateway calls made after a transition.",
		}, []string{"kind", "outcome"}),
		sweepResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "sweep_results_total",
			Help:      "Expired trial sweep results.",
		}, []string{"outcome"}),
		refundFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "refund_failures_total",
			Help:      "Verification charges whose refund failed and need operator follow-up.",
		}),
	}

	var err error
	if m.transitions, err = register(reg, m.transitions); err != nil {
		return nil, err
	}
	if m.webhookEvents, err = register(reg, m.webhookEvents); err != nil {
		return nil, err
	}
	if m.sideEffects, err = register(reg, m.sideEffects); err != nil {
		return nil, err
	}
	if m.sweepResults, err = register(reg, m.sweepResults); err != nil {
		return nil, err
	}
	if m.refundFailed, err = register(reg, m.refundFailed); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("register billing metric: %w", err)
	}
	return c, nil
}

func (m *Metrics) transition(from, to Status, event string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(string(from), string(to), event).Inc()
}

func (m *Metrics) webhook(event, outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(event, outcome).Inc()
}

func (m *Metrics) sideEffect(kind string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.sideEffects.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) sweep(outcome string) {
	if m == nil {
		return
	}
	m.sweepResults.WithLabelValues(outcome).Inc()
}

func (m *Metrics) refundFailure() {
	if m == nil {
		return
	}
	m.refundFailed.Inc()
}
