/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/acronis/go-validatorkit/internal/libinfo"
)

// Outcome is the result of a single admission check.
type Outcome string

// Admission check outcomes.
const (
	OutcomeAllowed  Outcome = "allowed"
	OutcomeFlagged  Outcome = "flagged"
	OutcomeRejected Outcome = "rejected"
)

// Metric label names.
const (
	MetricsLabelPolicy   = "policy"
	MetricsLabelDecision = "decision"
)

// MetricsCollector collects statistics about admission decisions.
type MetricsCollector interface {
	IncDecisions(policy Policy, outcome Outcome)
}

// PrometheusMetricsOpts represents options for PrometheusMetrics.
type PrometheusMetricsOpts struct {
	// Namespace is a namespace for metrics. It will be prepended to all metric names.
	Namespace string

	// ConstLabels is a set of labels that will be applied to all metrics.
	// The library version label is always added.
	ConstLabels prometheus.Labels
}

// PrometheusMetrics represents Prometheus metrics of the admission engine.
type PrometheusMetrics struct {
	DecisionsTotal *prometheus.CounterVec
}

var _ MetricsCollector = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics creates a new instance of PrometheusMetrics with default options.
func NewPrometheusMetrics() *PrometheusMetrics {
	return NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{})
}

// NewPrometheusMetricsWithOpts creates a new instance of PrometheusMetrics with the provided options.
func NewPrometheusMetricsWithOpts(opts PrometheusMetricsOpts) *PrometheusMetrics {
	return &PrometheusMetrics{
		DecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "validator_rate_limit_decisions_total",
			Help:        "Number of validation rate limit decisions.",
			ConstLabels: libinfo.AddPrometheusLibVersionLabel(opts.ConstLabels),
		}, []string{MetricsLabelPolicy, MetricsLabelDecision}),
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(pm.DecisionsTotal)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (pm *PrometheusMetrics) Unregister() {
	prometheus.Unregister(pm.DecisionsTotal)
}

// IncDecisions increments the number of decisions with the given outcome for the policy.
func (pm *PrometheusMetrics) IncDecisions(policy Policy, outcome Outcome) {
	pm.DecisionsTotal.With(prometheus.Labels{
		MetricsLabelPolicy:   policy.String(),
		MetricsLabelDecision: string(outcome),
	}).Inc()
}

type disabledMetrics struct{}

func (disabledMetrics) IncDecisions(Policy, Outcome) {}
