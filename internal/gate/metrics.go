// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package gate

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for auth decision metrics.
const (
	OutcomeGranted = "granted"
	OutcomeDenied  = "denied"
	OutcomeExempt  = "exempt"
	OutcomeError   = "error"
)

// AuthDecisions counts per-request authentication decisions.
// Use RegisterMetrics to register this with a Prometheus registry.
var AuthDecisions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "authgate_auth_decisions_total",
		Help: "Total number of authentication decisions",
	},
	[]string{"strategy", "outcome"},
)

// RegisterMetrics registers gate package metrics with the given Prometheus
// registry. Call at startup to make metrics available on /metrics.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(AuthDecisions)
}
