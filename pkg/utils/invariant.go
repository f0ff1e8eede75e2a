// Invariants are conditions our own code must uphold; a violated invariant means a bug, not an external failure.
// Instead of panicking in production, a violation records an error log and increments a monitoring counter that
// alerting is wired to. Under test mode a violation panics so bugs surface immediately. It stays the caller's job
// to handle the erroneous case (early return, skip the record, etc.) after raising.
//
// Do not raise invariants for conditions caused by external systems; a failed Redis or Postgres call is an error,
// not an invariant violation. A store handing us a record whose declared size disagrees with the negotiated buffer
// is a good candidate.

package utils

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	promclient "github.com/prometheus/client_model/go"
)

var invariantsMetric = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "invariants_total",
	Help: "The total number of invariant violations",
}, []string{
	"module", // The module in which this invariant occurred.
	"type",   // The type of the invariant that occurred.
})

func RaiseInvariant(module, invariantType, msg string, args ...any) {
	invariantsMetric.WithLabelValues(module, invariantType).Inc()
	slog.With("invariant", invariantType, "module", module).Error(msg, args...)
	if IsTestMode {
		panic("invariant violated: " + invariantType)
	}
}

// GetMetricValue returns the current value of the invariant metric for the given module and type.
func GetMetricValue(module, invariantType string) int {
	var metric = &promclient.Metric{}
	if err := invariantsMetric.WithLabelValues(module, invariantType).Write(metric); err != nil {
		slog.Error(err.Error())
		return 0
	}
	return int(metric.Counter.GetValue())
}
