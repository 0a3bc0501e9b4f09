// Package prompush implements a Prometheus Pushgateway backend for the
// internal/metrics package.
//
// Unlike the datadog backend, Prometheus client types already buffer and
// aggregate, so this backend only maps facade names onto registered vectors
// and pushes the whole registry on Flush().
package prompush

import (
	"errors"
	"strings"

	"tempetl/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Backend implements metrics.Backend against a Pushgateway.
type Backend struct {
	registry  *prometheus.Registry
	steps     *prometheus.CounterVec
	records   *prometheus.CounterVec
	durations *prometheus.HistogramVec

	// pushFn is a seam; production uses pusher.Push.
	pushFn func() error
}

// NewBackend creates a backend pushing to gatewayURL under jobName.
//
// Errors:
//   - Returns an error when gatewayURL is empty. Unreachable gateways are
//     only detected at Flush() time.
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if strings.TrimSpace(gatewayURL) == "" {
		return nil, errors.New("prompush: empty gateway URL")
	}
	if strings.TrimSpace(jobName) == "" {
		jobName = "fetch_temps"
	}

	reg := prometheus.NewRegistry()

	steps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: metrics.MetricStepTotal,
		Help: "Completed pipeline steps by status.",
	}, []string{"step", "status"})

	records := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: metrics.MetricRecordsTotal,
		Help: "Records processed by kind.",
	}, []string{"kind"})

	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    metrics.MetricStepDurationSeconds,
		Help:    "Pipeline step duration in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
	}, []string{"step", "status"})

	reg.MustRegister(steps, records, durations)

	pusher := push.New(gatewayURL, jobName).Gatherer(reg)

	return &Backend{
		registry:  reg,
		steps:     steps,
		records:   records,
		durations: durations,
		pushFn:    pusher.Push,
	}, nil
}

// IncCounter implements metrics.Backend.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}

	switch name {
	case metrics.MetricStepTotal:
		b.steps.With(prometheus.Labels{
			"step":   labelOr(labels, "step", "unknown"),
			"status": labelOr(labels, "status", "unknown"),
		}).Add(delta)

	case metrics.MetricRecordsTotal:
		kind := labels["kind"]
		if kind == "" {
			return
		}
		b.records.With(prometheus.Labels{"kind": kind}).Add(delta)

	default:
		// Unknown metrics are ignored.
	}
}

// ObserveHistogram implements metrics.Backend.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 {
		return
	}

	switch name {
	case metrics.MetricStepDurationSeconds:
		b.durations.With(prometheus.Labels{
			"step":   labelOr(labels, "step", "unknown"),
			"status": labelOr(labels, "status", "unknown"),
		}).Observe(value)

	default:
		// Unknown histograms are ignored.
	}
}

// Flush pushes the registry state to the gateway.
func (b *Backend) Flush() error {
	return b.pushFn()
}

// Close is an alias for Flush; the backend holds no other resources.
func (b *Backend) Close() error {
	return b.Flush()
}

func labelOr(l metrics.Labels, key, fallback string) string {
	if v := l[key]; v != "" {
		return v
	}
	return fallback
}

var _ metrics.Backend = (*Backend)(nil)
