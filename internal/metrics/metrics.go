// Package metrics is a small facade over a swappable metrics backend.
//
// The pipeline code records steps and record counts through this package
// only; backend packages (datadog, prompush) implement Backend and are wired
// once at startup. The default backend is a nop, so library code can always
// record without nil checks.
package metrics

import (
	"sync"
	"time"
)

// Metric names shared between the facade helpers and the backends.
const (
	MetricStepTotal           = "temps_step_total"
	MetricStepDurationSeconds = "temps_step_duration_seconds"
	MetricRecordsTotal        = "temps_records_total"
)

// Labels are free-form metric dimensions (step, status, kind, ...).
type Labels map[string]string

// Backend is implemented by concrete metric sinks.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	current Backend = nopBackend{}
)

// SetBackend installs b as the process-wide backend. A nil b restores the
// nop backend.
func SetBackend(b Backend) {
	if b == nil {
		b = nopBackend{}
	}
	mu.Lock()
	current = b
	mu.Unlock()
}

func backend() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// IncCounter forwards to the installed backend.
func IncCounter(name string, delta float64, labels Labels) {
	backend().IncCounter(name, delta, labels)
}

// ObserveHistogram forwards to the installed backend.
func ObserveHistogram(name string, value float64, labels Labels) {
	backend().ObserveHistogram(name, value, labels)
}

// Flush forwards to the installed backend.
func Flush() error {
	return backend().Flush()
}

// RecordStep records one completed pipeline step (parse, scan, csv, load)
// with its outcome and duration.
func RecordStep(step string, err error, d time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	l := Labels{"step": step, "status": status}
	IncCounter(MetricStepTotal, 1, l)
	ObserveHistogram(MetricStepDurationSeconds, d.Seconds(), l)
}

// RecordRecords counts records by kind (extracted, written, csv_rows,
// skipped_conversion). Non-positive counts are ignored.
func RecordRecords(kind string, n int64) {
	if n <= 0 {
		return
	}
	IncCounter(MetricRecordsTotal, float64(n), Labels{"kind": kind})
}
