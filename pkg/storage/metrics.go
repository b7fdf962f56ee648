package storage

import "time"

// Metrics receives observations from storage adapters.
//
// Implementations must be safe for concurrent use. Adapters accept a nil
// Metrics and fall back to a no-op implementation with zero overhead.
type Metrics interface {
	// ObserveOperation records one backend call (e.g. "list", "write",
	// "put_object") with its latency and outcome.
	ObserveOperation(operation string, duration time.Duration, err error)

	// RecordBytes records content bytes moved by operation ("read" or "write").
	RecordBytes(operation string, bytes int64)
}

type noopMetrics struct{}

func (noopMetrics) ObserveOperation(string, time.Duration, error) {}
func (noopMetrics) RecordBytes(string, int64)                     {}

// MetricsOrNoop returns m, or a no-op implementation if m is nil.
func MetricsOrNoop(m Metrics) Metrics {
	if m == nil {
		return noopMetrics{}
	}
	return m
}
