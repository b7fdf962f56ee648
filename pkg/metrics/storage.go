package metrics

import (
	"sync"
	"time"

	"github.com/marmos91/dittofm/pkg/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// storageVecs holds the collectors shared by every storage backend. They are
// registered once and curried with the storage key per adapter.
type storageVecs struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	bytesTransferred  *prometheus.CounterVec
	errorsTotal       *prometheus.CounterVec
}

var (
	storageCollectors     *storageVecs
	storageCollectorsOnce sync.Once
)

func getStorageVecs(reg prometheus.Registerer) *storageVecs {
	storageCollectorsOnce.Do(func() {
		storageCollectors = &storageVecs{
			operationsTotal: promauto.With(reg).NewCounterVec(
				prometheus.CounterOpts{
					Name: "dittofm_storage_operations_total",
					Help: "Total number of storage backend operations by storage, operation and status",
				},
				[]string{"storage", "operation", "status"},
			),
			operationDuration: promauto.With(reg).NewHistogramVec(
				prometheus.HistogramOpts{
					Name: "dittofm_storage_operation_duration_seconds",
					Help: "Duration of storage backend operations in seconds",
					Buckets: []float64{
						0.001, // 1ms
						0.01,  // 10ms
						0.025, // 25ms
						0.05,  // 50ms
						0.1,   // 100ms
						0.25,  // 250ms
						0.5,   // 500ms
						1.0,   // 1s
						2.5,   // 2.5s
						10.0,  // 10s
						30.0,  // 30s
					},
				},
				[]string{"storage", "operation"},
			),
			bytesTransferred: promauto.With(reg).NewCounterVec(
				prometheus.CounterOpts{
					Name: "dittofm_storage_bytes_transferred_total",
					Help: "Total bytes read from or written to storage backends",
				},
				[]string{"storage", "operation"}, // read or write
			),
			errorsTotal: promauto.With(reg).NewCounterVec(
				prometheus.CounterOpts{
					Name: "dittofm_storage_errors_total",
					Help: "Total number of storage backend errors by storage, operation and error code",
				},
				[]string{"storage", "operation", "code"},
			),
		}
	})
	return storageCollectors
}

// storageMetrics is the Prometheus implementation of storage.Metrics for a
// single storage key.
//
// This implementation collects:
//   - Operation counts (List, Write, CopyObject, ...)
//   - Operation latency
//   - Bytes transferred
//   - Error rates by error code
type storageMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration prometheus.ObserverVec
	bytesTransferred  *prometheus.CounterVec
	errorsTotal       *prometheus.CounterVec
}

// NewStorageMetrics creates a Prometheus-backed storage.Metrics for the
// storage registered under key.
//
// Returns nil if metrics are not enabled (InitRegistry not called), which
// causes the adapter to use storage.MetricsOrNoop's built-in no-op.
func NewStorageMetrics(key string) storage.Metrics {
	if !IsEnabled() {
		return nil
	}

	vecs := getStorageVecs(GetRegistry())
	labels := prometheus.Labels{"storage": key}

	return &storageMetrics{
		operationsTotal:   vecs.operationsTotal.MustCurryWith(labels),
		operationDuration: vecs.operationDuration.MustCurryWith(labels),
		bytesTransferred:  vecs.bytesTransferred.MustCurryWith(labels),
		errorsTotal:       vecs.errorsTotal.MustCurryWith(labels),
	}
}

// ObserveOperation implements storage.Metrics.ObserveOperation
func (m *storageMetrics) ObserveOperation(operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
		m.errorsTotal.WithLabelValues(operation, string(storage.ErrorCode(err))).Inc()
	}

	m.operationsTotal.WithLabelValues(operation, status).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordBytes implements storage.Metrics.RecordBytes
func (m *storageMetrics) RecordBytes(operation string, bytes int64) {
	m.bytesTransferred.WithLabelValues(operation).Add(float64(bytes))
}
