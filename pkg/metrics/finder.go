package metrics

import (
	"time"

	"github.com/marmos91/dittofm/pkg/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// FinderMetrics provides observability for file manager commands.
//
// Implementations collect metrics about commands, transfers, uploads and
// archive extraction. This interface is optional: if not provided to the
// command router, a no-op implementation is used with zero overhead.
//
// Example usage:
//
//	// With metrics enabled
//	m := metrics.NewFinderMetrics()
//	f := finder.New(reg, config, m)
//
//	// Without metrics (no-op)
//	f := finder.New(reg, config, nil)
type FinderMetrics interface {
	// RecordCommand records a completed command with its outcome.
	//
	// Parameters:
	//   - command: Command name (e.g., "index", "upload", "move")
	//   - storage: Storage key the command ran against ("" if unresolved)
	//   - duration: Time taken to process the command
	//   - err: Error if the command failed, nil if successful
	RecordCommand(command, storage string, duration time.Duration, err error)

	// RecordCommandStart increments the in-flight command gauge.
	RecordCommandStart(command string)

	// RecordCommandEnd decrements the in-flight command gauge.
	RecordCommandEnd(command string)

	// RecordBytesTransferred records bytes streamed to or from clients.
	//
	// Parameters:
	//   - direction: "download" or "upload"
	//   - bytes: Number of bytes transferred
	RecordBytesTransferred(direction string, bytes int64)

	// RecordUpload records the outcome of one uploaded file.
	//
	// Parameters:
	//   - result: "stored" or an error code such as "SizeLimitExceeded"
	RecordUpload(result string)

	// RecordExtraction records the entries handled by one unarchive.
	RecordExtraction(extracted, skipped int)

	// RecordRateLimited increments the rejected request counter.
	RecordRateLimited()
}

// finderMetrics is the Prometheus implementation of FinderMetrics.
type finderMetrics struct {
	commandsTotal    *prometheus.CounterVec
	commandDuration  *prometheus.HistogramVec
	commandsInFlight *prometheus.GaugeVec
	bytesTransferred *prometheus.CounterVec
	uploadsTotal     *prometheus.CounterVec
	archiveEntries   *prometheus.CounterVec
	rateLimitedTotal prometheus.Counter
}

// NewFinderMetrics creates a new Prometheus-backed FinderMetrics instance.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry
// not called).
func NewFinderMetrics() FinderMetrics {
	if !IsEnabled() {
		return &noopFinderMetrics{}
	}

	reg := GetRegistry()

	return &finderMetrics{
		commandsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittofm_commands_total",
				Help: "Total number of file manager commands by command, storage and error code",
			},
			[]string{"command", "storage", "code"},
		),
		commandDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "dittofm_command_duration_seconds",
				Help: "Duration of file manager commands in seconds",
				Buckets: []float64{
					0.001, // 1ms
					0.005, // 5ms
					0.01,  // 10ms
					0.05,  // 50ms
					0.1,   // 100ms
					0.5,   // 500ms
					1.0,   // 1s
					5.0,   // 5s
					30.0,  // 30s
					120.0, // 2min
				},
			},
			[]string{"command"},
		),
		commandsInFlight: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dittofm_commands_in_flight",
				Help: "Current number of commands being processed",
			},
			[]string{"command"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittofm_bytes_transferred_total",
				Help: "Total bytes streamed to or from clients",
			},
			[]string{"direction"}, // download or upload
		),
		uploadsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittofm_uploads_total",
				Help: "Total number of uploaded files by result",
			},
			[]string{"result"},
		),
		archiveEntries: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittofm_unarchive_entries_total",
				Help: "Total number of archive entries handled by outcome",
			},
			[]string{"outcome"}, // extracted or skipped
		),
		rateLimitedTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittofm_rate_limited_requests_total",
				Help: "Total number of requests rejected by the rate limiter",
			},
		),
	}
}

func (m *finderMetrics) RecordCommand(command, storageKey string, duration time.Duration, err error) {
	code := "ok"
	if err != nil {
		code = string(storage.ErrorCode(err))
	}

	m.commandsTotal.WithLabelValues(command, storageKey, code).Inc()
	m.commandDuration.WithLabelValues(command).Observe(duration.Seconds())
}

func (m *finderMetrics) RecordCommandStart(command string) {
	m.commandsInFlight.WithLabelValues(command).Inc()
}

func (m *finderMetrics) RecordCommandEnd(command string) {
	m.commandsInFlight.WithLabelValues(command).Dec()
}

func (m *finderMetrics) RecordBytesTransferred(direction string, bytes int64) {
	m.bytesTransferred.WithLabelValues(direction).Add(float64(bytes))
}

func (m *finderMetrics) RecordUpload(result string) {
	m.uploadsTotal.WithLabelValues(result).Inc()
}

func (m *finderMetrics) RecordExtraction(extracted, skipped int) {
	m.archiveEntries.WithLabelValues("extracted").Add(float64(extracted))
	m.archiveEntries.WithLabelValues("skipped").Add(float64(skipped))
}

func (m *finderMetrics) RecordRateLimited() {
	m.rateLimitedTotal.Inc()
}

// noopFinderMetrics is a no-op implementation of FinderMetrics with zero overhead.
type noopFinderMetrics struct{}

func (noopFinderMetrics) RecordCommand(command, storage string, duration time.Duration, err error) {}
func (noopFinderMetrics) RecordCommandStart(command string)                                         {}
func (noopFinderMetrics) RecordCommandEnd(command string)                                           {}
func (noopFinderMetrics) RecordBytesTransferred(direction string, bytes int64)                      {}
func (noopFinderMetrics) RecordUpload(result string)                                                {}
func (noopFinderMetrics) RecordExtraction(extracted, skipped int)                                   {}
func (noopFinderMetrics) RecordRateLimited()                                                        {}

// NewNoopFinderMetrics returns a FinderMetrics that discards everything.
func NewNoopFinderMetrics() FinderMetrics {
	return &noopFinderMetrics{}
}
