package report

import (
	"runtime"
	"strconv"
	"time"
)

// Metrics holds all application metrics.
type Metrics struct {
	// Evaluation metrics
	EvalRunsStarted  *Counter
	EvalRunsFinished *Counter
	EvalRunsFailed   *Counter
	EvalTriples      *Counter
	EvalRunDuration  *Histogram // milliseconds

	// Report storage metrics
	ReportsSaved *Counter
	ReportErrors *CounterVec // labels: op

	// Bus metrics
	BusEventsPublished *CounterVec   // labels: topic
	BusEventLatency    *HistogramVec // labels: topic
	BusErrors          *CounterVec   // labels: topic

	// HTTP metrics
	HTTPRequests         *CounterVec   // labels: method, path, status
	HTTPDuration         *HistogramVec // labels: method, path
	HTTPRequestsInFlight *Gauge

	// System metrics
	GoroutineCount *Gauge
	MemoryUsage    *Gauge // bytes

	startTime time.Time
}

// NewMetrics creates a metrics instance with all metrics initialized.
func NewMetrics() *Metrics {
	durationBuckets := []float64{10, 100, 500, 1000, 5000, 10000, 30000, 60000, 300000}

	return &Metrics{
		EvalRunsStarted: NewCounter(
			"kge_eval_runs_started_total",
			"Total number of evaluation runs started",
			nil,
		),
		EvalRunsFinished: NewCounter(
			"kge_eval_runs_finished_total",
			"Total number of evaluation runs finished",
			nil,
		),
		EvalRunsFailed: NewCounter(
			"kge_eval_runs_failed_total",
			"Total number of evaluation runs that failed",
			nil,
		),
		EvalTriples: NewCounter(
			"kge_eval_triples_total",
			"Total number of evaluation triples processed",
			nil,
		),
		EvalRunDuration: NewHistogram(
			"kge_eval_run_duration_milliseconds",
			"Evaluation run duration in milliseconds",
			durationBuckets,
		),
		ReportsSaved: NewCounter(
			"kge_reports_saved_total",
			"Total number of run reports saved",
			nil,
		),
		ReportErrors: NewCounterVec(
			"kge_report_errors_total",
			"Total number of report store errors",
			[]string{"op"},
		),
		BusEventsPublished: NewCounterVec(
			"kge_bus_events_published_total",
			"Total number of bus events published",
			[]string{"topic"},
		),
		BusEventLatency: NewHistogramVec(
			"kge_bus_event_latency_milliseconds",
			"Bus publish latency in milliseconds",
			[]string{"topic"},
			nil,
		),
		BusErrors: NewCounterVec(
			"kge_bus_errors_total",
			"Total number of bus publish errors",
			[]string{"topic"},
		),
		HTTPRequests: NewCounterVec(
			"kge_http_requests_total",
			"Total number of HTTP requests",
			[]string{"method", "path", "status"},
		),
		HTTPDuration: NewHistogramVec(
			"kge_http_request_duration_milliseconds",
			"HTTP request duration in milliseconds",
			[]string{"method", "path"},
			nil,
		),
		HTTPRequestsInFlight: NewGauge(
			"kge_http_requests_in_flight",
			"Number of HTTP requests currently being served",
			nil,
		),
		GoroutineCount: NewGauge(
			"kge_goroutines",
			"Number of goroutines",
			nil,
		),
		MemoryUsage: NewGauge(
			"kge_memory_bytes",
			"Allocated heap memory in bytes",
			nil,
		),
		startTime: time.Now(),
	}
}

// RecordBusPublish records a bus publish. Implements bus.MetricsRecorder.
func (m *Metrics) RecordBusPublish(topic string, latencyMs int64, err error) {
	m.BusEventsPublished.WithLabels(topic).Inc()
	m.BusEventLatency.WithLabels(topic).Observe(float64(latencyMs))
	if err != nil {
		m.BusErrors.WithLabels(topic).Inc()
	}
}

// RecordHTTPRequest records a served HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	m.HTTPRequests.WithLabels(method, path, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabels(method, path).Observe(float64(duration.Milliseconds()))
}

// RecordRunStarted records the start of an evaluation run.
func (m *Metrics) RecordRunStarted() {
	m.EvalRunsStarted.Inc()
}

// RecordRunFinished records a successfully finished evaluation run.
func (m *Metrics) RecordRunFinished(numTriples int, duration time.Duration) {
	m.EvalRunsFinished.Inc()
	m.EvalTriples.Add(int64(numTriples))
	m.EvalRunDuration.Observe(float64(duration.Milliseconds()))
}

// RecordRunFailed records a failed evaluation run.
func (m *Metrics) RecordRunFailed() {
	m.EvalRunsFailed.Inc()
}

// CollectSystem refreshes the system gauges.
func (m *Metrics) CollectSystem() {
	m.GoroutineCount.Set(float64(runtime.NumGoroutine()))

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	m.MemoryUsage.Set(float64(mem.HeapAlloc))
}

// UptimeSeconds returns the seconds since the metrics instance was created.
func (m *Metrics) UptimeSeconds() float64 {
	return time.Since(m.startTime).Seconds()
}
