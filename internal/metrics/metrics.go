// Package metrics provides a simple Prometheus-compatible metrics endpoint.
package metrics

import (
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics holds runtime counters for the session manager daemon.
type Metrics struct {
	// Session mutations
	SessionsCreated  atomic.Int64
	UsageEvents      atomic.Int64
	UsageEventErrors atomic.Int64
	ActivityAppends  atomic.Int64

	// Transcript ingest
	IngestScans      atomic.Int64
	IngestScanErrors atomic.Int64

	// Live channel
	EventsPublished    atomic.Int64
	EventsDelivered    atomic.Int64
	SubscribersDropped atomic.Int64

	// Path reconciler
	ReconcileApplies     atomic.Int64
	ReconcileApplyErrors atomic.Int64

	// HTTP surface
	HTTPRequests atomic.Int64
	HTTPErrors   atomic.Int64

	// Timing (last ingest pass duration in ms)
	LastIngestDurationMs atomic.Int64

	startTime time.Time
}

var (
	global     *Metrics
	globalOnce sync.Once
)

// Global returns the global metrics instance
func Global() *Metrics {
	globalOnce.Do(func() {
		global = &Metrics{
			startTime: time.Now(),
		}
	})
	return global
}

// RecordSessionCreated records a new session row
func (m *Metrics) RecordSessionCreated() {
	m.SessionsCreated.Add(1)
}

// RecordUsage records a usage delta fold attempt
func (m *Metrics) RecordUsage(success bool) {
	m.UsageEvents.Add(1)
	if !success {
		m.UsageEventErrors.Add(1)
	}
}

// RecordActivity records an appended activity entry
func (m *Metrics) RecordActivity() {
	m.ActivityAppends.Add(1)
}

// RecordIngest records a transcript ingest pass
func (m *Metrics) RecordIngest(success bool, durationMs int64) {
	m.IngestScans.Add(1)
	if !success {
		m.IngestScanErrors.Add(1)
	}
	m.LastIngestDurationMs.Store(durationMs)
}

// RecordEventPublished records an event entering the broadcast bus
func (m *Metrics) RecordEventPublished() {
	m.EventsPublished.Add(1)
}

// RecordEventDelivered records an event handed to one subscriber queue
func (m *Metrics) RecordEventDelivered() {
	m.EventsDelivered.Add(1)
}

// RecordSubscriberDropped records a viewer disconnected for slow consumption
func (m *Metrics) RecordSubscriberDropped() {
	m.SubscribersDropped.Add(1)
}

// RecordReconcileApply records a path correction attempt
func (m *Metrics) RecordReconcileApply(success bool) {
	m.ReconcileApplies.Add(1)
	if !success {
		m.ReconcileApplyErrors.Add(1)
	}
}

// RecordRequest records an HTTP request by final status code
func (m *Metrics) RecordRequest(status int) {
	m.HTTPRequests.Add(1)
	if status >= http.StatusInternalServerError {
		m.HTTPErrors.Add(1)
	}
}

// Handler returns an HTTP handler for /metrics endpoint
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")

		uptime := time.Since(m.startTime).Seconds()

		fmt.Fprintf(w, "# HELP csm_uptime_seconds Time since the daemon started\n")
		fmt.Fprintf(w, "# TYPE csm_uptime_seconds gauge\n")
		fmt.Fprintf(w, "csm_uptime_seconds %.2f\n\n", uptime)

		fmt.Fprintf(w, "# HELP csm_sessions_created_total Total sessions created\n")
		fmt.Fprintf(w, "# TYPE csm_sessions_created_total counter\n")
		fmt.Fprintf(w, "csm_sessions_created_total %d\n\n", m.SessionsCreated.Load())

		fmt.Fprintf(w, "# HELP csm_usage_events_total Total usage delta folds\n")
		fmt.Fprintf(w, "# TYPE csm_usage_events_total counter\n")
		fmt.Fprintf(w, "csm_usage_events_total %d\n\n", m.UsageEvents.Load())

		fmt.Fprintf(w, "# HELP csm_usage_event_errors_total Total failed usage folds\n")
		fmt.Fprintf(w, "# TYPE csm_usage_event_errors_total counter\n")
		fmt.Fprintf(w, "csm_usage_event_errors_total %d\n\n", m.UsageEventErrors.Load())

		fmt.Fprintf(w, "# HELP csm_activity_appends_total Total activity entries appended\n")
		fmt.Fprintf(w, "# TYPE csm_activity_appends_total counter\n")
		fmt.Fprintf(w, "csm_activity_appends_total %d\n\n", m.ActivityAppends.Load())

		fmt.Fprintf(w, "# HELP csm_ingest_scans_total Total transcript ingest passes\n")
		fmt.Fprintf(w, "# TYPE csm_ingest_scans_total counter\n")
		fmt.Fprintf(w, "csm_ingest_scans_total %d\n\n", m.IngestScans.Load())

		fmt.Fprintf(w, "# HELP csm_ingest_scan_errors_total Total failed ingest passes\n")
		fmt.Fprintf(w, "# TYPE csm_ingest_scan_errors_total counter\n")
		fmt.Fprintf(w, "csm_ingest_scan_errors_total %d\n\n", m.IngestScanErrors.Load())

		fmt.Fprintf(w, "# HELP csm_events_published_total Total events entering the broadcast bus\n")
		fmt.Fprintf(w, "# TYPE csm_events_published_total counter\n")
		fmt.Fprintf(w, "csm_events_published_total %d\n\n", m.EventsPublished.Load())

		fmt.Fprintf(w, "# HELP csm_events_delivered_total Total events handed to subscriber queues\n")
		fmt.Fprintf(w, "# TYPE csm_events_delivered_total counter\n")
		fmt.Fprintf(w, "csm_events_delivered_total %d\n\n", m.EventsDelivered.Load())

		fmt.Fprintf(w, "# HELP csm_subscribers_dropped_total Total viewers dropped for slow consumption\n")
		fmt.Fprintf(w, "# TYPE csm_subscribers_dropped_total counter\n")
		fmt.Fprintf(w, "csm_subscribers_dropped_total %d\n\n", m.SubscribersDropped.Load())

		fmt.Fprintf(w, "# HELP csm_reconcile_applies_total Total path correction attempts\n")
		fmt.Fprintf(w, "# TYPE csm_reconcile_applies_total counter\n")
		fmt.Fprintf(w, "csm_reconcile_applies_total %d\n\n", m.ReconcileApplies.Load())

		fmt.Fprintf(w, "# HELP csm_reconcile_apply_errors_total Total failed path corrections\n")
		fmt.Fprintf(w, "# TYPE csm_reconcile_apply_errors_total counter\n")
		fmt.Fprintf(w, "csm_reconcile_apply_errors_total %d\n\n", m.ReconcileApplyErrors.Load())

		fmt.Fprintf(w, "# HELP csm_http_requests_total Total HTTP requests served\n")
		fmt.Fprintf(w, "# TYPE csm_http_requests_total counter\n")
		fmt.Fprintf(w, "csm_http_requests_total %d\n\n", m.HTTPRequests.Load())

		fmt.Fprintf(w, "# HELP csm_http_errors_total Total HTTP requests answered 5xx\n")
		fmt.Fprintf(w, "# TYPE csm_http_errors_total counter\n")
		fmt.Fprintf(w, "csm_http_errors_total %d\n\n", m.HTTPErrors.Load())

		fmt.Fprintf(w, "# HELP csm_last_ingest_duration_ms Last ingest pass duration\n")
		fmt.Fprintf(w, "# TYPE csm_last_ingest_duration_ms gauge\n")
		fmt.Fprintf(w, "csm_last_ingest_duration_ms %d\n", m.LastIngestDurationMs.Load())
	}
}
