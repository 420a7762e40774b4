package handler

import (
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"

	"github.com/aivideopro/aivideopro/internal/metrics"
)

// MetricsHandler exposes in-memory metrics.
type MetricsHandler struct {
	snapshotter metrics.Snapshotter
}

// NewMetricsHandler creates a new MetricsHandler.
func NewMetricsHandler(snapshotter metrics.Snapshotter) *MetricsHandler {
	return &MetricsHandler{snapshotter: snapshotter}
}

// Metrics returns metrics in Prometheus exposition format.
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.snapshotter == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	snap := h.snapshotter.Snapshot()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	writeLabelled(w, "aivideopro_jobs_submitted_total", "outcome", snap.JobsSubmitted)
	writeLabelled(w, "aivideopro_jobs_finished_total", "status", snap.JobsFinished)
	writeMetric(w, "aivideopro_job_duration_seconds_count %d\n", snap.JobDurationCount)
	writeMetric(w, "aivideopro_job_duration_seconds_sum %.6f\n", float64(snap.JobDurationTotalNs)/1e9)
	writeMetric(w, "aivideopro_jobs_timed_out_total %d\n", snap.JobsTimedOut)

	writeMetric(w, "aivideopro_job_cache_hits_total %d\n", snap.JobCacheHits)
	writeMetric(w, "aivideopro_job_cache_misses_total %d\n", snap.JobCacheMisses)

	for _, key := range sortedKeys(snap.StatusReports) {
		source, outcome, _ := strings.Cut(key, "/")
		writeMetric(w, "aivideopro_status_reports_total{source=%q,outcome=%q} %d\n", source, outcome, snap.StatusReports[key])
	}

	writeLabelled(w, "aivideopro_webhook_deliveries_total", "status", snap.WebhookDeliveries)
	writeMetric(w, "aivideopro_webhook_delivery_duration_seconds_count %d\n", snap.WebhookDurationCount)
	writeMetric(w, "aivideopro_webhook_delivery_duration_seconds_sum %.6f\n", float64(snap.WebhookDurationTotalNs)/1e9)
	writeMetric(w, "aivideopro_webhook_queue_depth %d\n", snap.WebhookQueueDepth)
}

// writeLabelled writes one line per label value, sorted so scrapes are
// stable.
func writeLabelled(w io.Writer, name, label string, values map[string]uint64) {
	for _, key := range sortedKeys(values) {
		writeMetric(w, "%s{%s=%q} %d\n", name, label, key, values[key])
	}
}

func sortedKeys(m map[string]uint64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func writeMetric(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
