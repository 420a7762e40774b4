// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Edit submissions; outcome: accepted, mock, invalid, insufficient_credits, dispatch_failed, error
	IncJobSubmitted(outcome string)
	// Terminal transitions; status: "completed" or "failed"
	IncJobFinished(status string)
	ObserveJobDuration(duration time.Duration)
	IncJobsTimedOut(count int)

	// Status polling path
	IncJobCacheHit()
	IncJobCacheMiss()

	// Status reports; source: http, kafka, stream, sweeper, dispatch.
	// outcome: applied, heartbeat, ignored, invalid, not_found, error
	IncStatusReport(source, outcome string)

	// Webhook delivery
	IncWebhookDelivery(status string)
	ObserveWebhookDeliveryDuration(duration time.Duration)
	SetWebhookQueueDepth(depth int64)
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
