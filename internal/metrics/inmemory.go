package metrics

import (
	"maps"
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	JobsSubmitted          map[string]uint64
	JobsFinished           map[string]uint64
	JobDurationCount       uint64
	JobDurationTotalNs     int64
	JobsTimedOut           uint64
	JobCacheHits           uint64
	JobCacheMisses         uint64
	StatusReports          map[string]uint64 // key: "source/outcome"
	WebhookDeliveries      map[string]uint64
	WebhookDurationCount   uint64
	WebhookDurationTotalNs int64
	WebhookQueueDepth      int64
}

// InMemoryRecorder keeps counters in process memory. Served on /metrics
// and used by tests.
type InMemoryRecorder struct {
	mu       sync.Mutex
	labelled map[string]map[string]uint64

	jobDurationCount       uint64
	jobDurationTotalNs     int64
	jobsTimedOut           uint64
	jobCacheHits           uint64
	jobCacheMisses         uint64
	webhookDurationCount   uint64
	webhookDurationTotalNs int64
	webhookQueueDepth      int64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{labelled: make(map[string]map[string]uint64)}
}

func (m *InMemoryRecorder) inc(family, label string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.labelled[family] == nil {
		m.labelled[family] = make(map[string]uint64)
	}
	m.labelled[family][label]++
}

func (m *InMemoryRecorder) family(name string) map[string]uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.labelled[name]))
	maps.Copy(out, m.labelled[name])
	return out
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	return Snapshot{
		JobsSubmitted:          m.family("jobs_submitted"),
		JobsFinished:           m.family("jobs_finished"),
		JobDurationCount:       atomic.LoadUint64(&m.jobDurationCount),
		JobDurationTotalNs:     atomic.LoadInt64(&m.jobDurationTotalNs),
		JobsTimedOut:           atomic.LoadUint64(&m.jobsTimedOut),
		JobCacheHits:           atomic.LoadUint64(&m.jobCacheHits),
		JobCacheMisses:         atomic.LoadUint64(&m.jobCacheMisses),
		StatusReports:          m.family("status_reports"),
		WebhookDeliveries:      m.family("webhook_deliveries"),
		WebhookDurationCount:   atomic.LoadUint64(&m.webhookDurationCount),
		WebhookDurationTotalNs: atomic.LoadInt64(&m.webhookDurationTotalNs),
		WebhookQueueDepth:      atomic.LoadInt64(&m.webhookQueueDepth),
	}
}

func (m *InMemoryRecorder) IncJobSubmitted(outcome string) { m.inc("jobs_submitted", outcome) }

func (m *InMemoryRecorder) IncJobFinished(status string) { m.inc("jobs_finished", status) }

func (m *InMemoryRecorder) ObserveJobDuration(duration time.Duration) {
	atomic.AddUint64(&m.jobDurationCount, 1)
	atomic.AddInt64(&m.jobDurationTotalNs, duration.Nanoseconds())
}

func (m *InMemoryRecorder) IncJobsTimedOut(count int) {
	if count > 0 {
		atomic.AddUint64(&m.jobsTimedOut, uint64(count))
	}
}

func (m *InMemoryRecorder) IncJobCacheHit() { atomic.AddUint64(&m.jobCacheHits, 1) }

func (m *InMemoryRecorder) IncJobCacheMiss() { atomic.AddUint64(&m.jobCacheMisses, 1) }

func (m *InMemoryRecorder) IncStatusReport(source, outcome string) {
	m.inc("status_reports", source+"/"+outcome)
}

func (m *InMemoryRecorder) IncWebhookDelivery(status string) { m.inc("webhook_deliveries", status) }

func (m *InMemoryRecorder) ObserveWebhookDeliveryDuration(duration time.Duration) {
	atomic.AddUint64(&m.webhookDurationCount, 1)
	atomic.AddInt64(&m.webhookDurationTotalNs, duration.Nanoseconds())
}

func (m *InMemoryRecorder) SetWebhookQueueDepth(depth int64) {
	atomic.StoreInt64(&m.webhookQueueDepth, depth)
}
