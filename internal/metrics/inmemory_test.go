package metrics

import (
	"testing"
	"time"
)

func TestInMemoryRecorder_Snapshot(t *testing.T) {
	t.Parallel()

	m := NewInMemory()
	m.IncJobSubmitted("accepted")
	m.IncJobSubmitted("accepted")
	m.IncJobSubmitted("insufficient_credits")
	m.IncJobFinished("failed")
	m.ObserveJobDuration(2 * time.Second)
	m.IncJobsTimedOut(3)
	m.IncJobsTimedOut(0)
	m.IncJobCacheHit()
	m.IncStatusReport("kafka", "applied")
	m.SetWebhookQueueDepth(7)

	snap := m.Snapshot()

	if snap.JobsSubmitted["accepted"] != 2 || snap.JobsSubmitted["insufficient_credits"] != 1 {
		t.Errorf("unexpected submissions: %v", snap.JobsSubmitted)
	}
	if snap.JobsFinished["failed"] != 1 {
		t.Errorf("unexpected finished: %v", snap.JobsFinished)
	}
	if snap.JobDurationCount != 1 || snap.JobDurationTotalNs != int64(2*time.Second) {
		t.Errorf("unexpected duration: %d/%d", snap.JobDurationCount, snap.JobDurationTotalNs)
	}
	if snap.JobsTimedOut != 3 {
		t.Errorf("JobsTimedOut = %d, want 3", snap.JobsTimedOut)
	}
	if snap.JobCacheHits != 1 || snap.JobCacheMisses != 0 {
		t.Errorf("unexpected cache counters: %d/%d", snap.JobCacheHits, snap.JobCacheMisses)
	}
	if snap.StatusReports["kafka/applied"] != 1 {
		t.Errorf("unexpected reports: %v", snap.StatusReports)
	}
	if snap.WebhookQueueDepth != 7 {
		t.Errorf("WebhookQueueDepth = %d, want 7", snap.WebhookQueueDepth)
	}
}

func TestInMemoryRecorder_SnapshotIsCopy(t *testing.T) {
	t.Parallel()

	m := NewInMemory()
	m.IncJobFinished("completed")
	snap := m.Snapshot()
	snap.JobsFinished["completed"] = 100

	if got := m.Snapshot().JobsFinished["completed"]; got != 1 {
		t.Errorf("snapshot mutation leaked: %d", got)
	}
}
