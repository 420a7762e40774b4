package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

func (n *NoopRecorder) IncJobSubmitted(string)                       {}
func (n *NoopRecorder) IncJobFinished(string)                        {}
func (n *NoopRecorder) ObserveJobDuration(time.Duration)             {}
func (n *NoopRecorder) IncJobsTimedOut(int)                          {}
func (n *NoopRecorder) IncJobCacheHit()                              {}
func (n *NoopRecorder) IncJobCacheMiss()                             {}
func (n *NoopRecorder) IncStatusReport(string, string)               {}
func (n *NoopRecorder) IncWebhookDelivery(string)                    {}
func (n *NoopRecorder) ObserveWebhookDeliveryDuration(time.Duration) {}
func (n *NoopRecorder) SetWebhookQueueDepth(int64)                   {}
