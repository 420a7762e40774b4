package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aivideopro/aivideopro/internal/model"
)

const (
	jobKeyPrefix = "job:"

	// ProcessingJobTTL bounds how stale a cached in-flight job can be if an
	// invalidation is lost.
	ProcessingJobTTL = 10 * time.Minute

	// TerminalJobTTL applies once the job can no longer change.
	TerminalJobTTL = 24 * time.Hour
)

// GetJob reads a cached job. Returns ErrCacheMiss if absent.
func (c *Cache) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	var cached model.CachedJob
	res := c.client.HGetAll(ctx, jobKeyPrefix+jobID)
	if err := res.Err(); err != nil {
		return nil, fmt.Errorf("redis hgetall failed: %w", err)
	}
	if len(res.Val()) == 0 {
		return nil, ErrCacheMiss
	}
	if err := res.Scan(&cached); err != nil {
		return nil, fmt.Errorf("scan cached job: %w", err)
	}
	return cached.ToJob(jobID), nil
}

// setJobScript replaces the job hash unless the cached job already
// finished and the new snapshot has not. ARGV: ttl ms, "1" if the new
// snapshot is terminal, then field/value pairs. Returns 0 when skipped.
var setJobScript = redis.NewScript(fmt.Sprintf(`
local cur = redis.call('HGET', KEYS[1], 'status')
if (cur == '%s' or cur == '%s') and ARGV[2] ~= '1' then
	return 0
end
redis.call('DEL', KEYS[1])
redis.call('HSET', KEYS[1], unpack(ARGV, 3))
redis.call('PEXPIRE', KEYS[1], ARGV[1])
return 1
`, model.JobStatusCompleted, model.JobStatusFailed))

// SetJob stores a job snapshot. A terminal snapshot is never replaced by a
// non-terminal one, so a late in-flight write cannot hide a result.
func (c *Cache) SetJob(ctx context.Context, job *model.Job) error {
	terminal := "0"
	if job.Status.IsTerminal() {
		terminal = "1"
	}
	args := append([]any{jobTTL(job.Status).Milliseconds(), terminal}, cachedJobFields(job.ToCachedJob())...)

	if err := setJobScript.Run(ctx, c.client, []string{jobKeyPrefix + job.ID}, args...).Err(); err != nil {
		return fmt.Errorf("failed to cache job: %w", err)
	}
	return nil
}

// cachedJobFields flattens a CachedJob into HSET field/value pairs using the
// same names as its redis tags.
func cachedJobFields(c *model.CachedJob) []any {
	return []any{
		"user_id", c.UserID,
		"video_url", c.VideoURL,
		"prompt", c.Prompt,
		"status", c.Status,
		"result_url", c.ResultURL,
		"error", c.Error,
		"created_at", c.CreatedAt,
		"updated_at", c.UpdatedAt,
		"completed_at", c.CompletedAt,
	}
}

func jobTTL(status model.JobStatus) time.Duration {
	if status.IsTerminal() {
		return TerminalJobTTL
	}
	return ProcessingJobTTL
}

// DeleteJob drops a cached job.
func (c *Cache) DeleteJob(ctx context.Context, jobID string) error {
	if err := c.client.Del(ctx, jobKeyPrefix+jobID).Err(); err != nil {
		return fmt.Errorf("failed to delete job from cache: %w", err)
	}
	return nil
}
