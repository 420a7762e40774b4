//go:build integration

package repository

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aivideopro/aivideopro/internal/model"
	"github.com/aivideopro/aivideopro/internal/testutil"
)

func TestIntegrationJobRepository_CreateJobWithCharge(t *testing.T) {
	ctx, repo := newTestRepository(t)
	user := createTestUser(t, ctx, repo, 2)

	job := testutil.NewTestJob(t, user.ID)
	if err := repo.CreateJobWithCharge(ctx, job); err != nil {
		t.Fatalf("CreateJobWithCharge failed: %v", err)
	}

	if got := mustCredits(t, ctx, repo, user.ID); got != 1 {
		t.Errorf("credits = %d, want 1", got)
	}

	stored, err := repo.GetJobByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJobByID failed: %v", err)
	}
	if stored.Status != model.JobStatusProcessing || stored.CreditsCharged != 1 {
		t.Errorf("stored job = %+v", stored)
	}

	entries, err := repo.ListCreditEntries(ctx, user.ID, 10)
	if err != nil {
		t.Fatalf("ListCreditEntries failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want signup + charge", len(entries))
	}
	if entries[0].Reason != model.CreditReasonJobCharge || entries[0].Delta != -1 {
		t.Errorf("latest entry = %+v", entries[0])
	}
	if entries[0].JobID == nil || *entries[0].JobID != job.ID {
		t.Errorf("charge should reference the job")
	}
}

func TestIntegrationJobRepository_InsufficientCredits(t *testing.T) {
	ctx, repo := newTestRepository(t)
	user := createTestUser(t, ctx, repo, 0)

	job := testutil.NewTestJob(t, user.ID)
	err := repo.CreateJobWithCharge(ctx, job)
	if !errors.Is(err, ErrInsufficientCredits) {
		t.Fatalf("err = %v, want ErrInsufficientCredits", err)
	}
	if _, err := repo.GetJobByID(ctx, job.ID); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("job should not exist, got %v", err)
	}
}

func TestIntegrationJobRepository_ConcurrentChargesNeverOverdraw(t *testing.T) {
	ctx, repo := newTestRepository(t)
	user := createTestUser(t, ctx, repo, 3)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			job := testutil.NewTestJob(t, user.ID)
			if err := repo.CreateJobWithCharge(ctx, job); err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if accepted != 3 {
		t.Errorf("accepted = %d, want 3", accepted)
	}
	if got := mustCredits(t, ctx, repo, user.ID); got != 0 {
		t.Errorf("credits = %d, want 0", got)
	}
}

func TestIntegrationJobRepository_TransitionJob(t *testing.T) {
	ctx, repo := newTestRepository(t)
	user := createTestUser(t, ctx, repo, 1)

	job := testutil.NewTestJob(t, user.ID)
	if err := repo.CreateJobWithCharge(ctx, job); err != nil {
		t.Fatalf("CreateJobWithCharge failed: %v", err)
	}

	updated, changed, err := repo.TransitionJob(ctx, job.ID, model.StatusUpdate{Status: model.JobStatusProcessing})
	if err != nil || changed {
		t.Fatalf("heartbeat = %v, %v", changed, err)
	}
	if updated.Status != model.JobStatusProcessing {
		t.Errorf("status = %s", updated.Status)
	}

	updated, changed, err = repo.TransitionJob(ctx, job.ID, model.StatusUpdate{Status: model.JobStatusFailed, Error: "gpu lost"})
	if err != nil || !changed {
		t.Fatalf("fail = %v, %v", changed, err)
	}
	if updated.CompletedAt == nil || updated.Error != "gpu lost" {
		t.Errorf("updated = %+v", updated)
	}
	if got := mustCredits(t, ctx, repo, user.ID); got != 1 {
		t.Errorf("credits = %d, want refund to 1", got)
	}

	_, changed, err = repo.TransitionJob(ctx, job.ID, model.StatusUpdate{Status: model.JobStatusCompleted, ResultURL: "https://cdn.example.com/out.mp4"})
	if err != nil || changed {
		t.Fatalf("late report = %v, %v; want ignored", changed, err)
	}

	stored, _ := repo.GetJobByID(ctx, job.ID)
	if stored.Status != model.JobStatusFailed {
		t.Errorf("terminal status changed to %s", stored.Status)
	}
	if got := mustCredits(t, ctx, repo, user.ID); got != 1 {
		t.Errorf("credits = %d, refund must happen once", got)
	}

	if _, _, err := repo.TransitionJob(ctx, "missing", model.StatusUpdate{Status: model.JobStatusFailed}); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("err = %v, want ErrJobNotFound", err)
	}
}

func TestIntegrationJobRepository_ListJobsByUser(t *testing.T) {
	ctx, repo := newTestRepository(t)
	user := createTestUser(t, ctx, repo, 5)
	other := createTestUser(t, ctx, repo, 5)

	base := time.Now().UTC().Truncate(time.Microsecond)
	var ids []string
	for i := 0; i < 5; i++ {
		job := testutil.NewTestJob(t, user.ID)
		job.CreatedAt = base.Add(time.Duration(i) * time.Second)
		job.UpdatedAt = job.CreatedAt
		if err := repo.CreateJobWithCharge(ctx, job); err != nil {
			t.Fatalf("CreateJobWithCharge failed: %v", err)
		}
		ids = append(ids, job.ID)
	}
	if err := repo.CreateJobWithCharge(ctx, testutil.NewTestJob(t, other.ID)); err != nil {
		t.Fatalf("CreateJobWithCharge failed: %v", err)
	}

	page, cursor, err := repo.ListJobsByUser(ctx, user.ID, model.JobFilter{}, "", 3)
	if err != nil {
		t.Fatalf("ListJobsByUser failed: %v", err)
	}
	if len(page) != 3 || cursor == "" {
		t.Fatalf("page = %d cursor = %q", len(page), cursor)
	}
	if page[0].ID != ids[4] {
		t.Errorf("newest first: got %s, want %s", page[0].ID, ids[4])
	}

	rest, cursor, err := repo.ListJobsByUser(ctx, user.ID, model.JobFilter{}, cursor, 3)
	if err != nil {
		t.Fatalf("second page failed: %v", err)
	}
	if len(rest) != 2 || cursor != "" {
		t.Errorf("second page = %d cursor = %q", len(rest), cursor)
	}

	if _, _, err := repo.TransitionJob(ctx, ids[0], model.StatusUpdate{Status: model.JobStatusFailed}); err != nil {
		t.Fatal(err)
	}
	failed, _, err := repo.ListJobsByUser(ctx, user.ID, model.JobFilter{Status: model.JobStatusFailed}, "", 10)
	if err != nil {
		t.Fatalf("filtered list failed: %v", err)
	}
	if len(failed) != 1 || failed[0].ID != ids[0] {
		t.Errorf("failed filter = %v", failed)
	}

	if _, _, err := repo.ListJobsByUser(ctx, user.ID, model.JobFilter{}, "garbage", 3); !errors.Is(err, ErrInvalidCursor) {
		t.Errorf("err = %v, want ErrInvalidCursor", err)
	}
}

func TestIntegrationJobRepository_ListStaleJobs(t *testing.T) {
	ctx, repo := newTestRepository(t)
	user := createTestUser(t, ctx, repo, 2)

	// Submitted an hour ago; a recent heartbeat does not save it.
	stale := testutil.NewTestJob(t, user.ID)
	stale.CreatedAt = time.Now().UTC().Add(-time.Hour)
	// Submitted just now, with an old updated_at.
	fresh := testutil.NewTestJob(t, user.ID)
	fresh.UpdatedAt = time.Now().UTC().Add(-time.Hour)

	for _, job := range []*model.Job{stale, fresh} {
		if err := repo.CreateJobWithCharge(ctx, job); err != nil {
			t.Fatalf("CreateJobWithCharge failed: %v", err)
		}
	}

	jobs, err := repo.ListStaleJobs(ctx, time.Now().UTC().Add(-30*time.Minute), 10)
	if err != nil {
		t.Fatalf("ListStaleJobs failed: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != stale.ID {
		t.Errorf("stale jobs = %v", jobs)
	}
}
