package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/aivideopro/aivideopro/internal/model"
)

// Common errors for job repository operations.
var (
	ErrJobNotFound = errors.New("job not found")
	ErrJobExists   = errors.New("job already exists")
)

const jobColumns = `id, user_id, video_url, prompt, status, result_url, error, credits_charged, created_at, updated_at, completed_at`

// CreateJobWithCharge debits job.CreditsCharged from the owner and inserts
// the job in one transaction. Returns ErrInsufficientCredits without
// creating anything when the balance is too low.
func (r *Repository) CreateJobWithCharge(ctx context.Context, job *model.Job) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		if job.CreditsCharged > 0 {
			if err := debitCredits(ctx, tx, job.UserID, job.CreditsCharged); err != nil {
				return err
			}
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO jobs (`+jobColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`,
			job.ID,
			job.UserID,
			job.VideoURL,
			job.Prompt,
			job.Status,
			job.ResultURL,
			job.Error,
			job.CreditsCharged,
			job.CreatedAt,
			job.UpdatedAt,
			job.CompletedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrJobExists
			}
			return fmt.Errorf("failed to create job: %w", err)
		}

		if job.CreditsCharged > 0 {
			jobID := job.ID
			return insertCreditEntry(ctx, tx, job.UserID, -job.CreditsCharged, model.CreditReasonJobCharge, &jobID, "")
		}
		return nil
	})
}

// GetJobByID retrieves a job by its ID.
func (r *Repository) GetJobByID(ctx context.Context, id string) (*model.Job, error) {
	return scanJob(r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
}

// ListJobsByUser returns a page of a user's jobs, newest first.
func (r *Repository) ListJobsByUser(ctx context.Context, userID string, filter model.JobFilter, cursor string, limit int) ([]*model.Job, string, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE user_id = $1`
	args := []any{userID}
	argIndex := 2

	if cursor != "" {
		after, err := decodeCursor(cursor)
		if err != nil {
			return nil, "", err
		}
		query += fmt.Sprintf(" AND (created_at, id) < ($%d, $%d)", argIndex, argIndex+1)
		args = append(args, after.CreatedAt, after.ID)
		argIndex += 2
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIndex)
		args = append(args, filter.Status)
		argIndex++
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", argIndex)
	args = append(args, limit+1) // Fetch one extra to determine hasMore

	jobs, err := r.queryJobs(ctx, query, args...)
	if err != nil {
		return nil, "", err
	}

	var nextCursor string
	if len(jobs) > limit {
		jobs = jobs[:limit]
		last := jobs[len(jobs)-1]
		nextCursor = pageCursor{CreatedAt: last.CreatedAt, ID: last.ID}.encode()
	}

	return jobs, nextCursor, nil
}

// ListStaleJobs returns processing jobs created before cutoff. Heartbeats
// bump updated_at but do not extend a job's deadline.
func (r *Repository) ListStaleJobs(ctx context.Context, cutoff time.Time, limit int) ([]*model.Job, error) {
	return r.queryJobs(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE status = 'processing' AND created_at < $1
		ORDER BY created_at
		LIMIT $2
	`, cutoff, limit)
}

// TransitionJob applies a status report under a row lock.
//
// Terminal jobs are returned unchanged with changed=false. A processing
// report on a processing job only bumps updated_at. Moving to failed
// refunds credits_charged to the owner in the same transaction.
func (r *Repository) TransitionJob(ctx context.Context, id string, update model.StatusUpdate) (*model.Job, bool, error) {
	var (
		job     *model.Job
		changed bool
	)

	err := r.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		job, err = scanJob(tx.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}

		if job.IsTerminal() {
			return nil
		}

		now := time.Now().UTC()
		job.UpdatedAt = now

		if update.Status == model.JobStatusProcessing {
			_, err := tx.Exec(ctx, `UPDATE jobs SET updated_at = $2 WHERE id = $1`, id, now)
			if err != nil {
				return fmt.Errorf("failed to touch job: %w", err)
			}
			return nil
		}

		job.Status = update.Status
		job.ResultURL = update.ResultURL
		job.Error = update.Error
		job.CompletedAt = &now

		_, err = tx.Exec(ctx, `
			UPDATE jobs
			SET status = $2, result_url = $3, error = $4, updated_at = $5, completed_at = $5
			WHERE id = $1
		`, id, job.Status, job.ResultURL, job.Error, now)
		if err != nil {
			return fmt.Errorf("failed to update job status: %w", err)
		}

		if job.Status == model.JobStatusFailed && job.CreditsCharged > 0 {
			_, err := tx.Exec(ctx, `UPDATE users SET credits = credits + $2 WHERE id = $1`, job.UserID, job.CreditsCharged)
			if err != nil {
				return fmt.Errorf("failed to refund credits: %w", err)
			}
			jobID := job.ID
			if err := insertCreditEntry(ctx, tx, job.UserID, job.CreditsCharged, model.CreditReasonJobRefund, &jobID, ""); err != nil {
				return err
			}
		}

		changed = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	return job, changed, nil
}

func (r *Repository) queryJobs(ctx context.Context, query string, args ...any) ([]*model.Job, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*model.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating jobs: %w", err)
	}

	return jobs, nil
}

// scanJob scans a single row; pgx.Rows satisfies pgx.Row.
func scanJob(row pgx.Row) (*model.Job, error) {
	var job model.Job
	err := row.Scan(
		&job.ID,
		&job.UserID,
		&job.VideoURL,
		&job.Prompt,
		&job.Status,
		&job.ResultURL,
		&job.Error,
		&job.CreditsCharged,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}
	return &job, nil
}
