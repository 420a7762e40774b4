package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"

	"github.com/aivideopro/aivideopro/internal/model"
)

// Common errors for user and credit operations.
var (
	ErrUserNotFound        = errors.New("user not found")
	ErrEmailExists         = errors.New("email already exists")
	ErrInsufficientCredits = errors.New("insufficient credits")
)

// CreateUser inserts a new user. A positive starting balance is recorded
// as a signup grant in the credit ledger.
func (r *Repository) CreateUser(ctx context.Context, user *model.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	return r.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO users (id, email, credits, created_at)
			VALUES ($1, $2, $3, $4)
		`, user.ID, user.Email, user.Credits, user.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrEmailExists
			}
			return fmt.Errorf("failed to create user: %w", err)
		}

		if user.Credits > 0 {
			return insertCreditEntry(ctx, tx, user.ID, user.Credits, model.CreditReasonSignup, nil, "")
		}
		return nil
	})
}

// GetUserByID retrieves a user by their ID.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `
		SELECT id, email, credits, created_at
		FROM users
		WHERE id = $1
	`, id))
}

// GetUserByEmail retrieves a user by their email address.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `
		SELECT id, email, credits, created_at
		FROM users
		WHERE email = $1
	`, email))
}

// GetOrCreateUser gets a user by email or creates one if not found.
// The second return value reports whether the user was created.
func (r *Repository) GetOrCreateUser(ctx context.Context, user *model.User) (*model.User, bool, error) {
	existing, err := r.GetUserByEmail(ctx, user.Email)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, false, err
	}

	if err := r.CreateUser(ctx, user); err != nil {
		// Another request may have created it
		if errors.Is(err, ErrEmailExists) {
			existing, err := r.GetUserByEmail(ctx, user.Email)
			return existing, false, err
		}
		return nil, false, err
	}

	return user, true, nil
}

// GrantCredits adds amount to a user's balance and returns the new balance.
func (r *Repository) GrantCredits(ctx context.Context, userID string, amount int, reason model.CreditReason, note string) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("grant amount must be positive, got %d", amount)
	}

	var balance int
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			UPDATE users SET credits = credits + $2
			WHERE id = $1
			RETURNING credits
		`, userID, amount).Scan(&balance)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrUserNotFound
			}
			return fmt.Errorf("failed to grant credits: %w", err)
		}
		return insertCreditEntry(ctx, tx, userID, amount, reason, nil, note)
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// ListCreditEntries returns the most recent ledger entries for a user.
func (r *Repository) ListCreditEntries(ctx context.Context, userID string, limit int) ([]*model.CreditEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, delta, reason, job_id, note, created_at
		FROM credit_ledger
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list credit entries: %w", err)
	}
	defer rows.Close()

	var entries []*model.CreditEntry
	for rows.Next() {
		var e model.CreditEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Delta, &e.Reason, &e.JobID, &e.Note, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan credit entry: %w", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating credit entries: %w", err)
	}

	return entries, nil
}

// debitCredits subtracts cost from the balance only if it stays non-negative.
func debitCredits(ctx context.Context, tx pgx.Tx, userID string, cost int) error {
	var balance int
	err := tx.QueryRow(ctx, `
		UPDATE users SET credits = credits - $2
		WHERE id = $1 AND credits >= $2
		RETURNING credits
	`, userID, cost).Scan(&balance)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("failed to debit credits: %w", err)
	}

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check user: %w", err)
	}
	if !exists {
		return ErrUserNotFound
	}
	return ErrInsufficientCredits
}

func insertCreditEntry(ctx context.Context, tx pgx.Tx, userID string, delta int, reason model.CreditReason, jobID *string, note string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO credit_ledger (id, user_id, delta, reason, job_id, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, ulid.Make().String(), userID, delta, reason, jobID, note, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to write credit ledger: %w", err)
	}
	return nil
}

func scanUser(row pgx.Row) (*model.User, error) {
	var user model.User
	err := row.Scan(&user.ID, &user.Email, &user.Credits, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return &user, nil
}
