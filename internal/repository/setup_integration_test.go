//go:build integration

package repository

import (
	"context"
	"testing"

	"github.com/aivideopro/aivideopro/internal/model"
	"github.com/aivideopro/aivideopro/internal/testutil"
)

func newTestRepository(t *testing.T) (context.Context, *Repository) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}

	ctx := context.Background()
	repo, err := New(ctx, testutil.DatabaseURL(t))
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(repo.Close)

	testutil.ExclusiveSchema(t, ctx, repo.Pool())
	return ctx, repo
}

func createTestUser(t *testing.T, ctx context.Context, repo *Repository, credits int) *model.User {
	t.Helper()
	user := testutil.NewTestUser(t, credits)
	if err := repo.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	return user
}

func mustCredits(t *testing.T, ctx context.Context, repo *Repository, userID string) int {
	t.Helper()
	user, err := repo.GetUserByID(ctx, userID)
	if err != nil {
		t.Fatalf("GetUserByID failed: %v", err)
	}
	return user.Credits
}
