// Package testutil holds helpers shared by the integration tests. Tests
// that need Postgres or Redis skip when the matching URL is unset.
package testutil

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/aivideopro/aivideopro/internal/model"
	"github.com/aivideopro/aivideopro/migrations"
)

// schemaLock serializes every package's DB tests; go test runs packages in
// parallel against the same database.
const schemaLock int64 = 0x41565001

func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	v := os.Getenv(key)
	if v == "" {
		t.Skipf("%s not set", key)
	}
	return v
}

// DatabaseURL prefers TEST_DATABASE_URL over DATABASE_URL.
func DatabaseURL(t testing.TB) string {
	t.Helper()
	if v := os.Getenv("TEST_DATABASE_URL"); v != "" {
		return v
	}
	return RequireEnv(t, "DATABASE_URL")
}

// ExclusiveSchema holds the schema lock until the test ends and rebuilds
// the schema from the embedded migrations.
func ExclusiveSchema(t testing.TB, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire connection: %v", err)
	}
	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", schemaLock); err != nil {
		conn.Release()
		t.Fatalf("take schema lock: %v", err)
	}
	t.Cleanup(func() {
		_, _ = conn.Exec(context.Background(), "SELECT pg_advisory_unlock($1)", schemaLock)
		conn.Release()
	})

	if err := ResetSchema(ctx, pool); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
}

// ResetSchema runs every down migration newest first, then every up
// migration oldest first.
func ResetSchema(ctx context.Context, pool *pgxpool.Pool) error {
	ups, err := fs.Glob(migrations.FS, "*.up.sql")
	if err != nil {
		return err
	}
	downs, err := fs.Glob(migrations.FS, "*.down.sql")
	if err != nil {
		return err
	}
	slices.Sort(ups)
	slices.Sort(downs)
	slices.Reverse(downs)

	for _, name := range append(downs, ups...) {
		sql, err := migrations.FS.ReadFile(name)
		if err != nil {
			return err
		}
		if _, err := pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("apply %s: %w", strings.TrimSuffix(name, ".sql"), err)
		}
	}
	return nil
}

// SetupDB opens a pool on DatabaseURL with an exclusive, freshly migrated
// schema. The pool is closed on cleanup.
func SetupDB(t testing.TB) (context.Context, *pgxpool.Pool) {
	t.Helper()
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, DatabaseURL(t))
	if err != nil {
		t.Fatalf("connect database: %v", err)
	}
	t.Cleanup(pool.Close)

	ExclusiveSchema(t, ctx, pool)
	return ctx, pool
}

// SetupRedis connects to REDIS_URL and starts from an empty database.
func SetupRedis(t testing.TB) (context.Context, *redis.Client) {
	t.Helper()
	ctx := context.Background()

	opts, err := redis.ParseURL(RequireEnv(t, "REDIS_URL"))
	if err != nil {
		t.Fatalf("parse redis url: %v", err)
	}
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("flush redis: %v", err)
	}
	return ctx, client
}

func NewTestUser(t testing.TB, credits int) *model.User {
	t.Helper()
	id := UniqueID("user")
	return &model.User{
		ID:        id,
		Email:     id + "@example.com",
		Credits:   credits,
		CreatedAt: time.Now().UTC(),
	}
}

// NewTestJob is processing and charged one credit.
func NewTestJob(t testing.TB, userID string) *model.Job {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &model.Job{
		ID:             UniqueID("job"),
		UserID:         userID,
		VideoURL:       "https://cdn.example.com/in.mp4",
		Prompt:         "Add captions",
		Status:         model.JobStatusProcessing,
		CreditsCharged: 1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// NewTestAPIKey has read and write scopes on the free tier.
func NewTestAPIKey(t testing.TB, userID string) *model.APIKey {
	t.Helper()
	id := UniqueID("key")
	return &model.APIKey{
		ID:            id,
		UserID:        userID,
		KeyHash:       "hash-" + id,
		KeyPrefix:     "a1b2c3",
		Scopes:        []string{model.ScopeRead, model.ScopeWrite},
		RateLimitTier: model.TierFree,
		Name:          "Test Key",
		CreatedAt:     time.Now().UTC(),
	}
}

var idSeq atomic.Uint64

func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d-%d", prefix, time.Now().UnixNano(), idSeq.Add(1))
}
