// Package testutil holds helpers shared by integration tests.
package testutil

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/auralforge/auralforge/internal/migrate"
	"github.com/auralforge/auralforge/internal/model"
)

// RequireEnv returns an environment variable or skips the test if missing.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

const advisoryLockID int64 = 420420

// AcquireDBLock grabs a global advisory lock to serialize DB tests.
func AcquireDBLock(ctx context.Context, pool *pgxpool.Pool) (func() error, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", advisoryLockID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	unlock := func() error {
		defer conn.Release()
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", advisoryLockID); err != nil {
			return fmt.Errorf("release advisory lock: %w", err)
		}
		return nil
	}

	return unlock, nil
}

// ResetDatabase rolls every migration back and applies them again.
func ResetDatabase(ctx context.Context, databaseURL string) error {
	m, err := migrate.Open(ctx, databaseURL, DiscardLogger())
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Reset(ctx); err != nil {
		return err
	}
	return m.Up(ctx)
}

// FlushRedis clears the current Redis database.
func FlushRedis(ctx context.Context, client *redis.Client) error {
	return client.FlushDB(ctx).Err()
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ============================================================================
// Test Data Factories
// ============================================================================

// TestAccount is the set of rows created by a signup.
type TestAccount struct {
	User         *model.User
	Team         *model.Team
	Subscription *model.Subscription
	Project      *model.Project
}

// NewTestAccount builds a signup with unique IDs and a unique email.
func NewTestAccount(t testing.TB) *TestAccount {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	userID := ulid.Make().String()
	teamID := ulid.Make().String()
	return &TestAccount{
		User: &model.User{
			ID:           userID,
			Email:        strings.ToLower(UniqueID("user")) + "@example.com",
			PasswordHash: "not-a-real-hash",
			CreatedAt:    now,
		},
		Team: &model.Team{ID: teamID, Name: "Test Team", CreatedAt: now},
		Subscription: &model.Subscription{
			ID:             ulid.Make().String(),
			TeamID:         teamID,
			Plan:           model.PlanFree,
			CreditsMonthly: model.FreeMonthlyCredits,
			CreatedAt:      now,
		},
		Project: &model.Project{
			ID:        ulid.Make().String(),
			TeamID:    teamID,
			Name:      model.DefaultProjectName,
			CreatedAt: now,
		},
	}
}

// NewTestJob creates a queued TTS job for the account.
func NewTestJob(t testing.TB, acct *TestAccount) *model.Job {
	t.Helper()
	text := "hello"
	format := model.FormatWAV
	return &model.Job{
		ID:          ulid.Make().String(),
		TeamID:      acct.Team.ID,
		ProjectID:   &acct.Project.ID,
		Type:        model.JobTypeTTS,
		Status:      model.JobStatusQueued,
		QueueName:   model.JobTypeTTS.QueueName(),
		RequestedBy: "user:" + acct.User.ID,
		Format:      &format,
		InputText:   &text,
		CreatedAt:   time.Now().UTC().Truncate(time.Microsecond),
	}
}

// NewTestAPIKey creates a test API key with sensible defaults.
func NewTestAPIKey(t testing.TB, acct *TestAccount, prefix string) *model.APIKey {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &model.APIKey{
		ID:        ulid.Make().String(),
		ProjectID: acct.Project.ID,
		TeamID:    acct.Team.ID,
		CreatedBy: acct.User.ID,
		Name:      "Test Key",
		KeyPrefix: prefix,
		KeyHash:   fmt.Sprintf("hash-%d", now.UnixNano()),
		Scopes:    []string{model.ScopeRead, model.ScopeWrite},
		CreatedAt: now,
	}
}

// UniqueID generates a unique ID for tests.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
