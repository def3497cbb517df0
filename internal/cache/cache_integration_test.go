//go:build integration

package cache

import (
	"context"
	"testing"

	"github.com/auralforge/auralforge/internal/model"
	"github.com/auralforge/auralforge/internal/testutil"
)

func newTestCache(t *testing.T) (context.Context, *Cache) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}

	ctx := context.Background()
	client, err := Connect(ctx, testutil.RequireEnv(t, "REDIS_URL"))
	if err != nil {
		t.Fatalf("connect redis: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	if err := testutil.FlushRedis(ctx, client); err != nil {
		t.Fatalf("flush redis: %v", err)
	}
	return ctx, New(client)
}

func TestIntegrationAuthCache_SetGetInvalidate(t *testing.T) {
	ctx, c := newTestCache(t)

	auth := &model.AuthContext{
		Kind:      model.PrincipalAPIKey,
		KeyID:     "key-1",
		KeyPrefix: "0123456789ab",
		ProjectID: "proj-1",
		TeamID:    "team-1",
		UserID:    "user-1",
		Scopes:    []string{model.ScopeRead},
	}

	if err := c.SetAuthContext(ctx, "hash-a", auth); err != nil {
		t.Fatalf("SetAuthContext failed: %v", err)
	}

	got, err := c.GetAuthContext(ctx, "hash-a")
	if err != nil || got == nil {
		t.Fatalf("GetAuthContext = %v, %v", got, err)
	}
	if got.TeamID != "team-1" || got.Kind != model.PrincipalAPIKey {
		t.Errorf("cached context = %+v", got)
	}

	if err := c.InvalidateKey(ctx, "key-1"); err != nil {
		t.Fatalf("InvalidateKey failed: %v", err)
	}
	got, err = c.GetAuthContext(ctx, "hash-a")
	if err != nil || got != nil {
		t.Errorf("after invalidate: got %v, err %v", got, err)
	}
}

func TestIntegrationRateLimit_BurstThenDeny(t *testing.T) {
	ctx, c := newTestCache(t)

	for i := 0; i < 3; i++ {
		res, err := c.CheckPrincipalRateLimit(ctx, "user:u1", 60, 3)
		if err != nil {
			t.Fatalf("CheckPrincipalRateLimit failed: %v", err)
		}
		if !res.Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
	}

	res, err := c.CheckPrincipalRateLimit(ctx, "user:u1", 60, 3)
	if err != nil {
		t.Fatalf("CheckPrincipalRateLimit failed: %v", err)
	}
	if res.Allowed {
		t.Error("fourth request should be denied")
	}
	if res.RetryAfter <= 0 {
		t.Errorf("RetryAfter = %v, want > 0", res.RetryAfter)
	}

	other, err := c.CheckPrincipalRateLimit(ctx, "user:u2", 60, 3)
	if err != nil || !other.Allowed {
		t.Errorf("other principal should have its own bucket: %+v %v", other, err)
	}
}
