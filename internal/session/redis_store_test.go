package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mini := miniredis.RunT(t)
	sessions, err := NewRedisStore("redis://" + mini.Addr())
	if err != nil {
		t.Fatalf("create redis store: %v", err)
	}
	t.Cleanup(func() { sessions.Close() })
	return sessions, mini
}

func TestSaveAndLookupRefreshSession(t *testing.T) {
	sessions, _ := setupTestRedis(t)
	ctx := context.Background()

	err := sessions.SaveRefreshSession(ctx, "hash-1", "per_1", time.Now().Add(24*time.Hour))
	if err != nil {
		t.Fatalf("SaveRefreshSession: %v", err)
	}

	personID, err := sessions.LookupRefreshSession(ctx, "hash-1")
	if err != nil {
		t.Fatalf("LookupRefreshSession: %v", err)
	}
	if personID != "per_1" {
		t.Errorf("personID = %q, want per_1", personID)
	}
}

func TestLookupExpiredRefreshSession(t *testing.T) {
	sessions, mini := setupTestRedis(t)
	ctx := context.Background()

	err := sessions.SaveRefreshSession(ctx, "hash-2", "per_2", time.Now().Add(time.Millisecond))
	if err != nil {
		t.Fatalf("SaveRefreshSession: %v", err)
	}
	mini.FastForward(2 * time.Millisecond)

	if _, err := sessions.LookupRefreshSession(ctx, "hash-2"); err == nil {
		t.Error("expected error for expired session, got nil")
	}
}

func TestLookupUnknownRefreshSession(t *testing.T) {
	sessions, _ := setupTestRedis(t)
	if _, err := sessions.LookupRefreshSession(context.Background(), "missing"); err == nil {
		t.Error("expected error for unknown session, got nil")
	}
}

func TestRevokeRefreshSession(t *testing.T) {
	sessions, _ := setupTestRedis(t)
	ctx := context.Background()

	if err := sessions.SaveRefreshSession(ctx, "hash-3", "per_3", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("SaveRefreshSession: %v", err)
	}
	if err := sessions.RevokeRefreshSession(ctx, "hash-3"); err != nil {
		t.Fatalf("RevokeRefreshSession: %v", err)
	}
	if _, err := sessions.LookupRefreshSession(ctx, "hash-3"); err == nil {
		t.Error("expected error for revoked session, got nil")
	}

	// Revoking an unknown hash is a no-op.
	if err := sessions.RevokeRefreshSession(ctx, "missing"); err != nil {
		t.Errorf("revoke unknown hash: %v", err)
	}
}

func TestAccessTokenRevocation(t *testing.T) {
	sessions, mini := setupTestRedis(t)
	ctx := context.Background()

	revoked, err := sessions.IsAccessTokenRevoked(ctx, "jti_1")
	if err != nil {
		t.Fatalf("IsAccessTokenRevoked: %v", err)
	}
	if revoked {
		t.Error("fresh jti reported revoked")
	}

	if err := sessions.RevokeAccessToken(ctx, "jti_1", time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("RevokeAccessToken: %v", err)
	}
	revoked, err = sessions.IsAccessTokenRevoked(ctx, "jti_1")
	if err != nil {
		t.Fatalf("IsAccessTokenRevoked: %v", err)
	}
	if !revoked {
		t.Error("revoked jti not reported")
	}

	// The revocation entry expires with the token itself.
	mini.FastForward(2 * time.Minute)
	revoked, err = sessions.IsAccessTokenRevoked(ctx, "jti_1")
	if err != nil {
		t.Fatalf("IsAccessTokenRevoked after expiry: %v", err)
	}
	if revoked {
		t.Error("expired revocation entry still reported")
	}
}
