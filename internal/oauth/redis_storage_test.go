package oauth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
)

func newTestRedisStore(t *testing.T) (*RedisCredentialStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisCredentialStore(client, "test:", 0), mr
}

func TestRedisStore_EmptyReturnsNil(t *testing.T) {
	store, _ := newTestRedisStore(t)

	record, err := store.GetCurrent(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if record != nil {
		t.Errorf("expected nil record from empty store, got %+v", record)
	}
}

func TestRedisStore_SaveAndLoad(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	issued := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	expiry := issued.Add(time.Hour)
	record := &CredentialRecord{
		AccessToken:    "redis-access",
		RefreshToken:   "redis-refresh",
		ExpiresIn:      3600,
		IssuedAt:       issued,
		ExpiresAt:      &expiry,
		Domain:         "tenant.example.com",
		ClientEndpoint: "https://tenant.example.com/rest/",
		MemberID:       "member-1",
		Method:         MethodInstallationEvent,
		CreatedAt:      issued,
		UpdatedAt:      issued,
	}

	if err := store.Save(ctx, record); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := store.GetCurrent(ctx)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.AccessToken != "redis-access" {
		t.Errorf("expected access token round trip, got %q", loaded.AccessToken)
	}
	if loaded.Method != MethodInstallationEvent {
		t.Errorf("expected method preserved, got %q", loaded.Method)
	}
	if loaded.ExpiresAt == nil || !loaded.ExpiresAt.Equal(expiry) {
		t.Errorf("expected expiry %v, got %v", expiry, loaded.ExpiresAt)
	}
	if loaded.MemberID != "member-1" {
		t.Errorf("expected member id preserved, got %q", loaded.MemberID)
	}
}

func TestRedisStore_SaveSupersedes(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	store.Save(ctx, &CredentialRecord{AccessToken: "first", Method: MethodSimplified})
	store.Save(ctx, &CredentialRecord{AccessToken: "second", Method: MethodSimplified})

	loaded, err := store.GetCurrent(ctx)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.AccessToken != "second" {
		t.Errorf("expected second record, got %q", loaded.AccessToken)
	}
}

func TestRedisStore_Update(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	issued := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	expiry := issued.Add(time.Hour)
	store.Save(ctx, &CredentialRecord{
		AccessToken:  "old",
		RefreshToken: "old-refresh",
		IssuedAt:     issued,
		ExpiresAt:    &expiry,
		MemberID:     "member-1",
		Method:       MethodInstallationEvent,
	})

	newAccess := "new"
	err := store.Update(ctx, CredentialPatch{AccessToken: &newAccess, UpdatedAt: issued.Add(time.Hour)})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}

	loaded, _ := store.GetCurrent(ctx)
	if loaded.AccessToken != "new" {
		t.Errorf("expected rotated token, got %q", loaded.AccessToken)
	}
	if loaded.RefreshToken != "old-refresh" {
		t.Errorf("expected untouched refresh token, got %q", loaded.RefreshToken)
	}
}

func TestRedisStore_UpdateOnEmptyIsNoop(t *testing.T) {
	store, _ := newTestRedisStore(t)
	token := "x"
	if err := store.Update(context.Background(), CredentialPatch{AccessToken: &token}); err != nil {
		t.Fatalf("expected no error updating empty store, got %v", err)
	}
}

func TestRedisStore_Clear(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	store.Save(ctx, &CredentialRecord{AccessToken: "t", Method: MethodSimplified})
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clear failed: %v", err)
	}

	record, _ := store.GetCurrent(ctx)
	if record != nil {
		t.Error("expected empty store after clear")
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("second clear failed: %v", err)
	}
}
