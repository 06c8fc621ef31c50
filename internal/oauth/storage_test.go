package oauth

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStore_EmptyReturnsNil(t *testing.T) {
	store := NewMemoryCredentialStore()

	record, err := store.GetCurrent(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if record != nil {
		t.Errorf("expected nil record from empty store, got %+v", record)
	}
}

func TestMemoryStore_SaveSupersedes(t *testing.T) {
	store := NewMemoryCredentialStore()
	ctx := context.Background()

	first := &CredentialRecord{AccessToken: "first", MemberID: "m1", Method: MethodSimplified}
	if err := store.Save(ctx, first); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	second := &CredentialRecord{AccessToken: "second", MemberID: "m1", Method: MethodInstallationEvent}
	if err := store.Save(ctx, second); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	current, err := store.GetCurrent(ctx)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if current.AccessToken != "second" {
		t.Errorf("expected second record to supersede, got token %q", current.AccessToken)
	}
	if current.Method != MethodInstallationEvent {
		t.Errorf("expected method %q, got %q", MethodInstallationEvent, current.Method)
	}
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	store := NewMemoryCredentialStore()
	ctx := context.Background()

	if err := store.Save(ctx, &CredentialRecord{AccessToken: "original"}); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	record, _ := store.GetCurrent(ctx)
	record.AccessToken = "mutated"

	again, _ := store.GetCurrent(ctx)
	if again.AccessToken != "original" {
		t.Error("mutating a returned record must not affect the store")
	}
}

func TestMemoryStore_Update(t *testing.T) {
	store := NewMemoryCredentialStore()
	ctx := context.Background()

	issued := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	expiry := issued.Add(time.Hour)
	if err := store.Save(ctx, &CredentialRecord{
		AccessToken:  "old-access",
		RefreshToken: "old-refresh",
		ExpiresIn:    3600,
		IssuedAt:     issued,
		ExpiresAt:    &expiry,
		MemberID:     "m1",
	}); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	newAccess := "new-access"
	newRefresh := "new-refresh"
	newIssued := issued.Add(time.Hour)
	newExpiry := newIssued.Add(time.Hour)
	err := store.Update(ctx, CredentialPatch{
		AccessToken:  &newAccess,
		RefreshToken: &newRefresh,
		IssuedAt:     &newIssued,
		ExpiresAt:    &newExpiry,
		UpdatedAt:    newIssued,
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}

	record, _ := store.GetCurrent(ctx)
	if record.AccessToken != "new-access" {
		t.Errorf("expected access token rotated, got %q", record.AccessToken)
	}
	if record.RefreshToken != "new-refresh" {
		t.Errorf("expected refresh token rotated, got %q", record.RefreshToken)
	}
	if !record.ExpiresAt.Equal(newExpiry) {
		t.Errorf("expected expiry %v, got %v", newExpiry, record.ExpiresAt)
	}
	// untouched fields survive
	if record.MemberID != "m1" {
		t.Errorf("expected member id preserved, got %q", record.MemberID)
	}
	if record.ExpiresIn != 3600 {
		t.Errorf("expected expires_in preserved, got %d", record.ExpiresIn)
	}
}

func TestMemoryStore_UpdateOnEmptyIsNoop(t *testing.T) {
	store := NewMemoryCredentialStore()
	token := "x"
	if err := store.Update(context.Background(), CredentialPatch{AccessToken: &token}); err != nil {
		t.Fatalf("expected no error updating empty store, got %v", err)
	}
}

func TestMemoryStore_Clear(t *testing.T) {
	store := NewMemoryCredentialStore()
	ctx := context.Background()

	if err := store.Save(ctx, &CredentialRecord{AccessToken: "t"}); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	record, _ := store.GetCurrent(ctx)
	if record != nil {
		t.Error("expected empty store after clear")
	}

	// clear is idempotent
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("second clear failed: %v", err)
	}
}
