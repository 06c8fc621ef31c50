package oauth

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"lead-relay/internal/crypto"
	"lead-relay/internal/database"
)

func newTestSQLiteStore(t *testing.T, cipher *crypto.TokenCipher) *SQLiteCredentialStore {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store, err := NewSQLiteCredentialStore(db, cipher)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}

func TestSQLiteStore_EmptyReturnsNil(t *testing.T) {
	store := newTestSQLiteStore(t, nil)

	record, err := store.GetCurrent(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if record != nil {
		t.Errorf("expected nil record from empty store, got %+v", record)
	}
}

func TestSQLiteStore_SaveAndLoad(t *testing.T) {
	store := newTestSQLiteStore(t, nil)
	ctx := context.Background()

	issued := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	expiry := issued.Add(time.Hour)
	record := &CredentialRecord{
		AccessToken:    "sqlite-access",
		RefreshToken:   "sqlite-refresh",
		ExpiresIn:      3600,
		IssuedAt:       issued,
		ExpiresAt:      &expiry,
		Domain:         "tenant.example.com",
		Scope:          "crm",
		ClientEndpoint: "https://tenant.example.com/rest/",
		ServerEndpoint: "https://oauth.example.com/rest/",
		MemberID:       "member-1",
		Status:         "L",
		Method:         MethodAuthorizationCode,
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
	if loaded.AccessToken != "sqlite-access" {
		t.Errorf("expected access token round trip, got %q", loaded.AccessToken)
	}
	if loaded.RefreshToken != "sqlite-refresh" {
		t.Errorf("expected refresh token round trip, got %q", loaded.RefreshToken)
	}
	if loaded.Method != MethodAuthorizationCode {
		t.Errorf("expected method preserved, got %q", loaded.Method)
	}
	if loaded.ExpiresAt == nil || !loaded.ExpiresAt.Equal(expiry) {
		t.Errorf("expected expiry %v, got %v", expiry, loaded.ExpiresAt)
	}
	if !loaded.IssuedAt.Equal(issued) {
		t.Errorf("expected issued_at %v, got %v", issued, loaded.IssuedAt)
	}
	if loaded.Domain != "tenant.example.com" || loaded.MemberID != "member-1" {
		t.Error("expected tenant fields preserved")
	}
}

func TestSQLiteStore_NilExpiryRoundTrips(t *testing.T) {
	store := newTestSQLiteStore(t, nil)
	ctx := context.Background()

	issued := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store.Save(ctx, &CredentialRecord{
		AccessToken: "simplified",
		IssuedAt:    issued,
		MemberID:    "member-1",
		Method:      MethodSimplified,
		CreatedAt:   issued,
		UpdatedAt:   issued,
	})

	loaded, err := store.GetCurrent(ctx)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.ExpiresAt != nil {
		t.Errorf("expected nil expiry preserved, got %v", loaded.ExpiresAt)
	}
	if loaded.Expired(issued.AddDate(5, 0, 0)) {
		t.Error("loaded simplified record must never expire")
	}
}

func TestSQLiteStore_SaveSupersedes(t *testing.T) {
	store := newTestSQLiteStore(t, nil)
	ctx := context.Background()

	issued := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for _, token := range []string{"first", "second", "third"} {
		store.Save(ctx, &CredentialRecord{
			AccessToken: token,
			IssuedAt:    issued,
			MemberID:    "member-1",
			Method:      MethodSimplified,
			CreatedAt:   issued,
			UpdatedAt:   issued,
		})
	}

	loaded, err := store.GetCurrent(ctx)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.AccessToken != "third" {
		t.Errorf("expected latest record, got %q", loaded.AccessToken)
	}
}

func TestSQLiteStore_Update(t *testing.T) {
	store := newTestSQLiteStore(t, nil)
	ctx := context.Background()

	issued := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	expiry := issued.Add(time.Hour)
	store.Save(ctx, &CredentialRecord{
		AccessToken:  "old-access",
		RefreshToken: "old-refresh",
		ExpiresIn:    3600,
		IssuedAt:     issued,
		ExpiresAt:    &expiry,
		MemberID:     "member-1",
		Method:       MethodInstallationEvent,
		CreatedAt:    issued,
		UpdatedAt:    issued,
	})

	newAccess := "new-access"
	newIssued := issued.Add(time.Hour)
	newExpiry := newIssued.Add(time.Hour)
	err := store.Update(ctx, CredentialPatch{
		AccessToken: &newAccess,
		IssuedAt:    &newIssued,
		ExpiresAt:   &newExpiry,
		UpdatedAt:   newIssued,
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}

	loaded, _ := store.GetCurrent(ctx)
	if loaded.AccessToken != "new-access" {
		t.Errorf("expected rotated token, got %q", loaded.AccessToken)
	}
	if loaded.RefreshToken != "old-refresh" {
		t.Errorf("expected untouched refresh token, got %q", loaded.RefreshToken)
	}
	if loaded.ExpiresAt == nil || !loaded.ExpiresAt.Equal(newExpiry) {
		t.Errorf("expected new expiry %v, got %v", newExpiry, loaded.ExpiresAt)
	}
}

func TestSQLiteStore_Clear(t *testing.T) {
	store := newTestSQLiteStore(t, nil)
	ctx := context.Background()

	issued := time.Now().UTC()
	store.Save(ctx, &CredentialRecord{
		AccessToken: "t", IssuedAt: issued, MemberID: "m",
		Method: MethodSimplified, CreatedAt: issued, UpdatedAt: issued,
	})
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	record, _ := store.GetCurrent(ctx)
	if record != nil {
		t.Error("expected empty store after clear")
	}
}

func TestSQLiteStore_EncryptsTokensAtRest(t *testing.T) {
	cipher, err := crypto.NewTokenCipher("test-passphrase")
	if err != nil {
		t.Fatalf("failed to create cipher: %v", err)
	}

	db, err := database.Open(filepath.Join(t.TempDir(), "enc.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store, err := NewSQLiteCredentialStore(db, cipher)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	ctx := context.Background()

	issued := time.Now().UTC()
	store.Save(ctx, &CredentialRecord{
		AccessToken:  "plain-access",
		RefreshToken: "plain-refresh",
		IssuedAt:     issued,
		MemberID:     "member-1",
		Method:       MethodInstallationEvent,
		CreatedAt:    issued,
		UpdatedAt:    issued,
	})

	// the raw row must not contain the plaintext token
	var rawAccess string
	if err := db.QueryRow(`SELECT access_token FROM credentials`).Scan(&rawAccess); err != nil {
		t.Fatalf("raw read failed: %v", err)
	}
	if rawAccess == "plain-access" {
		t.Error("access token stored in plaintext despite cipher")
	}

	// the store decrypts transparently
	loaded, err := store.GetCurrent(ctx)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.AccessToken != "plain-access" {
		t.Errorf("expected decrypted token, got %q", loaded.AccessToken)
	}
	if loaded.RefreshToken != "plain-refresh" {
		t.Errorf("expected decrypted refresh token, got %q", loaded.RefreshToken)
	}
}
