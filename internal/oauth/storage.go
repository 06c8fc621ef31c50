package oauth

import (
	"context"
	"sync"
	"time"
)

// CredentialStore is the contract for durable credential persistence.
// Implementations hold at most one current record (multi-tenant backends key
// by member ID internally but expose the same single-current contract per
// installation). All I/O failures surface as StorageError; callers must not
// assume success.
type CredentialStore interface {
	// Save inserts a new record, superseding any prior record. The write is
	// atomic: a partially written record must never become readable.
	Save(ctx context.Context, record *CredentialRecord) error
	// GetCurrent returns the most recently created record, or nil when no
	// installation has authorized yet.
	GetCurrent(ctx context.Context) (*CredentialRecord, error)
	// Update merges the patch into the current record in place. Used
	// exclusively by the refresh path.
	Update(ctx context.Context, patch CredentialPatch) error
	// Clear deletes all records. Idempotent.
	Clear(ctx context.Context) error
}

// MemoryCredentialStore keeps the credential in memory behind a mutex. It is
// used by tests and development setups where persistence across restarts is
// not required.
type MemoryCredentialStore struct {
	mu      sync.RWMutex
	current *CredentialRecord
}

// NewMemoryCredentialStore returns an empty in-memory store.
func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{}
}

// Save replaces the current record.
func (s *MemoryCredentialStore) Save(ctx context.Context, record *CredentialRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *record
	s.current = &copied
	return nil
}

// GetCurrent returns a copy of the current record, or nil when empty.
func (s *MemoryCredentialStore) GetCurrent(ctx context.Context) (*CredentialRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil, nil
	}
	copied := *s.current
	return &copied, nil
}

// Update merges the patch into the current record.
func (s *MemoryCredentialStore) Update(ctx context.Context, patch CredentialPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	applyPatch(s.current, patch)
	return nil
}

// Clear drops the current record.
func (s *MemoryCredentialStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
	return nil
}

// applyPatch merges non-nil patch fields into the record.
func applyPatch(record *CredentialRecord, patch CredentialPatch) {
	if patch.AccessToken != nil {
		record.AccessToken = *patch.AccessToken
	}
	if patch.RefreshToken != nil {
		record.RefreshToken = *patch.RefreshToken
	}
	if patch.ExpiresIn != nil {
		record.ExpiresIn = *patch.ExpiresIn
	}
	if patch.IssuedAt != nil {
		record.IssuedAt = *patch.IssuedAt
	}
	if patch.ExpiresAt != nil {
		record.ExpiresAt = patch.ExpiresAt
	}
	if patch.Status != nil {
		record.Status = *patch.Status
	}
	if !patch.UpdatedAt.IsZero() {
		record.UpdatedAt = patch.UpdatedAt
	} else {
		record.UpdatedAt = time.Now().UTC()
	}
}
