package oauth

import (
	"context"
	"database/sql"
	"time"

	"lead-relay/internal/common/errors"
	"lead-relay/internal/crypto"
)

// SQLiteCredentialStore persists the credential in a single-row SQLite table.
// Save runs delete+insert inside one transaction so the "exactly one current
// record" invariant holds even across crashes mid-write. When a cipher is
// provided, access and refresh tokens are encrypted at rest.
type SQLiteCredentialStore struct {
	db     *sql.DB
	cipher *crypto.TokenCipher
}

// NewSQLiteCredentialStore migrates the credentials table and returns a ready
// store. The cipher is optional; pass nil to store tokens in plaintext.
func NewSQLiteCredentialStore(db *sql.DB, cipher *crypto.TokenCipher) (*SQLiteCredentialStore, error) {
	s := &SQLiteCredentialStore{db: db, cipher: cipher}
	if err := s.migrate(); err != nil {
		return nil, errors.StorageError("failed to migrate credentials table", err)
	}
	return s, nil
}

func (s *SQLiteCredentialStore) migrate() error {
	query := `CREATE TABLE IF NOT EXISTS credentials (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		access_token TEXT NOT NULL,
		refresh_token TEXT DEFAULT '',
		expires_in INTEGER DEFAULT 0,
		issued_at TEXT NOT NULL,
		expires_at TEXT,
		domain TEXT DEFAULT '',
		scope TEXT DEFAULT '',
		client_endpoint TEXT DEFAULT '',
		server_endpoint TEXT DEFAULT '',
		member_id TEXT NOT NULL,
		status TEXT DEFAULT '',
		method TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`
	_, err := s.db.Exec(query)
	return err
}

// Save supersedes any prior record inside a single transaction.
func (s *SQLiteCredentialStore) Save(ctx context.Context, record *CredentialRecord) error {
	accessToken, refreshToken, err := s.sealTokens(record.AccessToken, record.RefreshToken)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.StorageError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM credentials`); err != nil {
		return errors.StorageError("failed to supersede prior credential", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO credentials (access_token, refresh_token, expires_in, issued_at, expires_at,
			domain, scope, client_endpoint, server_endpoint, member_id, status, method, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		accessToken, refreshToken, record.ExpiresIn,
		record.IssuedAt.UTC().Format(time.RFC3339), formatNullableTime(record.ExpiresAt),
		record.Domain, record.Scope, record.ClientEndpoint, record.ServerEndpoint,
		record.MemberID, record.Status, string(record.Method),
		record.CreatedAt.UTC().Format(time.RFC3339), record.UpdatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return errors.StorageError("failed to insert credential", err)
	}

	if err := tx.Commit(); err != nil {
		return errors.StorageError("failed to commit credential", err)
	}
	return nil
}

// GetCurrent returns the most recently created record, or nil when empty.
func (s *SQLiteCredentialStore) GetCurrent(ctx context.Context) (*CredentialRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT access_token, refresh_token, expires_in, issued_at, expires_at,
			domain, scope, client_endpoint, server_endpoint, member_id, status, method, created_at, updated_at
		 FROM credentials ORDER BY id DESC LIMIT 1`)

	var record CredentialRecord
	var method, issuedAt, createdAt, updatedAt string
	var expiresAt sql.NullString

	err := row.Scan(&record.AccessToken, &record.RefreshToken, &record.ExpiresIn,
		&issuedAt, &expiresAt, &record.Domain, &record.Scope,
		&record.ClientEndpoint, &record.ServerEndpoint, &record.MemberID,
		&record.Status, &method, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.StorageError("failed to load credential", err)
	}

	record.Method = AcquisitionMethod(method)
	if record.IssuedAt, err = time.Parse(time.RFC3339, issuedAt); err != nil {
		return nil, errors.StorageError("corrupt issued_at in credential row", err)
	}
	if record.ExpiresAt, err = parseNullableTime(expiresAt); err != nil {
		return nil, errors.StorageError("corrupt expires_at in credential row", err)
	}
	if record.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, errors.StorageError("corrupt created_at in credential row", err)
	}
	if record.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, errors.StorageError("corrupt updated_at in credential row", err)
	}

	if record.AccessToken, record.RefreshToken, err = s.openTokens(record.AccessToken, record.RefreshToken); err != nil {
		return nil, err
	}

	return &record, nil
}

// Update merges the patch into the current row in place.
func (s *SQLiteCredentialStore) Update(ctx context.Context, patch CredentialPatch) error {
	sets := make([]string, 0, 6)
	args := make([]interface{}, 0, 6)

	if patch.AccessToken != nil {
		sealed, _, err := s.sealTokens(*patch.AccessToken, "")
		if err != nil {
			return err
		}
		sets = append(sets, "access_token = ?")
		args = append(args, sealed)
	}
	if patch.RefreshToken != nil {
		_, sealed, err := s.sealTokens("", *patch.RefreshToken)
		if err != nil {
			return err
		}
		sets = append(sets, "refresh_token = ?")
		args = append(args, sealed)
	}
	if patch.ExpiresIn != nil {
		sets = append(sets, "expires_in = ?")
		args = append(args, *patch.ExpiresIn)
	}
	if patch.IssuedAt != nil {
		sets = append(sets, "issued_at = ?")
		args = append(args, patch.IssuedAt.UTC().Format(time.RFC3339))
	}
	if patch.ExpiresAt != nil {
		sets = append(sets, "expires_at = ?")
		args = append(args, patch.ExpiresAt.UTC().Format(time.RFC3339))
	}
	if patch.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *patch.Status)
	}

	updatedAt := patch.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, updatedAt.UTC().Format(time.RFC3339))

	query := "UPDATE credentials SET " + joinSets(sets)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return errors.StorageError("failed to update credential", err)
	}
	return nil
}

// Clear deletes all credential rows. Safe to call repeatedly.
func (s *SQLiteCredentialStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM credentials`); err != nil {
		return errors.StorageError("failed to clear credentials", err)
	}
	return nil
}

func (s *SQLiteCredentialStore) sealTokens(access, refresh string) (string, string, error) {
	if s.cipher == nil {
		return access, refresh, nil
	}
	sealedAccess, err := s.cipher.Encrypt(access)
	if err != nil {
		return "", "", errors.StorageError("failed to encrypt access token", err)
	}
	sealedRefresh, err := s.cipher.Encrypt(refresh)
	if err != nil {
		return "", "", errors.StorageError("failed to encrypt refresh token", err)
	}
	return sealedAccess, sealedRefresh, nil
}

func (s *SQLiteCredentialStore) openTokens(access, refresh string) (string, string, error) {
	if s.cipher == nil {
		return access, refresh, nil
	}
	openAccess, err := s.cipher.Decrypt(access)
	if err != nil {
		return "", "", errors.StorageError("failed to decrypt access token", err)
	}
	openRefresh, err := s.cipher.Decrypt(refresh)
	if err != nil {
		return "", "", errors.StorageError("failed to decrypt refresh token", err)
	}
	return openAccess, openRefresh, nil
}

func formatNullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func parseNullableTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func joinSets(sets []string) string {
	out := ""
	for i, s := range sets {
		if i > 0 {
			out += ", "
		}
		out += s
	}
	return out
}
