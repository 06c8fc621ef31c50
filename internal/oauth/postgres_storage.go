package oauth

import (
	"context"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"lead-relay/internal/common/errors"
	"lead-relay/internal/crypto"
)

// PostgresCredentialStore implements CredentialStore on PostgreSQL for
// deployments that already run a relational database. Same single-current
// contract as the SQLite store: Save deletes and inserts in one transaction.
type PostgresCredentialStore struct {
	pool   *pgxpool.Pool
	cipher *crypto.TokenCipher
}

// NewPostgresCredentialStore migrates the credentials table and returns a
// ready store. The cipher is optional.
func NewPostgresCredentialStore(ctx context.Context, pool *pgxpool.Pool, cipher *crypto.TokenCipher) (*PostgresCredentialStore, error) {
	s := &PostgresCredentialStore{pool: pool, cipher: cipher}
	if err := s.migrate(ctx); err != nil {
		return nil, errors.StorageError("failed to migrate credentials table", err)
	}
	return s, nil
}

func (s *PostgresCredentialStore) migrate(ctx context.Context) error {
	query := `CREATE TABLE IF NOT EXISTS credentials (
		id BIGSERIAL PRIMARY KEY,
		access_token TEXT NOT NULL,
		refresh_token TEXT NOT NULL DEFAULT '',
		expires_in INTEGER NOT NULL DEFAULT 0,
		issued_at TIMESTAMPTZ NOT NULL,
		expires_at TIMESTAMPTZ,
		domain TEXT NOT NULL DEFAULT '',
		scope TEXT NOT NULL DEFAULT '',
		client_endpoint TEXT NOT NULL DEFAULT '',
		server_endpoint TEXT NOT NULL DEFAULT '',
		member_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT '',
		method TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`
	_, err := s.pool.Exec(ctx, query)
	return err
}

// Save supersedes any prior record inside a single transaction.
func (s *PostgresCredentialStore) Save(ctx context.Context, record *CredentialRecord) error {
	accessToken, refreshToken, err := s.sealTokens(record.AccessToken, record.RefreshToken)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errors.StorageError("failed to begin transaction", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM credentials`); err != nil {
		return errors.StorageError("failed to supersede prior credential", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO credentials (access_token, refresh_token, expires_in, issued_at, expires_at,
			domain, scope, client_endpoint, server_endpoint, member_id, status, method, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		accessToken, refreshToken, record.ExpiresIn, record.IssuedAt.UTC(), record.ExpiresAt,
		record.Domain, record.Scope, record.ClientEndpoint, record.ServerEndpoint,
		record.MemberID, record.Status, string(record.Method),
		record.CreatedAt.UTC(), record.UpdatedAt.UTC())
	if err != nil {
		return errors.StorageError("failed to insert credential", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.StorageError("failed to commit credential", err)
	}
	return nil
}

// GetCurrent returns the most recently created record, or nil when empty.
func (s *PostgresCredentialStore) GetCurrent(ctx context.Context) (*CredentialRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT access_token, refresh_token, expires_in, issued_at, expires_at,
			domain, scope, client_endpoint, server_endpoint, member_id, status, method, created_at, updated_at
		 FROM credentials ORDER BY id DESC LIMIT 1`)

	var record CredentialRecord
	var method string

	err := row.Scan(&record.AccessToken, &record.RefreshToken, &record.ExpiresIn,
		&record.IssuedAt, &record.ExpiresAt, &record.Domain, &record.Scope,
		&record.ClientEndpoint, &record.ServerEndpoint, &record.MemberID,
		&record.Status, &method, &record.CreatedAt, &record.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.StorageError("failed to load credential", err)
	}

	record.Method = AcquisitionMethod(method)
	if record.AccessToken, record.RefreshToken, err = s.openTokens(record.AccessToken, record.RefreshToken); err != nil {
		return nil, err
	}
	return &record, nil
}

// Update merges the patch into the current row in place.
func (s *PostgresCredentialStore) Update(ctx context.Context, patch CredentialPatch) error {
	sets := make([]string, 0, 6)
	args := make([]interface{}, 0, 6)
	arg := func(v interface{}) int {
		args = append(args, v)
		return len(args)
	}

	if patch.AccessToken != nil {
		sealed, _, err := s.sealTokens(*patch.AccessToken, "")
		if err != nil {
			return err
		}
		sets = append(sets, "access_token = $"+strconv.Itoa(arg(sealed)))
	}
	if patch.RefreshToken != nil {
		_, sealed, err := s.sealTokens("", *patch.RefreshToken)
		if err != nil {
			return err
		}
		sets = append(sets, "refresh_token = $"+strconv.Itoa(arg(sealed)))
	}
	if patch.ExpiresIn != nil {
		sets = append(sets, "expires_in = $"+strconv.Itoa(arg(*patch.ExpiresIn)))
	}
	if patch.IssuedAt != nil {
		sets = append(sets, "issued_at = $"+strconv.Itoa(arg(patch.IssuedAt.UTC())))
	}
	if patch.ExpiresAt != nil {
		sets = append(sets, "expires_at = $"+strconv.Itoa(arg(patch.ExpiresAt.UTC())))
	}
	if patch.Status != nil {
		sets = append(sets, "status = $"+strconv.Itoa(arg(*patch.Status)))
	}

	updatedAt := patch.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	sets = append(sets, "updated_at = $"+strconv.Itoa(arg(updatedAt)))

	query := "UPDATE credentials SET " + joinSets(sets)
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return errors.StorageError("failed to update credential", err)
	}
	return nil
}

// Clear deletes all credential rows. Idempotent.
func (s *PostgresCredentialStore) Clear(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM credentials`); err != nil {
		return errors.StorageError("failed to clear credentials", err)
	}
	return nil
}

func (s *PostgresCredentialStore) sealTokens(access, refresh string) (string, string, error) {
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

func (s *PostgresCredentialStore) openTokens(access, refresh string) (string, string, error) {
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

