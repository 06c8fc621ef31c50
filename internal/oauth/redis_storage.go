package oauth

import (
	"context"
	"encoding/json"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"lead-relay/internal/common/errors"
)

// RedisCredentialStore implements CredentialStore on Redis for deployments
// where several relay instances share one installation. The credential is a
// single JSON document under a fixed key, so Save is naturally atomic and
// supersedes the prior record.
type RedisCredentialStore struct {
	client *goredis.Client
	key    string
	ttl    time.Duration
}

// NewRedisCredentialStore creates a Redis-backed store under the given key
// prefix. A zero ttl keeps records forever; non-expiring simplified tokens
// need that.
func NewRedisCredentialStore(client *goredis.Client, prefix string, ttl time.Duration) *RedisCredentialStore {
	if prefix == "" {
		prefix = "leadrelay:"
	}
	return &RedisCredentialStore{
		client: client,
		key:    prefix + "credential:current",
		ttl:    ttl,
	}
}

// Save serializes the record and overwrites the current document.
func (s *RedisCredentialStore) Save(ctx context.Context, record *CredentialRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return errors.StorageError("failed to serialize credential", err)
	}
	if err := s.client.Set(ctx, s.key, string(data), s.ttl).Err(); err != nil {
		return errors.StorageError("failed to write credential to redis", err)
	}
	return nil
}

// GetCurrent loads and deserializes the current document, or nil when absent.
func (s *RedisCredentialStore) GetCurrent(ctx context.Context) (*CredentialRecord, error) {
	data, err := s.client.Get(ctx, s.key).Result()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.StorageError("failed to read credential from redis", err)
	}
	if data == "" {
		return nil, nil
	}

	var record CredentialRecord
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return nil, errors.StorageError("failed to deserialize credential", err)
	}
	return &record, nil
}

// Update performs a read-modify-write of the current document. Refreshes are
// serialized by the lifecycle manager, so the read and write do not race.
func (s *RedisCredentialStore) Update(ctx context.Context, patch CredentialPatch) error {
	record, err := s.GetCurrent(ctx)
	if err != nil {
		return err
	}
	if record == nil {
		return nil
	}
	applyPatch(record, patch)
	return s.Save(ctx, record)
}

// Clear deletes the current document. Idempotent.
func (s *RedisCredentialStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return errors.StorageError("failed to delete credential from redis", err)
	}
	return nil
}
