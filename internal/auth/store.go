package auth

import (
	"context"
	"errors"
	"sync"

	"github.com/redis/go-redis/v9"
)

// TokenStore answers the two questions the gateway asks of the shared
// token cache. Implementations never mutate it on the gateway's behalf.
type TokenStore interface {
	IsBlacklisted(ctx context.Context, token string) (bool, error)
	IsTenantValid(ctx context.Context, tenantID string) (bool, error)
}

func blacklistKey(token string) string { return "blacklist:" + token }

func tenantKey(tenantID string) string { return "tenant:" + tenantID + ":valid" }

// RedisStore reads blacklist and tenant validity keys written by the auth and
// tenant services.
type RedisStore struct {
	rdb redis.Cmdable
}

func NewRedisStore(rdb redis.Cmdable) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// IsBlacklisted reports true for any non-empty value under blacklist:<token>.
func (s *RedisStore) IsBlacklisted(ctx context.Context, token string) (bool, error) {
	v, err := s.rdb.Get(ctx, blacklistKey(token)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return v != "", nil
}

// IsTenantValid denies only on the literal "false"; a missing key is valid.
func (s *RedisStore) IsTenantValid(ctx context.Context, tenantID string) (bool, error) {
	v, err := s.rdb.Get(ctx, tenantKey(tenantID)).Result()
	if errors.Is(err, redis.Nil) {
		return true, nil
	}
	if err != nil {
		return true, err
	}
	return v != "false", nil
}

// MemoryStore is an in-process TokenStore for tests and local runs.
type MemoryStore struct {
	mu      sync.RWMutex
	revoked map[string]struct{}
	tenants map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{revoked: map[string]struct{}{}, tenants: map[string]string{}}
}

func (s *MemoryStore) Revoke(token string) {
	s.mu.Lock()
	s.revoked[token] = struct{}{}
	s.mu.Unlock()
}

// SetTenant stores the raw validity value for a tenant ("true" / "false").
func (s *MemoryStore) SetTenant(tenantID, value string) {
	s.mu.Lock()
	s.tenants[tenantID] = value
	s.mu.Unlock()
}

func (s *MemoryStore) IsBlacklisted(_ context.Context, token string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.revoked[token]
	return ok, nil
}

func (s *MemoryStore) IsTenantValid(_ context.Context, tenantID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tenants[tenantID] != "false", nil
}
