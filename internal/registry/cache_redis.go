package registry

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachingRepository decorates a Repository with Redis caching for reads.
// Keys:
//   - gateway:services:all    -> JSON array of services (LoadAll)
//   - gateway:service:<name>  -> JSON object (Get)
//
// Invalidate on Save.
type CachingRepository struct {
	inner Repository
	rdb   redis.Cmdable
	ttl   time.Duration
}

func NewCachingRepository(inner Repository, rdb redis.Cmdable, ttl time.Duration) *CachingRepository {
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	return &CachingRepository{inner: inner, rdb: rdb, ttl: ttl}
}

func (c *CachingRepository) Init(ctx context.Context) error { return c.inner.Init(ctx) }

func (c *CachingRepository) LoadAll(ctx context.Context) ([]*Service, error) {
	key := "gateway:services:all"
	if bs, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		var list []*Service
		if json.Unmarshal(bs, &list) == nil && len(list) > 0 {
			return list, nil
		}
	}
	list, err := c.inner.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	if bs, err := json.Marshal(list); err == nil {
		_ = c.rdb.Set(ctx, key, bs, c.ttl).Err()
	}
	return list, nil
}

func (c *CachingRepository) Get(ctx context.Context, name string) (*Service, error) {
	key := "gateway:service:" + name
	if bs, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		var s Service
		if json.Unmarshal(bs, &s) == nil {
			return &s, nil
		}
	}
	s, err := c.inner.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if bs, err := json.Marshal(s); err == nil {
		_ = c.rdb.Set(ctx, key, bs, c.ttl).Err()
	}
	return s, nil
}

func (c *CachingRepository) Save(ctx context.Context, s *Service) error {
	if err := c.inner.Save(ctx, s); err != nil {
		return err
	}
	c.invalidate(ctx, s.Name)
	return nil
}

func (c *CachingRepository) invalidate(ctx context.Context, name string) {
	_ = c.rdb.Del(ctx, "gateway:services:all").Err()
	if name != "" {
		_ = c.rdb.Del(ctx, "gateway:service:"+name).Err()
	}
}
