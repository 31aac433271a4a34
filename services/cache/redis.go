package cachesvc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"

	"github.com/edapp/edapp/core"
	"github.com/edapp/edapp/core/handoff"
	"github.com/edapp/edapp/core/tenant"
)

const (
	tenantPrefix  = "tenant:"
	handoffPrefix = "handoff:"
)

var errCodeCollision = errors.New("handoff code collision")

// NewRedisClient connects to the configured Redis server.
func NewRedisClient(ctx context.Context, conf *core.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Addr,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "pinging redis at %s", conf.Redis.Addr)
	}
	return client, nil
}

// RedisTenantCache is a tenant.Cache backed by Redis.
type RedisTenantCache struct {
	client *redis.Client
	ttl    time.Duration
	logger core.Logger
}

var _ tenant.Cache = (*RedisTenantCache)(nil)

func NewRedisTenantCache(client *redis.Client, ttl time.Duration, logger core.Logger) *RedisTenantCache {
	return &RedisTenantCache{client: client, ttl: ttl, logger: logger}
}

func (c *RedisTenantCache) Get(ctx context.Context, slug string) (tenant.Tenant, bool) {
	data, err := c.client.Get(ctx, tenantPrefix+slug).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("tenant cache get failed", errors.Wrap(err, slug))
		}
		return tenant.Tenant{}, false
	}
	var t tenant.Tenant
	if err := json.Unmarshal(data, &t); err != nil {
		c.logger.Warn("tenant cache entry is corrupt", errors.Wrap(err, slug))
		return tenant.Tenant{}, false
	}
	return t, true
}

func (c *RedisTenantCache) Set(ctx context.Context, t tenant.Tenant) {
	data, err := json.Marshal(t)
	if err != nil {
		c.logger.Warn("tenant cache set failed", errors.Wrap(err, t.Slug))
		return
	}
	if err := c.client.Set(ctx, tenantPrefix+t.Slug, data, c.ttl).Err(); err != nil {
		c.logger.Warn("tenant cache set failed", errors.Wrap(err, t.Slug))
	}
}

func (c *RedisTenantCache) Delete(ctx context.Context, slug string) {
	if err := c.client.Del(ctx, tenantPrefix+slug).Err(); err != nil {
		c.logger.Warn("tenant cache delete failed", errors.Wrap(err, slug))
	}
}

// RedisHandoffStore is a handoff.Store backed by Redis; GETDEL redeems codes atomically.
type RedisHandoffStore struct {
	client *redis.Client
}

var _ handoff.Store = (*RedisHandoffStore)(nil)

func NewRedisHandoffStore(client *redis.Client) *RedisHandoffStore {
	return &RedisHandoffStore{client: client}
}

func (s *RedisHandoffStore) Put(ctx context.Context, code string, g handoff.Grant, ttl time.Duration) error {
	data, err := json.Marshal(g)
	if err != nil {
		return errors.Wrap(err, "marshalling grant")
	}
	ok, err := s.client.SetNX(ctx, handoffPrefix+code, data, ttl).Result()
	if err != nil {
		return errors.Wrap(err, "saving grant")
	}
	if !ok {
		return errCodeCollision
	}
	return nil
}

func (s *RedisHandoffStore) Peek(ctx context.Context, code string) (handoff.Grant, error) {
	return decodeGrant(s.client.Get(ctx, handoffPrefix+code))
}

func (s *RedisHandoffStore) Take(ctx context.Context, code string) (handoff.Grant, error) {
	return decodeGrant(s.client.GetDel(ctx, handoffPrefix+code))
}

func decodeGrant(cmd *redis.StringCmd) (handoff.Grant, error) {
	data, err := cmd.Bytes()
	if err != nil {
		if err == redis.Nil {
			return handoff.Grant{}, handoff.ErrInvalidCode
		}
		return handoff.Grant{}, errors.Wrap(err, "reading grant")
	}
	var g handoff.Grant
	if err := json.Unmarshal(data, &g); err != nil {
		return handoff.Grant{}, errors.Wrap(err, "unmarshalling grant")
	}
	return g, nil
}
