package store

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	doorstep "github.com/goliatone/go-doorstep"
	"github.com/redis/go-redis/v9"
)

// RedisClient captures the minimal commands needed from a redis client.
// Get returns "", nil for a missing key.
type RedisClient interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
}

// RedisStorage persists snapshots as JSON strings. Compare-and-set is
// serialized per process; one driver device owns one key.
type RedisStorage struct {
	client    RedisClient
	ttl       time.Duration
	keyPrefix string
	mu        sync.Mutex
}

// NewRedisStorage builds a storage over client. A zero ttl keeps keys forever.
func NewRedisStorage(client RedisClient, ttl time.Duration) *RedisStorage {
	return &RedisStorage{client: client, ttl: ttl, keyPrefix: "doorstep:"}
}

func (s *RedisStorage) Load(ctx context.Context, key string) (*doorstep.Snapshot, error) {
	if s == nil || s.client == nil {
		return nil, storageError("load", key, errNotConfigured("redis"))
	}
	rkey := s.redisKey(key)
	if rkey == "" {
		return nil, nil
	}
	snap, err := s.loadByKey(ctx, rkey)
	if err != nil {
		return nil, storageError("load", key, err)
	}
	return snap, nil
}

func (s *RedisStorage) Save(ctx context.Context, key string, snap *doorstep.Snapshot, expectedVersion int) (int, error) {
	if s == nil || s.client == nil {
		return 0, storageError("save", key, errNotConfigured("redis"))
	}
	rkey := s.redisKey(key)
	if rkey == "" {
		return 0, storageError("save", key, errKeyRequired)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.loadByKey(ctx, rkey)
	if err != nil {
		return 0, storageError("save", key, err)
	}
	next := snap.Clone()
	version, err := applyVersion(key, next, current, expectedVersion)
	if err != nil {
		return 0, err
	}
	payload, err := encodeSnapshot(next)
	if err != nil {
		return 0, storageError("save", key, err)
	}
	if err := s.client.Set(ctx, rkey, string(payload), s.ttl); err != nil {
		return 0, storageError("save", key, err)
	}
	return version, nil
}

func (s *RedisStorage) loadByKey(ctx context.Context, rkey string) (*doorstep.Snapshot, error) {
	value, err := s.client.Get(ctx, rkey)
	if err != nil {
		return nil, err
	}
	return decodeSnapshot([]byte(value))
}

func (s *RedisStorage) redisKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return ""
	}
	prefix := s.keyPrefix
	if prefix == "" {
		prefix = "doorstep:"
	}
	return prefix + key
}

// GoRedisClient adapts a go-redis client to RedisClient.
type GoRedisClient struct {
	client redis.UniversalClient
}

// NewGoRedisClient dials addr lazily; go-redis connects on first command.
func NewGoRedisClient(addr, password string, db int) *GoRedisClient {
	return &GoRedisClient{client: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

// WrapGoRedis adapts an existing client.
func WrapGoRedis(client redis.UniversalClient) *GoRedisClient {
	return &GoRedisClient{client: client}
}

func (c *GoRedisClient) Get(ctx context.Context, key string) (string, error) {
	value, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return value, err
}

func (c *GoRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return c.client.Set(ctx, key, value, expiration).Err()
}

// Ping checks connectivity.
func (c *GoRedisClient) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the connection pool.
func (c *GoRedisClient) Close() error {
	return c.client.Close()
}
