package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/warp/stockbook/book"
)

// DefaultKey is where the latest snapshot is stored.
const DefaultKey = "stockbook:snapshot"

// Redis keeps the latest snapshot as JSON under a single key, so several
// read-only processes can serve it without touching the store.
type Redis struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedis connects lazily; call Ping to verify the server is reachable.
// A zero ttl keeps the snapshot until it is overwritten.
func NewRedis(addr, password string, db int, ttl time.Duration) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Redis{client: client, key: DefaultKey, ttl: ttl}
}

// WithKey returns a copy of the cache that uses a different key.
func (c *Redis) WithKey(key string) *Redis {
	cp := *c
	cp.key = key
	return &cp
}

func (c *Redis) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Redis) Close() error {
	return c.client.Close()
}

func (c *Redis) Get(ctx context.Context) (*book.Snapshot, bool, error) {
	val, err := c.client.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var snap book.Snapshot
	if err := json.Unmarshal(val, &snap); err != nil {
		return nil, false, err
	}
	return &snap, true, nil
}

func (c *Redis) Set(ctx context.Context, snap *book.Snapshot) error {
	if snap == nil {
		return nil
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key, payload, c.ttl).Err()
}

// Invalidate drops the cached snapshot.
func (c *Redis) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, c.key).Err()
}
