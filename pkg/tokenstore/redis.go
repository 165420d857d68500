package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a Store backed by Redis. Each entry is a JSON string under
// prefix+roomID with the store's TTL.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	closed atomic.Bool
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithRedisPrefix sets the key prefix.
// Default: "roomsync:token:".
func WithRedisPrefix(prefix string) RedisOption {
	return func(r *RedisStore) {
		r.prefix = prefix
	}
}

// WithRedisTTL sets the key expiry. Zero keeps keys forever.
// Default: DefaultTTL.
func WithRedisTTL(ttl time.Duration) RedisOption {
	return func(r *RedisStore) {
		r.ttl = ttl
	}
}

// NewRedisStore wraps client. Close does not close client.
func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	r := &RedisStore{
		client: client,
		prefix: "roomsync:token:",
		ttl:    DefaultTTL,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisStore) key(roomID string) string {
	return r.prefix + roomID
}

// Save stores e as JSON.
func (r *RedisStore) Save(ctx context.Context, e Entry) error {
	if r.closed.Load() {
		return ErrClosed
	}
	if e.SavedAt.IsZero() {
		e.SavedAt = time.Now()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("tokenstore: encode entry: %w", err)
	}
	return r.client.Set(ctx, r.key(e.RoomID), data, r.ttl).Err()
}

// Load returns the entry for roomID.
func (r *RedisStore) Load(ctx context.Context, roomID string) (Entry, error) {
	if r.closed.Load() {
		return Entry{}, ErrClosed
	}
	data, err := r.client.Get(ctx, r.key(roomID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, err
	}
	return decodeEntry(data)
}

// Delete removes the entry for roomID.
func (r *RedisStore) Delete(ctx context.Context, roomID string) error {
	if r.closed.Load() {
		return ErrClosed
	}
	return r.client.Del(ctx, r.key(roomID)).Err()
}

// List scans the prefix and returns every entry, newest first.
func (r *RedisStore) List(ctx context.Context) ([]Entry, error) {
	if r.closed.Load() {
		return nil, ErrClosed
	}

	var keys []string
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}

	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(vals))
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			// Expired between SCAN and MGET.
			continue
		}
		e, err := decodeEntry([]byte(s))
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	sortNewest(out)
	return out, nil
}

// Close marks the store closed.
func (r *RedisStore) Close() error {
	r.closed.Store(true)
	return nil
}

func decodeEntry(data []byte) (Entry, error) {
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return Entry{}, fmt.Errorf("tokenstore: decode entry: %w", err)
	}
	return e, nil
}
