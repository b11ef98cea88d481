package persist

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/cairndns/cairndns/internal/cache"
)

// DefaultRedisKeyPrefix namespaces snapshot keys so the resolver can share
// a Redis database with other applications.
const DefaultRedisKeyPrefix = "cairndns:cache:"

// RedisOptions configures a Redis adapter.
type RedisOptions struct {
	// Client cannot be nil. Tests may pass any Cmdable.
	Client redis.Cmdable

	// Closer closes the client when the adapter is closed. Optional.
	Closer io.Closer

	// KeyPrefix defaults to DefaultRedisKeyPrefix.
	KeyPrefix string
}

// Redis persists cache snapshots as one Redis key per entry, written with
// an expiry equal to the entry's remaining TTL so the server side drops
// whatever a later load would have dropped anyway.
type Redis struct {
	client redis.Cmdable
	closer io.Closer
	prefix string
}

// NewRedis creates a Redis adapter from an existing client.
func NewRedis(opts RedisOptions) (*Redis, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("%w: nil redis client", ErrPersistence)
	}
	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = DefaultRedisKeyPrefix
	}
	return &Redis{client: opts.Client, closer: opts.Closer, prefix: prefix}, nil
}

// DialRedis connects to addr and returns an adapter owning the connection.
func DialRedis(ctx context.Context, addr, password string, db int, keyPrefix string) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping %s: %v", ErrPersistence, addr, err)
	}
	return NewRedis(RedisOptions{Client: client, Closer: client, KeyPrefix: keyPrefix})
}

func (r *Redis) key(k cache.Key) string {
	return r.prefix + k.String()
}

// Save replaces the persisted snapshot: stale keys under the prefix are
// deleted, then every live entry is written in one pipeline with
// EX = remaining TTL.
func (r *Redis) Save(ctx context.Context, entries []cache.Entry, now time.Time) error {
	stale, err := r.scanKeys(ctx)
	if err != nil {
		return err
	}
	if len(stale) > 0 {
		if err := r.client.Del(ctx, stale...).Err(); err != nil {
			return fmt.Errorf("%w: delete stale keys: %v", ErrPersistence, err)
		}
	}

	pipe := r.client.Pipeline()
	for i := range entries {
		e := &entries[i]
		remaining := e.RemainingTTL(now)
		if remaining <= 0 {
			continue
		}
		value, err := packEntry(*e, now)
		if err != nil {
			return err
		}
		pipe.Set(ctx, r.key(e.Key), value, remaining)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: write snapshot: %v", ErrPersistence, err)
	}
	return nil
}

// Load scans the key prefix and unpacks every value. Redis has already
// expired most stale entries; the remaining-TTL check here catches the
// rest. A value that no longer decodes fails the load with ErrCorruptData.
func (r *Redis) Load(ctx context.Context, now time.Time) ([]cache.Entry, error) {
	keys, err := r.scanKeys(ctx)
	if err != nil {
		return nil, err
	}

	var entries []cache.Entry
	for _, key := range keys {
		b, err := r.client.Get(ctx, key).Bytes()
		if err == redis.Nil {
			// Expired between scan and get.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: get %s: %v", ErrPersistence, key, err)
		}
		e, err := unpackEntry(b)
		if err != nil {
			return nil, err
		}
		if e.Expired(now) {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// scanKeys returns every key under the adapter's prefix.
func (r *Redis) scanKeys(ctx context.Context) ([]string, error) {
	var keys []string
	var cursor uint64
	for {
		page, next, err := r.client.Scan(ctx, cursor, r.prefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: scan keys: %v", ErrPersistence, err)
		}
		keys = append(keys, page...)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

// Close closes the underlying client if the adapter owns it.
func (r *Redis) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}
