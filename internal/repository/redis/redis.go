package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"

	"github.com/splax/sitepress/internal/repository"
)

const scanBatch = 200

// Repository implements the pipeline key/value store on Redis.
type Repository struct {
	client *redis.Client
	prefix string
}

var _ repository.KV = (*Repository)(nil)

// New connects to Redis and verifies the connection.
func New(ctx context.Context, addr, password string, db int, prefix string) (*Repository, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewWithClient(client, prefix), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, prefix string) *Repository {
	if prefix == "" {
		prefix = "sitepress:"
	}
	return &Repository{client: client, prefix: prefix}
}

// Get fetches the document stored under key.
func (r *Repository) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return value, nil
}

// Put replaces the document stored under key.
func (r *Repository) Put(ctx context.Context, key string, value []byte) error {
	return r.client.Set(ctx, r.prefix+key, value, 0).Err()
}

// PutIfAbsent stores the document only when key is unset.
func (r *Repository) PutIfAbsent(ctx context.Context, key string, value []byte) (bool, error) {
	return r.client.SetNX(ctx, r.prefix+key, value, 0).Result()
}

// Delete removes the document stored under key.
func (r *Repository) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.prefix+key).Err()
}

// List scans every key under prefix. Redis does not track write times, so
// UpdatedAt is left zero.
func (r *Repository) List(ctx context.Context, prefix string) ([]repository.Entry, error) {
	var (
		cursor  uint64
		entries []repository.Entry
	)
	match := r.prefix + prefix + "*"
	for {
		keys, next, err := r.client.Scan(ctx, cursor, match, scanBatch).Result()
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", prefix, err)
		}
		for _, key := range keys {
			value, err := r.client.Get(ctx, key).Bytes()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					continue
				}
				return nil, err
			}
			entries = append(entries, repository.Entry{
				Key:   strings.TrimPrefix(key, r.prefix),
				Value: value,
			})
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return entries, nil
}

// Close releases the underlying client.
func (r *Repository) Close() error {
	return r.client.Close()
}

// Ping verifies the connection.
func (r *Repository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Client exposes the underlying client for components sharing the connection.
func (r *Repository) Client() *redis.Client {
	return r.client
}
