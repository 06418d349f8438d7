// Package cache stores classifications in Redis so repeated runs skip the LLM.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"feedback-radar/feedback"
)

const defaultPrefix = "feedback-radar:classification:"

// Redis is a classification cache backed by a Redis server.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// Option configures a Redis cache.
type Option func(*Redis)

// WithTTL sets how long entries live. Zero means no expiry.
func WithTTL(d time.Duration) Option {
	return func(r *Redis) {
		r.ttl = d
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(p string) Option {
	return func(r *Redis) {
		r.prefix = p
	}
}

// New wraps an existing client.
func New(client *redis.Client, opts ...Option) *Redis {
	r := &Redis{client: client, prefix: defaultPrefix}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Connect parses a redis:// URL (or a bare host:port), connects and pings.
func Connect(ctx context.Context, url string, opts ...Option) (*Redis, error) {
	redisOpts, err := redis.ParseURL(url)
	if err != nil {
		redisOpts = &redis.Options{Addr: url}
	}
	client := redis.NewClient(redisOpts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return New(client, opts...), nil
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}

// Key returns the Redis key for a post id.
func (r *Redis) Key(postID string) string {
	return r.prefix + postID
}

// Lookup returns the cached classification for a post.
func (r *Redis) Lookup(ctx context.Context, postID string) (*feedback.ClassifiedItem, bool, error) {
	data, err := r.client.Get(ctx, r.Key(postID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", postID, err)
	}

	item, err := Decode(data)
	if err != nil {
		return nil, false, err
	}
	return item, true, nil
}

// Store caches a classification.
func (r *Redis) Store(ctx context.Context, item feedback.ClassifiedItem) error {
	data, err := Encode(item)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.Key(item.ID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", item.ID, err)
	}
	return nil
}

// Encode serializes a classification for storage.
func Encode(item feedback.ClassifiedItem) ([]byte, error) {
	data, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("marshal classification: %w", err)
	}
	return data, nil
}

// Decode parses a stored classification and checks its metadata invariant.
func Decode(data []byte) (*feedback.ClassifiedItem, error) {
	var item feedback.ClassifiedItem
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("unmarshal classification: %w", err)
	}
	if err := item.Validate(); err != nil {
		return nil, fmt.Errorf("cached classification: %w", err)
	}
	return &item, nil
}
