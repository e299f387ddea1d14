package contentstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "ledgerdesk:blob:"

// RedisRemote stores framed, compressed blobs in Redis keyed by digest.
type RedisRemote struct {
	client *redis.Client
}

// NewRedisRemote wraps an existing client.
func NewRedisRemote(client *redis.Client) *RedisRemote {
	return &RedisRemote{client: client}
}

func (r *RedisRemote) Put(ctx context.Context, digest string, data []byte) error {
	framed, err := EncodeBlob(data)
	if err != nil {
		return err
	}
	// SETNX keeps the first write; content addressing makes later writes identical.
	if err := r.client.SetNX(ctx, redisKeyPrefix+digest, framed, 0).Err(); err != nil {
		return fmt.Errorf("redis put %s: %w", digest, err)
	}
	return nil
}

func (r *RedisRemote) Get(ctx context.Context, digest string) ([]byte, error) {
	framed, err := r.client.Get(ctx, redisKeyPrefix+digest).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get %s: %w", digest, err)
	}
	return DecodeBlob(framed)
}

// Ping verifies Redis connectivity.
func (r *RedisRemote) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
