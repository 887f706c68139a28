// Package redis caches committed idempotency records so that retries can be
// answered without touching the database.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Xausdorf/vaultpay/internal/domain/entity"
)

const keyPrefix = "vaultpay:idem:"

// DefaultTTL matches the retention window clients are told to retry within.
const DefaultTTL = 24 * time.Hour

type cachedRecord struct {
	Fingerprint  string    `json:"fingerprint"`
	ResponseCode int       `json:"response_code"`
	ResponseBody []byte    `json:"response_body"`
	CreatedAt    time.Time `json:"created_at"`
}

type Cache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewCache(client redis.UniversalClient, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{client: client, ttl: ttl}
}

// NewClient connects to addr and checks the connection.
func NewClient(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Get returns nil, nil on a miss.
func (c *Cache) Get(ctx context.Context, accountID uuid.UUID, key string) (*entity.IdempotencyRecord, error) {
	raw, err := c.client.Get(ctx, cacheKey(accountID, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var rec cachedRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode cached record: %w", err)
	}
	return entity.ReconstructIdempotencyRecord(
		accountID, key, rec.Fingerprint, rec.ResponseCode, rec.ResponseBody, rec.CreatedAt), nil
}

// Put stores a committed record. Records never change, so SET NX is enough.
func (c *Cache) Put(ctx context.Context, record *entity.IdempotencyRecord) error {
	raw, err := json.Marshal(cachedRecord{
		Fingerprint:  record.Fingerprint(),
		ResponseCode: record.ResponseCode(),
		ResponseBody: record.ResponseBody(),
		CreatedAt:    record.CreatedAt(),
	})
	if err != nil {
		return fmt.Errorf("encode cached record: %w", err)
	}

	if err := c.client.SetNX(ctx, cacheKey(record.AccountID(), record.Key()), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func cacheKey(accountID uuid.UUID, key string) string {
	return keyPrefix + accountID.String() + ":" + key
}
