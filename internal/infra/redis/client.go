package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/todochain/internal/core/domain"
	"github.com/vietddude/todochain/internal/infra/storage"
)

// DefaultTTL applies when Config.TTL is zero.
const DefaultTTL = 24 * time.Hour

// Config holds Redis connection configuration.
type Config struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	TTL      time.Duration `yaml:"ttl"`
}

// ReceiptCache keeps terminal receipts in Redis as JSON with a TTL.
type ReceiptCache struct {
	rdb *redis.Client
	ttl time.Duration
}

var _ storage.ReceiptRepository = (*ReceiptCache)(nil)

// NewReceiptCache connects and pings the server.
func NewReceiptCache(ctx context.Context, cfg Config) (*ReceiptCache, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return newReceiptCache(rdb, cfg.TTL), nil
}

func newReceiptCache(rdb *redis.Client, ttl time.Duration) *ReceiptCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ReceiptCache{rdb: rdb, ttl: ttl}
}

func receiptKey(network domain.Network, hash string) string {
	return fmt.Sprintf("receipt:%s:%s", network, hash)
}

// Save stores a terminal receipt, refreshing its TTL.
func (c *ReceiptCache) Save(ctx context.Context, r *domain.TransactionReceipt) error {
	if !r.Status.IsTerminal() {
		return storage.ErrNotTerminal
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal receipt: %w", err)
	}
	if err := c.rdb.Set(ctx, receiptKey(r.Network, r.Hash), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("set failed: %w", err)
	}
	return nil
}

// Get returns storage.ErrReceiptNotFound on a cache miss.
func (c *ReceiptCache) Get(ctx context.Context, network domain.Network, hash string) (*domain.TransactionReceipt, error) {
	data, err := c.rdb.Get(ctx, receiptKey(network, hash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrReceiptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get failed: %w", err)
	}

	var r domain.TransactionReceipt
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("unmarshal receipt: %w", err)
	}
	return &r, nil
}

// Close closes the Redis connection.
func (c *ReceiptCache) Close() error {
	return c.rdb.Close()
}
