package storage

import (
	"context"
	"errors"
	"time"

	"github.com/vietddude/todochain/internal/core/domain"
)

var (
	// ErrReceiptNotFound is returned when no receipt is stored for a hash
	ErrReceiptNotFound = errors.New("receipt not found")

	// ErrNotTerminal is returned when saving a receipt that can still change
	ErrNotTerminal = errors.New("receipt is not terminal")
)

// ReceiptRepository persists terminal transaction receipts so repeated
// lookups do not reach the chain.
type ReceiptRepository interface {
	// Save stores a confirmed or failed receipt, replacing any previous entry
	Save(ctx context.Context, receipt *domain.TransactionReceipt) error

	// Get returns the receipt for hash on network, or ErrReceiptNotFound
	Get(ctx context.Context, network domain.Network, hash string) (*domain.TransactionReceipt, error)

	// Close releases the underlying connection
	Close() error
}

// ReceiptPruner is implemented by stores that do not expire entries on
// their own.
type ReceiptPruner interface {
	// DeleteReceiptsOlderThan removes receipts saved before the given time
	// and returns how many were removed
	DeleteReceiptsOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// Driver names accepted in configuration.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// Config selects and configures a receipt store.
type Config struct {
	Driver   string        `yaml:"driver"`
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	TTL      time.Duration `yaml:"ttl"`

	// Retention prunes memory and postgres stores; zero keeps receipts forever.
	Retention time.Duration `yaml:"retention"`
	MaxConns  int           `yaml:"max_conns"`
	MinConns  int           `yaml:"min_conns"`
}
