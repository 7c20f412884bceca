package control

import (
	"context"
	"fmt"
	"log/slog"

	redisclient "github.com/vietddude/todochain/internal/infra/redis"
	"github.com/vietddude/todochain/internal/infra/storage"
	"github.com/vietddude/todochain/internal/infra/storage/memory"
	"github.com/vietddude/todochain/internal/infra/storage/postgres"
)

// OpenReceiptStore opens the receipt store selected by cfg.Driver. Postgres
// stores are migrated before use.
func OpenReceiptStore(ctx context.Context, cfg storage.Config) (storage.ReceiptRepository, error) {
	switch cfg.Driver {
	case "", storage.DriverMemory:
		slog.Info("Using memory receipt store")
		return memory.NewReceiptStore(), nil

	case storage.DriverPostgres:
		db, err := postgres.NewDB(ctx, postgres.Config{
			URL:      cfg.URL,
			MaxConns: cfg.MaxConns,
			MinConns: cfg.MinConns,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}
		db.StartMetricsCollector(ctx)
		slog.Info("Using PostgreSQL receipt store")
		return postgres.NewReceiptRepo(db), nil

	case storage.DriverRedis:
		cache, err := redisclient.NewReceiptCache(ctx, redisclient.Config{
			URL:      cfg.URL,
			Password: cfg.Password,
			TTL:      cfg.TTL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		slog.Info("Using Redis receipt store", "ttl", cfg.TTL)
		return cache, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}
