// Package worker holds background maintenance loops.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/todochain/internal/infra/storage"
)

// Pruner deletes cached receipts based on a retention period.
type Pruner struct {
	store     storage.ReceiptPruner
	retention time.Duration
	logger    *slog.Logger
}

// NewPruner creates a new Pruner worker.
func NewPruner(store storage.ReceiptPruner, retention time.Duration) *Pruner {
	return &Pruner{
		store:     store,
		retention: retention,
		logger:    slog.Default().With("component", "pruner"),
	}
}

// Interval is how often Start prunes: a tenth of the retention, clamped to
// one minute and one hour.
func (p *Pruner) Interval() time.Duration {
	interval := min(p.retention/10, 1*time.Hour)
	return max(interval, 1*time.Minute)
}

// Start runs the pruner loop until ctx is done.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		return // Retention disabled
	}

	ticker := time.NewTicker(p.Interval())
	defer ticker.Stop()

	// Initial prune
	p.Prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Prune(ctx)
		}
	}
}

// Prune removes receipts older than the retention period once.
func (p *Pruner) Prune(ctx context.Context) int64 {
	threshold := time.Now().Add(-p.retention)

	n, err := p.store.DeleteReceiptsOlderThan(ctx, threshold)
	if err != nil {
		p.logger.Error("Failed to prune receipts", "error", err)
		return 0
	}
	if n > 0 {
		p.logger.Info("Pruned receipts", "count", n, "before", threshold.Format(time.RFC3339))
	}
	return n
}
