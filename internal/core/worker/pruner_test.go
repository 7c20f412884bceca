package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vietddude/todochain/internal/core/domain"
	"github.com/vietddude/todochain/internal/infra/storage/memory"
)

func TestPruner_Interval(t *testing.T) {
	tests := []struct {
		retention time.Duration
		want      time.Duration
	}{
		{time.Minute, time.Minute},
		{5 * time.Hour, 30 * time.Minute},
		{7 * 24 * time.Hour, time.Hour},
	}
	for _, tt := range tests {
		if got := NewPruner(nil, tt.retention).Interval(); got != tt.want {
			t.Errorf("retention %v: expected %v, got %v", tt.retention, tt.want, got)
		}
	}
}

func TestPruner_Prune(t *testing.T) {
	ctx := context.Background()
	store := memory.NewReceiptStore()
	_ = store.Save(ctx, &domain.TransactionReceipt{Hash: "0x1", Status: domain.TxStatusConfirmed, Network: domain.BaseMainnet})

	// Fresh receipts survive.
	if n := NewPruner(store, time.Hour).Prune(ctx); n != 0 {
		t.Errorf("expected 0 pruned, got %d", n)
	}

	// A negative retention puts the threshold in the future.
	if n := NewPruner(store, -time.Second).Prune(ctx); n != 1 {
		t.Errorf("expected 1 pruned, got %d", n)
	}
	if store.Len() != 0 {
		t.Errorf("expected empty store, got %d", store.Len())
	}
}

type failingPruner struct{}

func (failingPruner) DeleteReceiptsOlderThan(context.Context, time.Time) (int64, error) {
	return 0, errors.New("db down")
}

func TestPruner_PruneError(t *testing.T) {
	if n := NewPruner(failingPruner{}, time.Hour).Prune(context.Background()); n != 0 {
		t.Errorf("expected 0 on error, got %d", n)
	}
}

func TestPruner_StartDisabled(t *testing.T) {
	done := make(chan struct{})
	go func() {
		NewPruner(failingPruner{}, 0).Start(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Start to return when retention is disabled")
	}
}

func TestPruner_StartStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewPruner(memory.NewReceiptStore(), time.Hour).Start(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Start to return after cancel")
	}
}
