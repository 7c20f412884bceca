package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vietddude/todochain/internal/core/domain"
	"github.com/vietddude/todochain/internal/infra/storage"
)

func TestReceiptStore(t *testing.T) {
	ctx := context.Background()
	s := NewReceiptStore()

	if _, err := s.Get(ctx, domain.BaseMainnet, "0x1"); !errors.Is(err, storage.ErrReceiptNotFound) {
		t.Fatalf("expected ErrReceiptNotFound, got %v", err)
	}

	pending := &domain.TransactionReceipt{Hash: "0x1", Status: domain.TxStatusPending, Network: domain.BaseMainnet}
	if err := s.Save(ctx, pending); !errors.Is(err, storage.ErrNotTerminal) {
		t.Errorf("expected ErrNotTerminal, got %v", err)
	}

	confirmed := &domain.TransactionReceipt{Hash: "0x1", Status: domain.TxStatusConfirmed, Network: domain.BaseMainnet, Fee: "0.0001"}
	if err := s.Save(ctx, confirmed); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := s.Get(ctx, domain.BaseMainnet, "0x1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Fee != "0.0001" || got.Status != domain.TxStatusConfirmed {
		t.Errorf("unexpected receipt %+v", got)
	}

	// Same hash on another network is a different entry.
	if _, err := s.Get(ctx, domain.BaseTestnet, "0x1"); !errors.Is(err, storage.ErrReceiptNotFound) {
		t.Errorf("expected miss on other network, got %v", err)
	}

	got.Fee = "mutated"
	again, _ := s.Get(ctx, domain.BaseMainnet, "0x1")
	if again.Fee != "0.0001" {
		t.Errorf("stored receipt must not alias returned copy")
	}
	if s.Len() != 1 {
		t.Errorf("expected 1 receipt, got %d", s.Len())
	}
}

func TestReceiptStore_DeleteOlderThan(t *testing.T) {
	ctx := context.Background()
	s := NewReceiptStore()
	_ = s.Save(ctx, &domain.TransactionReceipt{Hash: "0x1", Status: domain.TxStatusFailed, Network: domain.SolanaMainnet})

	n, err := s.DeleteReceiptsOlderThan(ctx, time.Now().Add(-time.Hour))
	if err != nil || n != 0 {
		t.Fatalf("expected nothing pruned, got %d (%v)", n, err)
	}

	n, err = s.DeleteReceiptsOlderThan(ctx, time.Now().Add(time.Second))
	if err != nil || n != 1 {
		t.Fatalf("expected 1 pruned, got %d (%v)", n, err)
	}
	if s.Len() != 0 {
		t.Errorf("expected empty store, got %d", s.Len())
	}
}
