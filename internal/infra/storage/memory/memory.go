package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/todochain/internal/core/domain"
	"github.com/vietddude/todochain/internal/infra/storage"
)

// ReceiptStore keeps terminal receipts in process memory.
type ReceiptStore struct {
	receipts map[string]entry
	mu       sync.RWMutex
}

type entry struct {
	receipt domain.TransactionReceipt
	savedAt time.Time
}

var (
	_ storage.ReceiptRepository = (*ReceiptStore)(nil)
	_ storage.ReceiptPruner     = (*ReceiptStore)(nil)
)

func NewReceiptStore() *ReceiptStore {
	return &ReceiptStore{
		receipts: make(map[string]entry),
	}
}

func key(network domain.Network, hash string) string {
	return string(network) + ":" + hash
}

func (s *ReceiptStore) Save(ctx context.Context, receipt *domain.TransactionReceipt) error {
	if !receipt.Status.IsTerminal() {
		return storage.ErrNotTerminal
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipts[key(receipt.Network, receipt.Hash)] = entry{receipt: *receipt, savedAt: time.Now()}
	return nil
}

func (s *ReceiptStore) Get(
	ctx context.Context,
	network domain.Network,
	hash string,
) (*domain.TransactionReceipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.receipts[key(network, hash)]
	if !ok {
		return nil, storage.ErrReceiptNotFound
	}
	r := e.receipt
	return &r, nil
}

func (s *ReceiptStore) DeleteReceiptsOlderThan(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, e := range s.receipts {
		if e.savedAt.Before(before) {
			delete(s.receipts, k)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored receipts.
func (s *ReceiptStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.receipts)
}

func (s *ReceiptStore) Close() error {
	return nil
}
