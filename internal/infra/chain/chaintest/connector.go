// Package chaintest provides a scriptable chain.Connector for tests.
package chaintest

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/vietddude/todochain/internal/core/domain"
	"github.com/vietddude/todochain/internal/infra/chain"
)

// MockConnector implements chain.Connector. Nil funcs return zero values.
// Every call is counted in Calls by method name.
type MockConnector struct {
	ChainIDFunc      func(ctx context.Context) (string, error)
	ConnectFunc      func(ctx context.Context, opts chain.ConnectOptions) (string, error)
	BalanceFunc      func(ctx context.Context, owner, token string) (decimal.Decimal, error)
	TodosFunc        func(ctx context.Context, owner string) ([]domain.Todo, error)
	TodoFunc         func(ctx context.Context, owner string, id uint64) (*domain.Todo, error)
	SubmitFunc       func(ctx context.Context, op chain.Operation) (string, error)
	FetchReceiptFunc func(ctx context.Context, hash string) (*domain.TransactionReceipt, error)

	mu     sync.Mutex
	calls  map[string]int
	closed bool
}

var _ chain.Connector = (*MockConnector)(nil)

func (m *MockConnector) record(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[method]++
}

// Calls returns how often method was invoked.
func (m *MockConnector) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

// TotalCalls returns the number of calls across all methods.
func (m *MockConnector) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, n := range m.calls {
		total += n
	}
	return total
}

// Closed reports whether Close was called.
func (m *MockConnector) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *MockConnector) ChainID(ctx context.Context) (string, error) {
	m.record("ChainID")
	if m.ChainIDFunc == nil {
		return "", nil
	}
	return m.ChainIDFunc(ctx)
}

func (m *MockConnector) Connect(ctx context.Context, opts chain.ConnectOptions) (string, error) {
	m.record("Connect")
	if m.ConnectFunc == nil {
		return opts.Address, nil
	}
	return m.ConnectFunc(ctx, opts)
}

func (m *MockConnector) Disconnect() {
	m.record("Disconnect")
}

func (m *MockConnector) Balance(ctx context.Context, owner, token string) (decimal.Decimal, error) {
	m.record("Balance")
	if m.BalanceFunc == nil {
		return decimal.Zero, nil
	}
	return m.BalanceFunc(ctx, owner, token)
}

func (m *MockConnector) Todos(ctx context.Context, owner string) ([]domain.Todo, error) {
	m.record("Todos")
	if m.TodosFunc == nil {
		return nil, nil
	}
	return m.TodosFunc(ctx, owner)
}

func (m *MockConnector) Todo(ctx context.Context, owner string, id uint64) (*domain.Todo, error) {
	m.record("Todo")
	if m.TodoFunc == nil {
		return nil, nil
	}
	return m.TodoFunc(ctx, owner, id)
}

func (m *MockConnector) Submit(ctx context.Context, op chain.Operation) (string, error) {
	m.record("Submit")
	if m.SubmitFunc == nil {
		return "", nil
	}
	return m.SubmitFunc(ctx, op)
}

func (m *MockConnector) FetchReceipt(ctx context.Context, hash string) (*domain.TransactionReceipt, error) {
	m.record("FetchReceipt")
	if m.FetchReceiptFunc == nil {
		return nil, nil
	}
	return m.FetchReceiptFunc(ctx, hash)
}

func (m *MockConnector) Close() error {
	m.record("Close")
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Confirmed returns a confirmed receipt for hash.
func Confirmed(hash string) *domain.TransactionReceipt {
	block := uint64(1)
	return &domain.TransactionReceipt{Hash: hash, Status: domain.TxStatusConfirmed, BlockNumber: &block}
}
