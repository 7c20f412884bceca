// Package evm implements the to-do service for EVM rollups (Arbitrum,
// Optimism, Base) against a TodoList contract.
package evm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vietddude/todochain/internal/core/chainerr"
	"github.com/vietddude/todochain/internal/core/domain"
	"github.com/vietddude/todochain/internal/infra/chain"
	"github.com/vietddude/todochain/internal/monitor"
)

// DefaultMonitorOptions suit L2 block times.
var DefaultMonitorOptions = monitor.Options{
	MaxAttempts:     60,
	PollingInterval: 2 * time.Second,
	Timeout:         120 * time.Second,
}

// Service implements chain.Service for EVM networks.
type Service struct {
	*chain.Base
}

var _ chain.Service = (*Service)(nil)

// NewService wraps cfg.Connector. cfg.Network must be an EVM network.
func NewService(cfg chain.BaseConfig) (*Service, error) {
	if info, ok := domain.Lookup(cfg.Network); ok && !info.IsEVM() {
		return nil, chainerr.ConfigurationError(
			fmt.Sprintf("%s is not an EVM network", cfg.Network), chainerr.WithNetwork(cfg.Network))
	}
	cfg.MonitorDefaults = cfg.MonitorDefaults.Or(DefaultMonitorOptions)
	cfg.Recognizers = append(cfg.Recognizers, RecognizeRollup)

	base, err := chain.NewBase(cfg)
	if err != nil {
		return nil, err
	}
	return &Service{Base: base}, nil
}

func (s *Service) ConnectWallet(ctx context.Context, opts chain.ConnectOptions) (*domain.WalletInfo, error) {
	return s.Connect(ctx, opts, NormalizeAddress)
}

func (s *Service) GetWalletBalance(ctx context.Context, token string) (decimal.Decimal, error) {
	w, err := s.EnsureWalletConnected()
	if err != nil {
		return decimal.Zero, err
	}
	if token != "" {
		if token, err = NormalizeAddress(token); err != nil {
			return decimal.Zero, s.Fail("get_balance", chainerr.KindContractError, err)
		}
	}
	bal, err := s.Connector().Balance(ctx, w.Address, token)
	if err != nil {
		return decimal.Zero, s.Fail("get_balance", chainerr.KindNetworkError, err)
	}
	s.Done("get_balance")
	return bal, nil
}

func (s *Service) GetTodos(ctx context.Context) ([]domain.Todo, error) {
	w, err := s.EnsureWalletConnected()
	if err != nil {
		return nil, err
	}
	todos, err := s.Connector().Todos(ctx, w.Address)
	if err != nil {
		return nil, s.Fail("get_todos", chainerr.KindContractError, err)
	}
	s.Done("get_todos")
	return todos, nil
}

func (s *Service) GetTodoByID(ctx context.Context, id uint64) (*domain.Todo, error) {
	w, err := s.EnsureWalletConnected()
	if err != nil {
		return nil, err
	}
	t, err := s.Connector().Todo(ctx, w.Address, id)
	if err != nil {
		return nil, s.Fail("get_todo", chainerr.KindContractError, err)
	}
	s.Done("get_todo")
	return t, nil
}

func (s *Service) CreateTodo(ctx context.Context, in domain.CreateTodoInput) (*domain.TransactionReceipt, error) {
	w, err := s.EnsureWalletConnected()
	if err != nil {
		return nil, err
	}
	return s.SubmitAndMonitor(ctx, "create_todo", chain.Operation{
		Kind:   chain.OpCreate,
		From:   w.Address,
		Create: in,
	})
}

// UpdateTodo reads the record first: the contract call takes every field.
func (s *Service) UpdateTodo(
	ctx context.Context,
	id uint64,
	in domain.UpdateTodoInput,
) (*domain.TransactionReceipt, error) {
	w, err := s.EnsureWalletConnected()
	if err != nil {
		return nil, err
	}
	current, err := s.Connector().Todo(ctx, w.Address, id)
	if err != nil {
		return nil, s.Fail("update_todo", chainerr.KindContractError, err)
	}
	if current == nil {
		return nil, s.Fail("update_todo", chainerr.KindContractError, fmt.Errorf("todo %d not found", id))
	}
	return s.SubmitAndMonitor(ctx, "update_todo", chain.Operation{
		Kind:    chain.OpUpdate,
		From:    w.Address,
		TodoID:  id,
		Update:  in,
		Current: current,
	})
}

func (s *Service) DeleteTodo(ctx context.Context, id uint64) (*domain.TransactionReceipt, error) {
	w, err := s.EnsureWalletConnected()
	if err != nil {
		return nil, err
	}
	return s.SubmitAndMonitor(ctx, "delete_todo", chain.Operation{
		Kind:   chain.OpDelete,
		From:   w.Address,
		TodoID: id,
	})
}

// RecognizeRollup types sequencer and L1 data-fee failures.
func RecognizeRollup(err error, opts ...chainerr.Option) *chainerr.Error {
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{"sequencer", "l1 fee", "l1 gas", "l1 data", "batch poster"} {
		if strings.Contains(msg, pattern) {
			return chainerr.RollupError("rollup rejected the transaction", append(opts, chainerr.WithCause(err))...)
		}
	}
	return nil
}
