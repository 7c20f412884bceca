// Package solana implements the to-do service for Solana against an
// on-chain to-do program.
package solana

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

var DefaultMonitorOptions = monitor.Options{
	MaxAttempts:     60,
	PollingInterval: time.Second,
	Timeout:         60 * time.Second,
}

// Service implements chain.Service for Solana clusters.
type Service struct {
	*chain.Base
}

var _ chain.Service = (*Service)(nil)

func NewService(cfg chain.BaseConfig) (*Service, error) {
	if info, ok := domain.Lookup(cfg.Network); ok && info.Family != domain.FamilySolana {
		return nil, chainerr.ConfigurationError(
			fmt.Sprintf("%s is not a Solana network", cfg.Network), chainerr.WithNetwork(cfg.Network))
	}
	cfg.MonitorDefaults = cfg.MonitorDefaults.Or(DefaultMonitorOptions)
	cfg.Recognizers = append(cfg.Recognizers, RecognizeProgram)

	base, err := chain.NewBase(cfg)
	if err != nil {
		return nil, err
	}
	return &Service{Base: base}, nil
}

func (s *Service) ConnectWallet(ctx context.Context, opts chain.ConnectOptions) (*domain.WalletInfo, error) {
	return s.Connect(ctx, opts, NormalizeAddress)
}

// GetWalletBalance reports SOL, or the SPL balance of the mint in token.
func (s *Service) GetWalletBalance(ctx context.Context, token string) (decimal.Decimal, error) {
	w, err := s.EnsureWalletConnected()
	if err != nil {
		return decimal.Zero, err
	}
	if token != "" {
		if _, err := NormalizeAddress(token); err != nil {
			return decimal.Zero, s.Fail("get_balance", chainerr.KindProgramError, err)
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
		return nil, s.Fail("get_todos", chainerr.KindProgramError, err)
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
		return nil, s.Fail("get_todo", chainerr.KindProgramError, err)
	}
	s.Done("get_todo")
	return t, nil
}

func (s *Service) CreateTodo(ctx context.Context, in domain.CreateTodoInput) (*domain.TransactionReceipt, error) {
	w, err := s.EnsureWalletConnected()
	if err != nil {
		return nil, err
	}
	return s.SubmitAndMonitor(ctx, "create_todo", chain.Operation{Kind: chain.OpCreate, From: w.Address, Create: in})
}

// UpdateTodo sends only the changed fields; the program keeps the rest.
func (s *Service) UpdateTodo(
	ctx context.Context,
	id uint64,
	in domain.UpdateTodoInput,
) (*domain.TransactionReceipt, error) {
	w, err := s.EnsureWalletConnected()
	if err != nil {
		return nil, err
	}
	return s.SubmitAndMonitor(ctx, "update_todo", chain.Operation{
		Kind:   chain.OpUpdate,
		From:   w.Address,
		TodoID: id,
		Update: in,
	})
}

func (s *Service) DeleteTodo(ctx context.Context, id uint64) (*domain.TransactionReceipt, error) {
	w, err := s.EnsureWalletConnected()
	if err != nil {
		return nil, err
	}
	return s.SubmitAndMonitor(ctx, "delete_todo", chain.Operation{Kind: chain.OpDelete, From: w.Address, TodoID: id})
}

// RecognizeProgram types instruction failures reported by the runtime.
func RecognizeProgram(err error, opts ...chainerr.Option) *chainerr.Error {
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{"custom program error", "instructionerror", "program failed", "anchorerror"} {
		if strings.Contains(msg, pattern) {
			return chainerr.ProgramError("program rejected the instruction", append(opts, chainerr.WithCause(err))...)
		}
	}
	return nil
}
