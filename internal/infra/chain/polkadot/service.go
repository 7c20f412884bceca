// Package polkadot implements the to-do service for Polkadot relay chains
// through a Substrate API Sidecar and a to-do pallet.
package polkadot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vietddude/todochain/internal/core/chainerr"
	"github.com/vietddude/todochain/internal/core/domain"
	"github.com/vietddude/todochain/internal/infra/chain"
	"github.com/vietddude/todochain/internal/monitor"
)

// DefaultMonitorOptions wait for GRANDPA finality.
var DefaultMonitorOptions = monitor.Options{
	MaxAttempts:     100,
	PollingInterval: 6 * time.Second,
	Timeout:         600 * time.Second,
}

// Service implements chain.Service for Polkadot networks.
type Service struct {
	*chain.Base
	normalize func(string) (string, error)
}

var _ chain.Service = (*Service)(nil)

func NewService(cfg chain.BaseConfig) (*Service, error) {
	if info, ok := domain.Lookup(cfg.Network); ok && info.Family != domain.FamilyPolkadot {
		return nil, chainerr.ConfigurationError(
			fmt.Sprintf("%s is not a Polkadot network", cfg.Network), chainerr.WithNetwork(cfg.Network))
	}
	cfg.MonitorDefaults = cfg.MonitorDefaults.Or(DefaultMonitorOptions)
	cfg.Recognizers = append(cfg.Recognizers, RecognizePallet)

	base, err := chain.NewBase(cfg)
	if err != nil {
		return nil, err
	}
	return &Service{Base: base, normalize: addressNormalizer(cfg.Network)}, nil
}

// ConnectWallet re-encodes the address with the network's SS58 prefix.
func (s *Service) ConnectWallet(ctx context.Context, opts chain.ConnectOptions) (*domain.WalletInfo, error) {
	return s.Connect(ctx, opts, s.normalize)
}

// GetWalletBalance reports the free native balance, or the balance of the
// numeric asset id in token.
func (s *Service) GetWalletBalance(ctx context.Context, token string) (decimal.Decimal, error) {
	w, err := s.EnsureWalletConnected()
	if err != nil {
		return decimal.Zero, err
	}
	if token != "" {
		if _, err := strconv.ParseUint(token, 10, 32); err != nil {
			return decimal.Zero, s.Fail("get_balance", chainerr.KindPalletError,
				fmt.Errorf("asset id %q is not numeric", token))
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
		return nil, s.Fail("get_todos", chainerr.KindPalletError, err)
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
		return nil, s.Fail("get_todo", chainerr.KindPalletError, err)
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

// RecognizePallet types dispatch errors raised by the runtime.
func RecognizePallet(err error, opts ...chainerr.Option) *chainerr.Error {
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{"dispatcherror", "dispatch error", "badorigin", "moduleerror", "module error", "extrinsicfailed"} {
		if strings.Contains(msg, pattern) {
			return chainerr.PalletError("pallet rejected the call", append(opts, chainerr.WithCause(err))...)
		}
	}
	return nil
}
