package chain_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/vietddude/todochain/internal/core/chainerr"
	"github.com/vietddude/todochain/internal/core/domain"
	"github.com/vietddude/todochain/internal/infra/chain"
	"github.com/vietddude/todochain/internal/infra/chain/chaintest"
	"github.com/vietddude/todochain/internal/infra/storage/memory"
	"github.com/vietddude/todochain/internal/monitor"
)

var fastMonitor = monitor.Options{MaxAttempts: 5, PollingInterval: time.Millisecond, Timeout: time.Second}

func newBase(t *testing.T, conn *chaintest.MockConnector, mutate ...func(*chain.BaseConfig)) *chain.Base {
	t.Helper()
	cfg := chain.BaseConfig{
		Network:         domain.BaseTestnet,
		Connector:       conn,
		MonitorDefaults: fastMonitor,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	b, err := chain.NewBase(cfg)
	if err != nil {
		t.Fatalf("NewBase failed: %v", err)
	}
	return b
}

func onChain(id string) func(context.Context) (string, error) {
	return func(context.Context) (string, error) { return id, nil }
}

func TestNewBase_Validation(t *testing.T) {
	if _, err := chain.NewBase(chain.BaseConfig{Network: "ethereum-mainnet", Connector: &chaintest.MockConnector{}}); !chainerr.IsKind(err, chainerr.KindConfigurationError) {
		t.Errorf("expected CONFIGURATION_ERROR for unknown network, got %v", err)
	}
	if _, err := chain.NewBase(chain.BaseConfig{Network: domain.BaseMainnet}); !chainerr.IsKind(err, chainerr.KindConfigurationError) {
		t.Errorf("expected CONFIGURATION_ERROR without connector, got %v", err)
	}
}

func TestEnsureWalletConnected_NoIO(t *testing.T) {
	conn := &chaintest.MockConnector{}
	b := newBase(t, conn)

	_, err := b.EnsureWalletConnected()
	e, ok := chainerr.As(err)
	if !ok || e.Kind != chainerr.KindWalletNotConnected || e.Network != domain.BaseTestnet {
		t.Fatalf("expected WALLET_NOT_CONNECTED on base-testnet, got %v", err)
	}
	if conn.TotalCalls() != 0 {
		t.Errorf("guard must not touch the connector, got %d calls", conn.TotalCalls())
	}
	if b.IsWalletConnected() || b.GetWalletInfo() != nil {
		t.Errorf("fresh base must have no wallet")
	}
}

func TestConnect(t *testing.T) {
	conn := &chaintest.MockConnector{ChainIDFunc: onChain("84532")}
	b := newBase(t, conn)

	info, err := b.Connect(context.Background(), chain.ConnectOptions{Address: "0xabc"}, nil)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	want := domain.WalletInfo{Address: "0xabc", Network: domain.BaseTestnet, Connected: true, ChainID: "84532"}
	if *info != want {
		t.Errorf("expected %+v, got %+v", want, *info)
	}

	info.Address = "mutated"
	if b.GetWalletInfo().Address != "0xabc" {
		t.Errorf("returned wallet info must be a copy")
	}
	if _, err := b.EnsureWalletConnected(); err != nil {
		t.Errorf("expected connected, got %v", err)
	}
}

func TestConnect_ChainMismatch(t *testing.T) {
	conn := &chaintest.MockConnector{ChainIDFunc: onChain("1")}
	b := newBase(t, conn)

	_, err := b.Connect(context.Background(), chain.ConnectOptions{Address: "0xabc"}, nil)
	if !chainerr.IsKind(err, chainerr.KindNetworkSwitchRequired) {
		t.Fatalf("expected NETWORK_SWITCH_REQUIRED, got %v", err)
	}
	if b.IsWalletConnected() {
		t.Errorf("must not be connected after mismatch")
	}
	if conn.Calls("Disconnect") != 1 {
		t.Errorf("expected connector session dropped")
	}
}

func TestConnect_ChainIDOverride(t *testing.T) {
	conn := &chaintest.MockConnector{ChainIDFunc: onChain("31337")}
	b := newBase(t, conn, func(c *chain.BaseConfig) { c.ChainID = "31337" })
	if _, err := b.Connect(context.Background(), chain.ConnectOptions{Address: "0x1"}, nil); err != nil {
		t.Fatalf("expected override chain id accepted, got %v", err)
	}
}

func TestConnect_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want chainerr.Kind
	}{
		{"user rejected", errors.New("User rejected the request."), chainerr.KindUserRejected},
		{"provider failure", errors.New("no injected provider"), chainerr.KindWalletConnectionFailed},
		{"typed", chainerr.InsufficientFunds("x"), chainerr.KindInsufficientFunds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := &chaintest.MockConnector{
				ConnectFunc: func(context.Context, chain.ConnectOptions) (string, error) { return "", tt.err },
			}
			_, err := newBase(t, conn).Connect(context.Background(), chain.ConnectOptions{}, nil)
			if !chainerr.IsKind(err, tt.want) {
				t.Errorf("expected %s, got %v", tt.want, err)
			}
		})
	}
}

func TestConnect_InvalidAddress(t *testing.T) {
	conn := &chaintest.MockConnector{ChainIDFunc: onChain("84532")}
	b := newBase(t, conn)
	reject := func(string) (string, error) { return "", errors.New("bad checksum") }

	_, err := b.Connect(context.Background(), chain.ConnectOptions{Address: "junk"}, reject)
	if !chainerr.IsKind(err, chainerr.KindWalletConnectionFailed) {
		t.Errorf("expected WALLET_CONNECTION_FAILED, got %v", err)
	}
}

func TestConnect_FailedReconnectDropsSession(t *testing.T) {
	tests := []struct {
		name      string
		connect   func(context.Context, chain.ConnectOptions) (string, error)
		normalize func(string) (string, error)
		chainID   string
	}{
		{
			name: "connector error",
			connect: func(context.Context, chain.ConnectOptions) (string, error) {
				return "", errors.New("no injected provider")
			},
			chainID: "84532",
		},
		{
			name:      "invalid address",
			normalize: func(string) (string, error) { return "", errors.New("bad checksum") },
			chainID:   "84532",
		},
		{
			name:    "wrong chain",
			chainID: "1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chainID := "84532"
			conn := &chaintest.MockConnector{
				ChainIDFunc: func(context.Context) (string, error) { return chainID, nil },
				SubmitFunc:  func(context.Context, chain.Operation) (string, error) { return "0xfeed", nil },
			}
			b := newBase(t, conn)
			if _, err := b.Connect(context.Background(), chain.ConnectOptions{Address: "0xabc"}, nil); err != nil {
				t.Fatalf("first Connect failed: %v", err)
			}

			chainID = tt.chainID
			conn.ConnectFunc = tt.connect
			if _, err := b.Connect(context.Background(), chain.ConnectOptions{Address: "0xdef"}, tt.normalize); err == nil {
				t.Fatalf("expected reconnect to fail")
			}

			if b.IsWalletConnected() {
				t.Errorf("expected no session after failed reconnect")
			}
			if info := b.GetWalletInfo(); info != nil {
				t.Errorf("expected nil wallet info, got %+v", *info)
			}
			if _, err := b.EnsureWalletConnected(); !chainerr.IsKind(err, chainerr.KindWalletNotConnected) {
				t.Errorf("expected WALLET_NOT_CONNECTED, got %v", err)
			}
			if conn.Calls("Disconnect") != 1 {
				t.Errorf("expected connector session dropped once, got %d", conn.Calls("Disconnect"))
			}
		})
	}
}

func TestDisconnectWallet_Idempotent(t *testing.T) {
	conn := &chaintest.MockConnector{ChainIDFunc: onChain("84532")}
	b := newBase(t, conn)
	if _, err := b.Connect(context.Background(), chain.ConnectOptions{Address: "0x1"}, nil); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	b.DisconnectWallet()
	b.DisconnectWallet()
	if b.IsWalletConnected() || b.GetWalletInfo() != nil {
		t.Errorf("expected no wallet after disconnect")
	}
}

func TestGetTransactionReceipt_PendingAndCached(t *testing.T) {
	var ready bool
	conn := &chaintest.MockConnector{
		FetchReceiptFunc: func(ctx context.Context, hash string) (*domain.TransactionReceipt, error) {
			if !ready {
				return nil, nil
			}
			return chaintest.Confirmed(hash), nil
		},
	}
	store := memory.NewReceiptStore()
	b := newBase(t, conn, func(c *chain.BaseConfig) { c.Store = store })
	ctx := context.Background()

	r, err := b.GetTransactionReceipt(ctx, "0x1")
	if err != nil || r != nil {
		t.Fatalf("expected nil receipt while pending, got %v, %v", r, err)
	}
	status, _ := b.GetTransactionStatus(ctx, "0x1")
	if status != domain.TxStatusPending {
		t.Errorf("expected pending, got %s", status)
	}

	ready = true
	r, err = b.GetTransactionReceipt(ctx, "0x1")
	if err != nil || r == nil || r.Network != domain.BaseTestnet {
		t.Fatalf("expected confirmed receipt stamped with network, got %+v, %v", r, err)
	}
	if store.Len() != 1 {
		t.Fatalf("expected receipt stored")
	}

	before := conn.Calls("FetchReceipt")
	if _, err := b.GetTransactionReceipt(ctx, "0x1"); err != nil {
		t.Fatal(err)
	}
	if conn.Calls("FetchReceipt") != before {
		t.Errorf("expected cached receipt served without fetching")
	}
}

func TestGetTransactionReceipt_ErrorTyped(t *testing.T) {
	conn := &chaintest.MockConnector{
		FetchReceiptFunc: func(context.Context, string) (*domain.TransactionReceipt, error) {
			return nil, errors.New("dial tcp: connection refused")
		},
	}
	_, err := newBase(t, conn).GetTransactionReceipt(context.Background(), "0x9")
	e, ok := chainerr.As(err)
	if !ok || e.Kind != chainerr.KindNetworkError || e.TxHash != "0x9" {
		t.Errorf("expected NETWORK_ERROR with hash, got %v", err)
	}
}

func TestSubmitAndMonitor(t *testing.T) {
	conn := &chaintest.MockConnector{
		SubmitFunc: func(context.Context, chain.Operation) (string, error) { return "0xfeed", nil },
		FetchReceiptFunc: func(ctx context.Context, hash string) (*domain.TransactionReceipt, error) {
			return chaintest.Confirmed(hash), nil
		},
	}
	b := newBase(t, conn)

	r, err := b.SubmitAndMonitor(context.Background(), "create_todo", chain.Operation{Kind: chain.OpCreate})
	if err != nil {
		t.Fatalf("SubmitAndMonitor failed: %v", err)
	}
	if r.Hash != "0xfeed" || r.Status != domain.TxStatusConfirmed {
		t.Errorf("unexpected receipt %+v", r)
	}
	if b.Monitor().IsMonitoring("0xfeed") {
		t.Errorf("expected watch finished")
	}
}

func TestSubmitAndMonitor_LogsNetworkOnce(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	var polls int
	conn := &chaintest.MockConnector{
		SubmitFunc: func(context.Context, chain.Operation) (string, error) { return "0xfeed", nil },
		FetchReceiptFunc: func(ctx context.Context, hash string) (*domain.TransactionReceipt, error) {
			if polls++; polls < 2 {
				return nil, nil
			}
			return chaintest.Confirmed(hash), nil
		},
	}
	b := newBase(t, conn, func(c *chain.BaseConfig) { c.Logger = logger })

	if _, err := b.SubmitAndMonitor(context.Background(), "create_todo", chain.Operation{Kind: chain.OpCreate}); err != nil {
		t.Fatalf("SubmitAndMonitor failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) < 3 {
		t.Fatalf("expected submit and monitor lines, got %q", buf.String())
	}
	for _, line := range lines {
		if n := strings.Count(line, "network="); n != 1 {
			t.Errorf("expected network once, got %d in %q", n, line)
		}
	}
}

func TestSubmitAndMonitor_SubmitError(t *testing.T) {
	conn := &chaintest.MockConnector{
		SubmitFunc: func(context.Context, chain.Operation) (string, error) {
			return "", errors.New("insufficient funds for gas * price + value")
		},
	}
	_, err := newBase(t, conn).SubmitAndMonitor(context.Background(), "create_todo", chain.Operation{})
	if !chainerr.IsKind(err, chainerr.KindInsufficientFunds) {
		t.Errorf("expected INSUFFICIENT_FUNDS, got %v", err)
	}
	if conn.Calls("FetchReceipt") != 0 {
		t.Errorf("no monitoring expected after failed submit")
	}
}

func TestSubmitAndMonitor_Reverted(t *testing.T) {
	conn := &chaintest.MockConnector{
		SubmitFunc: func(context.Context, chain.Operation) (string, error) { return "0xbad", nil },
		FetchReceiptFunc: func(ctx context.Context, hash string) (*domain.TransactionReceipt, error) {
			return &domain.TransactionReceipt{Hash: hash, Status: domain.TxStatusFailed}, nil
		},
	}
	_, err := newBase(t, conn).SubmitAndMonitor(context.Background(), "delete_todo", chain.Operation{})
	e, ok := chainerr.As(err)
	if !ok || e.Kind != chainerr.KindTransactionFailed || e.TxHash != "0xbad" {
		t.Errorf("expected TRANSACTION_FAILED for 0xbad, got %v", err)
	}
}

func TestExplorerURLs(t *testing.T) {
	b := newBase(t, &chaintest.MockConnector{})
	if got := b.GetTransactionExplorerURL("0xabc"); got != "https://sepolia.basescan.org/tx/0xabc" {
		t.Errorf("unexpected tx url %s", got)
	}
	if got := b.GetAddressExplorerURL("0xdef"); got != "https://sepolia.basescan.org/address/0xdef" {
		t.Errorf("unexpected address url %s", got)
	}

	custom := newBase(t, &chaintest.MockConnector{}, func(c *chain.BaseConfig) {
		c.Network = domain.PolkadotMainnet
		c.ExplorerURL = "https://explorer.example"
	})
	if got := custom.GetTransactionExplorerURL("0x1"); got != "https://explorer.example/extrinsic/0x1" {
		t.Errorf("unexpected override url %s", got)
	}
}

func TestClose(t *testing.T) {
	conn := &chaintest.MockConnector{}
	b := newBase(t, conn)
	if err := b.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !conn.Closed() {
		t.Errorf("expected connector closed")
	}
}
