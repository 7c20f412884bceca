package control

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/vietddude/todochain/internal/core/chainerr"
	"github.com/vietddude/todochain/internal/core/config"
	"github.com/vietddude/todochain/internal/core/domain"
	"github.com/vietddude/todochain/internal/infra/chain"
	"github.com/vietddude/todochain/internal/infra/chain/chaintest"
	"github.com/vietddude/todochain/internal/infra/chain/evm"
	"github.com/vietddude/todochain/internal/infra/chain/polkadot"
	"github.com/vietddude/todochain/internal/infra/chain/solana"
	"github.com/vietddude/todochain/internal/infra/storage"
)

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		Networks: map[string]map[string]config.NetworkConfig{
			"base": {
				"testnet": {RPCURL: "http://localhost:8545", ContractAddress: "0x5FbDB2315678afecb367f032d93F642f64180aa3"},
				"mainnet": {RPCURL: "http://localhost:8546", ContractAddress: "0x5FbDB2315678afecb367f032d93F642f64180aa3"},
			},
			"solana": {
				"testnet": {RPCURL: "http://localhost:8899", ProgramID: "11111111111111111111111111111111"},
			},
			"polkadot": {
				"testnet": {RPCURL: "http://localhost:8080", ExplorerURL: "https://explorer.example"},
			},
		},
	}
}

type mockBuilder struct {
	mu    sync.Mutex
	built map[domain.Network]*chaintest.MockConnector
}

func (b *mockBuilder) build(network domain.Network, _ config.NetworkConfig) (chain.Connector, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.built == nil {
		b.built = make(map[domain.Network]*chaintest.MockConnector)
	}
	c := &chaintest.MockConnector{}
	b.built[network] = c
	return c, nil
}

func newTestFactory(t *testing.T) (*Factory, *mockBuilder) {
	t.Helper()
	b := &mockBuilder{}
	f, err := NewFactory(testConfig(), WithConnectorBuilder(b.build))
	if err != nil {
		t.Fatalf("NewFactory failed: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return f, b
}

func TestFactory_Caching(t *testing.T) {
	f, b := newTestFactory(t)

	first, err := f.GetService(domain.BaseTestnet)
	if err != nil {
		t.Fatalf("GetService failed: %v", err)
	}
	second, err := f.GetService(domain.BaseTestnet)
	if err != nil {
		t.Fatalf("GetService failed: %v", err)
	}
	if first != second {
		t.Error("expected the same instance on repeated calls")
	}
	if len(b.built) != 1 {
		t.Errorf("expected 1 connector built, got %d", len(b.built))
	}
}

func TestFactory_ConcurrentGetService(t *testing.T) {
	f, b := newTestFactory(t)

	var wg sync.WaitGroup
	results := make([]chain.Service, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = f.GetService(domain.SolanaTestnet)
		}(i)
	}
	wg.Wait()

	for i, svc := range results {
		if svc == nil || svc != results[0] {
			t.Fatalf("result %d differs from the first", i)
		}
	}
	if len(b.built) != 1 {
		t.Errorf("expected 1 connector built, got %d", len(b.built))
	}
}

func TestFactory_Isolation(t *testing.T) {
	f, _ := newTestFactory(t)

	mainnet, err := f.GetService(domain.BaseMainnet)
	if err != nil {
		t.Fatalf("GetService failed: %v", err)
	}
	test, err := f.GetService(domain.BaseTestnet)
	if err != nil {
		t.Fatalf("GetService failed: %v", err)
	}
	if mainnet == test {
		t.Error("expected distinct instances per network")
	}
	if mainnet.Network() != domain.BaseMainnet {
		t.Errorf("expected %s, got %s", domain.BaseMainnet, mainnet.Network())
	}
	if test.Network() != domain.BaseTestnet {
		t.Errorf("expected %s, got %s", domain.BaseTestnet, test.Network())
	}
}

func TestFactory_Families(t *testing.T) {
	f, _ := newTestFactory(t)

	svc, _ := f.GetService(domain.BaseTestnet)
	if _, ok := svc.(*evm.Service); !ok {
		t.Errorf("expected *evm.Service, got %T", svc)
	}
	svc, _ = f.GetService(domain.SolanaTestnet)
	if _, ok := svc.(*solana.Service); !ok {
		t.Errorf("expected *solana.Service, got %T", svc)
	}
	svc, _ = f.GetService(domain.PolkadotTestnet)
	if _, ok := svc.(*polkadot.Service); !ok {
		t.Errorf("expected *polkadot.Service, got %T", svc)
	}

	want := "https://explorer.example/extrinsic/0xabc"
	if got := svc.GetTransactionExplorerURL("0xabc"); got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestFactory_Unconfigured(t *testing.T) {
	f, _ := newTestFactory(t)

	_, err := f.GetService(domain.ArbitrumMainnet)
	if !chainerr.IsKind(err, chainerr.KindConfigurationError) {
		t.Fatalf("expected CONFIGURATION_ERROR, got %v", err)
	}
	if !strings.Contains(err.Error(), string(domain.ArbitrumMainnet)) {
		t.Errorf("expected error to name the network, got %q", err.Error())
	}

	var cerr *chainerr.Error
	if errors.As(err, &cerr) && cerr.Network != domain.ArbitrumMainnet {
		t.Errorf("expected network %s, got %s", domain.ArbitrumMainnet, cerr.Network)
	}

	if _, err := f.GetService("dogecoin-mainnet"); !chainerr.IsKind(err, chainerr.KindConfigurationError) {
		t.Errorf("expected CONFIGURATION_ERROR for unknown network, got %v", err)
	}
}

func TestFactory_InvalidNetworkConfig(t *testing.T) {
	cfg := &config.AppConfig{
		Networks: map[string]map[string]config.NetworkConfig{
			"optimism": {"mainnet": {RPCURL: "http://localhost:8545"}},
		},
	}
	b := &mockBuilder{}
	f, err := NewFactory(cfg, WithConnectorBuilder(b.build))
	if err != nil {
		t.Fatalf("NewFactory failed: %v", err)
	}

	if _, err := f.GetService(domain.OptimismMainnet); !chainerr.IsKind(err, chainerr.KindConfigurationError) {
		t.Errorf("expected CONFIGURATION_ERROR, got %v", err)
	}
	if len(b.built) != 0 {
		t.Errorf("expected no connector built, got %d", len(b.built))
	}
}

func TestFactory_BuilderError(t *testing.T) {
	f, err := NewFactory(testConfig(), WithConnectorBuilder(
		func(domain.Network, config.NetworkConfig) (chain.Connector, error) {
			return nil, errors.New("dial failed")
		}))
	if err != nil {
		t.Fatalf("NewFactory failed: %v", err)
	}

	_, err = f.GetService(domain.BaseTestnet)
	if !chainerr.IsKind(err, chainerr.KindConfigurationError) {
		t.Fatalf("expected CONFIGURATION_ERROR, got %v", err)
	}

	// Failures are not cached.
	if _, err := f.GetService(domain.BaseTestnet); err == nil {
		t.Error("expected the second call to fail again")
	}
}

func TestFactory_SupportedNetworks(t *testing.T) {
	f, _ := newTestFactory(t)

	got := f.GetSupportedNetworks()
	want := []domain.Network{
		domain.BaseMainnet, domain.BaseTestnet, domain.PolkadotTestnet, domain.SolanaTestnet,
	}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: expected %s, got %s", i, want[i], got[i])
		}
	}

	if f.IsSupported(domain.OptimismTestnet) {
		t.Error("expected optimism-testnet to be unsupported")
	}

	all, err := f.GetAllServices()
	if err != nil {
		t.Fatalf("GetAllServices failed: %v", err)
	}
	if len(all) != len(want) {
		t.Errorf("expected %d services, got %d", len(want), len(all))
	}
}

func TestFactory_Close(t *testing.T) {
	store := &closeCountingStore{}
	b := &mockBuilder{}
	f, err := NewFactory(testConfig(), WithConnectorBuilder(b.build), WithReceiptStore(store))
	if err != nil {
		t.Fatalf("NewFactory failed: %v", err)
	}
	if _, err := f.GetService(domain.BaseTestnet); err != nil {
		t.Fatalf("GetService failed: %v", err)
	}

	if err := f.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !b.built[domain.BaseTestnet].Closed() {
		t.Error("expected connector to be closed")
	}
	if store.closed != 1 {
		t.Errorf("expected store closed once, got %d", store.closed)
	}
}

func TestOpenReceiptStore(t *testing.T) {
	store, err := OpenReceiptStore(context.Background(), storage.Config{Driver: storage.DriverMemory})
	if err != nil {
		t.Fatalf("OpenReceiptStore failed: %v", err)
	}
	defer store.Close()

	if _, err := OpenReceiptStore(context.Background(), storage.Config{Driver: "sqlite"}); err == nil {
		t.Error("expected error for unknown driver")
	}
}

type closeCountingStore struct {
	closed int
}

func (s *closeCountingStore) Save(context.Context, *domain.TransactionReceipt) error { return nil }

func (s *closeCountingStore) Get(context.Context, domain.Network, string) (*domain.TransactionReceipt, error) {
	return nil, storage.ErrReceiptNotFound
}

func (s *closeCountingStore) Close() error {
	s.closed++
	return nil
}
