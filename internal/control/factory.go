// Package control wires configuration into cached, per-network services.
package control

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/vietddude/todochain/internal/core/chainerr"
	"github.com/vietddude/todochain/internal/core/config"
	"github.com/vietddude/todochain/internal/core/domain"
	"github.com/vietddude/todochain/internal/infra/chain"
	"github.com/vietddude/todochain/internal/infra/chain/evm"
	"github.com/vietddude/todochain/internal/infra/chain/polkadot"
	"github.com/vietddude/todochain/internal/infra/chain/solana"
	"github.com/vietddude/todochain/internal/infra/rpc"
	"github.com/vietddude/todochain/internal/infra/storage"
	"github.com/vietddude/todochain/internal/monitor"
)

// ConnectorBuilder creates the chain connector for a configured network.
type ConnectorBuilder func(network domain.Network, cfg config.NetworkConfig) (chain.Connector, error)

// Factory resolves networks to services. Each network is built once, on
// first request, and the same instance is returned afterwards.
type Factory struct {
	networks map[domain.Network]config.NetworkConfig
	monitor  monitor.Options
	store    storage.ReceiptRepository
	build    ConnectorBuilder
	logger   *slog.Logger

	mu       sync.Mutex
	services map[domain.Network]chain.Service
}

// Option configures a Factory.
type Option func(*Factory)

// WithReceiptStore shares store between all services. The factory closes it.
func WithReceiptStore(store storage.ReceiptRepository) Option {
	return func(f *Factory) { f.store = store }
}

func WithLogger(l *slog.Logger) Option {
	return func(f *Factory) { f.logger = l }
}

// WithConnectorBuilder replaces the JSON-RPC connectors.
func WithConnectorBuilder(b ConnectorBuilder) Option {
	return func(f *Factory) { f.build = b }
}

// NewFactory indexes the configured networks. Nothing is dialed until a
// service is requested.
func NewFactory(cfg *config.AppConfig, opts ...Option) (*Factory, error) {
	if cfg == nil {
		cfg = &config.AppConfig{}
	}
	networks, err := cfg.NetworkConfigs()
	if err != nil {
		return nil, chainerr.ConfigurationError(err.Error(), chainerr.WithCause(err))
	}

	f := &Factory{
		networks: networks,
		monitor:  cfg.Monitor,
		build:    DefaultConnector,
		logger:   slog.Default(),
		services: make(map[domain.Network]chain.Service),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// GetService returns the cached service for network, building it on first
// use. Unconfigured networks fail with CONFIGURATION_ERROR.
func (f *Factory) GetService(network domain.Network) (chain.Service, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if svc, ok := f.services[network]; ok {
		return svc, nil
	}

	netOpt := chainerr.WithNetwork(network)
	info, ok := domain.Lookup(network)
	if !ok {
		return nil, chainerr.ConfigurationError(fmt.Sprintf("unknown network %q", network), netOpt)
	}
	nc, ok := f.networks[network]
	if !ok {
		return nil, chainerr.ConfigurationError(
			fmt.Sprintf("no configuration for %s (%s/%s)", network, info.Chain, info.Environment), netOpt)
	}
	if err := nc.Validate(network); err != nil {
		return nil, chainerr.ConfigurationError(err.Error(), netOpt, chainerr.WithCause(err))
	}

	svc, err := f.newService(network, info, nc)
	if err != nil {
		return nil, err
	}
	f.services[network] = svc
	f.logger.Info("Service created", "network", network, "family", info.Family)
	return svc, nil
}

func (f *Factory) newService(network domain.Network, info domain.NetworkInfo, nc config.NetworkConfig) (chain.Service, error) {
	netOpt := chainerr.WithNetwork(network)
	conn, err := f.build(network, nc)
	if err != nil {
		if chainerr.KindOf(err) != "" {
			return nil, err
		}
		return nil, chainerr.ConfigurationError("failed to create connector", netOpt, chainerr.WithCause(err))
	}

	base := chain.BaseConfig{
		Network:         network,
		ChainID:         nc.ChainID,
		ExplorerURL:     nc.ExplorerURL,
		Connector:       conn,
		MonitorDefaults: nc.Monitor.Or(f.monitor),
		Store:           f.store,
		Logger:          f.logger,
	}

	var svc chain.Service
	switch info.Family {
	case domain.FamilyEVM:
		svc, err = evm.NewService(base)
	case domain.FamilySolana:
		svc, err = solana.NewService(base)
	case domain.FamilyPolkadot:
		svc, err = polkadot.NewService(base)
	default:
		err = chainerr.ConfigurationError(fmt.Sprintf("unsupported family %q", info.Family), netOpt)
	}
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return svc, nil
}

// DefaultConnector builds the JSON-RPC (or Sidecar REST) connector for the
// network's family.
func DefaultConnector(network domain.Network, nc config.NetworkConfig) (chain.Connector, error) {
	timeout := nc.Timeout
	if timeout == 0 {
		timeout = config.DefaultTimeout
	}
	client := rpc.NewHTTPClient(string(network), nc.RPCURL, nc.FallbackURLs, timeout)

	switch network.Info().Family {
	case domain.FamilyEVM:
		return evm.NewConnector(network, client, nc.ContractAddress)
	case domain.FamilySolana:
		return solana.NewConnector(network, client, nc.ProgramID, nc.Commitment)
	case domain.FamilyPolkadot:
		return polkadot.NewConnector(network, client, nc.Pallet), nil
	}
	_ = client.Close()
	return nil, fmt.Errorf("no connector for %s", network)
}

// GetAllServices builds every configured network. It stops at the first
// network that fails to build.
func (f *Factory) GetAllServices() ([]chain.Service, error) {
	networks := f.GetSupportedNetworks()
	out := make([]chain.Service, 0, len(networks))
	for _, n := range networks {
		svc, err := f.GetService(n)
		if err != nil {
			return nil, err
		}
		out = append(out, svc)
	}
	return out, nil
}

// GetSupportedNetworks lists the configured networks in name order.
func (f *Factory) GetSupportedNetworks() []domain.Network {
	out := make([]domain.Network, 0, len(f.networks))
	for n := range f.networks {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IsSupported reports whether network has configuration.
func (f *Factory) IsSupported(network domain.Network) bool {
	_, ok := f.networks[network]
	return ok
}

// Close closes every built service and the receipt store.
func (f *Factory) Close() error {
	f.mu.Lock()
	services := f.services
	f.services = make(map[domain.Network]chain.Service)
	f.mu.Unlock()

	var errs []error
	for n, svc := range services {
		if err := svc.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n, err))
		}
	}
	if f.store != nil {
		if err := f.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("receipt store: %w", err))
		}
	}
	return errors.Join(errs...)
}
