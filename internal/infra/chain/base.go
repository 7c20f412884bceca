package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/vietddude/todochain/internal/core/chainerr"
	"github.com/vietddude/todochain/internal/core/domain"
	"github.com/vietddude/todochain/internal/infra/storage"
	"github.com/vietddude/todochain/internal/metrics"
	"github.com/vietddude/todochain/internal/monitor"
)

// BaseConfig configures the state shared by every Service implementation.
type BaseConfig struct {
	Network domain.Network

	// ChainID overrides the identifier the signer must report.
	ChainID string

	// ExplorerURL overrides the registry explorer base.
	ExplorerURL string

	Connector Connector

	// Monitor is created when nil.
	Monitor *monitor.Monitor

	// MonitorDefaults apply to every watch before per-call options.
	MonitorDefaults monitor.Options

	// Store caches terminal receipts. Optional.
	Store storage.ReceiptRepository

	// Recognizers type family-specific failures before the generic rules.
	Recognizers []chainerr.Recognizer

	Logger *slog.Logger
}

// Base holds the wallet session, receipt lookups and monitor delegation
// shared by concrete services. Family packages embed it.
type Base struct {
	network     domain.Network
	info        domain.NetworkInfo
	chainID     string
	explorerURL string

	connector       Connector
	monitor         *monitor.Monitor
	monitorDefaults monitor.Options
	store           storage.ReceiptRepository
	recognizers     []chainerr.Recognizer
	logger          *slog.Logger

	mu     sync.RWMutex
	wallet *domain.WalletInfo
}

// NewBase validates cfg against the network registry.
func NewBase(cfg BaseConfig) (*Base, error) {
	info, ok := domain.Lookup(cfg.Network)
	if !ok {
		return nil, chainerr.ConfigurationError(fmt.Sprintf("unknown network %q", cfg.Network))
	}
	if cfg.Connector == nil {
		return nil, chainerr.ConfigurationError("connector is required", chainerr.WithNetwork(cfg.Network))
	}

	b := &Base{
		network:         cfg.Network,
		info:            info,
		chainID:         cfg.ChainID,
		explorerURL:     cfg.ExplorerURL,
		connector:       cfg.Connector,
		monitor:         cfg.Monitor,
		monitorDefaults: cfg.MonitorDefaults,
		store:           cfg.Store,
		recognizers:     cfg.Recognizers,
		logger:          cfg.Logger,
	}
	if b.chainID == "" {
		b.chainID = info.ChainID
	}
	if b.explorerURL == "" {
		b.explorerURL = info.ExplorerURL
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	if b.monitor == nil {
		// Watch scopes its own lines by network.
		b.monitor = monitor.New(monitor.WithLogger(b.logger))
	}
	b.logger = b.logger.With("network", cfg.Network)
	return b, nil
}

func (b *Base) Network() domain.Network {
	return b.network
}

func (b *Base) Info() domain.NetworkInfo {
	return b.info
}

// ChainID is the identifier a connected signer must report.
func (b *Base) ChainID() string {
	return b.chainID
}

// Connector returns the chain connector.
func (b *Base) Connector() Connector {
	return b.connector
}

func (b *Base) Logger() *slog.Logger {
	return b.logger
}

// Connect opens a session through the connector and checks the chain. The
// optional normalize func validates and canonicalizes the address.
func (b *Base) Connect(
	ctx context.Context,
	opts ConnectOptions,
	normalize func(string) (string, error),
) (*domain.WalletInfo, error) {
	netOpt := chainerr.WithNetwork(b.network)

	addr, err := b.connector.Connect(ctx, opts)
	if err != nil {
		b.dropSession()
		return nil, b.observe("connect_wallet", connectError(err, netOpt))
	}
	if normalize != nil {
		if addr, err = normalize(addr); err != nil {
			b.dropSession()
			return nil, b.observe("connect_wallet",
				chainerr.WalletConnectionFailed("invalid wallet address", netOpt, chainerr.WithCause(err)))
		}
	}

	active, err := b.connector.ChainID(ctx)
	if err != nil {
		b.dropSession()
		return nil, b.observe("connect_wallet", connectError(err, netOpt))
	}
	if active != b.chainID {
		b.dropSession()
		return nil, b.observe("connect_wallet", chainerr.NetworkSwitchRequired(
			fmt.Sprintf("signer is on chain %s, expected %s", active, b.chainID), netOpt))
	}

	info := &domain.WalletInfo{
		Address:   addr,
		Network:   b.network,
		Connected: true,
		ChainID:   active,
	}
	b.mu.Lock()
	b.wallet = info
	b.mu.Unlock()

	b.logger.Info("Wallet connected", "address", addr)
	b.observe("connect_wallet", nil)
	copied := *info
	return &copied, nil
}

func connectError(err error, opts ...chainerr.Option) error {
	if e, ok := chainerr.As(err); ok {
		return e
	}
	if e := chainerr.Generic(err, opts...); e != nil && e.Kind == chainerr.KindUserRejected {
		return e
	}
	return chainerr.WalletConnectionFailed("could not connect wallet", append(opts, chainerr.WithCause(err))...)
}

// dropSession is called when a connect attempt fails. The connector may
// already have replaced its signer, so the previous session cannot survive.
func (b *Base) dropSession() {
	b.mu.Lock()
	had := b.wallet != nil
	b.wallet = nil
	b.mu.Unlock()

	b.connector.Disconnect()
	if had {
		b.logger.Warn("Wallet session dropped after failed connect")
	}
}

// DisconnectWallet clears the session. It is idempotent.
func (b *Base) DisconnectWallet() {
	b.mu.Lock()
	had := b.wallet != nil
	b.wallet = nil
	b.mu.Unlock()

	b.connector.Disconnect()
	if had {
		b.logger.Info("Wallet disconnected")
	}
}

func (b *Base) IsWalletConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.wallet != nil && b.wallet.Connected
}

// GetWalletInfo returns a copy of the session, or nil.
func (b *Base) GetWalletInfo() *domain.WalletInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.wallet == nil {
		return nil
	}
	copied := *b.wallet
	return &copied
}

// EnsureWalletConnected returns the session or WALLET_NOT_CONNECTED. It
// performs no I/O.
func (b *Base) EnsureWalletConnected() (*domain.WalletInfo, error) {
	w := b.GetWalletInfo()
	if w == nil || !w.Connected {
		return nil, chainerr.WalletNotConnected("connect a wallet first", chainerr.WithNetwork(b.network))
	}
	return w, nil
}

// Fail types err for the boundary: typed errors pass through, family
// recognizers run first, then the generic rules, then fallback.
func (b *Base) Fail(op string, fallback chainerr.Kind, err error, opts ...chainerr.Option) error {
	if err == nil {
		return b.observe(op, nil)
	}
	opts = append([]chainerr.Option{chainerr.WithNetwork(b.network)}, opts...)
	return b.observe(op, chainerr.Classify(err, fallback, b.recognizers, opts...))
}

// Done records a successful operation.
func (b *Base) Done(op string) {
	b.observe(op, nil)
}

func (b *Base) observe(op string, err error) error {
	result := "ok"
	if err != nil {
		result = string(chainerr.KindOf(err))
		if result == "" {
			result = string(chainerr.KindUnknown)
		}
		b.logger.Debug("Operation failed", "op", op, "error", err)
	}
	metrics.ServiceOperationsTotal.WithLabelValues(string(b.network), op, result).Inc()
	return err
}

// SubmitAndMonitor sends op and waits for its receipt with the service's
// monitor defaults.
func (b *Base) SubmitAndMonitor(ctx context.Context, opName string, op Operation) (*domain.TransactionReceipt, error) {
	hash, err := b.connector.Submit(ctx, op)
	if err != nil {
		return nil, b.Fail(opName, chainerr.KindTransactionFailed, err)
	}
	b.logger.Info("Transaction submitted", "op", opName, "hash", hash)

	receipt, err := b.MonitorTransaction(ctx, hash, monitor.Options{})
	if err != nil {
		return nil, b.Fail(opName, chainerr.KindTransactionFailed, err, chainerr.WithTxHash(hash))
	}
	b.Done(opName)
	return receipt, nil
}

// MonitorTransaction watches hash using this service's receipt lookup.
func (b *Base) MonitorTransaction(
	ctx context.Context,
	hash string,
	opts monitor.Options,
) (*domain.TransactionReceipt, error) {
	if t, ok := b.connector.(ReceiptTracker); ok {
		t.Track(hash)
		defer t.Forget(hash)
	}
	return b.monitor.Watch(ctx, hash, b.network, b.GetTransactionReceipt, opts.Or(b.monitorDefaults))
}

// StopMonitoring ends the watch on hash, if any.
func (b *Base) StopMonitoring(hash string) {
	b.monitor.Stop(hash)
}

// Monitor exposes the monitor for introspection.
func (b *Base) Monitor() *monitor.Monitor {
	return b.monitor
}

// GetTransactionReceipt reads the store first and caches terminal receipts
// fetched from the chain. Store failures are logged, never returned.
func (b *Base) GetTransactionReceipt(ctx context.Context, hash string) (*domain.TransactionReceipt, error) {
	if hash == "" {
		return nil, chainerr.TransactionFailed("empty transaction hash", chainerr.WithNetwork(b.network))
	}

	if b.store != nil {
		r, err := b.store.Get(ctx, b.network, hash)
		switch {
		case err == nil:
			return r, nil
		case !errors.Is(err, storage.ErrReceiptNotFound):
			metrics.ReceiptStoreErrors.WithLabelValues(fmt.Sprintf("%T", b.store), "get").Inc()
			b.logger.Warn("Receipt store read failed", "hash", hash, "error", err)
		}
	}

	r, err := b.connector.FetchReceipt(ctx, hash)
	if err != nil {
		return nil, b.Fail("get_receipt", chainerr.KindNetworkError, err, chainerr.WithTxHash(hash))
	}
	if r == nil {
		return nil, nil
	}
	if r.Network == "" {
		r.Network = b.network
	}

	if b.store != nil && r.Status.IsTerminal() {
		if err := b.store.Save(ctx, r); err != nil {
			metrics.ReceiptStoreErrors.WithLabelValues(fmt.Sprintf("%T", b.store), "save").Inc()
			b.logger.Warn("Receipt store write failed", "hash", hash, "error", err)
		}
	}
	return r, nil
}

// GetTransactionStatus maps a missing receipt to pending.
func (b *Base) GetTransactionStatus(ctx context.Context, hash string) (domain.TxStatus, error) {
	r, err := b.GetTransactionReceipt(ctx, hash)
	if err != nil {
		return domain.TxStatusUnknown, err
	}
	if r == nil {
		return domain.TxStatusPending, nil
	}
	return r.Status, nil
}

func (b *Base) GetTransactionExplorerURL(hash string) string {
	return domain.JoinExplorerURL(b.explorerURL, b.info.TxPath, hash)
}

func (b *Base) GetAddressExplorerURL(address string) string {
	return domain.JoinExplorerURL(b.explorerURL, b.info.AddressPath, address)
}

// Close stops every watch, drops the session and closes the connector.
func (b *Base) Close() error {
	b.monitor.StopAll()
	b.DisconnectWallet()
	return b.connector.Close()
}
