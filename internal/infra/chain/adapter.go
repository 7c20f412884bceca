package chain

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/vietddude/todochain/internal/core/domain"
	"github.com/vietddude/todochain/internal/monitor"
)

// Service is the uniform operation set every network family implements.
// Every error returned by a Service method is a *chainerr.Error.
type Service interface {
	// Network returns the network this service is bound to
	Network() domain.Network

	// Info returns the registry metadata of the network
	Info() domain.NetworkInfo

	// ConnectWallet establishes a signer session. It fails with
	// NETWORK_SWITCH_REQUIRED when the signer reports another chain.
	ConnectWallet(ctx context.Context, opts ConnectOptions) (*domain.WalletInfo, error)

	// DisconnectWallet clears the session; calling it twice is harmless
	DisconnectWallet()

	// IsWalletConnected and GetWalletInfo read local state only
	IsWalletConnected() bool
	GetWalletInfo() *domain.WalletInfo

	// GetWalletBalance returns the native balance, or the balance of token
	// when it is non-empty, in whole units
	GetWalletBalance(ctx context.Context, token string) (decimal.Decimal, error)

	GetTodos(ctx context.Context) ([]domain.Todo, error)

	// GetTodoByID returns nil without error when the record does not exist
	GetTodoByID(ctx context.Context, id uint64) (*domain.Todo, error)

	// CreateTodo, UpdateTodo and DeleteTodo return the confirmed receipt
	CreateTodo(ctx context.Context, in domain.CreateTodoInput) (*domain.TransactionReceipt, error)
	UpdateTodo(ctx context.Context, id uint64, in domain.UpdateTodoInput) (*domain.TransactionReceipt, error)
	DeleteTodo(ctx context.Context, id uint64) (*domain.TransactionReceipt, error)

	// GetTransactionStatus reports pending for hashes without a receipt yet
	GetTransactionStatus(ctx context.Context, hash string) (domain.TxStatus, error)

	// GetTransactionReceipt returns nil without error while pending
	GetTransactionReceipt(ctx context.Context, hash string) (*domain.TransactionReceipt, error)

	// MonitorTransaction waits for hash to reach a terminal receipt
	MonitorTransaction(ctx context.Context, hash string, opts monitor.Options) (*domain.TransactionReceipt, error)

	// StopMonitoring ends a watch started by MonitorTransaction
	StopMonitoring(hash string)

	GetTransactionExplorerURL(hash string) string
	GetAddressExplorerURL(address string) string

	// Close stops active watches and releases connections
	Close() error
}

// ConnectOptions selects the wallet to connect.
type ConnectOptions struct {
	// Address is used when no Signer is given. EVM connectors fall back to
	// the first account of the node when both are empty.
	Address string

	// Signer signs transactions locally. Without one, EVM connectors ask the
	// node to sign (eth_sendTransaction).
	Signer Signer
}

// Signer produces signed, serialized transactions. The encoding of the
// result is chain specific: RLP bytes for EVM, a wire transaction for Solana,
// a SCALE extrinsic for Substrate.
type Signer interface {
	Address() string
	SignTransaction(ctx context.Context, req SignRequest) ([]byte, error)
}

// SignRequest carries everything a signer needs to build a transaction.
type SignRequest struct {
	Network domain.Network
	ChainID string
	From    string

	// To is the contract address, program id or "pallet.call".
	To string

	// Data is the encoded call: ABI calldata, instruction data or call args.
	Data []byte

	// Nonce is the sender's next nonce where the chain uses one.
	Nonce uint64

	// Reference anchors the transaction in time: a recent blockhash on
	// Solana, the checkpoint block hash on Substrate.
	Reference string

	// Meta holds chain-specific signing material (e.g. spec version).
	Meta map[string]string
}

// OpKind is the to-do mutation being submitted.
type OpKind string

const (
	OpCreate OpKind = "create"
	OpUpdate OpKind = "update"
	OpDelete OpKind = "delete"
)

// Operation is a to-do mutation handed to a connector.
type Operation struct {
	Kind   OpKind
	From   string
	TodoID uint64

	// Create carries the new record.
	Create domain.CreateTodoInput

	// Update carries the changed fields. Current holds the record as read
	// before the update, for connectors whose call takes every field.
	Update  domain.UpdateTodoInput
	Current *domain.Todo
}

// Connector is the chain-specific machinery behind a Service.
type Connector interface {
	// ChainID returns the identifier of the chain the endpoint or signer is on
	ChainID(ctx context.Context) (string, error)

	// Connect resolves and remembers the signer, returning its address
	Connect(ctx context.Context, opts ConnectOptions) (string, error)

	// Disconnect forgets the signer
	Disconnect()

	Balance(ctx context.Context, owner, token string) (decimal.Decimal, error)
	Todos(ctx context.Context, owner string) ([]domain.Todo, error)

	// Todo returns nil without error when the record does not exist
	Todo(ctx context.Context, owner string, id uint64) (*domain.Todo, error)

	// Submit sends op and returns the transaction hash
	Submit(ctx context.Context, op Operation) (string, error)

	// FetchReceipt returns nil without error while the transaction is pending
	FetchReceipt(ctx context.Context, hash string) (*domain.TransactionReceipt, error)

	Close() error
}

// ReceiptTracker is implemented by connectors that keep per-hash lookup
// state. Track is called before a watch starts and Forget once it ends.
type ReceiptTracker interface {
	Track(hash string)
	Forget(hash string)
}
