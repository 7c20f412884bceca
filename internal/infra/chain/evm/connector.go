package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/vietddude/todochain/internal/core/domain"
	"github.com/vietddude/todochain/internal/infra/chain"
	"github.com/vietddude/todochain/internal/infra/rpc"
)

// maxConcurrentReads bounds the getTodo fan-out of Todos.
const maxConcurrentReads = 5

// Connector talks to an EVM node over JSON-RPC.
type Connector struct {
	network  domain.Network
	client   *rpc.Client
	contract common.Address
	decimals int32

	mu     sync.RWMutex
	signer chain.Signer
}

var _ chain.Connector = (*Connector)(nil)

// NewConnector binds client to the to-do contract at contract.
func NewConnector(network domain.Network, client *rpc.Client, contract string) (*Connector, error) {
	if !common.IsHexAddress(contract) {
		return nil, fmt.Errorf("invalid contract address %q", contract)
	}
	return &Connector{
		network:  network,
		client:   client,
		contract: common.HexToAddress(contract),
		decimals: network.Info().NativeDecimals,
	}, nil
}

// ChainID returns eth_chainId in decimal.
func (c *Connector) ChainID(ctx context.Context) (string, error) {
	var id hexutil.Big
	if err := c.client.CallInto(ctx, &id, "eth_chainId"); err != nil {
		return "", err
	}
	return id.ToInt().String(), nil
}

// Connect uses the signer's address, then opts.Address, then the node's
// first unlocked account.
func (c *Connector) Connect(ctx context.Context, opts chain.ConnectOptions) (string, error) {
	addr := opts.Address
	if opts.Signer != nil {
		addr = opts.Signer.Address()
	}
	if addr == "" {
		var accounts []string
		if err := c.client.CallInto(ctx, &accounts, "eth_accounts"); err != nil {
			return "", err
		}
		if len(accounts) == 0 {
			return "", errors.New("node exposes no accounts")
		}
		addr = accounts[0]
	}

	c.mu.Lock()
	c.signer = opts.Signer
	c.mu.Unlock()
	return addr, nil
}

func (c *Connector) Disconnect() {
	c.mu.Lock()
	c.signer = nil
	c.mu.Unlock()
}

// Balance returns the native balance, or the ERC-20 balance of token.
func (c *Connector) Balance(ctx context.Context, owner, token string) (decimal.Decimal, error) {
	if token == "" {
		var wei hexutil.Big
		if err := c.client.CallInto(ctx, &wei, "eth_getBalance", owner, "latest"); err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromBigInt(wei.ToInt(), -c.decimals), nil
	}

	tokenAddr := common.HexToAddress(token)
	out, err := c.call(ctx, tokenAddr, ERC20ABI, "balanceOf", common.HexToAddress(owner))
	if err != nil {
		return decimal.Zero, err
	}
	raw, ok := out[0].(*big.Int)
	if !ok {
		return decimal.Zero, fmt.Errorf("unexpected balanceOf output %T", out[0])
	}

	out, err = c.call(ctx, tokenAddr, ERC20ABI, "decimals")
	if err != nil {
		return decimal.Zero, err
	}
	dec, ok := out[0].(uint8)
	if !ok {
		return decimal.Zero, fmt.Errorf("unexpected decimals output %T", out[0])
	}
	return decimal.NewFromBigInt(raw, -int32(dec)), nil
}

// Todos reads the owner's ids and fetches the records concurrently,
// preserving id order.
func (c *Connector) Todos(ctx context.Context, owner string) ([]domain.Todo, error) {
	out, err := c.call(ctx, c.contract, TodoListABI, "getTodoIds", common.HexToAddress(owner))
	if err != nil {
		return nil, err
	}
	ids, ok := out[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected getTodoIds output %T", out[0])
	}

	records := make([]*domain.Todo, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentReads)
	for i, id := range ids {
		g.Go(func() error {
			t, err := c.Todo(gctx, owner, id.Uint64())
			if err != nil {
				return fmt.Errorf("todo %s: %w", id, err)
			}
			records[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	todos := make([]domain.Todo, 0, len(records))
	for _, t := range records {
		if t != nil {
			todos = append(todos, *t)
		}
	}
	return todos, nil
}

// Todo returns nil when the record does not exist or belongs to someone else.
func (c *Connector) Todo(ctx context.Context, owner string, id uint64) (*domain.Todo, error) {
	packed, err := TodoListABI.Pack("getTodo", new(big.Int).SetUint64(id))
	if err != nil {
		return nil, err
	}
	data, err := c.ethCall(ctx, c.contract, packed)
	if err != nil {
		return nil, err
	}

	var rec todoRecord
	if err := TodoListABI.UnpackIntoInterface(&rec, "getTodo", data); err != nil {
		return nil, fmt.Errorf("decode getTodo: %w", err)
	}
	if !rec.Exists {
		return nil, nil
	}
	if owner != "" && rec.Owner != common.HexToAddress(owner) {
		return nil, nil
	}
	t := rec.toDomain(id)
	return &t, nil
}

// Submit encodes op against the contract and sends it. With a signer the
// transaction is signed locally, otherwise the node signs for op.From.
func (c *Connector) Submit(ctx context.Context, op chain.Operation) (string, error) {
	data, err := encodeOperation(op)
	if err != nil {
		return "", err
	}

	c.mu.RLock()
	signer := c.signer
	c.mu.RUnlock()

	var hash string
	if signer == nil {
		tx := map[string]string{
			"from": op.From,
			"to":   c.contract.Hex(),
			"data": hexutil.Encode(data),
		}
		err = c.client.CallInto(ctx, &hash, "eth_sendTransaction", tx)
		return hash, err
	}

	var nonce hexutil.Uint64
	if err := c.client.CallInto(ctx, &nonce, "eth_getTransactionCount", op.From, "pending"); err != nil {
		return "", err
	}
	chainID, err := c.ChainID(ctx)
	if err != nil {
		return "", err
	}
	raw, err := signer.SignTransaction(ctx, chain.SignRequest{
		Network: c.network,
		ChainID: chainID,
		From:    op.From,
		To:      c.contract.Hex(),
		Data:    data,
		Nonce:   uint64(nonce),
	})
	if err != nil {
		return "", err
	}
	err = c.client.CallInto(ctx, &hash, "eth_sendRawTransaction", hexutil.Encode(raw))
	return hash, err
}

func encodeOperation(op chain.Operation) ([]byte, error) {
	switch op.Kind {
	case chain.OpCreate:
		return TodoListABI.Pack("createTodo", op.Create.Title, op.Create.Description, uint8(op.Create.Priority))
	case chain.OpUpdate:
		if op.Current == nil {
			return nil, errors.New("update requires the current record")
		}
		next := op.Current.Apply(op.Update)
		return TodoListABI.Pack("updateTodo",
			new(big.Int).SetUint64(op.TodoID), next.Title, next.Description, next.Completed, uint8(next.Priority))
	case chain.OpDelete:
		return TodoListABI.Pack("deleteTodo", new(big.Int).SetUint64(op.TodoID))
	default:
		return nil, fmt.Errorf("unsupported operation %q", op.Kind)
	}
}

type rpcReceipt struct {
	TransactionHash   string          `json:"transactionHash"`
	Status            hexutil.Uint64  `json:"status"`
	BlockNumber       *hexutil.Uint64 `json:"blockNumber"`
	From              string          `json:"from"`
	To                string          `json:"to"`
	GasUsed           hexutil.Uint64  `json:"gasUsed"`
	EffectiveGasPrice *hexutil.Big    `json:"effectiveGasPrice"`

	// L1Fee is reported by OP-stack rollups for the data posted to L1.
	L1Fee *hexutil.Big `json:"l1Fee"`
}

// FetchReceipt maps eth_getTransactionReceipt. The block timestamp is
// looked up best-effort.
func (c *Connector) FetchReceipt(ctx context.Context, hash string) (*domain.TransactionReceipt, error) {
	var r *rpcReceipt
	if err := c.client.CallInto(ctx, &r, "eth_getTransactionReceipt", hash); err != nil {
		return nil, err
	}
	if r == nil || r.BlockNumber == nil {
		return nil, nil
	}

	status := domain.TxStatusFailed
	if r.Status == 1 {
		status = domain.TxStatusConfirmed
	}
	block := uint64(*r.BlockNumber)
	gasUsed := uint64(r.GasUsed)

	receipt := &domain.TransactionReceipt{
		Hash:        hash,
		Status:      status,
		BlockNumber: &block,
		From:        checksum(r.From),
		To:          checksum(r.To),
		GasUsed:     &gasUsed,
		Fee:         c.fee(r).String(),
		Network:     c.network,
	}

	var header struct {
		Timestamp hexutil.Uint64 `json:"timestamp"`
	}
	if err := c.client.CallInto(ctx, &header, "eth_getBlockByNumber", hexutil.EncodeUint64(block), false); err == nil && header.Timestamp > 0 {
		ts := time.Unix(int64(header.Timestamp), 0).UTC()
		receipt.Timestamp = &ts
	}
	return receipt, nil
}

// fee is gasUsed * effectiveGasPrice plus the L1 data fee, in native units.
func (c *Connector) fee(r *rpcReceipt) decimal.Decimal {
	wei := new(big.Int)
	if r.EffectiveGasPrice != nil {
		wei.Mul(new(big.Int).SetUint64(uint64(r.GasUsed)), r.EffectiveGasPrice.ToInt())
	}
	if r.L1Fee != nil {
		wei.Add(wei, r.L1Fee.ToInt())
	}
	return decimal.NewFromBigInt(wei, -c.decimals)
}

func (c *Connector) Close() error {
	return c.client.Close()
}

func (c *Connector) call(ctx context.Context, to common.Address, contract abi.ABI, method string, args ...any) ([]any, error) {
	packed, err := contract.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	data, err := c.ethCall(ctx, to, packed)
	if err != nil {
		return nil, err
	}
	out, err := contract.Unpack(method, data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s returned no values", method)
	}
	return out, nil
}

func (c *Connector) ethCall(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	var out hexutil.Bytes
	msg := map[string]string{"to": to.Hex(), "data": hexutil.Encode(data)}
	if err := c.client.CallInto(ctx, &out, "eth_call", msg, "latest"); err != nil {
		return nil, err
	}
	return out, nil
}

func checksum(addr string) string {
	if !common.IsHexAddress(addr) {
		return addr
	}
	return common.HexToAddress(addr).Hex()
}

// NormalizeAddress validates a hex address and returns its EIP-55 form.
func NormalizeAddress(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if !common.IsHexAddress(addr) {
		return "", fmt.Errorf("invalid address %q", addr)
	}
	return common.HexToAddress(addr).Hex(), nil
}

func unixTime(v *big.Int) time.Time {
	if v == nil || v.Sign() == 0 {
		return time.Time{}
	}
	return time.Unix(v.Int64(), 0).UTC()
}
