package solana

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"

	"github.com/vietddude/todochain/internal/core/chainerr"
	"github.com/vietddude/todochain/internal/core/domain"
	"github.com/vietddude/todochain/internal/infra/chain"
	"github.com/vietddude/todochain/internal/infra/rpc"
)

// Commitment levels, weakest first.
const (
	CommitmentProcessed = "processed"
	CommitmentConfirmed = "confirmed"
	CommitmentFinalized = "finalized"
)

var commitmentRank = map[string]int{
	CommitmentProcessed: 0,
	CommitmentConfirmed: 1,
	CommitmentFinalized: 2,
}

// Connector talks to a Solana validator over JSON-RPC.
type Connector struct {
	network    domain.Network
	client     *rpc.Client
	programID  string
	commitment string
	decimals   int32

	mu     sync.RWMutex
	signer chain.Signer
}

var _ chain.Connector = (*Connector)(nil)

// NewConnector binds client to the to-do program. An empty commitment means
// confirmed.
func NewConnector(network domain.Network, client *rpc.Client, programID, commitment string) (*Connector, error) {
	if _, err := NormalizeAddress(programID); err != nil {
		return nil, fmt.Errorf("program id: %w", err)
	}
	if commitment == "" {
		commitment = CommitmentConfirmed
	}
	if _, ok := commitmentRank[commitment]; !ok {
		return nil, fmt.Errorf("unknown commitment %q", commitment)
	}
	return &Connector{
		network:    network,
		client:     client,
		programID:  programID,
		commitment: commitment,
		decimals:   network.Info().NativeDecimals,
	}, nil
}

// ChainID returns the genesis hash.
func (c *Connector) ChainID(ctx context.Context) (string, error) {
	var hash string
	err := c.client.CallInto(ctx, &hash, "getGenesisHash")
	return hash, err
}

func (c *Connector) Connect(_ context.Context, opts chain.ConnectOptions) (string, error) {
	addr := opts.Address
	if opts.Signer != nil {
		addr = opts.Signer.Address()
	}
	if addr == "" {
		return "", errors.New("an address or signer is required")
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

func (c *Connector) config(extra map[string]any) map[string]any {
	cfg := map[string]any{"commitment": c.commitment}
	for k, v := range extra {
		cfg[k] = v
	}
	return cfg
}

// Balance returns lamports as SOL, or the summed SPL balance of mint token.
func (c *Connector) Balance(ctx context.Context, owner, token string) (decimal.Decimal, error) {
	if token == "" {
		var res struct {
			Value uint64 `json:"value"`
		}
		if err := c.client.CallInto(ctx, &res, "getBalance", owner, c.config(nil)); err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromUint64(res.Value).Shift(-c.decimals), nil
	}

	var res struct {
		Value []struct {
			Account struct {
				Data struct {
					Parsed struct {
						Info struct {
							TokenAmount struct {
								Amount   string `json:"amount"`
								Decimals int32  `json:"decimals"`
							} `json:"tokenAmount"`
						} `json:"info"`
					} `json:"parsed"`
				} `json:"data"`
			} `json:"account"`
		} `json:"value"`
	}
	err := c.client.CallInto(ctx, &res, "getTokenAccountsByOwner",
		owner, map[string]string{"mint": token}, c.config(map[string]any{"encoding": "jsonParsed"}))
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, acc := range res.Value {
		amt := acc.Account.Data.Parsed.Info.TokenAmount
		raw, err := decimal.NewFromString(amt.Amount)
		if err != nil {
			return decimal.Zero, fmt.Errorf("token amount %q: %w", amt.Amount, err)
		}
		total = total.Add(raw.Shift(-amt.Decimals))
	}
	return total, nil
}

type programAccount struct {
	Pubkey  string `json:"pubkey"`
	Account struct {
		Data []string `json:"data"`
	} `json:"account"`
}

func (c *Connector) programAccounts(ctx context.Context, filters ...map[string]any) ([]domain.Todo, error) {
	var accounts []programAccount
	err := c.client.CallInto(ctx, &accounts, "getProgramAccounts", c.programID,
		c.config(map[string]any{"encoding": "base64", "filters": filters}))
	if err != nil {
		return nil, err
	}

	todos := make([]domain.Todo, 0, len(accounts))
	for _, acc := range accounts {
		if len(acc.Account.Data) == 0 {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(acc.Account.Data[0])
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", acc.Pubkey, err)
		}
		t, err := decodeTodo(data)
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", acc.Pubkey, err)
		}
		todos = append(todos, t)
	}
	sort.Slice(todos, func(i, j int) bool { return todos[i].ID < todos[j].ID })
	return todos, nil
}

func memcmp(offset int, raw []byte) map[string]any {
	return map[string]any{"memcmp": map[string]any{"offset": offset, "bytes": base58.Encode(raw)}}
}

func (c *Connector) Todos(ctx context.Context, owner string) ([]domain.Todo, error) {
	key, err := base58.Decode(owner)
	if err != nil {
		return nil, err
	}
	return c.programAccounts(ctx, memcmp(ownerOffset, key))
}

func (c *Connector) Todo(ctx context.Context, owner string, id uint64) (*domain.Todo, error) {
	key, err := base58.Decode(owner)
	if err != nil {
		return nil, err
	}
	todos, err := c.programAccounts(ctx, memcmp(ownerOffset, key), memcmp(idOffset, idBytes(id)))
	if err != nil || len(todos) == 0 {
		return nil, err
	}
	return &todos[0], nil
}

// Submit needs a local signer: the validator never signs.
func (c *Connector) Submit(ctx context.Context, op chain.Operation) (string, error) {
	c.mu.RLock()
	signer := c.signer
	c.mu.RUnlock()
	if signer == nil {
		return "", chainerr.WalletConnectionFailed("a signer is required to submit transactions",
			chainerr.WithNetwork(c.network))
	}

	data, err := encodeInstruction(op)
	if err != nil {
		return "", err
	}

	var latest struct {
		Value struct {
			Blockhash            string `json:"blockhash"`
			LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
		} `json:"value"`
	}
	if err := c.client.CallInto(ctx, &latest, "getLatestBlockhash", c.config(nil)); err != nil {
		return "", err
	}

	raw, err := signer.SignTransaction(ctx, chain.SignRequest{
		Network:   c.network,
		From:      op.From,
		To:        c.programID,
		Data:      data,
		Reference: latest.Value.Blockhash,
		Meta:      map[string]string{"last_valid_block_height": fmt.Sprint(latest.Value.LastValidBlockHeight)},
	})
	if err != nil {
		return "", err
	}

	var sig string
	err = c.client.CallInto(ctx, &sig, "sendTransaction", base64.StdEncoding.EncodeToString(raw),
		map[string]any{"encoding": "base64", "preflightCommitment": c.commitment})
	return sig, err
}

func encodeInstruction(op chain.Operation) ([]byte, error) {
	w := &writer{}
	switch op.Kind {
	case chain.OpCreate:
		w.u8(ixCreate)
		w.str(op.Create.Title)
		w.str(op.Create.Description)
		w.u8(uint8(op.Create.Priority))
	case chain.OpUpdate:
		in := op.Update
		w.u8(ixUpdate)
		w.u64(op.TodoID)
		w.option(in.Title != nil, func() { w.str(*in.Title) })
		w.option(in.Description != nil, func() { w.str(*in.Description) })
		w.option(in.Completed != nil, func() { w.boolean(*in.Completed) })
		w.option(in.Priority != nil, func() { w.u8(uint8(*in.Priority)) })
	case chain.OpDelete:
		w.u8(ixDelete)
		w.u64(op.TodoID)
	default:
		return nil, fmt.Errorf("unsupported operation %q", op.Kind)
	}
	return w.buf, nil
}

type signatureStatus struct {
	Slot               uint64 `json:"slot"`
	ConfirmationStatus string `json:"confirmationStatus"`
	Err                any    `json:"err"`
}

// FetchReceipt returns nil until the signature reaches the configured
// commitment.
func (c *Connector) FetchReceipt(ctx context.Context, sig string) (*domain.TransactionReceipt, error) {
	var statuses struct {
		Value []*signatureStatus `json:"value"`
	}
	err := c.client.CallInto(ctx, &statuses, "getSignatureStatuses",
		[]string{sig}, map[string]bool{"searchTransactionHistory": true})
	if err != nil {
		return nil, err
	}
	if len(statuses.Value) == 0 || statuses.Value[0] == nil {
		return nil, nil
	}
	st := statuses.Value[0]
	if st.Err == nil && commitmentRank[st.ConfirmationStatus] < commitmentRank[c.commitment] {
		return nil, nil
	}

	slot := st.Slot
	receipt := &domain.TransactionReceipt{
		Hash:        sig,
		Status:      domain.TxStatusConfirmed,
		BlockNumber: &slot,
		To:          c.programID,
		Network:     c.network,
	}
	if st.Err != nil {
		receipt.Status = domain.TxStatusFailed
	}

	// getTransaction does not serve processed transactions.
	txCommitment := c.commitment
	if txCommitment == CommitmentProcessed {
		txCommitment = CommitmentConfirmed
	}
	var tx *struct {
		Slot      uint64 `json:"slot"`
		BlockTime *int64 `json:"blockTime"`
		Meta      *struct {
			Fee uint64 `json:"fee"`
		} `json:"meta"`
		Transaction struct {
			Message struct {
				AccountKeys []string `json:"accountKeys"`
			} `json:"message"`
		} `json:"transaction"`
	}
	err = c.client.CallInto(ctx, &tx, "getTransaction", sig, map[string]any{
		"encoding":                       "json",
		"commitment":                     txCommitment,
		"maxSupportedTransactionVersion": 0,
	})
	if err != nil || tx == nil {
		return receipt, nil
	}

	if keys := tx.Transaction.Message.AccountKeys; len(keys) > 0 {
		receipt.From = keys[0]
	}
	if tx.Meta != nil {
		receipt.Fee = decimal.NewFromUint64(tx.Meta.Fee).Shift(-c.decimals).String()
	}
	if tx.BlockTime != nil {
		ts := time.Unix(*tx.BlockTime, 0).UTC()
		receipt.Timestamp = &ts
	}
	return receipt, nil
}

func (c *Connector) Close() error {
	return c.client.Close()
}

// NormalizeAddress checks that addr is a base58 32-byte public key.
func NormalizeAddress(addr string) (string, error) {
	raw, err := base58.Decode(addr)
	if err != nil {
		return "", fmt.Errorf("invalid address %q: %w", addr, err)
	}
	if len(raw) != 32 {
		return "", fmt.Errorf("invalid address %q: %d bytes", addr, len(raw))
	}
	return addr, nil
}
