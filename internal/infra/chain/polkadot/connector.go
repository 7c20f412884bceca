package polkadot

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"

	"github.com/vietddude/todochain/internal/core/chainerr"
	"github.com/vietddude/todochain/internal/core/domain"
	"github.com/vietddude/todochain/internal/infra/chain"
	"github.com/vietddude/todochain/internal/infra/rpc"
)

const (
	// DefaultPallet is the name of the to-do pallet.
	DefaultPallet = "todos"

	// maxBlocksPerPoll bounds the finalized blocks scanned by one FetchReceipt.
	maxBlocksPerPoll = 25

	// lookbackBlocks is where scanning starts for tracked hashes whose
	// submission height is unknown.
	lookbackBlocks = 100

	unscanned = math.MaxUint64
)

// Connector talks to a Substrate API Sidecar over REST.
type Connector struct {
	network  domain.Network
	client   *rpc.Client
	pallet   string
	decimals int32

	mu     sync.Mutex
	signer chain.Signer

	// cursors holds the next finalized block to scan per tracked extrinsic
	// hash. Entries live from Submit or Track until the extrinsic is found
	// or Forget is called.
	cursors map[string]uint64
}

var (
	_ chain.Connector      = (*Connector)(nil)
	_ chain.ReceiptTracker = (*Connector)(nil)
)

// NewConnector binds client to the to-do pallet. An empty pallet means
// DefaultPallet.
func NewConnector(network domain.Network, client *rpc.Client, pallet string) *Connector {
	if pallet == "" {
		pallet = DefaultPallet
	}
	return &Connector{
		network:  network,
		client:   client,
		pallet:   pallet,
		decimals: network.Info().NativeDecimals,
		cursors:  make(map[string]uint64),
	}
}

type material struct {
	At struct {
		Hash   string `json:"hash"`
		Height string `json:"height"`
	} `json:"at"`
	GenesisHash string `json:"genesisHash"`
	ChainName   string `json:"chainName"`
	SpecName    string `json:"specName"`
	SpecVersion string `json:"specVersion"`
	TxVersion   string `json:"txVersion"`
}

func (c *Connector) material(ctx context.Context) (*material, error) {
	var m material
	if err := c.client.Get(ctx, "transaction/material", url.Values{"noMeta": {"true"}}, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// ChainID returns the runtime chain name (e.g. "Polkadot").
func (c *Connector) ChainID(ctx context.Context) (string, error) {
	m, err := c.material(ctx)
	if err != nil {
		return "", err
	}
	return m.ChainName, nil
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

type balanceInfo struct {
	Nonce string `json:"nonce"`
	Free  string `json:"free"`
}

func (c *Connector) balanceInfo(ctx context.Context, owner string) (*balanceInfo, error) {
	var info balanceInfo
	if err := c.client.Get(ctx, "accounts/"+owner+"/balance-info", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Balance returns the free native balance, or the balance of asset id token
// on the assets pallet.
func (c *Connector) Balance(ctx context.Context, owner, token string) (decimal.Decimal, error) {
	if token == "" {
		info, err := c.balanceInfo(ctx, owner)
		if err != nil {
			return decimal.Zero, err
		}
		return planck(info.Free, c.decimals)
	}

	var balances struct {
		Assets []struct {
			AssetID string `json:"assetId"`
			Balance string `json:"balance"`
		} `json:"assets"`
	}
	if err := c.client.Get(ctx, "accounts/"+owner+"/asset-balances", url.Values{"assets[]": {token}}, &balances); err != nil {
		return decimal.Zero, err
	}
	var meta struct {
		AssetMetaData struct {
			Decimals string `json:"decimals"`
		} `json:"assetMetaData"`
	}
	if err := c.client.Get(ctx, "pallets/assets/"+token+"/asset-info", nil, &meta); err != nil {
		return decimal.Zero, err
	}
	decimals, err := strconv.ParseInt(meta.AssetMetaData.Decimals, 10, 32)
	if err != nil {
		return decimal.Zero, fmt.Errorf("asset %s decimals: %w", token, err)
	}

	for _, a := range balances.Assets {
		if a.AssetID == token {
			return planck(a.Balance, int32(decimals))
		}
	}
	return decimal.Zero, nil
}

func planck(amount string, decimals int32) (decimal.Decimal, error) {
	if amount == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("amount %q: %w", amount, err)
	}
	return d.Shift(-decimals), nil
}

// storedTodo is the pallet storage entry as rendered by the sidecar. Bytes
// fields arrive hex-encoded, timestamps in milliseconds.
type storedTodo struct {
	ID          string `json:"id"`
	Owner       string `json:"owner"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Completed   bool   `json:"completed"`
	Priority    string `json:"priority"`
	CreatedAt   string `json:"createdAt"`
	UpdatedAt   string `json:"updatedAt"`
}

func (s storedTodo) toDomain() (domain.Todo, error) {
	id, err := strconv.ParseUint(s.ID, 10, 64)
	if err != nil {
		return domain.Todo{}, fmt.Errorf("todo id %q: %w", s.ID, err)
	}
	return domain.Todo{
		ID:          id,
		Title:       bytesField(s.Title),
		Description: bytesField(s.Description),
		Completed:   s.Completed,
		Priority:    parsePriority(s.Priority),
		Owner:       s.Owner,
		CreatedAt:   millis(s.CreatedAt),
		UpdatedAt:   millis(s.UpdatedAt),
	}, nil
}

func bytesField(s string) string {
	if strings.HasPrefix(s, "0x") {
		if b, err := hexutil.Decode(s); err == nil {
			return string(b)
		}
	}
	return s
}

func parsePriority(s string) domain.Priority {
	switch strings.ToLower(s) {
	case "high", "2":
		return domain.PriorityHigh
	case "medium", "1":
		return domain.PriorityMedium
	default:
		return domain.PriorityLow
	}
}

func millis(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// Todos reads the owner's entry of the pallet's todos storage map.
func (c *Connector) Todos(ctx context.Context, owner string) ([]domain.Todo, error) {
	var res struct {
		Value []storedTodo `json:"value"`
	}
	path := "pallets/" + c.pallet + "/storage/todos"
	if err := c.client.Get(ctx, path, url.Values{"keys[]": {owner}}, &res); err != nil {
		return nil, err
	}

	todos := make([]domain.Todo, 0, len(res.Value))
	for _, s := range res.Value {
		t, err := s.toDomain()
		if err != nil {
			return nil, err
		}
		if t.Owner == "" {
			t.Owner = owner
		}
		todos = append(todos, t)
	}
	sort.Slice(todos, func(i, j int) bool { return todos[i].ID < todos[j].ID })
	return todos, nil
}

func (c *Connector) Todo(ctx context.Context, owner string, id uint64) (*domain.Todo, error) {
	todos, err := c.Todos(ctx, owner)
	if err != nil {
		return nil, err
	}
	for i := range todos {
		if todos[i].ID == id {
			return &todos[i], nil
		}
	}
	return nil, nil
}

// Submit signs the call with the session signer and broadcasts it through
// the sidecar. The checkpoint height becomes the receipt scan start.
func (c *Connector) Submit(ctx context.Context, op chain.Operation) (string, error) {
	c.mu.Lock()
	signer := c.signer
	c.mu.Unlock()
	if signer == nil {
		return "", chainerr.WalletConnectionFailed("a signer is required to submit extrinsics",
			chainerr.WithNetwork(c.network))
	}

	call, args, err := c.encodeCall(op)
	if err != nil {
		return "", err
	}
	m, err := c.material(ctx)
	if err != nil {
		return "", err
	}
	info, err := c.balanceInfo(ctx, op.From)
	if err != nil {
		return "", err
	}
	nonce, err := strconv.ParseUint(info.Nonce, 10, 64)
	if err != nil {
		return "", fmt.Errorf("nonce %q: %w", info.Nonce, err)
	}

	raw, err := signer.SignTransaction(ctx, chain.SignRequest{
		Network:   c.network,
		ChainID:   m.ChainName,
		From:      op.From,
		To:        call,
		Data:      args,
		Nonce:     nonce,
		Reference: m.At.Hash,
		Meta: map[string]string{
			"genesis_hash": m.GenesisHash,
			"spec_version": m.SpecVersion,
			"tx_version":   m.TxVersion,
			"block_number": m.At.Height,
		},
	})
	if err != nil {
		return "", err
	}

	var res struct {
		Hash string `json:"hash"`
	}
	if err := c.client.Post(ctx, "transaction", map[string]string{"tx": hexutil.Encode(raw)}, &res); err != nil {
		return "", err
	}
	if res.Hash == "" {
		return "", errors.New("sidecar returned no extrinsic hash")
	}

	if height, err := strconv.ParseUint(m.At.Height, 10, 64); err == nil {
		c.mu.Lock()
		c.cursors[res.Hash] = height
		c.mu.Unlock()
	}
	return res.Hash, nil
}

// encodeCall returns the "pallet.call" name and SCALE-encoded arguments.
func (c *Connector) encodeCall(op chain.Operation) (string, []byte, error) {
	w := &scaleWriter{}
	var call string
	switch op.Kind {
	case chain.OpCreate:
		call = "create_todo"
		w.bytes([]byte(op.Create.Title))
		w.bytes([]byte(op.Create.Description))
		w.u8(uint8(op.Create.Priority))
	case chain.OpUpdate:
		call = "update_todo"
		in := op.Update
		w.u64(op.TodoID)
		w.option(in.Title != nil, func() { w.bytes([]byte(*in.Title)) })
		w.option(in.Description != nil, func() { w.bytes([]byte(*in.Description)) })
		w.option(in.Completed != nil, func() { w.boolean(*in.Completed) })
		w.option(in.Priority != nil, func() { w.u8(uint8(*in.Priority)) })
	case chain.OpDelete:
		call = "delete_todo"
		w.u64(op.TodoID)
	default:
		return "", nil, fmt.Errorf("unsupported operation %q", op.Kind)
	}
	return c.pallet + "." + call, w.buf, nil
}

type block struct {
	Number     string      `json:"number"`
	Hash       string      `json:"hash"`
	Extrinsics []extrinsic `json:"extrinsics"`
}

type extrinsic struct {
	Hash   string `json:"hash"`
	Method struct {
		Pallet string `json:"pallet"`
		Method string `json:"method"`
	} `json:"method"`
	Args      map[string]any `json:"args"`
	Signature *struct {
		Signer struct {
			ID string `json:"id"`
		} `json:"signer"`
	} `json:"signature"`
	Info struct {
		PartialFee string `json:"partialFee"`
	} `json:"info"`
	Success bool `json:"success"`
}

// timestamp reads the block's timestamp.set inherent.
func (b *block) timestamp() *time.Time {
	for _, x := range b.Extrinsics {
		if x.Method.Pallet == "timestamp" && x.Method.Method == "set" {
			if now, ok := x.Args["now"].(string); ok {
				if t := millis(now); !t.IsZero() {
					return &t
				}
			}
		}
	}
	return nil
}

// Track keeps a scan cursor for hash so successive FetchReceipt calls
// resume where the last one stopped. It is a no-op for hashes already
// tracked.
func (c *Connector) Track(hash string) {
	c.mu.Lock()
	if _, ok := c.cursors[hash]; !ok {
		c.cursors[hash] = unscanned
	}
	c.mu.Unlock()
}

// Forget drops the cursor for hash.
func (c *Connector) Forget(hash string) {
	c.mu.Lock()
	delete(c.cursors, hash)
	c.mu.Unlock()
}

// Tracked returns the number of hashes holding a cursor.
func (c *Connector) Tracked() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cursors)
}

// FetchReceipt looks for hash in finalized blocks, at most maxBlocksPerPoll
// per call. Tracked hashes scan forward from their cursor. Other hashes scan
// back from the finalized head and leave no state behind.
func (c *Connector) FetchReceipt(ctx context.Context, hash string) (*domain.TransactionReceipt, error) {
	var head block
	if err := c.client.Get(ctx, "blocks/head", url.Values{"finalized": {"true"}}, &head); err != nil {
		return nil, err
	}
	headNum, err := strconv.ParseUint(head.Number, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("head number %q: %w", head.Number, err)
	}

	c.mu.Lock()
	next, tracked := c.cursors[hash]
	c.mu.Unlock()
	if !tracked {
		return c.scanBack(ctx, &head, headNum, hash)
	}
	if next == unscanned {
		next = headNum - min(headNum, lookbackBlocks)
	}

	for scanned := 0; next <= headNum && scanned < maxBlocksPerPoll; scanned++ {
		b, err := c.blockAt(ctx, &head, headNum, next)
		if err != nil {
			return nil, err
		}
		if r := c.findReceipt(b, next, hash); r != nil {
			c.Forget(hash)
			return r, nil
		}
		next++
	}

	c.mu.Lock()
	if _, ok := c.cursors[hash]; ok {
		c.cursors[hash] = next
	}
	c.mu.Unlock()
	return nil, nil
}

func (c *Connector) scanBack(ctx context.Context, head *block, headNum uint64, hash string) (*domain.TransactionReceipt, error) {
	for scanned, n := 0, headNum; scanned < maxBlocksPerPoll; scanned, n = scanned+1, n-1 {
		b, err := c.blockAt(ctx, head, headNum, n)
		if err != nil {
			return nil, err
		}
		if r := c.findReceipt(b, n, hash); r != nil {
			return r, nil
		}
		if n == 0 {
			break
		}
	}
	return nil, nil
}

func (c *Connector) blockAt(ctx context.Context, head *block, headNum, n uint64) (*block, error) {
	if n == headNum {
		return head, nil
	}
	b := &block{}
	if err := c.client.Get(ctx, "blocks/"+strconv.FormatUint(n, 10), nil, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (c *Connector) findReceipt(b *block, number uint64, hash string) *domain.TransactionReceipt {
	for _, x := range b.Extrinsics {
		if !strings.EqualFold(x.Hash, hash) {
			continue
		}
		status := domain.TxStatusFailed
		if x.Success {
			status = domain.TxStatusConfirmed
		}
		r := &domain.TransactionReceipt{
			Hash:        hash,
			Status:      status,
			BlockNumber: &number,
			To:          x.Method.Pallet + "." + x.Method.Method,
			Network:     c.network,
			Timestamp:   b.timestamp(),
		}
		if x.Signature != nil {
			r.From = x.Signature.Signer.ID
		}
		if fee, err := planck(x.Info.PartialFee, c.decimals); err == nil {
			r.Fee = fee.String()
		}
		return r
	}
	return nil
}

func (c *Connector) Close() error {
	return c.client.Close()
}
