package polkadot

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/todochain/internal/core/chainerr"
	"github.com/vietddude/todochain/internal/core/domain"
	"github.com/vietddude/todochain/internal/infra/chain"
	"github.com/vietddude/todochain/internal/infra/rpc"
	"github.com/vietddude/todochain/internal/monitor"
)

const (
	aliceGeneric  = "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY"
	alicePolkadot = "15oF4uVJwmo4TdGW7VfQxNLavjCXviqxT9S1MgbjMNHr6Sp5"
	alicePubkey   = "d43593c715fdd31c61141abd04a99fd6822c8558854ccde39a5684e7a56da27d"
	extHash       = "0x6b5ae2a3ac1d5d6c7a9f0a4f8c33f40e0f2e2a1d0a3f47f1c5a7b3c9d2e1f0a9"
)

// fakeSidecar serves canned JSON per path and counts requests.
type fakeSidecar struct {
	mu       sync.Mutex
	routes   map[string]func(r *http.Request) (int, any)
	requests map[string]int
}

func (f *fakeSidecar) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requests[r.Method+" "+r.URL.Path]++
	route := f.routes[r.Method+" "+r.URL.Path]
	f.mu.Unlock()

	if route == nil {
		http.Error(w, `{"code":404,"message":"not found"}`, http.StatusNotFound)
		return
	}
	status, body := route(r)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (f *fakeSidecar) count(route string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[route]
}

func ok(body any) func(*http.Request) (int, any) {
	return func(*http.Request) (int, any) { return http.StatusOK, body }
}

func materialAt(height, chainName string) map[string]any {
	return map[string]any{
		"at":          map[string]any{"hash": "0xcheckpoint", "height": height},
		"genesisHash": "0x91b171bb158e2d3848fa23a9f1c25182fb8e20313b2c1eb49219da7a70ce90c3",
		"chainName":   chainName,
		"specName":    "polkadot",
		"specVersion": "1003000",
		"txVersion":   "26",
	}
}

func newTestService(t *testing.T, routes map[string]func(*http.Request) (int, any)) (*Service, *fakeSidecar) {
	t.Helper()
	if _, found := routes["GET /transaction/material"]; !found {
		routes["GET /transaction/material"] = ok(materialAt("100", "Polkadot"))
	}
	fake := &fakeSidecar{routes: routes, requests: make(map[string]int)}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client := rpc.NewHTTPClient(string(domain.PolkadotMainnet), srv.URL, nil, 2*time.Second)
	svc, err := NewService(chain.BaseConfig{
		Network:   domain.PolkadotMainnet,
		Connector: NewConnector(domain.PolkadotMainnet, client, ""),
	})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })
	return svc, fake
}

func connect(t *testing.T, svc *Service, signer chain.Signer) {
	t.Helper()
	if _, err := svc.ConnectWallet(context.Background(), chain.ConnectOptions{Address: aliceGeneric, Signer: signer}); err != nil {
		t.Fatalf("ConnectWallet failed: %v", err)
	}
}

type mockSigner struct {
	req chain.SignRequest
}

func (m *mockSigner) Address() string { return aliceGeneric }

func (m *mockSigner) SignTransaction(_ context.Context, req chain.SignRequest) ([]byte, error) {
	m.req = req
	return []byte{0x45, 0x02, 0x84}, nil
}

func TestSS58_KnownAccount(t *testing.T) {
	prefix, account, err := decodeSS58(aliceGeneric)
	if err != nil {
		t.Fatalf("decodeSS58 failed: %v", err)
	}
	if prefix != 42 || hex.EncodeToString(account) != alicePubkey {
		t.Errorf("expected prefix 42 and alice key, got %d %x", prefix, account)
	}
	if got := encodeSS58(0, account); got != alicePolkadot {
		t.Errorf("expected %s, got %s", alicePolkadot, got)
	}
	if got := encodeSS58(42, account); got != aliceGeneric {
		t.Errorf("expected %s, got %s", aliceGeneric, got)
	}
}

func TestSS58_TwoBytePrefix(t *testing.T) {
	account := bytes.Repeat([]byte{7}, 32)
	addr := encodeSS58(2254, account)
	prefix, decoded, err := decodeSS58(addr)
	if err != nil {
		t.Fatalf("decodeSS58 failed: %v", err)
	}
	if prefix != 2254 || !bytes.Equal(decoded, account) {
		t.Errorf("expected prefix 2254, got %d", prefix)
	}
}

func TestSS58_Invalid(t *testing.T) {
	tampered := aliceGeneric[:len(aliceGeneric)-1] + "Z"
	for _, addr := range []string{tampered, "0xd43593c7", "", "5Grw"} {
		if _, _, err := decodeSS58(addr); err == nil {
			t.Errorf("expected %q rejected", addr)
		}
	}
}

func TestScaleCompact(t *testing.T) {
	tests := []struct {
		value uint64
		want  string
	}{
		{0, "00"},
		{1, "04"},
		{63, "fc"},
		{64, "0101"},
		{16383, "fdff"},
		{16384, "02000100"},
		{1 << 30, "0300000040"},
	}
	for _, tt := range tests {
		w := &scaleWriter{}
		w.compact(tt.value)
		if got := hex.EncodeToString(w.buf); got != tt.want {
			t.Errorf("compact(%d): expected %s, got %s", tt.value, tt.want, got)
		}
	}
}

func TestConnectWallet_Normalizes(t *testing.T) {
	svc, _ := newTestService(t, map[string]func(*http.Request) (int, any){})
	info, err := svc.ConnectWallet(context.Background(), chain.ConnectOptions{Address: aliceGeneric})
	if err != nil {
		t.Fatalf("ConnectWallet failed: %v", err)
	}
	if info.Address != alicePolkadot || info.ChainID != "Polkadot" {
		t.Errorf("unexpected wallet %+v", info)
	}
}

func TestConnectWallet_WrongChain(t *testing.T) {
	svc, _ := newTestService(t, map[string]func(*http.Request) (int, any){
		"GET /transaction/material": ok(materialAt("1", "Kusama")),
	})
	_, err := svc.ConnectWallet(context.Background(), chain.ConnectOptions{Address: aliceGeneric})
	if !chainerr.IsKind(err, chainerr.KindNetworkSwitchRequired) {
		t.Errorf("expected NETWORK_SWITCH_REQUIRED, got %v", err)
	}
}

func TestGetWalletBalance(t *testing.T) {
	var assetQuery string
	svc, fake := newTestService(t, map[string]func(*http.Request) (int, any){
		"GET /accounts/" + alicePolkadot + "/balance-info": ok(map[string]any{"nonce": "3", "free": "12345000000"}),
		"GET /accounts/" + alicePolkadot + "/asset-balances": func(r *http.Request) (int, any) {
			assetQuery = r.URL.Query().Get("assets[]")
			return http.StatusOK, map[string]any{"assets": []any{map[string]any{"assetId": "1984", "balance": "2500000"}}}
		},
		"GET /pallets/assets/1984/asset-info": ok(map[string]any{"assetMetaData": map[string]any{"decimals": "6"}}),
	})
	connect(t, svc, nil)
	ctx := context.Background()

	dot, err := svc.GetWalletBalance(ctx, "")
	if err != nil || dot.String() != "1.2345" {
		t.Errorf("expected 1.2345 DOT, got %s (%v)", dot, err)
	}
	usdt, err := svc.GetWalletBalance(ctx, "1984")
	if err != nil || usdt.String() != "2.5" {
		t.Errorf("expected 2.5, got %s (%v)", usdt, err)
	}
	if assetQuery != "1984" {
		t.Errorf("expected asset filter 1984, got %q", assetQuery)
	}

	before := fake.count("GET /accounts/" + alicePolkadot + "/asset-balances")
	if _, err := svc.GetWalletBalance(ctx, "USDT"); !chainerr.IsKind(err, chainerr.KindPalletError) {
		t.Errorf("expected PALLET_ERROR, got %v", err)
	}
	if fake.count("GET /accounts/"+alicePolkadot+"/asset-balances") != before {
		t.Error("expected no request for invalid asset id")
	}
}

func TestGetTodos(t *testing.T) {
	var key string
	svc, _ := newTestService(t, map[string]func(*http.Request) (int, any){
		"GET /pallets/todos/storage/todos": func(r *http.Request) (int, any) {
			key = r.URL.Query().Get("keys[]")
			return http.StatusOK, map[string]any{
				"pallet": "todos",
				"value": []any{
					map[string]any{"id": "8", "title": "0x627579206272656164", "description": "0x", "completed": true,
						"priority": "High", "createdAt": "1700000000000", "updatedAt": "1700000001000"},
					map[string]any{"id": "3", "title": "plain", "priority": "Low"},
				},
			}
		},
	})
	connect(t, svc, nil)

	todos, err := svc.GetTodos(context.Background())
	if err != nil {
		t.Fatalf("GetTodos failed: %v", err)
	}
	if key != alicePolkadot {
		t.Errorf("expected storage key %s, got %s", alicePolkadot, key)
	}
	if len(todos) != 2 || todos[0].ID != 3 || todos[1].ID != 8 {
		t.Fatalf("expected ids [3 8], got %+v", todos)
	}
	if todos[1].Title != "buy bread" || todos[1].Priority != domain.PriorityHigh || !todos[1].Completed {
		t.Errorf("unexpected record %+v", todos[1])
	}
	if todos[1].CreatedAt.Unix() != 1700000000 || todos[0].Owner != alicePolkadot {
		t.Errorf("unexpected timestamps or owner %+v", todos)
	}

	missing, err := svc.GetTodoByID(context.Background(), 99)
	if err != nil || missing != nil {
		t.Errorf("expected nil, nil for missing id, got %v, %v", missing, err)
	}
}

func TestCreateTodo_RequiresSigner(t *testing.T) {
	svc, fake := newTestService(t, map[string]func(*http.Request) (int, any){})
	connect(t, svc, nil)

	_, err := svc.CreateTodo(context.Background(), domain.CreateTodoInput{Title: "x"})
	if !chainerr.IsKind(err, chainerr.KindWalletConnectionFailed) {
		t.Errorf("expected WALLET_CONNECTION_FAILED, got %v", err)
	}
	if fake.count("POST /transaction") != 0 {
		t.Error("expected nothing broadcast")
	}
}

func headWith(number string, success bool) map[string]any {
	return map[string]any{
		"number": number,
		"hash":   "0xhead",
		"extrinsics": []any{
			map[string]any{
				"hash":   "0xinherent",
				"method": map[string]any{"pallet": "timestamp", "method": "set"},
				"args":   map[string]any{"now": "1700000000000"},
			},
			map[string]any{
				"hash":      extHash,
				"method":    map[string]any{"pallet": "todos", "method": "createTodo"},
				"signature": map[string]any{"signer": map[string]any{"id": alicePolkadot}},
				"info":      map[string]any{"partialFee": "156000000"},
				"success":   success,
			},
		},
	}
}

func TestCreateTodo(t *testing.T) {
	var posted map[string]string
	svc, fake := newTestService(t, map[string]func(*http.Request) (int, any){
		"GET /accounts/" + alicePolkadot + "/balance-info": ok(map[string]any{"nonce": "3", "free": "0"}),
		"POST /transaction": func(r *http.Request) (int, any) {
			_ = json.NewDecoder(r.Body).Decode(&posted)
			return http.StatusOK, map[string]any{"hash": extHash}
		},
		"GET /blocks/head": ok(headWith("101", true)),
		"GET /blocks/100":  ok(map[string]any{"number": "100", "extrinsics": []any{}}),
	})
	signer := &mockSigner{}
	connect(t, svc, signer)

	r, err := svc.CreateTodo(context.Background(), domain.CreateTodoInput{Title: "hi", Priority: domain.PriorityMedium})
	if err != nil {
		t.Fatalf("CreateTodo failed: %v", err)
	}
	if r.Status != domain.TxStatusConfirmed || *r.BlockNumber != 101 || r.From != alicePolkadot {
		t.Errorf("unexpected receipt %+v", r)
	}
	if r.Fee != "0.0156" {
		t.Errorf("expected fee 0.0156, got %s", r.Fee)
	}
	if r.Timestamp == nil || r.Timestamp.Unix() != 1700000000 {
		t.Errorf("expected inherent timestamp, got %v", r.Timestamp)
	}
	if fake.count("GET /blocks/100") != 1 {
		t.Errorf("expected scan to start at the checkpoint height")
	}

	if posted["tx"] != "0x450284" {
		t.Errorf("expected signed extrinsic broadcast, got %v", posted)
	}
	if signer.req.Nonce != 3 || signer.req.To != "todos.create_todo" || signer.req.Reference != "0xcheckpoint" {
		t.Errorf("unexpected sign request %+v", signer.req)
	}
	if signer.req.Meta["spec_version"] != "1003000" {
		t.Errorf("expected spec version in meta, got %v", signer.req.Meta)
	}
	wantArgs := []byte{2 << 2, 'h', 'i', 0, byte(domain.PriorityMedium)}
	if !bytes.Equal(signer.req.Data, wantArgs) {
		t.Errorf("expected args %v, got %v", wantArgs, signer.req.Data)
	}
}

func TestDeleteTodo_ExtrinsicFailed(t *testing.T) {
	svc, _ := newTestService(t, map[string]func(*http.Request) (int, any){
		"GET /accounts/" + alicePolkadot + "/balance-info": ok(map[string]any{"nonce": "0"}),
		"POST /transaction": ok(map[string]any{"hash": extHash}),
		"GET /blocks/head":  ok(headWith("100", false)),
	})
	connect(t, svc, &mockSigner{})

	_, err := svc.DeleteTodo(context.Background(), 5)
	e, found := chainerr.As(err)
	if !found || e.Kind != chainerr.KindTransactionFailed || e.TxHash != extHash {
		t.Errorf("expected TRANSACTION_FAILED for %s, got %v", extHash, err)
	}
}

func shortChain() map[string]func(*http.Request) (int, any) {
	return map[string]func(*http.Request) (int, any){
		"GET /blocks/head": ok(map[string]any{"number": "3", "extrinsics": []any{}}),
		"GET /blocks/0":    ok(map[string]any{"number": "0"}),
		"GET /blocks/1":    ok(map[string]any{"number": "1"}),
		"GET /blocks/2":    ok(map[string]any{"number": "2"}),
	}
}

func TestFetchReceipt_AdvancesCursor(t *testing.T) {
	svc, fake := newTestService(t, shortChain())
	conn := svc.Connector().(*Connector)
	conn.Track(extHash)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		status, err := svc.GetTransactionStatus(ctx, extHash)
		if err != nil || status != domain.TxStatusPending {
			t.Fatalf("expected pending, got %s (%v)", status, err)
		}
	}
	if fake.count("GET /blocks/1") != 1 {
		t.Errorf("expected each block scanned once, got %d", fake.count("GET /blocks/1"))
	}

	conn.Forget(extHash)
	if conn.Tracked() != 0 {
		t.Errorf("expected cursor dropped, got %d", conn.Tracked())
	}
}

func TestFetchReceipt_UntrackedLeavesNoCursor(t *testing.T) {
	svc, fake := newTestService(t, shortChain())
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		hash := fmt.Sprintf("0x%064x", i)
		if status, err := svc.GetTransactionStatus(ctx, hash); err != nil || status != domain.TxStatusPending {
			t.Fatalf("expected pending for %s, got %s (%v)", hash, status, err)
		}
	}
	if n := svc.Connector().(*Connector).Tracked(); n != 0 {
		t.Errorf("expected no cursors for untracked lookups, got %d", n)
	}
	if fake.count("GET /blocks/0") != 50 {
		t.Errorf("expected every lookup to reach the oldest block, got %d", fake.count("GET /blocks/0"))
	}
}

func TestFetchReceipt_UntrackedFindsRecentBlock(t *testing.T) {
	svc, _ := newTestService(t, map[string]func(*http.Request) (int, any){
		"GET /blocks/head": ok(map[string]any{"number": "101", "extrinsics": []any{}}),
		"GET /blocks/100":  ok(headWith("100", true)),
	})
	r, err := svc.GetTransactionReceipt(context.Background(), extHash)
	if err != nil {
		t.Fatalf("GetTransactionReceipt failed: %v", err)
	}
	if r == nil || *r.BlockNumber != 100 {
		t.Errorf("expected receipt in block 100, got %+v", r)
	}
}

func TestMonitorTransaction_DropsCursorWhenWatchEnds(t *testing.T) {
	svc, _ := newTestService(t, shortChain())
	conn := svc.Connector().(*Connector)

	_, err := svc.MonitorTransaction(context.Background(), extHash, monitor.Options{
		MaxAttempts:     3,
		PollingInterval: time.Millisecond,
		Timeout:         time.Second,
	})
	if !errors.Is(err, monitor.ErrAttemptsExhausted) {
		t.Fatalf("expected attempts exhausted, got %v", err)
	}
	if conn.Tracked() != 0 {
		t.Errorf("expected no cursor after the watch ended, got %d", conn.Tracked())
	}
}

func TestSubmit_Errors(t *testing.T) {
	tests := []struct {
		name  string
		cause string
		want  chainerr.Kind
	}{
		{"fees", "1010: Invalid Transaction: Inability to pay some fees", chainerr.KindInsufficientFunds},
		{"dispatch", "DispatchError: BadOrigin", chainerr.KindPalletError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService(t, map[string]func(*http.Request) (int, any){
				"GET /accounts/" + alicePolkadot + "/balance-info": ok(map[string]any{"nonce": "0"}),
				"POST /transaction": func(*http.Request) (int, any) {
					return http.StatusBadRequest, map[string]any{"code": 400, "error": "Failed to submit transaction.", "cause": tt.cause}
				},
			})
			connect(t, svc, &mockSigner{})
			_, err := svc.DeleteTodo(context.Background(), 1)
			if !chainerr.IsKind(err, tt.want) {
				t.Errorf("expected %s, got %v", tt.want, err)
			}
		})
	}
}

func TestRecognizePallet(t *testing.T) {
	if RecognizePallet(errors.New("connection refused")) != nil {
		t.Error("expected unrelated error ignored")
	}
	e := RecognizePallet(errors.New(`{"module":{"index":50,"error":"0x01"}} Module error`))
	if e == nil || e.Kind != chainerr.KindPalletError {
		t.Errorf("expected PALLET_ERROR, got %v", e)
	}
}

func TestExplorerURLs(t *testing.T) {
	svc, _ := newTestService(t, map[string]func(*http.Request) (int, any){})
	if got := svc.GetTransactionExplorerURL(extHash); got != "https://polkadot.subscan.io/extrinsic/"+extHash {
		t.Errorf("unexpected url %s", got)
	}
	if got := svc.GetAddressExplorerURL(alicePolkadot); !strings.HasSuffix(got, "/account/"+alicePolkadot) {
		t.Errorf("unexpected url %s", got)
	}
}
