package chaintest

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/vietddude/todochain/internal/infra/rpc/provider"
)

// RPCHandler answers one JSON-RPC method. A *provider.RPCError is sent as
// is; other errors become code -32000.
type RPCHandler func(params []json.RawMessage) (any, error)

// RPCServer is an httptest JSON-RPC 2.0 endpoint.
type RPCServer struct {
	*httptest.Server

	mu       sync.Mutex
	handlers map[string]RPCHandler
	calls    map[string]int
}

// NewRPCServer starts a server that is closed with the test.
func NewRPCServer(t *testing.T, handlers map[string]RPCHandler) *RPCServer {
	t.Helper()
	s := &RPCServer{handlers: handlers, calls: make(map[string]int)}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// Handle replaces the handler for method.
func (s *RPCServer) Handle(method string, h RPCHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = h
}

// Calls returns how often method was requested.
func (s *RPCServer) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

func (s *RPCServer) serve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     json.RawMessage   `json:"id"`
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.calls[req.Method]++
	h := s.handlers[req.Method]
	s.mu.Unlock()

	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	if h == nil {
		resp["error"] = &provider.RPCError{Code: -32601, Message: "method not found: " + req.Method}
	} else if result, err := h(req.Params); err != nil {
		var rpcErr *provider.RPCError
		if !errors.As(err, &rpcErr) {
			rpcErr = &provider.RPCError{Code: -32000, Message: err.Error()}
		}
		resp["error"] = rpcErr
	} else {
		resp["result"] = result
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// Result returns a handler that always answers v.
func Result(v any) RPCHandler {
	return func([]json.RawMessage) (any, error) { return v, nil }
}
