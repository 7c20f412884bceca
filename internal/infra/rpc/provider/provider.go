// Package provider implements RPC endpoints.
//
// This package contains:
//   - Provider interface: core abstraction for an RPC endpoint
//   - HTTPProvider: JSON-RPC 2.0 and REST over HTTP
//   - ProviderMonitor: latency and throttle tracking
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Operation describes a single request to an endpoint.
type Operation struct {
	// Name is the JSON-RPC method (e.g. "eth_getTransactionReceipt") or, for
	// REST calls, the path relative to the endpoint (e.g. "blocks/head").
	Name string

	// Params is []any for JSON-RPC. For REST it is the JSON body of a POST
	// and ignored for GET.
	Params any

	// IsREST selects a plain HTTP request instead of a JSON-RPC envelope.
	IsREST bool

	// RESTMethod is the HTTP verb for REST calls. Defaults to GET.
	RESTMethod string

	// Query is appended to REST URLs.
	Query map[string][]string
}

// Provider is an RPC endpoint with health tracking.
type Provider interface {
	// GetName returns the provider identifier (e.g. "primary", "fallback-1")
	GetName() string

	// GetHealth returns current health metrics
	GetHealth() HealthStatus

	// IsAvailable checks if the provider is healthy enough to use
	IsAvailable() bool

	// Execute performs the operation and returns the raw result
	Execute(ctx context.Context, op Operation) (json.RawMessage, error)

	// Close cleans up resources
	Close() error
}

// HealthStatus represents the health state of a provider.
type HealthStatus struct {
	Available     bool
	Latency       time.Duration
	ErrorRate     float64
	LastSuccessAt time.Time
	LastFailureAt time.Time
	MonitorStats  *MonitorStats `json:"monitor_stats,omitempty"`
}

// RPCError is an error object returned inside a JSON-RPC response.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	if len(e.Data) > 0 && string(e.Data) != "null" {
		return fmt.Sprintf("rpc error %d: %s: %s", e.Code, e.Message, string(e.Data))
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// ErrorCode exposes the JSON-RPC code to error classifiers.
func (e *RPCError) ErrorCode() int {
	return e.Code
}

// HTTPError is a non-2xx REST or JSON-RPC transport response.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Body)
}
