package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vietddude/todochain/internal/infra/rpc/provider"
	"github.com/vietddude/todochain/internal/infra/rpc/routing"
	"github.com/vietddude/todochain/internal/infra/telemetry"
	"github.com/vietddude/todochain/internal/metrics"
)

// Client is the high-level interface for making RPC calls against one
// network. Connectors should use this rather than providers directly.
type Client struct {
	network   string
	providers []provider.Provider
	retry     routing.RetryConfig
	logger    *slog.Logger
	tracer    trace.Tracer
}

// NewClient creates a client over the given providers, tried in order.
func NewClient(network string, providers []provider.Provider, retry routing.RetryConfig) *Client {
	return &Client{
		network:   network,
		providers: providers,
		retry:     retry,
		logger:    slog.Default().With("network", network),
		tracer:    telemetry.Tracer(),
	}
}

// NewHTTPClient builds a client with a primary endpoint and optional fallbacks.
func NewHTTPClient(network, primary string, fallbacks []string, timeout time.Duration) *Client {
	providers := []provider.Provider{provider.NewHTTPProvider("primary", primary, timeout)}
	for _, u := range fallbacks {
		if u == "" {
			continue // unset ${VAR} in config
		}
		name := fmt.Sprintf("fallback-%d", len(providers))
		providers = append(providers, provider.NewHTTPProvider(name, u, timeout))
	}
	return NewClient(network, providers, routing.DefaultRetryConfig)
}

// Call makes a JSON-RPC call with retry and failover.
func (c *Client) Call(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	if params == nil {
		params = []any{}
	}
	return c.execute(ctx, provider.Operation{Name: method, Params: params})
}

// CallInto makes a JSON-RPC call and decodes the result into out.
func (c *Client) CallInto(ctx context.Context, out any, method string, params ...any) error {
	raw, err := c.Call(ctx, method, params...)
	if err != nil {
		return err
	}
	return decode(raw, out, method)
}

// Get issues a REST GET for path and decodes the body into out.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	raw, err := c.execute(ctx, provider.Operation{Name: path, IsREST: true, RESTMethod: http.MethodGet, Query: query})
	if err != nil {
		return err
	}
	return decode(raw, out, path)
}

// Post issues a REST POST with a JSON body and decodes the response into out.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	raw, err := c.execute(ctx, provider.Operation{Name: path, IsREST: true, RESTMethod: http.MethodPost, Params: body})
	if err != nil {
		return err
	}
	return decode(raw, out, path)
}

func (c *Client) execute(ctx context.Context, op provider.Operation) (json.RawMessage, error) {
	ctx, span := c.tracer.Start(ctx, "rpc."+op.Name, trace.WithAttributes(
		attribute.String("network", c.network),
		attribute.Bool("rpc.rest", op.IsREST),
	))
	defer span.End()

	observe := func(p provider.Provider, latency time.Duration, err error) {
		metrics.RPCCallsTotal.WithLabelValues(c.network, p.GetName(), op.Name).Inc()
		metrics.RPCLatency.WithLabelValues(c.network, p.GetName(), op.Name).Observe(latency.Seconds())
		if err != nil {
			action := routing.ClassifyError(err)
			metrics.RPCErrorsTotal.WithLabelValues(c.network, p.GetName(), action.String()).Inc()
			c.logger.Debug("RPC call failed", "provider", p.GetName(), "method", op.Name, "action", action, "error", err)
		}
	}

	raw, err := routing.CallWithFailover(ctx, c.providers, op, c.retry, observe)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rpc failed")
		return nil, fmt.Errorf("%s failed: %w", op.Name, err)
	}
	return raw, nil
}

func decode(raw json.RawMessage, out any, what string) error {
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s: %w", what, err)
	}
	return nil
}

// Providers returns the providers in failover order.
func (c *Client) Providers() []provider.Provider {
	return c.providers
}

// Close closes every provider.
func (c *Client) Close() error {
	var errs []error
	for _, p := range c.providers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
