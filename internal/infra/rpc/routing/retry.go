// Package routing handles retry and failover across providers.
package routing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/vietddude/todochain/internal/infra/rpc/provider"
)

// RetryConfig defines retry behavior.
type RetryConfig struct {
	MaxAttempts     int           `yaml:"max_attempts"`
	InitialDelay    time.Duration `yaml:"initial_delay"`
	MaxDelay        time.Duration `yaml:"max_delay"`
	BackoffMultiple float64       `yaml:"backoff_multiple"`
}

// DefaultRetryConfig keeps interactive calls short; the transaction monitor
// already re-polls on its own schedule.
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:     3,
	InitialDelay:    250 * time.Millisecond,
	MaxDelay:        5 * time.Second,
	BackoffMultiple: 2.0,
}

// ErrorAction determines how to handle an error.
type ErrorAction int

const (
	ActionRetry ErrorAction = iota
	ActionFailover
	ActionFatal
)

func (a ErrorAction) String() string {
	switch a {
	case ActionRetry:
		return "retry"
	case ActionFailover:
		return "failover"
	default:
		return "fatal"
	}
}

// ClassifyError determines the action for a given error.
func ClassifyError(err error) ErrorAction {
	if err == nil {
		return ActionRetry
	}

	if errors.Is(err, context.Canceled) {
		return ActionFatal
	}

	// A JSON-RPC error object means the node answered; retrying elsewhere
	// would get the same verdict.
	var rpcErr *provider.RPCError
	if errors.As(err, &rpcErr) {
		return ActionFatal
	}

	var httpErr *provider.HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode >= 400 && httpErr.StatusCode < 500 &&
		httpErr.StatusCode != 408 {
		return ActionFatal
	}

	s := err.Error()
	sLower := strings.ToLower(s)

	// -32700: Parse error, -32600: Invalid Request, -32601: Method not found, -32602: Invalid params
	if strings.Contains(s, "-32700") || strings.Contains(s, "-32600") ||
		strings.Contains(s, "-32601") || strings.Contains(s, "-32602") {
		return ActionFatal
	}

	// Provider specific issues
	if strings.Contains(s, "429") || strings.Contains(sLower, "too many requests") ||
		strings.Contains(s, "403") || strings.Contains(sLower, "forbidden") ||
		strings.Contains(sLower, "quota") || strings.Contains(sLower, "plan limit") ||
		strings.Contains(sLower, "unauthorized") ||
		strings.Contains(sLower, "rate limit") ||
		strings.Contains(sLower, "count exceeded") ||
		strings.Contains(sLower, "provider throttled") ||
		strings.Contains(sLower, "provider blocked") {
		return ActionFailover
	}

	// Network, 5xx, etc
	return ActionRetry
}

// CallWithRetry executes an operation with exponential backoff.
func CallWithRetry(
	ctx context.Context,
	p provider.Provider,
	op provider.Operation,
	config RetryConfig,
) ([]byte, error) {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	var lastErr error

	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		result, err := p.Execute(ctx, op)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if action := ClassifyError(err); action != ActionRetry {
			return nil, err
		}
		if attempt == config.MaxAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(calculateBackoff(attempt, config)):
		}
	}

	return nil, fmt.Errorf("failed after %d attempts: %w", config.MaxAttempts, lastErr)
}

// Observer is told about every provider attempt made by CallWithFailover.
type Observer func(p provider.Provider, latency time.Duration, err error)

// CallWithFailover tries providers in order, retrying each, until one succeeds
// or an error is fatal. Unavailable providers are skipped unless all are.
func CallWithFailover(
	ctx context.Context,
	providers []provider.Provider,
	op provider.Operation,
	config RetryConfig,
	observe Observer,
) ([]byte, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("no providers configured")
	}

	candidates := make([]provider.Provider, 0, len(providers))
	for _, p := range providers {
		if p.IsAvailable() {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		candidates = providers
	}

	var lastErr error
	for _, p := range candidates {
		start := time.Now()
		result, err := CallWithRetry(ctx, p, op, config)
		if observe != nil {
			observe(p, time.Since(start), err)
		}
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ClassifyError(err) == ActionFatal {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("all providers failed: %w", lastErr)
}

func calculateBackoff(attempt int, config RetryConfig) time.Duration {
	delay := float64(config.InitialDelay) * math.Pow(config.BackoffMultiple, float64(attempt))
	if delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}
	return time.Duration(delay)
}
