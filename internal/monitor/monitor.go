// Package monitor drives submitted transactions to a terminal receipt.
//
// Each watch runs a polling task against a timeout; whichever finishes first
// decides the outcome. A hash can be watched by one caller at a time.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vietddude/todochain/internal/core/chainerr"
	"github.com/vietddude/todochain/internal/core/domain"
	"github.com/vietddude/todochain/internal/infra/telemetry"
	"github.com/vietddude/todochain/internal/metrics"
)

// Status is the monitor-side state of a watched transaction.
type Status string

const (
	StatusPending           Status = "PENDING"
	StatusUnknown           Status = "UNKNOWN"
	StatusConfirmed         Status = "CONFIRMED"
	StatusFailed            Status = "FAILED"
	StatusTimeout           Status = "TIMEOUT"
	StatusAttemptsExhausted Status = "ATTEMPTS_EXHAUSTED"
	StatusError             Status = "ERROR"
	StatusCancelled         Status = "CANCELLED"
)

// IsTerminal reports whether s ends a watch.
func (s Status) IsTerminal() bool {
	return s != StatusPending && s != StatusUnknown && s != ""
}

// observed maps a non-terminal receipt lookup to a watch status. A missing
// receipt counts as pending.
func observed(r *domain.TransactionReceipt) Status {
	if r != nil && r.Status == domain.TxStatusUnknown {
		return StatusUnknown
	}
	return StatusPending
}

var (
	ErrTimeout           = errors.New("monitoring timed out")
	ErrAttemptsExhausted = errors.New("polling attempts exhausted")
	ErrReverted          = errors.New("transaction reverted")
	ErrStopped           = errors.New("monitoring stopped")
)

// FetchFunc returns the receipt for hash, or nil while it is not yet known.
type FetchFunc func(ctx context.Context, hash string) (*domain.TransactionReceipt, error)

// State is a point-in-time view of a watch.
type State struct {
	ID        string
	Hash      string
	Network   domain.Network
	Status    Status
	Attempts  int
	StartTime time.Time
}

type watch struct {
	id        string
	hash      string
	network   domain.Network
	startTime time.Time
	attempts  atomic.Int64
	status    atomic.Value // Status
	cancel    context.CancelCauseFunc

	// notifyMu serializes status callbacks. No callback runs after the
	// terminal one.
	notifyMu sync.Mutex
	notified bool
}

func (w *watch) snapshot() State {
	s, _ := w.status.Load().(Status)
	return State{
		ID:        w.id,
		Hash:      w.hash,
		Network:   w.network,
		Status:    s,
		Attempts:  int(w.attempts.Load()),
		StartTime: w.startTime,
	}
}

type outcome struct {
	status  Status
	receipt *domain.TransactionReceipt
	err     error
}

// Monitor tracks in-flight transactions.
type Monitor struct {
	mu      sync.Mutex
	watches map[string]*watch

	logger *slog.Logger
	tracer trace.Tracer
}

// Option configures a Monitor.
type Option func(*Monitor)

func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

func WithTracer(t trace.Tracer) Option {
	return func(m *Monitor) { m.tracer = t }
}

// New creates an empty Monitor.
func New(opts ...Option) *Monitor {
	m := &Monitor{
		watches: make(map[string]*watch),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.tracer == nil {
		m.tracer = telemetry.Tracer()
	}
	return m
}

// Watch polls fetch until hash reaches a terminal receipt or a bound is hit.
// It returns the CONFIRMED receipt, or a typed error:
//   - TRANSACTION_FAILED for a FAILED receipt, exhausted attempts or a fetch error
//   - TRANSACTION_TIMEOUT when opts.Timeout elapses first
//   - MONITORING_CANCELLED after Stop or when ctx is done
//   - ALREADY_MONITORING when hash is being watched by another caller
func (m *Monitor) Watch(
	ctx context.Context,
	hash string,
	network domain.Network,
	fetch FetchFunc,
	opts Options,
) (*domain.TransactionReceipt, error) {
	errOpts := []chainerr.Option{chainerr.WithTxHash(hash), chainerr.WithNetwork(network)}
	if hash == "" || fetch == nil {
		return nil, chainerr.ConfigurationError("monitor requires a hash and a fetch function", errOpts...)
	}
	opts = opts.withDefaults()

	ctx, span := m.tracer.Start(ctx, "monitor.Watch", trace.WithAttributes(
		attribute.String("tx.hash", hash),
		attribute.String("network", string(network)),
		attribute.Int("monitor.max_attempts", opts.MaxAttempts),
	))
	defer span.End()

	watchCtx, cancel := context.WithCancelCause(ctx)
	w := &watch{
		id:        uuid.NewString(),
		hash:      hash,
		network:   network,
		startTime: time.Now(),
		cancel:    cancel,
	}
	w.status.Store(StatusPending)

	if !m.register(w) {
		cancel(nil)
		span.SetStatus(codes.Error, "already monitoring")
		return nil, chainerr.AlreadyMonitoring("transaction is already being monitored", errOpts...)
	}
	defer m.finish(w)

	logger := m.logger.With("network", network, "hash", hash, "watch_id", w.id)
	logger.Debug("Monitoring transaction",
		"max_attempts", opts.MaxAttempts,
		"interval", opts.PollingInterval,
		"timeout", opts.Timeout,
	)
	m.notify(w, opts.OnStatusChange, StatusPending, nil)

	results := make(chan outcome, 1)
	go m.poll(watchCtx, w, fetch, opts, results)

	timer := time.NewTimer(opts.Timeout)
	defer timer.Stop()

	var out outcome
	select {
	case out = <-results:
	case <-timer.C:
		out = outcome{
			status: StatusTimeout,
			err: chainerr.TransactionTimeout(
				fmt.Sprintf("no terminal receipt after %s", opts.Timeout),
				append(errOpts, chainerr.WithCause(ErrTimeout))...,
			),
		}
	case <-watchCtx.Done():
		cause := context.Cause(watchCtx)
		msg := "monitoring cancelled"
		if errors.Is(cause, ErrStopped) {
			msg = "monitoring stopped"
		}
		out = outcome{
			status: StatusCancelled,
			err:    chainerr.MonitoringCancelled(msg, append(errOpts, chainerr.WithCause(cause))...),
		}
	}

	m.notify(w, opts.OnStatusChange, out.status, out.receipt)

	attempts := w.attempts.Load()
	span.SetAttributes(
		attribute.String("monitor.status", string(out.status)),
		attribute.Int64("monitor.attempts", attempts),
	)
	if out.err != nil {
		span.RecordError(out.err)
		span.SetStatus(codes.Error, string(out.status))
		logger.Warn("Transaction monitoring ended", "status", out.status, "attempts", attempts, "error", out.err)
		return nil, out.err
	}

	logger.Info("Transaction confirmed", "attempts", attempts, "elapsed", time.Since(w.startTime))
	return out.receipt, nil
}

// poll fetches sequentially until a terminal result and delivers exactly one
// outcome, unless ctx ends first.
func (m *Monitor) poll(ctx context.Context, w *watch, fetch FetchFunc, opts Options, out chan<- outcome) {
	errOpts := []chainerr.Option{chainerr.WithTxHash(w.hash), chainerr.WithNetwork(w.network)}
	// In-flight fetches outlive Stop and the timeout; their results are dropped.
	fetchCtx := context.WithoutCancel(ctx)
	last := StatusPending

	for {
		if ctx.Err() != nil {
			return
		}
		n := w.attempts.Add(1)
		metrics.MonitorPollsTotal.WithLabelValues(string(w.network)).Inc()

		receipt, err := fetch(fetchCtx, w.hash)
		if ctx.Err() != nil {
			return
		}

		switch {
		case err != nil:
			out <- outcome{
				status: StatusError,
				err:    chainerr.Wrap(err, chainerr.KindTransactionFailed, "receipt fetch failed", errOpts...),
			}
			return
		case receipt != nil && receipt.Status == domain.TxStatusConfirmed:
			out <- outcome{status: StatusConfirmed, receipt: receipt}
			return
		case receipt != nil && receipt.Status == domain.TxStatusFailed:
			out <- outcome{
				status:  StatusFailed,
				receipt: receipt,
				err: chainerr.TransactionFailed("transaction failed on chain",
					append(errOpts, chainerr.WithCause(ErrReverted))...),
			}
			return
		}

		if int(n) >= opts.MaxAttempts {
			out <- outcome{
				status: StatusAttemptsExhausted,
				err: chainerr.TransactionFailed(
					fmt.Sprintf("no terminal receipt after %d attempts", n),
					append(errOpts, chainerr.WithCause(ErrAttemptsExhausted))...,
				),
			}
			return
		}

		if s := observed(receipt); s != last {
			last = s
			m.notify(w, opts.OnStatusChange, s, receipt)
		}
		m.logger.Debug("Receipt pending", "hash", w.hash, "network", w.network, "status", last, "attempt", n)

		t := time.NewTimer(opts.PollingInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

func (m *Monitor) register(w *watch) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.watches[w.hash]; exists {
		return false
	}
	m.watches[w.hash] = w
	metrics.MonitorActive.WithLabelValues(string(w.network)).Inc()
	return true
}

// finish is the only cleanup path of a watch.
func (m *Monitor) finish(w *watch) {
	w.cancel(nil)

	m.mu.Lock()
	if cur, ok := m.watches[w.hash]; ok && cur == w {
		delete(m.watches, w.hash)
	}
	m.mu.Unlock()

	status, _ := w.status.Load().(Status)
	metrics.MonitorActive.WithLabelValues(string(w.network)).Dec()
	metrics.MonitorOutcomesTotal.WithLabelValues(string(w.network), string(status)).Inc()
	metrics.MonitorDuration.WithLabelValues(string(w.network), string(status)).
		Observe(time.Since(w.startTime).Seconds())
}

// notify records status on w and reports it to fn. Calls after the
// terminal status are dropped.
func (m *Monitor) notify(w *watch, fn StatusFunc, status Status, receipt *domain.TransactionReceipt) {
	w.notifyMu.Lock()
	defer w.notifyMu.Unlock()
	if w.notified {
		return
	}
	w.status.Store(status)
	if status.IsTerminal() {
		w.notified = true
	}
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Status callback panicked", "status", status, "panic", r)
		}
	}()
	fn(status, receipt)
}

// Stop ends the watch on hash. Unknown or finished hashes are ignored.
func (m *Monitor) Stop(hash string) {
	m.mu.Lock()
	w, ok := m.watches[hash]
	if ok {
		delete(m.watches, hash)
	}
	m.mu.Unlock()

	if ok {
		w.cancel(ErrStopped)
	}
}

// StopAll ends every active watch.
func (m *Monitor) StopAll() {
	m.mu.Lock()
	ws := make([]*watch, 0, len(m.watches))
	for hash, w := range m.watches {
		ws = append(ws, w)
		delete(m.watches, hash)
	}
	m.mu.Unlock()

	for _, w := range ws {
		w.cancel(ErrStopped)
	}
}

// IsMonitoring reports whether hash has an active watch.
func (m *Monitor) IsMonitoring(hash string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.watches[hash]
	return ok
}

// Lookup returns the current state of the watch on hash.
func (m *Monitor) Lookup(hash string) (State, bool) {
	m.mu.Lock()
	w, ok := m.watches[hash]
	m.mu.Unlock()
	if !ok {
		return State{}, false
	}
	return w.snapshot(), true
}

// Active returns the watched hashes in sorted order.
func (m *Monitor) Active() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.watches))
	for hash := range m.watches {
		out = append(out, hash)
	}
	sort.Strings(out)
	return out
}
