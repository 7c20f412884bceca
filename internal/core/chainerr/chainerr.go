// Package chainerr defines the closed set of errors surfaced by chain services.
//
// Every error that crosses a chain.Service method is an *Error built by one of
// the kind factories below, so callers branch on Kind instead of message text.
package chainerr

import (
	"errors"
	"strings"

	"github.com/vietddude/todochain/internal/core/domain"
)

// Kind tags an Error.
type Kind string

const (
	KindWalletConnectionFailed Kind = "WALLET_CONNECTION_FAILED"
	KindWalletNotConnected     Kind = "WALLET_NOT_CONNECTED"
	KindNetworkSwitchRequired  Kind = "NETWORK_SWITCH_REQUIRED"
	KindTransactionFailed      Kind = "TRANSACTION_FAILED"
	KindTransactionTimeout     Kind = "TRANSACTION_TIMEOUT"
	KindMonitoringCancelled    Kind = "MONITORING_CANCELLED"
	KindAlreadyMonitoring      Kind = "ALREADY_MONITORING"
	KindNetworkError           Kind = "NETWORK_ERROR"
	KindContractError          Kind = "CONTRACT_ERROR"
	KindInsufficientFunds      Kind = "INSUFFICIENT_FUNDS"
	KindUserRejected           Kind = "USER_REJECTED"
	KindConfigurationError     Kind = "CONFIGURATION_ERROR"
	KindRollupError            Kind = "ROLLUP_ERROR"
	KindProgramError           Kind = "PROGRAM_ERROR"
	KindPalletError            Kind = "PALLET_ERROR"
	KindUnknown                Kind = "UNKNOWN_ERROR"
)

var kinds = map[Kind]struct{}{
	KindWalletConnectionFailed: {},
	KindWalletNotConnected:     {},
	KindNetworkSwitchRequired:  {},
	KindTransactionFailed:      {},
	KindTransactionTimeout:     {},
	KindMonitoringCancelled:    {},
	KindAlreadyMonitoring:      {},
	KindNetworkError:           {},
	KindContractError:          {},
	KindInsufficientFunds:      {},
	KindUserRejected:           {},
	KindConfigurationError:     {},
	KindRollupError:            {},
	KindProgramError:           {},
	KindPalletError:            {},
	KindUnknown:                {},
}

// Valid reports whether k belongs to the closed set.
func (k Kind) Valid() bool {
	_, ok := kinds[k]
	return ok
}

// Error is a typed chain error.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
	TxHash  string
	Network domain.Network
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.TxHash != "" || e.Network != "" {
		b.WriteString(" (")
		if e.TxHash != "" {
			b.WriteString("tx ")
			b.WriteString(e.TxHash)
		}
		if e.Network != "" {
			if e.TxHash != "" {
				b.WriteString(" ")
			}
			b.WriteString("on ")
			b.WriteString(string(e.Network))
		}
		b.WriteString(")")
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Option sets optional context on an Error.
type Option func(*Error)

func WithCause(err error) Option {
	return func(e *Error) { e.Cause = err }
}

func WithTxHash(hash string) Option {
	return func(e *Error) { e.TxHash = hash }
}

func WithNetwork(n domain.Network) Option {
	return func(e *Error) { e.Network = n }
}

func build(kind Kind, message string, opts []Option) *Error {
	if !kind.Valid() {
		kind = KindUnknown
	}
	e := &Error{Kind: kind, Message: message}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func WalletConnectionFailed(message string, opts ...Option) *Error {
	return build(KindWalletConnectionFailed, message, opts)
}

func WalletNotConnected(message string, opts ...Option) *Error {
	return build(KindWalletNotConnected, message, opts)
}

func NetworkSwitchRequired(message string, opts ...Option) *Error {
	return build(KindNetworkSwitchRequired, message, opts)
}

func TransactionFailed(message string, opts ...Option) *Error {
	return build(KindTransactionFailed, message, opts)
}

func TransactionTimeout(message string, opts ...Option) *Error {
	return build(KindTransactionTimeout, message, opts)
}

func MonitoringCancelled(message string, opts ...Option) *Error {
	return build(KindMonitoringCancelled, message, opts)
}

func AlreadyMonitoring(message string, opts ...Option) *Error {
	return build(KindAlreadyMonitoring, message, opts)
}

func NetworkError(message string, opts ...Option) *Error {
	return build(KindNetworkError, message, opts)
}

func ContractError(message string, opts ...Option) *Error {
	return build(KindContractError, message, opts)
}

func InsufficientFunds(message string, opts ...Option) *Error {
	return build(KindInsufficientFunds, message, opts)
}

func UserRejected(message string, opts ...Option) *Error {
	return build(KindUserRejected, message, opts)
}

func ConfigurationError(message string, opts ...Option) *Error {
	return build(KindConfigurationError, message, opts)
}

// RollupError reports an L2 sequencer or L1 settlement fault.
func RollupError(message string, opts ...Option) *Error {
	return build(KindRollupError, message, opts)
}

// ProgramError reports an on-chain program failure on Solana.
func ProgramError(message string, opts ...Option) *Error {
	return build(KindProgramError, message, opts)
}

// PalletError reports a runtime dispatch failure on a Substrate chain.
func PalletError(message string, opts ...Option) *Error {
	return build(KindPalletError, message, opts)
}

func Unknown(message string, opts ...Option) *Error {
	return build(KindUnknown, message, opts)
}

// As returns the *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err, or the empty Kind when err is not typed.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Wrap returns err unchanged when it is already typed; otherwise it builds an
// error of the given kind with err as the cause. Wrap(nil, ...) is nil.
func Wrap(err error, kind Kind, message string, opts ...Option) error {
	if err == nil {
		return nil
	}
	if _, ok := As(err); ok {
		return err
	}
	if message == "" {
		message = err.Error()
	}
	return build(kind, message, append(opts, WithCause(err)))
}
