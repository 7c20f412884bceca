package chainerr

import (
	"context"
	"errors"
	"net"
	"strings"
)

// coder is implemented by transport errors that carry a JSON-RPC or
// wallet error code.
type coder interface {
	ErrorCode() int
}

// Recognizer maps a low-level error to a typed one. It returns nil when it
// does not recognize err.
type Recognizer func(err error, opts ...Option) *Error

// Classify types err with the first recognizer that matches, then the
// generic rules, then the fallback kind. Typed errors are returned as-is.
func Classify(err error, fallback Kind, recognizers []Recognizer, opts ...Option) error {
	if err == nil {
		return nil
	}
	if _, ok := As(err); ok {
		return err
	}
	for _, r := range recognizers {
		if e := r(err, opts...); e != nil {
			return e
		}
	}
	if e := Generic(err, opts...); e != nil {
		return e
	}
	return build(fallback, err.Error(), append(opts, WithCause(err)))
}

// Generic recognizes failures that look the same on every chain.
func Generic(err error, opts ...Option) *Error {
	opts = append(opts, WithCause(err))

	var c coder
	if errors.As(err, &c) {
		switch c.ErrorCode() {
		case 4001:
			return UserRejected("request rejected by signer", opts...)
		case 4100, 4900, 4901:
			return WalletConnectionFailed("signer unavailable", opts...)
		case 4902:
			return NetworkSwitchRequired("chain not added to signer", opts...)
		case 3:
			return ContractError("execution reverted", opts...)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NetworkError("request timed out", opts...)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return NetworkError("transport failure", opts...)
	}

	s := strings.ToLower(err.Error())
	switch {
	case containsAny(s, "user rejected", "user denied", "rejected by user", "cancelled by user"):
		return UserRejected("request rejected by signer", opts...)
	case containsAny(s, "insufficient funds", "insufficient balance", "insufficient lamports",
		"inability to pay"):
		return InsufficientFunds("insufficient funds for operation", opts...)
	case containsAny(s, "execution reverted", "revert"):
		return ContractError("contract call reverted", opts...)
	case containsAny(s, "connection refused", "connection reset", "no such host",
		"i/o timeout", "eof", "rate limited", "ip blocked", "http 5", "timeout"):
		return NetworkError("transport failure", opts...)
	}
	return nil
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
