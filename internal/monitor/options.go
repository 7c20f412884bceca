package monitor

import (
	"time"

	"github.com/vietddude/todochain/internal/core/domain"
)

const (
	DefaultMaxAttempts     = 30
	DefaultPollingInterval = 5 * time.Second
	DefaultTimeout         = 300 * time.Second
)

// StatusFunc observes status transitions of a watched transaction: PENDING
// at start, each change between PENDING and UNKNOWN seen while polling, then
// the terminal status. Calls for one watch never overlap. The receipt is nil
// until one has been fetched.
type StatusFunc func(status Status, receipt *domain.TransactionReceipt)

// Options bound a single watch. Zero fields take the value of the next
// layer (see Or) and finally the package defaults.
type Options struct {
	MaxAttempts     int           `yaml:"max_attempts"`
	PollingInterval time.Duration `yaml:"polling_interval"`
	Timeout         time.Duration `yaml:"timeout"`
	OnStatusChange  StatusFunc    `yaml:"-"`
}

// DefaultOptions returns 30 attempts, a 5s interval and a 300s timeout.
func DefaultOptions() Options {
	return Options{
		MaxAttempts:     DefaultMaxAttempts,
		PollingInterval: DefaultPollingInterval,
		Timeout:         DefaultTimeout,
	}
}

// Or fills the zero fields of o from fallback.
func (o Options) Or(fallback Options) Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = fallback.MaxAttempts
	}
	if o.PollingInterval <= 0 {
		o.PollingInterval = fallback.PollingInterval
	}
	if o.Timeout <= 0 {
		o.Timeout = fallback.Timeout
	}
	if o.OnStatusChange == nil {
		o.OnStatusChange = fallback.OnStatusChange
	}
	return o
}

func (o Options) withDefaults() Options {
	return o.Or(DefaultOptions())
}
