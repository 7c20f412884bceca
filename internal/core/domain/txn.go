package domain

import "time"

type TxStatus string

const (
	TxStatusPending   TxStatus = "pending"
	TxStatusConfirmed TxStatus = "confirmed"
	TxStatusFailed    TxStatus = "failed"
	TxStatusUnknown   TxStatus = "unknown"
)

// IsTerminal reports whether the status can no longer change.
func (s TxStatus) IsTerminal() bool {
	return s == TxStatusConfirmed || s == TxStatusFailed
}

// TransactionReceipt is the outcome of a submitted transaction.
// Optional fields are left at their zero value when the chain does not report them.
type TransactionReceipt struct {
	Hash        string     `json:"hash"         db:"hash"`
	Status      TxStatus   `json:"status"       db:"status"`
	BlockNumber *uint64    `json:"block_number" db:"block_number"`
	From        string     `json:"from"         db:"from_address"`
	To          string     `json:"to"           db:"to_address"`
	GasUsed     *uint64    `json:"gas_used"     db:"gas_used"`
	Fee         string     `json:"fee"          db:"fee"` // native units, decimal string
	Network     Network    `json:"network"      db:"network"`
	Timestamp   *time.Time `json:"timestamp"    db:"block_time"`
}
