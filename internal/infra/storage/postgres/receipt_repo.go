package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/todochain/internal/core/domain"
	"github.com/vietddude/todochain/internal/infra/storage"
)

// ReceiptRepo implements storage.ReceiptRepository on the receipts table.
type ReceiptRepo struct {
	db *DB
}

var (
	_ storage.ReceiptRepository = (*ReceiptRepo)(nil)
	_ storage.ReceiptPruner     = (*ReceiptRepo)(nil)
)

func NewReceiptRepo(db *DB) *ReceiptRepo {
	return &ReceiptRepo{db: db}
}

const upsertReceipt = `
	INSERT INTO receipts (
		network, hash, status, block_number, from_address, to_address, gas_used, fee, block_time
	) VALUES (
		:network, :hash, :status, :block_number, :from_address, :to_address, :gas_used, :fee, :block_time
	)
	ON CONFLICT (network, hash) DO UPDATE SET
		status = EXCLUDED.status,
		block_number = EXCLUDED.block_number,
		gas_used = EXCLUDED.gas_used,
		fee = EXCLUDED.fee,
		block_time = EXCLUDED.block_time
`

// Save stores a terminal receipt.
func (r *ReceiptRepo) Save(ctx context.Context, receipt *domain.TransactionReceipt) error {
	if !receipt.Status.IsTerminal() {
		return storage.ErrNotTerminal
	}
	if _, err := r.db.NamedExecContext(ctx, upsertReceipt, receipt); err != nil {
		return fmt.Errorf("failed to save receipt: %w", err)
	}
	return nil
}

// Get returns storage.ErrReceiptNotFound for unknown hashes.
func (r *ReceiptRepo) Get(ctx context.Context, network domain.Network, hash string) (*domain.TransactionReceipt, error) {
	var receipt domain.TransactionReceipt
	err := r.db.GetContext(ctx, &receipt, `
		SELECT network, hash, status, block_number, from_address, to_address, gas_used, fee, block_time
		FROM receipts
		WHERE network = $1 AND hash = $2
	`, network, hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrReceiptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get receipt: %w", err)
	}
	return &receipt, nil
}

// DeleteReceiptsOlderThan removes rows inserted before the given time.
func (r *ReceiptRepo) DeleteReceiptsOlderThan(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM receipts WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune receipts: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the pool.
func (r *ReceiptRepo) Close() error {
	return r.db.Close()
}
