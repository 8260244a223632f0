package openingstock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository composes ledger posting with GRN container bookkeeping so an
// opening entry and its movement commit or roll back together.
type TxRepository interface {
	ledger.TxLedger
	EnsureOpeningGRN(ctx context.Context, warehouseID int64, notes string) (GRNRef, error)
	InsertOpeningLine(ctx context.Context, grnID int64, row Row) error
}

type txRepo struct {
	ledger.TxLedger
	tx pgx.Tx
}

// WithTx wraps callback in a repeatable-read transaction, re-running it on
// serialization failures.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{TxLedger: ledger.NewTxLedger(tx), tx: tx})
	})
}

// EnsureOpeningGRN returns the opening-stock container for a warehouse,
// creating it on first use. Opening movements of one warehouse share one GRN.
func (t *txRepo) EnsureOpeningGRN(ctx context.Context, warehouseID int64, notes string) (GRNRef, error) {
	var ref GRNRef
	err := t.tx.QueryRow(ctx, `
		SELECT id, ref, number FROM grns
		WHERE warehouse_id = $1 AND source = 'OPENING'
	`, warehouseID).Scan(&ref.ID, &ref.Ref, &ref.Number)
	if err == nil {
		return ref, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return GRNRef{}, err
	}
	ref.Ref = uuid.New()
	ref.Number = fmt.Sprintf("GRN-OPEN-%d", time.Now().UnixNano())
	err = t.tx.QueryRow(ctx, `
		INSERT INTO grns (ref, number, warehouse_id, status, source, received_at, notes)
		VALUES ($1, $2, $3, 'COMPLETE', 'OPENING', NOW(), $4)
		ON CONFLICT (warehouse_id) WHERE source = 'OPENING' DO NOTHING
		RETURNING id
	`, ref.Ref, ref.Number, warehouseID, notes).Scan(&ref.ID)
	if err == nil {
		return ref, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return GRNRef{}, err
	}
	// A concurrent import created the container between our select and
	// insert; use its row.
	err = t.tx.QueryRow(ctx, `
		SELECT id, ref, number FROM grns
		WHERE warehouse_id = $1 AND source = 'OPENING'
	`, warehouseID).Scan(&ref.ID, &ref.Ref, &ref.Number)
	if err != nil {
		return GRNRef{}, err
	}
	return ref, nil
}

// InsertOpeningLine records the row on the container for traceability.
func (t *txRepo) InsertOpeningLine(ctx context.Context, grnID int64, row Row) error {
	unitCost := row.UnitCost
	if unitCost.IsZero() {
		unitCost = decimal.Zero
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO grn_lines (grn_id, product_id, ordered, received, damaged, unit_cost, remarks)
		VALUES ($1, $2, $3, $3, 0, $4, $5)
	`, grnID, row.ProductID, row.Quantity, unitCost, row.BatchNumber)
	return err
}
