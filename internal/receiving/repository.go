package receiving

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

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

// TxRepository composes GRN bookkeeping with ledger posting so finalize
// commits the status change and the movements as one unit.
type TxRepository interface {
	ledger.TxLedger
	CreatePO(ctx context.Context, po PurchaseOrder) (int64, error)
	InsertPOLine(ctx context.Context, line POLine) error
	UpdatePOStatus(ctx context.Context, id int64, status POStatus) error
	CreateGRN(ctx context.Context, grn GRN) (int64, error)
	InsertGRNLine(ctx context.Context, line GRNLine) error
	UpdateGRNLine(ctx context.Context, grnID, productID int64, received, damaged int64, remarks string) error
	UpdateGRNStatus(ctx context.Context, id int64, from, to GRNStatus) error
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

// GetPO returns purchase order and lines.
func (r *Repository) GetPO(ctx context.Context, id int64) (PurchaseOrder, []POLine, error) {
	var po PurchaseOrder
	err := r.pool.QueryRow(ctx, `
		SELECT id, number, supplier_id, warehouse_id, status, expected_date, COALESCE(notes, '')
		FROM purchase_orders WHERE id = $1
	`, id).Scan(&po.ID, &po.Number, &po.SupplierID, &po.WarehouseID, &po.Status, &po.ExpectedDate, &po.Notes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseOrder{}, nil, ErrNotFound
		}
		return PurchaseOrder{}, nil, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, po_id, product_id, ordered, unit_cost
		FROM po_lines WHERE po_id = $1 ORDER BY id
	`, id)
	if err != nil {
		return PurchaseOrder{}, nil, err
	}
	defer rows.Close()
	var lines []POLine
	for rows.Next() {
		var line POLine
		if err := rows.Scan(&line.ID, &line.POID, &line.ProductID, &line.Ordered, &line.UnitCost); err != nil {
			return PurchaseOrder{}, nil, err
		}
		lines = append(lines, line)
	}
	return po, lines, rows.Err()
}

// GetGRN returns goods-received note and lines.
func (r *Repository) GetGRN(ctx context.Context, id int64) (GRN, []GRNLine, error) {
	var grn GRN
	err := r.pool.QueryRow(ctx, `
		SELECT id, ref, number, COALESCE(po_id, 0), COALESCE(supplier_id, 0), warehouse_id,
		       status, source, received_at, COALESCE(notes, '')
		FROM grns WHERE id = $1
	`, id).Scan(&grn.ID, &grn.Ref, &grn.Number, &grn.POID, &grn.SupplierID, &grn.WarehouseID,
		&grn.Status, &grn.Source, &grn.ReceivedAt, &grn.Notes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return GRN{}, nil, ErrNotFound
		}
		return GRN{}, nil, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, grn_id, product_id, ordered, received, damaged, unit_cost, COALESCE(remarks, '')
		FROM grn_lines WHERE grn_id = $1 ORDER BY id
	`, id)
	if err != nil {
		return GRN{}, nil, err
	}
	defer rows.Close()
	var lines []GRNLine
	for rows.Next() {
		var line GRNLine
		if err := rows.Scan(&line.ID, &line.GRNID, &line.ProductID, &line.Ordered, &line.Received, &line.Damaged, &line.UnitCost, &line.Remarks); err != nil {
			return GRN{}, nil, err
		}
		lines = append(lines, line)
	}
	return grn, lines, rows.Err()
}

// ListOpenGRNs lists notes still in DRAFT or RECEIVING for a warehouse.
func (r *Repository) ListOpenGRNs(ctx context.Context, warehouseID int64) ([]GRN, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, ref, number, COALESCE(po_id, 0), COALESCE(supplier_id, 0), warehouse_id,
		       status, source, received_at, COALESCE(notes, '')
		FROM grns
		WHERE status IN ('DRAFT', 'RECEIVING') AND ($1 = 0 OR warehouse_id = $1)
		ORDER BY id
	`, warehouseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var grns []GRN
	for rows.Next() {
		var grn GRN
		if err := rows.Scan(&grn.ID, &grn.Ref, &grn.Number, &grn.POID, &grn.SupplierID, &grn.WarehouseID,
			&grn.Status, &grn.Source, &grn.ReceivedAt, &grn.Notes); err != nil {
			return nil, err
		}
		grns = append(grns, grn)
	}
	return grns, rows.Err()
}

func (t *txRepo) CreatePO(ctx context.Context, po PurchaseOrder) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO purchase_orders (number, supplier_id, warehouse_id, status, expected_date, notes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, po.Number, po.SupplierID, po.WarehouseID, po.Status, po.ExpectedDate, po.Notes).Scan(&id)
	return id, err
}

func (t *txRepo) InsertPOLine(ctx context.Context, line POLine) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO po_lines (po_id, product_id, ordered, unit_cost)
		VALUES ($1, $2, $3, $4)
	`, line.POID, line.ProductID, line.Ordered, line.UnitCost)
	return err
}

func (t *txRepo) UpdatePOStatus(ctx context.Context, id int64, status POStatus) error {
	tag, err := t.tx.Exec(ctx, `UPDATE purchase_orders SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepo) CreateGRN(ctx context.Context, grn GRN) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO grns (ref, number, po_id, supplier_id, warehouse_id, status, source, received_at, notes)
		VALUES ($1, $2, NULLIF($3, 0), NULLIF($4, 0), $5, $6, $7, $8, $9)
		RETURNING id
	`, grn.Ref, grn.Number, grn.POID, grn.SupplierID, grn.WarehouseID, grn.Status, grn.Source, defaultTime(grn.ReceivedAt), grn.Notes).Scan(&id)
	return id, err
}

func (t *txRepo) InsertGRNLine(ctx context.Context, line GRNLine) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO grn_lines (grn_id, product_id, ordered, received, damaged, unit_cost, remarks)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, line.GRNID, line.ProductID, line.Ordered, line.Received, line.Damaged, line.UnitCost, line.Remarks)
	return err
}

func (t *txRepo) UpdateGRNLine(ctx context.Context, grnID, productID int64, received, damaged int64, remarks string) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE grn_lines SET received = $3, damaged = $4, remarks = COALESCE(NULLIF($5, ''), remarks)
		WHERE grn_id = $1 AND product_id = $2
	`, grnID, productID, received, damaged, remarks)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateGRNStatus is a compare-and-set: the transition only applies while the
// note is still in the expected state, so racing workers cannot both move it.
func (t *txRepo) UpdateGRNStatus(ctx context.Context, id int64, from, to GRNStatus) error {
	tag, err := t.tx.Exec(ctx, `UPDATE grns SET status = $3 WHERE id = $1 AND status = $2`, id, from, to)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: note %d is no longer %s", ErrInvalidState, id, from)
	}
	return nil
}

func defaultTime(value time.Time) time.Time {
	if value.IsZero() {
		return time.Now()
	}
	return value
}
