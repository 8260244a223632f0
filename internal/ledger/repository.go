package ledger

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// Repository persists the stock store and movement ledger in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxLedger exposes the transactional ledger operations. Processors that need
// to commit their own rows in the same transaction (invoices, GRN headers)
// compose it via NewTxLedger inside their repositories.
type TxLedger interface {
	GetStockForUpdate(ctx context.Context, productID, warehouseID int64) (StockRecord, error)
	UpsertStock(ctx context.Context, record StockRecord) error
	InsertMovement(ctx context.Context, m Movement) (int64, error)
	HasOpeningBalance(ctx context.Context, productID, warehouseID int64) (bool, error)
}

type txLedger struct {
	tx pgx.Tx
}

// NewTxLedger binds ledger operations to an externally managed transaction.
func NewTxLedger(tx pgx.Tx) TxLedger {
	return &txLedger{tx: tx}
}

// ErrStockNotFound indicates a missing stock row; records are created lazily
// on first movement.
var ErrStockNotFound = errors.New("ledger: stock record not found")

// openingBalanceConstraint guards at-most-one OPENING_BALANCE per pair.
const openingBalanceConstraint = "movements_opening_balance_key"

// WithTx executes the callback inside a repeatable-read transaction,
// re-running it on serialization failures.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxLedger) error) error {
	if r == nil {
		return errors.New("ledger repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txLedger{tx: tx})
	})
}

// GetQuantity reads the current quantity for a pair. Missing rows read as zero.
func (r *Repository) GetQuantity(ctx context.Context, productID, warehouseID int64) (int64, error) {
	var qty int64
	err := r.pool.QueryRow(ctx, `SELECT quantity FROM stock_records WHERE product_id=$1 AND warehouse_id=$2`, productID, warehouseID).Scan(&qty)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return qty, nil
}

// GetMovement fetches one movement by id.
func (r *Repository) GetMovement(ctx context.Context, id int64) (Movement, error) {
	var m Movement
	err := r.pool.QueryRow(ctx, `SELECT id, product_id, warehouse_id, quantity_delta, kind, reference_type, reference_id, batch_number, unit_cost, expiry_date, note, created_at, created_by
FROM movements WHERE id=$1`, id).
		Scan(&m.ID, &m.ProductID, &m.WarehouseID, &m.QuantityDelta, &m.Kind, &m.ReferenceType, &m.ReferenceID, &m.BatchNumber, &m.UnitCost, &m.ExpiryDate, &m.Note, &m.CreatedAt, &m.CreatedBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Movement{}, ErrMovementNotFound
		}
		return Movement{}, err
	}
	return m, nil
}

// ListMovements returns movements oldest first, ordered by id so replay is
// deterministic and restartable via AfterID.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, product_id, warehouse_id, quantity_delta, kind, reference_type, reference_id, batch_number, unit_cost, expiry_date, note, created_at, created_by
FROM movements
WHERE ($1 = 0 OR product_id = $1)
  AND ($2 = 0 OR warehouse_id = $2)
  AND ($3 = '' OR kind = $3)
  AND id > $4
ORDER BY id ASC
LIMIT $5`, filter.ProductID, filter.WarehouseID, string(filter.Kind), filter.AfterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	movements := []Movement{}
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.ProductID, &m.WarehouseID, &m.QuantityDelta, &m.Kind, &m.ReferenceType, &m.ReferenceID, &m.BatchNumber, &m.UnitCost, &m.ExpiryDate, &m.Note, &m.CreatedAt, &m.CreatedBy); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

// ListPairTotals computes the signed movement sum per pair. Used by the
// reconciliation job to verify the store matches the ledger.
func (r *Repository) ListPairTotals(ctx context.Context) ([]PairTotal, error) {
	rows, err := r.pool.Query(ctx, `SELECT product_id, warehouse_id, COALESCE(SUM(quantity_delta),0)
FROM movements
GROUP BY product_id, warehouse_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var totals []PairTotal
	for rows.Next() {
		var t PairTotal
		if err := rows.Scan(&t.ProductID, &t.WarehouseID, &t.Sum); err != nil {
			return nil, err
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

// ListStock returns current stock rows, optionally limited to one warehouse.
func (r *Repository) ListStock(ctx context.Context, warehouseID int64) ([]StockRecord, error) {
	rows, err := r.pool.Query(ctx, `SELECT product_id, warehouse_id, quantity, updated_at
FROM stock_records
WHERE ($1 = 0 OR warehouse_id = $1)
ORDER BY warehouse_id, product_id`, warehouseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	records := []StockRecord{}
	for rows.Next() {
		var rec StockRecord
		if err := rows.Scan(&rec.ProductID, &rec.WarehouseID, &rec.Quantity, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (t *txLedger) GetStockForUpdate(ctx context.Context, productID, warehouseID int64) (StockRecord, error) {
	var rec StockRecord
	err := t.tx.QueryRow(ctx, `SELECT product_id, warehouse_id, quantity, updated_at FROM stock_records WHERE product_id=$1 AND warehouse_id=$2 FOR UPDATE`, productID, warehouseID).
		Scan(&rec.ProductID, &rec.WarehouseID, &rec.Quantity, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockRecord{ProductID: productID, WarehouseID: warehouseID}, ErrStockNotFound
		}
		return StockRecord{}, err
	}
	return rec, nil
}

func (t *txLedger) UpsertStock(ctx context.Context, record StockRecord) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO stock_records (product_id, warehouse_id, quantity, updated_at)
VALUES ($1,$2,$3,NOW())
ON CONFLICT (product_id, warehouse_id) DO UPDATE SET quantity=EXCLUDED.quantity, updated_at=NOW()`,
		record.ProductID, record.WarehouseID, record.Quantity)
	return err
}

func (t *txLedger) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO movements (product_id, warehouse_id, quantity_delta, kind, reference_type, reference_id, batch_number, unit_cost, expiry_date, note, created_at, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NOW(),$11) RETURNING id`,
		m.ProductID, m.WarehouseID, m.QuantityDelta, string(m.Kind), m.ReferenceType, nullUUID(m.ReferenceID), m.BatchNumber, m.UnitCost, m.ExpiryDate, m.Note, nullInt(m.CreatedBy)).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == openingBalanceConstraint {
			return 0, ErrDuplicateOpeningBalance
		}
		return 0, err
	}
	return id, nil
}

func (t *txLedger) HasOpeningBalance(ctx context.Context, productID, warehouseID int64) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM movements WHERE product_id=$1 AND warehouse_id=$2 AND kind=$3)`,
		productID, warehouseID, string(KindOpeningBalance)).Scan(&exists)
	return exists, err
}

func nullUUID(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
