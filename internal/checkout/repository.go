package checkout

import (
	"context"
	"errors"

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

// TxRepository composes invoice writes with ledger posting so the deductions
// and the invoice referencing them commit as one unit.
type TxRepository interface {
	ledger.TxLedger
	CreateInvoice(ctx context.Context, inv Invoice) (int64, error)
	InsertInvoiceLine(ctx context.Context, line InvoiceLine) error
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

// GetInvoice returns an invoice with its lines.
func (r *Repository) GetInvoice(ctx context.Context, id int64) (Invoice, []InvoiceLine, error) {
	var inv Invoice
	err := r.pool.QueryRow(ctx, `
		SELECT id, ref, number, customer_id, warehouse_id, status, total, created_at
		FROM invoices WHERE id = $1
	`, id).Scan(&inv.ID, &inv.Ref, &inv.Number, &inv.CustomerID, &inv.WarehouseID, &inv.Status, &inv.Total, &inv.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, nil, ErrNotFound
		}
		return Invoice{}, nil, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, invoice_id, product_id, quantity, unit_price, line_total, movement_id
		FROM invoice_lines WHERE invoice_id = $1 ORDER BY id
	`, id)
	if err != nil {
		return Invoice{}, nil, err
	}
	defer rows.Close()
	var lines []InvoiceLine
	for rows.Next() {
		var line InvoiceLine
		if err := rows.Scan(&line.ID, &line.InvoiceID, &line.ProductID, &line.Quantity, &line.UnitPrice, &line.LineTotal, &line.MovementID); err != nil {
			return Invoice{}, nil, err
		}
		lines = append(lines, line)
	}
	return inv, lines, rows.Err()
}

func (t *txRepo) CreateInvoice(ctx context.Context, inv Invoice) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO invoices (ref, number, customer_id, warehouse_id, status, total)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, inv.Ref, inv.Number, inv.CustomerID, inv.WarehouseID, inv.Status, inv.Total).Scan(&id)
	return id, err
}

func (t *txRepo) InsertInvoiceLine(ctx context.Context, line InvoiceLine) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO invoice_lines (invoice_id, product_id, quantity, unit_price, line_total, movement_id)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, line.InvoiceID, line.ProductID, line.Quantity, line.UnitPrice, line.LineTotal, line.MovementID)
	return err
}
