package checkout

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetInvoice(ctx context.Context, id int64) (Invoice, []InvoiceLine, error)
}

// CatalogPort resolves product references and list prices.
type CatalogPort interface {
	CheckRefs(ctx context.Context, productID, warehouseID int64) error
	SellingPrice(ctx context.Context, productID int64) (decimal.Decimal, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// InvalidatorPort is notified after committed postings.
type InvalidatorPort interface {
	Bump(ctx context.Context) error
}

// Service is the reservation and deduction engine. Validate-then-apply runs
// as one serialized operation per stock row: every row is locked before any
// availability check, so two checkouts racing for the last unit cannot both
// pass validation.
type Service struct {
	repo        RepositoryPort
	catalog     CatalogPort
	audit       AuditPort
	invalidator InvalidatorPort
	meter       ledger.MeterPort
}

// NewService constructs the checkout engine.
func NewService(repo RepositoryPort, catalog CatalogPort, audit AuditPort, invalidator InvalidatorPort) *Service {
	return &Service{repo: repo, catalog: catalog, audit: audit, invalidator: invalidator}
}

// SetMeter attaches a movement counter. Nil meters are ignored.
func (s *Service) SetMeter(meter ledger.MeterPort) {
	s.meter = meter
}

// Checkout deducts all lines and produces an invoice, or mutates nothing.
// Shortfalls abort with *InsufficientStockError listing every offending
// product with its requested and available quantities.
func (s *Service) Checkout(ctx context.Context, input Input) (Receipt, error) {
	lines, err := s.normalize(ctx, input)
	if err != nil {
		return Receipt{}, err
	}

	prices := make(map[int64]decimal.Decimal, len(lines))
	for _, line := range lines {
		price := decimal.Zero
		if s.catalog != nil {
			price, err = s.catalog.SellingPrice(ctx, line.ProductID)
			if err != nil {
				return Receipt{}, err
			}
		}
		prices[line.ProductID] = price
	}

	ref := uuid.New()
	invoice := Invoice{
		Ref:         ref,
		Number:      fmt.Sprintf("INV-%d", time.Now().UnixNano()),
		CustomerID:  input.CustomerID,
		WarehouseID: input.WarehouseID,
		Status:      InvoiceStatusPaid,
	}
	var receiptLines []InvoiceLine
	var results []ledger.Posted

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		// The callback may re-run after a serialization retry.
		results = results[:0]

		// Lock every row up front, in pair order, then check availability
		// across all lines so the error can carry the full shortfall list.
		var short []ShortItem
		for _, line := range lines {
			record, err := tx.GetStockForUpdate(ctx, line.ProductID, input.WarehouseID)
			if err != nil && !errors.Is(err, ledger.ErrStockNotFound) {
				return err
			}
			if record.Quantity < line.Quantity {
				short = append(short, ShortItem{ProductID: line.ProductID, Requested: line.Quantity, Available: record.Quantity})
			}
		}
		if len(short) > 0 {
			return &InsufficientStockError{Items: short}
		}

		total := decimal.Zero
		receiptLines = make([]InvoiceLine, 0, len(lines))
		for _, line := range lines {
			posted, err := ledger.Apply(ctx, tx, ledger.PostInput{
				ProductID:     line.ProductID,
				WarehouseID:   input.WarehouseID,
				QuantityDelta: -line.Quantity,
				Kind:          ledger.KindSaleDeduction,
				ReferenceType: "INVOICE",
				ReferenceID:   ref.String(),
				Note:          fmt.Sprintf("sale %s", invoice.Number),
				ActorID:       input.ActorID,
			})
			if err != nil {
				return err
			}
			results = append(results, posted)
			price := prices[line.ProductID]
			lineTotal := price.Mul(decimal.NewFromInt(line.Quantity))
			total = total.Add(lineTotal)
			receiptLines = append(receiptLines, InvoiceLine{
				ProductID:  line.ProductID,
				Quantity:   line.Quantity,
				UnitPrice:  price,
				LineTotal:  lineTotal,
				MovementID: posted.MovementID,
			})
		}

		invoice.Total = total
		invoiceID, err := tx.CreateInvoice(ctx, invoice)
		if err != nil {
			return err
		}
		invoice.ID = invoiceID
		for i := range receiptLines {
			receiptLines[i].InvoiceID = invoiceID
			if err := tx.InsertInvoiceLine(ctx, receiptLines[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Receipt{}, err
	}

	if s.invalidator != nil {
		_ = s.invalidator.Bump(ctx)
	}
	ledger.ObservePosted(s.meter, results)
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   "checkout:commit",
			Entity:   "invoice",
			EntityID: invoice.Number,
			Meta:     map[string]any{"customer_id": input.CustomerID, "lines": len(receiptLines), "total": invoice.Total.String()},
		})
	}
	return Receipt{Invoice: invoice, Lines: receiptLines}, nil
}

// GetInvoice returns a committed sale.
func (s *Service) GetInvoice(ctx context.Context, id int64) (Invoice, []InvoiceLine, error) {
	return s.repo.GetInvoice(ctx, id)
}

// normalize validates input, merges duplicate product lines, and fixes the
// deterministic lock order.
func (s *Service) normalize(ctx context.Context, input Input) ([]Line, error) {
	if input.CustomerID <= 0 || input.WarehouseID <= 0 || len(input.Items) == 0 {
		return nil, fmt.Errorf("%w: customer, warehouse, and items required", ErrValidation)
	}
	merged := make(map[int64]int64, len(input.Items))
	for _, item := range input.Items {
		if item.ProductID <= 0 || item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: product %d quantity must be positive", ErrValidation, item.ProductID)
		}
		merged[item.ProductID] += item.Quantity
	}
	lines := make([]Line, 0, len(merged))
	for productID, quantity := range merged {
		if s.catalog != nil {
			if err := s.catalog.CheckRefs(ctx, productID, input.WarehouseID); err != nil {
				return nil, err
			}
		}
		lines = append(lines, Line{ProductID: productID, Quantity: quantity})
	}
	sort.Slice(lines, func(a, b int) bool { return lines[a].ProductID < lines[b].ProductID })
	return lines, nil
}
