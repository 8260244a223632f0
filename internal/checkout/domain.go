package checkout

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Line is one product a sale intends to deduct.
type Line struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int64 `json:"quantity" validate:"required,gt=0"`
}

// Input is a checkout request. The reservation it describes exists only for
// the duration of the transaction: fully committed or discarded.
type Input struct {
	CustomerID  int64  `json:"customer_id" validate:"required,gt=0"`
	WarehouseID int64  `json:"warehouse_id" validate:"required,gt=0"`
	Items       []Line `json:"items" validate:"required,min=1,dive"`
	ActorID     int64  `json:"-"`
}

// Invoice statuses.
type InvoiceStatus string

const (
	InvoiceStatusPaid InvoiceStatus = "PAID"
	InvoiceStatusVoid InvoiceStatus = "VOID"
)

// Invoice records a committed sale referencing its movements.
type Invoice struct {
	ID          int64           `json:"id"`
	Ref         uuid.UUID       `json:"ref"`
	Number      string          `json:"number"`
	CustomerID  int64           `json:"customer_id"`
	WarehouseID int64           `json:"warehouse_id"`
	Status      InvoiceStatus   `json:"status"`
	Total       decimal.Decimal `json:"total"`
	CreatedAt   time.Time       `json:"created_at"`
}

// InvoiceLine links one sold item to the movement that deducted it.
type InvoiceLine struct {
	ID         int64           `json:"id"`
	InvoiceID  int64           `json:"invoice_id"`
	ProductID  int64           `json:"product_id"`
	Quantity   int64           `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	LineTotal  decimal.Decimal `json:"line_total"`
	MovementID int64           `json:"movement_id"`
}

// Receipt is the success payload of a checkout.
type Receipt struct {
	Invoice Invoice       `json:"invoice"`
	Lines   []InvoiceLine `json:"lines"`
}

// ShortItem names one product whose requested quantity exceeds availability.
type ShortItem struct {
	ProductID int64 `json:"product_id"`
	Requested int64 `json:"requested"`
	Available int64 `json:"available"`
}

// InsufficientStockError aborts a checkout before any write. It carries every
// offending line so callers can show an actionable message instead of a
// retry prompt.
type InsufficientStockError struct {
	Items []ShortItem
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Items))
	for _, item := range e.Items {
		parts = append(parts, fmt.Sprintf("product %d requested %d available %d", item.ProductID, item.Requested, item.Available))
	}
	return "checkout: insufficient stock: " + strings.Join(parts, "; ")
}

var (
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("checkout: invalid input")
	// ErrNotFound indicates a missing invoice.
	ErrNotFound = errors.New("checkout: not found")
)
