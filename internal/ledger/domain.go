package ledger

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// MovementKind enumerates the closed set of supported stock movements.
type MovementKind string

const (
	// KindOpeningBalance seeds the first quantity of a product/warehouse pair.
	KindOpeningBalance MovementKind = "OPENING_BALANCE"
	// KindGoodsReceived records usable units received against a GRN.
	KindGoodsReceived MovementKind = "GOODS_RECEIVED"
	// KindSaleDeduction records units deducted by a committed sale.
	KindSaleDeduction MovementKind = "SALE_DEDUCTION"
	// KindAdjustment offsets an earlier movement; corrections never mutate history.
	KindAdjustment MovementKind = "ADJUSTMENT"
	// KindDamageWriteOff records damaged units for reporting. Zero store effect.
	KindDamageWriteOff MovementKind = "DAMAGE_WRITE_OFF"
)

// Valid reports whether the kind belongs to the closed enumeration.
func (k MovementKind) Valid() bool {
	switch k {
	case KindOpeningBalance, KindGoodsReceived, KindSaleDeduction, KindAdjustment, KindDamageWriteOff:
		return true
	}
	return false
}

// Movement is an immutable, signed quantity change recorded against a
// (product, warehouse) pair. The bigserial id doubles as the replay order.
type Movement struct {
	ID            int64           `json:"id"`
	ProductID     int64           `json:"product_id"`
	WarehouseID   int64           `json:"warehouse_id"`
	QuantityDelta int64           `json:"quantity_delta"`
	Kind          MovementKind    `json:"kind"`
	ReferenceType string          `json:"reference_type"`
	ReferenceID   string          `json:"reference_id"`
	BatchNumber   string          `json:"batch_number,omitempty"`
	UnitCost      decimal.Decimal `json:"unit_cost"`
	ExpiryDate    *time.Time      `json:"expiry_date,omitempty"`
	Note          string          `json:"note,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	CreatedBy     int64           `json:"created_by"`
}

// StockRecord is the materialized quantity per (product, warehouse) pair.
// It is a cache of the movement sums, never a second source of truth.
type StockRecord struct {
	ProductID   int64     `json:"product_id"`
	WarehouseID int64     `json:"warehouse_id"`
	Quantity    int64     `json:"quantity"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PostInput describes one movement to post.
type PostInput struct {
	ProductID     int64
	WarehouseID   int64
	QuantityDelta int64
	Kind          MovementKind
	ReferenceType string
	ReferenceID   string
	BatchNumber   string
	UnitCost      decimal.Decimal
	ExpiryDate    *time.Time
	Note          string
	ActorID       int64
}

// Posted reports the outcome of a committed movement.
type Posted struct {
	MovementID  int64
	ProductID   int64
	WarehouseID int64
	Kind        MovementKind
	NewQuantity int64
}

// MovementFilter narrows movement listings. AfterID makes replay restartable.
type MovementFilter struct {
	ProductID   int64
	WarehouseID int64
	Kind        MovementKind
	AfterID     int64
	Limit       int
}

// PairTotal is the signed movement sum for one pair, used by reconciliation.
type PairTotal struct {
	ProductID   int64
	WarehouseID int64
	Sum         int64
}

var (
	// ErrNegativeStock triggered when a movement would drive quantity below zero.
	ErrNegativeStock = errors.New("ledger: negative stock not allowed")
	// ErrInvalidQuantity indicates a zero or malformed quantity delta.
	ErrInvalidQuantity = errors.New("ledger: invalid quantity")
	// ErrInvalidKind indicates a kind outside the closed enumeration.
	ErrInvalidKind = errors.New("ledger: invalid movement kind")
	// ErrDuplicateOpeningBalance indicates the pair already has an opening balance.
	ErrDuplicateOpeningBalance = errors.New("ledger: opening balance already set")
	// ErrMovementNotFound indicates a missing movement row.
	ErrMovementNotFound = errors.New("ledger: movement not found")
)
