package receiving

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Purchase order lifecycle statuses.
type POStatus string

const (
	POStatusOpen      POStatus = "OPEN"
	POStatusReceived  POStatus = "RECEIVED"
	POStatusCancelled POStatus = "CANCELLED"
)

// Goods-received note statuses. A note is append-only once it leaves
// RECEIVING: COMPLETE and PARTIAL are terminal, CANCELLED only from DRAFT.
type GRNStatus string

const (
	GRNStatusDraft     GRNStatus = "DRAFT"
	GRNStatusReceiving GRNStatus = "RECEIVING"
	GRNStatusComplete  GRNStatus = "COMPLETE"
	GRNStatusPartial   GRNStatus = "PARTIAL"
	GRNStatusCancelled GRNStatus = "CANCELLED"
)

// GRN sources distinguish purchase receipts from opening-stock containers.
const (
	SourcePurchase = "PURCHASE"
	SourceOpening  = "OPENING"
)

// PurchaseOrder carries the expected quantities a receipt is checked against.
type PurchaseOrder struct {
	ID           int64     `json:"id"`
	Number       string    `json:"number"`
	SupplierID   int64     `json:"supplier_id"`
	WarehouseID  int64     `json:"warehouse_id"`
	Status       POStatus  `json:"status"`
	ExpectedDate time.Time `json:"expected_date"`
	Notes        string    `json:"notes,omitempty"`
}

// POLine is one ordered item.
type POLine struct {
	ID        int64           `json:"id"`
	POID      int64           `json:"po_id"`
	ProductID int64           `json:"product_id"`
	Ordered   int64           `json:"ordered"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
}

// GRN groups the movements of one receiving event. Ref is the causal
// reference carried by every movement the note produces.
type GRN struct {
	ID          int64      `json:"id"`
	Ref         uuid.UUID  `json:"ref"`
	Number      string     `json:"number"`
	POID        int64      `json:"po_id,omitempty"`
	SupplierID  int64      `json:"supplier_id,omitempty"`
	WarehouseID int64      `json:"warehouse_id"`
	Status      GRNStatus  `json:"status"`
	Source      string     `json:"source"`
	ReceivedAt  time.Time  `json:"received_at"`
	Notes       string     `json:"notes,omitempty"`
}

// GRNLine tracks received and damaged counts per product. Damaged units are
// a sub-ledger: they never increase usable stock.
type GRNLine struct {
	ID        int64           `json:"id"`
	GRNID     int64           `json:"grn_id"`
	ProductID int64           `json:"product_id"`
	Ordered   int64           `json:"ordered"`
	Received  int64           `json:"received"`
	Damaged   int64           `json:"damaged"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	Remarks   string          `json:"remarks,omitempty"`
}

// LineInput is one entry pass over a line while the note is in RECEIVING.
type LineInput struct {
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
	Received  int64  `json:"received_qty" validate:"gte=0"`
	Damaged   int64  `json:"damaged_qty" validate:"gte=0"`
	Remarks   string `json:"remarks,omitempty"`
}

// LineVariance is ordered minus received, surfaced per line on finalize.
type LineVariance struct {
	ProductID int64 `json:"product_id"`
	Ordered   int64 `json:"ordered"`
	Received  int64 `json:"received"`
	Variance  int64 `json:"variance"`
}

// FinalizeResult reports the terminal status and per-line variance.
type FinalizeResult struct {
	GRNID    int64          `json:"grn_id"`
	Number   string         `json:"number"`
	Status   GRNStatus      `json:"status"`
	Variance []LineVariance `json:"variance"`
}

var (
	// ErrInvalidState occurs when an action violates the status workflow.
	ErrInvalidState = errors.New("receiving: invalid state transition")
	// ErrInvalidLine indicates a line breaking damaged <= received <= ordered.
	ErrInvalidLine = errors.New("receiving: invalid line quantities")
	// ErrNotFound indicates a missing record.
	ErrNotFound = errors.New("receiving: not found")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("receiving: invalid input")
)
