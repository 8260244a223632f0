package openingstock

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Row is one opening-balance entry targeting a (product, warehouse) pair.
// SourceRow keeps the position in the uploaded file or payload so batch
// results can point back at the offending line.
type Row struct {
	SourceRow   int
	ProductID   int64
	WarehouseID int64
	Quantity    int64
	BatchNumber string
	UnitCost    decimal.Decimal
	ExpiryDate  *time.Time
}

// ManualLine is one reviewed line of a manual opening-stock submission.
type ManualLine struct {
	ProductID   int64           `json:"product_id" validate:"required,gt=0"`
	Quantity    int64           `json:"quantity" validate:"required,gt=0"`
	BatchNumber string          `json:"batch_number,omitempty"`
	UnitCost    decimal.Decimal `json:"unit_cost,omitempty"`
	ExpiryDate  *time.Time      `json:"expiry_date,omitempty"`
}

// ManualInput is an all-or-nothing submission against one warehouse.
type ManualInput struct {
	WarehouseID int64        `json:"warehouse_id" validate:"required,gt=0"`
	Items       []ManualLine `json:"items" validate:"required,min=1,dive"`
	Notes       string       `json:"notes,omitempty"`
	ActorID     int64        `json:"-"`
}

// RowResult reports the outcome of one bulk row.
type RowResult struct {
	Row     int    `json:"row"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// BulkResult summarises a bulk import. Failed rows never abort the batch.
type BulkResult struct {
	Total      int         `json:"total"`
	Successful int         `json:"successful"`
	Failed     int         `json:"failed"`
	Results    []RowResult `json:"results"`
}

// GRNRef identifies the receiving container that groups opening movements.
type GRNRef struct {
	ID     int64
	Ref    uuid.UUID
	Number string
}

var (
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("openingstock: invalid input")
	// ErrEmptyFile indicates an upload with no parsable data rows.
	ErrEmptyFile = errors.New("openingstock: no data rows")
)
