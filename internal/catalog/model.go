package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a catalog product. The ledger only references products
// by id; pricing attributes are inputs supplied to checkout.
type Product struct {
	ID           int64           `json:"id"`
	SKU          string          `json:"sku"`
	Name         string          `json:"name"`
	Unit         string          `json:"unit"`
	CostPrice    decimal.Decimal `json:"cost_price"`
	SellingPrice decimal.Decimal `json:"selling_price"`
	IsActive     bool            `json:"is_active"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// WarehouseKind enumerates supported warehouse types.
type WarehouseKind string

const (
	WarehouseKindGeneral WarehouseKind = "GENERAL"
	WarehouseKindRetail  WarehouseKind = "RETAIL"
	WarehouseKindTransit WarehouseKind = "TRANSIT"
)

// Warehouse represents a storage location referenced by stock records.
type Warehouse struct {
	ID        int64         `json:"id"`
	Code      string        `json:"code"`
	Name      string        `json:"name"`
	Kind      WarehouseKind `json:"kind"`
	Capacity  int64         `json:"capacity"`
	IsActive  bool          `json:"is_active"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// ListFilters narrows catalog listings.
type ListFilters struct {
	Search   string
	IsActive *bool
	Page     int
	Limit    int
}
