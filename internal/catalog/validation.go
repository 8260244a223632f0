package catalog

import (
	"fmt"
	"strings"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
)

func validateProduct(p Product) error {
	if strings.TrimSpace(p.SKU) == "" {
		return fmt.Errorf("%w: product sku is required", httpx.ErrValidation)
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: product name is required", httpx.ErrValidation)
	}
	if p.CostPrice.IsNegative() || p.SellingPrice.IsNegative() {
		return fmt.Errorf("%w: prices must be >= 0", httpx.ErrValidation)
	}
	return nil
}

func validateWarehouse(w Warehouse) error {
	if strings.TrimSpace(w.Code) == "" {
		return fmt.Errorf("%w: warehouse code is required", httpx.ErrValidation)
	}
	if strings.TrimSpace(w.Name) == "" {
		return fmt.Errorf("%w: warehouse name is required", httpx.ErrValidation)
	}
	if w.Capacity < 0 {
		return fmt.Errorf("%w: capacity must be >= 0", httpx.ErrValidation)
	}
	switch w.Kind {
	case "", WarehouseKindGeneral, WarehouseKindRetail, WarehouseKindTransit:
		return nil
	default:
		return fmt.Errorf("%w: unknown warehouse kind %q", httpx.ErrValidation, w.Kind)
	}
}
