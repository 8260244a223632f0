package catalog

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
)

// Service coordinates catalog operations.
type Service struct {
	repo Repository
}

// NewService builds Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) ListProducts(ctx context.Context, filters ListFilters) ([]Product, int, error) {
	return s.repo.ListProducts(ctx, filters)
}

func (s *Service) GetProduct(ctx context.Context, id int64) (Product, error) {
	if id <= 0 {
		return Product{}, fmt.Errorf("%w: invalid product id", httpx.ErrValidation)
	}
	return s.repo.GetProduct(ctx, id)
}

func (s *Service) CreateProduct(ctx context.Context, p Product) (Product, error) {
	if err := validateProduct(p); err != nil {
		return Product{}, err
	}
	return s.repo.CreateProduct(ctx, p)
}

func (s *Service) UpdateProduct(ctx context.Context, id int64, p Product) error {
	if id <= 0 {
		return fmt.Errorf("%w: invalid product id", httpx.ErrValidation)
	}
	if err := validateProduct(p); err != nil {
		return err
	}
	return s.repo.UpdateProduct(ctx, id, p)
}

func (s *Service) ListWarehouses(ctx context.Context, filters ListFilters) ([]Warehouse, int, error) {
	return s.repo.ListWarehouses(ctx, filters)
}

func (s *Service) GetWarehouse(ctx context.Context, id int64) (Warehouse, error) {
	if id <= 0 {
		return Warehouse{}, fmt.Errorf("%w: invalid warehouse id", httpx.ErrValidation)
	}
	return s.repo.GetWarehouse(ctx, id)
}

func (s *Service) CreateWarehouse(ctx context.Context, w Warehouse) (Warehouse, error) {
	if err := validateWarehouse(w); err != nil {
		return Warehouse{}, err
	}
	if w.Kind == "" {
		w.Kind = WarehouseKindGeneral
	}
	return s.repo.CreateWarehouse(ctx, w)
}

func (s *Service) UpdateWarehouse(ctx context.Context, id int64, w Warehouse) error {
	if id <= 0 {
		return fmt.Errorf("%w: invalid warehouse id", httpx.ErrValidation)
	}
	if err := validateWarehouse(w); err != nil {
		return err
	}
	return s.repo.UpdateWarehouse(ctx, id, w)
}

// SellingPrice returns the list price used for invoice lines.
func (s *Service) SellingPrice(ctx context.Context, productID int64) (decimal.Decimal, error) {
	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return decimal.Zero, err
	}
	return product.SellingPrice, nil
}

// CheckRefs verifies that the referenced product and warehouse exist and are
// active. Processors call this before touching stock.
func (s *Service) CheckRefs(ctx context.Context, productID, warehouseID int64) error {
	ok, err := s.repo.ProductExists(ctx, productID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: product %d", httpx.ErrNotFound, productID)
	}
	ok, err = s.repo.WarehouseExists(ctx, warehouseID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: warehouse %d", httpx.ErrNotFound, warehouseID)
	}
	return nil
}
