package reporting

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
)

// RepositoryPort exposes the read side of the ledger. Reporting never
// mutates: it consumes store snapshots and movement history only.
type RepositoryPort interface {
	ListStock(ctx context.Context, warehouseID int64) ([]ledger.StockRecord, error)
	ListMovements(ctx context.Context, filter ledger.MovementFilter) ([]ledger.Movement, error)
	ListPairTotals(ctx context.Context) ([]ledger.PairTotal, error)
}

// StockLevel is one snapshot row.
type StockLevel struct {
	ProductID   int64 `json:"product_id"`
	WarehouseID int64 `json:"warehouse_id"`
	Quantity    int64 `json:"quantity"`
}

// Overview aggregates the dashboard numbers fetched in one call.
type Overview struct {
	TotalQuantity int64        `json:"total_quantity"`
	Pairs         int          `json:"pairs"`
	LowStock      []StockLevel `json:"low_stock"`
}

// Drift is one pair whose store row disagrees with its movement sum.
type Drift struct {
	ProductID    int64 `json:"product_id"`
	WarehouseID  int64 `json:"warehouse_id"`
	StoreQty     int64 `json:"store_qty"`
	MovementSum  int64 `json:"movement_sum"`
}

// Service serves read-only stock reports with versioned caching.
type Service struct {
	repo  RepositoryPort
	cache *Cache
}

// NewService constructs the reporting service.
func NewService(repo RepositoryPort, cache *Cache) *Service {
	return &Service{repo: repo, cache: cache}
}

// Snapshot returns current stock levels, optionally scoped to one warehouse.
func (s *Service) Snapshot(ctx context.Context, warehouseID int64) ([]StockLevel, error) {
	key, err := s.cache.BuildKey(ctx, "reporting", "snapshot", fmt.Sprintf("%d", warehouseID))
	if err != nil {
		return nil, err
	}
	var levels []StockLevel
	err = s.cache.FetchJSON(ctx, key, &levels, func(ctx context.Context) (interface{}, error) {
		return s.loadSnapshot(ctx, warehouseID)
	})
	return levels, err
}

// History replays movements for one pair, oldest first. AfterID restarts the
// replay from a known cursor.
func (s *Service) History(ctx context.Context, productID, warehouseID, afterID int64, limit int) ([]ledger.Movement, error) {
	if productID <= 0 || warehouseID <= 0 {
		return nil, fmt.Errorf("%w: product and warehouse required", ledger.ErrInvalidQuantity)
	}
	return s.repo.ListMovements(ctx, ledger.MovementFilter{
		ProductID:   productID,
		WarehouseID: warehouseID,
		AfterID:     afterID,
		Limit:       limit,
	})
}

// LowStock lists pairs at or below the threshold.
func (s *Service) LowStock(ctx context.Context, warehouseID, threshold int64) ([]StockLevel, error) {
	if threshold < 0 {
		threshold = 0
	}
	levels, err := s.Snapshot(ctx, warehouseID)
	if err != nil {
		return nil, err
	}
	low := make([]StockLevel, 0)
	for _, level := range levels {
		if level.Quantity <= threshold {
			low = append(low, level)
		}
	}
	return low, nil
}

// GetOverview fans the snapshot and low-stock reads out concurrently.
func (s *Service) GetOverview(ctx context.Context, warehouseID, threshold int64) (Overview, error) {
	var (
		levels []StockLevel
		low    []StockLevel
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		levels, err = s.Snapshot(gctx, warehouseID)
		return err
	})
	g.Go(func() error {
		var err error
		low, err = s.LowStock(gctx, warehouseID, threshold)
		return err
	})
	if err := g.Wait(); err != nil {
		return Overview{}, err
	}
	overview := Overview{Pairs: len(levels), LowStock: low}
	for _, level := range levels {
		overview.TotalQuantity += level.Quantity
	}
	return overview, nil
}

// CheckDrift compares every store row against its signed movement sum. A
// non-empty result means the core invariant has been violated.
func (s *Service) CheckDrift(ctx context.Context) ([]Drift, error) {
	var (
		levels []StockLevel
		totals []ledger.PairTotal
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		levels, err = s.loadSnapshot(gctx, 0)
		return err
	})
	g.Go(func() error {
		var err error
		totals, err = s.repo.ListPairTotals(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	type pair struct{ product, warehouse int64 }
	sums := make(map[pair]int64, len(totals))
	for _, total := range totals {
		sums[pair{total.ProductID, total.WarehouseID}] = total.Sum
	}
	var drift []Drift
	for _, level := range levels {
		sum := sums[pair{level.ProductID, level.WarehouseID}]
		if sum != level.Quantity {
			drift = append(drift, Drift{
				ProductID:   level.ProductID,
				WarehouseID: level.WarehouseID,
				StoreQty:    level.Quantity,
				MovementSum: sum,
			})
		}
		delete(sums, pair{level.ProductID, level.WarehouseID})
	}
	// Movement sums without a store row are drift too.
	for key, sum := range sums {
		if sum != 0 {
			drift = append(drift, Drift{ProductID: key.product, WarehouseID: key.warehouse, MovementSum: sum})
		}
	}
	return drift, nil
}

func (s *Service) loadSnapshot(ctx context.Context, warehouseID int64) ([]StockLevel, error) {
	records, err := s.repo.ListStock(ctx, warehouseID)
	if err != nil {
		return nil, err
	}
	levels := make([]StockLevel, 0, len(records))
	for _, record := range records {
		levels = append(levels, StockLevel{
			ProductID:   record.ProductID,
			WarehouseID: record.WarehouseID,
			Quantity:    record.Quantity,
		})
	}
	return levels, nil
}
