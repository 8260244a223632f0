package reporting

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
)

type mockRepo struct {
	stock      []ledger.StockRecord
	stockCalls int
	movements  []ledger.Movement
	totals     []ledger.PairTotal
}

func (m *mockRepo) ListStock(ctx context.Context, warehouseID int64) ([]ledger.StockRecord, error) {
	m.stockCalls++
	if warehouseID == 0 {
		return m.stock, nil
	}
	var out []ledger.StockRecord
	for _, record := range m.stock {
		if record.WarehouseID == warehouseID {
			out = append(out, record)
		}
	}
	return out, nil
}

func (m *mockRepo) ListMovements(ctx context.Context, filter ledger.MovementFilter) ([]ledger.Movement, error) {
	return m.movements, nil
}

func (m *mockRepo) ListPairTotals(ctx context.Context) ([]ledger.PairTotal, error) {
	return m.totals, nil
}

func newTestService(t *testing.T, repo *mockRepo) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewService(repo, NewCache(client, time.Minute))
}

func TestSnapshotCachesUntilBump(t *testing.T) {
	repo := &mockRepo{stock: []ledger.StockRecord{
		{ProductID: 1, WarehouseID: 1, Quantity: 100},
		{ProductID: 2, WarehouseID: 1, Quantity: 5},
	}}
	svc := newTestService(t, repo)
	ctx := context.Background()

	levels, err := svc.Snapshot(ctx, 0)
	require.NoError(t, err)
	require.Len(t, levels, 2)
	require.Equal(t, 1, repo.stockCalls)

	_, err = svc.Snapshot(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, 1, repo.stockCalls)

	require.NoError(t, svc.cache.Bump(ctx))
	_, err = svc.Snapshot(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, 2, repo.stockCalls)
}

func TestLowStockFiltersByThreshold(t *testing.T) {
	repo := &mockRepo{stock: []ledger.StockRecord{
		{ProductID: 1, WarehouseID: 1, Quantity: 100},
		{ProductID: 2, WarehouseID: 1, Quantity: 5},
		{ProductID: 3, WarehouseID: 2, Quantity: 0},
	}}
	svc := newTestService(t, repo)

	low, err := svc.LowStock(context.Background(), 0, 10)
	require.NoError(t, err)
	require.Len(t, low, 2)
	require.EqualValues(t, 2, low[0].ProductID)
	require.EqualValues(t, 3, low[1].ProductID)
}

func TestGetOverview(t *testing.T) {
	repo := &mockRepo{stock: []ledger.StockRecord{
		{ProductID: 1, WarehouseID: 1, Quantity: 100},
		{ProductID: 2, WarehouseID: 1, Quantity: 5},
	}}
	svc := newTestService(t, repo)

	overview, err := svc.GetOverview(context.Background(), 0, 10)
	require.NoError(t, err)
	require.Equal(t, 2, overview.Pairs)
	require.EqualValues(t, 105, overview.TotalQuantity)
	require.Len(t, overview.LowStock, 1)
}

func TestCheckDriftFlagsDisagreement(t *testing.T) {
	repo := &mockRepo{
		stock: []ledger.StockRecord{
			{ProductID: 1, WarehouseID: 1, Quantity: 100},
			{ProductID: 2, WarehouseID: 1, Quantity: 7},
		},
		totals: []ledger.PairTotal{
			{ProductID: 1, WarehouseID: 1, Sum: 100},
			{ProductID: 2, WarehouseID: 1, Sum: 9},
			{ProductID: 3, WarehouseID: 1, Sum: 4},
		},
	}
	svc := newTestService(t, repo)

	drift, err := svc.CheckDrift(context.Background())
	require.NoError(t, err)
	require.Len(t, drift, 2)
}

func TestWriteStockCSV(t *testing.T) {
	var buf bytes.Buffer
	err := WriteStockCSV(&buf, []StockLevel{{ProductID: 1, WarehouseID: 2, Quantity: 30}})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	require.Equal(t, "Product ID,Warehouse ID,Quantity", lines[0])
	require.Equal(t, "1,2,30", lines[1])
}
