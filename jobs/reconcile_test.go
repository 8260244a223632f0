package jobs

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/meridian-erp/meridian-erp/internal/jobs"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/observability"
	"github.com/meridian-erp/meridian-erp/internal/reporting"
)

type reconcileRepo struct {
	stock  []ledger.StockRecord
	totals []ledger.PairTotal
}

func (r *reconcileRepo) ListStock(ctx context.Context, warehouseID int64) ([]ledger.StockRecord, error) {
	return r.stock, nil
}

func (r *reconcileRepo) ListMovements(ctx context.Context, filter ledger.MovementFilter) ([]ledger.Movement, error) {
	return nil, nil
}

func (r *reconcileRepo) ListPairTotals(ctx context.Context) ([]ledger.PairTotal, error) {
	return r.totals, nil
}

func TestReconcileJobPublishesDriftCount(t *testing.T) {
	repo := &reconcileRepo{
		stock: []ledger.StockRecord{
			{ProductID: 1, WarehouseID: 9, Quantity: 100},
			{ProductID: 2, WarehouseID: 9, Quantity: 40},
		},
		totals: []ledger.PairTotal{
			{ProductID: 1, WarehouseID: 9, Sum: 100},
			{ProductID: 2, WarehouseID: 9, Sum: 35},
		},
	}
	obs := observability.NewMetrics()
	metrics := jobmetrics.NewMetrics(prometheus.NewRegistry())
	job := NewReconcileJob(reporting.NewService(repo, nil), obs, slog.Default(), metrics)

	task, err := NewReconcileTask(time.Now())
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	rr := httptest.NewRecorder()
	obs.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.True(t, strings.Contains(rr.Body.String(), "meridian_stock_drift_pairs 1"), "expected drift gauge in: %s", rr.Body.String())
}

func TestReconcileJobRejectsMalformedPayload(t *testing.T) {
	job := NewReconcileJob(reporting.NewService(&reconcileRepo{}, nil), nil, slog.Default(), jobmetrics.NewMetrics(prometheus.NewRegistry()))
	err := job.Handle(context.Background(), asynq.NewTask(TaskLedgerReconcile, []byte("{not json")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}
