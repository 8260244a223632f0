package jobs

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

type fakeEnqueuer struct {
	reconciles int
	lowStock   []LowStockScanPayload
}

func (f *fakeEnqueuer) EnqueueReconcile(ctx context.Context, at time.Time) (*asynq.TaskInfo, error) {
	f.reconciles++
	return &asynq.TaskInfo{ID: "task-1", Queue: QueueDefault, Type: TaskLedgerReconcile}, nil
}

func (f *fakeEnqueuer) EnqueueLowStockScan(ctx context.Context, payload LowStockScanPayload) (*asynq.TaskInfo, error) {
	f.lowStock = append(f.lowStock, payload)
	return &asynq.TaskInfo{ID: "task-2", Queue: QueueDefault, Type: TaskLowStockScan}, nil
}

func newJobsRouter(enqueuer Enqueuer) http.Handler {
	h := NewHandler(nil, enqueuer, slog.Default())
	r := chi.NewRouter()
	r.Route("/jobs", h.MountRoutes)
	return r
}

func TestHandlerEnqueuesReconcile(t *testing.T) {
	enqueuer := &fakeEnqueuer{}
	router := newJobsRouter(enqueuer)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs/reconcile", nil))

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, 1, enqueuer.reconciles)
	require.Contains(t, rec.Body.String(), "task-1")
}

func TestHandlerEnqueuesLowStockScanWithPayload(t *testing.T) {
	enqueuer := &fakeEnqueuer{}
	router := newJobsRouter(enqueuer)

	body := strings.NewReader(`{"warehouse_id": 2, "threshold": 5}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs/lowstock-scan", body))

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, enqueuer.lowStock, 1)
	require.EqualValues(t, 2, enqueuer.lowStock[0].WarehouseID)
	require.EqualValues(t, 5, enqueuer.lowStock[0].Threshold)
}

func TestHandlerRejectsEnqueueWithoutQueue(t *testing.T) {
	router := newJobsRouter(nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs/reconcile", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
