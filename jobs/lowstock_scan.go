package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/meridian-erp/meridian-erp/internal/jobs"
	"github.com/meridian-erp/meridian-erp/internal/reporting"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

const (
	// TaskLowStockScan reports products whose on-hand quantity fell to the threshold.
	TaskLowStockScan = "lowstock:scan"
)

// LowStockScanPayload configures a low stock scan.
type LowStockScanPayload struct {
	WarehouseID int64 `json:"warehouse_id"`
	Threshold   int64 `json:"threshold"`
}

// NewLowStockScanTask creates an Asynq task for a low stock scan.
func NewLowStockScanTask(payload LowStockScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLowStockScan, data), nil
}

// LowStockScanJob walks the stock snapshot and records an audit entry for
// every pair at or below the threshold.
type LowStockScanJob struct {
	Reporting *reporting.Service
	Audit     *shared.AuditLogger
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewLowStockScanJob wires dependencies for the low stock handler.
func NewLowStockScanJob(reportingSvc *reporting.Service, audit *shared.AuditLogger, logger *slog.Logger, metrics *jobmetrics.Metrics) *LowStockScanJob {
	return &LowStockScanJob{Reporting: reportingSvc, Audit: audit, Logger: logger, Metrics: metrics}
}

// Handle executes the low stock scan.
func (j *LowStockScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Reporting == nil {
		return errors.New("lowstock scan: handler not configured")
	}
	var payload LowStockScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Threshold <= 0 {
		payload.Threshold = 10
	}

	tracker := j.metrics().Track(TaskLowStockScan)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	start := time.Now()
	logger := j.logger().With(
		slog.Int64("warehouse_id", payload.WarehouseID),
		slog.Int64("threshold", payload.Threshold),
	)
	logger.Info("starting low stock scan")

	low, err := j.Reporting.LowStock(ctx, payload.WarehouseID, payload.Threshold)
	if err != nil {
		resultErr = err
		logger.Error("scan failed", slog.Any("error", err))
		return resultErr
	}

	for _, item := range low {
		logger.Warn("low stock",
			slog.Int64("product_id", item.ProductID),
			slog.Int64("warehouse_id", item.WarehouseID),
			slog.Int64("quantity", item.Quantity),
		)
		if j.Audit == nil {
			continue
		}
		if err := j.Audit.Record(ctx, shared.AuditLog{
			Action:   "lowstock:flag",
			Entity:   "stock_record",
			EntityID: fmt.Sprintf("%d:%d", item.ProductID, item.WarehouseID),
			Meta: map[string]any{
				"quantity":  item.Quantity,
				"threshold": payload.Threshold,
			},
		}); err != nil {
			logger.Warn("audit write", slog.Any("error", err))
		}
	}

	logger.Info("completed low stock scan",
		slog.Int("flagged", len(low)),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

func (j *LowStockScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLowStockScan))
	}
	return slog.Default().With(slog.String("job", TaskLowStockScan))
}

func (j *LowStockScanJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
