package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-retail/internal/catalog"
	jobmetrics "github.com/odyssey-erp/odyssey-retail/internal/jobs"
)

// LowStockAlertJob reports products that dropped to or under their minimum.
type LowStockAlertJob struct {
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewLowStockAlertJob wires dependencies for the alert handler.
func NewLowStockAlertJob(logger *slog.Logger, metrics *jobmetrics.Metrics) *LowStockAlertJob {
	return &LowStockAlertJob{Logger: logger, Metrics: metrics}
}

// Handle processes TaskLowStockAlert tasks.
func (j *LowStockAlertJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil {
		return errors.New("low stock alert: handler not configured")
	}
	var payload LowStockAlertPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("low stock alert: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	tracker := j.Metrics.Track(TaskLowStockAlert)
	defer func() { err = tracker.End(err) }()

	j.logger().Warn("product under minimum stock",
		slog.String("product_id", payload.ProductID.String()),
		slog.String("name", payload.Name),
		slog.Int("stock_qty", payload.StockQty),
		slog.Int("min_stock", payload.MinStock))
	j.Metrics.AddLowStock(1)
	return nil
}

func (j *LowStockAlertJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

// LowStockLister is the catalog query the sweep depends on.
type LowStockLister interface {
	LowStock(ctx context.Context, limit int) (catalog.LowStockResult, error)
}

// LowStockScanJob logs a digest of every live product under min_stock.
type LowStockScanJob struct {
	Catalog LowStockLister
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewLowStockScanJob wires dependencies for the sweep handler.
func NewLowStockScanJob(lister LowStockLister, logger *slog.Logger, metrics *jobmetrics.Metrics) *LowStockScanJob {
	return &LowStockScanJob{
		Catalog: lister,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes TaskLowStockScan tasks.
func (j *LowStockScanJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Catalog == nil {
		return errors.New("low stock scan: handler not configured")
	}
	var payload LowStockScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("low stock scan: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.ScheduledFor.IsZero() {
		payload.ScheduledFor = j.now()
	}
	tracker := j.Metrics.Track(TaskLowStockScan)
	defer func() { err = tracker.End(err) }()

	logger := j.logger().With(slog.Time("scheduled_for", payload.ScheduledFor))
	res, err := j.Catalog.LowStock(ctx, payload.Limit)
	if err != nil {
		logger.Error("low stock scan", slog.Any("error", err))
		return err
	}
	for _, p := range res.Items {
		logger.Warn("product under minimum stock",
			slog.String("product_id", p.ID.String()),
			slog.String("sku", p.SKU),
			slog.Int("stock_qty", p.StockQty),
			slog.Int("min_stock", p.MinStock))
	}
	logger.Info("low stock scan finished", slog.Int("listed", len(res.Items)), slog.Int("total", res.Total))
	j.Metrics.AddLowStock(len(res.Items))
	return nil
}

func (j *LowStockScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *LowStockScanJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
