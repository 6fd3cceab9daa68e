package jobs

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLowStockAlert reports one product that a sale left at or under min_stock.
	TaskLowStockAlert = "catalog:low_stock_alert"
	// TaskLowStockScan sweeps the catalog for products under min_stock.
	TaskLowStockScan = "catalog:low_stock_scan"
)

// LowStockAlertPayload describes the product to report.
type LowStockAlertPayload struct {
	ProductID uuid.UUID `json:"product_id"`
	Name      string    `json:"name"`
	StockQty  int       `json:"stock_qty"`
	MinStock  int       `json:"min_stock"`
}

// NewLowStockAlertTask constructs an Asynq task. One alert per product can be
// pending at a time; later sales of the same product are folded into it.
func NewLowStockAlertTask(payload LowStockAlertPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLowStockAlert, data,
		asynq.Queue(QueueDefault),
		asynq.TaskID("low-stock:"+payload.ProductID.String()),
		asynq.MaxRetry(3),
	), nil
}

// LowStockScanPayload carries scheduling metadata.
type LowStockScanPayload struct {
	Limit        int       `json:"limit"`
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewLowStockScanTask constructs an Asynq task for the catalog sweep.
func NewLowStockScanTask(limit int, at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(LowStockScanPayload{Limit: limit, ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLowStockScan, body, asynq.Queue(QueueDefault)), nil
}
