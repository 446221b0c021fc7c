package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"

	"github.com/bleu-ims/stockledger/internal/stock"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueAlerts carries low-stock notifications ahead of housekeeping.
	QueueAlerts = "alerts"

	// TaskLowStockAlert notifies that an item crossed into Low Stock or Not Available.
	TaskLowStockAlert = "stock:low_stock_alert"
	// TaskReconcile compares item aggregates against their batches.
	TaskReconcile = "stock:reconcile"
	// TaskIdempotencyCleanup purges expired idempotency keys.
	TaskIdempotencyCleanup = "stock:idempotency_cleanup"
)

// LowStockAlertPayload describes the item needing attention.
type LowStockAlertPayload struct {
	ItemID       int64           `json:"item_id"`
	Category     string          `json:"category"`
	Name         string          `json:"name"`
	InStock      decimal.Decimal `json:"in_stock"`
	Unit         string          `json:"unit"`
	ReorderLevel decimal.Decimal `json:"reorder_level"`
	Status       string          `json:"status"`
	RaisedAt     time.Time       `json:"raised_at"`
}

// NewLowStockAlertTask constructs an Asynq task from a ledger alert.
func NewLowStockAlertTask(alert stock.LowStockAlert, raisedAt time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(LowStockAlertPayload{
		ItemID:       alert.ItemID,
		Category:     string(alert.Category),
		Name:         alert.Name,
		InStock:      alert.InStock,
		Unit:         alert.Unit,
		ReorderLevel: alert.ReorderLevel,
		Status:       string(alert.Status),
		RaisedAt:     raisedAt,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLowStockAlert, body, asynq.Queue(QueueAlerts), asynq.MaxRetry(5)), nil
}

// lowStockTaskID collapses repeated alerts for the same item and status while
// one is still queued.
func lowStockTaskID(alert stock.LowStockAlert) string {
	return fmt.Sprintf("lowstock:%s:%d:%s", alert.Category, alert.ItemID, alert.Status)
}

// ReconcilePayload selects the categories to reconcile. Empty means all.
type ReconcilePayload struct {
	Categories   []string  `json:"categories,omitempty"`
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewReconcileTask constructs an Asynq task for the reconciliation report.
func NewReconcileTask(payload ReconcilePayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReconcile, body, asynq.Queue(QueueDefault), asynq.MaxRetry(1)), nil
}

// IdempotencyCleanupPayload carries the retention window.
type IdempotencyCleanupPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(IdempotencyCleanupPayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}
