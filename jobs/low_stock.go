package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/bleu-ims/stockledger/internal/jobs"
	"github.com/bleu-ims/stockledger/internal/stock"
)

// LowStockAlertJob forwards low-stock alerts to the event stream so
// purchasing can react.
type LowStockAlertJob struct {
	Publisher stock.EventPublisher
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewLowStockAlertJob initialises the alert handler.
func NewLowStockAlertJob(publisher stock.EventPublisher, logger *slog.Logger, metrics *jobmetrics.Metrics) *LowStockAlertJob {
	return &LowStockAlertJob{Publisher: publisher, Logger: logger, Metrics: metrics}
}

// Handle processes TaskLowStockAlert tasks.
func (j *LowStockAlertJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil {
		return errors.New("low stock alert: handler not configured")
	}
	var payload LowStockAlertPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := j.Metrics.Track(TaskLowStockAlert)
	defer func() { err = tracker.End(err) }()

	logger := j.logger().With(
		slog.String("category", payload.Category),
		slog.Int64("item_id", payload.ItemID),
		slog.String("status", payload.Status),
	)
	logger.Warn("low stock",
		slog.String("name", payload.Name),
		slog.String("in_stock", payload.InStock.String()),
		slog.String("unit", payload.Unit),
		slog.String("reorder_level", payload.ReorderLevel.String()),
	)
	if j.Publisher != nil {
		event := struct {
			Type string `json:"type"`
			LowStockAlertPayload
		}{Type: "stock.low_stock", LowStockAlertPayload: payload}
		key := payload.Category + ":" + itemKey(payload.ItemID)
		if err := j.Publisher.PublishJSON(ctx, key, event); err != nil {
			logger.Error("publish low stock alert", slog.Any("error", err))
			j.Metrics.AlertDelivered(payload.Category, "failed")
			return err
		}
	}
	j.Metrics.AlertDelivered(payload.Category, "delivered")
	return nil
}

func (j *LowStockAlertJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}
