package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/bleu-ims/stockledger/internal/jobs"
	"github.com/bleu-ims/stockledger/internal/stock"
)

// ReconcileSource lists items whose aggregate disagrees with their batches.
type ReconcileSource interface {
	Reconcile(ctx context.Context, category stock.Category) ([]stock.ReconcileRow, error)
}

// ReconcileJob reports aggregate/batch drift. It never corrects anything.
type ReconcileJob struct {
	Source  ReconcileSource
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewReconcileJob initialises the reconciliation handler.
func NewReconcileJob(source ReconcileSource, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReconcileJob {
	return &ReconcileJob{
		Source:  source,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the reconciliation report.
func (j *ReconcileJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Source == nil {
		return errors.New("reconcile: handler not configured")
	}
	var payload ReconcilePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	categories, err := parseCategories(payload.Categories)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	start := j.clock()
	tracker := j.Metrics.Track(TaskReconcile)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	logger.Info("starting stock reconciliation", slog.Int("categories", len(categories)))

	total := 0
	for _, category := range categories {
		rows, err := j.Source.Reconcile(ctx, category)
		if err != nil {
			resultErr = fmt.Errorf("reconcile %s: %w", category, err)
			logger.Error("reconciliation failed", slog.String("category", string(category)), slog.Any("error", err))
			return resultErr
		}
		for _, row := range rows {
			logger.Warn("stock drift detected",
				slog.String("category", string(category)),
				slog.Int64("item_id", row.ItemID),
				slog.String("name", row.Name),
				slog.String("aggregate", row.Aggregate.String()),
				slog.String("batch_total", row.BatchTotal.String()),
				slog.String("drift", row.Drift.String()),
				slog.Int("open_batches", row.OpenBatches),
			)
		}
		j.Metrics.SetDrift(string(category), len(rows))
		total += len(rows)
	}

	logger.Info("completed stock reconciliation",
		slog.Int("drifted_items", total),
		slog.Duration("duration", j.clock().Sub(start)),
	)
	return nil
}

func parseCategories(raw []string) ([]stock.Category, error) {
	if len(raw) == 0 {
		return stock.Categories, nil
	}
	out := make([]stock.Category, 0, len(raw))
	for _, r := range raw {
		c, err := stock.ParseCategory(r)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (j *ReconcileJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default().With(slog.String("job", TaskReconcile))
	}
	return j.Logger.With(slog.String("job", TaskReconcile))
}

func itemKey(id int64) string {
	return strconv.FormatInt(id, 10)
}
