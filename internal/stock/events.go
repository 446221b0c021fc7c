package stock

import (
	"context"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// EventType names a committed ledger change.
type EventType string

const (
	EventItemCreated    EventType = "stock.item_created"
	EventItemUpdated    EventType = "stock.item_updated"
	EventItemDeleted    EventType = "stock.item_deleted"
	EventRestocked      EventType = "stock.restocked"
	EventConsumed       EventType = "stock.consumed"
	EventBatchCorrected EventType = "stock.batch_corrected"
)

// LedgerEvent is published after a ledger transaction commits.
type LedgerEvent struct {
	Type        EventType          `json:"type"`
	RequestID   string             `json:"request_id,omitempty"`
	Category    Category           `json:"category"`
	ItemID      int64              `json:"item_id"`
	Name        string             `json:"name"`
	Quantity    decimal.Decimal    `json:"quantity"`
	Unit        string             `json:"unit"`
	Status      Status             `json:"status"`
	BatchID     *int64             `json:"batch_id,omitempty"`
	Consumption []ConsumptionEvent `json:"consumption,omitempty"`
	Actor       string             `json:"actor,omitempty"`
	OccurredAt  time.Time          `json:"occurred_at"`
}

// Key partitions events by item so a consumer sees one item's changes in order.
func (e LedgerEvent) Key() string {
	return string(e.Category) + ":" + strconv.FormatInt(e.ItemID, 10)
}

// EventPublisher ships committed ledger events to downstream consumers.
type EventPublisher interface {
	PublishJSON(ctx context.Context, key string, v any) error
}

// AlertEnqueuer schedules a low-stock notification.
type AlertEnqueuer interface {
	EnqueueLowStock(ctx context.Context, alert LowStockAlert) error
}
