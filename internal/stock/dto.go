package stock

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bleu-ims/stockledger/internal/shared"
)

const dateLayout = "2006-01-02"

type createItemRequest struct {
	Name       string          `json:"name" validate:"required,max=120"`
	Quantity   decimal.Decimal `json:"quantity"`
	Unit       string          `json:"unit" validate:"omitempty,max=32"`
	DateAdded  string          `json:"date_added" validate:"omitempty,datetime=2006-01-02"`
	BestBefore string          `json:"best_before" validate:"omitempty,datetime=2006-01-02"`
	ExpiresOn  string          `json:"expires_on" validate:"omitempty,datetime=2006-01-02"`
}

type updateItemRequest struct {
	Name       *string          `json:"name" validate:"omitempty,min=1,max=120"`
	Quantity   *decimal.Decimal `json:"quantity"`
	Unit       *string          `json:"unit" validate:"omitempty,min=1,max=32"`
	BestBefore *string          `json:"best_before" validate:"omitempty,datetime=2006-01-02"`
	ExpiresOn  *string          `json:"expires_on" validate:"omitempty,datetime=2006-01-02"`
}

type restockRequest struct {
	Quantity  decimal.Decimal `json:"quantity"`
	Unit      string          `json:"unit" validate:"omitempty,max=32"`
	BatchDate string          `json:"batch_date" validate:"omitempty,datetime=2006-01-02"`
	LoggedBy  string          `json:"logged_by" validate:"omitempty,max=120"`
	Notes     string          `json:"notes" validate:"max=500"`
}

type updateBatchRequest struct {
	Remaining *decimal.Decimal `json:"quantity_remaining"`
	Unit      *string          `json:"unit" validate:"omitempty,min=1,max=32"`
	BatchDate *string          `json:"batch_date" validate:"omitempty,datetime=2006-01-02"`
	Notes     *string          `json:"notes" validate:"omitempty,max=500"`
}

type consumeRequest struct {
	Amount   decimal.Decimal `json:"amount"`
	Unit     string          `json:"unit" validate:"omitempty,max=32"`
	Reason   string          `json:"reason" validate:"required,max=120"`
	LoggedBy string          `json:"logged_by" validate:"omitempty,max=120"`
	Notes    string          `json:"notes" validate:"max=500"`
}

type itemResponse struct {
	ID         int64           `json:"id"`
	Category   string          `json:"category"`
	Name       string          `json:"name"`
	Quantity   decimal.Decimal `json:"quantity"`
	Unit       string          `json:"unit"`
	Status     Status          `json:"status"`
	DateAdded  string          `json:"date_added"`
	BestBefore *string         `json:"best_before,omitempty"`
	ExpiresOn  *string         `json:"expires_on,omitempty"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

type batchResponse struct {
	ID          int64           `json:"id"`
	ItemID      int64           `json:"item_id"`
	Remaining   decimal.Decimal `json:"quantity_remaining"`
	Unit        string          `json:"unit"`
	BatchDate   string          `json:"batch_date"`
	RestockedAt time.Time       `json:"restocked_at"`
	LoggedBy    string          `json:"logged_by"`
	Notes       string          `json:"notes"`
	Status      BatchStatus     `json:"status"`
}

type lowStockResponse struct {
	ItemID        int64           `json:"item_id"`
	Name          string          `json:"name"`
	Category      string          `json:"category"`
	InStock       decimal.Decimal `json:"in_stock"`
	Unit          string          `json:"unit"`
	ReorderLevel  decimal.Decimal `json:"reorder_level"`
	LastRestocked *time.Time      `json:"last_restocked"`
	Status        Status          `json:"status"`
}

type reconcileResponse struct {
	ItemID      int64           `json:"item_id"`
	Name        string          `json:"name"`
	Aggregate   decimal.Decimal `json:"aggregate"`
	BatchTotal  decimal.Decimal `json:"batch_total"`
	Drift       decimal.Decimal `json:"drift"`
	OpenBatches int             `json:"open_batches"`
}

func toItemResponse(item Item) itemResponse {
	return itemResponse{
		ID:         item.ID,
		Category:   item.Category.Label(),
		Name:       item.Name,
		Quantity:   item.Quantity,
		Unit:       item.Unit,
		Status:     item.Status,
		DateAdded:  item.DateAdded.Format(dateLayout),
		BestBefore: formatDate(item.BestBefore),
		ExpiresOn:  formatDate(item.ExpiresOn),
		UpdatedAt:  item.UpdatedAt,
	}
}

func toBatchResponse(b Batch) batchResponse {
	return batchResponse{
		ID:          b.ID,
		ItemID:      b.ItemID,
		Remaining:   b.Remaining,
		Unit:        b.Unit,
		BatchDate:   b.BatchDate.Format(dateLayout),
		RestockedAt: b.RestockedAt,
		LoggedBy:    b.LoggedBy,
		Notes:       b.Notes,
		Status:      b.Status,
	}
}

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(dateLayout)
	return &s
}

// parseDate reads an already validated YYYY-MM-DD value; empty yields nil.
func parseDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, fmt.Errorf("stock: invalid date %q: %w", raw, shared.ErrValidation)
	}
	return &t, nil
}
