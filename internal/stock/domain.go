package stock

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bleu-ims/stockledger/internal/shared"
)

// Category partitions stock items. Names are unique within a category only.
type Category string

const (
	// CategoryIngredient covers perishable kitchen inputs measured by weight or volume.
	CategoryIngredient Category = "ingredient"
	// CategoryMaterial covers consumables such as cups and lids.
	CategoryMaterial Category = "material"
	// CategoryMerchandise covers sellable goods counted in pieces.
	CategoryMerchandise Category = "merchandise"
)

// Categories lists every category in display order.
var Categories = []Category{CategoryIngredient, CategoryMaterial, CategoryMerchandise}

// ParseCategory accepts singular or plural forms in any letter case.
func ParseCategory(raw string) (Category, error) {
	c := Category(strings.TrimSuffix(strings.ToLower(strings.TrimSpace(raw)), "s"))
	if !c.Valid() {
		return "", fmt.Errorf("stock: unknown category %q: %w", raw, shared.ErrValidation)
	}
	return c, nil
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryIngredient, CategoryMaterial, CategoryMerchandise:
		return true
	}
	return false
}

// Label returns the display label.
func (c Category) Label() string {
	switch c {
	case CategoryIngredient:
		return "Ingredient"
	case CategoryMaterial:
		return "Material"
	case CategoryMerchandise:
		return "Merchandise"
	}
	return string(c)
}

// Status is the availability classification derived from quantity.
type Status string

const (
	StatusAvailable    Status = "Available"
	StatusLowStock     Status = "Low Stock"
	StatusNotAvailable Status = "Not Available"
)

// NeedsAttention reports whether the status should raise a low-stock alert.
func (s Status) NeedsAttention() bool {
	return s == StatusLowStock || s == StatusNotAvailable
}

// BatchStatus tracks whether a batch still has stock to draw from.
type BatchStatus string

const (
	BatchAvailable BatchStatus = "Available"
	BatchUsed      BatchStatus = "Used"
)

// BatchStatusFor keeps Used in lockstep with a zero remaining quantity.
func BatchStatusFor(remaining decimal.Decimal) BatchStatus {
	if remaining.Sign() <= 0 {
		return BatchUsed
	}
	return BatchAvailable
}

// Item is the aggregate stock record. Quantity may be negative after an
// under-covered consumption.
type Item struct {
	ID         int64
	Category   Category
	Name       string
	Quantity   decimal.Decimal
	Unit       string
	Status     Status
	DateAdded  time.Time
	BestBefore *time.Time
	ExpiresOn  *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Batch is one restock of an item.
type Batch struct {
	ID          int64
	ItemID      int64
	Category    Category
	Remaining   decimal.Decimal
	Unit        string
	BatchDate   time.Time
	RestockedAt time.Time
	LoggedBy    string
	Notes       string
	Status      BatchStatus
}

// ConsumptionEvent is an append-only record of stock leaving an item. A nil
// BatchID marks the untracked remainder no batch could cover.
type ConsumptionEvent struct {
	ID        int64           `json:"id"`
	RequestID string          `json:"request_id"`
	Category  Category        `json:"category"`
	ItemID    int64           `json:"item_id"`
	BatchID   *int64          `json:"batch_id"`
	Amount    decimal.Decimal `json:"amount"`
	Unit      string          `json:"unit"`
	Reason    string          `json:"reason"`
	LoggedAt  time.Time       `json:"logged_at"`
	LoggedBy  string          `json:"logged_by"`
	Notes     string          `json:"notes,omitempty"`
}

// Untracked reports whether the event drew from no batch.
func (e ConsumptionEvent) Untracked() bool {
	return e.BatchID == nil
}

// NewItemInput describes a new stock item.
type NewItemInput struct {
	Category   Category
	Name       string
	Quantity   decimal.Decimal
	Unit       string
	DateAdded  time.Time
	BestBefore *time.Time
	ExpiresOn  *time.Time
	Actor      string
}

// ItemPatch carries the editable item fields. Nil fields are left untouched.
type ItemPatch struct {
	Name       *string
	Quantity   *decimal.Decimal
	Unit       *string
	BestBefore *time.Time
	ExpiresOn  *time.Time
	Actor      string
}

// RestockInput describes a restock of an existing item.
type RestockInput struct {
	Category       Category
	ItemID         int64
	Quantity       decimal.Decimal
	Unit           string
	BatchDate      time.Time
	LoggedBy       string
	Notes          string
	IdempotencyKey string
}

// BatchPatch carries the editable batch fields. Nil fields are left untouched.
type BatchPatch struct {
	Remaining *decimal.Decimal
	Unit      *string
	BatchDate *time.Time
	Notes     *string
	Actor     string
}

// Empty reports whether the patch changes nothing.
func (p BatchPatch) Empty() bool {
	return p.Remaining == nil && p.Unit == nil && p.BatchDate == nil && p.Notes == nil
}

// ConsumeInput describes a consumption (waste, usage) against an item.
type ConsumeInput struct {
	Category       Category
	ItemID         int64
	Amount         decimal.Decimal
	Unit           string
	Reason         string
	LoggedBy       string
	Notes          string
	IdempotencyKey string
}

// ConsumptionFilter narrows ListConsumption.
type ConsumptionFilter struct {
	Category Category
	ItemID   int64
	Limit    int
}

// StatusCounts tallies items per status for one category.
type StatusCounts struct {
	Category     Category `json:"category"`
	Available    int      `json:"available"`
	LowStock     int      `json:"low_stock"`
	NotAvailable int      `json:"not_available"`
}

// Total returns the item count across all statuses.
func (c StatusCounts) Total() int {
	return c.Available + c.LowStock + c.NotAvailable
}

// Add tallies one item with status s.
func (c *StatusCounts) Add(s Status) {
	switch s {
	case StatusAvailable:
		c.Available++
	case StatusLowStock:
		c.LowStock++
	case StatusNotAvailable:
		c.NotAvailable++
	}
}

// ReorderLevel is the reorder point reported alongside low-stock alerts.
var ReorderLevel = decimal.NewFromInt(5)

// LowStockAlert describes one item needing a reorder.
type LowStockAlert struct {
	ItemID        int64
	Name          string
	Category      Category
	InStock       decimal.Decimal
	Unit          string
	ReorderLevel  decimal.Decimal
	LastRestocked *time.Time
	Status        Status
}

// ReconcileRow reports an item whose aggregate drifted from its batches.
type ReconcileRow struct {
	ItemID      int64
	Name        string
	Category    Category
	Aggregate   decimal.Decimal
	BatchTotal  decimal.Decimal
	Drift       decimal.Decimal
	OpenBatches int
}

// Dashboard groups status counts for all categories.
type Dashboard struct {
	Counts      []StatusCounts `json:"counts"`
	GeneratedAt time.Time      `json:"generated_at"`
}

var (
	// ErrInvalidAmount indicates a non-positive consume or restock amount.
	ErrInvalidAmount = fmt.Errorf("stock: amount must be greater than zero: %w", shared.ErrValidation)
	// ErrNegativeStock is returned when negative aggregates are disabled.
	ErrNegativeStock = fmt.Errorf("stock: negative stock not allowed: %w", shared.ErrValidation)
	// ErrNegativeRemaining indicates a batch correction below zero.
	ErrNegativeRemaining = fmt.Errorf("stock: batch remaining must be >= 0: %w", shared.ErrValidation)
	// ErrEmptyPatch indicates an update that changes nothing.
	ErrEmptyPatch = fmt.Errorf("stock: nothing to update: %w", shared.ErrValidation)
	// ErrNameRequired indicates a blank item name.
	ErrNameRequired = fmt.Errorf("stock: name is required: %w", shared.ErrValidation)
	// ErrUnitRequired indicates a blank unit on a new item.
	ErrUnitRequired = fmt.Errorf("stock: unit is required: %w", shared.ErrValidation)
	// ErrNegativeQuantity indicates a negative initial or corrected item quantity.
	ErrNegativeQuantity = fmt.Errorf("stock: quantity must be >= 0: %w", shared.ErrValidation)
	// ErrTooPrecise indicates a quantity with more fractional digits than the ledger stores.
	ErrTooPrecise = fmt.Errorf("stock: quantities carry at most %d decimal places: %w", QuantityScale, shared.ErrValidation)
)

// QuantityScale is the number of fractional digits stored for every quantity.
const QuantityScale = 4

// checkScale rejects values the NUMERIC(18, 4) columns would round.
func checkScale(d decimal.Decimal) error {
	if !d.Equal(d.Truncate(QuantityScale)) {
		return ErrTooPrecise
	}
	return nil
}

// ItemNotFoundError names the missing item.
func ItemNotFoundError(category Category, id int64) error {
	return fmt.Errorf("stock: %s item %d: %w", category, id, shared.ErrNotFound)
}

// BatchNotFoundError names the missing batch.
func BatchNotFoundError(id int64) error {
	return fmt.Errorf("stock: batch %d: %w", id, shared.ErrNotFound)
}

// UnitMismatchError reports a request unit the item is not tracked in.
func UnitMismatchError(got, want string) error {
	return fmt.Errorf("stock: unit %q does not match item unit %q: %w", got, want, shared.ErrValidation)
}

// DuplicateNameError names the clashing item name.
func DuplicateNameError(category Category, name string) error {
	return fmt.Errorf("stock: %s %q already exists: %w", strings.ToLower(category.Label()), name, shared.ErrConflict)
}

func checkCategory(c Category) error {
	if !c.Valid() {
		return fmt.Errorf("stock: unknown category %q: %w", c, shared.ErrValidation)
	}
	return nil
}
