package stock

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ThresholdKind selects how a category turns a quantity into a status.
type ThresholdKind int

const (
	// UnitKeyed compares the quantity with a per-unit low-stock threshold.
	UnitKeyed ThresholdKind = iota
	// FixedNumeric compares the quantity with a single fixed bound.
	FixedNumeric
)

// Thresholds is the status strategy for one category.
type Thresholds struct {
	Kind ThresholdKind
	// ByUnit maps a canonical unit to its inclusive low-stock threshold.
	ByUnit map[string]decimal.Decimal
	// Default applies to units missing from ByUnit.
	Default decimal.Decimal
	// LowBelow is the exclusive upper bound for LowStock under FixedNumeric.
	LowBelow decimal.Decimal
}

var defaultThresholds = map[Category]Thresholds{
	CategoryIngredient: {
		Kind: UnitKeyed,
		ByUnit: map[string]decimal.Decimal{
			"g":  decimal.NewFromInt(50),
			"kg": decimal.RequireFromString("0.5"),
			"ml": decimal.NewFromInt(100),
			"l":  decimal.RequireFromString("0.5"),
		},
		Default: decimal.NewFromInt(1),
	},
	CategoryMaterial: {
		Kind: UnitKeyed,
		ByUnit: map[string]decimal.Decimal{
			"pcs":  decimal.NewFromInt(10),
			"box":  decimal.NewFromInt(5),
			"pack": decimal.NewFromInt(5),
		},
		Default: decimal.NewFromInt(1),
	},
	CategoryMerchandise: {
		Kind:     FixedNumeric,
		LowBelow: decimal.NewFromInt(10),
	},
}

var unitAliases = map[string]string{
	"g": "g", "gram": "g", "grams": "g",
	"kg": "kg", "kilogram": "kg", "kilograms": "kg",
	"ml": "ml", "milliliter": "ml", "milliliters": "ml", "millilitre": "ml", "millilitres": "ml",
	"l": "l", "liter": "l", "liters": "l", "litre": "l", "litres": "l",
	"pc": "pcs", "pcs": "pcs", "piece": "pcs", "pieces": "pcs",
	"box": "box", "boxes": "box",
	"pack": "pack", "packs": "pack",
}

// NormalizeUnit maps unit spellings onto their canonical short form. Unknown
// units are returned lower-cased and trimmed.
func NormalizeUnit(unit string) string {
	u := strings.ToLower(strings.TrimSpace(unit))
	if canonical, ok := unitAliases[u]; ok {
		return canonical
	}
	return u
}

// ThresholdsFor returns the status strategy for category.
func ThresholdsFor(category Category) Thresholds {
	return defaultThresholds[category]
}

// Derive classifies quantity for an item of category measured in unit.
func Derive(quantity decimal.Decimal, category Category, unit string) Status {
	if quantity.Sign() <= 0 {
		return StatusNotAvailable
	}
	t := ThresholdsFor(category)
	switch t.Kind {
	case FixedNumeric:
		if quantity.LessThan(t.LowBelow) {
			return StatusLowStock
		}
		return StatusAvailable
	default:
		limit, ok := t.ByUnit[NormalizeUnit(unit)]
		if !ok {
			limit = t.Default
		}
		if quantity.LessThanOrEqual(limit) {
			return StatusLowStock
		}
		return StatusAvailable
	}
}
