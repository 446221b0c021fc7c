package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bleu-ims/stockledger/internal/shared"
	"github.com/bleu-ims/stockledger/internal/stock"
)

// Ledger is the subset of the stock service the seeder drives.
type Ledger interface {
	CreateItem(ctx context.Context, input stock.NewItemInput) (stock.Item, error)
	Restock(ctx context.Context, input stock.RestockInput) (stock.Batch, error)
}

// SeedItem is a demo item with the batches it arrives in.
type SeedItem struct {
	Category stock.Category
	Name     string
	Unit     string
	Batches  []string
}

// DemoItems is the default demo inventory.
var DemoItems = []SeedItem{
	{Category: stock.CategoryIngredient, Name: "Flour", Unit: "kg", Batches: []string{"2", "3", "1"}},
	{Category: stock.CategoryIngredient, Name: "Whole Milk", Unit: "l", Batches: []string{"0.5"}},
	{Category: stock.CategoryIngredient, Name: "Espresso Beans", Unit: "g", Batches: []string{"1000", "2500"}},
	{Category: stock.CategoryMaterial, Name: "Paper Cups 12oz", Unit: "pcs", Batches: []string{"50", "100"}},
	{Category: stock.CategoryMaterial, Name: "Lids", Unit: "pcs", Batches: []string{"8"}},
	{Category: stock.CategoryMerchandise, Name: "Tumbler", Unit: "pcs", Batches: []string{"4"}},
}

// Seed creates items and restocks them through the ledger so batches and
// aggregates stay consistent. Items that already exist are skipped.
func Seed(ctx context.Context, ledger Ledger, items []SeedItem, actor string, out io.Writer) error {
	batchDate := time.Now().UTC().Truncate(24 * time.Hour)
	for _, seed := range items {
		item, err := ledger.CreateItem(ctx, stock.NewItemInput{
			Category: seed.Category,
			Name:     seed.Name,
			Quantity: decimal.Zero,
			Unit:     seed.Unit,
			Actor:    actor,
		})
		if errors.Is(err, shared.ErrConflict) {
			fmt.Fprintf(out, "skip %s %q: already exists\n", seed.Category, seed.Name)
			continue
		}
		if err != nil {
			return fmt.Errorf("seed %s: %w", seed.Name, err)
		}
		for _, qty := range seed.Batches {
			amount, err := decimal.NewFromString(qty)
			if err != nil {
				return fmt.Errorf("seed %s: %w", seed.Name, err)
			}
			if _, err := ledger.Restock(ctx, stock.RestockInput{
				Category:  seed.Category,
				ItemID:    item.ID,
				Quantity:  amount,
				BatchDate: batchDate,
				LoggedBy:  actor,
				Notes:     "seed",
			}); err != nil {
				return fmt.Errorf("seed %s restock: %w", seed.Name, err)
			}
		}
		fmt.Fprintf(out, "seeded %s %q with %d batches\n", seed.Category, seed.Name, len(seed.Batches))
	}
	return nil
}
