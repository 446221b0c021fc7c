package cli

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bleu-ims/stockledger/internal/shared"
	"github.com/bleu-ims/stockledger/internal/stock"
)

type stubLedger struct {
	existing map[string]bool
	restocks map[int64][]string
	nextID   int64
}

func (l *stubLedger) CreateItem(ctx context.Context, input stock.NewItemInput) (stock.Item, error) {
	if l.existing[input.Name] {
		return stock.Item{}, fmt.Errorf("duplicate: %w", shared.ErrConflict)
	}
	l.nextID++
	return stock.Item{ID: l.nextID, Category: input.Category, Name: input.Name}, nil
}

func (l *stubLedger) Restock(ctx context.Context, input stock.RestockInput) (stock.Batch, error) {
	if l.restocks == nil {
		l.restocks = map[int64][]string{}
	}
	l.restocks[input.ItemID] = append(l.restocks[input.ItemID], input.Quantity.String())
	return stock.Batch{ItemID: input.ItemID, Remaining: input.Quantity}, nil
}

func TestSeedRestocksInArrivalOrderAndSkipsExisting(t *testing.T) {
	ledger := &stubLedger{existing: map[string]bool{"Lids": true}}
	out := new(bytes.Buffer)

	items := []SeedItem{
		{Category: stock.CategoryIngredient, Name: "Flour", Unit: "kg", Batches: []string{"2", "3", "1"}},
		{Category: stock.CategoryMaterial, Name: "Lids", Unit: "pcs", Batches: []string{"8"}},
	}
	require.NoError(t, Seed(context.Background(), ledger, items, "seed", out))
	require.Equal(t, []string{"2", "3", "1"}, ledger.restocks[1])
	require.Len(t, ledger.restocks, 1)
	require.Contains(t, out.String(), `skip material "Lids"`)
}
