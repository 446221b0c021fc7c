package stock

import (
	"sort"

	"github.com/shopspring/decimal"
)

// BatchDraw is the share of a consumption taken from one batch.
type BatchDraw struct {
	Batch  Batch
	Deduct decimal.Decimal
	After  decimal.Decimal
}

// AllocationPlan splits a consumption amount across batches. Σ Deduct +
// Untracked always equals the requested amount.
type AllocationPlan struct {
	Draws     []BatchDraw
	Untracked decimal.Decimal
}

// Covered returns the amount drawn from batches.
func (p AllocationPlan) Covered() decimal.Decimal {
	total := decimal.Zero
	for _, d := range p.Draws {
		total = total.Add(d.Deduct)
	}
	return total
}

// Allocate drains batches oldest first by RestockedAt, ties by ID, until amount
// is satisfied. Batches without remaining stock are skipped. Whatever the
// batches cannot cover is reported as Untracked.
func Allocate(batches []Batch, amount decimal.Decimal) AllocationPlan {
	ordered := make([]Batch, len(batches))
	copy(ordered, batches)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].RestockedAt.Equal(ordered[j].RestockedAt) {
			return ordered[i].RestockedAt.Before(ordered[j].RestockedAt)
		}
		return ordered[i].ID < ordered[j].ID
	})

	plan := AllocationPlan{Untracked: decimal.Zero}
	left := amount
	for _, b := range ordered {
		if left.Sign() <= 0 {
			break
		}
		if b.Remaining.Sign() <= 0 {
			continue
		}
		deduct := decimal.Min(left, b.Remaining)
		plan.Draws = append(plan.Draws, BatchDraw{
			Batch:  b,
			Deduct: deduct,
			After:  b.Remaining.Sub(deduct),
		})
		left = left.Sub(deduct)
	}
	if left.Sign() > 0 {
		plan.Untracked = left
	}
	return plan
}
