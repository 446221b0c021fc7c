package stock

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bleu-ims/stockledger/internal/shared"
)

func TestQuantitiesBeyondStoredScaleAreRejected(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, true)
	ctx := context.Background()
	item, batches := seedFlour(t, svc)

	_, err := svc.Consume(ctx, ConsumeInput{Category: CategoryIngredient, ItemID: item.ID, Amount: dec("2.00005"), Reason: "waste"})
	require.ErrorIs(t, err, ErrTooPrecise)
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Empty(t, repo.events)

	_, err = svc.Restock(ctx, RestockInput{Category: CategoryIngredient, ItemID: item.ID, Quantity: dec("0.00001")})
	require.ErrorIs(t, err, ErrTooPrecise)

	remaining := dec("1.00001")
	_, err = svc.UpdateBatch(ctx, batches[0].ID, BatchPatch{Remaining: &remaining})
	require.ErrorIs(t, err, ErrTooPrecise)

	qty := dec("7.12345")
	_, err = svc.UpdateItem(ctx, CategoryIngredient, item.ID, ItemPatch{Quantity: &qty})
	require.ErrorIs(t, err, ErrTooPrecise)

	_, err = svc.CreateItem(ctx, NewItemInput{Category: CategoryIngredient, Name: "Sugar", Quantity: dec("0.00009"), Unit: "kg"})
	require.ErrorIs(t, err, ErrTooPrecise)

	stored, err := svc.GetItem(ctx, CategoryIngredient, item.ID)
	require.NoError(t, err)
	require.True(t, stored.Quantity.Equal(dec("6")))
	for _, b := range batches {
		require.True(t, repo.batches[b.ID].Remaining.Equal(b.Remaining))
	}
}

func TestTrailingZerosWithinStoredScale(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, true)
	item, _ := seedFlour(t, svc)

	events, err := svc.Consume(context.Background(), ConsumeInput{Category: CategoryIngredient, ItemID: item.ID, Amount: dec("2.0001000"), Reason: "waste"})
	require.NoError(t, err)
	total := dec("0")
	for _, e := range events {
		total = total.Add(e.Amount)
	}
	require.True(t, total.Equal(dec("2.0001")))
}

type stallingPublisher struct {
	release chan struct{}
	calls   atomic.Int32
}

func (p *stallingPublisher) PublishJSON(ctx context.Context, key string, v any) error {
	p.calls.Add(1)
	<-p.release
	return nil
}

func TestStalledPostCommitHookDoesNotHoldTheCaller(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, true)
	item, _ := seedFlour(t, svc)

	publisher := &stallingPublisher{release: make(chan struct{})}
	t.Cleanup(func() { close(publisher.release) })
	svc.hooks.Publisher = publisher
	svc.hookWait = 50 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	started := time.Now()
	events, err := svc.Consume(ctx, ConsumeInput{Category: CategoryIngredient, ItemID: item.ID, Amount: dec("1"), Reason: "waste"})
	require.NoError(t, err)
	require.Less(t, time.Since(started), time.Second)
	require.Len(t, events, 1)
	require.Equal(t, int32(1), publisher.calls.Load())
	require.Len(t, repo.events, 1)
}

type deadlineRecorder struct {
	hadDeadline atomic.Bool
}

func (d *deadlineRecorder) PublishJSON(ctx context.Context, key string, v any) error {
	_, ok := ctx.Deadline()
	d.hadDeadline.Store(ok)
	return nil
}

func TestPostCommitHooksRunUnderDeadline(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, true)
	item, _ := seedFlour(t, svc)
	rec := &deadlineRecorder{}
	svc.hooks.Publisher = rec

	_, err := svc.Consume(context.Background(), ConsumeInput{Category: CategoryIngredient, ItemID: item.ID, Amount: dec("1"), Reason: "waste"})
	require.NoError(t, err)
	require.True(t, rec.hadDeadline.Load())
}

type blockingCountsRepo struct {
	*memoryRepo
	started chan struct{}
	release chan struct{}
	loads   atomic.Int32
}

func (r *blockingCountsRepo) StatusCounts(ctx context.Context, category Category) (StatusCounts, error) {
	if r.loads.Add(1) == 1 {
		close(r.started)
	}
	select {
	case <-r.release:
	case <-ctx.Done():
		return StatusCounts{}, ctx.Err()
	}
	return r.memoryRepo.StatusCounts(ctx, category)
}

func TestStatusCountsSurvivesFirstCallerCancel(t *testing.T) {
	repo := &blockingCountsRepo{memoryRepo: newMemoryRepo(), started: make(chan struct{}), release: make(chan struct{})}
	svc := NewService(repo, nil, nil, ServiceConfig{AllowNegativeStock: true}, Hooks{})

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.StatusCounts(first, CategoryIngredient)
		firstErr <- err
	}()
	<-repo.started

	secondErr := make(chan error, 1)
	go func() {
		_, err := svc.StatusCounts(context.Background(), CategoryIngredient)
		secondErr <- err
	}()
	time.Sleep(50 * time.Millisecond)

	cancel()
	require.ErrorIs(t, <-firstErr, context.Canceled)

	close(repo.release)
	require.NoError(t, <-secondErr)
	require.Equal(t, int32(1), repo.loads.Load())
}
