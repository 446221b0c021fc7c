package stock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/bleu-ims/stockledger/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetItem(ctx context.Context, category Category, id int64) (Item, error)
	ListItems(ctx context.Context, category Category) ([]Item, error)
	CountItems(ctx context.Context, category Category) (int, error)
	NameExists(ctx context.Context, category Category, name string, excludeID int64) (bool, error)
	ListBatches(ctx context.Context, category Category, itemID int64) ([]Batch, error)
	ListConsumption(ctx context.Context, filter ConsumptionFilter) ([]ConsumptionEvent, error)
	StatusCounts(ctx context.Context, category Category) (StatusCounts, error)
	LowStock(ctx context.Context, category Category) ([]LowStockAlert, error)
	Reconcile(ctx context.Context, category Category) ([]ReconcileRow, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort claims client request keys.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	AllowNegativeStock bool
	// HookTimeout bounds each post-commit side effect. Zero means two seconds.
	HookTimeout time.Duration
}

const defaultHookTimeout = 2 * time.Second

// Hooks are the post-commit collaborators. Any of them may be nil.
type Hooks struct {
	Publisher EventPublisher
	Alerts    AlertEnqueuer
	Cache     CountsCache
	Metrics   *Metrics
	Logger    *slog.Logger
}

// Service coordinates the stock ledger.
type Service struct {
	repo     RepositoryPort
	audit    AuditPort
	idem     IdempotencyPort
	allowNeg bool
	hookWait time.Duration
	hooks    Hooks
	logger   *slog.Logger
	tracer   trace.Tracer
	counts   singleflight.Group
	now      func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, idem IdempotencyPort, cfg ServiceConfig, hooks Hooks) *Service {
	logger := hooks.Logger
	if logger == nil {
		logger = slog.Default()
	}
	hookWait := cfg.HookTimeout
	if hookWait <= 0 {
		hookWait = defaultHookTimeout
	}
	return &Service{
		repo:     repo,
		audit:    audit,
		idem:     idem,
		allowNeg: cfg.AllowNegativeStock,
		hookWait: hookWait,
		hooks:    hooks,
		logger:   logger.With(slog.String("component", "stock")),
		tracer:   otel.Tracer("github.com/bleu-ims/stockledger/internal/stock"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) start(ctx context.Context, op string, category Category, itemID int64) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{attribute.String("stock.category", string(category))}
	if itemID != 0 {
		attrs = append(attrs, attribute.Int64("stock.item_id", itemID))
	}
	return s.tracer.Start(ctx, "stock."+op, trace.WithAttributes(attrs...))
}

func (s *Service) finish(span trace.Span, op string, category Category, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
	s.hooks.Metrics.observe(op, category, err)
}

// CheckUnique reports a Conflict when another item in category already uses
// name, ignoring case. excludeID skips the item being renamed. The database
// unique index remains the final word.
func (s *Service) CheckUnique(ctx context.Context, category Category, name string, excludeID int64) error {
	if err := checkCategory(category); err != nil {
		return err
	}
	name = CleanName(name)
	if name == "" {
		return ErrNameRequired
	}
	exists, err := s.repo.NameExists(ctx, category, name, excludeID)
	if err != nil {
		return err
	}
	if exists {
		return DuplicateNameError(category, name)
	}
	return nil
}

// CreateItem registers a new stock item with an initial aggregate quantity.
// No batch is created for the initial quantity.
func (s *Service) CreateItem(ctx context.Context, input NewItemInput) (item Item, err error) {
	ctx, span := s.start(ctx, "CreateItem", input.Category, 0)
	defer func() { s.finish(span, "create_item", input.Category, err) }()

	if err := checkCategory(input.Category); err != nil {
		return Item{}, err
	}
	name := CleanName(input.Name)
	if name == "" {
		return Item{}, ErrNameRequired
	}
	if input.Quantity.IsNegative() {
		return Item{}, ErrNegativeQuantity
	}
	if err := checkScale(input.Quantity); err != nil {
		return Item{}, err
	}
	unit := NormalizeUnit(input.Unit)
	if unit == "" {
		if input.Category != CategoryMerchandise {
			return Item{}, ErrUnitRequired
		}
		unit = "pcs"
	}
	if err := s.CheckUnique(ctx, input.Category, name, 0); err != nil {
		return Item{}, err
	}

	now := s.now()
	dateAdded := input.DateAdded
	if dateAdded.IsZero() {
		dateAdded = now
	}
	draft := Item{
		Category:  input.Category,
		Name:      name,
		Quantity:  input.Quantity,
		Unit:      unit,
		Status:    Derive(input.Quantity, input.Category, unit),
		DateAdded: dateAdded,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if input.Category == CategoryIngredient {
		draft.BestBefore = input.BestBefore
		draft.ExpiresOn = input.ExpiresOn
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		created, err := tx.InsertItem(ctx, draft)
		if err != nil {
			if errors.Is(err, shared.ErrConflict) {
				return DuplicateNameError(input.Category, name)
			}
			return err
		}
		item = created
		return nil
	})
	if err != nil {
		return Item{}, err
	}
	s.committed(ctx, mutation{
		action: "stock:create_item",
		entity: "stock_item",
		actor:  input.Actor,
		after:  item,
		event:  LedgerEvent{Type: EventItemCreated},
		meta:   map[string]any{"quantity": item.Quantity.String(), "unit": item.Unit},
	})
	return item, nil
}

// GetItem loads one item.
func (s *Service) GetItem(ctx context.Context, category Category, id int64) (Item, error) {
	if err := checkCategory(category); err != nil {
		return Item{}, err
	}
	return s.repo.GetItem(ctx, category, id)
}

// ListItems lists the items of a category ordered by name.
func (s *Service) ListItems(ctx context.Context, category Category) ([]Item, error) {
	if err := checkCategory(category); err != nil {
		return nil, err
	}
	return s.repo.ListItems(ctx, category)
}

// CountItems returns how many items a category holds.
func (s *Service) CountItems(ctx context.Context, category Category) (int, error) {
	if err := checkCategory(category); err != nil {
		return 0, err
	}
	return s.repo.CountItems(ctx, category)
}

// UpdateItem edits an item. A quantity change is written as-is and does not
// touch batches; the status is re-derived either way.
func (s *Service) UpdateItem(ctx context.Context, category Category, id int64, patch ItemPatch) (item Item, err error) {
	ctx, span := s.start(ctx, "UpdateItem", category, id)
	defer func() { s.finish(span, "update_item", category, err) }()

	if err := checkCategory(category); err != nil {
		return Item{}, err
	}
	if patch.Name == nil && patch.Quantity == nil && patch.Unit == nil && patch.BestBefore == nil && patch.ExpiresOn == nil {
		return Item{}, ErrEmptyPatch
	}
	var name string
	if patch.Name != nil {
		name = CleanName(*patch.Name)
		if name == "" {
			return Item{}, ErrNameRequired
		}
		if err := s.CheckUnique(ctx, category, name, id); err != nil {
			return Item{}, err
		}
	}
	if patch.Quantity != nil {
		if patch.Quantity.IsNegative() {
			return Item{}, ErrNegativeQuantity
		}
		if err := checkScale(*patch.Quantity); err != nil {
			return Item{}, err
		}
	}

	var before Item
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LockItem(ctx, category, id)
		if err != nil {
			return err
		}
		before = current
		if patch.Name != nil {
			current.Name = name
		}
		if patch.Quantity != nil {
			current.Quantity = *patch.Quantity
		}
		if patch.Unit != nil {
			unit := NormalizeUnit(*patch.Unit)
			if unit == "" {
				return ErrUnitRequired
			}
			current.Unit = unit
		}
		if category == CategoryIngredient {
			if patch.BestBefore != nil {
				current.BestBefore = patch.BestBefore
			}
			if patch.ExpiresOn != nil {
				current.ExpiresOn = patch.ExpiresOn
			}
		}
		current.Status = Derive(current.Quantity, current.Category, current.Unit)
		current.UpdatedAt = s.now()
		if err := tx.UpdateItem(ctx, current); err != nil {
			if errors.Is(err, shared.ErrConflict) {
				return DuplicateNameError(category, current.Name)
			}
			return err
		}
		item = current
		return nil
	})
	if err != nil {
		return Item{}, err
	}
	s.committed(ctx, mutation{
		action: "stock:update_item",
		entity: "stock_item",
		actor:  patch.Actor,
		before: before,
		after:  item,
		event:  LedgerEvent{Type: EventItemUpdated},
		meta: map[string]any{
			"previous_name":     before.Name,
			"previous_quantity": before.Quantity.String(),
			"quantity":          item.Quantity.String(),
		},
	})
	return item, nil
}

// DeleteItem removes an item and its batches. Consumption history is kept.
func (s *Service) DeleteItem(ctx context.Context, category Category, id int64, actor string) (err error) {
	ctx, span := s.start(ctx, "DeleteItem", category, id)
	defer func() { s.finish(span, "delete_item", category, err) }()

	if err := checkCategory(category); err != nil {
		return err
	}
	var removed Item
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LockItem(ctx, category, id)
		if err != nil {
			return err
		}
		removed = current
		return tx.DeleteItem(ctx, category, id)
	})
	if err != nil {
		return err
	}
	s.committed(ctx, mutation{
		action:  "stock:delete_item",
		entity:  "stock_item",
		actor:   actor,
		after:   removed,
		event:   LedgerEvent{Type: EventItemDeleted},
		meta:    map[string]any{"name": removed.Name, "quantity": removed.Quantity.String()},
		noAlert: true,
	})
	return nil
}

// Restock records a new batch and adds its quantity to the item aggregate.
func (s *Service) Restock(ctx context.Context, input RestockInput) (batch Batch, err error) {
	ctx, span := s.start(ctx, "Restock", input.Category, input.ItemID)
	defer func() { s.finish(span, "restock", input.Category, err) }()

	if err := checkCategory(input.Category); err != nil {
		return Batch{}, err
	}
	if !input.Quantity.IsPositive() {
		return Batch{}, ErrInvalidAmount
	}
	if err := checkScale(input.Quantity); err != nil {
		return Batch{}, err
	}
	release, err := s.claim(ctx, "restock", input.Category, input.ItemID, input.IdempotencyKey)
	if err != nil {
		return Batch{}, err
	}

	var before, after Item
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		item, err := tx.LockItem(ctx, input.Category, input.ItemID)
		if err != nil {
			return err
		}
		before = item
		unit, err := resolveUnit(input.Unit, item.Unit)
		if err != nil {
			return err
		}
		now := s.now()
		batchDate := input.BatchDate
		if batchDate.IsZero() {
			batchDate = now
		}
		created, err := tx.InsertBatch(ctx, Batch{
			ItemID:      item.ID,
			Category:    item.Category,
			Remaining:   input.Quantity,
			Unit:        unit,
			BatchDate:   batchDate,
			RestockedAt: now,
			LoggedBy:    input.LoggedBy,
			Notes:       input.Notes,
			Status:      BatchStatusFor(input.Quantity),
		})
		if err != nil {
			return err
		}
		item.Quantity = item.Quantity.Add(input.Quantity)
		item.Status = Derive(item.Quantity, item.Category, item.Unit)
		item.UpdatedAt = now
		if err := tx.UpdateItem(ctx, item); err != nil {
			return err
		}
		batch = created
		after = item
		return nil
	})
	if err != nil {
		release()
		return Batch{}, err
	}
	s.hooks.Metrics.restock(input.Category, input.Quantity)
	batchID := batch.ID
	s.committed(ctx, mutation{
		action: "stock:restock",
		entity: "stock_batch",
		id:     strconv.FormatInt(batch.ID, 10),
		actor:  input.LoggedBy,
		before: before,
		after:  after,
		event:  LedgerEvent{Type: EventRestocked, BatchID: &batchID},
		meta: map[string]any{
			"item_id":  after.ID,
			"quantity": input.Quantity.String(),
			"unit":     batch.Unit,
		},
	})
	return batch, nil
}

// ListBatches lists the batches of an item in FIFO order.
func (s *Service) ListBatches(ctx context.Context, category Category, itemID int64) ([]Batch, error) {
	if err := checkCategory(category); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetItem(ctx, category, itemID); err != nil {
		return nil, err
	}
	return s.repo.ListBatches(ctx, category, itemID)
}

// UpdateBatch applies a correction to a batch. A change to the remaining
// quantity is propagated to the item aggregate as a delta in the same
// transaction.
func (s *Service) UpdateBatch(ctx context.Context, batchID int64, patch BatchPatch) (batch Batch, err error) {
	ctx, span := s.tracer.Start(ctx, "stock.UpdateBatch", trace.WithAttributes(attribute.Int64("stock.batch_id", batchID)))
	var category Category
	defer func() { s.finish(span, "update_batch", category, err) }()

	if patch.Empty() {
		return Batch{}, ErrEmptyPatch
	}
	if patch.Remaining != nil {
		if patch.Remaining.IsNegative() {
			return Batch{}, ErrNegativeRemaining
		}
		if err := checkScale(*patch.Remaining); err != nil {
			return Batch{}, err
		}
	}

	var before, after Item
	var delta decimal.Decimal
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		// Item before batch, the same order Consume and Restock lock in.
		probe, err := tx.GetBatch(ctx, batchID)
		if err != nil {
			return err
		}
		item, err := tx.LockItem(ctx, probe.Category, probe.ItemID)
		if err != nil {
			return err
		}
		current, err := tx.LockBatch(ctx, batchID)
		if err != nil {
			return err
		}
		before = item
		category = item.Category

		if patch.Unit != nil {
			unit, err := resolveUnit(*patch.Unit, item.Unit)
			if err != nil {
				return err
			}
			current.Unit = unit
		}
		if patch.BatchDate != nil {
			current.BatchDate = *patch.BatchDate
		}
		if patch.Notes != nil {
			current.Notes = *patch.Notes
		}
		d := decimal.Zero
		if patch.Remaining != nil {
			d = patch.Remaining.Sub(current.Remaining)
			current.Remaining = *patch.Remaining
		}
		current.Status = BatchStatusFor(current.Remaining)
		if err := tx.UpdateBatch(ctx, current); err != nil {
			return err
		}

		item.Quantity = item.Quantity.Add(d)
		item.Status = Derive(item.Quantity, item.Category, item.Unit)
		item.UpdatedAt = s.now()
		if err := tx.UpdateItem(ctx, item); err != nil {
			return err
		}
		batch = current
		after = item
		delta = d
		return nil
	})
	if err != nil {
		return Batch{}, err
	}
	id := batch.ID
	s.committed(ctx, mutation{
		action: "stock:update_batch",
		entity: "stock_batch",
		id:     strconv.FormatInt(batch.ID, 10),
		actor:  patch.Actor,
		before: before,
		after:  after,
		event:  LedgerEvent{Type: EventBatchCorrected, BatchID: &id},
		meta: map[string]any{
			"item_id":   after.ID,
			"delta":     delta.String(),
			"remaining": batch.Remaining.String(),
		},
	})
	return batch, nil
}

// Consume draws amount from an item. The aggregate is always decremented by
// the full amount; batches are drained oldest arrival first and whatever they
// cannot cover is recorded as one untracked event at the end. Every call is a
// distinct physical event unless the caller supplies an idempotency key.
func (s *Service) Consume(ctx context.Context, input ConsumeInput) (events []ConsumptionEvent, err error) {
	ctx, span := s.start(ctx, "Consume", input.Category, input.ItemID)
	defer func() { s.finish(span, "consume", input.Category, err) }()

	if err := checkCategory(input.Category); err != nil {
		return nil, err
	}
	if !input.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if err := checkScale(input.Amount); err != nil {
		return nil, err
	}
	release, err := s.claim(ctx, "consume", input.Category, input.ItemID, input.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	requestID := uuid.NewString()
	span.SetAttributes(attribute.String("stock.request_id", requestID))

	var before, after Item
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		item, err := tx.LockItem(ctx, input.Category, input.ItemID)
		if err != nil {
			return err
		}
		before = item
		unit, err := resolveUnit(input.Unit, item.Unit)
		if err != nil {
			return err
		}
		remaining := item.Quantity.Sub(input.Amount)
		if !s.allowNeg && remaining.IsNegative() {
			return ErrNegativeStock
		}

		open, err := tx.LockOpenBatches(ctx, input.Category, item.ID)
		if err != nil {
			return err
		}
		plan := Allocate(open, input.Amount)

		now := s.now()
		emitted := make([]ConsumptionEvent, 0, len(plan.Draws)+1)
		record := func(batchID *int64, amount decimal.Decimal) error {
			evt, err := tx.InsertConsumption(ctx, ConsumptionEvent{
				RequestID: requestID,
				Category:  item.Category,
				ItemID:    item.ID,
				BatchID:   batchID,
				Amount:    amount,
				Unit:      unit,
				Reason:    input.Reason,
				LoggedAt:  now,
				LoggedBy:  input.LoggedBy,
				Notes:     input.Notes,
			})
			if err != nil {
				return err
			}
			emitted = append(emitted, evt)
			return nil
		}
		for _, draw := range plan.Draws {
			b := draw.Batch
			b.Remaining = draw.After
			b.Status = BatchStatusFor(draw.After)
			if err := tx.UpdateBatch(ctx, b); err != nil {
				return err
			}
			id := b.ID
			if err := record(&id, draw.Deduct); err != nil {
				return err
			}
		}
		if plan.Untracked.IsPositive() {
			if err := record(nil, plan.Untracked); err != nil {
				return err
			}
		}

		item.Quantity = remaining
		item.Status = Derive(remaining, item.Category, item.Unit)
		item.UpdatedAt = now
		if err := tx.UpdateItem(ctx, item); err != nil {
			return err
		}
		after = item
		events = emitted
		return nil
	})
	if err != nil {
		release()
		return nil, err
	}
	s.hooks.Metrics.consumed(input.Category, events)
	s.committed(ctx, mutation{
		action: "stock:consume",
		entity: "stock_item",
		actor:  input.LoggedBy,
		before: before,
		after:  after,
		event:  LedgerEvent{Type: EventConsumed, RequestID: requestID, Consumption: events},
		meta: map[string]any{
			"request_id": requestID,
			"amount":     input.Amount.String(),
			"reason":     input.Reason,
			"events":     len(events),
		},
	})
	return events, nil
}

// ListConsumption lists consumption events newest first.
func (s *Service) ListConsumption(ctx context.Context, filter ConsumptionFilter) ([]ConsumptionEvent, error) {
	if filter.Category != "" {
		if err := checkCategory(filter.Category); err != nil {
			return nil, err
		}
	}
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 200
	}
	return s.repo.ListConsumption(ctx, filter)
}

// StatusCounts tallies items per status. Concurrent callers for the same
// category share one load.
func (s *Service) StatusCounts(ctx context.Context, category Category) (StatusCounts, error) {
	if err := checkCategory(category); err != nil {
		return StatusCounts{}, err
	}
	load := func(ctx context.Context) (StatusCounts, error) {
		return s.repo.StatusCounts(ctx, category)
	}
	// The shared load outlives any single caller's cancellation.
	loadCtx := context.WithoutCancel(ctx)
	ch := s.counts.DoChan(string(category), func() (any, error) {
		if s.hooks.Cache != nil {
			return s.hooks.Cache.Counts(loadCtx, category, load)
		}
		return load(loadCtx)
	})
	var v any
	var err error
	select {
	case res := <-ch:
		v, err = res.Val, res.Err
	case <-ctx.Done():
		return StatusCounts{}, ctx.Err()
	}
	if err != nil {
		return StatusCounts{}, err
	}
	counts := v.(StatusCounts)
	counts.Category = category
	return counts, nil
}

// LowStock lists items currently in Low Stock.
func (s *Service) LowStock(ctx context.Context, category Category) ([]LowStockAlert, error) {
	if err := checkCategory(category); err != nil {
		return nil, err
	}
	return s.repo.LowStock(ctx, category)
}

// Reconcile reports items whose aggregate differs from the sum of their batch
// remaining quantities. Nothing is corrected.
func (s *Service) Reconcile(ctx context.Context, category Category) ([]ReconcileRow, error) {
	if err := checkCategory(category); err != nil {
		return nil, err
	}
	return s.repo.Reconcile(ctx, category)
}

// Dashboard gathers status counts for every category concurrently.
func (s *Service) Dashboard(ctx context.Context) (Dashboard, error) {
	counts := make([]StatusCounts, len(Categories))
	g, gctx := errgroup.WithContext(ctx)
	for i, category := range Categories {
		g.Go(func() error {
			c, err := s.StatusCounts(gctx, category)
			if err != nil {
				return fmt.Errorf("%s counts: %w", category, err)
			}
			counts[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}
	return Dashboard{Counts: counts, GeneratedAt: s.now()}, nil
}

// claim reserves a client idempotency key. The returned func frees it again
// after a failed attempt so the client can retry.
func (s *Service) claim(ctx context.Context, op string, category Category, itemID int64, key string) (func(), error) {
	if key == "" || s.idem == nil {
		return func() {}, nil
	}
	scoped := fmt.Sprintf("%s:%s:%d:%s", op, category, itemID, key)
	if err := s.idem.CheckAndInsert(ctx, scoped, "stock"); err != nil {
		return nil, err
	}
	return func() {
		if err := s.idem.Delete(context.WithoutCancel(ctx), scoped); err != nil {
			s.logger.Warn("release idempotency key", slog.String("key", scoped), slog.Any("error", err))
		}
	}, nil
}

func resolveUnit(requested, itemUnit string) (string, error) {
	if requested == "" {
		return itemUnit, nil
	}
	unit := NormalizeUnit(requested)
	if unit != NormalizeUnit(itemUnit) {
		return "", UnitMismatchError(requested, itemUnit)
	}
	return itemUnit, nil
}

type mutation struct {
	action  string
	entity  string
	id      string
	actor   string
	before  Item
	after   Item
	event   LedgerEvent
	meta    map[string]any
	noAlert bool
}

// committed runs the post-commit side effects. None of them can undo the
// mutation, so failures are logged and swallowed. Each effect gets its own
// deadline and the caller stops waiting once it passes.
func (s *Service) committed(ctx context.Context, m mutation) {
	ctx = context.WithoutCancel(ctx)
	item := m.after
	id := m.id
	if id == "" {
		id = strconv.FormatInt(item.ID, 10)
	}
	log := s.logger.With(slog.String("action", m.action), slog.String("category", string(item.Category)), slog.Int64("item_id", item.ID))

	if s.audit != nil {
		if m.meta == nil {
			m.meta = map[string]any{}
		}
		m.meta["category"] = string(item.Category)
		m.meta["status"] = string(item.Status)
		entry := shared.AuditLog{
			Actor:    m.actor,
			Action:   m.action,
			Entity:   m.entity,
			EntityID: id,
			Meta:     m.meta,
			At:       s.now(),
		}
		s.runHook(ctx, log, "audit record", func(ctx context.Context) error {
			return s.audit.Record(ctx, entry)
		})
	}
	if s.hooks.Cache != nil {
		s.runHook(ctx, log, "cache bump", func(ctx context.Context) error {
			return s.hooks.Cache.Bump(ctx, item.Category)
		})
	}
	if s.hooks.Publisher != nil {
		evt := m.event
		evt.Category = item.Category
		evt.ItemID = item.ID
		evt.Name = item.Name
		evt.Quantity = item.Quantity
		evt.Unit = item.Unit
		evt.Status = item.Status
		evt.Actor = m.actor
		evt.OccurredAt = s.now()
		s.runHook(ctx, log, "publish ledger event", func(ctx context.Context) error {
			return s.hooks.Publisher.PublishJSON(ctx, evt.Key(), evt)
		})
	}
	if s.hooks.Alerts != nil && !m.noAlert && item.Status.NeedsAttention() && item.Status != m.before.Status {
		alert := LowStockAlert{
			ItemID:       item.ID,
			Name:         item.Name,
			Category:     item.Category,
			InStock:      item.Quantity,
			Unit:         item.Unit,
			ReorderLevel: ReorderLevel,
			Status:       item.Status,
		}
		s.runHook(ctx, log, "enqueue low stock alert", func(ctx context.Context) error {
			return s.hooks.Alerts.EnqueueLowStock(ctx, alert)
		})
	}
	log.Debug("ledger mutation committed", slog.String("status", string(item.Status)), slog.String("quantity", item.Quantity.String()))
}

// runHook runs fn under the hook deadline. A hook that ignores its context is
// left to finish in the background.
func (s *Service) runHook(ctx context.Context, log *slog.Logger, name string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(ctx, s.hookWait)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- fn(ctx)
	}()
	select {
	case err := <-done:
		if err != nil {
			log.Warn(name+" failed", slog.Any("error", err))
		}
	case <-ctx.Done():
		log.Warn(name+" timed out", slog.Duration("timeout", s.hookWait))
	}
}
