package stock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/bleu-ims/stockledger/internal/platform/db"
	"github.com/bleu-ims/stockledger/internal/shared"
)

// TxRepository exposes transactional operations used by service. Lock methods
// take row locks held until the transaction ends; callers lock the item before
// any of its batches.
type TxRepository interface {
	LockItem(ctx context.Context, category Category, id int64) (Item, error)
	InsertItem(ctx context.Context, item Item) (Item, error)
	UpdateItem(ctx context.Context, item Item) error
	DeleteItem(ctx context.Context, category Category, id int64) error
	InsertBatch(ctx context.Context, batch Batch) (Batch, error)
	GetBatch(ctx context.Context, id int64) (Batch, error)
	LockBatch(ctx context.Context, id int64) (Batch, error)
	LockOpenBatches(ctx context.Context, category Category, itemID int64) ([]Batch, error)
	UpdateBatch(ctx context.Context, batch Batch) error
	InsertConsumption(ctx context.Context, event ConsumptionEvent) (ConsumptionEvent, error)
}

// Repository persists the ledger in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

const itemColumns = `id, category, name, quantity, unit, status, date_added, best_before, expires_on, created_at, updated_at`

const batchColumns = `b.id, b.item_id, i.category, b.remaining, b.unit, b.batch_date, b.restocked_at, b.logged_by, b.notes, b.status`

const eventColumns = `id, request_id::text, category, item_id, batch_id, amount, unit, reason, logged_at, logged_by, notes`

// ledgerTxOptions: every mutation locks its item row first, so concurrent
// writers to one item queue on the lock rather than abort.
var ledgerTxOptions = pgx.TxOptions{IsoLevel: pgx.ReadCommitted}

// WithTx executes the callback inside a read-committed transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return errors.New("stock repository not initialised")
	}
	return db.WithTxOptions(ctx, r.pool, ledgerTxOptions, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *Repository) GetItem(ctx context.Context, category Category, id int64) (Item, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM stock_items WHERE category = $1 AND id = $2`, string(category), id)
	item, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, ItemNotFoundError(category, id)
	}
	return item, db.Classify(err)
}

func (r *Repository) ListItems(ctx context.Context, category Category) ([]Item, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+itemColumns+` FROM stock_items WHERE category = $1 ORDER BY name, id`, string(category))
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, db.Classify(err)
		}
		items = append(items, item)
	}
	return items, db.Classify(rows.Err())
}

func (r *Repository) CountItems(ctx context.Context, category Category) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_items WHERE category = $1`, string(category)).Scan(&n)
	return n, db.Classify(err)
}

func (r *Repository) NameExists(ctx context.Context, category Category, name string, excludeID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (
		SELECT 1 FROM stock_items WHERE category = $1 AND name_key = $2 AND id <> $3
	)`, string(category), FoldName(name), excludeID).Scan(&exists)
	return exists, db.Classify(err)
}

func (r *Repository) ListBatches(ctx context.Context, category Category, itemID int64) ([]Batch, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+batchColumns+`
		FROM stock_batches b JOIN stock_items i ON i.id = b.item_id
		WHERE b.item_id = $1 AND i.category = $2
		ORDER BY b.restocked_at, b.id`, itemID, string(category))
	if err != nil {
		return nil, db.Classify(err)
	}
	batches, err := collectBatches(rows)
	return batches, db.Classify(err)
}

func (r *Repository) ListConsumption(ctx context.Context, filter ConsumptionFilter) ([]ConsumptionEvent, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+eventColumns+`
		FROM consumption_events
		WHERE ($1::text = '' OR category = $1::text) AND ($2::bigint = 0 OR item_id = $2::bigint)
		ORDER BY logged_at DESC, id DESC
		LIMIT $3`, string(filter.Category), filter.ItemID, filter.Limit)
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()
	var events []ConsumptionEvent
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, db.Classify(err)
		}
		events = append(events, evt)
	}
	return events, db.Classify(rows.Err())
}

func (r *Repository) StatusCounts(ctx context.Context, category Category) (StatusCounts, error) {
	counts := StatusCounts{Category: category}
	err := r.pool.QueryRow(ctx, `SELECT
		COUNT(*) FILTER (WHERE status = $2),
		COUNT(*) FILTER (WHERE status = $3),
		COUNT(*) FILTER (WHERE status = $4)
		FROM stock_items WHERE category = $1`,
		string(category), string(StatusAvailable), string(StatusLowStock), string(StatusNotAvailable),
	).Scan(&counts.Available, &counts.LowStock, &counts.NotAvailable)
	return counts, db.Classify(err)
}

func (r *Repository) LowStock(ctx context.Context, category Category) ([]LowStockAlert, error) {
	rows, err := r.pool.Query(ctx, `SELECT i.id, i.name, i.quantity, i.unit, i.status, MAX(b.restocked_at)
		FROM stock_items i LEFT JOIN stock_batches b ON b.item_id = i.id
		WHERE i.category = $1 AND i.status = $2
		GROUP BY i.id
		ORDER BY i.name`, string(category), string(StatusLowStock))
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()
	var alerts []LowStockAlert
	for rows.Next() {
		var (
			alert  = LowStockAlert{Category: category, ReorderLevel: ReorderLevel}
			qty    pgtype.Numeric
			status string
		)
		if err := rows.Scan(&alert.ItemID, &alert.Name, &qty, &alert.Unit, &status, &alert.LastRestocked); err != nil {
			return nil, db.Classify(err)
		}
		alert.InStock = numericToDecimal(qty)
		alert.Status = Status(status)
		alerts = append(alerts, alert)
	}
	return alerts, db.Classify(rows.Err())
}

func (r *Repository) Reconcile(ctx context.Context, category Category) ([]ReconcileRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT i.id, i.name, i.quantity,
			COALESCE(SUM(b.remaining), 0),
			COUNT(b.id) FILTER (WHERE b.remaining > 0)
		FROM stock_items i LEFT JOIN stock_batches b ON b.item_id = i.id
		WHERE i.category = $1
		GROUP BY i.id
		HAVING i.quantity <> COALESCE(SUM(b.remaining), 0)
		ORDER BY i.name`, string(category))
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()
	var report []ReconcileRow
	for rows.Next() {
		var (
			row        = ReconcileRow{Category: category}
			agg, total pgtype.Numeric
		)
		if err := rows.Scan(&row.ItemID, &row.Name, &agg, &total, &row.OpenBatches); err != nil {
			return nil, db.Classify(err)
		}
		row.Aggregate = numericToDecimal(agg)
		row.BatchTotal = numericToDecimal(total)
		row.Drift = row.Aggregate.Sub(row.BatchTotal)
		report = append(report, row)
	}
	return report, db.Classify(rows.Err())
}

func (r *txRepository) LockItem(ctx context.Context, category Category, id int64) (Item, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+itemColumns+` FROM stock_items WHERE category = $1 AND id = $2 FOR UPDATE`, string(category), id)
	item, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, ItemNotFoundError(category, id)
	}
	return item, err
}

func (r *txRepository) InsertItem(ctx context.Context, item Item) (Item, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_items
		(category, name, name_key, quantity, unit, status, date_added, best_before, expires_on, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`,
		string(item.Category), item.Name, FoldName(item.Name), decimalToNumeric(item.Quantity), item.Unit,
		string(item.Status), item.DateAdded, item.BestBefore, item.ExpiresOn, item.CreatedAt, item.UpdatedAt,
	).Scan(&item.ID)
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return Item{}, fmt.Errorf("%w: %s", shared.ErrConflict, item.Name)
		}
		return Item{}, err
	}
	return item, nil
}

func (r *txRepository) UpdateItem(ctx context.Context, item Item) error {
	tag, err := r.tx.Exec(ctx, `UPDATE stock_items
		SET name = $3, name_key = $4, quantity = $5, unit = $6, status = $7,
			best_before = $8, expires_on = $9, updated_at = $10
		WHERE category = $1 AND id = $2`,
		string(item.Category), item.ID, item.Name, FoldName(item.Name), decimalToNumeric(item.Quantity),
		item.Unit, string(item.Status), item.BestBefore, item.ExpiresOn, item.UpdatedAt,
	)
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return fmt.Errorf("%w: %s", shared.ErrConflict, item.Name)
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ItemNotFoundError(item.Category, item.ID)
	}
	return nil
}

func (r *txRepository) DeleteItem(ctx context.Context, category Category, id int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM stock_items WHERE category = $1 AND id = $2`, string(category), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ItemNotFoundError(category, id)
	}
	return nil
}

func (r *txRepository) InsertBatch(ctx context.Context, batch Batch) (Batch, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_batches
		(item_id, remaining, unit, batch_date, restocked_at, logged_by, notes, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		batch.ItemID, decimalToNumeric(batch.Remaining), batch.Unit, batch.BatchDate, batch.RestockedAt,
		batch.LoggedBy, batch.Notes, string(batch.Status),
	).Scan(&batch.ID)
	if err != nil {
		return Batch{}, err
	}
	return batch, nil
}

func (r *txRepository) GetBatch(ctx context.Context, id int64) (Batch, error) {
	return r.oneBatch(ctx, `SELECT `+batchColumns+`
		FROM stock_batches b JOIN stock_items i ON i.id = b.item_id
		WHERE b.id = $1`, id)
}

func (r *txRepository) LockBatch(ctx context.Context, id int64) (Batch, error) {
	return r.oneBatch(ctx, `SELECT `+batchColumns+`
		FROM stock_batches b JOIN stock_items i ON i.id = b.item_id
		WHERE b.id = $1
		FOR UPDATE OF b`, id)
}

func (r *txRepository) oneBatch(ctx context.Context, query string, id int64) (Batch, error) {
	rows, err := r.tx.Query(ctx, query, id)
	if err != nil {
		return Batch{}, err
	}
	batches, err := collectBatches(rows)
	if err != nil {
		return Batch{}, err
	}
	if len(batches) == 0 {
		return Batch{}, BatchNotFoundError(id)
	}
	return batches[0], nil
}

func (r *txRepository) LockOpenBatches(ctx context.Context, category Category, itemID int64) ([]Batch, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+batchColumns+`
		FROM stock_batches b JOIN stock_items i ON i.id = b.item_id
		WHERE b.item_id = $1 AND i.category = $2 AND b.remaining > 0
		ORDER BY b.restocked_at, b.id
		FOR UPDATE OF b`, itemID, string(category))
	if err != nil {
		return nil, err
	}
	return collectBatches(rows)
}

func (r *txRepository) UpdateBatch(ctx context.Context, batch Batch) error {
	tag, err := r.tx.Exec(ctx, `UPDATE stock_batches
		SET remaining = $2, unit = $3, batch_date = $4, notes = $5, status = $6
		WHERE id = $1`,
		batch.ID, decimalToNumeric(batch.Remaining), batch.Unit, batch.BatchDate, batch.Notes, string(batch.Status),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return BatchNotFoundError(batch.ID)
	}
	return nil
}

func (r *txRepository) InsertConsumption(ctx context.Context, event ConsumptionEvent) (ConsumptionEvent, error) {
	requestID, err := uuid.Parse(event.RequestID)
	if err != nil {
		return ConsumptionEvent{}, fmt.Errorf("stock: invalid request id: %w", err)
	}
	err = r.tx.QueryRow(ctx, `INSERT INTO consumption_events
		(request_id, category, item_id, batch_id, amount, unit, reason, logged_at, logged_by, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		requestID, string(event.Category), event.ItemID, event.BatchID, decimalToNumeric(event.Amount),
		event.Unit, event.Reason, event.LoggedAt, event.LoggedBy, event.Notes,
	).Scan(&event.ID)
	if err != nil {
		return ConsumptionEvent{}, err
	}
	return event, nil
}

func scanItem(row pgx.Row) (Item, error) {
	var (
		item     Item
		category string
		status   string
		qty      pgtype.Numeric
	)
	err := row.Scan(&item.ID, &category, &item.Name, &qty, &item.Unit, &status,
		&item.DateAdded, &item.BestBefore, &item.ExpiresOn, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Item{}, err
	}
	item.Category = Category(category)
	item.Status = Status(status)
	item.Quantity = numericToDecimal(qty)
	return item, nil
}

func collectBatches(rows pgx.Rows) ([]Batch, error) {
	defer rows.Close()
	var batches []Batch
	for rows.Next() {
		var (
			b         Batch
			category  string
			status    string
			remaining pgtype.Numeric
		)
		if err := rows.Scan(&b.ID, &b.ItemID, &category, &remaining, &b.Unit, &b.BatchDate,
			&b.RestockedAt, &b.LoggedBy, &b.Notes, &status); err != nil {
			return nil, err
		}
		b.Category = Category(category)
		b.Status = BatchStatus(status)
		b.Remaining = numericToDecimal(remaining)
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

func scanEvent(row pgx.Row) (ConsumptionEvent, error) {
	var (
		evt      ConsumptionEvent
		category string
		amount   pgtype.Numeric
		loggedAt time.Time
	)
	err := row.Scan(&evt.ID, &evt.RequestID, &category, &evt.ItemID, &evt.BatchID, &amount,
		&evt.Unit, &evt.Reason, &loggedAt, &evt.LoggedBy, &evt.Notes)
	if err != nil {
		return ConsumptionEvent{}, err
	}
	evt.Category = Category(category)
	evt.Amount = numericToDecimal(amount)
	evt.LoggedAt = loggedAt
	return evt, nil
}

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid || n.NaN || n.Int == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n.Int, n.Exp)
}

func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.String())
	return n
}
