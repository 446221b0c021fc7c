package stock

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/bleu-ims/stockledger/internal/identity"
	"github.com/bleu-ims/stockledger/internal/platform/httpx"
	"github.com/bleu-ims/stockledger/internal/rbac"
	"github.com/bleu-ims/stockledger/internal/shared"
)

var (
	readRoles   = []string{identity.RoleAdmin, identity.RoleManager, identity.RoleStaff, identity.RoleCashier}
	writeRoles  = []string{identity.RoleAdmin, identity.RoleManager, identity.RoleStaff}
	reportRoles = []string{identity.RoleAdmin, identity.RoleManager}
)

// Handler wires HTTP endpoints for the stock ledger.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler constructs the stock handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, validator: validator.New()}
}

// MountRoutes registers stock routes. The router is expected to have
// authenticated the request already.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(readRoles...))
		r.Get("/dashboard", h.handleDashboard)
		r.Get("/consumption", h.handleListConsumption)
		r.Get("/{category}/items", h.handleListItems)
		r.Get("/{category}/items/{itemID}", h.handleGetItem)
		r.Get("/{category}/items/{itemID}/batches", h.handleListBatches)
		r.Get("/{category}/count", h.handleCount)
		r.Get("/{category}/status-counts", h.handleStatusCounts)
		r.Get("/{category}/low-stock", h.handleLowStock)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(writeRoles...))
		r.Post("/{category}/items", h.handleCreateItem)
		r.Patch("/{category}/items/{itemID}", h.handleUpdateItem)
		r.Delete("/{category}/items/{itemID}", h.handleDeleteItem)
		r.Post("/{category}/items/{itemID}/batches", h.handleRestock)
		r.Post("/{category}/items/{itemID}/consumption", h.handleConsume)
		r.Patch("/batches/{batchID}", h.handleUpdateBatch)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(reportRoles...))
		r.Get("/{category}/reconciliation", h.handleReconcile)
	})
}

func (h *Handler) handleListItems(w http.ResponseWriter, r *http.Request) {
	category, ok := h.category(w, r)
	if !ok {
		return
	}
	items, err := h.service.ListItems(r.Context(), category)
	if err != nil {
		h.fail(w, r, "list items", err)
		return
	}
	out := make([]itemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, toItemResponse(item))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) handleGetItem(w http.ResponseWriter, r *http.Request) {
	category, ok := h.category(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "itemID")
	if !ok {
		return
	}
	item, err := h.service.GetItem(r.Context(), category, id)
	if err != nil {
		h.fail(w, r, "get item", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toItemResponse(item))
}

func (h *Handler) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	category, ok := h.category(w, r)
	if !ok {
		return
	}
	var req createItemRequest
	if !h.decode(w, r, &req) {
		return
	}
	input := NewItemInput{Category: category, Name: req.Name, Quantity: req.Quantity, Unit: req.Unit, Actor: actor(r)}
	added, err := parseDate(req.DateAdded)
	if err == nil && added != nil {
		input.DateAdded = *added
	}
	if err == nil {
		input.BestBefore, err = parseDate(req.BestBefore)
	}
	if err == nil {
		input.ExpiresOn, err = parseDate(req.ExpiresOn)
	}
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.service.CreateItem(r.Context(), input)
	if err != nil {
		h.fail(w, r, "create item", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toItemResponse(item))
}

func (h *Handler) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	category, ok := h.category(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "itemID")
	if !ok {
		return
	}
	var req updateItemRequest
	if !h.decode(w, r, &req) {
		return
	}
	patch := ItemPatch{Name: req.Name, Quantity: req.Quantity, Unit: req.Unit, Actor: actor(r)}
	var err error
	if req.BestBefore != nil {
		patch.BestBefore, err = parseDate(*req.BestBefore)
	}
	if err == nil && req.ExpiresOn != nil {
		patch.ExpiresOn, err = parseDate(*req.ExpiresOn)
	}
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.service.UpdateItem(r.Context(), category, id, patch)
	if err != nil {
		h.fail(w, r, "update item", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toItemResponse(item))
}

func (h *Handler) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	category, ok := h.category(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "itemID")
	if !ok {
		return
	}
	if err := h.service.DeleteItem(r.Context(), category, id, actor(r)); err != nil {
		h.fail(w, r, "delete item", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListBatches(w http.ResponseWriter, r *http.Request) {
	category, ok := h.category(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "itemID")
	if !ok {
		return
	}
	batches, err := h.service.ListBatches(r.Context(), category, id)
	if err != nil {
		h.fail(w, r, "list batches", err)
		return
	}
	out := make([]batchResponse, 0, len(batches))
	for _, b := range batches {
		out = append(out, toBatchResponse(b))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) handleRestock(w http.ResponseWriter, r *http.Request) {
	category, ok := h.category(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "itemID")
	if !ok {
		return
	}
	var req restockRequest
	if !h.decode(w, r, &req) {
		return
	}
	batchDate, err := parseDate(req.BatchDate)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	input := RestockInput{
		Category:       category,
		ItemID:         id,
		Quantity:       req.Quantity,
		Unit:           req.Unit,
		LoggedBy:       loggedBy(r, req.LoggedBy),
		Notes:          req.Notes,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	}
	if batchDate != nil {
		input.BatchDate = *batchDate
	}
	batch, err := h.service.Restock(r.Context(), input)
	if err != nil {
		h.fail(w, r, "restock", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toBatchResponse(batch))
}

func (h *Handler) handleUpdateBatch(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "batchID")
	if !ok {
		return
	}
	var req updateBatchRequest
	if !h.decode(w, r, &req) {
		return
	}
	patch := BatchPatch{Remaining: req.Remaining, Unit: req.Unit, Notes: req.Notes, Actor: actor(r)}
	if req.BatchDate != nil {
		d, err := parseDate(*req.BatchDate)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		patch.BatchDate = d
	}
	batch, err := h.service.UpdateBatch(r.Context(), id, patch)
	if err != nil {
		h.fail(w, r, "update batch", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toBatchResponse(batch))
}

func (h *Handler) handleConsume(w http.ResponseWriter, r *http.Request) {
	category, ok := h.category(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "itemID")
	if !ok {
		return
	}
	var req consumeRequest
	if !h.decode(w, r, &req) {
		return
	}
	events, err := h.service.Consume(r.Context(), ConsumeInput{
		Category:       category,
		ItemID:         id,
		Amount:         req.Amount,
		Unit:           req.Unit,
		Reason:         req.Reason,
		LoggedBy:       loggedBy(r, req.LoggedBy),
		Notes:          req.Notes,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.fail(w, r, "consume", err)
		return
	}
	h.logger.Info("consumption recorded",
		slog.String("category", string(category)),
		slog.Int64("item_id", id),
		slog.Int("events", len(events)))
	httpx.JSON(w, http.StatusCreated, events)
}

func (h *Handler) handleListConsumption(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ConsumptionFilter{}
	if raw := q.Get("category"); raw != "" {
		category, err := ParseCategory(raw)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		filter.Category = category
	}
	fields := map[string]string{}
	if raw := q.Get("item_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			fields["item_id"] = "must be a positive integer"
		}
		filter.ItemID = id
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			fields["limit"] = "must be a positive integer"
		}
		filter.Limit = limit
	}
	if len(fields) > 0 {
		httpx.ValidationProblem(w, fields)
		return
	}
	events, err := h.service.ListConsumption(r.Context(), filter)
	if err != nil {
		h.fail(w, r, "list consumption", err)
		return
	}
	if events == nil {
		events = []ConsumptionEvent{}
	}
	httpx.JSON(w, http.StatusOK, events)
}

func (h *Handler) handleCount(w http.ResponseWriter, r *http.Request) {
	category, ok := h.category(w, r)
	if !ok {
		return
	}
	n, err := h.service.CountItems(r.Context(), category)
	if err != nil {
		h.fail(w, r, "count items", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int{"count": n})
}

func (h *Handler) handleStatusCounts(w http.ResponseWriter, r *http.Request) {
	category, ok := h.category(w, r)
	if !ok {
		return
	}
	counts, err := h.service.StatusCounts(r.Context(), category)
	if err != nil {
		h.fail(w, r, "status counts", err)
		return
	}
	httpx.JSON(w, http.StatusOK, counts)
}

func (h *Handler) handleLowStock(w http.ResponseWriter, r *http.Request) {
	category, ok := h.category(w, r)
	if !ok {
		return
	}
	alerts, err := h.service.LowStock(r.Context(), category)
	if err != nil {
		h.fail(w, r, "low stock", err)
		return
	}
	out := make([]lowStockResponse, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, lowStockResponse{
			ItemID:        a.ItemID,
			Name:          a.Name,
			Category:      a.Category.Label(),
			InStock:       a.InStock,
			Unit:          a.Unit,
			ReorderLevel:  a.ReorderLevel,
			LastRestocked: a.LastRestocked,
			Status:        a.Status,
		})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) handleReconcile(w http.ResponseWriter, r *http.Request) {
	category, ok := h.category(w, r)
	if !ok {
		return
	}
	rows, err := h.service.Reconcile(r.Context(), category)
	if err != nil {
		h.fail(w, r, "reconcile", err)
		return
	}
	out := make([]reconcileResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, reconcileResponse{
			ItemID:      row.ItemID,
			Name:        row.Name,
			Aggregate:   row.Aggregate,
			BatchTotal:  row.BatchTotal,
			Drift:       row.Drift,
			OpenBatches: row.OpenBatches,
		})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	dash, err := h.service.Dashboard(r.Context())
	if err != nil {
		h.fail(w, r, "dashboard", err)
		return
	}
	httpx.JSON(w, http.StatusOK, dash)
}

func (h *Handler) category(w http.ResponseWriter, r *http.Request) (Category, bool) {
	category, err := ParseCategory(chi.URLParam(r, "category"))
	if err != nil {
		httpx.RespondError(w, err)
		return "", false
	}
	return category, true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		httpx.ValidationProblem(w, map[string]string{param: "must be a positive integer"})
		return 0, false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		httpx.RespondError(w, err)
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			httpx.RespondError(w, fmt.Errorf("%v: %w", err, shared.ErrValidation))
			return false
		}
		fields := make(map[string]string, len(verrs))
		for _, fieldErr := range verrs {
			fields[fieldErr.Field()] = fieldErr.Tag()
		}
		httpx.ValidationProblem(w, fields)
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	attrs := []any{slog.String("op", op), slog.String("path", r.URL.Path), slog.Any("error", err)}
	switch {
	case errors.Is(err, shared.ErrValidation), errors.Is(err, shared.ErrNotFound), errors.Is(err, shared.ErrConflict):
		h.logger.Info("stock request rejected", attrs...)
	default:
		h.logger.Error("stock request failed", attrs...)
	}
	httpx.RespondError(w, err)
}

func actor(r *http.Request) string {
	if id, ok := shared.IdentityFromContext(r.Context()); ok {
		return id.Subject
	}
	return ""
}

// loggedBy prefers the name the client recorded and falls back to the caller.
func loggedBy(r *http.Request, supplied string) string {
	if supplied != "" {
		return supplied
	}
	return actor(r)
}
