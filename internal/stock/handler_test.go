package stock

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/bleu-ims/stockledger/internal/rbac"
	"github.com/bleu-ims/stockledger/internal/shared"
)

type tokenResolver map[string]shared.Identity

func (t tokenResolver) Resolve(_ context.Context, token string) (shared.Identity, error) {
	id, ok := t[token]
	if !ok {
		return shared.Identity{}, fmt.Errorf("unknown token: %w", shared.ErrUnauthorized)
	}
	return id, nil
}

func newTestRouter(t *testing.T) (http.Handler, *Service, *memoryRepo) {
	t.Helper()
	repo := newMemoryRepo()
	svc := newTestService(repo, true)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mw := rbac.Middleware{
		Resolver: tokenResolver{
			"admin":   {Subject: "root", Role: "admin"},
			"staff":   {Subject: "ana", Role: "staff"},
			"cashier": {Subject: "cal", Role: "cashier"},
		},
		Logger: logger,
	}
	h := NewHandler(logger, svc, mw)
	r := chi.NewRouter()
	r.Route("/stock", func(r chi.Router) {
		r.Use(mw.Authenticate)
		h.MountRoutes(r)
	})
	return r, svc, repo
}

func doRequest(t *testing.T, h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerRequiresIdentity(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := doRequest(t, router, http.MethodGet, "/stock/ingredients/items", "", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/stock/ingredients/items", "bogus", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandlerCashierReadOnly(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := doRequest(t, router, http.MethodGet, "/stock/ingredients/items", "cashier", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/stock/ingredients/items", "cashier", `{"name":"Flour","quantity":"0","unit":"kg"}`)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/stock/ingredients/reconciliation", "staff", "")
	require.Equal(t, http.StatusForbidden, rec.Code)
	rec = doRequest(t, router, http.MethodGet, "/stock/ingredients/reconciliation", "admin", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandlerCreateRestockConsume(t *testing.T) {
	router, _, repo := newTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/stock/ingredients/items", "staff", `{"name":"Flour","quantity":"0","unit":"kg"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var item itemResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &item))
	require.Equal(t, "Ingredient", item.Category)
	require.Equal(t, StatusNotAvailable, item.Status)

	path := fmt.Sprintf("/stock/ingredients/items/%d", item.ID)
	for _, qty := range []string{"2", "3"} {
		rec = doRequest(t, router, http.MethodPost, path+"/batches", "staff", `{"quantity":"`+qty+`","batch_date":"2024-03-01"}`)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
	var batch batchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &batch))
	require.Equal(t, "ana", batch.LoggedBy)
	require.Equal(t, "2024-03-01", batch.BatchDate)

	rec = doRequest(t, router, http.MethodPost, path+"/consumption", "staff", `{"amount":"4","reason":"spoiled"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var events []ConsumptionEvent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 2)
	require.True(t, events[0].Amount.Equal(dec("2")))
	require.True(t, events[1].Amount.Equal(dec("2")))
	require.Equal(t, "ana", events[0].LoggedBy)

	rec = doRequest(t, router, http.MethodGet, path, "cashier", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &item))
	require.True(t, item.Quantity.Equal(dec("1")))

	rec = doRequest(t, router, http.MethodGet, path+"/batches", "cashier", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var batches []batchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &batches))
	require.Len(t, batches, 2)

	rec = doRequest(t, router, http.MethodGet, fmt.Sprintf("/stock/consumption?category=ingredient&item_id=%d", item.ID), "cashier", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 2)
	require.Len(t, repo.events, 2)
}

func TestHandlerValidationProblems(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/stock/ingredients/items", "staff", `{"quantity":"1","unit":"kg"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var problem struct {
		Fields map[string]string `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.Contains(t, problem.Fields, "Name")

	rec = doRequest(t, router, http.MethodPost, "/stock/ingredients/items", "staff", `{"name":"Flour","unit":"kg","colour":"white"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/stock/ingredients/items", "staff", `{"name":"Flour","unit":"kg","date_added":"03/01/2024"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/stock/gadgets/items", "staff", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/stock/ingredients/items/abc", "staff", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/stock/consumption?limit=-1", "staff", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerConsumeRequiresReasonAndPositiveAmount(t *testing.T) {
	router, svc, _ := newTestRouter(t)
	item, _ := seedFlour(t, svc)
	path := fmt.Sprintf("/stock/ingredients/items/%d/consumption", item.ID)

	rec := doRequest(t, router, http.MethodPost, path, "staff", `{"amount":"1"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, router, http.MethodPost, path, "staff", `{"amount":"0","reason":"waste"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/stock/ingredients/items/999/consumption", "staff", `{"amount":"1","reason":"waste"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerDuplicateNameConflict(t *testing.T) {
	router, svc, _ := newTestRouter(t)
	seedFlour(t, svc)

	rec := doRequest(t, router, http.MethodPost, "/stock/ingredients/items", "staff", `{"name":"  FLOUR ","quantity":"0","unit":"kg"}`)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/stock/materials/items", "staff", `{"name":"Flour","quantity":"0","unit":"pcs"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestHandlerUpdateBatchAndDelete(t *testing.T) {
	router, svc, repo := newTestRouter(t)
	item, batches := seedFlour(t, svc)

	rec := doRequest(t, router, http.MethodPatch, fmt.Sprintf("/stock/batches/%d", batches[0].ID), "staff", `{"quantity_remaining":"0"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var batch batchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &batch))
	require.Equal(t, BatchUsed, batch.Status)
	require.True(t, repo.items[item.ID].Quantity.Equal(dec("4")))

	rec = doRequest(t, router, http.MethodDelete, fmt.Sprintf("/stock/ingredients/items/%d", item.ID), "staff", "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(t, router, http.MethodGet, fmt.Sprintf("/stock/ingredients/items/%d", item.ID), "staff", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerSummaries(t *testing.T) {
	router, svc, _ := newTestRouter(t)
	seedFlour(t, svc)

	rec := doRequest(t, router, http.MethodGet, "/stock/ingredients/count", "cashier", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"count":1}`, rec.Body.String())

	rec = doRequest(t, router, http.MethodGet, "/stock/ingredients/status-counts", "cashier", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var counts StatusCounts
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &counts))
	require.Equal(t, 1, counts.Total())

	rec = doRequest(t, router, http.MethodGet, "/stock/ingredients/low-stock", "cashier", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/stock/dashboard", "cashier", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var dash Dashboard
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dash))
	require.Len(t, dash.Counts, len(Categories))
}
