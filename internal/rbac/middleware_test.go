package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bleu-ims/stockledger/internal/shared"
)

type stubResolver struct {
	id    shared.Identity
	err   error
	token string
	calls int
}

func (s *stubResolver) Resolve(ctx context.Context, token string) (shared.Identity, error) {
	s.calls++
	s.token = token
	return s.id, s.err
}

func serve(m Middleware, roles []string, header string) (*httptest.ResponseRecorder, bool) {
	reached := false
	h := m.Authenticate(m.RequireAny(roles...)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusNoContent)
	})))
	req := httptest.NewRequest(http.MethodPost, "/stock/ingredient/items", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, reached
}

func TestRequireAnyGrantsRole(t *testing.T) {
	res := &stubResolver{id: shared.Identity{Subject: "ana", Role: "Staff"}}
	rec, reached := serve(Middleware{Resolver: res}, []string{"admin", "manager", "staff"}, "Bearer abc")
	require.True(t, reached)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "abc", res.token)
}

func TestRequireAnyDeniesRole(t *testing.T) {
	res := &stubResolver{id: shared.Identity{Subject: "cy", Role: "cashier"}}
	rec, reached := serve(Middleware{Resolver: res}, []string{"admin", "manager", "staff"}, "Bearer abc")
	require.False(t, reached)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Contains(t, rec.Body.String(), "cashier")
}

func TestAuthenticateUnavailableStopsRequest(t *testing.T) {
	res := &stubResolver{err: shared.ErrUnavailable}
	rec, reached := serve(Middleware{Resolver: res}, []string{"admin"}, "Bearer abc")
	require.False(t, reached)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAuthenticateRejectsBadScheme(t *testing.T) {
	res := &stubResolver{err: shared.ErrUnauthorized}
	rec, reached := serve(Middleware{Resolver: res}, nil, "Basic Zm9vOmJhcg==")
	require.False(t, reached)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "", res.token)
}
