package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bleu-ims/stockledger/internal/shared"
)

func TestResolveReturnsRole(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/users/me", r.URL.Path)
		require.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"username":"ana","userRole":"Manager"}`))
	}))
	defer srv.Close()

	id, err := NewClient(srv.URL+"/", time.Second, nil).Resolve(context.Background(), "tok-1")
	require.NoError(t, err)
	require.Equal(t, shared.Identity{Subject: "ana", Role: RoleManager}, id)
}

func TestResolveSurfacesRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"Token expired"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second, nil).Resolve(context.Background(), "stale")
	require.ErrorIs(t, err, shared.ErrUnauthorized)
	require.Contains(t, err.Error(), "401 - Token expired")
	require.False(t, Transient(err))
}

func TestResolveForbidden(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second, nil).Resolve(context.Background(), "tok")
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestResolveServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second, nil).Resolve(context.Background(), "tok")
	require.ErrorIs(t, err, shared.ErrUnavailable)
	require.True(t, Transient(err))
}

func TestResolveTimeoutIsUnavailable(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := NewClient(srv.URL, 50*time.Millisecond, nil).Resolve(context.Background(), "tok")
	require.ErrorIs(t, err, shared.ErrUnavailable)
}

func TestResolveUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, time.Second, nil).Resolve(context.Background(), "tok")
	require.ErrorIs(t, err, shared.ErrUnavailable)
}

func TestResolveMissingToken(t *testing.T) {
	_, err := NewClient("http://127.0.0.1:1", time.Second, nil).Resolve(context.Background(), "")
	require.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestResolveMissingRole(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"username":"ana"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second, nil).Resolve(context.Background(), "tok")
	require.ErrorIs(t, err, shared.ErrUnauthorized)
}
