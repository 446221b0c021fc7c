package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/bleu-ims/stockledger/internal/platform/httpx"
	"github.com/bleu-ims/stockledger/internal/shared"
)

// Resolver turns a bearer credential into an identity verdict.
type Resolver interface {
	Resolve(ctx context.Context, token string) (shared.Identity, error)
}

// Middleware wires role-based authorization helpers for HTTP handlers.
type Middleware struct {
	Resolver Resolver
	Logger   *slog.Logger
}

// Authenticate resolves the bearer token once per request and stores the
// identity in the request context. Requests that cannot be resolved stop here.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		id, err := m.Resolver.Resolve(r.Context(), token)
		if err != nil {
			if m.Logger != nil {
				m.Logger.Warn("rbac authenticate", slog.String("path", r.URL.Path), slog.Any("error", err))
			}
			httpx.RespondError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithIdentity(r.Context(), id)))
	})
}

// RequireAny ensures the current identity holds one of roles.
func (m Middleware) RequireAny(roles ...string) func(http.Handler) http.Handler {
	allowed := normalizeRoles(roles)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(allowed) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			id, ok := shared.IdentityFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, fmt.Errorf("no resolved identity: %w", shared.ErrUnauthorized))
				return
			}
			if _, granted := allowed[strings.ToLower(id.Role)]; granted {
				next.ServeHTTP(w, r)
				return
			}
			httpx.RespondError(w, fmt.Errorf("access denied, role %q not permitted: %w", id.Role, shared.ErrForbidden))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func normalizeRoles(roles []string) map[string]struct{} {
	set := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		role = strings.ToLower(strings.TrimSpace(role))
		if role != "" {
			set[role] = struct{}{}
		}
	}
	return set
}
