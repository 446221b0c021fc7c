// Package identity resolves bearer credentials against the external user
// service. Only the verdict (subject and role) leaves this package.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bleu-ims/stockledger/internal/shared"
)

// Roles known to the user service.
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleStaff   = "staff"
	RoleCashier = "cashier"
)

// Client calls the user service's "who am I" endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

type meResponse struct {
	Username string `json:"username"`
	UserRole string `json:"userRole"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// NewClient creates a client. timeout bounds the whole round trip.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Resolve forwards token and returns the caller's identity. A 401 or 403 from
// the user service is returned with its detail; transport failures, timeouts
// and 5xx responses map to shared.ErrUnavailable.
func (c *Client) Resolve(ctx context.Context, token string) (shared.Identity, error) {
	if token == "" {
		return shared.Identity{}, fmt.Errorf("identity: missing bearer token: %w", shared.ErrUnauthorized)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/users/me", nil)
	if err != nil {
		return shared.Identity{}, fmt.Errorf("identity: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("identity service unreachable", slog.Any("error", err))
		return shared.Identity{}, fmt.Errorf("identity: %v: %w", err, shared.ErrUnavailable)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return shared.Identity{}, fmt.Errorf("identity: read response: %v: %w", err, shared.ErrUnavailable)
	}

	if resp.StatusCode != http.StatusOK {
		detail := strings.TrimSpace(string(body))
		var errResp errorResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Detail != "" {
			detail = errResp.Detail
		}
		c.logger.Warn("identity service rejected token", slog.Int("status", resp.StatusCode), slog.String("detail", detail))
		return shared.Identity{}, statusError(resp.StatusCode, detail)
	}

	var me meResponse
	if err := json.Unmarshal(body, &me); err != nil {
		return shared.Identity{}, fmt.Errorf("identity: decode response: %v: %w", err, shared.ErrUnavailable)
	}
	if me.UserRole == "" {
		return shared.Identity{}, fmt.Errorf("identity: response carries no role: %w", shared.ErrUnauthorized)
	}
	return shared.Identity{Subject: me.Username, Role: strings.ToLower(me.UserRole)}, nil
}

func statusError(code int, detail string) error {
	var kind error
	switch {
	case code == http.StatusForbidden:
		kind = shared.ErrForbidden
	case code >= 500:
		kind = shared.ErrUnavailable
	default:
		kind = shared.ErrUnauthorized
	}
	if detail == "" {
		return fmt.Errorf("identity service error: %d: %w", code, kind)
	}
	return fmt.Errorf("identity service error: %d - %s: %w", code, detail, kind)
}

// Transient reports whether err came from an unreachable identity service.
func Transient(err error) bool {
	return errors.Is(err, shared.ErrUnavailable)
}
