// Package auth resolves the profile owner behind a request.
//
// nomee sits behind an authentication gateway that verifies the user's
// session and forwards the owner's profile id in a trusted header. This
// package only checks that the header is present and well formed; it must
// never be exposed without the gateway in front of it.
package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/stephdmurray-sys/nomee-sub001/internal/logging"
)

// contextKey is the type for context keys to avoid collisions.
type contextKey string

// ownerIDKey is the Echo context key holding the authenticated owner id.
const ownerIDKey contextKey = "authenticated_owner_id"

// DefaultHeader is the header the gateway uses when none is configured.
const DefaultHeader = "X-Nomee-Owner"

var (
	// ErrMissingIdentity is returned when the request carries no owner.
	ErrMissingIdentity = errors.New("auth: missing owner identity")

	// ErrInvalidIdentity is returned when the owner id is malformed.
	ErrInvalidIdentity = errors.New("auth: invalid owner identity")
)

// Verifier extracts a verified owner id from a request.
type Verifier interface {
	Verify(r *http.Request) (string, error)
}

// HeaderVerifier trusts a header set by the upstream gateway.
type HeaderVerifier struct {
	Header string
}

// Verify returns the owner id from the configured header.
func (v HeaderVerifier) Verify(r *http.Request) (string, error) {
	name := v.Header
	if name == "" {
		name = DefaultHeader
	}
	raw := strings.TrimSpace(r.Header.Get(name))
	if raw == "" {
		return "", ErrMissingIdentity
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", ErrInvalidIdentity
	}
	return id.String(), nil
}

// Middleware authenticates owner-scoped routes and stores the owner id in
// the Echo context and the request context, where logging picks it up.
// Requests without a valid identity get 401.
//
// Example usage:
//
//	me := e.Group("/api/v1/me", auth.Middleware(auth.HeaderVerifier{Header: "X-Nomee-Owner"}))
//	me.GET("/imports", handler)
func Middleware(v Verifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ownerID, err := v.Verify(c.Request())
			if err != nil {
				return c.JSON(http.StatusUnauthorized, map[string]string{
					"error":   "UNAUTHENTICATED",
					"message": "authentication required",
				})
			}
			c.Set(string(ownerIDKey), ownerID)
			req := c.Request()
			c.SetRequest(req.WithContext(logging.WithOwnerID(req.Context(), ownerID)))
			return next(c)
		}
	}
}

// OwnerID returns the owner id set by Middleware, or "" outside it.
func OwnerID(c echo.Context) string {
	id, _ := c.Get(string(ownerIDKey)).(string)
	return id
}
