package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stephdmurray-sys/nomee-sub001/internal/logging"
)

const ownerID = "0b3f1c1e-8f55-4f6c-9f1e-2d6a7f9c0a11"

func TestHeaderVerifier(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		value   string
		want    string
		wantErr error
	}{
		{"default header", "", ownerID, ownerID, nil},
		{"custom header", "X-User", "  " + ownerID + " ", ownerID, nil},
		{"uppercase normalised", "", "0B3F1C1E-8F55-4F6C-9F1E-2D6A7F9C0A11", ownerID, nil},
		{"missing", "", "", "", ErrMissingIdentity},
		{"malformed", "", "alice", "", ErrInvalidIdentity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			name := tt.header
			if name == "" {
				name = DefaultHeader
			}
			if tt.value != "" {
				req.Header.Set(name, tt.value)
			}

			got, err := HeaderVerifier{Header: tt.header}.Verify(req)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMiddleware(t *testing.T) {
	e := echo.New()
	e.GET("/me", func(c echo.Context) error {
		return c.String(http.StatusOK, OwnerID(c))
	}, Middleware(HeaderVerifier{}))

	t.Run("sets owner", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set(DefaultHeader, ownerID)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, ownerID, rec.Body.String())
	})

	t.Run("owner on request context", func(t *testing.T) {
		e := echo.New()
		e.GET("/me", func(c echo.Context) error {
			return c.String(http.StatusOK, logging.OwnerIDFromContext(c.Request().Context()))
		}, Middleware(HeaderVerifier{}))

		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set(DefaultHeader, ownerID)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, ownerID, rec.Body.String())
	})

	t.Run("rejects anonymous", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "UNAUTHENTICATED")
	})
}

func TestOwnerID_OutsideMiddleware(t *testing.T) {
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	assert.Empty(t, OwnerID(c))
}
