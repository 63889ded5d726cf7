package http

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/stephdmurray-sys/nomee-sub001/internal/apperr"
	"github.com/stephdmurray-sys/nomee-sub001/internal/logging"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error   string     `json:"error"`
	Message string     `json:"message"`
	Field   string     `json:"field,omitempty"`
	ResetAt *time.Time `json:"resetAt,omitempty"`
}

var kindStatus = map[apperr.Kind]int{
	apperr.KindValidation:      http.StatusBadRequest,
	apperr.KindUnauthenticated: http.StatusUnauthorized,
	apperr.KindForbidden:       http.StatusForbidden,
	apperr.KindNotFound:        http.StatusNotFound,
	apperr.KindConflict:        http.StatusConflict,
	apperr.KindRateLimited:     http.StatusTooManyRequests,
	apperr.KindInternal:        http.StatusInternalServerError,
}

// statusFor returns the HTTP status for err.
func statusFor(err error) int {
	if status, ok := kindStatus[apperr.KindOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// writeError renders err. Internal errors are logged and replaced with a
// generic message; everything else is safe to show.
func (s *Server) writeError(c echo.Context, err error) error {
	kind := apperr.KindOf(err)
	status := statusFor(err)

	resp := ErrorResponse{
		Error:   strings.ToUpper(string(kind)),
		Message: err.Error(),
	}
	if code := apperr.Code(err); code != "" {
		resp.Error = code
	}

	var (
		ve *apperr.ValidationError
		re *apperr.RateLimitError
	)
	switch {
	case errors.As(err, &ve):
		resp.Field = ve.Field
		resp.Message = ve.Error()
	case errors.As(err, &re):
		resetAt := re.ResetAt.UTC()
		resp.ResetAt = &resetAt
		resp.Message = "too many requests, try again later"
		c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(resetAt, s.now())))
	case kind == apperr.KindInternal:
		s.logger.Error("request failed", append(logging.ContextFields(c.Request().Context()),
			zap.String("method", c.Request().Method),
			zap.String("path", c.Path()),
			zap.Error(err))...)
		resp.Message = "something went wrong, please try again"
	}

	return c.JSON(status, resp)
}

func retryAfterSeconds(resetAt, now time.Time) int {
	secs := int(math.Ceil(resetAt.Sub(now).Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// httpErrorHandler renders errors that escape handlers, including Echo's own
// routing and binding errors, in the same shape as writeError.
func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if m, ok := he.Message.(string); ok {
			msg = m
		}
		if he.Code >= http.StatusInternalServerError {
			s.logger.Error("request failed", append(logging.ContextFields(c.Request().Context()),
				zap.String("path", c.Path()), zap.Error(err))...)
			msg = "something went wrong, please try again"
		}
		_ = c.JSON(he.Code, ErrorResponse{
			Error:   strings.ToUpper(strings.ReplaceAll(http.StatusText(he.Code), " ", "_")),
			Message: msg,
		})
		return
	}

	_ = s.writeError(c, err)
}
