package apperr

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"validation", Invalid("email", "is invalid"), KindValidation},
		{"wrapped validation", fmt.Errorf("create: %w", Invalid("message", "required")), KindValidation},
		{"rate limited", &RateLimitError{ResetAt: time.Now()}, KindRateLimited},
		{"not found", fmt.Errorf("load: %w", ErrNotFound), KindNotFound},
		{"conflict", ErrConflict, KindConflict},
		{"unauthenticated", ErrUnauthenticated, KindUnauthenticated},
		{"forbidden", ErrForbidden, KindForbidden},
		{"coded not found", WithCode("NOT_FOUND", ErrNotFound), KindNotFound},
		{"unknown", errors.New("boom"), KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestCode(t *testing.T) {
	err := fmt.Errorf("attach: %w", WithCode("DUPLICATE_SUBMISSION", ErrConflict))
	assert.Equal(t, "DUPLICATE_SUBMISSION", Code(err))
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, "", Code(errors.New("plain")))
}

func TestValidationError_Message(t *testing.T) {
	assert.Equal(t, "giverName: is required", Invalid("giverName", "is required").Error())
	assert.Equal(t, "bad input", Invalid("", "bad input").Error())
}
