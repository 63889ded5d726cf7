// Package identity normalizes contributor emails and guards against one
// contributor submitting twice to the same profile.
package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/stephdmurray-sys/nomee-sub001/internal/store"
)

const instrumentationName = "github.com/stephdmurray-sys/nomee-sub001/internal/identity"

var (
	// ErrDuplicateSubmission is returned when another live contribution to the
	// same owner already carries the email hash.
	ErrDuplicateSubmission = errors.New("contributor already submitted to this profile")

	// ErrInvalidEmail is returned for addresses that are not local@domain.tld.
	ErrInvalidEmail = errors.New("invalid email address")
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// NormalizeEmail lowercases and trims an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail checks the normalized address shape.
func ValidateEmail(email string) error {
	if !emailPattern.MatchString(NormalizeEmail(email)) {
		return ErrInvalidEmail
	}
	return nil
}

// HashEmail returns hex(SHA-256(NormalizeEmail(email))).
func HashEmail(email string) string {
	sum := sha256.Sum256([]byte(NormalizeEmail(email)))
	return hex.EncodeToString(sum[:])
}

// Store looks up live contributions by email hash.
type Store interface {
	FindLiveByEmailHash(ctx context.Context, ownerID, emailHash, excludeID string) (*store.Contribution, error)
}

// Guard rejects duplicate submissions.
type Guard struct {
	store  Store
	logger *zap.Logger
}

// NewGuard creates a Guard.
func NewGuard(s Store, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{store: s, logger: logger}
}

// Check returns ErrDuplicateSubmission when a contribution other than
// contributionID, owned by ownerID and pending or confirmed, has emailHash.
// Retrying the same contribution is allowed.
func (g *Guard) Check(ctx context.Context, ownerID, emailHash, contributionID string) error {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "identity.Check")
	defer span.End()

	existing, err := g.store.FindLiveByEmailHash(ctx, ownerID, emailHash, contributionID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, "lookup failed")
		return fmt.Errorf("duplicate check: %w", err)
	}

	g.logger.Info("duplicate submission rejected",
		zap.String("owner_id", ownerID),
		zap.String("existing_id", existing.ID),
		zap.String("contribution_id", contributionID))
	duplicates.Inc()
	return ErrDuplicateSubmission
}
