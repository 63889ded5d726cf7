package contribution

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/stephdmurray-sys/nomee-sub001/internal/apperr"
	"github.com/stephdmurray-sys/nomee-sub001/internal/identity"
	"github.com/stephdmurray-sys/nomee-sub001/internal/logging"
	"github.com/stephdmurray-sys/nomee-sub001/internal/mailer"
	"github.com/stephdmurray-sys/nomee-sub001/internal/plans"
	"github.com/stephdmurray-sys/nomee-sub001/internal/ratelimit"
	"github.com/stephdmurray-sys/nomee-sub001/internal/sanitize"
	"github.com/stephdmurray-sys/nomee-sub001/internal/store"
)

const instrumentationName = "github.com/stephdmurray-sys/nomee-sub001/internal/contribution"

const maxNameRunes = 120

// Service manages contributions.
type Service interface {
	// Create stores a pending contribution without identity.
	Create(ctx context.Context, req *CreateRequest) (*store.Contribution, error)

	// AttachIdentity sets contributor name and email and sends the
	// confirmation link. Errors carry one of the Code* values.
	AttachIdentity(ctx context.Context, req *IdentityRequest) error

	// Confirm completes confirmation for a token from the emailed link.
	Confirm(ctx context.Context, id, token string) error

	// SetFeatured features or unfeatures an owner's confirmed contribution.
	SetFeatured(ctx context.Context, ownerID, id string, featured bool) error

	// Delete removes an owner's contribution.
	Delete(ctx context.Context, ownerID, id string) error

	// ListForOwner returns all of an owner's contributions, newest first.
	ListForOwner(ctx context.Context, ownerID string) ([]store.Contribution, error)
}

// Store is the persistence the service needs.
type Store interface {
	GetProfile(ctx context.Context, id string) (*store.Profile, error)
	InsertContribution(ctx context.Context, c *store.Contribution) error
	GetContribution(ctx context.Context, id string) (*store.Contribution, error)
	ListContributions(ctx context.Context, ownerID string, status store.ContributionStatus) ([]store.Contribution, error)
	AttachIdentity(ctx context.Context, id, name, email, emailHash, tokenHash string) error
	ConfirmContribution(ctx context.Context, id, tokenHash string, now time.Time) error
	SetFeatured(ctx context.Context, ownerID, id string, featured bool, quota int) (bool, error)
	DeleteContribution(ctx context.Context, ownerID, id string) error
}

// Limiter checks request budgets.
type Limiter interface {
	Check(ctx context.Context, identifier string, p ratelimit.Policy) ratelimit.Result
}

// DuplicateGuard rejects a second live submission from the same email.
type DuplicateGuard interface {
	Check(ctx context.Context, ownerID, emailHash, contributionID string) error
}

// Option configures the service.
type Option func(*service)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

type service struct {
	config  *Config
	store   Store
	limiter Limiter
	guard   DuplicateGuard
	mailer  mailer.Mailer
	logger  *zap.Logger
	now     func() time.Time

	tracer        trace.Tracer
	submitCounter metric.Int64Counter
	confirmCount  metric.Int64Counter
}

// NewService creates a contribution service.
func NewService(cfg *Config, st Store, limiter Limiter, guard DuplicateGuard, m mailer.Mailer, logger *zap.Logger, opts ...Option) (Service, error) {
	if cfg == nil {
		cfg = DefaultServiceConfig()
	}
	if st == nil {
		return nil, errors.New("store is required")
	}
	if limiter == nil || guard == nil {
		return nil, errors.New("limiter and duplicate guard are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = mailer.NewLogMailer(logger)
	}

	s := &service{
		config:  cfg,
		store:   st,
		limiter: limiter,
		guard:   guard,
		mailer:  m,
		logger:  logger,
		now:     time.Now,
		tracer:  otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.initMetrics()
	return s, nil
}

func (s *service) initMetrics() {
	meter := otel.Meter(instrumentationName)
	var err error

	s.submitCounter, err = meter.Int64Counter(
		"nomee.contribution.identity_submissions_total",
		metric.WithDescription("Identity submissions by result code"),
		metric.WithUnit("{submission}"),
	)
	if err != nil {
		s.logger.Warn("failed to create submission counter", zap.Error(err))
	}

	s.confirmCount, err = meter.Int64Counter(
		"nomee.contribution.confirmations_total",
		metric.WithDescription("Confirmation attempts by outcome"),
		metric.WithUnit("{confirmation}"),
	)
	if err != nil {
		s.logger.Warn("failed to create confirmation counter", zap.Error(err))
	}
}

func (s *service) Create(ctx context.Context, req *CreateRequest) (*store.Contribution, error) {
	ctx, span := s.tracer.Start(ctx, "contribution.Create")
	defer span.End()

	if req == nil {
		return nil, apperr.Invalid("", "request body required")
	}
	ownerID := strings.TrimSpace(req.OwnerID)
	if ownerID == "" {
		return nil, apperr.Invalid("profileId", "is required")
	}
	message := sanitize.Text(req.Message, s.config.MaxMessageRunes)
	if message == "" {
		return nil, apperr.Invalid("message", "is required")
	}
	relationship := strings.ToLower(strings.TrimSpace(req.Relationship))
	if !slices.Contains(Relationships, relationship) {
		return nil, apperr.Invalid("relationship", "must be one of "+strings.Join(Relationships, ", "))
	}
	if req.VoiceURL != "" {
		if u, err := url.Parse(req.VoiceURL); err != nil || u.Scheme == "" || u.Host == "" {
			return nil, apperr.Invalid("voiceUrl", "must be an absolute URL")
		}
	}

	if _, err := s.store.GetProfile(ctx, ownerID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("profile %w", apperr.ErrNotFound)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "profile lookup failed")
		return nil, fmt.Errorf("load profile: %w", err)
	}

	c := &store.Contribution{
		ID:           uuid.NewString(),
		OwnerID:      ownerID,
		Message:      message,
		VoiceURL:     req.VoiceURL,
		Relationship: relationship,
		Traits:       cleanTags(req.Traits, s.config.MaxTags),
		Vibes:        cleanTags(req.Vibes, s.config.MaxTags),
		Status:       store.StatusPendingConfirmation,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.InsertContribution(ctx, c); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return nil, fmt.Errorf("create contribution: %w", err)
	}

	span.SetAttributes(attribute.String("contribution.id", c.ID))
	s.logger.Info("contribution created",
		zap.String("contribution_id", c.ID),
		zap.String("owner_id", ownerID))
	return c, nil
}

func (s *service) AttachIdentity(ctx context.Context, req *IdentityRequest) (err error) {
	ctx, span := s.tracer.Start(ctx, "contribution.AttachIdentity")
	defer span.End()
	defer func() {
		code := "OK"
		if err != nil {
			code = apperr.Code(err)
			span.SetAttributes(attribute.String("contribution.error_code", code))
		}
		if s.submitCounter != nil {
			s.submitCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("code", code)))
		}
	}()

	if req == nil {
		return apperr.WithCode(CodeMissingFields, apperr.Invalid("", "request body required"))
	}
	id := strings.TrimSpace(req.ContributionID)
	name := sanitize.Line(req.ContributorName, maxNameRunes)
	email := identity.NormalizeEmail(req.ContributorEmail)

	switch {
	case id == "":
		return apperr.WithCode(CodeMissingFields, apperr.Invalid("contributionId", "is required"))
	case name == "":
		return apperr.WithCode(CodeMissingFields, apperr.Invalid("contributorName", "is required"))
	case email == "":
		return apperr.WithCode(CodeMissingFields, apperr.Invalid("contributorEmail", "is required"))
	}

	if err := identity.ValidateEmail(email); err != nil {
		return apperr.WithCode(CodeInvalidEmail, apperr.Invalid("contributorEmail", "must be a valid email address"))
	}

	key := strings.TrimSpace(req.ClientIP)
	if key == "" {
		key = email
	}
	if res := s.limiter.Check(ctx, key, s.config.SubmissionPolicy); !res.Allowed {
		return apperr.WithCode(CodeRateLimit, &apperr.RateLimitError{ResetAt: res.ResetAt})
	}

	c, err := s.store.GetContribution(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.WithCode(CodeNotFound, ErrNotFound)
		}
		span.RecordError(err)
		return apperr.WithCode(CodeUpdateError, fmt.Errorf("load contribution: %w", err))
	}

	hash := identity.HashEmail(email)
	if err := s.guard.Check(ctx, c.OwnerID, hash, c.ID); err != nil {
		if errors.Is(err, identity.ErrDuplicateSubmission) {
			return apperr.WithCode(CodeDuplicateSubmission, fmt.Errorf("%w: %w", apperr.ErrConflict, err))
		}
		span.RecordError(err)
		return apperr.WithCode(CodeUpdateError, err)
	}

	if c.Status != store.StatusPendingConfirmation {
		return apperr.WithCode(CodeUpdateError, ErrAlreadyConfirmed)
	}

	token, tokenHash, err := newToken()
	if err != nil {
		span.RecordError(err)
		return apperr.WithCode(CodeUpdateError, err)
	}

	if err := s.store.AttachIdentity(ctx, c.ID, name, email, hash, tokenHash); err != nil {
		switch {
		case errors.Is(err, store.ErrConflict):
			return apperr.WithCode(CodeDuplicateSubmission,
				fmt.Errorf("%w: %w", apperr.ErrConflict, identity.ErrDuplicateSubmission))
		default:
			span.RecordError(err)
			span.SetStatus(codes.Error, "attach identity failed")
			return apperr.WithCode(CodeUpdateError, err)
		}
	}

	s.sendConfirmation(ctx, c, name, email, token)
	s.logger.Info("contributor identity attached",
		zap.String("contribution_id", c.ID),
		zap.String("owner_id", c.OwnerID))
	return nil
}

// sendConfirmation dispatches the link. Failures are logged only; the
// contributor can resubmit to receive a fresh token.
func (s *service) sendConfirmation(ctx context.Context, c *store.Contribution, name, email, token string) {
	profileName := ""
	if p, err := s.store.GetProfile(ctx, c.OwnerID); err == nil {
		profileName = p.DisplayName
	}

	q := url.Values{}
	q.Set("id", c.ID)
	q.Set("token", token)
	link := strings.TrimRight(s.config.ConfirmBaseURL, "/") + "/api/v1/contributions/confirm?" + q.Encode()

	err := s.mailer.SendConfirmation(ctx, mailer.Confirmation{
		ContributionID:  c.ID,
		To:              email,
		ContributorName: name,
		ProfileName:     profileName,
		ConfirmURL:      link,
	})
	if err != nil {
		s.logger.Warn("confirmation email dispatch failed",
			zap.String("contribution_id", c.ID),
			zap.Error(err))
	}
}

func (s *service) Confirm(ctx context.Context, id, token string) error {
	ctx, span := s.tracer.Start(ctx, "contribution.Confirm")
	defer span.End()

	outcome := "failed"
	defer func() {
		if s.confirmCount != nil {
			s.confirmCount.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
		}
	}()

	if id == "" || token == "" {
		return ErrConfirmationFailed
	}

	c, err := s.store.GetContribution(ctx, id)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			span.RecordError(err)
			s.logger.Error("confirmation lookup failed", append(logging.ContextFields(ctx),
				zap.String("contribution_id", id), zap.Error(err))...)
		}
		return ErrConfirmationFailed
	}
	if c.Status != store.StatusPendingConfirmation || !tokenMatches(token, c.ConfirmationTokenHash) {
		return ErrConfirmationFailed
	}

	if err := s.store.ConfirmContribution(ctx, c.ID, c.ConfirmationTokenHash, s.now()); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			span.RecordError(err)
			s.logger.Error("confirmation update failed", append(logging.ContextFields(ctx),
				zap.String("contribution_id", id), zap.Error(err))...)
		}
		return ErrConfirmationFailed
	}

	outcome = "confirmed"
	s.logger.Info("contribution confirmed",
		zap.String("contribution_id", c.ID),
		zap.String("owner_id", c.OwnerID))
	return nil
}

func (s *service) SetFeatured(ctx context.Context, ownerID, id string, featured bool) error {
	ctx, span := s.tracer.Start(ctx, "contribution.SetFeatured",
		trace.WithAttributes(attribute.Bool("contribution.featured", featured)))
	defer span.End()

	c, err := s.owned(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if !featured {
		if _, err := s.store.SetFeatured(ctx, ownerID, id, false, plans.Unlimited); err != nil {
			return s.mapStoreErr(span, "unfeature", err)
		}
		return nil
	}
	if c.Status != store.StatusConfirmed {
		return ErrNotConfirmed
	}

	profile, err := s.store.GetProfile(ctx, ownerID)
	if err != nil {
		return s.mapStoreErr(span, "load profile", err)
	}
	quota := plans.Normalize(profile.Plan).FeaturedQuota()

	ok, err := s.store.SetFeatured(ctx, ownerID, id, true, quota)
	if err != nil {
		return s.mapStoreErr(span, "feature", err)
	}
	if !ok {
		s.logger.Info("featured limit reached",
			zap.String("owner_id", ownerID),
			zap.String("plan", string(profile.Plan)),
			zap.Int("quota", quota))
		return ErrFeaturedLimit
	}
	return nil
}

func (s *service) Delete(ctx context.Context, ownerID, id string) error {
	ctx, span := s.tracer.Start(ctx, "contribution.Delete")
	defer span.End()

	if _, err := s.owned(ctx, ownerID, id); err != nil {
		return err
	}
	if err := s.store.DeleteContribution(ctx, ownerID, id); err != nil {
		return s.mapStoreErr(span, "delete", err)
	}
	s.logger.Info("contribution deleted",
		zap.String("contribution_id", id),
		zap.String("owner_id", ownerID))
	return nil
}

func (s *service) ListForOwner(ctx context.Context, ownerID string) ([]store.Contribution, error) {
	ctx, span := s.tracer.Start(ctx, "contribution.ListForOwner")
	defer span.End()

	out, err := s.store.ListContributions(ctx, ownerID, "")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list failed")
		return nil, fmt.Errorf("list contributions: %w", err)
	}
	return out, nil
}

// owned loads id and hides rows that belong to another owner.
func (s *service) owned(ctx context.Context, ownerID, id string) (*store.Contribution, error) {
	if ownerID == "" {
		return nil, apperr.ErrUnauthenticated
	}
	c, err := s.store.GetContribution(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load contribution: %w", err)
	}
	if c.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	return c, nil
}

func (s *service) mapStoreErr(span trace.Span, op string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, op+" failed")
	return fmt.Errorf("%s: %w", op, err)
}

// cleanTags trims values, drops blanks and duplicates and caps the count.
// Values are stored as given; the aggregator resolves them later.
func cleanTags(values []string, limit int) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = sanitize.Line(v, 64)
		key := strings.ToLower(v)
		if v == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
