// Package moderation accepts abuse reports against contributions and flags
// contributions that accumulate too many pending reports.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/stephdmurray-sys/nomee-sub001/internal/apperr"
	"github.com/stephdmurray-sys/nomee-sub001/internal/identity"
	"github.com/stephdmurray-sys/nomee-sub001/internal/logging"
	"github.com/stephdmurray-sys/nomee-sub001/internal/ratelimit"
	"github.com/stephdmurray-sys/nomee-sub001/internal/sanitize"
	"github.com/stephdmurray-sys/nomee-sub001/internal/store"
)

const instrumentationName = "github.com/stephdmurray-sys/nomee-sub001/internal/moderation"

// DefaultFlagThreshold is the pending report count that flags a contribution.
const DefaultFlagThreshold = 3

const maxDetailsRunes = 1000

// Reasons are the accepted report reasons.
var Reasons = []string{"spam", "inappropriate", "fake", "harassment", "other"}

var (
	// ErrContributionNotFound is returned when the reported contribution does
	// not exist.
	ErrContributionNotFound = fmt.Errorf("contribution %w", apperr.ErrNotFound)

	// ErrReportNotFound is returned when reviewing an unknown report.
	ErrReportNotFound = fmt.Errorf("report %w", apperr.ErrNotFound)
)

var (
	reportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nomee",
		Subsystem: "moderation",
		Name:      "reports_total",
		Help:      "Accepted reports by reason",
	}, []string{"reason"})

	flagsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "nomee",
		Subsystem: "moderation",
		Name:      "auto_flags_total",
		Help:      "Contributions flagged automatically",
	})
)

// ReportRequest is a report submission.
type ReportRequest struct {
	ContributionID string `json:"contributionId"`
	ReporterEmail  string `json:"reporterEmail,omitempty"`
	Reason         string `json:"reason"`
	Details        string `json:"details,omitempty"`
	ClientIP       string `json:"-"`
}

// Store is the persistence the service needs.
type Store interface {
	InsertReport(ctx context.Context, r *store.Report) error
	FlagIfReported(ctx context.Context, contributionID string, threshold int, now time.Time) (bool, error)
	ListReports(ctx context.Context, status store.ReportStatus) ([]store.Report, error)
	SetReportStatus(ctx context.Context, id string, status store.ReportStatus, now time.Time) error
}

// Limiter checks request budgets.
type Limiter interface {
	Check(ctx context.Context, identifier string, p ratelimit.Policy) ratelimit.Result
}

// Config configures the service.
type Config struct {
	Policy        ratelimit.Policy
	FlagThreshold int
}

// DefaultServiceConfig returns the default configuration.
func DefaultServiceConfig() *Config {
	return &Config{Policy: ratelimit.ReportPolicy(), FlagThreshold: DefaultFlagThreshold}
}

// Option configures the service.
type Option func(*Service)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service handles reports.
type Service struct {
	config  *Config
	store   Store
	limiter Limiter
	logger  *zap.Logger
	now     func() time.Time
	tracer  trace.Tracer
}

// NewService creates a moderation service.
func NewService(cfg *Config, st Store, limiter Limiter, logger *zap.Logger, opts ...Option) (*Service, error) {
	if cfg == nil {
		cfg = DefaultServiceConfig()
	}
	if cfg.FlagThreshold < 1 {
		return nil, errors.New("flag threshold must be at least 1")
	}
	if st == nil || limiter == nil {
		return nil, errors.New("store and limiter are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		config:  cfg,
		store:   st,
		limiter: limiter,
		logger:  logger,
		now:     time.Now,
		tracer:  otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Submit validates and stores a report, then flags the contribution if the
// pending count has reached the threshold. It returns the report id.
func (s *Service) Submit(ctx context.Context, req *ReportRequest) (string, error) {
	ctx, span := s.tracer.Start(ctx, "moderation.Submit")
	defer span.End()

	if req == nil {
		return "", apperr.Invalid("", "request body required")
	}
	contributionID := strings.TrimSpace(req.ContributionID)
	if contributionID == "" {
		return "", apperr.Invalid("contributionId", "is required")
	}
	reason := strings.ToLower(strings.TrimSpace(req.Reason))
	if !slices.Contains(Reasons, reason) {
		return "", apperr.Invalid("reason", "must be one of "+strings.Join(Reasons, ", "))
	}
	email := identity.NormalizeEmail(req.ReporterEmail)
	if email != "" {
		if err := identity.ValidateEmail(email); err != nil {
			return "", apperr.Invalid("reporterEmail", "must be a valid email address")
		}
	}

	key := strings.TrimSpace(req.ClientIP)
	if key == "" {
		key = email
	}
	if key == "" {
		key = contributionID
	}
	if res := s.limiter.Check(ctx, key, s.config.Policy); !res.Allowed {
		return "", &apperr.RateLimitError{ResetAt: res.ResetAt}
	}

	now := s.now().UTC()
	r := &store.Report{
		ID:             uuid.NewString(),
		ContributionID: contributionID,
		ReporterEmail:  email,
		Reason:         reason,
		Details:        sanitize.Text(req.Details, maxDetailsRunes),
		Status:         store.ReportPending,
		CreatedAt:      now,
	}
	if err := s.store.InsertReport(ctx, r); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrContributionNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert report failed")
		return "", fmt.Errorf("store report: %w", err)
	}
	reportsTotal.WithLabelValues(reason).Inc()
	span.SetAttributes(attribute.String("report.id", r.ID), attribute.String("report.reason", reason))

	flagged, err := s.store.FlagIfReported(ctx, contributionID, s.config.FlagThreshold, now)
	if err != nil {
		// The report is stored; the next report retries the flag.
		span.RecordError(err)
		s.logger.Error("auto-flag failed", append(logging.ContextFields(ctx),
			zap.String("contribution_id", contributionID), zap.Error(err))...)
	} else if flagged {
		flagsTotal.Inc()
		s.logger.Warn("contribution auto-flagged",
			zap.String("contribution_id", contributionID),
			zap.Int("threshold", s.config.FlagThreshold))
	}

	s.logger.Info("report received",
		zap.String("report_id", r.ID),
		zap.String("contribution_id", contributionID),
		zap.String("reason", reason),
		logging.MaskedEmail("reporter_email", email))
	return r.ID, nil
}

// List returns reports with status, or all reports when status is empty.
func (s *Service) List(ctx context.Context, status store.ReportStatus) ([]store.Report, error) {
	ctx, span := s.tracer.Start(ctx, "moderation.List")
	defer span.End()
	return s.store.ListReports(ctx, status)
}

// Review records a moderator decision on a report. Flags are never cleared
// here.
func (s *Service) Review(ctx context.Context, reportID string, status store.ReportStatus) error {
	ctx, span := s.tracer.Start(ctx, "moderation.Review")
	defer span.End()

	if status != store.ReportReviewed && status != store.ReportDismissed {
		return apperr.Invalid("status", "must be reviewed or dismissed")
	}
	if err := s.store.SetReportStatus(ctx, reportID, status, s.now()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrReportNotFound
		}
		span.RecordError(err)
		return err
	}
	s.logger.Info("report reviewed", zap.String("report_id", reportID), zap.String("status", string(status)))
	return nil
}
