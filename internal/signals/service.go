package signals

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/stephdmurray-sys/nomee-sub001/internal/apperr"
	"github.com/stephdmurray-sys/nomee-sub001/internal/store"
)

const instrumentationName = "github.com/stephdmurray-sys/nomee-sub001/internal/signals"

// ErrProfileNotFound is returned for unknown profiles.
var ErrProfileNotFound = fmt.Errorf("profile %w", apperr.ErrNotFound)

// Store is the read access the service needs.
type Store interface {
	GetProfile(ctx context.Context, id string) (*store.Profile, error)
	GetProfileBySlug(ctx context.Context, slug string) (*store.Profile, error)
	ListContributions(ctx context.Context, ownerID string, status store.ContributionStatus) ([]store.Contribution, error)
	ListImports(ctx context.Context, ownerID string) ([]store.ImportedFeedback, error)
}

// Profile is the aggregate together with the profile it describes.
type Profile struct {
	ProfileID   string `json:"profileId"`
	Slug        string `json:"slug"`
	DisplayName string `json:"displayName"`
	Result
}

// Service loads a profile's sources and aggregates them.
type Service struct {
	store  Store
	opts   Options
	logger *zap.Logger
	tracer trace.Tracer
}

// NewService creates a signals service.
func NewService(st Store, opts Options, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: st, opts: opts, logger: logger, tracer: otel.Tracer(instrumentationName)}
}

// ForProfile aggregates the profile identified by id or slug.
func (s *Service) ForProfile(ctx context.Context, idOrSlug string) (*Profile, error) {
	ctx, span := s.tracer.Start(ctx, "signals.ForProfile")
	defer span.End()

	p, err := s.lookup(ctx, idOrSlug)
	if err != nil {
		return nil, err
	}

	contribs, err := s.store.ListContributions(ctx, p.ID, store.StatusConfirmed)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list contributions failed")
		return nil, fmt.Errorf("list contributions: %w", err)
	}
	imports, err := s.store.ListImports(ctx, p.ID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list imports failed")
		return nil, fmt.Errorf("list imports: %w", err)
	}

	res := Aggregate(contribs, imports, s.opts)
	span.SetAttributes(
		attribute.String("profile.id", p.ID),
		attribute.Int("signals.contributions", res.ContributionCount),
		attribute.Int("signals.imports", res.ImportCount),
	)
	s.logger.Debug("signals aggregated",
		zap.String("profile_id", p.ID),
		zap.Int("traits", len(res.Traits)),
		zap.String("confidence_level", string(res.ConfidenceLevel)))

	return &Profile{ProfileID: p.ID, Slug: p.Slug, DisplayName: p.DisplayName, Result: res}, nil
}

func (s *Service) lookup(ctx context.Context, idOrSlug string) (*store.Profile, error) {
	if idOrSlug == "" {
		return nil, ErrProfileNotFound
	}
	p, err := s.store.GetProfile(ctx, idOrSlug)
	if errors.Is(err, store.ErrNotFound) {
		p, err = s.store.GetProfileBySlug(ctx, idOrSlug)
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("load profile: %w", err)
	}
	return p, nil
}
