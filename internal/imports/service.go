package imports

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/stephdmurray-sys/nomee-sub001/internal/apperr"
	"github.com/stephdmurray-sys/nomee-sub001/internal/blob"
	"github.com/stephdmurray-sys/nomee-sub001/internal/extraction"
	"github.com/stephdmurray-sys/nomee-sub001/internal/plans"
	"github.com/stephdmurray-sys/nomee-sub001/internal/sanitize"
	"github.com/stephdmurray-sys/nomee-sub001/internal/store"
	"github.com/stephdmurray-sys/nomee-sub001/internal/taxonomy"
)

const instrumentationName = "github.com/stephdmurray-sys/nomee-sub001/internal/imports"

// Service manages imported feedback.
type Service interface {
	// Upload stores a screenshot for ownerID and returns its key.
	Upload(ctx context.Context, ownerID, filename string, r io.Reader) (*Upload, error)

	// CreateRecord registers an uploaded screenshot as a pending import.
	CreateRecord(ctx context.Context, ownerID, imageKey string) (*store.ImportedFeedback, error)

	// Process runs text recognition and structured extraction. Model
	// failures leave the record in requires_review rather than erroring.
	// Processing an import again overwrites the previous result.
	Process(ctx context.Context, ownerID, id string) (*store.ImportedFeedback, error)

	// Approve publishes an import with the owner's edits.
	Approve(ctx context.Context, ownerID, id string, req *ApproveRequest) (*store.ImportedFeedback, error)

	// UpdateVisibility switches an import between public and private.
	UpdateVisibility(ctx context.Context, ownerID, id string, v store.Visibility) error

	// Delete removes the import and, best effort, its screenshot.
	Delete(ctx context.Context, ownerID, id string) error

	// List returns the owner's imports, newest first.
	List(ctx context.Context, ownerID string) ([]store.ImportedFeedback, error)

	// Limits reports import usage against the owner's plan.
	Limits(ctx context.Context, ownerID string) (plans.Limits, error)
}

// Store is the persistence the service needs.
type Store interface {
	GetProfile(ctx context.Context, id string) (*store.Profile, error)
	InsertImport(ctx context.Context, f *store.ImportedFeedback) error
	GetImport(ctx context.Context, id string) (*store.ImportedFeedback, error)
	ListImports(ctx context.Context, ownerID string) ([]store.ImportedFeedback, error)
	CountImports(ctx context.Context, ownerID string) (int, error)
	SaveExtraction(ctx context.Context, f *store.ImportedFeedback) error
	ApproveImport(ctx context.Context, f *store.ImportedFeedback) error
	SetImportVisibility(ctx context.Context, ownerID, id string, v store.Visibility, now time.Time) error
	DeleteImport(ctx context.Context, ownerID, id string) error
}

// Option configures the service.
type Option func(*service)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

type service struct {
	config    *Config
	store     Store
	blobs     blob.Store
	extractor extraction.Client
	logger    *zap.Logger
	now       func() time.Time
	tracer    trace.Tracer
}

// NewService creates an import service. A nil extractor disables model
// calls and every processed import requires review.
func NewService(cfg *Config, st Store, blobs blob.Store, extractor extraction.Client, logger *zap.Logger, opts ...Option) (Service, error) {
	if cfg == nil {
		cfg = DefaultServiceConfig()
	}
	if st == nil {
		return nil, errors.New("store is required")
	}
	if blobs == nil {
		return nil, errors.New("blob store is required")
	}
	if extractor == nil {
		extractor = extraction.Disabled{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &service{
		config:    cfg,
		store:     st,
		blobs:     blobs,
		extractor: extractor,
		logger:    logger,
		now:       time.Now,
		tracer:    otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *service) Upload(ctx context.Context, ownerID, filename string, r io.Reader) (*Upload, error) {
	ctx, span := s.tracer.Start(ctx, "imports.Upload")
	defer span.End()

	if ownerID == "" {
		return nil, apperr.ErrUnauthenticated
	}
	if _, err := s.checkLimit(ctx, ownerID); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(r, s.config.MaxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return nil, apperr.Invalid("file", "is required")
	}
	if int64(len(data)) > s.config.MaxImageBytes {
		return nil, apperr.Invalid("file", fmt.Sprintf("must be at most %d bytes", s.config.MaxImageBytes))
	}
	contentType := http.DetectContentType(data)
	if !slices.Contains(AllowedImageTypes, contentType) {
		return nil, apperr.Invalid("file", "must be a PNG, JPEG, WebP or GIF image")
	}

	key, err := blob.NewKey(blob.KindImport, ownerID, filename)
	if err != nil {
		return nil, apperr.Invalid("file", "invalid filename")
	}
	obj, err := s.blobs.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "blob put failed")
		return nil, fmt.Errorf("store screenshot: %w", err)
	}

	s.logger.Info("screenshot uploaded",
		zap.String("owner_id", ownerID),
		zap.String("key", obj.Key),
		zap.Int("size", len(data)))
	return &Upload{Key: obj.Key, URL: obj.URL, ContentType: contentType, Size: int64(len(data))}, nil
}

func (s *service) CreateRecord(ctx context.Context, ownerID, imageKey string) (*store.ImportedFeedback, error) {
	ctx, span := s.tracer.Start(ctx, "imports.CreateRecord")
	defer span.End()

	if ownerID == "" {
		return nil, apperr.ErrUnauthenticated
	}
	imageKey = strings.TrimSpace(imageKey)
	if imageKey == "" {
		return nil, apperr.Invalid("imageKey", "is required")
	}
	if err := sanitize.ValidateObjectKey(imageKey); err != nil ||
		!strings.HasPrefix(imageKey, blob.KindImport+"/"+strings.ToLower(ownerID)+"/") {
		return nil, apperr.Invalid("imageKey", "must reference one of your uploads")
	}
	if _, err := s.checkLimit(ctx, ownerID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	f := &store.ImportedFeedback{
		ID:             uuid.NewString(),
		OwnerID:        ownerID,
		ImageKey:       imageKey,
		ImageURL:       s.blobs.URL(imageKey),
		State:          store.ImportPendingProcessing,
		Excerpt:        PlaceholderProcessing,
		GiverName:      PlaceholderProcessing,
		SourceType:     "other",
		Traits:         []string{},
		RequiresReview: true,
		Visibility:     store.VisibilityPrivate,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.InsertImport(ctx, f); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return nil, fmt.Errorf("create import: %w", err)
	}

	span.SetAttributes(attribute.String("import.id", f.ID))
	s.logger.Info("import created", zap.String("import_id", f.ID), zap.String("owner_id", ownerID))
	return f, nil
}

// checkLimit returns the owner's usage, or ErrImportLimit when it is full.
func (s *service) checkLimit(ctx context.Context, ownerID string) (plans.Limits, error) {
	limits, err := s.Limits(ctx, ownerID)
	if err != nil {
		return limits, err
	}
	if !plans.Allows(limits.Limit, limits.CurrentCount) {
		s.logger.Info("import limit reached",
			zap.String("owner_id", ownerID),
			zap.String("plan", string(limits.Plan)),
			zap.Int("limit", limits.Limit))
		return limits, ErrImportLimit
	}
	return limits, nil
}

func (s *service) Limits(ctx context.Context, ownerID string) (plans.Limits, error) {
	if ownerID == "" {
		return plans.Limits{}, apperr.ErrUnauthenticated
	}
	profile, err := s.store.GetProfile(ctx, ownerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return plans.Limits{}, fmt.Errorf("profile %w", apperr.ErrNotFound)
		}
		return plans.Limits{}, fmt.Errorf("load profile: %w", err)
	}
	n, err := s.store.CountImports(ctx, ownerID)
	if err != nil {
		return plans.Limits{}, err
	}
	return plans.ImportLimits(profile.Plan, n), nil
}

func (s *service) Process(ctx context.Context, ownerID, id string) (*store.ImportedFeedback, error) {
	ctx, span := s.tracer.Start(ctx, "imports.Process")
	defer span.End()

	f, err := s.owned(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	res := s.run(ctx, f.ImageKey)
	f.State = store.ImportExtracted
	if res.requiresReview {
		f.State = store.ImportRequiresReview
	}
	f.OCRText = res.ocrText
	f.Excerpt = res.fields.Excerpt
	f.GiverName = res.fields.GiverName
	f.GiverCompany = res.fields.GiverCompany
	f.GiverRole = res.fields.GiverRole
	f.SourceType = res.fields.SourceType
	f.ApproxDate = res.fields.ApproxDate
	f.Traits = res.fields.Traits
	f.Confidence = res.confidence
	f.RequiresReview = res.requiresReview
	f.ApprovedByOwner = false
	f.ApprovedAt = nil
	f.UpdatedAt = s.now().UTC()

	if err := s.store.SaveExtraction(ctx, f); err != nil {
		return nil, s.mapStoreErr(span, "save extraction", err)
	}

	processed.WithLabelValues(string(f.State), res.failure).Inc()
	span.SetAttributes(
		attribute.String("import.state", string(f.State)),
		attribute.Float64("import.confidence", f.Confidence),
	)
	s.logger.Info("import processed",
		zap.String("import_id", f.ID),
		zap.String("state", string(f.State)),
		zap.Float64("confidence", f.Confidence),
		zap.String("failure", res.failure))
	return f, nil
}

// pipelineResult is the outcome of both model stages.
type pipelineResult struct {
	ocrText        string
	fields         extracted
	confidence     float64
	requiresReview bool
	// failure names the stage that degraded the result, or "" on success.
	failure string
}

func (s *service) run(ctx context.Context, imageKey string) pipelineResult {
	data, contentType, err := blob.ReadAll(ctx, s.blobs, imageKey, s.config.MaxImageBytes)
	if err != nil {
		s.logger.Warn("screenshot unavailable", zap.String("key", imageKey), zap.Error(err))
		return unreadable("storage")
	}

	text, err := s.readText(ctx, extraction.Image{Data: data, MediaType: contentType})
	if err != nil {
		s.logger.Warn("text recognition failed", zap.String("key", imageKey), zap.Error(err))
		return unreadable("ocr")
	}
	text = sanitize.Text(text, 20000)
	if len([]rune(text)) < minOCRChars {
		return unreadable("empty_text")
	}
	ocrConf := ocrConfidence(text)

	raw, err := s.extractFields(ctx, text)
	if err != nil {
		s.logger.Warn("structured extraction failed", zap.String("key", imageKey), zap.Error(err))
		return failedExtraction(text, "extraction")
	}
	fields, err := parseFields(raw)
	if err != nil {
		s.logger.Warn("structured extraction unparseable", zap.String("key", imageKey), zap.Error(err))
		return failedExtraction(text, "parse")
	}
	if fields.Excerpt == "" {
		fields.Excerpt = sanitize.Text(text, maxExcerptRunes)
	}

	confidence := ocrConf
	if fields.HasConfidence {
		confidence = fields.Confidence
	}
	return pipelineResult{
		ocrText:        text,
		fields:         fields,
		confidence:     confidence,
		requiresReview: RequiresReview(confidence),
	}
}

func (s *service) readText(ctx context.Context, img extraction.Image) (string, error) {
	ctx, cancel := s.stageContext(ctx)
	defer cancel()
	start := time.Now()
	defer func() { stageDuration.WithLabelValues("ocr").Observe(time.Since(start).Seconds()) }()
	return s.extractor.ReadText(ctx, img)
}

func (s *service) extractFields(ctx context.Context, text string) (string, error) {
	ctx, cancel := s.stageContext(ctx)
	defer cancel()
	start := time.Now()
	defer func() { stageDuration.WithLabelValues("extract").Observe(time.Since(start).Seconds()) }()
	return s.extractor.ExtractFields(ctx, text)
}

func (s *service) stageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.StageTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.config.StageTimeout)
}

func unreadable(failure string) pipelineResult {
	return pipelineResult{
		fields:         placeholderFields(ExcerptCouldNotExtract),
		requiresReview: true,
		failure:        failure,
	}
}

func failedExtraction(ocrText, failure string) pipelineResult {
	return pipelineResult{
		ocrText:        ocrText,
		fields:         placeholderFields(ExcerptProcessingFailed),
		requiresReview: true,
		failure:        failure,
	}
}

func placeholderFields(excerpt string) extracted {
	return extracted{
		Excerpt:      excerpt,
		GiverName:    PlaceholderReviewNeeded,
		GiverCompany: PlaceholderNotSpecified,
		GiverRole:    PlaceholderNotSpecified,
		SourceType:   "other",
		Traits:       []string{},
	}
}

func (s *service) Approve(ctx context.Context, ownerID, id string, req *ApproveRequest) (*store.ImportedFeedback, error) {
	ctx, span := s.tracer.Start(ctx, "imports.Approve")
	defer span.End()

	if req == nil {
		return nil, apperr.Invalid("", "request body required")
	}
	f, err := s.owned(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	if req.Excerpt != nil {
		f.Excerpt = sanitize.Text(*req.Excerpt, maxExcerptRunes)
	}
	if isExcerptPlaceholder(f.Excerpt) {
		return nil, apperr.Invalid("excerpt", "must contain the feedback text")
	}

	f.GiverName = sanitize.Line(req.GiverName, maxGiverFieldRunes)
	f.GiverCompany = sanitize.Line(req.GiverCompany, maxGiverFieldRunes)
	f.GiverRole = sanitize.Line(req.GiverRole, maxGiverFieldRunes)
	for _, field := range []struct{ name, value string }{
		{"giverName", f.GiverName},
		{"giverCompany", f.GiverCompany},
		{"giverRole", f.GiverRole},
	} {
		if IsPlaceholder(field.value) {
			return nil, apperr.Invalid(field.name, "is required")
		}
	}

	traits := f.Traits
	if req.Traits != nil {
		traits = *req.Traits
	}
	f.Traits = taxonomy.Traits.Filter(traits, maxTraits)

	f.Visibility = store.VisibilityPublic
	if req.Visibility != "" {
		v, err := parseVisibility(req.Visibility)
		if err != nil {
			return nil, err
		}
		f.Visibility = v
	}

	now := s.now().UTC()
	f.State = store.ImportApproved
	f.ApprovedByOwner = true
	f.ApprovedAt = &now
	f.UpdatedAt = now
	if err := s.store.ApproveImport(ctx, f); err != nil {
		return nil, s.mapStoreErr(span, "approve", err)
	}

	s.logger.Info("import approved",
		zap.String("import_id", f.ID),
		zap.String("owner_id", ownerID),
		zap.String("visibility", string(f.Visibility)))
	return f, nil
}

func (s *service) UpdateVisibility(ctx context.Context, ownerID, id string, v store.Visibility) error {
	ctx, span := s.tracer.Start(ctx, "imports.UpdateVisibility")
	defer span.End()

	v, err := parseVisibility(string(v))
	if err != nil {
		return err
	}
	if _, err := s.owned(ctx, ownerID, id); err != nil {
		return err
	}
	if err := s.store.SetImportVisibility(ctx, ownerID, id, v, s.now()); err != nil {
		return s.mapStoreErr(span, "set visibility", err)
	}
	return nil
}

func (s *service) Delete(ctx context.Context, ownerID, id string) error {
	ctx, span := s.tracer.Start(ctx, "imports.Delete")
	defer span.End()

	f, err := s.owned(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteImport(ctx, ownerID, id); err != nil {
		return s.mapStoreErr(span, "delete", err)
	}
	if err := s.blobs.Delete(ctx, f.ImageKey); err != nil {
		s.logger.Warn("screenshot cleanup failed",
			zap.String("import_id", id),
			zap.String("key", f.ImageKey),
			zap.Error(err))
	}
	s.logger.Info("import deleted", zap.String("import_id", id), zap.String("owner_id", ownerID))
	return nil
}

func (s *service) List(ctx context.Context, ownerID string) ([]store.ImportedFeedback, error) {
	ctx, span := s.tracer.Start(ctx, "imports.List")
	defer span.End()

	if ownerID == "" {
		return nil, apperr.ErrUnauthenticated
	}
	out, err := s.store.ListImports(ctx, ownerID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list failed")
		return nil, fmt.Errorf("list imports: %w", err)
	}
	return out, nil
}

// owned loads id and hides imports that belong to another owner.
func (s *service) owned(ctx context.Context, ownerID, id string) (*store.ImportedFeedback, error) {
	if ownerID == "" {
		return nil, apperr.ErrUnauthenticated
	}
	f, err := s.store.GetImport(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load import: %w", err)
	}
	if f.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	return f, nil
}

func (s *service) mapStoreErr(span trace.Span, op string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, op+" failed")
	return fmt.Errorf("%s: %w", op, err)
}

func parseVisibility(v string) (store.Visibility, error) {
	switch store.Visibility(strings.ToLower(strings.TrimSpace(v))) {
	case store.VisibilityPublic:
		return store.VisibilityPublic, nil
	case store.VisibilityPrivate:
		return store.VisibilityPrivate, nil
	default:
		return "", apperr.Invalid("visibility", "must be public or private")
	}
}
