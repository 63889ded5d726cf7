// Package ratelimit implements fixed-window request limits keyed by
// (identifier, action), persisted in the relational store.
//
// The limiter fails open: when the store cannot be reached the request is
// allowed and the failure is logged and counted.
package ratelimit

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/stephdmurray-sys/nomee-sub001/internal/config"
	"github.com/stephdmurray-sys/nomee-sub001/internal/store"
)

const instrumentationName = "github.com/stephdmurray-sys/nomee-sub001/internal/ratelimit"

// Actions with a configured policy.
const (
	ActionSubmission = "submission"
	ActionReport     = "report"
)

// Policy bounds one action to MaxRequests per Window.
type Policy struct {
	Action      string
	MaxRequests int
	Window      time.Duration
}

// SubmissionPolicy allows 3 identity submissions per identifier per 24 hours.
func SubmissionPolicy() Policy {
	return Policy{Action: ActionSubmission, MaxRequests: 3, Window: 24 * time.Hour}
}

// ReportPolicy allows 5 reports per identifier per hour.
func ReportPolicy() Policy {
	return Policy{Action: ActionReport, MaxRequests: 5, Window: time.Hour}
}

// PoliciesFromConfig builds the submission and report policies from config.
func PoliciesFromConfig(cfg config.LimitsConfig) (submission, report Policy) {
	submission = Policy{Action: ActionSubmission, MaxRequests: cfg.SubmissionMax, Window: cfg.SubmissionWindow.Duration()}
	report = Policy{Action: ActionReport, MaxRequests: cfg.ReportMax, Window: cfg.ReportWindow.Duration()}
	return submission, report
}

// Result is the outcome of a Check.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Store persists counters. UpdateRateLimit must run decide and the write
// atomically with respect to other callers.
type Store interface {
	UpdateRateLimit(ctx context.Context, identifier, action string,
		decide func(current *store.RateLimitRecord) *store.RateLimitRecord) error
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// Limiter checks and records requests.
type Limiter struct {
	store  Store
	logger *zap.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// New creates a Limiter.
func New(s Store, logger *zap.Logger, opts ...Option) *Limiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Limiter{
		store:  s,
		logger: logger,
		tracer: otel.Tracer(instrumentationName),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check records one request for identifier under p and reports whether it is
// allowed. A rejected request leaves the counter unchanged.
func (l *Limiter) Check(ctx context.Context, identifier string, p Policy) Result {
	ctx, span := l.tracer.Start(ctx, "ratelimit.Check",
		trace.WithAttributes(attribute.String("ratelimit.action", p.Action)))
	defer span.End()

	now := l.now().UTC()
	var res Result
	err := l.store.UpdateRateLimit(ctx, identifier, p.Action, func(current *store.RateLimitRecord) *store.RateLimitRecord {
		var next *store.RateLimitRecord
		next, res = Decide(current, p, now)
		return next
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store unavailable, failing open")
		l.logger.Warn("rate limit store failed, allowing request",
			zap.String("action", p.Action), zap.Error(err))
		decisions.WithLabelValues(p.Action, "fail_open").Inc()
		return Result{Allowed: true, Remaining: p.MaxRequests - 1, ResetAt: now.Add(p.Window)}
	}

	span.SetAttributes(attribute.Bool("ratelimit.allowed", res.Allowed), attribute.Int("ratelimit.remaining", res.Remaining))
	if res.Allowed {
		decisions.WithLabelValues(p.Action, "allowed").Inc()
	} else {
		decisions.WithLabelValues(p.Action, "limited").Inc()
	}
	return res
}

// Decide applies p to the stored counter at time now. It returns the record
// to persist (nil for no write) and the caller-facing result.
func Decide(current *store.RateLimitRecord, p Policy, now time.Time) (*store.RateLimitRecord, Result) {
	if current == nil || !now.Before(current.WindowStart.Add(p.Window)) {
		return &store.RateLimitRecord{WindowStart: now, Count: 1}, Result{
			Allowed:   true,
			Remaining: p.MaxRequests - 1,
			ResetAt:   now.Add(p.Window),
		}
	}

	resetAt := current.WindowStart.Add(p.Window)
	if current.Count >= p.MaxRequests {
		return nil, Result{Allowed: false, Remaining: 0, ResetAt: resetAt}
	}

	return &store.RateLimitRecord{WindowStart: current.WindowStart, Count: current.Count + 1}, Result{
		Allowed:   true,
		Remaining: p.MaxRequests - current.Count - 1,
		ResetAt:   resetAt,
	}
}
