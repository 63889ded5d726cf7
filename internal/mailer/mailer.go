// Package mailer dispatches transactional email jobs.
//
// nomee does not speak SMTP. Jobs are published on a NATS subject and a
// separate delivery worker owns provider credentials and templates.
package mailer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/stephdmurray-sys/nomee-sub001/internal/config"
	"github.com/stephdmurray-sys/nomee-sub001/internal/logging"
)

const instrumentationName = "github.com/stephdmurray-sys/nomee-sub001/internal/mailer"

// DefaultFlushTimeout bounds the server round trip when the caller's context
// carries no deadline. nats.Conn.FlushWithContext rejects such contexts.
const DefaultFlushTimeout = 5 * time.Second

// TemplateConfirmContribution is the template id for contribution confirmation.
const TemplateConfirmContribution = "contribution_confirmation"

// ErrNotConnected is returned when the NATS connection is closed.
var ErrNotConnected = errors.New("mailer: nats connection closed")

// Confirmation is the data needed to ask a contributor to confirm.
type Confirmation struct {
	ContributionID  string `json:"contribution_id"`
	To              string `json:"to"`
	ContributorName string `json:"contributor_name"`
	ProfileName     string `json:"profile_name"`
	ConfirmURL      string `json:"confirm_url"`
}

// Job is the envelope published for the delivery worker.
type Job struct {
	ID        string       `json:"id"`
	Template  string       `json:"template"`
	From      string       `json:"from"`
	Data      Confirmation `json:"data"`
	CreatedAt time.Time    `json:"created_at"`
}

// Mailer sends transactional email.
type Mailer interface {
	SendConfirmation(ctx context.Context, msg Confirmation) error
}

// NATSMailer publishes jobs to a NATS subject.
type NATSMailer struct {
	nc      *nats.Conn
	subject string
	from    string
	logger  *zap.Logger
	tracer  trace.Tracer
	newID   func() string
	now     func() time.Time

	flushTimeout time.Duration
}

// NewNATSMailer creates a publisher on an established connection.
func NewNATSMailer(nc *nats.Conn, subject, from string, logger *zap.Logger) *NATSMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATSMailer{
		nc:      nc,
		subject: subject,
		from:    from,
		logger:  logger,
		tracer:  otel.Tracer(instrumentationName),
		newID:   uuid.NewString,
		now:     time.Now,

		flushTimeout: DefaultFlushTimeout,
	}
}

// SendConfirmation publishes a confirmation job and flushes it to the server.
func (m *NATSMailer) SendConfirmation(ctx context.Context, msg Confirmation) error {
	ctx, span := m.tracer.Start(ctx, "mailer.SendConfirmation",
		trace.WithAttributes(attribute.String("messaging.destination", m.subject)))
	defer span.End()

	if m.nc == nil || m.nc.IsClosed() {
		span.SetStatus(codes.Error, "not connected")
		sent.WithLabelValues("nats", "error").Inc()
		return ErrNotConnected
	}

	job := Job{
		ID:        m.newID(),
		Template:  TemplateConfirmContribution,
		From:      m.from,
		Data:      msg,
		CreatedAt: m.now().UTC(),
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal email job: %w", err)
	}

	if err := m.nc.Publish(m.subject, data); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
		sent.WithLabelValues("nats", "error").Inc()
		return fmt.Errorf("publish email job: %w", err)
	}
	flushCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		flushCtx, cancel = context.WithTimeout(ctx, m.flushTimeout)
		defer cancel()
	}
	if err := m.nc.FlushWithContext(flushCtx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "flush failed")
		sent.WithLabelValues("nats", "error").Inc()
		return fmt.Errorf("flush email job: %w", err)
	}

	m.logger.Debug("email job published",
		zap.String("job_id", job.ID),
		zap.String("contribution_id", msg.ContributionID),
		logging.MaskedEmail("to", msg.To))
	sent.WithLabelValues("nats", "ok").Inc()
	return nil
}

// LogMailer writes jobs to the log instead of sending them. Used in local
// development; the confirm URL is logged so the flow can be completed by hand.
type LogMailer struct {
	logger *zap.Logger
}

// NewLogMailer creates a LogMailer.
func NewLogMailer(logger *zap.Logger) *LogMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogMailer{logger: logger}
}

// SendConfirmation logs the message.
func (m *LogMailer) SendConfirmation(_ context.Context, msg Confirmation) error {
	m.logger.Info("confirmation email (log mailer)",
		zap.String("contribution_id", msg.ContributionID),
		logging.MaskedEmail("to", msg.To),
		zap.String("confirm_url", msg.ConfirmURL))
	sent.WithLabelValues("log", "ok").Inc()
	return nil
}

// NewFromConfig builds the configured Mailer. The returned close function
// drains the NATS connection, if any.
func NewFromConfig(cfg config.MailerConfig, logger *zap.Logger) (Mailer, func(), error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Type {
	case "log", "":
		return NewLogMailer(logger), func() {}, nil
	case "nats":
		nc, err := nats.Connect(cfg.NATSURL,
			nats.Name("nomee-mailer"),
			nats.RetryOnFailedConnect(true),
			nats.MaxReconnects(5),
			nats.ReconnectWait(1*time.Second),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATSURL, err)
		}
		logger.Info("Connected to NATS", zap.String("url", cfg.NATSURL))
		return NewNATSMailer(nc, cfg.Subject, cfg.From, logger), func() {
			if err := nc.Drain(); err != nil {
				logger.Warn("nats drain failed", zap.Error(err))
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown mailer type %q", cfg.Type)
	}
}
