package mailer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/stephdmurray-sys/nomee-sub001/internal/config"
	"github.com/stephdmurray-sys/nomee-sub001/internal/logging"
)

func startTestNATSServer(t *testing.T) *natsserver.Server {
	opts := &natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1, // Random port
		NoLog:  true,
		NoSigs: true,
	}

	server, err := natsserver.NewServer(opts)
	require.NoError(t, err)

	go server.Start()

	if !server.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}

	t.Cleanup(func() {
		server.Shutdown()
		server.WaitForShutdown()
	})

	return server
}

func TestNATSMailer_PublishesJob(t *testing.T) {
	server := startTestNATSServer(t)
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	sub, err := nc.SubscribeSync("nomee.email.confirmation")
	require.NoError(t, err)

	m := NewNATSMailer(nc, "nomee.email.confirmation", "no-reply@nomee.test", nil)
	m.newID = func() string { return "job-1" }

	msg := Confirmation{
		ContributionID:  "c-1",
		To:              "jane@example.com",
		ContributorName: "Jane",
		ProfileName:     "Sam",
		ConfirmURL:      "http://localhost/confirm?id=c-1&token=abc",
	}
	require.NoError(t, m.SendConfirmation(context.Background(), msg))

	got, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)

	var job Job
	require.NoError(t, json.Unmarshal(got.Data, &job))
	assert.Equal(t, "job-1", job.ID)
	assert.Equal(t, TemplateConfirmContribution, job.Template)
	assert.Equal(t, "no-reply@nomee.test", job.From)
	assert.Equal(t, msg, job.Data)
	assert.False(t, job.CreatedAt.IsZero())
}

func TestNATSMailer_FlushDeadline(t *testing.T) {
	server := startTestNATSServer(t)
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	sub, err := nc.SubscribeSync("nomee.email.confirmation")
	require.NoError(t, err)

	m := NewNATSMailer(nc, "nomee.email.confirmation", "", nil)
	assert.Equal(t, DefaultFlushTimeout, m.flushTimeout)

	deadlineCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	tests := []struct {
		name string
		ctx  context.Context
	}{
		{"no deadline", context.Background()},
		{"caller deadline", deadlineCtx},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, m.SendConfirmation(tt.ctx, Confirmation{ContributionID: tt.name, To: "a@b.co"}))

			got, err := sub.NextMsg(2 * time.Second)
			require.NoError(t, err)
			var job Job
			require.NoError(t, json.Unmarshal(got.Data, &job))
			assert.Equal(t, tt.name, job.Data.ContributionID)
		})
	}
}

func TestNATSMailer_ClosedConnection(t *testing.T) {
	server := startTestNATSServer(t)
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	nc.Close()

	m := NewNATSMailer(nc, "nomee.email.confirmation", "", nil)
	err = m.SendConfirmation(context.Background(), Confirmation{To: "a@b.co"})
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestLogMailer_MasksAddress(t *testing.T) {
	tl := logging.NewTestLogger()
	m := NewLogMailer(tl.Underlying())

	require.NoError(t, m.SendConfirmation(context.Background(), Confirmation{
		ContributionID: "c-9",
		To:             "jane@example.com",
		ConfirmURL:     "http://localhost/confirm",
	}))

	tl.AssertLogged(t, zapcore.InfoLevel, "confirmation email")
	tl.AssertField(t, "confirmation email", "to", "j***@example.com")
	tl.AssertNoRawEmail(t, "jane@example.com")
}

func TestNewFromConfig(t *testing.T) {
	m, closeFn, err := NewFromConfig(config.MailerConfig{Type: "log"}, nil)
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &LogMailer{}, m)

	server := startTestNATSServer(t)
	m, closeFn, err = NewFromConfig(config.MailerConfig{
		Type:    "nats",
		NATSURL: server.ClientURL(),
		Subject: "nomee.email.confirmation",
	}, nil)
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &NATSMailer{}, m)

	_, _, err = NewFromConfig(config.MailerConfig{Type: "smtp"}, nil)
	assert.Error(t, err)
}
