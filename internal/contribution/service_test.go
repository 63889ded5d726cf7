package contribution

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stephdmurray-sys/nomee-sub001/internal/apperr"
	"github.com/stephdmurray-sys/nomee-sub001/internal/identity"
	"github.com/stephdmurray-sys/nomee-sub001/internal/mailer"
	"github.com/stephdmurray-sys/nomee-sub001/internal/plans"
	"github.com/stephdmurray-sys/nomee-sub001/internal/ratelimit"
	"github.com/stephdmurray-sys/nomee-sub001/internal/store"
)

// recordingMailer captures confirmation messages.
type recordingMailer struct {
	mu   sync.Mutex
	msgs []mailer.Confirmation
	err  error
}

func (m *recordingMailer) SendConfirmation(_ context.Context, msg mailer.Confirmation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = append(m.msgs, msg)
	return m.err
}

func (m *recordingMailer) last(t *testing.T) mailer.Confirmation {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.msgs, "no confirmation sent")
	return m.msgs[len(m.msgs)-1]
}

type fixture struct {
	svc    Service
	store  *store.Store
	mail   *recordingMailer
	owner  *store.Profile
	now    time.Time
	policy ratelimit.Policy
}

func newFixture(t *testing.T, plan plans.Plan) *fixture {
	t.Helper()
	st := store.NewTestStore(t)
	f := &fixture{
		store:  st,
		mail:   &recordingMailer{},
		owner:  store.SeedProfile(t, st, plan),
		now:    time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		policy: ratelimit.SubmissionPolicy(),
	}
	clock := func() time.Time { return f.now }

	cfg := DefaultServiceConfig()
	cfg.ConfirmBaseURL = "https://nomee.test"
	svc, err := NewService(cfg, st,
		ratelimit.New(st, nil, ratelimit.WithClock(clock)),
		identity.NewGuard(st, nil),
		f.mail, nil, WithClock(clock))
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *fixture) create(t *testing.T) *store.Contribution {
	t.Helper()
	c, err := f.svc.Create(context.Background(), &CreateRequest{
		OwnerID:      f.owner.ID,
		Message:      "  Always   unblocks the team.  ",
		Relationship: "Colleague",
		Traits:       []string{"reliable", " Reliable ", "", "Mentor"},
		Vibes:        []string{"calm"},
	})
	require.NoError(t, err)
	return c
}

func (f *fixture) attach(t *testing.T, id, email, ip string) error {
	t.Helper()
	return f.svc.AttachIdentity(context.Background(), &IdentityRequest{
		ContributionID:   id,
		ContributorName:  "Jane Doe",
		ContributorEmail: email,
		ClientIP:         ip,
	})
}

func tokenFromLink(t *testing.T, link string) string {
	t.Helper()
	u, err := url.Parse(link)
	require.NoError(t, err)
	return u.Query().Get("token")
}

func TestCreate(t *testing.T) {
	f := newFixture(t, plans.Free)
	c := f.create(t)

	assert.Equal(t, store.StatusPendingConfirmation, c.Status)
	assert.Equal(t, "Always unblocks the team.", c.Message)
	assert.Equal(t, "colleague", c.Relationship)
	assert.Equal(t, []string{"reliable", "Mentor"}, c.Traits)
	assert.Empty(t, c.ContributorEmail)

	stored, err := f.store.GetContribution(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.Message, stored.Message)
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t, plans.Free)
	tests := []struct {
		name  string
		req   *CreateRequest
		field string
		kind  apperr.Kind
	}{
		{"missing profile", &CreateRequest{Message: "hi", Relationship: "client"}, "profileId", apperr.KindValidation},
		{"blank message", &CreateRequest{OwnerID: f.owner.ID, Message: " \n ", Relationship: "client"}, "message", apperr.KindValidation},
		{"bad relationship", &CreateRequest{OwnerID: f.owner.ID, Message: "hi", Relationship: "nemesis"}, "relationship", apperr.KindValidation},
		{"relative voice url", &CreateRequest{OwnerID: f.owner.ID, Message: "hi", Relationship: "client", VoiceURL: "/v.webm"}, "voiceUrl", apperr.KindValidation},
		{"unknown profile", &CreateRequest{OwnerID: "nope", Message: "hi", Relationship: "client"}, "", apperr.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
			var ve *apperr.ValidationError
			if errors.As(err, &ve) {
				assert.Equal(t, tt.field, ve.Field)
			}
		})
	}
}

func TestAttachIdentity_ErrorOrder(t *testing.T) {
	f := newFixture(t, plans.Free)
	c := f.create(t)

	tests := []struct {
		name string
		req  *IdentityRequest
		code string
		kind apperr.Kind
	}{
		{"missing id", &IdentityRequest{ContributorName: "J", ContributorEmail: "bad"}, CodeMissingFields, apperr.KindValidation},
		{"missing name beats bad email", &IdentityRequest{ContributionID: c.ID, ContributorEmail: "bad"}, CodeMissingFields, apperr.KindValidation},
		{"invalid email", &IdentityRequest{ContributionID: c.ID, ContributorName: "J", ContributorEmail: "bad"}, CodeInvalidEmail, apperr.KindValidation},
		{"unknown id", &IdentityRequest{ContributionID: "missing", ContributorName: "J", ContributorEmail: "j@x.io", ClientIP: "10.0.0.9"}, CodeNotFound, apperr.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.svc.AttachIdentity(context.Background(), tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.code, apperr.Code(err))
			assert.Equal(t, tt.kind, apperr.KindOf(err))
		})
	}
}

func TestAttachIdentity_RateLimitBeforeNotFound(t *testing.T) {
	f := newFixture(t, plans.Free)

	for i := 0; i < 3; i++ {
		err := f.attach(t, "missing", "j@x.io", "10.0.0.1")
		assert.Equal(t, CodeNotFound, apperr.Code(err), "attempt %d", i+1)
	}

	err := f.attach(t, "missing", "j@x.io", "10.0.0.1")
	assert.Equal(t, CodeRateLimit, apperr.Code(err))
	var rl *apperr.RateLimitError
	require.ErrorAs(t, err, &rl)
	assert.WithinDuration(t, f.now.Add(24*time.Hour), rl.ResetAt, time.Second)

	// A different client has its own budget.
	assert.Equal(t, CodeNotFound, apperr.Code(f.attach(t, "missing", "j@x.io", "10.0.0.2")))

	// The window expires.
	f.now = f.now.Add(24 * time.Hour)
	assert.Equal(t, CodeNotFound, apperr.Code(f.attach(t, "missing", "j@x.io", "10.0.0.1")))
}

func TestAttachIdentity_RateLimitFallsBackToEmail(t *testing.T) {
	f := newFixture(t, plans.Free)
	for i := 0; i < 3; i++ {
		_ = f.attach(t, "missing", " J@X.io", "")
	}
	assert.Equal(t, CodeRateLimit, apperr.Code(f.attach(t, "missing", "j@x.io", "")))
}

func TestAttachIdentity_DuplicateScenario(t *testing.T) {
	f := newFixture(t, plans.Free)
	first := f.create(t)
	second := f.create(t)

	require.NoError(t, f.attach(t, first.ID, "jane@example.com", "1.1.1.1"))

	// Same person, different contribution, different casing.
	err := f.attach(t, second.ID, "  JANE@example.com ", "2.2.2.2")
	assert.Equal(t, CodeDuplicateSubmission, apperr.Code(err))
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	// Retrying the first contribution is allowed and re-issues the token.
	oldToken := tokenFromLink(t, f.mail.last(t).ConfirmURL)
	require.NoError(t, f.attach(t, first.ID, "jane@example.com", "3.3.3.3"))
	newToken := tokenFromLink(t, f.mail.last(t).ConfirmURL)
	assert.NotEqual(t, oldToken, newToken)

	assert.ErrorIs(t, f.svc.Confirm(context.Background(), first.ID, oldToken), ErrConfirmationFailed)
	require.NoError(t, f.svc.Confirm(context.Background(), first.ID, newToken))

	// Still a duplicate once the first is confirmed.
	err = f.attach(t, second.ID, "jane@example.com", "4.4.4.4")
	assert.Equal(t, CodeDuplicateSubmission, apperr.Code(err))
}

func TestAttachIdentity_ConfirmedRowRejectsChanges(t *testing.T) {
	f := newFixture(t, plans.Free)
	c := f.create(t)
	require.NoError(t, f.attach(t, c.ID, "jane@example.com", "1.1.1.1"))
	require.NoError(t, f.svc.Confirm(context.Background(), c.ID, tokenFromLink(t, f.mail.last(t).ConfirmURL)))

	err := f.attach(t, c.ID, "other@example.com", "1.1.1.2")
	require.ErrorIs(t, err, ErrAlreadyConfirmed)
	assert.Equal(t, CodeUpdateError, apperr.Code(err))
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	stored, err := f.store.GetContribution(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", stored.ContributorEmail)
}

func TestAttachIdentity_MailFailureIsNotSurfaced(t *testing.T) {
	f := newFixture(t, plans.Free)
	f.mail.err = errors.New("nats down")
	c := f.create(t)

	require.NoError(t, f.attach(t, c.ID, "jane@example.com", "1.1.1.1"))

	msg := f.mail.last(t)
	assert.Equal(t, "jane@example.com", msg.To)
	assert.True(t, strings.HasPrefix(msg.ConfirmURL, "https://nomee.test/api/v1/contributions/confirm?"))
	assert.Equal(t, "Test Owner", msg.ProfileName)
}

func TestConfirm(t *testing.T) {
	f := newFixture(t, plans.Free)
	c := f.create(t)
	require.NoError(t, f.attach(t, c.ID, "jane@example.com", "1.1.1.1"))
	token := tokenFromLink(t, f.mail.last(t).ConfirmURL)
	assert.Len(t, token, 64)

	ctx := context.Background()
	assert.ErrorIs(t, f.svc.Confirm(ctx, c.ID, ""), ErrConfirmationFailed)
	assert.ErrorIs(t, f.svc.Confirm(ctx, c.ID, strings.Repeat("0", 64)), ErrConfirmationFailed)
	assert.ErrorIs(t, f.svc.Confirm(ctx, "missing", token), ErrConfirmationFailed)

	stored, err := f.store.GetContribution(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusPendingConfirmation, stored.Status)
	assert.NotEqual(t, token, stored.ConfirmationTokenHash, "raw token must not be stored")

	require.NoError(t, f.svc.Confirm(ctx, c.ID, token))
	stored, err = f.store.GetContribution(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusConfirmed, stored.Status)
	require.NotNil(t, stored.ConfirmedAt)
	assert.True(t, f.now.Equal(*stored.ConfirmedAt))
	assert.Empty(t, stored.ConfirmationTokenHash)

	// Tokens are single use.
	assert.ErrorIs(t, f.svc.Confirm(ctx, c.ID, token), ErrConfirmationFailed)
}

func (f *fixture) confirmed(t *testing.T, email string) *store.Contribution {
	t.Helper()
	c := f.create(t)
	require.NoError(t, f.attach(t, c.ID, email, email))
	require.NoError(t, f.svc.Confirm(context.Background(), c.ID, tokenFromLink(t, f.mail.last(t).ConfirmURL)))
	return c
}

func TestSetFeatured_PlanQuota(t *testing.T) {
	tests := []struct {
		plan  plans.Plan
		quota int
	}{
		{plans.Free, 1},
		{plans.Starter, 3},
		{plans.Premier, 6},
	}
	for _, tt := range tests {
		t.Run(string(tt.plan), func(t *testing.T) {
			f := newFixture(t, tt.plan)
			ctx := context.Background()

			var rows []*store.Contribution
			for i := 0; i < 6; i++ {
				rows = append(rows, f.confirmed(t, string(rune('a'+i))+"@example.com"))
			}

			for i, c := range rows {
				err := f.svc.SetFeatured(ctx, f.owner.ID, c.ID, true)
				if i < tt.quota {
					require.NoError(t, err, "feature #%d", i+1)
				} else {
					require.ErrorIs(t, err, ErrFeaturedLimit, "feature #%d", i+1)
					assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
				}
			}

			n, err := f.store.CountFeatured(ctx, f.owner.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.quota, n)

			// Unfeaturing is always allowed and frees a slot.
			require.NoError(t, f.svc.SetFeatured(ctx, f.owner.ID, rows[0].ID, false))
			require.NoError(t, f.svc.SetFeatured(ctx, f.owner.ID, rows[5].ID, true))
		})
	}
}

func TestSetFeatured_Unfeature(t *testing.T) {
	f := newFixture(t, plans.Free)
	ctx := context.Background()
	c := f.confirmed(t, "jane@example.com")

	require.NoError(t, f.svc.SetFeatured(ctx, f.owner.ID, c.ID, true))
	stored, err := f.store.GetContribution(ctx, c.ID)
	require.NoError(t, err)
	require.True(t, stored.IsFeatured)

	require.NoError(t, f.svc.SetFeatured(ctx, f.owner.ID, c.ID, false))
	stored, err = f.store.GetContribution(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsFeatured)

	// Unfeaturing twice is a no-op, not an error.
	require.NoError(t, f.svc.SetFeatured(ctx, f.owner.ID, c.ID, false))
}

func TestSetFeatured_Guards(t *testing.T) {
	f := newFixture(t, plans.Starter)
	ctx := context.Background()
	pending := f.create(t)
	confirmed := f.confirmed(t, "jane@example.com")
	stranger := store.SeedProfile(t, f.store, plans.Premier)

	assert.ErrorIs(t, f.svc.SetFeatured(ctx, f.owner.ID, pending.ID, true), ErrNotConfirmed)
	assert.ErrorIs(t, f.svc.SetFeatured(ctx, stranger.ID, confirmed.ID, true), ErrNotFound)
	assert.ErrorIs(t, f.svc.SetFeatured(ctx, f.owner.ID, "missing", true), ErrNotFound)
	assert.ErrorIs(t, f.svc.SetFeatured(ctx, "", confirmed.ID, true), apperr.ErrUnauthenticated)
}

func TestDeleteAndList(t *testing.T) {
	f := newFixture(t, plans.Free)
	ctx := context.Background()
	a := f.create(t)
	f.now = f.now.Add(time.Minute)
	b := f.create(t)
	stranger := store.SeedProfile(t, f.store, plans.Free)

	list, err := f.svc.ListForOwner(ctx, f.owner.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, b.ID, list[0].ID, "newest first")

	assert.ErrorIs(t, f.svc.Delete(ctx, stranger.ID, a.ID), ErrNotFound)
	require.NoError(t, f.svc.Delete(ctx, f.owner.ID, a.ID))

	list, err = f.svc.ListForOwner(ctx, f.owner.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestNewView_HidesEmail(t *testing.T) {
	v := NewView(&store.Contribution{ID: "c", ContributorEmail: "jane@example.com", Status: store.StatusConfirmed})
	assert.Equal(t, "confirmed", v.Status)
	assert.NotNil(t, v.Traits)
	assert.NotNil(t, v.Vibes)
}
