package http

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/stephdmurray-sys/nomee-sub001/internal/auth"
	"github.com/stephdmurray-sys/nomee-sub001/internal/blob"
	"github.com/stephdmurray-sys/nomee-sub001/internal/contribution"
	"github.com/stephdmurray-sys/nomee-sub001/internal/extraction"
	"github.com/stephdmurray-sys/nomee-sub001/internal/identity"
	"github.com/stephdmurray-sys/nomee-sub001/internal/imports"
	"github.com/stephdmurray-sys/nomee-sub001/internal/logging"
	"github.com/stephdmurray-sys/nomee-sub001/internal/mailer"
	"github.com/stephdmurray-sys/nomee-sub001/internal/moderation"
	"github.com/stephdmurray-sys/nomee-sub001/internal/plans"
	"github.com/stephdmurray-sys/nomee-sub001/internal/ratelimit"
	"github.com/stephdmurray-sys/nomee-sub001/internal/signals"
	"github.com/stephdmurray-sys/nomee-sub001/internal/store"
)

const (
	successURL = "https://app.nomee.test/confirmed"
	errorURL   = "https://app.nomee.test/confirm-error"
)

type captureMailer struct {
	mu   sync.Mutex
	msgs []mailer.Confirmation
}

func (m *captureMailer) SendConfirmation(_ context.Context, msg mailer.Confirmation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = append(m.msgs, msg)
	return nil
}

func (m *captureMailer) lastLink(t *testing.T) *url.URL {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.msgs)
	u, err := url.Parse(m.msgs[len(m.msgs)-1].ConfirmURL)
	require.NoError(t, err)
	return u
}

type stubExtractor struct{}

func (stubExtractor) ReadText(context.Context, extraction.Image) (string, error) {
	return strings.Repeat("Ana is the most reliable engineer I have worked with ", 6), nil
}

func (stubExtractor) ExtractFields(context.Context, string) (string, error) {
	return `{"excerpt":"Ana is the most reliable engineer I have worked with.","giverName":"Sam Lee",` +
		`"giverCompany":"Acme","giverRole":"Director","sourceType":"linkedin","traits":["Reliable"],"confidence":0.85}`, nil
}

func (stubExtractor) Available() bool { return true }

type testServer struct {
	srv   *Server
	store *store.Store
	mail  *captureMailer
	owner *store.Profile
	log   *logging.TestLogger
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	st := store.NewTestStore(t)
	blobs := blob.NewMemoryStore("https://cdn.nomee.test")
	mail := &captureMailer{}
	limiter := ratelimit.New(st, nil)
	tl := logging.NewTestLogger()

	contribs, err := contribution.NewService(nil, st, limiter, identity.NewGuard(st, nil), mail, nil)
	require.NoError(t, err)
	imps, err := imports.NewService(nil, st, blobs, stubExtractor{}, nil)
	require.NoError(t, err)
	mod, err := moderation.NewService(nil, st, limiter, nil)
	require.NoError(t, err)

	srv, err := NewServer(Deps{
		Contributions: contribs,
		Imports:       imps,
		Signals:       signals.NewService(st, signals.Options{}, nil),
		Moderation:    mod,
		Blobs:         blobs,
		Verifier:      auth.HeaderVerifier{},
		Health:        st,
	}, tl.Underlying(), &Config{
		Host:              "localhost",
		Port:              8080,
		MaxUploadBytes:    1 << 20,
		ConfirmSuccessURL: successURL,
		ConfirmErrorURL:   errorURL,
	})
	require.NoError(t, err)

	return &testServer{srv: srv, store: st, mail: mail, owner: store.SeedProfile(t, st, plans.Free), log: tl}
}

func (ts *testServer) do(t *testing.T, method, target string, body any, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) asOwner() map[string]string {
	return map[string]string{auth.DefaultHeader: ts.owner.ID}
}

func (ts *testServer) upload(t *testing.T, target, filename string, data []byte, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (ts *testServer) createContribution(t *testing.T) string {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/v1/contributions", map[string]any{
		"profileId":    ts.owner.ID,
		"message":      "Ana keeps every launch calm.",
		"relationship": "colleague",
		"traits":       []string{"Reliable"},
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[CreateContributionResponse](t, rec)
	assert.Equal(t, string(store.StatusPendingConfirmation), resp.Status)
	return resp.ID
}

func TestNewServer(t *testing.T) {
	t.Run("requires services", func(t *testing.T) {
		_, err := NewServer(Deps{}, zap.NewNop(), nil)
		assert.Error(t, err)
	})

	t.Run("requires logger", func(t *testing.T) {
		ts := setupTestServer(t)
		_, err := NewServer(ts.srv.deps, nil, nil)
		assert.ErrorContains(t, err, "logger is required")
	})
}

func TestHandleHealth(t *testing.T) {
	ts := setupTestServer(t)
	rec := ts.do(t, http.MethodGet, "/health", nil, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[HealthResponse](t, rec).Status)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := setupTestServer(t)
	rec := ts.do(t, http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUnknownRoute(t *testing.T) {
	ts := setupTestServer(t)
	rec := ts.do(t, http.MethodGet, "/api/v1/nope", nil, nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decode[ErrorResponse](t, rec).Error)
}

func TestContributionFlow(t *testing.T) {
	ts := setupTestServer(t)
	id := ts.createContribution(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/contributions/identity", map[string]string{
		"contributionId":   id,
		"contributorName":  "Sam Lee",
		"contributorEmail": "A@Ex.com ",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decode[SuccessResponse](t, rec).Success)

	link := ts.mail.lastLink(t)
	q := link.Query()

	t.Run("bad token redirects to error page", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/api/v1/contributions/confirm?id="+id+"&token=bogus", nil, nil)
		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, errorURL, rec.Header().Get("Location"))
	})

	rec = ts.do(t, http.MethodGet, "/api/v1/contributions/confirm?"+q.Encode(), nil, nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), successURL))

	rec = ts.do(t, http.MethodGet, "/api/v1/me/contributions", nil, ts.asOwner())
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[ContributionsResponse](t, rec)
	require.Len(t, list.Contributions, 1)
	assert.Equal(t, "confirmed", list.Contributions[0].Status)
	assert.NotContains(t, rec.Body.String(), "a@ex.com")

	rec = ts.do(t, http.MethodPatch, "/api/v1/me/contributions/"+id+"/featured", map[string]bool{"featured": true}, ts.asOwner())
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/api/v1/profiles/"+ts.owner.ID+"/signals", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	prof := decode[signals.Profile](t, rec)
	require.NotEmpty(t, prof.Traits)
	assert.Equal(t, "Reliable", prof.Traits[0].Label)

	rec = ts.do(t, http.MethodDelete, "/api/v1/me/contributions/"+id, nil, ts.asOwner())
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestAttachIdentity_ErrorCodes(t *testing.T) {
	ts := setupTestServer(t)
	first := ts.createContribution(t)
	second := ts.createContribution(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/contributions/identity", map[string]string{
		"contributionId": first, "contributorName": "Sam", "contributorEmail": "A@Ex.com ",
	}, map[string]string{"X-Real-IP": "10.0.0.1"})
	require.Equal(t, http.StatusOK, rec.Code)

	tests := []struct {
		name       string
		body       map[string]string
		ip         string
		wantStatus int
		wantCode   string
	}{
		{"missing fields", map[string]string{"contributionId": second}, "10.0.0.2", http.StatusBadRequest, contribution.CodeMissingFields},
		{"invalid email", map[string]string{"contributionId": second, "contributorName": "Sam", "contributorEmail": "sam"}, "10.0.0.2", http.StatusBadRequest, contribution.CodeInvalidEmail},
		{"not found", map[string]string{"contributionId": uuid.NewString(), "contributorName": "Sam", "contributorEmail": "s@ex.com"}, "10.0.0.3", http.StatusNotFound, contribution.CodeNotFound},
		{"duplicate", map[string]string{"contributionId": second, "contributorName": "Sam", "contributorEmail": "a@ex.com"}, "10.0.0.4", http.StatusConflict, contribution.CodeDuplicateSubmission},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/api/v1/contributions/identity", tt.body, map[string]string{"X-Real-IP": tt.ip})
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantCode, decode[ErrorResponse](t, rec).Error)
		})
	}
}

func TestAttachIdentity_RateLimited(t *testing.T) {
	ts := setupTestServer(t)
	hdr := map[string]string{"X-Real-IP": "203.0.113.9"}
	body := map[string]string{"contributionId": uuid.NewString(), "contributorName": "Sam", "contributorEmail": "s@ex.com"}

	for i := 0; i < ratelimit.SubmissionPolicy().MaxRequests; i++ {
		rec := ts.do(t, http.MethodPost, "/api/v1/contributions/identity", body, hdr)
		require.Equal(t, http.StatusNotFound, rec.Code)
	}

	rec := ts.do(t, http.MethodPost, "/api/v1/contributions/identity", body, hdr)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, contribution.CodeRateLimit, resp.Error)
	require.NotNil(t, resp.ResetAt)

	retry, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.Greater(t, retry, 0)
}

func TestOwnerRoutesRequireIdentity(t *testing.T) {
	ts := setupTestServer(t)
	for _, target := range []string{"/api/v1/me/contributions", "/api/v1/me/imports", "/api/v1/me/limits"} {
		rec := ts.do(t, http.MethodGet, target, nil, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, target)
	}
}

func TestImportFlow(t *testing.T) {
	ts := setupTestServer(t)
	png := append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{1}, 32)...)

	rec := ts.upload(t, "/api/v1/me/imports/upload", "praise.png", png, ts.asOwner())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	up := decode[imports.Upload](t, rec)
	assert.True(t, strings.HasPrefix(up.URL, "https://cdn.nomee.test/imports/"))

	rec = ts.do(t, http.MethodPost, "/api/v1/me/imports", CreateImportRequest{ImageKey: up.Key}, ts.asOwner())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[imports.View](t, rec)
	assert.Equal(t, "pending_processing", created.State)

	rec = ts.do(t, http.MethodPost, "/api/v1/me/imports/"+created.ID+"/process", nil, ts.asOwner())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	processed := decode[imports.View](t, rec)
	assert.Equal(t, "extracted", processed.State)
	assert.False(t, processed.RequiresReview)

	rec = ts.do(t, http.MethodPost, "/api/v1/me/imports/"+created.ID+"/approve", map[string]string{
		"giverName": "Sam Lee", "giverCompany": "Needs input", "giverRole": "Director",
	}, ts.asOwner())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "giverCompany", decode[ErrorResponse](t, rec).Field)

	rec = ts.do(t, http.MethodPost, "/api/v1/me/imports/"+created.ID+"/approve", map[string]string{
		"giverName": "Sam Lee", "giverCompany": "Acme", "giverRole": "Director",
	}, ts.asOwner())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "public", decode[imports.View](t, rec).Visibility)

	rec = ts.do(t, http.MethodPatch, "/api/v1/me/imports/"+created.ID+"/visibility", VisibilityRequest{Visibility: "private"}, ts.asOwner())
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/me/limits", nil, ts.asOwner())
	require.Equal(t, http.StatusOK, rec.Code)
	limits := decode[plans.Limits](t, rec)
	assert.Equal(t, 5, limits.Limit)
	assert.Equal(t, 1, limits.CurrentCount)
	assert.Equal(t, 4, limits.Remaining)
	assert.False(t, limits.IsPro)

	stranger := map[string]string{auth.DefaultHeader: uuid.NewString()}
	rec = ts.do(t, http.MethodDelete, "/api/v1/me/imports/"+created.ID, nil, stranger)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/api/v1/me/imports/"+created.ID, nil, ts.asOwner())
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestReports(t *testing.T) {
	ts := setupTestServer(t)
	id := ts.createContribution(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/reports", map[string]string{"contributionId": id, "reason": "spam"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotEmpty(t, decode[ReportResponse](t, rec).ID)

	rec = ts.do(t, http.MethodPost, "/api/v1/reports", map[string]string{"contributionId": id, "reason": "meh"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/reports", map[string]string{"contributionId": uuid.NewString(), "reason": "fake"}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVoiceUpload(t *testing.T) {
	ts := setupTestServer(t)
	wav := append([]byte("RIFF\x24\x00\x00\x00WAVEfmt "), bytes.Repeat([]byte{0}, 32)...)

	rec := ts.upload(t, "/api/v1/uploads/voice", "note.wav", wav, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[VoiceUploadResponse](t, rec)
	assert.True(t, strings.HasPrefix(resp.Key, "voice/"))

	rec = ts.upload(t, "/api/v1/uploads/voice", "note.txt", []byte("just some text"), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRequestLog_CorrelationFields(t *testing.T) {
	ts := setupTestServer(t)

	hdr := ts.asOwner()
	hdr[echo.HeaderXRequestID] = "req-42"
	rec := ts.do(t, http.MethodGet, "/api/v1/me/limits", nil, hdr)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "req-42", rec.Header().Get(echo.HeaderXRequestID))

	ts.log.AssertField(t, "http request", "request.id", "req-42")
	ts.log.AssertField(t, "http request", "owner.id", ts.owner.ID)
	ts.log.AssertField(t, "http request", "uri", "/api/v1/me/limits")

	ts.log.Reset()
	rec = ts.do(t, http.MethodGet, "/health", nil, map[string]string{echo.HeaderXRequestID: "req-43"})
	require.Equal(t, http.StatusOK, rec.Code)
	ts.log.AssertField(t, "http request", "request.id", "req-43")
	for _, e := range ts.log.FilterMessage("http request").All() {
		assert.NotContains(t, e.ContextMap(), "owner.id")
	}
}
