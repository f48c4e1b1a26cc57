package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appMiddleware "github.com/markdave123-py/Docketgraph/internal/api/middlewares"
	"github.com/markdave123-py/Docketgraph/internal/config"
	db "github.com/markdave123-py/Docketgraph/internal/core/database"
	"github.com/markdave123-py/Docketgraph/internal/core/ingestion_engine"
	"github.com/markdave123-py/Docketgraph/internal/models"
)

type queueOnly struct {
	ingestion_engine.Ingestor
	jobs []models.Job
}

func (q *queueOnly) Enqueue(ctx context.Context, job models.Job) error {
	q.jobs = append(q.jobs, job)
	return nil
}

func testServer(t *testing.T) (http.Handler, *queueOnly, *config.Config) {
	t.Helper()
	cfg := config.Default()
	cfg.HTTP.JWTSecret = "jwt-secret"
	cfg.HTTP.WebhookSecret = "hook-secret"
	q := &queueOnly{}
	return NewServer(cfg, db.NewMemoryClient(4), q).Handler(), q, cfg
}

func token(t *testing.T, secret, userID string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": userID}).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestHealthz(t *testing.T) {
	h, _, _ := testServer(t)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Content-Type"))
}

func TestWebhookRequiresSecret(t *testing.T) {
	h, q, _ := testServer(t)
	body := `{"event":"items.create","collection":"documents","keys":["f1"]}`

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhooks/documents", strings.NewReader(body)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/documents", strings.NewReader(body))
	req.Header.Set(appMiddleware.WebhookSecretHeader, "hook-secret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, q.jobs, 1)
	assert.Equal(t, "f1", q.jobs[0].FileID)
}

func TestAPIRequiresValidToken(t *testing.T) {
	h, q, _ := testServer(t)
	body := `{"file_id":"f1"}`

	for name, auth := range map[string]string{
		"missing":      "",
		"wrong secret": "Bearer " + token(t, "other", "u1"),
		"no user":      "Bearer " + token(t, "jwt-secret", ""),
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/ingest", strings.NewReader(body))
			if auth != "" {
				req.Header.Set("Authorization", auth)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
	assert.Empty(t, q.jobs)

	req := httptest.NewRequest(http.MethodPost, "/api/ingest", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token(t, "jwt-secret", "u1"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Len(t, q.jobs, 1)
}

func TestExtractionsListIsEmptyForNewUser(t *testing.T) {
	h, _, _ := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/extractions", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, "jwt-secret", "u9"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestCloseRunsInReverseOrder(t *testing.T) {
	var order []int
	a := &App{}
	for i := range 3 {
		a.closers = append(a.closers, func(context.Context) error { order = append(order, i); return nil })
	}
	require.NoError(t, a.Close(context.Background()))
	assert.Equal(t, []int{2, 1, 0}, order)
	require.NoError(t, a.Close(context.Background()))
	assert.Len(t, order, 3)
}
