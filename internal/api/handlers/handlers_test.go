package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/goerr/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appMiddleware "github.com/markdave123-py/Docketgraph/internal/api/middlewares"
	"github.com/markdave123-py/Docketgraph/internal/core"
	db "github.com/markdave123-py/Docketgraph/internal/core/database"
	"github.com/markdave123-py/Docketgraph/internal/core/ingestion_engine"
	"github.com/markdave123-py/Docketgraph/internal/models"
)

type fakeIngestor struct {
	mu         sync.Mutex
	jobs       []models.Job
	enqueueErr error

	extractReq  ingestion_engine.ExtractRequest
	extractBody string
	extractOut  *ingestion_engine.ExtractOutcome
	extractErr  error

	rechunkErr error
}

func (f *fakeIngestor) Enqueue(ctx context.Context, job models.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.enqueueErr != nil {
		return f.enqueueErr
	}
	f.jobs = append(f.jobs, job)
	return nil
}

func (f *fakeIngestor) ProcessDocument(ctx context.Context, job models.Job) (string, error) {
	return "doc-1", nil
}

func (f *fakeIngestor) RechunkDocument(ctx context.Context, docID string) (int, error) {
	return 3, f.rechunkErr
}

func (f *fakeIngestor) ExtractOnly(ctx context.Context, req ingestion_engine.ExtractRequest) (*ingestion_engine.ExtractOutcome, error) {
	body, _ := io.ReadAll(req.Body)
	f.extractReq = req
	f.extractBody = string(body)
	return f.extractOut, f.extractErr
}

func (f *fakeIngestor) queued() []models.Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Job(nil), f.jobs...)
}

func postJSON(t *testing.T, h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestWebhookQueuesOneJobPerKey(t *testing.T) {
	ing := &fakeIngestor{}
	h := NewWebhookHandler(ing, "documents", []string{"items.create", "items.update"})

	rec := postJSON(t, h.Handle, `{"event":"items.create","collection":"documents","keys":["a","b","a"],"key":"c"}`)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 3, decode[webhookResponse](t, rec).Queued)
	jobs := ing.queued()
	require.Len(t, jobs, 3)
	assert.Equal(t, "a", jobs[0].FileID)
	assert.Equal(t, "c", jobs[2].FileID)
}

func TestWebhookIgnoresOtherCollectionsAndEvents(t *testing.T) {
	ing := &fakeIngestor{}
	h := NewWebhookHandler(ing, "documents", []string{"items.create"})

	rec := postJSON(t, h.Handle, `{"event":"items.create","collection":"users","keys":["a"]}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "collection", decode[webhookResponse](t, rec).Ignored)

	rec = postJSON(t, h.Handle, `{"event":"items.delete","collection":"documents","keys":["a"]}`)
	assert.Equal(t, "event", decode[webhookResponse](t, rec).Ignored)

	assert.Empty(t, ing.queued())
}

func TestWebhookEmptyEventListAcceptsAll(t *testing.T) {
	ing := &fakeIngestor{}
	h := NewWebhookHandler(ing, "documents", nil)

	rec := postJSON(t, h.Handle, `{"event":"items.anything","collection":"documents","key":"a"}`)
	assert.Equal(t, 1, decode[webhookResponse](t, rec).Queued)
}

func TestWebhookEnqueueFailure(t *testing.T) {
	ing := &fakeIngestor{enqueueErr: ingestion_engine.ErrClosed}
	h := NewWebhookHandler(ing, "documents", nil)

	rec := postJSON(t, h.Handle, `{"event":"items.create","collection":"documents","keys":["a"]}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestWebhookRejectsBadJSON(t *testing.T) {
	h := NewWebhookHandler(&fakeIngestor{}, "documents", nil)
	rec := postJSON(t, h.Handle, `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngestRequiresFileID(t *testing.T) {
	ing := &fakeIngestor{}
	h := NewDocumentHandler(db.NewMemoryClient(4), ing)

	rec := postJSON(t, h.Ingest, `{"file_url":"https://x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, h.Ingest, `{"file_id":"f1","file_url":"https://x","metadata":{"court":"ONSC"}}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	jobs := ing.queued()
	require.Len(t, jobs, 1)
	assert.Equal(t, "https://x", jobs[0].SourceURL)
	assert.Equal(t, "ONSC", jobs[0].Metadata["court"])
}

func withRouteID(r *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestGetDocumentOmitsLayout(t *testing.T) {
	mem := db.NewMemoryClient(4)
	doc := &models.RawDocument{ID: "d1", FileName: "a.pdf", Markdown: "# A", LayoutJSON: json.RawMessage(`{"pages":[]}`)}
	require.NoError(t, mem.CreateRawDocument(context.Background(), doc))
	h := NewDocumentHandler(mem, &fakeIngestor{})

	rec := httptest.NewRecorder()
	h.GetDocument(rec, withRouteID(httptest.NewRequest(http.MethodGet, "/", nil), "d1"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "layout_json")
	assert.Contains(t, rec.Body.String(), `"chunks":0`)

	rec = httptest.NewRecorder()
	h.GetDocument(rec, withRouteID(httptest.NewRequest(http.MethodGet, "/", nil), "missing"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRechunkMapsNotFound(t *testing.T) {
	ing := &fakeIngestor{rechunkErr: goerr.Wrap(core.ErrNotFound, "raw document")}
	h := NewDocumentHandler(db.NewMemoryClient(4), ing)

	rec := httptest.NewRecorder()
	h.Rechunk(rec, withRouteID(httptest.NewRequest(http.MethodPost, "/", nil), "d1"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func multipartRequest(t *testing.T, field, name, content string, skipGraph bool) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, name)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	if skipGraph {
		require.NoError(t, mw.WriteField("skip_graph", "true"))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/extractions", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestCreateExtraction(t *testing.T) {
	ing := &fakeIngestor{extractOut: &ingestion_engine.ExtractOutcome{
		Extraction: &models.Extraction{ID: "e1", FileName: "claim.pdf", ContactCount: 1},
	}}
	h := NewExtractionHandler(db.NewMemoryClient(4), ing, 1<<20)

	req := multipartRequest(t, "file", "../claim.pdf", "%PDF-1.7", true)
	req = req.WithContext(appMiddleware.WithUserID(req.Context(), "u1"))
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "claim.pdf", ing.extractReq.FileName)
	assert.Equal(t, "%PDF-1.7", ing.extractBody)
	assert.True(t, ing.extractReq.SkipGraph)
	require.NotNil(t, ing.extractReq.UserID)
	assert.Equal(t, "u1", *ing.extractReq.UserID)
	assert.Contains(t, rec.Body.String(), `"id":"e1"`)
}

func TestCreateExtractionErrors(t *testing.T) {
	t.Run("no user", func(t *testing.T) {
		h := NewExtractionHandler(db.NewMemoryClient(4), &fakeIngestor{}, 0)
		rec := httptest.NewRecorder()
		h.Create(rec, multipartRequest(t, "file", "a.pdf", "x", false))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
	t.Run("missing file field", func(t *testing.T) {
		h := NewExtractionHandler(db.NewMemoryClient(4), &fakeIngestor{}, 0)
		req := multipartRequest(t, "upload", "a.pdf", "x", false)
		req = req.WithContext(appMiddleware.WithUserID(req.Context(), "u1"))
		rec := httptest.NewRecorder()
		h.Create(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
	t.Run("too large", func(t *testing.T) {
		h := NewExtractionHandler(db.NewMemoryClient(4), &fakeIngestor{}, 512)
		req := multipartRequest(t, "file", "a.pdf", strings.Repeat("x", 8192), false)
		req = req.WithContext(appMiddleware.WithUserID(req.Context(), "u1"))
		rec := httptest.NewRecorder()
		h.Create(rec, req)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})
	t.Run("conversion failure", func(t *testing.T) {
		ing := &fakeIngestor{extractErr: goerr.Wrap(core.ErrConversion, "all backends failed")}
		h := NewExtractionHandler(db.NewMemoryClient(4), ing, 0)
		req := multipartRequest(t, "file", "a.pdf", "x", false)
		req = req.WithContext(appMiddleware.WithUserID(req.Context(), "u1"))
		rec := httptest.NewRecorder()
		h.Create(rec, req)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})
}

func seedExtractions(t *testing.T) *db.MemoryClient {
	t.Helper()
	mem := db.NewMemoryClient(4)
	ctx := context.Background()
	for _, e := range []*models.Extraction{
		{ID: "e1", UserID: models.Str("u1"), FileName: "a.pdf"},
		{ID: "e2", UserID: models.Str("u1"), FileName: "b.pdf"},
		{ID: "e3", UserID: models.Str("u2"), FileName: "c.pdf"},
	} {
		require.NoError(t, mem.CreateExtraction(ctx, e))
	}
	return mem
}

func TestListExtractionsScopedToUser(t *testing.T) {
	h := NewExtractionHandler(seedExtractions(t), &fakeIngestor{}, 0)

	req := httptest.NewRequest(http.MethodGet, "/api/extractions?limit=1", nil)
	req = req.WithContext(appMiddleware.WithUserID(req.Context(), "u1"))
	rec := httptest.NewRecorder()
	h.List(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]models.Extraction](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, "u1", models.Deref(list[0].UserID))

	req = httptest.NewRequest(http.MethodGet, "/api/extractions?limit=abc", nil)
	req = req.WithContext(appMiddleware.WithUserID(req.Context(), "u1"))
	rec = httptest.NewRecorder()
	h.List(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetExtractionHidesOtherUsers(t *testing.T) {
	h := NewExtractionHandler(seedExtractions(t), &fakeIngestor{}, 0)

	get := func(user, id string) *httptest.ResponseRecorder {
		req := withRouteID(httptest.NewRequest(http.MethodGet, "/", nil), id)
		req = req.WithContext(appMiddleware.WithUserID(req.Context(), user))
		rec := httptest.NewRecorder()
		h.Get(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, get("u1", "e1").Code)
	assert.Equal(t, http.StatusNotFound, get("u2", "e1").Code)
	assert.Equal(t, http.StatusNotFound, get("u1", "nope").Code)
}
