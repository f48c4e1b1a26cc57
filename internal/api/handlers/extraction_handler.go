package handlers

import (
	"errors"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"

	appMiddleware "github.com/markdave123-py/Docketgraph/internal/api/middlewares"
	"github.com/markdave123-py/Docketgraph/internal/core"
	"github.com/markdave123-py/Docketgraph/internal/core/ingestion_engine"
	"github.com/markdave123-py/Docketgraph/internal/models"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

type ExtractionHandler struct {
	dbclient       core.DbClient
	ingestor       ingestion_engine.Ingestor
	maxUploadBytes int64
}

func NewExtractionHandler(dbclient core.DbClient, ing ingestion_engine.Ingestor, maxUploadBytes int64) *ExtractionHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 52 << 20
	}
	return &ExtractionHandler{dbclient: dbclient, ingestor: ing, maxUploadBytes: maxUploadBytes}
}

// Create runs a synchronous extract-only pass over an uploaded file.
func (h *ExtractionHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := appMiddleware.UserIDFrom(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "user_id not found in context")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeMessage(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeMessage(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid file")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	skipGraph, _ := strconv.ParseBool(r.FormValue("skip_graph"))

	out, err := h.ingestor.ExtractOnly(r.Context(), ingestion_engine.ExtractRequest{
		FileName:    filepath.Base(header.Filename),
		ContentType: contentType,
		Body:        file,
		UserID:      &userID,
		SkipGraph:   skipGraph,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

// List returns the caller's extractions, newest first.
func (h *ExtractionHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := appMiddleware.UserIDFrom(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "user_id not found in context")
		return
	}
	limit := defaultListLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeMessage(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, maxListLimit)
	}

	list, err := h.dbclient.ListExtractions(r.Context(), userID, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// Get returns one extraction owned by the caller. Other users' records
// are reported as not found.
func (h *ExtractionHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := appMiddleware.UserIDFrom(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "user_id not found in context")
		return
	}
	e, err := h.dbclient.GetExtraction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if models.Deref(e.UserID) != userID {
		writeMessage(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, e)
}
