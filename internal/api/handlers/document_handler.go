package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/markdave123-py/Docketgraph/internal/core"
	"github.com/markdave123-py/Docketgraph/internal/core/ingestion_engine"
	"github.com/markdave123-py/Docketgraph/internal/logging"
	"github.com/markdave123-py/Docketgraph/internal/models"
)

type DocumentHandler struct {
	dbclient core.DbClient
	ingestor ingestion_engine.Ingestor
}

func NewDocumentHandler(dbclient core.DbClient, ing ingestion_engine.Ingestor) *DocumentHandler {
	return &DocumentHandler{dbclient: dbclient, ingestor: ing}
}

type ingestRequest struct {
	FileID   string         `json:"file_id"`
	FileURL  string         `json:"file_url,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Ingest queues one document for background processing.
func (h *DocumentHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.FileID == "" {
		writeMessage(w, http.StatusBadRequest, "file_id is required")
		return
	}

	job := models.Job{FileID: req.FileID, SourceURL: req.FileURL, Metadata: req.Metadata}
	if err := h.ingestor.Enqueue(r.Context(), job); err != nil {
		logging.LogError(r.Context(), err, "enqueue failed")
		writeMessage(w, http.StatusServiceUnavailable, "ingestion queue unavailable")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"queued": 1, "file_id": req.FileID})
}

type documentSummary struct {
	*models.RawDocument
	Chunks int `json:"chunks"`
}

// GetDocument returns a stored document without its layout JSON.
func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := h.dbclient.GetRawDocument(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	n, err := h.dbclient.CountChunks(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	doc.LayoutJSON = nil
	writeJSON(w, http.StatusOK, documentSummary{RawDocument: doc, Chunks: n})
}

// Rechunk re-splits and re-embeds a stored document synchronously.
func (h *DocumentHandler) Rechunk(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	n, err := h.ingestor.RechunkDocument(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"document_id": id, "chunks": n})
}

// Health reports liveness.
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
