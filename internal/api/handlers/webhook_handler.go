package handlers

import (
	"encoding/json"
	"net/http"
	"slices"

	"github.com/markdave123-py/Docketgraph/internal/core/ingestion_engine"
	"github.com/markdave123-py/Docketgraph/internal/logging"
	"github.com/markdave123-py/Docketgraph/internal/models"
)

// WebhookHandler turns asset-store item events into ingestion jobs.
type WebhookHandler struct {
	ingestor   ingestion_engine.Ingestor
	collection string
	events     []string
}

func NewWebhookHandler(ing ingestion_engine.Ingestor, collection string, events []string) *WebhookHandler {
	return &WebhookHandler{ingestor: ing, collection: collection, events: events}
}

// webhookPayload accepts both "keys" (bulk events) and "key" (single
// item events).
type webhookPayload struct {
	Event      string   `json:"event"`
	Collection string   `json:"collection"`
	Keys       []string `json:"keys"`
	Key        string   `json:"key"`
}

type webhookResponse struct {
	Queued  int    `json:"queued"`
	Ignored string `json:"ignored,omitempty"`
}

func (p webhookPayload) ids() []string {
	ids := make([]string, 0, len(p.Keys)+1)
	seen := map[string]bool{}
	for _, k := range append(p.Keys, p.Key) {
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		ids = append(ids, k)
	}
	return ids
}

func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var p webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid body")
		return
	}
	logger := logging.From(r.Context()).With("event", p.Event, "collection", p.Collection)

	if p.Collection != h.collection {
		logger.Debug("webhook ignored: collection")
		writeJSON(w, http.StatusAccepted, webhookResponse{Ignored: "collection"})
		return
	}
	if len(h.events) > 0 && !slices.Contains(h.events, p.Event) {
		logger.Debug("webhook ignored: event")
		writeJSON(w, http.StatusAccepted, webhookResponse{Ignored: "event"})
		return
	}

	queued := 0
	for _, id := range p.ids() {
		if err := h.ingestor.Enqueue(r.Context(), models.Job{FileID: id}); err != nil {
			logging.LogError(r.Context(), err, "webhook enqueue failed")
			writeJSON(w, http.StatusServiceUnavailable, webhookResponse{Queued: queued})
			return
		}
		queued++
	}
	logger.Info("webhook queued jobs", "queued", queued)
	writeJSON(w, http.StatusAccepted, webhookResponse{Queued: queued})
}
