package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/markdave123-py/Docketgraph/internal/core"
	"github.com/markdave123-py/Docketgraph/internal/logging"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeError maps pipeline error kinds onto status codes and logs the
// full error. Clients only see the kind.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := http.StatusInternalServerError, "internal error"
	switch {
	case errors.Is(err, core.ErrNotFound):
		status, msg = http.StatusNotFound, "not found"
	case errors.Is(err, core.ErrConversion):
		status, msg = http.StatusUnprocessableEntity, core.ErrConversion.Error()
	case errors.Is(err, core.ErrExtractionFormat):
		status, msg = http.StatusBadGateway, core.ErrExtractionFormat.Error()
	case errors.Is(err, core.ErrAcquisition):
		status, msg = http.StatusBadRequest, core.ErrAcquisition.Error()
	}
	if status >= 500 {
		logging.LogError(r.Context(), err, "request failed")
	} else {
		logging.From(r.Context()).Warn("request rejected", "status", status, "error", err.Error())
	}
	writeMessage(w, status, msg)
}
