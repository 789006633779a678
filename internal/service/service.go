// Package service exposes the HTTP JSON API: receipt and item uploads,
// queries, and the live session endpoints backed by the dispatch worker.
package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Trevor-Mansfield/WalmartReceiptSplitter/internal/dispatch"
	"github.com/Trevor-Mansfield/WalmartReceiptSplitter/internal/storage"
)

// errorReply is the JSON shape of every non-2xx response.
type errorReply struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorReply{Error: err.Error()})
}

// readJSON decodes the request body, rejecting unknown fields.
func readJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

// respondError maps domain errors to status codes.
func respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, dispatch.ErrUnknownSession):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, dispatch.ErrInvalidAction), errors.Is(err, dispatch.ErrNoLobby):
		writeError(w, http.StatusBadRequest, err)
	default:
		slog.Error("Request failed", "error", err)
		writeError(w, http.StatusInternalServerError, err)
	}
}
