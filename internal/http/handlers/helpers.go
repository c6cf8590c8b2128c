// Package handlers exposes the chat pipeline and its audit surfaces over
// JSON HTTP.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/medibot/internal/conversation"
	"github.com/wolfman30/medibot/internal/escalation"
	"github.com/wolfman30/medibot/internal/http/middleware"
	"github.com/wolfman30/medibot/pkg/logging"
)

const maxBodyBytes = 64 << 10

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func jsonError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeJSON reads a bounded JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return dec.Decode(dst)
}

// pathID parses a positive integer URL parameter.
func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(chi.URLParam(r, name)), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// requireUser returns the authenticated user or writes a 401.
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		jsonError(w, "unauthorized", http.StatusUnauthorized)
		return "", false
	}
	return id, true
}

// writeServiceError maps service sentinels to status codes. Anything else
// is logged and reported as a generic 500.
func writeServiceError(w http.ResponseWriter, logger *logging.Logger, op string, err error) {
	switch {
	case errors.Is(err, conversation.ErrNotFound), errors.Is(err, escalation.ErrNotFound):
		jsonError(w, "not found", http.StatusNotFound)
	case errors.Is(err, conversation.ErrForbidden):
		jsonError(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, conversation.ErrEmptyMessage):
		jsonError(w, err.Error(), http.StatusBadRequest)
	default:
		logger.Error(op+" failed", "error", err)
		jsonError(w, "internal server error", http.StatusInternalServerError)
	}
}
