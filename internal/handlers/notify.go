package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"sunsense/internal/logger"
	"sunsense/internal/middleware"
	"sunsense/internal/models"
)

// Triggerer pushes an ad-hoc notification through the dispatch path
type Triggerer interface {
	Trigger(ctx context.Context, kind models.Kind, title, description string, playSound bool) error
}

// NotifyHandler exposes the manual trigger over HTTP
type NotifyHandler struct {
	engine      Triggerer
	maxBodySize int64
}

// NewNotifyHandler creates a new manual trigger handler
func NewNotifyHandler(engine Triggerer, maxBodySize int64) *NotifyHandler {
	if maxBodySize <= 0 {
		maxBodySize = 64 << 10
	}
	return &NotifyHandler{engine: engine, maxBodySize: maxBodySize}
}

// NotifyRequest is the manual trigger payload
type NotifyRequest struct {
	Kind        string `json:"kind"`
	Title       string `json:"title"`
	Description string `json:"description"`
	PlaySound   bool   `json:"play_sound"`
}

// ServeHTTP handles POST /api/notify
func (h *NotifyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if !isJSON(r) {
		writeError(w, http.StatusUnsupportedMediaType, "content-type must be application/json")
		return
	}

	var req NotifyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBodySize)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	kind := models.Kind(strings.ToLower(strings.TrimSpace(req.Kind)))
	if !kind.IsValid() {
		writeError(w, http.StatusBadRequest, "kind must be one of success, error, warning, info")
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	// Delivery problems are the sinks' business; the trigger was accepted
	if err := h.engine.Trigger(r.Context(), kind, req.Title, req.Description, req.PlaySound); err != nil {
		log := logger.WithRequestID(r.Header.Get(middleware.RequestIDHeader))
		log.Warn().
			Err(err).
			Str("kind", string(kind)).
			Msg("manual notification delivered with errors")
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"success": true,
	})
}

func isJSON(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	return ct == "" || strings.HasPrefix(ct, "application/json")
}

// writeJSON writes v with the given status
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes an error response
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}
