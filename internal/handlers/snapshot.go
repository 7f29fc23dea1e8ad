package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"sunsense/internal/feeds"
	"sunsense/internal/logger"
	"sunsense/internal/metrics"
	"sunsense/internal/middleware"
	"sunsense/internal/models"
)

// Submitter accepts a snapshot for evaluation without blocking. Any error
// means the snapshot was not queued and is answered with 503.
type Submitter interface {
	Submit(snap models.Snapshot) error
}

// SnapshotHandler handles feed snapshots pushed over HTTP
type SnapshotHandler struct {
	submitter   Submitter
	maxBodySize int64
	now         func() time.Time
}

// SnapshotConfig holds configuration for the snapshot handler
type SnapshotConfig struct {
	Submitter   Submitter
	MaxBodySize int64
}

// NewSnapshotHandler creates a new snapshot handler
func NewSnapshotHandler(cfg SnapshotConfig) *SnapshotHandler {
	maxBodySize := cfg.MaxBodySize
	if maxBodySize <= 0 {
		maxBodySize = 1 << 20 // 1MB default
	}

	return &SnapshotHandler{
		submitter:   cfg.Submitter,
		maxBodySize: maxBodySize,
		now:         time.Now,
	}
}

// SnapshotResponse is the response returned to clients
type SnapshotResponse struct {
	Success  bool              `json:"success"`
	Accepted int               `json:"accepted"`
	Rejected int               `json:"rejected"`
	Errors   []feeds.Rejection `json:"errors,omitempty"`
}

// ServeHTTP handles POST /api/snapshot
func (h *SnapshotHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if !isJSON(r) {
		writeError(w, http.StatusUnsupportedMediaType, "content-type must be application/json")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		metrics.SnapshotsTotal.WithLabelValues("http", "rejected").Inc()
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	var payload feeds.Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		metrics.SnapshotsTotal.WithLabelValues("http", "rejected").Inc()
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	snap, rejected := payload.Snapshot(h.now())
	if len(rejected) > 0 {
		log := logger.WithRequestID(r.Header.Get(middleware.RequestIDHeader))
		for _, rj := range rejected {
			metrics.FeedItemsRejected.WithLabelValues("http", rj.Feed).Inc()
			log.Warn().
				Str("feed", rj.Feed).
				Int("index", rj.Index).
				Str("alert_id", rj.AlertID).
				Str("error", rj.Error).
				Msg("feed item rejected from snapshot")
		}
	}

	if err := h.submitter.Submit(snap); err != nil {
		metrics.SnapshotsTotal.WithLabelValues("http", "dropped").Inc()
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	metrics.SnapshotsTotal.WithLabelValues("http", "queued").Inc()

	writeJSON(w, http.StatusAccepted, SnapshotResponse{
		Success:  len(rejected) == 0,
		Accepted: len(snap.Alerts),
		Rejected: len(rejected),
		Errors:   rejected,
	})
}
