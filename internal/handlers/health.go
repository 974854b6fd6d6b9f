package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/mini-rodalies-3d/horarios/internal/db"
	"github.com/mini-rodalies-3d/horarios/internal/models"
)

// HealthChecker defines the store operations used by the health check
type HealthChecker interface {
	Ping(ctx context.Context) error
	LastRun(ctx context.Context, statuses ...string) (*db.RunRecord, error)
}

// HealthHandler handles the health check endpoint
type HealthHandler struct {
	store HealthChecker
	now   func() time.Time
}

// NewHealthHandler creates a new handler with the given store
func NewHealthHandler(store HealthChecker) *HealthHandler {
	return &HealthHandler{store: store, now: time.Now}
}

// Health handles GET /health
// Reports database connectivity and the latest ingestion run. Responds 503
// when the database is unreachable.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	now := h.now().UTC()
	resp := models.HealthStatus{
		Status:    models.StatusOK,
		Database:  "connected",
		Timestamp: now,
	}

	if err := h.store.Ping(ctx); err != nil {
		log.Printf("Health check: database ping failed: %v", err)
		resp.Status = models.StatusError
		resp.Database = "disconnected"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	last, err := h.store.LastRun(ctx)
	if err != nil {
		log.Printf("Health check: failed to read last run: %v", err)
	}
	if last != nil {
		resp.LastRun = &models.IngestRunInfo{
			RunID:       last.RunID,
			Status:      last.Status,
			FinishedAt:  last.FinishedAt,
			AgeSeconds:  int(now.Sub(last.FinishedAt).Seconds()),
			FeedVersion: last.FeedVersion,
			Summary:     last.Summary,
		}
	}

	// Schedule served but possibly outdated or incomplete
	if last == nil || last.Status != "complete" {
		resp.Status = models.StatusDegraded
	}

	writeJSON(w, http.StatusOK, resp)
}
