package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bluele/gcache"
	"github.com/go-chi/chi/v5"

	"github.com/mini-rodalies-3d/horarios/internal/models"
)

const stationsCacheKey = "stations"

// StationRepository defines the interface for station and departure queries
type StationRepository interface {
	ListStations(ctx context.Context) ([]models.Station, error)
	ScheduledDepartures(ctx context.Context, stopID, ref string) ([]models.Departure, error)
}

// StationHandler handles HTTP requests for stations and their scheduled departures
type StationHandler struct {
	repo  StationRepository
	loc   *time.Location
	now   func() time.Time
	cache gcache.Cache // nil when caching is disabled
}

// NewStationHandler creates a new handler. Departure reference times are
// taken from the wall clock in loc. The station list is cached for cacheTTL;
// zero disables the cache.
func NewStationHandler(repo StationRepository, loc *time.Location, cacheTTL time.Duration) *StationHandler {
	if loc == nil {
		loc = time.Local
	}
	h := &StationHandler{repo: repo, loc: loc, now: time.Now}
	if cacheTTL > 0 {
		h.cache = gcache.New(1).
			LRU().
			Expiration(cacheTTL).
			Build()
	}
	return h
}

// ErrorResponse is the JSON error response structure
type ErrorResponse struct {
	Error string `json:"error"`
}

// ListStations handles GET /api/stations
// Returns every stop ordered by name
func (h *StationHandler) ListStations(w http.ResponseWriter, r *http.Request) {
	stations, err := h.stations(r.Context())
	if err != nil {
		log.Printf("Error listing stations: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to load stations")
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=60")
	writeJSON(w, http.StatusOK, stations)
}

// stations returns the station list, from the cache when possible. A cache
// entry is one whole query result, so a response never mixes two loads.
func (h *StationHandler) stations(ctx context.Context) ([]models.Station, error) {
	if h.cache == nil {
		return h.repo.ListStations(ctx)
	}

	if cached, err := h.cache.Get(stationsCacheKey); err == nil {
		return cached.([]models.Station), nil
	} else if !errors.Is(err, gcache.KeyNotFoundError) {
		log.Printf("Warning: stations cache: %v", err)
	}

	stations, err := h.repo.ListStations(ctx)
	if err != nil {
		return nil, err
	}
	if err := h.cache.Set(stationsCacheKey, stations); err != nil {
		log.Printf("Warning: failed to cache stations: %v", err)
	}
	return stations, nil
}

// ScheduledDepartures handles GET /api/station/{stop_id}/scheduled
// Returns the next scheduled departures at the stop from the current time
func (h *StationHandler) ScheduledDepartures(w http.ResponseWriter, r *http.Request) {
	// chi matches on RawPath when the request has one, leaving the param escaped
	stopID := chi.URLParam(r, "stop_id")
	if r.URL.RawPath != "" {
		if decoded, err := url.PathUnescape(stopID); err == nil {
			stopID = decoded
		}
	}
	if strings.TrimSpace(stopID) == "" {
		writeError(w, http.StatusBadRequest, "stop_id is required")
		return
	}

	ref := h.now().In(h.loc).Format("15:04:05")

	departures, err := h.repo.ScheduledDepartures(r.Context(), stopID, ref)
	if err != nil {
		log.Printf("Error querying departures for stop %s at %s: %v", stopID, ref, err)
		writeError(w, http.StatusInternalServerError, "Failed to load scheduled departures")
		return
	}

	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, http.StatusOK, departures)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Warning: failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
