package models

import "time"

const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusError    = "error"
)

// IngestRunInfo summarizes the latest ingestion run
type IngestRunInfo struct {
	RunID       string    `json:"runId"`
	Status      string    `json:"status"` // "complete", "partial", "failed"
	FinishedAt  time.Time `json:"finishedAt"`
	AgeSeconds  int       `json:"ageSeconds"`
	FeedVersion string    `json:"feedVersion,omitempty"`
	Summary     string    `json:"summary,omitempty"`
}

// HealthStatus is the JSON response for GET /health
type HealthStatus struct {
	Status    string         `json:"status"`
	Database  string         `json:"database"` // "connected" or "disconnected"
	LastRun   *IngestRunInfo `json:"lastRun,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}
