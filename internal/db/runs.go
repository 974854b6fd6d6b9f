package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RunRecord is one row of the ingestion run log
type RunRecord struct {
	RunID       string
	StartedAt   time.Time
	FinishedAt  time.Time
	SourceURL   string
	FeedVersion string
	Status      string
	Summary     string
}

// NewRunID returns a fresh run identifier
func NewRunID() string {
	return uuid.New().String()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// RecordRun appends a finished run to the run log
func (s *Store) RecordRun(ctx context.Context, r RunRecord) error {
	if r.RunID == "" {
		r.RunID = NewRunID()
	}

	s.LockWrite()
	defer s.UnlockWrite()

	query := s.Rebind(fmt.Sprintf(`INSERT INTO %s
		(run_id, started_at, finished_at, source_url, feed_version, status, summary)
		VALUES (?, ?, ?, ?, ?, ?, ?)`, s.TableName(runsTable.name)))

	_, err := s.conn.ExecContext(ctx, query,
		r.RunID, formatTime(r.StartedAt), formatTime(r.FinishedAt),
		r.SourceURL, r.FeedVersion, r.Status, r.Summary,
	)
	if err != nil {
		return &StoreWriteError{Table: runsTable.name, Err: err}
	}
	return nil
}

// LastRun returns the most recently finished run whose status is one of
// statuses (any status when none are given), or nil if there is none.
func (s *Store) LastRun(ctx context.Context, statuses ...string) (*RunRecord, error) {
	query := fmt.Sprintf(`SELECT run_id, started_at, finished_at, source_url, feed_version, status, summary
		FROM %s`, s.TableName(runsTable.name))

	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += " WHERE status IN (" + strings.TrimSuffix(strings.Repeat("?, ", len(statuses)), ", ") + ")"
		for _, st := range statuses {
			args = append(args, st)
		}
	}
	query += " ORDER BY finished_at DESC, run_id DESC LIMIT 1"

	var r RunRecord
	var started, finished string
	err := s.conn.QueryRowContext(ctx, s.Rebind(query), args...).Scan(
		&r.RunID, &started, &finished, &r.SourceURL, &r.FeedVersion, &r.Status, &r.Summary,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &StoreReadError{Op: "last run", Err: err}
	}

	if r.StartedAt, err = time.Parse(time.RFC3339, started); err != nil {
		return nil, &StoreReadError{Op: "last run", Err: fmt.Errorf("started_at: %w", err)}
	}
	if r.FinishedAt, err = time.Parse(time.RFC3339, finished); err != nil {
		return nil, &StoreReadError{Op: "last run", Err: fmt.Errorf("finished_at: %w", err)}
	}
	return &r, nil
}

// CleanupRuns deletes run log entries that finished before now - retention
func (s *Store) CleanupRuns(ctx context.Context, retention time.Duration) (int64, error) {
	if retention < time.Hour {
		retention = time.Hour
	}
	cutoff := formatTime(time.Now().Add(-retention))

	s.LockWrite()
	defer s.UnlockWrite()

	query := s.Rebind(fmt.Sprintf("DELETE FROM %s WHERE finished_at < ?", s.TableName(runsTable.name)))
	result, err := s.conn.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, &StoreWriteError{Table: runsTable.name, Err: fmt.Errorf("failed to cleanup runs: %w", err)}
	}

	deleted, _ := result.RowsAffected()
	if deleted > 0 {
		log.Printf("Cleanup: deleted %d ingest runs older than %v", deleted, retention)
	}
	return deleted, nil
}
