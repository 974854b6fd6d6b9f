package static

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mini-rodalies-3d/horarios/internal/db"
)

// RefreshIfStale runs the pipeline when the last complete ingestion is older
// than maxAgeDays, or when there is none. It returns a nil report when the
// schedule is fresh.
func RefreshIfStale(ctx context.Context, store *db.Store, p *Pipeline, maxAgeDays int) (*Report, error) {
	last, err := store.LastRun(ctx, string(StatusComplete))
	if err != nil {
		return nil, fmt.Errorf("failed to read last run: %w", err)
	}

	if !isStale(last, maxAgeDays, time.Now()) {
		log.Printf("Static schedule is fresh (last complete run %s), skipping refresh",
			last.FinishedAt.Format(time.RFC3339))
		return nil, nil
	}

	return p.Run(ctx)
}

func isStale(last *db.RunRecord, maxAgeDays int, now time.Time) bool {
	if last == nil {
		return true
	}
	maxAge := time.Duration(maxAgeDays) * 24 * time.Hour
	return now.Sub(last.FinishedAt) > maxAge
}
