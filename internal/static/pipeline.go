package static

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log"
	"time"

	"github.com/mini-rodalies-3d/horarios/internal/db"
	"github.com/mini-rodalies-3d/horarios/internal/static/gtfs"
)

// Downloader fetches the feed archive, returning the bytes and the URL they
// came from
type Downloader interface {
	Download(ctx context.Context, url string) ([]byte, string, error)
}

// Pipeline runs one ingestion: fetch, open the archive, then replace each
// required table in order. Each table is replaced atomically on its own; a
// table that is missing or fails to load keeps its previous contents.
type Pipeline struct {
	store   *db.Store
	fetcher Downloader
	url     string
	now     func() time.Time
}

// NewPipeline creates a pipeline that loads the feed at url into store
func NewPipeline(store *db.Store, fetcher Downloader, url string) *Pipeline {
	return &Pipeline{
		store:   store,
		fetcher: fetcher,
		url:     url,
		now:     time.Now,
	}
}

// Run performs one ingestion and records it in the run log. The returned
// error is non-nil only when the run was aborted (fetch failure, corrupt
// archive, cancelled context); table-level failures are in the report.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	report := &Report{
		RunID:     db.NewRunID(),
		StartedAt: p.now(),
		SourceURL: p.url,
	}
	log.Printf("Ingest %s: starting from %s", report.RunID, p.url)

	err := p.run(ctx, report)
	if err != nil {
		report.abort = err
	}
	report.FinishedAt = p.now()

	p.record(report)

	log.Printf("Ingest %s: %s in %v (%s)", report.RunID, report.Status(),
		report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond), report.Summary())
	return report, err
}

func (p *Pipeline) run(ctx context.Context, report *Report) error {
	data, source, err := p.fetcher.Download(ctx, p.url)
	if err != nil {
		return fmt.Errorf("failed to download feed: %w", err)
	}
	report.SourceURL = source
	log.Printf("Downloaded %d bytes from %s", len(data), source)

	archive, err := gtfs.OpenArchive(data)
	if err != nil {
		return err
	}
	report.FeedVersion = archive.FeedVersion()

	for _, table := range gtfs.RequiredTables {
		if err := ctx.Err(); err != nil {
			return err
		}
		report.Tables = append(report.Tables, p.loadTable(ctx, archive, table))
	}
	return nil
}

func (p *Pipeline) loadTable(ctx context.Context, archive *gtfs.Archive, table gtfs.Table) TableResult {
	result := TableResult{Table: table}

	rc, err := archive.Open(table)
	if errors.Is(err, gtfs.ErrMissingTable) {
		log.Printf("Warning: %v, keeping previous %s", err, table)
		result.Outcome = OutcomeMissing
		result.Err = err
		return result
	}
	if err != nil {
		result.Outcome = OutcomeFailed
		result.Err = err
		return result
	}
	defer rc.Close()

	var rows iter.Seq2[db.Record, error]
	switch table {
	case gtfs.TableStops:
		rows = db.Records(gtfs.ParseStops(rc))
	case gtfs.TableTrips:
		rows = db.Records(gtfs.ParseTrips(rc))
	case gtfs.TableStopTimes:
		rows = db.Records(gtfs.ParseStopTimes(rc))
	case gtfs.TableRoutes:
		rows = db.Records(gtfs.ParseRoutes(rc))
	default:
		result.Outcome = OutcomeFailed
		result.Err = fmt.Errorf("no parser for table %s", table)
		return result
	}

	n, err := p.store.ReplaceTable(ctx, string(table), rows)
	if err != nil {
		log.Printf("Warning: failed to load %s, keeping previous contents: %v", table, err)
		result.Outcome = OutcomeFailed
		result.Err = err
		return result
	}

	result.Outcome = OutcomeLoaded
	result.Rows = n
	return result
}

// record writes the run to the run log. A bookkeeping failure does not
// change the outcome of the run.
func (p *Pipeline) record(report *Report) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := p.store.RecordRun(ctx, db.RunRecord{
		RunID:       report.RunID,
		StartedAt:   report.StartedAt,
		FinishedAt:  report.FinishedAt,
		SourceURL:   report.SourceURL,
		FeedVersion: report.FeedVersion,
		Status:      string(report.Status()),
		Summary:     report.Summary(),
	})
	if err != nil {
		log.Printf("Warning: failed to record ingest run %s: %v", report.RunID, err)
	}
}
