package static

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mini-rodalies-3d/horarios/internal/static/gtfs"
)

// Outcome is the result of loading one table
type Outcome string

const (
	OutcomeLoaded  Outcome = "loaded"
	OutcomeMissing Outcome = "missing"
	OutcomeFailed  Outcome = "failed"
)

// Status classifies a whole ingestion run
type Status string

const (
	StatusComplete Status = "complete" // every required table replaced
	StatusPartial  Status = "partial"  // some tables kept their previous contents
	StatusFailed   Status = "failed"   // nothing was replaced
)

// TableResult records what happened to one required table
type TableResult struct {
	Table   gtfs.Table
	Outcome Outcome
	Rows    int64
	Err     error
}

// Report describes one ingestion run
type Report struct {
	RunID       string
	StartedAt   time.Time
	FinishedAt  time.Time
	SourceURL   string
	FeedVersion string
	Tables      []TableResult

	// abort is set when the run stopped before every table was attempted
	abort error
}

// Status returns complete when every table loaded, failed when none did
// and partial otherwise.
func (r *Report) Status() Status {
	loaded := 0
	for _, t := range r.Tables {
		if t.Outcome == OutcomeLoaded {
			loaded++
		}
	}
	switch {
	case loaded == len(gtfs.RequiredTables) && r.abort == nil:
		return StatusComplete
	case loaded == 0:
		return StatusFailed
	default:
		return StatusPartial
	}
}

// Err joins the abort error and every table error, nil for a complete run
func (r *Report) Err() error {
	errs := []error{r.abort}
	for _, t := range r.Tables {
		errs = append(errs, t.Err)
	}
	return errors.Join(errs...)
}

// Table returns the result for table t
func (r *Report) Table(t gtfs.Table) (TableResult, bool) {
	for _, res := range r.Tables {
		if res.Table == t {
			return res, true
		}
	}
	return TableResult{}, false
}

// Summary renders the per-table outcomes on one line
func (r *Report) Summary() string {
	parts := make([]string, 0, len(r.Tables)+1)
	for _, t := range r.Tables {
		switch t.Outcome {
		case OutcomeLoaded:
			parts = append(parts, fmt.Sprintf("%s: %d rows", t.Table, t.Rows))
		case OutcomeMissing:
			parts = append(parts, fmt.Sprintf("%s: missing", t.Table))
		default:
			parts = append(parts, fmt.Sprintf("%s: failed (%v)", t.Table, t.Err))
		}
	}
	if r.abort != nil {
		parts = append(parts, "aborted: "+r.abort.Error())
	}
	return strings.Join(parts, "; ")
}
