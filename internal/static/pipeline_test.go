package static

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mini-rodalies-3d/horarios/internal/db"
	"github.com/mini-rodalies-3d/horarios/internal/repository"
	"github.com/mini-rodalies-3d/horarios/internal/static/gtfs"
)

var feedFiles = map[string]string{
	"stops.txt": "stop_id,stop_name,stop_lat,stop_lon\n" +
		"S1,Barcelona-Sants,41.379,2.140\n" +
		"S2,Clot,41.409,2.187\n",
	"trips.txt": "route_id,service_id,trip_id,trip_headsign\n" +
		"R1,WK,T1,Maçanet\n" +
		"R2,WK,T2,Molins de Rei\n" +
		"R1,WK,T3,Maçanet\n",
	"stop_times.txt": "trip_id,arrival_time,departure_time,stop_id,stop_sequence\n" +
		"T1,08:05:00,08:05:00,S1,1\n" +
		"T2,8:01:00,8:01:00,S1,1\n" +
		"T3,07:59:00,07:59:00,S1,1\n" +
		"T1,08:15:00,08:15:00,S2,2\n",
	"routes.txt": "route_id,route_short_name,route_long_name\n" +
		"R1,R2N,Line A\n" +
		"R2,R4,Line B\n",
	"feed_info.txt": "feed_publisher_name,feed_version\nRenfe,20251001\n",
}

func buildFeed(t *testing.T, files map[string]string, without ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		skip := false
		for _, w := range without {
			if w == name {
				skip = true
			}
		}
		if skip {
			continue
		}
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// feedServer serves whatever body currently holds
type feedServer struct {
	*httptest.Server
	body   atomic.Value
	status atomic.Int32
	calls  atomic.Int32
}

func newFeedServer(t *testing.T, body []byte) *feedServer {
	t.Helper()
	fs := &feedServer{}
	fs.body.Store(body)
	fs.status.Store(http.StatusOK)
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.calls.Add(1)
		w.WriteHeader(int(fs.status.Load()))
		w.Write(fs.body.Load().([]byte))
	}))
	t.Cleanup(fs.Close)
	return fs
}

func newTestStore(t *testing.T) *db.Store {
	t.Helper()
	store, err := db.Open(filepath.Join(t.TempDir(), "horarios.db"), db.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.EnsureSchema(context.Background()))
	return store
}

func newTestPipeline(store *db.Store, url string) *Pipeline {
	return NewPipeline(store, gtfs.NewFetcher(nil, gtfs.FetchOptions{}), url)
}

func counts(t *testing.T, store *db.Store) map[string]int64 {
	t.Helper()
	out := make(map[string]int64)
	for _, table := range db.ScheduleTables() {
		n, err := store.CountRows(context.Background(), table)
		require.NoError(t, err)
		out[table] = n
	}
	return out
}

func TestPipeline_CompleteRun(t *testing.T) {
	store := newTestStore(t)
	srv := newFeedServer(t, buildFeed(t, feedFiles))

	report, err := newTestPipeline(store, srv.URL).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, report.Status())
	assert.NoError(t, report.Err())
	assert.Equal(t, "20251001", report.FeedVersion)
	assert.Equal(t, srv.URL, report.SourceURL)

	assert.Equal(t, map[string]int64{"stops": 2, "trips": 3, "stop_times": 4, "routes": 2}, counts(t, store))

	res, ok := report.Table(gtfs.TableStopTimes)
	require.True(t, ok)
	assert.Equal(t, int64(4), res.Rows)

	last, err := store.LastRun(context.Background())
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, report.RunID, last.RunID)
	assert.Equal(t, "complete", last.Status)
	assert.Equal(t, "20251001", last.FeedVersion)

	// end to end through the query engine
	deps, err := repository.NewScheduleRepository(store).ScheduledDepartures(context.Background(), "S1", "08:00:00")
	require.NoError(t, err)
	require.Len(t, deps, 2)
	assert.Equal(t, "T2", deps[0].TripID)
	assert.Equal(t, "08:01:00", deps[0].Scheduled, "arrival times are stored zero-padded")
	assert.Equal(t, "T1", deps[1].TripID)
}

func TestPipeline_Idempotent(t *testing.T) {
	store := newTestStore(t)
	srv := newFeedServer(t, buildFeed(t, feedFiles))
	p := newTestPipeline(store, srv.URL)

	_, err := p.Run(context.Background())
	require.NoError(t, err)
	first := counts(t, store)

	_, err = p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, counts(t, store))
}

func TestPipeline_MissingTableIsPartial(t *testing.T) {
	store := newTestStore(t)
	srv := newFeedServer(t, buildFeed(t, feedFiles))
	p := newTestPipeline(store, srv.URL)

	_, err := p.Run(context.Background())
	require.NoError(t, err)

	// next publication drops routes.txt and a stop
	next := map[string]string{}
	for k, v := range feedFiles {
		next[k] = v
	}
	next["stops.txt"] = "stop_id,stop_name,stop_lat,stop_lon\nS1,Barcelona-Sants,41.379,2.140\n"
	srv.body.Store(buildFeed(t, next, "routes.txt"))

	report, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusPartial, report.Status())
	assert.True(t, errors.Is(report.Err(), gtfs.ErrMissingTable))

	res, _ := report.Table(gtfs.TableRoutes)
	assert.Equal(t, OutcomeMissing, res.Outcome)

	c := counts(t, store)
	assert.Equal(t, int64(1), c["stops"], "stops was replaced")
	assert.Equal(t, int64(2), c["routes"], "routes kept its previous contents")

	last, err := store.LastRun(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "partial", last.Status)
	assert.Contains(t, last.Summary, "routes: missing")
}

func TestPipeline_ParseErrorKeepsTable(t *testing.T) {
	store := newTestStore(t)
	srv := newFeedServer(t, buildFeed(t, feedFiles))
	p := newTestPipeline(store, srv.URL)

	_, err := p.Run(context.Background())
	require.NoError(t, err)

	bad := map[string]string{}
	for k, v := range feedFiles {
		bad[k] = v
	}
	bad["stop_times.txt"] = "trip_id,arrival_time,stop_id\nT9,09:00:00,S1\nT9,nine,S2\n"
	srv.body.Store(buildFeed(t, bad))

	report, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusPartial, report.Status())

	res, _ := report.Table(gtfs.TableStopTimes)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	var pe *gtfs.ParseError
	require.True(t, errors.As(res.Err, &pe))
	assert.Equal(t, 2, pe.Row)

	assert.Equal(t, int64(4), counts(t, store)["stop_times"])
}

func TestPipeline_CorruptArchive(t *testing.T) {
	store := newTestStore(t)
	srv := newFeedServer(t, []byte("<html>maintenance</html>"))

	report, err := newTestPipeline(store, srv.URL).Run(context.Background())
	var ce *gtfs.CorruptArchiveError
	require.True(t, errors.As(err, &ce), "got %v", err)
	assert.Equal(t, StatusFailed, report.Status())
	assert.Empty(t, report.Tables)

	last, err := store.LastRun(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "failed", last.Status)
}

func TestPipeline_FetchFailureLeavesStore(t *testing.T) {
	store := newTestStore(t)
	srv := newFeedServer(t, buildFeed(t, feedFiles))
	p := newTestPipeline(store, srv.URL)

	_, err := p.Run(context.Background())
	require.NoError(t, err)
	before := counts(t, store)

	srv.status.Store(http.StatusNotFound)
	report, err := p.Run(context.Background())
	var fe *gtfs.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, http.StatusNotFound, fe.StatusCode)
	assert.Equal(t, StatusFailed, report.Status())
	assert.Equal(t, before, counts(t, store))
}

func TestPipeline_CancelledContext(t *testing.T) {
	store := newTestStore(t)
	srv := newFeedServer(t, buildFeed(t, feedFiles))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := newTestPipeline(store, srv.URL).Run(ctx)
	require.Error(t, err)
	assert.Equal(t, StatusFailed, report.Status())
	assert.Equal(t, int64(0), counts(t, store)["stops"])
}

func TestReport_Status(t *testing.T) {
	loaded := func(tbl gtfs.Table) TableResult { return TableResult{Table: tbl, Outcome: OutcomeLoaded} }

	all := &Report{Tables: []TableResult{
		loaded(gtfs.TableStops), loaded(gtfs.TableTrips), loaded(gtfs.TableStopTimes), loaded(gtfs.TableRoutes),
	}}
	assert.Equal(t, StatusComplete, all.Status())

	some := &Report{Tables: []TableResult{
		loaded(gtfs.TableStops),
		{Table: gtfs.TableTrips, Outcome: OutcomeMissing, Err: &gtfs.MissingTableWarning{Table: gtfs.TableTrips}},
	}, abort: context.Canceled}
	assert.Equal(t, StatusPartial, some.Status())
	assert.Contains(t, some.Summary(), "trips: missing")
	assert.Contains(t, some.Summary(), "aborted: context canceled")

	none := &Report{abort: errors.New("boom")}
	assert.Equal(t, StatusFailed, none.Status())
}

func TestReport_Durations(t *testing.T) {
	store := newTestStore(t)
	srv := newFeedServer(t, buildFeed(t, feedFiles))
	p := newTestPipeline(store, srv.URL)

	start := time.Date(2025, 10, 1, 3, 0, 0, 0, time.UTC)
	tick := start
	p.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}

	report, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, start.Add(time.Second), report.StartedAt)
	assert.Equal(t, start.Add(2*time.Second), report.FinishedAt)
}
