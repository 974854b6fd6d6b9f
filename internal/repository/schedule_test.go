package repository

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mini-rodalies-3d/horarios/internal/db"
	"github.com/mini-rodalies-3d/horarios/internal/static/gtfs"
)

func newTestRepo(t *testing.T) (*ScheduleRepository, *db.Store) {
	t.Helper()
	store, err := db.Open(filepath.Join(t.TempDir(), "horarios.db"), db.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.EnsureSchema(context.Background()))
	return NewScheduleRepository(store), store
}

func load[T db.Record](t *testing.T, store *db.Store, table string, rows ...T) {
	t.Helper()
	seq := func(yield func(T, error) bool) {
		for _, r := range rows {
			if !yield(r, nil) {
				return
			}
		}
	}
	_, err := store.ReplaceTable(context.Background(), table, db.Records[T](seq))
	require.NoError(t, err)
}

func seedExample(t *testing.T, store *db.Store) {
	t.Helper()
	load(t, store, "stop_times",
		gtfs.StopTime{TripID: "T1", StopID: "S1", ArrivalTime: "08:05:00"},
		gtfs.StopTime{TripID: "T2", StopID: "S1", ArrivalTime: "08:01:00"},
		gtfs.StopTime{TripID: "T3", StopID: "S1", ArrivalTime: "07:59:00"},
	)
	load(t, store, "trips",
		gtfs.Trip{TripID: "T1", RouteID: "R1", TripHeadsign: "Maçanet"},
		gtfs.Trip{TripID: "T2", RouteID: "R2", TripHeadsign: "Molins de Rei"},
		gtfs.Trip{TripID: "T3", RouteID: "R1", TripHeadsign: "Maçanet"},
	)
	load(t, store, "routes",
		gtfs.Route{RouteID: "R1", RouteLongName: "Line A"},
		gtfs.Route{RouteID: "R2", RouteLongName: "Line B"},
	)
}

func TestScheduledDepartures_Example(t *testing.T) {
	repo, store := newTestRepo(t)
	seedExample(t, store)

	deps, err := repo.ScheduledDepartures(context.Background(), "S1", "08:00:00")
	require.NoError(t, err)
	require.Len(t, deps, 2)

	assert.Equal(t, "T2", deps[0].TripID)
	assert.Equal(t, "Line B", deps[0].Line)
	assert.Equal(t, "08:01:00", deps[0].Scheduled)
	assert.Equal(t, "Molins de Rei", deps[0].Destination)
	assert.Equal(t, "S1", deps[0].StopID)

	assert.Equal(t, "T1", deps[1].TripID)
	assert.Equal(t, "Line A", deps[1].Line)
	assert.Equal(t, "08:05:00", deps[1].Scheduled)
}

func TestScheduledDepartures_ReferenceIsInclusive(t *testing.T) {
	repo, store := newTestRepo(t)
	seedExample(t, store)

	deps, err := repo.ScheduledDepartures(context.Background(), "S1", "08:01:00")
	require.NoError(t, err)
	require.NotEmpty(t, deps)
	assert.Equal(t, "T2", deps[0].TripID)
}

func TestScheduledDepartures_LimitAndOrder(t *testing.T) {
	repo, store := newTestRepo(t)

	var stopTimes []gtfs.StopTime
	var trips []gtfs.Trip
	// inserted newest first so ordering comes from the query
	for i := 40; i > 0; i-- {
		id := fmt.Sprintf("T%02d", i)
		stopTimes = append(stopTimes, gtfs.StopTime{TripID: id, StopID: "S1", ArrivalTime: fmt.Sprintf("%02d:%02d:00", 6+i/6, (i%6)*10)})
		trips = append(trips, gtfs.Trip{TripID: id, RouteID: "R1", TripHeadsign: "Girona"})
	}
	load(t, store, "stop_times", stopTimes...)
	load(t, store, "trips", trips...)
	load(t, store, "routes", gtfs.Route{RouteID: "R1", RouteLongName: "R11"})

	deps, err := repo.ScheduledDepartures(context.Background(), "S1", "07:00:00")
	require.NoError(t, err)
	require.Len(t, deps, MaxDepartures)

	times := make([]string, len(deps))
	for i, d := range deps {
		times[i] = d.Scheduled
		assert.GreaterOrEqual(t, d.Scheduled, "07:00:00")
	}
	assert.True(t, slices.IsSorted(times), "departures are ascending: %v", times)
	assert.Equal(t, "07:00:00", times[0])
}

func TestScheduledDepartures_TieBreakOnTripID(t *testing.T) {
	repo, store := newTestRepo(t)
	load(t, store, "stop_times",
		gtfs.StopTime{TripID: "B", StopID: "S1", ArrivalTime: "09:00:00"},
		gtfs.StopTime{TripID: "A", StopID: "S1", ArrivalTime: "09:00:00"},
	)
	load(t, store, "trips",
		gtfs.Trip{TripID: "A", RouteID: "R1"},
		gtfs.Trip{TripID: "B", RouteID: "R1"},
	)
	load(t, store, "routes", gtfs.Route{RouteID: "R1", RouteLongName: "Line A"})

	deps, err := repo.ScheduledDepartures(context.Background(), "S1", "08:00:00")
	require.NoError(t, err)
	require.Len(t, deps, 2)
	assert.Equal(t, "A", deps[0].TripID)
	assert.Equal(t, "B", deps[1].TripID)
}

func TestScheduledDepartures_UnknownStop(t *testing.T) {
	repo, store := newTestRepo(t)
	seedExample(t, store)

	deps, err := repo.ScheduledDepartures(context.Background(), "NOPE", "00:00:00")
	require.NoError(t, err)
	assert.NotNil(t, deps)
	assert.Empty(t, deps)
}

func TestScheduledDepartures_NoFutureDepartures(t *testing.T) {
	repo, store := newTestRepo(t)
	seedExample(t, store)

	deps, err := repo.ScheduledDepartures(context.Background(), "S1", "23:00:00")
	require.NoError(t, err)
	assert.Empty(t, deps)
}

func TestScheduledDepartures_DanglingReferencesExcluded(t *testing.T) {
	repo, store := newTestRepo(t)
	seedExample(t, store)
	load(t, store, "trips", gtfs.Trip{TripID: "T1", RouteID: "R1", TripHeadsign: "Maçanet"})

	// T2 no longer has a trip row
	deps, err := repo.ScheduledDepartures(context.Background(), "S1", "08:00:00")
	require.NoError(t, err)
	require.Len(t, deps, 1)
	assert.Equal(t, "T1", deps[0].TripID)
}

func TestScheduledDepartures_NoDayRollover(t *testing.T) {
	repo, store := newTestRepo(t)
	load(t, store, "stop_times",
		gtfs.StopTime{TripID: "EARLY", StopID: "S1", ArrivalTime: "00:10:00"},
		gtfs.StopTime{TripID: "LATE", StopID: "S1", ArrivalTime: "24:10:00"},
	)
	load(t, store, "trips",
		gtfs.Trip{TripID: "EARLY", RouteID: "R1"},
		gtfs.Trip{TripID: "LATE", RouteID: "R1"},
	)
	load(t, store, "routes", gtfs.Route{RouteID: "R1", RouteLongName: "Line A"})

	deps, err := repo.ScheduledDepartures(context.Background(), "S1", "23:50:00")
	require.NoError(t, err)
	require.Len(t, deps, 1, "the next-day 00:10:00 call is not surfaced")
	assert.Equal(t, "LATE", deps[0].TripID)
}

func TestScheduledDepartures_UnpaddedReference(t *testing.T) {
	repo, store := newTestRepo(t)
	seedExample(t, store)

	deps, err := repo.ScheduledDepartures(context.Background(), "S1", "8:00:00")
	require.NoError(t, err)
	assert.Len(t, deps, 2)
}

func TestScheduledDepartures_InvalidReference(t *testing.T) {
	repo, _ := newTestRepo(t)

	_, err := repo.ScheduledDepartures(context.Background(), "S1", "eight o'clock")
	assert.True(t, errors.Is(err, ErrInvalidReferenceTime))
}

func TestListStations(t *testing.T) {
	repo, store := newTestRepo(t)
	load(t, store, "stops",
		gtfs.Stop{StopID: "3", StopName: "Sants", StopLat: 41.379, StopLon: 2.140},
		gtfs.Stop{StopID: "1", StopName: "Clot", StopLat: 41.409, StopLon: 2.187},
		gtfs.Stop{StopID: "2", StopName: "Arc de Triomf", StopLat: 41.391, StopLon: 2.180},
	)

	stations, err := repo.ListStations(context.Background())
	require.NoError(t, err)
	require.Len(t, stations, 3)

	assert.Equal(t, []string{"Arc de Triomf", "Clot", "Sants"},
		[]string{stations[0].Name, stations[1].Name, stations[2].Name})
	assert.Equal(t, "1", stations[1].StopID)
	assert.InDelta(t, 41.409, stations[1].Lat, 1e-9)
	assert.InDelta(t, 2.187, stations[1].Lon, 1e-9)
}

func TestListStations_EmptyStore(t *testing.T) {
	repo, _ := newTestRepo(t)

	stations, err := repo.ListStations(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, stations)
	assert.Empty(t, stations)
}

func TestListStations_ClosedStore(t *testing.T) {
	repo, store := newTestRepo(t)
	require.NoError(t, store.Close())

	_, err := repo.ListStations(context.Background())
	var re *db.StoreReadError
	assert.True(t, errors.As(err, &re))
}
