package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/mini-rodalies-3d/horarios/internal/db"
	"github.com/mini-rodalies-3d/horarios/internal/models"
	"github.com/mini-rodalies-3d/horarios/internal/static/gtfs"
)

// MaxDepartures caps the number of departures returned per stop
const MaxDepartures = 15

// ErrInvalidReferenceTime is returned when the reference time is not H:MM:SS
var ErrInvalidReferenceTime = errors.New("invalid reference time")

// ScheduleRepository answers station and departure queries over the loaded
// schedule. It only reads, so any number of calls may run concurrently with
// each other and with an ingestion run.
type ScheduleRepository struct {
	store *db.Store
}

// NewScheduleRepository creates a new ScheduleRepository
func NewScheduleRepository(store *db.Store) *ScheduleRepository {
	return &ScheduleRepository{store: store}
}

// ListStations returns every stop ordered by name
func (r *ScheduleRepository) ListStations(ctx context.Context) ([]models.Station, error) {
	query := fmt.Sprintf(`
		SELECT stop_id, stop_name, stop_lat, stop_lon
		FROM %s
		ORDER BY stop_name, stop_id
	`, r.store.TableName("stops"))

	rows, err := r.store.Conn().QueryContext(ctx, query)
	if err != nil {
		return nil, &db.StoreReadError{Op: "list stations", Err: err}
	}
	defer rows.Close()

	stations := make([]models.Station, 0)
	for rows.Next() {
		var s models.Station
		if err := rows.Scan(&s.StopID, &s.Name, &s.Lat, &s.Lon); err != nil {
			return nil, &db.StoreReadError{Op: "list stations", Err: fmt.Errorf("failed to scan station: %w", err)}
		}
		stations = append(stations, s)
	}
	if err := rows.Err(); err != nil {
		return nil, &db.StoreReadError{Op: "list stations", Err: err}
	}

	return stations, nil
}

// ScheduledDepartures returns up to MaxDepartures calls at stopID whose
// arrival_time is at or after ref, earliest first.
//
// Comparison is on the zero-padded HH:MM:SS text. There is no service-day
// reasoning: at 23:50:00 a trip published as 00:10:00 is not returned, while
// one published as 24:10:00 is.
func (r *ScheduleRepository) ScheduledDepartures(ctx context.Context, stopID, ref string) ([]models.Departure, error) {
	refTime, err := gtfs.NormalizeTime(ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReferenceTime, err)
	}

	query := r.store.Rebind(fmt.Sprintf(`
		SELECT st.trip_id, t.trip_headsign, rt.route_long_name, st.arrival_time, st.stop_id
		FROM %s st
		JOIN %s t ON t.trip_id = st.trip_id
		JOIN %s rt ON rt.route_id = t.route_id
		WHERE st.stop_id = ?
		  AND st.arrival_time >= ?
		ORDER BY st.arrival_time, st.trip_id
		LIMIT %d
	`, r.store.TableName("stop_times"), r.store.TableName("trips"), r.store.TableName("routes"), MaxDepartures))

	rows, err := r.store.Conn().QueryContext(ctx, query, stopID, refTime)
	if err != nil {
		return nil, &db.StoreReadError{Op: "scheduled departures", Err: err}
	}
	defer rows.Close()

	departures := make([]models.Departure, 0, MaxDepartures)
	for rows.Next() {
		var d models.Departure
		if err := rows.Scan(&d.TripID, &d.Destination, &d.Line, &d.Scheduled, &d.StopID); err != nil {
			return nil, &db.StoreReadError{Op: "scheduled departures", Err: fmt.Errorf("failed to scan departure: %w", err)}
		}
		departures = append(departures, d)
	}
	if err := rows.Err(); err != nil {
		return nil, &db.StoreReadError{Op: "scheduled departures", Err: err}
	}

	return departures, nil
}
