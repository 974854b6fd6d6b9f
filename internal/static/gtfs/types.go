package gtfs

// Table is the logical name of a GTFS table (the archive entry without ".txt")
type Table string

const (
	TableStops     Table = "stops"
	TableTrips     Table = "trips"
	TableStopTimes Table = "stop_times"
	TableRoutes    Table = "routes"
)

// RequiredTables lists the tables loaded on every ingestion run, in load order.
var RequiredTables = []Table{TableStops, TableTrips, TableStopTimes, TableRoutes}

// FileName returns the archive entry name for the table
func (t Table) FileName() string {
	return string(t) + ".txt"
}

// Stop represents a stop from stops.txt
type Stop struct {
	StopID   string
	StopName string
	StopLat  float64
	StopLon  float64
}

// Values returns the row in store column order
func (s Stop) Values() []any {
	return []any{s.StopID, s.StopName, s.StopLat, s.StopLon}
}

// Trip represents a trip from trips.txt
type Trip struct {
	TripID       string
	RouteID      string
	TripHeadsign string
}

// Values returns the row in store column order
func (t Trip) Values() []any {
	return []any{t.TripID, t.RouteID, t.TripHeadsign}
}

// StopTime represents a stop time from stop_times.txt.
// ArrivalTime is zero-padded HH:MM:SS and may exceed 24:00:00.
type StopTime struct {
	TripID      string
	StopID      string
	ArrivalTime string
}

// Values returns the row in store column order
func (st StopTime) Values() []any {
	return []any{st.TripID, st.StopID, st.ArrivalTime}
}

// Route represents a route from routes.txt
type Route struct {
	RouteID       string
	RouteLongName string
}

// Values returns the row in store column order
func (r Route) Values() []any {
	return []any{r.RouteID, r.RouteLongName}
}
