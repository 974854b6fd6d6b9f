package models

// Station is a stop as served by GET /api/stations
type Station struct {
	StopID string  `json:"stop_id"`
	Name   string  `json:"name"`
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
}

// Departure is one scheduled call at a stop, as served by
// GET /api/station/{stop_id}/scheduled
type Departure struct {
	TripID      string `json:"trip_id"`
	Destination string `json:"destino"`    // trips.trip_headsign
	Line        string `json:"linea"`      // routes.route_long_name
	Scheduled   string `json:"programado"` // HH:MM:SS, may exceed 24:00:00
	StopID      string `json:"stop_id"`
}
