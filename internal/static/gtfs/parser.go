package gtfs

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

var (
	errEmptyValue  = errors.New("empty value")
	errInvalidTime = errors.New("invalid time, want HH:MM:SS")
)

// Required header columns per table. Extra columns are ignored.
var requiredColumns = map[Table][]string{
	TableStops:     {"stop_id", "stop_name", "stop_lat", "stop_lon"},
	TableTrips:     {"trip_id", "route_id", "trip_headsign"},
	TableStopTimes: {"trip_id", "stop_id", "arrival_time"},
	TableRoutes:    {"route_id", "route_long_name"},
}

// ParseStops streams typed rows from stops.txt
func ParseStops(r io.Reader) iter.Seq2[Stop, error] {
	return rows(TableStops, r, func(tr *tableReader, record []string) (Stop, error) {
		id, err := tr.required(record, "stop_id")
		if err != nil {
			return Stop{}, err
		}
		lat, err := tr.float(record, "stop_lat")
		if err != nil {
			return Stop{}, err
		}
		lon, err := tr.float(record, "stop_lon")
		if err != nil {
			return Stop{}, err
		}
		return Stop{
			StopID:   id,
			StopName: tr.field(record, "stop_name"),
			StopLat:  lat,
			StopLon:  lon,
		}, nil
	})
}

// ParseTrips streams typed rows from trips.txt
func ParseTrips(r io.Reader) iter.Seq2[Trip, error] {
	return rows(TableTrips, r, func(tr *tableReader, record []string) (Trip, error) {
		id, err := tr.required(record, "trip_id")
		if err != nil {
			return Trip{}, err
		}
		routeID, err := tr.required(record, "route_id")
		if err != nil {
			return Trip{}, err
		}
		return Trip{
			TripID:       id,
			RouteID:      routeID,
			TripHeadsign: tr.field(record, "trip_headsign"),
		}, nil
	})
}

// ParseStopTimes streams typed rows from stop_times.txt. Arrival times are
// normalized to zero-padded HH:MM:SS; an empty arrival time (untimed stop)
// is kept empty.
func ParseStopTimes(r io.Reader) iter.Seq2[StopTime, error] {
	return rows(TableStopTimes, r, func(tr *tableReader, record []string) (StopTime, error) {
		tripID, err := tr.required(record, "trip_id")
		if err != nil {
			return StopTime{}, err
		}
		stopID, err := tr.required(record, "stop_id")
		if err != nil {
			return StopTime{}, err
		}
		arrival := tr.field(record, "arrival_time")
		if arrival != "" {
			arrival, err = NormalizeTime(arrival)
			if err != nil {
				return StopTime{}, tr.errorf("arrival_time", err)
			}
		}
		return StopTime{
			TripID:      tripID,
			StopID:      stopID,
			ArrivalTime: arrival,
		}, nil
	})
}

// ParseRoutes streams typed rows from routes.txt
func ParseRoutes(r io.Reader) iter.Seq2[Route, error] {
	return rows(TableRoutes, r, func(tr *tableReader, record []string) (Route, error) {
		id, err := tr.required(record, "route_id")
		if err != nil {
			return Route{}, err
		}
		return Route{
			RouteID:       id,
			RouteLongName: tr.field(record, "route_long_name"),
		}, nil
	})
}

// NormalizeTime converts a GTFS time (H:MM:SS or HH:MM:SS, hours may exceed
// 24) into the zero-padded HH:MM:SS form that compares correctly as a string.
func NormalizeTime(s string) (string, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return "", errInvalidTime
	}
	var v [3]int
	for i, p := range parts {
		// two digits at most, so the padded form stays comparable as text
		if p == "" || len(p) > 2 {
			return "", errInvalidTime
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || strings.ContainsAny(p, "+-") {
			return "", errInvalidTime
		}
		v[i] = n
	}
	if v[1] > 59 || v[2] > 59 {
		return "", errInvalidTime
	}
	return fmt.Sprintf("%02d:%02d:%02d", v[0], v[1], v[2]), nil
}

// rows builds a single-pass lazy sequence over one table. The sequence ends
// after the first error.
func rows[T any](table Table, r io.Reader, build func(*tableReader, []string) (T, error)) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		tr, err := newTableReader(table, r)
		if err != nil {
			yield(zero, err)
			return
		}
		for {
			record, err := tr.next()
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(zero, err)
				return
			}
			row, err := build(tr, record)
			if err != nil {
				yield(zero, err)
				return
			}
			if !yield(row, nil) {
				return
			}
		}
	}
}

// tableReader wraps a csv.Reader with header-based column lookup
type tableReader struct {
	table  Table
	reader *csv.Reader
	header []string
	idx    map[string]int
	row    int
}

func newTableReader(table Table, r io.Reader) (*tableReader, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, &ParseError{Table: table, Err: errors.New("empty table, no header row")}
	}
	if err != nil {
		return nil, &ParseError{Table: table, Err: fmt.Errorf("read header: %w", err)}
	}
	header = append([]string(nil), header...)
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	for i, h := range header {
		if !utf8.ValidString(h) {
			return nil, &EncodingError{Table: table, Row: 0, Column: fmt.Sprintf("#%d", i+1)}
		}
	}

	tr := &tableReader{
		table:  table,
		reader: reader,
		header: header,
		idx:    makeIndex(header),
	}
	for _, col := range requiredColumns[table] {
		if _, ok := tr.idx[col]; !ok {
			return nil, &ParseError{Table: table, Column: col}
		}
	}
	return tr, nil
}

// next reads one data row and checks its encoding
func (tr *tableReader) next() ([]string, error) {
	record, err := tr.reader.Read()
	if err == io.EOF {
		return nil, io.EOF
	}
	tr.row++
	if err != nil {
		var csvErr *csv.ParseError
		if errors.As(err, &csvErr) {
			return nil, &ParseError{Table: tr.table, Row: tr.row, Err: csvErr.Err}
		}
		return nil, fmt.Errorf("read %s: %w", tr.table.FileName(), err)
	}
	for i, v := range record {
		if !utf8.ValidString(v) {
			col := fmt.Sprintf("#%d", i+1)
			if i < len(tr.header) {
				col = tr.header[i]
			}
			return nil, &EncodingError{Table: tr.table, Row: tr.row, Column: col}
		}
	}
	return record, nil
}

func (tr *tableReader) field(record []string, name string) string {
	return getField(record, tr.idx, name)
}

func (tr *tableReader) required(record []string, name string) (string, error) {
	v := tr.field(record, name)
	if v == "" {
		return "", tr.errorf(name, errEmptyValue)
	}
	return v, nil
}

func (tr *tableReader) float(record []string, name string) (float64, error) {
	v, err := tr.required(record, name)
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, tr.errorf(name, fmt.Errorf("not a number: %q", v))
	}
	return f, nil
}

func (tr *tableReader) errorf(column string, err error) error {
	return &ParseError{Table: tr.table, Row: tr.row, Column: column, Err: err}
}

func makeIndex(header []string) map[string]int {
	idx := make(map[string]int)
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}
	return idx
}

func getField(record []string, idx map[string]int, field string) string {
	if i, ok := idx[field]; ok && i < len(record) {
		return strings.TrimSpace(record[i])
	}
	return ""
}
