package db

import (
	"context"
	"fmt"
	"log"
	"strings"
)

type columnKind int

const (
	kindID columnKind = iota
	kindText
	kindTime
	kindFloat
)

type column struct {
	name string
	kind columnKind
}

// tableDef describes one destination table. Column order is the order of
// Record.Values(). Schedule tables carry no keys: a feed that repeats an id
// is stored as published.
type tableDef struct {
	name       string
	columns    []column
	primaryKey string
	// index columns, empty for none
	index []string
}

var scheduleTables = map[string]tableDef{
	"stops": {
		name: "stops",
		columns: []column{
			{"stop_id", kindID},
			{"stop_name", kindText},
			{"stop_lat", kindFloat},
			{"stop_lon", kindFloat},
		},
		index: []string{"stop_id"},
	},
	"trips": {
		name: "trips",
		columns: []column{
			{"trip_id", kindID},
			{"route_id", kindID},
			{"trip_headsign", kindText},
		},
		index: []string{"trip_id"},
	},
	"stop_times": {
		name: "stop_times",
		columns: []column{
			{"trip_id", kindID},
			{"stop_id", kindID},
			{"arrival_time", kindTime},
		},
		index: []string{"stop_id", "arrival_time"},
	},
	"routes": {
		name: "routes",
		columns: []column{
			{"route_id", kindID},
			{"route_long_name", kindText},
		},
		index: []string{"route_id"},
	},
}

var runsTable = tableDef{
	name: "ingest_runs",
	columns: []column{
		{"run_id", kindID},
		{"started_at", kindTime},
		{"finished_at", kindTime},
		{"source_url", kindText},
		{"feed_version", kindText},
		{"status", kindID},
		{"summary", kindText},
	},
	primaryKey: "run_id",
	index:      []string{"status", "finished_at"},
}

// ScheduleTables returns the logical names of the four schedule tables
func ScheduleTables() []string {
	return []string{"stops", "trips", "stop_times", "routes"}
}

func (s *Store) columnType(k columnKind) string {
	switch s.dialect {
	case DialectPostgres:
		switch k {
		case kindFloat:
			return "DOUBLE PRECISION"
		case kindTime:
			// byte order so HH:MM:SS compares as written
			return `TEXT COLLATE "C"`
		default:
			return "TEXT"
		}
	case DialectMySQL:
		switch k {
		case kindID:
			return "VARCHAR(191)"
		case kindTime:
			return "VARCHAR(32)"
		case kindFloat:
			return "DOUBLE"
		default:
			return "TEXT"
		}
	default:
		switch k {
		case kindFloat:
			return "REAL"
		default:
			return "TEXT"
		}
	}
}

// createStatements returns the idempotent DDL for one table
func (s *Store) createStatements(td tableDef) []string {
	table := s.TableName(td.name)
	indexName := fmt.Sprintf("idx_%s_%s", table, strings.Join(td.index, "_"))

	defs := make([]string, 0, len(td.columns)+2)
	for _, c := range td.columns {
		def := c.name + " " + s.columnType(c.kind)
		if c.name == td.primaryKey {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	if td.primaryKey != "" {
		defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", td.primaryKey))
	}
	// MySQL has no CREATE INDEX IF NOT EXISTS, so the index goes inline
	if s.dialect == DialectMySQL && len(td.index) > 0 {
		defs = append(defs, fmt.Sprintf("INDEX %s (%s)", indexName, strings.Join(td.index, ", ")))
	}

	create := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", table, strings.Join(defs, ",\n\t"))
	if s.dialect == DialectMySQL {
		create += " ENGINE=InnoDB DEFAULT CHARSET=utf8mb4"
	}

	stmts := []string{create}
	if s.dialect != DialectMySQL && len(td.index) > 0 {
		stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
			indexName, table, strings.Join(td.index, ", ")))
	}
	return stmts
}

func (s *Store) ensureTable(ctx context.Context, td tableDef) error {
	for _, stmt := range s.createStatements(td) {
		if _, err := s.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create %s: %w", s.TableName(td.name), err)
		}
	}
	return nil
}

// EnsureSchema creates the schedule tables and the run log if they don't
// exist. Existing tables and their rows are left untouched.
func (s *Store) EnsureSchema(ctx context.Context) error {
	s.LockWrite()
	defer s.UnlockWrite()

	for _, name := range ScheduleTables() {
		if err := s.ensureTable(ctx, scheduleTables[name]); err != nil {
			return err
		}
	}
	if err := s.ensureTable(ctx, runsTable); err != nil {
		return err
	}

	log.Println("Database schema ensured")
	return nil
}
