package db

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"log"
	"strings"
	"time"
)

// batchRows is the number of rows per multi-row INSERT. With four columns
// this stays well under SQLite's bound parameter limit.
const batchRows = 250

// Record is a typed row that can be written to a destination table
type Record interface {
	Values() []any
}

// Records adapts a typed row sequence to the sequence ReplaceTable consumes
func Records[T Record](seq iter.Seq2[T, error]) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		for row, err := range seq {
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(row, nil) {
				return
			}
		}
	}
}

// ReplaceTable swaps the full contents of a schedule table for the rows in
// seq. Delete and inserts run in one transaction: readers see either the old
// rows or the new rows, never a mix. An error from seq aborts the load and is
// returned unchanged; store failures come back as *StoreWriteError. In both
// cases the previous contents are kept.
func (s *Store) ReplaceTable(ctx context.Context, table string, seq iter.Seq2[Record, error]) (int64, error) {
	td, ok := scheduleTables[table]
	if !ok {
		return 0, fmt.Errorf("unknown table %q", table)
	}

	s.LockWrite()
	defer s.UnlockWrite()

	start := time.Now()
	if err := s.ensureTable(ctx, td); err != nil {
		return 0, &StoreWriteError{Table: table, Err: err}
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, &StoreWriteError{Table: table, Err: fmt.Errorf("failed to begin transaction: %w", err)}
	}
	defer tx.Rollback()

	dest := s.TableName(table)
	if _, err := tx.ExecContext(ctx, "DELETE FROM "+dest); err != nil {
		return 0, &StoreWriteError{Table: table, Err: fmt.Errorf("failed to clear table: %w", err)}
	}

	w := &batchWriter{
		store:   s,
		tx:      tx,
		table:   dest,
		columns: columnNames(td),
		args:    make([]any, 0, batchRows*len(td.columns)),
	}
	defer w.close()

	var count int64
	for rec, err := range seq {
		if err != nil {
			return 0, err
		}
		vals := rec.Values()
		if len(vals) != len(w.columns) {
			return 0, &StoreWriteError{Table: table, Err: fmt.Errorf("row has %d values, want %d", len(vals), len(w.columns))}
		}
		if err := w.add(ctx, vals); err != nil {
			return 0, &StoreWriteError{Table: table, Err: err}
		}
		count++
	}
	if err := w.flush(ctx); err != nil {
		return 0, &StoreWriteError{Table: table, Err: err}
	}

	if err := tx.Commit(); err != nil {
		return 0, &StoreWriteError{Table: table, Err: fmt.Errorf("failed to commit: %w", err)}
	}

	log.Printf("Replaced %s: %d rows in %v", dest, count, time.Since(start).Round(time.Millisecond))
	return count, nil
}

// CountRows returns the number of rows in a schedule table
func (s *Store) CountRows(ctx context.Context, table string) (int64, error) {
	var n int64
	err := s.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+s.TableName(table)).Scan(&n)
	if err != nil {
		return 0, &StoreReadError{Op: "count " + table, Err: err}
	}
	return n, nil
}

func columnNames(td tableDef) []string {
	names := make([]string, len(td.columns))
	for i, c := range td.columns {
		names[i] = c.name
	}
	return names
}

// batchWriter accumulates rows and writes them with a prepared multi-row
// INSERT once a batch is full. The trailing partial batch uses its own
// statement.
type batchWriter struct {
	store   *Store
	tx      *sql.Tx
	table   string
	columns []string
	args    []any
	rows    int
	full    *sql.Stmt
}

func (w *batchWriter) insertSQL(rows int) string {
	tuple := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(w.columns)), ", ") + ")"
	tuples := strings.TrimSuffix(strings.Repeat(tuple+", ", rows), ", ")
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", w.table, strings.Join(w.columns, ", "), tuples)
	return w.store.Rebind(query)
}

func (w *batchWriter) add(ctx context.Context, vals []any) error {
	w.args = append(w.args, vals...)
	w.rows++
	if w.rows < batchRows {
		return nil
	}

	if w.full == nil {
		stmt, err := w.tx.PrepareContext(ctx, w.insertSQL(batchRows))
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		w.full = stmt
	}
	if _, err := w.full.ExecContext(ctx, w.args...); err != nil {
		return fmt.Errorf("failed to insert batch: %w", err)
	}
	w.args = w.args[:0]
	w.rows = 0
	return nil
}

func (w *batchWriter) flush(ctx context.Context) error {
	if w.rows == 0 {
		return nil
	}
	if _, err := w.tx.ExecContext(ctx, w.insertSQL(w.rows), w.args...); err != nil {
		return fmt.Errorf("failed to insert batch: %w", err)
	}
	w.args = w.args[:0]
	w.rows = 0
	return nil
}

func (w *batchWriter) close() {
	if w.full != nil {
		w.full.Close()
	}
}
