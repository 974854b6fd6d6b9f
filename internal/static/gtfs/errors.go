package gtfs

import (
	"errors"
	"fmt"
)

// ErrMissingTable matches a MissingTableWarning with errors.Is
var ErrMissingTable = errors.New("gtfs: table not found in archive")

// FetchError reports a failed feed download: a non-2xx status, a transport
// failure or a timeout.
type FetchError struct {
	URL        string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// CorruptArchiveError reports bytes that cannot be opened as a zip archive
type CorruptArchiveError struct {
	Err error
}

func (e *CorruptArchiveError) Error() string {
	return fmt.Sprintf("corrupt archive: %v", e.Err)
}

func (e *CorruptArchiveError) Unwrap() error {
	return e.Err
}

// MissingTableWarning is returned for a required table absent from the archive.
// It is not fatal: the table load is skipped and its previous contents stay.
type MissingTableWarning struct {
	Table Table
}

func (w *MissingTableWarning) Error() string {
	return fmt.Sprintf("%s not found in archive", w.Table.FileName())
}

func (w *MissingTableWarning) Is(target error) bool {
	return target == ErrMissingTable
}

// ParseError reports a header missing a required column (Row 0) or a value
// that cannot be coerced to its column type. Row is 1-based over data rows.
type ParseError struct {
	Table  Table
	Row    int
	Column string
	Err    error
}

func (e *ParseError) Error() string {
	switch {
	case e.Row == 0 && e.Column != "":
		return fmt.Sprintf("%s: header: missing column %q", e.Table.FileName(), e.Column)
	case e.Column != "":
		return fmt.Sprintf("%s: row %d: column %q: %v", e.Table.FileName(), e.Row, e.Column, e.Err)
	default:
		return fmt.Sprintf("%s: row %d: %v", e.Table.FileName(), e.Row, e.Err)
	}
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// EncodingError reports a field that is not valid UTF-8
type EncodingError struct {
	Table  Table
	Row    int
	Column string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("%s: row %d: column %q: invalid UTF-8", e.Table.FileName(), e.Row, e.Column)
}
