package gtfs

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path"
	"strings"
)

// Archive is a GTFS zip held in memory. Only the required tables and
// feed_info.txt are indexed; other entries are never opened.
type Archive struct {
	files    map[Table]*zip.File
	feedInfo *zip.File
}

// OpenArchive opens archive bytes as a zip
func OpenArchive(data []byte) (*Archive, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &CorruptArchiveError{Err: err}
	}

	a := &Archive{files: make(map[Table]*zip.File, len(RequiredTables))}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		// Some publishers nest the tables in a folder inside the zip
		name := strings.ToLower(path.Base(f.Name))
		if name == "feed_info.txt" && a.feedInfo == nil {
			a.feedInfo = f
			continue
		}
		for _, t := range RequiredTables {
			if name == t.FileName() {
				if _, seen := a.files[t]; !seen {
					a.files[t] = f
				}
				break
			}
		}
	}

	return a, nil
}

// Has reports whether the archive contains the table
func (a *Archive) Has(t Table) bool {
	_, ok := a.files[t]
	return ok
}

// Open returns the raw CSV content of a required table. A table absent from
// the archive yields a *MissingTableWarning.
func (a *Archive) Open(t Table) (io.ReadCloser, error) {
	f, ok := a.files[t]
	if !ok {
		return nil, &MissingTableWarning{Table: t}
	}
	rc, err := f.Open()
	if err != nil {
		return nil, &CorruptArchiveError{Err: fmt.Errorf("open %s: %w", f.Name, err)}
	}
	return rc, nil
}

// FeedVersion returns feed_info.txt's feed_version, or "" when absent
func (a *Archive) FeedVersion() string {
	if a.feedInfo == nil {
		return ""
	}
	rc, err := a.feedInfo.Open()
	if err != nil {
		return ""
	}
	defer rc.Close()

	reader := csv.NewReader(rc)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		return ""
	}
	idx := makeIndex(header)
	record, err := reader.Read()
	if err != nil {
		return ""
	}
	return getField(record, idx, "feed_version")
}
