package catalogue

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Column names of the backing table, in write order.
const (
	ColNumber      = "Number"
	ColTitle       = "Title"
	ColDescription = "Description"
	ColCorrected   = "Corrected"
)

var columns = []string{ColNumber, ColTitle, ColDescription, ColCorrected}

// Table is the durable row store behind a Store.
type Table interface {
	Load() ([]Record, error)
	Save(records []Record) error
}

// FileTable reads and writes records as a CSV file on disk.
type FileTable struct {
	path string
}

// NewFileTable returns a Table backed by the CSV file at path.
func NewFileTable(path string) *FileTable {
	return &FileTable{path: path}
}

// Load reads all rows. A missing file yields ErrStorageUnavailable; there is
// no implicit empty catalogue.
func (t *FileTable) Load() ([]Record, error) {
	f, err := os.Open(t.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s not found", ErrStorageUnavailable, t.path)
		}
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	defer f.Close()

	records, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", t.path, err)
	}
	return records, nil
}

// Save replaces the file contents. The new contents are written to a
// temporary file in the same directory and renamed over the original, so a
// failed write leaves the previous file intact.
func (t *FileTable) Save(records []Record) error {
	var buf bytes.Buffer
	if err := Encode(&buf, records); err != nil {
		return fmt.Errorf("%w: encoding: %v", ErrPersistFailed, err)
	}

	dir := filepath.Dir(t.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(t.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistFailed, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { os.Remove(tmpName) }

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("%w: writing: %v", ErrPersistFailed, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("%w: syncing: %v", ErrPersistFailed, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("%w: closing: %v", ErrPersistFailed, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return fmt.Errorf("%w: %v", ErrPersistFailed, err)
	}
	if err := os.Rename(tmpName, t.path); err != nil {
		cleanup()
		return fmt.Errorf("%w: replacing %s: %v", ErrPersistFailed, t.path, err)
	}
	return nil
}

// Decode parses CSV rows by header name. Missing Number, Title or
// Description columns read as empty strings; a missing Corrected column
// reads as false.
func Decode(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return []Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	idx := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if _, dup := idx[name]; !dup {
			idx[name] = i
		}
	}
	field := func(row []string, col string) string {
		i, ok := idx[col]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	records := []Record{}
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading row %d: %w", len(records)+2, err)
		}
		records = append(records, Record{
			Number:      field(row, ColNumber),
			Title:       field(row, ColTitle),
			Description: field(row, ColDescription),
			Corrected:   parseCorrected(field(row, ColCorrected)),
		})
	}
	return records, nil
}

// Encode writes the header and all records as CSV.
func Encode(w io.Writer, records []Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return err
	}
	for _, rec := range records {
		corrected := ""
		if rec.Corrected {
			corrected = "True"
		}
		if err := cw.Write([]string{rec.Number, rec.Title, rec.Description, corrected}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func parseCorrected(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes":
		return true
	}
	return false
}
