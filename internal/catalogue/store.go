package catalogue

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"slices"
)

// Store is an ordered, in-memory set of records with unique keys, backed by a Table.
// It is not safe for concurrent use; a Store belongs to a single session.
type Store struct {
	table   Table
	records []Record
}

// Load reads every row from table into a new Store. Rows whose key repeats
// an earlier row are dropped with a warning so the key invariant holds.
func Load(table Table) (*Store, error) {
	rows, err := table.Load()
	if err != nil {
		return nil, err
	}

	seen := make(map[Key]struct{}, len(rows))
	records := make([]Record, 0, len(rows))
	for _, r := range rows {
		if _, dup := seen[r.Key()]; dup {
			slog.Warn("catalogue: dropping duplicate row", "number", r.Number, "title", r.Title)
			continue
		}
		seen[r.Key()] = struct{}{}
		records = append(records, r)
	}
	return &Store{table: table, records: records}, nil
}

// Len returns the number of records.
func (s *Store) Len() int {
	return len(s.records)
}

// Records returns a copy of all records in order.
func (s *Store) Records() []Record {
	return slices.Clone(s.records)
}

// Filter returns, in store order, the records whose number or title contains
// query case-insensitively. An empty query returns every record.
func (s *Store) Filter(query string) []Record {
	out := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		if r.Matches(query) {
			out = append(out, r)
		}
	}
	return out
}

// Get returns the record with the given key.
func (s *Store) Get(key Key) (Record, error) {
	i := s.index(key)
	if i < 0 {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return s.records[i], nil
}

// Has reports whether a record with the given key exists.
func (s *Store) Has(key Key) bool {
	return s.index(key) >= 0
}

// UpsertByKey replaces number, title and description of the record at
// oldKey in place and marks it corrected. Rekeying onto another record's key
// fails with ErrDuplicateKey.
func (s *Store) UpsertByKey(oldKey Key, f Fields) error {
	f = f.Normalized()
	i := s.index(oldKey)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, oldKey)
	}
	if newKey := f.Key(); newKey != oldKey {
		if j := s.index(newKey); j >= 0 && j != i {
			return fmt.Errorf("%w: %s", ErrDuplicateKey, newKey)
		}
	}
	s.records[i] = Record{
		Number:      f.Number,
		Title:       f.Title,
		Description: f.Description,
		Corrected:   true,
	}
	return nil
}

// Insert appends a new record. It is marked corrected only when it carries a description.
func (s *Store) Insert(f Fields) error {
	f = f.Normalized()
	if s.Has(f.Key()) {
		return fmt.Errorf("%w: %s", ErrDuplicateKey, f.Key())
	}
	s.records = append(s.records, Record{
		Number:      f.Number,
		Title:       f.Title,
		Description: f.Description,
		Corrected:   f.Description != "",
	})
	return nil
}

// DeleteByKey removes the single record with the given key.
func (s *Store) DeleteByKey(key Key) error {
	i := s.index(key)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	s.records = slices.Delete(s.records, i, i+1)
	return nil
}

// Persist writes every record back to the table.
func (s *Store) Persist() error {
	err := s.table.Save(s.records)
	if err == nil || errors.Is(err, ErrPersistFailed) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrPersistFailed, err)
}

// Export returns the catalogue encoded as CSV.
func (s *Store) Export() ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, s.records); err != nil {
		return nil, fmt.Errorf("encoding catalogue: %w", err)
	}
	return buf.Bytes(), nil
}

// Snapshot captures the current records so a failed commit can be undone.
type Snapshot struct {
	records []Record
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	return Snapshot{records: slices.Clone(s.records)}
}

// Restore rolls the store back to a previous snapshot.
func (s *Store) Restore(snap Snapshot) {
	s.records = slices.Clone(snap.records)
}

// Reload replaces the in-memory records with a fresh read of the table.
func (s *Store) Reload() error {
	fresh, err := Load(s.table)
	if err != nil {
		return err
	}
	s.records = fresh.records
	return nil
}

func (s *Store) index(key Key) int {
	return slices.IndexFunc(s.records, func(r Record) bool { return r.Key() == key })
}
