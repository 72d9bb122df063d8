package catalogue

import (
	"errors"
	"fmt"
	"testing"
)

// memTable is an in-memory Table for tests.
type memTable struct {
	rows    []Record
	saveErr error
	saves   int
}

func (m *memTable) Load() ([]Record, error) {
	out := make([]Record, len(m.rows))
	copy(out, m.rows)
	return out, nil
}

func (m *memTable) Save(records []Record) error {
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.rows = make([]Record, len(records))
	copy(m.rows, records)
	return nil
}

func openTestStore(t *testing.T, rows ...Record) (*Store, *memTable) {
	t.Helper()
	table := &memTable{rows: rows}
	s, err := Load(table)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return s, table
}

func assertUniqueKeys(t *testing.T, s *Store) {
	t.Helper()
	seen := map[Key]bool{}
	for _, r := range s.Records() {
		if seen[r.Key()] {
			t.Fatalf("duplicate key %s in store", r.Key())
		}
		seen[r.Key()] = true
	}
}

func TestLoad_DropsDuplicateRows(t *testing.T) {
	s, _ := openTestStore(t,
		Record{Number: "1", Title: "A", Description: "first"},
		Record{Number: "1", Title: "A", Description: "second"},
	)
	if s.Len() != 1 {
		t.Fatalf("Len = %d, want 1", s.Len())
	}
	rec, _ := s.Get(Key{"1", "A"})
	if rec.Description != "first" {
		t.Errorf("kept %q, want first occurrence", rec.Description)
	}
}

func TestFilter(t *testing.T) {
	s, _ := openTestStore(t,
		Record{Number: "21A", Title: "Admission Form"},
		Record{Number: "5B", Title: "Release Order"},
		Record{Number: "9", Title: "Daily Lock-up Book"},
	)

	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"21A", "5B", "9"}},
		{"  ", []string{"21A", "5B", "9"}},
		{"form", []string{"21A"}},
		{"RELEASE", []string{"5B"}},
		{"5b", []string{"5B"}},
		{"o", []string{"21A", "5B", "9"}},
		{"missing", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got := s.Filter(tt.query)
			numbers := make([]string, len(got))
			for i, r := range got {
				numbers[i] = r.Number
			}
			if fmt.Sprint(numbers) != fmt.Sprint(tt.want) {
				t.Errorf("Filter(%q) = %v, want %v", tt.query, numbers, tt.want)
			}
		})
	}
}

func TestInsert_DuplicateKey(t *testing.T) {
	s, _ := openTestStore(t)
	f := Fields{Number: "5B", Title: "Release Order"}

	if err := s.Insert(f); err != nil {
		t.Fatalf("first Insert: %v", err)
	}
	if err := s.Insert(f); !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("second Insert err = %v, want ErrDuplicateKey", err)
	}
	if got := len(s.Filter("5B")); got != 1 {
		t.Errorf("store has %d 5B records, want 1", got)
	}
}

func TestInsert_CorrectedOnlyWithDescription(t *testing.T) {
	s, _ := openTestStore(t)
	s.Insert(Fields{Number: "1", Title: "A"})
	s.Insert(Fields{Number: "2", Title: "B", Description: "Has text"})

	a, _ := s.Get(Key{"1", "A"})
	b, _ := s.Get(Key{"2", "B"})
	if a.Corrected {
		t.Error("record without description should not be corrected")
	}
	if !b.Corrected {
		t.Error("record with description should be corrected")
	}
}

func TestUpsertByKey(t *testing.T) {
	t.Run("in place", func(t *testing.T) {
		s, _ := openTestStore(t,
			Record{Number: "1", Title: "A"},
			Record{Number: "2", Title: "B"},
		)
		err := s.UpsertByKey(Key{"1", "A"}, Fields{Number: "1", Title: "A", Description: "Updated"})
		if err != nil {
			t.Fatalf("UpsertByKey: %v", err)
		}
		recs := s.Records()
		if recs[0].Description != "Updated" || !recs[0].Corrected {
			t.Errorf("record = %+v, want updated and corrected", recs[0])
		}
		if recs[1].Corrected || recs[1].Description != "" {
			t.Errorf("other record touched: %+v", recs[1])
		}
	})

	t.Run("rekey", func(t *testing.T) {
		s, _ := openTestStore(t, Record{Number: "1", Title: "A"})
		if err := s.UpsertByKey(Key{"1", "A"}, Fields{Number: "1X", Title: "A"}); err != nil {
			t.Fatalf("UpsertByKey: %v", err)
		}
		if s.Has(Key{"1", "A"}) || !s.Has(Key{"1X", "A"}) {
			t.Errorf("rekey not applied: %+v", s.Records())
		}
	})

	t.Run("collision", func(t *testing.T) {
		s, _ := openTestStore(t,
			Record{Number: "1", Title: "A"},
			Record{Number: "2", Title: "B", Description: "keep"},
		)
		err := s.UpsertByKey(Key{"1", "A"}, Fields{Number: "2", Title: "B", Description: "clobber"})
		if !errors.Is(err, ErrDuplicateKey) {
			t.Fatalf("err = %v, want ErrDuplicateKey", err)
		}
		rec, _ := s.Get(Key{"2", "B"})
		if rec.Description != "keep" {
			t.Errorf("collision overwrote record: %+v", rec)
		}
		assertUniqueKeys(t, s)
	})

	t.Run("not found", func(t *testing.T) {
		s, _ := openTestStore(t)
		err := s.UpsertByKey(Key{"1", "A"}, Fields{Number: "1", Title: "A"})
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	})
}

func TestKeyUniquenessUnderMixedOperations(t *testing.T) {
	s, _ := openTestStore(t)
	ops := []func() error{
		func() error { return s.Insert(Fields{Number: "1", Title: "A"}) },
		func() error { return s.Insert(Fields{Number: "2", Title: "B"}) },
		func() error { return s.Insert(Fields{Number: "1", Title: "A"}) },
		func() error { return s.UpsertByKey(Key{"2", "B"}, Fields{Number: "1", Title: "A"}) },
		func() error { return s.UpsertByKey(Key{"2", "B"}, Fields{Number: "3", Title: "C"}) },
		func() error { return s.Insert(Fields{Number: "2", Title: "B"}) },
		func() error { return s.UpsertByKey(Key{"3", "C"}, Fields{Number: "2", Title: "B"}) },
	}
	for _, op := range ops {
		op()
		assertUniqueKeys(t, s)
	}
	if s.Len() != 3 {
		t.Errorf("Len = %d, want 3", s.Len())
	}
}

func TestDeleteByKey(t *testing.T) {
	s, _ := openTestStore(t,
		Record{Number: "1", Title: "A"},
		Record{Number: "2", Title: "B"},
	)
	if err := s.DeleteByKey(Key{"1", "A"}); err != nil {
		t.Fatalf("DeleteByKey: %v", err)
	}
	if s.Len() != 1 || s.Has(Key{"1", "A"}) {
		t.Errorf("record not removed: %+v", s.Records())
	}
	if err := s.DeleteByKey(Key{"1", "A"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestPersist_WrapsTableError(t *testing.T) {
	s, table := openTestStore(t, Record{Number: "1", Title: "A"})
	table.saveErr = errors.New("disk full")

	err := s.Persist()
	if !errors.Is(err, ErrPersistFailed) {
		t.Fatalf("err = %v, want ErrPersistFailed", err)
	}
}

func TestSnapshotRestore(t *testing.T) {
	s, _ := openTestStore(t, Record{Number: "1", Title: "A"})
	snap := s.Snapshot()

	s.Insert(Fields{Number: "2", Title: "B"})
	s.UpsertByKey(Key{"1", "A"}, Fields{Number: "1", Title: "A", Description: "changed"})
	s.Restore(snap)

	recs := s.Records()
	if len(recs) != 1 || recs[0].Description != "" || recs[0].Corrected {
		t.Errorf("restore = %+v, want original single record", recs)
	}
}

func TestReload(t *testing.T) {
	s, table := openTestStore(t, Record{Number: "1", Title: "A"})
	table.rows = []Record{{Number: "1", Title: "A", Description: "from another session", Corrected: true}}

	if err := s.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	rec, _ := s.Get(Key{"1", "A"})
	if rec.Description != "from another session" {
		t.Errorf("Description = %q after reload", rec.Description)
	}
}

func TestExport(t *testing.T) {
	s, _ := openTestStore(t, Record{Number: "21A", Title: "Admission Form", Description: "Used to admit inmates.", Corrected: true})
	data, err := s.Export()
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	want := "Number,Title,Description,Corrected\n21A,Admission Form,Used to admit inmates.,True\n"
	if string(data) != want {
		t.Errorf("Export = %q, want %q", data, want)
	}
}
