package catalogue

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "forms_catalogue.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDecode_MissingColumnsDefaultEmpty(t *testing.T) {
	records, err := Decode(strings.NewReader("Title,Number\nAdmission Form,21A\n"))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := []Record{{Number: "21A", Title: "Admission Form"}}
	if !reflect.DeepEqual(records, want) {
		t.Errorf("records = %+v, want %+v", records, want)
	}
}

func TestDecode_CorrectedValues(t *testing.T) {
	input := "Number,Title,Description,Corrected\n" +
		"1,A,x,True\n" +
		"2,B,y,\n" +
		"3,C,z,false\n" +
		"4,D,w,true\n"
	records, err := Decode(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	got := []bool{records[0].Corrected, records[1].Corrected, records[2].Corrected, records[3].Corrected}
	want := []bool{true, false, false, true}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("corrected = %v, want %v", got, want)
	}
}

func TestDecode_ByteOrderMark(t *testing.T) {
	records, err := Decode(strings.NewReader("\ufeffNumber,Title\n5B,Release Order\n"))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if records[0].Number != "5B" {
		t.Errorf("Number = %q, want 5B", records[0].Number)
	}
}

func TestDecode_Empty(t *testing.T) {
	records, err := Decode(strings.NewReader(""))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected no records, got %d", len(records))
	}
}

func TestFileTable_MissingFile(t *testing.T) {
	table := NewFileTable(filepath.Join(t.TempDir(), "absent.csv"))
	_, err := table.Load()
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("err = %v, want ErrStorageUnavailable", err)
	}
}

func TestFileTable_RoundTrip(t *testing.T) {
	cases := map[string][]Record{
		"empty": {},
		"empty descriptions": {
			{Number: "21A", Title: "Admission Form"},
			{Number: "5B", Title: "Release Order"},
		},
		"quoting": {
			{Number: "7", Title: "Visitors, Book", Description: "Line one\nline \"two\"", Corrected: true},
			{Number: "", Title: "Untitled", Description: ""},
		},
	}

	for name, records := range cases {
		t.Run(name, func(t *testing.T) {
			table := NewFileTable(filepath.Join(t.TempDir(), "catalogue.csv"))
			if err := table.Save(records); err != nil {
				t.Fatalf("Save: %v", err)
			}
			got, err := table.Load()
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if !reflect.DeepEqual(got, records) {
				t.Errorf("round trip = %+v, want %+v", got, records)
			}
		})
	}
}

func TestFileTable_RoundTripCRLF(t *testing.T) {
	table := NewFileTable(writeCSV(t, "Number,Title\n7,Visitors Book\n"))
	store, err := Load(table)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	key := Key{Number: "7", Title: "Visitors Book"}
	if err := store.UpsertByKey(key, Fields{Number: "7", Title: "Visitors Book", Description: "line1\r\nline2\r\n"}); err != nil {
		t.Fatalf("UpsertByKey: %v", err)
	}
	if err := store.Insert(Fields{Number: "8", Title: "Leave\r\nForm", Description: "a\r\nb"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := store.Persist(); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	reloaded, err := Load(table)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !reflect.DeepEqual(reloaded.Records(), store.Records()) {
		t.Errorf("reloaded = %+v, want %+v", reloaded.Records(), store.Records())
	}
	if r, _ := reloaded.Get(key); r.Description != "line1\nline2\n" {
		t.Errorf("description = %q, want LF line breaks", r.Description)
	}
}

func TestFileTable_SaveLeavesNoTempFiles(t *testing.T) {
	path := writeCSV(t, "Number,Title\n1,A\n")
	table := NewFileTable(path)
	if err := table.Save([]Record{{Number: "1", Title: "A"}}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the catalogue file, found %d entries", len(entries))
	}
}

func TestFileTable_SaveIntoMissingDir(t *testing.T) {
	table := NewFileTable(filepath.Join(t.TempDir(), "gone", "catalogue.csv"))
	err := table.Save(nil)
	if !errors.Is(err, ErrPersistFailed) {
		t.Fatalf("err = %v, want ErrPersistFailed", err)
	}
}

func TestEncode_Header(t *testing.T) {
	var sb strings.Builder
	if err := Encode(&sb, []Record{{Number: "1", Title: "A", Description: "d", Corrected: true}}); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := "Number,Title,Description,Corrected\n1,A,d,True\n"
	if sb.String() != want {
		t.Errorf("Encode = %q, want %q", sb.String(), want)
	}
}
