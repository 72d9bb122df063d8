package catalogue

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrStorageUnavailable is returned when the backing catalogue file does not exist.
	ErrStorageUnavailable = errors.New("catalogue storage unavailable")
	// ErrPersistFailed is returned when the catalogue could not be written back.
	ErrPersistFailed = errors.New("persisting catalogue failed")
	// ErrNotFound is returned when no record matches the requested key.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateKey is returned when a (number, title) pair is already taken.
	ErrDuplicateKey = errors.New("duplicate record key")
)

// Key is the identity of a record: the (number, title) pair.
type Key struct {
	Number string `json:"number"`
	Title  string `json:"title"`
}

func (k Key) String() string {
	return fmt.Sprintf("%s (%s)", k.Number, k.Title)
}

// Record is a single catalogue entry.
type Record struct {
	Number      string `json:"number"`
	Title       string `json:"title"`
	Description string `json:"description"`
	// Corrected marks descriptions a human has approved or edited.
	Corrected bool `json:"corrected"`
}

// Key returns the record's identity key.
func (r Record) Key() Key {
	return Key{Number: r.Number, Title: r.Title}
}

// Fields carries caller-supplied values for an insert or update.
type Fields struct {
	Number      string `json:"number"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Key returns the identity the fields would produce.
func (f Fields) Key() Key {
	return Key{Number: f.Number, Title: f.Title}
}

// Normalized returns a copy with surrounding whitespace removed from number
// and title and CRLF line breaks folded to LF. A CSV reader folds them the
// same way, so normalised fields survive a persist and reload unchanged.
func (f Fields) Normalized() Fields {
	f.Number = strings.TrimSpace(foldCRLF(f.Number))
	f.Title = strings.TrimSpace(foldCRLF(f.Title))
	f.Description = foldCRLF(f.Description)
	return f
}

func foldCRLF(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}

// Matches reports whether query occurs in the record's number or title,
// ignoring case. An empty query matches everything.
func (r Record) Matches(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(r.Number), q) ||
		strings.Contains(strings.ToLower(r.Title), q)
}
