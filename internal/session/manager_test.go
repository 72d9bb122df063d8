package session

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/kalambet/formcat/internal/catalogue"
)

func TestManager_CreateAndGet(t *testing.T) {
	table := &memTable{rows: []catalogue.Record{{Number: "1", Title: "A"}}}
	m := NewManager(table, Options{DefaultProvider: "openrouter"})

	s, err := m.Create()
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if s.ID() == "" {
		t.Fatal("empty session ID")
	}
	if s.Provider() != "openrouter" {
		t.Errorf("provider = %q, want openrouter", s.Provider())
	}

	got, ok := m.Get(s.ID())
	if !ok || got != s {
		t.Errorf("Get(%q) = %v, %v", s.ID(), got, ok)
	}
	if _, ok := m.Get("nope"); ok {
		t.Error("Get(unknown) returned a session")
	}
}

func TestManager_SessionsAreIsolated(t *testing.T) {
	table := &memTable{rows: []catalogue.Record{{Number: "1", Title: "A"}}}
	m := NewManager(table, Options{})

	a, _ := m.Create()
	b, _ := m.Create()
	a.SetPrivileged(true)

	if b.Privileged() {
		t.Error("privilege leaked across sessions")
	}
	a.SelectProvider("openai")
	if b.Provider() == "openai" {
		t.Error("provider choice leaked across sessions")
	}
}

func TestManager_MissingCatalogue(t *testing.T) {
	m := NewManager(catalogue.NewFileTable(filepath.Join(t.TempDir(), "missing.csv")), Options{})

	_, err := m.Create()
	if !errors.Is(err, catalogue.ErrStorageUnavailable) {
		t.Errorf("err = %v, want ErrStorageUnavailable", err)
	}
	if m.Len() != 0 {
		t.Error("session registered despite load failure")
	}
}

func TestManager_IdleExpiry(t *testing.T) {
	table := &memTable{}
	m := NewManager(table, Options{IdleTimeout: time.Hour})
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	stale, _ := m.Create()
	now = now.Add(30 * time.Minute)
	fresh, _ := m.Create()

	now = now.Add(45 * time.Minute)
	if n := m.Sweep(); n != 1 {
		t.Errorf("Sweep() = %d, want 1", n)
	}
	if _, ok := m.Get(stale.ID()); ok {
		t.Error("stale session survived sweep")
	}
	if _, ok := m.Get(fresh.ID()); !ok {
		t.Error("fresh session was swept")
	}

	// Get refreshes lastSeen; expiry on lookup without a sweep.
	now = now.Add(2 * time.Hour)
	if _, ok := m.Get(fresh.ID()); ok {
		t.Error("expired session returned by Get")
	}
}

func TestManager_MaxSessionsEvictsLeastRecentlySeen(t *testing.T) {
	m := NewManager(&memTable{}, Options{MaxSessions: 2})
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	first, _ := m.Create()
	now = now.Add(time.Minute)
	second, _ := m.Create()
	now = now.Add(time.Minute)
	m.Get(first.ID())

	now = now.Add(time.Minute)
	third, _ := m.Create()

	if m.Len() != 2 {
		t.Errorf("Len() = %d, want 2", m.Len())
	}
	if _, ok := m.Get(second.ID()); ok {
		t.Error("least recently seen session survived eviction")
	}
	for _, s := range []*Session{first, third} {
		if _, ok := m.Get(s.ID()); !ok {
			t.Errorf("session %s evicted", s.ID())
		}
	}
}

func TestManager_Rotate(t *testing.T) {
	m := NewManager(&memTable{rows: []catalogue.Record{{Number: "1", Title: "A"}}}, Options{})
	s, _ := m.Create()
	s.SetPrivileged(true)
	oldID := s.ID()

	newID := m.Rotate(s)
	if newID == oldID || s.ID() != newID {
		t.Fatalf("Rotate() = %q, session ID %q, old %q", newID, s.ID(), oldID)
	}
	if _, ok := m.Get(oldID); ok {
		t.Error("old session ID still resolves")
	}
	got, ok := m.Get(newID)
	if !ok || got != s || !got.Privileged() {
		t.Errorf("Get(new) = %v, %v", got, ok)
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}
}
