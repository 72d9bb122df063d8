// Package session applies the catalogue reconciliation rules for one user
// session: which description wins on display, generation on demand, and
// how save, revert, delete and add keep the store and cache consistent.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kalambet/formcat/internal/catalogue"
	"github.com/kalambet/formcat/internal/enrich"
	"github.com/kalambet/formcat/internal/provider"
	"github.com/kalambet/formcat/internal/storage"
)

var (
	ErrValidation       = errors.New("number and title are required")
	ErrPermissionDenied = errors.New("permission denied")
	ErrAlreadyExists    = errors.New("an entry with the same number and title already exists")
	ErrNoPendingDelete  = errors.New("delete was not requested for this record")
)

// Placeholder is shown to non-privileged callers when no text is available.
const Placeholder = "Click Get Description to generate an overview with AI."

// Source identifies where display text came from.
type Source string

const (
	SourceDraft       Source = "draft"
	SourceGenerated   Source = "generated"
	SourcePersisted   Source = "persisted"
	SourcePlaceholder Source = "placeholder"
	SourceEmpty       Source = "empty"
)

// Display is the text to render for one record.
type Display struct {
	Key       catalogue.Key   `json:"key"`
	Text      string          `json:"text"`
	Source    Source          `json:"source"`
	Editable  bool            `json:"editable"`
	Corrected bool            `json:"corrected"`
	Failure   *provider.Error `json:"failure,omitempty"`
	// PendingDelete is set between a delete request and its confirmation or cancel.
	PendingDelete bool `json:"pending_delete"`
}

// Auditor records committed mutations. Failures are logged, never returned.
type Auditor interface {
	SaveEvent(ctx context.Context, ev storage.Event) error
}

// Session is the per-user context every operation runs in. Each session
// owns its own store and cache, so one user's edits and slow provider calls
// never leak into another's view. Operations within a session are serialized.
type Session struct {
	id      atomic.Pointer[string]
	timeout time.Duration
	audit   Auditor

	mu            sync.Mutex
	store         *catalogue.Store
	cache         *enrich.Cache
	privileged    bool
	provider      string
	pendingDelete map[catalogue.Key]struct{}
	drafts        map[catalogue.Key]catalogue.Fields
}

// Info is a point-in-time summary of a session.
type Info struct {
	ID         string `json:"id"`
	Privileged bool   `json:"privileged"`
	Provider   string `json:"provider"`
	Records    int    `json:"records"`
	Cached     int    `json:"cached"`
}

// New builds a session over an already loaded store. timeout bounds every
// generation call; audit may be nil.
func New(id string, store *catalogue.Store, defaultProvider string, timeout time.Duration, audit Auditor) *Session {
	s := &Session{
		timeout:       timeout,
		audit:         audit,
		store:         store,
		cache:         enrich.New(),
		provider:      defaultProvider,
		pendingDelete: make(map[catalogue.Key]struct{}),
		drafts:        make(map[catalogue.Key]catalogue.Fields),
	}
	s.id.Store(&id)
	return s
}

func (s *Session) ID() string { return *s.id.Load() }

func (s *Session) setID(id string) { s.id.Store(&id) }

func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		ID:         s.ID(),
		Privileged: s.privileged,
		Provider:   s.provider,
		Records:    s.store.Len(),
		Cached:     s.cache.Len(),
	}
}

// SetPrivileged marks the session as authenticated or not. Logging out also
// drops staged drafts and pending deletes.
func (s *Session) SetPrivileged(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.privileged = v
	if !v {
		clear(s.drafts)
		clear(s.pendingDelete)
	}
}

func (s *Session) Privileged() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.privileged
}

// SelectProvider records the backend name used for this session's
// generation requests. Callers validate the name against their registry.
func (s *Session) SelectProvider(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.provider = name
}

func (s *Session) Provider() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.provider
}

// List returns the records whose number or title contains query.
func (s *Session) List(query string) []catalogue.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Filter(query)
}

// DisplayText resolves the text for key. Precedence: a staged draft
// (privileged only), then successfully generated text, then the persisted
// description, then a placeholder or an empty editable field. A cached
// failure is never used as text; it is reported in Display.Failure.
func (s *Session) DisplayText(key catalogue.Key, privileged bool) (Display, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.display(key, privileged)
}

func (s *Session) display(key catalogue.Key, privileged bool) (Display, error) {
	rec, err := s.store.Get(key)
	if err != nil {
		return Display{}, err
	}

	d := Display{Key: key, Editable: privileged, Corrected: rec.Corrected}
	if privileged {
		_, d.PendingDelete = s.pendingDelete[key]
	}

	entry, cached := s.cache.Get(key)
	if cached && !entry.OK() {
		d.Failure = entry.Failure
	}

	if draft, ok := s.drafts[key]; ok && privileged {
		d.Text, d.Source = draft.Description, SourceDraft
		return d, nil
	}

	switch {
	case cached && entry.OK():
		d.Text, d.Source = entry.Text, SourceGenerated
	case rec.Description != "":
		d.Text, d.Source = rec.Description, SourcePersisted
	case privileged:
		d.Source = SourceEmpty
	default:
		d.Text, d.Source = Placeholder, SourcePlaceholder
	}
	return d, nil
}

// RequestGeneration returns generated text for key, calling gen at most
// once per cache lifetime. A cached success is returned without a provider
// call. Failures are cached as markers and returned as *provider.Error; the
// caller retries by asking again.
func (s *Session) RequestGeneration(ctx context.Context, key catalogue.Key, gen provider.Generator) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.store.Has(key) {
		return "", fmt.Errorf("%w: %s", catalogue.ErrNotFound, key)
	}
	if entry, ok := s.cache.Get(key); ok && entry.OK() {
		return entry.Text, nil
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := gen.Generate(ctx, provider.DescribePrompt(key.Number, key.Title))
	if err != nil {
		pe := provider.AsError(err)
		s.cache.PutFailure(key, pe)
		slog.Warn("generation failed",
			"session", s.ID(),
			"number", key.Number,
			"title", key.Title,
			"provider", gen.Name(),
			"error", pe,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return "", pe
	}

	s.cache.Put(key, text)
	slog.Debug("generated description",
		"session", s.ID(),
		"number", key.Number,
		"provider", gen.Name(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return text, nil
}

func validate(f catalogue.Fields) (catalogue.Fields, error) {
	f = f.Normalized()
	if f.Number == "" || f.Title == "" {
		return f, ErrValidation
	}
	return f, nil
}

// Save replaces the record at oldKey with fields, marks it corrected and
// persists the catalogue. If persisting fails the in-memory change is rolled
// back, so success is only reported once the file is written.
func (s *Session) Save(ctx context.Context, oldKey catalogue.Key, fields catalogue.Fields) (catalogue.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.privileged {
		return catalogue.Record{}, ErrPermissionDenied
	}
	f, err := validate(fields)
	if err != nil {
		return catalogue.Record{}, err
	}

	snap := s.store.Snapshot()
	if err := s.store.UpsertByKey(oldKey, f); err != nil {
		return catalogue.Record{}, err
	}
	if err := s.commit(snap); err != nil {
		return catalogue.Record{}, err
	}

	s.cache.Invalidate(oldKey)
	s.cache.Invalidate(f.Key())
	delete(s.drafts, oldKey)
	delete(s.pendingDelete, oldKey)
	s.record(ctx, storage.ActionSave, oldKey, f.Key())

	rec, err := s.store.Get(f.Key())
	if err != nil {
		return catalogue.Record{}, err
	}
	return rec, nil
}

// StageEdit keeps unsaved fields for key. The privileged view shows the
// draft until it is saved or reverted.
func (s *Session) StageEdit(key catalogue.Key, fields catalogue.Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.privileged {
		return ErrPermissionDenied
	}
	if !s.store.Has(key) {
		return fmt.Errorf("%w: %s", catalogue.ErrNotFound, key)
	}
	s.drafts[key] = fields.Normalized()
	return nil
}

// Revert drops the draft and cache entry for key, reloads the catalogue
// from its file and returns the fresh display for key.
func (s *Session) Revert(key catalogue.Key) (Display, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.drafts, key)
	delete(s.pendingDelete, key)
	s.cache.Invalidate(key)

	if err := s.store.Reload(); err != nil {
		return Display{}, err
	}
	return s.display(key, s.privileged)
}

// RequestDelete flags key for deletion without mutating anything.
func (s *Session) RequestDelete(key catalogue.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.privileged {
		return ErrPermissionDenied
	}
	if !s.store.Has(key) {
		return fmt.Errorf("%w: %s", catalogue.ErrNotFound, key)
	}
	s.pendingDelete[key] = struct{}{}
	return nil
}

// CancelDelete clears a pending delete flag. It reports whether one was set.
func (s *Session) CancelDelete(key catalogue.Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.pendingDelete[key]
	delete(s.pendingDelete, key)
	return ok
}

// ConfirmDelete removes a record previously flagged by RequestDelete and
// persists the catalogue, rolling back on persist failure.
func (s *Session) ConfirmDelete(ctx context.Context, key catalogue.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.privileged {
		return ErrPermissionDenied
	}
	if _, ok := s.pendingDelete[key]; !ok {
		return fmt.Errorf("%w: %s", ErrNoPendingDelete, key)
	}

	snap := s.store.Snapshot()
	if err := s.store.DeleteByKey(key); err != nil {
		delete(s.pendingDelete, key)
		return err
	}
	if err := s.commit(snap); err != nil {
		return err
	}

	s.cache.Invalidate(key)
	delete(s.drafts, key)
	delete(s.pendingDelete, key)
	s.record(ctx, storage.ActionDelete, key, catalogue.Key{})
	return nil
}

// Add inserts a new record and persists the catalogue. An existing key is
// reported as ErrAlreadyExists before any mutation.
func (s *Session) Add(ctx context.Context, fields catalogue.Fields) (catalogue.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.privileged {
		return catalogue.Record{}, ErrPermissionDenied
	}
	f, err := validate(fields)
	if err != nil {
		return catalogue.Record{}, err
	}
	if s.store.Has(f.Key()) {
		return catalogue.Record{}, fmt.Errorf("%w: %s", ErrAlreadyExists, f.Key())
	}

	snap := s.store.Snapshot()
	if err := s.store.Insert(f); err != nil {
		return catalogue.Record{}, err
	}
	if err := s.commit(snap); err != nil {
		return catalogue.Record{}, err
	}

	s.cache.Invalidate(f.Key())
	s.record(ctx, storage.ActionAdd, f.Key(), catalogue.Key{})
	return s.store.Get(f.Key())
}

// Export returns the whole catalogue as CSV.
func (s *Session) Export() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Export()
}

// commit persists the store, restoring snap if the write fails.
func (s *Session) commit(snap catalogue.Snapshot) error {
	if err := s.store.Persist(); err != nil {
		s.store.Restore(snap)
		slog.Error("persisting catalogue", "session", s.ID(), "error", err)
		return err
	}
	return nil
}

func (s *Session) record(ctx context.Context, action string, key, newKey catalogue.Key) {
	if s.audit == nil {
		return
	}
	ev := storage.Event{
		SessionID: s.ID(),
		Action:    action,
		Number:    key.Number,
		Title:     key.Title,
		NewNumber: newKey.Number,
		NewTitle:  newKey.Title,
	}
	if err := s.audit.SaveEvent(ctx, ev); err != nil {
		slog.Warn("audit write failed", "session", s.ID(), "action", action, "error", err)
	}
}
