package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/formcat/internal/catalogue"
)

// Options configures sessions created by a Manager.
type Options struct {
	DefaultProvider string
	GenerateTimeout time.Duration
	// IdleTimeout expires sessions not seen for this long. Zero disables expiry.
	IdleTimeout time.Duration
	// MaxSessions caps live sessions. Creating one past the cap evicts the
	// least recently seen. Zero means no cap.
	MaxSessions int
	Auditor     Auditor
}

type entry struct {
	sess     *Session
	lastSeen time.Time
}

// Manager owns the live sessions. Each new session loads its own copy of
// the catalogue from table.
type Manager struct {
	table catalogue.Table
	opts  Options
	now   func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry
}

func NewManager(table catalogue.Table, opts Options) *Manager {
	return &Manager{
		table:    table,
		opts:     opts,
		now:      time.Now,
		sessions: make(map[string]*entry),
	}
}

// Create loads the catalogue and registers a new session with a random ID.
// It fails with catalogue.ErrStorageUnavailable when the file is missing.
func (m *Manager) Create() (*Session, error) {
	store, err := catalogue.Load(m.table)
	if err != nil {
		return nil, err
	}
	sess := New(uuid.NewString(), store, m.opts.DefaultProvider, m.opts.GenerateTimeout, m.opts.Auditor)

	m.mu.Lock()
	m.evictLocked()
	m.sessions[sess.ID()] = &entry{sess: sess, lastSeen: m.now()}
	m.mu.Unlock()

	slog.Debug("session created", "session", sess.ID(), "records", store.Len())
	return sess, nil
}

// Get returns the live session with id and marks it as seen.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	if m.expired(e) {
		delete(m.sessions, id)
		return nil, false
	}
	e.lastSeen = m.now()
	return e.sess, true
}

// Rotate moves sess to a fresh random ID and forgets the old one. The
// session keeps its state; only the identifier a client presents changes.
func (m *Manager) Rotate(sess *Session) string {
	newID := uuid.NewString()

	m.mu.Lock()
	oldID := sess.ID()
	delete(m.sessions, oldID)
	sess.setID(newID)
	m.sessions[newID] = &entry{sess: sess, lastSeen: m.now()}
	m.mu.Unlock()

	slog.Debug("session rotated", "from", oldID, "to", newID)
	return newID
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) expired(e *entry) bool {
	return m.opts.IdleTimeout > 0 && m.now().Sub(e.lastSeen) > m.opts.IdleTimeout
}

// evictLocked makes room for one more session under MaxSessions, dropping
// expired sessions first and then the least recently seen. m.mu must be held.
func (m *Manager) evictLocked() {
	if m.opts.MaxSessions <= 0 || len(m.sessions) < m.opts.MaxSessions {
		return
	}
	for id, e := range m.sessions {
		if m.expired(e) {
			delete(m.sessions, id)
		}
	}
	for len(m.sessions) >= m.opts.MaxSessions {
		var oldestID string
		var oldest time.Time
		for id, e := range m.sessions {
			if oldestID == "" || e.lastSeen.Before(oldest) {
				oldestID, oldest = id, e.lastSeen
			}
		}
		delete(m.sessions, oldestID)
		slog.Info("evicted session at capacity", "session", oldestID, "max", m.opts.MaxSessions)
	}
}

// Sweep drops idle sessions and returns how many were removed.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for id, e := range m.sessions {
		if m.expired(e) {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

// RunSweeper calls Sweep every interval until ctx is done.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				slog.Info("expired idle sessions", "count", n, "live", m.Len())
			}
		}
	}
}
