package store

import (
	"sync"

	"github.com/marcus-menezes/starstore-backend/internal/domain"
)

// ChangeFunc is notified whenever any session's cart mutates.
type ChangeFunc func(sessionID string, items []domain.CartItem)

// Manager owns one Store per device session, so exactly one cart snapshot is
// live per session at any time.
type Manager struct {
	mu       sync.Mutex
	stores   map[string]*Store
	onChange ChangeFunc
}

// NewManager creates a session store registry. onChange may be nil.
func NewManager(onChange ChangeFunc) *Manager {
	return &Manager{
		stores:   make(map[string]*Store),
		onChange: onChange,
	}
}

// GetOrCreate returns the session's store, creating an empty one on first
// use. The second return value reports whether the store was just created,
// which callers use to hydrate it from persisted state.
func (m *Manager) GetOrCreate(sessionID string) (*Store, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if st, ok := m.stores[sessionID]; ok {
		return st, false
	}

	st := New()
	if m.onChange != nil {
		sid := sessionID
		st.Subscribe(func(items []domain.CartItem) {
			m.onChange(sid, items)
		})
	}
	m.stores[sessionID] = st
	return st, true
}

// Get returns the session's store, or nil if the session has no cart yet.
func (m *Manager) Get(sessionID string) *Store {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stores[sessionID]
}

// Remove drops the session's store, e.g. after the session ends.
func (m *Manager) Remove(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.stores, sessionID)
}

// Len returns the number of live session carts.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.stores)
}
