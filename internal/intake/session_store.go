package intake

import (
	"context"
	"sync"
)

// SessionStore holds per-contact dialogue state keyed by contact identifier.
// Get returns a zero (idle) session for unknown contacts.
type SessionStore interface {
	Get(ctx context.Context, contactID string) (Session, error)
	Put(ctx context.Context, contactID string, s Session) error
	Delete(ctx context.Context, contactID string) error
}

// MemorySessionStore is the default in-process SessionStore. State does not
// survive a restart; pair with the Redis store when that matters.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// NewMemorySessionStore creates an empty in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]Session)}
}

func (m *MemorySessionStore) Get(_ context.Context, contactID string) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[contactID], nil
}

func (m *MemorySessionStore) Put(_ context.Context, contactID string, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[contactID] = s
	return nil
}

func (m *MemorySessionStore) Delete(_ context.Context, contactID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, contactID)
	return nil
}

// contactLocks serializes turns per contact key. Entries are kept for the
// process lifetime; the map is bounded by the number of distinct contacts.
type contactLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newContactLocks() *contactLocks {
	return &contactLocks{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the per-contact mutex and returns its unlock function.
func (c *contactLocks) Lock(contactID string) func() {
	c.mu.Lock()
	l, ok := c.locks[contactID]
	if !ok {
		l = &sync.Mutex{}
		c.locks[contactID] = l
	}
	c.mu.Unlock()

	l.Lock()
	return l.Unlock
}
