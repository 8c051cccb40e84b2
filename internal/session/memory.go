package session

import (
	"context"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
)

type entry struct {
	session   Session
	expiresAt time.Time
}

// MemoryStore is an in-process Store for tests and single-node setups
// without Redis. Expired entries are dropped lazily on Load.
type MemoryStore struct {
	entries cmap.ConcurrentMap[string, entry]
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: cmap.New[entry](),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (m *MemoryStore) Create(_ context.Context, id string, s Session) error {
	m.entries.Set(id, entry{session: s, expiresAt: m.now().Add(m.ttl)})
	return nil
}

func (m *MemoryStore) Load(_ context.Context, id string) (Session, error) {
	e, ok := m.entries.Get(id)
	if !ok {
		return Session{}, ErrNotFound
	}
	if m.now().After(e.expiresAt) {
		m.entries.Remove(id)
		return Session{}, ErrNotFound
	}
	if e.session.ToAddr == "" {
		return Session{}, ErrNotFound
	}
	return e.session, nil
}

var _ Store = (*MemoryStore)(nil)
