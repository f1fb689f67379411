package store

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is a mutex-guarded in-memory RecordStore. It backs the binary
// in development and the tests; a database-backed implementation satisfies
// the same interface.
type MemoryStore struct {
	mu     sync.RWMutex
	owners map[string]map[Kind]*collection
}

type collection struct {
	records map[string]Record
	order   []string
}

var _ RecordStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{owners: make(map[string]map[Kind]*collection)}
}

func (s *MemoryStore) coll(owner string, kind Kind) *collection {
	kinds, ok := s.owners[owner]
	if !ok {
		kinds = make(map[Kind]*collection)
		s.owners[owner] = kinds
	}
	c, ok := kinds[kind]
	if !ok {
		c = &collection{records: make(map[string]Record)}
		kinds[kind] = c
	}
	return c
}

func (s *MemoryStore) Create(ctx context.Context, owner string, kind Kind, rec Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	c := s.coll(owner, kind)
	if _, exists := c.records[rec.ID]; !exists {
		c.order = append(c.order, rec.ID)
	}
	c.records[rec.ID] = rec
	return rec, nil
}

func (s *MemoryStore) Update(ctx context.Context, owner string, kind Kind, id string, rec Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.coll(owner, kind)
	if _, ok := c.records[id]; !ok {
		return Record{}, ErrNotFound
	}
	rec.ID = id
	c.records[id] = rec
	return rec, nil
}

func (s *MemoryStore) Delete(ctx context.Context, owner string, kind Kind, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.coll(owner, kind)
	if _, ok := c.records[id]; !ok {
		return ErrNotFound
	}
	delete(c.records, id)
	for i, oid := range c.order {
		if oid == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return nil
}

// lookup is the read-side twin of coll: it never allocates, so it is safe
// under the read lock.
func (s *MemoryStore) lookup(owner string, kind Kind) (*collection, bool) {
	kinds, ok := s.owners[owner]
	if !ok {
		return nil, false
	}
	c, ok := kinds[kind]
	return c, ok
}

func (s *MemoryStore) Get(ctx context.Context, owner string, kind Kind, id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.lookup(owner, kind)
	if !ok {
		return Record{}, ErrNotFound
	}
	rec, ok := c.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// List returns the owner's records in insertion order.
func (s *MemoryStore) List(ctx context.Context, owner string, kind Kind) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.lookup(owner, kind)
	if !ok {
		return []Record{}, nil
	}
	out := make([]Record, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.records[id])
	}
	return out, nil
}
