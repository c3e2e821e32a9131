// Package memory implements store.Store in process memory.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alfredjeanlab/refguard/internal/model"
	"github.com/alfredjeanlab/refguard/internal/store"
)

// MemoryStore keeps documents in maps. Documents are copied on the way in and
// out so callers never share state with the store.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]*model.Document
	now         func() time.Time
}

// Compile-time check that MemoryStore implements store.Store.
var _ store.Store = (*MemoryStore)(nil)

// New returns an empty store.
func New() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]*model.Document),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Insert(_ context.Context, collection string, doc *model.Document) error {
	if doc.ID == "" {
		return fmt.Errorf("insert into %s: document has no id", collection)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.collections[collection]
	if c == nil {
		c = make(map[string]*model.Document)
		s.collections[collection] = c
	}
	if _, exists := c[doc.ID]; exists {
		return fmt.Errorf("insert into %s: %w: %s", collection, store.ErrDuplicateID, doc.ID)
	}

	now := s.now()
	stored := persisted(doc)
	stored.CreatedAt = now
	stored.UpdatedAt = now
	c[doc.ID] = stored
	doc.CreatedAt, doc.UpdatedAt = now, now
	return nil
}

func (s *MemoryStore) Replace(_ context.Context, collection string, doc *model.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.collections[collection][doc.ID]
	if !ok {
		return store.ErrNotFound
	}
	stored := persisted(doc)
	stored.CreatedAt = existing.CreatedAt
	stored.UpdatedAt = s.now()
	s.collections[collection][doc.ID] = stored
	doc.UpdatedAt = stored.UpdatedAt
	return nil
}

func (s *MemoryStore) Update(_ context.Context, collection, id string, upd model.Update) (*model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.collections[collection][id]
	if !ok {
		return nil, store.ErrNotFound
	}
	doc := existing.Clone()
	if err := model.ApplyUpdate(doc, upd); err != nil {
		return nil, err
	}
	doc.UpdatedAt = s.now()
	doc.MarkPersisted()
	s.collections[collection][id] = doc
	return doc.Clone(), nil
}

func (s *MemoryStore) FindByID(_ context.Context, collection, id string) (*model.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return nil, nil
	}
	return doc.Clone(), nil
}

func (s *MemoryStore) Delete(_ context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[collection][id]; !ok {
		return store.ErrNotFound
	}
	delete(s.collections[collection], id)
	return nil
}

func (s *MemoryStore) List(_ context.Context, collection string) ([]*model.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c := s.collections[collection]
	out := make([]*model.Document, 0, len(c))
	for _, doc := range c {
		out = append(out, doc.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) Collections(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for name, c := range s.collections {
		if len(c) > 0 {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

func persisted(doc *model.Document) *model.Document {
	c := doc.Clone()
	c.MarkPersisted()
	return c
}
