package store

import (
	"context"
	"encoding/json"
	"sync"
)

// MemoryStore is an in-memory implementation of DocumentStore. It backs
// local runs without a database and the websocket integration tests.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]*Document
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]*Document)}
}

func (s *MemoryStore) FindOrCreate(_ context.Context, id string) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[id]
	if !ok {
		doc = &Document{ID: id, Content: EmptyContent}
		s.docs[id] = doc
	}
	return copyDocument(doc), nil
}

func (s *MemoryStore) UpdateContent(_ context.Context, id string, content json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[id]
	if !ok {
		return ErrNotFound
	}
	doc.Content = append(json.RawMessage(nil), content...)
	return nil
}

func (s *MemoryStore) AppendVersion(_ context.Context, id string, v Version) ([]Version, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[id]
	if !ok {
		return nil, false, ErrNotFound
	}
	versions, appended := appendBounded(doc.Versions, v)
	doc.Versions = versions
	return copyVersions(versions), appended, nil
}

func copyDocument(doc *Document) *Document {
	return &Document{
		ID:       doc.ID,
		Content:  append(json.RawMessage(nil), doc.Content...),
		Versions: copyVersions(doc.Versions),
	}
}

func copyVersions(versions []Version) []Version {
	out := make([]Version, len(versions))
	copy(out, versions)
	return out
}
