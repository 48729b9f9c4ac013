package store

import (
	"context"
	"sync"

	"github.com/carhound/carhound/internal/types"
)

// MemoryStore keeps records in a map. It backs dry runs and tests.
type MemoryStore struct {
	mu   sync.Mutex
	docs map[string]map[string]any
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]map[string]any)}
}

func (s *MemoryStore) Name() string { return "memory" }

func (s *MemoryStore) Exists(ctx context.Context, vehicleID, source string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.docs[types.UniqueID(vehicleID, source)]
	return ok, nil
}

func (s *MemoryStore) Upsert(ctx context.Context, rec *types.Record) (bool, error) {
	if err := rec.Validate(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := rec.UniqueID()
	if _, ok := s.docs[id]; ok {
		return false, nil
	}
	s.docs[id] = document(rec)
	return true, nil
}

func (s *MemoryStore) Close() error { return nil }

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs)
}

// Get returns the persisted document for a unique id.
func (s *MemoryStore) Get(uniqueID string) (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[uniqueID]
	return doc, ok
}
