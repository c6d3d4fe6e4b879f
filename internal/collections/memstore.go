package collections

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is a mutex-guarded in-memory membership store.
type MemoryStore struct {
	mu      sync.RWMutex
	names   map[string]string
	members map[string]map[int64]struct{}
}

// NewMemoryStore creates an empty in-memory membership store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		names:   make(map[string]string),
		members: make(map[string]map[int64]struct{}),
	}
}

// CreateCollection registers a collection. Test and seed helper.
func (s *MemoryStore) CreateCollection(collectionID, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.names[collectionID] = name
	if _, ok := s.members[collectionID]; !ok {
		s.members[collectionID] = make(map[int64]struct{})
	}
}

func (s *MemoryStore) Exists(ctx context.Context, collectionID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.names[collectionID]
	return ok, nil
}

func (s *MemoryStore) Name(ctx context.Context, collectionID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	name, ok := s.names[collectionID]
	if !ok {
		return "", ErrCollectionNotFound
	}
	return name, nil
}

func (s *MemoryStore) Contains(ctx context.Context, collectionID string, companyID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	members, ok := s.members[collectionID]
	if !ok {
		return false, ErrCollectionNotFound
	}
	_, present := members[companyID]
	return present, nil
}

func (s *MemoryStore) Add(ctx context.Context, collectionID string, companyID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	members, ok := s.members[collectionID]
	if !ok {
		return ErrCollectionNotFound
	}
	members[companyID] = struct{}{}
	return nil
}

func (s *MemoryStore) ListMembers(ctx context.Context, collectionID string) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	members, ok := s.members[collectionID]
	if !ok {
		return nil, ErrCollectionNotFound
	}

	ids := make([]int64, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *MemoryStore) Count(ctx context.Context, collectionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	members, ok := s.members[collectionID]
	if !ok {
		return 0, ErrCollectionNotFound
	}
	return len(members), nil
}
