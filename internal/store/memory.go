package store

import (
	"bytes"
	"context"
	"slices"
	"sync"

	"bk-go/internal/bk"
)

// MemoryStore keeps records in process memory. Used by tests and by
// `bk serve` runs that do not need durability.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]map[string][]byte
}

var (
	_ bk.RecordStore = (*MemoryStore)(nil)
	_ bk.KeyScanner  = (*MemoryStore)(nil)
)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]map[string][]byte)}
}

func (s *MemoryStore) Get(ctx context.Context, kind, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.records[kind][key]
	if !ok {
		return nil, false, nil
	}
	return bytes.Clone(v), true, nil
}

func (s *MemoryStore) Put(ctx context.Context, kind, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byKey, ok := s.records[kind]
	if !ok {
		byKey = make(map[string][]byte)
		s.records[kind] = byKey
	}
	byKey[key] = bytes.Clone(value)
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, kind, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[kind][key]; !ok {
		return false, nil
	}
	delete(s.records[kind], key)
	return true, nil
}

func (s *MemoryStore) Exists(ctx context.Context, kind, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[kind][key]
	return ok, nil
}

func (s *MemoryStore) Keys(ctx context.Context, kind string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.records[kind]))
	for k := range s.records[kind] {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys, nil
}

func (s *MemoryStore) Close() error { return nil }
