package recordstore

import (
	"context"
	"sync"
)

// InMemoryStore keeps documents in process memory.
type InMemoryStore struct {
	mu   sync.RWMutex
	docs map[Kind][]byte
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{docs: make(map[Kind][]byte)}
}

func (s *InMemoryStore) Load(_ context.Context, kind Kind) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[kind]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), doc...), nil
}

func (s *InMemoryStore) Save(_ context.Context, kind Kind, doc []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[kind] = append([]byte(nil), doc...)
	return nil
}

func (s *InMemoryStore) Wipe(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = make(map[Kind][]byte)
	return nil
}

func (s *InMemoryStore) Backend() string { return BackendMemory }

func (s *InMemoryStore) Close() error { return nil }
