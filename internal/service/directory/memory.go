package directory

import (
	"context"
	"sync"

	"privly_chat/internal/model"
)

// MemoryStore keeps records in process memory and loses them on restart.
type MemoryStore struct {
	sync.RWMutex
	records map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][]byte)}
}

func (s *MemoryStore) Put(_ context.Context, rec *model.KeyRecord) error {
	s.Lock()
	defer s.Unlock()

	s.records[rec.Identity] = append([]byte(nil), rec.PublicKey...)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, identity string) (*model.KeyRecord, error) {
	s.RLock()
	defer s.RUnlock()

	key, ok := s.records[identity]
	if !ok {
		return nil, nil
	}
	return &model.KeyRecord{
		Identity:  identity,
		PublicKey: append([]byte(nil), key...),
	}, nil
}

func (s *MemoryStore) Len() int {
	s.RLock()
	defer s.RUnlock()
	return len(s.records)
}
