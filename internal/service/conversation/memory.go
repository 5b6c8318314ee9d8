package conversation

import (
	"sync"

	"privly_chat/internal/model"
)

// MemoryStore implements Store and CounterStore in process memory.
type MemoryStore struct {
	sync.Mutex
	entries map[string][]*model.ConversationEntry
	unread  map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string][]*model.ConversationEntry),
		unread:  make(map[string]int),
	}
}

func (s *MemoryStore) Append(key string, entry *model.ConversationEntry) error {
	s.Lock()
	defer s.Unlock()

	e := *entry
	s.entries[key] = append(s.entries[key], &e)
	return nil
}

func (s *MemoryStore) Load(key string) ([]*model.ConversationEntry, error) {
	s.Lock()
	defer s.Unlock()

	out := make([]*model.ConversationEntry, 0, len(s.entries[key]))
	for _, e := range s.entries[key] {
		c := *e
		out = append(out, &c)
	}
	return out, nil
}

func (s *MemoryStore) IncrementUnread(peer string) (int, error) {
	s.Lock()
	defer s.Unlock()

	s.unread[peer]++
	return s.unread[peer], nil
}

func (s *MemoryStore) ResetUnread(peer string) error {
	s.Lock()
	defer s.Unlock()

	delete(s.unread, peer)
	return nil
}

func (s *MemoryStore) Unread() (map[string]int, error) {
	s.Lock()
	defer s.Unlock()

	out := make(map[string]int, len(s.unread))
	for k, v := range s.unread {
		out[k] = v
	}
	return out, nil
}
