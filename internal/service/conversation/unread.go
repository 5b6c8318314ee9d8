package conversation

import (
	"sync"

	"privly_chat/internal/utils/log"

	"go.uber.org/zap"
)

// Unread counts messages received from peers whose conversation is not the
// active one. Counts are advisory and never leave the client.
type Unread struct {
	mu     sync.Mutex
	store  CounterStore
	active string
}

func NewUnread(store CounterStore) *Unread {
	return &Unread{store: store}
}

// Received bumps the counter of peer unless peer is the active conversation.
// It reports whether the counter changed.
func (u *Unread) Received(peer string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()

	if peer == u.active {
		return false
	}
	if _, err := u.store.IncrementUnread(peer); err != nil {
		log.Warn("increment unread counter failed", zap.String("peer", peer), zap.Error(err))
		return false
	}
	return true
}

// Activate makes peer the active conversation and zeroes its counter.
func (u *Unread) Activate(peer string) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.active = peer
	if err := u.store.ResetUnread(peer); err != nil {
		log.Warn("reset unread counter failed", zap.String("peer", peer), zap.Error(err))
	}
}

func (u *Unread) Active() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.active
}

func (u *Unread) Counts() map[string]int {
	counts, err := u.store.Unread()
	if err != nil {
		log.Warn("load unread counters failed", zap.Error(err))
		return map[string]int{}
	}
	return counts
}
