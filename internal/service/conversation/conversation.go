// Package conversation keeps the client-local, append-only history of each
// two-party conversation together with per-peer unread counters.
package conversation

import (
	"sort"
	"strings"

	"privly_chat/internal/model"
	"privly_chat/internal/utils/log"

	"go.uber.org/zap"
)

// keySeparator cannot appear in a valid identity.
const keySeparator = "\x00"

// Key returns the same value for (a, b) and (b, a).
func Key(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return strings.Join(pair, keySeparator)
}

// Store persists entries in append order. Load returns an empty slice for an
// unknown key.
type Store interface {
	Append(key string, entry *model.ConversationEntry) error
	Load(key string) ([]*model.ConversationEntry, error)
}

// CounterStore persists unread counters keyed by peer identity.
type CounterStore interface {
	IncrementUnread(peer string) (int, error)
	ResetUnread(peer string) error
	Unread() (map[string]int, error)
}

type Log struct {
	store Store
}

func NewLog(store Store) *Log {
	return &Log{store: store}
}

// Append records entry under key. A storage failure is logged and returned;
// callers treat it as non-fatal since the log is only a local cache.
func (l *Log) Append(key string, entry *model.ConversationEntry) error {
	if err := l.store.Append(key, entry); err != nil {
		log.Warn("append conversation entry failed",
			zap.String("sender", entry.Sender),
			zap.String("direction", string(entry.Direction)),
			zap.Error(err))
		return err
	}
	return nil
}

func (l *Log) Load(key string) ([]*model.ConversationEntry, error) {
	entries, err := l.store.Load(key)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []*model.ConversationEntry{}
	}
	return entries, nil
}
