// Package presence tracks the single live transport of each connected
// identity.
package presence

import (
	"sort"
	"sync"

	"privly_chat/internal/model"
	"privly_chat/internal/utils/log"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Transport is one live connection. ID must be unique per connection; it is
// what UnbindIfCurrent compares. Close must not block on in-flight sends.
type Transport interface {
	ID() string
	Send(frame *model.Frame) error
	Close() error
}

// Registry holds at most one Transport per identity. Every transition runs
// under one mutex so Bind, UnbindIfCurrent and Lookup never observe a
// half-applied change.
type Registry struct {
	mu       sync.Mutex
	bindings map[string]Transport
}

func NewRegistry() *Registry {
	return &Registry{
		bindings: make(map[string]Transport),
	}
}

// Bind installs t as the transport of identity. A previous transport for the
// same identity is closed before t becomes visible and is returned.
func (r *Registry) Bind(identity string, t Transport) Transport {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, ok := r.bindings[identity]
	if ok && prev.ID() != t.ID() {
		if err := prev.Close(); err != nil {
			log.Debug("close evicted transport", zap.String("identity", identity), zap.Error(err))
		}
		log.Info("transport evicted by reconnect",
			zap.String("identity", identity),
			zap.String("old_conn", prev.ID()),
			zap.String("new_conn", t.ID()))
	} else {
		prev = nil
	}

	r.bindings[identity] = t
	return prev
}

// Lookup returns the transport bound to identity, if any.
func (r *Registry) Lookup(identity string) (Transport, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.bindings[identity]
	return t, ok
}

// UnbindIfCurrent removes the binding of identity only when t is still the
// bound transport. A stale close from an evicted connection is a no-op.
func (r *Registry) UnbindIfCurrent(identity string, t Transport) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.bindings[identity]
	if !ok || cur.ID() != t.ID() {
		return false
	}
	delete(r.bindings, identity)
	return true
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bindings)
}

// Identities returns the bound identities in sorted order.
func (r *Registry) Identities() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.bindings))
	for id := range r.bindings {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CloseAll closes and removes every binding.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var err error
	for id, t := range r.bindings {
		err = multierr.Append(err, t.Close())
		delete(r.bindings, id)
	}
	return err
}
