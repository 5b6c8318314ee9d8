package presence

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"privly_chat/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	id     string
	closed atomic.Bool
}

func newFake(id string) *fakeTransport {
	return &fakeTransport{id: id}
}

func (f *fakeTransport) ID() string { return f.id }

func (f *fakeTransport) Send(*model.Frame) error {
	if f.closed.Load() {
		return errors.New("closed")
	}
	return nil
}

func (f *fakeTransport) Close() error {
	f.closed.Store(true)
	return nil
}

func TestBindLookup(t *testing.T) {
	r := NewRegistry()

	_, ok := r.Lookup("alice")
	assert.False(t, ok)

	a := newFake("a")
	assert.Nil(t, r.Bind("alice", a))

	got, ok := r.Lookup("alice")
	require.True(t, ok)
	assert.Same(t, a, got)
	assert.Equal(t, 1, r.Len())
}

func TestBindEvictsPrevious(t *testing.T) {
	r := NewRegistry()

	a := newFake("a")
	b := newFake("b")
	r.Bind("bob", a)

	prev := r.Bind("bob", b)
	assert.Same(t, a, prev)
	assert.True(t, a.closed.Load())
	assert.False(t, b.closed.Load())

	got, ok := r.Lookup("bob")
	require.True(t, ok)
	assert.Same(t, b, got)
	assert.Equal(t, 1, r.Len())
}

func TestRebindSameTransportIsNoop(t *testing.T) {
	r := NewRegistry()
	a := newFake("a")
	r.Bind("alice", a)
	assert.Nil(t, r.Bind("alice", a))
	assert.False(t, a.closed.Load())
}

func TestStaleUnbindKeepsNewBinding(t *testing.T) {
	r := NewRegistry()
	a := newFake("a")
	b := newFake("b")

	r.Bind("bob", a)
	r.Bind("bob", b)

	assert.False(t, r.UnbindIfCurrent("bob", a))
	got, ok := r.Lookup("bob")
	require.True(t, ok)
	assert.Same(t, b, got)

	assert.True(t, r.UnbindIfCurrent("bob", b))
	_, ok = r.Lookup("bob")
	assert.False(t, ok)

	assert.False(t, r.UnbindIfCurrent("bob", b))
}

func TestConcurrentBindLeavesOneBinding(t *testing.T) {
	r := NewRegistry()

	const n = 64
	transports := make([]*fakeTransport, n)
	for i := range transports {
		transports[i] = newFake(fmt.Sprintf("t%d", i))
	}

	var wg sync.WaitGroup
	for _, tr := range transports {
		wg.Add(1)
		go func(tr *fakeTransport) {
			defer wg.Done()
			r.Bind("bob", tr)
		}(tr)
	}
	wg.Wait()

	require.Equal(t, 1, r.Len())
	cur, ok := r.Lookup("bob")
	require.True(t, ok)

	open := 0
	for _, tr := range transports {
		if !tr.closed.Load() {
			open++
			assert.Equal(t, tr.ID(), cur.ID())
		}
	}
	assert.Equal(t, 1, open)
}

func TestConcurrentBindAndStaleUnbind(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tr := newFake(fmt.Sprintf("t%d", i))
			r.Bind("carol", tr)
			r.UnbindIfCurrent("carol", tr)
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, r.Len(), 1)
}

func TestIdentitiesAndCloseAll(t *testing.T) {
	r := NewRegistry()
	a, b := newFake("a"), newFake("b")
	r.Bind("bob", b)
	r.Bind("alice", a)

	assert.Equal(t, []string{"alice", "bob"}, r.Identities())

	require.NoError(t, r.CloseAll())
	assert.True(t, a.closed.Load())
	assert.True(t, b.closed.Load())
	assert.Equal(t, 0, r.Len())
}
