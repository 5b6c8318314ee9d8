package directory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"privly_chat/internal/cryptographic/box"
	"privly_chat/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKey(t *testing.T) []byte {
	t.Helper()
	kp, err := box.GenerateKeyPair()
	require.NoError(t, err)
	return kp.PublicKey[:]
}

func TestRegisterLookup(t *testing.T) {
	ctx := context.Background()
	d := New(NewMemoryStore())

	key1 := newKey(t)
	require.NoError(t, d.Register(ctx, "alice", key1))

	got, err := d.Lookup(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, key1, got)

	t.Run("overwrite", func(t *testing.T) {
		key2 := newKey(t)
		require.NoError(t, d.Register(ctx, "alice", key2))

		got, err := d.Lookup(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, key2, got)
	})

	t.Run("idempotent", func(t *testing.T) {
		key3 := newKey(t)
		require.NoError(t, d.Register(ctx, "alice", key3))
		require.NoError(t, d.Register(ctx, "alice", key3))

		got, err := d.Lookup(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, key3, got)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := d.Lookup(ctx, "carol")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestRegisterRejectsMalformedKeys(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	d := New(store)

	for name, key := range map[string][]byte{
		"nil":   nil,
		"short": make([]byte, 31)[:31],
		"long":  append(newKey(t), 0x01),
		"zero":  make([]byte, box.KeySize),
		"order": append([]byte{1}, make([]byte, box.KeySize-1)...),
	} {
		t.Run(name, func(t *testing.T) {
			err := d.Register(ctx, "mallory", key)
			assert.ErrorIs(t, err, ErrInvalidKey)
		})
	}

	assert.Equal(t, 0, store.Len())
	_, err := d.Lookup(ctx, "mallory")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegisterRejectsBadIdentity(t *testing.T) {
	ctx := context.Background()
	d := New(NewMemoryStore())

	for _, id := range []string{"", "   ", "bad\nid", string(make([]byte, model.MaxIdentityLength+1))} {
		err := d.Register(ctx, id, newKey(t))
		assert.ErrorIs(t, err, ErrInvalidIdentity)
	}
}

func TestLookupReturnsCopy(t *testing.T) {
	ctx := context.Background()
	d := New(NewMemoryStore())

	key := newKey(t)
	require.NoError(t, d.Register(ctx, "bob", key))

	got, err := d.Lookup(ctx, "bob")
	require.NoError(t, err)
	got[0] ^= 0xff

	again, err := d.Lookup(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, key, again)
}

type failingStore struct{}

func (failingStore) Put(context.Context, *model.KeyRecord) error {
	return errors.New("store down")
}

func (failingStore) Get(context.Context, string) (*model.KeyRecord, error) {
	return nil, errors.New("store down")
}

func TestStoreFailureIsNotNotFound(t *testing.T) {
	ctx := context.Background()
	d := New(failingStore{})

	err := d.Register(ctx, "alice", newKey(t))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidKey)

	_, err = d.Lookup(ctx, "alice")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestConcurrentRegister(t *testing.T) {
	ctx := context.Background()
	d := New(NewMemoryStore())

	keys := make([][]byte, 16)
	for i := range keys {
		keys[i] = newKey(t)
	}

	var wg sync.WaitGroup
	for i, k := range keys {
		wg.Add(1)
		go func(i int, k []byte) {
			defer wg.Done()
			assert.NoError(t, d.Register(ctx, "shared", k))
			assert.NoError(t, d.Register(ctx, fmt.Sprintf("user-%d", i), k))
		}(i, k)
	}
	wg.Wait()

	got, err := d.Lookup(ctx, "shared")
	require.NoError(t, err)
	assert.Contains(t, keys, got)

	for i, k := range keys {
		got, err := d.Lookup(ctx, fmt.Sprintf("user-%d", i))
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
}
