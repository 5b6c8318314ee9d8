package local

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"privly_chat/internal/cryptographic/box"
	"privly_chat/internal/model"
	"privly_chat/internal/service/conversation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T, path, owner string) *Store {
	t.Helper()
	s, err := Open(path, owner)
	require.NoError(t, err)
	return s
}

func TestKeyPairPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	s := openStore(t, path, "alice")
	kp, err := s.KeyPair()
	require.NoError(t, err)
	assert.Nil(t, kp)

	want, err := box.GenerateKeyPair()
	require.NoError(t, err)
	require.NoError(t, s.PutKeyPair(want))
	require.NoError(t, s.Close())

	s = openStore(t, path, "alice")
	defer s.Close()
	got, err := s.KeyPair()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.PublicKey, got.PublicKey)
	assert.Equal(t, want.PrivateKey, got.PrivateKey)
	assert.NoError(t, box.CheckKeyPair(got))
}

func TestOwnersAreIsolated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	s := openStore(t, path, "alice")
	kp, err := box.GenerateKeyPair()
	require.NoError(t, err)
	require.NoError(t, s.PutKeyPair(kp))
	_, err = s.IncrementUnread("bob")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s = openStore(t, path, "bob")
	defer s.Close()
	got, err := s.KeyPair()
	require.NoError(t, err)
	assert.Nil(t, got)

	counts, err := s.Unread()
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestConversationRoundTripAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	key := conversation.Key("alice", "bob")

	s := openStore(t, path, "alice")
	log := conversation.NewLog(s)

	loc := time.FixedZone("KST", 9*60*60)
	base := time.Date(2026, 10, 18, 21, 30, 0, 987654321, loc)

	const n = 300
	for i := 0; i < n; i++ {
		dir := model.DirectionSent
		sender := "alice"
		text := fmt.Sprintf("msg-%03d", i)
		switch i % 3 {
		case 1:
			dir, sender = model.DirectionReceived, "bob"
		case 2:
			dir, sender, text = model.DirectionReceiveError, "bob", model.UndecryptableMarker
		}
		require.NoError(t, log.Append(key, &model.ConversationEntry{
			Sender:    sender,
			Text:      text,
			Direction: dir,
			Timestamp: base.Add(time.Duration(i) * time.Millisecond),
		}))
	}
	require.NoError(t, s.Close())

	s = openStore(t, path, "alice")
	defer s.Close()

	entries, err := conversation.NewLog(s).Load(conversation.Key("bob", "alice"))
	require.NoError(t, err)
	require.Len(t, entries, n)
	for i, e := range entries {
		assert.True(t, e.Timestamp.Equal(base.Add(time.Duration(i)*time.Millisecond)), "entry %d timestamp", i)
		if i%3 == 0 {
			assert.Equal(t, fmt.Sprintf("msg-%03d", i), e.Text)
		}
		assert.Equal(t, i%3 == 2, e.Failed())
	}

	other, err := s.Load(conversation.Key("alice", "carol"))
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestUnreadCounters(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "state.db"), "alice")
	defer s.Close()

	u := conversation.NewUnread(s)
	u.Received("bob")
	u.Received("bob")
	u.Received("carol")
	assert.Equal(t, map[string]int{"bob": 2, "carol": 1}, u.Counts())

	u.Activate("carol")
	assert.Equal(t, map[string]int{"bob": 2}, u.Counts())
}
