package conversation

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"privly_chat/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyIsOrderIndependent(t *testing.T) {
	assert.Equal(t, Key("alice", "bob"), Key("bob", "alice"))
	assert.NotEqual(t, Key("alice", "bob"), Key("alice", "carol"))
	assert.NotEqual(t, Key("ab", "c"), Key("a", "bc"))
	assert.Equal(t, Key("alice", "alice"), Key("alice", "alice"))
}

func TestLogRoundTrip(t *testing.T) {
	l := NewLog(NewMemoryStore())
	key := Key("alice", "bob")

	base := time.Date(2026, 10, 18, 9, 0, 0, 123456789, time.UTC)
	var want []*model.ConversationEntry
	for i := 0; i < 10; i++ {
		e := &model.ConversationEntry{
			Sender:    []string{"alice", "bob"}[i%2],
			Text:      fmt.Sprintf("message %d", i),
			Direction: model.DirectionSent,
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}
		if i%2 == 1 {
			e.Direction = model.DirectionReceived
		}
		want = append(want, e)
		require.NoError(t, l.Append(key, e))
	}

	got, err := l.Load(Key("bob", "alice"))
	require.NoError(t, err)
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Sender, got[i].Sender)
		assert.Equal(t, want[i].Text, got[i].Text)
		assert.Equal(t, want[i].Direction, got[i].Direction)
		assert.True(t, want[i].Timestamp.Equal(got[i].Timestamp))
	}
}

func TestLoadUnknownIsEmpty(t *testing.T) {
	l := NewLog(NewMemoryStore())
	got, err := l.Load(Key("x", "y"))
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

type brokenStore struct{}

func (brokenStore) Append(string, *model.ConversationEntry) error {
	return errors.New("disk full")
}

func (brokenStore) Load(string) ([]*model.ConversationEntry, error) {
	return nil, nil
}

func TestAppendFailureIsReported(t *testing.T) {
	l := NewLog(brokenStore{})
	err := l.Append("k", &model.ConversationEntry{Sender: "alice"})
	assert.Error(t, err)

	got, err := l.Load("k")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestUnreadCounters(t *testing.T) {
	u := NewUnread(NewMemoryStore())

	assert.True(t, u.Received("bob"))
	assert.True(t, u.Received("bob"))
	assert.True(t, u.Received("carol"))
	assert.Equal(t, map[string]int{"bob": 2, "carol": 1}, u.Counts())

	u.Activate("bob")
	assert.Equal(t, "bob", u.Active())
	assert.Equal(t, map[string]int{"carol": 1}, u.Counts())

	assert.False(t, u.Received("bob"), "active conversation does not count")
	assert.Equal(t, map[string]int{"carol": 1}, u.Counts())
}
