package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func sampleConversation() []Message {
	base := time.UnixMilli(1735689600000)
	return []Message{
		Greeting(base),
		{ID: "u1", Role: RoleUser, Text: "hello", Timestamp: base.Add(time.Second)},
		{ID: "m1", Role: RoleModel, Text: "hi **there**", Timestamp: base.Add(2 * time.Second)},
		{ID: "e1", Role: RoleModel, Text: FailureText, Timestamp: base.Add(3 * time.Second), IsError: true},
	}
}

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	msgs, err := s.Load(ctx, "c")
	require.NoError(t, err)
	require.Empty(t, msgs)

	want := sampleConversation()
	require.NoError(t, s.Save(ctx, "c", want))
	got, err := s.Load(ctx, "c")
	require.NoError(t, err)
	require.Len(t, got, len(want))
	for i := range want {
		require.Equal(t, want[i].ID, got[i].ID)
		require.Equal(t, want[i].Role, got[i].Role)
		require.Equal(t, want[i].Text, got[i].Text)
		require.Equal(t, want[i].IsError, got[i].IsError)
		require.True(t, want[i].Timestamp.Equal(got[i].Timestamp), "timestamp %d", i)
	}

	// A shorter save replaces the whole conversation.
	require.NoError(t, s.Save(ctx, "c", want[:2]))
	got, err = s.Load(ctx, "c")
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Other conversation ids are isolated.
	other, err := s.Load(ctx, "other")
	require.NoError(t, err)
	require.Empty(t, other)

	require.NoError(t, s.Delete(ctx, "c"))
	got, err = s.Load(ctx, "c")
	require.NoError(t, err)
	require.Empty(t, got)
	require.NoError(t, s.Delete(ctx, "c"))
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestSQLiteStore(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)
}

func TestBadgerStore(t *testing.T) {
	s, err := OpenBadger(BadgerOptions{InMemory: true})
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)
}

func TestBadgerStore_RequiresDir(t *testing.T) {
	_, err := OpenBadger(BadgerOptions{})
	require.Error(t, err)
}

func TestOpen_UnknownDriverFallsBackToMemory(t *testing.T) {
	s := Open("cassette", "")
	_, ok := s.(*Memory)
	require.True(t, ok)
}

func TestLog_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := OpenSQLite(path)
	require.NoError(t, err)
	l := NewLog(s, "c")
	require.NoError(t, l.Append(Message{ID: "u1", Role: RoleUser, Text: "persist me"}))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path)
	require.NoError(t, err)
	defer s.Close()
	l = NewLog(s, "c")
	l.Load(context.Background())
	require.Equal(t, 2, l.Len())
	last, _ := l.Last()
	require.Equal(t, "persist me", last.Text)
}
