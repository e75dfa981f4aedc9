package checkpoint

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itish2003/ragagent/models"
)

func openTestStore(t *testing.T, path string) *Store {
	t.Helper()
	s, err := Open(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleConversation() *models.Conversation {
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return &models.Conversation{
		ThreadID: "thread-1",
		Messages: []models.Message{
			{Role: models.RoleUser, Content: "What is 37593 * 67?", CreatedAt: ts},
			{Role: models.RoleTool, Content: "2518731", ToolName: "calculator", CreatedAt: ts,
				ToolCall: &models.ToolCall{ID: "c1", Name: "calculator", Argument: "37593 * 67", Signature: []byte{1, 2, 3}}},
			{Role: models.RoleAssistant, Content: "37593 * 67 = 2518731", CreatedAt: ts},
		},
		State:     models.StateFinalAnswer,
		Iteration: 2,
		UpdatedAt: ts,
	}
}

func TestStore_LoadMissing(t *testing.T) {
	s := openTestStore(t, filepath.Join(t.TempDir(), "cp.db"))

	conv, ok, err := s.Load(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, conv)
}

func TestStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, filepath.Join(t.TempDir(), "cp.db"))
	want := sampleConversation()

	require.NoError(t, s.Save(ctx, want))

	got, ok, err := s.Load(ctx, "thread-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestStore_LatestWins(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, filepath.Join(t.TempDir(), "cp.db"))
	conv := sampleConversation()

	first := *conv
	first.Messages = conv.Messages[:1]
	first.Pending = []models.Message{{Role: models.RoleUser, Content: "pending"}}
	first.State = models.StateAwaitingModel
	require.NoError(t, s.Save(ctx, &first))
	require.NoError(t, s.Save(ctx, conv))

	got, ok, err := s.Load(ctx, "thread-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, got.Messages, 3)
	assert.False(t, got.InFlight())

	hist, err := s.History(ctx, "thread-1")
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, int64(1), hist[0].Seq)
	assert.Equal(t, models.StateAwaitingModel, hist[0].State)
	assert.Equal(t, 1, hist[0].Messages)
	assert.Equal(t, int64(2), hist[1].Seq)
	assert.Equal(t, models.StateFinalAnswer, hist[1].State)
	assert.False(t, hist[1].CreatedAt.IsZero())
}

func TestStore_RestartFidelity(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "cp.db")
	want := sampleConversation()

	s1, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, s1.Save(ctx, want))
	require.NoError(t, s1.Close())

	s2 := openTestStore(t, path)
	got, ok, err := s2.Load(ctx, "thread-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want.Messages, got.Messages)
}

func TestStore_Threads(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, filepath.Join(t.TempDir(), "cp.db"))

	for _, id := range []string{"b", "a", "b"} {
		require.NoError(t, s.Save(ctx, &models.Conversation{ThreadID: id}))
	}
	ids, err := s.Threads(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
}

func TestStore_SaveRequiresThreadID(t *testing.T) {
	s := openTestStore(t, filepath.Join(t.TempDir(), "cp.db"))
	err := s.Save(context.Background(), &models.Conversation{})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}
