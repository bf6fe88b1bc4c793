package conversation_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/kiku/internal/conversation"
	"github.com/hyperjump/kiku/internal/models"
	"github.com/hyperjump/kiku/internal/storage"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newService(t *testing.T) (*conversation.Service, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	n := 0
	svc := conversation.NewService(storage.NewMemoryRepository(),
		conversation.WithClock(clock.now),
		conversation.WithIDGenerator(func() string { n++; return fmt.Sprintf("conv-%d", n) }),
	)
	t.Cleanup(func() { _ = svc.Close() })
	return svc, clock
}

func TestService_CreatePlaceholderTitle(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	conv, err := svc.CreateConversation(ctx, "alice", "  ")
	require.NoError(t, err)
	assert.Equal(t, models.DefaultConversationTitle, conv.Title)
	assert.False(t, conv.CustomTitle)
	assert.Equal(t, "conv-1", conv.ID)

	named, err := svc.CreateConversation(ctx, "alice", "Budget")
	require.NoError(t, err)
	assert.Equal(t, "Budget", named.Title)
	assert.True(t, named.CustomTitle)

	_, err = svc.CreateConversation(ctx, "", "x")
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestService_AppendThenGet(t *testing.T) {
	svc, clock := newService(t)
	ctx := context.Background()
	conv, err := svc.CreateConversation(ctx, "alice", "")
	require.NoError(t, err)

	clock.advance(time.Minute)
	appended, err := svc.AppendTurns(ctx, "alice", conv.ID, []models.ConversationTurn{
		{Role: models.RoleUser, Content: "hi"},
		{Role: models.RoleAssistant, Content: "hello"},
	})
	require.NoError(t, err)
	require.Len(t, appended.Messages, 2)
	assert.True(t, appended.UpdatedAt.Equal(appended.Messages[1].Timestamp), "UpdatedAt is the last turn")

	got, err := svc.GetConversation(ctx, "alice", conv.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "hi", got.Messages[0].Content)
	assert.Equal(t, models.RoleAssistant, got.Messages[1].Role)
	assert.True(t, got.UpdatedAt.After(conv.UpdatedAt), "UpdatedAt should advance")
	assert.True(t, got.Messages[1].Timestamp.After(got.Messages[0].Timestamp))
}

func TestService_AppendValidation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	conv, _ := svc.CreateConversation(ctx, "alice", "")

	tests := []struct {
		name  string
		turns []models.ConversationTurn
	}{
		{"empty batch", nil},
		{"bad role", []models.ConversationTurn{{Role: "system", Content: "x"}}},
		{"empty content", []models.ConversationTurn{{Role: models.RoleUser, Content: " "}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.AppendTurns(ctx, "alice", conv.ID, tt.turns)
			assert.ErrorIs(t, err, models.ErrInvalidInput)
		})
	}
	_, err := svc.AppendTurns(ctx, "bob", conv.ID, []models.ConversationTurn{{Role: models.RoleUser, Content: "x"}})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestService_ListOrderAndPreview(t *testing.T) {
	svc, clock := newService(t)
	ctx := context.Background()

	first, _ := svc.CreateConversation(ctx, "alice", "")
	clock.advance(time.Second)
	second, _ := svc.CreateConversation(ctx, "alice", "Named")
	clock.advance(time.Second)
	third, _ := svc.CreateConversation(ctx, "alice", "")

	long := strings.Repeat("é", 80)
	clock.advance(time.Second)
	_, err := svc.AppendTurns(ctx, "alice", first.ID, []models.ConversationTurn{{Role: models.RoleUser, Content: long}})
	require.NoError(t, err)

	list, err := svc.ListConversations(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{first.ID, third.ID, second.ID}, []string{list[0].ID, list[1].ID, list[2].ID})
	assert.Equal(t, strings.Repeat("é", conversation.PreviewLength), list[0].Preview)
	assert.Equal(t, "", list[1].Preview)
	assert.Equal(t, "Named", list[2].Preview)
}

func TestService_RenameAndDelete(t *testing.T) {
	svc, clock := newService(t)
	ctx := context.Background()
	conv, _ := svc.CreateConversation(ctx, "alice", "")

	clock.advance(time.Second)
	renamed, err := svc.RenameConversation(ctx, "alice", conv.ID, "Renamed")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", renamed.Title)
	assert.True(t, renamed.CustomTitle)
	got, _ := svc.GetConversation(ctx, "alice", conv.ID)
	assert.Equal(t, "Renamed", got.Title)

	restored, err := svc.RenameConversation(ctx, "alice", conv.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.DefaultConversationTitle, restored.Title)
	assert.False(t, restored.CustomTitle)

	_, err = svc.RenameConversation(ctx, "bob", conv.ID, "x")
	assert.ErrorIs(t, err, models.ErrNotFound)

	require.NoError(t, svc.DeleteConversation(ctx, "alice", conv.ID))
	require.NoError(t, svc.DeleteConversation(ctx, "alice", conv.ID))
	_, err = svc.GetConversation(ctx, "alice", conv.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}
