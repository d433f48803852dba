package conversation

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/graph-chat/internal/assistant"
	"github.com/xaenox/graph-chat/internal/models"
	"github.com/xaenox/graph-chat/internal/storage"
)

type call struct {
	prompt     string
	previousID string
}

// scriptedAI answers with "reply N" and a token "thread-N".
type scriptedAI struct {
	mu    sync.Mutex
	calls []call
}

func (a *scriptedAI) Generate(ctx context.Context, prompt, previousID string) assistant.Reply {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, call{prompt: prompt, previousID: previousID})
	n := len(a.calls)
	return assistant.Reply{Content: fmt.Sprintf("reply %d", n), ContinuationID: fmt.Sprintf("thread-%d", n)}
}

func newTestStorage(t *testing.T) *storage.MemoryStorage {
	t.Helper()
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	s := storage.NewMemoryStorage(storage.WithClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Second)
		return clock
	}))
	_, err := s.CreateUser(context.Background(), "alice", "hash")
	require.NoError(t, err)
	return s
}

func TestStartPersistsBothMessages(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)
	ai := &scriptedAI{}
	svc := NewService(store, ai, nil)

	chat, turn, err := svc.Start(ctx, "alice", "  Hello  ")
	require.NoError(t, err)
	require.NotNil(t, chat)
	assert.Equal(t, AssistantMessagePersisted, turn.Stage)
	assert.Equal(t, "reply 1", turn.Assistant.Content)

	conv, err := store.GetChat(ctx, chat.ID)
	require.NoError(t, err)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, models.RoleUser, conv.Messages[0].Role)
	assert.Equal(t, "Hello", conv.Messages[0].Content)
	assert.Equal(t, models.RoleAssistant, conv.Messages[1].Role)

	require.Len(t, ai.calls, 1)
	assert.Equal(t, call{prompt: "Hello"}, ai.calls[0])
}

func TestSendPassesContinuationToken(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)
	ai := &scriptedAI{}
	svc := NewService(store, ai, nil)

	chat, _, err := svc.Start(ctx, "alice", "Hello")
	require.NoError(t, err)

	turn, err := svc.Send(ctx, chat.ID, "And then?")
	require.NoError(t, err)
	require.NotNil(t, turn)
	assert.Equal(t, "And then?", turn.User.Content)
	require.NotNil(t, turn.Assistant.PreviousAIChatID)
	assert.Equal(t, "thread-2", *turn.Assistant.PreviousAIChatID)

	require.Len(t, ai.calls, 2)
	assert.Equal(t, "thread-1", ai.calls[1].previousID)

	token, ok, err := store.GetPreviousAIChatID(ctx, chat.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "thread-2", token)
}

func TestSendIgnoresBlankInput(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)
	ai := &scriptedAI{}
	svc := NewService(store, ai, nil)

	chat, _, err := svc.Start(ctx, "alice", "Hello")
	require.NoError(t, err)

	turn, err := svc.Send(ctx, chat.ID, "   \n\t")
	require.NoError(t, err)
	assert.Nil(t, turn)

	conv, err := store.GetChat(ctx, chat.ID)
	require.NoError(t, err)
	assert.Len(t, conv.Messages, 2)
	assert.Len(t, ai.calls, 1)

	chat, turn, err = svc.Start(ctx, "alice", "")
	require.NoError(t, err)
	assert.Nil(t, chat)
	assert.Nil(t, turn)
}

func TestSendUnknownChat(t *testing.T) {
	svc := NewService(newTestStorage(t), &scriptedAI{}, nil)

	turn, err := svc.Send(context.Background(), "missing", "Hello")
	require.NoError(t, err)
	assert.Nil(t, turn)
}

func TestStartUnknownUser(t *testing.T) {
	svc := NewService(newTestStorage(t), &scriptedAI{}, nil)

	chat, turn, err := svc.Start(context.Background(), "ghost", "Hello")
	require.NoError(t, err)
	assert.Nil(t, chat)
	assert.Nil(t, turn)
}

func TestUnconfiguredAIStillCompletesTurn(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)
	svc := NewService(store, assistant.NewClient(assistant.Config{}, nil), nil)

	chat, turn, err := svc.Start(ctx, "alice", "Hello")
	require.NoError(t, err)
	assert.Equal(t, AssistantMessagePersisted, turn.Stage)

	conv, err := store.GetChat(ctx, chat.ID)
	require.NoError(t, err)
	require.Len(t, conv.Messages, 2)
	assert.Contains(t, conv.Messages[1].Content, "AI unavailable")
	assert.Nil(t, conv.Messages[1].PreviousAIChatID)

	_, ok, err := store.GetPreviousAIChatID(ctx, chat.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStageString(t *testing.T) {
	assert.Equal(t, "awaiting_user_input", AwaitingUserInput.String())
	assert.Equal(t, "assistant_message_persisted", AssistantMessagePersisted.String())
	assert.Equal(t, "stage(9)", Stage(9).String())
}
