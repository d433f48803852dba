package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/graph-chat/internal/models"
	"github.com/xaenox/graph-chat/internal/query"
)

// fakeRunner answers statements by name and records what it was sent.
type fakeRunner struct {
	results map[string][]*neo4j.Record
	errs    map[string]error
	sent    []query.Statement
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		results: make(map[string][]*neo4j.Record),
		errs:    make(map[string]error),
	}
}

func (r *fakeRunner) Run(ctx context.Context, stmt query.Statement) ([]*neo4j.Record, error) {
	r.sent = append(r.sent, stmt)
	if err := r.errs[stmt.Name]; err != nil {
		return nil, err
	}
	records := r.results[stmt.Name]
	if records == nil {
		records = []*neo4j.Record{}
	}
	return records, nil
}

func (r *fakeRunner) RunOne(ctx context.Context, stmt query.Statement) (*neo4j.Record, error) {
	records, err := r.Run(ctx, stmt)
	if err != nil || len(records) == 0 {
		return nil, err
	}
	return records[0], nil
}

func (r *fakeRunner) names() []string {
	names := make([]string, len(r.sent))
	for i, stmt := range r.sent {
		names[i] = stmt.Name
	}
	return names
}

func rec(keys []string, values ...any) *neo4j.Record {
	return &neo4j.Record{Keys: keys, Values: values}
}

var testTime = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func newTestGraphStorage(runner Runner) *GraphStorage {
	return NewGraphStorage(runner, nil, nil,
		WithClock(func() time.Time { return testTime }),
		WithIDGenerator(sequentialIDs("id")))
}

func TestGraphStorageCreateAndFetchUser(t *testing.T) {
	runner := newFakeRunner()
	node := dbtype.Node{Props: map[string]any{
		"username":     "alice",
		"passwordHash": "hash",
		"createdAt":    testTime,
	}}
	runner.results["create_user"] = []*neo4j.Record{rec([]string{"user"}, node)}
	runner.results["fetch_user_by_username"] = []*neo4j.Record{rec([]string{"user"}, node)}
	s := newTestGraphStorage(runner)

	created, err := s.CreateUser(context.Background(), "alice", "hash")
	require.NoError(t, err)
	fetched, err := s.GetUserByUsername(context.Background(), "alice")
	require.NoError(t, err)

	assert.Equal(t, created, fetched)
	assert.Equal(t, "alice", fetched.Username)
	assert.Equal(t, "hash", fetched.PasswordHash)
	assert.Equal(t, query.Write, runner.sent[0].Mode)
	assert.Equal(t, query.Read, runner.sent[1].Mode)
	assert.Equal(t, "alice", runner.sent[1].Params["username"])
}

func TestGraphStorageUnknownUser(t *testing.T) {
	s := newTestGraphStorage(newFakeRunner())

	user, err := s.GetUserByUsername(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestGraphStorageCreateChatAppendsFirstMessage(t *testing.T) {
	runner := newFakeRunner()
	runner.results["create_chat"] = []*neo4j.Record{rec([]string{"chat"}, map[string]any{
		"id":        "id-1",
		"owner":     "alice",
		"createdAt": testTime,
		"updatedAt": testTime,
	})}
	runner.results["create_message"] = []*neo4j.Record{rec([]string{"message"}, dbtype.Node{Props: map[string]any{
		"id":        "id-2",
		"role":      "user",
		"content":   "Hello",
		"createdAt": testTime,
	}})}
	s := newTestGraphStorage(runner)

	chat, err := s.CreateChat(context.Background(), "alice", "Hello")
	require.NoError(t, err)
	require.NotNil(t, chat)

	assert.Equal(t, []string{"create_chat", "create_message"}, runner.names())
	assert.Equal(t, "id-1", chat.ID)
	assert.Equal(t, "Hello", chat.Summary)

	msgParams := runner.sent[1].Params
	assert.Equal(t, "id-1", msgParams["chatId"])
	assert.Equal(t, "user", msgParams["role"])
	assert.Nil(t, msgParams["previousAIChatId"])
}

func TestGraphStorageCreateChatUnknownUser(t *testing.T) {
	runner := newFakeRunner()
	s := newTestGraphStorage(runner)

	chat, err := s.CreateChat(context.Background(), "ghost", "Hello")
	require.NoError(t, err)
	assert.Nil(t, chat)
	assert.Equal(t, []string{"create_chat"}, runner.names())
}

func TestGraphStorageCreateMessagePassesContinuationToken(t *testing.T) {
	runner := newFakeRunner()
	runner.results["create_message"] = []*neo4j.Record{rec([]string{"message"}, dbtype.Node{Props: map[string]any{
		"id":               "id-1",
		"role":             "assistant",
		"content":          "Hi",
		"createdAt":        testTime,
		"previousAIChatId": "thread-1",
	}})}
	s := newTestGraphStorage(runner)

	msg, err := s.CreateMessage(context.Background(), "chat-1", models.AssistantDraft("Hi", "thread-1"))
	require.NoError(t, err)
	require.NotNil(t, msg.PreviousAIChatID)
	assert.Equal(t, "thread-1", *msg.PreviousAIChatID)
	assert.Equal(t, "thread-1", runner.sent[0].Params["previousAIChatId"])
}

func TestGraphStorageListUserChatsEmpty(t *testing.T) {
	s := newTestGraphStorage(newFakeRunner())

	chats, err := s.ListUserChats(context.Background(), "alice")
	require.NoError(t, err)
	assert.NotNil(t, chats)
	assert.Empty(t, chats)
}

func TestGraphStorageGetChat(t *testing.T) {
	runner := newFakeRunner()
	chat := map[string]any{"id": "chat-1", "owner": "alice", "summary": "Hello"}
	messages := []any{
		dbtype.Node{Props: map[string]any{"id": "m1", "role": "user", "content": "Hello", "createdAt": testTime}},
		dbtype.Node{Props: map[string]any{"id": "m2", "role": "assistant", "content": "Hi", "createdAt": testTime.Add(time.Second)}},
	}
	runner.results["fetch_chat"] = []*neo4j.Record{rec([]string{"chat", "messages"}, chat, messages)}
	s := newTestGraphStorage(runner)

	conv, err := s.GetChat(context.Background(), "chat-1")
	require.NoError(t, err)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, models.RoleUser, conv.Messages[0].Role)
	assert.Equal(t, "alice", conv.Chat.Owner)

	missing, err := newTestGraphStorage(newFakeRunner()).GetChat(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestGraphStorageGetPreviousAIChatID(t *testing.T) {
	runner := newFakeRunner()
	runner.results["get_previous_ai_chat_id"] = []*neo4j.Record{rec([]string{"chatId"}, "thread-9")}
	s := newTestGraphStorage(runner)

	token, ok, err := s.GetPreviousAIChatID(context.Background(), "chat-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "thread-9", token)

	token, ok, err = newTestGraphStorage(newFakeRunner()).GetPreviousAIChatID(context.Background(), "chat-1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, token)
}

func TestGraphStorageSyntaxErrorKeepsStatement(t *testing.T) {
	runner := newFakeRunner()
	stmtText := "MATCH (u:User {username: $username}) RETURN u AS user LIMIT 1"
	runner.errs["fetch_user_by_username"] = query.NewSyntaxError(stmtText, "Neo.ClientError.Statement.SyntaxError", "Invalid input", nil)
	s := newTestGraphStorage(runner)

	_, err := s.GetUserByUsername(context.Background(), "alice")
	require.Error(t, err)

	var syntaxErr *query.SyntaxError
	require.True(t, errors.As(err, &syntaxErr))
	assert.Equal(t, stmtText, syntaxErr.Statement)
	assert.Contains(t, err.Error(), stmtText)
}

func TestGraphStorageClose(t *testing.T) {
	closed := false
	s := NewGraphStorage(newFakeRunner(), func() error { closed = true; return nil }, nil)

	require.NoError(t, s.Close())
	assert.True(t, closed)
}
