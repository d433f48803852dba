package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/xaenox/graph-chat/internal/graph"
	"github.com/xaenox/graph-chat/internal/models"
	"github.com/xaenox/graph-chat/internal/query"
	"go.uber.org/zap"
)

// Runner executes graph statements. *graph.Executor implements it.
type Runner interface {
	Run(ctx context.Context, stmt query.Statement) ([]*neo4j.Record, error)
	RunOne(ctx context.Context, stmt query.Statement) (*neo4j.Record, error)
}

// GraphStorage keeps users, chats and messages in Neo4j.
type GraphStorage struct {
	runner Runner
	closer func() error
	logger *zap.Logger
	opts   options
}

// NewGraphStorage wraps runner. closer, when non-nil, is called by Close.
func NewGraphStorage(runner Runner, closer func() error, logger *zap.Logger, opts ...Option) *GraphStorage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GraphStorage{
		runner: runner,
		closer: closer,
		logger: logger,
		opts:   buildOptions(opts),
	}
}

func (s *GraphStorage) CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error) {
	record, err := s.runner.RunOne(ctx, graph.CreateUser(username, passwordHash, s.opts.now()))
	if err != nil {
		return nil, fmt.Errorf("error creating user: %w", err)
	}
	if record == nil {
		return nil, nil
	}
	return graph.DecodeUser(record)
}

func (s *GraphStorage) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	record, err := s.runner.RunOne(ctx, graph.FetchUserByUsername(username))
	if err != nil {
		return nil, fmt.Errorf("error fetching user: %w", err)
	}
	if record == nil {
		return nil, nil
	}
	return graph.DecodeUser(record)
}

func (s *GraphStorage) CreateChat(ctx context.Context, username, text string) (*models.Chat, error) {
	record, err := s.runner.RunOne(ctx, graph.CreateChat(username, s.opts.newID(), s.opts.now()))
	if err != nil {
		return nil, fmt.Errorf("error creating chat: %w", err)
	}
	if record == nil {
		s.logger.Warn("Chat not created, user not found", zap.String("username", username))
		return nil, nil
	}

	chat, err := graph.DecodeChat(record)
	if err != nil {
		return nil, err
	}

	msg, err := s.CreateMessage(ctx, chat.ID, models.UserDraft(text))
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, errors.New("error creating first message: chat vanished")
	}

	chat.Summary = msg.Content
	chat.UpdatedAt = msg.CreatedAt
	return chat, nil
}

func (s *GraphStorage) CreateMessage(ctx context.Context, chatID string, draft models.Draft) (*models.Message, error) {
	if !draft.Valid() {
		return nil, errors.New("invalid message draft")
	}

	var token *string
	if t, ok := draft.PreviousAIChatID(); ok {
		token = &t
	}

	stmt := graph.CreateMessage(chatID, s.opts.newID(), string(draft.Role()), draft.Content(), token, s.opts.now())
	record, err := s.runner.RunOne(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("error creating message: %w", err)
	}
	if record == nil {
		return nil, nil
	}
	return graph.DecodeMessage(record)
}

func (s *GraphStorage) ListUserChats(ctx context.Context, username string) ([]*models.Chat, error) {
	records, err := s.runner.Run(ctx, graph.ListUserChats(username))
	if err != nil {
		return nil, fmt.Errorf("error listing chats: %w", err)
	}

	chats := make([]*models.Chat, 0, len(records))
	for _, record := range records {
		chat, err := graph.DecodeChat(record)
		if err != nil {
			return nil, err
		}
		chats = append(chats, chat)
	}
	return chats, nil
}

func (s *GraphStorage) GetChat(ctx context.Context, chatID string) (*models.Conversation, error) {
	record, err := s.runner.RunOne(ctx, graph.FetchChat(chatID))
	if err != nil {
		return nil, fmt.Errorf("error fetching chat: %w", err)
	}
	if record == nil {
		return nil, nil
	}
	return graph.DecodeConversation(record)
}

func (s *GraphStorage) GetPreviousAIChatID(ctx context.Context, chatID string) (string, bool, error) {
	record, err := s.runner.RunOne(ctx, graph.PreviousAIChatID(chatID))
	if err != nil {
		return "", false, fmt.Errorf("error resolving previous AI chat id: %w", err)
	}
	if record == nil {
		return "", false, nil
	}
	return graph.DecodeChatID(record)
}

func (s *GraphStorage) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
