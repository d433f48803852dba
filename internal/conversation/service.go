package conversation

import (
	"context"
	"fmt"
	"strings"

	"github.com/xaenox/graph-chat/internal/assistant"
	"github.com/xaenox/graph-chat/internal/models"
	"github.com/xaenox/graph-chat/internal/storage"
	"go.uber.org/zap"
)

// Stage is how far a turn got.
type Stage int

const (
	AwaitingUserInput Stage = iota
	UserMessagePersisted
	AIInvoked
	AssistantMessagePersisted
)

func (s Stage) String() string {
	switch s {
	case AwaitingUserInput:
		return "awaiting_user_input"
	case UserMessagePersisted:
		return "user_message_persisted"
	case AIInvoked:
		return "ai_invoked"
	case AssistantMessagePersisted:
		return "assistant_message_persisted"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Generator produces assistant replies. *assistant.Client implements it.
type Generator interface {
	Generate(ctx context.Context, prompt, previousID string) assistant.Reply
}

// Turn is one user message and the assistant reply it triggered.
type Turn struct {
	ChatID    string
	Stage     Stage
	User      *models.Message
	Assistant *models.Message
}

// Service runs conversation turns: persist the user message, ask the AI with
// the chat's continuation token, persist the reply with the new token.
type Service struct {
	storage storage.Storage
	ai      Generator
	logger  *zap.Logger
}

func NewService(storage storage.Storage, ai Generator, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{storage: storage, ai: ai, logger: logger}
}

// Send appends text to an existing chat and runs the AI turn. Blank text is
// ignored and so is an unknown chat; both return a nil Turn.
func (s *Service) Send(ctx context.Context, chatID, text string) (*Turn, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	msg, err := s.storage.CreateMessage(ctx, chatID, models.UserDraft(text))
	if err != nil {
		return nil, err
	}
	if msg == nil {
		s.logger.Warn("Message dropped, chat not found", zap.String("chat_id", chatID))
		return nil, nil
	}

	turn := &Turn{ChatID: chatID, Stage: UserMessagePersisted, User: msg}
	return turn, s.reply(ctx, turn, text)
}

// Start opens a chat for username with text as its first message, then runs
// the AI turn. Returns nil values for blank text or an unknown user.
func (s *Service) Start(ctx context.Context, username, text string) (*models.Chat, *Turn, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil, nil
	}

	chat, err := s.storage.CreateChat(ctx, username, text)
	if err != nil {
		return nil, nil, err
	}
	if chat == nil {
		s.logger.Warn("Chat not created, user not found", zap.String("username", username))
		return nil, nil, nil
	}

	turn := &Turn{ChatID: chat.ID, Stage: UserMessagePersisted}
	if err := s.reply(ctx, turn, text); err != nil {
		return chat, turn, err
	}
	chat.UpdatedAt = turn.Assistant.CreatedAt
	return chat, turn, nil
}

// reply runs the AI call and persists its answer. No storage session is held
// while the AI call is in flight.
func (s *Service) reply(ctx context.Context, turn *Turn, prompt string) error {
	previousID, _, err := s.storage.GetPreviousAIChatID(ctx, turn.ChatID)
	if err != nil {
		return err
	}

	answer := s.ai.Generate(ctx, prompt, previousID)
	turn.Stage = AIInvoked

	msg, err := s.storage.CreateMessage(ctx, turn.ChatID, models.AssistantDraft(answer.Content, answer.ContinuationID))
	if err != nil {
		return err
	}
	if msg == nil {
		return fmt.Errorf("error saving assistant reply: chat %s not found", turn.ChatID)
	}

	turn.Assistant = msg
	turn.Stage = AssistantMessagePersisted
	s.logger.Debug("Conversation turn completed",
		zap.String("chat_id", turn.ChatID),
		zap.Bool("continued", previousID != ""),
		zap.Bool("has_continuation", answer.ContinuationID != ""))
	return nil
}
