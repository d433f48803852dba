package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/xaenox/graph-chat/internal/models"
)

type memoryChat struct {
	chat     models.Chat
	messages []*models.Message
}

type MemoryStorage struct {
	mu    sync.RWMutex
	users map[string]*models.User
	chats map[string]*memoryChat
	opts  options
}

func NewMemoryStorage(opts ...Option) *MemoryStorage {
	return &MemoryStorage{
		users: make(map[string]*models.User),
		chats: make(map[string]*memoryChat),
		opts:  buildOptions(opts),
	}
}

// User methods
func (s *MemoryStorage) CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[username]; exists {
		return nil, errors.New("error creating user: username already exists")
	}

	user := &models.User{
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    s.opts.now(),
	}
	s.users[username] = user

	copied := *user
	return &copied, nil
}

func (s *MemoryStorage) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if user, exists := s.users[username]; exists {
		copied := *user
		return &copied, nil
	}
	return nil, nil
}

// Chat methods
func (s *MemoryStorage) CreateChat(ctx context.Context, username, text string) (*models.Chat, error) {
	s.mu.Lock()
	if _, exists := s.users[username]; !exists {
		s.mu.Unlock()
		return nil, nil
	}

	now := s.opts.now()
	chat := &memoryChat{
		chat: models.Chat{
			ID:        s.opts.newID(),
			Owner:     username,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
	s.chats[chat.chat.ID] = chat
	s.mu.Unlock()

	if _, err := s.CreateMessage(ctx, chat.chat.ID, models.UserDraft(text)); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chatSnapshot(chat), nil
}

func (s *MemoryStorage) CreateMessage(ctx context.Context, chatID string, draft models.Draft) (*models.Message, error) {
	if !draft.Valid() {
		return nil, errors.New("invalid message draft")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	chat, exists := s.chats[chatID]
	if !exists {
		return nil, nil
	}

	msg := &models.Message{
		ID:        s.opts.newID(),
		Role:      draft.Role(),
		Content:   draft.Content(),
		CreatedAt: s.opts.now(),
	}
	if token, ok := draft.PreviousAIChatID(); ok {
		msg.PreviousAIChatID = &token
	}

	chat.messages = append(chat.messages, msg)
	// Stable keeps insertion order for messages sharing a timestamp.
	sort.SliceStable(chat.messages, func(i, j int) bool {
		return chat.messages[i].CreatedAt.Before(chat.messages[j].CreatedAt)
	})
	chat.chat.UpdatedAt = msg.CreatedAt

	copied := *msg
	return &copied, nil
}

func (s *MemoryStorage) ListUserChats(ctx context.Context, username string) ([]*models.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chats := []*models.Chat{}
	for _, chat := range s.chats {
		if chat.chat.Owner == username {
			chats = append(chats, s.chatSnapshot(chat))
		}
	}

	sort.Slice(chats, func(i, j int) bool {
		return chats[i].UpdatedAt.After(chats[j].UpdatedAt)
	})
	return chats, nil
}

func (s *MemoryStorage) GetChat(ctx context.Context, chatID string) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chat, exists := s.chats[chatID]
	if !exists {
		return nil, nil
	}

	messages := make([]*models.Message, len(chat.messages))
	for i, msg := range chat.messages {
		copied := *msg
		messages[i] = &copied
	}
	return &models.Conversation{Chat: *s.chatSnapshot(chat), Messages: messages}, nil
}

// Continuation methods
func (s *MemoryStorage) GetPreviousAIChatID(ctx context.Context, chatID string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chat, exists := s.chats[chatID]
	if !exists {
		return "", false, nil
	}

	for i := len(chat.messages) - 1; i >= 0; i-- {
		if token := chat.messages[i].PreviousAIChatID; token != nil && *token != "" {
			return *token, true, nil
		}
	}
	return "", false, nil
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}

// chatSnapshot must be called with s.mu held.
func (s *MemoryStorage) chatSnapshot(chat *memoryChat) *models.Chat {
	snapshot := chat.chat
	if len(chat.messages) > 0 {
		snapshot.Summary = chat.messages[0].Content
	}
	return &snapshot
}
