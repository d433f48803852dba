package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/xaenox/graph-chat/internal/models"
)

// Storage is the data-access contract used by the front ends and the
// conversation service. Lookups that match nothing return nil values, not
// errors. Malformed statements surface as *query.SyntaxError.
type Storage interface {
	CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)

	// CreateChat creates a chat started by username and appends text as its
	// first user message. Returns nil when the user does not exist.
	CreateChat(ctx context.Context, username, text string) (*models.Chat, error)
	// CreateMessage appends a message and refreshes the chat's UpdatedAt.
	// Returns nil when the chat does not exist.
	CreateMessage(ctx context.Context, chatID string, draft models.Draft) (*models.Message, error)
	// ListUserChats never returns a nil slice.
	ListUserChats(ctx context.Context, username string) ([]*models.Chat, error)
	GetChat(ctx context.Context, chatID string) (*models.Conversation, error)

	Close() error

	// Embed ContinuationStorage interface
	ContinuationStorage
}

// ContinuationStorage resolves the external AI conversation token of a chat.
type ContinuationStorage interface {
	// GetPreviousAIChatID returns the most recent non-empty token stored on
	// the chat's messages.
	GetPreviousAIChatID(ctx context.Context, chatID string) (string, bool, error)
}

// Option configures a storage backend
type Option func(*options)

type options struct {
	now   func() time.Time
	newID func() string
}

func defaultOptions() options {
	return options{
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithIDGenerator overrides how chat and message ids are generated.
func WithIDGenerator(newID func() string) Option {
	return func(o *options) { o.newID = newID }
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
