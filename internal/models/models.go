package models

import "time"

// Role identifies who authored a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// User represents a registered account
type User struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Chat represents a conversation thread started by one user
type Chat struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner,omitempty"`
	Summary   string    `json:"summary,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message represents a single append-only chat entry
type Message struct {
	ID               string    `json:"id"`
	Role             Role      `json:"role"`
	Content          string    `json:"content"`
	CreatedAt        time.Time `json:"created_at"`
	PreviousAIChatID *string   `json:"previous_ai_chat_id,omitempty"`
}

// Conversation is a chat together with its messages in creation order
type Conversation struct {
	Chat     Chat       `json:"chat"`
	Messages []*Message `json:"messages"`
}
