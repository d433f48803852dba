package graph

import (
	"time"

	"github.com/xaenox/graph-chat/internal/query"
)

// Record keys returned by the statements below. Callers index records by
// these names, never by position.
const (
	KeyUser     = "user"
	KeyChat     = "chat"
	KeyMessage  = "message"
	KeyMessages = "messages"
	KeyChatID   = "chatId"
)

// SchemaStatements create the constraints and indexes the chat graph relies on.
var SchemaStatements = []string{
	"CREATE CONSTRAINT user_username_unique IF NOT EXISTS FOR (u:User) REQUIRE u.username IS UNIQUE",
	"CREATE CONSTRAINT chat_id_unique IF NOT EXISTS FOR (c:Chat) REQUIRE c.id IS UNIQUE",
	"CREATE CONSTRAINT message_id_unique IF NOT EXISTS FOR (m:Message) REQUIRE m.id IS UNIQUE",
	"CREATE INDEX message_created_at IF NOT EXISTS FOR (m:Message) ON (m.createdAt)",
}

const createUserCypher = `
CREATE (u:User {username: $username, passwordHash: $passwordHash, createdAt: $createdAt})
RETURN u AS user`

const fetchUserCypher = `
MATCH (u:User {username: $username})
RETURN u AS user
LIMIT 1`

const createChatCypher = `
MATCH (u:User {username: $username})
CREATE (u)-[:STARTED]->(c:Chat {id: $chatId, createdAt: $createdAt, updatedAt: $createdAt})
RETURN c {.*, owner: u.username} AS chat`

const createMessageCypher = `
MATCH (c:Chat {id: $chatId})
CREATE (c)-[:HAS_MESSAGE]->(m:Message {
  id: $id,
  role: $role,
  content: $content,
  createdAt: $createdAt,
  previousAIChatId: $previousAIChatId
})
SET c.updatedAt = $createdAt
RETURN m AS message`

const listUserChatsCypher = `
MATCH (u:User {username: $username})-[:STARTED]->(c:Chat)
OPTIONAL MATCH (c)-[:HAS_MESSAGE]->(m:Message)
WITH u, c, m ORDER BY m.createdAt ASC
WITH u, c, head(collect(m)) AS first
RETURN c {.*, owner: u.username, summary: first.content} AS chat
ORDER BY c.updatedAt DESC`

const fetchChatCypher = `
MATCH (u:User)-[:STARTED]->(c:Chat {id: $chatId})
OPTIONAL MATCH (c)-[:HAS_MESSAGE]->(m:Message)
WITH u, c, m ORDER BY m.createdAt ASC
WITH u, c, collect(m) AS messages
RETURN c {.*, owner: u.username, summary: head(messages).content} AS chat, messages`

const previousAIChatIDCypher = `
MATCH (:Chat {id: $chatId})-[:HAS_MESSAGE]->(m:Message)
WHERE m.previousAIChatId IS NOT NULL
RETURN m.previousAIChatId AS chatId
ORDER BY m.createdAt DESC
LIMIT 1`

// CreateUser inserts a User node. Returns key "user".
func CreateUser(username, passwordHash string, createdAt time.Time) query.Statement {
	return query.New("create_user", createUserCypher, query.Write, map[string]any{
		"username":     username,
		"passwordHash": passwordHash,
		"createdAt":    createdAt,
	})
}

// FetchUserByUsername looks a User up. Returns key "user".
func FetchUserByUsername(username string) query.Statement {
	return query.New("fetch_user_by_username", fetchUserCypher, query.Read, map[string]any{
		"username": username,
	})
}

// CreateChat creates a Chat and its STARTED edge in one statement. Returns key "chat".
func CreateChat(username, chatID string, createdAt time.Time) query.Statement {
	return query.New("create_chat", createChatCypher, query.Write, map[string]any{
		"username":  username,
		"chatId":    chatID,
		"createdAt": createdAt,
	})
}

// CreateMessage appends a Message to a Chat. previousAIChatID may be nil.
// Returns key "message".
func CreateMessage(chatID, messageID, role, content string, previousAIChatID *string, createdAt time.Time) query.Statement {
	var token any
	if previousAIChatID != nil {
		token = *previousAIChatID
	}
	return query.New("create_message", createMessageCypher, query.Write, map[string]any{
		"chatId":           chatID,
		"id":               messageID,
		"role":             role,
		"content":          content,
		"createdAt":        createdAt,
		"previousAIChatId": token,
	})
}

// ListUserChats returns one record per chat under key "chat".
func ListUserChats(username string) query.Statement {
	return query.New("list_user_chats", listUserChatsCypher, query.Read, map[string]any{
		"username": username,
	})
}

// FetchChat returns keys "chat" and "messages" (ordered by createdAt).
func FetchChat(chatID string) query.Statement {
	return query.New("fetch_chat", fetchChatCypher, query.Read, map[string]any{
		"chatId": chatID,
	})
}

// PreviousAIChatID returns key "chatId" holding the latest continuation token.
func PreviousAIChatID(chatID string) query.Statement {
	return query.New("get_previous_ai_chat_id", previousAIChatIDCypher, query.Read, map[string]any{
		"chatId": chatID,
	})
}
