package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/xaenox/graph-chat/internal/models"
	"github.com/xaenox/graph-chat/internal/query"
	"go.uber.org/zap"
)

//go:embed migrations.sql
var migrations embed.FS

// syntaxErrorCode is the SQLSTATE PostgreSQL reports for unparsable statements.
const syntaxErrorCode = "42601"

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

func (c DatabaseConfig) connString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// PostgresStorage is the relational alternative to GraphStorage.
type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
	opts   options
}

func NewPostgresStorage(config DatabaseConfig, logger *zap.Logger, opts ...Option) (*PostgresStorage, error) {
	db, err := sql.Open("postgres", config.connString())
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	storage := &PostgresStorage{db: db, logger: logger, opts: buildOptions(opts)}

	// Initialize database schema
	if err := storage.initializeSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}

	logger.Info("Connected to PostgreSQL",
		zap.String("host", config.Host),
		zap.String("dbname", config.DBName))
	return storage, nil
}

func (s *PostgresStorage) initializeSchema() error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}

	if _, err := s.db.Exec(string(migrationSQL)); err != nil {
		return translatePQError(string(migrationSQL), err)
	}
	return nil
}

// translatePQError maps SQLSTATE 42601 to *query.SyntaxError.
func translatePQError(statement string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == syntaxErrorCode {
		return query.NewSyntaxError(statement, string(pqErr.Code), pqErr.Message, err)
	}
	return err
}

func (s *PostgresStorage) CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error) {
	const stmt = `
		INSERT INTO users (username, password_hash, created_at)
		VALUES ($1, $2, $3)
		RETURNING username, password_hash, created_at`

	user := &models.User{}
	err := s.db.QueryRowContext(ctx, stmt, username, passwordHash, s.opts.now()).
		Scan(&user.Username, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("error creating user: %w", translatePQError(stmt, err))
	}
	return user, nil
}

func (s *PostgresStorage) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	const stmt = `
		SELECT username, password_hash, created_at
		FROM users
		WHERE username = $1`

	user := &models.User{}
	err := s.db.QueryRowContext(ctx, stmt, username).
		Scan(&user.Username, &user.PasswordHash, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error fetching user: %w", translatePQError(stmt, err))
	}
	return user, nil
}

// CreateChat inserts the chat and its first message in one transaction.
func (s *PostgresStorage) CreateChat(ctx context.Context, username, text string) (*models.Chat, error) {
	const chatStmt = `
		INSERT INTO chats (id, username, created_at, updated_at)
		SELECT $1, username, $3, $3 FROM users WHERE username = $2
		RETURNING id, username, created_at, updated_at`

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	chat := &models.Chat{}
	err = tx.QueryRowContext(ctx, chatStmt, s.opts.newID(), username, s.opts.now()).
		Scan(&chat.ID, &chat.Owner, &chat.CreatedAt, &chat.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error creating chat: %w", translatePQError(chatStmt, err))
	}

	msg, err := s.insertMessage(ctx, tx, chat.ID, models.UserDraft(text))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("error committing chat: %w", err)
	}

	chat.Summary = msg.Content
	chat.UpdatedAt = msg.CreatedAt
	return chat, nil
}

func (s *PostgresStorage) CreateMessage(ctx context.Context, chatID string, draft models.Draft) (*models.Message, error) {
	if !draft.Valid() {
		return nil, errors.New("invalid message draft")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	msg, err := s.insertMessage(ctx, tx, chatID, draft)
	if err != nil || msg == nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("error committing message: %w", err)
	}
	return msg, nil
}

// insertMessage returns nil without error when the chat does not exist.
func (s *PostgresStorage) insertMessage(ctx context.Context, tx *sql.Tx, chatID string, draft models.Draft) (*models.Message, error) {
	const touchStmt = `UPDATE chats SET updated_at = $2 WHERE id = $1`
	const insertStmt = `
		INSERT INTO messages (id, chat_id, role, content, created_at, previous_ai_chat_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, role, content, created_at, previous_ai_chat_id`

	now := s.opts.now()
	result, err := tx.ExecContext(ctx, touchStmt, chatID, now)
	if err != nil {
		return nil, fmt.Errorf("error updating chat: %w", translatePQError(touchStmt, err))
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("error getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, nil
	}

	var token sql.NullString
	if t, ok := draft.PreviousAIChatID(); ok {
		token = sql.NullString{String: t, Valid: true}
	}

	msg := &models.Message{}
	var role string
	var stored sql.NullString
	err = tx.QueryRowContext(ctx, insertStmt, s.opts.newID(), chatID, string(draft.Role()), draft.Content(), now, token).
		Scan(&msg.ID, &role, &msg.Content, &msg.CreatedAt, &stored)
	if err != nil {
		return nil, fmt.Errorf("error creating message: %w", translatePQError(insertStmt, err))
	}
	msg.Role = models.Role(role)
	if stored.Valid {
		msg.PreviousAIChatID = &stored.String
	}
	return msg, nil
}

func (s *PostgresStorage) ListUserChats(ctx context.Context, username string) ([]*models.Chat, error) {
	const stmt = `
		SELECT c.id, c.username, c.created_at, c.updated_at,
		       COALESCE((SELECT m.content FROM messages m
		                 WHERE m.chat_id = c.id
		                 ORDER BY m.created_at ASC, m.seq ASC LIMIT 1), '')
		FROM chats c
		WHERE c.username = $1
		ORDER BY c.updated_at DESC`

	rows, err := s.db.QueryContext(ctx, stmt, username)
	if err != nil {
		return nil, fmt.Errorf("error querying chats: %w", translatePQError(stmt, err))
	}
	defer rows.Close()

	chats := []*models.Chat{}
	for rows.Next() {
		chat := &models.Chat{}
		if err := rows.Scan(&chat.ID, &chat.Owner, &chat.CreatedAt, &chat.UpdatedAt, &chat.Summary); err != nil {
			return nil, fmt.Errorf("error scanning chat: %w", err)
		}
		chats = append(chats, chat)
	}
	return chats, rows.Err()
}

func (s *PostgresStorage) GetChat(ctx context.Context, chatID string) (*models.Conversation, error) {
	const chatStmt = `
		SELECT id, username, created_at, updated_at
		FROM chats
		WHERE id = $1`
	const messagesStmt = `
		SELECT id, role, content, created_at, previous_ai_chat_id
		FROM messages
		WHERE chat_id = $1
		ORDER BY created_at ASC, seq ASC`

	conv := &models.Conversation{Messages: []*models.Message{}}
	err := s.db.QueryRowContext(ctx, chatStmt, chatID).
		Scan(&conv.Chat.ID, &conv.Chat.Owner, &conv.Chat.CreatedAt, &conv.Chat.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error fetching chat: %w", translatePQError(chatStmt, err))
	}

	rows, err := s.db.QueryContext(ctx, messagesStmt, chatID)
	if err != nil {
		return nil, fmt.Errorf("error querying messages: %w", translatePQError(messagesStmt, err))
	}
	defer rows.Close()

	for rows.Next() {
		msg := &models.Message{}
		var role string
		var token sql.NullString
		if err := rows.Scan(&msg.ID, &role, &msg.Content, &msg.CreatedAt, &token); err != nil {
			return nil, fmt.Errorf("error scanning message: %w", err)
		}
		msg.Role = models.Role(role)
		if token.Valid {
			msg.PreviousAIChatID = &token.String
		}
		conv.Messages = append(conv.Messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(conv.Messages) > 0 {
		conv.Chat.Summary = conv.Messages[0].Content
	}
	return conv, nil
}

func (s *PostgresStorage) GetPreviousAIChatID(ctx context.Context, chatID string) (string, bool, error) {
	const stmt = `
		SELECT previous_ai_chat_id
		FROM messages
		WHERE chat_id = $1 AND previous_ai_chat_id IS NOT NULL
		ORDER BY created_at DESC, seq DESC
		LIMIT 1`

	var token string
	err := s.db.QueryRowContext(ctx, stmt, chatID).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("error resolving previous AI chat id: %w", translatePQError(stmt, err))
	}
	return token, token != "", nil
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable within timeout.
func (s *PostgresStorage) Ping(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.db.PingContext(ctx)
}
