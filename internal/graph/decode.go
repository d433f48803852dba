package graph

import (
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
	"github.com/xaenox/graph-chat/internal/models"
)

// TypeConversionError represents a record value that does not have the expected shape.
type TypeConversionError struct {
	Expected string
	Actual   string
	Field    string
}

func (e *TypeConversionError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("type conversion error for field %q: expected %s, got %s", e.Field, e.Expected, e.Actual)
	}
	return fmt.Sprintf("type conversion error: expected %s, got %s", e.Expected, e.Actual)
}

func newTypeConversionError(expected string, actual any, field string) *TypeConversionError {
	return &TypeConversionError{
		Expected: expected,
		Actual:   fmt.Sprintf("%T", actual),
		Field:    field,
	}
}

// value returns record[key], failing when the key is absent.
func value(record *neo4j.Record, key string) (any, error) {
	if record == nil {
		return nil, fmt.Errorf("nil record while reading %q", key)
	}
	v, ok := record.Get(key)
	if !ok {
		return nil, fmt.Errorf("record has no key %q (keys: %v)", key, record.Keys)
	}
	return v, nil
}

// properties accepts both whole nodes and map projections.
func properties(v any, field string) (map[string]any, error) {
	switch t := v.(type) {
	case dbtype.Node:
		return t.Props, nil
	case *dbtype.Node:
		if t != nil {
			return t.Props, nil
		}
	case map[string]any:
		return t, nil
	}
	return nil, newTypeConversionError("node or map", v, field)
}

func stringProp(props map[string]any, name string) (string, error) {
	v, ok := props[name]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", newTypeConversionError("string", v, name)
	}
	return s, nil
}

func timeProp(props map[string]any, name string) (time.Time, error) {
	switch t := props[name].(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return t, nil
	case dbtype.LocalDateTime:
		return t.Time(), nil
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, fmt.Errorf("parsing %s: %w", name, err)
		}
		return parsed, nil
	default:
		return time.Time{}, newTypeConversionError("datetime", t, name)
	}
}

// DecodeUser reads the "user" key.
func DecodeUser(record *neo4j.Record) (*models.User, error) {
	v, err := value(record, KeyUser)
	if err != nil {
		return nil, err
	}
	props, err := properties(v, KeyUser)
	if err != nil {
		return nil, err
	}

	user := &models.User{}
	if user.Username, err = stringProp(props, "username"); err != nil {
		return nil, err
	}
	if user.PasswordHash, err = stringProp(props, "passwordHash"); err != nil {
		return nil, err
	}
	if user.CreatedAt, err = timeProp(props, "createdAt"); err != nil {
		return nil, err
	}
	return user, nil
}

// DecodeChat reads the "chat" key.
func DecodeChat(record *neo4j.Record) (*models.Chat, error) {
	v, err := value(record, KeyChat)
	if err != nil {
		return nil, err
	}
	return chatFromValue(v)
}

func chatFromValue(v any) (*models.Chat, error) {
	props, err := properties(v, KeyChat)
	if err != nil {
		return nil, err
	}

	chat := &models.Chat{}
	if chat.ID, err = stringProp(props, "id"); err != nil {
		return nil, err
	}
	if chat.Owner, err = stringProp(props, "owner"); err != nil {
		return nil, err
	}
	if chat.Summary, err = stringProp(props, "summary"); err != nil {
		return nil, err
	}
	if chat.CreatedAt, err = timeProp(props, "createdAt"); err != nil {
		return nil, err
	}
	if chat.UpdatedAt, err = timeProp(props, "updatedAt"); err != nil {
		return nil, err
	}
	return chat, nil
}

// DecodeMessage reads the "message" key.
func DecodeMessage(record *neo4j.Record) (*models.Message, error) {
	v, err := value(record, KeyMessage)
	if err != nil {
		return nil, err
	}
	return messageFromValue(v)
}

func messageFromValue(v any) (*models.Message, error) {
	props, err := properties(v, KeyMessage)
	if err != nil {
		return nil, err
	}

	msg := &models.Message{}
	if msg.ID, err = stringProp(props, "id"); err != nil {
		return nil, err
	}
	role, err := stringProp(props, "role")
	if err != nil {
		return nil, err
	}
	msg.Role = models.Role(role)
	if msg.Content, err = stringProp(props, "content"); err != nil {
		return nil, err
	}
	if msg.CreatedAt, err = timeProp(props, "createdAt"); err != nil {
		return nil, err
	}
	token, err := stringProp(props, "previousAIChatId")
	if err != nil {
		return nil, err
	}
	if token != "" {
		msg.PreviousAIChatID = &token
	}
	return msg, nil
}

// DecodeConversation reads the "chat" and "messages" keys.
func DecodeConversation(record *neo4j.Record) (*models.Conversation, error) {
	chat, err := DecodeChat(record)
	if err != nil {
		return nil, err
	}

	v, err := value(record, KeyMessages)
	if err != nil {
		return nil, err
	}
	var items []any
	if v != nil {
		var ok bool
		if items, ok = v.([]any); !ok {
			return nil, newTypeConversionError("list", v, KeyMessages)
		}
	}

	messages := make([]*models.Message, 0, len(items))
	for _, item := range items {
		msg, err := messageFromValue(item)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	return &models.Conversation{Chat: *chat, Messages: messages}, nil
}

// DecodeChatID reads the "chatId" key. A null value reports false.
func DecodeChatID(record *neo4j.Record) (string, bool, error) {
	v, err := value(record, KeyChatID)
	if err != nil {
		return "", false, err
	}
	if v == nil {
		return "", false, nil
	}
	token, ok := v.(string)
	if !ok {
		return "", false, newTypeConversionError("string", v, KeyChatID)
	}
	return token, token != "", nil
}
