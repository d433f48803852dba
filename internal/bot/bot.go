package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/xaenox/graph-chat/internal/conversation"
	"github.com/xaenox/graph-chat/internal/models"
	"github.com/xaenox/graph-chat/internal/query"
	"github.com/xaenox/graph-chat/internal/storage"
	"go.uber.org/zap"
)

const (
	historyLimit = 10
	chatsLimit   = 10
	summaryWidth = 40
)

// sender is the part of *tgbotapi.BotAPI the handlers use.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Bot struct {
	api     *tgbotapi.BotAPI
	sender  sender
	storage storage.Storage
	chats   *conversation.Service
	logger  *zap.Logger

	// locks holds one *sync.Mutex per Telegram user id.
	locks sync.Map
}

func New(token string, storage storage.Storage, chats *conversation.Service, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := newBot(api, storage, chats, logger)
	b.api = api
	logger.Info("Authorized on Telegram", zap.String("account", api.Self.UserName))
	return b, nil
}

func newBot(s sender, storage storage.Storage, chats *conversation.Service, logger *zap.Logger) *Bot {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bot{
		sender:  s,
		storage: storage,
		chats:   chats,
		logger:  logger,
	}
}

// Start polls for updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	if b.api == nil {
		return errors.New("bot has no Telegram client")
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil || update.Message.From == nil {
				continue
			}
			go b.handleMessage(ctx, update.Message)
		}
	}
}

// usernameFor maps a Telegram account to its chat-app user.
func usernameFor(from *tgbotapi.User) string {
	return fmt.Sprintf("tg:%d", from.ID)
}

// ensureUser creates the account on first contact. Telegram users get no
// password, so they cannot log in through the web front end.
func (b *Bot) ensureUser(ctx context.Context, from *tgbotapi.User) (string, error) {
	username := usernameFor(from)
	user, err := b.storage.GetUserByUsername(ctx, username)
	if err != nil {
		return "", err
	}
	if user != nil {
		return username, nil
	}

	if _, err := b.storage.CreateUser(ctx, username, ""); err != nil {
		return "", err
	}
	b.logger.Info("Registered Telegram user",
		zap.String("username", username),
		zap.String("telegram_username", from.UserName))
	return username, nil
}

// currentChat is the user's most recently active chat, or nil.
func (b *Bot) currentChat(ctx context.Context, username string) (*models.Chat, error) {
	chats, err := b.storage.ListUserChats(ctx, username)
	if err != nil || len(chats) == 0 {
		return nil, err
	}
	return chats[0], nil
}

// userLock serializes handling per sender.
func (b *Bot) userLock(id int64) *sync.Mutex {
	mu, _ := b.locks.LoadOrStore(id, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	mu := b.userLock(message.From.ID)
	mu.Lock()
	defer mu.Unlock()

	username, err := b.ensureUser(ctx, message.From)
	if err != nil {
		b.reportError(message.Chat.ID, "Sorry, I couldn't set up your account. Please try again.", err)
		return
	}

	// Handle commands
	if message.IsCommand() {
		b.handleCommand(ctx, username, message)
		return
	}

	content := message.Text
	if message.Caption != "" {
		content = message.Caption
	}
	if strings.TrimSpace(content) == "" {
		return
	}

	chat, err := b.currentChat(ctx, username)
	if err != nil {
		b.reportError(message.Chat.ID, "Sorry, I couldn't load your chats.", err)
		return
	}
	if chat == nil {
		b.startChat(ctx, username, message, content)
		return
	}

	turn, err := b.chats.Send(ctx, chat.ID, content)
	if err != nil {
		b.reportError(message.Chat.ID, "Sorry, I couldn't save your message. Please try again.", err)
		return
	}
	if turn != nil {
		b.sendReply(message.Chat.ID, message.MessageID, turn.Assistant.Content)
	}
}

func (b *Bot) startChat(ctx context.Context, username string, message *tgbotapi.Message, content string) {
	chat, turn, err := b.chats.Start(ctx, username, content)
	if err != nil {
		b.reportError(message.Chat.ID, "Sorry, I couldn't start a new chat. Please try again.", err)
		return
	}
	if chat == nil || turn == nil {
		b.sendMessage(message.Chat.ID, "Usage: /new <message>")
		return
	}
	b.sendReply(message.Chat.ID, message.MessageID, turn.Assistant.Content)
}

func (b *Bot) handleCommand(ctx context.Context, username string, message *tgbotapi.Message) {
	switch message.Command() {
	case "start":
		b.handleStart(message)
	case "help":
		b.handleHelp(message)
	case "new":
		b.startChat(ctx, username, message, message.CommandArguments())
	case "chats":
		b.handleChats(ctx, username, message)
	case "history":
		b.handleHistory(ctx, username, message)
	default:
		b.sendMessage(message.Chat.ID, "Unknown command. Use /help to see available commands.")
	}
}

func (b *Bot) handleStart(message *tgbotapi.Message) {
	welcome := `Welcome to Graph Chat! 💬
Send me a message and I'll answer with the AI assistant.
Everything you write is kept in your chat history.

Use /help to see all available commands.`

	b.sendMessage(message.Chat.ID, welcome)
}

func (b *Bot) handleHelp(message *tgbotapi.Message) {
	help := `Available commands:
/start - Start the bot
/help - Show this help message
/new <message> - Start a new chat
/chats - Show your recent chats
/history - Show the current chat

Plain messages continue your most recent chat.`

	b.sendMessage(message.Chat.ID, help)
}

func (b *Bot) handleChats(ctx context.Context, username string, message *tgbotapi.Message) {
	chats, err := b.storage.ListUserChats(ctx, username)
	if err != nil {
		b.reportError(message.Chat.ID, "Sorry, failed to retrieve your chats. Please try again later.", err)
		return
	}

	if len(chats) == 0 {
		b.sendMessage(message.Chat.ID, "You don't have any chats yet.")
		return
	}

	response := "*Your chats:*\n"
	for i, chat := range chats {
		if i == chatsLimit {
			break
		}
		line := fmt.Sprintf("%s %s", chat.UpdatedAt.Format("2006-01-02 15:04"), truncate(chat.Summary, summaryWidth))
		response += escapeMarkdown(line) + "\n"
	}
	b.sendMarkdown(message.Chat.ID, response)
}

func (b *Bot) handleHistory(ctx context.Context, username string, message *tgbotapi.Message) {
	chat, err := b.currentChat(ctx, username)
	if err != nil {
		b.reportError(message.Chat.ID, "Sorry, I couldn't retrieve your chat history.", err)
		return
	}
	if chat == nil {
		b.sendMessage(message.Chat.ID, "You don't have any messages yet.")
		return
	}

	conv, err := b.storage.GetChat(ctx, chat.ID)
	if err != nil {
		b.reportError(message.Chat.ID, "Sorry, I couldn't retrieve your chat history.", err)
		return
	}
	if conv == nil || len(conv.Messages) == 0 {
		b.sendMessage(message.Chat.ID, "You don't have any messages yet.")
		return
	}

	messages := conv.Messages
	if len(messages) > historyLimit {
		messages = messages[len(messages)-historyLimit:]
	}

	response := "*Your recent messages:*\n\n"
	for _, msg := range messages {
		response += fmt.Sprintf("*%s*\n", escapeMarkdown(string(msg.Role)))
		response += fmt.Sprintf("_%s_\n\n", escapeMarkdown(msg.Content))
	}
	b.sendMarkdown(message.Chat.ID, response)
}

func truncate(text string, width int) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= width {
		return string(runes)
	}
	return string(runes[:width-1]) + "…"
}

// escapeMarkdown escapes text for MarkdownV2. EscapeText leaves backslashes
// alone, so those are doubled first.
func escapeMarkdown(text string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdownV2, strings.ReplaceAll(text, "\\", "\\\\"))
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.sender.Send(msg); err != nil {
		b.logger.Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) sendMarkdown(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	if _, err := b.sender.Send(msg); err != nil {
		b.logger.Error("Failed to send markdown message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) sendReply(chatID int64, replyToID int, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyToMessageID = replyToID
	if _, err := b.sender.Send(msg); err != nil {
		b.logger.Error("Failed to send reply",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

// reportError logs err and tells the user. Malformed statements are shown in
// full so they can be fixed.
func (b *Bot) reportError(chatID int64, text string, err error) {
	b.logger.Error(text, zap.Error(err), zap.Int64("chat_id", chatID))

	var syntaxErr *query.SyntaxError
	if errors.As(err, &syntaxErr) {
		text = syntaxErr.Error()
	}

	msg := tgbotapi.NewMessage(chatID, "⚠️ "+text)
	if _, err := b.sender.Send(msg); err != nil {
		b.logger.Error("Failed to send error message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}
