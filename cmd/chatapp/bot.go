package main

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/xaenox/graph-chat/internal/bot"
	"go.uber.org/zap"
)

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Run the Telegram bot",
	RunE:  runBot,
}

func runBot(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	defer logger.Sync()

	cfg := loadConfig(logger)
	if cfg.Telegram.Token == "" {
		return errors.New("TELEGRAM_TOKEN not set")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := newStorage(ctx, cfg, logger)
	defer store.Close()

	// Initialize bot
	b, err := bot.New(cfg.Telegram.Token, store, newConversationService(store, cfg, logger), logger)
	if err != nil {
		logger.Fatal("Failed to create bot", zap.Error(err))
	}

	// Start the bot
	return b.Start(ctx)
}
