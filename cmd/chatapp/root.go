package main

import (
	"github.com/spf13/cobra"
	"github.com/xaenox/graph-chat/pkg/config"
	"go.uber.org/zap"
)

var (
	cfgFile string
	debug   bool

	rootCmd = &cobra.Command{
		Use:   "chatapp",
		Short: "Graph Chat: chat with an AI assistant, history kept in Neo4j",
		Long: `Graph Chat stores users, chats and messages in a graph database and
answers every message with an OpenAI model. It can be served over HTTP or as a
Telegram bot.`,
		SilenceUsage: true,
	}
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or .env)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable development logging")

	rootCmd.AddCommand(serveCmd, botCmd, schemaCmd)
}

func newLogger() *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// loadConfig loads settings or stops the process.
func loadConfig(logger *zap.Logger) *config.Config {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err), zap.String("path", cfgFile))
	}
	return cfg
}
