package main

import (
	"context"
	"time"

	"github.com/xaenox/graph-chat/internal/assistant"
	"github.com/xaenox/graph-chat/internal/conversation"
	"github.com/xaenox/graph-chat/internal/graph"
	"github.com/xaenox/graph-chat/internal/storage"
	"github.com/xaenox/graph-chat/pkg/config"
	"go.uber.org/zap"
)

func graphConfig(cfg *config.Config) graph.Config {
	return graph.Config{
		URI:                   cfg.Neo4j.URI,
		Username:              cfg.Neo4j.Username,
		Password:              cfg.Neo4j.Password,
		Database:              cfg.Neo4j.Database,
		MaxConnectionPoolSize: cfg.Neo4j.MaxConnectionPoolSize,
		ConnectionTimeout:     cfg.Neo4j.ConnectionTimeout,
	}
}

// newGraphManager fails the process when the Neo4j settings are incomplete.
func newGraphManager(cfg *config.Config, logger *zap.Logger) *graph.Manager {
	manager, err := graph.NewManager(graphConfig(cfg), logger)
	if err != nil {
		logger.Fatal("Invalid Neo4j configuration", zap.Error(err))
	}
	return manager
}

// newStorage builds the configured backend.
func newStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger) storage.Storage {
	switch cfg.Database.Backend {
	case config.BackendMemory:
		logger.Info("Using in-memory storage")
		return storage.NewMemoryStorage()

	case config.BackendPostgres:
		logger.Info("Using PostgreSQL storage")
		dbConfig := storage.DatabaseConfig{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
		}
		store, err := storage.NewPostgresStorage(dbConfig, logger)
		if err != nil {
			logger.Fatal("Failed to initialize storage", zap.Error(err))
		}
		return store

	default:
		logger.Info("Using Neo4j storage")
		manager := newGraphManager(cfg, logger)
		executor := graph.NewExecutor(manager, logger)
		if err := manager.VerifyConnectivity(ctx); err != nil {
			logger.Warn("Neo4j not reachable yet, schema not applied", zap.Error(err))
		} else if err := executor.EnsureSchema(ctx); err != nil {
			logger.Fatal("Failed to apply Neo4j schema", zap.Error(err))
		}
		return storage.NewGraphStorage(executor, func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return manager.Close(ctx)
		}, logger)
	}
}

func newAssistant(cfg *config.Config, logger *zap.Logger) *assistant.Client {
	return assistant.NewClient(assistant.Config{
		APIKey:          cfg.OpenAI.APIKey,
		BaseURL:         cfg.OpenAI.BaseURL,
		AssistantID:     cfg.OpenAI.AssistantID,
		Model:           cfg.OpenAI.Model,
		MaxTokens:       cfg.OpenAI.MaxTokens,
		Temperature:     cfg.OpenAI.Temperature,
		BreakerFailures: cfg.OpenAI.BreakerFailures,
		BreakerCooldown: cfg.OpenAI.BreakerCooldown,
	}, logger)
}

func newConversationService(store storage.Storage, cfg *config.Config, logger *zap.Logger) *conversation.Service {
	return conversation.NewService(store, newAssistant(cfg, logger), logger)
}
