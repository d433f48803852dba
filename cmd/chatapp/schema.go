package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/xaenox/graph-chat/internal/graph"
	"go.uber.org/zap"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Create the Neo4j constraints and indexes",
	RunE:  runSchema,
}

func runSchema(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	defer logger.Sync()

	cfg := loadConfig(logger)
	manager := newGraphManager(cfg, logger)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		manager.Close(ctx)
	}()

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()

	if err := graph.NewExecutor(manager, logger).EnsureSchema(ctx); err != nil {
		return err
	}
	logger.Info("Schema applied", zap.Int("statements", len(graph.SchemaStatements)))
	return nil
}
