package graph

import (
	"context"
	"fmt"

	"github.com/xaenox/graph-chat/internal/query"
	"go.uber.org/zap"
)

// EnsureSchema applies SchemaStatements. Each statement is idempotent.
func (e *Executor) EnsureSchema(ctx context.Context) error {
	for i, text := range SchemaStatements {
		stmt := query.New(fmt.Sprintf("schema_%d", i), text, query.Write, nil)
		if _, err := e.Run(ctx, stmt); err != nil {
			return fmt.Errorf("applying schema statement %q: %w", text, err)
		}
		e.logger.Debug("Applied schema statement", zap.String("statement", text))
	}
	return nil
}
