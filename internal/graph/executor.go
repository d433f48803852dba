package graph

import (
	"context"
	"errors"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/xaenox/graph-chat/internal/query"
	"go.uber.org/zap"
)

// Session runs statements against one scoped database session.
type Session interface {
	Execute(ctx context.Context, stmt query.Statement) ([]*neo4j.Record, error)
	Close(ctx context.Context) error
}

// SessionFactory opens scoped sessions. *Manager is the production implementation.
type SessionFactory interface {
	NewSession(ctx context.Context, mode query.AccessMode) (Session, error)
}

type driverSession struct {
	session neo4j.SessionWithContext
}

// Execute runs stmt in a managed transaction and drains the result before
// returning: records are unusable once the session is closed.
func (s *driverSession) Execute(ctx context.Context, stmt query.Statement) ([]*neo4j.Record, error) {
	work := func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, stmt.Text, stmt.Params)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	}

	var (
		result any
		err    error
	)
	if stmt.Mode == query.Write {
		result, err = s.session.ExecuteWrite(ctx, work)
	} else {
		result, err = s.session.ExecuteRead(ctx, work)
	}
	if err != nil {
		return nil, err
	}

	records, _ := result.([]*neo4j.Record)
	return records, nil
}

func (s *driverSession) Close(ctx context.Context) error {
	return s.session.Close(ctx)
}

// Executor runs one statement per session and translates syntax errors.
type Executor struct {
	sessions SessionFactory
	logger   *zap.Logger
}

func NewExecutor(sessions SessionFactory, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{sessions: sessions, logger: logger}
}

// Run executes stmt and returns every record. An empty result is an empty slice.
func (e *Executor) Run(ctx context.Context, stmt query.Statement) ([]*neo4j.Record, error) {
	session, err := e.sessions.NewSession(ctx, stmt.Mode)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := session.Close(ctx); err != nil {
			e.logger.Warn("Failed to close session",
				zap.Error(err),
				zap.String("statement", stmt.Name))
		}
	}()

	records, err := session.Execute(ctx, stmt)
	if err != nil {
		err = translateError(stmt, err)
		e.logger.Debug("Statement failed",
			zap.Error(err),
			zap.String("statement", stmt.Name),
			zap.Stringer("mode", stmt.Mode))
		return nil, err
	}

	if records == nil {
		records = []*neo4j.Record{}
	}
	return records, nil
}

// RunOne executes stmt and returns its first record, or nil when there is none.
// Further records are ignored.
func (e *Executor) RunOne(ctx context.Context, stmt query.Statement) (*neo4j.Record, error) {
	records, err := e.Run(ctx, stmt)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

// translateError turns Neo4j syntax failures into *query.SyntaxError and
// returns every other error untouched.
func translateError(stmt query.Statement, err error) error {
	var neoErr *neo4j.Neo4jError
	if !errors.As(err, &neoErr) {
		return err
	}

	if strings.Contains(neoErr.Code, "SyntaxError") || strings.Contains(strings.ToLower(neoErr.Msg), "syntax") {
		return query.NewSyntaxError(stmt.Text, neoErr.Code, neoErr.Msg, err)
	}
	return err
}
