// Package graph talks to the Neo4j graph store: it owns the shared driver,
// runs statements in scoped sessions and decodes the records they return.
package graph

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/xaenox/graph-chat/internal/query"
	"go.uber.org/zap"
)

var (
	ErrMissingURI         = errors.New("NEO4J_CONNECTION_URI not set")
	ErrMissingCredentials = errors.New("NEO4J_USERNAME and NEO4J_PASSWORD not set")
)

// Config holds Neo4j connection settings
type Config struct {
	URI                   string
	Username              string
	Password              string
	Database              string
	MaxConnectionPoolSize int
	ConnectionTimeout     time.Duration
}

// Validate checks the settings that must be present before serving requests.
func (c Config) Validate() error {
	if c.URI == "" {
		return ErrMissingURI
	}
	if c.Username == "" || c.Password == "" {
		return ErrMissingCredentials
	}
	return nil
}

// Manager lazily creates the process-wide driver and hands out sessions on it.
type Manager struct {
	cfg    Config
	logger *zap.Logger

	once   sync.Once
	mu     sync.Mutex
	driver neo4j.DriverWithContext
	err    error
}

// NewManager validates cfg. The driver itself is built on first use.
func NewManager(cfg Config, logger *zap.Logger) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Database == "" {
		cfg.Database = "neo4j"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Manager{cfg: cfg, logger: logger}, nil
}

// Driver returns the shared driver, creating it on the first call.
func (m *Manager) Driver() (neo4j.DriverWithContext, error) {
	m.once.Do(func() {
		driver, err := neo4j.NewDriverWithContext(
			m.cfg.URI,
			neo4j.BasicAuth(m.cfg.Username, m.cfg.Password, ""),
			func(c *neo4j.Config) {
				if m.cfg.MaxConnectionPoolSize > 0 {
					c.MaxConnectionPoolSize = m.cfg.MaxConnectionPoolSize
				}
				if m.cfg.ConnectionTimeout > 0 {
					c.ConnectionAcquisitionTimeout = m.cfg.ConnectionTimeout
				}
			},
		)

		m.mu.Lock()
		defer m.mu.Unlock()
		if err != nil {
			m.err = fmt.Errorf("failed to create neo4j driver: %w", err)
			return
		}
		m.driver = driver
		m.logger.Info("Created neo4j driver",
			zap.String("uri", m.cfg.URI),
			zap.String("database", m.cfg.Database))
	})

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.driver, m.err
}

// NewSession opens a session scoped to a single statement.
func (m *Manager) NewSession(ctx context.Context, mode query.AccessMode) (Session, error) {
	driver, err := m.Driver()
	if err != nil {
		return nil, err
	}

	accessMode := neo4j.AccessModeRead
	if mode == query.Write {
		accessMode = neo4j.AccessModeWrite
	}

	session := driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: m.cfg.Database,
		AccessMode:   accessMode,
	})
	return &driverSession{session: session}, nil
}

// VerifyConnectivity checks that the database answers.
func (m *Manager) VerifyConnectivity(ctx context.Context) error {
	driver, err := m.Driver()
	if err != nil {
		return err
	}
	return driver.VerifyConnectivity(ctx)
}

// Close releases the driver if it was ever created.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.driver == nil {
		return nil
	}
	return m.driver.Close(ctx)
}
