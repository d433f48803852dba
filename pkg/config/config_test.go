package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv unsets every bound variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, env := range envBindings {
		t.Setenv(env, "")
		os.Unsetenv(env)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "dev-secret-change-me", cfg.Session.Secret)
	assert.Equal(t, 24*time.Hour, cfg.Session.TTL)
	assert.Equal(t, BackendNeo4j, cfg.Database.Backend)
	assert.Equal(t, "neo4j", cfg.Neo4j.Database)
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAI.Model)
	assert.InDelta(t, 0.3, cfg.OpenAI.Temperature, 0.0001)
	assert.Empty(t, cfg.OpenAI.APIKey)
	assert.Empty(t, cfg.Neo4j.URI)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("NEO4J_CONNECTION_URI", "neo4j://localhost:7687")
	t.Setenv("NEO4J_USERNAME", "neo4j")
	t.Setenv("NEO4J_PASSWORD", "secret")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_BASE_URL", "http://localhost:1234/v1/")
	t.Setenv("SESSION_SECRET", "s3cret")
	t.Setenv("HTTP_ADDR", ":9090")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "neo4j://localhost:7687", cfg.Neo4j.URI)
	assert.Equal(t, "neo4j", cfg.Neo4j.Username)
	assert.Equal(t, "secret", cfg.Neo4j.Password)
	assert.Equal(t, "sk-test", cfg.OpenAI.APIKey)
	assert.Equal(t, "http://localhost:1234/v1/", cfg.OpenAI.BaseURL)
	assert.Equal(t, "s3cret", cfg.Session.Secret)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
}

func TestLoadConfigDatabaseURL(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://chat:pw@db.internal:6543/chats?sslmode=require")
	t.Setenv("DATABASE_BACKEND", BackendPostgres)

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, BackendPostgres, cfg.Database.Backend)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, "chat", cfg.Database.User)
	assert.Equal(t, "pw", cfg.Database.Password)
	assert.Equal(t, "chats", cfg.Database.DBName)
	assert.Equal(t, "require", cfg.Database.SSLMode)
}

func TestLoadConfigYAMLFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  backend: memory
neo4j:
  uri: bolt://graph:7687
openai:
  model: gpt-4o
  breaker_failures: 2
`), 0o600))
	t.Setenv("OPENAI_MODEL", "gpt-4.1-mini")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, BackendMemory, cfg.Database.Backend)
	assert.Equal(t, "bolt://graph:7687", cfg.Neo4j.URI)
	assert.Equal(t, 2, cfg.OpenAI.BreakerFailures)
	// Environment wins over the file.
	assert.Equal(t, "gpt-4.1-mini", cfg.OpenAI.Model)
}

func TestLoadConfigDotEnvFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "app.env")
	require.NoError(t, os.WriteFile(path, []byte(
		"NEO4J_CONNECTION_URI=neo4j://from-file:7687\n"+
			"OPENAI_API_KEY=sk-file\n"+
			"SESSION_SECRET=prod-secret\n"+
			"DATABASE_BACKEND=memory\n"+
			"OPENAI_MODEL=gpt-4o\n"+
			"HTTP_ADDR=:7070\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "neo4j://from-file:7687", cfg.Neo4j.URI)
	assert.Equal(t, "sk-file", cfg.OpenAI.APIKey)
	// Keys with defaults are taken from the file too.
	assert.Equal(t, "prod-secret", cfg.Session.Secret)
	assert.Equal(t, BackendMemory, cfg.Database.Backend)
	assert.Equal(t, "gpt-4o", cfg.OpenAI.Model)
	assert.Equal(t, ":7070", cfg.HTTP.Addr)
}

func TestLoadConfigEnvironmentBeatsDotEnvFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "app.env")
	require.NoError(t, os.WriteFile(path, []byte("SESSION_SECRET=file-secret\nHTTP_ADDR=:7070\n"), 0o600))
	t.Setenv("SESSION_SECRET", "env-secret")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "env-secret", cfg.Session.Secret)
	assert.Equal(t, ":7070", cfg.HTTP.Addr)
}

func TestLoadConfigMissingFileIsIgnored(t *testing.T) {
	clearEnv(t)

	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.NoError(t, err)
}

func TestLoadConfigRejectsUnknownBackend(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_BACKEND", "mongo")

	_, err := LoadConfig("")
	assert.ErrorContains(t, err, "unknown database backend")
}

func TestParseDatabaseURL(t *testing.T) {
	cfg, err := parseDatabaseURL("postgres://user@localhost/db")
	require.NoError(t, err)
	assert.Equal(t, 5432, cfg.Port)
	assert.Equal(t, "disable", cfg.SSLMode)

	_, err = parseDatabaseURL("mysql://localhost/db")
	assert.Error(t, err)
}
