package assistant

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Replies persisted in place of a model answer when the AI call cannot succeed.
const (
	ReplyMissingKey      = "[AI unavailable: missing OPENAI_API_KEY]"
	ReplyConnectionError = "[AI unavailable: connection error to OpenAI API]"
	ReplyCircuitOpen     = "[AI unavailable: too many recent failures]"
	ReplyEmptyResponse   = "[AI error: empty response]"
)

const (
	DefaultModel        = openai.GPT4oMini
	DefaultSystemPrompt = "You are a helpful assistant."
	DefaultTemperature  = 0.3
)

// Reply is an assistant answer. ContinuationID identifies the remote
// conversation to resume on the next call and is empty when the backend keeps
// no remote state.
type Reply struct {
	Content        string
	ContinuationID string
}

// Backend produces one reply. previousID is the ContinuationID of an earlier
// reply in the same chat, or empty.
type Backend interface {
	Complete(ctx context.Context, prompt, previousID string) (Reply, error)
}

type Config struct {
	APIKey  string
	BaseURL string
	// AssistantID selects the Assistants API backend when set.
	AssistantID  string
	Model        string
	Temperature  float64
	MaxTokens    int
	SystemPrompt string
	PollInterval time.Duration
	RunTimeout   time.Duration
	// BreakerFailures is the number of consecutive failures that opens the
	// circuit. Zero disables the breaker.
	BreakerFailures int
	BreakerCooldown time.Duration
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.SystemPrompt == "" {
		c.SystemPrompt = DefaultSystemPrompt
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = 60 * time.Second
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = 30 * time.Second
	}
	return c
}

// openAIConfig builds the go-openai client config. A trailing slash on the
// base URL is dropped.
func (c Config) openAIConfig() openai.ClientConfig {
	oc := openai.DefaultConfig(c.APIKey)
	if base := strings.TrimRight(c.BaseURL, "/"); base != "" {
		oc.BaseURL = base
	}
	return oc
}

// Client turns backend results into persistable replies. Generate never fails;
// errors become bracketed placeholder text.
type Client struct {
	backend Backend
	logger  *zap.Logger
}

// NewClient picks a backend from cfg. Without an API key the client is still
// usable and answers every prompt with ReplyMissingKey.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.APIKey == "" {
		logger.Warn("OPENAI_API_KEY not set, AI replies disabled")
		return &Client{logger: logger}
	}

	cfg = cfg.withDefaults()
	api := openai.NewClientWithConfig(cfg.openAIConfig())

	var backend Backend
	if cfg.AssistantID != "" {
		backend = NewThreadBackend(api, cfg, logger)
		logger.Info("Using OpenAI Assistants API", zap.String("assistant_id", cfg.AssistantID))
	} else {
		backend = NewCompletionBackend(api, cfg, logger)
		logger.Info("Using OpenAI chat completions", zap.String("model", cfg.Model))
	}

	if cfg.BreakerFailures > 0 {
		backend = NewBreakerBackend(backend, "openai", uint32(cfg.BreakerFailures), cfg.BreakerCooldown, logger)
	}
	return NewClientWithBackend(backend, logger)
}

// NewClientWithBackend wraps an explicit backend. A nil backend behaves like a
// missing API key.
func NewClientWithBackend(backend Backend, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{backend: backend, logger: logger}
}

// Enabled reports whether replies come from a model.
func (c *Client) Enabled() bool {
	return c.backend != nil
}

func (c *Client) Generate(ctx context.Context, prompt, previousID string) Reply {
	if c.backend == nil {
		return Reply{Content: ReplyMissingKey}
	}

	reply, err := c.backend.Complete(ctx, prompt, previousID)
	if err != nil {
		c.logger.Error("Failed to get AI response",
			zap.Error(err),
			zap.Bool("continued", previousID != ""))
		return Reply{Content: describeError(err)}
	}

	if strings.TrimSpace(reply.Content) == "" {
		c.logger.Warn("AI returned an empty response")
		return Reply{Content: ReplyEmptyResponse, ContinuationID: reply.ContinuationID}
	}
	return reply
}

// RunError reports an Assistants API run that ended without completing.
type RunError struct {
	Status  openai.RunStatus
	Message string
}

func (e *RunError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("assistant run %s: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("assistant run %s", e.Status)
}

func describeError(err error) string {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ReplyCircuitOpen
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Sprintf("[AI error: %s]", statusErrorName(apiErr.HTTPStatusCode))
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Sprintf("[AI error: %s]", statusErrorName(reqErr.HTTPStatusCode))
	}
	var runErr *RunError
	if errors.As(err, &runErr) {
		return fmt.Sprintf("[AI error: RunStatus %s]", runErr.Status)
	}

	if isConnectionError(err) {
		return ReplyConnectionError
	}
	return "[AI error: OpenAIError]"
}

func isConnectionError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// statusErrorName names an HTTP failure the way OpenAI client libraries
// classify it.
func statusErrorName(status int) string {
	switch {
	case status == 400:
		return "BadRequestError"
	case status == 401:
		return "AuthenticationError"
	case status == 403:
		return "PermissionDeniedError"
	case status == 404:
		return "NotFoundError"
	case status == 409:
		return "ConflictError"
	case status == 422:
		return "UnprocessableEntityError"
	case status == 429:
		return "RateLimitError"
	case status >= 500:
		return "InternalServerError"
	default:
		return "APIStatusError"
	}
}
