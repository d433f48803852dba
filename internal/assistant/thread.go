package assistant

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// ThreadBackend answers through the Assistants API. The thread id is the
// continuation id: a reply resumes the thread named by previousID, or opens a
// new one when previousID is empty.
type ThreadBackend struct {
	client       *openai.Client
	assistantID  string
	pollInterval time.Duration
	runTimeout   time.Duration
	logger       *zap.Logger
}

func NewThreadBackend(client *openai.Client, cfg Config, logger *zap.Logger) *ThreadBackend {
	cfg = cfg.withDefaults()
	return &ThreadBackend{
		client:       client,
		assistantID:  cfg.AssistantID,
		pollInterval: cfg.PollInterval,
		runTimeout:   cfg.RunTimeout,
		logger:       logger,
	}
}

func (b *ThreadBackend) Complete(ctx context.Context, prompt, previousID string) (Reply, error) {
	threadID := previousID
	if threadID == "" {
		thread, err := b.client.CreateThread(ctx, openai.ThreadRequest{})
		if err != nil {
			return Reply{}, fmt.Errorf("error creating thread: %w", err)
		}
		threadID = thread.ID
		b.logger.Debug("Created assistant thread", zap.String("thread_id", threadID))
	}

	if _, err := b.client.CreateMessage(ctx, threadID, openai.MessageRequest{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	}); err != nil {
		return Reply{}, fmt.Errorf("error adding message to thread: %w", err)
	}

	run, err := b.client.CreateRun(ctx, threadID, openai.RunRequest{AssistantID: b.assistantID})
	if err != nil {
		return Reply{}, fmt.Errorf("error starting run: %w", err)
	}

	run, err = b.waitForRun(ctx, threadID, run)
	if err != nil {
		return Reply{}, err
	}
	if run.Status != openai.RunStatusCompleted {
		runErr := &RunError{Status: run.Status}
		if run.LastError != nil {
			runErr.Message = run.LastError.Message
		}
		return Reply{}, runErr
	}

	order := "desc"
	list, err := b.client.ListMessage(ctx, threadID, nil, &order, nil, nil, &run.ID)
	if err != nil {
		return Reply{}, fmt.Errorf("error listing run messages: %w", err)
	}

	return Reply{Content: latestAssistantText(list), ContinuationID: threadID}, nil
}

// waitForRun polls until the run leaves the queued and in-progress states.
func (b *ThreadBackend) waitForRun(ctx context.Context, threadID string, run openai.Run) (openai.Run, error) {
	ctx, cancel := context.WithTimeout(ctx, b.runTimeout)
	defer cancel()

	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	for isPending(run.Status) {
		select {
		case <-ctx.Done():
			return run, fmt.Errorf("waiting for run %s: %w", run.ID, ctx.Err())
		case <-ticker.C:
		}

		var err error
		run, err = b.client.RetrieveRun(ctx, threadID, run.ID)
		if err != nil {
			return run, fmt.Errorf("error retrieving run: %w", err)
		}
	}
	return run, nil
}

func isPending(status openai.RunStatus) bool {
	switch status {
	case openai.RunStatusQueued, openai.RunStatusInProgress, openai.RunStatusCancelling:
		return true
	}
	return false
}

// latestAssistantText joins the text parts of the newest assistant message.
func latestAssistantText(list openai.MessagesList) string {
	for _, msg := range list.Messages {
		if msg.Role != openai.ChatMessageRoleAssistant {
			continue
		}
		var parts []string
		for _, content := range msg.Content {
			if content.Text != nil && content.Text.Value != "" {
				parts = append(parts, content.Text.Value)
			}
		}
		return strings.TrimSpace(strings.Join(parts, "\n"))
	}
	return ""
}
