package assistant

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerBackend wraps a Backend with circuit breaking logic
type BreakerBackend struct {
	backend Backend
	cb      *gobreaker.CircuitBreaker
}

// NewBreakerBackend opens the circuit after maxFailures consecutive failures
// and probes again once cooldown has passed.
func NewBreakerBackend(backend Backend, name string, maxFailures uint32, cooldown time.Duration, logger *zap.Logger) *BreakerBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		// A caller giving up is not a backend failure.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	}

	return &BreakerBackend{
		backend: backend,
		cb:      gobreaker.NewCircuitBreaker(st),
	}
}

func (b *BreakerBackend) Complete(ctx context.Context, prompt, previousID string) (Reply, error) {
	resp, err := b.cb.Execute(func() (interface{}, error) {
		return b.backend.Complete(ctx, prompt, previousID)
	})
	if err != nil {
		return Reply{}, err
	}
	return resp.(Reply), nil
}

// State exposes the breaker state for health reporting.
func (b *BreakerBackend) State() gobreaker.State {
	return b.cb.State()
}
