package embedding

import (
	"context"
	"errors"
	"log/slog"

	"github.com/kozaktomas/photo-people/internal/apperr"
	"github.com/kozaktomas/photo-people/internal/config"
	"github.com/sony/gobreaker"
)

// BreakerEmbedder stops calling a failing provider for a while. Every failure,
// including an open breaker, surfaces as apperr.Unavailable.
type BreakerEmbedder struct {
	inner Embedder
	cb    *gobreaker.CircuitBreaker
}

func NewBreakerEmbedder(inner Embedder, cfg config.BreakerConfig) *BreakerEmbedder {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	st := gobreaker.Settings{
		Name:        "embedding-" + inner.ModelName(),
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		// Cancelled searches say nothing about provider health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("embedding circuit breaker changed state", "name", name, "from", from.String(), "to", to.String())
		},
	}
	return &BreakerEmbedder{inner: inner, cb: gobreaker.NewCircuitBreaker(st)}
}

func (b *BreakerEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	const op = "embedding.EmbedText"
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.EmbedText(ctx, text)
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, op, err)
	}
	return res.([]float32), nil
}

func (b *BreakerEmbedder) ModelName() string {
	return b.inner.ModelName()
}

// State reports the breaker state, e.g. "closed" or "open".
func (b *BreakerEmbedder) State() string {
	return b.cb.State().String()
}
