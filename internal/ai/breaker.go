package ai

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
)

type BreakerConfig struct {
	MinRequests  uint32
	FailureRatio float64
	OpenTimeout  time.Duration
}

func (c BreakerConfig) normalize() BreakerConfig {
	out := c
	if out.MinRequests == 0 {
		out.MinRequests = 10
	}
	if out.FailureRatio <= 0 || out.FailureRatio > 1 {
		out.FailureRatio = 0.5
	}
	if out.OpenTimeout <= 0 {
		out.OpenTimeout = 30 * time.Second
	}
	return out
}

// Breaker fails completion calls fast while the provider keeps failing. It
// never retries a call.
type Breaker struct {
	cb *gobreaker.CircuitBreaker[string]
}

func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	cfg = cfg.normalize()
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Warn("circuit_breaker_state_change", "operation", name, "from", from.String(), "to", to.String())
		},
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker[string](settings)}
}

func (b *Breaker) Execute(fn func() (string, error)) (string, error) {
	out, err := b.cb.Execute(fn)
	if IsCircuitOpen(err) {
		return "", &UpstreamError{Kind: ErrUpstreamCall, Cause: err}
	}
	return out, err
}

func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
