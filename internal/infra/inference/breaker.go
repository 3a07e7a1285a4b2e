package inference

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
)

// BreakerSettings configures the per-endpoint circuit breakers.
type BreakerSettings struct {
	Enabled      bool
	MinRequests  uint32
	FailureRatio float64
	OpenTimeout  time.Duration
	HalfOpenMax  uint32
}

type breaker struct {
	cb *gobreaker.CircuitBreaker[any]
}

func newBreaker(name string, s BreakerSettings, logger *slog.Logger) *breaker {
	if !s.Enabled {
		return &breaker{}
	}
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: s.HalfOpenMax,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < s.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= s.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "endpoint", name, "from", from.String(), "to", to.String())
		},
	}
	return &breaker{cb: gobreaker.NewCircuitBreaker[any](settings)}
}

func (b *breaker) do(fn func() error) error {
	if b.cb == nil {
		return fn()
	}
	_, err := b.cb.Execute(func() (any, error) {
		return nil, fn()
	})
	return err
}

// IsCircuitOpen reports whether err was produced by an open breaker.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
