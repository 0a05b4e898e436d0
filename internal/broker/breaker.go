package broker

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/sony/gobreaker"
)

// CircuitBreakerSource wraps a QuoteSource with circuit breaker
// functionality so a flapping market-data provider fails fast instead of
// stalling every settlement run.
type CircuitBreakerSource struct {
	source  QuoteSource
	breaker *gobreaker.CircuitBreaker
}

// Ensure CircuitBreakerSource implements QuoteSource at compile time.
var _ QuoteSource = (*CircuitBreakerSource)(nil)

// CircuitBreakerSettings configures circuit breaker behavior
type CircuitBreakerSettings struct {
	MaxRequests  uint32        // Max requests when half-open
	Interval     time.Duration // Reset counts interval
	Timeout      time.Duration // Open circuit duration
	MinRequests  uint32        // Min requests before tripping
	FailureRatio float64       // Failure ratio threshold
}

// NewCircuitBreakerSource creates a CircuitBreakerSource with sensible defaults.
func NewCircuitBreakerSource(source QuoteSource) *CircuitBreakerSource {
	return NewCircuitBreakerSourceWithSettings(source, CircuitBreakerSettings{
		MaxRequests:  3,                // Allow 3 requests when half-open
		Interval:     60 * time.Second, // Reset counts every minute
		Timeout:      30 * time.Second, // Open circuit for 30 seconds
		MinRequests:  5,                // Minimum requests before tripping
		FailureRatio: 0.6,              // Trip if 60% failure rate
	})
}

// NewCircuitBreakerSourceWithSettings creates a CircuitBreakerSource with custom settings.
func NewCircuitBreakerSourceWithSettings(source QuoteSource, settings CircuitBreakerSettings) *CircuitBreakerSource {
	gbSettings := gobreaker.Settings{
		Name:        "QuoteSourceCircuitBreaker",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %s state changed from %s to %s", name, from, to)
		},
	}

	return &CircuitBreakerSource{
		source:  source,
		breaker: gobreaker.NewCircuitBreaker(gbSettings),
	}
}

// GetQuote wraps the underlying quote call with the circuit breaker.
func (c *CircuitBreakerSource) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.source.GetQuote(ctx, symbol)
	})
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, nil
	}
	q, ok := res.(*Quote)
	if !ok {
		return nil, errors.New("circuit breaker: type assertion failed")
	}
	return q, nil
}
