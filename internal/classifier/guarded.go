package classifier

import (
	"context"
	"errors"
	"time"

	"github.com/mrihtar/grobid-dictionaries/pkg/config"
	apperrors "github.com/mrihtar/grobid-dictionaries/pkg/errors"
	"github.com/mrihtar/grobid-dictionaries/pkg/metrics"
	"github.com/mrihtar/grobid-dictionaries/pkg/resilience"
)

// Guarded bounds every call with a timeout, trips a circuit breaker after
// repeated failures and reports every failure as a ClassifierFailure.
// Calls are not retried.
type Guarded struct {
	next    Classifier
	model   string
	timeout time.Duration
	breaker *resilience.CircuitBreaker
	metrics *metrics.Metrics
}

func NewGuarded(next Classifier, model string, cfg config.ClassifierConfig, m *metrics.Metrics) *Guarded {
	breaker := resilience.NewCircuitBreaker(model, resilience.CircuitBreakerConfig{
		FailureThreshold: cfg.FailureThreshold,
		ResetTimeout:     cfg.ResetTimeout,
		OnStateChange: func(name string, _, to resilience.State) {
			m.SetBreakerState(name, int(to))
		},
	})
	m.SetBreakerState(model, int(resilience.StateClosed))
	return &Guarded{
		next:    next,
		model:   model,
		timeout: cfg.Timeout,
		breaker: breaker,
		metrics: m,
	}
}

func (g *Guarded) Label(ctx context.Context, features string) (string, error) {
	var out string
	start := time.Now()
	err := g.breaker.Execute(func() error {
		return resilience.WithTimeout(ctx, g.timeout, g.model, func(ctx context.Context) error {
			var err error
			out, err = g.next.Label(ctx, features)
			return err
		})
	})
	g.metrics.ObserveClassifierCall(g.model, time.Since(start), err)
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return "", err
		}
		return "", apperrors.ClassifierFailure("%s: %v", g.model, err)
	}
	return out, nil
}

// State exposes the breaker state for readiness checks.
func (g *Guarded) State() resilience.State {
	return g.breaker.GetState()
}
