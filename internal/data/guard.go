package data

import (
	"context"
	"fmt"
	"time"

	cb "github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/xsect/alphabench/internal/panel"
)

// GuardedProvider decorates a Provider with a token-bucket rate limit and a
// circuit breaker so a misbehaving upstream aborts the run instead of being
// hammered.
type GuardedProvider struct {
	inner   Provider
	limiter *rate.Limiter
	breaker *cb.CircuitBreaker
}

// NewGuardedProvider wraps inner with the given requests-per-second budget.
func NewGuardedProvider(inner Provider, rps float64, burst int) *GuardedProvider {
	st := cb.Settings{Name: "price-provider"}
	st.Interval = 60 * time.Second
	st.Timeout = 60 * time.Second
	st.ReadyToTrip = func(counts cb.Counts) bool {
		if counts.ConsecutiveFailures >= 3 {
			return true
		}
		if counts.Requests < 20 {
			return false
		}
		return float64(counts.TotalFailures)/float64(counts.Requests) > 0.05
	}

	return &GuardedProvider{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		breaker: cb.NewCircuitBreaker(st),
	}
}

func (p *GuardedProvider) Prices(ctx context.Context, universe []string, start, end time.Time) (panel.Table, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("price provider rate limit: %w", err)
	}

	result, err := p.breaker.Execute(func() (interface{}, error) {
		return p.inner.Prices(ctx, universe, start, end)
	})
	if err != nil {
		return nil, fmt.Errorf("price provider: %w", err)
	}
	return result.(panel.Table), nil
}
