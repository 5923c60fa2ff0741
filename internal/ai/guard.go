package ai

import (
	"context"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// guarded wraps a Completer with a circuit breaker and a rate limiter so a
// degraded provider sheds load quickly instead of queueing timeouts.
type guarded struct {
	inner   Completer
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

// Guard wraps c with the shared provider protections.
func Guard(c Completer, name string, rps float64, log *slog.Logger) Completer {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("completion breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	limiter := rate.NewLimiter(rate.Inf, 1)
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), int(rps)+1)
	}
	return &guarded{inner: c, breaker: breaker, limiter: limiter}
}

func (g *guarded) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", err
	}
	out, err := g.breaker.Execute(func() (interface{}, error) {
		return g.inner.Complete(ctx, prompt, maxTokens)
	})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}
