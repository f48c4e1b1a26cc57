// Package throttle bounds calls to a shared remote service.
package throttle

import (
	"context"
	"math"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Gate combines a token-bucket rate limit with a cap on in-flight calls.
// A zero rps or maxInFlight disables that half.
type Gate struct {
	limiter *rate.Limiter
	sem     *semaphore.Weighted
}

func NewGate(rps float64, maxInFlight int64) *Gate {
	g := &Gate{}
	if rps > 0 {
		burst := int(math.Ceil(rps))
		g.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	if maxInFlight > 0 {
		g.sem = semaphore.NewWeighted(maxInFlight)
	}
	return g
}

// Acquire blocks until a slot and a rate token are available. The returned
// release must be called once the call has finished.
func (g *Gate) Acquire(ctx context.Context) (release func(), err error) {
	if g == nil {
		return func() {}, nil
	}
	if g.sem != nil {
		if err := g.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
	}
	release = func() {
		if g.sem != nil {
			g.sem.Release(1)
		}
	}
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			release()
			return nil, err
		}
	}
	return release, nil
}
