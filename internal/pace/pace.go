// Package pace keeps a minimum pause between the end of one outbound call
// and the start of the next.
package pace

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Gap is not safe for concurrent use.
type Gap struct {
	every time.Duration
	lim   *rate.Limiter
}

// New returns a Gap of d. A zero or negative d never blocks.
func New(d time.Duration) *Gap {
	return &Gap{every: d}
}

// Wait blocks until d has passed since the last Done, or ctx ends.
func (g *Gap) Wait(ctx context.Context) error {
	if g.lim == nil {
		return ctx.Err()
	}
	return g.lim.Wait(ctx)
}

// Done marks the end of a call. The limiter is refilled from now, so a
// slow call still gets the full pause after it.
func (g *Gap) Done() {
	if g.every <= 0 {
		return
	}
	g.lim = rate.NewLimiter(rate.Every(g.every), 1)
	g.lim.Allow()
}
