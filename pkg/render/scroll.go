package render

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// Scrollable is a page that can be scrolled and that reports how many links
// have been collected so far.
type Scrollable interface {
	ScrollStep(ctx context.Context) error
	LinkCount(ctx context.Context) (int, error)
}

// ScrollExhaust scrolls until LinkCount is unchanged for stableTicks
// consecutive iterations or maxIterations is reached, waiting tick between
// steps. It returns the number of iterations run. Step errors are logged and
// count as an unchanged iteration.
func ScrollExhaust(ctx context.Context, page Scrollable, maxIterations, stableTicks int, tick time.Duration) int {
	if stableTicks < 1 {
		stableTicks = 1
	}
	last, err := page.LinkCount(ctx)
	if err != nil {
		log.Debugf("initial link count failed: %v", err)
	}

	stable := 0
	iter := 0
	for iter < maxIterations && stable < stableTicks {
		iter++
		if err := page.ScrollStep(ctx); err != nil {
			log.Debugf("scroll iteration %d failed: %v", iter, err)
		}
		if err := sleep(ctx, tick); err != nil {
			return iter
		}
		n, err := page.LinkCount(ctx)
		if err != nil {
			log.Debugf("link count after iteration %d failed: %v", iter, err)
			n = last
		}
		if n == last {
			stable++
		} else {
			stable = 0
			last = n
		}
	}
	return iter
}
