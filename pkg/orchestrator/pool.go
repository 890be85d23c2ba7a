package orchestrator

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"watch-harvest/pkg/models"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Pool launches work in queue order, never more than Concurrency at a time.
// Consecutive launches are at least Delay apart plus up to Jitter extra.
type Pool struct {
	Concurrency int
	Delay       time.Duration
	Jitter      time.Duration
}

func NewPool(concurrency int, delay, jitter time.Duration) *Pool {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pool{Concurrency: concurrency, Delay: delay, Jitter: jitter}
}

// interval picks the spacing before the next launch.
func (p *Pool) interval() time.Duration {
	d := p.Delay
	if p.Jitter > 0 {
		d += rand.N(p.Jitter + 1)
	}
	return d
}

// limiter starts with one token so the first launch is immediate.
func (p *Pool) limiter() *rate.Limiter {
	if p.Delay <= 0 && p.Jitter <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(p.interval()), 1)
}

// Run blocks until every launched job has returned. Cancelling ctx stops
// further launches; running jobs see the cancelled context.
func (p *Pool) Run(ctx context.Context, entries []models.CrawlQueueEntry, work func(ctx context.Context, e models.CrawlQueueEntry)) error {
	sem := semaphore.NewWeighted(int64(p.Concurrency))
	lim := p.limiter()
	var wg sync.WaitGroup
	var err error

	for _, e := range entries {
		if err = sem.Acquire(ctx, 1); err != nil {
			break
		}
		if err = lim.Wait(ctx); err != nil {
			sem.Release(1)
			break
		}
		// re-drawn after every launch so the spacing varies
		if p.Jitter > 0 {
			lim.SetLimit(rate.Every(p.interval()))
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			work(ctx, e)
		}()
	}
	wg.Wait()
	return err
}
