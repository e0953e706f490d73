package services

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// hostLimiter applies a global rate and a per-host rate derived from the crawl delay
type hostLimiter struct {
	global  *rate.Limiter
	perHost sync.Map // host -> *rate.Limiter
}

func newHostLimiter(globalRate float64) *hostLimiter {
	return &hostLimiter{
		global: rate.NewLimiter(rate.Limit(globalRate), int(globalRate*2)),
	}
}

func (l *hostLimiter) wait(ctx context.Context, host string, delay time.Duration) error {
	if err := l.global.Wait(ctx); err != nil {
		return err
	}
	return l.forHost(host, delay).Wait(ctx)
}

func (l *hostLimiter) forHost(host string, delay time.Duration) *rate.Limiter {
	if limiter, ok := l.perHost.Load(host); ok {
		return limiter.(*rate.Limiter)
	}

	perSecond := 1.0 / delay.Seconds()
	if perSecond > 5 {
		perSecond = 5
	}
	if perSecond < 0.1 {
		perSecond = 0.1
	}

	actual, _ := l.perHost.LoadOrStore(host, rate.NewLimiter(rate.Limit(perSecond), 1))
	return actual.(*rate.Limiter)
}
