package ingestion

import (
	"sync"
	"time"

	httperr "github.com/pulse-analytics/pulse/internal/core/errors"
	"golang.org/x/time/rate"
)

const (
	limiterIdleTTL     = 10 * time.Minute
	limiterSweepAtSize = 10000
)

type siteBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// siteLimiter is a token bucket per site.
type siteLimiter struct {
	mu      sync.Mutex
	perSec  rate.Limit
	burst   int
	buckets map[string]*siteBucket
}

func newSiteLimiter(perSecond float64, burst int) *siteLimiter {
	return &siteLimiter{
		perSec:  rate.Limit(perSecond),
		burst:   burst,
		buckets: make(map[string]*siteBucket),
	}
}

// reserve takes n tokens from each site's bucket. Either every site gets its
// tokens or none are consumed.
func (l *siteLimiter) reserve(counts map[string]int, now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.buckets) >= limiterSweepAtSize {
		l.sweep(now)
	}

	taken := make([]*rate.Reservation, 0, len(counts))
	cancelAll := func() {
		for _, r := range taken {
			r.CancelAt(now)
		}
	}

	for siteID, n := range counts {
		b, ok := l.buckets[siteID]
		if !ok {
			b = &siteBucket{limiter: rate.NewLimiter(l.perSec, l.burst)}
			l.buckets[siteID] = b
		}
		b.lastSeen = now

		r := b.limiter.ReserveN(now, n)
		if !r.OK() {
			cancelAll()
			return &httperr.RateLimitedError{RetryAfter: time.Second}
		}
		if delay := r.DelayFrom(now); delay > 0 {
			r.CancelAt(now)
			cancelAll()
			return &httperr.RateLimitedError{RetryAfter: delay}
		}
		taken = append(taken, r)
	}
	return nil
}

func (l *siteLimiter) sweep(now time.Time) {
	for siteID, b := range l.buckets {
		if now.Sub(b.lastSeen) > limiterIdleTTL {
			delete(l.buckets, siteID)
		}
	}
}
