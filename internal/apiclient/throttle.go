package apiclient

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter paces outbound requests per key (one key per endpoint).
type Limiter interface {
	Wait(ctx context.Context, key string) error
}

type endpointBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Throttle keeps one token bucket per endpoint and forgets buckets idle for longer than ttl.
type Throttle struct {
	mu      sync.Mutex
	buckets map[string]*endpointBucket
	limit   rate.Limit
	burst   int
	ttl     time.Duration
	now     func() time.Time
}

// NewThrottle allows perSecond requests per endpoint with the given burst.
func NewThrottle(perSecond float64, burst int, ttl time.Duration) *Throttle {
	if perSecond <= 0 {
		perSecond = 1
	}
	if burst <= 0 {
		burst = 1
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &Throttle{
		buckets: make(map[string]*endpointBucket),
		limit:   rate.Limit(perSecond),
		burst:   burst,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Wait blocks until the endpoint's bucket has a token or ctx is done.
func (t *Throttle) Wait(ctx context.Context, key string) error {
	if key == "" {
		key = "unknown"
	}

	t.mu.Lock()
	now := t.now()
	b := t.bucketLocked(key, now)
	t.gcLocked(now)
	t.mu.Unlock()

	return b.limiter.Wait(ctx)
}

// Len reports the number of tracked endpoints.
func (t *Throttle) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.buckets)
}

func (t *Throttle) bucketLocked(key string, now time.Time) *endpointBucket {
	if b, ok := t.buckets[key]; ok {
		b.lastSeen = now
		return b
	}

	b := &endpointBucket{limiter: rate.NewLimiter(t.limit, t.burst), lastSeen: now}
	t.buckets[key] = b
	return b
}

func (t *Throttle) gcLocked(now time.Time) {
	for key, b := range t.buckets {
		if now.Sub(b.lastSeen) > t.ttl {
			delete(t.buckets, key)
		}
	}
}

// withNowFunc allows tests to override the time source.
func (t *Throttle) withNowFunc(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
}
