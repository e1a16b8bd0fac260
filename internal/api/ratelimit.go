package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/memoryledger/pkg/wire"
	"golang.org/x/time/rate"
)

const (
	bucketIdleTTL   = 10 * time.Minute
	bucketSweepTick = 5 * time.Minute
)

type clientBucket struct {
	limiter *rate.Limiter
	touched time.Time
}

// clientBuckets holds one token bucket per client address.
type clientBuckets struct {
	mu      sync.Mutex
	rps     rate.Limit
	burst   int
	buckets map[string]*clientBucket
}

func (b *clientBuckets) take(addr string, now time.Time) bool {
	b.mu.Lock()
	cb, ok := b.buckets[addr]
	if !ok {
		cb = &clientBucket{limiter: rate.NewLimiter(b.rps, b.burst)}
		b.buckets[addr] = cb
	}
	cb.touched = now
	b.mu.Unlock()
	return cb.limiter.AllowN(now, 1)
}

func (b *clientBuckets) sweep(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for addr, cb := range b.buckets {
		if now.Sub(cb.touched) > bucketIdleTTL {
			delete(b.buckets, addr)
		}
	}
}

// RateLimiter caps each client address at rps ledger requests per second with
// bursts of up to burst; ledgerd passes server.rate_limit_rps and twice that.
// Rejected requests get 429 and a one second Retry-After. Buckets idle longer
// than bucketIdleTTL are swept until ctx ends.
func RateLimiter(ctx context.Context, rps, burst int) gin.HandlerFunc {
	b := &clientBuckets{
		rps:     rate.Limit(rps),
		burst:   burst,
		buckets: make(map[string]*clientBucket),
	}
	go func() {
		t := time.NewTicker(bucketSweepTick)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-t.C:
				b.sweep(now)
			}
		}
	}()

	return func(c *gin.Context) {
		if b.take(c.ClientIP(), time.Now()) {
			c.Next()
			return
		}
		c.Header("Retry-After", "1")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, wire.ErrorResponse{
			Error: "too many ledger requests from this address",
		})
	}
}
