package ratelimit

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/mcmod-info-mirror/mcim-sync-go/internal/config"
)

// ErrTimeout is returned by DomainRateLimiter.Acquire when the caller's
// timeout elapses before a token becomes available.
var ErrTimeout = errors.New("ratelimit: acquire timed out")

// DomainRateLimiter maps a hostname to its Bucket, built once from
// config.DomainRateLimits. A host with no configured bucket is treated as
// unrestricted: Acquire returns true immediately.
type DomainRateLimiter struct {
	mu      sync.RWMutex
	buckets map[string]*Bucket
}

// NewDomainRateLimiter builds a limiter from the configured per-host
// buckets.
func NewDomainRateLimiter(cfg map[string]config.DomainRateLimit) *DomainRateLimiter {
	d := &DomainRateLimiter{buckets: make(map[string]*Bucket, len(cfg))}
	for host, limit := range cfg {
		d.buckets[host] = NewBucket(host, limit.Capacity, limit.RefillRate, limit.InitialTokens)
	}
	return d
}

// Acquire extracts the host from rawURL and attempts to debit tokens
// against its bucket. A host with no configured bucket always succeeds. If
// timeout is non-zero, Acquire gives up and returns ErrTimeout once it
// elapses.
func (d *DomainRateLimiter) Acquire(ctx context.Context, rawURL string, tokens float64, timeout time.Duration) (bool, error) {
	host, err := hostOf(rawURL)
	if err != nil {
		return false, err
	}

	d.mu.RLock()
	bucket, ok := d.buckets[host]
	d.mu.RUnlock()
	if !ok {
		return true, nil
	}

	acquireCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ok, err = bucket.Acquire(acquireCtx, tokens)
	if err != nil {
		if ctx.Err() == nil {
			// the context that fired was our own timeout wrapper, not the
			// caller's; surface the documented sentinel instead of
			// context.DeadlineExceeded.
			return false, ErrTimeout
		}
		return false, err
	}
	return ok, nil
}

// Status returns the observable state of host's bucket, or the zero Status
// with ok=false if host has no configured bucket.
func (d *DomainRateLimiter) Status(host string) (Status, bool) {
	d.mu.RLock()
	bucket, ok := d.buckets[host]
	d.mu.RUnlock()
	if !ok {
		return Status{}, false
	}
	return bucket.Status(), true
}

func hostOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	return u.Hostname(), nil
}
