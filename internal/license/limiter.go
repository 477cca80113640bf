package license

import (
	"sync"

	"golang.org/x/time/rate"

	"nodelicense/internal/config"
)

// activationLimiter bounds activation attempts per license key. It exists
// to blunt key-guessing and runaway clients; quota enforcement itself lives
// in the activation manager. Callers reject malformed keys before calling
// allow, so the limiter map only grows with keys in the issued format.
type activationLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newActivationLimiter(cfg config.RateLimitConfig) *activationLimiter {
	if !cfg.Enabled {
		return nil
	}
	return &activationLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(float64(cfg.PerMinute) / 60.0),
		burst:    cfg.Burst,
	}
}

// allow reports whether an attempt for key may proceed. A nil limiter
// always allows.
func (l *activationLimiter) allow(key string) bool {
	if l == nil {
		return true
	}

	l.mu.Lock()
	limiter, ok := l.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = limiter
	}
	l.mu.Unlock()

	return limiter.Allow()
}
