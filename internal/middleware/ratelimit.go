package middleware

import (
	"sync"
	"time"

	"github.com/artovix-tgbot-go/internal/config"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// RateLimiter gates AI-consuming requests per user
type RateLimiter interface {
	Allow(userID int64) bool
	Reset(userID int64)
}

type userLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// UserRateLimiter keeps one token bucket per user
type UserRateLimiter struct {
	enabled  bool
	limiters map[int64]*userLimiter
	mu       sync.Mutex
	rpm      int
	burst    int
	logger   logrus.FieldLogger
	metrics  *Metrics
	idleTTL  time.Duration
	now      func() time.Time
}

// NewRateLimiter returns a limiter that always allows when disabled. metrics may be nil.
func NewRateLimiter(cfg *config.RateLimitConfig, logger logrus.FieldLogger, metrics *Metrics) *UserRateLimiter {
	if !cfg.Enabled || cfg.RequestsPerMinute <= 0 {
		return &UserRateLimiter{enabled: false}
	}

	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return &UserRateLimiter{
		enabled:  true,
		limiters: make(map[int64]*userLimiter),
		rpm:      cfg.RequestsPerMinute,
		burst:    burst,
		logger:   logger,
		metrics:  metrics,
		idleTTL:  time.Hour,
		now:      time.Now,
	}
}

func (r *UserRateLimiter) Allow(userID int64) bool {
	if !r.enabled {
		return true
	}

	r.mu.Lock()
	l, ok := r.limiters[userID]
	if !ok {
		l = &userLimiter{limiter: rate.NewLimiter(rate.Limit(float64(r.rpm)/60.0), r.burst)}
		r.limiters[userID] = l
	}
	now := r.now()
	l.lastSeen = now
	allowed := l.limiter.AllowN(now, 1)
	r.mu.Unlock()

	if !allowed {
		r.metrics.RecordRateLimitExceeded()
		r.logger.WithField("user_id", userID).Warn("Rate limit exceeded")
	}
	return allowed
}

func (r *UserRateLimiter) Reset(userID int64) {
	if !r.enabled {
		return
	}
	r.mu.Lock()
	delete(r.limiters, userID)
	r.mu.Unlock()
}

// Sweep drops limiters idle for longer than an hour; returns how many were removed.
func (r *UserRateLimiter) Sweep() int {
	if !r.enabled {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	cutoff := r.now().Add(-r.idleTTL)
	for id, l := range r.limiters {
		if l.lastSeen.Before(cutoff) {
			delete(r.limiters, id)
			removed++
		}
	}
	return removed
}
