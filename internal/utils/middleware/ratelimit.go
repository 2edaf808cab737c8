package middleware

import (
	"math"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/canvasflow/server/internal/utils/errors"
)

const (
	// RateLimitRemaining is the header for remaining requests.
	RateLimitRemaining = "X-RateLimit-Remaining"
	// RateLimitLimit is the header for the limit.
	RateLimitLimit = "X-RateLimit-Limit"
	// RetryAfter is the header for retry time.
	RetryAfter = "Retry-After"
)

// Limiter decides per key whether a request may proceed.
type Limiter interface {
	Allow(key string) (allowed bool, remaining int)
	Burst() int
	RetryAfter() time.Duration
}

// RateLimitConfig holds rate limit middleware configuration.
type RateLimitConfig struct {
	// KeyFunc generates the rate limit key from request.
	// Default uses client IP.
	KeyFunc func(*gin.Context) string
	// SkipFunc determines if the request should skip rate limiting.
	SkipFunc func(*gin.Context) bool
}

// RateLimit returns a middleware that limits requests using the given limiter.
func RateLimit(limiter Limiter, cfg RateLimitConfig) gin.HandlerFunc {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = func(c *gin.Context) string {
			return "ip:" + c.ClientIP()
		}
	}

	return func(c *gin.Context) {
		if limiter == nil || (cfg.SkipFunc != nil && cfg.SkipFunc(c)) {
			c.Next()
			return
		}

		allowed, remaining := limiter.Allow(cfg.KeyFunc(c))
		c.Header(RateLimitLimit, strconv.Itoa(limiter.Burst()))
		c.Header(RateLimitRemaining, strconv.Itoa(remaining))

		if !allowed {
			retry := int(math.Ceil(limiter.RetryAfter().Seconds()))
			if retry < 1 {
				retry = 1
			}
			c.Header(RetryAfter, strconv.Itoa(retry))
			appErr := apperrors.RateLimited("")
			c.AbortWithStatusJSON(appErr.StatusCode, appErr.ToResponse())
			return
		}

		c.Next()
	}
}

// RateLimitByIP returns a rate limiter that limits by client IP.
func RateLimitByIP(limiter Limiter) gin.HandlerFunc {
	return RateLimit(limiter, RateLimitConfig{})
}
