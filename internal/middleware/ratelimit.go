package middleware

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fgc-kenya/admissions-api/pkg/config"
	appErrors "github.com/fgc-kenya/admissions-api/pkg/errors"
	"github.com/fgc-kenya/admissions-api/pkg/response"
)

// RateLimiter applies fixed-window request budgets keyed on client IP,
// counted in Redis. A stricter budget guards the unauthenticated auth
// endpoints; a wider one covers the rest of the API. Counting is
// fail-open: a Redis outage must not take the API down with it.
type RateLimiter struct {
	redis  redis.UniversalClient
	config config.RateLimitConfig
	logger *zap.Logger
}

// NewRateLimiter builds a limiter backed by the given Redis client.
func NewRateLimiter(redisClient redis.UniversalClient, cfg config.RateLimitConfig, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimiter{redis: redisClient, config: cfg, logger: logger}
}

// Login limits unauthenticated authentication attempts per client IP.
func (l *RateLimiter) Login() gin.HandlerFunc {
	return l.limit("login", l.config.LoginLimit, l.config.LoginWindow)
}

// API limits general request volume per client IP.
func (l *RateLimiter) API() gin.HandlerFunc {
	return l.limit("api", l.config.APILimit, l.config.APIWindow)
}

func (l *RateLimiter) limit(scope string, max int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.config.Enabled || l.redis == nil || max <= 0 {
			c.Next()
			return
		}

		key := fmt.Sprintf("ratelimit:%s:%s", scope, c.ClientIP())
		count, err := l.redis.Incr(c.Request.Context(), key).Result()
		if err != nil {
			l.logger.Warn("rate limit counter unavailable", zap.String("scope", scope), zap.Error(err))
			c.Next()
			return
		}
		// Fixed-window semantics: set TTL only for the first hit in the window.
		if count == 1 {
			if err := l.redis.Expire(c.Request.Context(), key, window).Err(); err != nil {
				l.logger.Warn("rate limit expire failed", zap.String("scope", scope), zap.Error(err))
			}
		}

		if count > int64(max) {
			ttl, _ := l.redis.TTL(c.Request.Context(), key).Result()
			if ttl > 0 {
				c.Header("Retry-After", strconv.Itoa(int(ttl.Seconds())))
			}
			response.Error(c, appErrors.Clone(appErrors.ErrRateLimited, "too many requests, slow down"))
			c.Abort()
			return
		}

		c.Next()
	}
}
