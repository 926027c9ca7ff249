package router

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/cuongbtq/snow-market/internal/api/handler"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RateLimiter counts requests per principal in fixed redis windows
type RateLimiter struct {
	redis  *redis.Client
	logger *slog.Logger
}

// NewRateLimiter creates a new RateLimiter instance
func NewRateLimiter(client *redis.Client, logger *slog.Logger) *RateLimiter {
	return &RateLimiter{redis: client, logger: logger}
}

// Limit allows maxRequests per window for each principal. Redis failures let
// the request through.
func (rl *RateLimiter) Limit(keyPrefix string, maxRequests int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := handler.PrincipalFrom(c)
		if !ok || maxRequests <= 0 {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		key := fmt.Sprintf("ratelimit:%s:%s", keyPrefix, p.ID)

		count, err := rl.redis.Incr(ctx, key).Result()
		if err != nil {
			rl.logger.Warn("Rate limiter unavailable, allowing request",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
			c.Next()
			return
		}

		if count == 1 {
			if err := rl.redis.Expire(ctx, key, window).Err(); err != nil {
				rl.logger.Warn("Failed to set rate limit window", slog.String("key", key), slog.String("error", err.Error()))
			}
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(maxRequests))

		if count > int64(maxRequests) {
			ttl, _ := rl.redis.TTL(ctx, key).Result()
			if ttl < 0 {
				ttl = window
			}
			c.Header("Retry-After", strconv.Itoa(int(ttl.Seconds())))
			c.Header("X-RateLimit-Remaining", "0")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Too many requests, retry later",
				"code":  "rate_limited",
			})
			return
		}

		c.Header("X-RateLimit-Remaining", strconv.Itoa(maxRequests-int(count)))
		c.Next()
	}
}

// ClaimLimit limits claim attempts per minute
func (rl *RateLimiter) ClaimLimit(maxPerMin int) gin.HandlerFunc {
	return rl.Limit("claim", maxPerMin, time.Minute)
}
