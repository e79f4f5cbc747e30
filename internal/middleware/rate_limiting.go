package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"checkout-relay-backend/internal/config"
	"checkout-relay-backend/pkg/logger"
)

// RateLimitMessage is returned to callers that exceed their window.
const RateLimitMessage = "Too many requests, please try again later."

// RateLimitMiddleware limits every caller IP to cfg.RateLimitRequests requests per
// cfg.RateLimitWindow seconds and advertises the quota in RateLimit-* headers.
func RateLimitMiddleware(cfg *config.Config, store RateLimitStore) gin.HandlerFunc {
	limit := int64(cfg.RateLimitRequests)
	window := time.Duration(cfg.RateLimitWindow) * time.Second
	policy := fmt.Sprintf("%d;w=%d", cfg.RateLimitRequests, cfg.RateLimitWindow)

	return func(c *gin.Context) {
		if store == nil || limit <= 0 {
			c.Next()
			return
		}

		count, resetIn, err := store.Hit(c.Request.Context(), c.ClientIP(), window)
		if err != nil {
			logger.FromContext(c.Request.Context()).WithError(err).Warn("Rate limit store unavailable, request allowed")
			c.Next()
			return
		}

		remaining := limit - count
		if remaining < 0 {
			remaining = 0
		}
		reset := strconv.FormatInt(ceilSeconds(resetIn), 10)

		c.Header("RateLimit-Policy", policy)
		c.Header("RateLimit-Limit", strconv.FormatInt(limit, 10))
		c.Header("RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		c.Header("RateLimit-Reset", reset)

		if count > limit {
			recordRateLimited()
			c.Header("Retry-After", reset)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": RateLimitMessage})
			return
		}

		c.Next()
	}
}

func ceilSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64((d + time.Second - 1) / time.Second)
}
