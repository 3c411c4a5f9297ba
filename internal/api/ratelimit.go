package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/olekzaw/traffic-watch/internal/config"
)

func newLimit(rps, burst int) gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}

// PerRouteLimits builds two independent token buckets. Every hit on the
// fresh route costs one upstream request per tile, so it runs at half the
// configured rate; reads served from the local snapshot get the full rate.
// Separate buckets keep a burst of fresh fetches from locking clients out
// of cached reads.
func PerRouteLimits(cfg config.APIConfig) (fresh, stored gin.HandlerFunc) {
	freshRPS := cfg.RateLimitRPS / 2
	if freshRPS < 1 {
		freshRPS = 1
	}
	fresh = newLimit(freshRPS, cfg.RateLimitBurst)
	stored = newLimit(cfg.RateLimitRPS, cfg.RateLimitBurst)
	return fresh, stored
}
