package ratelimit

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Middleware limits each client IP to rule.Limit requests per rule.Window.
// Limiter failures let the request through.
func Middleware(m *Manager, rule Rule) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil || rule.disabled() {
			c.Next()
			return
		}
		key := rule.Name + ":" + c.ClientIP()
		result, errAllow := m.Allow(c.Request.Context(), key, rule)
		if errAllow != nil {
			log.WithError(errAllow).WithField("rule", rule.Name).Warn("rate limit check failed")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(rule.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.Reset.Unix(), 10))
		if !result.Allowed {
			retryAfter := int64(result.Reset.Sub(m.nowFn()).Seconds()) + 1
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests, try again later", "kind": "rate_limited"})
			return
		}
		c.Next()
	}
}
