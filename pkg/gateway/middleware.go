package gateway

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/riakgu/strym/pkg/apperr"
)

const (
	rateLimitWindow = 60 * time.Second
	rateLimitMax    = 100
)

// authMiddleware checks the X-API-Key header against the configured shared
// secret. Mismatch or absence short-circuits with 401 before the route
// handler runs.
func (g *Gateway) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("X-API-Key") != g.apiKey {
			renderError(c, apperr.Authentication("missing or invalid API key"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// rateLimitMiddleware enforces a 100-request-per-60-second sliding bucket
// per remote IP, via RateLimiter.IncrWithTTL. A backend failure fails open:
// the request proceeds without rate-limit headers.
func (g *Gateway) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "strym:ratelimit:" + c.ClientIP()

		count, err := g.limiter.IncrWithTTL(c.Request.Context(), key, rateLimitWindow)
		if err != nil {
			slog.Warn("rate limiter backend failure, failing open", "error", err)
			c.Next()
			return
		}

		remaining := rateLimitMax - int(count)
		if remaining < 0 {
			remaining = 0
		}

		resetIn := rateLimitWindow
		if ttl, err := g.limiter.TTL(c.Request.Context(), key); err == nil && ttl > 0 {
			resetIn = ttl
		}
		resetAt := time.Now().Add(resetIn).Unix()

		c.Header("X-RateLimit-Limit", strconv.Itoa(rateLimitMax))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(resetAt, 10))

		if count > rateLimitMax {
			retryAfter := int(resetIn.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			renderError(c, apperr.RateLimit(retryAfter))
			c.Abort()
			return
		}

		c.Next()
	}
}

// requestLoggingMiddleware logs one structured line per request, in the
// method/path/status/duration shape of the source prototype's
// RequestLoggingMiddleware.
func requestLoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		)
	}
}

// renderError writes the single externally-observable error envelope:
// {"error":{"message","type","timestamp"[,"retry_after"]}}.
func renderError(c *gin.Context, err error) {
	appErr, ok := apperr.As(err)
	if !ok {
		appErr = apperr.Internal(err)
	}

	body := gin.H{
		"message":   appErr.Message,
		"type":      string(appErr.Kind),
		"timestamp": time.Now().UTC(),
	}
	if appErr.Kind == apperr.KindRateLimit {
		body["retry_after"] = appErr.RetryAfter
	}

	c.JSON(appErr.StatusCode(), gin.H{"error": body})
}
