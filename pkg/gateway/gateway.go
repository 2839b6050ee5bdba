// Package gateway is the HTTP/WebSocket surface: authentication, rate
// limiting, request logging, and response shaping over the services
// beneath it. It owns no business logic of its own.
package gateway

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/riakgu/strym/pkg/eventstore"
	"github.com/riakgu/strym/pkg/ingestion"
	"github.com/riakgu/strym/pkg/logstream"
	"github.com/riakgu/strym/pkg/query"
	"github.com/riakgu/strym/pkg/stats"
)

// HealthChecker is the subset of eventstore.Store the health probe needs.
type HealthChecker interface {
	Health(ctx context.Context) (*eventstore.HealthStatus, error)
}

// RateLimiter is the subset of cachestore.Store the rate-limit gate needs.
type RateLimiter interface {
	IncrWithTTL(ctx context.Context, key string, window time.Duration) (int64, error)
	TTL(ctx context.Context, key string) (time.Duration, error)
}

// Gateway wires together the services behind the HTTP/WebSocket surface. It
// owns a per-source rate-limit counter in RateLimiter and hosts the
// SubscriptionRegistry for the live stream.
type Gateway struct {
	health   HealthChecker
	limiter  RateLimiter
	pipeline *ingestion.Pipeline
	query    *query.Service
	stats    *stats.Service
	registry *logstream.Registry
	apiKey   string
	appName  string
}

// New constructs a Gateway. apiKey is the single shared secret checked on
// every non-health route.
func New(
	health HealthChecker,
	limiter RateLimiter,
	pipeline *ingestion.Pipeline,
	queryService *query.Service,
	statsService *stats.Service,
	registry *logstream.Registry,
	apiKey, appName string,
) *Gateway {
	return &Gateway{
		health:   health,
		limiter:  limiter,
		pipeline: pipeline,
		query:    queryService,
		stats:    statsService,
		registry: registry,
		apiKey:   apiKey,
		appName:  appName,
	}
}

// RegisterRoutes wires every route onto router. The health probe is exempt
// from both authentication and rate limiting; every other route requires
// both.
func (g *Gateway) RegisterRoutes(router *gin.Engine) {
	router.Use(requestLoggingMiddleware())

	router.GET("/health", g.handleHealth)

	// HTTP API routes: header-based auth plus rate limiting.
	protected := router.Group("/")
	protected.Use(g.authMiddleware(), g.rateLimitMiddleware())
	{
		protected.POST("/logs", g.handleIngest)
		protected.POST("/logs/bulk", g.handleIngestBulk)
		protected.GET("/logs", g.handleQuery)
		protected.GET("/logs/search", g.handleSearch)
		protected.GET("/logs/:id", g.handleGetByID)
		protected.GET("/stats/summary", g.handleStatsSummary)
		protected.GET("/stats/timeseries", g.handleStatsTimeseries)
	}

	// /stream authenticates via a query parameter instead of a header, and
	// rejects with a WebSocket close code instead of an HTTP 401 — it can't
	// share authMiddleware, but it still counts against the rate limit.
	stream := router.Group("/")
	stream.Use(g.rateLimitMiddleware())
	stream.GET("/stream", g.handleStream)
}
