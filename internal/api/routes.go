package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/ahrdadan/rodplus/internal/browser"
	"github.com/ahrdadan/rodplus/internal/security"
)

// RouteConfig holds configuration for routes
type RouteConfig struct {
	RateLimitRequests int           // requests per window
	RateLimitWindow   time.Duration // time window
	RateLimitBurst    int
	IdempotencyTTL    time.Duration // TTL for idempotency keys
	BaseURL           string        // Base URL for full URLs in responses
	MaxBodySize       int
	AllowedIPs        []string
}

// DefaultRouteConfig returns default route configuration
func DefaultRouteConfig() RouteConfig {
	return RouteConfig{
		RateLimitRequests: 100,
		RateLimitWindow:   time.Minute,
		RateLimitBurst:    20,
		IdempotencyTTL:    24 * time.Hour,
		BaseURL:           "http://localhost:8000",
		MaxBodySize:       security.DefaultMaxBodySize,
	}
}

// Routes owns the background state behind the registered routes.
type Routes struct {
	rateLimiter      *security.RateLimiter
	idempotencyStore *security.IdempotencyStore
}

// Close stops the rate limiter and idempotency store cleanup loops.
func (r *Routes) Close() {
	r.rateLimiter.Stop()
	if r.idempotencyStore != nil {
		r.idempotencyStore.Stop()
	}
}

// SetupRoutes registers the health check, the element endpoints and, when
// jobs is non-nil, the job queue endpoints under /rodplus.
func SetupRoutes(app *fiber.App, client browser.Client, jobs JobQueue, config RouteConfig, logger *zap.Logger) *Routes {
	if logger == nil {
		logger = zap.NewNop()
	}

	routes := &Routes{
		rateLimiter: security.NewRateLimiter(security.RateLimitConfig{
			RequestsPerWindow: config.RateLimitRequests,
			WindowDuration:    config.RateLimitWindow,
			BurstMax:          config.RateLimitBurst,
		}),
	}
	secMiddleware := security.NewMiddleware(routes.rateLimiter)

	handler := NewHandler(client, logger)

	// Health check (no rate limit)
	app.Get("/health", handler.HealthCheck)

	rodplus := app.Group("/rodplus")
	rodplus.Use(security.SecurityHeadersMiddleware())
	rodplus.Use(security.RequestLogger(logger.Named("http")))
	rodplus.Use(security.IPWhitelistMiddleware(config.AllowedIPs))
	rodplus.Use(security.RequestValidationMiddleware(config.MaxBodySize))
	rodplus.Use(secMiddleware.RateLimitMiddleware())

	rodplus.Get("/browser/status", handler.BrowserStatus)
	rodplus.Post("/element/inspect", handler.InspectElement)
	rodplus.Post("/element/traverse", handler.TraverseElement)
	rodplus.Post("/element/run", handler.RunSteps)

	if jobs == nil {
		return routes
	}

	routes.idempotencyStore = security.NewIdempotencyStore(config.IdempotencyTTL)
	jobHandler := NewJobHandler(jobs, routes.idempotencyStore, config.BaseURL, logger)

	jobsGroup := rodplus.Group("/jobs")
	jobsGroup.Post("", jobHandler.CreateJob)
	jobsGroup.Get("/stats", jobHandler.JobStats)
	jobsGroup.Get("/:job_id", jobHandler.GetJobStatus)
	jobsGroup.Get("/:job_id/result", jobHandler.GetJobResult)
	jobsGroup.Post("/:job_id/cancel", jobHandler.CancelJob)
	jobsGroup.Get("/:job_id/events", jobHandler.StreamEvents)

	// WebSocket endpoint for job events
	rodplus.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	rodplus.Get("/ws", websocket.New(jobHandler.HandleWebSocket))

	return routes
}
