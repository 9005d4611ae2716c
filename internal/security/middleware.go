package security

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// DefaultMaxBodySize caps JSON request bodies.
const DefaultMaxBodySize = 10 * 1024 * 1024

// Middleware provides security middleware for Fiber
type Middleware struct {
	rateLimiter *RateLimiter
}

// NewMiddleware creates a new security middleware
func NewMiddleware(rl *RateLimiter) *Middleware {
	return &Middleware{rateLimiter: rl}
}

// ClientID identifies the caller: X-User-ID, then X-API-Key, then the IP.
func ClientID(c *fiber.Ctx) string {
	if id := c.Get("X-User-ID"); id != "" {
		return id
	}
	if key := c.Get("X-API-Key"); key != "" {
		return key
	}
	return c.IP()
}

// RateLimitMiddleware returns a rate limiting middleware
func (m *Middleware) RateLimitMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		clientID := ClientID(c)
		allowed := m.rateLimiter.Allow(clientID)
		info := m.rateLimiter.GetInfo(clientID)

		c.Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		c.Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetAt.Unix(), 10))

		if !allowed {
			retryAfter := int64(time.Until(info.ResetAt).Seconds()) + 1
			c.Set("Retry-After", strconv.FormatInt(retryAfter, 10))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"success":     false,
				"error":       "Rate limit exceeded",
				"retry_after": retryAfter,
			})
		}
		return c.Next()
	}
}

// SecurityHeadersMiddleware adds security headers and a request ID
func SecurityHeadersMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("Content-Security-Policy", "default-src 'self'")

		requestID := c.Get("X-Request-ID")
		if requestID == "" {
			requestID = GenerateRequestID()
		}
		c.Set("X-Request-ID", requestID)
		c.Locals("requestID", requestID)

		return c.Next()
	}
}

// RequestValidationMiddleware rejects non-JSON bodies and bodies over
// maxBody bytes. A non-positive maxBody uses DefaultMaxBodySize.
func RequestValidationMiddleware(maxBody int) fiber.Handler {
	if maxBody <= 0 {
		maxBody = DefaultMaxBodySize
	}
	return func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodPost || c.Method() == fiber.MethodPut || c.Method() == fiber.MethodPatch {
			contentType := c.Get("Content-Type")
			if contentType != "" && !strings.HasPrefix(contentType, "application/json") {
				return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
					"success": false,
					"error":   "Content-Type must be application/json",
				})
			}
		}

		if len(c.Body()) > maxBody {
			return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
				"success": false,
				"error":   "Request body too large",
			})
		}

		return c.Next()
	}
}

// IPWhitelistMiddleware rejects clients outside allowedIPs. An empty list
// allows everyone.
func IPWhitelistMiddleware(allowedIPs []string) fiber.Handler {
	ipSet := make(map[string]struct{}, len(allowedIPs))
	for _, ip := range allowedIPs {
		ipSet[ip] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		if len(ipSet) == 0 {
			return c.Next()
		}
		if _, ok := ipSet[c.IP()]; !ok {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"success": false,
				"error":   "Access denied",
			})
		}
		return c.Next()
	}
}

// RequestLogger logs one line per request at Info, or Warn for 5xx.
func RequestLogger(logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
		}

		fields := []zap.Field{
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client", ClientID(c)),
		}
		if id, ok := c.Locals("requestID").(string); ok {
			fields = append(fields, zap.String("request_id", id))
		}

		if status >= fiber.StatusInternalServerError {
			logger.Warn("Request failed", append(fields, zap.Error(err))...)
		} else {
			logger.Info("Request handled", fields...)
		}
		return err
	}
}
