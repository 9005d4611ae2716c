package api

import (
	"context"
	"errors"
	"time"

	"github.com/go-rod/rod"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ahrdadan/rodplus/internal/browser"
	"github.com/ahrdadan/rodplus/internal/element"
	"github.com/ahrdadan/rodplus/internal/queue"
)

// Handler handles API requests
type Handler struct {
	browserManager browser.Client
	logger         *zap.Logger
}

// NewHandler creates a new handler
func NewHandler(browserManager browser.Client, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		browserManager: browserManager,
		logger:         logger.Named("api"),
	}
}

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// StatusFor maps an error to the HTTP status reported for it.
func StatusFor(err error) int {
	var fe *fiber.Error
	var notFound *rod.ElementNotFoundError
	var stepErr *browser.StepError

	switch {
	case errors.As(err, &fe):
		return fe.Code
	case element.IsStale(err):
		return fiber.StatusGone
	case errors.Is(err, queue.ErrJobExpired):
		return fiber.StatusGone
	case errors.As(err, &notFound),
		errors.Is(err, element.ErrNoElements),
		errors.Is(err, queue.ErrJobNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout
	case errors.As(err, &stepErr):
		return fiber.StatusUnprocessableEntity
	}
	return fiber.StatusInternalServerError
}

// ErrorHandler is the custom error handler for Fiber
func ErrorHandler(c *fiber.Ctx, err error) error {
	return c.Status(StatusFor(err)).JSON(Response{
		Success: false,
		Error:   err.Error(),
	})
}

// HealthCheck returns health status
func (h *Handler) HealthCheck(c *fiber.Ctx) error {
	return c.JSON(Response{
		Success: true,
		Data: map[string]interface{}{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// BrowserStatus returns browser status
func (h *Handler) BrowserStatus(c *fiber.Ctx) error {
	return c.JSON(Response{
		Success: true,
		Data: map[string]interface{}{
			"running":  h.browserManager.IsRunning(),
			"endpoint": h.browserManager.GetEndpoint(),
		},
	})
}

// RequestOptions represents optional browser settings for a request.
type RequestOptions struct {
	Timeout         int                   `json:"timeout"`
	WaitForLoad     *bool                 `json:"wait_for_load,omitempty"`
	UserAgent       string                `json:"user_agent,omitempty"`
	Headers         map[string]string     `json:"headers,omitempty"`
	Cookies         []browser.CookieParam `json:"cookies,omitempty"`
	Proxy           string                `json:"proxy,omitempty"`
	SyntheticEvents bool                  `json:"synthetic_events,omitempty"`
}

func buildPageOptions(req RequestOptions) browser.PageOptions {
	opts := browser.DefaultPageOptions()
	if req.Timeout > 0 {
		opts.Timeout = time.Duration(req.Timeout) * time.Second
	}
	if req.WaitForLoad != nil {
		opts.WaitForLoad = *req.WaitForLoad
	}
	opts.UserAgent = req.UserAgent
	opts.Headers = req.Headers
	opts.Cookies = req.Cookies
	opts.Proxy = req.Proxy
	opts.SyntheticEvents = req.SyntheticEvents
	return opts
}

// ElementRequest locates one element on a page.
type ElementRequest struct {
	URL      string `json:"url"`
	Selector string `json:"selector"`
	// XPath treats Selector as an XPath expression.
	XPath bool `json:"xpath,omitempty"`
	RequestOptions
}

// Target converts the request into a browser target.
func (r ElementRequest) Target() browser.Target {
	return browser.Target{
		URL:      r.URL,
		Selector: r.Selector,
		XPath:    r.XPath,
		Options:  buildPageOptions(r.RequestOptions),
	}
}

// TraverseRequest walks an axis from the located element.
type TraverseRequest struct {
	ElementRequest
	Query browser.TraverseQuery `json:"query"`
}

// RunRequest applies a step script to the located element.
type RunRequest struct {
	ElementRequest
	Steps []browser.Step `json:"steps"`
}

func parseTarget(c *fiber.Ctx, req interface{}, er *ElementRequest) (browser.Target, error) {
	if err := c.BodyParser(req); err != nil {
		return browser.Target{}, fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	target := er.Target()
	if err := target.Validate(); err != nil {
		return browser.Target{}, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return target, nil
}

// InspectElement snapshots the element's accessors
// POST /rodplus/element/inspect
func (h *Handler) InspectElement(c *fiber.Ctx) error {
	var req ElementRequest
	target, err := parseTarget(c, &req, &req)
	if err != nil {
		return err
	}

	info, err := h.browserManager.InspectElement(c.UserContext(), target)
	if err != nil {
		h.logger.Warn("Inspect failed", zap.String("url", target.URL), zap.String("selector", target.Selector), zap.Error(err))
		return err
	}

	return c.JSON(Response{
		Success: true,
		Data:    info,
	})
}

// TraverseElement snapshots the elements along an axis
// POST /rodplus/element/traverse
func (h *Handler) TraverseElement(c *fiber.Ctx) error {
	var req TraverseRequest
	target, err := parseTarget(c, &req, &req.ElementRequest)
	if err != nil {
		return err
	}
	if err := req.Query.Validate(); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	infos, err := h.browserManager.TraverseElement(c.UserContext(), target, req.Query)
	if err != nil {
		h.logger.Warn("Traverse failed", zap.String("url", target.URL), zap.String("axis", string(req.Query.Axis)), zap.Error(err))
		return err
	}

	return c.JSON(Response{
		Success: true,
		Data: map[string]interface{}{
			"axis":     req.Query.Axis,
			"elements": infos,
			"count":    len(infos),
		},
	})
}

// RunSteps applies a step script synchronously. A failing step reports the
// steps that completed before it.
// POST /rodplus/element/run
func (h *Handler) RunSteps(c *fiber.Ctx) error {
	var req RunRequest
	target, err := parseTarget(c, &req, &req.ElementRequest)
	if err != nil {
		return err
	}
	if err := browser.ValidateSteps(req.Steps); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	result, err := h.browserManager.RunSteps(c.UserContext(), target, req.Steps, nil)
	if err != nil {
		h.logger.Warn("Steps failed", zap.String("url", target.URL), zap.Error(err))
		resp := Response{Success: false, Error: err.Error()}
		if result != nil {
			resp.Data = result
		}
		return c.Status(StatusFor(err)).JSON(resp)
	}

	return c.JSON(Response{
		Success: true,
		Data:    result,
	})
}
