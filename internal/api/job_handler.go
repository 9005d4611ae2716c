package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/ahrdadan/rodplus/internal/queue"
	"github.com/ahrdadan/rodplus/internal/security"
)

// JobQueue is the part of the queue manager the job endpoints use.
type JobQueue interface {
	EnqueueWithIdempotency(ctx context.Context, job *queue.Job) (*queue.Job, bool, error)
	GetJob(jobID string) (*queue.Job, error)
	CancelJob(jobID string) (*queue.Job, error)
	Subscribe(jobID string) <-chan queue.Event
	Unsubscribe(jobID string, ch <-chan queue.Event)
	Stats() map[queue.JobStatus]int
}

// JobHandler handles job-related API requests
type JobHandler struct {
	queueManager     JobQueue
	idempotencyStore *security.IdempotencyStore
	baseURL          string
	logger           *zap.Logger
}

// NewJobHandler creates a job handler. idempotencyStore may be nil, in which
// case only the queue's own idempotency index is consulted.
func NewJobHandler(qm JobQueue, idempotencyStore *security.IdempotencyStore, baseURL string, logger *zap.Logger) *JobHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobHandler{
		queueManager:     qm,
		idempotencyStore: idempotencyStore,
		baseURL:          strings.TrimRight(baseURL, "/"),
		logger:           logger.Named("jobs"),
	}
}

// CreateJob creates a new async job
// POST /rodplus/jobs
func (h *JobHandler) CreateJob(c *fiber.Ctx) error {
	var req queue.JobRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	if req.Type == "" {
		switch {
		case len(req.Steps) > 0:
			req.Type = queue.JobTypeRun
		case req.Query != nil:
			req.Type = queue.JobTypeTraverse
		default:
			req.Type = queue.JobTypeInspect
		}
	}

	if err := req.Validate(); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	// Header wins over body
	if key := c.Get("X-Idempotency-Key"); key != "" {
		req.IdempotencyKey = key
	}

	if req.IdempotencyKey != "" && h.idempotencyStore != nil {
		if cached, exists := h.idempotencyStore.Check(req.IdempotencyKey); exists {
			c.Set("X-Idempotency-Hit", "true")
			return c.Status(fiber.StatusAccepted).JSON(Response{
				Success: true,
				Data:    cached.Response,
			})
		}
	}

	job := queue.NewJob(req)

	enqueued, duplicate, err := h.queueManager.EnqueueWithIdempotency(c.UserContext(), job)
	if err != nil {
		h.logger.Error("Failed to enqueue job", zap.Error(err))
		return fiber.NewError(fiber.StatusInternalServerError, fmt.Sprintf("Failed to enqueue job: %v", err))
	}

	response := h.createdResponse(enqueued)

	if req.IdempotencyKey != "" && h.idempotencyStore != nil && !duplicate {
		h.idempotencyStore.Store(req.IdempotencyKey, enqueued.ID, response)
	}
	if duplicate {
		c.Set("X-Idempotency-Hit", "true")
	}

	return c.Status(fiber.StatusAccepted).JSON(Response{
		Success: true,
		Data:    response,
	})
}

func (h *JobHandler) createdResponse(job *queue.Job) queue.JobCreatedResponse {
	response := queue.JobCreatedResponse{
		JobID:     job.ID,
		Status:    job.Status,
		StatusURL: fmt.Sprintf("%s/rodplus/jobs/%s", h.baseURL, job.ID),
		ResultURL: fmt.Sprintf("%s/rodplus/jobs/%s/result", h.baseURL, job.ID),
	}
	response.Events.SSEURL = fmt.Sprintf("%s/rodplus/jobs/%s/events", h.baseURL, job.ID)
	response.Events.WSURL = fmt.Sprintf("%s/rodplus/ws?job_id=%s", h.wsBase(), job.ID)
	return response
}

func (h *JobHandler) wsBase() string {
	switch {
	case strings.HasPrefix(h.baseURL, "https://"):
		return "wss://" + strings.TrimPrefix(h.baseURL, "https://")
	case strings.HasPrefix(h.baseURL, "http://"):
		return "ws://" + strings.TrimPrefix(h.baseURL, "http://")
	}
	return h.baseURL
}

// GetJobStatus returns the status of a job
// GET /rodplus/jobs/:job_id
func (h *JobHandler) GetJobStatus(c *fiber.Ctx) error {
	job, err := h.queueManager.GetJob(c.Params("job_id"))
	if err != nil {
		return err
	}

	response := map[string]interface{}{
		"job_id":     job.ID,
		"type":       job.Type,
		"status":     job.Status,
		"progress":   job.Progress,
		"message":    job.Message,
		"created_at": job.CreatedAt,
		"updated_at": job.UpdatedAt,
		"priority":   job.Priority,
	}

	if job.ProgressInfo != nil {
		response["progress_info"] = job.ProgressInfo
	}

	if job.Status == queue.JobStatusRetrying || job.RetryCount > 0 {
		response["retry_info"] = map[string]interface{}{
			"retry_count": job.RetryCount,
			"max_retries": job.MaxRetries,
			"last_error":  job.LastError,
		}
		if job.NextRetryAt > 0 {
			response["next_retry_at"] = time.Unix(job.NextRetryAt, 0).UTC().Format(time.RFC3339)
		}
	}

	if job.ExpiresAt > 0 {
		response["expires_at"] = time.Unix(job.ExpiresAt, 0).UTC().Format(time.RFC3339)
	}

	return c.JSON(Response{
		Success: true,
		Data:    response,
	})
}

// GetJobResult returns the result of a finished job
// GET /rodplus/jobs/:job_id/result
func (h *JobHandler) GetJobResult(c *fiber.Ctx) error {
	job, err := h.queueManager.GetJob(c.Params("job_id"))
	if err != nil {
		return err
	}

	if !job.Status.Done() {
		return fiber.NewError(fiber.StatusConflict, "Job not completed yet")
	}

	return c.JSON(Response{
		Success: true,
		Data: queue.JobResultResponse{
			JobID:  job.ID,
			Status: job.Status,
			Result: job.Result,
			Error:  job.Error,
		},
	})
}

// CancelJob cancels a queued or running job
// POST /rodplus/jobs/:job_id/cancel
func (h *JobHandler) CancelJob(c *fiber.Ctx) error {
	job, err := h.queueManager.CancelJob(c.Params("job_id"))
	if errors.Is(err, queue.ErrNotCancelable) {
		return fiber.NewError(fiber.StatusConflict, err.Error())
	}
	if err != nil {
		return err
	}

	return c.JSON(Response{
		Success: true,
		Data: map[string]interface{}{
			"job_id": job.ID,
			"status": job.Status,
		},
	})
}

// JobStats counts jobs by status
// GET /rodplus/jobs/stats
func (h *JobHandler) JobStats(c *fiber.Ctx) error {
	return c.JSON(Response{
		Success: true,
		Data:    h.queueManager.Stats(),
	})
}

// StreamEvents streams job events via SSE
// GET /rodplus/jobs/:job_id/events
func (h *JobHandler) StreamEvents(c *fiber.Ctx) error {
	jobID := c.Params("job_id")
	job, err := h.queueManager.GetJob(jobID)
	if err != nil {
		return err
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")

	initial := queue.EventFromJob(job)
	if job.Status.Done() {
		// Nothing more will happen, so answer without holding the connection.
		data, _ := json.Marshal(initial)
		return c.SendString(fmt.Sprintf("data: %s\n\n", data))
	}

	c.Set("Connection", "keep-alive")
	c.Set("Transfer-Encoding", "chunked")

	// Subscribe before streaming so no event between the snapshot and the
	// stream start is lost.
	events := h.queueManager.Subscribe(jobID)

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer h.queueManager.Unsubscribe(jobID, events)

		if err := writeSSE(w, initial); err != nil {
			return
		}

		for event := range events {
			if err := writeSSE(w, event); err != nil {
				return
			}
			if event.Status.Done() {
				return
			}
		}
	})

	return nil
}

func writeSSE(w *bufio.Writer, event queue.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	return w.Flush()
}

// HandleWebSocket handles WebSocket connections for job events
func (h *JobHandler) HandleWebSocket(c *websocket.Conn) {
	defer c.Close()

	jobID := c.Query("job_id")
	if jobID == "" {
		_ = c.WriteJSON(map[string]interface{}{
			"error": "job_id is required",
		})
		return
	}

	job, err := h.queueManager.GetJob(jobID)
	if err != nil {
		_ = c.WriteJSON(map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	if err := c.WriteJSON(queue.EventFromJob(job)); err != nil || job.Status.Done() {
		return
	}

	events := h.queueManager.Subscribe(jobID)
	defer h.queueManager.Unsubscribe(jobID, events)

	for event := range events {
		if err := c.WriteJSON(event); err != nil {
			h.logger.Debug("WebSocket client gone", zap.String("job_id", jobID), zap.Error(err))
			return
		}
		if event.Status.Done() {
			return
		}
	}
}
