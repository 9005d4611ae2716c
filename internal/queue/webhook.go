package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ahrdadan/rodplus/internal/security"
)

// Webhook headers.
const (
	HeaderEvent     = "X-Rodplus-Event"
	HeaderSignature = "X-Rodplus-Signature"
)

// WebhookPayload is posted to a job's webhook once it finishes.
type WebhookPayload struct {
	JobID      string    `json:"job_id"`
	Status     JobStatus `json:"status"`
	Error      string    `json:"error,omitempty"`
	ResultURL  string    `json:"result_url"`
	FinishedAt int64     `json:"finished_at"`
}

// Notifier delivers job completion webhooks.
type Notifier struct {
	client  *http.Client
	baseURL string
	logger  *zap.Logger
}

// NewNotifier creates a notifier. Result URLs in payloads are prefixed with
// baseURL.
func NewNotifier(baseURL string, timeout time.Duration, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Notifier{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// Send posts the job's final state to its webhook. The body is signed as
// "sha256=<hex hmac>" when the job has a webhook secret.
func (n *Notifier) Send(ctx context.Context, job *Job) error {
	if job.Notify == nil || job.Notify.WebhookURL == "" {
		return nil
	}

	data, err := json.Marshal(WebhookPayload{
		JobID:      job.ID,
		Status:     job.Status,
		Error:      job.Error,
		ResultURL:  fmt.Sprintf("%s/rodplus/jobs/%s/result", n.baseURL, job.ID),
		FinishedAt: time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, job.Notify.WebhookURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEvent, "job."+string(job.Status))
	if job.Notify.WebhookSecret != "" {
		req.Header.Set(HeaderSignature, "sha256="+security.SignWebhook(data, job.Notify.WebhookSecret))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	n.logger.Debug("Webhook delivered", zap.String("job_id", job.ID), zap.Int("status", resp.StatusCode))
	return nil
}
