package queue

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ahrdadan/rodplus/internal/browser"
)

// Default values for job configuration
const (
	DefaultJobTimeout = 30 * time.Second
	MaxJobTimeout     = 5 * time.Minute
	DefaultMaxRetries = 3
	MaxRetries        = 5
	DefaultResultTTL  = 7 * 24 * time.Hour
	DefaultRetryDelay = 5 * time.Second
	MaxRetryDelay     = 5 * time.Minute
	DefaultPriority   = 5
)

// JobStatus represents the status of a job
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCanceled  JobStatus = "canceled"
	JobStatusRetrying  JobStatus = "retrying"
)

// Done reports whether the status is terminal.
func (s JobStatus) Done() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed || s == JobStatusCanceled
}

// JobType selects what the worker does with the target element.
type JobType string

const (
	// JobTypeRun applies a step script.
	JobTypeRun JobType = "run"
	// JobTypeInspect snapshots the element.
	JobTypeInspect JobType = "inspect"
	// JobTypeTraverse snapshots the elements along an axis.
	JobTypeTraverse JobType = "traverse"
)

// NotifyConfig holds notification settings for a job
type NotifyConfig struct {
	WebhookURL string `json:"webhook_url,omitempty"`
	// WebhookSecret signs the payload with HMAC-SHA256 when set.
	WebhookSecret string `json:"webhook_secret,omitempty"`
}

// RetryConfig holds retry settings for a job
type RetryConfig struct {
	MaxRetries    int     `json:"max_retries"`
	RetryDelay    int     `json:"retry_delay"` // seconds
	BackoffFactor float64 `json:"backoff_factor"`
}

// ProgressInfo holds detailed progress information
type ProgressInfo struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Percent int    `json:"percent"`
	Message string `json:"message"`
	Stage   string `json:"stage,omitempty"`
}

// JobRequest represents a job creation request
type JobRequest struct {
	Type            JobType                `json:"type"`
	URL             string                 `json:"url"`
	Selector        string                 `json:"selector"`
	XPath           bool                   `json:"xpath,omitempty"`
	Steps           []browser.Step         `json:"steps,omitempty"`
	Query           *browser.TraverseQuery `json:"query,omitempty"`
	Timeout         int                    `json:"timeout"` // seconds
	WaitForLoad     *bool                  `json:"wait_for_load,omitempty"`
	UserAgent       string                 `json:"user_agent,omitempty"`
	Headers         map[string]string      `json:"headers,omitempty"`
	Cookies         []browser.CookieParam  `json:"cookies,omitempty"`
	Proxy           string                 `json:"proxy,omitempty"`
	SyntheticEvents bool                   `json:"synthetic_events,omitempty"`
	Notify          *NotifyConfig          `json:"notify,omitempty"`
	Retry           *RetryConfig           `json:"retry,omitempty"`
	IdempotencyKey  string                 `json:"idempotency_key,omitempty"`
	Priority        int                    `json:"priority,omitempty"`
	ResultTTL       int                    `json:"result_ttl,omitempty"` // seconds
}

// Validate checks the request before it is queued.
func (r JobRequest) Validate() error {
	if err := r.Target().Validate(); err != nil {
		return err
	}
	switch r.Type {
	case JobTypeRun:
		return browser.ValidateSteps(r.Steps)
	case JobTypeInspect:
		return nil
	case JobTypeTraverse:
		if r.Query == nil {
			return fmt.Errorf("traverse requires query")
		}
		return r.Query.Validate()
	default:
		return fmt.Errorf("unknown job type %q", r.Type)
	}
}

// Target returns the element the job operates on.
func (r JobRequest) Target() browser.Target {
	opts := browser.DefaultPageOptions()
	if r.Timeout > 0 {
		opts.Timeout = time.Duration(r.Timeout) * time.Second
	}
	if r.WaitForLoad != nil {
		opts.WaitForLoad = *r.WaitForLoad
	}
	opts.UserAgent = r.UserAgent
	opts.Headers = r.Headers
	opts.Cookies = r.Cookies
	opts.Proxy = r.Proxy
	opts.SyntheticEvents = r.SyntheticEvents

	return browser.Target{
		URL:      r.URL,
		Selector: r.Selector,
		XPath:    r.XPath,
		Options:  opts,
	}
}

// Job represents a queued job
type Job struct {
	ID             string        `json:"job_id"`
	Type           JobType       `json:"type"`
	Status         JobStatus     `json:"status"`
	Progress       int           `json:"progress"`
	ProgressInfo   *ProgressInfo `json:"progress_info,omitempty"`
	Message        string        `json:"message,omitempty"`
	Request        JobRequest    `json:"request"`
	Result         interface{}   `json:"result,omitempty"`
	Error          string        `json:"error,omitempty"`
	CreatedAt      int64         `json:"created_at"`
	UpdatedAt      int64         `json:"updated_at"`
	StartedAt      int64         `json:"started_at,omitempty"`
	CompletedAt    int64         `json:"completed_at,omitempty"`
	ExpiresAt      int64         `json:"expires_at,omitempty"`
	Notify         *NotifyConfig `json:"notify,omitempty"`
	RetryCount     int           `json:"retry_count"`
	MaxRetries     int           `json:"max_retries"`
	NextRetryAt    int64         `json:"next_retry_at,omitempty"`
	LastError      string        `json:"last_error,omitempty"`
	IdempotencyKey string        `json:"idempotency_key,omitempty"`
	Priority       int           `json:"priority"`
	Timeout        int           `json:"timeout"` // seconds
}

// NewJob creates a new job from a request. Priority, timeout and retries
// are clamped to their allowed ranges.
func NewJob(req JobRequest) *Job {
	now := time.Now()

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = int(DefaultJobTimeout.Seconds())
	}
	if limit := int(MaxJobTimeout.Seconds()); timeout > limit {
		timeout = limit
	}

	maxRetries := DefaultMaxRetries
	if req.Retry != nil && req.Retry.MaxRetries > 0 {
		maxRetries = req.Retry.MaxRetries
	}
	if maxRetries > MaxRetries {
		maxRetries = MaxRetries
	}

	priority := req.Priority
	if priority <= 0 || priority > 10 {
		priority = DefaultPriority
	}

	resultTTL := DefaultResultTTL
	if req.ResultTTL > 0 {
		resultTTL = time.Duration(req.ResultTTL) * time.Second
	}

	return &Job{
		ID:             generateJobID(),
		Type:           req.Type,
		Status:         JobStatusQueued,
		Request:        req,
		CreatedAt:      now.Unix(),
		UpdatedAt:      now.Unix(),
		ExpiresAt:      now.Add(resultTTL).Unix(),
		Notify:         req.Notify,
		MaxRetries:     maxRetries,
		IdempotencyKey: req.IdempotencyKey,
		Priority:       priority,
		Timeout:        timeout,
	}
}

// SetStatus updates the job status
func (j *Job) SetStatus(status JobStatus) {
	now := time.Now().Unix()
	j.Status = status
	j.UpdatedAt = now

	if status == JobStatusRunning && j.StartedAt == 0 {
		j.StartedAt = now
	}
	if status.Done() {
		j.CompletedAt = now
	}
}

// SetProgress updates the job progress
func (j *Job) SetProgress(progress int, message string) {
	j.Progress = progress
	j.Message = message
	j.UpdatedAt = time.Now().Unix()
}

// SetStepProgress records that done of total steps have finished.
func (j *Job) SetStepProgress(done, total int, message string) {
	percent := 0
	if total > 0 {
		percent = (done * 100) / total
	}

	j.Progress = percent
	j.Message = message
	j.ProgressInfo = &ProgressInfo{
		Current: done,
		Total:   total,
		Percent: percent,
		Message: message,
		Stage:   "steps",
	}
	j.UpdatedAt = time.Now().Unix()
}

// SetResult sets the job result
func (j *Job) SetResult(result interface{}) {
	j.Result = result
	j.Progress = 100
	j.SetStatus(JobStatusSucceeded)
}

// SetError sets the job error
func (j *Job) SetError(err string) {
	j.Error = err
	j.LastError = err
	j.SetStatus(JobStatusFailed)
}

// CanRetry returns true if the job can be retried
func (j *Job) CanRetry() bool {
	return j.RetryCount < j.MaxRetries
}

// RetryDelay is the wait before attempt number RetryCount: the base delay
// grown by the backoff factor per earlier retry, capped at MaxRetryDelay.
func (j *Job) RetryDelay() time.Duration {
	backoffFactor := 2.0
	baseDelay := DefaultRetryDelay
	if r := j.Request.Retry; r != nil {
		if r.BackoffFactor > 0 {
			backoffFactor = r.BackoffFactor
		}
		if r.RetryDelay > 0 {
			baseDelay = time.Duration(r.RetryDelay) * time.Second
		}
	}

	delay := baseDelay
	for i := 1; i < j.RetryCount; i++ {
		delay = time.Duration(float64(delay) * backoffFactor)
		if delay > MaxRetryDelay {
			return MaxRetryDelay
		}
	}
	if delay > MaxRetryDelay {
		delay = MaxRetryDelay
	}
	return delay
}

// PrepareRetry prepares the job for retry
func (j *Job) PrepareRetry() {
	j.RetryCount++
	j.Status = JobStatusRetrying
	j.NextRetryAt = time.Now().Add(j.RetryDelay()).Unix()
	j.UpdatedAt = time.Now().Unix()
}

// IsExpired checks if the job result has expired
func (j *Job) IsExpired() bool {
	if j.ExpiresAt == 0 {
		return false
	}
	return time.Now().Unix() > j.ExpiresAt
}

// GetTimeoutDuration returns the job timeout as a time.Duration
func (j *Job) GetTimeoutDuration() time.Duration {
	if j.Timeout <= 0 {
		return DefaultJobTimeout
	}
	return time.Duration(j.Timeout) * time.Second
}

// JobResultResponse represents a job result response
type JobResultResponse struct {
	JobID  string      `json:"job_id"`
	Status JobStatus   `json:"status"`
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// JobCreatedResponse represents the response when a job is created
type JobCreatedResponse struct {
	JobID     string    `json:"job_id"`
	Status    JobStatus `json:"status"`
	StatusURL string    `json:"status_url"`
	ResultURL string    `json:"result_url"`
	Events    struct {
		SSEURL string `json:"sse_url"`
		WSURL  string `json:"ws_url"`
	} `json:"events"`
}

func generateJobID() string {
	return "job_" + uuid.New().String()[:8]
}
