package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-rod/rod"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrdadan/rodplus/internal/api"
	"github.com/ahrdadan/rodplus/internal/browser"
	"github.com/ahrdadan/rodplus/internal/element"
	"github.com/ahrdadan/rodplus/internal/queue"
)

// MockClient is a browser client that never touches a browser
type MockClient struct {
	err     error
	partial *browser.RunResult
	target  browser.Target
}

func (m *MockClient) IsRunning() bool     { return true }
func (m *MockClient) GetEndpoint() string { return "ws://127.0.0.1:9222" }

func (m *MockClient) InspectElement(_ context.Context, target browser.Target) (*browser.ElementInfo, error) {
	m.target = target
	if m.err != nil {
		return nil, m.err
	}
	return &browser.ElementInfo{Key: "42", Tag: "button", ID: "submit", Text: "Send", Display: `<button id="submit">Send</button>`}, nil
}

func (m *MockClient) TraverseElement(_ context.Context, target browser.Target, _ browser.TraverseQuery) ([]browser.ElementInfo, error) {
	m.target = target
	if m.err != nil {
		return nil, m.err
	}
	return []browser.ElementInfo{{Tag: "li", Index: 0}, {Tag: "li", Index: 1}}, nil
}

func (m *MockClient) RunSteps(_ context.Context, target browser.Target, steps []browser.Step, _ browser.ProgressFunc) (*browser.RunResult, error) {
	m.target = target
	if m.err != nil {
		return m.partial, m.err
	}
	result := &browser.RunResult{}
	for i, s := range steps {
		result.Steps = append(result.Steps, browser.StepResult{Index: i, Action: s.Action})
	}
	return result, nil
}

// MockQueue keeps jobs in a map
type MockQueue struct {
	mu   sync.Mutex
	jobs map[string]*queue.Job
	keys map[string]string
}

func NewMockQueue() *MockQueue {
	return &MockQueue{jobs: map[string]*queue.Job{}, keys: map[string]string{}}
}

func (q *MockQueue) EnqueueWithIdempotency(_ context.Context, job *queue.Job) (*queue.Job, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if id, ok := q.keys[job.IdempotencyKey]; ok && job.IdempotencyKey != "" {
		return q.jobs[id], true, nil
	}
	q.jobs[job.ID] = job
	if job.IdempotencyKey != "" {
		q.keys[job.IdempotencyKey] = job.ID
	}
	return job, false, nil
}

func (q *MockQueue) GetJob(jobID string) (*queue.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", queue.ErrJobNotFound, jobID)
	}
	return job, nil
}

func (q *MockQueue) CancelJob(jobID string) (*queue.Job, error) {
	job, err := q.GetJob(jobID)
	if err != nil {
		return nil, err
	}
	if job.Status.Done() {
		return nil, fmt.Errorf("%w: status is %s", queue.ErrNotCancelable, job.Status)
	}
	job.SetStatus(queue.JobStatusCanceled)
	return job, nil
}

func (q *MockQueue) Subscribe(string) <-chan queue.Event {
	ch := make(chan queue.Event)
	close(ch)
	return ch
}

func (q *MockQueue) Unsubscribe(string, <-chan queue.Event) {}

func (q *MockQueue) Stats() map[queue.JobStatus]int {
	q.mu.Lock()
	defer q.mu.Unlock()
	stats := map[queue.JobStatus]int{}
	for _, job := range q.jobs {
		stats[job.Status]++
	}
	return stats
}

func (q *MockQueue) add(job *queue.Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs[job.ID] = job
}

func setupTestApp(t *testing.T, client *MockClient, jobs *MockQueue) *fiber.App {
	t.Helper()
	app := fiber.New(fiber.Config{
		ErrorHandler: api.ErrorHandler,
	})
	var q api.JobQueue
	if jobs != nil {
		q = jobs
	}
	routes := api.SetupRoutes(app, client, q, api.DefaultRouteConfig(), nil)
	t.Cleanup(routes.Close)
	return app
}

func do(t *testing.T, app *fiber.App, method, path, body string, headers ...string) (*http.Response, api.Response) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var response api.Response
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &response), string(raw))
	}
	return resp, response
}

func TestHealthCheck(t *testing.T) {
	app := setupTestApp(t, &MockClient{}, nil)

	resp, body := do(t, app, "GET", "/health", "")
	assert.Equal(t, 200, resp.StatusCode)
	assert.True(t, body.Success)
}

func TestBrowserStatus(t *testing.T) {
	app := setupTestApp(t, &MockClient{}, nil)

	resp, body := do(t, app, "GET", "/rodplus/browser/status", "")
	require.Equal(t, 200, resp.StatusCode)

	data := body.Data.(map[string]interface{})
	assert.Equal(t, true, data["running"])
	assert.Equal(t, "ws://127.0.0.1:9222", data["endpoint"])
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestInspectElement(t *testing.T) {
	client := &MockClient{}
	app := setupTestApp(t, client, nil)

	resp, body := do(t, app, "POST", "/rodplus/element/inspect",
		`{"url": "https://example.com", "selector": "//button", "xpath": true, "timeout": 5, "synthetic_events": true}`)
	require.Equal(t, 200, resp.StatusCode)

	data := body.Data.(map[string]interface{})
	assert.Equal(t, "button", data["tag"])
	assert.Equal(t, "submit", data["id"])

	assert.True(t, client.target.XPath)
	assert.Equal(t, "//button", client.target.Selector)
	assert.Equal(t, float64(5), client.target.Options.Timeout.Seconds())
	assert.True(t, client.target.Options.SyntheticEvents)
}

func TestInspectElementValidation(t *testing.T) {
	app := setupTestApp(t, &MockClient{}, nil)

	tests := []struct {
		name string
		body string
		want string
	}{
		{"invalid json", `{invalid json}`, "Invalid request body"},
		{"missing url", `{"selector": "#a"}`, "url is required"},
		{"relative url", `{"url": "example.com", "selector": "#a"}`, "invalid url"},
		{"missing selector", `{"url": "https://example.com"}`, "selector is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, app, "POST", "/rodplus/element/inspect", tt.body)
			assert.Equal(t, 400, resp.StatusCode)
			assert.False(t, body.Success)
			assert.Contains(t, body.Error, tt.want)
		})
	}
}

func TestInspectElementErrorStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"stale", fmt.Errorf("snapshot: %w", element.ErrStale), 410},
		{"not found", &rod.ElementNotFoundError{}, 404},
		{"timeout", fmt.Errorf("element not found: #a: %w", context.DeadlineExceeded), 504},
		{"other", errors.New("browser crashed"), 500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := setupTestApp(t, &MockClient{err: tt.err}, nil)
			resp, body := do(t, app, "POST", "/rodplus/element/inspect", `{"url": "https://example.com", "selector": "#a"}`)
			assert.Equal(t, tt.want, resp.StatusCode)
			assert.Equal(t, tt.err.Error(), body.Error)
		})
	}
}

func TestTraverseElement(t *testing.T) {
	app := setupTestApp(t, &MockClient{}, nil)

	resp, body := do(t, app, "POST", "/rodplus/element/traverse",
		`{"url": "https://example.com", "selector": "#list", "query": {"axis": "children", "filter": {"tag": "li"}}}`)
	require.Equal(t, 200, resp.StatusCode)

	data := body.Data.(map[string]interface{})
	assert.Equal(t, "children", data["axis"])
	assert.Equal(t, float64(2), data["count"])

	resp, body = do(t, app, "POST", "/rodplus/element/traverse",
		`{"url": "https://example.com", "selector": "#list", "query": {"axis": "cousins"}}`)
	assert.Equal(t, 400, resp.StatusCode)
	assert.Contains(t, body.Error, "unknown axis")
}

func TestRunSteps(t *testing.T) {
	app := setupTestApp(t, &MockClient{}, nil)

	resp, body := do(t, app, "POST", "/rodplus/element/run",
		`{"url": "https://example.com", "selector": "#name", "steps": [{"action": "clear"}, {"action": "type", "text": "abc"}]}`)
	require.Equal(t, 200, resp.StatusCode)

	steps := body.Data.(map[string]interface{})["steps"].([]interface{})
	assert.Len(t, steps, 2)
}

func TestRunStepsValidation(t *testing.T) {
	app := setupTestApp(t, &MockClient{}, nil)

	resp, body := do(t, app, "POST", "/rodplus/element/run", `{"url": "https://example.com", "selector": "#name", "steps": []}`)
	assert.Equal(t, 400, resp.StatusCode)
	assert.Contains(t, body.Error, "at least one step")

	resp, body = do(t, app, "POST", "/rodplus/element/run",
		`{"url": "https://example.com", "selector": "#name", "steps": [{"action": "css"}]}`)
	assert.Equal(t, 400, resp.StatusCode)
	assert.Contains(t, body.Error, "css requires name")
}

func TestRunStepsReportsPartialResult(t *testing.T) {
	client := &MockClient{
		err:     &browser.StepError{Index: 1, Action: browser.ActionClick, Err: element.ErrStale},
		partial: &browser.RunResult{Steps: []browser.StepResult{{Index: 0, Action: browser.ActionHover}}},
	}
	app := setupTestApp(t, client, nil)

	resp, body := do(t, app, "POST", "/rodplus/element/run",
		`{"url": "https://example.com", "selector": "#a", "steps": [{"action": "hover"}, {"action": "click"}]}`)
	assert.Equal(t, 410, resp.StatusCode)
	assert.False(t, body.Success)
	assert.Contains(t, body.Error, "step 1 (click)")

	steps := body.Data.(map[string]interface{})["steps"].([]interface{})
	assert.Len(t, steps, 1)
}

func TestRejectsNonJSONBodies(t *testing.T) {
	app := setupTestApp(t, &MockClient{}, nil)

	req := httptest.NewRequest("POST", "/rodplus/element/inspect", strings.NewReader("url=x"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 415, resp.StatusCode)
}

func TestJobRoutesDisabledWithoutQueue(t *testing.T) {
	app := setupTestApp(t, &MockClient{}, nil)

	resp, _ := do(t, app, "GET", "/rodplus/jobs/stats", "")
	assert.Equal(t, 404, resp.StatusCode)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, 418, api.StatusFor(fiber.NewError(418, "teapot")))
	assert.Equal(t, 404, api.StatusFor(fmt.Errorf("get: %w", queue.ErrJobNotFound)))
	assert.Equal(t, 410, api.StatusFor(queue.ErrJobExpired))
	assert.Equal(t, 404, api.StatusFor(element.ErrNoElements))
	assert.Equal(t, 422, api.StatusFor(&browser.StepError{Index: 0, Action: browser.ActionCSS, Err: errors.New("boom")}))
	assert.Equal(t, 500, api.StatusFor(errors.New("boom")))
}
