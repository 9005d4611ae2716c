package queue

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrdadan/rodplus/internal/security"
)

type webhookCall struct {
	header http.Header
	body   []byte
}

func webhookServer(t *testing.T, status int) (*httptest.Server, <-chan webhookCall) {
	t.Helper()
	calls := make(chan webhookCall, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		calls <- webhookCall{header: r.Header.Clone(), body: body}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, calls
}

func TestNotifierSendsSignedPayload(t *testing.T) {
	srv, calls := webhookServer(t, http.StatusNoContent)
	n := NewNotifier("http://rodplus.local/", time.Second, nil)
	defer n.client.CloseIdleConnections()

	req := inspectRequest()
	req.Notify = &NotifyConfig{WebhookURL: srv.URL, WebhookSecret: "s3cret"}
	job := NewJob(req)
	job.SetResult(map[string]string{"tag": "div"})

	require.NoError(t, n.Send(context.Background(), job))

	call := <-calls
	assert.Equal(t, "job.succeeded", call.header.Get(HeaderEvent))
	assert.Equal(t, "application/json", call.header.Get("Content-Type"))

	sig := call.header.Get(HeaderSignature)
	require.True(t, strings.HasPrefix(sig, "sha256="))
	assert.True(t, security.VerifyWebhook(call.body, strings.TrimPrefix(sig, "sha256="), "s3cret"))

	var payload WebhookPayload
	require.NoError(t, json.Unmarshal(call.body, &payload))
	assert.Equal(t, job.ID, payload.JobID)
	assert.Equal(t, JobStatusSucceeded, payload.Status)
	assert.Equal(t, "http://rodplus.local/rodplus/jobs/"+job.ID+"/result", payload.ResultURL)
}

func TestNotifierUnsignedWithoutSecret(t *testing.T) {
	srv, calls := webhookServer(t, http.StatusOK)
	n := NewNotifier("", time.Second, nil)
	defer n.client.CloseIdleConnections()

	req := inspectRequest()
	req.Notify = &NotifyConfig{WebhookURL: srv.URL}
	job := NewJob(req)
	job.SetError("element is stale")

	require.NoError(t, n.Send(context.Background(), job))

	call := <-calls
	assert.Empty(t, call.header.Get(HeaderSignature))
	assert.Equal(t, "job.failed", call.header.Get(HeaderEvent))
}

func TestNotifierReportsHTTPErrors(t *testing.T) {
	srv, _ := webhookServer(t, http.StatusInternalServerError)
	n := NewNotifier("", time.Second, nil)
	defer n.client.CloseIdleConnections()

	req := inspectRequest()
	req.Notify = &NotifyConfig{WebhookURL: srv.URL}

	err := n.Send(context.Background(), NewJob(req))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestNotifierSkipsJobsWithoutWebhook(t *testing.T) {
	n := NewNotifier("", time.Second, nil)
	assert.NoError(t, n.Send(context.Background(), NewJob(inspectRequest())))
}
