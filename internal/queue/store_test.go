package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(nil, time.Hour)
	t.Cleanup(s.Stop)
	return s
}

func TestStoreSaveGetCopies(t *testing.T) {
	s := newTestStore(t)
	job := NewJob(inspectRequest())
	require.NoError(t, s.Save(job))

	job.Status = JobStatusFailed

	got, err := s.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusQueued, got.Status)

	got.Status = JobStatusRunning
	again, err := s.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusQueued, again.Status)

	require.NoError(t, s.Update(got))
	again, err = s.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusRunning, again.Status)
}

func TestStoreNotFoundAndExpired(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get("job_missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
	assert.ErrorIs(t, s.Update(&Job{ID: "job_missing"}), ErrJobNotFound)

	job := NewJob(inspectRequest())
	job.ExpiresAt = time.Now().Add(-time.Second).Unix()
	require.NoError(t, s.Save(job))

	_, err = s.Get(job.ID)
	assert.ErrorIs(t, err, ErrJobExpired)

	assert.Equal(t, 1, s.cleanupExpired())
	_, err = s.Get(job.ID)
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestStoreIdempotencyKey(t *testing.T) {
	s := newTestStore(t)
	req := inspectRequest()
	req.IdempotencyKey = "key-1"
	job := NewJob(req)
	require.NoError(t, s.Save(job))

	got, ok := s.GetByIdempotencyKey("key-1")
	require.True(t, ok)
	assert.Equal(t, job.ID, got.ID)

	_, ok = s.GetByIdempotencyKey("key-2")
	assert.False(t, ok)

	require.NoError(t, s.Delete(job.ID))
	_, ok = s.GetByIdempotencyKey("key-1")
	assert.False(t, ok)
}

func TestStoreUpdateUnlessCanceled(t *testing.T) {
	s := newTestStore(t)
	job := NewJob(inspectRequest())
	require.NoError(t, s.Save(job))

	running := *job
	running.SetStatus(JobStatusRunning)
	ok, err := s.UpdateUnlessCanceled(&running)
	require.NoError(t, err)
	assert.True(t, ok)

	canceled := running
	canceled.SetStatus(JobStatusCanceled)
	require.NoError(t, s.Update(&canceled))

	running.SetProgress(50, "halfway")
	ok, err = s.UpdateUnlessCanceled(&running)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusCanceled, got.Status)

	_, err = s.UpdateUnlessCanceled(&Job{ID: "job_missing"})
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestStoreCancel(t *testing.T) {
	s := newTestStore(t)
	job := NewJob(inspectRequest())
	require.NoError(t, s.Save(job))

	canceled, err := s.Cancel(job.ID, "stop")
	require.NoError(t, err)
	assert.Equal(t, JobStatusCanceled, canceled.Status)
	assert.Equal(t, "stop", canceled.Message)
	assert.NotZero(t, canceled.CompletedAt)

	_, err = s.Cancel(job.ID, "again")
	assert.ErrorIs(t, err, ErrNotCancelable)

	_, err = s.Cancel("job_missing", "stop")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestStoreCancelKeepsFinishedJob(t *testing.T) {
	s := newTestStore(t)
	job := NewJob(inspectRequest())
	require.NoError(t, s.Save(job))

	done := *job
	done.SetStatus(JobStatusSucceeded)
	done.Message = "Job completed successfully"
	ok, err := s.UpdateUnlessCanceled(&done)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = s.Cancel(job.ID, "Job canceled")
	assert.ErrorIs(t, err, ErrNotCancelable)

	got, err := s.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusSucceeded, got.Status)
	assert.Equal(t, "Job completed successfully", got.Message)
}

func TestStoreList(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Save(NewJob(inspectRequest())))
	}

	jobs, err := s.List()
	require.NoError(t, err)
	assert.Len(t, jobs, 3)
}

func TestStoreCleanupLoop(t *testing.T) {
	s := NewStore(nil, 10*time.Millisecond)
	defer s.Stop()

	job := NewJob(inspectRequest())
	job.ExpiresAt = time.Now().Add(-time.Second).Unix()
	require.NoError(t, s.Save(job))

	assert.Eventually(t, func() bool {
		jobs, _ := s.List()
		return len(jobs) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestStoreStopIsIdempotent(t *testing.T) {
	s := NewStore(nil, time.Hour)
	s.Stop()
	s.Stop()
}

func TestJobJSONRoundTrip(t *testing.T) {
	job := NewJob(inspectRequest())
	data, err := job.ToJSON()
	require.NoError(t, err)

	decoded, err := FromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, job.ID, decoded.ID)
	assert.Equal(t, job.Request.Selector, decoded.Request.Selector)

	_, err = FromJSON([]byte("{"))
	assert.Error(t, err)
}
