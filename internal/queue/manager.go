package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"
)

const (
	// StreamName is the name of the JetStream stream
	StreamName = "RODPLUS_JOBS"
	// SubjectName is the subject for job messages
	SubjectName = "rodplus.jobs"
	// ConsumerName is the name of the durable consumer
	ConsumerName = "rodplus-worker"

	publishTimeout = 5 * time.Second
	fetchWait      = 5 * time.Second
	fetchBackoff   = time.Second
	notifyTimeout  = 30 * time.Second
)

// ErrNotCancelable is returned when canceling a job that already finished.
var ErrNotCancelable = errors.New("job cannot be canceled")

// JobProcessor defines the interface for processing jobs
type JobProcessor interface {
	Process(ctx context.Context, job *Job, progress ProgressCallback) (interface{}, error)
}

// ProgressCallback reports that current of total units of work are done.
type ProgressCallback func(current, total int, message string)

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	Logger *zap.Logger
	// Notifier delivers webhooks for finished jobs. Nil disables webhooks.
	Notifier        *Notifier
	CleanupInterval time.Duration
}

// Manager manages the job queue
type Manager struct {
	js       jetstream.JetStream
	store    *Store
	events   *EventHub
	consumer jetstream.Consumer
	notifier *Notifier
	logger   *zap.Logger

	mu        sync.Mutex
	isRunning bool
	running   map[string]context.CancelFunc
	wg        sync.WaitGroup
	stopOnce  sync.Once
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewManager creates a queue manager and makes sure its stream and durable
// consumer exist.
func NewManager(js jetstream.JetStream, opts ManagerOptions) (*Manager, error) {
	m := newManager(js, opts)
	if err := m.setupStream(); err != nil {
		m.Stop()
		return nil, fmt.Errorf("failed to setup stream: %w", err)
	}
	return m, nil
}

func newManager(js jetstream.JetStream, opts ManagerOptions) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("queue")

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		js:       js,
		store:    NewStore(logger, opts.CleanupInterval),
		events:   NewEventHub(),
		notifier: opts.Notifier,
		logger:   logger,
		running:  make(map[string]context.CancelFunc),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// setupStream creates or updates the JetStream stream
func (m *Manager) setupStream() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := m.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Description: "rodplus element job queue",
		Subjects:    []string{SubjectName},
		Retention:   jetstream.WorkQueuePolicy,
		MaxAge:      24 * time.Hour,
		Storage:     jetstream.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	consumer, err := m.js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		Name:          ConsumerName,
		Durable:       ConsumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		MaxDeliver:    MaxRetries + 1,
		AckWait:       MaxJobTimeout + time.Minute,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}
	m.consumer = consumer

	return nil
}

// Start starts processing jobs from the queue
func (m *Manager) Start(processor JobProcessor) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.isRunning {
		return nil
	}
	if m.consumer == nil {
		return errors.New("queue has no consumer")
	}
	if m.ctx.Err() != nil {
		return errors.New("queue is stopped")
	}
	m.isRunning = true

	m.logger.Info("Starting job queue worker")

	m.wg.Add(1)
	go m.work(processor)

	return nil
}

func (m *Manager) work(processor JobProcessor) {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		batch, err := m.consumer.Fetch(1, jetstream.FetchMaxWait(fetchWait))
		if err != nil {
			m.logger.Warn("Failed to fetch jobs", zap.Error(err))
			select {
			case <-m.ctx.Done():
				return
			case <-time.After(fetchBackoff):
			}
			continue
		}

		for msg := range batch.Messages() {
			m.processMessage(msg, processor)
		}
	}
}

// Stop stops the worker, cancels running jobs and releases the store and
// event hub. It is safe to call more than once.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		m.cancel()
		m.mu.Unlock()

		m.wg.Wait()
		m.store.Stop()
		m.events.Close()

		m.mu.Lock()
		m.isRunning = false
		m.mu.Unlock()

		m.logger.Info("Job queue worker stopped")
	})
}

// Enqueue adds a job to the queue
func (m *Manager) Enqueue(ctx context.Context, job *Job) error {
	if err := m.store.Save(job); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}

	if err := m.publish(ctx, job); err != nil {
		_ = m.store.Delete(job.ID)
		return err
	}

	m.logger.Debug("Job queued", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))

	event := EventFromJob(job)
	event.Message = "Job queued"
	m.events.Emit(job.ID, event)

	return nil
}

// EnqueueWithIdempotency enqueues a job unless one with the same idempotency
// key exists, in which case the existing job is returned with true.
func (m *Manager) EnqueueWithIdempotency(ctx context.Context, job *Job) (*Job, bool, error) {
	if job.IdempotencyKey != "" {
		if existing, ok := m.store.GetByIdempotencyKey(job.IdempotencyKey); ok {
			return existing, true, nil
		}
	}

	if err := m.Enqueue(ctx, job); err != nil {
		return nil, false, err
	}

	return job, false, nil
}

func (m *Manager) publish(ctx context.Context, job *Job) error {
	data, err := job.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize job: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if _, err := m.js.Publish(ctx, SubjectName, data); err != nil {
		return fmt.Errorf("failed to publish job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID
func (m *Manager) GetJob(jobID string) (*Job, error) {
	return m.store.Get(jobID)
}

// ListJobs returns every stored job.
func (m *Manager) ListJobs() ([]*Job, error) {
	return m.store.List()
}

// Stats counts stored jobs by status.
func (m *Manager) Stats() map[JobStatus]int {
	stats := make(map[JobStatus]int)
	jobs, err := m.store.List()
	if err != nil {
		return stats
	}
	for _, job := range jobs {
		stats[job.Status]++
	}
	return stats
}

// UpdateJob updates a job and emits an event
func (m *Manager) UpdateJob(job *Job) error {
	if err := m.store.Update(job); err != nil {
		return err
	}

	m.events.Emit(job.ID, EventFromJob(job))
	return nil
}

// updateActive stores worker progress unless the job was canceled while it
// ran. It reports whether the job is still live.
func (m *Manager) updateActive(job *Job) bool {
	ok, err := m.store.UpdateUnlessCanceled(job)
	if err != nil {
		m.logger.Warn("Failed to update job", zap.String("job_id", job.ID), zap.Error(err))
		return false
	}
	if ok {
		m.events.Emit(job.ID, EventFromJob(job))
	}
	return ok
}

// CancelJob cancels a queued or running job. A running job has its context
// canceled; the worker discards whatever it produces afterwards.
func (m *Manager) CancelJob(jobID string) (*Job, error) {
	job, err := m.store.Cancel(jobID, "Job canceled")
	if err != nil {
		return nil, err
	}

	m.events.Emit(job.ID, EventFromJob(job))
	m.logger.Info("Job canceled", zap.String("job_id", jobID))

	m.mu.Lock()
	if cancel, ok := m.running[jobID]; ok {
		cancel()
	}
	if m.ctx.Err() == nil {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.notify(job)
		}()
	}
	m.mu.Unlock()

	return job, nil
}

// Subscribe subscribes to job events
func (m *Manager) Subscribe(jobID string) <-chan Event {
	return m.events.Subscribe(jobID)
}

// Unsubscribe unsubscribes from job events
func (m *Manager) Unsubscribe(jobID string, ch <-chan Event) {
	m.events.Unsubscribe(jobID, ch)
}

func (m *Manager) track(jobID string, cancel context.CancelFunc) {
	m.mu.Lock()
	m.running[jobID] = cancel
	m.mu.Unlock()
}

func (m *Manager) untrack(jobID string) {
	m.mu.Lock()
	delete(m.running, jobID)
	m.mu.Unlock()
}

func (m *Manager) notify(job *Job) {
	if m.notifier == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	if err := m.notifier.Send(ctx, job); err != nil {
		m.logger.Warn("Webhook delivery failed", zap.String("job_id", job.ID), zap.Error(err))
	}
}

func (m *Manager) processMessage(msg jetstream.Msg, processor JobProcessor) {
	var queued Job
	if err := json.Unmarshal(msg.Data(), &queued); err != nil {
		m.logger.Error("Failed to unmarshal job", zap.Error(err))
		_ = msg.Term()
		return
	}

	log := m.logger.With(zap.String("job_id", queued.ID))

	job, err := m.store.Get(queued.ID)
	if err != nil {
		log.Warn("Dropping job missing from store", zap.Error(err))
		_ = msg.Ack()
		return
	}

	if job.Status == JobStatusCanceled {
		_ = msg.Ack()
		return
	}

	if job.Status == JobStatusRetrying && job.NextRetryAt > 0 {
		waitUntil := time.Unix(job.NextRetryAt, 0)
		if time.Now().Before(waitUntil) {
			_ = msg.NakWithDelay(time.Until(waitUntil))
			return
		}
	}

	job.SetStatus(JobStatusRunning)
	job.SetProgress(0, "Processing started")
	if !m.updateActive(job) {
		_ = msg.Ack()
		return
	}

	timeout := job.GetTimeoutDuration()
	ctx, cancel := context.WithTimeout(m.ctx, timeout)
	m.track(job.ID, cancel)
	defer func() {
		m.untrack(job.ID)
		cancel()
	}()

	log.Info("Processing job", zap.String("type", string(job.Type)), zap.Int("attempt", job.RetryCount+1))

	result, err := processor.Process(ctx, job, func(current, total int, message string) {
		job.SetStepProgress(current, total, message)
		m.updateActive(job)
	})

	if current, getErr := m.store.Get(job.ID); getErr == nil && current.Status == JobStatusCanceled {
		log.Info("Discarding result of canceled job")
		_ = msg.Ack()
		return
	}

	if err != nil && m.ctx.Err() != nil {
		// Shutting down: leave the message for redelivery.
		_ = msg.Nak()
		return
	}

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("job timed out after %v: %w", timeout, err)
		}

		if !IsPermanent(err) && job.CanRetry() {
			job.LastError = err.Error()
			job.PrepareRetry()
			job.Message = fmt.Sprintf("Retrying (%d/%d): %s", job.RetryCount, job.MaxRetries, err.Error())
			if m.updateActive(job) {
				pubErr := m.publish(context.Background(), job)
				if pubErr == nil {
					log.Warn("Job failed, retrying", zap.Int("retry", job.RetryCount), zap.Error(err))
					_ = msg.Ack()
					return
				}
				log.Error("Failed to re-enqueue job for retry", zap.Error(pubErr))
			}
		}

		job.SetError(err.Error())
		if m.updateActive(job) {
			log.Error("Job failed", zap.Error(err))
			m.notify(job)
		}
		_ = msg.Ack()
		return
	}

	job.SetResult(result)
	job.Message = "Job completed successfully"
	if m.updateActive(job) {
		log.Info("Job succeeded")
		m.notify(job)
	}
	_ = msg.Ack()
}
