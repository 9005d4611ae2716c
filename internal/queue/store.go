package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrJobNotFound is returned for unknown job ids.
	ErrJobNotFound = errors.New("job not found")
	// ErrJobExpired is returned once a job's result TTL has passed.
	ErrJobExpired = errors.New("job expired")
)

// DefaultCleanupInterval is how often expired jobs are purged.
const DefaultCleanupInterval = time.Hour

// Store is an in-memory job store with TTL support. It holds its own copies:
// callers mutate what they get and write it back with Update.
type Store struct {
	jobs           map[string]*Job
	idempotencyMap map[string]string // idempotency_key -> job_id
	mu             sync.RWMutex
	logger         *zap.Logger
	stopCleanup    chan struct{}
	stopOnce       sync.Once
	done           chan struct{}
}

// NewStore creates a job store and starts its TTL cleanup loop. Stop must be
// called to release it.
func NewStore(logger *zap.Logger, cleanupEvery time.Duration) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cleanupEvery <= 0 {
		cleanupEvery = DefaultCleanupInterval
	}

	s := &Store{
		jobs:           make(map[string]*Job),
		idempotencyMap: make(map[string]string),
		logger:         logger,
		stopCleanup:    make(chan struct{}),
		done:           make(chan struct{}),
	}
	go s.runCleanup(cleanupEvery)
	return s
}

func (s *Store) runCleanup(every time.Duration) {
	defer close(s.done)

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanupExpired()
		case <-s.stopCleanup:
			return
		}
	}
}

// cleanupExpired removes expired jobs and their idempotency keys.
func (s *Store) cleanupExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for jobID, job := range s.jobs {
		if !job.IsExpired() {
			continue
		}
		if job.IdempotencyKey != "" {
			delete(s.idempotencyMap, job.IdempotencyKey)
		}
		delete(s.jobs, jobID)
		deleted++
	}

	if deleted > 0 {
		s.logger.Info("Cleaned up expired jobs", zap.Int("count", deleted))
	}
	return deleted
}

// Stop stops the cleanup goroutine and waits for it to exit.
func (s *Store) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCleanup)
	})
	<-s.done
}

// Save saves a job to the store
func (s *Store) Save(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *job
	s.jobs[job.ID] = &cp
	if job.IdempotencyKey != "" {
		s.idempotencyMap[job.IdempotencyKey] = job.ID
	}
	return nil
}

// GetByIdempotencyKey retrieves a live job by idempotency key
func (s *Store) GetByIdempotencyKey(key string) (*Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobID, exists := s.idempotencyMap[key]
	if !exists {
		return nil, false
	}

	job, exists := s.jobs[jobID]
	if !exists || job.IsExpired() {
		return nil, false
	}
	cp := *job
	return &cp, true
}

// Get retrieves a job by ID
func (s *Store) Get(jobID string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if job.IsExpired() {
		return nil, fmt.Errorf("%w: %s", ErrJobExpired, jobID)
	}
	cp := *job
	return &cp, nil
}

// Update replaces a stored job
func (s *Store) Update(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, job.ID)
	}
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

// UpdateUnlessCanceled replaces a stored job unless it was canceled in the
// meantime, and reports whether the write happened.
func (s *Store) UpdateUnlessCanceled(job *Job) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.jobs[job.ID]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrJobNotFound, job.ID)
	}
	if current.Status == JobStatusCanceled {
		return false, nil
	}
	cp := *job
	s.jobs[job.ID] = &cp
	return true, nil
}

// Cancel marks a job canceled in one step, refusing jobs that already
// finished. It returns a copy of the canceled job.
func (s *Store) Cancel(jobID, message string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if current.IsExpired() {
		return nil, fmt.Errorf("%w: %s", ErrJobExpired, jobID)
	}
	if current.Status.Done() {
		return nil, fmt.Errorf("%w: status is %s", ErrNotCancelable, current.Status)
	}

	current.SetStatus(JobStatusCanceled)
	current.Message = message
	cp := *current
	return &cp, nil
}

// Delete removes a job from the store
func (s *Store) Delete(jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job, ok := s.jobs[jobID]; ok && job.IdempotencyKey != "" {
		delete(s.idempotencyMap, job.IdempotencyKey)
	}
	delete(s.jobs, jobID)
	return nil
}

// List returns all jobs
func (s *Store) List() ([]*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		cp := *job
		jobs = append(jobs, &cp)
	}
	return jobs, nil
}

// ToJSON serializes a job to JSON
func (j *Job) ToJSON() ([]byte, error) {
	return json.Marshal(j)
}

// FromJSON deserializes a job from JSON
func FromJSON(data []byte) (*Job, error) {
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}
	return &job, nil
}
