package queue

import (
	"sync"
)

// subscriberBuffer is how many events a slow subscriber may lag behind
// before further events are dropped for it.
const subscriberBuffer = 16

// Event represents a job event
type Event struct {
	JobID    string    `json:"job_id"`
	Status   JobStatus `json:"status"`
	Progress int       `json:"progress,omitempty"`
	Message  string    `json:"message,omitempty"`
}

// EventFromJob captures the job's current state.
func EventFromJob(job *Job) Event {
	return Event{
		JobID:    job.ID,
		Status:   job.Status,
		Progress: job.Progress,
		Message:  job.Message,
	}
}

// EventHub fans job events out to SSE and WebSocket subscribers.
type EventHub struct {
	subscribers map[string][]chan Event
	mu          sync.RWMutex
	closed      bool
}

// NewEventHub creates a new event hub
func NewEventHub() *EventHub {
	return &EventHub{
		subscribers: make(map[string][]chan Event),
	}
}

// Subscribe creates a subscription for job events. The channel is closed by
// Unsubscribe or Close.
func (h *EventHub) Subscribe(jobID string) <-chan Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if h.closed {
		close(ch)
		return ch
	}
	h.subscribers[jobID] = append(h.subscribers[jobID], ch)
	return ch
}

// Unsubscribe removes a subscription
func (h *EventHub) Unsubscribe(jobID string, ch <-chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.subscribers[jobID]
	for i, sub := range subs {
		if sub == ch {
			h.subscribers[jobID] = append(subs[:i:i], subs[i+1:]...)
			close(sub)
			break
		}
	}

	if len(h.subscribers[jobID]) == 0 {
		delete(h.subscribers, jobID)
	}
}

// Emit sends an event to all subscribers of a job without blocking.
func (h *EventHub) Emit(jobID string, event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subscribers[jobID] {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribers returns the number of live subscriptions for a job.
func (h *EventHub) Subscribers(jobID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[jobID])
}

// Close closes all subscriptions
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for jobID, subs := range h.subscribers {
		for _, ch := range subs {
			close(ch)
		}
		delete(h.subscribers, jobID)
	}
	h.closed = true
}
