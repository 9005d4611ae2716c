package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/google/uuid"
)

// IdempotencyStore remembers the response to a request key for a TTL so a
// retried request can be answered without repeating its side effects.
type IdempotencyStore struct {
	keys     map[string]*IdempotencyEntry
	mu       sync.RWMutex
	ttl      time.Duration
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// IdempotencyEntry represents a stored idempotency key
type IdempotencyEntry struct {
	Key       string      `json:"key"`
	JobID     string      `json:"job_id"`
	Response  interface{} `json:"response"`
	CreatedAt time.Time   `json:"created_at"`
	ExpiresAt time.Time   `json:"expires_at"`
}

// NewIdempotencyStore creates a store and starts its cleanup loop. Call Stop
// to release it.
func NewIdempotencyStore(ttl time.Duration) *IdempotencyStore {
	store := &IdempotencyStore{
		keys: make(map[string]*IdempotencyEntry),
		ttl:  ttl,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go store.cleanup(5 * time.Minute)
	return store
}

// Check returns the live entry for key.
func (s *IdempotencyStore) Check(key string) (*IdempotencyEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, exists := s.keys[key]
	if !exists || time.Now().After(entry.ExpiresAt) {
		return nil, false
	}
	return entry, true
}

// Store stores an idempotency key with its response
func (s *IdempotencyStore) Store(key, jobID string, response interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.keys[key] = &IdempotencyEntry{
		Key:       key,
		JobID:     jobID,
		Response:  response,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
}

// Delete removes an idempotency key
func (s *IdempotencyStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key)
}

// Stop ends the cleanup loop.
func (s *IdempotencyStore) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

func (s *IdempotencyStore) cleanup(every time.Duration) {
	defer close(s.done)

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.purgeExpired()
		case <-s.stop:
			return
		}
	}
}

func (s *IdempotencyStore) purgeExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for key, entry := range s.keys {
		if now.After(entry.ExpiresAt) {
			delete(s.keys, key)
		}
	}
}

// SignWebhook returns the hex HMAC-SHA256 of payload under secret.
func SignWebhook(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyWebhook checks a signature produced by SignWebhook.
func VerifyWebhook(payload []byte, signature, secret string) bool {
	expected := SignWebhook(payload, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// GenerateRequestID generates a unique request ID
func GenerateRequestID() string {
	return uuid.NewString()
}
