// Package queue provides the device's durable FIFO queue of pending
// mutations. Every operation persists before it returns, so a queued
// mutation survives a process restart.
package queue

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/akshitpareta/OpenSalesAI-sub000/internal/apperrors"
	"github.com/akshitpareta/OpenSalesAI-sub000/internal/logging"
	"github.com/akshitpareta/OpenSalesAI-sub000/internal/models"
	"github.com/akshitpareta/OpenSalesAI-sub000/internal/uuid"
)

// StorageKey is the durable-store key holding the serialized queue.
const StorageKey = "mutation_queue"

// DefaultMaxAttempts caps queue-level replays per mutation.
const DefaultMaxAttempts = 5

// Storage is the durable key/value surface the queue persists through.
type Storage interface {
	Get(key string) ([]byte, bool, error)
	Put(key string, value []byte) error
}

// Queue is a persisted FIFO queue of pending mutations. It does not
// reorder and does not deduplicate: two mutations against the same
// logical resource are both preserved and replayed in original order.
// All access is serialized through an internal mutex.
type Queue struct {
	mu          sync.Mutex
	storage     Storage
	items       []*models.QueuedMutation
	capacity    int
	maxAttempts int
}

// Open loads the persisted queue from storage.
func Open(storage Storage, capacity, maxAttempts int) (*Queue, error) {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	q := &Queue{
		storage:     storage,
		capacity:    capacity,
		maxAttempts: maxAttempts,
	}

	data, ok, err := storage.Get(StorageKey)
	if err != nil {
		return nil, err
	}
	if ok && len(data) > 0 {
		if err := json.Unmarshal(data, &q.items); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to decode persisted queue", err)
		}
	}

	return q, nil
}

// Enqueue appends a mutation and persists the queue before returning.
// The mutation id is generated here and doubles as the idempotency key
// on replay. Storage failures propagate and leave the queue unchanged.
func (q *Queue) Enqueue(method, target string, payload json.RawMessage) (*models.QueuedMutation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.capacity > 0 && len(q.items) >= q.capacity {
		return nil, apperrors.New(apperrors.ErrQueueFull, "mutation queue is full").
			WithDetail("capacity", q.capacity)
	}

	m := &models.QueuedMutation{
		ID:          models.UUID(uuid.New()),
		Method:      method,
		Target:      target,
		Payload:     payload,
		EnqueuedAt:  time.Now().Unix(),
		MaxAttempts: q.maxAttempts,
	}

	q.items = append(q.items, m)
	if err := q.persist(); err != nil {
		q.items = q.items[:len(q.items)-1]
		return nil, err
	}

	logging.Info("Mutation queued", map[string]interface{}{
		"mutation_id": string(m.ID),
		"method":      m.Method,
		"target":      m.Target,
		"pending":     len(q.items),
	})

	return m, nil
}

// PeekAll returns the current queue contents in FIFO order without
// mutating the queue. The returned slice holds copies.
func (q *Queue) PeekAll() []*models.QueuedMutation {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]*models.QueuedMutation, 0, len(q.items))
	for _, m := range q.items {
		c := *m
		out = append(out, &c)
	}
	return out
}

// ReplaceAll atomically overwrites the persisted queue contents.
func (q *Queue) ReplaceAll(items []*models.QueuedMutation) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	prev := q.items
	q.items = items
	if q.items == nil {
		q.items = []*models.QueuedMutation{}
	}
	if err := q.persist(); err != nil {
		q.items = prev
		return err
	}
	return nil
}

// ApplyDrain replaces the first processed items with the surviving
// subset while keeping anything enqueued after the drain snapshot was
// taken. Mutations enqueued mid-drain ride the next replay.
func (q *Queue) ApplyDrain(processed int, survivors []*models.QueuedMutation) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if processed > len(q.items) {
		processed = len(q.items)
	}

	prev := q.items
	next := make([]*models.QueuedMutation, 0, len(survivors)+len(q.items)-processed)
	next = append(next, survivors...)
	next = append(next, q.items[processed:]...)
	q.items = next

	if err := q.persist(); err != nil {
		q.items = prev
		return err
	}
	return nil
}

// Clear empties the queue. Used on logout.
func (q *Queue) Clear() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	prev := q.items
	q.items = []*models.QueuedMutation{}
	if err := q.persist(); err != nil {
		q.items = prev
		return err
	}

	logging.Info("Mutation queue cleared", nil)
	return nil
}

// Len returns the number of pending mutations.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// persist writes the queue to storage. Caller must hold the mutex.
func (q *Queue) persist() error {
	data, err := json.Marshal(q.items)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to encode queue", err)
	}
	return q.storage.Put(StorageKey, data)
}
