// Package syncer implements the queue drain coordinator: a single-flight
// replay loop that delivers queued mutations in FIFO order, classifies
// each outcome, persists the surviving subset and publishes sync status.
package syncer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/akshitpareta/OpenSalesAI-sub000/internal/apperrors"
	"github.com/akshitpareta/OpenSalesAI-sub000/internal/device/queue"
	"github.com/akshitpareta/OpenSalesAI-sub000/internal/logging"
	"github.com/akshitpareta/OpenSalesAI-sub000/internal/models"
)

// Event types published to subscribers (the status hub and the UI layer).
const (
	EventDrainStarted      = "sync.started"
	EventDrainCompleted    = "sync.completed"
	EventDrainFailed       = "sync.failed"
	EventMutationExhausted = "sync.exhausted"
)

// Event describes a sync state transition.
type Event struct {
	Type       string            `json:"type"`
	Status     models.SyncStatus `json:"status"`
	MutationID models.UUID       `json:"mutation_id,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// Transport delivers a single queued mutation to the server. The
// returned error's code drives classification: nil is success,
// retryable codes keep the mutation queued, anything else drops it.
type Transport interface {
	Deliver(ctx context.Context, m *models.QueuedMutation) error
}

// Backoff configures transport-level retries within one delivery:
// Base × 2^attempt between tries, MaxRetries extra tries before the
// mutation falls back to queue persistence.
type Backoff struct {
	Base       time.Duration
	MaxRetries int
}

// DefaultBackoff matches the reference behavior: 1s base, two retries.
func DefaultBackoff() Backoff {
	return Backoff{Base: time.Second, MaxRetries: 2}
}

// Result summarizes one drain pass.
type Result struct {
	Attempted int
	Delivered int
	Retained  int
	Dropped   int
	Skipped   bool // another pass was in flight, or the device was offline
}

// Syncer coordinates queue drains. At most one pass runs at a time; a
// concurrent Drain call is a no-op.
type Syncer struct {
	queue     *queue.Queue
	transport Transport
	status    *StatusStore
	online    func() bool
	backoff   Backoff
	timeout   time.Duration
	draining  atomic.Bool

	subMu       sync.RWMutex
	subscribers []func(Event)

	sleep func(ctx context.Context, d time.Duration) error
}

// Options configures a Syncer.
type Options struct {
	// Online reports current reachability; nil means always online.
	Online func() bool
	// Timeout bounds each delivery attempt. Zero means 30 seconds.
	Timeout time.Duration
	// Backoff for transport-level retries. Zero value means DefaultBackoff.
	Backoff Backoff
}

// New creates a drain coordinator over the queue and transport.
func New(q *queue.Queue, transport Transport, status *StatusStore, opts Options) *Syncer {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Backoff.Base <= 0 {
		opts.Backoff = DefaultBackoff()
	}
	return &Syncer{
		queue:     q,
		transport: transport,
		status:    status,
		online:    opts.Online,
		backoff:   opts.Backoff,
		timeout:   opts.Timeout,
		sleep:     sleepCtx,
	}
}

// Subscribe registers a callback for sync events. Callbacks run on the
// draining goroutine and must not block.
func (s *Syncer) Subscribe(fn func(Event)) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

// Status returns the current sync status snapshot.
func (s *Syncer) Status() models.SyncStatus {
	return s.status.Get()
}

// Drain replays the queued mutations against the server. Single-flight:
// if a pass is already running the call returns immediately with
// Skipped set. Mutations enqueued while a pass runs are picked up by
// the next invocation, not retroactively.
func (s *Syncer) Drain(ctx context.Context) (*Result, error) {
	if !s.draining.CompareAndSwap(false, true) {
		return &Result{Skipped: true}, nil
	}
	defer s.draining.Store(false)

	if s.online != nil && !s.online() {
		return &Result{Skipped: true}, nil
	}

	snapshot := s.queue.PeekAll()
	if len(snapshot) == 0 {
		return &Result{}, nil
	}

	if err := s.status.Update(func(st *models.SyncStatus) {
		st.IsSyncing = true
	}); err != nil {
		return nil, err
	}
	s.publish(Event{Type: EventDrainStarted, Status: s.status.Get()})

	logging.Info("Drain started", map[string]interface{}{"pending": len(snapshot)})

	result := &Result{Attempted: len(snapshot)}
	survivors := make([]*models.QueuedMutation, 0, len(snapshot))
	var lastErr error

	for i, m := range snapshot {
		err := s.deliver(ctx, m)

		switch {
		case err == nil:
			result.Delivered++

		case apperrors.IsRetryable(err):
			m.AttemptCount++
			lastErr = err
			if m.AttemptCount >= m.MaxAttempts {
				// Intentional data loss on exhaustion; surfaced so the
				// caller is not silently left with stale state.
				result.Dropped++
				logging.ErrorWithCode("Mutation dropped after retry exhaustion",
					string(apperrors.CodeOf(err)), err,
					map[string]interface{}{
						"mutation_id": string(m.ID),
						"target":      m.Target,
						"attempts":    m.AttemptCount,
					})
				s.publish(Event{
					Type:       EventMutationExhausted,
					Status:     s.status.Get(),
					MutationID: m.ID,
					Error:      err.Error(),
				})
			} else {
				result.Retained++
				survivors = append(survivors, m)
			}

		default:
			// Business rejection replayed stale; it can never succeed as-is.
			result.Dropped++
			logging.Warn("Mutation rejected by server, dropping", map[string]interface{}{
				"mutation_id": string(m.ID),
				"target":      m.Target,
				"code":        string(apperrors.CodeOf(err)),
			})
		}

		if ctx.Err() != nil {
			// Device went offline or the agent is shutting down; keep
			// everything not yet attempted.
			survivors = append(survivors, snapshot[i+1:]...)
			result.Retained = len(survivors)
			break
		}
	}

	if err := s.queue.ApplyDrain(len(snapshot), survivors); err != nil {
		s.finishStatus(lastErr, err)
		s.publish(Event{Type: EventDrainFailed, Status: s.status.Get(), Error: err.Error()})
		return result, err
	}

	s.finishStatus(lastErr, nil)

	ev := Event{Type: EventDrainCompleted, Status: s.status.Get()}
	if lastErr != nil {
		ev.Type = EventDrainFailed
		ev.Error = lastErr.Error()
	}
	s.publish(ev)

	logging.Info("Drain completed", map[string]interface{}{
		"delivered": result.Delivered,
		"retained":  result.Retained,
		"dropped":   result.Dropped,
	})

	return result, nil
}

// deliver attempts one mutation with transport-level retries and a
// per-attempt timeout. Non-retryable outcomes return immediately.
func (s *Syncer) deliver(ctx context.Context, m *models.QueuedMutation) error {
	var err error
	for attempt := 0; attempt <= s.backoff.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := s.backoff.Base * (1 << (attempt - 1))
			if sleepErr := s.sleep(ctx, delay); sleepErr != nil {
				return err
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
		err = s.transport.Deliver(attemptCtx, m)
		cancel()

		if err == nil || !apperrors.IsRetryable(err) {
			return err
		}
	}
	return err
}

// finishStatus updates the status record after a pass.
func (s *Syncer) finishStatus(deliveryErr, passErr error) {
	now := time.Now().Unix()
	updateErr := s.status.Update(func(st *models.SyncStatus) {
		st.IsSyncing = false
		st.PendingCount = s.queue.Len()
		st.LastSyncAt = &now
		st.LastError = ""
		if deliveryErr != nil {
			st.LastError = deliveryErr.Error()
		}
		if passErr != nil {
			st.LastError = passErr.Error()
		}
	})
	if updateErr != nil {
		logging.Error("Failed to persist sync status", updateErr)
	}
}

func (s *Syncer) publish(ev Event) {
	s.subMu.RLock()
	subs := s.subscribers
	s.subMu.RUnlock()
	for _, fn := range subs {
		fn(ev)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
