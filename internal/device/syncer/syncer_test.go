package syncer

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/akshitpareta/OpenSalesAI-sub000/internal/apperrors"
	"github.com/akshitpareta/OpenSalesAI-sub000/internal/device/queue"
	"github.com/akshitpareta/OpenSalesAI-sub000/internal/models"
)

// memStorage backs both the queue and the status store in tests.
type memStorage struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemStorage() *memStorage {
	return &memStorage{data: map[string][]byte{}}
}

func (s *memStorage) Get(key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *memStorage) Put(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

// fakeTransport answers each delivery from a per-target script.
type fakeTransport struct {
	mu        sync.Mutex
	responses map[string]error // keyed by mutation target
	delivered []models.UUID
	block     chan struct{} // when set, Deliver waits until closed
}

func (f *fakeTransport) Deliver(ctx context.Context, m *models.QueuedMutation) error {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return apperrors.Wrap(apperrors.ErrTimeout, "request timed out", ctx.Err())
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.responses[m.Target]; ok && err != nil {
		return err
	}
	f.delivered = append(f.delivered, m.ID)
	return nil
}

func (f *fakeTransport) deliveredIDs() []models.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.UUID(nil), f.delivered...)
}

type fixture struct {
	queue     *queue.Queue
	transport *fakeTransport
	syncer    *Syncer
}

func newFixture(t *testing.T, maxAttempts int, opts Options) *fixture {
	t.Helper()
	storage := newMemStorage()
	q, err := queue.Open(storage, 0, maxAttempts)
	if err != nil {
		t.Fatalf("queue.Open failed: %v", err)
	}
	status, err := OpenStatusStore(storage)
	if err != nil {
		t.Fatalf("OpenStatusStore failed: %v", err)
	}

	transport := &fakeTransport{responses: map[string]error{}}
	if opts.Backoff.Base == 0 {
		opts.Backoff = Backoff{Base: time.Millisecond, MaxRetries: 1}
	}
	s := New(q, transport, status, opts)
	// No real sleeping between transport retries.
	s.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }

	return &fixture{queue: q, transport: transport, syncer: s}
}

func (f *fixture) enqueue(t *testing.T, target string) *models.QueuedMutation {
	t.Helper()
	m, err := f.queue.Enqueue("POST", target, json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	return m
}

func TestDrainDeliversInOrder(t *testing.T) {
	f := newFixture(t, 0, Options{})
	a := f.enqueue(t, "/a")
	b := f.enqueue(t, "/b")
	c := f.enqueue(t, "/c")

	result, err := f.syncer.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if result.Attempted != 3 || result.Delivered != 3 || result.Retained != 0 {
		t.Errorf("result = %+v", result)
	}
	if f.queue.Len() != 0 {
		t.Errorf("queue Len = %d, want 0", f.queue.Len())
	}

	ids := f.transport.deliveredIDs()
	want := []models.UUID{a.ID, b.ID, c.ID}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("delivered[%d] = %s, want %s", i, ids[i], want[i])
		}
	}

	status := f.syncer.Status()
	if status.IsSyncing || status.PendingCount != 0 || status.LastSyncAt == nil || status.LastError != "" {
		t.Errorf("status = %+v", status)
	}
}

func TestDrainRetainsRetryableFailures(t *testing.T) {
	f := newFixture(t, 0, Options{})
	f.enqueue(t, "/a")
	b := f.enqueue(t, "/b")
	f.enqueue(t, "/c")
	f.transport.responses["/b"] = apperrors.New(apperrors.ErrUnreachable, "server unreachable")

	result, err := f.syncer.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if result.Delivered != 2 || result.Retained != 1 || result.Dropped != 0 {
		t.Errorf("result = %+v", result)
	}

	items := f.queue.PeekAll()
	if len(items) != 1 || items[0].ID != b.ID {
		t.Fatalf("queue after drain = %v", items)
	}
	if items[0].AttemptCount != 1 {
		t.Errorf("AttemptCount = %d, want 1", items[0].AttemptCount)
	}

	status := f.syncer.Status()
	if status.PendingCount != 1 || status.LastError == "" {
		t.Errorf("status = %+v", status)
	}
}

func TestDrainDropsAfterExhaustion(t *testing.T) {
	f := newFixture(t, 2, Options{})
	f.enqueue(t, "/a")
	f.transport.responses["/a"] = apperrors.New(apperrors.ErrServerError, "server error")

	var exhausted []models.UUID
	f.syncer.Subscribe(func(ev Event) {
		if ev.Type == EventMutationExhausted {
			exhausted = append(exhausted, ev.MutationID)
		}
	})

	// First pass retains with AttemptCount 1.
	result, err := f.syncer.Drain(context.Background())
	if err != nil {
		t.Fatalf("first Drain failed: %v", err)
	}
	if result.Retained != 1 {
		t.Fatalf("result = %+v", result)
	}

	// Second pass reaches MaxAttempts and drops.
	result, err = f.syncer.Drain(context.Background())
	if err != nil {
		t.Fatalf("second Drain failed: %v", err)
	}
	if result.Dropped != 1 || result.Retained != 0 {
		t.Errorf("result = %+v", result)
	}
	if f.queue.Len() != 0 {
		t.Errorf("queue Len = %d, want 0", f.queue.Len())
	}
	if len(exhausted) != 1 {
		t.Errorf("exhausted events = %d, want 1", len(exhausted))
	}
	if f.syncer.Status().LastError == "" {
		t.Error("LastError should record the drop")
	}
}

func TestDrainDropsNonRetryableRejections(t *testing.T) {
	f := newFixture(t, 0, Options{})
	f.enqueue(t, "/a")
	f.transport.responses["/a"] = apperrors.New(apperrors.ErrRemoteRejected, "active visit exists")

	result, err := f.syncer.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if result.Dropped != 1 || result.Retained != 0 {
		t.Errorf("result = %+v", result)
	}
	if f.queue.Len() != 0 {
		t.Errorf("queue Len = %d", f.queue.Len())
	}
}

func TestDrainSingleFlight(t *testing.T) {
	f := newFixture(t, 0, Options{})
	f.enqueue(t, "/a")
	f.transport.block = make(chan struct{})

	done := make(chan *Result, 1)
	go func() {
		result, _ := f.syncer.Drain(context.Background())
		done <- result
	}()

	// Wait for the first pass to take the flight slot.
	deadline := time.After(2 * time.Second)
	for !f.syncer.draining.Load() {
		select {
		case <-deadline:
			t.Fatal("first drain never started")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	second, err := f.syncer.Drain(context.Background())
	if err != nil {
		t.Fatalf("concurrent Drain failed: %v", err)
	}
	if !second.Skipped {
		t.Error("concurrent Drain should be skipped")
	}

	close(f.transport.block)
	first := <-done
	if first.Skipped || first.Delivered != 1 {
		t.Errorf("first result = %+v", first)
	}
}

func TestDrainSkipsWhenOffline(t *testing.T) {
	f := newFixture(t, 0, Options{Online: func() bool { return false }})
	f.enqueue(t, "/a")

	result, err := f.syncer.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if !result.Skipped {
		t.Error("offline Drain should be skipped")
	}
	if f.queue.Len() != 1 {
		t.Errorf("queue Len = %d, want 1", f.queue.Len())
	}
}

func TestDrainEmptyQueueIsQuiet(t *testing.T) {
	f := newFixture(t, 0, Options{})

	var events []Event
	f.syncer.Subscribe(func(ev Event) { events = append(events, ev) })

	result, err := f.syncer.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if result.Attempted != 0 || result.Skipped {
		t.Errorf("result = %+v", result)
	}
	if len(events) != 0 {
		t.Errorf("empty drain published %d events", len(events))
	}
}

func TestDrainRetainsRemainderOnCancellation(t *testing.T) {
	f := newFixture(t, 0, Options{})
	f.enqueue(t, "/a")
	b := f.enqueue(t, "/b")
	c := f.enqueue(t, "/c")

	// Cancel after the first delivery; B and C must survive untouched.
	ctx, cancel := context.WithCancel(context.Background())
	f.transport.responses["/a"] = nil
	f.syncer.transport = transportFunc(func(dctx context.Context, m *models.QueuedMutation) error {
		if m.Target == "/a" {
			cancel()
			return nil
		}
		return f.transport.Deliver(dctx, m)
	})

	result, err := f.syncer.Drain(ctx)
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if result.Delivered != 1 || result.Retained != 2 {
		t.Errorf("result = %+v", result)
	}

	items := f.queue.PeekAll()
	if len(items) != 2 || items[0].ID != b.ID || items[1].ID != c.ID {
		t.Fatalf("queue after cancel = %v", items)
	}
	if items[0].AttemptCount != 0 {
		t.Errorf("unattempted mutation gained AttemptCount %d", items[0].AttemptCount)
	}
}

func TestStatusStoreCrashRecovery(t *testing.T) {
	storage := newMemStorage()
	status, err := OpenStatusStore(storage)
	if err != nil {
		t.Fatalf("OpenStatusStore failed: %v", err)
	}
	if err := status.Update(func(st *models.SyncStatus) {
		st.IsSyncing = true
		st.PendingCount = 3
	}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	// Simulated crash mid-drain: reopen from the same storage.
	reopened, err := OpenStatusStore(storage)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	got := reopened.Get()
	if got.IsSyncing {
		t.Error("IsSyncing should reset to false on load")
	}
	if got.PendingCount != 3 {
		t.Errorf("PendingCount = %d, want 3", got.PendingCount)
	}
}

// transportFunc adapts a function to the Transport interface.
type transportFunc func(ctx context.Context, m *models.QueuedMutation) error

func (f transportFunc) Deliver(ctx context.Context, m *models.QueuedMutation) error {
	return f(ctx, m)
}
