// Package monitor observes network reachability and application
// lifecycle transitions and push-triggers queue drains. It does not
// enforce any minimum interval between triggers beyond the drain
// coordinator's own single-flight guard.
package monitor

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/akshitpareta/OpenSalesAI-sub000/internal/logging"
)

// Checker reports whether the server is currently reachable.
type Checker interface {
	Reachable(ctx context.Context) bool
}

// HTTPChecker probes the server health endpoint with a HEAD request.
type HTTPChecker struct {
	URL    string
	Client *http.Client
}

// Reachable implements Checker.
func (c *HTTPChecker) Reachable(ctx context.Context) bool {
	client := c.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.URL, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < 500
}

// Drainer triggers one queue drain.
type Drainer interface {
	TriggerDrain(ctx context.Context) error
}

// DrainFunc adapts a function to the Drainer interface.
type DrainFunc func(ctx context.Context) error

// TriggerDrain implements Drainer.
func (f DrainFunc) TriggerDrain(ctx context.Context) error {
	return f(ctx)
}

// Monitor watches reachability transitions and foreground events.
// The probe loop exists only to detect offline-to-online transitions;
// drains themselves are push-triggered, never polled.
type Monitor struct {
	checker  Checker
	drainer  Drainer
	interval time.Duration

	stopCh    chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	isRunning bool
	isOnline  bool
}

// New creates a Monitor. A zero interval defaults to 15 seconds.
func New(checker Checker, drainer Drainer, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Monitor{
		checker:  checker,
		drainer:  drainer,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins watching for reachability transitions.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.isRunning {
		m.mu.Unlock()
		return
	}
	m.isRunning = true
	// Establish the starting state without triggering a drain.
	m.isOnline = m.checker.Reachable(ctx)
	m.mu.Unlock()

	m.wg.Add(1)
	go m.probeLoop(ctx)

	logging.Info("Connectivity monitor started", map[string]interface{}{
		"online": m.IsOnline(),
	})
}

// Stop stops the monitor and waits for the probe loop to finish.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.isRunning {
		m.mu.Unlock()
		return
	}
	m.isRunning = false
	m.mu.Unlock()

	close(m.stopCh)
	m.wg.Wait()

	logging.Info("Connectivity monitor stopped", nil)
}

// IsOnline returns the last observed reachability state.
func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isOnline
}

// AppForeground signals that the application returned to the
// foreground and triggers exactly one drain attempt.
func (m *Monitor) AppForeground(ctx context.Context) {
	logging.Debug("App foreground transition", nil)
	m.triggerDrain(ctx)
}

// probeLoop polls reachability and fires a drain on each
// offline-to-online transition.
func (m *Monitor) probeLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			online := m.checker.Reachable(ctx)

			m.mu.Lock()
			wasOnline := m.isOnline
			m.isOnline = online
			m.mu.Unlock()

			if online && !wasOnline {
				logging.Info("Connectivity restored", nil)
				m.triggerDrain(ctx)
			} else if !online && wasOnline {
				logging.Info("Connectivity lost", nil)
			}
		}
	}
}

func (m *Monitor) triggerDrain(ctx context.Context) {
	if err := m.drainer.TriggerDrain(ctx); err != nil {
		logging.Error("Drain trigger failed", err)
	}
}
