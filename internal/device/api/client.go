// Package api provides the device's HTTP transport for state-changing
// requests. A mutation is attempted immediately; when the server is
// unreachable it is hygienized and pushed onto the durable queue for
// later replay. The same client delivers queued mutations for the
// drain coordinator.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/akshitpareta/OpenSalesAI-sub000/internal/apperrors"
	"github.com/akshitpareta/OpenSalesAI-sub000/internal/device/queue"
	"github.com/akshitpareta/OpenSalesAI-sub000/internal/geo"
	"github.com/akshitpareta/OpenSalesAI-sub000/internal/logging"
	"github.com/akshitpareta/OpenSalesAI-sub000/internal/models"
	"github.com/akshitpareta/OpenSalesAI-sub000/internal/uuid"
)

// MutationIDHeader carries the idempotency key on every mutating request.
const MutationIDHeader = "X-Mutation-ID"

// Client talks to the field API server.
type Client struct {
	baseURL string
	http    *http.Client
	queue   *queue.Queue
}

// New creates a Client. The queue may be nil for server-side tooling
// that never buffers offline.
func New(baseURL string, timeout time.Duration, q *queue.Queue) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		queue:   q,
	}
}

// SubmitResult reports how a mutation was handled.
type SubmitResult struct {
	// Queued is true when the server was unreachable and the mutation
	// was buffered for later replay.
	Queued bool
	// MutationID identifies the request for replay deduplication.
	MutationID models.UUID
	// Body is the decoded response body on immediate success.
	Body json.RawMessage
}

// CheckIn attempts a check-in, buffering it when offline.
func (c *Client) CheckIn(ctx context.Context, repID, storeID string, coords geo.Coordinates) (*SubmitResult, error) {
	if err := coords.Validate(); err != nil {
		// Validation failures are never enqueued.
		return nil, err
	}
	payload := map[string]interface{}{
		"rep_id":   repID,
		"store_id": storeID,
		"lat":      coords.Lat,
		"lng":      coords.Lng,
	}
	return c.Submit(ctx, http.MethodPost, "/visits", payload)
}

// CheckOut attempts a check-out, buffering it when offline.
func (c *Client) CheckOut(ctx context.Context, visitID string, coords geo.Coordinates, notes string, photos []string) (*SubmitResult, error) {
	if err := coords.Validate(); err != nil {
		return nil, err
	}
	payload := map[string]interface{}{
		"lat":    coords.Lat,
		"lng":    coords.Lng,
		"notes":  notes,
		"photos": photos,
	}
	return c.Submit(ctx, http.MethodPut, "/visits/"+visitID+"/checkout", payload)
}

// Submit sends a mutation immediately, falling back to the queue on
// transport failure. Business rejections surface immediately and are
// never enqueued.
func (c *Client) Submit(ctx context.Context, method, target string, payload interface{}) (*SubmitResult, error) {
	body, err := hygienize(payload)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrValidation, "failed to encode payload", err)
	}

	mutationID := models.UUID(uuid.New())
	respBody, err := c.send(ctx, method, target, body, mutationID)
	if err == nil {
		return &SubmitResult{MutationID: mutationID, Body: respBody}, nil
	}

	if !apperrors.IsRetryable(err) || c.queue == nil {
		return nil, err
	}

	m, qErr := c.queue.Enqueue(method, target, body)
	if qErr != nil {
		// Storage failure: the mutation is lost unless the caller retries.
		return nil, qErr
	}

	logging.Info("Server unreachable, mutation buffered", map[string]interface{}{
		"mutation_id": string(m.ID),
		"target":      target,
	})

	return &SubmitResult{Queued: true, MutationID: m.ID}, nil
}

// Deliver replays a queued mutation. Implements the drain
// coordinator's Transport interface.
func (c *Client) Deliver(ctx context.Context, m *models.QueuedMutation) error {
	_, err := c.send(ctx, m.Method, m.Target, m.Payload, m.ID)
	return err
}

// send performs one HTTP attempt and classifies the outcome.
func (c *Client) send(ctx context.Context, method, target string, body json.RawMessage, mutationID models.UUID) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+target, bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrValidation, "failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(MutationIDHeader, string(mutationID))

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, apperrors.Wrap(apperrors.ErrTimeout, "request timed out", err)
		}
		return nil, apperrors.Wrap(apperrors.ErrUnreachable, "server unreachable", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrUnreachable, "failed to read response", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return data, nil
	case resp.StatusCode >= 500:
		return nil, apperrors.New(apperrors.ErrServerError,
			fmt.Sprintf("server error (%d)", resp.StatusCode))
	default:
		return nil, rejectionError(resp.StatusCode, data)
	}
}

// rejectionError decodes the server's error envelope into a
// non-retryable AppError that preserves the remote code and details.
func rejectionError(status int, data []byte) error {
	var envelope struct {
		Error struct {
			Code    string                 `json:"code"`
			Message string                 `json:"message"`
			Details map[string]interface{} `json:"details"`
		} `json:"error"`
	}

	appErr := apperrors.New(apperrors.ErrRemoteRejected,
		fmt.Sprintf("request rejected (%d)", status))
	if err := json.Unmarshal(data, &envelope); err == nil && envelope.Error.Code != "" {
		appErr.Message = envelope.Error.Message
		appErr.Details = envelope.Error.Details
		appErr.WithDetail("remote_code", envelope.Error.Code)
	}
	appErr.WithDetail("status", status)
	return appErr
}

// hygienize reduces an arbitrary payload to a canonical JSON body so
// the persisted mutation carries no transport state.
func hygienize(payload interface{}) (json.RawMessage, error) {
	if raw, ok := payload.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(payload)
}
