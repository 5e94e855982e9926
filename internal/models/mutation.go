package models

import "encoding/json"

// QueuedMutation represents a state-changing request captured on the
// device while the server was unreachable. The ID is generated at
// enqueue time and doubles as the idempotency key sent on replay.
type QueuedMutation struct {
	ID           UUID            `json:"id"`
	Method       string          `json:"method"`
	Target       string          `json:"target"`
	Payload      json.RawMessage `json:"payload"`
	EnqueuedAt   int64           `json:"enqueued_at"`
	AttemptCount int             `json:"attempt_count"`
	MaxAttempts  int             `json:"max_attempts"`
}

// SyncStatus captures the observable state of the device's mutation
// queue for the UI layer. Derived by the drain coordinator after every
// pass; read-only to observers.
type SyncStatus struct {
	LastSyncAt   *int64 `json:"last_sync_at,omitempty"`
	PendingCount int    `json:"pending_count"`
	IsSyncing    bool   `json:"is_syncing"`
	LastError    string `json:"last_error,omitempty"`
}

// MutationReceipt records the outcome of a processed mutation so that
// replays carrying the same mutation id return the original response
// without re-executing side effects.
type MutationReceipt struct {
	MutationID UUID            `db:"mutation_id" json:"mutation_id"`
	StatusCode int             `db:"status_code" json:"status_code"`
	Body       json.RawMessage `db:"body" json:"body"`
	CreatedAt  int64           `db:"created_at" json:"created_at"`
}

// TableName returns the table name for MutationReceipt.
func (MutationReceipt) TableName() string {
	return "mutation_receipts"
}
