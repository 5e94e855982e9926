package syncer

import (
	"encoding/json"
	"sync"

	"github.com/akshitpareta/OpenSalesAI-sub000/internal/apperrors"
	"github.com/akshitpareta/OpenSalesAI-sub000/internal/models"
)

// StatusKey is the durable-store key holding the serialized status record.
const StatusKey = "sync_status"

// Storage is the durable key/value surface the status store persists through.
type Storage interface {
	Get(key string) ([]byte, bool, error)
	Put(key string, value []byte) error
}

// StatusStore persists the SyncStatus record and hands out snapshots.
type StatusStore struct {
	mu      sync.Mutex
	storage Storage
	current models.SyncStatus
}

// OpenStatusStore loads the persisted status record from storage.
func OpenStatusStore(storage Storage) (*StatusStore, error) {
	st := &StatusStore{storage: storage}

	data, ok, err := storage.Get(StatusKey)
	if err != nil {
		return nil, err
	}
	if ok && len(data) > 0 {
		if err := json.Unmarshal(data, &st.current); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to decode sync status", err)
		}
		// A crash mid-drain must not leave the status stuck on syncing.
		st.current.IsSyncing = false
	}

	return st, nil
}

// Get returns a snapshot of the current status.
func (s *StatusStore) Get() models.SyncStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Update mutates the status under the lock and persists it.
func (s *StatusStore) Update(fn func(*models.SyncStatus)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current
	fn(&next)

	data, err := json.Marshal(next)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to encode sync status", err)
	}
	if err := s.storage.Put(StatusKey, data); err != nil {
		return err
	}

	s.current = next
	return nil
}
