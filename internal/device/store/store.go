// Package store provides the device's durable key-to-JSON-blob storage.
// The mutation queue and the sync status record are both persisted here
// so they survive a process restart.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/akshitpareta/OpenSalesAI-sub000/internal/apperrors"
)

// KV is a durable key/value store backed by a device-local SQLite file.
type KV struct {
	db *sql.DB
}

// Open opens (or creates) the device store at path.
func Open(path string) (*KV, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to create device data directory", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to open device store", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to enable WAL mode", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL
	);`); err != nil {
		db.Close()
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to create kv table", err)
	}

	return &KV{db: db}, nil
}

// Get returns the value for key. The second return is false when the
// key is absent.
func (k *KV) Get(key string) ([]byte, bool, error) {
	var value []byte
	err := k.db.QueryRow("SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperrors.Wrap(apperrors.ErrStorage, fmt.Sprintf("failed to read key %q", key), err)
	}
	return value, true, nil
}

// Put writes the value for key, replacing any previous value.
func (k *KV) Put(key string, value []byte) error {
	_, err := k.db.Exec("INSERT OR REPLACE INTO kv (key, value) VALUES (?, ?)", key, value)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, fmt.Sprintf("failed to write key %q", key), err)
	}
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (k *KV) Delete(key string) error {
	_, err := k.db.Exec("DELETE FROM kv WHERE key = ?", key)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, fmt.Sprintf("failed to delete key %q", key), err)
	}
	return nil
}

// Close closes the underlying database.
func (k *KV) Close() error {
	return k.db.Close()
}
