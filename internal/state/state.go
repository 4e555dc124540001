package state

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	// stateDirPerm is the permission mode for the state directory (~/.mdnotes/).
	stateDirPerm = fs.FileMode(0o700)

	// stateFilePerm is the permission mode for the state database file.
	stateFilePerm = fs.FileMode(0o600)

	// stateOpenTimeout is the maximum time to wait for the bolt database lock.
	stateOpenTimeout = 5 * time.Second
)

// Fixed keys for everything the workspace persists.
const (
	KeyPendingChanges = "markdown-notes-pending-changes"
	KeyNotes          = "markdown-notes"
	KeyFolders        = "markdown-notes-folders"
	KeyVirtualNotes   = "virtual-notes"
	KeyCredentials    = "github-credentials"
)

var appBucket = []byte("app")

// Storage is a flat key-value store. Get returns nil, nil for a missing key.
type Storage interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Clear(key string) error
}

// State wraps a bbolt database for all persistent application state.
type State struct {
	db *bolt.DB
}

// LoadAt opens a state database at the given path, creating it if it
// does not exist. The app bucket is created on open.
func LoadAt(path string) (*State, error) {
	if err := os.MkdirAll(filepath.Dir(path), stateDirPerm); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := bolt.Open(path, stateFilePerm, &bolt.Options{Timeout: stateOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(appBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing state db: %w", err)
	}

	return &State{db: db}, nil
}

// Close closes the database.
func (s *State) Close() error {
	return s.db.Close()
}

// Get returns a copy of the value stored under key, or nil if absent.
func (s *State) Get(key string) ([]byte, error) {
	var out []byte

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(appBucket).Get([]byte(key))
		if v != nil {
			// bbolt values are only valid for the life of the transaction.
			out = append([]byte(nil), v...)
		}

		return nil
	})

	return out, err
}

// Set stores value under key.
func (s *State) Set(key string, value []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(appBucket).Put([]byte(key), value)
	})
}

// Clear removes key. Clearing a missing key is not an error.
func (s *State) Clear(key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(appBucket).Delete([]byte(key))
	})
}

// MemStore is an in-memory Storage. It is safe for concurrent use.
type MemStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string][]byte)}
}

// Get returns a copy of the value stored under key, or nil if absent.
func (m *MemStore) Get(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[key]
	if !ok {
		return nil, nil
	}

	return append([]byte(nil), v...), nil
}

// Set stores a copy of value under key.
func (m *MemStore) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = append([]byte(nil), value...)

	return nil
}

// Clear removes key.
func (m *MemStore) Clear(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, key)

	return nil
}

// LoadJSON decodes the value under key into a T. Absent or unparsable
// data is reported as found=false with a nil error: stored state that
// cannot be read is the same as no state.
func LoadJSON[T any](s Storage, key string) (T, bool, error) {
	var out T

	raw, err := s.Get(key)
	if err != nil {
		return out, false, fmt.Errorf("reading %s: %w", key, err)
	}

	if len(raw) == 0 {
		return out, false, nil
	}

	if err := json.Unmarshal(raw, &out); err != nil {
		var zero T
		return zero, false, nil
	}

	return out, true, nil
}

// SaveJSON encodes v and stores it under key.
func SaveJSON(s Storage, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}

	if err := s.Set(key, data); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}

	return nil
}
