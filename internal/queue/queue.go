// Package queue holds the ordered list of pending changes waiting to be
// committed to the remote repository.
package queue

import (
	"fmt"
	"sync"

	"github.com/alexjbarnes/mdnotes/internal/models"
	"github.com/alexjbarnes/mdnotes/internal/state"
)

// Queue is a path-deduplicated change list persisted under
// state.KeyPendingChanges. Every operation reads and writes the full list
// through the store, so two queues sharing a store see each other's
// writes (last write wins).
type Queue struct {
	mu    sync.Mutex
	store state.Storage
}

// New returns a queue backed by s.
func New(s state.Storage) *Queue {
	return &Queue{store: s}
}

// Append stores change, replacing any queued change for the same path
// regardless of type, and persists the queue. The replacement goes to the
// end of the list.
func (q *Queue) Append(change models.PendingChange) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	changes, err := q.load()
	if err != nil {
		return err
	}

	kept := changes[:0]
	for _, c := range changes {
		if c.Path != change.Path {
			kept = append(kept, c)
		}
	}

	kept = append(kept, change)

	if err := state.SaveJSON(q.store, state.KeyPendingChanges, kept); err != nil {
		return fmt.Errorf("persisting pending changes: %w", err)
	}

	return nil
}

// List returns the pending changes in insertion order.
func (q *Queue) List() ([]models.PendingChange, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.load()
}

// Len returns the number of pending changes.
func (q *Queue) Len() (int, error) {
	changes, err := q.List()
	return len(changes), err
}

// Drop removes the given changes from the queue. Entries replaced since
// by a newer change for the same path are not matched and stay queued.
func (q *Queue) Drop(done []models.PendingChange) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	changes, err := q.load()
	if err != nil {
		return err
	}

	kept := []models.PendingChange{}

	for _, c := range changes {
		if !contains(done, c) {
			kept = append(kept, c)
		}
	}

	if err := state.SaveJSON(q.store, state.KeyPendingChanges, kept); err != nil {
		return fmt.Errorf("persisting pending changes: %w", err)
	}

	return nil
}

func contains(changes []models.PendingChange, c models.PendingChange) bool {
	for _, d := range changes {
		if d.Path == c.Path &&
			d.Type == c.Type &&
			d.ItemType == c.ItemType &&
			d.Content == c.Content &&
			d.QueuedAt.Equal(c.QueuedAt) {
			return true
		}
	}

	return false
}

// Clear empties the queue and persists the empty list.
func (q *Queue) Clear() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := state.SaveJSON(q.store, state.KeyPendingChanges, []models.PendingChange{}); err != nil {
		return fmt.Errorf("clearing pending changes: %w", err)
	}

	return nil
}

func (q *Queue) load() ([]models.PendingChange, error) {
	changes, _, err := state.LoadJSON[[]models.PendingChange](q.store, state.KeyPendingChanges)
	if err != nil {
		return nil, fmt.Errorf("loading pending changes: %w", err)
	}

	return changes, nil
}
