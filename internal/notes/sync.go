package notes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"

	apperrors "github.com/alexjbarnes/mdnotes/internal/errors"
	"github.com/alexjbarnes/mdnotes/internal/github"
	"github.com/alexjbarnes/mdnotes/internal/models"
	"github.com/alexjbarnes/mdnotes/internal/reconcile"
	"github.com/alexjbarnes/mdnotes/internal/state"
	"github.com/alexjbarnes/mdnotes/internal/tree"
)

// folderMarker is the placeholder file that makes an empty folder exist
// in a git repository.
const folderMarker = ".gitkeep"

// SyncResult reports what a sync sent.
type SyncResult struct {
	Applied int `json:"applied"`
}

// Sync commits the pending queue to the remote repository, one request
// per change, strictly in order. The first failure stops the loop and is
// returned; changes already committed stay committed and the queue is
// left intact, so the next sync sends every change again. Creates and
// updates are upserts and deletes of missing files succeed, so repeating
// a change is safe. On success the sent changes leave the queue and the
// stored collections take the synced tree.
//
// Sync refuses to start without credentials and makes no requests when
// the queue is empty. Only one sync runs at a time.
func (w *Workspace) Sync(ctx context.Context) (SyncResult, error) {
	if !w.syncMu.TryLock() {
		return SyncResult{}, apperrors.ErrSyncInProgress
	}
	defer w.syncMu.Unlock()

	creds, err := w.Credentials()
	if err != nil {
		return SyncResult{}, err
	}

	if !creds.Valid() || w.remote == nil {
		return SyncResult{}, apperrors.ErrMissingCredentials
	}

	w.mu.RLock()
	changes, err := w.queue.List()
	virtual := w.current.VirtualNotes()
	w.mu.RUnlock()

	if err != nil {
		return SyncResult{}, err
	}

	if len(changes) == 0 {
		return SyncResult{}, nil
	}

	logger := w.logger.With(slog.String("repo", creds.Repo))
	logger.Info("sync started", slog.Int("changes", len(changes)))

	for i, change := range changes {
		if err := w.send(ctx, creds, change); err != nil {
			logger.Warn("sync failed",
				slog.String("path", change.Path),
				slog.Int("applied", i),
				slog.Bool("transient", github.IsTransient(err)),
				slog.String("error", err.Error()),
			)

			return SyncResult{Applied: i}, fmt.Errorf("syncing %s %s: %w", change.Type, change.Path, err)
		}
	}

	if err := w.commit(virtual, changes); err != nil {
		return SyncResult{Applied: len(changes)}, err
	}

	logger.Info("sync finished", slog.Int("applied", len(changes)))
	w.notify(EventSynced)

	return SyncResult{Applied: len(changes)}, nil
}

// remotePath maps a tree path into the repository.
func (w *Workspace) remotePath(p string) string {
	return path.Join(w.prefix, tree.Clean(p))
}

// send commits one change.
func (w *Workspace) send(ctx context.Context, creds models.Credentials, change models.PendingChange) error {
	// The stored queue may predate path checks.
	if err := tree.ValidatePath(change.Path); err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrInvalidChange, err)
	}

	rp := w.remotePath(change.Path)

	switch {
	case change.Type == models.ChangeDelete && change.ItemType == models.ItemFolder:
		return w.deleteFolder(ctx, creds, rp)
	case change.Type == models.ChangeDelete:
		return w.remote.Delete(ctx, creds, rp, "Delete "+rp)
	case change.ItemType == models.ItemFolder && change.Type == models.ChangeCreate:
		marker := path.Join(rp, folderMarker)
		_, err := w.remote.Put(ctx, creds, marker, "", "Update "+marker)

		return err
	case change.ItemType == models.ItemFolder:
		// Folders carry no content to update.
		return nil
	default:
		_, err := w.remote.Put(ctx, creds, rp, change.Content, "Update "+rp)
		return err
	}
}

// deleteFolder deletes every file under rp. A missing folder is already
// deleted.
func (w *Workspace) deleteFolder(ctx context.Context, creds models.Credentials, rp string) error {
	var files []string

	err := w.remote.Walk(ctx, creds, rp, func(e github.Entry) error {
		if !e.IsDir() {
			files = append(files, e.Path)
		}

		return nil
	})
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil
	}

	if err != nil {
		return err
	}

	for _, f := range files {
		if err := w.remote.Delete(ctx, creds, f, "Delete "+f); err != nil {
			return err
		}
	}

	return nil
}

// commit folds the sent changes into the baseline and the stored
// collections, then drops them from the queue. The baseline is read at
// commit time so a reload during the sync is kept. Changes queued while
// the sync ran stay queued.
func (w *Workspace) commit(virtual []models.Note, sent []models.PendingChange) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	synced, err := tree.Replay(w.baseline, virtual, sent, w.treeOpts)
	if err != nil {
		return err
	}

	notes := synced.Notes()
	for i := range notes {
		notes[i].IsVirtual = false
	}

	snap := reconcile.Snapshot{Folders: synced.Folders(), Notes: notes}
	if err := snap.Save(w.store); err != nil {
		return err
	}

	w.baseline = tree.Build(snap.Folders, snap.Notes, w.treeOpts)

	if err := w.dropVirtual(virtual); err != nil {
		return err
	}

	if err := w.queue.Drop(sent); err != nil {
		return err
	}

	return w.replayLocked()
}

// dropVirtual removes the given notes from the stored virtual notes
// unless they were edited again since.
func (w *Workspace) dropVirtual(done []models.Note) error {
	stored, _, err := state.LoadJSON[[]models.Note](w.store, state.KeyVirtualNotes)
	if err != nil {
		return err
	}

	kept := []models.Note{}

	for _, n := range stored {
		if !containsVersion(done, n) {
			kept = append(kept, n)
		}
	}

	return state.SaveJSON(w.store, state.KeyVirtualNotes, kept)
}

func containsVersion(notes []models.Note, n models.Note) bool {
	for _, d := range notes {
		if d.Path == n.Path && d.UpdatedAt.Equal(n.UpdatedAt) {
			return true
		}
	}

	return false
}

// Pull merges the remote repository into the stored collections and
// rebuilds the tree. Without credentials the local state is kept. Pull
// and Sync exclude each other.
func (w *Workspace) Pull(ctx context.Context) (reconcile.Snapshot, error) {
	if !w.syncMu.TryLock() {
		return reconcile.Snapshot{}, apperrors.ErrSyncInProgress
	}
	defer w.syncMu.Unlock()

	creds, err := w.Credentials()
	if err != nil {
		return reconcile.Snapshot{}, err
	}

	if w.reconciler == nil {
		return reconcile.Snapshot{}, apperrors.ErrMissingCredentials
	}

	w.mu.RLock()
	local := reconcile.SnapshotOf(w.baseline)
	w.mu.RUnlock()

	merged, err := w.reconciler.Load(ctx, creds, local)
	if err != nil {
		return reconcile.Snapshot{}, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.baseline = tree.Build(merged.Folders, merged.Notes, w.treeOpts)

	if err := w.replayLocked(); err != nil {
		return reconcile.Snapshot{}, err
	}

	w.notify(EventPulled)

	return merged, nil
}
