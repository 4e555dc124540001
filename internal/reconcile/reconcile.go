// Package reconcile merges the notes found in the remote repository into
// local state with a last-writer-wins rule.
package reconcile

import (
	"fmt"

	"github.com/alexjbarnes/mdnotes/internal/models"
	"github.com/alexjbarnes/mdnotes/internal/state"
	"github.com/alexjbarnes/mdnotes/internal/tree"
)

// Snapshot is the flat form of a tree: every folder and note, keyed by id.
type Snapshot struct {
	Folders []models.Folder `json:"folders"`
	Notes   []models.Note   `json:"notes"`
}

// SnapshotOf flattens t.
func SnapshotOf(t *tree.Tree) Snapshot {
	return Snapshot{Folders: t.Folders(), Notes: t.Notes()}
}

// LoadSnapshot reads the stored folder and note collections. Missing or
// unreadable collections are empty.
func LoadSnapshot(s state.Storage) (Snapshot, error) {
	folders, _, err := state.LoadJSON[[]models.Folder](s, state.KeyFolders)
	if err != nil {
		return Snapshot{}, err
	}

	notes, _, err := state.LoadJSON[[]models.Note](s, state.KeyNotes)
	if err != nil {
		return Snapshot{}, err
	}

	return Snapshot{Folders: folders, Notes: notes}, nil
}

// Save stores the collections of snap.
func (snap Snapshot) Save(s state.Storage) error {
	folders := snap.Folders
	if folders == nil {
		folders = []models.Folder{}
	}

	notes := snap.Notes
	if notes == nil {
		notes = []models.Note{}
	}

	if err := state.SaveJSON(s, state.KeyFolders, folders); err != nil {
		return fmt.Errorf("saving folders: %w", err)
	}

	if err := state.SaveJSON(s, state.KeyNotes, notes); err != nil {
		return fmt.Errorf("saving notes: %w", err)
	}

	return nil
}

// Decision is the outcome of comparing a local and a remote version of
// the same entity.
type Decision int

const (
	// DecisionKeepLocal keeps the local version.
	DecisionKeepLocal Decision = iota

	// DecisionTakeRemote replaces the local version with the remote one.
	DecisionTakeRemote
)

// DecideNote picks the version of a note to keep. A side that is missing
// loses. Otherwise the later UpdatedAt wins and a tie goes to the remote
// side: local wins only when strictly newer. Content is not compared, so
// concurrent edits silently lose one side.
func DecideNote(local, remote *models.Note) Decision {
	if remote == nil {
		return DecisionKeepLocal
	}

	if local == nil {
		return DecisionTakeRemote
	}

	if local.UpdatedAt.After(remote.UpdatedAt) {
		return DecisionKeepLocal
	}

	return DecisionTakeRemote
}

// DecideFolder picks the version of a folder to keep, by the same rule as
// DecideNote.
func DecideFolder(local, remote *models.Folder) Decision {
	if remote == nil {
		return DecisionKeepLocal
	}

	if local == nil {
		return DecisionTakeRemote
	}

	if local.UpdatedAt.After(remote.UpdatedAt) {
		return DecisionKeepLocal
	}

	return DecisionTakeRemote
}

// Merge combines local and remote per entity id. Entities on one side
// only are kept. Entities on both sides are resolved by DecideFolder and
// DecideNote. The result lists local entities in local order followed by
// remote-only entities in remote order. Merge does no I/O.
func Merge(local, remote Snapshot) Snapshot {
	var out Snapshot

	remoteFolders := make(map[string]*models.Folder, len(remote.Folders))
	for i := range remote.Folders {
		remoteFolders[folderKey(remote.Folders[i])] = &remote.Folders[i]
	}

	seen := make(map[string]bool)

	for i := range local.Folders {
		l := &local.Folders[i]
		key := folderKey(*l)
		seen[key] = true

		if DecideFolder(l, remoteFolders[key]) == DecisionTakeRemote {
			out.Folders = append(out.Folders, *remoteFolders[key])
			continue
		}

		out.Folders = append(out.Folders, *l)
	}

	for _, r := range remote.Folders {
		if !seen[folderKey(r)] {
			out.Folders = append(out.Folders, r)
		}
	}

	remoteNotes := make(map[string]*models.Note, len(remote.Notes))
	for i := range remote.Notes {
		remoteNotes[noteKey(remote.Notes[i])] = &remote.Notes[i]
	}

	seen = make(map[string]bool)

	for i := range local.Notes {
		l := &local.Notes[i]
		key := noteKey(*l)
		seen[key] = true

		if DecideNote(l, remoteNotes[key]) == DecisionTakeRemote {
			out.Notes = append(out.Notes, *remoteNotes[key])
			continue
		}

		out.Notes = append(out.Notes, *l)
	}

	for _, r := range remote.Notes {
		if !seen[noteKey(r)] {
			out.Notes = append(out.Notes, r)
		}
	}

	return out
}

func folderKey(f models.Folder) string {
	if f.ID != "" {
		return f.ID
	}

	return tree.IdentityFor(models.ItemFolder, f.Path)
}

func noteKey(n models.Note) string {
	if n.ID != "" {
		return n.ID
	}

	return tree.IdentityFor(models.ItemFile, n.Path)
}
