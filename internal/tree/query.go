package tree

import (
	"slices"
	"strings"

	apperrors "github.com/alexjbarnes/mdnotes/internal/errors"
	"github.com/alexjbarnes/mdnotes/internal/models"
)

// UpdateNote applies a direct edit to the note with the given id: set
// fields are merged, UpdatedAt is bumped and the note becomes virtual.
// It returns the updated note.
func (t *Tree) UpdateNote(id string, upd models.NoteUpdate) (models.Note, error) {
	n, ok := t.nodes[id]
	if !ok || n.isFolder() {
		return models.Note{}, apperrors.ErrNotFound
	}

	if upd.Title != nil {
		n.note.Title = *upd.Title
	}

	if upd.Content != nil {
		n.note.Content = *upd.Content
	}

	if upd.Tags != nil {
		n.note.Tags = append([]string(nil), upd.Tags...)
	}

	n.note.UpdatedAt = t.opts.now()
	n.note.IsVirtual = true

	return *cloneNote(n.note), nil
}

// VirtualNotes returns the reachable notes marked virtual.
func (t *Tree) VirtualNotes() []models.Note {
	var out []models.Note

	for _, n := range t.Notes() {
		if n.IsVirtual {
			n.FolderID = ""
			out = append(out, n)
		}
	}

	return out
}

// Search returns the notes whose title or content contains term, ignoring
// case, and that carry every tag in tags. An empty term matches all notes.
func (t *Tree) Search(term string, tags []string) []models.Note {
	term = strings.ToLower(strings.TrimSpace(term))

	var out []models.Note

	for _, n := range t.Notes() {
		if term != "" &&
			!strings.Contains(strings.ToLower(n.Title), term) &&
			!strings.Contains(strings.ToLower(n.Content), term) {
			continue
		}

		if !hasAll(n.Tags, tags) {
			continue
		}

		out = append(out, n)
	}

	return out
}

func hasAll(have, want []string) bool {
	for _, w := range want {
		if !slices.Contains(have, w) {
			return false
		}
	}

	return true
}

// Tags returns every tag used in the tree, sorted and deduplicated.
func (t *Tree) Tags() []string {
	var out []string

	for _, n := range t.Notes() {
		out = append(out, n.Tags...)
	}

	slices.Sort(out)

	return slices.Compact(out)
}
