package tree

import (
	"fmt"
	"path"
	"strings"
	"time"

	apperrors "github.com/alexjbarnes/mdnotes/internal/errors"
	"github.com/alexjbarnes/mdnotes/internal/frontmatter"
	"github.com/alexjbarnes/mdnotes/internal/models"
)

// Apply reduces one pending change into the tree.
//
// CREATE walks the parent path by folder name, creating missing folders,
// and adds the note or folder. A note created where one already exists
// replaces its content. DELETE walks the parent path by folder name and,
// in the last folder, removes folders named like the final segment and
// notes whose path equals the target exactly. UPDATE replaces the content
// of the note at the path. Missing targets are ignored.
//
// Change content is a whole file. A front-matter header is split off and
// its title and tags become the note's metadata.
func (t *Tree) Apply(change models.PendingChange) error {
	at := t.opts.now()
	if !change.QueuedAt.IsZero() {
		at = change.QueuedAt.UTC()
	}

	switch change.Type {
	case models.ChangeCreate:
		if change.ItemType == models.ItemFolder {
			t.createFolder(change.Path, at)
			return nil
		}

		t.createNote(change, at)

		return nil
	case models.ChangeDelete:
		t.remove(change.Path)
		return nil
	case models.ChangeUpdate:
		t.update(change, at)
		return nil
	default:
		return fmt.Errorf("%w: unknown change type %q", apperrors.ErrInvalidChange, change.Type)
	}
}

func (t *Tree) createFolder(p string, at time.Time) {
	parts := segments(p)
	if len(parts) == 0 {
		return
	}

	t.ensureFolders(parts, at)
}

func (t *Tree) createNote(change models.PendingChange, at time.Time) {
	parts := segments(change.Path)
	if len(parts) == 0 {
		return
	}

	slug := strings.TrimSuffix(parts[len(parts)-1], ".md")
	body, title, tags := splitContent(change)

	if title == "" {
		title = slug
	}

	t.putNote(parts, models.Note{
		Slug:      slug,
		Title:     title,
		Content:   body,
		Tags:      tags,
		CreatedAt: at,
		UpdatedAt: at,
	})
}

// splitContent returns the body of the change content and the title and
// tags to apply. Explicit change metadata wins over the header.
func splitContent(change models.PendingChange) (body, title string, tags []string) {
	body, title, tags = change.Content, change.Title, change.Tags

	meta, rest, ok := frontmatter.Parse(change.Content)
	if !ok {
		return body, title, tags
	}

	if title == "" {
		title = meta.Title
	}

	if tags == nil {
		tags = meta.Tags
	}

	return rest, title, tags
}

// putNote adds note at parts, creating folders on the way. When a note
// already sits at that path its fields are replaced, keeping its id and
// creation time.
func (t *Tree) putNote(parts []string, note models.Note) {
	parent := t.ensureFolders(parts[:len(parts)-1], note.CreatedAt)
	note.Path = path.Join(parent.folder.Path, parts[len(parts)-1])

	if id, ok := t.paths[note.Path]; ok {
		if existing := t.nodes[id]; !existing.isFolder() {
			note.ID = existing.note.ID
			if !existing.note.CreatedAt.IsZero() {
				note.CreatedAt = existing.note.CreatedAt
			}

			existing.note = cloneNote(&note)

			return
		}
	}

	if note.ID == "" {
		note.ID = IdentityFor(models.ItemFile, note.Path)
	}

	if _, taken := t.nodes[note.ID]; taken {
		note.ID = IdentityFor(models.ItemFile, note.Path)
	}

	t.attach(parent, &node{id: note.ID, note: cloneNote(&note)})
}

func (t *Tree) remove(p string) {
	parts := segments(p)
	if len(parts) == 0 {
		return
	}

	cur := t.nodes[RootID]

	for _, part := range parts[:len(parts)-1] {
		next, ok := t.child(cur.id, part)
		if !ok {
			return
		}

		cur = next
	}

	last := parts[len(parts)-1]
	target := Clean(p)

	var doomed []*node

	for _, id := range cur.children {
		c := t.nodes[id]

		switch {
		case c.isFolder() && c.folder.Name == last:
			doomed = append(doomed, c)
		case !c.isFolder() && c.note.Path == target:
			doomed = append(doomed, c)
		}
	}

	for _, n := range doomed {
		t.detach(n, n.isFolder() && !t.opts.CascadeDelete)
	}
}

func (t *Tree) update(change models.PendingChange, at time.Time) {
	id, ok := t.paths[Clean(change.Path)]
	if !ok {
		return
	}

	n := t.nodes[id]
	if n.isFolder() {
		return
	}

	body, title, tags := splitContent(change)

	n.note.Content = body
	n.note.UpdatedAt = at

	if title != "" {
		n.note.Title = title
	}

	if tags != nil {
		n.note.Tags = append([]string(nil), tags...)
	}
}

// Replay builds the virtual tree: a copy of baseline, then the persisted
// virtual notes at their paths (marked virtual), then every change in
// order. The baseline is not modified. Replaying the same inputs with the
// same clock yields an identical tree.
func Replay(baseline *Tree, virtual []models.Note, changes []models.PendingChange, opts Options) (*Tree, error) {
	t := baseline.WithOptions(opts)

	for _, note := range virtual {
		parts := segments(note.Path)
		if len(parts) == 0 {
			continue
		}

		note.IsVirtual = true
		t.putNote(parts, note)
	}

	for i, change := range changes {
		if err := t.Apply(change); err != nil {
			return nil, fmt.Errorf("replaying change %d (%s): %w", i, change.Path, err)
		}
	}

	return t, nil
}

// Build assembles a tree from flat folder and note collections. Folders
// are created in order, then notes are put at their paths. Later entries
// for a path replace earlier ones.
func Build(folders []models.Folder, notes []models.Note, opts Options) *Tree {
	t := New(opts)

	for _, f := range folders {
		parts := segments(f.Path)
		if len(parts) == 0 {
			continue
		}

		n := t.ensureFolders(parts, f.CreatedAt)
		if !f.CreatedAt.IsZero() {
			n.folder.CreatedAt = f.CreatedAt
		}

		if f.UpdatedAt.After(n.folder.UpdatedAt) {
			n.folder.UpdatedAt = f.UpdatedAt
		}
	}

	for _, note := range notes {
		parts := segments(note.Path)
		if len(parts) == 0 {
			continue
		}

		note.FolderID = ""
		t.putNote(parts, note)
	}

	return t
}
