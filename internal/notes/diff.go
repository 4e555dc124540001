package notes

import (
	"fmt"

	apperrors "github.com/alexjbarnes/mdnotes/internal/errors"
	"github.com/alexjbarnes/mdnotes/internal/frontmatter"
	"github.com/alexjbarnes/mdnotes/internal/models"
	"github.com/alexjbarnes/mdnotes/internal/tree"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// diffCleanupThreshold is the minimum number of diffs before running the
// semantic and efficiency cleanup passes.
const diffCleanupThreshold = 2

// Diff describes what a pending change does to a note's body.
type Diff struct {
	Path       string            `json:"path"`
	Type       models.ChangeType `json:"type"`
	Patch      string            `json:"patch"`
	Insertions int               `json:"insertions"`
	Deletions  int               `json:"deletions"`
}

// Diff compares the pending change for p with the baseline version of
// the note. The patch is in diff-match-patch text form with character
// offsets.
func (w *Workspace) Diff(p string) (Diff, error) {
	p = tree.Clean(p)

	changes, err := w.queue.List()
	if err != nil {
		return Diff{}, err
	}

	var (
		change models.PendingChange
		found  bool
	)

	for _, c := range changes {
		if tree.Clean(c.Path) == p {
			change, found = c, true
		}
	}

	if !found {
		return Diff{}, fmt.Errorf("pending change for %s: %w", p, apperrors.ErrNotFound)
	}

	if change.ItemType == models.ItemFolder {
		return Diff{Path: p, Type: change.Type}, nil
	}

	w.mu.RLock()
	before, _ := w.baseline.NoteByPath(p)
	w.mu.RUnlock()

	after := ""
	if change.Type != models.ChangeDelete {
		after = change.Content
		if _, body, ok := frontmatter.Parse(change.Content); ok {
			after = body
		}
	}

	dmp := diffmatchpatch.New()

	diffs := dmp.DiffMain(before.Content, after, true)
	if len(diffs) > diffCleanupThreshold {
		diffs = dmp.DiffCleanupSemantic(diffs)
		diffs = dmp.DiffCleanupEfficiency(diffs)
	}

	d := Diff{
		Path:  p,
		Type:  change.Type,
		Patch: dmp.PatchToText(dmp.PatchMake(before.Content, diffs)),
	}

	for _, df := range diffs {
		switch df.Type {
		case diffmatchpatch.DiffInsert:
			d.Insertions += len([]rune(df.Text))
		case diffmatchpatch.DiffDelete:
			d.Deletions += len([]rune(df.Text))
		}
	}

	return d, nil
}
