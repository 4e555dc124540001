package tree

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/alexjbarnes/mdnotes/internal/errors"
	"github.com/alexjbarnes/mdnotes/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixed = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testOpts() Options {
	return Options{Now: func() time.Time { return fixed }}
}

// workBaseline is a tree with folder "work" holding "work/todo.md".
func workBaseline(t *testing.T) *Tree {
	t.Helper()
	return Build(
		[]models.Folder{{Name: "work", Path: "work"}},
		[]models.Note{{Slug: "todo", Title: "todo", Path: "work/todo.md", Content: "buy milk"}},
		testOpts(),
	)
}

func createFile(p, content string) models.PendingChange {
	return models.PendingChange{Type: models.ChangeCreate, ItemType: models.ItemFile, Path: p, Content: content}
}

func deleteItem(p string, it models.ItemType) models.PendingChange {
	return models.PendingChange{Type: models.ChangeDelete, ItemType: it, Path: p}
}

func notePaths(tr *Tree) []string {
	var out []string
	for _, n := range tr.Notes() {
		out = append(out, n.Path)
	}
	return out
}

// --- Replay ---

func TestReplay_WorkExample(t *testing.T) {
	base := workBaseline(t)
	changes := []models.PendingChange{
		createFile("work/notes.md", ""),
		{Type: models.ChangeUpdate, ItemType: models.ItemFile, Path: "work/todo.md", Content: "done"},
	}

	tr, err := Replay(base, nil, changes, testOpts())
	require.NoError(t, err)

	snap := tr.Snapshot()
	require.Len(t, snap.Children, 1)
	work := snap.Children[0].Folder
	require.NotNil(t, work)
	assert.Equal(t, "work", work.Name)
	require.Len(t, work.Children, 2)

	todo := work.Children[0].Note
	require.NotNil(t, todo)
	assert.Equal(t, "work/todo.md", todo.Path)
	assert.Equal(t, "done", todo.Content)
	assert.Equal(t, fixed, todo.UpdatedAt)

	created := work.Children[1].Note
	require.NotNil(t, created)
	assert.Equal(t, "work/notes.md", created.Path)
	assert.Equal(t, "notes", created.Slug)
	assert.Equal(t, "notes", created.Title)
	assert.False(t, created.IsVirtual)
	assert.NotEmpty(t, created.ID)
}

func TestReplay_CreatesAreReachable(t *testing.T) {
	base := workBaseline(t)
	changes := []models.PendingChange{
		createFile("a.md", "A"),
		createFile("deep/er/b.md", "B"),
		createFile("work/c.md", "C"),
	}

	tr, err := Replay(base, nil, changes, testOpts())
	require.NoError(t, err)

	assert.ElementsMatch(t,
		[]string{"work/todo.md", "a.md", "deep/er/b.md", "work/c.md"},
		notePaths(tr))

	for _, c := range changes {
		n, ok := tr.NoteByPath(c.Path)
		require.True(t, ok, c.Path)
		assert.Equal(t, c.Content, n.Content)
	}

	f, ok := tr.Folder("deep/er")
	require.True(t, ok)
	assert.Equal(t, "er", f.Name)
}

func TestReplay_CreateThenDelete(t *testing.T) {
	base := workBaseline(t)
	changes := []models.PendingChange{
		createFile("work/gone.md", "x"),
		deleteItem("work/gone.md", models.ItemFile),
	}

	tr, err := Replay(base, nil, changes, testOpts())
	require.NoError(t, err)

	_, ok := tr.NoteByPath("work/gone.md")
	assert.False(t, ok)
	assert.Equal(t, []string{"work/todo.md"}, notePaths(tr))
}

func TestReplay_Idempotent(t *testing.T) {
	base := workBaseline(t)
	virtual := []models.Note{{Path: "ideas/x.md", Title: "x", Content: "draft"}}
	changes := []models.PendingChange{
		createFile("work/notes.md", "---\ntitle: Notes\n---\n\nhello"),
		{Type: models.ChangeCreate, ItemType: models.ItemFolder, Path: "archive"},
		{Type: models.ChangeUpdate, ItemType: models.ItemFile, Path: "work/todo.md", Content: "done"},
		deleteItem("archive", models.ItemFolder),
	}

	first, err := Replay(base, virtual, changes, testOpts())
	require.NoError(t, err)
	second, err := Replay(base, virtual, changes, testOpts())
	require.NoError(t, err)

	assert.Equal(t, first.Snapshot(), second.Snapshot())
	assert.Equal(t, first.Notes(), second.Notes())
}

func TestReplay_DoesNotModifyBaseline(t *testing.T) {
	base := workBaseline(t)
	before := base.Snapshot()

	_, err := Replay(base, nil, []models.PendingChange{
		createFile("work/new.md", ""),
		{Type: models.ChangeUpdate, Path: "work/todo.md", Content: "changed"},
		deleteItem("work", models.ItemFolder),
	}, testOpts())
	require.NoError(t, err)

	assert.Equal(t, before, base.Snapshot())
}

func TestReplay_VirtualNotes(t *testing.T) {
	base := workBaseline(t)
	virtual := []models.Note{
		{ID: "v1", Path: "work/todo.md", Title: "todo", Content: "edited"},
		{ID: "v2", Path: "drafts/new.md", Title: "new", Content: "fresh"},
	}

	tr, err := Replay(base, virtual, nil, testOpts())
	require.NoError(t, err)

	todo, ok := tr.NoteByPath("work/todo.md")
	require.True(t, ok)
	assert.Equal(t, "edited", todo.Content)
	assert.True(t, todo.IsVirtual)
	assert.Equal(t, IdentityFor(models.ItemFile, "work/todo.md"), todo.ID, "replacing keeps the existing id")

	fresh, ok := tr.NoteByPath("drafts/new.md")
	require.True(t, ok)
	assert.True(t, fresh.IsVirtual)
	assert.Equal(t, "v2", fresh.ID)

	assert.Len(t, tr.VirtualNotes(), 2)
	assert.Len(t, tr.Notes(), 2, "paths stay unique")
}

func TestReplay_UnknownChangeType(t *testing.T) {
	_, err := Replay(New(testOpts()), nil, []models.PendingChange{{Type: "RENAME", Path: "a.md"}}, testOpts())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidChange)
}

// --- Apply ---

func TestApply_CreateUsesQueuedAt(t *testing.T) {
	tr := New(testOpts())
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	c := createFile("a.md", "")
	c.QueuedAt = at
	require.NoError(t, tr.Apply(c))

	n, ok := tr.NoteByPath("a.md")
	require.True(t, ok)
	assert.Equal(t, at, n.UpdatedAt)
	assert.Equal(t, at, n.CreatedAt)
}

func TestApply_CreateParsesFrontmatter(t *testing.T) {
	tr := New(testOpts())
	require.NoError(t, tr.Apply(createFile("work/plan.md", "---\ntitle: The Plan\ntags: [q1]\n---\n\nsteps")))

	n, ok := tr.NoteByPath("work/plan.md")
	require.True(t, ok)
	assert.Equal(t, "The Plan", n.Title)
	assert.Equal(t, "plan", n.Slug)
	assert.Equal(t, "steps", n.Content)
	assert.Equal(t, []string{"q1"}, n.Tags)
}

func TestApply_CreateExistingReplaces(t *testing.T) {
	tr := workBaseline(t)
	require.NoError(t, tr.Apply(createFile("work/todo.md", "again")))

	assert.Equal(t, []string{"work/todo.md"}, notePaths(tr))
	n, _ := tr.NoteByPath("work/todo.md")
	assert.Equal(t, "again", n.Content)
}

func TestApply_CreateFolderTwice(t *testing.T) {
	tr := New(testOpts())
	c := models.PendingChange{Type: models.ChangeCreate, ItemType: models.ItemFolder, Path: "a/b"}
	require.NoError(t, tr.Apply(c))
	require.NoError(t, tr.Apply(c))

	assert.Len(t, tr.Folders(), 2)
	f, ok := tr.Folder("a/b")
	require.True(t, ok)
	assert.Equal(t, IdentityFor(models.ItemFolder, "a/b"), f.ID)
}

func TestApply_UpdateMissingIsNoop(t *testing.T) {
	tr := workBaseline(t)
	before := tr.Snapshot()

	require.NoError(t, tr.Apply(models.PendingChange{Type: models.ChangeUpdate, Path: "work/nope.md", Content: "x"}))
	require.NoError(t, tr.Apply(models.PendingChange{Type: models.ChangeUpdate, Path: "work", Content: "x"}))
	assert.Equal(t, before, tr.Snapshot())
}

func TestApply_UpdateWithHeaderSetsTitle(t *testing.T) {
	tr := workBaseline(t)
	require.NoError(t, tr.Apply(models.PendingChange{
		Type: models.ChangeUpdate, Path: "work/todo.md", Content: "---\ntitle: Todo list\n---\n\n- milk",
	}))

	n, _ := tr.NoteByPath("work/todo.md")
	assert.Equal(t, "Todo list", n.Title)
	assert.Equal(t, "- milk", n.Content)
}

func TestApply_DeleteMissingParentIsNoop(t *testing.T) {
	tr := workBaseline(t)
	before := tr.Snapshot()

	require.NoError(t, tr.Apply(deleteItem("nope/todo.md", models.ItemFile)))
	require.NoError(t, tr.Apply(deleteItem("", models.ItemFile)))
	assert.Equal(t, before, tr.Snapshot())
}

func TestApply_DeleteMatchesExactNotePath(t *testing.T) {
	tr := workBaseline(t)
	require.NoError(t, tr.Apply(createFile("work/todo.md.bak", "")))

	require.NoError(t, tr.Apply(deleteItem("work/todo.md", models.ItemFile)))
	assert.Equal(t, []string{"work/todo.md.bak"}, notePaths(tr))
}

func TestApply_DeleteFolder(t *testing.T) {
	tests := []struct {
		name        string
		cascade     bool
		wantOrphans int
	}{
		{"detached children kept as orphans", false, 3},
		{"cascade removes subtree", true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOpts()
			opts.CascadeDelete = tt.cascade

			base := workBaseline(t)
			changes := []models.PendingChange{
				createFile("work/sub/deep.md", ""),
				createFile("keep.md", ""),
				deleteItem("work", models.ItemFolder),
			}

			tr, err := Replay(base, nil, changes, opts)
			require.NoError(t, err)

			assert.Equal(t, []string{"keep.md"}, notePaths(tr))
			assert.Empty(t, tr.Folders())
			assert.Equal(t, tt.wantOrphans, tr.Orphans())

			_, ok := tr.NoteByPath("work/todo.md")
			assert.False(t, ok)
			_, ok = tr.Note(IdentityFor(models.ItemFile, "work/todo.md"))
			assert.False(t, ok, "orphans are not reachable by id")

			// Recreating the folder starts empty either way.
			require.NoError(t, tr.Apply(models.PendingChange{Type: models.ChangeCreate, ItemType: models.ItemFolder, Path: "work"}))
			snap := tr.Snapshot()
			require.Len(t, snap.Children, 2)
			assert.Empty(t, snap.Children[1].Folder.Children)
		})
	}
}

// --- Direct edits and queries ---

func TestUpdateNote(t *testing.T) {
	tr := workBaseline(t)
	id := IdentityFor(models.ItemFile, "work/todo.md")
	title := "Todo"
	content := "all done"

	n, err := tr.UpdateNote(id, models.NoteUpdate{Title: &title, Content: &content, Tags: []string{"home"}})
	require.NoError(t, err)
	assert.Equal(t, "Todo", n.Title)
	assert.Equal(t, "all done", n.Content)
	assert.Equal(t, []string{"home"}, n.Tags)
	assert.Equal(t, fixed, n.UpdatedAt)
	assert.True(t, n.IsVirtual)

	virtual := tr.VirtualNotes()
	require.Len(t, virtual, 1)
	assert.Equal(t, "work/todo.md", virtual[0].Path)
	assert.Empty(t, virtual[0].FolderID)
}

func TestUpdateNote_PartialLeavesOtherFields(t *testing.T) {
	tr := workBaseline(t)
	id := IdentityFor(models.ItemFile, "work/todo.md")
	content := "new"

	n, err := tr.UpdateNote(id, models.NoteUpdate{Content: &content})
	require.NoError(t, err)
	assert.Equal(t, "todo", n.Title)
	assert.Equal(t, "new", n.Content)
}

func TestUpdateNote_NotFound(t *testing.T) {
	tr := workBaseline(t)
	_, err := tr.UpdateNote("missing", models.NoteUpdate{})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = tr.UpdateNote(IdentityFor(models.ItemFolder, "work"), models.NoteUpdate{})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestNotesAndFolders_ParentIDs(t *testing.T) {
	tr := workBaseline(t)
	require.NoError(t, tr.Apply(createFile("root.md", "")))

	folders := tr.Folders()
	require.Len(t, folders, 1)
	assert.Equal(t, RootID, folders[0].ParentID)
	assert.Nil(t, folders[0].Children)

	notes := tr.Notes()
	require.Len(t, notes, 2)
	assert.Equal(t, folders[0].ID, notes[0].FolderID)
	assert.Equal(t, RootID, notes[1].FolderID)
	assert.Equal(t, 3, tr.Len())
}

func TestSearch(t *testing.T) {
	tr := New(testOpts())
	for _, c := range []models.PendingChange{
		{Type: models.ChangeCreate, Path: "go.md", Title: "Learning Go", Content: "channels", Tags: []string{"dev", "go"}},
		{Type: models.ChangeCreate, Path: "shop.md", Title: "Shopping", Content: "Go to the market", Tags: []string{"home"}},
		{Type: models.ChangeCreate, Path: "misc.md", Title: "Misc", Content: "nothing", Tags: []string{"dev"}},
	} {
		require.NoError(t, tr.Apply(c))
	}

	tests := []struct {
		name string
		term string
		tags []string
		want []string
	}{
		{"empty matches all", "", nil, []string{"go.md", "shop.md", "misc.md"}},
		{"case insensitive title and content", "GO", nil, []string{"go.md", "shop.md"}},
		{"content only", "channels", nil, []string{"go.md"}},
		{"single tag", "", []string{"dev"}, []string{"go.md", "misc.md"}},
		{"all tags required", "", []string{"dev", "go"}, []string{"go.md"}},
		{"term and tag", "go", []string{"home"}, []string{"shop.md"}},
		{"no match", "zzz", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, n := range tr.Search(tt.term, tt.tags) {
				got = append(got, n.Path)
			}
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Equal(t, []string{"dev", "go", "home"}, tr.Tags())
}

func TestValidatePath(t *testing.T) {
	tests := []struct {
		path string
		ok   bool
	}{
		{"work/todo.md", true},
		{"/work//todo.md/", true},
		{"notes..md", true},
		{"", false},
		{"/", false},
		{"../README.md", false},
		{"work/../../x.md", false},
		{"./a.md", false},
		{"work/..", false},
		{"..\\README.md", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			err := ValidatePath(tt.path)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestIdentityFor(t *testing.T) {
	a := IdentityFor(models.ItemFile, "notes/caf\u00e9.md")
	b := IdentityFor(models.ItemFile, "/notes/cafe\u0301.md")
	assert.Equal(t, a, b, "NFC and slash normalised")
	assert.NotEqual(t, a, IdentityFor(models.ItemFolder, "notes/café.md"))
	assert.NotEqual(t, a, IdentityFor(models.ItemFile, "notes/other.md"))
}

func TestClone_Independent(t *testing.T) {
	tr := workBaseline(t)
	c := tr.Clone()
	require.NoError(t, c.Apply(deleteItem("work", models.ItemFolder)))

	assert.Len(t, tr.Notes(), 1)
	assert.Empty(t, c.Notes())
}

// --- Content loading ---

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func TestLoadContent(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "work/todo.md", "---\ntitle: Todo\nupdatedAt: 2024-05-01T00:00:00.000Z\n---\n\nbuy milk")
	writeFile(t, dir, "readme.md", "no header")
	writeFile(t, dir, "image.png", "binary")
	writeFile(t, dir, ".hidden/secret.md", "x")
	writeFile(t, dir, ".draft.md", "x")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "empty"), 0o755))

	tr, err := LoadContent(dir, testOpts())
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"readme.md", "work/todo.md"}, notePaths(tr))

	todo, ok := tr.NoteByPath("work/todo.md")
	require.True(t, ok)
	assert.Equal(t, "Todo", todo.Title)
	assert.Equal(t, "todo", todo.Slug)
	assert.Equal(t, "buy milk", todo.Content)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), todo.UpdatedAt)
	assert.Equal(t, IdentityFor(models.ItemFile, "work/todo.md"), todo.ID)

	readme, ok := tr.NoteByPath("readme.md")
	require.True(t, ok)
	assert.Equal(t, "readme", readme.Title)
	assert.Equal(t, "no header", readme.Content)
	assert.False(t, readme.UpdatedAt.IsZero(), "falls back to mtime")

	_, ok = tr.Folder("empty")
	assert.True(t, ok)
}

func TestLoadContent_MissingDir(t *testing.T) {
	tr, err := LoadContent(filepath.Join(t.TempDir(), "nope"), testOpts())
	require.NoError(t, err)
	assert.Zero(t, tr.Len())
}

func TestNotePathsAndRoutes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.md", "")
	writeFile(t, dir, "a/c.md", "")
	writeFile(t, dir, "a/skip.txt", "")

	paths, err := NotePaths(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"a/c.md", "b.md"}, paths)

	assert.Equal(t, []string{"/notes/a/c/", "/notes/b/"}, Routes(paths))
	assert.Empty(t, Routes([]string{"", "/"}))
}
