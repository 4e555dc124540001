// Package tree builds the in-memory folder/note hierarchy the workspace
// serves: a baseline loaded from content with pending changes replayed on
// top of it.
package tree

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/alexjbarnes/mdnotes/internal/models"
	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

// RootID is the id of the root folder of every tree.
const RootID = "root"

var identitySpace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/alexjbarnes/mdnotes"))

// IdentityFor returns the stable id of the item of the given kind at p.
// The same path always maps to the same id, on any machine.
func IdentityFor(kind models.ItemType, p string) string {
	name := string(kind) + ":" + norm.NFC.String(Clean(p))
	return uuid.NewSHA1(identitySpace, []byte(name)).String()
}

// Clean trims slashes and drops empty segments. It does not resolve "..".
func Clean(p string) string {
	return strings.Join(segments(p), "/")
}

// ValidatePath rejects paths that are empty or could escape the content
// root once joined with a prefix.
func ValidatePath(p string) error {
	if strings.ContainsRune(p, '\\') {
		return errors.New("path must not contain '\\'")
	}

	parts := segments(p)
	if len(parts) == 0 {
		return errors.New("path is empty")
	}

	for _, s := range parts {
		if s == "." || s == ".." {
			return fmt.Errorf("path %q must not contain . or .. segments", p)
		}
	}

	return nil
}

func segments(p string) []string {
	parts := strings.Split(p, "/")
	out := parts[:0]

	for _, s := range parts {
		if s != "" {
			out = append(out, s)
		}
	}

	return out
}

// Options control how changes are applied.
type Options struct {
	// CascadeDelete removes every descendant of a deleted folder. When
	// false the descendants are detached and kept as orphans.
	CascadeDelete bool

	// Now is the clock for timestamps set during replay. Defaults to
	// time.Now.
	Now func() time.Time
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now().UTC()
	}

	return time.Now().UTC()
}

// node is one arena slot. Folders carry a non-nil children slice.
type node struct {
	id       string
	parent   string
	folder   *models.Folder
	note     *models.Note
	children []string
}

func (n *node) isFolder() bool {
	return n.children != nil
}

func (n *node) path() string {
	if n.isFolder() {
		return n.folder.Path
	}

	return n.note.Path
}

// Tree is an arena of folder and note nodes addressed by id, with parent
// pointers and a path index over every node reachable from the root.
// A Tree is not safe for concurrent use.
type Tree struct {
	opts    Options
	nodes   map[string]*node
	paths   map[string]string
	orphans map[string]*node
}

// New returns a tree holding only the root folder.
func New(opts Options) *Tree {
	t := &Tree{
		opts:    opts,
		nodes:   make(map[string]*node),
		paths:   make(map[string]string),
		orphans: make(map[string]*node),
	}

	t.nodes[RootID] = &node{
		id:       RootID,
		folder:   &models.Folder{ID: RootID, Name: "root"},
		children: []string{},
	}

	return t
}

// Clone returns a deep copy of t that shares no mutable state with it.
func (t *Tree) Clone() *Tree {
	c := &Tree{
		opts:    t.opts,
		nodes:   make(map[string]*node, len(t.nodes)),
		paths:   make(map[string]string, len(t.paths)),
		orphans: make(map[string]*node, len(t.orphans)),
	}

	for id, n := range t.nodes {
		c.nodes[id] = n.clone()
	}

	for p, id := range t.paths {
		c.paths[p] = id
	}

	for id, n := range t.orphans {
		c.orphans[id] = n.clone()
	}

	return c
}

func (n *node) clone() *node {
	c := &node{id: n.id, parent: n.parent}

	if n.folder != nil {
		f := *n.folder
		c.folder = &f
	}

	if n.note != nil {
		c.note = cloneNote(n.note)
	}

	if n.children != nil {
		c.children = append([]string{}, n.children...)
	}

	return c
}

func cloneNote(n *models.Note) *models.Note {
	c := *n
	if n.Tags != nil {
		c.Tags = append([]string(nil), n.Tags...)
	}

	return &c
}

// WithOptions returns a copy of t that applies changes with opts.
func (t *Tree) WithOptions(opts Options) *Tree {
	c := t.Clone()
	c.opts = opts

	return c
}

// Len returns the number of reachable folders and notes, root excluded.
func (t *Tree) Len() int {
	return len(t.nodes) - 1
}

// Orphans returns how many nodes were detached by folder deletes without
// cascade. Orphans are unreachable and never appear in lookups.
func (t *Tree) Orphans() int {
	return len(t.orphans)
}

// Note returns a copy of the reachable note with the given id.
func (t *Tree) Note(id string) (models.Note, bool) {
	n, ok := t.nodes[id]
	if !ok || n.isFolder() {
		return models.Note{}, false
	}

	return *cloneNote(n.note), true
}

// NoteByPath returns a copy of the reachable note at p.
func (t *Tree) NoteByPath(p string) (models.Note, bool) {
	id, ok := t.paths[Clean(p)]
	if !ok {
		return models.Note{}, false
	}

	return t.Note(id)
}

// Folder returns the reachable folder at p, without children. The empty
// path is the root.
func (t *Tree) Folder(p string) (models.Folder, bool) {
	id := RootID

	if p = Clean(p); p != "" {
		var ok bool
		if id, ok = t.paths[p]; !ok {
			return models.Folder{}, false
		}
	}

	n := t.nodes[id]
	if !n.isFolder() {
		return models.Folder{}, false
	}

	return *n.folder, true
}

// Snapshot renders the nested view of the tree rooted at the root folder.
// Children keep insertion order.
func (t *Tree) Snapshot() models.Folder {
	return t.snapshot(t.nodes[RootID])
}

func (t *Tree) snapshot(n *node) models.Folder {
	f := *n.folder
	f.Children = make([]models.Item, 0, len(n.children))

	for _, id := range n.children {
		child := t.nodes[id]
		if child.isFolder() {
			sub := t.snapshot(child)
			f.Children = append(f.Children, models.Item{Folder: &sub})

			continue
		}

		f.Children = append(f.Children, models.Item{Note: cloneNote(child.note)})
	}

	return f
}

// Notes returns every reachable note in depth-first order with FolderID
// set to its parent folder.
func (t *Tree) Notes() []models.Note {
	var out []models.Note

	t.walk(RootID, func(n *node) {
		if !n.isFolder() {
			note := *cloneNote(n.note)
			note.FolderID = n.parent
			out = append(out, note)
		}
	})

	return out
}

// Folders returns every reachable folder except the root in depth-first
// order with ParentID set.
func (t *Tree) Folders() []models.Folder {
	var out []models.Folder

	t.walk(RootID, func(n *node) {
		if n.isFolder() && n.id != RootID {
			f := *n.folder
			f.ParentID = n.parent
			f.Children = nil
			out = append(out, f)
		}
	})

	return out
}

func (t *Tree) walk(id string, fn func(*node)) {
	n := t.nodes[id]
	fn(n)

	for _, c := range n.children {
		t.walk(c, fn)
	}
}

// child returns the folder directly under parent named name.
func (t *Tree) child(parent, name string) (*node, bool) {
	for _, id := range t.nodes[parent].children {
		c := t.nodes[id]
		if c.isFolder() && c.folder.Name == name {
			return c, true
		}
	}

	return nil, false
}

// ensureFolders walks parts from the root by folder name, creating any
// missing folder, and returns the last folder's node.
func (t *Tree) ensureFolders(parts []string, at time.Time) *node {
	cur := t.nodes[RootID]

	for _, part := range parts {
		next, ok := t.child(cur.id, part)
		if !ok {
			p := path.Join(cur.folder.Path, part)
			next = &node{
				id:     IdentityFor(models.ItemFolder, p),
				parent: cur.id,
				folder: &models.Folder{
					Name:      part,
					Path:      p,
					CreatedAt: at,
					UpdatedAt: at,
				},
				children: []string{},
			}
			next.folder.ID = next.id
			t.attach(cur, next)
		}

		cur = next
	}

	return cur
}

func (t *Tree) attach(parent, n *node) {
	n.parent = parent.id
	parent.children = append(parent.children, n.id)
	t.nodes[n.id] = n
	t.paths[n.path()] = n.id
}

// detach unlinks the subtree rooted at n from the tree. With keep the
// descendants of n move to the orphan set, otherwise they are dropped.
func (t *Tree) detach(n *node, keep bool) {
	parent := t.nodes[n.parent]
	for i, id := range parent.children {
		if id == n.id {
			parent.children = append(parent.children[:i:i], parent.children[i+1:]...)
			break
		}
	}

	t.drop(n, keep)
	delete(t.orphans, n.id)
}

func (t *Tree) drop(n *node, keep bool) {
	for _, c := range n.children {
		t.drop(t.nodes[c], keep)
	}

	delete(t.nodes, n.id)

	if t.paths[n.path()] == n.id {
		delete(t.paths, n.path())
	}

	if keep {
		t.orphans[n.id] = n
	}
}
