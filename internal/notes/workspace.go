// Package notes is the workspace service: it owns the baseline tree, the
// pending-change queue and the stored collections, replays the virtual
// tree after every change and commits the queue to the remote repository.
package notes

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	apperrors "github.com/alexjbarnes/mdnotes/internal/errors"
	"github.com/alexjbarnes/mdnotes/internal/frontmatter"
	"github.com/alexjbarnes/mdnotes/internal/models"
	"github.com/alexjbarnes/mdnotes/internal/queue"
	"github.com/alexjbarnes/mdnotes/internal/reconcile"
	"github.com/alexjbarnes/mdnotes/internal/state"
	"github.com/alexjbarnes/mdnotes/internal/tree"
)

// DefaultPrefix is the repository directory that mirrors the notes tree.
const DefaultPrefix = "content"

// Options configure a Workspace.
type Options struct {
	// Store persists the queue, collections and virtual notes. Required.
	Store state.Storage

	// Remote is the repository adapter used by Sync and Pull.
	Remote Remote

	// Credentials stores the saved GitHub credentials. Defaults to a
	// plain store over Store.
	Credentials *state.CredentialStore

	// DefaultCredentials are used when none have been saved, typically
	// from GITHUB_TOKEN and GITHUB_REPO.
	DefaultCredentials models.Credentials

	// Content is the baseline loaded from the content directory.
	// Defaults to an empty tree.
	Content *tree.Tree

	// Prefix is prepended to every path sent to the remote.
	Prefix string

	// Tree controls replay; Tree.Now is also the workspace clock.
	Tree tree.Options

	Logger *slog.Logger
}

// Workspace is safe for concurrent use. Mutations are serialised; Sync
// runs outside the mutation lock so reads stay available while it talks
// to the remote.
type Workspace struct {
	store        state.Storage
	queue        *queue.Queue
	creds        *state.CredentialStore
	defaultCreds models.Credentials
	remote       Remote
	reconciler   *reconcile.Reconciler
	prefix       string
	treeOpts     tree.Options
	logger       *slog.Logger

	mu       sync.RWMutex
	content  *tree.Tree
	baseline *tree.Tree
	current  *tree.Tree

	syncMu sync.Mutex

	events broadcaster
}

// New opens a workspace over the stored state and replays the virtual
// tree.
func New(opts Options) (*Workspace, error) {
	if opts.Store == nil {
		return nil, errors.New("notes: Options.Store is required")
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.Credentials == nil {
		opts.Credentials = state.NewCredentialStore(opts.Store, "")
	}

	if opts.Content == nil {
		opts.Content = tree.New(opts.Tree)
	}

	prefix := strings.Trim(opts.Prefix, "/")
	if opts.Prefix == "" {
		prefix = DefaultPrefix
	}

	w := &Workspace{
		store:        opts.Store,
		queue:        queue.New(opts.Store),
		creds:        opts.Credentials,
		defaultCreds: opts.DefaultCredentials,
		remote:       opts.Remote,
		prefix:       prefix,
		treeOpts:     opts.Tree,
		logger:       opts.Logger,
		content:      opts.Content,
	}

	if opts.Remote != nil {
		w.reconciler = reconcile.NewReconciler(opts.Remote, opts.Store, prefix, opts.Logger)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.rebuildLocked(); err != nil {
		return nil, err
	}

	return w, nil
}

func (w *Workspace) now() time.Time {
	if w.treeOpts.Now != nil {
		return w.treeOpts.Now().UTC()
	}

	return time.Now().UTC()
}

// rebuildLocked recomputes the baseline from the content tree and the
// stored collections, then replays.
func (w *Workspace) rebuildLocked() error {
	stored, err := reconcile.LoadSnapshot(w.store)
	if err != nil {
		return err
	}

	// Content on disk wins ties; stored entries win only when newer.
	merged := reconcile.Merge(stored, reconcile.SnapshotOf(w.content))
	w.baseline = tree.Build(merged.Folders, merged.Notes, w.treeOpts)

	return w.replayLocked()
}

// replayLocked rebuilds the virtual tree from the baseline, the stored
// virtual notes and the queue, then persists the virtual notes snapshot.
func (w *Workspace) replayLocked() error {
	virtual, _, err := state.LoadJSON[[]models.Note](w.store, state.KeyVirtualNotes)
	if err != nil {
		return err
	}

	changes, err := w.queue.List()
	if err != nil {
		return err
	}

	t, err := tree.Replay(w.baseline, virtual, changes, w.treeOpts)
	if err != nil {
		return err
	}

	w.current = t

	return w.saveVirtualLocked()
}

func (w *Workspace) saveVirtualLocked() error {
	virtual := w.current.VirtualNotes()
	if virtual == nil {
		virtual = []models.Note{}
	}

	if err := state.SaveJSON(w.store, state.KeyVirtualNotes, virtual); err != nil {
		return fmt.Errorf("saving virtual notes: %w", err)
	}

	return nil
}

// AddChange queues change and replays the tree. A zero QueuedAt is set
// to now.
func (w *Workspace) AddChange(change models.PendingChange) error {
	change, err := w.prepare(change)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	return w.addLocked(change)
}

// prepare checks change and fills in defaults.
func (w *Workspace) prepare(change models.PendingChange) (models.PendingChange, error) {
	switch change.Type {
	case models.ChangeCreate, models.ChangeUpdate, models.ChangeDelete:
	default:
		return change, fmt.Errorf("%w: unknown change type %q", apperrors.ErrInvalidChange, change.Type)
	}

	if change.ItemType == "" {
		change.ItemType = models.ItemFile
	}

	if err := tree.ValidatePath(change.Path); err != nil {
		return change, fmt.Errorf("%w: %w", apperrors.ErrInvalidChange, err)
	}

	if change.QueuedAt.IsZero() {
		change.QueuedAt = w.now()
	}

	return change, nil
}

func (w *Workspace) addLocked(change models.PendingChange) error {
	if err := w.queue.Append(change); err != nil {
		return err
	}

	if err := w.replayLocked(); err != nil {
		return err
	}

	w.logger.Debug("change queued",
		slog.String("type", string(change.Type)),
		slog.String("item_type", string(change.ItemType)),
		slog.String("path", change.Path),
	)

	w.notify(EventChanged)

	return nil
}

// AddNote queues a new note titled title in directory dir and returns it.
// A note already at that path is not replaced.
func (w *Workspace) AddNote(dir, title string) (models.Note, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return models.Note{}, fmt.Errorf("%w: title is required", apperrors.ErrInvalidChange)
	}

	change, err := w.prepare(models.PendingChange{
		Type:     models.ChangeCreate,
		ItemType: models.ItemFile,
		Path:     tree.Clean(dir + "/" + title + ".md"),
		Content:  frontmatter.NewNoteContent(title),
	})
	if err != nil {
		return models.Note{}, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, exists := w.current.NoteByPath(change.Path); exists {
		return models.Note{}, fmt.Errorf("%w: note %s already exists", apperrors.ErrInvalidChange, change.Path)
	}

	if err := w.addLocked(change); err != nil {
		return models.Note{}, err
	}

	n, ok := w.current.NoteByPath(change.Path)
	if !ok {
		return models.Note{}, fmt.Errorf("note %s: %w", change.Path, apperrors.ErrNotFound)
	}

	return n, nil
}

// AddFolder queues a new folder at p.
func (w *Workspace) AddFolder(p string) error {
	return w.AddChange(models.PendingChange{
		Type:     models.ChangeCreate,
		ItemType: models.ItemFolder,
		Path:     p,
	})
}

// DeleteItem queues the deletion of the note or folder at p.
func (w *Workspace) DeleteItem(p string, itemType models.ItemType) error {
	return w.AddChange(models.PendingChange{
		Type:     models.ChangeDelete,
		ItemType: itemType,
		Path:     p,
	})
}

// UpdateNote edits the note with the given id in place, marks it virtual
// and queues an UPDATE carrying the whole file so the edit is committed
// on the next sync.
func (w *Workspace) UpdateNote(id string, upd models.NoteUpdate) (models.Note, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	// Edit a copy so a failed append leaves the tree untouched.
	edited := w.current.Clone()

	note, err := edited.UpdateNote(id, upd)
	if err != nil {
		return models.Note{}, fmt.Errorf("note %s: %w", id, err)
	}

	content, err := frontmatter.Render(frontmatter.Meta{
		Title:     note.Title,
		CreatedAt: note.CreatedAt,
		UpdatedAt: note.UpdatedAt,
		Tags:      note.Tags,
	}, note.Content)
	if err != nil {
		return models.Note{}, fmt.Errorf("rendering %s: %w", note.Path, err)
	}

	change := models.PendingChange{
		Type:     models.ChangeUpdate,
		ItemType: models.ItemFile,
		Path:     note.Path,
		Content:  content,
		QueuedAt: note.UpdatedAt,
	}

	if err := w.queue.Append(change); err != nil {
		return models.Note{}, err
	}

	w.current = edited

	if err := w.saveVirtualLocked(); err != nil {
		return models.Note{}, err
	}

	if err := w.replayLocked(); err != nil {
		return models.Note{}, err
	}

	w.notify(EventChanged)

	updated, ok := w.current.Note(id)
	if !ok {
		return note, nil
	}

	return updated, nil
}

// Tree returns the current virtual tree.
func (w *Workspace) Tree() models.Folder {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return w.current.Snapshot()
}

// PendingChanges returns the queued changes in order.
func (w *Workspace) PendingChanges() ([]models.PendingChange, error) {
	return w.queue.List()
}

// Note returns the note with the given id.
func (w *Workspace) Note(id string) (models.Note, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	n, ok := w.current.Note(id)
	if !ok {
		return models.Note{}, fmt.Errorf("note %s: %w", id, apperrors.ErrNotFound)
	}

	return n, nil
}

// NoteByPath returns the note at p.
func (w *Workspace) NoteByPath(p string) (models.Note, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	n, ok := w.current.NoteByPath(p)
	if !ok {
		return models.Note{}, fmt.Errorf("note %s: %w", p, apperrors.ErrNotFound)
	}

	return n, nil
}

// Search returns notes matching term that carry every tag in tags.
func (w *Workspace) Search(term string, tags []string) []models.Note {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return w.current.Search(term, tags)
}

// Tags returns every tag in the tree.
func (w *Workspace) Tags() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return w.current.Tags()
}

// Routes returns one static route per note in the tree.
func (w *Workspace) Routes() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	notes := w.current.Notes()
	paths := make([]string, 0, len(notes))

	for _, n := range notes {
		paths = append(paths, n.Path)
	}

	return tree.Routes(paths)
}

// SetCredentials saves creds. Empty credentials forget the saved ones.
func (w *Workspace) SetCredentials(creds models.Credentials) error {
	if creds == (models.Credentials{}) {
		return w.creds.Clear()
	}

	if !creds.Valid() {
		return fmt.Errorf("%w: token and repository are both required", apperrors.ErrInvalidChange)
	}

	return w.creds.Save(creds)
}

// Credentials returns the saved credentials, or the defaults when none
// are saved.
func (w *Workspace) Credentials() (models.Credentials, error) {
	creds, err := w.creds.Load()
	if err != nil {
		return models.Credentials{}, err
	}

	if !creds.Valid() {
		return w.defaultCreds, nil
	}

	return creds, nil
}

// Reload replaces the content baseline, for example after files changed
// on disk, and replays.
func (w *Workspace) Reload(content *tree.Tree) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.content = content

	if err := w.rebuildLocked(); err != nil {
		return err
	}

	w.logger.Info("content reloaded", slog.Int("items", content.Len()))
	w.notify(EventReloaded)

	return nil
}
