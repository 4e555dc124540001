package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	apperrors "github.com/alexjbarnes/mdnotes/internal/errors"
	"github.com/alexjbarnes/mdnotes/internal/frontmatter"
	"github.com/alexjbarnes/mdnotes/internal/github"
	"github.com/alexjbarnes/mdnotes/internal/models"
	"github.com/alexjbarnes/mdnotes/internal/state"
	"github.com/alexjbarnes/mdnotes/internal/tree"
)

// Source reads the remote repository.
type Source interface {
	Get(ctx context.Context, creds models.Credentials, p string) (*github.File, error)
	Walk(ctx context.Context, creds models.Credentials, dir string, fn func(github.Entry) error) error
}

// Fetch walks prefix in the remote repository and returns every folder
// and .md note under it, with paths relative to prefix. Note metadata
// comes from front-matter. A folder's UpdatedAt is the latest UpdatedAt
// of the notes inside it. A missing prefix is an empty repository.
func Fetch(ctx context.Context, src Source, creds models.Credentials, prefix string) (Snapshot, error) {
	prefix = strings.Trim(prefix, "/")

	var snap Snapshot

	err := src.Walk(ctx, creds, prefix, func(e github.Entry) error {
		rel := relative(prefix, e.Path)
		if rel == "" || hidden(rel) {
			return nil
		}

		if e.IsDir() {
			snap.Folders = append(snap.Folders, models.Folder{
				ID:   tree.IdentityFor(models.ItemFolder, rel),
				Name: e.Name,
				Path: rel,
			})

			return nil
		}

		if !strings.EqualFold(path.Ext(rel), ".md") {
			return nil
		}

		f, err := src.Get(ctx, creds, e.Path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", e.Path, err)
		}

		snap.Notes = append(snap.Notes, noteFromRemote(rel, f.Content))

		return nil
	})
	if errors.Is(err, apperrors.ErrNotFound) && len(snap.Folders)+len(snap.Notes) == 0 {
		return Snapshot{}, nil
	}

	if err != nil {
		return Snapshot{}, fmt.Errorf("fetching remote notes: %w", err)
	}

	stampFolders(&snap)

	return snap, nil
}

func relative(prefix, p string) string {
	p = strings.Trim(p, "/")
	if prefix == "" {
		return p
	}

	if p == prefix {
		return ""
	}

	return strings.TrimPrefix(p, prefix+"/")
}

// hidden reports whether any segment of p starts with a dot.
func hidden(p string) bool {
	for _, s := range strings.Split(p, "/") {
		if strings.HasPrefix(s, ".") {
			return true
		}
	}

	return false
}

func noteFromRemote(rel, content string) models.Note {
	base := path.Base(rel)
	slug := strings.TrimSuffix(base, path.Ext(base))
	meta, body, _ := frontmatter.Parse(content)

	n := models.Note{
		ID:        tree.IdentityFor(models.ItemFile, rel),
		Slug:      slug,
		Title:     meta.Title,
		Content:   body,
		Tags:      meta.Tags,
		Path:      rel,
		CreatedAt: meta.CreatedAt,
		UpdatedAt: meta.UpdatedAt,
	}

	if n.Title == "" {
		n.Title = slug
	}

	return n
}

func stampFolders(snap *Snapshot) {
	for i := range snap.Folders {
		f := &snap.Folders[i]
		prefix := f.Path + "/"

		for _, n := range snap.Notes {
			if strings.HasPrefix(n.Path, prefix) && n.UpdatedAt.After(f.UpdatedAt) {
				f.UpdatedAt = n.UpdatedAt
			}
		}
	}
}

// Reconciler fetches the remote repository and merges it into local
// state, persisting the merged collections.
type Reconciler struct {
	src    Source
	store  state.Storage
	prefix string
	logger *slog.Logger
}

// NewReconciler creates a Reconciler reading notes under prefix.
func NewReconciler(src Source, store state.Storage, prefix string, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}

	return &Reconciler{
		src:    src,
		store:  store,
		prefix: prefix,
		logger: logger,
	}
}

// Load merges the remote repository into local and persists the result.
// Without credentials it returns local untouched and persists nothing.
// On a fetch failure local state is left as it was.
func (r *Reconciler) Load(ctx context.Context, creds models.Credentials, local Snapshot) (Snapshot, error) {
	if !creds.Valid() {
		r.logger.Debug("reconcile: no credentials, keeping local state")
		return local, nil
	}

	remote, err := Fetch(ctx, r.src, creds, r.prefix)
	if err != nil {
		return local, err
	}

	merged := Merge(local, remote)

	if err := merged.Save(r.store); err != nil {
		return local, err
	}

	r.logger.Info("reconcile: merged remote state",
		slog.String("repo", creds.Repo),
		slog.Int("remote_notes", len(remote.Notes)),
		slog.Int("local_notes", len(local.Notes)),
		slog.Int("merged_notes", len(merged.Notes)),
	)

	return merged, nil
}
