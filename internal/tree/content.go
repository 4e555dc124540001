package tree

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alexjbarnes/mdnotes/internal/frontmatter"
	"github.com/alexjbarnes/mdnotes/internal/models"
)

// LoadContent reads the .md files under dir into a baseline tree. Titles
// come from front-matter and fall back to the file name. Notes without an
// updatedAt header use the file modification time. Hidden files and
// directories are skipped. A missing dir yields an empty tree.
func LoadContent(dir string, opts Options) (*Tree, error) {
	var (
		folders []models.Folder
		notes   []models.Note
	)

	err := walkContent(dir, func(rel string, d fs.DirEntry) error {
		info, err := d.Info()
		if err != nil {
			return err
		}

		mod := info.ModTime().UTC()

		if d.IsDir() {
			folders = append(folders, models.Folder{
				Name:      d.Name(),
				Path:      rel,
				CreatedAt: mod,
				UpdatedAt: mod,
			})

			return nil
		}

		data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
		if err != nil {
			return err
		}

		notes = append(notes, noteFromFile(rel, string(data), mod))

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading content from %s: %w", dir, err)
	}

	return Build(folders, notes, opts), nil
}

func noteFromFile(rel, data string, mod time.Time) models.Note {
	base := filepath.Base(rel)
	slug := strings.TrimSuffix(base, filepath.Ext(base))
	meta, body, _ := frontmatter.Parse(data)

	note := models.Note{
		ID:        IdentityFor(models.ItemFile, rel),
		Slug:      slug,
		Title:     meta.Title,
		Content:   body,
		Tags:      meta.Tags,
		Path:      rel,
		CreatedAt: meta.CreatedAt,
		UpdatedAt: meta.UpdatedAt,
	}

	if note.Title == "" {
		note.Title = slug
	}

	if note.UpdatedAt.IsZero() {
		note.UpdatedAt = mod
	}

	if note.CreatedAt.IsZero() {
		note.CreatedAt = note.UpdatedAt
	}

	return note
}

// NotePaths lists every .md file under dir relative to it, with forward
// slashes, in lexical order.
func NotePaths(dir string) ([]string, error) {
	var paths []string

	err := walkContent(dir, func(rel string, d fs.DirEntry) error {
		if !d.IsDir() {
			paths = append(paths, rel)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing notes in %s: %w", dir, err)
	}

	return paths, nil
}

// Routes returns one static route per note path: "/notes/" followed by
// the path without its .md extension and a trailing slash.
func Routes(paths []string) []string {
	routes := make([]string, 0, len(paths))

	for _, p := range paths {
		p = strings.TrimSuffix(Clean(p), ".md")
		if p == "" {
			continue
		}

		routes = append(routes, "/notes/"+p+"/")
	}

	return routes
}

// walkContent calls fn for every visible directory and .md file under
// dir, root excluded.
func walkContent(dir string, fn func(rel string, d fs.DirEntry) error) error {
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}

		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}

		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}

			return nil
		}

		if !d.IsDir() && !strings.EqualFold(filepath.Ext(rel), ".md") {
			return nil
		}

		return fn(rel, d)
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	return err
}
