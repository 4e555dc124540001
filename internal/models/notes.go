// Package models defines types shared across internal packages.
package models

import "time"

// Note is a single markdown file in the notes tree.
type Note struct {
	ID        string    `json:"id"`
	Slug      string    `json:"slug"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Tags      []string  `json:"tags,omitempty"`
	Path      string    `json:"path"`
	FolderID  string    `json:"folderId,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
	IsVirtual bool      `json:"isVirtual,omitempty"`
}

// Folder is a directory in the notes tree. Children is only populated in
// tree snapshots; the flat folder collection leaves it nil.
type Folder struct {
	ID        string    `json:"id,omitempty"`
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	ParentID  string    `json:"parentId,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
	Children  []Item    `json:"children"`
}

// Item is one child of a folder in a tree snapshot. Exactly one of Folder
// or Note is set.
type Item struct {
	Folder *Folder `json:"folder,omitempty"`
	Note   *Note   `json:"note,omitempty"`
}

// IsFolder reports whether the item is a folder.
func (i Item) IsFolder() bool {
	return i.Folder != nil
}

// Credentials identify the GitHub repository notes are committed to.
type Credentials struct {
	Token string `json:"token"`
	Repo  string `json:"repo"`
}

// Valid reports whether both the token and the repository are set.
func (c Credentials) Valid() bool {
	return c.Token != "" && c.Repo != ""
}
