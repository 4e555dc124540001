package models

import "time"

// ChangeType is the kind of mutation a pending change applies.
type ChangeType string

const (
	ChangeCreate ChangeType = "CREATE"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// ItemType distinguishes file changes from folder changes.
type ItemType string

const (
	ItemFile   ItemType = "FILE"
	ItemFolder ItemType = "FOLDER"
)

// PendingChange is a queued mutation that has not been committed to the
// remote repository yet. The queue holds at most one change per Path.
type PendingChange struct {
	Type     ChangeType `json:"type"`
	ItemType ItemType   `json:"itemType"`
	Path     string     `json:"path"`
	Content  string     `json:"content,omitempty"`
	Title    string     `json:"title,omitempty"`
	Tags     []string   `json:"tags,omitempty"`
	QueuedAt time.Time  `json:"queuedAt,omitzero"`
}

// NoteUpdate holds the fields a direct edit may change. Nil fields are
// left untouched.
type NoteUpdate struct {
	Title   *string  `json:"title,omitempty"`
	Content *string  `json:"content,omitempty"`
	Tags    []string `json:"tags,omitempty"`
}
