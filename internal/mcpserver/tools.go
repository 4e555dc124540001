// Package mcpserver registers MCP tools that expose workspace operations.
// It adapts the notes package to the MCP SDK's tool handler interface.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alexjbarnes/mdnotes/internal/frontmatter"
	"github.com/alexjbarnes/mdnotes/internal/models"
	"github.com/alexjbarnes/mdnotes/internal/notes"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterTools adds all notes tools to the given MCP server.
func RegisterTools(server *mcp.Server, ws *notes.Workspace) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "notes_tree",
		Description: "List every folder and note in the notes tree, pending changes included. No note content. Use this first to get ids and paths.",
	}, treeHandler(ws))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "notes_read",
		Description: "Read one note by id or by path, with its title, tags and markdown body.",
	}, readHandler(ws))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "notes_search",
		Description: "Case-insensitive search over note titles and bodies, optionally restricted to notes carrying every given tag.",
	}, searchHandler(ws))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "notes_create",
		Description: "Create an empty note titled title in folder dir. The change is queued until notes_sync.",
	}, createHandler(ws))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "notes_create_folder",
		Description: "Create a folder, including missing parents. The change is queued until notes_sync.",
	}, createFolderHandler(ws))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "notes_update",
		Description: "Change a note's title, body or tags by id. Omitted fields are kept. The change is queued until notes_sync.",
	}, updateHandler(ws))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "notes_delete",
		Description: "Delete a note, or a folder with folder set to true. The change is queued until notes_sync.",
	}, deleteHandler(ws))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "notes_pending",
		Description: "List the queued changes that have not been committed to GitHub yet, oldest first.",
	}, pendingHandler(ws))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "notes_sync",
		Description: "Commit every queued change to the GitHub repository, one commit per change, in order. Stops at the first failure and keeps the queue.",
	}, syncHandler(ws))
}

// --- Input types ---
// The MCP SDK infers JSON schema from these struct types via jsonschema tags.

// TreeInput has no parameters.
type TreeInput struct{}

// ReadInput holds parameters for notes_read.
type ReadInput struct {
	ID   string `json:"id,omitempty" jsonschema:"note id from notes_tree"`
	Path string `json:"path,omitempty" jsonschema:"note path such as work/todo.md, used when id is empty"`
}

// SearchInput holds parameters for notes_search.
type SearchInput struct {
	Query string   `json:"query,omitempty" jsonschema:"text to find in titles and bodies, empty matches every note"`
	Tags  []string `json:"tags,omitempty" jsonschema:"only notes carrying all of these tags"`
}

// CreateInput holds parameters for notes_create.
type CreateInput struct {
	Dir   string `json:"dir,omitempty" jsonschema:"folder path, defaults to the root"`
	Title string `json:"title" jsonschema:"note title, also the file name"`
}

// CreateFolderInput holds parameters for notes_create_folder.
type CreateFolderInput struct {
	Path string `json:"path" jsonschema:"folder path such as work/2025"`
}

// UpdateInput holds parameters for notes_update.
type UpdateInput struct {
	ID      string   `json:"id" jsonschema:"note id from notes_tree"`
	Title   *string  `json:"title,omitempty" jsonschema:"new title"`
	Content *string  `json:"content,omitempty" jsonschema:"new markdown body without front-matter"`
	Tags    []string `json:"tags,omitempty" jsonschema:"replacement tag list"`
}

// DeleteInput holds parameters for notes_delete.
type DeleteInput struct {
	Path   string `json:"path" jsonschema:"path of the note or folder"`
	Folder bool   `json:"folder,omitempty" jsonschema:"true to delete a folder"`
}

// PendingInput has no parameters.
type PendingInput struct{}

// SyncInput has no parameters.
type SyncInput struct{}

// --- Output types ---

// NoteEntry is a note without its body.
type NoteEntry struct {
	ID        string   `json:"id"`
	Path      string   `json:"path"`
	Title     string   `json:"title"`
	Tags      []string `json:"tags,omitempty"`
	UpdatedAt string   `json:"updated_at,omitempty"`
	Virtual   bool     `json:"virtual,omitempty"`
}

// FolderEntry is one folder of the tree.
type FolderEntry struct {
	ID   string `json:"id"`
	Path string `json:"path"`
}

// TreeResult is the flattened tree, depth first.
type TreeResult struct {
	Folders []FolderEntry `json:"folders"`
	Notes   []NoteEntry   `json:"notes"`
}

// NoteResult is a note with its body.
type NoteResult struct {
	ID        string   `json:"id"`
	Path      string   `json:"path"`
	Title     string   `json:"title"`
	Tags      []string `json:"tags,omitempty"`
	CreatedAt string   `json:"created_at,omitempty"`
	UpdatedAt string   `json:"updated_at,omitempty"`
	Virtual   bool     `json:"virtual,omitempty"`
	Content   string   `json:"content"`
}

// SearchResult lists matching notes.
type SearchResult struct {
	Total int         `json:"total"`
	Notes []NoteEntry `json:"notes"`
}

// ChangeResult reports a queued change.
type ChangeResult struct {
	Path    string `json:"path"`
	Pending int    `json:"pending"`
}

// ChangeEntry is one queued change without its content.
type ChangeEntry struct {
	Type     string `json:"type"`
	ItemType string `json:"item_type"`
	Path     string `json:"path"`
	QueuedAt string `json:"queued_at,omitempty"`
}

// PendingResult lists the queue.
type PendingResult struct {
	Total   int           `json:"total"`
	Changes []ChangeEntry `json:"changes"`
}

// SyncResult reports a completed sync.
type SyncResult struct {
	Applied int `json:"applied"`
}

// --- Handlers ---

func treeHandler(ws *notes.Workspace) mcp.ToolHandlerFor[TreeInput, *TreeResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, _ TreeInput) (*mcp.CallToolResult, *TreeResult, error) {
		result := &TreeResult{Folders: []FolderEntry{}, Notes: []NoteEntry{}}
		flatten(ws.Tree(), result)

		return textResult(result), result, nil
	}
}

func flatten(f models.Folder, out *TreeResult) {
	for _, item := range f.Children {
		if item.IsFolder() {
			out.Folders = append(out.Folders, FolderEntry{ID: item.Folder.ID, Path: item.Folder.Path})
			flatten(*item.Folder, out)

			continue
		}

		out.Notes = append(out.Notes, entryOf(*item.Note))
	}
}

func readHandler(ws *notes.Workspace) mcp.ToolHandlerFor[ReadInput, *NoteResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input ReadInput) (*mcp.CallToolResult, *NoteResult, error) {
		var (
			n   models.Note
			err error
		)

		switch {
		case input.ID != "":
			n, err = ws.Note(input.ID)
		case input.Path != "":
			n, err = ws.NoteByPath(input.Path)
		default:
			return nil, nil, fmt.Errorf("id or path is required")
		}

		if err != nil {
			return nil, nil, err
		}

		result := resultOf(n)

		return textResult(result), result, nil
	}
}

func searchHandler(ws *notes.Workspace) mcp.ToolHandlerFor[SearchInput, *SearchResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, *SearchResult, error) {
		found := ws.Search(input.Query, input.Tags)

		result := &SearchResult{Total: len(found), Notes: make([]NoteEntry, 0, len(found))}
		for _, n := range found {
			result.Notes = append(result.Notes, entryOf(n))
		}

		return textResult(result), result, nil
	}
}

func createHandler(ws *notes.Workspace) mcp.ToolHandlerFor[CreateInput, *NoteResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input CreateInput) (*mcp.CallToolResult, *NoteResult, error) {
		n, err := ws.AddNote(input.Dir, input.Title)
		if err != nil {
			return nil, nil, err
		}

		result := resultOf(n)

		return textResult(result), result, nil
	}
}

func createFolderHandler(ws *notes.Workspace) mcp.ToolHandlerFor[CreateFolderInput, *ChangeResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input CreateFolderInput) (*mcp.CallToolResult, *ChangeResult, error) {
		if input.Path == "" {
			return nil, nil, fmt.Errorf("path is required")
		}

		if err := ws.AddFolder(input.Path); err != nil {
			return nil, nil, err
		}

		return changeResult(ws, input.Path)
	}
}

func updateHandler(ws *notes.Workspace) mcp.ToolHandlerFor[UpdateInput, *NoteResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input UpdateInput) (*mcp.CallToolResult, *NoteResult, error) {
		n, err := ws.UpdateNote(input.ID, models.NoteUpdate{
			Title:   input.Title,
			Content: input.Content,
			Tags:    input.Tags,
		})
		if err != nil {
			return nil, nil, err
		}

		result := resultOf(n)

		return textResult(result), result, nil
	}
}

func deleteHandler(ws *notes.Workspace) mcp.ToolHandlerFor[DeleteInput, *ChangeResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input DeleteInput) (*mcp.CallToolResult, *ChangeResult, error) {
		if input.Path == "" {
			return nil, nil, fmt.Errorf("path is required")
		}

		itemType := models.ItemFile
		if input.Folder {
			itemType = models.ItemFolder
		}

		if err := ws.DeleteItem(input.Path, itemType); err != nil {
			return nil, nil, err
		}

		return changeResult(ws, input.Path)
	}
}

func pendingHandler(ws *notes.Workspace) mcp.ToolHandlerFor[PendingInput, *PendingResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, _ PendingInput) (*mcp.CallToolResult, *PendingResult, error) {
		changes, err := ws.PendingChanges()
		if err != nil {
			return nil, nil, err
		}

		result := &PendingResult{Total: len(changes), Changes: make([]ChangeEntry, 0, len(changes))}
		for _, c := range changes {
			result.Changes = append(result.Changes, ChangeEntry{
				Type:     string(c.Type),
				ItemType: string(c.ItemType),
				Path:     c.Path,
				QueuedAt: formatTime(c.QueuedAt),
			})
		}

		return textResult(result), result, nil
	}
}

func syncHandler(ws *notes.Workspace) mcp.ToolHandlerFor[SyncInput, *SyncResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, _ SyncInput) (*mcp.CallToolResult, *SyncResult, error) {
		res, err := ws.Sync(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("%w (%d committed before the failure)", err, res.Applied)
		}

		result := &SyncResult{Applied: res.Applied}

		return textResult(result), result, nil
	}
}

func changeResult(ws *notes.Workspace, p string) (*mcp.CallToolResult, *ChangeResult, error) {
	changes, err := ws.PendingChanges()
	if err != nil {
		return nil, nil, err
	}

	result := &ChangeResult{Path: p, Pending: len(changes)}

	return textResult(result), result, nil
}

func entryOf(n models.Note) NoteEntry {
	return NoteEntry{
		ID:        n.ID,
		Path:      n.Path,
		Title:     n.Title,
		Tags:      n.Tags,
		UpdatedAt: formatTime(n.UpdatedAt),
		Virtual:   n.IsVirtual,
	}
}

func resultOf(n models.Note) *NoteResult {
	return &NoteResult{
		ID:        n.ID,
		Path:      n.Path,
		Title:     n.Title,
		Tags:      n.Tags,
		CreatedAt: formatTime(n.CreatedAt),
		UpdatedAt: formatTime(n.UpdatedAt),
		Virtual:   n.IsVirtual,
		Content:   n.Content,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	return t.UTC().Format(frontmatter.TimeLayout)
}

// textResult builds a CallToolResult with JSON text content from any value.
// This provides the unstructured content alongside the structured output
// that the SDK populates automatically.
func textResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("error marshaling result: %v", err)}},
			IsError: true,
		}
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}
}
