package server

import (
	"log/slog"
	"net/http"

	"github.com/alexjbarnes/mdnotes/internal/models"
	"github.com/alexjbarnes/mdnotes/internal/notes"
	"github.com/go-chi/chi/v5"
)

type handler struct {
	ws     *notes.Workspace
	logger *slog.Logger
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) tree(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.ws.Tree())
}

func (h *handler) getNote(w http.ResponseWriter, r *http.Request) {
	n, err := h.ws.Note(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, n)
}

func (h *handler) createNote(w http.ResponseWriter, r *http.Request) {
	var req createNoteRequest
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	n, err := h.ws.AddNote(req.Dir, req.Title)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, n)
}

func (h *handler) updateNote(w http.ResponseWriter, r *http.Request) {
	var req updateNoteRequest
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	n, err := h.ws.UpdateNote(chi.URLParam(r, "id"), req.NoteUpdate)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, n)
}

func (h *handler) createFolder(w http.ResponseWriter, r *http.Request) {
	var req createFolderRequest
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.ws.AddFolder(req.Path); err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"path": req.Path})
}

func (h *handler) deleteItem(w http.ResponseWriter, r *http.Request) {
	var req deleteItemRequest
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.ws.DeleteItem(req.Path, req.ItemType); err != nil {
		h.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) changes(w http.ResponseWriter, r *http.Request) {
	changes, err := h.ws.PendingChanges()
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if changes == nil {
		changes = []models.PendingChange{}
	}

	writeJSON(w, http.StatusOK, changes)
}

func (h *handler) diff(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Query().Get("path")
	if p == "" {
		writeJSON(w, http.StatusBadRequest, errResponse{Error: "path is required"})
		return
	}

	d, err := h.ws.Diff(p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, d)
}

type syncResponse struct {
	Applied int    `json:"applied"`
	Error   string `json:"error,omitempty"`
}

// sync reports how many changes were committed even when it fails.
func (h *handler) sync(w http.ResponseWriter, r *http.Request) {
	res, err := h.ws.Sync(r.Context())
	if err != nil {
		status := statusFor(err)
		if status == http.StatusNotFound {
			// A missing repository or branch, not a missing note.
			status = http.StatusBadGateway
		}

		if status == http.StatusInternalServerError {
			h.writeError(w, r, err)
			return
		}

		writeJSON(w, status, syncResponse{Applied: res.Applied, Error: err.Error()})

		return
	}

	writeJSON(w, http.StatusOK, syncResponse{Applied: res.Applied})
}

func (h *handler) reconcile(w http.ResponseWriter, r *http.Request) {
	snap, err := h.ws.Pull(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{
		"folders": len(snap.Folders),
		"notes":   len(snap.Notes),
	})
}

type credentialStatus struct {
	Configured bool   `json:"configured"`
	Repo       string `json:"repo,omitempty"`
}

// credentialStatus never returns the token.
func (h *handler) credentialStatus(w http.ResponseWriter, r *http.Request) {
	creds, err := h.ws.Credentials()
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, credentialStatus{Configured: creds.Valid(), Repo: creds.Repo})
}

func (h *handler) setCredentials(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.ws.SetCredentials(models.Credentials{Token: req.Token, Repo: req.Repo}); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.logger.Info("credentials updated", slog.String("repo", req.Repo))
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	found := h.ws.Search(q.Get("q"), q["tag"])
	if found == nil {
		found = []models.Note{}
	}

	writeJSON(w, http.StatusOK, found)
}

func (h *handler) tags(w http.ResponseWriter, _ *http.Request) {
	tags := h.ws.Tags()
	if tags == nil {
		tags = []string{}
	}

	writeJSON(w, http.StatusOK, tags)
}

func (h *handler) routes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.ws.Routes())
}
