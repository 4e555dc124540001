// Package githubtest runs an in-memory stand-in for the GitHub Contents
// API for tests.
package githubtest

import (
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
)

// Request records one call made to the server.
type Request struct {
	Method  string
	Path    string
	Message string
	SHA     string
}

// Server is a fake Contents API holding one repository's files in memory.
type Server struct {
	*httptest.Server

	// Token, when set, is the only bearer token accepted.
	Token string

	// LargeFile, when positive, reports files longer than it with
	// encoding "none" and no content, as GitHub does above 1 MB.
	LargeFile int

	mu       sync.Mutex
	files    map[string]string
	failures map[string]int
	requests []Request
}

// NewServer starts a fake server. Callers must Close it.
func NewServer() *Server {
	s := &Server{
		files:    make(map[string]string),
		failures: make(map[string]int),
	}

	r := chi.NewRouter()
	r.Use(s.authorize)
	r.Get("/repos/{owner}/{repo}/contents", s.handleGet)
	r.Get("/repos/{owner}/{repo}/contents/*", s.handleGet)
	r.Put("/repos/{owner}/{repo}/contents/*", s.handlePut)
	r.Delete("/repos/{owner}/{repo}/contents/*", s.handleDelete)

	s.Server = httptest.NewServer(r)

	return s
}

// SetFile stores content at p.
func (s *Server) SetFile(p, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.files[strings.Trim(p, "/")] = content
}

// File returns the content stored at p.
func (s *Server) File(p string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.files[strings.Trim(p, "/")]

	return c, ok
}

// Paths returns every stored file path, sorted.
func (s *Server) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.files))
	for p := range s.files {
		out = append(out, p)
	}

	sort.Strings(out)

	return out
}

// FailOn makes every request with method on p answer with status.
func (s *Server) FailOn(method, p string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failures[method+" "+strings.Trim(p, "/")] = status
}

// Requests returns the requests received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]Request(nil), s.requests...)
}

// Writes returns the PUT and DELETE requests received so far.
func (s *Server) Writes() []Request {
	var out []Request

	for _, r := range s.Requests() {
		if r.Method != http.MethodGet {
			out = append(out, r)
		}
	}

	return out
}

// BlobSHA computes the git blob id of content, as GitHub reports it.
func BlobSHA(content string) string {
	h := sha1.New()
	fmt.Fprintf(h, "blob %d\x00", len(content))
	h.Write([]byte(content))

	return hex.EncodeToString(h.Sum(nil))
}

func (s *Server) authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Token != "" && r.Header.Get("Authorization") != "Bearer "+s.Token {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Bad credentials"})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func filePath(r *http.Request) string {
	p := chi.URLParam(r, "*")
	if u, err := url.PathUnescape(p); err == nil {
		p = u
	}

	return strings.Trim(p, "/")
}

// record logs the request and reports an injected failure status.
func (s *Server) record(req Request) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, req)

	return s.failures[req.Method+" "+req.Path]
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	p := filePath(r)

	if code := s.record(Request{Method: http.MethodGet, Path: p}); code != 0 {
		writeJSON(w, code, map[string]string{"message": http.StatusText(code)})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if content, ok := s.files[p]; ok {
		if s.LargeFile > 0 && len(content) > s.LargeFile {
			writeJSON(w, http.StatusOK, map[string]string{
				"type":     "file",
				"name":     p[strings.LastIndex(p, "/")+1:],
				"path":     p,
				"sha":      BlobSHA(content),
				"encoding": "none",
				"content":  "",
			})

			return
		}

		writeJSON(w, http.StatusOK, map[string]string{
			"type":     "file",
			"name":     p[strings.LastIndex(p, "/")+1:],
			"path":     p,
			"sha":      BlobSHA(content),
			"encoding": "base64",
			"content":  wrap(base64.StdEncoding.EncodeToString([]byte(content))),
		})

		return
	}

	entries := s.listLocked(p)
	if len(entries) == 0 && p != "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}

	writeJSON(w, http.StatusOK, entries)
}

// listLocked returns the direct children of dir.
func (s *Server) listLocked(dir string) []map[string]string {
	prefix := ""
	if dir != "" {
		prefix = dir + "/"
	}

	seen := make(map[string]bool)
	out := []map[string]string{}

	names := make([]string, 0, len(s.files))
	for p := range s.files {
		names = append(names, p)
	}

	sort.Strings(names)

	for _, p := range names {
		if !strings.HasPrefix(p, prefix) {
			continue
		}

		rest := strings.TrimPrefix(p, prefix)
		name, _, isDir := strings.Cut(rest, "/")

		if seen[name] {
			continue
		}

		seen[name] = true

		entry := map[string]string{"name": name, "path": prefix + name, "type": "file"}
		if isDir {
			entry["type"] = "dir"
		} else {
			entry["sha"] = BlobSHA(s.files[p])
		}

		out = append(out, entry)
	}

	return out
}

type writeBody struct {
	Message string `json:"message"`
	Content string `json:"content"`
	SHA     string `json:"sha"`
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	p := filePath(r)

	var body writeBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Problems parsing JSON"})
		return
	}

	if code := s.record(Request{Method: http.MethodPut, Path: p, Message: body.Message, SHA: body.SHA}); code != 0 {
		writeJSON(w, code, map[string]string{"message": http.StatusText(code)})
		return
	}

	data, err := base64.StdEncoding.DecodeString(body.Content)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "content is not valid Base64"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	status := http.StatusCreated

	if current, ok := s.files[p]; ok {
		if body.SHA == "" {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": `Invalid request. "sha" wasn't supplied.`})
			return
		}

		if body.SHA != BlobSHA(current) {
			writeJSON(w, http.StatusConflict, map[string]string{"message": fmt.Sprintf("%s does not match", p)})
			return
		}

		status = http.StatusOK
	}

	s.files[p] = string(data)

	writeJSON(w, status, map[string]any{
		"content": map[string]string{"path": p, "sha": BlobSHA(string(data))},
		"commit":  map[string]string{"message": body.Message},
	})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	p := filePath(r)

	var body writeBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Problems parsing JSON"})
		return
	}

	if code := s.record(Request{Method: http.MethodDelete, Path: p, Message: body.Message, SHA: body.SHA}); code != 0 {
		writeJSON(w, code, map[string]string{"message": http.StatusText(code)})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.files[p]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}

	if body.SHA != BlobSHA(current) {
		writeJSON(w, http.StatusConflict, map[string]string{"message": fmt.Sprintf("%s does not match", p)})
		return
	}

	delete(s.files, p)

	writeJSON(w, http.StatusOK, map[string]any{
		"content": nil,
		"commit":  map[string]string{"message": body.Message},
	})
}

// wrap breaks b64 into 60-column lines the way GitHub does.
func wrap(b64 string) string {
	var sb strings.Builder

	for len(b64) > 60 {
		sb.WriteString(b64[:60])
		sb.WriteByte('\n')
		b64 = b64[60:]
	}

	sb.WriteString(b64)

	return sb.String()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
