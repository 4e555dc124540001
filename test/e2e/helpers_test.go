package e2e_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alexjbarnes/mdnotes/internal/auth"
	"github.com/alexjbarnes/mdnotes/internal/config"
	"github.com/alexjbarnes/mdnotes/internal/github"
	"github.com/alexjbarnes/mdnotes/internal/github/githubtest"
	"github.com/alexjbarnes/mdnotes/internal/mcpserver"
	"github.com/alexjbarnes/mdnotes/internal/notes"
	"github.com/alexjbarnes/mdnotes/internal/server"
	"github.com/alexjbarnes/mdnotes/internal/state"
	"github.com/alexjbarnes/mdnotes/internal/tree"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"
)

const (
	githubToken = "ghp_e2e"
	githubRepo  = "octo/notes"
	passphrase  = "correct horse"
)

var apiKey = config.APIKeyPrefix + strings.Repeat("e2", 16)

// harness holds the full e2e stack: a content directory, a bbolt state
// file, a fake GitHub and the HTTP API serving a workspace over them.
type harness struct {
	URL        string
	ContentDir string
	StatePath  string
	GitHub     *githubtest.Server
	Client     *http.Client

	srv *httptest.Server
	st  *state.State
	ws  *notes.Workspace
}

// newHarness seeds a content directory and starts the stack.
func newHarness(t *testing.T) *harness {
	t.Helper()

	dir := t.TempDir()
	content := filepath.Join(dir, "content")
	require.NoError(t, os.MkdirAll(filepath.Join(content, "work"), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(content, "work", "todo.md"),
		[]byte("---\ntitle: Todo\ntags:\n  - home\nupdatedAt: 2025-01-01T00:00:00.000Z\n---\nbuy milk\n"),
		0o644,
	))
	require.NoError(t, os.WriteFile(
		filepath.Join(content, "readme.md"),
		[]byte("# Notes\n"),
		0o644,
	))

	gh := githubtest.NewServer()
	gh.Token = githubToken
	t.Cleanup(gh.Close)

	h := &harness{
		ContentDir: content,
		StatePath:  filepath.Join(dir, "state", "state.db"),
		GitHub:     gh,
		Client:     &http.Client{},
	}

	h.start(t)
	t.Cleanup(h.stop)

	return h
}

// start opens the state and workspace and serves them.
func (h *harness) start(t *testing.T) {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)

	st, err := state.LoadAt(h.StatePath)
	require.NoError(t, err)

	opts := tree.Options{}

	content, err := tree.LoadContent(h.ContentDir, opts)
	require.NoError(t, err)

	ws, err := notes.New(notes.Options{
		Store:       st,
		Remote:      github.New(github.Config{BaseURL: h.GitHub.URL, Logger: logger}),
		Credentials: state.NewCredentialStore(st, passphrase),
		Content:     content,
		Tree:        opts,
		Logger:      logger,
	})
	require.NoError(t, err)

	mcpServer := mcp.NewServer(
		&mcp.Implementation{Name: "mdnotes-e2e", Version: "test"},
		nil,
	)
	mcpserver.RegisterTools(mcpServer, ws)

	mcpHandler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return mcpServer
	}, nil)

	h.srv = httptest.NewServer(server.NewMux(server.MuxConfig{
		Workspace:  ws,
		Keys:       auth.NewKeyStore([]config.APIKeyEntry{{UserID: "e2e", Key: apiKey}}),
		MCPHandler: mcpHandler,
		Logger:     logger,
	}))
	h.URL = h.srv.URL
	h.st = st
	h.ws = ws
}

func (h *harness) stop() {
	if h.srv != nil {
		h.srv.Close()
		h.srv = nil
	}

	if h.st != nil {
		_ = h.st.Close()
		h.st = nil
	}
}

// restart simulates a process restart over the same files.
func (h *harness) restart(t *testing.T) {
	t.Helper()

	h.stop()
	h.start(t)
}

// do sends an authenticated JSON request and returns the status and body.
func (h *harness) do(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()

	return h.doWithKey(t, apiKey, method, path, body)
}

func (h *harness) doWithKey(t *testing.T, key, method, path string, body any) (int, []byte) {
	t.Helper()

	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(t.Context(), method, h.URL+path, rd)
	require.NoError(t, err)

	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := h.Client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, data
}

// link saves the GitHub credentials through the API.
func (h *harness) link(t *testing.T) {
	t.Helper()

	code, body := h.do(t, http.MethodPut, "/api/credentials", map[string]string{
		"token": githubToken,
		"repo":  githubRepo,
	})
	require.Equal(t, http.StatusNoContent, code, string(body))
}

// mcpSession connects an MCP client to /mcp with the API key.
func (h *harness) mcpSession(t *testing.T) *mcp.ClientSession {
	t.Helper()

	transport := &mcp.StreamableClientTransport{
		Endpoint: h.URL + "/mcp",
		HTTPClient: &http.Client{
			Transport: &bearerTransport{
				token: apiKey,
				base:  http.DefaultTransport,
			},
		},
		DisableStandaloneSSE: true,
	}

	client := mcp.NewClient(
		&mcp.Implementation{Name: "e2e-test-client", Version: "test"},
		nil,
	)

	session, err := client.Connect(t.Context(), transport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })

	return session
}

// bearerTransport is an http.RoundTripper that injects a Bearer token
// into every request's Authorization header.
type bearerTransport struct {
	token string
	base  http.RoundTripper
}

func (bt *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+bt.token)

	return bt.base.RoundTrip(req)
}

func decodeAs[T any](t *testing.T, data []byte) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))

	return v
}
