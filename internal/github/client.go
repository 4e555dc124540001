// Package github is a small client for the GitHub Contents API: read,
// upsert and delete single files and list directories of a repository.
package github

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/alexjbarnes/mdnotes/internal/errors"
	"github.com/alexjbarnes/mdnotes/internal/models"
	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
)

// DefaultBaseURL is the public GitHub REST endpoint.
const DefaultBaseURL = "https://api.github.com"

const (
	// maxRedirects matches the default net/http limit.
	maxRedirects = 10

	// defaultTimeout applies to every request when Config.Timeout is zero.
	defaultTimeout = 30 * time.Second

	apiVersion = "2022-11-28"
	userAgent  = "mdnotes"
)

// Config configures a Client.
type Config struct {
	BaseURL string
	// Branch commits go to. Empty means the repository default branch.
	Branch  string
	Timeout time.Duration
	// HTTPClient replaces the underlying transport, mainly for tests.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// File is a file read from a repository.
type File struct {
	Path    string
	SHA     string
	Content string
}

// Entry is one item of a directory listing.
type Entry struct {
	Name string
	Path string
	// Type is "file" or "dir".
	Type string
	SHA  string
}

// IsDir reports whether the entry is a directory.
func (e Entry) IsDir() bool {
	return e.Type == "dir"
}

// Client talks to the Contents API. Credentials are passed per call so
// one client serves whichever repository is currently configured.
type Client struct {
	rest   *resty.Client
	branch string
	logger *slog.Logger
}

// sameHostRedirectPolicy follows redirects only when the target host
// matches the original request host so the token never leaves it.
func sameHostRedirectPolicy(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return errors.New("stopped after 10 redirects")
	}

	if len(via) > 0 {
		origHost := via[0].URL.Host
		if req.URL.Host != origHost {
			return fmt.Errorf("redirect to different host blocked: %s -> %s", origHost, req.URL.Host)
		}
	}

	return nil
}

// New creates a Client from cfg.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	rest := resty.New()
	if cfg.HTTPClient != nil {
		rest = resty.NewWithClient(cfg.HTTPClient)
	}

	rest.SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetRedirectPolicy(resty.RedirectPolicyFunc(sameHostRedirectPolicy)).
		SetLogger(restyLogger{cfg.Logger}).
		SetHeader("Accept", "application/vnd.github+json").
		SetHeader("X-GitHub-Api-Version", apiVersion).
		SetHeader("User-Agent", userAgent)

	return &Client{
		rest:   rest,
		branch: cfg.Branch,
		logger: cfg.Logger,
	}
}

// contentsURL returns the API path of p inside creds.Repo. Each segment
// is escaped separately so slashes survive.
func contentsURL(creds models.Credentials, p string) string {
	var segs []string

	for _, s := range strings.Split(strings.Trim(p, "/"), "/") {
		if s != "" {
			segs = append(segs, url.PathEscape(s))
		}
	}

	owner, repo, _ := strings.Cut(creds.Repo, "/")

	return "/repos/" + url.PathEscape(owner) + "/" + url.PathEscape(repo) + "/contents/" + strings.Join(segs, "/")
}

func (c *Client) request(ctx context.Context, creds models.Credentials) (*resty.Request, error) {
	if !creds.Valid() {
		return nil, apperrors.ErrMissingCredentials
	}

	return c.rest.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+creds.Token), nil
}

// do sends req for the repository path p of creds.Repo and maps
// transport and status failures.
func (c *Client) do(req *resty.Request, method string, creds models.Credentials, p string) (*resty.Response, error) {
	op := method + " " + p

	resp, err := req.Execute(method, contentsURL(creds, p))
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s: %w", op, ctxErr)
		}

		// Network errors (timeouts, connection refused, DNS failures)
		// are transient by nature.
		return nil, &TransientError{Err: fmt.Errorf("%w: %s: %w", apperrors.ErrAPIRequest, op, err)}
	}

	c.logger.Debug("github request",
		slog.String("method", method),
		slog.String("path", p),
		slog.Int("status", resp.StatusCode()),
	)

	if err := mapHTTPError(op, resp); err != nil {
		return nil, err
	}

	return resp, nil
}

// Get reads the file at p. It returns an error wrapping ErrNotFound when
// the file does not exist.
func (c *Client) Get(ctx context.Context, creds models.Credentials, p string) (*File, error) {
	body, err := c.stat(ctx, creds, p)
	if err != nil {
		return nil, err
	}

	f := &File{
		Path: body.Get("path").String(),
		SHA:  body.Get("sha").String(),
	}

	// Files above 1 MB come back with encoding "none" and no content.
	if enc := body.Get("encoding").String(); enc != "" && enc != "base64" {
		return nil, fmt.Errorf("%w: %s has unsupported encoding %q", apperrors.ErrAPIResponse, p, enc)
	}

	// GitHub wraps base64 content at 60 columns.
	raw := strings.NewReplacer("\n", "", "\r", "").Replace(body.Get("content").String())

	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %w", apperrors.ErrAPIResponse, p, err)
	}

	f.Content = string(data)

	return f, nil
}

// stat fetches the metadata of the file at p without decoding its content.
func (c *Client) stat(ctx context.Context, creds models.Credentials, p string) (gjson.Result, error) {
	req, err := c.request(ctx, creds)
	if err != nil {
		return gjson.Result{}, err
	}

	if c.branch != "" {
		req.SetQueryParam("ref", c.branch)
	}

	resp, err := c.do(req, http.MethodGet, creds, p)
	if err != nil {
		return gjson.Result{}, err
	}

	body := gjson.ParseBytes(resp.Body())
	if body.IsArray() {
		return gjson.Result{}, fmt.Errorf("%w: %s is a directory", apperrors.ErrAPIResponse, p)
	}

	return body, nil
}

// sha returns the blob sha of the file at p, or "" when it does not
// exist. It works for files of any size.
func (c *Client) sha(ctx context.Context, creds models.Credentials, p string) (string, error) {
	body, err := c.stat(ctx, creds, p)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}

	if err != nil {
		return "", err
	}

	return body.Get("sha").String(), nil
}

type putBody struct {
	Message string `json:"message"`
	Content string `json:"content"`
	SHA     string `json:"sha,omitempty"`
	Branch  string `json:"branch,omitempty"`
}

type deleteBody struct {
	Message string `json:"message"`
	SHA     string `json:"sha"`
	Branch  string `json:"branch,omitempty"`
}

// Put creates or replaces the file at p with content as one commit. An
// existing file's sha is looked up first so the write is an upsert. It
// returns the sha of the new blob.
func (c *Client) Put(ctx context.Context, creds models.Credentials, p, content, message string) (string, error) {
	sha, err := c.sha(ctx, creds, p)
	if err != nil {
		return "", err
	}

	req, err := c.request(ctx, creds)
	if err != nil {
		return "", err
	}

	req.SetBody(putBody{
		Message: message,
		Content: base64.StdEncoding.EncodeToString([]byte(content)),
		SHA:     sha,
		Branch:  c.branch,
	})

	resp, err := c.do(req, http.MethodPut, creds, p)
	if err != nil {
		return "", err
	}

	return gjson.GetBytes(resp.Body(), "content.sha").String(), nil
}

// Delete removes the file at p as one commit. A file that does not exist
// counts as deleted.
func (c *Client) Delete(ctx context.Context, creds models.Credentials, p, message string) error {
	sha, err := c.sha(ctx, creds, p)
	if err != nil {
		return err
	}

	if sha == "" {
		return nil
	}

	req, err := c.request(ctx, creds)
	if err != nil {
		return err
	}

	req.SetBody(deleteBody{Message: message, SHA: sha, Branch: c.branch})

	_, err = c.do(req, http.MethodDelete, creds, p)
	if errors.Is(err, ErrNotFound) {
		return nil
	}

	return err
}

// List returns the entries of directory dir. The empty dir is the
// repository root.
func (c *Client) List(ctx context.Context, creds models.Credentials, dir string) ([]Entry, error) {
	req, err := c.request(ctx, creds)
	if err != nil {
		return nil, err
	}

	if c.branch != "" {
		req.SetQueryParam("ref", c.branch)
	}

	resp, err := c.do(req, http.MethodGet, creds, dir)
	if err != nil {
		return nil, err
	}

	body := gjson.ParseBytes(resp.Body())
	if !body.IsArray() {
		return nil, fmt.Errorf("%w: %s is not a directory", apperrors.ErrAPIResponse, dir)
	}

	var entries []Entry

	body.ForEach(func(_, v gjson.Result) bool {
		entries = append(entries, Entry{
			Name: v.Get("name").String(),
			Path: v.Get("path").String(),
			Type: v.Get("type").String(),
			SHA:  v.Get("sha").String(),
		})

		return true
	})

	return entries, nil
}

// Walk lists dir recursively, calling fn for every entry. Directories are
// reported before their contents. Requests are made one at a time.
func (c *Client) Walk(ctx context.Context, creds models.Credentials, dir string, fn func(Entry) error) error {
	entries, err := c.List(ctx, creds, dir)
	if err != nil {
		return err
	}

	for _, e := range entries {
		if err := fn(e); err != nil {
			return err
		}

		if e.IsDir() {
			if err := c.Walk(ctx, creds, e.Path, fn); err != nil {
				return err
			}
		}
	}

	return nil
}

// restyLogger routes resty's own warnings through slog.
type restyLogger struct {
	logger *slog.Logger
}

func (l restyLogger) Errorf(format string, v ...interface{}) {
	l.logger.Error("resty: " + strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l restyLogger) Warnf(format string, v ...interface{}) {
	l.logger.Warn("resty: " + strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l restyLogger) Debugf(format string, v ...interface{}) {
	l.logger.Debug("resty: " + strings.TrimSpace(fmt.Sprintf(format, v...)))
}
