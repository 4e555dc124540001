// Package frontmatter reads and writes the metadata header of a note:
// a leading block of key: value lines between two "---" lines.
package frontmatter

import (
	"bytes"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// TimeLayout matches the millisecond ISO-8601 form notes are written with.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// Meta holds the front-matter fields mdnotes understands.
type Meta struct {
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
	Tags      []string
}

type rawMeta struct {
	Title     string   `yaml:"title,omitempty"`
	CreatedAt string   `yaml:"createdAt,omitempty"`
	UpdatedAt string   `yaml:"updatedAt,omitempty"`
	Tags      []string `yaml:"tags,omitempty,flow"`
}

// Parse splits content into its front-matter and body. ok is false when
// there is no well-formed header, in which case body is the whole input.
// One blank line after the closing delimiter is dropped from the body.
func Parse(content string) (meta Meta, body string, ok bool) {
	block, rest, found := split(content)
	if !found {
		return Meta{}, content, false
	}

	var raw rawMeta
	if err := yaml.Unmarshal([]byte(block), &raw); err != nil {
		raw = parseLines(block)
	}

	meta = Meta{
		Title:     strings.TrimSpace(raw.Title),
		CreatedAt: parseTime(raw.CreatedAt),
		UpdatedAt: parseTime(raw.UpdatedAt),
		Tags:      raw.Tags,
	}

	rest = strings.TrimPrefix(rest, "\r\n")
	rest = strings.TrimPrefix(rest, "\n")

	return meta, rest, true
}

// split returns the header block and the remainder after the closing
// delimiter line.
func split(content string) (block, rest string, ok bool) {
	data := []byte(content)
	if !bytes.HasPrefix(data, []byte("---")) {
		return "", "", false
	}

	// The opening delimiter must be a line of its own.
	nl := bytes.IndexByte(data, '\n')
	if nl < 0 || strings.TrimSpace(string(data[3:nl])) != "" {
		return "", "", false
	}

	after := data[nl+1:]

	// An empty header: the closing line follows immediately.
	if bytes.HasPrefix(after, []byte("---")) {
		end := bytes.IndexByte(after, '\n')
		if end < 0 {
			return "", "", true
		}

		return "", string(after[end+1:]), true
	}

	end := bytes.Index(after, []byte("\n---"))
	if end < 0 {
		return "", "", false
	}

	block = string(after[:end])
	tail := after[end+len("\n---"):]

	if i := bytes.IndexByte(tail, '\n'); i >= 0 {
		if strings.TrimSpace(string(tail[:i])) != "" {
			return "", "", false
		}

		return block, string(tail[i+1:]), true
	}

	if strings.TrimSpace(string(tail)) != "" {
		return "", "", false
	}

	return block, "", true
}

// parseLines is the fallback for headers that are not valid YAML, such
// as an unquoted title containing ": ".
func parseLines(block string) rawMeta {
	var raw rawMeta

	for _, line := range strings.Split(block, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}

		value = strings.TrimSpace(value)

		switch strings.TrimSpace(key) {
		case "title":
			raw.Title = value
		case "createdAt":
			raw.CreatedAt = value
		case "updatedAt":
			raw.UpdatedAt = value
		}
	}

	return raw
}

func parseTime(s string) time.Time {
	s = strings.Trim(strings.TrimSpace(s), `"'`)
	if s == "" {
		return time.Time{}
	}

	for _, layout := range []string{time.RFC3339Nano, TimeLayout, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}

	return time.Time{}
}

// Render writes meta as a header followed by a blank line and body.
// Zero timestamps and empty fields are omitted.
func Render(meta Meta, body string) (string, error) {
	raw := rawMeta{
		Title: meta.Title,
		Tags:  meta.Tags,
	}

	if !meta.CreatedAt.IsZero() {
		raw.CreatedAt = meta.CreatedAt.UTC().Format(TimeLayout)
	}

	if !meta.UpdatedAt.IsZero() {
		raw.UpdatedAt = meta.UpdatedAt.UTC().Format(TimeLayout)
	}

	out, err := yaml.Marshal(raw)
	if err != nil {
		return "", err
	}

	header := string(out)
	if header == "{}\n" {
		header = ""
	}

	return "---\n" + header + "---\n\n" + body, nil
}

// NewNoteContent returns the initial content of a note created with the
// given title.
func NewNoteContent(title string) string {
	return "---\ntitle: " + title + "\n---\n\n"
}
