package frontmatter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_TitleAndDates(t *testing.T) {
	content := "---\ntitle: Groceries\ncreatedAt: 2024-03-01T10:00:00.000Z\nupdatedAt: 2024-03-02T11:30:00.000Z\n---\n\n# List\n"
	meta, body, ok := Parse(content)
	require.True(t, ok)
	assert.Equal(t, "Groceries", meta.Title)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), meta.CreatedAt)
	assert.Equal(t, time.Date(2024, 3, 2, 11, 30, 0, 0, time.UTC), meta.UpdatedAt)
	assert.Equal(t, "# List\n", body)
}

func TestParse_Tags(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"block list", "---\ntags:\n  - project\n  - go\n---\nbody"},
		{"flow list", "---\ntags: [project, go]\n---\nbody"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta, body, ok := Parse(tt.content)
			require.True(t, ok)
			assert.Equal(t, []string{"project", "go"}, meta.Tags)
			assert.Equal(t, "body", body)
		})
	}
}

func TestParse_NoFrontmatter(t *testing.T) {
	content := "# Just a heading\nSome text"
	meta, body, ok := Parse(content)
	assert.False(t, ok)
	assert.Equal(t, Meta{}, meta)
	assert.Equal(t, content, body)
}

func TestParse_NoClosingDelimiter(t *testing.T) {
	content := "---\ntitle: a\nNo closing"
	_, body, ok := Parse(content)
	assert.False(t, ok)
	assert.Equal(t, content, body)
}

func TestParse_EmptyContent(t *testing.T) {
	_, body, ok := Parse("")
	assert.False(t, ok)
	assert.Empty(t, body)
}

func TestParse_EmptyHeader(t *testing.T) {
	for _, content := range []string{"---\n---\nbody", "---\n\n---\nbody"} {
		meta, body, ok := Parse(content)
		require.True(t, ok, content)
		assert.Empty(t, meta.Title)
		assert.Equal(t, "body", body)
	}
}

func TestParse_OnlyDelimiters(t *testing.T) {
	meta, body, ok := Parse("---\ntitle: Hello\n---")
	require.True(t, ok)
	assert.Equal(t, "Hello", meta.Title)
	assert.Empty(t, body)
}

func TestParse_UnquotedTitleWithColon(t *testing.T) {
	meta, _, ok := Parse("---\ntitle: Meeting: Q3 planning\n---\n\n")
	require.True(t, ok)
	assert.Equal(t, "Meeting: Q3 planning", meta.Title)
}

func TestParse_WindowsLineEndings(t *testing.T) {
	meta, body, ok := Parse("---\r\ntitle: Win\r\ntags:\r\n  - test\r\n---\r\n\r\n# Hello")
	require.True(t, ok)
	assert.Equal(t, "Win", meta.Title)
	assert.Equal(t, []string{"test"}, meta.Tags)
	assert.Equal(t, "# Hello", body)
}

func TestParse_ClosingLineMustStandAlone(t *testing.T) {
	_, _, ok := Parse("---\ntitle: a\n---trailing\nbody")
	assert.False(t, ok)
}

func TestParse_BadTimestampIsZero(t *testing.T) {
	meta, _, ok := Parse("---\ntitle: a\ncreatedAt: yesterday\n---\n")
	require.True(t, ok)
	assert.True(t, meta.CreatedAt.IsZero())
}

func TestRender_RoundTrip(t *testing.T) {
	in := Meta{
		Title:     "Plans: 2025",
		CreatedAt: time.Date(2025, 1, 2, 3, 4, 5, 6_000_000, time.UTC),
		UpdatedAt: time.Date(2025, 1, 3, 3, 4, 5, 0, time.UTC),
		Tags:      []string{"work", "q1"},
	}

	out, err := Render(in, "# Body\n")
	require.NoError(t, err)
	assert.Contains(t, out, "\n---\n\n# Body\n")

	meta, body, ok := Parse(out)
	require.True(t, ok)
	assert.Equal(t, in, meta)
	assert.Equal(t, "# Body\n", body)
}

func TestRender_OmitsZeroFields(t *testing.T) {
	out, err := Render(Meta{Title: "x"}, "")
	require.NoError(t, err)
	assert.Equal(t, "---\ntitle: x\n---\n\n", out)

	out, err = Render(Meta{}, "b")
	require.NoError(t, err)
	assert.Equal(t, "---\n---\n\nb", out)
}

func TestNewNoteContent(t *testing.T) {
	content := NewNoteContent("todo")
	assert.Equal(t, "---\ntitle: todo\n---\n\n", content)

	meta, body, ok := Parse(content)
	require.True(t, ok)
	assert.Equal(t, "todo", meta.Title)
	assert.Empty(t, body)
}
