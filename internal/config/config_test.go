package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearConfigEnv unsets all config env vars so tests start clean.
func clearConfigEnv(t *testing.T) {
	t.Helper()

	for _, key := range []string{
		"MDNOTES_CONTENT_DIR",
		"MDNOTES_STATE_PATH",
		"GITHUB_TOKEN",
		"GITHUB_REPO",
		"GITHUB_API_URL",
		"GITHUB_BRANCH",
		"CONTENT_PREFIX",
		"CREDENTIALS_PASSPHRASE",
		"CASCADE_DELETE",
		"LISTEN_ADDR",
		"API_KEYS",
		"ENVIRONMENT",
		"LOG_LEVEL",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func validKey() string {
	return APIKeyPrefix + strings.Repeat("ab", 16)
}

func TestLoad_Defaults(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("MDNOTES_STATE_PATH", filepath.Join(t.TempDir(), "state.db"))

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, filepath.IsAbs(cfg.ContentDir))
	assert.Equal(t, "content", filepath.Base(cfg.ContentDir))
	assert.Equal(t, "https://api.github.com", cfg.GitHubAPIURL)
	assert.Equal(t, "content", cfg.ContentPrefix)
	assert.Equal(t, ":8090", cfg.ListenAddr)
	assert.Equal(t, "development", cfg.Environment)
	assert.False(t, cfg.CascadeDelete)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_DefaultStatePath(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(os.Getenv("HOME"), ".mdnotes", "state.db"), cfg.StatePath)
}

func TestLoad_GitHubSettings(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("MDNOTES_STATE_PATH", filepath.Join(t.TempDir(), "state.db"))
	t.Setenv("GITHUB_TOKEN", "ghp_test")
	t.Setenv("GITHUB_REPO", "octo/notes")
	t.Setenv("GITHUB_API_URL", "https://ghe.example.com/api/v3/")
	t.Setenv("CONTENT_PREFIX", "/content/")
	t.Setenv("CASCADE_DELETE", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "ghp_test", cfg.GitHubToken)
	assert.Equal(t, "octo/notes", cfg.GitHubRepo)
	assert.Equal(t, "https://ghe.example.com/api/v3", cfg.GitHubAPIURL)
	assert.Equal(t, "content", cfg.ContentPrefix)
	assert.True(t, cfg.CascadeDelete)
}

func TestLoad_TokenWithoutRepo(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("GITHUB_TOKEN", "ghp_test")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GITHUB_REPO")
}

func TestLoad_BadRepo(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("GITHUB_TOKEN", "ghp_test")
	t.Setenv("GITHUB_REPO", "just-a-name")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "owner/name")
}

func TestLoad_BadAPIURL(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("GITHUB_API_URL", "not a url")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GITHUB_API_URL")
}

func TestLoad_Production(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("MDNOTES_STATE_PATH", filepath.Join(t.TempDir(), "state.db"))
	t.Setenv("ENVIRONMENT", "production")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
}

func TestValidateRepo(t *testing.T) {
	assert.NoError(t, ValidateRepo("octo/notes"))
	assert.Error(t, ValidateRepo("octo"))
	assert.Error(t, ValidateRepo("/notes"))
	assert.Error(t, ValidateRepo("octo/"))
	assert.Error(t, ValidateRepo("octo/notes/extra"))
}

// --- ParseAPIKeys ---

func TestParseAPIKeys_Empty(t *testing.T) {
	cfg := &Config{}
	entries, err := cfg.ParseAPIKeys()
	require.NoError(t, err)
	assert.Nil(t, entries)
}

func TestParseAPIKeys_Valid(t *testing.T) {
	cfg := &Config{APIKeys: "alice:" + validKey() + ", bob:" + validKey()}
	entries, err := cfg.ParseAPIKeys()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "alice", entries[0].UserID)
	assert.Equal(t, "bob", entries[1].UserID)
	assert.Equal(t, validKey(), entries[1].Key)
}

func TestParseAPIKeys_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"missing colon", "alice", "missing ':'"},
		{"empty user", ":" + validKey(), "empty user"},
		{"bad prefix", "alice:xx_" + strings.Repeat("ab", 16), "prefix"},
		{"too short", "alice:" + APIKeyPrefix + "abcd", "too short"},
		{"non hex", "alice:" + APIKeyPrefix + strings.Repeat("zz", 16), "non-hex"},
		{"duplicate user", "alice:" + validKey() + ",alice:" + validKey(), "duplicate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{APIKeys: tt.input}
			_, err := cfg.ParseAPIKeys()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
