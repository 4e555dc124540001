package config

import (
	"encoding/hex"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// APIKeyPrefix marks keys accepted by the HTTP API bearer middleware.
const APIKeyPrefix = "mdn_"

// APIKeyMinLen is the minimum total length of an API key, prefix included.
const APIKeyMinLen = len(APIKeyPrefix) + 32

// Config holds all environment-based configuration for mdnotes.
type Config struct {
	// Directory of .md files that forms the baseline tree.
	ContentDir string `env:"MDNOTES_CONTENT_DIR" envDefault:"content"`

	// Location of the bbolt state database. Defaults to ~/.mdnotes/state.db.
	StatePath string `env:"MDNOTES_STATE_PATH"`

	// GitHub credentials. Optional here: they can also be saved at runtime
	// through the login command or the credentials endpoint.
	GitHubToken string `env:"GITHUB_TOKEN"`
	GitHubRepo  string `env:"GITHUB_REPO"`

	// Contents API base URL. Override for GitHub Enterprise.
	GitHubAPIURL string `env:"GITHUB_API_URL" envDefault:"https://api.github.com"`

	// Branch commits go to. Empty means the repository default branch.
	GitHubBranch string `env:"GITHUB_BRANCH"`

	// Repository directory that mirrors the content tree.
	ContentPrefix string `env:"CONTENT_PREFIX" envDefault:"content"`

	// When set, the saved token is sealed at rest with a key derived from it.
	CredentialsPassphrase string `env:"CREDENTIALS_PASSPHRASE"`

	// Deleting a folder removes its descendants from the in-memory tree.
	CascadeDelete bool `env:"CASCADE_DELETE" envDefault:"false"`

	// HTTP API settings.
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8090"`
	APIKeys    string `env:"API_KEYS"`

	// Environment controls log format
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL"`
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. It may hold a GitHub token.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	absDir, err := filepath.Abs(cfg.ContentDir)
	if err != nil {
		return nil, fmt.Errorf("resolving content dir to absolute path: %w", err)
	}

	cfg.ContentDir = absDir
	cfg.ContentPrefix = strings.Trim(cfg.ContentPrefix, "/")
	cfg.GitHubAPIURL = strings.TrimRight(cfg.GitHubAPIURL, "/")

	if cfg.StatePath == "" {
		p, err := DefaultStatePath()
		if err != nil {
			return nil, err
		}

		cfg.StatePath = p
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.ContentDir == "" {
		return fmt.Errorf("MDNOTES_CONTENT_DIR must not be empty")
	}

	u, err := url.Parse(c.GitHubAPIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("GITHUB_API_URL must be an absolute URL, got %q", c.GitHubAPIURL)
	}

	if (c.GitHubToken == "") != (c.GitHubRepo == "") {
		return fmt.Errorf("GITHUB_TOKEN and GITHUB_REPO must be set together")
	}

	if c.GitHubRepo != "" {
		if err := ValidateRepo(c.GitHubRepo); err != nil {
			return fmt.Errorf("GITHUB_REPO: %w", err)
		}
	}

	return nil
}

// ValidateRepo checks that repo has the owner/name form.
func ValidateRepo(repo string) error {
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return fmt.Errorf("repository must be in owner/name form, got %q", repo)
	}

	return nil
}

// DefaultStatePath returns ~/.mdnotes/state.db.
func DefaultStatePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}

	return filepath.Join(home, ".mdnotes", "state.db"), nil
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// APIKeyEntry holds a pre-configured API key and its associated user
// identity parsed from API_KEYS.
type APIKeyEntry struct {
	UserID string
	Key    string
}

// ParseAPIKeys parses the API_KEYS string.
// Format: "user1:mdn_key1,user2:mdn_key2"
func (c *Config) ParseAPIKeys() ([]APIKeyEntry, error) {
	if c.APIKeys == "" {
		return nil, nil
	}

	seenUsers := make(map[string]struct{})

	var entries []APIKeyEntry

	for _, pair := range strings.Split(c.APIKeys, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		userID, key, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, fmt.Errorf("invalid API key entry (missing ':')")
		}

		if userID == "" || key == "" {
			return nil, fmt.Errorf("empty user or key in entry %d", len(entries)+1)
		}

		if !strings.HasPrefix(key, APIKeyPrefix) {
			return nil, fmt.Errorf("API key must start with %q prefix in entry %d", APIKeyPrefix, len(entries)+1)
		}

		if len(key) < APIKeyMinLen {
			return nil, fmt.Errorf("API key too short in entry %d (minimum %d characters)", len(entries)+1, APIKeyMinLen)
		}

		if _, err := hex.DecodeString(key[len(APIKeyPrefix):]); err != nil {
			return nil, fmt.Errorf("API key contains non-hex characters after %q prefix in entry %d", APIKeyPrefix, len(entries)+1)
		}

		if _, dup := seenUsers[userID]; dup {
			return nil, fmt.Errorf("duplicate user_id %q in API_KEYS", userID)
		}

		seenUsers[userID] = struct{}{}
		entries = append(entries, APIKeyEntry{UserID: userID, Key: key})
	}

	return entries, nil
}
