// Package auth guards the HTTP API with pre-configured API keys.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"github.com/alexjbarnes/mdnotes/internal/config"
)

// apiKeyBytes is the random part of a generated key before hex encoding.
const apiKeyBytes = 16

type apiKey struct {
	userID string
	hash   [sha256.Size]byte
}

// KeyStore holds the SHA-256 digests of the configured API keys. It is
// read-only after construction and safe for concurrent use.
type KeyStore struct {
	keys []apiKey
}

// NewKeyStore builds a store from parsed API_KEYS entries.
func NewKeyStore(entries []config.APIKeyEntry) *KeyStore {
	ks := &KeyStore{keys: make([]apiKey, 0, len(entries))}

	for _, e := range entries {
		ks.keys = append(ks.keys, apiKey{userID: e.UserID, hash: sha256.Sum256([]byte(e.Key))})
	}

	return ks
}

// Enabled reports whether any key is configured. With no keys the API
// is open.
func (ks *KeyStore) Enabled() bool {
	return ks != nil && len(ks.keys) > 0
}

// Validate returns the user a key belongs to. Every configured key is
// compared so timing does not reveal which one matched.
func (ks *KeyStore) Validate(key string) (string, bool) {
	if !ks.Enabled() || key == "" {
		return "", false
	}

	sum := sha256.Sum256([]byte(key))

	userID := ""
	found := false

	for _, k := range ks.keys {
		if subtle.ConstantTimeCompare(sum[:], k.hash[:]) == 1 {
			userID, found = k.userID, true
		}
	}

	return userID, found
}

// RandomHex generates a cryptographically random hex string of the given byte length.
func RandomHex(byteLen int) string {
	b := make([]byte, byteLen)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}

	return hex.EncodeToString(b)
}

// GenerateAPIKey returns a fresh key in the form API_KEYS accepts.
func GenerateAPIKey() string {
	return config.APIKeyPrefix + RandomHex(apiKeyBytes)
}
