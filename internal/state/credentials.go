package state

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/alexjbarnes/mdnotes/internal/models"
	"golang.org/x/crypto/scrypt"
	"golang.org/x/text/unicode/norm"
)

const (
	// scrypt parameters for sealing the saved token.
	scryptN      = 32768
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32

	saltLen = 16
)

// storedCredentials is the persisted form of models.Credentials. Exactly
// one of Token or Sealed is set.
type storedCredentials struct {
	Repo   string `json:"repo"`
	Token  string `json:"token,omitempty"`
	Sealed string `json:"sealed,omitempty"`
	Salt   string `json:"salt,omitempty"`
}

// CredentialStore persists GitHub credentials under KeyCredentials. With a
// passphrase the token is sealed with AES-GCM under a scrypt-derived key.
type CredentialStore struct {
	store      Storage
	passphrase string

	mu   sync.Mutex
	keys map[string][]byte // salt -> derived key
}

// NewCredentialStore returns a store writing through s. An empty
// passphrase stores the token in the clear.
func NewCredentialStore(s Storage, passphrase string) *CredentialStore {
	return &CredentialStore{
		store:      s,
		passphrase: norm.NFKC.String(passphrase),
		keys:       make(map[string][]byte),
	}
}

// Load returns the saved credentials. Missing, malformed, or unopenable
// data yields zero credentials and no error.
func (c *CredentialStore) Load() (models.Credentials, error) {
	sc, ok, err := LoadJSON[storedCredentials](c.store, KeyCredentials)
	if err != nil || !ok {
		return models.Credentials{}, err
	}

	if sc.Sealed == "" {
		return models.Credentials{Token: sc.Token, Repo: sc.Repo}, nil
	}

	if c.passphrase == "" {
		return models.Credentials{}, nil
	}

	token, err := c.open(sc.Sealed, sc.Salt)
	if err != nil {
		return models.Credentials{}, nil
	}

	return models.Credentials{Token: token, Repo: sc.Repo}, nil
}

// Save persists creds, sealing the token when a passphrase is configured.
func (c *CredentialStore) Save(creds models.Credentials) error {
	sc := storedCredentials{Repo: creds.Repo}

	if c.passphrase == "" {
		sc.Token = creds.Token
		return SaveJSON(c.store, KeyCredentials, sc)
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("generating salt: %w", err)
	}

	sc.Salt = base64.StdEncoding.EncodeToString(salt)

	sealed, err := c.seal(creds.Token, sc.Salt)
	if err != nil {
		return err
	}

	sc.Sealed = sealed

	return SaveJSON(c.store, KeyCredentials, sc)
}

// Clear forgets the saved credentials.
func (c *CredentialStore) Clear() error {
	return c.store.Clear(KeyCredentials)
}

func (c *CredentialStore) aead(salt string) (cipher.AEAD, error) {
	c.mu.Lock()
	key, ok := c.keys[salt]
	c.mu.Unlock()

	if !ok {
		rawSalt, err := base64.StdEncoding.DecodeString(salt)
		if err != nil {
			return nil, fmt.Errorf("decoding salt: %w", err)
		}

		key, err = scrypt.Key([]byte(c.passphrase), rawSalt, scryptN, scryptR, scryptP, scryptKeyLen)
		if err != nil {
			return nil, fmt.Errorf("deriving key: %w", err)
		}

		c.mu.Lock()
		c.keys[salt] = key
		c.mu.Unlock()
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating AES cipher: %w", err)
	}

	return cipher.NewGCM(block)
}

func (c *CredentialStore) seal(token, salt string) (string, error) {
	gcm, err := c.aead(salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	out := gcm.Seal(nonce, nonce, []byte(token), nil)

	return base64.StdEncoding.EncodeToString(out), nil
}

func (c *CredentialStore) open(sealed, salt string) (string, error) {
	gcm, err := c.aead(salt)
	if err != nil {
		return "", err
	}

	data, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("decoding sealed token: %w", err)
	}

	if len(data) < gcm.NonceSize() {
		return "", fmt.Errorf("sealed token too short")
	}

	nonce, ct := data[:gcm.NonceSize()], data[gcm.NonceSize():]

	plain, err := gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", fmt.Errorf("opening sealed token: %w", err)
	}

	return string(plain), nil
}
