// Package keyvault keeps provider API keys encrypted at rest. Keys are
// sealed with XChaCha20-Poly1305 under a single vault key and stored in a
// small JSON file next to the local database.
package keyvault

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
)

var (
	ErrNotFound  = errors.New("keyvault: no key for provider")
	ErrCorrupted = errors.New("keyvault: ciphertext rejected")
)

// KeySize is the required vault key length in bytes.
const KeySize = chacha20poly1305.KeySize

type Vault struct {
	aead cipher.AEAD

	mu   sync.Mutex
	path string
	keys map[string]string // provider id -> sealed key
}

// Open loads (or initializes) the vault file at path. vaultKey must be
// KeySize bytes.
func Open(path string, vaultKey []byte) (*Vault, error) {
	aead, err := chacha20poly1305.NewX(vaultKey)
	if err != nil {
		return nil, fmt.Errorf("keyvault: %w", err)
	}
	v := &Vault{aead: aead, path: path, keys: make(map[string]string)}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return v, nil
	}
	if err != nil {
		return nil, fmt.Errorf("keyvault: read %s: %w", path, err)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &v.keys); err != nil {
			return nil, fmt.Errorf("keyvault: parse %s: %w", path, err)
		}
	}
	return v, nil
}

// Set seals the API key for a provider and persists the vault.
func (v *Vault) Set(providerID, apiKey string) error {
	sealed, err := v.seal(apiKey)
	if err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.keys[providerID] = sealed
	return v.flushLocked()
}

// Get opens the stored API key for a provider.
func (v *Vault) Get(providerID string) (string, error) {
	v.mu.Lock()
	sealed, ok := v.keys[providerID]
	v.mu.Unlock()
	if !ok {
		return "", ErrNotFound
	}
	return v.open(sealed)
}

// Delete removes a provider's key and persists the vault. Removing an
// absent key is a no-op.
func (v *Vault) Delete(providerID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.keys[providerID]; !ok {
		return nil
	}
	delete(v.keys, providerID)
	return v.flushLocked()
}

// Providers lists the provider ids with a stored key.
func (v *Vault) Providers() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]string, 0, len(v.keys))
	for id := range v.keys {
		out = append(out, id)
	}
	return out
}

func (v *Vault) seal(plaintext string) (string, error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("keyvault: nonce: %w", err)
	}
	box := v.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(box), nil
}

func (v *Vault) open(sealed string) (string, error) {
	box, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil || len(box) < v.aead.NonceSize() {
		return "", ErrCorrupted
	}
	nonce, ct := box[:v.aead.NonceSize()], box[v.aead.NonceSize():]
	pt, err := v.aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", ErrCorrupted
	}
	return string(pt), nil
}

func (v *Vault) flushLocked() error {
	data, err := json.MarshalIndent(v.keys, "", "  ")
	if err != nil {
		return err
	}
	tmp := v.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("keyvault: write %s: %w", tmp, err)
	}
	return os.Rename(tmp, v.path)
}
