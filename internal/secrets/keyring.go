// Package secrets keeps the shared score-token secret in the OS keychain, with a private
// JSON file fallback for machines without a keyring backend.
package secrets

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"
)

// DefaultService is the keychain service name.
const DefaultService = "coindle"

const keyTokenSecret = "token-secret"

// ErrNotFound is returned when no secret is stored.
var ErrNotFound = errors.New("secrets: not found")

// KeyringStore wraps the OS keychain with an optional file fallback.
type KeyringStore struct {
	service      string
	fallbackPath string
	mu           sync.Mutex
}

// NewKeyringStore creates a keyring wrapper. fallbackPath may be empty to disable the file.
func NewKeyringStore(service, fallbackPath string) *KeyringStore {
	if strings.TrimSpace(service) == "" {
		service = DefaultService
	}
	return &KeyringStore{
		service:      service,
		fallbackPath: fallbackPath,
	}
}

// SetTokenSecret stores the shared secret used to sign scores.
func (k *KeyringStore) SetTokenSecret(value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("secrets: empty token secret")
	}
	return k.set(keyTokenSecret, value)
}

// TokenSecret returns the shared secret, or ErrNotFound.
func (k *KeyringStore) TokenSecret() (string, error) {
	return k.get(keyTokenSecret)
}

// DeleteTokenSecret removes the secret from the keychain and the fallback file.
func (k *KeyringStore) DeleteTokenSecret() error {
	err := keyring.Delete(k.service, keyTokenSecret)
	ferr := k.deleteFallback(keyTokenSecret)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) && !isKeyringUnavailable(err) {
		return fmt.Errorf("secrets: keyring delete: %w", err)
	}
	return ferr
}

func (k *KeyringStore) set(name, value string) error {
	err := keyring.Set(k.service, name, value)
	if err == nil {
		return nil
	}
	if !isKeyringUnavailable(err) {
		return fmt.Errorf("secrets: keyring set %s: %w", name, err)
	}
	return k.setFallback(name, value)
}

func (k *KeyringStore) get(name string) (string, error) {
	val, err := keyring.Get(k.service, name)
	if err == nil {
		return val, nil
	}
	if !isKeyringUnavailable(err) && !errors.Is(err, keyring.ErrNotFound) {
		return "", fmt.Errorf("secrets: keyring get %s: %w", name, err)
	}

	fallback, ferr := k.getFallback(name)
	if ferr == nil {
		return fallback, nil
	}
	if errors.Is(err, keyring.ErrNotFound) || errors.Is(ferr, ErrNotFound) {
		return "", ErrNotFound
	}
	return "", ferr
}

func isKeyringUnavailable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "secret service") ||
		strings.Contains(msg, "dbus") ||
		strings.Contains(msg, "no keychain") ||
		strings.Contains(msg, "keyring backend not available") ||
		strings.Contains(msg, "not supported")
}

func (k *KeyringStore) setFallback(name, value string) error {
	if strings.TrimSpace(k.fallbackPath) == "" {
		return fmt.Errorf("secrets: keyring unavailable and no fallback path configured")
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	data, err := k.readFallbackUnlocked()
	if err != nil {
		return err
	}
	data[name] = value
	return k.writeFallbackUnlocked(data)
}

func (k *KeyringStore) getFallback(name string) (string, error) {
	if strings.TrimSpace(k.fallbackPath) == "" {
		return "", ErrNotFound
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	data, err := k.readFallbackUnlocked()
	if err != nil {
		return "", err
	}
	val, ok := data[name]
	if !ok {
		return "", ErrNotFound
	}
	return val, nil
}

func (k *KeyringStore) deleteFallback(name string) error {
	if strings.TrimSpace(k.fallbackPath) == "" {
		return nil
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	data, err := k.readFallbackUnlocked()
	if err != nil {
		return err
	}
	if _, ok := data[name]; !ok {
		return nil
	}
	delete(data, name)
	return k.writeFallbackUnlocked(data)
}

func (k *KeyringStore) readFallbackUnlocked() (map[string]string, error) {
	out := map[string]string{}
	raw, err := os.ReadFile(k.fallbackPath)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, fmt.Errorf("secrets: read fallback: %w", err)
	}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("secrets: decode fallback: %w", err)
	}
	return out, nil
}

func (k *KeyringStore) writeFallbackUnlocked(data map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(k.fallbackPath), 0o700); err != nil {
		return fmt.Errorf("secrets: mkdir fallback dir: %w", err)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("secrets: encode fallback: %w", err)
	}
	if err := os.WriteFile(k.fallbackPath, raw, 0o600); err != nil {
		return fmt.Errorf("secrets: write fallback: %w", err)
	}
	return nil
}
