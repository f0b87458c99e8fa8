// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package keychain provides centralized, thread-safe keychain operations for idkeeper.
// This module manages all interactions with the OS keychain/credential store,
// providing a unified interface for storing and retrieving the session record.
//
// The package supports macOS Keychain, Windows Credential Manager, the Secret
// Service and KWallet on Linux, pass, and an encrypted file backend for hosts
// without any of those. It never keeps a process-wide instance; callers own
// the Manager they open.
package keychain

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/99designs/keyring"

	"idkeeper/cli/internal/xdg"
)

// ErrNotFound is returned by Get when no item exists for the key.
var ErrNotFound = errors.New("keychain: item not found")

// Manager provides centralized, thread-safe operations for the OS keychain.
type Manager struct {
	mu   sync.RWMutex
	ring keyring.Keyring
}

// Config selects and scopes the keyring.
type Config struct {
	// ServiceName identifies our keychain/credential store namespace.
	ServiceName string
	// Backends restricts the allowed backends by name; empty means platform defaults.
	Backends []string
	// FileDir is where the file backend keeps its encrypted items.
	FileDir string
	// FilePassword supplies the file backend passphrase. When nil, the
	// IDKEEPER_KEYRING_PASSWORD variable is used, then a terminal prompt.
	FilePassword keyring.PromptFunc
}

var backendNames = map[string]keyring.BackendType{
	"keychain":       keyring.KeychainBackend,
	"wincred":        keyring.WinCredBackend,
	"secret-service": keyring.SecretServiceBackend,
	"kwallet":        keyring.KWalletBackend,
	"pass":           keyring.PassBackend,
	"file":           keyring.FileBackend,
}

// NewManager creates a new keychain manager with the OS keyring initialized.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.ServiceName == "" {
		return nil, errors.New("keychain: service name is required")
	}
	ring, err := openRing(cfg)
	if err != nil {
		return nil, err
	}
	return &Manager{ring: ring}, nil
}

// NewManagerWithRing wraps an already opened keyring, e.g. keyring.NewArrayKeyring in tests.
func NewManagerWithRing(ring keyring.Keyring) *Manager {
	return &Manager{ring: ring}
}

// openRing opens the OS keyring restricted to the configured backends.
func openRing(cfg Config) (keyring.Keyring, error) {
	allowed, err := allowedBackends(cfg.Backends)
	if err != nil {
		return nil, err
	}

	fileDir := cfg.FileDir
	if fileDir == "" {
		if dir, err := xdg.DataDir(); err == nil {
			fileDir = filepath.Join(dir, "keyring")
		}
	}
	passwordFunc := cfg.FilePassword
	if passwordFunc == nil {
		passwordFunc = envOrTerminalPassword
	}

	kcfg := keyring.Config{
		ServiceName:              cfg.ServiceName,
		AllowedBackends:          allowed,
		KeychainName:             "login",
		KeychainTrustApplication: true,
		WinCredPrefix:            cfg.ServiceName,
		PassPrefix:               cfg.ServiceName,
		LibSecretCollectionName:  "login",
		KWalletAppID:             cfg.ServiceName,
		KWalletFolder:            cfg.ServiceName,
		FileDir:                  fileDir,
		FilePasswordFunc:         passwordFunc,
	}

	ring, err := keyring.Open(kcfg)
	if err != nil {
		if runtime.GOOS == "darwin" {
			return nil, fmt.Errorf("macOS Keychain unavailable (try keyring.backends [\"pass\"] or [\"file\"]): %w", err)
		}
		return nil, fmt.Errorf("open keyring: %w", err)
	}
	return ring, nil
}

// allowedBackends maps configured names to keyring backend types.
func allowedBackends(names []string) ([]keyring.BackendType, error) {
	if len(names) == 0 {
		// Platform defaults, file backend last so a desktop secret store wins.
		var out []keyring.BackendType
		for _, b := range keyring.AvailableBackends() {
			if b != keyring.FileBackend {
				out = append(out, b)
			}
		}
		return append(out, keyring.FileBackend), nil
	}
	out := make([]keyring.BackendType, 0, len(names))
	for _, n := range names {
		b, ok := backendNames[strings.ToLower(strings.TrimSpace(n))]
		if !ok {
			return nil, fmt.Errorf("keychain: unknown backend %q", n)
		}
		out = append(out, b)
	}
	return out, nil
}

func envOrTerminalPassword(prompt string) (string, error) {
	if v := os.Getenv("IDKEEPER_KEYRING_PASSWORD"); v != "" {
		return v, nil
	}
	return keyring.TerminalPrompt(prompt)
}

// Set stores data under key, replacing any previous item in one operation.
// This method is thread-safe.
func (m *Manager) Set(key string, data []byte, label string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.ring.Set(keyring.Item{
		Key:         key,
		Data:        data,
		Label:       label,
		Description: "idkeeper session credential",
	})
}

// Get retrieves the data stored under key, or ErrNotFound.
// This method is thread-safe.
func (m *Manager) Get(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	it, err := m.ring.Get(key)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if len(it.Data) == 0 {
		return nil, ErrNotFound
	}
	return it.Data, nil
}

// Remove deletes the item under key. Removing a missing item is not an error.
// This method is thread-safe.
func (m *Manager) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ring.Remove(key); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return err
	}
	return nil
}
