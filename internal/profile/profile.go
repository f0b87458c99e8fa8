// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package profile keeps a non-secret copy of the last known account details
// in the XDG state directory so `whoami` can answer without the network or
// the keychain. The session token is never written here.
package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"idkeeper/cli/internal/eventbus"
	"idkeeper/cli/internal/session"
	"idkeeper/cli/internal/xdg"
)

const fileName = "profile.json"

// Profile is the cached view of the signed-in account.
type Profile struct {
	Identifier  string                      `json:"identifier"`
	Info        *session.AccountInformation `json:"info,omitempty"`
	ValidatedAt time.Time                   `json:"validated_at,omitzero"`
	UpdatedAt   time.Time                   `json:"updated_at"`
}

// Cache reads and writes the profile file.
type Cache struct {
	path string
}

// NewCache stores the profile under dir.
func NewCache(dir string) *Cache {
	return &Cache{path: filepath.Join(dir, fileName)}
}

// Default returns the cache in the XDG state directory.
func Default() (*Cache, error) {
	dir, err := xdg.StateDir()
	if err != nil {
		return nil, err
	}
	return NewCache(dir), nil
}

// Path returns the file backing the cache.
func (c *Cache) Path() string { return c.path }

// Load returns the cached profile. ok is false when nothing is cached.
func (c *Cache) Load() (p Profile, ok bool, err error) {
	b, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return Profile{}, false, nil
	}
	if err != nil {
		return Profile{}, false, err
	}
	if err := json.Unmarshal(b, &p); err != nil {
		return Profile{}, false, fmt.Errorf("parse %s: %w", c.path, err)
	}
	return p, p.Identifier != "", nil
}

// Save replaces the cached profile. The file is written beside the target
// and renamed into place.
func (c *Cache) Save(p Profile) error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(c.path), fileName+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), c.path)
}

// Clear removes the cached profile. Clearing an empty cache is not an error.
func (c *Cache) Clear() error {
	if err := os.Remove(c.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Apply updates the cache from a session event.
func (c *Cache) Apply(ev session.Event) error {
	switch ev.Kind {
	case session.SessionOpened, session.SessionInfoRefreshed:
		p := Profile{Identifier: ev.Identifier, Info: ev.Info, UpdatedAt: ev.At}
		if ev.Info != nil {
			p.ValidatedAt = ev.At
		} else if prev, ok, _ := c.Load(); ok && prev.Identifier == ev.Identifier {
			p.Info, p.ValidatedAt = prev.Info, prev.ValidatedAt
		}
		return c.Save(p)
	case session.SessionClosed:
		return c.Clear()
	}
	return nil
}

// Follow applies every event from sub until ctx ends or the subscription
// closes. It returns the first write error.
func (c *Cache) Follow(ctx context.Context, sub *eventbus.Subscription[session.Event]) error {
	defer sub.Unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.C():
			if !ok {
				return nil
			}
			if err := c.Apply(ev); err != nil {
				return fmt.Errorf("update profile cache: %w", err)
			}
		}
	}
}
