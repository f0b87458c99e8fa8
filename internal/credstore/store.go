// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package credstore persists the current session in the OS secret store.
//
// The whole session is serialized into a single keychain item, so a Save is
// one backend write and a Load either returns a complete session or nothing.
// Items are keyed by account scope inside the keyring service namespace.
package credstore

import (
	"encoding/json"
	"errors"
	"time"

	apperrors "idkeeper/cli/internal/errors"
	"idkeeper/cli/internal/keychain"
	"idkeeper/cli/internal/session"
)

// Secrets is the subset of keychain.Manager the store needs.
type Secrets interface {
	Set(key string, data []byte, label string) error
	Get(key string) ([]byte, error)
	Remove(key string) error
}

// Store implements session.CredentialStore over a keychain.
type Store struct {
	secrets Secrets
	key     string
}

// record is the persisted layout. Unknown keys in RawPayload are kept as is.
type record struct {
	Identifier string            `json:"identifier"`
	Token      string            `json:"token"`
	IssuedAt   time.Time         `json:"issued_at"`
	RawPayload map[string]string `json:"raw_payload,omitempty"`
}

// New returns a store keeping the session of accessGroup in secrets.
func New(secrets Secrets, accessGroup string) *Store {
	return &Store{secrets: secrets, key: "session:" + accessGroup}
}

// Key returns the keychain item key used by the store.
func (s *Store) Key() string { return s.key }

// Save replaces the stored session.
func (s *Store) Save(sess session.Session) error {
	b, err := json.Marshal(record{
		Identifier: sess.Identifier,
		Token:      sess.Token,
		IssuedAt:   sess.IssuedAt,
		RawPayload: sess.Raw,
	})
	if err != nil {
		return apperrors.Wrap(apperrors.Unavailable, "encode session", err)
	}
	if err := s.secrets.Set(s.key, b, "idkeeper session ("+sess.Identifier+")"); err != nil {
		return apperrors.Wrap(apperrors.Unavailable, "write session to keychain", err)
	}
	return nil
}

// Load returns the stored session, or nil when nothing is stored.
// A record that cannot be decoded is reported as Unavailable.
func (s *Store) Load() (*session.Session, error) {
	data, err := s.secrets.Get(s.key)
	if err != nil {
		if errors.Is(err, keychain.ErrNotFound) {
			return nil, nil
		}
		return nil, apperrors.Wrap(apperrors.Unavailable, "read session from keychain", err)
	}

	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, apperrors.Wrap(apperrors.Unavailable, "stored session is corrupted", err)
	}
	sess, err := session.New(r.Identifier, r.Token, r.IssuedAt, r.RawPayload)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.Unavailable, "stored session is incomplete", err)
	}
	return &sess, nil
}

// Clear removes the stored session. Clearing an empty store succeeds.
func (s *Store) Clear() error {
	if err := s.secrets.Remove(s.key); err != nil && !errors.Is(err, keychain.ErrNotFound) {
		return apperrors.Wrap(apperrors.Unavailable, "remove session from keychain", err)
	}
	return nil
}
