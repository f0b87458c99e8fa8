// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package session owns the authenticated session lifecycle for idkeeper.
// It handles login completion, token validation, revalidation when the
// network comes back, logout and account information refresh, and it
// broadcasts every lifecycle transition to observers.
//
// The Controller is the single owner of the live State and the only writer of
// the credential store. Network calls never block a caller: they run on their
// own goroutines and deliver epoch-tagged completions back into the
// controller's serialized handler, where stale results are dropped.
package session

import (
	"maps"
	"strings"
	"time"

	apperrors "idkeeper/cli/internal/errors"
)

// Session is the authenticated credential for a logged-in user.
// Sessions are immutable values; renewal replaces them wholesale.
type Session struct {
	Identifier string            `json:"identifier"`
	Token      string            `json:"token"`
	IssuedAt   time.Time         `json:"issued_at"`
	Raw        map[string]string `json:"raw_payload,omitempty"`
	// ExpiresAt is taken from a JWT "exp" claim when the token carries one.
	ExpiresAt time.Time `json:"-"`
}

// New constructs a Session, refusing empty identifiers or tokens.
// When the token is a JWT its claims enrich IssuedAt, ExpiresAt and Raw.
func New(identifier, token string, issuedAt time.Time, raw map[string]string) (Session, error) {
	identifier = strings.TrimSpace(identifier)
	token = strings.TrimSpace(token)
	if identifier == "" {
		return Session{}, apperrors.New(apperrors.InvalidInput, "session identifier is required")
	}
	if token == "" {
		return Session{}, apperrors.New(apperrors.InvalidInput, "session token is required")
	}

	s := Session{
		Identifier: identifier,
		Token:      token,
		IssuedAt:   issuedAt.UTC(),
		Raw:        maps.Clone(raw),
	}
	applyClaims(&s)
	return s, nil
}

// Expired reports whether a known expiry lies before now.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Gender as reported by the provider's account model.
type Gender string

const (
	GenderNone   Gender = ""
	GenderFemale Gender = "female"
	GenderMale   Gender = "male"
	GenderOther  Gender = "other"
)

// AccountInformation is display data about the logged-in account.
// It is derived, cached next to the Session and dropped whenever it changes.
type AccountInformation struct {
	UID         string            `json:"uid,omitempty"`
	PublicUID   string            `json:"public_uid,omitempty"`
	DisplayName string            `json:"display_name"`
	Email       string            `json:"email,omitempty"`
	AvatarURL   string            `json:"avatar_url,omitempty"`
	FirstName   string            `json:"first_name,omitempty"`
	LastName    string            `json:"last_name,omitempty"`
	Gender      Gender            `json:"gender,omitempty"`
	Birthdate   *time.Time        `json:"birthdate,omitempty"`
	Verified    bool              `json:"verified"`
	Raw         map[string]string `json:"raw,omitempty"`
}

// Status enumerates controller states.
type Status int

const (
	LoggedOut Status = iota
	LoggingIn
	LoggedIn
	Validating
	Renewing
)

func (s Status) String() string {
	switch s {
	case LoggedOut:
		return "loggedOut"
	case LoggingIn:
		return "loggingIn"
	case LoggedIn:
		return "loggedIn"
	case Validating:
		return "validating"
	case Renewing:
		return "renewing"
	}
	return "unknown"
}

// State is a snapshot of the controller's live state. Session is nil while
// LoggedOut or LoggingIn; while Renewing it is the session being replaced.
// Info is nil until the provider returned account information for Session.
type State struct {
	Status  Status
	Session *Session
	Info    *AccountInformation
	// Degraded is set while the session has not been validated since it was accepted.
	Degraded bool
}

// LoggedIn reports whether a usable session exists, including while it is
// being validated or renewed.
func (s State) LoggedIn() bool {
	return s.Status == LoggedIn || s.Status == Validating || s.Status == Renewing
}
