// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package errors defines typed errors with categories used across idkeeper.
// Every failure that crosses a package boundary carries a machine-readable Kind
// so the session controller can decide whether it is destructive (the provider
// rejected the token) or transient (the network or storage misbehaved).
//
// The package supports wrapping underlying errors while maintaining error kind information,
// making it easier to handle different types of failures appropriately.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind is a machine-readable error category.
type Kind string

const (
	// Unauthorized indicates the provider rejected the token (revoked or expired).
	Unauthorized Kind = "unauthorized"
	// Network indicates a transport failure or an unexpected provider status.
	Network Kind = "network"
	// Malformed indicates a provider response that could not be interpreted.
	Malformed Kind = "malformed"
	// Unavailable indicates the secure credential storage could not be used.
	Unavailable Kind = "unavailable"
	// InvalidInput indicates a caller supplied incomplete or invalid values.
	InvalidInput Kind = "invalid_input"
)

// E wraps an error with kind and human-friendly message.
type E struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *E) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the underlying cause to errors.Is and errors.As.
func (e *E) Unwrap() error { return e.Err }

func Wrap(kind Kind, msg string, err error) *E { return &E{Kind: kind, Message: msg, Err: err} }
func New(kind Kind, msg string) *E             { return &E{Kind: kind, Message: msg} }

// KindOf returns the kind of the outermost *E in err's chain, or "" when none.
func KindOf(err error) Kind {
	var e *E
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	for err != nil {
		var e *E
		if !stderrors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}

// Transient reports whether err is worth retrying later: network failures and
// malformed provider responses both qualify.
func Transient(err error) bool {
	return Is(err, Network) || Is(err, Malformed)
}
