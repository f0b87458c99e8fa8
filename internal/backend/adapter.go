// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package backend provides interfaces and implementations for communicating with the identity provider.
// It defines the API contract for token validation, account information and revocation.
// The package includes both interface definitions and HTTP-based implementations.
//
// Every error returned carries an internal/errors Kind: Unauthorized when the
// provider rejected the token, Network for transport failures and unexpected
// statuses, Malformed when a successful response could not be interpreted.
package backend

import (
	"context"

	"idkeeper/cli/internal/session"
)

// API defines provider operations the session controller depends on.
// Implementations may call real HTTP endpoints or provide mocks for tests.
type API interface {
	// Validate checks the token and returns the account it belongs to.
	Validate(ctx context.Context, token string) (session.AccountInformation, error)
	// FetchAccountInformation retrieves the current account details.
	FetchAccountInformation(ctx context.Context, token string) (session.AccountInformation, error)
	// Revoke invalidates the token on the provider.
	Revoke(ctx context.Context, token string) error
}

var _ session.AccountService = API(nil)
