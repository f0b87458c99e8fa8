// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package backend

import (
	"idkeeper/cli/internal/manifest"
)

// New creates a backend API implementation with the given endpoints.
// Returns HTTP client (real provider).
func New(baseURL string, endpoints manifest.HTTPEndpoints, opts Options) API {
	return newHTTP(baseURL, endpoints, opts)
}
