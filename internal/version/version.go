// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package version exposes build information.
package version

import "runtime"

var (
	// Version holds the CLI version information.
	// This value is typically set at build time using
	// -ldflags "-X idkeeper/cli/internal/version.Version=1.2.3".
	Version = "0.0.0-dev"
)

// UserAgent is sent with every provider request.
func UserAgent() string {
	return "idkeeper-cli/" + Version + " (" + runtime.GOOS + "/" + runtime.GOARCH + ")"
}
