// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package manifest handles dynamic provider endpoint discovery.
package manifest

import (
	"net/url"
	"strings"
)

// WellKnownPath is where a provider publishes its manifest, relative to the service URL.
const WellKnownPath = "/.well-known/idkeeper.json"

// Manifest represents the endpoint configuration published by the provider.
type Manifest struct {
	Version int           `json:"version"`
	Issuer  string        `json:"issuer"`
	HTTP    HTTPEndpoints `json:"http"`
	GRPC    GRPCEndpoints `json:"grpc"`
}

// GRPCEndpoints contains gRPC service addresses.
type GRPCEndpoints struct {
	// Health is a URL such as "grpcs://id.example.com:443" used for connectivity watching.
	Health string `json:"health_origin"`
}

// HTTPEndpoints contains REST API endpoint paths.
type HTTPEndpoints struct {
	Login    string `json:"login"`            // e.g., "/login"
	Validate string `json:"session_validate"` // e.g., "/api/v1/session/validate"
	Account  string `json:"account"`          // e.g., "/api/v1/account"
	Revoke   string `json:"session_revoke"`   // e.g., "/api/v1/session/logout"
	Health   string `json:"health"`           // e.g., "/healthz"
}

// WithFallback fills every empty path from fb.
func (e HTTPEndpoints) WithFallback(fb HTTPEndpoints) HTTPEndpoints {
	pick := func(v, d string) string {
		if strings.TrimSpace(v) == "" {
			return d
		}
		return v
	}
	return HTTPEndpoints{
		Login:    pick(e.Login, fb.Login),
		Validate: pick(e.Validate, fb.Validate),
		Account:  pick(e.Account, fb.Account),
		Revoke:   pick(e.Revoke, fb.Revoke),
		Health:   pick(e.Health, fb.Health),
	}
}

// GRPCAddress extracts the host:port from the health origin.
func (m *Manifest) GRPCAddress() string {
	if m.GRPC.Health == "" {
		return ""
	}
	u, err := url.Parse(m.GRPC.Health)
	if err != nil {
		return ""
	}
	return u.Host
}

// Plaintext reports whether the gRPC origin asks for an unencrypted channel.
func (m *Manifest) Plaintext() bool {
	u, err := url.Parse(m.GRPC.Health)
	return err == nil && (u.Scheme == "grpc" || u.Scheme == "http")
}
