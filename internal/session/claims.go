// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package session

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// applyClaims reads a JWT-shaped token without verifying it. The claims are
// only hints for staleness and display; the provider stays the authority.
func applyClaims(s *Session) {
	if strings.Count(s.Token, ".") != 2 {
		return
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(s.Token, claims); err != nil {
		return
	}

	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		s.ExpiresAt = exp.UTC()
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil && s.IssuedAt.IsZero() {
		s.IssuedAt = iat.UTC()
	}

	put := func(key, value string) {
		if value == "" {
			return
		}
		if s.Raw == nil {
			s.Raw = map[string]string{}
		}
		if _, exists := s.Raw[key]; !exists {
			s.Raw[key] = value
		}
	}
	if sub, err := claims.GetSubject(); err == nil {
		put("jwt.sub", sub)
	}
	if iss, err := claims.GetIssuer(); err == nil {
		put("jwt.iss", iss)
	}
	if !s.ExpiresAt.IsZero() {
		put("jwt.exp", fmt.Sprintf("%d", s.ExpiresAt.Unix()))
	}
}
