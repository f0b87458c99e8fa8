// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package loginflow builds the provider login URL and turns the redirect the
// provider sends back into an authorization result for the session controller.
package loginflow

import (
	"net/url"
	"strings"

	"github.com/google/uuid"

	apperrors "idkeeper/cli/internal/errors"
)

// Request is one login attempt.
type Request struct {
	// URL is opened in a browser to start the login.
	URL *url.URL
	// RedirectURL is where the provider sends the result.
	RedirectURL *url.URL
	// State is echoed back by the provider and checked on the callback.
	State string

	email string
}

// Result is what the provider hands back after a successful login.
type Result struct {
	Token      string
	Identifier string
}

// NewRequest builds a login request against serviceURL+loginPath. email is
// optional and prefills the provider's form.
func NewRequest(serviceURL, loginPath, redirect, email string) (*Request, error) {
	base, err := url.Parse(strings.TrimRight(serviceURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, apperrors.New(apperrors.InvalidInput, "service URL must be absolute: "+serviceURL)
	}
	ru, err := url.Parse(redirect)
	if err != nil || ru.Scheme == "" {
		return nil, apperrors.New(apperrors.InvalidInput, "redirect URL must be absolute: "+redirect)
	}

	r := &Request{RedirectURL: ru, State: uuid.NewString(), email: strings.TrimSpace(email)}
	u := base.JoinPath(loginPath)
	q := u.Query()
	q.Set("redirect", ru.String())
	q.Set("state", r.State)
	if r.email != "" {
		q.Set("email", r.email)
	}
	u.RawQuery = q.Encode()
	r.URL = u
	return r, nil
}

// ShouldHandle reports whether raw is a redirect meant for this request.
func (r *Request) ShouldHandle(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Scheme, r.RedirectURL.Scheme) &&
		strings.EqualFold(u.Host, r.RedirectURL.Host) &&
		strings.TrimRight(u.Path, "/") == strings.TrimRight(r.RedirectURL.Path, "/")
}

// ParseCallback extracts the token and identifier from a provider redirect.
// Values may arrive in the query or the fragment. A provider error or a
// state mismatch is reported as Unauthorized.
func (r *Request) ParseCallback(raw string) (Result, error) {
	if !r.ShouldHandle(raw) {
		return Result{}, apperrors.New(apperrors.InvalidInput, "URL is not a login redirect for this request")
	}
	u, _ := url.Parse(strings.TrimSpace(raw))
	v := u.Query()
	if frag, err := url.ParseQuery(u.EscapedFragment()); err == nil {
		for k, vals := range frag {
			if v.Get(k) == "" && len(vals) > 0 {
				v.Set(k, vals[0])
			}
		}
	}

	if e := v.Get("error"); e != "" {
		msg := e
		if d := v.Get("error_description"); d != "" {
			msg += ": " + d
		}
		return Result{}, apperrors.New(apperrors.Unauthorized, "login rejected: "+msg)
	}
	if s := v.Get("state"); s != "" && s != r.State {
		return Result{}, apperrors.New(apperrors.Unauthorized, "login state mismatch")
	}

	res := Result{
		Token:      first(v, "session_token", "token", "access_token"),
		Identifier: first(v, "identifier", "email", "username"),
	}
	if res.Identifier == "" {
		res.Identifier = r.email
	}
	if res.Token == "" {
		return Result{}, apperrors.New(apperrors.InvalidInput, "redirect carries no token")
	}
	if res.Identifier == "" {
		return Result{}, apperrors.New(apperrors.InvalidInput, "redirect carries no identifier")
	}
	return res, nil
}

func first(v url.Values, keys ...string) string {
	for _, k := range keys {
		if s := strings.TrimSpace(v.Get(k)); s != "" {
			return s
		}
	}
	return ""
}
