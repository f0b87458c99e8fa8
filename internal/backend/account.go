// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "idkeeper/cli/internal/errors"
	"idkeeper/cli/internal/session"
)

// Validate calls GET <validate> with Authorization header and returns the
// account the token belongs to.
func (h *HTTP) Validate(ctx context.Context, token string) (session.AccountInformation, error) {
	return h.getAccount(ctx, h.endpoints.Validate, token)
}

// FetchAccountInformation calls GET <account>. Calls for the same token that
// overlap share a single request.
func (h *HTTP) FetchAccountInformation(ctx context.Context, token string) (session.AccountInformation, error) {
	v, err, shared := h.fetches.Do(token, func() (any, error) {
		return h.getAccount(ctx, h.endpoints.Account, token)
	})
	if shared {
		h.log.Debug().Msg("account fetch coalesced")
	}
	if err != nil {
		return session.AccountInformation{}, err
	}
	return v.(session.AccountInformation), nil
}

// Revoke calls POST <revoke> with Authorization header.
func (h *HTTP) Revoke(ctx context.Context, token string) error {
	resp, err := h.do(ctx, http.MethodPost, h.endpoints.Revoke, token, nil)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

func (h *HTTP) getAccount(ctx context.Context, path, token string) (session.AccountInformation, error) {
	resp, err := h.do(ctx, http.MethodGet, path, token, nil)
	if err != nil {
		return session.AccountInformation{}, err
	}
	defer resp.Body.Close()

	// Be liberal in what we accept: decode into a map first
	var raw map[string]any
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return session.AccountInformation{}, apperrors.Wrap(apperrors.Malformed, "decode account", err)
	}
	info, err := parseAccount(raw)
	if err == nil {
		h.log.Debug().Str("account", describe(info)).Msg("account decoded")
	}
	return info, err
}

// wrappers are envelope keys some providers nest the account under.
var wrappers = []string{"user", "account", "profile", "data"}

// parseAccount extracts account information from a provider payload.
// It tries multiple common field names to be resilient to provider changes.
// Scalars it does not model end up in Raw.
func parseAccount(raw map[string]any) (session.AccountInformation, error) {
	for _, key := range wrappers {
		if inner, ok := raw[key].(map[string]any); ok {
			raw = inner
			break
		}
	}

	used := map[string]bool{}
	str := func(candidates ...string) string {
		for _, key := range candidates {
			v, ok := raw[key]
			if !ok {
				continue
			}
			used[key] = true
			if s := scalar(v); s != "" {
				return s
			}
		}
		return ""
	}

	info := session.AccountInformation{
		UID:         str("uid", "id", "user_id", "userId"),
		PublicUID:   str("publicUid", "public_uid", "publicId"),
		DisplayName: str("displayName", "display_name", "name", "username"),
		Email:       str("emailAddress", "email_address", "email"),
		AvatarURL:   str("avatarUrl", "avatar_url", "avatar", "picture"),
		FirstName:   str("firstName", "first_name", "given_name"),
		LastName:    str("lastName", "last_name", "family_name"),
		Gender:      parseGender(str("gender")),
	}
	if s := str("birthdate", "birth_date", "birthDate"); s != "" {
		if t, ok := parseDate(s); ok {
			info.Birthdate = &t
		}
	}
	if v, err := strconv.ParseBool(str("verified", "email_verified", "emailVerified")); err == nil {
		info.Verified = v
	}

	if info.UID == "" && info.PublicUID == "" && info.Email == "" {
		return session.AccountInformation{}, apperrors.New(apperrors.Malformed, "account payload carries no identity")
	}
	if info.DisplayName == "" {
		info.DisplayName = strings.TrimSpace(info.FirstName + " " + info.LastName)
	}
	if info.DisplayName == "" {
		info.DisplayName = info.Email
	}

	for k, v := range raw {
		if used[k] {
			continue
		}
		if s := scalar(v); s != "" {
			if info.Raw == nil {
				info.Raw = map[string]string{}
			}
			info.Raw[k] = s
		}
	}
	return info, nil
}

// scalar renders JSON strings, numbers and booleans; anything else is "".
func scalar(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return ""
}

func parseGender(s string) session.Gender {
	switch strings.ToLower(s) {
	case "female", "f":
		return session.GenderFemale
	case "male", "m":
		return session.GenderMale
	case "", "none", "unspecified":
		return session.GenderNone
	}
	return session.GenderOther
}

// parseDate accepts ISO dates, RFC 3339 timestamps and unix seconds or milliseconds.
func parseDate(s string) (time.Time, bool) {
	for _, layout := range []string{time.DateOnly, time.RFC3339, time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	if n > 1e11 {
		return time.UnixMilli(n).UTC(), true
	}
	return time.Unix(n, 0).UTC(), true
}

// describe summarises an account for debug logs without personal data.
func describe(info session.AccountInformation) string {
	return fmt.Sprintf("uid=%s verified=%t", info.UID, info.Verified)
}
