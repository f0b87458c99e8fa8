// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package httperrors explains identity provider failures to a human.
package httperrors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"
	"syscall"

	"github.com/pterm/pterm"

	apperrors "idkeeper/cli/internal/errors"
)

// Class is a coarse category of failure used to pick advice.
type Class int

const (
	Generic Class = iota
	Timeout
	DNS
	Refused
	TLS
	Server
	Rejected
	Storage
)

// Classify inspects err and returns the best matching Class.
func Classify(err error) Class {
	switch {
	case err == nil:
		return Generic
	case apperrors.Is(err, apperrors.Unauthorized):
		return Rejected
	case apperrors.Is(err, apperrors.Unavailable):
		return Storage
	case isTimeout(err):
		return Timeout
	case isDNS(err):
		return DNS
	case isRefused(err):
		return Refused
	case isTLS(err):
		return TLS
	case isServer(err.Error()):
		return Server
	}
	return Generic
}

// Explain prints advice for err and returns it wrapped with action.
// host names the provider in the advice text.
func Explain(err error, action, host string) error {
	if err == nil {
		return nil
	}
	for i, line := range Advice(Classify(err), action, host) {
		if i == 0 {
			pterm.Error.Println(line)
			continue
		}
		pterm.Println(line)
	}
	pterm.Debug.Printf("Technical details: %s\n", short(err.Error()))
	return fmt.Errorf("%s: %w", action, err)
}

// Advice returns the headline followed by troubleshooting lines for c.
func Advice(c Class, action, host string) []string {
	switch c {
	case Timeout:
		return []string{
			"Connection timeout while " + action,
			host + " took too long to respond. Check your connection or try again in a few moments.",
		}
	case DNS:
		return []string{
			"Cannot resolve " + host + " while " + action,
			"  • Check that your internet connection is working",
			"  • Check DNS settings or corporate DNS filtering",
		}
	case Refused:
		return []string{
			"Connection refused while " + action,
			host + " is not accepting connections. Check service_url in your config.",
		}
	case TLS:
		return []string{
			"Secure connection to " + host + " failed while " + action,
			"  • Check your system date and time",
			"  • Check proxy settings that intercept HTTPS",
		}
	case Server:
		return []string{
			"The identity provider returned a server error while " + action,
			"This is not a problem with your setup. Please try again later.",
		}
	case Rejected:
		return []string{
			"The identity provider rejected the session while " + action,
			"Run 'idkeeper login' to sign in again.",
		}
	case Storage:
		return []string{
			"The system keychain is unavailable while " + action,
			"Unlock your keychain or set keyring.backends to \"file\" in the config.",
		}
	}
	return []string{
		"Cannot reach " + host + " while " + action,
		"Check your internet connection and firewall settings.",
	}
}

// HostOf returns the host part of rawURL, or "the identity provider".
func HostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "the identity provider"
	}
	return u.Host
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded")
}

func isDNS(err error) bool {
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

func isRefused(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "connection refused")
}

func isTLS(err error) bool {
	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "tls") ||
		strings.Contains(lower, "x509") ||
		strings.Contains(lower, "certificate")
}

var serverStatusRe = regexp.MustCompile(`: 50[0-4]\b`)

func isServer(msg string) bool {
	if serverStatusRe.MatchString(msg) {
		return true
	}
	lower := strings.ToLower(msg)
	for _, s := range []string{"internal server error", "bad gateway", "service unavailable"} {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

func short(s string) string {
	if len(s) > 160 {
		return s[:160] + "..."
	}
	return s
}
