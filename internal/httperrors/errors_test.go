package httperrors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "idkeeper/cli/internal/errors"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{name: "deadline", err: fmt.Errorf("validate: %w", context.DeadlineExceeded), want: Timeout},
		{name: "dns", err: &net.DNSError{Err: "no such host", Name: "id.example.com"}, want: DNS},
		{name: "refused", err: &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}, want: Refused},
		{name: "tls", err: errors.New("x509: certificate signed by unknown authority"), want: TLS},
		{name: "server status", err: apperrors.New(apperrors.Network, "GET /api/v1/account: 503 upstream down"), want: Server},
		{name: "unauthorized", err: apperrors.New(apperrors.Unauthorized, "GET /validate: 401"), want: Rejected},
		{name: "keychain", err: apperrors.New(apperrors.Unavailable, "keyring locked"), want: Storage},
		{name: "other", err: errors.New("unexpected EOF"), want: Generic},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestAdviceNamesHostAndAction(t *testing.T) {
	for _, c := range []Class{Generic, Timeout, DNS, Refused, TLS} {
		lines := Advice(c, "validating the session", "id.example.com")
		joined := strings.Join(lines, "\n")
		assert.Contains(t, lines[0], "validating the session")
		assert.Contains(t, joined, "id.example.com")
	}
}

func TestExplainWraps(t *testing.T) {
	assert.NoError(t, Explain(nil, "logging in", "h"))

	cause := apperrors.New(apperrors.Network, "reset")
	err := Explain(cause, "logging in", "id.example.com")
	assert.ErrorIs(t, err, cause)
	assert.True(t, strings.HasPrefix(err.Error(), "logging in: "))
}

func TestHostOf(t *testing.T) {
	assert.Equal(t, "id.example.com:8443", HostOf("https://id.example.com:8443/path"))
	assert.Equal(t, "the identity provider", HostOf("::bad"))
}
