package backend

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	apperrors "idkeeper/cli/internal/errors"
	"idkeeper/cli/internal/manifest"
	"idkeeper/cli/internal/version"
)

// HTTP implements API over REST endpoints.
// Concurrent account fetches for the same token share one request.
type HTTP struct {
	// baseURL is the base URL for all HTTP requests (e.g., "https://id.example.com")
	baseURL string
	// endpoints contains the URL paths for the provider endpoints
	endpoints manifest.HTTPEndpoints
	// base is the transport wrapped by the bearer-token transport
	base    http.RoundTripper
	timeout time.Duration
	log     zerolog.Logger
	fetches singleflight.Group
}

// Options tunes New.
type Options struct {
	// Timeout bounds a single request. Defaults to 10s.
	Timeout time.Duration
	// Transport is the underlying round tripper; http.DefaultTransport when nil.
	Transport http.RoundTripper
	Logger    zerolog.Logger
}

func newHTTP(baseURL string, endpoints manifest.HTTPEndpoints, opts Options) *HTTP {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Transport == nil {
		opts.Transport = http.DefaultTransport
	}
	return &HTTP{
		baseURL:   strings.TrimRight(baseURL, "/"),
		endpoints: endpoints,
		base:      opts.Transport,
		timeout:   opts.Timeout,
		log:       opts.Logger.With().Str("component", "backend").Logger(),
	}
}

// clientFor returns a client that authenticates every request with token.
func (h *HTTP) clientFor(token string) *http.Client {
	return &http.Client{
		Timeout: h.timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
			Base:   h.base,
		},
	}
}

// do sends an authenticated request and maps the status to an error kind.
// On success the caller owns the response body.
func (h *HTTP) do(ctx context.Context, method, path, token string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, body)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.Network, "build request", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)
	req.Header.Set("User-Agent", version.UserAgent())
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := h.clientFor(token).Do(req)
	if err != nil {
		h.log.Debug().Err(err).Str("request_id", requestID).Str("path", path).Msg("provider request failed")
		return nil, apperrors.Wrap(apperrors.Network, method+" "+path, err)
	}
	h.log.Debug().
		Str("request_id", requestID).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("provider response")

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	detail := fmt.Sprintf("%s %s: %d %s", method, path, resp.StatusCode, strings.TrimSpace(string(b)))

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, apperrors.New(apperrors.Unauthorized, detail)
	default:
		return nil, apperrors.New(apperrors.Network, detail)
	}
}
