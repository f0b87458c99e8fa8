package manifest

import (
	"context"
	"fmt"
	"net/http"
)

// Get returns the manifest for serviceURL, using the RAM cache if available.
// If not cached, it fetches from the provider and caches the result.
func Get(ctx context.Context, client *http.Client, serviceURL string) (*Manifest, error) {
	if cached := GetCached(serviceURL); cached != nil {
		return cached, nil
	}

	m, err := fetchFromServer(ctx, client, serviceURL)
	if err != nil {
		return nil, fmt.Errorf("discover endpoints at %s: %w", serviceURL, err)
	}

	SetCached(serviceURL, m)
	return m, nil
}

// Resolve returns the provider's endpoints with every missing path taken from
// fallback. When discovery fails the fallback is returned together with the
// error, so callers can warn and carry on.
func Resolve(ctx context.Context, client *http.Client, serviceURL string, fallback HTTPEndpoints) (HTTPEndpoints, *Manifest, error) {
	m, err := Get(ctx, client, serviceURL)
	if err != nil {
		return fallback, nil, err
	}
	return m.HTTP.WithFallback(fallback), m, nil
}
