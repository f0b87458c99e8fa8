// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"idkeeper/cli/internal/version"
)

// maxManifestSize bounds the document we are willing to read.
const maxManifestSize = 1 << 20

// fetchFromServer retrieves the manifest published under serviceURL.
func fetchFromServer(ctx context.Context, client *http.Client, serviceURL string) (*Manifest, error) {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}

	u := strings.TrimRight(serviceURL, "/") + WellKnownPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch manifest: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxManifestSize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var manifest Manifest
	if err := json.Unmarshal(body, &manifest); err != nil {
		return nil, fmt.Errorf("parse manifest JSON: %w", err)
	}

	if manifest.Version == 0 {
		return nil, fmt.Errorf("invalid manifest: missing version field")
	}
	if manifest.HTTP.Validate == "" {
		return nil, fmt.Errorf("invalid manifest: missing http.session_validate field")
	}
	return &manifest, nil
}
