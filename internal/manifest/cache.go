// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package manifest

import (
	"strings"
	"sync"
)

var (
	// Process-wide cache keyed by service URL.
	// Lives only in process memory and is cleared when the CLI exits.
	globalCache     = map[string]*Manifest{}
	globalCacheLock sync.RWMutex
)

func cacheKey(serviceURL string) string {
	return strings.TrimRight(strings.ToLower(serviceURL), "/")
}

// GetCached returns the cached manifest for serviceURL, or nil if not cached.
func GetCached(serviceURL string) *Manifest {
	globalCacheLock.RLock()
	defer globalCacheLock.RUnlock()
	return globalCache[cacheKey(serviceURL)]
}

// SetCached stores the manifest for serviceURL in RAM.
func SetCached(serviceURL string, m *Manifest) {
	globalCacheLock.Lock()
	defer globalCacheLock.Unlock()
	globalCache[cacheKey(serviceURL)] = m
}

// ClearCache removes every cached manifest (primarily for testing).
func ClearCache() {
	globalCacheLock.Lock()
	defer globalCacheLock.Unlock()
	globalCache = map[string]*Manifest{}
}
