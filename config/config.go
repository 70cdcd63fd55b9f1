// Package config holds the process-wide qpager configuration. The
// only tuning knob is the per-handle cache capacity in pages, read
// from the environment once at first use.
package config

import (
	"os"
	"strconv"
	"sync"
)

const (
	// EnvCachePages names the environment variable that sets the
	// per-handle cache capacity in pages.
	EnvCachePages = "QPAGER_CACHE_PAGES"

	// DefaultCachePages is used when the variable is absent or not a
	// sane positive integer.
	DefaultCachePages = 256

	// maxCachePages is the sanity ceiling; values at or above it are
	// treated as misconfiguration and ignored.
	maxCachePages = 10_000_000
)

var (
	cachePagesOnce sync.Once
	cachePages     int
)

// CachePages returns the configured per-handle cache capacity. The
// environment is consulted once per process; later changes to it have
// no effect.
func CachePages() int {
	cachePagesOnce.Do(func() {
		cachePages = parseCachePages(os.Getenv(EnvCachePages))
	})
	return cachePages
}

func parseCachePages(v string) int {
	if v == "" {
		return DefaultCachePages
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 || n >= maxCachePages {
		return DefaultCachePages
	}
	return n
}
