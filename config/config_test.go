package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseCachePages(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"", DefaultCachePages},
		{"64", 64},
		{"1", 1},
		{"9999999", 9999999},
		{"10000000", DefaultCachePages}, // at the ceiling
		{"99999999", DefaultCachePages},
		{"0", DefaultCachePages},
		{"-5", DefaultCachePages},
		{"abc", DefaultCachePages},
		{"4.5", DefaultCachePages},
		{" 64", DefaultCachePages},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, parseCachePages(tc.in), "input %q", tc.in)
	}
}

func TestCachePagesStable(t *testing.T) {
	// Whatever the environment said at first use keeps being
	// returned afterwards.
	first := CachePages()
	t.Setenv(EnvCachePages, "12345")
	require.Equal(t, first, CachePages())
}
