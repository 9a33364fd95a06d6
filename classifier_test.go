package respcache_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stumble/respcache"
)

func TestExtractKey(t *testing.T) {
	t.Parallel()

	t.Run("GET array yields its key", func(t *testing.T) {
		t.Parallel()
		req := respcache.NewArray([]byte("GET"), []byte("user:1"))
		key, ok := respcache.ExtractKey(req)
		require.True(t, ok)
		require.Equal(t, []byte("user:1"), key)
	})

	t.Run("case-insensitive command name", func(t *testing.T) {
		t.Parallel()
		req := respcache.NewArray([]byte("get"), []byte("user:1"))
		_, ok := respcache.ExtractKey(req)
		require.True(t, ok)
	})

	t.Run("non-GET command has no key", func(t *testing.T) {
		t.Parallel()
		req := respcache.NewArray([]byte("SET"), []byte("user:1"), []byte("v"))
		_, ok := respcache.ExtractKey(req)
		require.False(t, ok)
	})

	t.Run("short array has no key", func(t *testing.T) {
		t.Parallel()
		req := respcache.NewArray([]byte("GET"))
		_, ok := respcache.ExtractKey(req)
		require.False(t, ok)
	})
}

func TestIsCacheable(t *testing.T) {
	t.Parallel()

	t.Run("GET with no ignored prefix is cacheable", func(t *testing.T) {
		t.Parallel()
		req := respcache.NewArray([]byte("GET"), []byte("user:1"))
		require.True(t, respcache.IsCacheable(req, nil))
	})

	t.Run("GET under an ignored prefix is not cacheable", func(t *testing.T) {
		t.Parallel()
		req := respcache.NewArray([]byte("GET"), []byte("session:abc"))
		ignore := [][]byte{[]byte("session:")}
		require.False(t, respcache.IsCacheable(req, ignore))
	})

	t.Run("prefix match is anchored at the start, not a substring search", func(t *testing.T) {
		t.Parallel()
		req := respcache.NewArray([]byte("GET"), []byte("user:session:1"))
		ignore := [][]byte{[]byte("session:")}
		require.True(t, respcache.IsCacheable(req, ignore))
	})

	t.Run("non-GET is never cacheable regardless of ignore list", func(t *testing.T) {
		t.Parallel()
		req := respcache.NewArray([]byte("DEL"), []byte("user:1"))
		require.False(t, respcache.IsCacheable(req, nil))
	})
}
