package respcache

import "time"

// Config holds the recognized cache options from §3. Loading it from flags,
// environment, or a config file is out of scope for this package (see
// cmd/respcached for a cobra/viper-backed loader); Config itself is just
// the recognized-option record the engine and client consume.
type Config struct {
	// CacheCluster names the upstream cluster that hosts cache nodes.
	// Host selection and routing are out of scope here; this field is
	// carried on the record only, and nothing in this package reads it.
	CacheCluster string

	// CacheOpTimeout is the per-request timeout for cache-internal
	// commands (the cache side of the combined connect-or-op timer).
	CacheOpTimeout time.Duration

	// CacheTTL is the PX value (milliseconds) used when populating an
	// entry via SET.
	CacheTTL time.Duration

	// CacheEnableBcastMode, if true, enables Redis broadcast tracking
	// mode (CLIENT TRACKING ... BCAST).
	CacheEnableBcastMode bool

	// CacheIgnoreKeyPrefixes is consulted by the request classifier (C1).
	CacheIgnoreKeyPrefixes [][]byte

	// CacheShards is the number of independent cache connections.
	CacheShards int

	// CacheDisableTracking, if true, suppresses CLIENT TRACKING on
	// Initialize.
	CacheDisableTracking bool

	// CacheDisableFlushing, if true, suppresses the on-reconnect
	// FLUSHALL.
	CacheDisableFlushing bool

	// MaxBufferSizeBeforeFlush and BufferFlushTimeout govern the C3
	// write-coalescing policy (§4.3). They are not themselves
	// "cache-*" options in §3 (they predate the cache feature in the
	// source connection pool config) but are required by the pipelined
	// client regardless of caching, so they live on the same Config.
	MaxBufferSizeBeforeFlush int
	BufferFlushTimeout       time.Duration
}

// DefaultConfig returns a Config with the same defaults the source
// connection pool applies to its cache-* options.
func DefaultConfig() Config {
	return Config{
		CacheOpTimeout:           500 * time.Millisecond,
		CacheTTL:                 60 * time.Second,
		CacheShards:              1,
		MaxBufferSizeBeforeFlush: 16 * 1024,
		BufferFlushTimeout:       3 * time.Millisecond,
	}
}
