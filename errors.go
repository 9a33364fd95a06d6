package respcache

import "errors"

// Sentinel errors surfaced by the pipelined client and cache engine.
var (
	// ErrConnClosed is returned, joined with the dial error, by
	// DialAndInitialize when the connection cannot be opened. Requests on
	// a Closed client are failed through ReplyCallbacks.OnFailure, which
	// carries no error value.
	ErrConnClosed = errors.New("respcache: connection closed")

	// ErrOpTimeout is logged when the combined connect-or-op timer fires.
	// The timeout is fatal for the connection: the client tears down and
	// the cache engine (if this is the cache connection) drops its queue.
	ErrOpTimeout = errors.New("respcache: operation timed out")

	// ErrProtocol signals a decoder-level protocol violation. Fatal for
	// the connection.
	ErrProtocol = errors.New("respcache: protocol error")

	// errQueueUnderflow signals a reply arriving with no matching
	// PendingCacheRequest queued. Per §4.4/§7 this is a protocol-invariant
	// failure, not a recoverable error: it aborts the connection that
	// produced it rather than propagating to a caller.
	errQueueUnderflow = errors.New("respcache: pending cache request queue underflow")
)
