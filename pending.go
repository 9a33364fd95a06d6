package respcache

import (
	"time"

	"go.opentelemetry.io/otel/trace"
)

// CacheOp names the kind of an in-flight cache-internal command, per §3's
// PendingCacheRequest.
type CacheOp int

const (
	OpGet CacheOp = iota
	OpSet
	OpExpire
	OpFlush
)

func (o CacheOp) String() string {
	switch o {
	case OpGet:
		return "get"
	case OpSet:
		return "set"
	case OpExpire:
		return "expire"
	case OpFlush:
		return "flush"
	default:
		return "unknown"
	}
}

// pendingCacheRequest is the cache engine's own FIFO bookkeeping entry
// (§3). Per §3 it carries only the operation kind; unlike PendingRequest,
// it owns no callback, because every reply it corresponds to is routed
// back to the engine itself (the engine is the Client's ReplyCallbacks
// for every command it issues). The span field is purely a Go-port
// addition to close the otel span opened for this round-trip (tracing.go)
// when its reply or failure arrives — it carries no protocol meaning.
type pendingCacheRequest struct {
	op    CacheOp
	span  trace.Span
	start time.Time
}

// ReplyCallbacks receives the outcome of a PendingRequest once its reply
// (or failure) arrives. Implementations must not block.
type ReplyCallbacks interface {
	// OnResponse is invoked with the decoded reply frame matched to this
	// request, in write order, excluding canceled requests.
	OnResponse(value Value)

	// OnFailure is invoked instead of OnResponse when the connection
	// closes (or the op timeout fires) before a reply arrives.
	OnFailure()
}

// Handle identifies an in-flight request so a caller can Cancel it.
type Handle struct {
	req *pendingRequest
}

// Cancel marks the request canceled: its reply, when it arrives, is
// discarded without invoking OnResponse/OnFailure (§5, "Cancellation and
// timeouts"). Canceling twice, or a zero Handle, is a no-op.
func (h Handle) Cancel() {
	if h.req != nil {
		h.req.canceled = true
	}
}

// pendingRequest is the Client-owned queue entry (§3's "PendingRequest
// (user)"). It intentionally holds no back-reference to the Client itself
// (§9 "Cyclic references") — only data and the callback handle.
type pendingRequest struct {
	callbacks       ReplyCallbacks
	commandStatName string
	canceled        bool
	requestStarted  time.Time
	original        Value

	// cacheInternal marks requests written by the cache engine itself
	// (via Client.makeCacheInternalRequest with the engine as callbacks).
	// The dispatcher pops these off the same queue in order (§4.3: one
	// FIFO, not two) and does not read this flag.
	cacheInternal bool
}
