package respcache

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// EngineCallbacks is the host-provided callback surface (§6): the proxy's
// per-connection request handler that owns the original user command.
type EngineCallbacks interface {
	// OnCacheResponse delivers the outcome of a cache GET. A nil value
	// means miss; the host then forwards the original request to origin.
	OnCacheResponse(value *Value)

	// OnCacheClose notifies the host that the cache connection dropped.
	// The host typically fails any outstanding user work that was
	// counting on a cached answer.
	OnCacheClose()
}

// Engine is the cache engine (C4): it decides cacheability, issues GET
// against the cache node, populates entries from origin responses, and
// converts invalidation pushes into UNLINK/FLUSHALL. It implements
// ReplyCallbacks (for commands it issues on Client) and PushHandler (for
// invalidate pushes Client's dispatcher routes to it).
type Engine struct {
	client    *Client
	cfg       Config
	metrics   *MetricSet
	callbacks EngineCallbacks

	mu    sync.Mutex
	queue []*pendingCacheRequest
}

// NewEngine builds a cache engine bound to client. callbacks receives
// cache-response and cache-close notifications.
func NewEngine(client *Client, cfg Config, metrics *MetricSet, callbacks EngineCallbacks) *Engine {
	e := &Engine{client: client, cfg: cfg, metrics: metrics, callbacks: callbacks}
	client.AddConnectionCallbacks(e)
	client.SetPushHandler(e)
	return e
}

// MakeCacheRequest implements §4.4: if req is cacheable, a
// PendingCacheRequest{GET} is enqueued and req is written on the client;
// otherwise neither happens and the host should forward req to origin.
func (e *Engine) MakeCacheRequest(req Value) bool {
	if !IsCacheable(req, e.cfg.CacheIgnoreKeyPrefixes) {
		return false
	}

	_, span := startCacheSpan(context.Background(), OpGet, 1)
	e.enqueue(&pendingCacheRequest{op: OpGet, span: span, start: time.Now()})
	e.client.makeCacheInternalRequest(req, e)
	return true
}

// Set implements §4.4: if originResp is a BulkString and req's key is
// extractable and not ignored, a SET is issued against the cache node
// with the configured PX ttl. Any other response kind is left uncached.
func (e *Engine) Set(req Value, originResp Value) {
	if originResp.Type != BulkString || originResp.Str == nil {
		return
	}
	key, ok := ExtractKey(req)
	if !ok {
		return
	}
	if ignoreMatch(key, e.cfg.CacheIgnoreKeyPrefixes) {
		return
	}

	ttlMillis := e.cfg.CacheTTL.Milliseconds()
	setReq := BuildSet(key, originResp.Str, ttlMillis)

	_, span := startCacheSpan(context.Background(), OpSet, 1)
	e.enqueue(&pendingCacheRequest{op: OpSet, span: span, start: time.Now()})
	e.client.makeCacheInternalRequest(setReq, e)
}

// Expire implements §4.4: keys is the payload of a RESP3 "invalidate"
// push. A Null payload means the server flushed; otherwise it must be an
// Array of keys to UNLINK. An empty keys array is a no-op per §4.5's
// defensive handling of empty push payloads.
func (e *Engine) Expire(keys Value) {
	if keys.IsNull() {
		e.clearCache(true)
		return
	}
	if keys.Type != Array {
		log.Warn().Msg("respcache: expire called with non-array, non-null payload; ignoring")
		return
	}
	if len(keys.Elems) == 0 {
		return
	}

	unlinkReq := BuildUnlink(keys.Elems)
	_, span := startCacheSpan(context.Background(), OpExpire, len(keys.Elems))
	e.enqueue(&pendingCacheRequest{op: OpExpire, span: span, start: time.Now()})
	e.client.makeCacheInternalRequest(unlinkReq, e)
}

// ClearCache implements §4.4: an unconditional FLUSHALL, synchronous or
// not, with a FLUSH queue entry.
func (e *Engine) ClearCache(synchronous bool) {
	e.clearCache(synchronous)
}

func (e *Engine) clearCache(synchronous bool) {
	req := BuildFlushAll(synchronous)
	_, span := startCacheSpan(context.Background(), OpFlush, 0)
	e.enqueue(&pendingCacheRequest{op: OpFlush, span: span, start: time.Now()})
	e.client.makeCacheInternalRequest(req, e)
}

// Initialize implements §4.4: delegates connection setup to the client,
// then — unless disabled — issues a synchronous FLUSHALL so the cache
// starts empty rather than risk serving entries invalidated while the
// connection was down.
func (e *Engine) Initialize(username, password string, clearOnInit bool) {
	e.client.Initialize(username, password)
	if clearOnInit && !e.cfg.CacheDisableFlushing {
		e.clearCache(true)
	}
}

func (e *Engine) enqueue(pr *pendingCacheRequest) {
	e.mu.Lock()
	e.queue = append(e.queue, pr)
	depth := len(e.queue)
	e.mu.Unlock()
	if e.metrics != nil {
		e.metrics.QueueDepth.Set(float64(depth))
	}
}

// pop removes and returns the front of the queue. It returns ok=false on
// underflow, which per §4.4/§7 is a protocol-invariant failure: the
// caller aborts the connection rather than propagating an error to
// anything user-visible.
func (e *Engine) pop() (*pendingCacheRequest, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.queue) == 0 {
		return nil, false
	}
	pr := e.queue[0]
	e.queue = e.queue[1:]
	if e.metrics != nil {
		e.metrics.QueueDepth.Set(float64(len(e.queue)))
	}
	return pr, true
}

// OnResponse implements ReplyCallbacks: Client calls this for every
// cache-internal reply, in order. It is the §4.4 "Reply handling" table.
func (e *Engine) OnResponse(value Value) {
	pr, ok := e.pop()
	if !ok {
		// §4.4 invariant: a reply arriving when the queue is empty is a
		// protocol violation. Fatal for the connection, not the process
		// (§9 "Exception-style flow").
		log.Error().Err(errQueueUnderflow).Msg("respcache: closing connection")
		_ = e.client.Close()
		return
	}
	if pr.span != nil {
		pr.span.End()
	}
	observeLatency(e.metrics, pr.op, pr.start)

	switch pr.op {
	case OpSet, OpExpire, OpFlush:
		if value.Type == ErrorType {
			e.recordError(pr.op)
		}
		// Consumed and discarded either way (§4.4, §7): the cache may be
		// inconsistent and is repaired by the next invalidation or
		// reconnect-flush.
	case OpGet:
		e.recordHitMetric(value)
		if value.Type == ErrorType || value.IsNull() {
			e.callbacks.OnCacheResponse(nil)
			return
		}
		v := value
		e.callbacks.OnCacheResponse(&v)
	}
}

// OnFailure implements ReplyCallbacks: invoked instead of OnResponse when
// the client connection closes before this cache-internal command's
// reply arrives.
func (e *Engine) OnFailure() {
	pr, ok := e.pop()
	if !ok {
		return
	}
	if pr.span != nil {
		pr.span.End()
	}
	observeLatency(e.metrics, pr.op, pr.start)
}

// OnConnectionEvent implements ConnectionObserver. On RemoteClose or
// LocalClose, the engine notifies its owner and drops all queued
// PendingCacheRequests (§4.4 "Connection events").
func (e *Engine) OnConnectionEvent(ev ConnEvent) {
	if ev == EventConnected {
		return
	}
	e.mu.Lock()
	dropped := e.queue
	e.queue = nil
	e.mu.Unlock()
	for _, pr := range dropped {
		if pr.span != nil {
			pr.span.End()
		}
	}
	if e.metrics != nil {
		e.metrics.QueueDepth.Set(0)
	}
	e.callbacks.OnCacheClose()
}

func (e *Engine) recordHitMetric(value Value) {
	if e.metrics == nil {
		return
	}
	if value.Type == ErrorType || value.IsNull() {
		e.metrics.Hit.WithLabelValues(hitLabelMiss).Inc()
		return
	}
	e.metrics.Hit.WithLabelValues(hitLabelHit).Inc()
}

func (e *Engine) recordError(op CacheOp) {
	if e.metrics == nil {
		return
	}
	e.metrics.Error.WithLabelValues(op.String()).Inc()
}

// observeLatency is a small helper mirroring the teacher's
// recordLatency(label, startedAt) pattern: OnResponse and OnFailure use it
// to record each round-trip in the Latency histogram, labeled by op.
func observeLatency(m *MetricSet, op CacheOp, start time.Time) {
	if m == nil {
		return
	}
	m.Latency.WithLabelValues(op.String()).Observe(float64(time.Since(start).Milliseconds()))
}
