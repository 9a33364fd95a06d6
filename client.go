package respcache

import (
	"bytes"
	"context"
	"errors"
	"net"
	"sync"
	"time"

	uuid "github.com/satori/go.uuid"
	"github.com/rs/zerolog/log"
)

// Encoder turns a Value into wire bytes. The real RESP encoder is an
// external collaborator (§1); Client depends on this interface so a
// production binary can plug in the full codec while tests use the
// minimal stand-in in wire.go.
type Encoder interface {
	Encode(v Value) []byte
}

// Decoder incrementally parses wire bytes into complete frames. Feed
// appends data and returns every frame that completed as a result, plus
// any error that makes the connection unrecoverable (§7, "Decoder
// protocol error").
type Decoder interface {
	Feed(data []byte) ([]Frame, error)
}

// FrameKind discriminates a decoded frame the way RESP3's tag does (§4.5):
// total over the two variants the dispatcher needs, no runtime type
// check beyond this.
type FrameKind int

const (
	FrameReply FrameKind = iota
	FramePush
)

// Frame is a completed decoded unit handed from the Decoder to the
// dispatcher.
type Frame struct {
	Kind  FrameKind
	Value Value
}

// ConnEvent names a Client connection lifecycle transition (§4.3
// addConnectionCallbacks).
type ConnEvent int

const (
	EventConnected ConnEvent = iota
	EventRemoteClose
	EventLocalClose
)

// ConnectionObserver receives Client lifecycle events.
type ConnectionObserver interface {
	OnConnectionEvent(ConnEvent)
}

var invalidateToken = []byte("invalidate")

// PushHandler processes an invalidation payload delivered out-of-band by
// the cache node (§4.4 expire). It is the cache engine in production.
type PushHandler interface {
	Expire(keys Value)
}

// Client is the pipelined cache-cluster client (C3): it owns the
// connection to a single cache node, pipelines encoded commands, and
// dispatches each decoded reply to either the caller that issued it or,
// for cache-internal commands, to the cache engine (C5 dispatch is
// integrated here per §4.5).
//
// The source models this around a single-threaded event-loop dispatcher
// (§5); Go has no equivalent built in, so this port serializes all queue
// and buffer mutation behind mu instead of relying on single-consumer
// discipline. The ordering guarantee in §4.3/§5 — reply N matches write
// N, push frames excluded — is preserved: mu is held for the whole of
// both MakeRequest's enqueue and dispatch's pop, and frames are
// dispatched in the order Decoder.Feed returns them.
type Client struct {
	id      string
	conn    net.Conn
	encoder Encoder
	decoder Decoder
	cfg     Config
	metrics *MetricSet

	pushHandler PushHandler

	mu       sync.Mutex
	outBuf   bytes.Buffer
	queue    []*pendingRequest
	closed   bool
	observer []ConnectionObserver

	flushTimer *time.Timer
	opTimer    *time.Timer
	opTimeout  time.Duration

	readDone chan struct{}
}

// NewClient constructs a pipelined cache client over an already-connected
// conn. The cache engine installs itself as pushHandler so invalidate
// pushes reach Engine.Expire.
func NewClient(conn net.Conn, enc Encoder, dec Decoder, cfg Config, m *MetricSet, pushHandler PushHandler) *Client {
	c := &Client{
		id:          uuid.NewV4().String(),
		conn:        conn,
		encoder:     enc,
		decoder:     dec,
		cfg:         cfg,
		metrics:     m,
		pushHandler: pushHandler,
		opTimeout:   cfg.CacheOpTimeout,
		readDone:    make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// SetPushHandler installs (or replaces) the handler invalidate pushes are
// routed to. NewEngine calls this so construction order can be Client
// first, Engine second — the natural order, since Engine wraps an
// already-dialed Client — without requiring the push handler to exist
// before the connection does.
func (c *Client) SetPushHandler(h PushHandler) {
	c.mu.Lock()
	c.pushHandler = h
	c.mu.Unlock()
}

// AddConnectionCallbacks registers obs for Connected/RemoteClose/LocalClose
// events.
func (c *Client) AddConnectionCallbacks(obs ConnectionObserver) {
	c.mu.Lock()
	c.observer = append(c.observer, obs)
	c.mu.Unlock()
}

func (c *Client) notify(ev ConnEvent) {
	c.mu.Lock()
	observers := append([]ConnectionObserver(nil), c.observer...)
	c.mu.Unlock()
	for _, o := range observers {
		o.OnConnectionEvent(ev)
	}
}

// Active reports whether any request is in flight.
func (c *Client) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue) > 0
}

// Initialize brings the connection to Connected: AUTH (if password is
// non-empty), HELLO 3, and, unless disabled, CLIENT TRACKING ON NOLOOP
// [BCAST]. Each is an ordinary pipelined command (§4.3); failures are
// logged, not returned, matching §7's "absorbed" policy for cache-side
// setup commands.
func (c *Client) Initialize(username, password string) {
	if password != "" {
		req := BuildAuthUser(username, password)
		if username == "" {
			req = BuildAuth(password)
		}
		c.MakeRequest(req, logOnlyCallbacks{op: "auth", clientID: c.id})
	}
	c.MakeRequest(BuildHello(Resp3), logOnlyCallbacks{op: "hello", clientID: c.id})
	if !c.cfg.CacheDisableTracking {
		c.MakeRequest(BuildClientTracking(c.cfg.CacheEnableBcastMode), logOnlyCallbacks{op: "client tracking", clientID: c.id})
	}
	c.notify(EventConnected)
}

// logOnlyCallbacks absorbs the reply to a fire-and-forget setup command,
// logging failures without surfacing them to any caller (§7).
type logOnlyCallbacks struct {
	op       string
	clientID string
}

func (l logOnlyCallbacks) OnResponse(v Value) {
	if v.Type == ErrorType {
		log.Warn().Str("client", l.clientID).Str("op", l.op).Bytes("error", v.Str).Msg("cache setup command failed")
	}
}

func (l logOnlyCallbacks) OnFailure() {
	log.Warn().Str("client", l.clientID).Str("op", l.op).Msg("cache setup command failed: connection closed")
}

// MakeRequest enqueues req for sending and registers callbacks to receive
// its reply. It returns the zero Handle (Handle{}) if the connection is
// already Closed, mirroring the source's "returns null" contract.
func (c *Client) MakeRequest(req Value, callbacks ReplyCallbacks) Handle {
	return c.makeRequest(req, callbacks, false)
}

// makeCacheInternalRequest is used by Engine: it marks the entry
// cache-internal. The dispatcher does not read the mark; the reply reaches
// the engine because the engine is the entry's callbacks.
func (c *Client) makeCacheInternalRequest(req Value, callbacks ReplyCallbacks) Handle {
	return c.makeRequest(req, callbacks, true)
}

func (c *Client) makeRequest(req Value, callbacks ReplyCallbacks, cacheInternal bool) Handle {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		if callbacks != nil {
			callbacks.OnFailure()
		}
		return Handle{}
	}

	pr := &pendingRequest{
		callbacks:      callbacks,
		requestStarted: time.Now(),
		original:       req,
		cacheInternal:  cacheInternal,
	}

	wasEmpty := c.outBuf.Len() == 0 && len(c.queue) == 0
	c.outBuf.Write(c.encoder.Encode(req))
	c.queue = append(c.queue, pr)

	if wasEmpty {
		c.armOpTimerLocked()
	}

	shouldFlush := c.outBuf.Len() >= c.cfg.MaxBufferSizeBeforeFlush
	if shouldFlush {
		c.flushLocked()
	} else {
		c.armFlushTimerLocked()
	}
	c.mu.Unlock()

	return Handle{req: pr}
}

// armFlushTimerLocked arms the buffer-flush timer on first enqueue into
// an empty buffer, per §4.3's write-path description. Caller holds mu.
func (c *Client) armFlushTimerLocked() {
	if c.flushTimer != nil {
		return
	}
	c.flushTimer = time.AfterFunc(c.cfg.BufferFlushTimeout, func() {
		c.mu.Lock()
		c.flushLocked()
		c.mu.Unlock()
	})
}

// flushLocked writes the accumulated buffer to the wire and disarms the
// flush timer. Caller holds mu.
func (c *Client) flushLocked() {
	if c.flushTimer != nil {
		c.flushTimer.Stop()
		c.flushTimer = nil
	}
	if c.outBuf.Len() == 0 {
		return
	}
	buf := c.outBuf.Bytes()
	_, err := c.conn.Write(buf)
	c.outBuf.Reset()
	if err != nil {
		go c.closeWithEvent(EventLocalClose)
	}
}

// armOpTimerLocked (re)arms the combined connect-or-op timer when a new
// request becomes the head of an otherwise-empty queue (§5, "rearmed on
// each new head-of-queue request"). Caller holds mu.
func (c *Client) armOpTimerLocked() {
	if c.opTimer != nil {
		c.opTimer.Stop()
	}
	timeout := c.opTimeout
	if timeout <= 0 {
		return
	}
	c.opTimer = time.AfterFunc(timeout, func() {
		log.Warn().Str("client", c.id).Err(ErrOpTimeout).Msg("cache op timeout, closing connection")
		// A flush blocked in conn.Write holds mu; closing the socket first
		// unblocks it so closeWithEvent can take mu.
		_ = c.conn.Close()
		c.closeWithEvent(EventLocalClose)
	})
}

func (c *Client) disarmOpTimerLocked() {
	if c.opTimer != nil {
		c.opTimer.Stop()
		c.opTimer = nil
	}
}

// Close transitions the client to Closed: pending requests fail, the
// socket is torn down, and further MakeRequest calls return the zero
// Handle.
func (c *Client) Close() error {
	return c.closeWithEvent(EventLocalClose)
}

func (c *Client) closeWithEvent(ev ConnEvent) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	pending := c.queue
	c.queue = nil
	c.disarmOpTimerLocked()
	if c.flushTimer != nil {
		c.flushTimer.Stop()
		c.flushTimer = nil
	}
	c.mu.Unlock()

	for _, pr := range pending {
		if pr.canceled {
			continue
		}
		if pr.callbacks != nil {
			pr.callbacks.OnFailure()
		}
	}

	err := c.conn.Close()
	<-c.readDone
	c.notify(ev)
	return err
}

// readLoop is the connection's read side: it feeds bytes to the decoder
// and dispatches every completed frame. It runs until the socket returns
// an error (including the one caused by our own Close).
func (c *Client) readLoop() {
	defer close(c.readDone)
	buf := make([]byte, 64*1024)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			frames, decErr := c.decoder.Feed(buf[:n])
			for _, f := range frames {
				c.dispatch(f)
			}
			if decErr != nil {
				log.Warn().Str("client", c.id).Err(decErr).Msg("resp decode error, closing connection")
				go c.closeWithEvent(EventRemoteClose)
				return
			}
		}
		if err != nil {
			c.mu.Lock()
			alreadyClosed := c.closed
			c.mu.Unlock()
			if !alreadyClosed {
				go c.closeWithEvent(EventRemoteClose)
			}
			return
		}
	}
}

// dispatch implements C5: a push frame whose first element is
// "invalidate" goes to the push handler; every other push is dropped;
// a reply frame pops exactly the entry at the head of the queue and is
// addressed to that entry alone — one written request, one reply frame,
// matched 1:1 regardless of cancellation (§4.3, §8 invariant #1). A
// canceled head still consumes this frame; its reply is silently
// dropped, not reattributed to whatever entry follows it. Non-canceled
// entries deliver through their own callback, which for cache-internal
// commands is the cache engine (see engine.go).
func (c *Client) dispatch(f Frame) {
	if f.Kind == FramePush {
		c.dispatchPush(f.Value)
		return
	}

	c.mu.Lock()
	var pr *pendingRequest
	if len(c.queue) > 0 {
		pr = c.queue[0]
		c.queue = c.queue[1:]
	}
	if len(c.queue) > 0 {
		c.armOpTimerLocked()
	} else {
		c.disarmOpTimerLocked()
	}
	c.mu.Unlock()

	if pr == nil || pr.canceled {
		return
	}
	if pr.callbacks != nil {
		pr.callbacks.OnResponse(f.Value)
	}
}

func (c *Client) dispatchPush(v Value) {
	if v.Type != Push && v.Type != Array {
		return
	}
	if len(v.Elems) == 0 {
		return
	}
	first := v.Elems[0]
	if first.Str == nil || !equalsFoldASCII(first.Str, invalidateToken) {
		return
	}
	c.mu.Lock()
	handler := c.pushHandler
	c.mu.Unlock()
	if handler == nil {
		return
	}
	if len(v.Elems) < 2 {
		// Defensive: an empty push payload has no keys to expire, and is not
		// the same thing as a genuine Push["invalidate", Null] flush signal.
		return
	}
	handler.Expire(v.Elems[1])
}

// DialAndInitialize is a small convenience used by cmd/respcached: it
// opens a TCP connection to addr, wraps it in a Client, and kicks off
// Initialize. Connection retry/backoff policy belongs to the connection
// manager (out of scope, §1); this just gets a demo/integration test off
// the ground.
func DialAndInitialize(ctx context.Context, addr string, enc Encoder, dec Decoder, cfg Config, m *MetricSet, pushHandler PushHandler, username, password string) (*Client, error) {
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Join(ErrConnClosed, err)
	}
	c := NewClient(conn, enc, dec, cfg, m, pushHandler)
	c.Initialize(username, password)
	return c, nil
}
