package respcache_test

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stumble/respcache"
)

type recordingHost struct {
	mu        sync.Mutex
	responses []*respcache.Value
	closed    int
}

func (h *recordingHost) OnCacheResponse(v *respcache.Value) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.responses = append(h.responses, v)
}

func (h *recordingHost) OnCacheClose() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed++
}

func (h *recordingHost) snapshot() ([]*respcache.Value, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*respcache.Value(nil), h.responses...), h.closed
}

func newTestEngine(t *testing.T, cfg respcache.Config) (*respcache.Engine, *recordingHost, net.Conn) {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	var enc respcache.BasicEncoder
	dec := &respcache.BasicDecoder{}
	client := respcache.NewClient(clientConn, enc, dec, cfg, nil, nil)
	t.Cleanup(func() { _ = client.Close() })
	host := &recordingHost{}
	engine := respcache.NewEngine(client, cfg, nil, host)
	return engine, host, serverConn
}

func writeReply(t *testing.T, conn net.Conn, v respcache.Value) {
	t.Helper()
	var enc respcache.BasicEncoder
	_, err := conn.Write(enc.Encode(v))
	require.NoError(t, err)
}

func drainOneWrite(t *testing.T, conn net.Conn) {
	t.Helper()
	buf := make([]byte, 4096)
	_, err := conn.Read(buf)
	require.NoError(t, err)
}

func expectNoWrite(t *testing.T, conn net.Conn) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		buf := make([]byte, 1)
		_, _ = conn.Read(buf)
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("unexpected write on cache connection")
	case <-time.After(30 * time.Millisecond):
	}
}

func TestEngineMakeCacheRequestHitDeliversValue(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	engine, host, serverConn := newTestEngine(t, cfg)
	defer serverConn.Close()

	getReq := respcache.NewArray([]byte("GET"), []byte("user:1"))
	require.True(t, engine.MakeCacheRequest(getReq))

	drainOneWrite(t, serverConn)
	writeReply(t, serverConn, respcache.NewBulkString([]byte("cached-value")))

	require.Eventually(t, func() bool {
		responses, _ := host.snapshot()
		return len(responses) == 1
	}, time.Second, time.Millisecond)

	responses, _ := host.snapshot()
	require.NotNil(t, responses[0])
	require.Equal(t, []byte("cached-value"), responses[0].Str)
}

func TestEngineMakeCacheRequestMissDeliversNil(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	engine, host, serverConn := newTestEngine(t, cfg)
	defer serverConn.Close()

	getReq := respcache.NewArray([]byte("GET"), []byte("user:1"))
	require.True(t, engine.MakeCacheRequest(getReq))

	drainOneWrite(t, serverConn)
	writeReply(t, serverConn, respcache.NewBulkString(nil))

	require.Eventually(t, func() bool {
		responses, _ := host.snapshot()
		return len(responses) == 1
	}, time.Second, time.Millisecond)

	responses, _ := host.snapshot()
	require.Nil(t, responses[0])
}

func TestEngineNonCacheableRequestIsRejected(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	engine, _, serverConn := newTestEngine(t, cfg)
	defer serverConn.Close()

	delReq := respcache.NewArray([]byte("DEL"), []byte("user:1"))
	require.False(t, engine.MakeCacheRequest(delReq))
}

func TestEngineSetOnlyCachesBulkStringOrigin(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	engine, _, serverConn := newTestEngine(t, cfg)
	defer serverConn.Close()

	getReq := respcache.NewArray([]byte("GET"), []byte("user:1"))

	t.Run("integer origin response is not cached", func(t *testing.T) {
		engine.Set(getReq, respcache.NewInteger(1))
		expectNoWrite(t, serverConn)
	})

	t.Run("BulkString origin response triggers a SET", func(t *testing.T) {
		engine.Set(getReq, respcache.NewBulkString([]byte("value")))
		drainOneWrite(t, serverConn)
	})
}

func TestEngineSetRespectsIgnorePrefixes(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.CacheIgnoreKeyPrefixes = [][]byte{[]byte("session:")}
	engine, _, serverConn := newTestEngine(t, cfg)
	defer serverConn.Close()

	getReq := respcache.NewArray([]byte("GET"), []byte("session:abc"))
	engine.Set(getReq, respcache.NewBulkString([]byte("value")))
	expectNoWrite(t, serverConn)
}

func TestEngineExpireNullPayloadFlushes(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	engine, _, serverConn := newTestEngine(t, cfg)
	defer serverConn.Close()

	engine.Expire(respcache.NullValue)
	drainOneWrite(t, serverConn)
}

func TestEngineExpireEmptyArrayIsNoop(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	engine, _, serverConn := newTestEngine(t, cfg)
	defer serverConn.Close()

	engine.Expire(respcache.Value{Type: respcache.Array, Elems: []respcache.Value{}})
	expectNoWrite(t, serverConn)
}

func TestEngineClearCacheIssuesFlushAll(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	engine, _, serverConn := newTestEngine(t, cfg)
	defer serverConn.Close()

	engine.ClearCache(true)
	drainOneWrite(t, serverConn)
}

func TestEngineInvalidatePushTriggersUnlink(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	var enc respcache.BasicEncoder
	dec := &respcache.BasicDecoder{}
	client := respcache.NewClient(clientConn, enc, dec, cfg, nil, nil)
	t.Cleanup(func() { _ = client.Close() })
	host := &recordingHost{}
	respcache.NewEngine(client, cfg, nil, host)

	// BasicEncoder never encodes Push frames outbound (they are
	// server-to-client only), so the push is written as raw wire bytes
	// here rather than through Encode.
	pushWire := []byte(">2\r\n$10\r\ninvalidate\r\n*1\r\n$6\r\nuser:1\r\n")
	_, err := serverConn.Write(pushWire)
	require.NoError(t, err)

	drainOneWrite(t, serverConn)
}

func TestEngineInvalidatePushWithMissingPayloadIsNoop(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	var enc respcache.BasicEncoder
	dec := &respcache.BasicDecoder{}
	client := respcache.NewClient(clientConn, enc, dec, cfg, nil, nil)
	t.Cleanup(func() { _ = client.Close() })
	host := &recordingHost{}
	respcache.NewEngine(client, cfg, nil, host)

	// A push with only the "invalidate" element and no keys payload is
	// malformed/empty, not the same as Push["invalidate", Null]; it must
	// not trigger a FLUSHALL.
	pushWire := []byte(">1\r\n$10\r\ninvalidate\r\n")
	_, err := serverConn.Write(pushWire)
	require.NoError(t, err)

	expectNoWrite(t, serverConn)
}

func TestEngineOnConnectionEventNotifiesHostOnClose(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	engine, host, serverConn := newTestEngine(t, cfg)

	engine.MakeCacheRequest(respcache.NewArray([]byte("GET"), []byte("user:1")))
	serverConn.Close()

	require.Eventually(t, func() bool {
		_, closed := host.snapshot()
		return closed == 1
	}, time.Second, time.Millisecond)
}
