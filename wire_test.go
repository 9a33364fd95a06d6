package respcache_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stumble/respcache"
)

func TestBasicEncoderDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	var enc respcache.BasicEncoder
	req := respcache.NewArray([]byte("GET"), []byte("user:1"))
	wire := enc.Encode(req)

	dec := &respcache.BasicDecoder{}
	frames, err := dec.Feed(wire)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	require.Equal(t, respcache.FrameReply, frames[0].Kind)
	require.Equal(t, respcache.Array, frames[0].Value.Type)
	require.Equal(t, []byte("GET"), frames[0].Value.Elems[0].Str)
	require.Equal(t, []byte("user:1"), frames[0].Value.Elems[1].Str)
}

func TestBasicDecoderFeedsFromPartialChunks(t *testing.T) {
	t.Parallel()

	var enc respcache.BasicEncoder
	wire := enc.Encode(respcache.NewBulkString([]byte("hello")))

	dec := &respcache.BasicDecoder{}
	frames, err := dec.Feed(wire[:3])
	require.NoError(t, err)
	require.Empty(t, frames)

	frames, err = dec.Feed(wire[3:])
	require.NoError(t, err)
	require.Len(t, frames, 1)
	require.Equal(t, []byte("hello"), frames[0].Value.Str)
}

func TestBasicDecoderParsesReplyTypes(t *testing.T) {
	t.Parallel()

	dec := &respcache.BasicDecoder{}

	t.Run("simple string", func(t *testing.T) {
		frames, err := dec.Feed([]byte("+OK\r\n"))
		require.NoError(t, err)
		require.Len(t, frames, 1)
		require.Equal(t, respcache.SimpleString, frames[0].Value.Type)
		require.Equal(t, []byte("OK"), frames[0].Value.Str)
	})

	t.Run("error", func(t *testing.T) {
		frames, err := dec.Feed([]byte("-ERR bad\r\n"))
		require.NoError(t, err)
		require.Len(t, frames, 1)
		require.Equal(t, respcache.ErrorType, frames[0].Value.Type)
	})

	t.Run("integer", func(t *testing.T) {
		frames, err := dec.Feed([]byte(":42\r\n"))
		require.NoError(t, err)
		require.Len(t, frames, 1)
		require.Equal(t, int64(42), frames[0].Value.Int)
	})

	t.Run("null bulk string", func(t *testing.T) {
		frames, err := dec.Feed([]byte("$-1\r\n"))
		require.NoError(t, err)
		require.Len(t, frames, 1)
		require.True(t, frames[0].Value.IsNull())
	})

	t.Run("push frame", func(t *testing.T) {
		frames, err := dec.Feed([]byte(">2\r\n$10\r\ninvalidate\r\n*1\r\n$3\r\nfoo\r\n"))
		require.NoError(t, err)
		require.Len(t, frames, 1)
		require.Equal(t, respcache.FramePush, frames[0].Kind)
	})

	t.Run("malformed integer is a protocol error", func(t *testing.T) {
		_, err := dec.Feed([]byte(":nope\r\n"))
		require.ErrorIs(t, err, respcache.ErrProtocol)
	})
}
