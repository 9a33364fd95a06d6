package respcache

import (
	"bytes"
	"strconv"
)

// BasicEncoder and BasicDecoder are minimal RESP2/RESP3 implementations
// used by tests, the integration test, and cmd/respcached. The real wire
// codec is an external collaborator (§1) owned by the proxy's connection
// pool; this pair only needs to produce and consume the command and reply
// shapes this package actually builds (§4.2) plus the push frames it
// dispatches (§4.5), not the full Redis protocol surface.

// BasicEncoder writes Arrays of BulkStrings using RESP2 multi-bulk
// framing, which every Redis server accepts regardless of negotiated
// protocol version.
type BasicEncoder struct{}

func (BasicEncoder) Encode(v Value) []byte {
	var buf bytes.Buffer
	encodeValue(&buf, v)
	return buf.Bytes()
}

func encodeValue(buf *bytes.Buffer, v Value) {
	switch v.Type {
	case Array:
		if v.Elems == nil {
			buf.WriteString("*-1\r\n")
			return
		}
		buf.WriteByte('*')
		buf.WriteString(strconv.Itoa(len(v.Elems)))
		buf.WriteString("\r\n")
		for _, e := range v.Elems {
			encodeValue(buf, e)
		}
	case BulkString:
		if v.Str == nil {
			buf.WriteString("$-1\r\n")
			return
		}
		buf.WriteByte('$')
		buf.WriteString(strconv.Itoa(len(v.Str)))
		buf.WriteString("\r\n")
		buf.Write(v.Str)
		buf.WriteString("\r\n")
	case SimpleString:
		buf.WriteByte('+')
		buf.Write(v.Str)
		buf.WriteString("\r\n")
	case Integer:
		buf.WriteByte(':')
		buf.WriteString(strconv.FormatInt(v.Int, 10))
		buf.WriteString("\r\n")
	case ErrorType:
		buf.WriteByte('-')
		buf.Write(v.Str)
		buf.WriteString("\r\n")
	case Null:
		buf.WriteString("$-1\r\n")
	default:
		// CompositeArray and Push are never encoded outbound: the
		// former is a decode-side view, the latter is server-to-client
		// only.
	}
}

// BasicDecoder incrementally parses RESP2 (+,-,:,$,*) and RESP3 (>,_,%)
// frames out of a byte stream. A RESP3 map (%) is decoded as a flat Array
// of alternating keys and values. It buffers partial frames across Feed
// calls.
type BasicDecoder struct {
	buf []byte
}

func (d *BasicDecoder) Feed(data []byte) ([]Frame, error) {
	d.buf = append(d.buf, data...)

	var frames []Frame
	for {
		v, isPush, n, ok, err := parseFrame(d.buf)
		if err != nil {
			return frames, err
		}
		if !ok {
			break
		}
		d.buf = d.buf[n:]
		kind := FrameReply
		if isPush {
			kind = FramePush
		}
		frames = append(frames, Frame{Kind: kind, Value: v})
	}
	return frames, nil
}

// parseFrame attempts to parse one complete frame from buf. ok is false
// when more data is needed. n is the number of bytes consumed on success.
func parseFrame(buf []byte) (v Value, isPush bool, n int, ok bool, err error) {
	if len(buf) == 0 {
		return Value{}, false, 0, false, nil
	}

	line, rest, found := cutLine(buf)
	if !found {
		return Value{}, false, 0, false, nil
	}

	switch buf[0] {
	case '+':
		return Value{Type: SimpleString, Str: line[1:]}, false, len(buf) - len(rest), true, nil
	case '-':
		return Value{Type: ErrorType, Str: line[1:]}, false, len(buf) - len(rest), true, nil
	case ':':
		i, perr := strconv.ParseInt(string(line[1:]), 10, 64)
		if perr != nil {
			return Value{}, false, 0, false, ErrProtocol
		}
		return Value{Type: Integer, Int: i}, false, len(buf) - len(rest), true, nil
	case '_':
		return Value{Type: Null}, false, len(buf) - len(rest), true, nil
	case '$':
		return parseBulkString(buf, line, rest)
	case '*', '>', '%':
		return parseArray(buf, line, rest, buf[0])
	default:
		return Value{}, false, 0, false, ErrProtocol
	}
}

func parseBulkString(buf, line, rest []byte) (Value, bool, int, bool, error) {
	size, err := strconv.Atoi(string(line[1:]))
	if err != nil {
		return Value{}, false, 0, false, ErrProtocol
	}
	consumed := len(buf) - len(rest)
	if size < 0 {
		return Value{Type: BulkString, Str: nil}, false, consumed, true, nil
	}
	if len(rest) < size+2 {
		return Value{}, false, 0, false, nil
	}
	str := append([]byte(nil), rest[:size]...)
	return Value{Type: BulkString, Str: str}, false, consumed + size + 2, true, nil
}

func parseArray(buf, line, rest []byte, prefix byte) (Value, bool, int, bool, error) {
	isPush := prefix == '>'
	count, err := strconv.Atoi(string(line[1:]))
	if err != nil {
		return Value{}, false, 0, false, ErrProtocol
	}
	consumed := len(buf) - len(rest)
	if count < 0 {
		return Value{Type: Array, Elems: nil}, isPush, consumed, true, nil
	}
	if prefix == '%' {
		// A map header counts key/value pairs.
		count *= 2
	}
	elems := make([]Value, 0, count)
	remaining := rest
	for i := 0; i < count; i++ {
		v, _, n, ok, err := parseFrame(remaining)
		if err != nil {
			return Value{}, false, 0, false, err
		}
		if !ok {
			return Value{}, false, 0, false, nil
		}
		elems = append(elems, v)
		remaining = remaining[n:]
		consumed += n
	}
	typ := Array
	if isPush {
		typ = Push
	}
	return Value{Type: typ, Elems: elems}, isPush, consumed, true, nil
}

// cutLine finds the terminating CRLF of the current line. found is false
// if buf does not yet contain a full line.
func cutLine(buf []byte) (line, rest []byte, found bool) {
	idx := bytes.Index(buf, []byte("\r\n"))
	if idx < 0 {
		return nil, nil, false
	}
	return buf[:idx], buf[idx+2:], true
}
