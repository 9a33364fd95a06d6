package respcache

// Shared immutable command-token constants (§9 Design Notes: "Shared
// singletons"). Represented as process-wide byte slices instead of
// per-call allocations; callers must treat them as read-only.
var (
	tokenAuth     = []byte("auth")
	tokenHello    = []byte("hello")
	tokenClient   = []byte("client")
	tokenTracking = []byte("tracking")
	tokenOn       = []byte("on")
	tokenNoloop   = []byte("noloop")
	tokenBcast    = []byte("bcast")
	tokenGet      = []byte("get")
	tokenSet      = []byte("set")
	tokenReadonly = []byte("readonly")
	tokenAsking   = []byte("asking")

	// The source's CacheImpl builds its own SET/UNLINK/FLUSHALL/PX/SYNC/
	// ASYNC arrays with uppercase literals directly in cache_impl.cc,
	// distinct from the lowercase utility.cc singletons above — kept as
	// separate constants here rather than unified, to match the source
	// rather than silently normalize the casing inconsistency.
	tokenSETLiteral      = []byte("SET")
	tokenPX              = []byte("PX")
	tokenUnlinkLiteral   = []byte("UNLINK")
	tokenFlushallLiteral = []byte("FLUSHALL")
	tokenSync            = []byte("SYNC")
	tokenAsync           = []byte("ASYNC")
)

// GetRequestToken and SetRequestToken are the shared BulkString singletons
// named in §9: the GET/SET command tokens (utility.cc's GetRequest::instance
// / SetRequest::instance), reused wherever a caller needs to name the
// command rather than build the full array (e.g. stat labeling).
var (
	GetRequestToken = Value{Type: BulkString, Str: tokenGet}
	SetRequestToken = Value{Type: BulkString, Str: tokenSet}
)

// BuildAuth builds `AUTH password` (2-element).
func BuildAuth(password string) Value {
	return NewArray(tokenAuth, []byte(password))
}

// BuildAuthUser builds `AUTH username password` (3-element).
func BuildAuthUser(username, password string) Value {
	return NewArray(tokenAuth, []byte(username), []byte(password))
}

// RespVersion selects the HELLO protocol version.
type RespVersion int

const (
	Resp2 RespVersion = 2
	Resp3 RespVersion = 3
)

// BuildHello builds `HELLO "2"` or `HELLO "3"`.
func BuildHello(v RespVersion) Value {
	return NewArray(tokenHello, itoa(int64(v)))
}

// BuildClientTracking builds `CLIENT TRACKING ON NOLOOP`, appending BCAST
// when bcast is true.
func BuildClientTracking(bcast bool) Value {
	tokens := [][]byte{tokenClient, tokenTracking, tokenOn, tokenNoloop}
	if bcast {
		tokens = append(tokens, tokenBcast)
	}
	return NewArray(tokens...)
}

// BuildSet builds `SET key value PX <ttl-ms>`. ttlMillis is the decimal
// integer of cache-ttl in milliseconds (engine.go passes
// Config.CacheTTL.Milliseconds()).
func BuildSet(key, value []byte, ttlMillis int64) Value {
	return NewArray(tokenSETLiteral, key, value, tokenPX, itoa(ttlMillis))
}

// BuildUnlink builds `UNLINK k1 k2 …` from the keys array carried by an
// invalidate push.
func BuildUnlink(keys []Value) Value {
	elems := make([]Value, 0, len(keys)+1)
	elems = append(elems, NewBulkString(tokenUnlinkLiteral))
	elems = append(elems, keys...)
	return Value{Type: Array, Elems: elems}
}

// BuildFlushAll builds `FLUSHALL SYNC` (on reconnect) or `FLUSHALL ASYNC`
// otherwise.
func BuildFlushAll(synchronous bool) Value {
	mode := tokenAsync
	if synchronous {
		mode = tokenSync
	}
	return NewArray(tokenFlushallLiteral, mode)
}

// ReadOnlyRequest and AskingRequest are cluster-redirection support
// commands (grounded on utility.cc's ReadOnlyRequest/AskingRequest). No
// operation in this package issues them directly — routing/redirection is
// out of scope (§1) — but they are exported singletons so the
// out-of-scope routing collaborator can reuse the same cache connection
// for them without duplicating the wire form.
var (
	ReadOnlyRequest = NewArray(tokenReadonly)
	AskingRequest   = NewArray(tokenAsking)
)
