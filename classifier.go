package respcache

import "bytes"

var getCommandName = []byte("get")

// ExtractKey returns the key of a cacheable GET per §3's key-extraction
// rule, or ok=false if req carries no such key.
func ExtractKey(req Value) (key []byte, ok bool) {
	switch req.Type {
	case Array:
		if len(req.Elems) < 2 {
			return nil, false
		}
		cmd, hasCmd := req.commandToken()
		if !hasCmd || !equalsFoldASCII(cmd, getCommandName) {
			return nil, false
		}
		return req.Elems[1].Str, true

	case CompositeArray:
		cmd, hasCmd := req.commandToken()
		if !hasCmd || !equalsFoldASCII(cmd, getCommandName) {
			return nil, false
		}
		if req.Begin < 0 || req.Begin >= len(req.Base) {
			return nil, false
		}
		return req.Base[req.Begin].Str, true

	default:
		return nil, false
	}
}

// ignoreMatch reports whether key matches any prefix in ignore.
//
// The source (CacheImpl::makeCacheRequest) tests this with
// key->rfind(prefix, 0) != npos, a reverse-find anchored to search only
// position 0 — which is exactly std::string::find's behavior restricted to
// the start, i.e. the intended semantic really is a plain prefix test. We
// implement it as bytes.HasPrefix directly rather than reproducing the
// rfind call, per the Open Questions note in §9: the reverse-find idiom is
// flagged here, not silently reinterpreted into something looser.
func ignoreMatch(key []byte, ignore [][]byte) bool {
	for _, prefix := range ignore {
		if bytes.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

// IsCacheable reports whether req is a GET whose key is not covered by any
// prefix in ignore.
func IsCacheable(req Value, ignore [][]byte) bool {
	key, ok := ExtractKey(req)
	if !ok {
		return false
	}
	return !ignoreMatch(key, ignore)
}
