// Package respcache implements a client-side, read-through cache that sits
// in front of an upstream Redis cluster inside a network proxy.
//
// A proxy offers each decoded user command to the [Engine] via
// [Engine.MakeCacheRequest]. Cacheable GETs are satisfied (or populated, on
// miss) from a dedicated cache Redis node reached through a pipelined
// [Client] connection. Coherence is maintained by RESP3 server-assisted
// client-side invalidation (CLIENT TRACKING): the cache node pushes
// "invalidate" notifications whenever a tracked key changes on the origin,
// and the engine issues UNLINK (or FLUSHALL, for a full invalidation)
// against the cache node in response.
//
// The wire codec, connection manager, upstream host selection, and
// configuration loading are external collaborators; this package consumes
// them through narrow interfaces ([Value], [Encoder], [Decoder]) and does
// not implement them beyond the minimal stand-ins ([BasicEncoder],
// [BasicDecoder]) needed to exercise the engine and client end to end.
package respcache
