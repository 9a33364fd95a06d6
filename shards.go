package respcache

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// ShardSelector picks which of a ShardGroup's Engines serves a given key
// (§3 cache-shards). This package ships no routing policy of its own —
// host/shard selection is an external collaborator's job (§1) — so callers
// may supply one; Key returns a stable index via FNV-ish hashing and is
// used when none is given.
type ShardSelector func(key []byte, shardCount int) int

// Key hashes key into [0, shardCount) using the same kind of cheap
// rendezvous-free hash go-redis' ring client uses internally for shard
// placement, good enough for even distribution across a handful of cache
// nodes.
func Key(key []byte, shardCount int) int {
	if shardCount <= 0 {
		return 0
	}
	var h uint32 = 2166136261
	for _, b := range key {
		h ^= uint32(b)
		h *= 16777619
	}
	return int(h) % shardCount
}

// ShardGroup owns `cache-shards` independent cache connections (§3). Each
// shard is a fully independent Client/Engine pair with its own queue,
// buffer, and timers — the source treats cache-shards purely as a count of
// parallel connections to the same logical cache, not a consistent-hashing
// ring, so this type does the same: it is a thin fan-out/fan-in layer, not
// a routing layer.
type ShardGroup struct {
	engines  []*Engine
	selector ShardSelector
}

// NewShardGroup builds a ShardGroup from already-constructed engines, one
// per shard. selector chooses which engine serves a given key; pass nil to
// use Key.
func NewShardGroup(engines []*Engine, selector ShardSelector) *ShardGroup {
	if selector == nil {
		selector = Key
	}
	return &ShardGroup{engines: engines, selector: selector}
}

// Engine returns the shard responsible for key.
func (g *ShardGroup) Engine(key []byte) *Engine {
	idx := g.selector(key, len(g.engines))
	if idx < 0 || idx >= len(g.engines) {
		idx = 0
	}
	return g.engines[idx]
}

// InitializeAll brings every shard's connection to Connected concurrently.
// The teacher repurposes golang.org/x/sync/singleflight to coalesce
// concurrent duplicate reads against a single connection; that does not
// apply to cache-shards, which are independent connections with no shared
// state to coalesce, so this instead uses errgroup.Group to supervise the
// shards as one unit and surface the first initialization failure (if the
// caller wants to treat that as fatal) while still letting the others
// proceed, matching §7's "absorbed, not surfaced" policy for individual
// setup commands.
func (g *ShardGroup) InitializeAll(ctx context.Context, username, password string, clearOnInit bool) error {
	var eg errgroup.Group
	for i, e := range g.engines {
		i, e := i, e
		eg.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			e.Initialize(username, password, clearOnInit)
			log.Info().Int("shard", i).Msg("cache shard initialized")
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return fmt.Errorf("respcache: shard initialization: %w", err)
	}
	return nil
}

// CloseAll tears down every shard's connection via errgroup, the same way
// InitializeAll supervises startup: every close runs (one failure does not
// stop the others) and the first non-nil close error is returned.
func (g *ShardGroup) CloseAll() error {
	var eg errgroup.Group
	for _, e := range g.engines {
		e := e
		eg.Go(func() error {
			return e.client.Close()
		})
	}
	return eg.Wait()
}
