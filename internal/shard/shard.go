// Package shard provides a deviceId-sharded map so concurrent ingestion
// and evaluation never contend on a single global lock. Within one shard,
// access is serialized.
package shard

import (
	"hash/fnv"
	"sync"
)

const defaultShards = 32

// Map is a sharded map from string keys to values of type V.
type Map[V any] struct {
	shards []mapShard[V]
}

type mapShard[V any] struct {
	mu sync.Mutex
	m  map[string]V
}

// NewMap builds a Map with n shards. n <= 0 selects the default.
func NewMap[V any](n int) *Map[V] {
	if n <= 0 {
		n = defaultShards
	}
	shards := make([]mapShard[V], n)
	for i := range shards {
		shards[i].m = make(map[string]V)
	}
	return &Map[V]{shards: shards}
}

func (s *Map[V]) shard(key string) *mapShard[V] {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &s.shards[h.Sum32()%uint32(len(s.shards))]
}

// Do runs fn with the shard for key locked. fn receives the backing map
// and must not retain it past the call.
func (s *Map[V]) Do(key string, fn func(m map[string]V)) {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	fn(sh.m)
}

// Get returns the value for key.
func (s *Map[V]) Get(key string) (V, bool) {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	v, ok := sh.m[key]
	return v, ok
}

// Set stores the value for key.
func (s *Map[V]) Set(key string, v V) {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.m[key] = v
}

// GetOrCreate returns the value for key, creating it with mk on first use.
func (s *Map[V]) GetOrCreate(key string, mk func() V) V {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	v, ok := sh.m[key]
	if !ok {
		v = mk()
		sh.m[key] = v
	}
	return v
}

// Range calls fn for every entry across all shards. One shard is locked
// at a time; fn must not call back into the map.
func (s *Map[V]) Range(fn func(key string, v V)) {
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for k, v := range sh.m {
			fn(k, v)
		}
		sh.mu.Unlock()
	}
}
