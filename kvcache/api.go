// Package kvcache provides a concurrency-safe cache mapping opaque
// fixed-layout byte-blob keys to values in a bounded amount of memory.
//
// Keys from independent namespaces may share one cache instance so long as
// their serialized layouts can never compare equal (e.g. they differ in
// length); the cache itself treats every key as an opaque blob.
//
// The cache is sharded: a key's shard is selected by its CityHash64 value
// and each shard is an independently locked LRU bounded to its slice of the
// cache's total byte budget.
package kvcache

import (
	"fmt"
	"sync"
	"time"

	"github.com/creachadair/cityhash"
	"github.com/hashicorp/golang-lru/simplelru"

	"github.com/swiftstack/pfsreader/blunder"
)

type entryStruct struct {
	value     interface{}
	size      uint64
	expiresAt time.Time // zero Time means the entry never expires
}

type shardStruct struct {
	sync.Mutex
	lru        *simplelru.LRU
	byteBudget uint64
	bytesUsed  uint64
}

// CacheStruct is a sharded key/value cache. Use NewCache() to create one.
type CacheStruct struct {
	shards     []*shardStruct
	shardCount uint64
}

// NewCache creates a cache bounded to totalBytes of cached value bytes,
// divided evenly across shardCount independently locked shards.
func NewCache(totalBytes uint64, shardCount uint64) (cache *CacheStruct, err error) {
	var (
		shard      *shardStruct
		shardIndex uint64
	)

	if 0 == shardCount {
		err = fmt.Errorf("kvcache.NewCache() shardCount must be non-zero")
		return
	}
	if totalBytes < shardCount {
		err = fmt.Errorf("kvcache.NewCache() totalBytes (%v) must be at least shardCount (%v)", totalBytes, shardCount)
		return
	}

	cache = &CacheStruct{
		shards:     make([]*shardStruct, shardCount),
		shardCount: shardCount,
	}

	for shardIndex = 0; shardIndex < shardCount; shardIndex++ {
		shard = &shardStruct{
			byteBudget: totalBytes / shardCount,
		}

		// The LRU's entry-count bound is a backstop; eviction is
		// driven by the shard's byte budget below
		shard.lru, err = simplelru.NewLRU(int(shard.byteBudget), func(key interface{}, value interface{}) {
			shard.bytesUsed -= value.(*entryStruct).size
		})
		if nil != err {
			cache = nil
			return
		}

		cache.shards[shardIndex] = shard
	}

	err = nil
	return
}

func (cache *CacheStruct) shardForKey(key []byte) (shard *shardStruct) {
	shard = cache.shards[cityhash.Hash64(key)%cache.shardCount]
	return
}

// Get returns the value previously inserted under key. A missing or expired
// key yields a blunder.NotFoundError.
func (cache *CacheStruct) Get(key []byte) (value interface{}, err error) {
	var (
		entry            *entryStruct
		entryAsInterface interface{}
		ok               bool
		shard            *shardStruct
	)

	shard = cache.shardForKey(key)

	shard.Lock()

	entryAsInterface, ok = shard.lru.Get(string(key))
	if !ok {
		shard.Unlock()
		err = blunder.NewError(blunder.NotFoundError, "kvcache.Get() key not present")
		return
	}

	entry = entryAsInterface.(*entryStruct)

	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		_ = shard.lru.Remove(string(key))
		shard.Unlock()
		err = blunder.NewError(blunder.NotFoundError, "kvcache.Get() key expired")
		return
	}

	value = entry.value
	shard.Unlock()

	err = nil
	return
}

// Insert adds (or replaces) the value stored under key. size is the number
// of bytes the value is accounted as against the cache's byte budget. A
// non-zero ttl is an eviction hint: once it elapses the entry reads as not
// present. If ownsCopy is false and value is a []byte, the cache stores its
// own copy so the caller remains free to reuse the slice.
func (cache *CacheStruct) Insert(key []byte, value interface{}, size uint64, ttl time.Duration, ownsCopy bool) (err error) {
	var (
		entry      *entryStruct
		shard      *shardStruct
		valueAsBuf []byte
		valueCopy  []byte
		ok         bool
	)

	shard = cache.shardForKey(key)

	if !ownsCopy {
		valueAsBuf, ok = value.([]byte)
		if ok {
			valueCopy = make([]byte, len(valueAsBuf))
			copy(valueCopy, valueAsBuf)
			value = valueCopy
		}
	}

	entry = &entryStruct{
		value: value,
		size:  size,
	}
	if 0 != ttl {
		entry.expiresAt = time.Now().Add(ttl)
	}

	shard.Lock()

	// Replacing an existing entry must not double-count its bytes
	_ = shard.lru.Remove(string(key))

	_ = shard.lru.Add(string(key), entry)
	shard.bytesUsed += size

	for shard.bytesUsed > shard.byteBudget {
		_, _, ok = shard.lru.RemoveOldest()
		if !ok {
			break
		}
	}

	shard.Unlock()

	err = nil
	return
}

// Delete removes the value stored under key, if any.
func (cache *CacheStruct) Delete(key []byte) {
	var (
		shard *shardStruct
	)

	shard = cache.shardForKey(key)

	shard.Lock()
	_ = shard.lru.Remove(string(key))
	shard.Unlock()
}

// Len returns the number of entries currently cached (including any expired
// entries not yet purged).
func (cache *CacheStruct) Len() (numEntries int) {
	var (
		shard *shardStruct
	)

	for _, shard = range cache.shards {
		shard.Lock()
		numEntries += shard.lru.Len()
		shard.Unlock()
	}

	return
}

// BytesUsed returns the number of value bytes currently accounted for.
func (cache *CacheStruct) BytesUsed() (bytesUsed uint64) {
	var (
		shard *shardStruct
	)

	for _, shard = range cache.shards {
		shard.Lock()
		bytesUsed += shard.bytesUsed
		shard.Unlock()
	}

	return
}
