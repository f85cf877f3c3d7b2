package read

import (
	"encoding/binary"
)

// The three caching strategies share one cache instance, so their key
// layouts must never collide. The layouts below have pairwise distinct
// lengths (8, 16, and 17 bytes), which keeps the namespaces disjoint
// without a discriminator byte.
//
// Keys are built into freshly allocated scratch per call; nothing here is
// shared state.

// readPlanCacheKey keys a cached whole-file read plan.
func readPlanCacheKey(inodeNumber uint64) (key []byte) {
	key = make([]byte, 8)
	binary.LittleEndian.PutUint64(key[0:8], inodeNumber)
	return
}

// segCacheKey keys one cache line of one log segment object.
func segCacheKey(segNumber uint64, objectNumber uint64) (key []byte) {
	key = make([]byte, 16)
	binary.LittleEndian.PutUint64(key[0:8], segNumber)
	binary.LittleEndian.PutUint64(key[8:16], objectNumber)
	return
}

// fileCacheKey keys one cache line of a file's logical bytes, or, with
// isSize set, the file's cached size.
func fileCacheKey(inodeNumber uint64, segNumber uint64, isSize bool) (key []byte) {
	key = make([]byte, 17)
	binary.LittleEndian.PutUint64(key[0:8], inodeNumber)
	binary.LittleEndian.PutUint64(key[8:16], segNumber)
	if isSize {
		key[16] = 1
	}
	return
}
