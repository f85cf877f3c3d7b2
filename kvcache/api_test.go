package kvcache

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/swiftstack/pfsreader/blunder"
)

func TestBasicInsertGetDelete(t *testing.T) {
	var (
		cache *CacheStruct
		err   error
		value interface{}
	)

	cache, err = NewCache(1024, 4)
	if nil != err {
		t.Fatalf("NewCache() failed: %v", err)
	}

	_, err = cache.Get([]byte("missing"))
	if nil == err {
		t.Fatalf("Get() of missing key unexpectedly succeeded")
	}
	if !blunder.Is(err, blunder.NotFoundError) {
		t.Fatalf("Get() of missing key returned errno %v", blunder.Errno(err))
	}

	err = cache.Insert([]byte("key1"), []byte("value1"), 6, 0, true)
	if nil != err {
		t.Fatalf("Insert() failed: %v", err)
	}

	value, err = cache.Get([]byte("key1"))
	if nil != err {
		t.Fatalf("Get() failed: %v", err)
	}
	if !bytes.Equal([]byte("value1"), value.([]byte)) {
		t.Fatalf("Get() returned %v", value)
	}

	if 6 != cache.BytesUsed() {
		t.Fatalf("BytesUsed() returned %v (expected 6)", cache.BytesUsed())
	}

	// Replacing a key must not double count its bytes
	err = cache.Insert([]byte("key1"), []byte("value2"), 6, 0, true)
	if nil != err {
		t.Fatalf("Insert() failed: %v", err)
	}
	if 6 != cache.BytesUsed() {
		t.Fatalf("BytesUsed() returned %v after replacement (expected 6)", cache.BytesUsed())
	}

	cache.Delete([]byte("key1"))

	_, err = cache.Get([]byte("key1"))
	if nil == err {
		t.Fatalf("Get() of deleted key unexpectedly succeeded")
	}
	if 0 != cache.BytesUsed() {
		t.Fatalf("BytesUsed() returned %v after delete (expected 0)", cache.BytesUsed())
	}
}

func TestCallerRetainsBuffer(t *testing.T) {
	var (
		cache     *CacheStruct
		callerBuf []byte
		err       error
		value     interface{}
	)

	cache, err = NewCache(1024, 1)
	if nil != err {
		t.Fatalf("NewCache() failed: %v", err)
	}

	callerBuf = []byte("original")

	// ownsCopy == false means the cache must defend itself with its own copy
	err = cache.Insert([]byte("key"), callerBuf, uint64(len(callerBuf)), 0, false)
	if nil != err {
		t.Fatalf("Insert() failed: %v", err)
	}

	copy(callerBuf, "SCRIBBLE")

	value, err = cache.Get([]byte("key"))
	if nil != err {
		t.Fatalf("Get() failed: %v", err)
	}
	if !bytes.Equal([]byte("original"), value.([]byte)) {
		t.Fatalf("Get() returned \"%s\" after caller scribbled on its buffer", value.([]byte))
	}
}

func TestTTLExpiry(t *testing.T) {
	var (
		cache *CacheStruct
		err   error
	)

	cache, err = NewCache(1024, 1)
	if nil != err {
		t.Fatalf("NewCache() failed: %v", err)
	}

	err = cache.Insert([]byte("key"), []byte("value"), 5, 10*time.Millisecond, true)
	if nil != err {
		t.Fatalf("Insert() failed: %v", err)
	}

	_, err = cache.Get([]byte("key"))
	if nil != err {
		t.Fatalf("Get() before expiry failed: %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	_, err = cache.Get([]byte("key"))
	if nil == err {
		t.Fatalf("Get() after expiry unexpectedly succeeded")
	}
	if !blunder.Is(err, blunder.NotFoundError) {
		t.Fatalf("Get() after expiry returned errno %v", blunder.Errno(err))
	}
}

func TestByteBudgetEviction(t *testing.T) {
	var (
		cache    *CacheStruct
		err      error
		keyIndex int
	)

	// Single shard with a 100 byte budget; each insert accounts 10 bytes
	cache, err = NewCache(100, 1)
	if nil != err {
		t.Fatalf("NewCache() failed: %v", err)
	}

	for keyIndex = 0; keyIndex < 20; keyIndex++ {
		err = cache.Insert([]byte(fmt.Sprintf("key%02d", keyIndex)), make([]byte, 10), 10, 0, true)
		if nil != err {
			t.Fatalf("Insert() failed: %v", err)
		}

		if cache.BytesUsed() > 100 {
			t.Fatalf("BytesUsed() (%v) exceeded the byte budget after %v inserts", cache.BytesUsed(), keyIndex+1)
		}
	}

	// The oldest entries must have been evicted to stay within budget
	_, err = cache.Get([]byte("key00"))
	if nil == err {
		t.Fatalf("Get() of oldest entry unexpectedly succeeded after eviction")
	}

	_, err = cache.Get([]byte("key19"))
	if nil != err {
		t.Fatalf("Get() of newest entry failed: %v", err)
	}
}

func TestDistinctKeyLayoutsDoNotCollide(t *testing.T) {
	var (
		cache    *CacheStruct
		err      error
		key8     []byte
		key16    []byte
		key17    []byte
		value    interface{}
	)

	cache, err = NewCache(1024, 4)
	if nil != err {
		t.Fatalf("NewCache() failed: %v", err)
	}

	// The read path's three key namespaces differ only in length; a shared
	// prefix must not alias
	key8 = []byte{1, 0, 0, 0, 0, 0, 0, 0}
	key16 = append(append([]byte{}, key8...), []byte{0, 0, 0, 0, 0, 0, 0, 0}...)
	key17 = append(append([]byte{}, key16...), 1)

	err = cache.Insert(key8, "plan", 4, 0, true)
	if nil != err {
		t.Fatalf("Insert() failed: %v", err)
	}
	err = cache.Insert(key16, "segment", 7, 0, true)
	if nil != err {
		t.Fatalf("Insert() failed: %v", err)
	}
	err = cache.Insert(key17, "filesize", 8, 0, true)
	if nil != err {
		t.Fatalf("Insert() failed: %v", err)
	}

	value, err = cache.Get(key8)
	if (nil != err) || ("plan" != value.(string)) {
		t.Fatalf("Get(key8) returned (%v, %v)", value, err)
	}
	value, err = cache.Get(key16)
	if (nil != err) || ("segment" != value.(string)) {
		t.Fatalf("Get(key16) returned (%v, %v)", value, err)
	}
	value, err = cache.Get(key17)
	if (nil != err) || ("filesize" != value.(string)) {
		t.Fatalf("Get(key17) returned (%v, %v)", value, err)
	}
}
