package stats

import (
	"testing"
)

func TestAccumulation(t *testing.T) {
	var (
		statMap map[string]uint64
	)

	IncrementOperations(&ReadNoCacheOps)
	IncrementOperations(&ReadNoCacheOps)
	IncrementOperationsBy(&StoreObjGetBytes, 4096)

	statMap = Dump()

	if statMap[ReadNoCacheOps] < 2 {
		t.Fatalf("Dump()[%v] was %v (expected at least 2)", ReadNoCacheOps, statMap[ReadNoCacheOps])
	}
	if statMap[StoreObjGetBytes] < 4096 {
		t.Fatalf("Dump()[%v] was %v (expected at least 4096)", StoreObjGetBytes, statMap[StoreObjGetBytes])
	}
}

func TestUpDownWithoutSink(t *testing.T) {
	var (
		err error
	)

	// With no [Stats] section configured, Up() leaves emission disabled
	// and counters still accumulate
	err = Up(nil)
	if nil != err {
		t.Fatalf("Up(nil) failed: %v", err)
	}

	IncrementOperations(&ReadSegCacheOps)

	err = Down()
	if nil != err {
		t.Fatalf("Down() failed: %v", err)
	}
}
