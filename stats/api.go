// Package stats provides a simple statsd client API.
//
// Counters are always accumulated in memory (see Dump(), used by tests and
// the surrounding process); if a [Stats] sink is configured via Up(), each
// increment is also forwarded to statsd over UDP.
package stats

// Counter names for the read path. Callers pass a pointer to one of these to
// the Increment* APIs (matching the statsd line emitted for it).
var (
	ReadNoCacheOps   = "pfsreader.read.no-cache.operations"
	ReadSegCacheOps  = "pfsreader.read.seg-cache.operations"
	ReadFileCacheOps = "pfsreader.read.file-cache.operations"

	ReadPlanFetchOps = "pfsreader.planclient.readplan.operations"
	ReadPlanBytes    = "pfsreader.planclient.readplan.bytes"

	PlanCacheHits   = "pfsreader.cache.plan.hits"
	PlanCacheMisses = "pfsreader.cache.plan.misses"
	SegCacheHits    = "pfsreader.cache.segment.hits"
	SegCacheMisses  = "pfsreader.cache.segment.misses"
	FileCacheHits   = "pfsreader.cache.file.hits"
	FileCacheMisses = "pfsreader.cache.file.misses"

	SegCacheStaleRetryOps = "pfsreader.read.seg-cache.stale-retry.operations"

	StoreObjGetOps             = "pfsreader.store.object.get.operations"
	StoreObjGetBytes           = "pfsreader.store.object.get.bytes"
	StoreObjGetRetryOps        = "pfsreader.store.object.get.retry.operations"
	StoreObjGetRetrySuccessOps = "pfsreader.store.object.get.retry.success.operations"
	StoreConnPoolWaitOps       = "pfsreader.store.connection-pool.wait.operations"
)

// IncrementOperations accumulates an increment of 1 for the named stat.
func IncrementOperations(statName *string) {
	incrementOperationsBy(statName, 1)
}

// IncrementOperationsBy accumulates an increment of incBy for the named stat.
func IncrementOperationsBy(statName *string, incBy uint64) {
	incrementOperationsBy(statName, incBy)
}

// Dump returns a map of all accumulated stats since process start.
//
//	Key   is a string containing the name of the stat
//	Value is the accumulation of all increments for the stat since process start
func Dump() (statMap map[string]uint64) {
	statMap = dump()
	return
}
