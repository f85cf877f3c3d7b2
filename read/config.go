package read

import (
	"time"

	"github.com/swiftstack/pfsreader/blunder"
	"github.com/swiftstack/pfsreader/conf"
	"github.com/swiftstack/pfsreader/kvcache"
)

type globalsStruct struct {
	readIOType      ReadIOType
	cacheLineSize   uint64
	cache           *kvcache.CacheStruct
	readPlanTTL     time.Duration
	staleRetryLimit uint16
}

var globals globalsStruct

// Up initializes the read path from the [ReadCache] section of confMap:
//
//	ReadIOType      - "no-cache", "seg-cache", or "file-cache" (default "no-cache")
//	CacheLineSize   - bytes cached per line (default 1 MiB)
//	TotalSize       - cache byte budget across all strategies (default 100 MiB)
//	Shards          - number of independently locked cache shards (default 16)
//	ReadPlanTTL     - how long a cached read plan stays usable (default 10s)
//	StaleRetryLimit - max restarts of a read whose plan went stale (default 5)
func Up(confMap conf.ConfMap) (err error) {
	var (
		readIOTypeAsString string
		shards             uint64
		totalSize          uint64
	)

	readIOTypeAsString, err = confMap.FetchOptionValueString("ReadCache", "ReadIOType")
	if nil != err {
		readIOTypeAsString = "no-cache"
	}

	switch readIOTypeAsString {
	case "no-cache":
		globals.readIOType = ReadIOTypeNoCache
	case "seg-cache":
		globals.readIOType = ReadIOTypeSegCache
	case "file-cache":
		globals.readIOType = ReadIOTypeFileCache
	default:
		err = blunder.NewError(blunder.InvalidArgError, "[ReadCache]ReadIOType (\"%s\") must be one of \"no-cache\", \"seg-cache\", or \"file-cache\"", readIOTypeAsString)
		return
	}

	globals.cacheLineSize, err = confMap.FetchOptionValueUint64("ReadCache", "CacheLineSize")
	if nil != err {
		globals.cacheLineSize = 1024 * 1024
	}
	if 0 == globals.cacheLineSize {
		err = blunder.NewError(blunder.InvalidArgError, "[ReadCache]CacheLineSize must be non-zero")
		return
	}

	totalSize, err = confMap.FetchOptionValueUint64("ReadCache", "TotalSize")
	if nil != err {
		totalSize = 100 * 1024 * 1024
	}

	shards, err = confMap.FetchOptionValueUint64("ReadCache", "Shards")
	if nil != err {
		shards = 16
	}

	globals.readPlanTTL, err = confMap.FetchOptionValueDuration("ReadCache", "ReadPlanTTL")
	if nil != err {
		globals.readPlanTTL = 10 * time.Second
	}

	globals.staleRetryLimit, err = confMap.FetchOptionValueUint16("ReadCache", "StaleRetryLimit")
	if nil != err {
		globals.staleRetryLimit = 5
	}

	globals.cache, err = kvcache.NewCache(totalSize, shards)
	if nil != err {
		return
	}

	err = nil
	return
}

// Down releases the read cache.
func Down() (err error) {
	globals.cache = nil
	err = nil
	return
}
