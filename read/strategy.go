package read

import (
	"io"

	"github.com/swiftstack/pfsreader/blunder"
	"github.com/swiftstack/pfsreader/ioplan"
	"github.com/swiftstack/pfsreader/logger"
	"github.com/swiftstack/pfsreader/objstore"
	"github.com/swiftstack/pfsreader/planclient"
	"github.com/swiftstack/pfsreader/planwire"
	"github.com/swiftstack/pfsreader/stats"
)

// isPlanStale reports whether err is the object store telling us the read
// plan no longer matches reality: the object is gone (the file was
// rewritten and its old segments collected) or the requested range fell
// entirely outside it (the object was replaced by a shorter one).
func isPlanStale(err error) bool {
	return blunder.Is(err, blunder.NotFoundError) || blunder.Is(err, blunder.OutOfRangeError)
}

// readNoCache is both the no-cache strategy and the plan-driven fetch
// engine the file-cache strategy builds on. With cacheReadPlan false it
// fetches a plan covering exactly the request and GETs every byte. With
// cacheReadPlan true it instead works from a cached whole-file plan
// (fetching one covering [0, fileSize) on a cache miss); fileSize is only
// meaningful in that mode.
//
// A read whose plan goes stale underneath it is restarted with a fresh
// plan, at most globals.staleRetryLimit times.
func readNoCache(request *ReadRequestStruct, planConn io.ReadWriter, cacheReadPlan bool, fileSize uint64) (outSize uint64, err error) {
	var (
		attempt        uint16
		buildErr       error
		fetchErr       error
		getErr         error
		ioPlan         *ioplan.IOPlanStruct
		planKey        []byte
		readPlan       *planwire.ReadPlanStruct
		usedCachedPlan bool
		value          interface{}
	)

	for attempt = 0; attempt <= globals.staleRetryLimit; attempt++ {
		readPlan = nil
		usedCachedPlan = false

		if cacheReadPlan {
			planKey = readPlanCacheKey(request.InodeNumber)

			value, getErr = globals.cache.Get(planKey)
			if nil == getErr {
				readPlan = value.(*planwire.ReadPlanStruct)
				usedCachedPlan = true
				stats.IncrementOperations(&stats.PlanCacheHits)
			} else {
				if blunder.IsNot(getErr, blunder.NotFoundError) {
					err = getErr
					return
				}

				stats.IncrementOperations(&stats.PlanCacheMisses)

				readPlan, err = planclient.GetReadPlan(planConn, request.Mount.MountID, request.InodeNumber, 0, fileSize)
				if nil != err {
					return
				}

				_ = globals.cache.Insert(planKey, readPlan, readPlan.ReadPlanSize, globals.readPlanTTL, true)
			}
		} else {
			readPlan, err = planclient.GetReadPlan(planConn, request.Mount.MountID, request.InodeNumber, request.Offset, request.Length)
			if nil != err {
				return
			}
		}

		ioPlan, buildErr = ioplan.BuildIOPlan(readPlan, request.Offset, request.Length, request.Data)
		if nil != buildErr {
			if usedCachedPlan {
				// The cached plan may simply be out of date; drop it and
				// rebuild from a fresh one
				globals.cache.Delete(planKey)
				continue
			}
			err = buildErr
			return
		}

		fetchErr = fetchIOPlanData(ioPlan)
		if nil == fetchErr {
			outSize = ioPlan.TotalSize
			err = nil
			return
		}

		if !isPlanStale(fetchErr) {
			err = fetchErr
			return
		}

		logger.WarnfWithError(fetchErr, "read plan for inode %d went stale; restarting (attempt %d)", request.InodeNumber, attempt+1)

		if cacheReadPlan {
			globals.cache.Delete(planKey)
		}
	}

	err = blunder.NewError(blunder.StalePlanError, "read of inode %d kept hitting stale read plans after %d restarts", request.InodeNumber, globals.staleRetryLimit)
	return
}

// readSegCache satisfies reads from cached aligned lines of log segment
// objects, GETting (and caching) any line not already present. Segment
// objects are immutable, so a GET failure means the plan was stale; the
// whole read restarts with a fresh plan, at most globals.staleRetryLimit
// times.
func readSegCache(request *ReadRequestStruct, planConn io.ReadWriter) (outSize uint64, err error) {
	var (
		attempt  uint16
		ioPlan   *ioplan.IOPlanStruct
		readPlan *planwire.ReadPlanStruct
		stale    bool
	)

	for attempt = 0; attempt <= globals.staleRetryLimit; attempt++ {
		readPlan, err = planclient.GetReadPlan(planConn, request.Mount.MountID, request.InodeNumber, request.Offset, request.Length)
		if nil != err {
			return
		}

		ioPlan, err = ioplan.BuildIOPlan(readPlan, request.Offset, request.Length, request.Data)
		if nil != err {
			return
		}

		stale, err = fillFromSegCache(ioPlan)
		if nil != err {
			return
		}

		if !stale {
			outSize = ioPlan.TotalSize
			err = nil
			return
		}

		stats.IncrementOperations(&stats.SegCacheStaleRetryOps)
		logger.Warnf("segment GETs for inode %d hit a stale read plan; restarting (attempt %d)", request.InodeNumber, attempt+1)
	}

	err = blunder.NewError(blunder.StalePlanError, "read of inode %d kept hitting stale read plans after %d restarts", request.InodeNumber, globals.staleRetryLimit)
	return
}

// fillFromSegCache copies every object range of ioPlan out of cached
// segment lines, fetching missing lines from the object store. It returns
// stale == true if any fetch failed in a way that implicates the read plan
// rather than the transport.
func fillFromSegCache(ioPlan *ioplan.IOPlanStruct) (stale bool, err error) {
	var (
		bufOff     uint64
		fetchErr   error
		fillCnt    uint64
		getErr     error
		getRange   *objstore.RangeStruct
		ioObject   *ioplan.IOObjectStruct
		lineData   []byte
		lineKey    []byte
		lineOffset uint64
		off        uint64
		segNumber  uint64
		value      interface{}
	)

	for _, ioObject = range ioPlan.Objects {
		if planwire.BackingTypeHole == ioObject.Backing {
			// Hole bytes were zero-filled when the plan was built
			continue
		}

		for _, getRange = range ioObject.Ranges {
			bufOff = 0

			for off = getRange.Start; off < getRange.End; off, bufOff = off+fillCnt, bufOff+fillCnt {
				segNumber = off / globals.cacheLineSize
				lineKey = segCacheKey(segNumber, ioObject.ObjectNumber)

				value, getErr = globals.cache.Get(lineKey)
				if nil == getErr {
					lineData = value.([]byte)
					stats.IncrementOperations(&stats.SegCacheHits)
				} else {
					if blunder.IsNot(getErr, blunder.NotFoundError) {
						err = getErr
						return
					}

					stats.IncrementOperations(&stats.SegCacheMisses)

					lineData, fetchErr = objstore.ObjectGetRange(ioObject.ObjectPath, segNumber*globals.cacheLineSize, globals.cacheLineSize)
					if nil != fetchErr {
						if isPlanStale(fetchErr) {
							stale = true
							err = nil
							return
						}
						err = fetchErr
						return
					}

					_ = globals.cache.Insert(lineKey, lineData, uint64(len(lineData)), 0, true)
				}

				fillCnt = globals.cacheLineSize - (off % globals.cacheLineSize)
				if fillCnt > getRange.End-off {
					fillCnt = getRange.End - off
				}

				lineOffset = off % globals.cacheLineSize
				if uint64(len(lineData)) < lineOffset+fillCnt {
					// The cached line is shorter than the plan says the
					// object is; the line predates an object rewrite
					globals.cache.Delete(lineKey)
					stale = true
					err = nil
					return
				}

				copy(getRange.Data[bufOff:bufOff+fillCnt], lineData[lineOffset:lineOffset+fillCnt])
			}
		}
	}

	stale = false
	err = nil
	return
}

// readFileCache satisfies reads from cached aligned lines of the file's
// logical bytes. Lines are filled through readNoCache() against the file's
// cached whole-file read plan, so one plan fetch serves many line fills.
// The file size needed to clamp the read comes from the mount's
// StatFetcher and is itself cached.
func readFileCache(request *ReadRequestStruct, planConn io.ReadWriter) (outSize uint64, err error) {
	var (
		bufOff    uint64
		cacheReq  *ReadRequestStruct
		end       uint64
		fileSize  uint64
		fillCnt   uint64
		getErr    error
		lineData  []byte
		lineKey   []byte
		off       uint64
		segNumber uint64
		sizeKey   []byte
		value     interface{}
	)

	if nil == request.Mount.StatFetcher {
		err = blunder.NewError(blunder.InvalidArgError, "file-cache reads require the mount to carry a StatFetcher")
		return
	}

	sizeKey = fileCacheKey(request.InodeNumber, 0, true)

	value, getErr = globals.cache.Get(sizeKey)
	if nil == getErr {
		fileSize = value.(uint64)
	} else {
		if blunder.IsNot(getErr, blunder.NotFoundError) {
			err = getErr
			return
		}

		fileSize, err = request.Mount.StatFetcher.GetStat(request.Mount.MountID, request.InodeNumber)
		if nil != err {
			return
		}

		_ = globals.cache.Insert(sizeKey, fileSize, 8, globals.readPlanTTL, true)
	}

	end = request.Offset + request.Length
	if end > fileSize {
		end = fileSize
	}
	if end <= request.Offset {
		// Read begins at or past end of file
		outSize = 0
		err = nil
		return
	}

	bufOff = 0

	for off = request.Offset; off < end; off, bufOff = off+fillCnt, bufOff+fillCnt {
		fillCnt = globals.cacheLineSize - (off % globals.cacheLineSize)
		if end-off < fillCnt {
			fillCnt = end - off
		}

		segNumber = off / globals.cacheLineSize
		lineKey = fileCacheKey(request.InodeNumber, segNumber, false)

		value, getErr = globals.cache.Get(lineKey)
		if nil == getErr {
			lineData = value.([]byte)
			stats.IncrementOperations(&stats.FileCacheHits)
		} else {
			if blunder.IsNot(getErr, blunder.NotFoundError) {
				err = getErr
				return
			}

			stats.IncrementOperations(&stats.FileCacheMisses)

			cacheReq = &ReadRequestStruct{
				Mount:       request.Mount,
				InodeNumber: request.InodeNumber,
				Offset:      segNumber * globals.cacheLineSize,
				Length:      globals.cacheLineSize,
				Data:        make([]byte, globals.cacheLineSize),
			}

			_, err = readNoCache(cacheReq, planConn, true, fileSize)
			if nil != err {
				return
			}

			lineData = cacheReq.Data

			_ = globals.cache.Insert(lineKey, lineData, globals.cacheLineSize, 0, true)
		}

		if uint64(len(lineData)) < (off%globals.cacheLineSize)+fillCnt {
			err = blunder.NewError(blunder.IOError, "cached file line %d of inode %d is shorter than the read it must satisfy", segNumber, request.InodeNumber)
			return
		}

		copy(request.Data[bufOff:bufOff+fillCnt], lineData[(off%globals.cacheLineSize):(off%globals.cacheLineSize)+fillCnt])
	}

	outSize = end - request.Offset
	err = nil
	return
}
