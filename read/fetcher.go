package read

import (
	"github.com/swiftstack/pfsreader/blunder"
	"github.com/swiftstack/pfsreader/ioplan"
	"github.com/swiftstack/pfsreader/objstore"
	"github.com/swiftstack/pfsreader/planwire"
)

// fetchIOPlanData performs the object store I/O of an I/O plan: one
// connection and one scatter GET per distinct object, with every GET issued
// before any response is awaited so the fetches overlap. Hole
// pseudo-objects need no I/O (their bytes were zero-filled at plan build).
//
// Every acquired connection is released exactly once; a connection whose
// request/response cycle did not fully complete is not offered for reuse.
func fetchIOPlanData(ioPlan *ioplan.IOPlanStruct) (err error) {
	var (
		awaited     []bool
		getRange    *objstore.RangeStruct
		ioObject    *ioplan.IOObjectStruct
		issued      []bool
		keepAlive   bool
		objectIndex int
		opErr       error
	)

	issued = make([]bool, len(ioPlan.Objects))
	awaited = make([]bool, len(ioPlan.Objects))

	// Acquire a connection per object up front so that all of the GETs can
	// be in flight at once
	for _, ioObject = range ioPlan.Objects {
		if planwire.BackingTypeHole == ioObject.Backing {
			continue
		}

		ioObject.Connection, err = objstore.AcquireConnection()
		if nil != err {
			break
		}
	}

	if nil == err {
		for objectIndex, ioObject = range ioPlan.Objects {
			if (planwire.BackingTypeHole == ioObject.Backing) || (nil == ioObject.Connection) {
				continue
			}

			opErr = objstore.IssueGetRequest(ioObject.Connection, ioObject.ObjectPath, ioObject.Ranges)
			if nil != opErr {
				err = opErr
				break
			}

			issued[objectIndex] = true
		}
	}

	if nil == err {
		for objectIndex, ioObject = range ioPlan.Objects {
			if !issued[objectIndex] {
				continue
			}

			opErr = objstore.AwaitGetResponse(ioObject.Connection, ioObject.ObjectPath, ioObject.Ranges)
			if nil != opErr {
				err = opErr
				break
			}

			awaited[objectIndex] = true
		}
	}

	for objectIndex, ioObject = range ioPlan.Objects {
		if (planwire.BackingTypeHole == ioObject.Backing) || (nil == ioObject.Connection) {
			continue
		}

		// A connection that was never used, or that completed its full
		// request/response cycle, is safe to reuse; one with a GET issued
		// but never awaited still has response bytes queued on it
		keepAlive = awaited[objectIndex] || !issued[objectIndex]

		objstore.ReleaseConnection(ioObject.Connection, keepAlive)
		ioObject.Connection = nil
	}

	if nil != err {
		return
	}

	// A response shorter than the plan promised means the object was
	// replaced by a smaller one after the plan was issued
	for _, ioObject = range ioPlan.Objects {
		if planwire.BackingTypeHole == ioObject.Backing {
			continue
		}

		for _, getRange = range ioObject.Ranges {
			if getRange.DataSize < (getRange.End - getRange.Start) {
				err = blunder.NewError(blunder.OutOfRangeError, "object %s returned %d of the %d bytes the read plan promised", ioObject.ObjectPath, getRange.DataSize, getRange.End-getRange.Start)
				return
			}
		}
	}

	err = nil
	return
}
