// Package objstore provides ranged GET access to the backing object store
// over a bounded pool of raw TCP connections.
//
// A GET for an object accepts a list of byte ranges (a scatter-read); the
// response payload is copied directly into each range's pre-positioned
// destination slice. Issuing a request and awaiting its response are
// separate operations so that a caller fetching several objects can have
// all of the GETs in flight at once, one per pooled connection, before
// collecting any response.
package objstore

import (
	"fmt"
	"net"

	"github.com/swiftstack/pfsreader/blunder"
	"github.com/swiftstack/pfsreader/stats"
)

// RangeStruct names one object-relative byte range and the destination its
// payload bytes are copied to. End is exclusive. Data must have length
// (End - Start). DataSize is set by AwaitGetResponse() to the number of
// bytes actually filled (it is less than End - Start when the range runs
// past the end of the object).
type RangeStruct struct {
	Start    uint64
	End      uint64
	Data     []byte
	DataSize uint64
}

// ConnectionStruct is an exclusively held connection to the object store,
// obtained from AcquireConnection() and returned via ReleaseConnection().
type ConnectionStruct struct {
	tcpConn net.Conn
	broken  bool // once true, the connection must not be pooled for reuse
}

// AcquireConnection obtains a pooled connection to the object store,
// blocking while the pool is exhausted.
func AcquireConnection() (connection *ConnectionStruct, err error) {
	connection, err = acquireConnection()
	return
}

// ReleaseConnection returns a connection to the pool. If keepAlive is false,
// or the connection saw a request/response error, the underlying socket is
// discarded rather than reused. Every acquired connection must be released
// exactly once, on error paths included, or the pool will leak capacity.
func ReleaseConnection(connection *ConnectionStruct, keepAlive bool) {
	releaseConnection(connection, keepAlive)
}

// IssueGetRequest sends a GET for the named object carrying all of the
// supplied byte ranges on the given connection. The response must later be
// collected with AwaitGetResponse() on the same connection before the
// connection is used for anything else.
func IssueGetRequest(connection *ConnectionStruct, objectPath string, ranges []*RangeStruct) (err error) {
	err = issueGetRequest(connection, objectPath, ranges)
	return
}

// AwaitGetResponse reads the response to the GET previously issued on the
// connection, copying payload bytes into each range's Data slice and setting
// each range's DataSize.
func AwaitGetResponse(connection *ConnectionStruct, objectPath string, ranges []*RangeStruct) (err error) {
	err = awaitGetResponse(connection, objectPath, ranges)
	return
}

// ObjectGetRange fetches a single byte range of the named object, retrying
// retriable transport failures with exponential backoff. The returned buf
// holds the bytes actually present (shorter than length when the range runs
// past the end of the object). A missing object or fully out-of-range
// request is NOT retried; it fails with blunder.NotFoundError or
// blunder.OutOfRangeError so that callers interpreting fetch failure as
// plan staleness see it immediately.
func ObjectGetRange(objectPath string, offset uint64, length uint64) (buf []byte, err error) {
	var (
		getRange *RangeStruct
		opname   string
		retryObj RetryCtrl
		statnm   RetryStatNm
	)

	getRange = &RangeStruct{
		Start: offset,
		End:   offset + length,
		Data:  make([]byte, length),
	}

	request := func() (bool, error) {
		var (
			connection *ConnectionStruct
			reqErr     error
		)

		connection, reqErr = acquireConnection()
		if nil != reqErr {
			return true, reqErr
		}

		reqErr = issueGetRequest(connection, objectPath, []*RangeStruct{getRange})
		if nil == reqErr {
			reqErr = awaitGetResponse(connection, objectPath, []*RangeStruct{getRange})
		}

		releaseConnection(connection, nil == reqErr)

		if nil == reqErr {
			return true, nil
		}
		if blunder.Is(reqErr, blunder.NotFoundError) || blunder.Is(reqErr, blunder.OutOfRangeError) {
			return false, reqErr
		}
		return true, reqErr
	}

	retryObj = NewRetryCtrl(globals.retryLimit, globals.retryDelay, globals.retryExpBackoff)
	opname = fmt.Sprintf("objstore.ObjectGetRange(\"%v\", %v, %v)", objectPath, offset, length)
	statnm = RetryStatNm{
		retryCnt:        &stats.StoreObjGetRetryOps,
		retrySuccessCnt: &stats.StoreObjGetRetrySuccessOps,
	}

	err = retryObj.RequestWithRetry(request, &opname, &statnm)
	if nil != err {
		return
	}

	buf = getRange.Data[:getRange.DataSize]

	stats.IncrementOperations(&stats.StoreObjGetOps)
	stats.IncrementOperationsBy(&stats.StoreObjGetBytes, getRange.DataSize)

	return
}
