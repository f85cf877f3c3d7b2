package objstore

import (
	"bytes"
	"container/list"
	"fmt"
	"io"
	"io/ioutil"
	"mime"
	"mime/multipart"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/swiftstack/pfsreader/blunder"
	"github.com/swiftstack/pfsreader/stats"
)

func acquireConnection() (connection *ConnectionStruct, err error) {
	var (
		cv         *sync.Cond
		wasStalled bool
	)

	wasStalled = false

	globals.connectionPool.Lock()

	for {
		if globals.connectionPool.poolInUse < globals.connectionPool.poolCapacity {
			break
		}

		wasStalled = true

		globals.connectionPool.numWaiters++

		// Wait for a connection to be released before retrying
		cv = sync.NewCond(&globals.connectionPool)
		_ = globals.connectionPool.waiters.PushBack(cv)
		cv.Wait()

		globals.connectionPool.numWaiters--
	}

	globals.connectionPool.poolInUse++

	if 0 < globals.connectionPool.lifoIndex {
		globals.connectionPool.lifoIndex--
		connection = globals.connectionPool.lifoOfAvailableConnections[globals.connectionPool.lifoIndex]
		globals.connectionPool.lifoOfAvailableConnections[globals.connectionPool.lifoIndex] = nil
	}

	globals.connectionPool.Unlock()

	if wasStalled {
		stats.IncrementOperations(&stats.StoreConnPoolWaitOps)
	}

	if nil == connection {
		connection, err = openConnection()
		if nil != err {
			// Give the pool slot back; nothing was handed out
			releasePoolSlot()
			connection = nil
			return
		}
	}

	err = nil
	return
}

func releaseConnection(connection *ConnectionStruct, keepAlive bool) {
	var (
		connectionToBeClosed bool
		cv                   *sync.Cond
		waiter               *list.Element
	)

	connectionToBeClosed = false

	globals.connectionPool.Lock()

	globals.connectionPool.poolInUse--

	if keepAlive && !connection.broken {
		globals.connectionPool.lifoOfAvailableConnections[globals.connectionPool.lifoIndex] = connection
		globals.connectionPool.lifoIndex++
	} else {
		connectionToBeClosed = true
	}

	if 0 < globals.connectionPool.waiters.Len() {
		waiter = globals.connectionPool.waiters.Front()
		cv = waiter.Value.(*sync.Cond)
		_ = globals.connectionPool.waiters.Remove(waiter)
		cv.Signal()
	}

	globals.connectionPool.Unlock()

	if connectionToBeClosed {
		_ = connection.tcpConn.Close()
	}
}

// releasePoolSlot undoes the poolInUse increment of an acquireConnection()
// that failed to produce a connection.
func releasePoolSlot() {
	var (
		cv     *sync.Cond
		waiter *list.Element
	)

	globals.connectionPool.Lock()

	globals.connectionPool.poolInUse--

	if 0 < globals.connectionPool.waiters.Len() {
		waiter = globals.connectionPool.waiters.Front()
		cv = waiter.Value.(*sync.Cond)
		_ = globals.connectionPool.waiters.Remove(waiter)
		cv.Signal()
	}

	globals.connectionPool.Unlock()
}

func openConnection() (connection *ConnectionStruct, err error) {
	var (
		tcpConn *net.TCPConn
	)

	tcpConn, err = net.DialTCP("tcp", nil, globals.storeTCPAddr)
	if nil != err {
		err = blunder.AddError(
			fmt.Errorf("objstore.openConnection() cannot connect to object store at %s: %v", globals.storeStringAddr, err),
			blunder.IOError)
		return
	}

	connection = &ConnectionStruct{tcpConn: tcpConn, broken: false}

	err = nil
	return
}

func issueGetRequest(connection *ConnectionStruct, objectPath string, ranges []*RangeStruct) (err error) {
	var (
		getRange   *RangeStruct
		headers    map[string][]string
		rangeSpec  bytes.Buffer
		rangeIndex int
	)

	_, _ = rangeSpec.WriteString("bytes=")
	for rangeIndex, getRange = range ranges {
		if 0 != rangeIndex {
			_, _ = rangeSpec.WriteString(",")
		}
		// HTTP byte ranges carry an inclusive last-byte position
		_, _ = rangeSpec.WriteString(fmt.Sprintf("%d-%d", getRange.Start, getRange.End-1))
	}

	headers = map[string][]string{
		"Range": {rangeSpec.String()},
	}

	err = writeHTTPRequestLineAndHeaders(connection.tcpConn, "GET", objectPath, headers)
	if nil != err {
		connection.broken = true
		err = blunder.AddError(err, blunder.IOError)
		return
	}

	err = nil
	return
}

func awaitGetResponse(connection *ConnectionStruct, objectPath string, ranges []*RangeStruct) (err error) {
	var (
		body          []byte
		contentLength int
		firstByte     int64
		headers       map[string][]string
		httpStatus    int
	)

	httpStatus, headers, err = readHTTPStatusAndHeaders(connection.tcpConn)
	if nil != err {
		connection.broken = true
		err = blunder.AddError(err, blunder.IOError)
		return
	}

	if !parseConnection(headers) {
		connection.broken = true
	}

	contentLength, err = parseContentLength(headers)
	if nil != err {
		connection.broken = true
		err = blunder.AddError(err, blunder.IOError)
		return
	}

	body, err = readBytesFromTCPConn(connection.tcpConn, contentLength)
	if nil != err {
		connection.broken = true
		err = blunder.AddError(err, blunder.IOError)
		return
	}

	if httpStatusIsError(httpStatus) {
		err = httpStatusToError(httpStatus, objectPath)
		return
	}

	switch httpStatus {
	case 206:
		if isMultipartByteranges(headers) {
			err = fillRangesFromMultipartBody(headers, body, ranges)
			if nil != err {
				// The response framing couldn't be trusted, so neither can
				// anything else queued behind it on this connection
				connection.broken = true
				return
			}
		} else {
			firstByte, _, _, err = parseContentRange(headers)
			if nil != err {
				connection.broken = true
				err = blunder.AddError(err, blunder.IOError)
				return
			}
			fillRangesFromSpan(ranges, uint64(firstByte), body)
		}
	case 200:
		// Whole-object response; each range takes its slice of the body
		fillRangesFromSpan(ranges, 0, body)
	default:
		connection.broken = true
		err = blunder.NewError(blunder.IOError, "objstore GET %s returned unexpected HTTP status %d", objectPath, httpStatus)
		return
	}

	err = nil
	return
}

// fillRangesFromSpan copies into each range the overlap between the range and
// the object byte span [spanStart, spanStart+len(spanBody)), advancing the
// range's DataSize by the bytes filled from its start.
func fillRangesFromSpan(ranges []*RangeStruct, spanStart uint64, spanBody []byte) {
	var (
		getRange *RangeStruct
		ovEnd    uint64
		ovStart  uint64
		spanEnd  uint64
	)

	spanEnd = spanStart + uint64(len(spanBody))

	for _, getRange = range ranges {
		ovStart = getRange.Start
		if spanStart > ovStart {
			ovStart = spanStart
		}
		ovEnd = getRange.End
		if spanEnd < ovEnd {
			ovEnd = spanEnd
		}

		if ovStart >= ovEnd {
			continue
		}

		copy(getRange.Data[ovStart-getRange.Start:], spanBody[ovStart-spanStart:ovEnd-spanStart])

		if (ovStart == getRange.Start) && (ovEnd-getRange.Start > getRange.DataSize) {
			getRange.DataSize = ovEnd - getRange.Start
		}
	}
}

func isMultipartByteranges(headers map[string][]string) (isMultipart bool) {
	var (
		contentTypeValues []string
		ok                bool
	)

	contentTypeValues, ok = headers["Content-Type"]
	if !ok || 0 == len(contentTypeValues) {
		isMultipart = false
		return
	}

	isMultipart = strings.HasPrefix(contentTypeValues[0], "multipart/byteranges")
	return
}

func fillRangesFromMultipartBody(headers map[string][]string, body []byte, ranges []*RangeStruct) (err error) {
	var (
		boundary        string
		mediaParams     map[string]string
		multipartReader *multipart.Reader
		ok              bool
		part            *multipart.Part
		partBody        []byte
		partFirstByte   int64
		partHeaders     map[string][]string
	)

	_, mediaParams, err = mime.ParseMediaType(headers["Content-Type"][0])
	if nil != err {
		err = blunder.AddError(
			fmt.Errorf("objstore cannot parse multipart/byteranges Content-Type: %v", err),
			blunder.IOError)
		return
	}

	boundary, ok = mediaParams["boundary"]
	if !ok {
		err = blunder.NewError(blunder.IOError, "objstore multipart/byteranges response carries no boundary")
		return
	}

	multipartReader = multipart.NewReader(bytes.NewReader(body), boundary)

	for {
		part, err = multipartReader.NextPart()
		if io.EOF == err {
			break
		}
		if nil != err {
			err = blunder.AddError(
				fmt.Errorf("objstore cannot parse multipart/byteranges part: %v", err),
				blunder.IOError)
			return
		}

		partHeaders = map[string][]string(part.Header)

		partFirstByte, _, _, err = parseContentRange(partHeaders)
		if nil != err {
			err = blunder.AddError(err, blunder.IOError)
			return
		}

		partBody, err = ioutil.ReadAll(part)
		if nil != err {
			err = blunder.AddError(
				fmt.Errorf("objstore cannot read multipart/byteranges part body: %v", err),
				blunder.IOError)
			return
		}

		fillRangesFromSpan(ranges, uint64(partFirstByte), partBody)
	}

	err = nil
	return
}

func httpStatusIsError(httpStatus int) (isError bool) {
	isError = httpStatus >= 400
	return
}

func httpStatusToError(httpStatus int, objectPath string) (err error) {
	switch httpStatus {
	case 404:
		err = blunder.NewError(blunder.NotFoundError, "objstore GET %s returned HTTP 404", objectPath)
	case 416:
		err = blunder.NewError(blunder.OutOfRangeError, "objstore GET %s returned HTTP 416", objectPath)
	default:
		err = blunder.NewError(blunder.BadHTTPGetError, "objstore GET %s returned HTTP status %d", objectPath, httpStatus)
	}
	return
}

func writeBytesToTCPConn(tcpConn net.Conn, buf []byte) (err error) {
	var (
		bufPos  = int(0)
		written int
	)

	for bufPos < len(buf) {
		written, err = tcpConn.Write(buf[bufPos:])
		if nil != err {
			return
		}

		bufPos += written
	}

	err = nil
	return
}

func writeHTTPRequestLineAndHeaders(tcpConn net.Conn, method string, path string, headers map[string][]string) (err error) {
	var (
		bytesBuffer      bytes.Buffer
		headerName       string
		headerValue      string
		headerValueIndex int
		headerValues     []string
	)

	_, _ = bytesBuffer.WriteString(method + " " + path + " HTTP/1.1\r\n")

	_, _ = bytesBuffer.WriteString("Host: " + globals.storeStringAddr + "\r\n")
	_, _ = bytesBuffer.WriteString("User-Agent: pfsreader\r\n")

	for headerName, headerValues = range headers {
		_, _ = bytesBuffer.WriteString(headerName + ": ")
		for headerValueIndex, headerValue = range headerValues {
			if 0 == headerValueIndex {
				_, _ = bytesBuffer.WriteString(headerValue)
			} else {
				_, _ = bytesBuffer.WriteString(", " + headerValue)
			}
		}
		_, _ = bytesBuffer.WriteString("\r\n")
	}

	_, _ = bytesBuffer.WriteString("\r\n")

	err = writeBytesToTCPConn(tcpConn, bytesBuffer.Bytes())

	return
}

func readByteFromTCPConn(tcpConn net.Conn) (b byte, err error) {
	var (
		numBytesRead int
		oneByteBuf   = []byte{byte(0)}
	)

	for {
		numBytesRead, err = tcpConn.Read(oneByteBuf)
		if nil != err {
			return
		}

		if 1 == numBytesRead {
			b = oneByteBuf[0]
			err = nil
			return
		}
	}
}

func readBytesFromTCPConn(tcpConn net.Conn, bufLen int) (buf []byte, err error) {
	var (
		bufPos       = int(0)
		numBytesRead int
	)

	buf = make([]byte, bufLen)

	for bufPos < bufLen {
		numBytesRead, err = tcpConn.Read(buf[bufPos:])
		if nil != err {
			return
		}

		bufPos += numBytesRead
	}

	err = nil
	return
}

func readHTTPLineCRLF(tcpConn net.Conn) (line string, err error) {
	var (
		b           byte
		bytesBuffer bytes.Buffer
	)

	for {
		b, err = readByteFromTCPConn(tcpConn)
		if nil != err {
			return
		}

		if '\r' == b {
			b, err = readByteFromTCPConn(tcpConn)
			if nil != err {
				return
			}

			if '\n' != b {
				err = fmt.Errorf("readHTTPLineCRLF() expected '\\n' after '\\r' to terminate line")
				return
			}

			line = bytesBuffer.String()
			err = nil
			return
		}

		err = bytesBuffer.WriteByte(b)
		if nil != err {
			return
		}
	}
}

func readHTTPStatusAndHeaders(tcpConn net.Conn) (httpStatus int, headers map[string][]string, err error) {
	var (
		colonSplit []string
		line       string
	)

	line, err = readHTTPLineCRLF(tcpConn)
	if nil != err {
		return
	}

	if len(line) < len("HTTP/1.1 XXX") {
		err = fmt.Errorf("readHTTPStatusAndHeaders() expected StatusLine beginning with \"HTTP/1.1 XXX\"")
		return
	}

	if !strings.HasPrefix(line, "HTTP/1.1 ") {
		err = fmt.Errorf("readHTTPStatusAndHeaders() expected StatusLine beginning with \"HTTP/1.1 XXX\"")
		return
	}

	httpStatus, err = strconv.Atoi(line[len("HTTP/1.1 ") : len("HTTP/1.1 ")+len("XXX")])
	if nil != err {
		return
	}

	headers = make(map[string][]string)

	for {
		line, err = readHTTPLineCRLF(tcpConn)
		if nil != err {
			return
		}

		if 0 == len(line) {
			return
		}

		colonSplit = strings.SplitN(line, ":", 2)
		if 2 != len(colonSplit) {
			err = fmt.Errorf("readHTTPStatusAndHeaders() expected HeaderLine")
			return
		}

		headers[colonSplit[0]] = append(headers[colonSplit[0]], strings.TrimSpace(colonSplit[1]))
	}
}

func parseContentRange(headers map[string][]string) (firstByte int64, lastByte int64, objectSize int64, err error) {
	// A Content-Range header is of the form "bytes a-b/n", where a, b, and
	// n are all non-negative integers (n may also be "*")
	bytesPrefix := "bytes "

	values, ok := headers["Content-Range"]
	if !ok {
		err = fmt.Errorf("Content-Range header not present")
		return
	} else if ok && 1 != len(values) {
		err = fmt.Errorf("expected only one value for Content-Range header")
		return
	}

	if !strings.HasPrefix(values[0], bytesPrefix) {
		err = fmt.Errorf("malformed Content-Range header (doesn't start with %v)", bytesPrefix)
		return
	}

	parts := strings.SplitN(values[0][len(bytesPrefix):], "/", 2)
	if len(parts) != 2 {
		err = fmt.Errorf("malformed Content-Range header (no slash)")
		return
	}

	byteIndices := strings.SplitN(parts[0], "-", 2)
	if len(byteIndices) != 2 {
		err = fmt.Errorf("malformed Content-Range header (no dash)")
		return
	}

	firstByte, err = strconv.ParseInt(byteIndices[0], 10, 64)
	if err != nil {
		return
	}

	lastByte, err = strconv.ParseInt(byteIndices[1], 10, 64)
	if err != nil {
		return
	}

	if "*" == parts[1] {
		objectSize = -1
	} else {
		objectSize, err = strconv.ParseInt(parts[1], 10, 64)
	}
	return
}

func parseContentLength(headers map[string][]string) (contentLength int, err error) {
	var (
		contentLengthAsValues []string
		ok                    bool
	)

	contentLengthAsValues, ok = headers["Content-Length"]

	if ok {
		if 1 != len(contentLengthAsValues) {
			err = fmt.Errorf("parseContentLength() expected Content-Length HeaderLine with single value")
			return
		}

		contentLength, err = strconv.Atoi(contentLengthAsValues[0])
		if nil != err {
			err = fmt.Errorf("parseContentLength() could not parse Content-Length HeaderLine value: \"%s\"", contentLengthAsValues[0])
			return
		}

		if 0 > contentLength {
			err = fmt.Errorf("parseContentLength() could not parse Content-Length HeaderLine value: \"%s\"", contentLengthAsValues[0])
			return
		}
	} else {
		contentLength = 0
	}

	return
}

func parseConnection(headers map[string][]string) (connectionStillOpen bool) {
	var (
		connectionAsValues []string
		ok                 bool
	)

	connectionAsValues, ok = headers["Connection"]
	if !ok {
		connectionStillOpen = true
		return
	}

	if 1 != len(connectionAsValues) {
		connectionStillOpen = true
		return
	}

	if "close" == strings.ToLower(connectionAsValues[0]) {
		connectionStillOpen = false
	} else {
		connectionStillOpen = true
	}

	return
}
