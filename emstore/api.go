// Package emstore provides an emulated object store for testing purposes.
//
// It speaks just enough of the object store's HTTP surface for the read
// path: GET of an object with single or multiple byte ranges (served with
// exact RFC 7233 semantics), 404 for absent objects, and 416 for fully
// unsatisfiable ranges. Objects are loaded and replaced directly through
// the package API rather than over the wire.
package emstore

import (
	"bytes"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/NVIDIA/sortedmap"

	"github.com/swiftstack/pfsreader/conf"
)

type globalsStruct struct {
	sync.RWMutex // protects objectIndex
	objectIndex  sortedmap.LLRBTree
	getCount     uint64 // atomically updated
	httpServer   *http.Server
	listener     net.Listener
	doneChan     chan struct{}
}

var globals globalsStruct

func (dummy *globalsStruct) DumpKey(key sortedmap.Key) (keyAsString string, err error) {
	keyAsString = key.(string)
	err = nil
	return
}

func (dummy *globalsStruct) DumpValue(value sortedmap.Value) (valueAsString string, err error) {
	valueAsString = fmt.Sprintf("[]byte len %d", len(value.([]byte)))
	err = nil
	return
}

// Start launches the emulated object store per the [EmStore] section of
// confMap:
//
//	IPAddr  - address to listen on
//	TCPPort - port to listen on (0 selects an ephemeral port)
func Start(confMap conf.ConfMap) (err error) {
	var (
		ipAddr  string
		tcpPort uint16
	)

	ipAddr, err = confMap.FetchOptionValueString("EmStore", "IPAddr")
	if nil != err {
		return
	}

	tcpPort, err = confMap.FetchOptionValueUint16("EmStore", "TCPPort")
	if nil != err {
		return
	}

	globals.objectIndex = sortedmap.NewLLRBTree(sortedmap.CompareString, &globals)
	globals.getCount = 0

	globals.listener, err = net.Listen("tcp", net.JoinHostPort(ipAddr, strconv.Itoa(int(tcpPort))))
	if nil != err {
		return
	}

	globals.httpServer = &http.Server{Handler: http.HandlerFunc(serveHTTP)}
	globals.doneChan = make(chan struct{})

	go func() {
		_ = globals.httpServer.Serve(globals.listener)
		close(globals.doneChan)
	}()

	err = nil
	return
}

// Stop shuts the emulated object store down.
func Stop() (err error) {
	err = globals.httpServer.Close()
	<-globals.doneChan

	globals.httpServer = nil
	globals.listener = nil
	globals.objectIndex = nil

	return
}

// ServerAddr returns the host:port the emulated store is listening on,
// which reflects the kernel-chosen port when TCPPort was configured as 0.
func ServerAddr() (addr string) {
	addr = globals.listener.Addr().String()
	return
}

// PutObject creates or replaces the object at objectPath.
func PutObject(objectPath string, objectData []byte) (err error) {
	var (
		ok bool
	)

	globals.Lock()
	defer globals.Unlock()

	ok, err = globals.objectIndex.PatchByKey(objectPath, objectData)
	if nil != err {
		return
	}
	if !ok {
		_, err = globals.objectIndex.Put(objectPath, objectData)
		if nil != err {
			return
		}
	}

	err = nil
	return
}

// DeleteObject removes the object at objectPath, if present.
func DeleteObject(objectPath string) (err error) {
	globals.Lock()
	defer globals.Unlock()

	_, err = globals.objectIndex.DeleteByKey(objectPath)
	return
}

// GetObjectRequestCount returns the number of GET requests served since
// Start(), hits and misses both. Tests use it to verify that cached reads
// avoid refetching.
func GetObjectRequestCount() (count uint64) {
	count = atomic.LoadUint64(&globals.getCount)
	return
}

func serveHTTP(responseWriter http.ResponseWriter, request *http.Request) {
	var (
		err        error
		objectData []byte
		ok         bool
		value      sortedmap.Value
	)

	if http.MethodGet != request.Method {
		responseWriter.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	atomic.AddUint64(&globals.getCount, 1)

	globals.RLock()
	value, ok, err = globals.objectIndex.GetByKey(request.URL.Path)
	globals.RUnlock()

	if (nil != err) || !ok {
		responseWriter.WriteHeader(http.StatusNotFound)
		return
	}

	objectData = value.([]byte)

	// ServeContent supplies the byte-range handling (206, multipart
	// byteranges, and 416) the read path exercises
	http.ServeContent(responseWriter, request, "", time.Time{}, bytes.NewReader(objectData))
}
