package objstore

import (
	"container/list"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/swiftstack/pfsreader/conf"
)

type connectionPoolStruct struct {
	sync.Mutex
	poolCapacity               uint16              // max # connections allowed
	poolInUse                  uint16              // active count (i.e. "checked out" via acquireConnection())
	lifoIndex                  uint16              // # of reusable connections in lifoOfAvailableConnections
	lifoOfAvailableConnections []*ConnectionStruct
	numWaiters                 uint64
	waiters                    *list.List          // FIFO of waiting acquireConnection() callers' *sync.Cond's
}

type globalsStruct struct {
	storeStringAddr string
	storeTCPAddr    *net.TCPAddr
	retryLimit      uint16
	retryDelay      time.Duration
	retryExpBackoff float64
	connectionPool  connectionPoolStruct
}

var globals globalsStruct

// Up initializes the object store client from the [ObjectStore] section of
// confMap:
//
//	IPAddr             - object store address
//	TCPPort            - object store port
//	ConnectionPoolSize - max concurrent connections (default 64)
//	RetryLimit         - max retries of a retriable GET failure (default 5)
//	RetryDelay         - delay before first retry (default 1s)
//	RetryExpBackoff    - delay multiplier per subsequent retry (default 1.5)
func Up(confMap conf.ConfMap) (err error) {
	var (
		ipAddr   string
		poolSize uint16
		tcpPort  uint16
	)

	ipAddr, err = confMap.FetchOptionValueString("ObjectStore", "IPAddr")
	if nil != err {
		return
	}

	tcpPort, err = confMap.FetchOptionValueUint16("ObjectStore", "TCPPort")
	if nil != err {
		return
	}

	globals.storeStringAddr = net.JoinHostPort(ipAddr, strconv.Itoa(int(tcpPort)))

	globals.storeTCPAddr, err = net.ResolveTCPAddr("tcp", globals.storeStringAddr)
	if nil != err {
		return
	}

	poolSize, err = confMap.FetchOptionValueUint16("ObjectStore", "ConnectionPoolSize")
	if nil != err {
		poolSize = 64
	}

	globals.retryLimit, err = confMap.FetchOptionValueUint16("ObjectStore", "RetryLimit")
	if nil != err {
		globals.retryLimit = 5
	}

	globals.retryDelay, err = confMap.FetchOptionValueDuration("ObjectStore", "RetryDelay")
	if nil != err {
		globals.retryDelay = time.Second
	}

	globals.retryExpBackoff, err = confMap.FetchOptionValueFloat64("ObjectStore", "RetryExpBackoff")
	if nil != err {
		globals.retryExpBackoff = 1.5
	}

	globals.connectionPool.poolCapacity = poolSize
	globals.connectionPool.poolInUse = 0
	globals.connectionPool.lifoIndex = 0
	globals.connectionPool.lifoOfAvailableConnections = make([]*ConnectionStruct, poolSize)
	globals.connectionPool.numWaiters = 0
	globals.connectionPool.waiters = list.New()

	err = nil
	return
}

// Down drains the connection pool, closing every pooled connection.
func Down() (err error) {
	var (
		connection *ConnectionStruct
	)

	globals.connectionPool.Lock()
	for 0 < globals.connectionPool.lifoIndex {
		globals.connectionPool.lifoIndex--
		connection = globals.connectionPool.lifoOfAvailableConnections[globals.connectionPool.lifoIndex]
		globals.connectionPool.lifoOfAvailableConnections[globals.connectionPool.lifoIndex] = nil
		_ = connection.tcpConn.Close()
	}
	globals.connectionPool.Unlock()

	err = nil
	return
}
