package stats

import (
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/swiftstack/pfsreader/conf"
)

type globalsStruct struct {
	sync.Mutex
	statChan chan statNameValue
	stopChan chan struct{}
	doneChan chan struct{}
}

var globals globalsStruct

// Up starts the statsd sender daemon from the [Stats] section of confMap:
//
//	IPAddr       - statsd sink address
//	UDPPort      - statsd sink port
//	BufferLength - max distinct pending counters before a flush (default 100)
//	MaxLatency   - max time an increment may wait before a flush (default 1s)
//
// If confMap has no [Stats] section, stats emission is disabled; counters
// are still accumulated for Dump().
func Up(confMap conf.ConfMap) (err error) {
	var (
		bufferLength uint64
		ipAddr       string
		maxLatency   time.Duration
		udpConn      *net.UDPConn
		udpPort      uint16
		udpRAddr     *net.UDPAddr
	)

	ipAddr, err = confMap.FetchOptionValueString("Stats", "IPAddr")
	if nil != err {
		// No [Stats] sink configured
		err = nil
		return
	}

	udpPort, err = confMap.FetchOptionValueUint16("Stats", "UDPPort")
	if nil != err {
		return
	}

	bufferLength, err = confMap.FetchOptionValueUint64("Stats", "BufferLength")
	if nil != err {
		bufferLength = 100
	}

	maxLatency, err = confMap.FetchOptionValueDuration("Stats", "MaxLatency")
	if nil != err {
		maxLatency = time.Second
	}

	udpRAddr, err = net.ResolveUDPAddr("udp", ipAddr+":"+strconv.Itoa(int(udpPort)))
	if nil != err {
		return
	}

	udpConn, err = net.DialUDP("udp", nil, udpRAddr)
	if nil != err {
		return
	}

	globals.Lock()
	globals.statChan = make(chan statNameValue, 1024)
	globals.stopChan = make(chan struct{})
	globals.doneChan = make(chan struct{})
	go senderDaemon(udpConn, globals.statChan, globals.stopChan, globals.doneChan, bufferLength, maxLatency)
	globals.Unlock()

	err = nil
	return
}

// Down stops the statsd sender daemon, if one was started.
func Down() (err error) {
	globals.Lock()
	if nil != globals.statChan {
		close(globals.stopChan)
		<-globals.doneChan
		globals.statChan = nil
		globals.stopChan = nil
		globals.doneChan = nil
	}
	globals.Unlock()

	err = nil
	return
}
