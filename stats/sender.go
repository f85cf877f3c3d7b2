package stats

import (
	"fmt"
	"net"
	"time"
)

type statNameValue struct {
	name  *string
	value uint64
}

// sendToSender forwards an increment to the sender daemon, if one is running.
// The send is non-blocking; if the channel is full the increment is only
// reflected in the in-memory accumulator (statsd counters are best-effort).
func sendToSender(statName *string, incBy uint64) {
	var (
		statChan chan statNameValue
	)

	globals.Lock()
	statChan = globals.statChan
	globals.Unlock()

	if nil == statChan {
		return
	}

	select {
	case statChan <- statNameValue{name: statName, value: incBy}:
	default:
	}
}

// senderDaemon batches increments and writes statsd-format lines
// ("<name>:<value>|c") to the configured UDP sink. Batches flush when
// maxLatency elapses or the pending map reaches bufferLength entries.
func senderDaemon(udpConn *net.UDPConn, statChan chan statNameValue, stopChan chan struct{}, doneChan chan struct{}, bufferLength uint64, maxLatency time.Duration) {
	var (
		flushTimer *time.Timer
		pending    map[*string]uint64
		stat       statNameValue
	)

	pending = make(map[*string]uint64)
	flushTimer = time.NewTimer(maxLatency)

	flush := func() {
		for statName, statValue := range pending {
			_, _ = udpConn.Write([]byte(fmt.Sprintf("%s:%d|c\n", *statName, statValue)))
			delete(pending, statName)
		}
	}

	for {
		select {
		case stat = <-statChan:
			pending[stat.name] += stat.value
			if uint64(len(pending)) >= bufferLength {
				flush()
				if !flushTimer.Stop() {
					select {
					case <-flushTimer.C:
					default:
					}
				}
				flushTimer.Reset(maxLatency)
			}
		case <-flushTimer.C:
			flush()
			flushTimer.Reset(maxLatency)
		case <-stopChan:
			// Drain anything already queued, flush, and exit
			for {
				select {
				case stat = <-statChan:
					pending[stat.name] += stat.value
				default:
					flush()
					flushTimer.Stop()
					_ = udpConn.Close()
					close(doneChan)
					return
				}
			}
		}
	}
}
