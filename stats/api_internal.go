package stats

import (
	"sync"
)

var statsAccumulator struct {
	sync.Mutex
	statMap map[string]uint64
}

func init() {
	statsAccumulator.statMap = make(map[string]uint64)
}

func incrementOperationsBy(statName *string, incBy uint64) {
	statsAccumulator.Lock()
	statsAccumulator.statMap[*statName] += incBy
	statsAccumulator.Unlock()

	sendToSender(statName, incBy)
}

func dump() (statMap map[string]uint64) {
	statsAccumulator.Lock()

	statMap = make(map[string]uint64, len(statsAccumulator.statMap))
	for statName, statValue := range statsAccumulator.statMap {
		statMap[statName] = statValue
	}

	statsAccumulator.Unlock()
	return
}
