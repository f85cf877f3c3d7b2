package planwire

import (
	"fmt"
)

func (ioReqHdr *IOReqHdrStruct) marshalIOReqHdr() (ioReqHdrBuf []byte, err error) {
	var (
		curPos int
	)

	ioReqHdrBuf = make([]byte, IOReqHdrSize)

	curPos = 0

	curPos, err = lePutUint64ToBuf(ioReqHdrBuf, curPos, ioReqHdr.OpType)
	if nil != err {
		return
	}

	curPos, err = lePutUint64ToBuf(ioReqHdrBuf, curPos, ioReqHdr.MountID)
	if nil != err {
		return
	}

	curPos, err = lePutUint64ToBuf(ioReqHdrBuf, curPos, ioReqHdr.InodeNumber)
	if nil != err {
		return
	}

	curPos, err = lePutUint64ToBuf(ioReqHdrBuf, curPos, ioReqHdr.Offset)
	if nil != err {
		return
	}

	_, err = lePutUint64ToBuf(ioReqHdrBuf, curPos, ioReqHdr.Length)
	if nil != err {
		return
	}

	err = nil
	return
}

func unmarshalIOReqHdr(ioReqHdrBuf []byte) (ioReqHdr *IOReqHdrStruct, err error) {
	var (
		curPos int
	)

	ioReqHdr = &IOReqHdrStruct{}

	curPos = 0

	ioReqHdr.OpType, curPos, err = leGetUint64FromBuf(ioReqHdrBuf, curPos)
	if nil != err {
		return
	}

	ioReqHdr.MountID, curPos, err = leGetUint64FromBuf(ioReqHdrBuf, curPos)
	if nil != err {
		return
	}

	ioReqHdr.InodeNumber, curPos, err = leGetUint64FromBuf(ioReqHdrBuf, curPos)
	if nil != err {
		return
	}

	ioReqHdr.Offset, curPos, err = leGetUint64FromBuf(ioReqHdrBuf, curPos)
	if nil != err {
		return
	}

	ioReqHdr.Length, _, err = leGetUint64FromBuf(ioReqHdrBuf, curPos)
	if nil != err {
		return
	}

	err = nil
	return
}

func (ioRespHdr *IORespHdrStruct) marshalIORespHdr() (ioRespHdrBuf []byte, err error) {
	var (
		curPos int
	)

	ioRespHdrBuf = make([]byte, IORespHdrSize)

	curPos = 0

	curPos, err = lePutUint64ToBuf(ioRespHdrBuf, curPos, ioRespHdr.ErrNo)
	if nil != err {
		return
	}

	_, err = lePutUint64ToBuf(ioRespHdrBuf, curPos, ioRespHdr.IOSize)
	if nil != err {
		return
	}

	err = nil
	return
}

func unmarshalIORespHdr(ioRespHdrBuf []byte) (ioRespHdr *IORespHdrStruct, err error) {
	var (
		curPos int
	)

	ioRespHdr = &IORespHdrStruct{}

	curPos = 0

	ioRespHdr.ErrNo, curPos, err = leGetUint64FromBuf(ioRespHdrBuf, curPos)
	if nil != err {
		return
	}

	ioRespHdr.IOSize, _, err = leGetUint64FromBuf(ioRespHdrBuf, curPos)
	if nil != err {
		return
	}

	err = nil
	return
}

func (readPlan *ReadPlanStruct) marshalReadPlan() (readPlanBuf []byte, err error) {
	var (
		curPos        int
		readPlanRange ReadPlanRangeStruct
		totalSize     int
	)

	totalSize = 3 * 8
	for _, readPlanRange = range readPlan.Ranges {
		if BackingTypeHole == readPlanRange.Backing {
			totalSize += 1 + 8 + 8
		} else {
			totalSize += len(readPlanRange.ObjectPath) + 1 + 8 + 8
		}
	}

	readPlanBuf = make([]byte, totalSize)

	curPos = 0

	curPos, err = lePutUint64ToBuf(readPlanBuf, curPos, readPlan.FileSize)
	if nil != err {
		return
	}

	curPos, err = lePutUint64ToBuf(readPlanBuf, curPos, readPlan.ReadPlanSize)
	if nil != err {
		return
	}

	curPos, err = lePutUint64ToBuf(readPlanBuf, curPos, uint64(len(readPlan.Ranges)))
	if nil != err {
		return
	}

	for _, readPlanRange = range readPlan.Ranges {
		if BackingTypeHole == readPlanRange.Backing {
			curPos, err = lePutCStringToBuf(readPlanBuf, curPos, "")
		} else {
			curPos, err = lePutCStringToBuf(readPlanBuf, curPos, readPlanRange.ObjectPath)
		}
		if nil != err {
			return
		}

		curPos, err = lePutUint64ToBuf(readPlanBuf, curPos, readPlanRange.ObjectStart)
		if nil != err {
			return
		}

		curPos, err = lePutUint64ToBuf(readPlanBuf, curPos, readPlanRange.Size)
		if nil != err {
			return
		}
	}

	err = nil
	return
}

func unmarshalReadPlan(readPlanBuf []byte, requestOffset uint64) (readPlan *ReadPlanStruct, err error) {
	var (
		curPos     int
		objectPath string
		rangeCount uint64
		rangeIndex uint64
		runOffset  uint64
	)

	readPlan = &ReadPlanStruct{}

	curPos = 0

	readPlan.FileSize, curPos, err = leGetUint64FromBuf(readPlanBuf, curPos)
	if nil != err {
		return
	}

	readPlan.ReadPlanSize, curPos, err = leGetUint64FromBuf(readPlanBuf, curPos)
	if nil != err {
		return
	}

	rangeCount, curPos, err = leGetUint64FromBuf(readPlanBuf, curPos)
	if nil != err {
		return
	}

	// Each range record is at least 17 bytes (empty path NUL + two uint64's),
	// so a rangeCount the remaining buffer cannot possibly hold is rejected
	// up front rather than allocated for
	if rangeCount > uint64(len(readPlanBuf)-curPos)/17 {
		err = fmt.Errorf("unmarshalReadPlan() rangeCount (%v) overruns %v remaining buf bytes", rangeCount, len(readPlanBuf)-curPos)
		return
	}

	readPlan.Ranges = make([]ReadPlanRangeStruct, rangeCount)

	runOffset = requestOffset

	for rangeIndex = 0; rangeIndex < rangeCount; rangeIndex++ {
		objectPath, curPos, err = leGetCStringFromBuf(readPlanBuf, curPos)
		if nil != err {
			return
		}

		readPlan.Ranges[rangeIndex].ObjectPath = objectPath
		if "" == objectPath {
			readPlan.Ranges[rangeIndex].Backing = BackingTypeHole
		} else {
			readPlan.Ranges[rangeIndex].Backing = BackingTypeObject
		}

		readPlan.Ranges[rangeIndex].ObjectStart, curPos, err = leGetUint64FromBuf(readPlanBuf, curPos)
		if nil != err {
			return
		}

		readPlan.Ranges[rangeIndex].Size, curPos, err = leGetUint64FromBuf(readPlanBuf, curPos)
		if nil != err {
			return
		}

		readPlan.Ranges[rangeIndex].Offset = runOffset
		runOffset += readPlan.Ranges[rangeIndex].Size
	}

	err = nil
	return
}

func leGetUint64FromBuf(buf []byte, curPos int) (u64 uint64, nextPos int, err error) {
	nextPos = curPos + 8

	if nextPos > len(buf) {
		err = fmt.Errorf("insufficient space in buf[curPos:] for uint64")
		return
	}

	u64 = uint64(buf[curPos]) |
		uint64(buf[curPos+1])<<8 |
		uint64(buf[curPos+2])<<16 |
		uint64(buf[curPos+3])<<24 |
		uint64(buf[curPos+4])<<32 |
		uint64(buf[curPos+5])<<40 |
		uint64(buf[curPos+6])<<48 |
		uint64(buf[curPos+7])<<56

	err = nil
	return
}

func lePutUint64ToBuf(buf []byte, curPos int, u64 uint64) (nextPos int, err error) {
	nextPos = curPos + 8

	if nextPos > len(buf) {
		err = fmt.Errorf("insufficient space in buf[curPos:] for uint64")
		return
	}

	buf[curPos] = uint8(u64 & 0xFF)
	buf[curPos+1] = uint8((u64 >> 8) & 0xFF)
	buf[curPos+2] = uint8((u64 >> 16) & 0xFF)
	buf[curPos+3] = uint8((u64 >> 24) & 0xFF)
	buf[curPos+4] = uint8((u64 >> 32) & 0xFF)
	buf[curPos+5] = uint8((u64 >> 40) & 0xFF)
	buf[curPos+6] = uint8((u64 >> 48) & 0xFF)
	buf[curPos+7] = uint8((u64 >> 56) & 0xFF)

	err = nil
	return
}

func leGetCStringFromBuf(buf []byte, curPos int) (s string, nextPos int, err error) {
	var (
		scanPos int
	)

	scanPos = curPos

	for {
		if scanPos >= len(buf) {
			err = fmt.Errorf("no NUL terminator in buf[curPos:] for string")
			return
		}

		if 0 == buf[scanPos] {
			s = string(buf[curPos:scanPos])
			nextPos = scanPos + 1
			err = nil
			return
		}

		scanPos++
	}
}

func lePutCStringToBuf(buf []byte, curPos int, s string) (nextPos int, err error) {
	nextPos = curPos + len(s) + 1

	if nextPos > len(buf) {
		err = fmt.Errorf("insufficient space in buf[curPos:] for string")
		return
	}

	copy(buf[curPos:], s)
	buf[curPos+len(s)] = 0

	err = nil
	return
}
