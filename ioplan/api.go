// Package ioplan converts a decoded read plan plus a caller's read request
// into the minimal set of object store GETs needed to satisfy it.
//
// The builder clamps the request to the file size recorded in the plan,
// walks the plan ranges overlapping the clamped request, and groups the
// resulting object byte ranges by object path so each object is fetched over
// a single connection no matter how many plan ranges reference it. Hole
// ranges produce no GET; their destination bytes are zero-filled here.
package ioplan

import (
	"path"
	"strconv"

	"github.com/NVIDIA/sortedmap"

	"github.com/swiftstack/pfsreader/blunder"
	"github.com/swiftstack/pfsreader/objstore"
	"github.com/swiftstack/pfsreader/planwire"
)

// IOObjectStruct names one backing object and every byte range of it this
// I/O plan needs. Connection is assigned by the fetcher for the duration of
// the fetch; it is nil for hole pseudo-objects (Backing ==
// planwire.BackingTypeHole), which require no I/O.
type IOObjectStruct struct {
	Backing      planwire.BackingType
	ObjectPath   string
	ObjectNumber uint64 // parsed from the hex basename of ObjectPath; 0 if unparsable
	Connection   *objstore.ConnectionStruct
	Ranges       []*objstore.RangeStruct
}

// IOPlanStruct is the set of object store reads satisfying one read request.
// Objects preserves first-reference order from the walk of the plan ranges.
// Data is the caller's destination buffer; every object range's Data slice
// aliases a disjoint window of it.
type IOPlanStruct struct {
	TotalSize    uint64 // bytes the request covers after clamping to file size
	Data         []byte
	Objects      []*IOObjectStruct
	objectByPath map[string]*IOObjectStruct
}

// BuildIOPlan computes the I/O plan for reading length bytes at offset from
// the file described by readPlan, with payload bytes landing in data. The
// request is clamped to the file size recorded in the plan: a request at or
// past end of file produces an empty plan with TotalSize zero. An error is
// returned if the plan's ranges do not cover the clamped request, which
// indicates the plan no longer matches the file.
func BuildIOPlan(readPlan *planwire.ReadPlanStruct, offset uint64, length uint64, data []byte) (ioPlan *IOPlanStruct, err error) {
	ioPlan, err = buildIOPlan(readPlan, offset, length, data)
	return
}

type rangeIndexTableStruct struct {
	table sortedmap.LLRBTree
}

func (rangeIndexTable *rangeIndexTableStruct) DumpKey(key sortedmap.Key) (keyAsString string, err error) {
	keyAsString = strconv.FormatUint(key.(uint64), 10)
	err = nil
	return
}

func (rangeIndexTable *rangeIndexTableStruct) DumpValue(value sortedmap.Value) (valueAsString string, err error) {
	valueAsString = strconv.Itoa(value.(int))
	err = nil
	return
}

// newRangeIndexTable indexes readPlan.Ranges by starting logical file offset
// so the range containing an arbitrary offset is found by bisection.
func newRangeIndexTable(readPlan *planwire.ReadPlanStruct) (rangeIndexTable *rangeIndexTableStruct, err error) {
	var (
		ok         bool
		rangeIndex int
	)

	rangeIndexTable = &rangeIndexTableStruct{}
	rangeIndexTable.table = sortedmap.NewLLRBTree(sortedmap.CompareUint64, rangeIndexTable)

	for rangeIndex = range readPlan.Ranges {
		ok, err = rangeIndexTable.table.Put(readPlan.Ranges[rangeIndex].Offset, rangeIndex)
		if nil != err {
			return
		}
		if !ok {
			err = blunder.NewError(blunder.DecodeError, "read plan contains duplicate range offset %d", readPlan.Ranges[rangeIndex].Offset)
			return
		}
	}

	err = nil
	return
}

// bisectRangeIndex returns the index of the last plan range starting at or
// before the given logical file offset.
func (rangeIndexTable *rangeIndexTableStruct) bisectRangeIndex(offset uint64) (rangeIndex int, err error) {
	var (
		found      bool
		ok         bool
		tableIndex int
		value      sortedmap.Value
	)

	tableIndex, found, err = rangeIndexTable.table.BisectLeft(offset)
	if nil != err {
		return
	}
	if !found && (0 > tableIndex) {
		err = blunder.NewError(blunder.IOError, "read plan has no range at or before offset %d", offset)
		return
	}

	_, value, ok, err = rangeIndexTable.table.GetByIndex(tableIndex)
	if nil != err {
		return
	}
	if !ok {
		err = blunder.NewError(blunder.IOError, "read plan range index table missing entry for offset %d", offset)
		return
	}

	rangeIndex = value.(int)

	err = nil
	return
}

func buildIOPlan(readPlan *planwire.ReadPlanStruct, offset uint64, length uint64, data []byte) (ioPlan *IOPlanStruct, err error) {
	var (
		bufIdx          uint64
		curOffset       uint64
		elmCount        uint64
		elmStart        uint64
		planRange       *planwire.ReadPlanRangeStruct
		rangeIndex      int
		rangeIndexTable *rangeIndexTableStruct
		readInRange     uint64
		remaining       uint64
		requestEnd      uint64
	)

	ioPlan = &IOPlanStruct{
		Data:         data,
		Objects:      make([]*IOObjectStruct, 0),
		objectByPath: make(map[string]*IOObjectStruct),
	}

	if offset >= readPlan.FileSize {
		ioPlan.TotalSize = 0
		err = nil
		return
	}

	requestEnd = offset + length
	if requestEnd > readPlan.FileSize {
		requestEnd = readPlan.FileSize
	}

	ioPlan.TotalSize = requestEnd - offset

	if uint64(len(data)) < ioPlan.TotalSize {
		ioPlan = nil
		err = blunder.NewError(blunder.InvalidArgError, "destination buffer (%d bytes) is smaller than the clamped read (%d bytes)", len(data), requestEnd-offset)
		return
	}

	if 0 == ioPlan.TotalSize {
		// Zero-length read below end of file; the daemon hands back a
		// zero-range plan for these, so there is nothing to walk
		err = nil
		return
	}

	rangeIndexTable, err = newRangeIndexTable(readPlan)
	if nil != err {
		ioPlan = nil
		return
	}

	rangeIndex, err = rangeIndexTable.bisectRangeIndex(offset)
	if nil != err {
		ioPlan = nil
		return
	}

	curOffset = offset
	remaining = ioPlan.TotalSize
	bufIdx = 0

	for 0 < remaining {
		if rangeIndex >= len(readPlan.Ranges) {
			ioPlan = nil
			err = blunder.NewError(blunder.IOError, "read plan ranges end at offset %d but the read extends to offset %d", curOffset, requestEnd)
			return
		}

		planRange = &readPlan.Ranges[rangeIndex]

		if (curOffset < planRange.Offset) || (curOffset >= planRange.Offset+planRange.Size) {
			ioPlan = nil
			err = blunder.NewError(blunder.IOError, "read plan range %d [%d,%d) does not contain offset %d", rangeIndex, planRange.Offset, planRange.Offset+planRange.Size, curOffset)
			return
		}

		readInRange = planRange.Size - (curOffset - planRange.Offset)
		elmStart = planRange.ObjectStart + (curOffset - planRange.Offset)

		elmCount = readInRange
		if remaining < elmCount {
			elmCount = remaining
		}

		ioPlan.addRange(planRange, elmStart, elmCount, bufIdx)

		bufIdx += elmCount
		curOffset += elmCount
		remaining -= elmCount
		rangeIndex++
	}

	err = nil
	return
}

// addRange appends the object byte range [elmStart, elmStart+elmCount) of
// planRange's backing object, destined for ioPlan.Data[bufIdx:]. Ranges of
// the same object accumulate on a single IOObjectStruct; holes are
// zero-filled immediately and carry no connection.
func (ioPlan *IOPlanStruct) addRange(planRange *planwire.ReadPlanRangeStruct, elmStart uint64, elmCount uint64, bufIdx uint64) {
	var (
		bufPos    uint64
		getRange  *objstore.RangeStruct
		ioObject  *IOObjectStruct
		ok        bool
	)

	getRange = &objstore.RangeStruct{
		Start: elmStart,
		End:   elmStart + elmCount,
		Data:  ioPlan.Data[bufIdx : bufIdx+elmCount],
	}

	if planwire.BackingTypeHole == planRange.Backing {
		// Holes never reach the object store; the destination buffer may be
		// a reused one, so the zeroes must be written explicitly
		for bufPos = 0; bufPos < elmCount; bufPos++ {
			getRange.Data[bufPos] = 0
		}
		getRange.DataSize = elmCount

		ioObject = &IOObjectStruct{
			Backing:    planwire.BackingTypeHole,
			ObjectPath: "",
			Ranges:     []*objstore.RangeStruct{getRange},
		}
		ioPlan.Objects = append(ioPlan.Objects, ioObject)

		return
	}

	ioObject, ok = ioPlan.objectByPath[planRange.ObjectPath]
	if !ok {
		ioObject = &IOObjectStruct{
			Backing:      planwire.BackingTypeObject,
			ObjectPath:   planRange.ObjectPath,
			ObjectNumber: objectNumberFromPath(planRange.ObjectPath),
			Ranges:       make([]*objstore.RangeStruct, 0, 1),
		}
		ioPlan.objectByPath[planRange.ObjectPath] = ioObject
		ioPlan.Objects = append(ioPlan.Objects, ioObject)
	}

	ioObject.Ranges = append(ioObject.Ranges, getRange)
}

// objectNumberFromPath parses the object number out of an object path whose
// basename is the object number in hexadecimal (e.g.
// "/v1/AUTH_test/cont/00000000000000A7"). An unparsable basename yields 0;
// object numbers only inform cache keying and never address I/O.
func objectNumberFromPath(objectPath string) (objectNumber uint64) {
	var (
		err error
	)

	objectNumber, err = strconv.ParseUint(path.Base(objectPath), 16, 64)
	if nil != err {
		objectNumber = 0
	}

	return
}
