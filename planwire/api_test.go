package planwire

import (
	"bytes"
	"testing"
)

func TestIOReqHdrMarshalUnmarshal(t *testing.T) {
	var (
		err              error
		ioReqHdrIn       *IOReqHdrStruct
		ioReqHdrInBuf    []byte
		ioReqHdrOut      *IOReqHdrStruct
	)

	ioReqHdrIn = &IOReqHdrStruct{
		OpType:      OpTypeReadPlan,
		MountID:     0x1111111111111111,
		InodeNumber: 0x2222222222222222,
		Offset:      0x3333333333333333,
		Length:      0x4444444444444444,
	}

	ioReqHdrInBuf, err = ioReqHdrIn.MarshalIOReqHdr()
	if nil != err {
		t.Fatalf("MarshalIOReqHdr() failed: %v", err)
	}
	if IOReqHdrSize != len(ioReqHdrInBuf) {
		t.Fatalf("MarshalIOReqHdr() returned %v bytes (expected %v)", len(ioReqHdrInBuf), IOReqHdrSize)
	}

	// Fields are serialized LittleEndian in declaration order
	if !bytes.Equal(ioReqHdrInBuf[0:8], []byte{0xE9, 0x03, 0, 0, 0, 0, 0, 0}) {
		t.Fatalf("MarshalIOReqHdr() OpType bytes were %v", ioReqHdrInBuf[0:8])
	}

	ioReqHdrOut, err = UnmarshalIOReqHdr(ioReqHdrInBuf)
	if nil != err {
		t.Fatalf("UnmarshalIOReqHdr() failed: %v", err)
	}
	if *ioReqHdrIn != *ioReqHdrOut {
		t.Fatalf("UnmarshalIOReqHdr() returned %+v (expected %+v)", ioReqHdrOut, ioReqHdrIn)
	}

	_, err = UnmarshalIOReqHdr(ioReqHdrInBuf[:IOReqHdrSize-1])
	if nil == err {
		t.Fatalf("UnmarshalIOReqHdr() of truncated buf unexpectedly succeeded")
	}
}

func TestIORespHdrMarshalUnmarshal(t *testing.T) {
	var (
		err            error
		ioRespHdrIn    *IORespHdrStruct
		ioRespHdrInBuf []byte
		ioRespHdrOut   *IORespHdrStruct
	)

	ioRespHdrIn = &IORespHdrStruct{
		ErrNo:  0,
		IOSize: 0x0123456789ABCDEF,
	}

	ioRespHdrInBuf, err = ioRespHdrIn.MarshalIORespHdr()
	if nil != err {
		t.Fatalf("MarshalIORespHdr() failed: %v", err)
	}
	if IORespHdrSize != len(ioRespHdrInBuf) {
		t.Fatalf("MarshalIORespHdr() returned %v bytes (expected %v)", len(ioRespHdrInBuf), IORespHdrSize)
	}

	ioRespHdrOut, err = UnmarshalIORespHdr(ioRespHdrInBuf)
	if nil != err {
		t.Fatalf("UnmarshalIORespHdr() failed: %v", err)
	}
	if *ioRespHdrIn != *ioRespHdrOut {
		t.Fatalf("UnmarshalIORespHdr() returned %+v (expected %+v)", ioRespHdrOut, ioRespHdrIn)
	}
}

func TestReadPlanMarshalUnmarshal(t *testing.T) {
	var (
		err           error
		readPlanIn    *ReadPlanStruct
		readPlanInBuf []byte
		readPlanOut   *ReadPlanStruct
	)

	readPlanIn = &ReadPlanStruct{
		FileSize:     1000,
		ReadPlanSize: 300,
		Ranges: []ReadPlanRangeStruct{
			{Backing: BackingTypeObject, ObjectPath: "/v1/AUTH_test/cont/00000000000000A7", ObjectStart: 10, Size: 100},
			{Backing: BackingTypeHole, ObjectPath: "", ObjectStart: 0, Size: 50},
			{Backing: BackingTypeObject, ObjectPath: "/v1/AUTH_test/cont/00000000000000A8", ObjectStart: 0, Size: 150},
		},
	}

	readPlanInBuf, err = readPlanIn.MarshalReadPlan()
	if nil != err {
		t.Fatalf("MarshalReadPlan() failed: %v", err)
	}

	readPlanOut, err = UnmarshalReadPlan(readPlanInBuf, 200)
	if nil != err {
		t.Fatalf("UnmarshalReadPlan() failed: %v", err)
	}

	if readPlanOut.FileSize != readPlanIn.FileSize {
		t.Fatalf("UnmarshalReadPlan() FileSize was %v", readPlanOut.FileSize)
	}
	if readPlanOut.ReadPlanSize != readPlanIn.ReadPlanSize {
		t.Fatalf("UnmarshalReadPlan() ReadPlanSize was %v", readPlanOut.ReadPlanSize)
	}
	if 3 != len(readPlanOut.Ranges) {
		t.Fatalf("UnmarshalReadPlan() returned %v ranges", len(readPlanOut.Ranges))
	}

	// The decoder accumulates logical file offsets from the request offset
	if 200 != readPlanOut.Ranges[0].Offset {
		t.Fatalf("Ranges[0].Offset was %v (expected 200)", readPlanOut.Ranges[0].Offset)
	}
	if 300 != readPlanOut.Ranges[1].Offset {
		t.Fatalf("Ranges[1].Offset was %v (expected 300)", readPlanOut.Ranges[1].Offset)
	}
	if 350 != readPlanOut.Ranges[2].Offset {
		t.Fatalf("Ranges[2].Offset was %v (expected 350)", readPlanOut.Ranges[2].Offset)
	}

	// An empty object path decodes as an explicit hole
	if BackingTypeObject != readPlanOut.Ranges[0].Backing {
		t.Fatalf("Ranges[0].Backing was %v", readPlanOut.Ranges[0].Backing)
	}
	if BackingTypeHole != readPlanOut.Ranges[1].Backing {
		t.Fatalf("Ranges[1].Backing was %v", readPlanOut.Ranges[1].Backing)
	}

	if readPlanOut.Ranges[0].ObjectPath != readPlanIn.Ranges[0].ObjectPath {
		t.Fatalf("Ranges[0].ObjectPath was \"%v\"", readPlanOut.Ranges[0].ObjectPath)
	}
	if readPlanOut.Ranges[2].ObjectStart != readPlanIn.Ranges[2].ObjectStart {
		t.Fatalf("Ranges[2].ObjectStart was %v", readPlanOut.Ranges[2].ObjectStart)
	}
}

func TestReadPlanUnmarshalTruncated(t *testing.T) {
	var (
		err           error
		readPlanIn    *ReadPlanStruct
		readPlanInBuf []byte
		truncateAt    int
	)

	readPlanIn = &ReadPlanStruct{
		FileSize:     1000,
		ReadPlanSize: 300,
		Ranges: []ReadPlanRangeStruct{
			{Backing: BackingTypeObject, ObjectPath: "/v1/AUTH_test/cont/00000000000000A7", ObjectStart: 10, Size: 100},
		},
	}

	readPlanInBuf, err = readPlanIn.MarshalReadPlan()
	if nil != err {
		t.Fatalf("MarshalReadPlan() failed: %v", err)
	}

	// Every truncation point must produce a decode error, never a panic
	for truncateAt = 0; truncateAt < len(readPlanInBuf); truncateAt++ {
		_, err = UnmarshalReadPlan(readPlanInBuf[:truncateAt], 0)
		if nil == err {
			t.Fatalf("UnmarshalReadPlan() of buf truncated at %v unexpectedly succeeded", truncateAt)
		}
	}
}

func TestReadPlanUnmarshalAbsurdRangeCount(t *testing.T) {
	var (
		err           error
		readPlanInBuf []byte
	)

	// FileSize, ReadPlanSize, then a rangeCount far larger than the
	// remaining buffer could describe
	readPlanInBuf = make([]byte, 3*8)
	readPlanInBuf[16] = 0xFF
	readPlanInBuf[17] = 0xFF
	readPlanInBuf[18] = 0xFF

	_, err = UnmarshalReadPlan(readPlanInBuf, 0)
	if nil == err {
		t.Fatalf("UnmarshalReadPlan() with overrunning rangeCount unexpectedly succeeded")
	}
}
