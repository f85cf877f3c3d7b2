// Package planwire specifies the wire format spoken between this client and
// the metadata daemon's READPLAN service, along with marshal/unmarshal APIs
// for each of its messages.
//
// All numeric fields are serialized in LittleEndian format with no alignment
// padding.
package planwire

// OpTypeReadPlan is the operation tag carried by an IOReqHdrStruct requesting
// a read plan.
const (
	OpTypeReadPlan uint64 = 1001
)

// IOReqHdrStruct is the fixed-size request header sent to the metadata daemon.
//
// The struct is serialized as a sequence of LittleEndian formatted fields.
type IOReqHdrStruct struct {
	OpType      uint64 // == OpTypeReadPlan
	MountID     uint64
	InodeNumber uint64
	Offset      uint64
	Length      uint64
}

// IOReqHdrSize is the serialized size of an IOReqHdrStruct.
const IOReqHdrSize = 5 * 8

func (ioReqHdr *IOReqHdrStruct) MarshalIOReqHdr() (ioReqHdrBuf []byte, err error) {
	ioReqHdrBuf, err = ioReqHdr.marshalIOReqHdr()
	return
}

func UnmarshalIOReqHdr(ioReqHdrBuf []byte) (ioReqHdr *IOReqHdrStruct, err error) {
	ioReqHdr, err = unmarshalIOReqHdr(ioReqHdrBuf)
	return
}

// IORespHdrStruct is the fixed-size response header received from the
// metadata daemon. A non-zero ErrNo indicates the request failed and no body
// follows. An IOSize of zero with an ErrNo of zero is invalid (a read plan
// describes at least an empty file) and must be treated as an I/O error by
// the receiver.
//
// The struct is serialized as a sequence of LittleEndian formatted fields.
type IORespHdrStruct struct {
	ErrNo  uint64 // 0 on success; otherwise an errno describing the failure
	IOSize uint64 // number of read plan body bytes that follow
}

// IORespHdrSize is the serialized size of an IORespHdrStruct.
const IORespHdrSize = 2 * 8

func (ioRespHdr *IORespHdrStruct) MarshalIORespHdr() (ioRespHdrBuf []byte, err error) {
	ioRespHdrBuf, err = ioRespHdr.marshalIORespHdr()
	return
}

func UnmarshalIORespHdr(ioRespHdrBuf []byte) (ioRespHdr *IORespHdrStruct, err error) {
	ioRespHdr, err = unmarshalIORespHdr(ioRespHdrBuf)
	return
}

// BackingType distinguishes plan ranges backed by an object from holes.
// On the wire a hole is a range whose object path is the empty string; the
// decoder surfaces the distinction as an explicit tag so that no consumer
// needs to rely on string emptiness.
type BackingType uint8

const (
	BackingTypeObject BackingType = iota
	BackingTypeHole
)

// ReadPlanRangeStruct describes where one contiguous logical range of a
// file's bytes lives. Offset is the logical file offset the range begins at;
// it is computed by the decoder from the request offset the plan was
// obtained for (ranges are contiguous in logical file space).
type ReadPlanRangeStruct struct {
	Backing     BackingType
	ObjectPath  string // "" if Backing == BackingTypeHole
	ObjectStart uint64 // starting offset of the range within the object
	Offset      uint64 // logical file offset this range begins at
	Size        uint64 // number of bytes in the range
}

// ReadPlanStruct is the decoded form of a read plan body, valid as of the
// moment it was obtained. The ranges cover strictly increasing, contiguous
// logical file offsets. A plan may become stale if the file is mutated after
// it is issued; this package never re-validates it.
//
// The body is serialized as:
//
//	uint64 FileSize
//	uint64 ReadPlanSize
//	uint64 RangeCount
//	RangeCount repetitions of:
//	    NUL-terminated object path ("" == hole)
//	    uint64 object-relative start offset
//	    uint64 byte count
type ReadPlanStruct struct {
	InodeNumber  uint64 // not serialized; filled in by the plan's requester
	FileSize     uint64
	ReadPlanSize uint64
	Ranges       []ReadPlanRangeStruct
}

func (readPlan *ReadPlanStruct) MarshalReadPlan() (readPlanBuf []byte, err error) {
	readPlanBuf, err = readPlan.marshalReadPlan()
	return
}

// UnmarshalReadPlan decodes readPlanBuf into a ReadPlanStruct, accumulating
// each range's logical file offset starting at requestOffset. Every read is
// bounded by len(readPlanBuf); a truncated or overrunning body yields an
// error, never an out of bounds access.
func UnmarshalReadPlan(readPlanBuf []byte, requestOffset uint64) (readPlan *ReadPlanStruct, err error) {
	readPlan, err = unmarshalReadPlan(readPlanBuf, requestOffset)
	return
}
