// Package planclient obtains read plans from the metadata daemon.
//
// The daemon speaks the planwire request/response protocol over a
// byte-stream connection supplied by the caller (normally a unix domain
// socket, but any io.ReadWriter works, which is also how the tests drive
// this package).
package planclient

import (
	"errors"
	"io"
	"net"

	"golang.org/x/sys/unix"

	"github.com/swiftstack/pfsreader/blunder"
	"github.com/swiftstack/pfsreader/logger"
	"github.com/swiftstack/pfsreader/planwire"
	"github.com/swiftstack/pfsreader/stats"
)

// GetReadPlan requests from the metadata daemon a read plan covering length
// bytes at offset of the file named by inodeNumber, and returns the decoded
// plan. The returned plan is a point-in-time snapshot; it may be stale by
// the time its objects are fetched.
//
// An error while the response body is partially read leaves the connection
// with undelivered plan bytes queued on it, so request/response framing can
// no longer be trusted; such errors are tagged via blunder.MarkFatal() and
// the caller must discard the connection.
func GetReadPlan(planConn io.ReadWriter, mountID uint64, inodeNumber uint64, offset uint64, length uint64) (readPlan *planwire.ReadPlanStruct, err error) {
	readPlan, err = getReadPlan(planConn, mountID, inodeNumber, offset, length)
	return
}

func getReadPlan(planConn io.ReadWriter, mountID uint64, inodeNumber uint64, offset uint64, length uint64) (readPlan *planwire.ReadPlanStruct, err error) {
	var (
		ioReqHdr      *planwire.IOReqHdrStruct
		ioReqHdrBuf   []byte
		ioRespHdr     *planwire.IORespHdrStruct
		ioRespHdrBuf  []byte
		readPlanBuf  []byte
	)

	ioReqHdr = &planwire.IOReqHdrStruct{
		OpType:      planwire.OpTypeReadPlan,
		MountID:     mountID,
		InodeNumber: inodeNumber,
		Offset:      offset,
		Length:      length,
	}

	ioReqHdrBuf, err = ioReqHdr.MarshalIOReqHdr()
	if nil != err {
		err = blunder.AddError(err, blunder.IOError)
		return
	}

	_, err = planConn.Write(ioReqHdrBuf)
	if nil != err {
		err = blunder.AddError(err, blunder.BrokenPipeError)
		return
	}

	ioRespHdrBuf = make([]byte, planwire.IORespHdrSize)
	_, err = io.ReadFull(planConn, ioRespHdrBuf)
	if nil != err {
		err = blunder.AddError(err, blunder.IOError)
		return
	}

	ioRespHdr, err = planwire.UnmarshalIORespHdr(ioRespHdrBuf)
	if nil != err {
		err = blunder.AddError(err, blunder.DecodeError)
		return
	}

	if 0 != ioRespHdr.ErrNo {
		err = blunder.NewError(blunder.FsError(ioRespHdr.ErrNo), "metadata daemon rejected read plan request for inode %d: errno %d", inodeNumber, ioRespHdr.ErrNo)
		return
	}

	if 0 == ioRespHdr.IOSize {
		// A successful response always carries a plan body (an empty file
		// still has a FileSize field to report)
		err = blunder.NewError(blunder.IOError, "metadata daemon sent success response with empty read plan body for inode %d", inodeNumber)
		return
	}

	readPlanBuf = make([]byte, ioRespHdr.IOSize)
	_, err = io.ReadFull(planConn, readPlanBuf)
	if nil != err {
		if isConnectionFatal(err) {
			logger.ErrorfWithError(err, "planclient.GetReadPlan(): connection lost mid read plan body for inode %d", inodeNumber)
			err = blunder.MarkFatal(blunder.AddError(err, blunder.BadFileError))
		} else {
			err = blunder.AddError(err, blunder.IOError)
		}
		return
	}

	readPlan, err = planwire.UnmarshalReadPlan(readPlanBuf, offset)
	if nil != err {
		err = blunder.AddError(err, blunder.DecodeError)
		return
	}

	readPlan.InodeNumber = inodeNumber

	stats.IncrementOperations(&stats.ReadPlanFetchOps)
	stats.IncrementOperationsBy(&stats.ReadPlanBytes, ioRespHdr.IOSize)

	err = nil
	return
}

// isConnectionFatal reports whether err indicates the connection itself died
// (as opposed to, say, a short daemon write), in which case re-synchronizing
// on it is impossible.
func isConnectionFatal(err error) bool {
	if errors.Is(err, unix.EPIPE) || errors.Is(err, unix.ENODEV) || errors.Is(err, unix.EBADF) {
		return true
	}
	if errors.Is(err, io.ErrClosedPipe) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	return false
}
