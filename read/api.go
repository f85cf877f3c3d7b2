// Package read implements the client read path: it turns a caller's
// (inode, offset, length) read into a read plan fetched from the metadata
// daemon, an I/O plan against the object store, and the pipelined GETs that
// fill the caller's buffer, under one of three configurable caching
// strategies.
package read

import (
	"io"

	"github.com/swiftstack/pfsreader/blunder"
	"github.com/swiftstack/pfsreader/stats"
)

// ReadIOType selects the caching strategy applied to every Read() call.
type ReadIOType uint8

const (
	// ReadIOTypeNoCache fetches a fresh read plan per read and GETs every
	// byte from the object store.
	ReadIOTypeNoCache ReadIOType = iota

	// ReadIOTypeSegCache caches aligned lines of log segment objects.
	// Segment objects are immutable once written, so cached lines never go
	// stale; a failed GET means the plan was stale and the read restarts.
	ReadIOTypeSegCache

	// ReadIOTypeFileCache caches aligned lines of the file's logical bytes,
	// plus the file size and the file's whole-file read plan.
	ReadIOTypeFileCache
)

// StatFetcher obtains file attributes from the metadata daemon. The
// file-cache strategy needs the file size before it has any read plan in
// hand.
type StatFetcher interface {
	GetStat(mountID uint64, inodeNumber uint64) (fileSize uint64, err error)
}

// MountStruct identifies the mount a read request is issued against.
type MountStruct struct {
	MountID     uint64
	StatFetcher StatFetcher
}

// ReadRequestStruct carries one read request and, on return, its results.
// Data must be at least Length bytes; OutSize reports how many of its bytes
// were filled (less than Length when the read extends past end of file).
type ReadRequestStruct struct {
	Mount       *MountStruct
	InodeNumber uint64
	Offset      uint64
	Length      uint64
	Data        []byte
	OutSize     uint64
	Err         error
}

// Read performs the read described by request using the configured caching
// strategy, recording the outcome in request.OutSize and request.Err. The
// returned error is non-nil only for malformed arguments; operational
// failures (unreachable daemon, stale plans, object store errors) are
// reported through request.Err.
//
// planConn is the caller's connection to the metadata daemon. If request.Err
// comes back blunder.IsFatal(), the connection's framing is no longer
// trustworthy and the caller must discard it.
func Read(request *ReadRequestStruct, planConn io.ReadWriter) (err error) {
	if (nil == request) || (nil == request.Mount) || (nil == request.Data) {
		err = blunder.NewError(blunder.InvalidArgError, "read.Read() requires a request with a Mount and a Data buffer")
		return
	}
	if uint64(len(request.Data)) < request.Length {
		err = blunder.NewError(blunder.InvalidArgError, "read.Read() request.Data (%d bytes) cannot hold request.Length (%d) bytes", len(request.Data), request.Length)
		return
	}

	switch globals.readIOType {
	case ReadIOTypeNoCache:
		stats.IncrementOperations(&stats.ReadNoCacheOps)
		request.OutSize, request.Err = readNoCache(request, planConn, false, 0)
	case ReadIOTypeSegCache:
		stats.IncrementOperations(&stats.ReadSegCacheOps)
		request.OutSize, request.Err = readSegCache(request, planConn)
	case ReadIOTypeFileCache:
		stats.IncrementOperations(&stats.ReadFileCacheOps)
		request.OutSize, request.Err = readFileCache(request, planConn)
	default:
		err = blunder.NewError(blunder.InvalidArgError, "read.Read() configured ReadIOType (%d) is unknown", globals.readIOType)
		return
	}

	err = nil
	return
}
