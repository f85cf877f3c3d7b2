package read

import (
	"io"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/swiftstack/pfsreader/blunder"
	"github.com/swiftstack/pfsreader/conf"
	"github.com/swiftstack/pfsreader/emstore"
	"github.com/swiftstack/pfsreader/objstore"
	"github.com/swiftstack/pfsreader/planwire"
)

const (
	testCacheLineSize = 32
	testFileSize      = 100
	testInodeNumber   = 17
	testMountID       = 77

	testObjectPathA7 = "/v1/AUTH_test/cont/00000000000000A7"
	testObjectPathA8 = "/v1/AUTH_test/cont/00000000000000A8"
	testObjectPathA9 = "/v1/AUTH_test/cont/00000000000000A9"
)

// testPlanDaemonStruct emulates the metadata daemon's READPLAN service: it
// answers each request with the slice of the file's current layout covering
// the requested window. Tests mutate the layout to simulate files being
// rewritten under a read.
type testPlanDaemonStruct struct {
	sync.Mutex
	fileSize   uint64
	ranges     []planwire.ReadPlanRangeStruct // Offset fields cumulative from 0
	planReqCnt uint64
	afterServe func(daemon *testPlanDaemonStruct) // applied once, after the next response
}

func (daemon *testPlanDaemonStruct) setLayout(fileSize uint64, ranges []planwire.ReadPlanRangeStruct) {
	var (
		rangeIndex int
		runOffset  uint64
	)

	runOffset = 0
	for rangeIndex = range ranges {
		ranges[rangeIndex].Offset = runOffset
		runOffset += ranges[rangeIndex].Size
	}

	daemon.fileSize = fileSize
	daemon.ranges = ranges
}

func (daemon *testPlanDaemonStruct) planRequestCount() (count uint64) {
	daemon.Lock()
	count = daemon.planReqCnt
	daemon.Unlock()
	return
}

func (daemon *testPlanDaemonStruct) buildPlanBody(reqOffset uint64, reqLength uint64) (readPlanBuf []byte, err error) {
	var (
		layoutRange planwire.ReadPlanRangeStruct
		ovEnd       uint64
		ovStart     uint64
		rangeEnd    uint64
		readPlan    *planwire.ReadPlanStruct
		windowEnd   uint64
	)

	windowEnd = reqOffset + reqLength
	if windowEnd > daemon.fileSize {
		windowEnd = daemon.fileSize
	}

	readPlan = &planwire.ReadPlanStruct{
		FileSize:     daemon.fileSize,
		ReadPlanSize: 64,
		Ranges:       make([]planwire.ReadPlanRangeStruct, 0),
	}

	for _, layoutRange = range daemon.ranges {
		rangeEnd = layoutRange.Offset + layoutRange.Size
		if (rangeEnd <= reqOffset) || (layoutRange.Offset >= windowEnd) {
			continue
		}

		ovStart = layoutRange.Offset
		if reqOffset > ovStart {
			ovStart = reqOffset
		}
		ovEnd = rangeEnd
		if windowEnd < ovEnd {
			ovEnd = windowEnd
		}

		readPlan.Ranges = append(readPlan.Ranges, planwire.ReadPlanRangeStruct{
			Backing:     layoutRange.Backing,
			ObjectPath:  layoutRange.ObjectPath,
			ObjectStart: layoutRange.ObjectStart + (ovStart - layoutRange.Offset),
			Size:        ovEnd - ovStart,
		})
	}

	readPlanBuf, err = readPlan.MarshalReadPlan()
	return
}

func (daemon *testPlanDaemonStruct) serve(t *testing.T, daemonConn net.Conn) {
	var (
		after        func(daemon *testPlanDaemonStruct)
		err          error
		ioReqHdr     *planwire.IOReqHdrStruct
		ioReqHdrBuf  []byte
		ioRespHdrBuf []byte
		readPlanBuf  []byte
	)

	for {
		ioReqHdrBuf = make([]byte, planwire.IOReqHdrSize)
		_, err = io.ReadFull(daemonConn, ioReqHdrBuf)
		if nil != err {
			// Connection torn down; the test is over
			return
		}

		ioReqHdr, err = planwire.UnmarshalIOReqHdr(ioReqHdrBuf)
		if nil != err {
			t.Errorf("plan daemon failed unmarshaling request header: %v", err)
			return
		}

		daemon.Lock()
		daemon.planReqCnt++
		readPlanBuf, err = daemon.buildPlanBody(ioReqHdr.Offset, ioReqHdr.Length)
		after = daemon.afterServe
		daemon.afterServe = nil
		daemon.Unlock()

		if nil != err {
			t.Errorf("plan daemon failed building plan body: %v", err)
			return
		}

		ioRespHdrBuf, err = (&planwire.IORespHdrStruct{ErrNo: 0, IOSize: uint64(len(readPlanBuf))}).MarshalIORespHdr()
		if nil != err {
			t.Errorf("plan daemon failed marshaling response header: %v", err)
			return
		}

		_, err = daemonConn.Write(ioRespHdrBuf)
		if nil == err {
			_, err = daemonConn.Write(readPlanBuf)
		}
		if nil != err {
			return
		}

		if nil != after {
			daemon.Lock()
			after(daemon)
			daemon.Unlock()
		}
	}
}

type testStatFetcherStruct struct {
	sync.Mutex
	fileSize uint64
	calls    uint64
}

func (statFetcher *testStatFetcherStruct) GetStat(mountID uint64, inodeNumber uint64) (fileSize uint64, err error) {
	statFetcher.Lock()
	statFetcher.calls++
	fileSize = statFetcher.fileSize
	statFetcher.Unlock()

	err = nil
	return
}

// testLayout is the canonical 100 byte test file:
//
//	[ 0, 40) object A7 at object offset  0
//	[40, 70) object A8 at object offset  5
//	[70, 90) hole
//	[90,100) object A7 at object offset 60
func testLayout() []planwire.ReadPlanRangeStruct {
	return []planwire.ReadPlanRangeStruct{
		{Backing: planwire.BackingTypeObject, ObjectPath: testObjectPathA7, ObjectStart: 0, Size: 40},
		{Backing: planwire.BackingTypeObject, ObjectPath: testObjectPathA8, ObjectStart: 5, Size: 30},
		{Backing: planwire.BackingTypeHole, ObjectPath: "", ObjectStart: 0, Size: 20},
		{Backing: planwire.BackingTypeObject, ObjectPath: testObjectPathA7, ObjectStart: 60, Size: 10},
	}
}

// testExpectedFile returns the file bytes testLayout() describes, given the
// object contents testSetup() loads.
func testExpectedFile(objectDataA7 []byte, objectDataA8 []byte) (expected []byte) {
	expected = make([]byte, testFileSize)
	copy(expected[0:40], objectDataA7[0:40])
	copy(expected[40:70], objectDataA8[5:35])
	// [70,90) stays zero
	copy(expected[90:100], objectDataA7[60:70])
	return
}

func testSetup(t *testing.T, readIOTypeAsString string) (planConn net.Conn, daemon *testPlanDaemonStruct, objectDataA7 []byte, objectDataA8 []byte) {
	var (
		confMap    conf.ConfMap
		daemonConn net.Conn
		err        error
		hostAddr   string
		position   int
		require    = require.New(t)
		tcpPort    string
	)

	confMap, err = conf.MakeConfMapFromStrings([]string{
		"EmStore.IPAddr=127.0.0.1",
		"EmStore.TCPPort=0",
		"ObjectStore.ConnectionPoolSize=4",
		"ObjectStore.RetryLimit=1",
		"ObjectStore.RetryDelay=10ms",
		"ObjectStore.RetryExpBackoff=1.0",
		"ReadCache.ReadIOType=" + readIOTypeAsString,
		"ReadCache.CacheLineSize=32",
		"ReadCache.TotalSize=4096",
		"ReadCache.Shards=2",
		"ReadCache.ReadPlanTTL=1h",
		"ReadCache.StaleRetryLimit=2",
	})
	require.NoError(err)

	err = emstore.Start(confMap)
	require.NoError(err)

	hostAddr, tcpPort, err = net.SplitHostPort(emstore.ServerAddr())
	require.NoError(err)

	err = confMap.UpdateFromStrings([]string{
		"ObjectStore.IPAddr=" + hostAddr,
		"ObjectStore.TCPPort=" + tcpPort,
	})
	require.NoError(err)

	err = objstore.Up(confMap)
	require.NoError(err)

	err = Up(confMap)
	require.NoError(err)

	objectDataA7 = make([]byte, 70)
	for position = range objectDataA7 {
		objectDataA7[position] = byte(position + 1)
	}
	objectDataA8 = make([]byte, 40)
	for position = range objectDataA8 {
		objectDataA8[position] = byte(0x80 + position)
	}

	err = emstore.PutObject(testObjectPathA7, objectDataA7)
	require.NoError(err)
	err = emstore.PutObject(testObjectPathA8, objectDataA8)
	require.NoError(err)

	daemon = &testPlanDaemonStruct{}
	daemon.setLayout(testFileSize, testLayout())

	planConn, daemonConn = net.Pipe()
	go daemon.serve(t, daemonConn)

	return
}

func testTeardown(t *testing.T, planConn net.Conn) {
	var (
		require = require.New(t)
	)

	_ = planConn.Close()

	require.NoError(Down())
	require.NoError(objstore.Down())
	require.NoError(emstore.Stop())
}

func testDoRead(t *testing.T, planConn net.Conn, mount *MountStruct, offset uint64, length uint64) (request *ReadRequestStruct) {
	var (
		require = require.New(t)
	)

	request = &ReadRequestStruct{
		Mount:       mount,
		InodeNumber: testInodeNumber,
		Offset:      offset,
		Length:      length,
		Data:        make([]byte, length),
	}

	require.NoError(Read(request, planConn))

	return
}

func TestReadValidation(t *testing.T) {
	var (
		err     error
		require = require.New(t)
	)

	err = Read(nil, nil)
	require.Error(err)
	require.True(blunder.Is(err, blunder.InvalidArgError))

	err = Read(&ReadRequestStruct{Mount: &MountStruct{MountID: testMountID}}, nil)
	require.Error(err)
	require.True(blunder.Is(err, blunder.InvalidArgError))

	err = Read(&ReadRequestStruct{Mount: &MountStruct{MountID: testMountID}, Length: 100, Data: make([]byte, 10)}, nil)
	require.Error(err)
	require.True(blunder.Is(err, blunder.InvalidArgError))
}

func TestReadNoCache(t *testing.T) {
	var (
		expected []byte
		mount    *MountStruct
		request  *ReadRequestStruct
		require  = require.New(t)
	)

	planConn, daemon, objectDataA7, objectDataA8 := testSetup(t, "no-cache")
	defer testTeardown(t, planConn)

	mount = &MountStruct{MountID: testMountID}
	expected = testExpectedFile(objectDataA7, objectDataA8)

	// A read spanning two objects and the hole
	request = testDoRead(t, planConn, mount, 40, 50)
	require.NoError(request.Err)
	require.Equal(uint64(50), request.OutSize)
	require.Equal(expected[40:90], request.Data[:request.OutSize])

	// The whole file
	request = testDoRead(t, planConn, mount, 0, testFileSize)
	require.NoError(request.Err)
	require.Equal(uint64(testFileSize), request.OutSize)
	require.Equal(expected, request.Data)

	// A read running past end of file comes back short
	request = testDoRead(t, planConn, mount, 90, 50)
	require.NoError(request.Err)
	require.Equal(uint64(10), request.OutSize)
	require.Equal(expected[90:100], request.Data[:request.OutSize])

	// A read at end of file comes back empty
	request = testDoRead(t, planConn, mount, testFileSize, 10)
	require.NoError(request.Err)
	require.Equal(uint64(0), request.OutSize)

	// A zero-length read below end of file also comes back empty; the
	// daemon answers it with a zero-range plan
	request = testDoRead(t, planConn, mount, 10, 0)
	require.NoError(request.Err)
	require.Equal(uint64(0), request.OutSize)

	// Every read fetched a fresh plan
	require.Equal(uint64(5), daemon.planRequestCount())
}

func TestReadSegCacheAvoidsRefetch(t *testing.T) {
	var (
		expected     []byte
		getCntBefore uint64
		mount        *MountStruct
		request      *ReadRequestStruct
		require      = require.New(t)
	)

	planConn, daemon, objectDataA7, objectDataA8 := testSetup(t, "seg-cache")
	defer testTeardown(t, planConn)

	mount = &MountStruct{MountID: testMountID}
	expected = testExpectedFile(objectDataA7, objectDataA8)

	request = testDoRead(t, planConn, mount, 0, 64)
	require.NoError(request.Err)
	require.Equal(uint64(64), request.OutSize)
	require.Equal(expected[0:64], request.Data)

	getCntBefore = emstore.GetObjectRequestCount()

	// The same read again: a fresh plan is fetched, but every segment
	// line is already cached so the store sees no new GETs
	request = testDoRead(t, planConn, mount, 0, 64)
	require.NoError(request.Err)
	require.Equal(uint64(64), request.OutSize)
	require.Equal(expected[0:64], request.Data)

	require.Equal(getCntBefore, emstore.GetObjectRequestCount())
	require.Equal(uint64(2), daemon.planRequestCount())
}

func TestReadSegCacheStaleExhaustion(t *testing.T) {
	var (
		mount   *MountStruct
		request *ReadRequestStruct
		require = require.New(t)
	)

	planConn, daemon, _, _ := testSetup(t, "seg-cache")
	defer testTeardown(t, planConn)

	mount = &MountStruct{MountID: testMountID}

	// Every plan the daemon serves names an object the store no longer
	// has, so each restart hits the same staleness until the limit
	require.NoError(emstore.DeleteObject(testObjectPathA8))

	request = testDoRead(t, planConn, mount, 40, 20)
	require.Error(request.Err)
	require.True(blunder.Is(request.Err, blunder.StalePlanError))

	// StaleRetryLimit=2 bounds the loop at the initial attempt plus two
	// restarts
	require.Equal(uint64(3), daemon.planRequestCount())
}

func TestReadSegCacheRecoversFromStalePlan(t *testing.T) {
	var (
		expected []byte
		mount    *MountStruct
		request  *ReadRequestStruct
		require  = require.New(t)
	)

	planConn, daemon, objectDataA7, objectDataA8 := testSetup(t, "seg-cache")
	defer testTeardown(t, planConn)

	mount = &MountStruct{MountID: testMountID}
	expected = testExpectedFile(objectDataA7, objectDataA8)

	// The first plan served names an object that was already collected, so
	// the cache line fetch misses the store; the restart gets the file's
	// real layout and succeeds
	daemon.Lock()
	daemon.setLayout(testFileSize, []planwire.ReadPlanRangeStruct{
		{Backing: planwire.BackingTypeObject, ObjectPath: testObjectPathA9, ObjectStart: 0, Size: testFileSize},
	})
	daemon.afterServe = func(innerDaemon *testPlanDaemonStruct) {
		innerDaemon.setLayout(testFileSize, testLayout())
	}
	daemon.Unlock()

	request = testDoRead(t, planConn, mount, 40, 20)
	require.NoError(request.Err)
	require.Equal(uint64(20), request.OutSize)
	require.Equal(expected[40:60], request.Data[:request.OutSize])

	require.Equal(uint64(2), daemon.planRequestCount())
}

func TestReadNoCacheRecoversFromStalePlan(t *testing.T) {
	var (
		expected []byte
		mount    *MountStruct
		request  *ReadRequestStruct
		require  = require.New(t)
	)

	planConn, daemon, objectDataA7, objectDataA8 := testSetup(t, "no-cache")
	defer testTeardown(t, planConn)

	mount = &MountStruct{MountID: testMountID}
	expected = testExpectedFile(objectDataA7, objectDataA8)

	// The first plan served names an object that was already collected;
	// the daemon then serves the file's real layout
	daemon.Lock()
	daemon.setLayout(testFileSize, []planwire.ReadPlanRangeStruct{
		{Backing: planwire.BackingTypeObject, ObjectPath: testObjectPathA9, ObjectStart: 0, Size: testFileSize},
	})
	daemon.afterServe = func(innerDaemon *testPlanDaemonStruct) {
		innerDaemon.setLayout(testFileSize, testLayout())
	}
	daemon.Unlock()

	request = testDoRead(t, planConn, mount, 0, testFileSize)
	require.NoError(request.Err)
	require.Equal(uint64(testFileSize), request.OutSize)
	require.Equal(expected, request.Data)

	require.Equal(uint64(2), daemon.planRequestCount())
}

func TestReadFileCacheReusesLinesAndPlan(t *testing.T) {
	var (
		expected     []byte
		getCntBefore uint64
		mount        *MountStruct
		planCntAfter uint64
		request      *ReadRequestStruct
		require      = require.New(t)
		statFetcher  *testStatFetcherStruct
	)

	planConn, daemon, objectDataA7, objectDataA8 := testSetup(t, "file-cache")
	defer testTeardown(t, planConn)

	statFetcher = &testStatFetcherStruct{fileSize: testFileSize}
	mount = &MountStruct{MountID: testMountID, StatFetcher: statFetcher}
	expected = testExpectedFile(objectDataA7, objectDataA8)

	request = testDoRead(t, planConn, mount, 40, 50)
	require.NoError(request.Err)
	require.Equal(uint64(50), request.OutSize)
	require.Equal(expected[40:90], request.Data[:request.OutSize])

	getCntBefore = emstore.GetObjectRequestCount()
	planCntAfter = daemon.planRequestCount()

	// The whole-file plan is fetched once, the file size fetched once,
	// and rereading cached lines touches neither the daemon nor the store
	require.Equal(uint64(1), planCntAfter)

	request = testDoRead(t, planConn, mount, 40, 50)
	require.NoError(request.Err)
	require.Equal(uint64(50), request.OutSize)
	require.Equal(expected[40:90], request.Data[:request.OutSize])

	require.Equal(getCntBefore, emstore.GetObjectRequestCount())
	require.Equal(planCntAfter, daemon.planRequestCount())
	require.Equal(uint64(1), statFetcher.calls)

	// A read past end of file clamps against the cached size
	request = testDoRead(t, planConn, mount, 96, 50)
	require.NoError(request.Err)
	require.Equal(uint64(4), request.OutSize)
	require.Equal(expected[96:100], request.Data[:request.OutSize])

	// A read at end of file is empty without any I/O
	request = testDoRead(t, planConn, mount, testFileSize, 10)
	require.NoError(request.Err)
	require.Equal(uint64(0), request.OutSize)
}

func TestReadFileCachePartialMiss(t *testing.T) {
	var (
		expected     []byte
		getCntBefore uint64
		mount        *MountStruct
		request      *ReadRequestStruct
		require      = require.New(t)
		statFetcher  *testStatFetcherStruct
	)

	planConn, daemon, objectDataA7, objectDataA8 := testSetup(t, "file-cache")
	defer testTeardown(t, planConn)

	statFetcher = &testStatFetcherStruct{fileSize: testFileSize}
	mount = &MountStruct{MountID: testMountID, StatFetcher: statFetcher}
	expected = testExpectedFile(objectDataA7, objectDataA8)

	// Populate the second cache line only ([32,64) spans objects A7 and A8)
	request = testDoRead(t, planConn, mount, 32, 32)
	require.NoError(request.Err)
	require.Equal(uint64(32), request.OutSize)
	require.Equal(expected[32:64], request.Data)

	getCntBefore = emstore.GetObjectRequestCount()

	// A read spanning both lines fills only the missing first line, which
	// lives entirely in object A7: exactly one more store GET, no new plan
	request = testDoRead(t, planConn, mount, 0, 64)
	require.NoError(request.Err)
	require.Equal(uint64(64), request.OutSize)
	require.Equal(expected[0:64], request.Data)

	require.Equal(getCntBefore+1, emstore.GetObjectRequestCount())
	require.Equal(uint64(1), daemon.planRequestCount())
	require.Equal(uint64(1), statFetcher.calls)
}

func TestCacheKeyLayouts(t *testing.T) {
	var (
		require = require.New(t)
	)

	// The three key namespaces share one cache; their serialized layouts
	// must differ in length so they can never compare equal
	require.Equal(8, len(readPlanCacheKey(17)))
	require.Equal(16, len(segCacheKey(3, 0xA7)))
	require.Equal(17, len(fileCacheKey(17, 3, false)))

	require.NotEqual(fileCacheKey(17, 3, false), fileCacheKey(17, 3, true))
	require.NotEqual(segCacheKey(3, 0xA7), segCacheKey(0xA7, 3))
}
