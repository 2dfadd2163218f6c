package segment_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidestore/tidestore/segment"
)

const (
	testSegmentSize = 64 * 1024
	testBlockSize   = 4096
)

func newManager(t *testing.T) *segment.FileManager {
	t.Helper()
	mgr, err := segment.NewFileManager(t.TempDir(), testSegmentSize, testBlockSize)
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })
	return mgr
}

func TestFileManagerGeometry(t *testing.T) {
	mgr := newManager(t)
	assert.Equal(t, int64(testSegmentSize), mgr.GetSegmentSize())
	assert.Equal(t, int64(testBlockSize), mgr.GetBlockSize())

	_, err := segment.NewFileManager(t.TempDir(), testSegmentSize, 1000)
	assert.Error(t, err)
	_, err = segment.NewFileManager(t.TempDir(), testBlockSize, testBlockSize)
	assert.Error(t, err)
}

func TestSegmentWriteReadRoundTrip(t *testing.T) {
	mgr := newManager(t)
	seg, err := mgr.Open(3)
	require.NoError(t, err)
	assert.Equal(t, segment.ID(3), seg.GetSegmentID())
	assert.Equal(t, int64(testSegmentSize), seg.GetWriteCapacity())

	payload := bytes.Repeat([]byte{0x7e}, testBlockSize)
	require.NoError(t, seg.Write(testBlockSize, payload))

	got := make([]byte, testBlockSize)
	n, err := mgr.ReadAt(3, testBlockSize, got)
	require.NoError(t, err)
	assert.Equal(t, testBlockSize, n)
	assert.Equal(t, payload, got)

	// the file was preallocated to the full segment size
	unwritten := make([]byte, testBlockSize)
	_, err = mgr.ReadAt(3, testSegmentSize-testBlockSize, unwritten)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, testBlockSize), unwritten)
}

func TestSegmentWriteValidation(t *testing.T) {
	mgr := newManager(t)
	seg, err := mgr.Open(0)
	require.NoError(t, err)

	assert.Error(t, seg.Write(100, make([]byte, testBlockSize)))
	assert.Error(t, seg.Write(testSegmentSize, make([]byte, testBlockSize)))

	require.NoError(t, seg.Close())
	require.NoError(t, seg.Close())
	assert.Error(t, seg.Write(0, make([]byte, testBlockSize)))

	// reads still work through the manager after the handle is closed
	buf := make([]byte, testBlockSize)
	_, err = mgr.ReadAt(0, 0, buf)
	assert.NoError(t, err)
}

func TestListSegments(t *testing.T) {
	mgr := newManager(t)
	for _, id := range []segment.ID{5, 1, 3} {
		seg, err := mgr.Open(id)
		require.NoError(t, err)
		require.NoError(t, seg.Close())
	}
	ids, err := mgr.ListSegments()
	require.NoError(t, err)
	assert.Equal(t, []segment.ID{1, 3, 5}, ids)
}

func TestSequentialProvider(t *testing.T) {
	p := segment.NewSequentialProvider(10)
	id, err := p.GetNextSegmentID()
	require.NoError(t, err)
	assert.Equal(t, segment.ID(10), id)
	id, err = p.GetNextSegmentID()
	require.NoError(t, err)
	assert.Equal(t, segment.ID(11), id)

	last := segment.JournalSeq{Seq: 2, Addr: segment.Paddr{Segment: 10, Off: 8192}}
	p.CloseSegment(10, last)
	got, ok := p.Closed(10)
	require.True(t, ok)
	assert.Equal(t, last, got)
	_, ok = p.Closed(11)
	assert.False(t, ok)
}

func TestJournalSeqOrdering(t *testing.T) {
	a := segment.JournalSeq{Seq: 1, Addr: segment.Paddr{Segment: 0, Off: 4096}}
	b := a.Add(8192)
	assert.Equal(t, int64(12288), b.Addr.Off)
	assert.Equal(t, -1, a.Cmp(b))
	assert.Equal(t, 1, b.Cmp(a))
	assert.Equal(t, 0, a.Cmp(a))

	c := segment.JournalSeq{Seq: 2, Addr: segment.Paddr{Segment: 9, Off: 0}}
	assert.Equal(t, -1, b.Cmp(c))
}
