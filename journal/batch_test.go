package journal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidestore/tidestore/journal/record"
	"github.com/tidestore/tidestore/segment"
)

const testBlockSize = 4096

func deltaRecord(payload string) (record.Record, record.Size) {
	r := record.Record{Deltas: [][]byte{[]byte(payload)}}
	return r, record.MeasureRecord(r, testBlockSize)
}

func TestBatchCanBatchLimits(t *testing.T) {
	b := newRecordBatch(0, 2, 64*1024)
	r, size := deltaRecord("d")

	assert.Equal(t, size.EncodedLength(), b.canBatch(size))
	b.addPending(r, size)
	assert.Equal(t, 2*size.EncodedLength(), b.canBatch(size))
	b.addPending(r, size)
	// capacity reached
	assert.Equal(t, int64(0), b.canBatch(size))

	// byte cap: a batch already past the flush size takes nothing more
	small := newRecordBatch(1, 100, size.EncodedLength()-1)
	small.addPending(r, size)
	assert.Equal(t, int64(0), small.canBatch(size))
}

func TestBatchResultFanOut(t *testing.T) {
	b := newRecordBatch(0, 4, 1<<20)
	r1, s1 := deltaRecord("one")
	r2, s2 := deltaRecord("two")

	ch1 := b.addPending(r1, s1)
	assert.True(t, b.isPending())
	ch2 := b.addPending(r2, s2)

	buf := b.encodeRecords(testBlockSize, 0, 9)
	assert.True(t, b.isSubmitting())
	require.Equal(t, s1.EncodedLength()+s2.EncodedLength(), int64(len(buf)))

	start := segment.JournalSeq{Seq: 0, Addr: segment.Paddr{Segment: 0, Off: 8192}}
	b.setResult(start, nil)
	assert.True(t, b.isEmpty())
	assert.Equal(t, 0, b.numRecords())

	res1 := <-ch1
	require.NoError(t, res1.err)
	assert.Equal(t, start, res1.seq)
	assert.Equal(t, start.Addr, res1.paddr)

	res2 := <-ch2
	require.NoError(t, res2.err)
	assert.Equal(t, start.Add(s1.EncodedLength()), res2.seq)
	assert.Equal(t, start.Addr.Add(s1.EncodedLength()), res2.paddr)
}

func TestBatchErrorFansOutToAllContributors(t *testing.T) {
	b := newRecordBatch(0, 4, 1<<20)
	r, s := deltaRecord("x")
	ch1 := b.addPending(r, s)
	ch2 := b.addPending(r, s)
	b.encodeRecords(testBlockSize, 0, 1)
	b.setResult(segment.JournalSeq{}, ErrIO)

	assert.Error(t, (<-ch1).err)
	assert.Error(t, (<-ch2).err)
	assert.True(t, b.isEmpty())
}

func TestSubmitPendingFastKeepsBatchReusable(t *testing.T) {
	b := newRecordBatch(0, 4, 1<<20)
	r, s := deltaRecord("fast")
	buf := b.submitPendingFast(r, s, testBlockSize, 4096, 5)
	require.Equal(t, s.EncodedLength(), int64(len(buf)))
	assert.True(t, b.isEmpty())

	h, err := record.DecodeHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, int64(4096), h.CommittedTo)
	assert.Equal(t, segment.Nonce(5), h.Nonce)
	require.NoError(t, record.CheckRecord(h, buf))
}
