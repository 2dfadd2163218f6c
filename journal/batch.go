package journal

import (
	"github.com/tidestore/tidestore/journal/record"
	"github.com/tidestore/tidestore/segment"
)

type batchState int

const (
	batchEmpty batchState = iota
	batchPending
	batchSubmitting
)

// contributorResult is what each record of a batch receives once the
// batch's device write resolves.
type contributorResult struct {
	paddr segment.Paddr
	seq   segment.JournalSeq
	err   error
}

type batchWaiter struct {
	ch     chan contributorResult
	prefix int64 // cumulative encoded length of earlier contributors
}

/*
	recordBatch is a reusable slot that accumulates pending records into a
	single device write. Slots are pre-allocated by the submitter and cycle
	EMPTY -> PENDING -> SUBMITTING -> EMPTY. Completion fans out through one
	buffered channel per contributor, collected at setResult.
*/
type recordBatch struct {
	state     batchState
	index     int
	capacity  int
	flushSize int64

	encodedLength int64
	records       []record.Record
	sizes         []record.Size
	waiters       []batchWaiter
}

func newRecordBatch(index, capacity int, flushSize int64) *recordBatch {
	return &recordBatch{
		index:     index,
		capacity:  capacity,
		flushSize: flushSize,
		records:   make([]record.Record, 0, capacity),
		sizes:     make([]record.Size, 0, capacity),
		waiters:   make([]batchWaiter, 0, capacity),
	}
}

func (b *recordBatch) isEmpty() bool      { return b.state == batchEmpty }
func (b *recordBatch) isPending() bool    { return b.state == batchPending }
func (b *recordBatch) isSubmitting() bool { return b.state == batchSubmitting }

func (b *recordBatch) numRecords() int { return len(b.records) }

// canBatch returns the encoded length the batch would reach if this record
// were added, or 0 if the batch cannot take it.
func (b *recordBatch) canBatch(size record.Size) int64 {
	if len(b.records) >= b.capacity || b.encodedLength > b.flushSize {
		return 0
	}
	return b.encodedLength + size.EncodedLength()
}

// addPending appends the record to the batch. The returned channel resolves
// with this contributor's own journal position once the batch write
// completes.
func (b *recordBatch) addPending(rec record.Record, size record.Size) <-chan contributorResult {
	ch := make(chan contributorResult, 1)
	b.waiters = append(b.waiters, batchWaiter{ch: ch, prefix: b.encodedLength})
	b.records = append(b.records, rec)
	b.sizes = append(b.sizes, size)
	b.encodedLength += size.EncodedLength()
	b.state = batchPending
	return ch
}

// encodeRecords serializes the batch for write and freezes it.
func (b *recordBatch) encodeRecords(blockSize, committedTo int64, nonce segment.Nonce) []byte {
	b.state = batchSubmitting
	return record.EncodeRecords(b.records, b.sizes, blockSize, committedTo, nonce)
}

// setResult fires every contributor's completion with its journal position
// (start plus the cumulative encoded lengths of earlier contributors) and
// returns the slot to EMPTY.
func (b *recordBatch) setResult(start segment.JournalSeq, err error) {
	for _, w := range b.waiters {
		if err != nil {
			w.ch <- contributorResult{err: err}
			continue
		}
		seq := start.Add(w.prefix)
		w.ch <- contributorResult{paddr: seq.Addr, seq: seq}
	}
	b.records = b.records[:0]
	b.sizes = b.sizes[:0]
	b.waiters = b.waiters[:0]
	b.encodedLength = 0
	b.state = batchEmpty
}

// submitPendingFast is the combined add+encode+set for a single record with
// no shared completion. Valid only on an EMPTY batch whose caller already
// holds an I/O slot; the slot is immediately reusable.
func (b *recordBatch) submitPendingFast(rec record.Record, size record.Size,
	blockSize, committedTo int64, nonce segment.Nonce,
) []byte {
	return record.EncodeRecords(
		[]record.Record{rec}, []record.Size{size}, blockSize, committedTo, nonce)
}
