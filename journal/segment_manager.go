package journal

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/tidestore/tidestore/journal/record"
	"github.com/tidestore/tidestore/metrics"
	"github.com/tidestore/tidestore/segment"
	"github.com/tidestore/tidestore/utils/log"
)

/*
	journalSegmentManager owns the current journal segment, the per-segment
	nonce, the next segment sequence and the written_to offset. Offset
	reservation is synchronous on the submitter goroutine; device writes run
	concurrently and may complete in any order.
*/

type journalSegmentManager struct {
	mgr      segment.Manager
	provider segment.Provider

	current   segment.Segment
	nonce     segment.Nonce
	writtenTo int64
	closed    bool

	// committedTo is updated from the finalize stage and read when records
	// are encoded, so it needs its own lock. It may lag into a previous
	// journal segment. nextSeq shares the lock for the accessors exposed
	// outside the submitter goroutine.
	mu          sync.Mutex
	nextSeq     segment.Seq
	committedTo segment.JournalSeq
}

var nonceSource = rand.New(rand.NewSource(time.Now().UnixNano()))

func newNonce() segment.Nonce {
	for {
		if n := segment.Nonce(nonceSource.Uint32()); n != 0 {
			return n
		}
	}
}

func newJournalSegmentManager(mgr segment.Manager) *journalSegmentManager {
	return &journalSegmentManager{mgr: mgr}
}

func (m *journalSegmentManager) setSegmentProvider(provider segment.Provider) {
	m.provider = provider
}

// getMaxWriteLength is the usable byte count of one segment: the segment
// size minus the block-aligned header reservation.
func (m *journalSegmentManager) getMaxWriteLength() int64 {
	return m.mgr.GetSegmentSize() -
		record.BlockAlign(record.SegmentHeaderSize, m.mgr.GetBlockSize())
}

func (m *journalSegmentManager) getBlockSize() int64 {
	return m.mgr.GetBlockSize()
}

func (m *journalSegmentManager) getNonce() segment.Nonce {
	return m.nonce
}

func (m *journalSegmentManager) getSegmentSeq() segment.Seq {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nextSeq - 1
}

func (m *journalSegmentManager) setSegmentSeq(seq segment.Seq) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSeq = seq + 1
}

func (m *journalSegmentManager) getCommittedTo() segment.JournalSeq {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.committedTo
}

// committedToOffset is the durable offset recorded into record headers at
// encode time.
func (m *journalSegmentManager) committedToOffset() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.committedTo.Addr.Off
}

// markCommitted advances the committed_to cursor. Calls arrive in strictly
// increasing order through the finalize stage; the max keeps the cursor
// monotonic regardless.
func (m *journalSegmentManager) markCommitted(seq segment.JournalSeq) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.committedTo.Cmp(seq) < 0 {
		m.committedTo = seq
	}
}

func (m *journalSegmentManager) currentWriteSeq() segment.JournalSeq {
	return segment.JournalSeq{
		Seq: m.getSegmentSeq(),
		Addr: segment.Paddr{
			Segment: m.current.GetSegmentID(),
			Off:     m.writtenTo,
		},
	}
}

// open rolls into the first segment (or the next one after replay) and
// returns the position of the first record-writable byte.
func (m *journalSegmentManager) open() (segment.JournalSeq, error) {
	if err := m.roll(); err != nil {
		return segment.JournalSeq{}, err
	}
	return m.currentWriteSeq(), nil
}

// needsRoll reports whether appending length bytes would exceed the
// remaining capacity of the current segment.
func (m *journalSegmentManager) needsRoll(length int64) bool {
	if m.current == nil {
		return true
	}
	return m.writtenTo+length > m.current.GetWriteCapacity()
}

// roll closes the current segment and initializes the next one. On failure
// no segment is open and writes fail until a roll succeeds.
func (m *journalSegmentManager) roll() error {
	if m.closed {
		return fmt.Errorf("roll on closed journal: %w", ErrIO)
	}
	if err := m.closeCurrent(); err != nil {
		log.Error("cannot close journal segment on roll: %v", err)
		return fmt.Errorf("close segment on roll: %v: %w", err, ErrIO)
	}
	if m.provider == nil {
		return fmt.Errorf("no segment provider configured: %w", ErrIO)
	}
	id, err := m.provider.GetNextSegmentID()
	if err != nil {
		return fmt.Errorf("next segment id: %v: %w", err, ErrIO)
	}
	seg, err := m.mgr.Open(id)
	if err != nil {
		return fmt.Errorf("open segment %d: %v: %w", id, err, ErrIO)
	}

	m.mu.Lock()
	seq := m.nextSeq
	tail := m.committedTo
	m.mu.Unlock()

	nonce := newNonce()
	hdr := record.SegmentHeader{Seq: seq, Nonce: nonce, Tail: tail}
	if err := m.initializeSegment(seg, hdr); err != nil {
		//nolint:errcheck // the segment is abandoned either way
		seg.Close()
		return err
	}

	m.current = seg
	m.nonce = nonce
	m.writtenTo = m.getBlockSize()
	m.mu.Lock()
	m.nextSeq++
	m.mu.Unlock()
	log.Debug("rolled into journal segment %d (seq %d, nonce %d)", id, seq, nonce)
	return nil
}

// initializeSegment writes the segment header as the first block.
func (m *journalSegmentManager) initializeSegment(seg segment.Segment, hdr record.SegmentHeader) error {
	buf := record.EncodeSegmentHeader(hdr, m.getBlockSize())
	if err := seg.Write(0, buf); err != nil {
		return fmt.Errorf("initialize segment %d: %v: %w", seg.GetSegmentID(), err, ErrIO)
	}
	metrics.WrittenBytes.Add(float64(len(buf)))
	return nil
}

func (m *journalSegmentManager) closeCurrent() error {
	if m.current == nil {
		return nil
	}
	id := m.current.GetSegmentID()
	last := m.currentWriteSeq()
	err := m.current.Close()
	m.current = nil
	if m.provider != nil {
		m.provider.CloseSegment(id, last)
	}
	return err
}

// write appends buf at the current written_to offset. Reservation happens
// here, synchronously; the device write resolves through the returned
// channel and may complete out of order with other writes.
func (m *journalSegmentManager) write(buf []byte) (segment.JournalSeq, <-chan error) {
	done := make(chan error, 1)
	if m.current == nil || m.closed {
		done <- fmt.Errorf("write without an open segment: %w", ErrIO)
		return segment.JournalSeq{}, done
	}
	start := m.currentWriteSeq()
	seg := m.current
	off := m.writtenTo
	m.writtenTo += int64(len(buf))
	go func() {
		done <- seg.Write(off, buf)
	}()
	metrics.WrittenBytes.Add(float64(len(buf)))
	return start, done
}

func (m *journalSegmentManager) close() error {
	err := m.closeCurrent()
	m.closed = true
	if err != nil {
		return fmt.Errorf("close journal segment: %v: %w", err, ErrIO)
	}
	return nil
}
