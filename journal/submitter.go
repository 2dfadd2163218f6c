package journal

import (
	"fmt"

	"github.com/tidestore/tidestore/journal/record"
	"github.com/tidestore/tidestore/metrics"
	"github.com/tidestore/tidestore/segment"
	"github.com/tidestore/tidestore/utils/log"
)

// Config bounds the submitter's concurrency and batching.
type Config struct {
	// IODepthLimit is the maximum number of concurrent device writes.
	IODepthLimit int
	// BatchCapacity is the maximum number of records per batch.
	BatchCapacity int
	// BatchFlushSize is the soft byte cap of one batch, normally one
	// device stripe.
	BatchFlushSize int64
}

func DefaultConfig() Config {
	return Config{
		IODepthLimit:   4,
		BatchCapacity:  16,
		BatchFlushSize: 64 * 1024,
	}
}

type submitterState int

const (
	stateIdle    submitterState = iota // no outstanding io
	statePending                       // outstanding io below the depth limit
	stateFull                          // outstanding io at the depth limit
)

type submission struct {
	rec  record.Record
	resp chan submitResponse
}

type submitResponse struct {
	result <-chan contributorResult
	err    error
}

type ioCompletion struct {
	batch *recordBatch           // nil for fast-path writes
	fast  chan contributorResult // fast-path completion, nil for batches
	start segment.JournalSeq
	err   error
}

/*
	recordSubmitter admits concurrent submissions, groups them into batches
	and enforces the outstanding-I/O bound. All scheduling state is owned by
	a single goroutine consuming a channel of submissions and a channel of
	write completions, so no further locking is needed on it.

	Scheduling, on acceptance of each record:
	  - IDLE: the record is encoded alone and written immediately (fast
	    path);
	  - otherwise the record accumulates into the current batch, which is
	    flushed when it fills or when a write completes; only when the
	    batch cannot take the record and every slot is in flight does
	    acceptance stall until a completion frees it.
*/
type recordSubmitter struct {
	jsm          *journalSegmentManager
	ioDepthLimit int

	numOutstanding int
	batches        []*recordBatch
	freeBatches    []*recordBatch
	currentBatch   *recordBatch

	submitCh     chan *submission
	completionCh chan *ioCompletion
	stopCh       chan chan error
}

func newRecordSubmitter(cfg Config, jsm *journalSegmentManager) *recordSubmitter {
	if cfg.IODepthLimit <= 0 {
		cfg.IODepthLimit = DefaultConfig().IODepthLimit
	}
	if cfg.BatchCapacity <= 0 {
		cfg.BatchCapacity = DefaultConfig().BatchCapacity
	}
	if cfg.BatchFlushSize <= 0 {
		cfg.BatchFlushSize = DefaultConfig().BatchFlushSize
	}
	s := &recordSubmitter{
		jsm:          jsm,
		ioDepthLimit: cfg.IODepthLimit,
		submitCh:     make(chan *submission),
		completionCh: make(chan *ioCompletion),
		stopCh:       make(chan chan error),
	}
	// one spare slot beyond the depth limit so a batch can accumulate
	// while every slot is in flight
	for i := 0; i < cfg.IODepthLimit+1; i++ {
		s.batches = append(s.batches, newRecordBatch(i, cfg.BatchCapacity, cfg.BatchFlushSize))
	}
	s.freeBatches = append(s.freeBatches, s.batches...)
	s.popFreeBatch()
	return s
}

func (s *recordSubmitter) start() {
	go s.run()
}

func (s *recordSubmitter) run() {
	for {
		select {
		case sub := <-s.submitCh:
			s.handleSubmit(sub)
		case c := <-s.completionCh:
			s.handleCompletion(c)
		case done := <-s.stopCh:
			done <- s.drain()
			return
		}
	}
}

func (s *recordSubmitter) state() submitterState {
	switch {
	case s.numOutstanding == 0:
		return stateIdle
	case s.numOutstanding < s.ioDepthLimit:
		return statePending
	default:
		return stateFull
	}
}

func (s *recordSubmitter) incrementIO() {
	s.numOutstanding++
	if s.numOutstanding > s.ioDepthLimit {
		log.Fatal("journal submitter exceeded io depth limit: %d > %d",
			s.numOutstanding, s.ioDepthLimit)
	}
	metrics.OutstandingIO.Inc()
}

func (s *recordSubmitter) popFreeBatch() {
	s.currentBatch = s.freeBatches[0]
	s.freeBatches = s.freeBatches[1:]
}

func (s *recordSubmitter) handleSubmit(sub *submission) {
	size := record.MeasureRecord(sub.rec, s.jsm.getBlockSize())
	if size.EncodedLength() > s.jsm.getMaxWriteLength() {
		sub.resp <- submitResponse{err: fmt.Errorf(
			"record of %d encoded bytes exceeds segment write limit %d: %w",
			size.EncodedLength(), s.jsm.getMaxWriteLength(), ErrRange)}
		return
	}

	for {
		if s.jsm.needsRoll(size.EncodedLength()) {
			if !s.currentBatch.isEmpty() && s.state() != stateFull {
				s.flushCurrentBatch()
			}
			// outstanding writes hold reservations against the current
			// segment and must resolve before the roll closes it; a
			// still-pending batch is flushed by the first completion
			for s.numOutstanding > 0 {
				s.handleCompletion(<-s.completionCh)
			}
			if err := s.jsm.roll(); err != nil {
				sub.resp <- submitResponse{err: err}
				return
			}
			metrics.SegmentRolls.Inc()
			continue
		}

		if s.state() == stateIdle && s.currentBatch.isEmpty() {
			// fast path: encode and write the record alone
			buf := s.currentBatch.submitPendingFast(sub.rec, size,
				s.jsm.getBlockSize(), s.jsm.committedToOffset(), s.jsm.getNonce())
			s.incrementIO()
			start, dev := s.jsm.write(buf)
			fast := make(chan contributorResult, 1)
			go func() {
				s.completionCh <- &ioCompletion{fast: fast, start: start, err: <-dev}
			}()
			metrics.FastPathWrites.Inc()
			metrics.RecordsSubmitted.Inc()
			sub.resp <- submitResponse{result: fast}
			return
		}

		fit := s.currentBatch.canBatch(size)
		if fit == 0 || fit > s.jsm.getMaxWriteLength() || s.jsm.needsRoll(fit) {
			if s.state() == stateFull {
				// wait for an I/O to complete, then reattempt
				s.handleCompletion(<-s.completionCh)
				continue
			}
			s.flushCurrentBatch()
			continue
		}

		result := s.currentBatch.addPending(sub.rec, size)
		metrics.RecordsSubmitted.Inc()
		sub.resp <- submitResponse{result: result}
		return
	}
}

// flushCurrentBatch encodes the pending batch, hands it to the segment
// manager and pops a fresh slot.
func (s *recordSubmitter) flushCurrentBatch() {
	b := s.currentBatch
	buf := b.encodeRecords(s.jsm.getBlockSize(), s.jsm.committedToOffset(), s.jsm.getNonce())
	s.incrementIO()
	start, dev := s.jsm.write(buf)
	go func() {
		s.completionCh <- &ioCompletion{batch: b, start: start, err: <-dev}
	}()
	metrics.BatchesFlushed.Inc()
	s.popFreeBatch()
}

func (s *recordSubmitter) handleCompletion(c *ioCompletion) {
	var err error
	if c.err != nil {
		log.Error("journal device write failed: %v", c.err)
		err = fmt.Errorf("device write: %v: %w", c.err, ErrIO)
	}
	if c.batch != nil {
		c.batch.setResult(c.start, err)
		s.freeBatches = append(s.freeBatches, c.batch)
	} else if err != nil {
		c.fast <- contributorResult{err: err}
	} else {
		c.fast <- contributorResult{paddr: c.start.Addr, seq: c.start}
	}
	s.decrementIOWithFlush()
}

// decrementIOWithFlush frees the I/O slot and flushes the accumulating
// batch so a stranded pending record is not held indefinitely.
func (s *recordSubmitter) decrementIOWithFlush() {
	s.numOutstanding--
	metrics.OutstandingIO.Dec()
	if !s.currentBatch.isEmpty() {
		s.flushCurrentBatch()
	}
}

// drain flushes the pending batch and waits until no writes are in flight.
func (s *recordSubmitter) drain() error {
	if !s.currentBatch.isEmpty() {
		s.flushCurrentBatch()
	}
	for s.numOutstanding > 0 {
		s.handleCompletion(<-s.completionCh)
	}
	return nil
}
