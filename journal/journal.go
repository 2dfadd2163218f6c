package journal

import (
	"fmt"
	"sync"

	"github.com/tidestore/tidestore/journal/record"
	"github.com/tidestore/tidestore/pipeline"
	"github.com/tidestore/tidestore/segment"
	"github.com/tidestore/tidestore/utils/io"
	"github.com/tidestore/tidestore/utils/log"
)

// Scanner iterates record headers and payloads within a segment. The
// concrete implementation lives with the embedding system; see the scanner
// package for the file-backed one.
type Scanner interface {
	ReadSegmentHeader(id segment.ID) (record.SegmentHeader, error)
	ScanSegment(id segment.ID, hdr record.SegmentHeader,
		fn func(off int64, h record.Header, mdata, data []byte) error) error
}

/*
	Journal manages a stream of atomically written records across fixed
	size segments. A record is durable exactly when its encoded bytes have
	been written to the segment device; replay delivers the persisted
	deltas in the order records were accepted.
*/
type Journal struct {
	jsm       *journalSegmentManager
	submitter *recordSubmitter
	scanner   Scanner
	pipeline  *pipeline.WritePipeline

	mu       sync.Mutex
	open     bool
	openSeq  segment.JournalSeq
	inflight sync.WaitGroup
}

// NewJournal wires the journal to its segment device and scanner. The
// segment provider is injected separately because its owner also owns the
// journal; the journal must not outlive the provider.
func NewJournal(mgr segment.Manager, scn Scanner, cfg Config) *Journal {
	jsm := newJournalSegmentManager(mgr)
	return &Journal{
		jsm:       jsm,
		submitter: newRecordSubmitter(cfg, jsm),
		scanner:   scn,
		pipeline:  pipeline.NewWritePipeline(),
	}
}

func (j *Journal) SetSegmentProvider(provider segment.Provider) {
	j.jsm.setSegmentProvider(provider)
}

func (j *Journal) SetWritePipeline(p *pipeline.WritePipeline) {
	j.pipeline = p
}

func (j *Journal) GetSegmentSeq() segment.Seq {
	return j.jsm.getSegmentSeq()
}

// OpenForWrite initializes the journal for new writes. Must run after
// Replay on an existing journal. Idempotent once per journal instance.
func (j *Journal) OpenForWrite() (segment.JournalSeq, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.open {
		return j.openSeq, nil
	}
	seq, err := j.jsm.open()
	if err != nil {
		log.Error("%v: cannot open journal for write: %v", io.GetCallerFileContext(0), err)
		return segment.JournalSeq{}, err
	}
	j.submitter.start()
	j.open = true
	j.openSeq = seq
	return seq, nil
}

// SubmitRecord hands one record to the journal and resolves with the
// physical address of its first block and its journal position. The handle
// serializes this transaction through the write pipeline stages; commit
// acknowledgements observe the submission order.
func (j *Journal) SubmitRecord(rec record.Record, handle *pipeline.OrderingHandle,
) (segment.Paddr, segment.JournalSeq, error) {
	j.mu.Lock()
	if !j.open {
		j.mu.Unlock()
		return segment.Paddr{}, segment.JournalSeq{},
			fmt.Errorf("%v: %w", NotOpenError("SubmitRecord"), ErrIO)
	}
	j.inflight.Add(1)
	j.mu.Unlock()
	defer j.inflight.Done()
	defer handle.Exit()

	handle.Enter(j.pipeline.DeviceSubmission())
	resp := make(chan submitResponse, 1)
	j.submitter.submitCh <- &submission{rec: rec, resp: resp}
	r := <-resp
	if r.err != nil {
		return segment.Paddr{}, segment.JournalSeq{}, r.err
	}

	// the finalize stage re-serializes out-of-order write completions
	// into commit order
	handle.Enter(j.pipeline.Finalize())
	res := <-r.result
	if res.err != nil {
		return segment.Paddr{}, segment.JournalSeq{}, res.err
	}
	j.jsm.markCommitted(res.seq)
	return res.paddr, res.seq, nil
}

// Close drains the journal: it stops admitting submissions, waits for
// outstanding device writes, then finalizes the current segment.
func (j *Journal) Close() error {
	j.mu.Lock()
	if !j.open {
		j.mu.Unlock()
		return j.jsm.close()
	}
	j.open = false
	j.mu.Unlock()

	j.inflight.Wait()
	done := make(chan error)
	j.submitter.stopCh <- done
	if err := <-done; err != nil {
		log.Error("journal drain failed: %v", err)
	}
	log.Info("journal closed, committed to %s", j.jsm.getCommittedTo())
	return j.jsm.close()
}
