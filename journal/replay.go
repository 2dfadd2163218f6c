package journal

import (
	"errors"
	"fmt"
	"sort"

	"github.com/tidestore/tidestore/journal/record"
	"github.com/tidestore/tidestore/metrics"
	"github.com/tidestore/tidestore/segment"
	"github.com/tidestore/tidestore/utils/log"
)

// DeltaHandler is invoked once per persisted delta, in strict journal
// order. recordBase is the physical address of the first block of the
// record the delta belongs to.
type DeltaHandler func(seq segment.JournalSeq, recordBase segment.Paddr, delta []byte) error

// ReplaySegment pairs a physical segment with its decoded header.
type ReplaySegment struct {
	ID     segment.ID
	Header record.SegmentHeader
}

// Replay scans the persisted segments in sequence order and invokes the
// delta handler for every durable record. Must run before OpenForWrite; it
// leaves the segment sequence primed so the next roll continues the
// journal.
func (j *Journal) Replay(segments []ReplaySegment, handler DeltaHandler) error {
	j.mu.Lock()
	if j.open {
		j.mu.Unlock()
		return fmt.Errorf("replay on a journal already open for write: %w", ErrIO)
	}
	j.mu.Unlock()

	ordered, err := prepReplaySegments(segments)
	if err != nil {
		return err
	}

	for i, rs := range ordered {
		final := i == len(ordered)-1
		if err := j.replaySegment(rs, final, handler); err != nil {
			return err
		}
	}
	if len(ordered) > 0 {
		j.jsm.setSegmentSeq(ordered[len(ordered)-1].Header.Seq)
	}
	return nil
}

// prepReplaySegments orders segments by sequence. Two segments claiming the
// same sequence mean the on-disk journal is inconsistent.
func prepReplaySegments(segments []ReplaySegment) ([]ReplaySegment, error) {
	ordered := make([]ReplaySegment, len(segments))
	copy(ordered, segments)
	sort.Slice(ordered, func(i, k int) bool {
		return ordered[i].Header.Seq < ordered[k].Header.Seq
	})
	for i := 1; i < len(ordered); i++ {
		if ordered[i].Header.Seq == ordered[i-1].Header.Seq {
			err := ReplayOrderError(fmt.Sprintf("segments %d and %d share seq %d",
				ordered[i-1].ID, ordered[i].ID, ordered[i].Header.Seq))
			return nil, fmt.Errorf("%v: %w", err, ErrIO)
		}
	}
	return ordered, nil
}

// replaySegment delivers the deltas of one segment. A record that fails
// validation in the final segment is a torn tail and ends the replay
// cleanly; the same failure mid-journal is fatal.
func (j *Journal) replaySegment(rs ReplaySegment, final bool, handler DeltaHandler) error {
	err := j.scanner.ScanSegment(rs.ID, rs.Header,
		func(off int64, h record.Header, mdata, data []byte) error {
			deltas, err := record.DecodeDeltas(h, mdata)
			if err != nil {
				return err
			}
			seq := segment.JournalSeq{
				Seq:  rs.Header.Seq,
				Addr: segment.Paddr{Segment: rs.ID, Off: off},
			}
			for _, d := range deltas {
				if err := handler(seq, seq.Addr, d); err != nil {
					return fmt.Errorf("delta handler at %s: %w", seq, err)
				}
			}
			metrics.ReplayedRecords.Inc()
			return nil
		})
	if err == nil {
		return nil
	}
	if errors.Is(err, record.ErrChecksum) || errors.Is(err, record.ErrInvalidRecord) {
		if final {
			log.Warn("torn tail in journal segment %d: %v", rs.ID, err)
			return nil
		}
		log.Error("mid-journal decode failure in segment %d: %v", rs.ID, err)
		return fmt.Errorf("mid-journal decode failure in segment %d: %v: %w", rs.ID, err, ErrIO)
	}
	return fmt.Errorf("replay segment %d: %w", rs.ID, err)
}
