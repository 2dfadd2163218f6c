package scanner

import (
	"fmt"

	"github.com/tidestore/tidestore/journal/record"
	"github.com/tidestore/tidestore/segment"
	"github.com/tidestore/tidestore/utils/io"
	"github.com/tidestore/tidestore/utils/log"
)

// Scanner iterates record headers and payloads within a segment, starting
// just after the segment header block.
type Scanner struct {
	mgr segment.Manager
}

func NewScanner(mgr segment.Manager) *Scanner {
	return &Scanner{mgr: mgr}
}

// ReadSegmentHeader reads and validates the first block of a segment.
func (s *Scanner) ReadSegmentHeader(id segment.ID) (record.SegmentHeader, error) {
	buf := make([]byte, s.mgr.GetBlockSize())
	if _, err := s.mgr.ReadAt(id, 0, buf); err != nil {
		return record.SegmentHeader{}, fmt.Errorf("read segment %d header: %w", id, err)
	}
	return record.DecodeSegmentHeader(buf)
}

// ScanSegment calls fn for every valid record in the segment, in offset
// order. The scan ends cleanly at the first zeroed header or at a record
// carrying a stale nonce (data from a previous incarnation of the physical
// segment). A record that fails header or checksum validation terminates
// the scan with an error wrapping record.ErrInvalidRecord or
// record.ErrChecksum; the caller decides whether that is a torn tail.
func (s *Scanner) ScanSegment(id segment.ID, hdr record.SegmentHeader,
	fn func(off int64, h record.Header, mdata, data []byte) error,
) error {
	blockSize := s.mgr.GetBlockSize()
	segmentSize := s.mgr.GetSegmentSize()

	head := make([]byte, blockSize)
	for off := blockSize; off < segmentSize; {
		if _, err := s.mgr.ReadAt(id, off, head); err != nil {
			return fmt.Errorf("read segment %d at %d: %w", id, off, err)
		}
		if io.ToUint32(head) == 0 {
			// end of the written journal
			return nil
		}
		h, err := record.DecodeHeader(head)
		if err != nil {
			return fmt.Errorf("segment %d record at %d: %w", id, off, err)
		}
		if h.Nonce != hdr.Nonce {
			log.Debug("segment %d: stale nonce %d at %d, end of segment", id, h.Nonce, off)
			return nil
		}
		if off+h.Mdlength+h.Dlength > segmentSize {
			return fmt.Errorf("segment %d record at %d overruns segment: %w", id, off, record.ErrInvalidRecord)
		}
		rec := make([]byte, h.Mdlength+h.Dlength)
		if _, err := s.mgr.ReadAt(id, off, rec); err != nil {
			return fmt.Errorf("read segment %d record at %d: %w", id, off, err)
		}
		if err := record.CheckRecord(h, rec); err != nil {
			return fmt.Errorf("segment %d record at %d: %w", id, off, err)
		}
		if err := fn(off, h, rec[:h.Mdlength], rec[h.Mdlength:]); err != nil {
			return err
		}
		off += h.Mdlength + h.Dlength
	}
	return nil
}
