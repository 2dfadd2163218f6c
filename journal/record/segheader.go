package record

import (
	"fmt"
	"hash/crc32"

	"github.com/tidestore/tidestore/segment"
	"github.com/tidestore/tidestore/utils/io"
)

const (
	SegmentHeaderMagic uint32 = 0x74647367 // "tdsg"

	// SegmentHeaderSize is the meaningful prefix of the header block:
	// magic (4), seq (8), nonce (4), tail seq (8), tail segment (4),
	// tail offset (8), checksum (4). The header occupies one full block.
	SegmentHeaderSize = 40

	segChecksumOff = 36
)

// SegmentHeader is written as the first block of every journal segment.
// Tail is the journal position durable when the segment was initialized,
// a replay hint for where the live journal begins.
type SegmentHeader struct {
	Seq   segment.Seq
	Nonce segment.Nonce
	Tail  segment.JournalSeq
}

// EncodeSegmentHeader serializes h into one zero-padded block.
func EncodeSegmentHeader(h SegmentHeader, blockSize int64) []byte {
	buf := make([]byte, blockSize)
	io.PutUint32(buf[0:], SegmentHeaderMagic)
	io.PutUint64(buf[4:], uint64(h.Seq))
	io.PutUint32(buf[12:], uint32(h.Nonce))
	io.PutUint64(buf[16:], uint64(h.Tail.Seq))
	io.PutUint32(buf[24:], uint32(h.Tail.Addr.Segment))
	io.PutInt64(buf[28:], h.Tail.Addr.Off)
	io.PutUint32(buf[segChecksumOff:], crc32.Checksum(buf[:segChecksumOff], castagnoli))
	return buf
}

var ErrBadSegmentHeader = fmt.Errorf("record: bad segment header")

// DecodeSegmentHeader parses and validates the first block of a segment.
func DecodeSegmentHeader(b []byte) (SegmentHeader, error) {
	if len(b) < SegmentHeaderSize {
		return SegmentHeader{}, fmt.Errorf("short segment header of %d bytes: %w", len(b), ErrBadSegmentHeader)
	}
	if io.ToUint32(b[0:]) != SegmentHeaderMagic {
		return SegmentHeader{}, ErrBadSegmentHeader
	}
	if crc32.Checksum(b[:segChecksumOff], castagnoli) != io.ToUint32(b[segChecksumOff:]) {
		return SegmentHeader{}, fmt.Errorf("segment header checksum: %w", ErrBadSegmentHeader)
	}
	return SegmentHeader{
		Seq:   segment.Seq(io.ToUint64(b[4:])),
		Nonce: segment.Nonce(io.ToUint32(b[12:])),
		Tail: segment.JournalSeq{
			Seq: segment.Seq(io.ToUint64(b[16:])),
			Addr: segment.Paddr{
				Segment: segment.ID(io.ToUint32(b[24:])),
				Off:     io.ToInt64(b[28:]),
			},
		},
	}, nil
}
