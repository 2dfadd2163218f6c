package record

import (
	"errors"
	"fmt"
	"hash/crc32"

	"github.com/tidestore/tidestore/segment"
	"github.com/tidestore/tidestore/utils/io"
)

/*
	On-disk layout of one encoded record:

		[record header][delta area][extent length table][pad]   <- mdlength
		[extent 0][extent 1]...[pad]                            <- dlength

	Both regions are block-aligned. A batch is the concatenation of encoded
	records and is block-aligned as a whole because each member is.

	All integers are little-endian. Checksums are CRC-32C.
*/

const (
	RecordHeaderMagic uint32 = 0x74647263 // "tdrc"

	// RecordHeaderSize is the fixed prefix of the metadata region:
	// magic, mdlength, dlength, deltasCount, extentsCount (4 bytes each),
	// committedTo (8), nonce, mdataChecksum, fullChecksum (4 each).
	RecordHeaderSize = 40

	fullChecksumOff = 36
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

var (
	ErrInvalidRecord = errors.New("record: invalid record header")
	ErrChecksum      = errors.New("record: checksum mismatch")
)

// Record is the atomic unit of submission: an ordered sequence of opaque
// metadata deltas plus optional raw data extents. The journal carries both
// verbatim.
type Record struct {
	Deltas  [][]byte
	Extents [][]byte
}

// Size holds the block-aligned region lengths of a record once encoded.
type Size struct {
	Mdlength int64
	Dlength  int64
}

func (s Size) EncodedLength() int64 {
	return s.Mdlength + s.Dlength
}

// BlockAlign rounds n up to the next multiple of block.
func BlockAlign(n, block int64) int64 {
	return (n + block - 1) / block * block
}

// MeasureRecord computes the encoded region lengths of r.
func MeasureRecord(r Record, blockSize int64) Size {
	md := int64(RecordHeaderSize)
	for _, d := range r.Deltas {
		md += 4 + int64(len(d))
	}
	md += 4 * int64(len(r.Extents))
	var data int64
	for _, e := range r.Extents {
		data += int64(len(e))
	}
	size := Size{Mdlength: BlockAlign(md, blockSize)}
	if data > 0 {
		size.Dlength = BlockAlign(data, blockSize)
	}
	return size
}

// Header is the fixed prefix of every encoded record.
type Header struct {
	Mdlength      int64
	Dlength       int64
	DeltasCount   uint32
	ExtentsCount  uint32
	CommittedTo   int64 // segment offset durable when the record was encoded
	Nonce         segment.Nonce
	MdataChecksum uint32
	FullChecksum  uint32
}

// EncodeRecords serializes a batch of records into a single block-aligned
// buffer. sizes must be the MeasureRecord results for records, in order.
func EncodeRecords(records []Record, sizes []Size, blockSize int64,
	committedTo int64, nonce segment.Nonce,
) []byte {
	var total int64
	for _, s := range sizes {
		total += s.EncodedLength()
	}
	buf := make([]byte, 0, total)
	for i := range records {
		buf = appendRecord(buf, records[i], sizes[i], committedTo, nonce)
	}
	return buf
}

func appendRecord(buf []byte, r Record, size Size, committedTo int64, nonce segment.Nonce) []byte {
	base := int64(len(buf))
	out := append(buf, make([]byte, size.EncodedLength())...)
	rec := out[base:]

	hdr := rec[:RecordHeaderSize]
	io.PutUint32(hdr[0:], RecordHeaderMagic)
	io.PutUint32(hdr[4:], uint32(size.Mdlength))
	io.PutUint32(hdr[8:], uint32(size.Dlength))
	io.PutUint32(hdr[12:], uint32(len(r.Deltas)))
	io.PutUint32(hdr[16:], uint32(len(r.Extents)))
	io.PutInt64(hdr[20:], committedTo)
	io.PutUint32(hdr[28:], uint32(nonce))

	// delta area and extent length table
	cursor := int64(RecordHeaderSize)
	for _, d := range r.Deltas {
		io.PutUint32(rec[cursor:], uint32(len(d)))
		cursor += 4
		copy(rec[cursor:], d)
		cursor += int64(len(d))
	}
	for _, e := range r.Extents {
		io.PutUint32(rec[cursor:], uint32(len(e)))
		cursor += 4
	}

	cursor = size.Mdlength
	for _, e := range r.Extents {
		copy(rec[cursor:], e)
		cursor += int64(len(e))
	}

	io.PutUint32(hdr[32:], crc32.Checksum(rec[RecordHeaderSize:size.Mdlength], castagnoli))
	// full checksum covers the whole record with its own field zeroed
	io.PutUint32(hdr[fullChecksumOff:], crc32.Checksum(rec, castagnoli))
	return out
}

// DecodeHeader parses the fixed record prefix. A zeroed magic means the
// scan has run past the end of the written journal.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < RecordHeaderSize {
		return Header{}, fmt.Errorf("short record header of %d bytes: %w", len(b), ErrInvalidRecord)
	}
	if io.ToUint32(b[0:]) != RecordHeaderMagic {
		return Header{}, ErrInvalidRecord
	}
	h := Header{
		Mdlength:      int64(io.ToUint32(b[4:])),
		Dlength:       int64(io.ToUint32(b[8:])),
		DeltasCount:   io.ToUint32(b[12:]),
		ExtentsCount:  io.ToUint32(b[16:]),
		CommittedTo:   io.ToInt64(b[20:]),
		Nonce:         segment.Nonce(io.ToUint32(b[28:])),
		MdataChecksum: io.ToUint32(b[32:]),
		FullChecksum:  io.ToUint32(b[fullChecksumOff:]),
	}
	if h.Mdlength < RecordHeaderSize {
		return Header{}, fmt.Errorf("record metadata region of %d bytes too small: %w", h.Mdlength, ErrInvalidRecord)
	}
	return h, nil
}

// CheckRecord validates both checksums of a fully read record. rec must be
// the complete mdlength+dlength byte region.
func CheckRecord(h Header, rec []byte) error {
	if int64(len(rec)) != h.Mdlength+h.Dlength {
		return fmt.Errorf("record region of %d bytes, expected %d: %w",
			len(rec), h.Mdlength+h.Dlength, ErrInvalidRecord)
	}
	if crc32.Checksum(rec[RecordHeaderSize:h.Mdlength], castagnoli) != h.MdataChecksum {
		return fmt.Errorf("record metadata: %w", ErrChecksum)
	}
	crc := crc32.New(castagnoli)
	crc.Write(rec[:fullChecksumOff])
	crc.Write([]byte{0, 0, 0, 0})
	crc.Write(rec[fullChecksumOff+4:])
	if crc.Sum32() != h.FullChecksum {
		return fmt.Errorf("record: %w", ErrChecksum)
	}
	return nil
}

// DecodeDeltas extracts the delta payloads from a metadata region.
func DecodeDeltas(h Header, mdata []byte) ([][]byte, error) {
	if int64(len(mdata)) < h.Mdlength {
		return nil, fmt.Errorf("short metadata region of %d bytes: %w", len(mdata), ErrInvalidRecord)
	}
	deltas := make([][]byte, 0, h.DeltasCount)
	cursor := int64(RecordHeaderSize)
	for i := uint32(0); i < h.DeltasCount; i++ {
		if cursor+4 > h.Mdlength {
			return nil, fmt.Errorf("truncated delta table: %w", ErrInvalidRecord)
		}
		dlen := int64(io.ToUint32(mdata[cursor:]))
		cursor += 4
		if cursor+dlen > h.Mdlength {
			return nil, fmt.Errorf("delta of %d bytes overruns metadata region: %w", dlen, ErrInvalidRecord)
		}
		deltas = append(deltas, mdata[cursor:cursor+dlen])
		cursor += dlen
	}
	return deltas, nil
}

// DecodeRecord restores the full record from its validated regions.
func DecodeRecord(h Header, mdata, data []byte) (Record, error) {
	deltas, err := DecodeDeltas(h, mdata)
	if err != nil {
		return Record{}, err
	}
	// the extent length table follows the delta area
	cursor := int64(RecordHeaderSize)
	for _, d := range deltas {
		cursor += 4 + int64(len(d))
	}
	if cursor+4*int64(h.ExtentsCount) > h.Mdlength {
		return Record{}, fmt.Errorf("truncated extent table: %w", ErrInvalidRecord)
	}
	extents := make([][]byte, 0, h.ExtentsCount)
	var dataOff int64
	for i := uint32(0); i < h.ExtentsCount; i++ {
		elen := int64(io.ToUint32(mdata[cursor:]))
		cursor += 4
		if dataOff+elen > h.Dlength || int64(len(data)) < dataOff+elen {
			return Record{}, fmt.Errorf("extent of %d bytes overruns data region: %w", elen, ErrInvalidRecord)
		}
		extents = append(extents, data[dataOff:dataOff+elen])
		dataOff += elen
	}
	return Record{Deltas: deltas, Extents: extents}, nil
}
