package segment

// Manager is a block-addressable device that allocates, opens, writes and
// reads fixed-size segments.
type Manager interface {
	GetSegmentSize() int64
	GetBlockSize() int64
	// Open opens the segment for writing, allocating it if necessary.
	Open(id ID) (Segment, error)
	// ReadAt reads len(p) bytes from the segment at the given offset.
	ReadAt(id ID, off int64, p []byte) (int, error)
}

// Segment is an open, append-only region of the backing device. Write calls
// may be issued concurrently at disjoint offsets.
type Segment interface {
	GetSegmentID() ID
	GetWriteCapacity() int64
	Write(off int64, p []byte) error
	Close() error
}

// Provider names the next segment to use for journal writes and is notified
// when a segment is closed out.
type Provider interface {
	GetNextSegmentID() (ID, error)
	CloseSegment(id ID, lastSeq JournalSeq)
}
