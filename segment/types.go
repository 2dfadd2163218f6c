package segment

import "fmt"

// ID identifies a physical segment on the backing device.
type ID uint32

// Seq identifies a logical journal segment. It increases by one on every
// roll and is never reused within a journal instance.
type Seq uint64

// Nonce distinguishes reincarnations of the same physical segment.
type Nonce uint32

// Paddr is a physical address: a byte offset within a segment.
type Paddr struct {
	Segment ID
	Off     int64
}

func (p Paddr) Add(n int64) Paddr {
	p.Off += n
	return p
}

func (p Paddr) String() string {
	return fmt.Sprintf("%d:%d", p.Segment, p.Off)
}

// JournalSeq is an ordered journal position: the logical segment sequence
// plus the physical address the position refers to.
type JournalSeq struct {
	Seq  Seq
	Addr Paddr
}

func (s JournalSeq) Add(n int64) JournalSeq {
	s.Addr.Off += n
	return s
}

// Cmp orders positions by segment sequence, then by offset. Two positions
// with equal sequence always refer to the same physical segment.
func (s JournalSeq) Cmp(o JournalSeq) int {
	switch {
	case s.Seq < o.Seq:
		return -1
	case s.Seq > o.Seq:
		return 1
	case s.Addr.Off < o.Addr.Off:
		return -1
	case s.Addr.Off > o.Addr.Off:
		return 1
	}
	return 0
}

func (s JournalSeq) String() string {
	return fmt.Sprintf("%d@%s", s.Seq, s.Addr)
}
