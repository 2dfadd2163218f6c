package segment

import "sync"

// SequentialProvider hands out monotonically increasing segment IDs and
// records which segments have been closed out. Reclamation policy lives
// with the embedding system; this provider never reuses an ID.
type SequentialProvider struct {
	mu     sync.Mutex
	next   ID
	closed map[ID]JournalSeq
}

func NewSequentialProvider(start ID) *SequentialProvider {
	return &SequentialProvider{
		next:   start,
		closed: make(map[ID]JournalSeq),
	}
}

func (p *SequentialProvider) GetNextSegmentID() (ID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.next
	p.next++
	return id, nil
}

func (p *SequentialProvider) CloseSegment(id ID, lastSeq JournalSeq) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed[id] = lastSeq
}

// Closed reports the last journal position of a closed segment.
func (p *SequentialProvider) Closed(id ID) (JournalSeq, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	seq, ok := p.closed[id]
	return seq, ok
}
