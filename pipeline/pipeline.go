package pipeline

import "sync"

/*
	A WritePipeline is a pair of FIFO stages the journal uses to serialize
	cross-transaction progress: DeviceSubmission around offset reservation
	and Finalize around the commit update. An OrderingHandle moves through
	the stages in order; entering a stage reserves its position before the
	previous stage is released, so positions in Finalize always match the
	DeviceSubmission order even when device writes complete out of order.
*/

// Stage is a FIFO rendezvous point. Positions are granted in reservation
// order, one holder at a time.
type Stage struct {
	mu      sync.Mutex
	next    uint64
	serving uint64
	waiters map[uint64]chan struct{}
}

func newStage() *Stage {
	return &Stage{waiters: make(map[uint64]chan struct{})}
}

type ticket struct {
	stage *Stage
	pos   uint64
}

func (s *Stage) reserve() *ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &ticket{stage: s, pos: s.next}
	s.next++
	return t
}

func (t *ticket) wait() {
	s := t.stage
	s.mu.Lock()
	if s.serving == t.pos {
		s.mu.Unlock()
		return
	}
	ch := make(chan struct{})
	s.waiters[t.pos] = ch
	s.mu.Unlock()
	<-ch
}

func (t *ticket) release() {
	s := t.stage
	s.mu.Lock()
	s.serving++
	if ch, ok := s.waiters[s.serving]; ok {
		delete(s.waiters, s.serving)
		close(ch)
	}
	s.mu.Unlock()
}

type WritePipeline struct {
	deviceSubmission *Stage
	finalize         *Stage
}

func NewWritePipeline() *WritePipeline {
	return &WritePipeline{
		deviceSubmission: newStage(),
		finalize:         newStage(),
	}
}

func (p *WritePipeline) DeviceSubmission() *Stage {
	return p.deviceSubmission
}

func (p *WritePipeline) Finalize() *Stage {
	return p.finalize
}

// OrderingHandle is a caller-supplied token that carries one transaction
// through the pipeline stages. It holds at most one stage at a time.
type OrderingHandle struct {
	cur *ticket
}

func NewOrderingHandle() *OrderingHandle {
	return &OrderingHandle{}
}

// Enter reserves a position in s, releases the currently held stage, and
// blocks until the reserved position is granted.
func (h *OrderingHandle) Enter(s *Stage) {
	t := s.reserve()
	h.exit()
	h.cur = t
	t.wait()
}

// Exit releases the held stage, if any. Safe to call on every path out of
// a submission.
func (h *OrderingHandle) Exit() {
	h.exit()
}

func (h *OrderingHandle) exit() {
	if h.cur != nil {
		h.cur.release()
		h.cur = nil
	}
}
