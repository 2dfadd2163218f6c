package pipeline_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidestore/tidestore/pipeline"
)

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func TestStageIsExclusiveFIFO(t *testing.T) {
	p := pipeline.NewWritePipeline()
	log := &eventLog{}

	h1 := pipeline.NewOrderingHandle()
	h1.Enter(p.DeviceSubmission())
	log.add("h1-ds")

	done := make(chan struct{})
	go func() {
		defer close(done)
		h2 := pipeline.NewOrderingHandle()
		h2.Enter(p.DeviceSubmission())
		log.add("h2-ds")
		h2.Enter(p.Finalize())
		log.add("h2-fin")
		h2.Exit()
	}()

	// h2 cannot enter device submission while h1 holds it
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []string{"h1-ds"}, log.snapshot())

	// entering finalize releases device submission but reserves the
	// finalize position first, so h2 queues behind h1 there
	h1.Enter(p.Finalize())
	log.add("h1-fin")
	time.Sleep(50 * time.Millisecond)
	events := log.snapshot()
	require.Contains(t, events, "h2-ds")
	assert.NotContains(t, events, "h2-fin")

	h1.Exit()
	<-done
	final := log.snapshot()
	assert.Equal(t, "h1-ds", final[0])
	assert.Equal(t, "h2-fin", final[len(final)-1])
	assert.Less(t, indexOf(final, "h1-fin"), indexOf(final, "h2-fin"))
}

func indexOf(events []string, e string) int {
	for i, v := range events {
		if v == e {
			return i
		}
	}
	return -1
}

func TestExitIsIdempotent(t *testing.T) {
	p := pipeline.NewWritePipeline()
	h := pipeline.NewOrderingHandle()
	h.Enter(p.DeviceSubmission())
	h.Exit()
	h.Exit()

	// the stage is free again
	h2 := pipeline.NewOrderingHandle()
	h2.Enter(p.DeviceSubmission())
	h2.Exit()
}

func TestFinalizeOrderMatchesSubmissionOrder(t *testing.T) {
	p := pipeline.NewWritePipeline()
	log := &eventLog{}

	var wg sync.WaitGroup
	for _, name := range []string{"a", "b", "c"} {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			h := pipeline.NewOrderingHandle()
			h.Enter(p.DeviceSubmission())
			log.add(name + "-ds")
			// unequal work between the stages simulates out-of-order
			// completion; finalize order must still match the device
			// submission order
			if name == "a" {
				time.Sleep(30 * time.Millisecond)
			}
			h.Enter(p.Finalize())
			log.add(name + "-fin")
			h.Exit()
		}(name)
		// stagger the goroutines so the submission order is fixed
		time.Sleep(10 * time.Millisecond)
	}
	wg.Wait()

	events := log.snapshot()
	var dsOrder, finOrder []string
	for _, e := range events {
		if len(e) > 3 && e[2:] == "fin" {
			finOrder = append(finOrder, e[:1])
		}
		if e[2:] == "ds" {
			dsOrder = append(dsOrder, e[:1])
		}
	}
	require.Equal(t, dsOrder, finOrder)
}
