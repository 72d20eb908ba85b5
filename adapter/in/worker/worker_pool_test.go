package worker

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testPool() *Pool {
	// Unknown job types are acked and dropped by the handler, so the
	// processor is never touched.
	handler := NewHandler(nil, zerolog.Nop())
	return NewPool(handler, &PoolConfig{
		Workers:        2,
		BatchSize:      1,
		WorkerChanSize: 4,
		JobTimeout:     time.Second,
	}, zerolog.Nop())
}

func noopMessage(id string) *Message {
	return &Message{ID: id, Type: "noop", CreatedAt: time.Now()}
}

func TestSubmitBeforeStartReturnsFalse(t *testing.T) {
	p := testPool()
	if p.Submit(noopMessage("early")) {
		t.Error("Submit accepted a message before Start")
	}
}

func TestSubmitAfterStopReturnsFalse(t *testing.T) {
	p := testPool()
	if err := p.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	p.Stop()

	if p.Submit(noopMessage("late")) {
		t.Error("Submit accepted a message after Stop")
	}
}

func TestSubmitRacingStopIsSafe(t *testing.T) {
	p := testPool()
	if err := p.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Keep submitting until the pool turns us away.
			for p.Submit(noopMessage("job")) {
			}
		}()
	}

	time.Sleep(20 * time.Millisecond)
	p.Stop()
	wg.Wait()

	if p.Submit(noopMessage("after")) {
		t.Error("Submit accepted a message after Stop")
	}
}
